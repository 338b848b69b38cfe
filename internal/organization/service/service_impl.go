package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/taskhub/internal/audit/domain"
	"github.com/smallbiznis/taskhub/internal/clock"
	"github.com/smallbiznis/taskhub/internal/config"
	membershipdomain "github.com/smallbiznis/taskhub/internal/membership/domain"
	"github.com/smallbiznis/taskhub/internal/organization/domain"
	"github.com/smallbiznis/taskhub/internal/outbox"
	"github.com/smallbiznis/taskhub/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Repo        domain.Repository
	Memberships membershipdomain.Service
	Policy      *config.PolicyHolder
	GenID       *snowflake.Node
	Clock       clock.Clock
	Outbox      outbox.Publisher    `optional:"true"`
	AuditSvc    auditdomain.Service `optional:"true"`
}

type service struct {
	db          *gorm.DB
	log         *zap.Logger
	repo        domain.Repository
	memberships membershipdomain.Service
	policy      *config.PolicyHolder
	genID       *snowflake.Node
	clock       clock.Clock
	outbox      outbox.Publisher
	auditSvc    auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &service{
		db:          p.DB,
		log:         p.Log.Named("organization.service"),
		repo:        p.Repo,
		memberships: p.Memberships,
		policy:      p.Policy,
		genID:       p.GenID,
		clock:       p.Clock,
		outbox:      p.Outbox,
		auditSvc:    p.AuditSvc,
	}
}

func (s *service) Create(ctx context.Context, userID snowflake.ID, req domain.CreateOrganizationRequest) (*domain.Organization, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || utf8.RuneCountInString(name) > domain.MaxNameLength {
		return nil, domain.ErrInvalidName
	}

	orgSlug := strings.TrimSpace(req.Slug)
	if orgSlug == "" {
		orgSlug = SuggestSlug(name)
	}
	if !ValidSlug(orgSlug) {
		return nil, domain.ErrInvalidSlug
	}

	policy := s.policy.Get()
	logo := strings.TrimSpace(req.LogoKey)
	if logo == "" {
		logo = policy.LogoKeys[0]
	}
	if !policy.AllowsLogo(logo) {
		return nil, domain.ErrInvalidLogo
	}

	taken, err := s.repo.SlugExists(ctx, orgSlug)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, domain.ErrSlugTaken
	}

	now := s.clock.Now()
	org := domain.Organization{
		ID:        s.genID.Generate(),
		Name:      name,
		Slug:      orgSlug,
		LogoKey:   logo,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateOrganization(ctx, org); err != nil {
			return err
		}
		_, err := s.memberships.AddMember(ctx, tx, org.ID, userID, membershipdomain.RoleOwner)
		return err
	})
	if err != nil {
		// The pre-check races with concurrent creators; the unique index decides.
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrSlugTaken
		}
		return nil, err
	}

	s.log.Info("organization created",
		zap.String("org_id", org.ID.String()),
		zap.String("slug", org.Slug),
		zap.String("owner_id", userID.String()),
	)
	s.emitOrganizationCreated(ctx, org, userID)
	return &org, nil
}

func (s *service) CheckSlug(ctx context.Context, raw string) (*domain.SlugCheck, error) {
	orgSlug := strings.TrimSpace(raw)
	if !ValidSlug(orgSlug) {
		return nil, domain.ErrInvalidSlug
	}
	taken, err := s.repo.SlugExists(ctx, orgSlug)
	if err != nil {
		return nil, err
	}
	return &domain.SlugCheck{Slug: orgSlug, Available: !taken}, nil
}

func (s *service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	if id == 0 {
		return nil, domain.ErrOrganizationNotFound
	}
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]membershipdomain.OrganizationRef, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	return s.memberships.ListOrganizationsByUser(ctx, userID)
}

// SuggestSlug derives a slug candidate from an organization name.
func SuggestSlug(name string) string {
	out := slug.Make(name)
	if len(out) > domain.MaxSlugLength {
		out = strings.Trim(out[:domain.MaxSlugLength], "-")
	}
	return out
}

func ValidSlug(value string) bool {
	return value != "" && len(value) <= domain.MaxSlugLength && slugPattern.MatchString(value)
}

func (s *service) emitOrganizationCreated(ctx context.Context, org domain.Organization, ownerUserID snowflake.ID) {
	if s.outbox != nil {
		payload := map[string]string{
			"organization_id": org.ID.String(),
			"owner_user_id":   ownerUserID.String(),
			"slug":            org.Slug,
			"created_at":      org.CreatedAt.Format(time.RFC3339),
		}
		if err := s.outbox.Publish(ctx, org.ID, outbox.OrganizationCreated, payload); err != nil {
			s.log.Warn("failed to publish organization.created", zap.Error(err))
		}
	}

	if s.auditSvc != nil {
		orgID := org.ID
		actorID := ownerUserID.String()
		targetID := org.ID.String()
		err := s.auditSvc.AuditLog(ctx, &orgID, string(auditdomain.ActorTypeUser), &actorID, "organization.created", "organization", &targetID, map[string]any{
			"name": org.Name,
			"slug": org.Slug,
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("audit organization.created failed", zap.Error(err))
		}
	}
}
