package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/taskhub/internal/audit/domain"
	"github.com/smallbiznis/taskhub/internal/clock"
	"github.com/smallbiznis/taskhub/internal/membership/domain"
	"github.com/smallbiznis/taskhub/internal/outbox"
	"github.com/smallbiznis/taskhub/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Outbox   outbox.Publisher    `optional:"true"`
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	outbox   outbox.Publisher
	auditSvc auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("membership.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		outbox:   p.Outbox,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) IsMember(ctx context.Context, orgID, userID snowflake.ID) (bool, error) {
	if orgID == 0 || userID == 0 {
		return false, nil
	}
	return s.repo.IsMember(ctx, orgID, userID)
}

func (s *Service) GetMember(ctx context.Context, orgID, userID snowflake.ID) (*domain.Member, error) {
	return s.repo.Get(ctx, orgID, userID)
}

func (s *Service) ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]domain.OrganizationRef, error) {
	return s.repo.ListOrganizationsByUser(ctx, userID)
}

func (s *Service) LatestOrganizationID(ctx context.Context, userID snowflake.ID) (*snowflake.ID, error) {
	return s.repo.LatestOrganizationID(ctx, userID)
}

func (s *Service) IsEmailMember(ctx context.Context, orgID snowflake.ID, email string) (bool, error) {
	return s.repo.IsEmailMember(ctx, orgID, email)
}

func (s *Service) AddMember(ctx context.Context, tx *gorm.DB, orgID, userID snowflake.ID, role domain.Role) (*domain.Member, error) {
	if _, err := domain.ParseRole(string(role)); err != nil {
		return nil, err
	}
	repo := s.repo
	if tx != nil {
		repo = repo.WithTx(tx)
	}

	member := &domain.Member{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		UserID:    userID,
		Role:      role,
		CreatedAt: s.clock.Now(),
	}
	if err := repo.Insert(ctx, member); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrAlreadyMember
		}
		return nil, err
	}
	return member, nil
}

func (s *Service) ListMembers(ctx context.Context, orgID snowflake.ID) ([]domain.MemberView, error) {
	return s.repo.ListMembers(ctx, orgID)
}

// RemoveMember deletes a membership. Any owner may leave or be removed
// while at least one other owner remains. Owner rows are locked before the
// count so concurrent removals of the last two owners serialize.
func (s *Service) RemoveMember(ctx context.Context, req domain.RemoveMemberRequest) error {
	var removed *domain.Member
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		member, err := repo.GetByID(ctx, req.OrgID, req.MemberID)
		if err != nil {
			return err
		}

		if member.Role == domain.RoleOwner {
			owners, err := repo.LockByRole(ctx, req.OrgID, domain.RoleOwner)
			if err != nil {
				return err
			}
			if !hasOtherOwner(owners, member.ID) {
				return domain.ErrLastOwner
			}
		}

		affected, err := repo.Delete(ctx, req.OrgID, req.MemberID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrMemberNotFound
		}
		removed = member

		if s.outbox == nil {
			return nil
		}
		return s.outbox.WithTx(tx).Publish(ctx, req.OrgID, outbox.MembershipRemoved, map[string]any{
			"member_id": member.ID.String(),
			"user_id":   member.UserID.String(),
			"actor_id":  req.ActorID.String(),
		})
	})
	if err != nil {
		return err
	}

	s.log.Info("member removed",
		zap.String("org_id", req.OrgID.String()),
		zap.String("member_id", req.MemberID.String()),
		zap.String("actor_id", req.ActorID.String()),
	)
	s.audit(ctx, req, removed)
	return nil
}

func hasOtherOwner(owners []snowflake.ID, memberID snowflake.ID) bool {
	for _, id := range owners {
		if id != memberID {
			return true
		}
	}
	return false
}

func (s *Service) audit(ctx context.Context, req domain.RemoveMemberRequest, member *domain.Member) {
	if s.auditSvc == nil || member == nil {
		return
	}
	orgID := req.OrgID
	actorID := req.ActorID.String()
	targetID := member.ID.String()
	err := s.auditSvc.AuditLog(ctx, &orgID, string(auditdomain.ActorTypeUser), &actorID, "member.removed", "organization_member", &targetID, map[string]any{
		"user_id": member.UserID.String(),
		"role":    string(member.Role),
		"at":      s.clock.Now().Format(time.RFC3339),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("audit member.removed failed", zap.Error(err))
	}
}
