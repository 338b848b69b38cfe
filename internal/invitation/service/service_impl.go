package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/taskhub/internal/audit/domain"
	authdomain "github.com/smallbiznis/taskhub/internal/auth/domain"
	"github.com/smallbiznis/taskhub/internal/authorization"
	"github.com/smallbiznis/taskhub/internal/clock"
	"github.com/smallbiznis/taskhub/internal/config"
	"github.com/smallbiznis/taskhub/internal/invitation/domain"
	membershipdomain "github.com/smallbiznis/taskhub/internal/membership/domain"
	"github.com/smallbiznis/taskhub/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/taskhub/internal/organization/domain"
	"github.com/smallbiznis/taskhub/internal/outbox"
	"github.com/smallbiznis/taskhub/internal/providers/email"
	"github.com/smallbiznis/taskhub/internal/ratelimit"
	"github.com/smallbiznis/taskhub/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const inviteTemplate = "invite_member"

// UserLookup resolves inviter profiles for notifications.
type UserLookup interface {
	GetUser(ctx context.Context, id snowflake.ID) (*authdomain.User, error)
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Cfg         config.Config
	Policy      *config.PolicyHolder
	Repo        domain.Repository
	Memberships membershipdomain.Service
	Orgs        orgdomain.Service
	Users       UserLookup
	Email       email.Provider
	GenID       *snowflake.Node
	Clock       clock.Clock
	Limiter     *ratelimit.InvitationLimiter `optional:"true"`
	Metrics     *metrics.Metrics             `optional:"true"`
	Outbox      outbox.Publisher             `optional:"true"`
	AuditSvc    auditdomain.Service          `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	baseURL     string
	policy      *config.PolicyHolder
	repo        domain.Repository
	memberships membershipdomain.Service
	orgs        orgdomain.Service
	users       UserLookup
	email       email.Provider
	genID       *snowflake.Node
	clock       clock.Clock
	limiter     *ratelimit.InvitationLimiter
	metrics     *metrics.Metrics
	outbox      outbox.Publisher
	auditSvc    auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("invitation.service"),
		baseURL:     strings.TrimRight(p.Cfg.BaseURL, "/"),
		policy:      p.Policy,
		repo:        p.Repo,
		memberships: p.Memberships,
		orgs:        p.Orgs,
		users:       p.Users,
		email:       p.Email,
		genID:       p.GenID,
		clock:       p.Clock,
		limiter:     p.Limiter,
		metrics:     p.Metrics,
		outbox:      p.Outbox,
		auditSvc:    p.AuditSvc,
	}
}

func (s *Service) Invite(ctx context.Context, scope *authorization.Scope, req domain.InviteRequest) (*domain.Invitation, error) {
	if scope == nil {
		return nil, authorization.ErrUnauthenticated
	}

	address, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}
	role := membershipdomain.RoleMember
	if strings.TrimSpace(req.Role) != "" {
		role, err = membershipdomain.ParseRole(req.Role)
		if err != nil {
			return nil, domain.ErrInvalidRole
		}
	}

	orgKey := scope.OrgID.String()
	allowed, err := s.limiter.Allow(ctx, orgKey)
	if err != nil {
		// A limiter outage must not block invitations.
		s.log.Warn("invitation rate limiter unavailable", zap.Error(err))
	} else if !allowed {
		return nil, domain.ErrRateLimited
	}

	lockToken, locked, err := s.limiter.LockRecipient(ctx, orgKey, address)
	if err != nil {
		s.log.Warn("invitation lock unavailable", zap.Error(err))
	} else if !locked {
		return nil, domain.ErrInvitationInFlight
	} else if lockToken != "" {
		defer func() {
			if err := s.limiter.ReleaseRecipient(context.WithoutCancel(ctx), orgKey, address, lockToken); err != nil {
				s.log.Warn("failed to release invitation lock", zap.Error(err))
			}
		}()
	}

	isMember, err := s.memberships.IsEmailMember(ctx, scope.OrgID, address)
	if err != nil {
		return nil, err
	}
	if isMember {
		return nil, domain.ErrAlreadyMember
	}

	now := s.clock.Now()
	pending, err := s.repo.HasLivePending(ctx, scope.OrgID, address, now)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, domain.ErrAlreadyInvited
	}

	invitation := &domain.Invitation{
		ID:        s.genID.Generate(),
		OrgID:     scope.OrgID,
		Email:     address,
		Role:      role,
		Status:    domain.StatusPending,
		ExpiresAt: now.Add(s.policy.Get().InvitationTTL),
		InviterID: scope.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Insert(ctx, invitation); err != nil {
			return err
		}
		return s.publish(ctx, tx, invitation, outbox.InvitationCreated)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invitation created",
		zap.String("invitation_id", invitation.ID.String()),
		zap.String("org_id", scope.OrgID.String()),
		zap.String("role", string(role)),
	)
	s.metrics.RecordInvitationEvent(ctx, "created")
	s.deliver(ctx, invitation)
	s.audit(ctx, scope.UserID, invitation, "invitation.created")
	return invitation, nil
}

func (s *Service) Cancel(ctx context.Context, scope *authorization.Scope, invitationID snowflake.ID) error {
	if scope == nil {
		return authorization.ErrUnauthenticated
	}
	invitation, err := s.repo.GetForOrg(ctx, scope.OrgID, invitationID)
	if err != nil {
		return err
	}
	if !invitation.Pending() {
		return domain.ErrAlreadyProcessed
	}

	if err := s.transition(ctx, invitation, domain.StatusCancelled, outbox.InvitationCancelled); err != nil {
		return err
	}

	s.metrics.RecordInvitationEvent(ctx, "cancelled")
	s.audit(ctx, scope.UserID, invitation, "invitation.cancelled")
	return nil
}

// Resend re-delivers the notification. It never changes status or expiry.
func (s *Service) Resend(ctx context.Context, scope *authorization.Scope, invitationID snowflake.ID) error {
	if scope == nil {
		return authorization.ErrUnauthenticated
	}
	invitation, err := s.repo.GetForOrg(ctx, scope.OrgID, invitationID)
	if err != nil {
		return err
	}
	if !invitation.Pending() {
		return domain.ErrAlreadyProcessed
	}

	allowed, err := s.limiter.Allow(ctx, scope.OrgID.String())
	if err != nil {
		s.log.Warn("invitation rate limiter unavailable", zap.Error(err))
	} else if !allowed {
		return domain.ErrRateLimited
	}

	s.metrics.RecordInvitationEvent(ctx, "resent")
	s.deliver(ctx, invitation)
	return nil
}

func (s *Service) ListPending(ctx context.Context, scope *authorization.Scope) ([]domain.Invitation, error) {
	if scope == nil {
		return nil, authorization.ErrUnauthenticated
	}
	return s.repo.ListPending(ctx, scope.OrgID)
}

func (s *Service) GetForInvitee(ctx context.Context, user *authdomain.User, invitationID snowflake.ID) (*domain.InvitationDetails, error) {
	if user == nil {
		return nil, authorization.ErrUnauthenticated
	}
	details, err := s.repo.Details(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	inv := &details.Invitation
	if inv.Expired(s.clock.Now()) || !inv.Pending() || !isInvitee(user, inv) {
		return nil, domain.ErrInvitationNotFound
	}
	return details, nil
}

func (s *Service) Accept(ctx context.Context, user *authdomain.User, invitationID snowflake.ID) (*domain.Invitation, error) {
	invitation, err := s.checkInvitee(ctx, user, invitationID)
	if err != nil {
		return nil, err
	}

	isMember, err := s.memberships.IsMember(ctx, invitation.OrgID, user.ID)
	if err != nil {
		return nil, err
	}
	if isMember {
		return nil, domain.ErrAlreadyMember
	}

	role := invitation.Role
	if role == "" {
		role = membershipdomain.RoleMember
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.memberships.AddMember(ctx, tx, invitation.OrgID, user.ID, role); err != nil {
			return err
		}
		affected, err := s.repo.WithTx(tx).Transition(ctx, invitation.ID, domain.StatusAccepted, s.clock.Now())
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrAlreadyProcessed
		}
		invitation.Status = domain.StatusAccepted
		return s.publish(ctx, tx, invitation, outbox.InvitationAccepted)
	})
	if err != nil {
		if errors.Is(err, membershipdomain.ErrAlreadyMember) || db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrAlreadyMember
		}
		return nil, err
	}

	s.log.Info("invitation accepted",
		zap.String("invitation_id", invitation.ID.String()),
		zap.String("org_id", invitation.OrgID.String()),
		zap.String("user_id", user.ID.String()),
	)
	s.metrics.RecordInvitationEvent(ctx, "accepted")
	s.audit(ctx, user.ID, invitation, "invitation.accepted")
	return invitation, nil
}

func (s *Service) Decline(ctx context.Context, user *authdomain.User, invitationID snowflake.ID) error {
	invitation, err := s.checkInvitee(ctx, user, invitationID)
	if err != nil {
		return err
	}

	if err := s.transition(ctx, invitation, domain.StatusDeclined, outbox.InvitationDeclined); err != nil {
		return err
	}

	s.metrics.RecordInvitationEvent(ctx, "declined")
	s.audit(ctx, user.ID, invitation, "invitation.declined")
	return nil
}

// checkInvitee applies the invitee guards in order: exists, not expired,
// pending, email match. The processed errors are only shown to the invitee;
// anyone else sees not found.
func (s *Service) checkInvitee(ctx context.Context, user *authdomain.User, invitationID snowflake.ID) (*domain.Invitation, error) {
	if user == nil {
		return nil, authorization.ErrUnauthenticated
	}
	invitation, err := s.repo.GetByID(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if invitation.Expired(s.clock.Now()) {
		return nil, domain.ErrInvitationNotFound
	}
	invitee := isInvitee(user, invitation)
	switch invitation.Status {
	case domain.StatusPending:
	case domain.StatusAccepted:
		if invitee {
			return nil, domain.ErrAlreadyAccepted
		}
		return nil, domain.ErrInvitationNotFound
	default:
		if invitee {
			return nil, domain.ErrAlreadyProcessed
		}
		return nil, domain.ErrInvitationNotFound
	}
	if !invitee {
		return nil, domain.ErrInvitationNotFound
	}
	return invitation, nil
}

// isInvitee matches on the verified email only.
func isInvitee(user *authdomain.User, invitation *domain.Invitation) bool {
	return user.EmailVerified && user.Email == invitation.Email
}

// transition moves a pending invitation and records the event in the same
// transaction.
func (s *Service) transition(ctx context.Context, invitation *domain.Invitation, status domain.Status, eventType string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		affected, err := s.repo.WithTx(tx).Transition(ctx, invitation.ID, status, s.clock.Now())
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrAlreadyProcessed
		}
		invitation.Status = status
		return s.publish(ctx, tx, invitation, eventType)
	})
}

// deliver sends the invitation email. Failures are logged only.
func (s *Service) deliver(ctx context.Context, invitation *domain.Invitation) {
	note, err := s.notification(ctx, invitation)
	if err != nil {
		s.log.Warn("failed to build invitation notification", zap.String("invitation_id", invitation.ID.String()), zap.Error(err))
		return
	}

	data := map[string]interface{}{
		"org_name":        note.OrganizationName,
		"inviter_name":    note.InviterName,
		"role":            note.Role,
		"invitation_link": note.InvitationLink,
		"expires_at":      note.ExpiresAt.Format("2006-01-02"),
	}
	if err := s.email.SendTemplate(ctx, []string{note.RecipientEmail}, inviteTemplate, data); err != nil {
		s.log.Warn("failed to deliver invitation", zap.String("invitation_id", invitation.ID.String()), zap.Error(err))
	}
}

func (s *Service) notification(ctx context.Context, invitation *domain.Invitation) (*domain.Notification, error) {
	org, err := s.orgs.GetByID(ctx, invitation.OrgID)
	if err != nil {
		return nil, err
	}
	inviterName := ""
	if inviter, err := s.users.GetUser(ctx, invitation.InviterID); err == nil {
		inviterName = inviter.Name
	}
	return &domain.Notification{
		RecipientEmail:   invitation.Email,
		OrganizationName: org.Name,
		InviterName:      inviterName,
		Role:             string(invitation.Role),
		InvitationLink:   s.InvitationLink(invitation.ID),
		ExpiresAt:        invitation.ExpiresAt,
	}, nil
}

func (s *Service) InvitationLink(id snowflake.ID) string {
	return s.baseURL + "/accept-invitation/" + id.String()
}

func (s *Service) publish(ctx context.Context, tx *gorm.DB, invitation *domain.Invitation, eventType string) error {
	if s.outbox == nil {
		return nil
	}
	return s.outbox.WithTx(tx).Publish(ctx, invitation.OrgID, eventType, map[string]string{
		"invitation_id":   invitation.ID.String(),
		"organization_id": invitation.OrgID.String(),
		"status":          string(invitation.Status),
		"role":            string(invitation.Role),
		"at":              s.clock.Now().Format(time.RFC3339),
	})
}

func (s *Service) audit(ctx context.Context, actorID snowflake.ID, invitation *domain.Invitation, action string) {
	if s.auditSvc == nil {
		return
	}
	org := invitation.OrgID
	actor := actorID.String()
	target := invitation.ID.String()
	err := s.auditSvc.AuditLog(ctx, &org, string(auditdomain.ActorTypeUser), &actor, action, "invitation", &target, map[string]any{
		"email": invitation.Email,
		"role":  string(invitation.Role),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("audit failed", zap.String("action", action), zap.Error(err))
	}
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}
