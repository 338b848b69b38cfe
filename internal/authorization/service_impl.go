package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/taskhub/internal/audit/domain"
	authdomain "github.com/smallbiznis/taskhub/internal/auth/domain"
	membershipdomain "github.com/smallbiznis/taskhub/internal/membership/domain"
	"github.com/smallbiznis/taskhub/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectTask       = "task"
	ObjectMember     = "member"
	ObjectInvitation = "invitation"
	ObjectAuditLog   = "audit_log"
)

const (
	ActionTaskView   = "task.view"
	ActionTaskCreate = "task.create"
	ActionTaskUpdate = "task.update"
	ActionTaskToggle = "task.toggle"
	ActionTaskDelete = "task.delete"
	ActionTaskExport = "task.export"

	ActionMemberView   = "member.view"
	ActionMemberRemove = "member.remove"

	ActionInvitationView   = "invitation.view"
	ActionInvitationCreate = "invitation.create"
	ActionInvitationCancel = "invitation.cancel"
	ActionInvitationResend = "invitation.resend"

	ActionAuditLogView = "audit_log.view"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Enforcer    *casbin.SyncedEnforcer
	Memberships membershipdomain.Service
	Metrics     *metrics.Metrics    `optional:"true"`
	AuditSvc    auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log         *zap.Logger
	enforcer    *casbin.SyncedEnforcer
	memberships membershipdomain.Service
	metrics     *metrics.Metrics
	auditSvc    auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:         p.Log.Named("authorization.service"),
		enforcer:    p.Enforcer,
		memberships: p.Memberships,
		metrics:     p.Metrics,
		auditSvc:    p.AuditSvc,
	}
}

func (s *ServiceImpl) Guard(ctx context.Context, session *authdomain.Session) (*Scope, error) {
	if session == nil || session.UserID == 0 {
		s.metrics.RecordGateDenial(ctx, "unauthenticated")
		return nil, ErrUnauthenticated
	}
	if !session.HasActiveOrganization() {
		s.metrics.RecordGateDenial(ctx, "no_active_organization")
		return nil, ErrNoActiveOrganization
	}

	orgID := *session.ActiveOrgID
	member, err := s.memberships.GetMember(ctx, orgID, session.UserID)
	if err != nil {
		if errors.Is(err, membershipdomain.ErrMemberNotFound) {
			s.metrics.RecordGateDenial(ctx, "not_a_member")
			s.log.Info("gate rejected stale organization",
				zap.String("user_id", session.UserID.String()),
				zap.String("org_id", orgID.String()),
			)
			return nil, ErrNotAMember
		}
		return nil, err
	}

	return &Scope{UserID: session.UserID, OrgID: orgID, Role: member.Role}, nil
}

func (s *ServiceImpl) Authorize(ctx context.Context, scope *Scope, object string, action string) error {
	if scope == nil || scope.UserID == 0 || scope.OrgID == 0 {
		return ErrUnauthenticated
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := fmt.Sprintf("user:%s", scope.UserID)
	roleName := fmt.Sprintf("role:%s", scope.Role)
	domain := fmt.Sprintf("org:%s", scope.OrgID)
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.metrics.RecordGateDenial(ctx, "forbidden")
		s.auditDenied(ctx, scope, object, action)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps the casbin role link in step with the membership
// row, which is the source of truth for the role.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
				s.log.Warn("failed to drop stale role link",
					zap.String("subject", subject),
					zap.String("role", rule[1]),
					zap.String("domain", domain),
					zap.Error(err),
				)
				return fmt.Errorf("remove stale role link: %w", err)
			}
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, scope *Scope, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	orgID := scope.OrgID
	actorID := scope.UserID.String()
	targetID := "capability"
	err := s.auditSvc.AuditLog(ctx, &orgID, string(auditdomain.ActorTypeUser), &actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
		"role":   string(scope.Role),
	})
	if err != nil {
		s.log.Warn("audit authorization.denied failed", zap.Error(err))
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	everyone := [][]string{
		{ObjectTask, ActionTaskView},
		{ObjectTask, ActionTaskCreate},
		{ObjectTask, ActionTaskUpdate},
		{ObjectTask, ActionTaskToggle},
		{ObjectTask, ActionTaskDelete},
		{ObjectTask, ActionTaskExport},
		{ObjectMember, ActionMemberView},
		{ObjectInvitation, ActionInvitationView},
	}
	managers := [][]string{
		{ObjectInvitation, ActionInvitationCreate},
		{ObjectInvitation, ActionInvitationCancel},
		{ObjectInvitation, ActionInvitationResend},
		{ObjectMember, ActionMemberRemove},
		{ObjectAuditLog, ActionAuditLogView},
	}

	var policies [][]string
	for _, role := range []membershipdomain.Role{membershipdomain.RoleMember, membershipdomain.RoleAdmin, membershipdomain.RoleOwner} {
		roleName := fmt.Sprintf("role:%s", role)
		for _, rule := range everyone {
			policies = append(policies, []string{roleName, rule[0], rule[1]})
		}
		if !role.CanManageMembers() {
			continue
		}
		for _, rule := range managers {
			policies = append(policies, []string{roleName, rule[0], rule[1]})
		}
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
