package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/taskhub/internal/audit/domain"
	"github.com/smallbiznis/taskhub/internal/audit/masking"
	auditcontext "github.com/smallbiznis/taskhub/internal/auditcontext"
	"github.com/smallbiznis/taskhub/internal/clock"
	"github.com/smallbiznis/taskhub/internal/orgcontext"
	"github.com/smallbiznis/taskhub/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const unknownTarget = "unknown"

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// AuditLog appends one entry. Organization and actor fall back to what the
// request context carries; metadata is masked before it is stored.
func (s *Service) AuditLog(ctx context.Context, orgID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	entry := &auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		OrgID:      orgFor(ctx, orgID),
		Action:     action,
		TargetType: strings.TrimSpace(targetType),
		TargetID:   trimmed(targetID),
		Metadata:   datatypes.JSONMap(entryMetadata(ctx, metadata)),
		IPAddress:  trimmed(ptr(auditcontext.IPAddressFromContext(ctx))),
		UserAgent:  trimmed(ptr(auditcontext.UserAgentFromContext(ctx))),
		CreatedAt:  s.clock.Now(),
	}
	entry.ActorType, entry.ActorID = actorFor(ctx, strings.TrimSpace(actorType), actorID)
	if entry.TargetType == "" {
		entry.TargetType = unknownTarget
	}

	if err := s.repo.Insert(ctx, s.db, entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

// List pages through an organization's entries, newest first.
func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if req.OrgID == 0 {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidOrganization
	}
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}

	filter := auditdomain.ListFilter{
		OrgID:      req.OrgID,
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		ActorType:  req.ActorType,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Limit:      req.Size(),
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return auditdomain.ListAuditLogResponse{}, errors.Join(auditdomain.ErrInvalidPageToken, err)
		}
		filter.Cursor = &cursor
	}

	rows, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}
	rows, info := pagination.Page(rows, filter.Limit, func(row *auditdomain.AuditLog) pagination.Cursor {
		return pagination.Cursor{ID: row.ID, CreatedAt: row.CreatedAt}
	})

	resp := auditdomain.ListAuditLogResponse{
		PageInfo:  info,
		AuditLogs: make([]auditdomain.AuditLog, 0, len(rows)),
	}
	for _, row := range rows {
		resp.AuditLogs = append(resp.AuditLogs, *row)
	}
	return resp, nil
}

func orgFor(ctx context.Context, orgID *snowflake.ID) *snowflake.ID {
	if orgID != nil && *orgID != 0 {
		return orgID
	}
	if fromCtx, ok := orgcontext.OrgIDFromContext(ctx); ok && fromCtx != 0 {
		return &fromCtx
	}
	return nil
}

// actorFor prefers the explicit actor, then the one stamped on the request,
// then system.
func actorFor(ctx context.Context, actorType string, actorID *string) (string, *string) {
	if actorType != "" {
		return actorType, trimmed(actorID)
	}
	ctxType, ctxID := auditcontext.ActorFromContext(ctx)
	if ctxType == "" {
		return string(auditdomain.ActorTypeSystem), trimmed(actorID)
	}
	if id := trimmed(actorID); id != nil {
		return ctxType, id
	}
	return ctxType, trimmed(&ctxID)
}

func entryMetadata(ctx context.Context, metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		if k != "" {
			out[k] = v
		}
	}
	if requestID := auditcontext.RequestIDFromContext(ctx); requestID != "" {
		out["request_id"] = requestID
	}
	if masked := masking.MaskMetadata(out); masked != nil {
		return masked
	}
	return map[string]any{}
}

func ptr(s string) *string { return &s }

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
