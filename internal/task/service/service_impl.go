package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/taskhub/internal/audit/domain"
	authdomain "github.com/smallbiznis/taskhub/internal/auth/domain"
	"github.com/smallbiznis/taskhub/internal/authorization"
	"github.com/smallbiznis/taskhub/internal/clock"
	"github.com/smallbiznis/taskhub/internal/config"
	orgdomain "github.com/smallbiznis/taskhub/internal/organization/domain"
	"github.com/smallbiznis/taskhub/internal/providers/pdf"
	"github.com/smallbiznis/taskhub/internal/task/domain"
	"github.com/smallbiznis/taskhub/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UserLookup resolves the exporting user's display name.
type UserLookup interface {
	GetUser(ctx context.Context, id snowflake.ID) (*authdomain.User, error)
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Policy   *config.PolicyHolder
	Repo     domain.Repository
	Orgs     orgdomain.Service
	Users    UserLookup
	PDF      pdf.Provider
	GenID    *snowflake.Node
	Clock    clock.Clock
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	policy   *config.PolicyHolder
	repo     domain.Repository
	orgs     orgdomain.Service
	users    UserLookup
	pdf      pdf.Provider
	genID    *snowflake.Node
	clock    clock.Clock
	auditSvc auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("task.service"),
		policy:   p.Policy,
		repo:     p.Repo,
		orgs:     p.Orgs,
		users:    p.Users,
		pdf:      p.PDF,
		genID:    p.GenID,
		clock:    p.Clock,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, scope *authorization.Scope, req domain.CreateTaskRequest) (*domain.Task, error) {
	if err := validScope(scope); err != nil {
		return nil, err
	}
	title, err := s.normalizeTitle(req.Title)
	if err != nil {
		return nil, err
	}
	priority, err := domain.ParsePriority(req.Priority)
	if err != nil {
		return nil, err
	}
	dueDate, err := domain.ParseDueDate(req.DueDate)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	task := &domain.Task{
		ID:        s.genID.Generate(),
		OrgID:     scope.OrgID,
		UserID:    scope.UserID,
		Title:     title,
		DueDate:   dueDate,
		Priority:  priority,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.inTenant(ctx, scope.OrgID, func(repo domain.Repository) error {
		return repo.Insert(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, scope, "task.created", task.ID, map[string]any{"priority": string(priority)})
	return task, nil
}

func (s *Service) ToggleComplete(ctx context.Context, scope *authorization.Scope, id snowflake.ID) (*domain.Task, error) {
	if err := validScope(scope); err != nil {
		return nil, err
	}

	var task *domain.Task
	err := s.inTenant(ctx, scope.OrgID, func(repo domain.Repository) error {
		current, err := repo.GetForOrg(ctx, scope.OrgID, id)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if err := repo.Update(ctx, current.ID, map[string]any{
			"completed":  gorm.Expr("NOT completed"),
			"updated_at": now,
		}); err != nil {
			return err
		}
		task, err = repo.GetForOrg(ctx, scope.OrgID, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, scope, "task.toggled", task.ID, map[string]any{"completed": task.Completed})
	return task, nil
}

func (s *Service) Update(ctx context.Context, scope *authorization.Scope, req domain.UpdateTaskRequest) (*domain.Task, error) {
	if err := validScope(scope); err != nil {
		return nil, err
	}
	if req.ID == 0 {
		return nil, domain.ErrInvalidTask
	}
	title, err := s.normalizeTitle(req.Title)
	if err != nil {
		return nil, err
	}
	priority, err := domain.ParsePriority(req.Priority)
	if err != nil {
		return nil, err
	}
	dueDate, err := domain.ParseDueDate(req.DueDate)
	if err != nil {
		return nil, err
	}

	var task *domain.Task
	err = s.inTenant(ctx, scope.OrgID, func(repo domain.Repository) error {
		current, err := repo.GetForOrg(ctx, scope.OrgID, req.ID)
		if err != nil {
			return err
		}
		// A blank due date clears the column.
		if err := repo.Update(ctx, current.ID, map[string]any{
			"title":      title,
			"priority":   string(priority),
			"due_date":   dueDate,
			"updated_at": s.clock.Now(),
		}); err != nil {
			return err
		}
		task, err = repo.GetForOrg(ctx, scope.OrgID, req.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, scope, "task.updated", task.ID, nil)
	return task, nil
}

func (s *Service) Delete(ctx context.Context, scope *authorization.Scope, id snowflake.ID) error {
	if err := validScope(scope); err != nil {
		return err
	}
	err := s.inTenant(ctx, scope.OrgID, func(repo domain.Repository) error {
		current, err := repo.GetForOrg(ctx, scope.OrgID, id)
		if err != nil {
			return err
		}
		return repo.Delete(ctx, current.ID)
	})
	if err != nil {
		return err
	}

	s.record(ctx, scope, "task.deleted", id, nil)
	return nil
}

func (s *Service) List(ctx context.Context, orgID snowflake.ID, filter domain.ListFilter) ([]domain.TaskView, error) {
	if orgID == 0 {
		return nil, authorization.ErrNoActiveOrganization
	}
	return s.repo.List(ctx, orgID, filter)
}

func (s *Service) Export(ctx context.Context, scope *authorization.Scope) (io.Reader, error) {
	if err := validScope(scope); err != nil {
		return nil, err
	}
	org, err := s.orgs.GetByID(ctx, scope.OrgID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.repo.List(ctx, scope.OrgID, domain.ListFilter{})
	if err != nil {
		return nil, err
	}

	generatedBy := scope.UserID.String()
	if user, err := s.users.GetUser(ctx, scope.UserID); err == nil {
		generatedBy = user.Name
	}

	report := pdf.TaskReport{
		OrgName:     org.Name,
		GeneratedAt: s.clock.Now(),
		GeneratedBy: generatedBy,
		Rows:        make([]pdf.TaskReportRow, 0, len(tasks)),
	}
	for _, task := range tasks {
		report.Rows = append(report.Rows, pdf.TaskReportRow{
			Title:     task.Title,
			Priority:  string(task.Priority),
			DueDate:   task.DueDate,
			Completed: task.Completed,
			Author:    task.Author.Name,
		})
	}

	out, err := s.pdf.GenerateTaskReport(ctx, report)
	if err != nil {
		s.log.Error("task report generation failed", zap.String("org_id", scope.OrgID.String()), zap.Error(err))
		return nil, err
	}
	s.record(ctx, scope, "task.exported", 0, map[string]any{"count": len(tasks)})
	return out, nil
}

func (s *Service) inTenant(ctx context.Context, orgID snowflake.ID, fn func(repo domain.Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, int64(orgID)); err != nil {
			return err
		}
		return fn(s.repo.WithTx(tx))
	})
}

func (s *Service) normalizeTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" || utf8.RuneCountInString(title) > s.policy.Get().TaskTitleMaxLength {
		return "", domain.ErrInvalidTitle
	}
	return title, nil
}

func validScope(scope *authorization.Scope) error {
	if scope == nil || scope.UserID == 0 {
		return authorization.ErrUnauthenticated
	}
	if scope.OrgID == 0 {
		return authorization.ErrNoActiveOrganization
	}
	return nil
}

func (s *Service) record(ctx context.Context, scope *authorization.Scope, action string, taskID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	orgID := scope.OrgID
	actorID := scope.UserID.String()
	var targetID *string
	if taskID != 0 {
		id := taskID.String()
		targetID = &id
	}
	err := s.auditSvc.AuditLog(ctx, &orgID, string(auditdomain.ActorTypeUser), &actorID, action, "task", targetID, metadata)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("audit "+action+" failed", zap.Error(err))
	}
}
