package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/taskhub/internal/task/domain"
	"github.com/smallbiznis/taskhub/pkg/db/option"
	pkgrepo "github.com/smallbiznis/taskhub/pkg/repository"
	"gorm.io/gorm"
)

var sortableColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"due_date":   true,
	"title":      true,
	"priority":   true,
}

type repo struct {
	db    *gorm.DB
	store pkgrepo.Repository[domain.Task]
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repo{db: db, store: pkgrepo.ProvideStore[domain.Task](db)}
}

func (r *repo) WithTx(tx *gorm.DB) domain.Repository {
	return &repo{db: tx, store: r.store.WithTrx(tx)}
}

func (r *repo) Insert(ctx context.Context, task *domain.Task) error {
	return r.store.Create(ctx, task)
}

func (r *repo) GetForOrg(ctx context.Context, orgID, id snowflake.ID) (*domain.Task, error) {
	task, err := r.store.FindOne(ctx, &domain.Task{ID: id, OrgID: orgID})
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, domain.ErrTaskNotFound
	}
	return task, nil
}

func (r *repo) Update(ctx context.Context, id snowflake.ID, fields map[string]any) error {
	err := r.store.Update(ctx, id.String(), fields)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrTaskNotFound
	}
	return err
}

func (r *repo) Delete(ctx context.Context, id snowflake.ID) error {
	err := r.store.Delete(ctx, id.String())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrTaskNotFound
	}
	return err
}

type taskRow struct {
	ID           snowflake.ID
	Title        string
	Completed    bool
	DueDate      *time.Time
	Priority     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	AuthorID     snowflake.ID
	AuthorName   string
	AuthorEmail  string
	AuthorAvatar *string
}

func (r *repo) List(ctx context.Context, orgID snowflake.ID, filter domain.ListFilter) ([]domain.TaskView, error) {
	opts := []option.QueryOption{}
	if filter.Completed != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "t.completed", Operator: option.EQ, Value: *filter.Completed}))
	}
	if filter.Priority != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "t.priority", Operator: option.EQ, Value: string(filter.Priority)}))
	}
	sort := option.WithQuerySortBy(filter.SortBy, filter.OrderBy, sortableColumns)
	sort.Table = "t"
	opts = append(opts, option.WithSortBy(sort))

	stmt := r.db.WithContext(ctx).
		Table("tasks AS t").
		Select(`t.id, t.title, t.completed, t.due_date, t.priority, t.created_at, t.updated_at,
			u.id AS author_id, u.name AS author_name, u.email AS author_email, u.avatar_url AS author_avatar`).
		Joins("JOIN users u ON u.id = t.user_id").
		Where("t.org_id = ?", orgID)
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}

	var rows []taskRow
	if err := stmt.Scan(&rows).Error; err != nil {
		return nil, err
	}

	views := make([]domain.TaskView, 0, len(rows))
	for _, row := range rows {
		views = append(views, domain.TaskView{
			ID:        row.ID,
			Title:     row.Title,
			Completed: row.Completed,
			DueDate:   row.DueDate,
			Priority:  domain.Priority(row.Priority),
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
			Author: domain.TaskAuthor{
				ID:        row.AuthorID,
				Name:      row.AuthorName,
				Email:     row.AuthorEmail,
				AvatarURL: row.AuthorAvatar,
			},
		})
	}
	return views, nil
}
