package domain

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/taskhub/internal/authorization"
)

type CreateTaskRequest struct {
	Title    string `json:"title"`
	DueDate  string `json:"due_date"`
	Priority string `json:"priority"`
}

type UpdateTaskRequest struct {
	ID       snowflake.ID `json:"-"`
	Title    string       `json:"title"`
	DueDate  string       `json:"due_date"`
	Priority string       `json:"priority"`
}

type Service interface {
	Create(ctx context.Context, scope *authorization.Scope, req CreateTaskRequest) (*Task, error)
	ToggleComplete(ctx context.Context, scope *authorization.Scope, id snowflake.ID) (*Task, error)
	Update(ctx context.Context, scope *authorization.Scope, req UpdateTaskRequest) (*Task, error)
	Delete(ctx context.Context, scope *authorization.Scope, id snowflake.ID) error
	List(ctx context.Context, orgID snowflake.ID, filter ListFilter) ([]TaskView, error)
	Export(ctx context.Context, scope *authorization.Scope) (io.Reader, error)
}

var dueDateLayouts = []string{time.RFC3339, "2006-01-02"}

// ParseDueDate accepts an RFC 3339 timestamp or a calendar date. Blank input
// clears the due date.
func ParseDueDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dueDateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			utc := parsed.UTC()
			return &utc, nil
		}
	}
	return nil, ErrInvalidDueDate
}
