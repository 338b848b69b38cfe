package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Insert(ctx context.Context, task *Task) error
	// GetForOrg returns ErrTaskNotFound when the task belongs to another organization.
	GetForOrg(ctx context.Context, orgID, id snowflake.ID) (*Task, error)
	Update(ctx context.Context, id snowflake.ID, fields map[string]any) error
	Delete(ctx context.Context, id snowflake.ID) error
	List(ctx context.Context, orgID snowflake.ID, filter ListFilter) ([]TaskView, error)
}
