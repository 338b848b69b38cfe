package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrganization(ctx context.Context, org Organization) error
	GetByID(ctx context.Context, id snowflake.ID) (*Organization, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	Count(ctx context.Context) (int64, error)
}
