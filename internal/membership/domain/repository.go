package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	IsMember(ctx context.Context, orgID, userID snowflake.ID) (bool, error)
	Get(ctx context.Context, orgID, userID snowflake.ID) (*Member, error)
	GetByID(ctx context.Context, orgID, memberID snowflake.ID) (*Member, error)
	Insert(ctx context.Context, member *Member) error
	Delete(ctx context.Context, orgID, memberID snowflake.ID) (int64, error)
	LockByRole(ctx context.Context, orgID snowflake.ID, role Role) ([]snowflake.ID, error)
	ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]OrganizationRef, error)
	LatestOrganizationID(ctx context.Context, userID snowflake.ID) (*snowflake.ID, error)
	ListMembers(ctx context.Context, orgID snowflake.ID) ([]MemberView, error)
	IsEmailMember(ctx context.Context, orgID snowflake.ID, email string) (bool, error)
}
