package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, invitation *Invitation) error
	GetByID(ctx context.Context, id snowflake.ID) (*Invitation, error)
	GetForOrg(ctx context.Context, orgID, id snowflake.ID) (*Invitation, error)
	HasLivePending(ctx context.Context, orgID snowflake.ID, email string, now time.Time) (bool, error)
	ListPending(ctx context.Context, orgID snowflake.ID) ([]Invitation, error)
	CountPending(ctx context.Context, now time.Time) (int64, error)
	// Transition moves a pending invitation to status. It returns the number
	// of rows changed; zero means another request got there first.
	Transition(ctx context.Context, id snowflake.ID, status Status, at time.Time) (int64, error)
	Details(ctx context.Context, id snowflake.ID) (*InvitationDetails, error)
}
