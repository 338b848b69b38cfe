package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	IsMember(ctx context.Context, orgID, userID snowflake.ID) (bool, error)
	GetMember(ctx context.Context, orgID, userID snowflake.ID) (*Member, error)
	ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]OrganizationRef, error)
	LatestOrganizationID(ctx context.Context, userID snowflake.ID) (*snowflake.ID, error)
	IsEmailMember(ctx context.Context, orgID snowflake.ID, email string) (bool, error)

	// AddMember inserts a membership using tx when it is non-nil.
	AddMember(ctx context.Context, tx *gorm.DB, orgID, userID snowflake.ID, role Role) (*Member, error)
	ListMembers(ctx context.Context, orgID snowflake.ID) ([]MemberView, error)
	RemoveMember(ctx context.Context, req RemoveMemberRequest) error
}

type RemoveMemberRequest struct {
	OrgID    snowflake.ID
	ActorID  snowflake.ID
	MemberID snowflake.ID
}
