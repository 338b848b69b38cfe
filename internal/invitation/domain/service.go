package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/taskhub/internal/auth/domain"
	"github.com/smallbiznis/taskhub/internal/authorization"
)

type Service interface {
	Invite(ctx context.Context, scope *authorization.Scope, req InviteRequest) (*Invitation, error)
	Cancel(ctx context.Context, scope *authorization.Scope, invitationID snowflake.ID) error
	Resend(ctx context.Context, scope *authorization.Scope, invitationID snowflake.ID) error
	ListPending(ctx context.Context, scope *authorization.Scope) ([]Invitation, error)

	GetForInvitee(ctx context.Context, user *authdomain.User, invitationID snowflake.ID) (*InvitationDetails, error)
	// Accept adds the membership and marks the invitation accepted in one
	// transaction. The caller moves the session to the returned org.
	Accept(ctx context.Context, user *authdomain.User, invitationID snowflake.ID) (*Invitation, error)
	Decline(ctx context.Context, user *authdomain.User, invitationID snowflake.ID) error
}

type InviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}
