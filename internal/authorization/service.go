package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/taskhub/internal/auth/domain"
	membershipdomain "github.com/smallbiznis/taskhub/internal/membership/domain"
)

// Scope is the identity a mutation runs under. It is derived from the
// session and the membership store, never from request input.
type Scope struct {
	UserID snowflake.ID
	OrgID  snowflake.ID
	Role   membershipdomain.Role
}

type Service interface {
	// Guard re-checks the session's active organization against the
	// membership store. It must run before any side effect.
	Guard(ctx context.Context, session *authdomain.Session) (*Scope, error)
	Authorize(ctx context.Context, scope *Scope, object string, action string) error
}

var (
	ErrUnauthenticated      = errors.New("you must be signed in")
	ErrNoActiveOrganization = errors.New("no organization selected")
	ErrNotAMember           = errors.New("you no longer have access to this organization")
	ErrForbidden            = errors.New("you do not have permission to perform this action")

	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)
