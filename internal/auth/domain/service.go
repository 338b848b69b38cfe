package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service is the session authority: it issues sessions, resolves them from
// raw tokens and moves the active organization pointer.
type Service interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
	FindOrCreateExternalUser(ctx context.Context, identity ExternalIdentity) (*User, error)
	GetUser(ctx context.Context, id snowflake.ID) (*User, error)
	IssueEmailVerification(ctx context.Context, userID snowflake.ID) (string, error)
	VerifyEmail(ctx context.Context, rawToken string) (*User, error)

	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	CreateSession(ctx context.Context, user *User, meta SessionMeta) (*LoginResult, error)
	Authenticate(ctx context.Context, rawToken string) (*Session, error)
	SetActiveOrganization(ctx context.Context, session *Session, orgID *snowflake.ID) (*Session, error)
	Logout(ctx context.Context, rawToken string) error
}

type CreateUserRequest struct {
	Email    string
	Password string
	Name     string
}

// ExternalIdentity is what a provider asserted. EmailVerified is true only
// when the provider vouched for the address.
type ExternalIdentity struct {
	Provider      string
	ExternalID    string
	Email         string
	EmailVerified bool
	Name          string
	AvatarURL     string
}

type LoginRequest struct {
	Email    string
	Password string
	SessionMeta
}

type SessionMeta struct {
	UserAgent string
	IPAddress string
}

type LoginResult struct {
	User      *User
	Session   *Session
	RawToken  string
	ExpiresAt time.Time
}
