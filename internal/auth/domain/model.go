// Package domain contains core types for the auth service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	ProviderLocal = "local"
)

// User is created by an authentication provider on first sign-in.
// Email is immutable and is the key invitations are matched against, but
// only once EmailVerified is set.
type User struct {
	ID                    snowflake.ID `gorm:"primaryKey" json:"id"`
	ExternalID            string       `gorm:"column:external_id;type:text;not null;uniqueIndex" json:"-"`
	Provider              string       `gorm:"column:provider;type:text;not null" json:"provider"`
	Email                 string       `gorm:"column:email;type:text;not null;uniqueIndex" json:"email"`
	EmailVerified         bool         `gorm:"column:email_verified;not null;default:false" json:"email_verified"`
	Name                  string       `gorm:"column:name;type:text;not null" json:"name"`
	AvatarURL             *string      `gorm:"column:avatar_url;type:text" json:"avatar_url,omitempty"`
	PasswordHash          *string      `gorm:"column:password_hash;type:text" json:"-"`
	LastPasswordChanged   *time.Time   `gorm:"column:last_password_changed" json:"-"`
	VerificationTokenHash *string      `gorm:"column:verification_token_hash;type:text;uniqueIndex" json:"-"`
	VerificationExpiresAt *time.Time   `gorm:"column:verification_expires_at" json:"-"`
	CreatedAt             time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt             time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// Session represents a persisted login session.
// ActiveOrgID is a pointer only; it is never proof of membership.
type Session struct {
	ID               snowflake.ID  `gorm:"primaryKey"`
	UserID           snowflake.ID  `gorm:"column:user_id;not null;index"`
	SessionTokenHash string        `gorm:"column:session_token_hash;type:text;not null;uniqueIndex"`
	ActiveOrgID      *snowflake.ID `gorm:"column:active_org_id"`
	UserAgent        string        `gorm:"column:user_agent;type:text"`
	IPAddress        string        `gorm:"column:ip_address;type:text"`
	ExpiresAt        time.Time     `gorm:"column:expires_at;not null;index"`
	RevokedAt        *time.Time    `gorm:"column:revoked_at"`
	CreatedAt        time.Time     `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	LastSeenAt       time.Time     `gorm:"column:last_seen_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "sessions" }

// HasActiveOrganization reports whether the session points at an organization.
func (s *Session) HasActiveOrganization() bool {
	return s != nil && s.ActiveOrgID != nil && *s.ActiveOrgID != 0
}

// SessionView is returned to clients without exposing token values.
type SessionView struct {
	UserID        string  `json:"user_id"`
	Email         string  `json:"email"`
	EmailVerified bool    `json:"email_verified"`
	Name          string  `json:"name"`
	AvatarURL     *string `json:"avatar_url,omitempty"`
	ActiveOrgID   *string `json:"active_org_id"`
	ExpiresAt     string  `json:"expires_at"`
}

func NewSessionView(session *Session, user *User) SessionView {
	view := SessionView{}
	if session != nil {
		view.UserID = session.UserID.String()
		view.ExpiresAt = session.ExpiresAt.UTC().Format(time.RFC3339)
		if session.HasActiveOrganization() {
			id := session.ActiveOrgID.String()
			view.ActiveOrgID = &id
		}
	}
	if user != nil {
		view.Email = user.Email
		view.EmailVerified = user.EmailVerified
		view.Name = user.Name
		view.AvatarURL = user.AvatarURL
	}
	return view
}
