// Package domain holds the membership store types. A membership row is the
// only thing that grants a user access to an organization.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleOwner:
		return RoleOwner, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleMember:
		return RoleMember, nil
	default:
		return "", ErrInvalidRole
	}
}

// CanManageMembers reports whether the role may invite and remove members.
func (r Role) CanManageMembers() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Member represents membership of a user in an organization.
type Member struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index;uniqueIndex:ux_org_user,priority:1" json:"org_id"`
	UserID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_org_user,priority:2" json:"user_id"`
	Role      Role         `gorm:"type:text;not null" json:"role"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Member) TableName() string { return "organization_members" }

// OrganizationRef is one entry of a user's organization list.
type OrganizationRef struct {
	ID       snowflake.ID `json:"id"`
	Name     string       `json:"name"`
	Slug     string       `json:"slug"`
	LogoKey  string       `json:"logo_key"`
	Role     Role         `json:"role"`
	JoinedAt time.Time    `json:"joined_at"`
}

// MemberView is a member row joined with its user profile.
type MemberView struct {
	ID        snowflake.ID `json:"id"`
	UserID    snowflake.ID `json:"user_id"`
	Name      string       `json:"name"`
	Email     string       `json:"email"`
	AvatarURL *string      `json:"avatar_url,omitempty"`
	Role      Role         `json:"role"`
	CreatedAt time.Time    `json:"created_at"`
}
