package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	membershipdomain "github.com/smallbiznis/taskhub/internal/membership/domain"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusCancelled Status = "cancelled"
)

// Invitation moves from pending to exactly one terminal status.
type Invitation struct {
	ID        snowflake.ID          `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID          `gorm:"not null;index" json:"organization_id"`
	Email     string                `gorm:"type:text;not null;index" json:"email"`
	Role      membershipdomain.Role `gorm:"type:text;not null" json:"role"`
	Status    Status                `gorm:"type:text;not null;index" json:"status"`
	ExpiresAt time.Time             `gorm:"not null" json:"expires_at"`
	InviterID snowflake.ID          `gorm:"column:inviter_id;not null" json:"inviter_id"`
	CreatedAt time.Time             `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time             `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Invitation) TableName() string { return "invitations" }

// Expired evaluates expiry lazily; an invitation is usable strictly before expires_at.
func (i *Invitation) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

func (i *Invitation) Pending() bool {
	return i.Status == StatusPending
}

// InvitationDetails is what the invitee sees on the accept page.
type InvitationDetails struct {
	Invitation       Invitation `json:"invitation"`
	OrganizationName string     `json:"organization_name"`
	OrganizationSlug string     `json:"organization_slug"`
	OrganizationLogo string     `json:"organization_logo"`
	InviterName      string     `json:"inviter_name"`
	InviterEmail     string     `json:"inviter_email"`
}

// Notification is the payload handed to the email provider.
type Notification struct {
	RecipientEmail   string    `json:"recipient_email"`
	OrganizationName string    `json:"organization_name"`
	InviterName      string    `json:"inviter_name"`
	Role             string    `json:"role"`
	InvitationLink   string    `json:"invitation_link"`
	ExpiresAt        time.Time `json:"expires_at"`
}
