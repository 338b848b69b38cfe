package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func ParsePriority(raw string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(raw))) {
	case PriorityLow:
		return PriorityLow, nil
	case PriorityMedium:
		return PriorityMedium, nil
	case PriorityHigh:
		return PriorityHigh, nil
	default:
		return "", ErrInvalidPriority
	}
}

// Task belongs to exactly one organization. UserID is the author.
type Task struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index:idx_tasks_org_created,priority:1" json:"org_id"`
	UserID    snowflake.ID `gorm:"not null;index" json:"user_id"`
	Title     string       `gorm:"type:text;not null" json:"title"`
	Completed bool         `gorm:"not null;default:false" json:"completed"`
	DueDate   *time.Time   `json:"due_date,omitempty"`
	Priority  Priority     `gorm:"type:text;not null" json:"priority"`
	CreatedAt time.Time    `gorm:"not null;index:idx_tasks_org_created,priority:2" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Task) TableName() string { return "tasks" }

// TaskAuthor is the public profile of the user who created a task.
type TaskAuthor struct {
	ID        snowflake.ID `json:"id"`
	Name      string       `json:"name"`
	Email     string       `json:"email"`
	AvatarURL *string      `json:"avatar_url,omitempty"`
}

type TaskView struct {
	ID        snowflake.ID `json:"id"`
	Title     string       `json:"title"`
	Completed bool         `json:"completed"`
	DueDate   *time.Time   `json:"due_date,omitempty"`
	Priority  Priority     `json:"priority"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Author    TaskAuthor   `json:"author"`
}

type ListFilter struct {
	Completed *bool
	Priority  Priority
	SortBy    string
	OrderBy   string
}
