// Package outbox records domain events in the domain_events table so they
// can be relayed after the owning transaction commits.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/taskhub/internal/clock"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	OrganizationCreated = "organization.created"
	InvitationCreated   = "invitation.created"
	InvitationAccepted  = "invitation.accepted"
	InvitationDeclined  = "invitation.declined"
	InvitationCancelled = "invitation.cancelled"
	MembershipRemoved   = "membership.removed"
)

var ErrMissingEventType = errors.New("missing event type")

// DomainEvent is one row of the outbox.
type DomainEvent struct {
	ID        string         `gorm:"primaryKey;type:text" json:"id"`
	OrgID     snowflake.ID   `gorm:"not null;index" json:"org_id"`
	EventType string         `gorm:"type:text;not null;index" json:"event_type"`
	Payload   datatypes.JSON `gorm:"not null" json:"payload"`
	Published bool           `gorm:"not null;default:false" json:"published"`
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (DomainEvent) TableName() string { return "domain_events" }

type Publisher interface {
	Publish(ctx context.Context, orgID snowflake.ID, eventType string, payload any) error
	WithTx(tx *gorm.DB) Publisher
}

type publisher struct {
	db    *gorm.DB
	clock clock.Clock
	log   *zap.Logger
}

func NewPublisher(db *gorm.DB, clk clock.Clock, log *zap.Logger) Publisher {
	return &publisher{db: db, clock: clk, log: log.Named("outbox")}
}

func (p *publisher) WithTx(tx *gorm.DB) Publisher {
	return &publisher{db: tx, clock: p.clock, log: p.log}
}

func (p *publisher) Publish(ctx context.Context, orgID snowflake.ID, eventType string, payload any) error {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return ErrMissingEventType
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	now := p.clock.Now()
	event := DomainEvent{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		OrgID:     orgID,
		EventType: eventType,
		Payload:   datatypes.JSON(data),
		CreatedAt: now,
	}
	if err := p.db.WithContext(ctx).Create(&event).Error; err != nil {
		return err
	}
	p.log.Debug("event recorded", zap.String("event_id", event.ID), zap.String("event_type", eventType))
	return nil
}

// Pending returns unpublished events in creation order.
func Pending(ctx context.Context, db *gorm.DB, limit int) ([]DomainEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []DomainEvent
	err := db.WithContext(ctx).
		Where("published = ?", false).
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// MarkPublished flags the given events as relayed.
func MarkPublished(ctx context.Context, db *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Model(&DomainEvent{}).
		Where("id IN ?", ids).
		Update("published", true).Error
}
