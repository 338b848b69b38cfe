package scheduler

import (
	"context"

	authdomain "github.com/smallbiznis/taskhub/internal/auth/domain"
	"github.com/smallbiznis/taskhub/internal/outbox"
	"go.uber.org/zap"
)

// Dispatcher delivers a recorded domain event to its consumers.
type Dispatcher interface {
	Dispatch(ctx context.Context, event outbox.DomainEvent) error
}

// LogDispatcher writes relayed events to the structured log.
type LogDispatcher struct {
	log *zap.Logger
}

func NewLogDispatcher(log *zap.Logger) Dispatcher {
	return &LogDispatcher{log: log.Named("outbox.relay")}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, event outbox.DomainEvent) error {
	d.log.Info("domain event",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.EventType),
		zap.String("org_id", event.OrgID.String()),
		zap.ByteString("payload", []byte(event.Payload)),
	)
	return nil
}

// OutboxRelayJob drains unpublished events. An event that fails to dispatch
// stays pending and is retried on the next run.
func (s *Scheduler) OutboxRelayJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)

	events, err := outbox.Pending(ctx, s.db, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	published := make([]string, 0, len(events))
	for _, event := range events {
		if err := s.dispatcher.Dispatch(ctx, event); err != nil {
			run.IncError()
			s.logger(ctx).Warn("outbox dispatch failed",
				zap.String("event_id", event.ID),
				zap.String("event_type", event.EventType),
				zap.Error(err),
			)
			continue
		}
		published = append(published, event.ID)
	}

	if err := outbox.MarkPublished(ctx, s.db, published); err != nil {
		return err
	}
	run.AddProcessed(len(published))
	return nil
}

// SessionSweepJob deletes sessions that expired or were revoked longer ago
// than the retention window.
func (s *Scheduler) SessionSweepJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	cutoff := s.clock.Now().Add(-s.cfg.SessionRetention)

	result := s.db.WithContext(ctx).
		Where("expires_at < ? OR (revoked_at IS NOT NULL AND revoked_at < ?)", cutoff, cutoff).
		Delete(&authdomain.Session{})
	if result.Error != nil {
		return result.Error
	}
	run.AddProcessed(int(result.RowsAffected))
	return nil
}
