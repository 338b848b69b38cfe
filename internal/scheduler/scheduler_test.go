package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/taskhub/internal/auth/domain"
	"github.com/smallbiznis/taskhub/internal/clock"
	"github.com/smallbiznis/taskhub/internal/outbox"
	"github.com/smallbiznis/taskhub/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type recordingDispatcher struct {
	seen []string
	fail map[string]bool
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, event outbox.DomainEvent) error {
	if d.fail[event.EventType] {
		return errors.New("broker unavailable")
	}
	d.seen = append(d.seen, event.EventType)
	return nil
}

type testEnv struct {
	sched      *Scheduler
	conn       *gorm.DB
	clock      *clock.FakeClock
	node       *snowflake.Node
	dispatcher *recordingDispatcher
	publisher  outbox.Publisher
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&outbox.DomainEvent{}, &authdomain.Session{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)
	dispatcher := &recordingDispatcher{fail: map[string]bool{}}

	sched, err := New(Params{
		DB:         conn,
		Log:        log,
		GenID:      node,
		Clock:      clk,
		Dispatcher: dispatcher,
		Config:     cfg,
	})
	require.NoError(t, err)

	return &testEnv{
		sched:      sched,
		conn:       conn,
		clock:      clk,
		node:       node,
		dispatcher: dispatcher,
		publisher:  outbox.NewPublisher(conn, clk, log),
	}
}

func (e *testEnv) pendingCount(t *testing.T) int {
	t.Helper()
	pending, err := outbox.Pending(context.Background(), e.conn, 100)
	require.NoError(t, err)
	return len(pending)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOutboxRelayPublishesInOrder(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	require.NoError(t, env.publisher.Publish(ctx, 1, outbox.OrganizationCreated, map[string]string{"slug": "acme"}))
	require.NoError(t, env.publisher.Publish(ctx, 1, outbox.InvitationCreated, map[string]string{"email": "bob@example.com"}))

	require.NoError(t, env.sched.RunOnce(ctx))
	assert.Equal(t, []string{outbox.OrganizationCreated, outbox.InvitationCreated}, env.dispatcher.seen)
	assert.Zero(t, env.pendingCount(t))

	require.NoError(t, env.sched.RunOnce(ctx))
	assert.Len(t, env.dispatcher.seen, 2)
}

func TestOutboxRelayRetriesFailedEvents(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()

	require.NoError(t, env.publisher.Publish(ctx, 1, outbox.OrganizationCreated, map[string]string{}))
	require.NoError(t, env.publisher.Publish(ctx, 1, outbox.MembershipRemoved, map[string]string{}))
	env.dispatcher.fail[outbox.MembershipRemoved] = true

	require.NoError(t, env.sched.RunOnce(ctx))
	assert.Equal(t, 1, env.pendingCount(t))

	env.dispatcher.fail[outbox.MembershipRemoved] = false
	require.NoError(t, env.sched.RunOnce(ctx))
	assert.Zero(t, env.pendingCount(t))
	assert.Equal(t, []string{outbox.OrganizationCreated, outbox.MembershipRemoved}, env.dispatcher.seen)
}

func TestSessionSweepKeepsRecentSessions(t *testing.T) {
	env := newTestEnv(t, Config{SessionRetention: 24 * time.Hour, EnabledJobs: []string{JobSessionSweep}})
	ctx := context.Background()
	now := env.clock.Now()
	revokedLongAgo := now.Add(-48 * time.Hour)
	revokedRecently := now.Add(-time.Hour)

	sessions := []authdomain.Session{
		{ExpiresAt: now.Add(time.Hour)},
		{ExpiresAt: now.Add(-2 * time.Hour)},
		{ExpiresAt: now.Add(-72 * time.Hour)},
		{ExpiresAt: now.Add(time.Hour), RevokedAt: &revokedLongAgo},
		{ExpiresAt: now.Add(time.Hour), RevokedAt: &revokedRecently},
	}
	for i := range sessions {
		sessions[i].ID = env.node.Generate()
		sessions[i].UserID = 1
		sessions[i].SessionTokenHash = sessions[i].ID.String()
		sessions[i].CreatedAt = now
		sessions[i].LastSeenAt = now
		require.NoError(t, env.conn.Create(&sessions[i]).Error)
	}

	require.NoError(t, env.sched.RunOnce(ctx))

	var remaining int64
	require.NoError(t, env.conn.Model(&authdomain.Session{}).Count(&remaining).Error)
	assert.Equal(t, int64(3), remaining)
}

func TestEnabledJobsFilter(t *testing.T) {
	env := newTestEnv(t, Config{EnabledJobs: []string{JobSessionSweep}})
	ctx := context.Background()

	require.NoError(t, env.publisher.Publish(ctx, 1, outbox.OrganizationCreated, map[string]string{}))
	require.NoError(t, env.sched.RunOnce(ctx))

	assert.Empty(t, env.dispatcher.seen)
	assert.Equal(t, 1, env.pendingCount(t))
}
