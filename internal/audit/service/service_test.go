package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/taskhub/internal/audit/domain"
	"github.com/smallbiznis/taskhub/internal/audit/repository"
	"github.com/smallbiznis/taskhub/internal/auditcontext"
	"github.com/smallbiznis/taskhub/internal/clock"
	"github.com/smallbiznis/taskhub/internal/orgcontext"
	"github.com/smallbiznis/taskhub/pkg/db"
	"github.com/smallbiznis/taskhub/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))

	return NewService(Params{
		DB:    conn,
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	}), clk
}

func TestAuditLogResolvesActorAndOrgFromContext(t *testing.T) {
	svc, _ := newTestService(t)
	orgID := snowflake.ID(42)

	ctx := auditcontext.WithActor(context.Background(), "user", "7")
	ctx = auditcontext.WithRequestID(ctx, "req-1")
	ctx = orgcontext.WithOrgID(ctx, orgID)

	target := "99"
	require.NoError(t, svc.AuditLog(ctx, nil, "", nil, "task.created", "task", &target, map[string]any{
		"title": "Ship",
		"email": "bob@example.com",
	}))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{OrgID: orgID})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "user", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "7", *entry.ActorID)
	assert.Equal(t, "Ship", entry.Metadata["title"])
	assert.Equal(t, "b****@example.com", entry.Metadata["email"])
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
}

func TestAuditLogDefaultsToSystemActor(t *testing.T) {
	svc, _ := newTestService(t)
	orgID := snowflake.ID(42)

	require.NoError(t, svc.AuditLog(context.Background(), &orgID, "", nil, "seed.completed", "", nil, nil))
	assert.ErrorIs(t, svc.AuditLog(context.Background(), &orgID, "", nil, " ", "task", nil, nil), auditdomain.ErrInvalidAction)

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{OrgID: orgID})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, string(auditdomain.ActorTypeSystem), resp.AuditLogs[0].ActorType)
	assert.Equal(t, "unknown", resp.AuditLogs[0].TargetType)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()
	orgID := snowflake.ID(42)
	other := snowflake.ID(43)

	for _, action := range []string{"first", "second", "third"} {
		require.NoError(t, svc.AuditLog(ctx, &orgID, "user", nil, action, "task", nil, nil))
		clk.Advance(time.Minute)
	}
	require.NoError(t, svc.AuditLog(ctx, &other, "user", nil, "elsewhere", "task", nil, nil))

	page, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2},
		OrgID:      orgID,
	})
	require.NoError(t, err)
	require.Len(t, page.AuditLogs, 2)
	assert.Equal(t, "third", page.AuditLogs[0].Action)
	assert.Equal(t, "second", page.AuditLogs[1].Action)
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.NextPageToken)

	next, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: page.NextPageToken},
		OrgID:      orgID,
	})
	require.NoError(t, err)
	require.Len(t, next.AuditLogs, 1)
	assert.Equal(t, "first", next.AuditLogs[0].Action)
	assert.False(t, next.HasMore)
}

func TestListValidatesRequest(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.List(ctx, auditdomain.ListAuditLogRequest{})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidOrganization)

	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageToken: "%%%"},
		OrgID:      1,
	})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{OrgID: 1, StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
