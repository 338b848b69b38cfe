package service

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/taskhub/internal/auth/domain"
	"github.com/smallbiznis/taskhub/internal/authorization"
	"github.com/smallbiznis/taskhub/internal/clock"
	"github.com/smallbiznis/taskhub/internal/config"
	membershipdomain "github.com/smallbiznis/taskhub/internal/membership/domain"
	orgdomain "github.com/smallbiznis/taskhub/internal/organization/domain"
	"github.com/smallbiznis/taskhub/internal/providers/pdf"
	"github.com/smallbiznis/taskhub/internal/task/domain"
	"github.com/smallbiznis/taskhub/internal/task/repository"
	"github.com/smallbiznis/taskhub/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fakeOrgs struct {
	orgdomain.Service
	org *orgdomain.Organization
}

func (f *fakeOrgs) GetByID(ctx context.Context, id snowflake.ID) (*orgdomain.Organization, error) {
	if f.org == nil || f.org.ID != id {
		return nil, orgdomain.ErrOrganizationNotFound
	}
	return f.org, nil
}

type fakeUsers struct {
	conn *gorm.DB
}

func (f *fakeUsers) GetUser(ctx context.Context, id snowflake.ID) (*authdomain.User, error) {
	var user authdomain.User
	if err := f.conn.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, authdomain.ErrUserNotFound
	}
	return &user, nil
}

type capturingPDF struct {
	report pdf.TaskReport
}

func (c *capturingPDF) GenerateTaskReport(ctx context.Context, report pdf.TaskReport) (io.Reader, error) {
	c.report = report
	return bytes.NewReader([]byte("%PDF-1.3")), nil
}

type testEnv struct {
	svc   domain.Service
	conn  *gorm.DB
	clock *clock.FakeClock
	pdf   *capturingPDF
	alice *authdomain.User
	acme  snowflake.ID
	other snowflake.ID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&authdomain.User{}, &domain.Task{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	env := &testEnv{
		conn:  conn,
		clock: clock.NewFakeClock(time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)),
		pdf:   &capturingPDF{},
		acme:  node.Generate(),
		other: node.Generate(),
	}
	env.alice = &authdomain.User{
		ID:         node.Generate(),
		ExternalID: "alice",
		Provider:   authdomain.ProviderLocal,
		Email:      "alice@example.com",
		Name:       "Alice",
		CreatedAt:  env.clock.Now(),
		UpdatedAt:  env.clock.Now(),
	}
	require.NoError(t, conn.Create(env.alice).Error)

	env.svc = NewService(Params{
		DB:     conn,
		Log:    zaptest.NewLogger(t),
		Policy: config.NewStaticPolicyHolder(config.DefaultWorkspacePolicy()),
		Repo:   repository.NewRepository(conn),
		Orgs:   &fakeOrgs{org: &orgdomain.Organization{ID: env.acme, Name: "Acme"}},
		Users:  &fakeUsers{conn: conn},
		PDF:    env.pdf,
		GenID:  node,
		Clock:  env.clock,
	})
	return env
}

func (e *testEnv) scope(orgID snowflake.ID) *authorization.Scope {
	return &authorization.Scope{UserID: e.alice.ID, OrgID: orgID, Role: membershipdomain.RoleMember}
}

func TestCreateValidatesInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Create(ctx, env.scope(env.acme), domain.CreateTaskRequest{Title: "   ", Priority: "low"})
	assert.ErrorIs(t, err, domain.ErrInvalidTitle)

	long := make([]byte, 201)
	for i := range long {
		long[i] = 'a'
	}
	_, err = env.svc.Create(ctx, env.scope(env.acme), domain.CreateTaskRequest{Title: string(long), Priority: "low"})
	assert.ErrorIs(t, err, domain.ErrInvalidTitle)

	_, err = env.svc.Create(ctx, env.scope(env.acme), domain.CreateTaskRequest{Title: "Ship", Priority: "urgent"})
	assert.ErrorIs(t, err, domain.ErrInvalidPriority)

	_, err = env.svc.Create(ctx, env.scope(env.acme), domain.CreateTaskRequest{Title: "Ship", Priority: "high", DueDate: "next week"})
	assert.ErrorIs(t, err, domain.ErrInvalidDueDate)

	_, err = env.svc.Create(ctx, env.scope(0), domain.CreateTaskRequest{Title: "Ship", Priority: "high"})
	assert.ErrorIs(t, err, authorization.ErrNoActiveOrganization)
}

func TestCreateAndList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.Create(ctx, env.scope(env.acme), domain.CreateTaskRequest{Title: "Write docs", Priority: "low"})
	require.NoError(t, err)
	env.clock.Advance(time.Minute)
	second, err := env.svc.Create(ctx, env.scope(env.acme), domain.CreateTaskRequest{Title: "Ship release", Priority: "HIGH", DueDate: "2025-05-10"})
	require.NoError(t, err)
	_, err = env.svc.Create(ctx, env.scope(env.other), domain.CreateTaskRequest{Title: "Elsewhere", Priority: "medium"})
	require.NoError(t, err)

	assert.Equal(t, domain.PriorityHigh, second.Priority)
	require.NotNil(t, second.DueDate)
	assert.Equal(t, 10, second.DueDate.Day())

	tasks, err := env.svc.List(ctx, env.acme, domain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, second.ID, tasks[0].ID)
	assert.Equal(t, first.ID, tasks[1].ID)
	assert.Equal(t, "Alice", tasks[0].Author.Name)
	assert.Equal(t, "alice@example.com", tasks[0].Author.Email)

	high, err := env.svc.List(ctx, env.acme, domain.ListFilter{Priority: domain.PriorityHigh})
	require.NoError(t, err)
	require.Len(t, high, 1)
	assert.Equal(t, second.ID, high[0].ID)

	byTitle, err := env.svc.List(ctx, env.acme, domain.ListFilter{SortBy: "title", OrderBy: "asc"})
	require.NoError(t, err)
	require.Len(t, byTitle, 2)
	assert.Equal(t, "Ship release", byTitle[0].Title)

	unknown, err := env.svc.List(ctx, env.acme, domain.ListFilter{SortBy: "author_email", OrderBy: "asc"})
	require.NoError(t, err)
	require.Len(t, unknown, 2)
	assert.Equal(t, first.ID, unknown[0].ID)
}

func TestToggleComplete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task, err := env.svc.Create(ctx, env.scope(env.acme), domain.CreateTaskRequest{Title: "Review", Priority: "medium"})
	require.NoError(t, err)
	assert.False(t, task.Completed)

	env.clock.Advance(time.Hour)
	toggled, err := env.svc.ToggleComplete(ctx, env.scope(env.acme), task.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Completed)
	assert.True(t, toggled.UpdatedAt.After(task.UpdatedAt))

	again, err := env.svc.ToggleComplete(ctx, env.scope(env.acme), task.ID)
	require.NoError(t, err)
	assert.False(t, again.Completed)

	done := true
	completed, err := env.svc.List(ctx, env.acme, domain.ListFilter{Completed: &done})
	require.NoError(t, err)
	assert.Empty(t, completed)
}

func TestUpdateClearsDueDate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task, err := env.svc.Create(ctx, env.scope(env.acme), domain.CreateTaskRequest{Title: "Plan", Priority: "low", DueDate: "2025-06-01"})
	require.NoError(t, err)
	require.NotNil(t, task.DueDate)

	updated, err := env.svc.Update(ctx, env.scope(env.acme), domain.UpdateTaskRequest{
		ID:       task.ID,
		Title:    "Plan Q3",
		Priority: "high",
	})
	require.NoError(t, err)
	assert.Equal(t, "Plan Q3", updated.Title)
	assert.Equal(t, domain.PriorityHigh, updated.Priority)
	assert.Nil(t, updated.DueDate)
}

func TestMutationsAreScopedToOrganization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task, err := env.svc.Create(ctx, env.scope(env.acme), domain.CreateTaskRequest{Title: "Private", Priority: "low"})
	require.NoError(t, err)

	_, err = env.svc.ToggleComplete(ctx, env.scope(env.other), task.ID)
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)

	_, err = env.svc.Update(ctx, env.scope(env.other), domain.UpdateTaskRequest{ID: task.ID, Title: "Hijack", Priority: "low"})
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)

	assert.ErrorIs(t, env.svc.Delete(ctx, env.scope(env.other), task.ID), domain.ErrTaskNotFound)

	require.NoError(t, env.svc.Delete(ctx, env.scope(env.acme), task.ID))
	assert.ErrorIs(t, env.svc.Delete(ctx, env.scope(env.acme), task.ID), domain.ErrTaskNotFound)
}

func TestExportBuildsReport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Create(ctx, env.scope(env.acme), domain.CreateTaskRequest{Title: "Invoice customers", Priority: "high"})
	require.NoError(t, err)

	out, err := env.svc.Export(ctx, env.scope(env.acme))
	require.NoError(t, err)
	body, err := io.ReadAll(out)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.3", string(body))

	assert.Equal(t, "Acme", env.pdf.report.OrgName)
	assert.Equal(t, "Alice", env.pdf.report.GeneratedBy)
	require.Len(t, env.pdf.report.Rows, 1)
	assert.Equal(t, "Invoice customers", env.pdf.report.Rows[0].Title)
	assert.Equal(t, "Alice", env.pdf.report.Rows[0].Author)
}

func TestParseDueDate(t *testing.T) {
	due, err := domain.ParseDueDate("")
	require.NoError(t, err)
	assert.Nil(t, due)

	due, err = domain.ParseDueDate("2025-07-04T10:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, 8, due.Hour())
}
