package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/taskhub/internal/audit/domain"
	authdomain "github.com/smallbiznis/taskhub/internal/auth/domain"
	"github.com/smallbiznis/taskhub/internal/clock"
	"github.com/smallbiznis/taskhub/internal/membership/domain"
	"github.com/smallbiznis/taskhub/internal/membership/repository"
	"github.com/smallbiznis/taskhub/internal/migration"
	orgdomain "github.com/smallbiznis/taskhub/internal/organization/domain"
	"github.com/smallbiznis/taskhub/internal/outbox"
	"github.com/smallbiznis/taskhub/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type recordingAudit struct {
	auditdomain.Service
	actions []string
}

func (r *recordingAudit) AuditLog(ctx context.Context, orgID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	r.actions = append(r.actions, action)
	return nil
}

type testEnv struct {
	svc   domain.Service
	conn  *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	audit *recordingAudit
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)

	env := &testEnv{conn: conn, node: node, clock: clk, audit: &recordingAudit{}}
	env.svc = NewService(Params{
		DB:       conn,
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Repo:     repository.NewRepository(conn),
		Outbox:   outbox.NewPublisher(conn, clk, log),
		AuditSvc: env.audit,
	})
	return env
}

func (e *testEnv) user(t *testing.T, email string) snowflake.ID {
	t.Helper()
	user := &authdomain.User{
		ID:         e.node.Generate(),
		ExternalID: email,
		Provider:   authdomain.ProviderLocal,
		Email:      email,
		Name:       email,
		CreatedAt:  e.clock.Now(),
		UpdatedAt:  e.clock.Now(),
	}
	require.NoError(t, e.conn.Create(user).Error)
	return user.ID
}

func (e *testEnv) org(t *testing.T, slug string) snowflake.ID {
	t.Helper()
	org := &orgdomain.Organization{
		ID:        e.node.Generate(),
		Name:      slug,
		Slug:      slug,
		LogoKey:   "blue",
		CreatedAt: e.clock.Now(),
		UpdatedAt: e.clock.Now(),
	}
	require.NoError(t, e.conn.Create(org).Error)
	return org.ID
}

func TestAddMemberRejectsDuplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice@example.com")
	acme := env.org(t, "acme")

	member, err := env.svc.AddMember(ctx, nil, acme, alice, domain.RoleOwner)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOwner, member.Role)

	_, err = env.svc.AddMember(ctx, nil, acme, alice, domain.RoleMember)
	assert.ErrorIs(t, err, domain.ErrAlreadyMember)

	_, err = env.svc.AddMember(ctx, nil, acme, alice, domain.Role("superuser"))
	assert.ErrorIs(t, err, domain.ErrInvalidRole)

	ok, err := env.svc.IsMember(ctx, acme, alice)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.svc.IsMember(ctx, 0, alice)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAddMemberRollsBackWithTransaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice@example.com")
	acme := env.org(t, "acme")

	err := env.conn.Transaction(func(tx *gorm.DB) error {
		if _, err := env.svc.AddMember(ctx, tx, acme, alice, domain.RoleMember); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	ok, err := env.svc.IsMember(ctx, acme, alice)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOrganizationListIsOrderedByJoinTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice@example.com")
	first := env.org(t, "first")
	second := env.org(t, "second")

	_, err := env.svc.AddMember(ctx, nil, first, alice, domain.RoleOwner)
	require.NoError(t, err)
	env.clock.Advance(time.Minute)
	_, err = env.svc.AddMember(ctx, nil, second, alice, domain.RoleMember)
	require.NoError(t, err)

	orgs, err := env.svc.ListOrganizationsByUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	assert.Equal(t, first, orgs[0].ID)
	assert.Equal(t, domain.RoleOwner, orgs[0].Role)
	assert.Equal(t, second, orgs[1].ID)

	latest, err := env.svc.LatestOrganizationID(ctx, alice)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second, *latest)

	nobody := env.user(t, "nobody@example.com")
	latest, err = env.svc.LatestOrganizationID(ctx, nobody)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestIsEmailMember(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice@example.com")
	acme := env.org(t, "acme")
	_, err := env.svc.AddMember(ctx, nil, acme, alice, domain.RoleOwner)
	require.NoError(t, err)

	ok, err := env.svc.IsEmailMember(ctx, acme, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.svc.IsEmailMember(ctx, acme, "bob@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoveMemberKeepsLastOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice@example.com")
	bob := env.user(t, "bob@example.com")
	acme := env.org(t, "acme")

	owner, err := env.svc.AddMember(ctx, nil, acme, alice, domain.RoleOwner)
	require.NoError(t, err)
	member, err := env.svc.AddMember(ctx, nil, acme, bob, domain.RoleMember)
	require.NoError(t, err)

	err = env.svc.RemoveMember(ctx, domain.RemoveMemberRequest{OrgID: acme, ActorID: alice, MemberID: owner.ID})
	assert.ErrorIs(t, err, domain.ErrLastOwner)

	require.NoError(t, env.svc.RemoveMember(ctx, domain.RemoveMemberRequest{OrgID: acme, ActorID: alice, MemberID: member.ID}))
	ok, err := env.svc.IsMember(ctx, acme, bob)
	require.NoError(t, err)
	assert.False(t, ok)

	err = env.svc.RemoveMember(ctx, domain.RemoveMemberRequest{OrgID: acme, ActorID: alice, MemberID: member.ID})
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)

	var events []outbox.DomainEvent
	require.NoError(t, env.conn.Where("event_type = ?", outbox.MembershipRemoved).Find(&events).Error)
	assert.Len(t, events, 1)
	assert.Equal(t, []string{"member.removed"}, env.audit.actions)
}

func TestRemoveMemberIsScopedToOrganization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice@example.com")
	bob := env.user(t, "bob@example.com")
	acme := env.org(t, "acme")
	other := env.org(t, "other")

	member, err := env.svc.AddMember(ctx, nil, acme, bob, domain.RoleMember)
	require.NoError(t, err)

	err = env.svc.RemoveMember(ctx, domain.RemoveMemberRequest{OrgID: other, ActorID: alice, MemberID: member.ID})
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)

	ok, err := env.svc.IsMember(ctx, acme, bob)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSecondOwnerCanLeave(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice@example.com")
	bob := env.user(t, "bob@example.com")
	acme := env.org(t, "acme")

	_, err := env.svc.AddMember(ctx, nil, acme, alice, domain.RoleOwner)
	require.NoError(t, err)
	second, err := env.svc.AddMember(ctx, nil, acme, bob, domain.RoleOwner)
	require.NoError(t, err)

	require.NoError(t, env.svc.RemoveMember(ctx, domain.RemoveMemberRequest{OrgID: acme, ActorID: bob, MemberID: second.ID}))
	members, err := env.svc.ListMembers(ctx, acme)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "alice@example.com", members[0].Email)
}

func TestConcurrentOwnerRemovalsKeepOneOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice@example.com")
	bob := env.user(t, "bob@example.com")
	acme := env.org(t, "acme")

	first, err := env.svc.AddMember(ctx, nil, acme, alice, domain.RoleOwner)
	require.NoError(t, err)
	second, err := env.svc.AddMember(ctx, nil, acme, bob, domain.RoleOwner)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		removed  int
		rejected int
	)
	for _, req := range []domain.RemoveMemberRequest{
		{OrgID: acme, ActorID: alice, MemberID: second.ID},
		{OrgID: acme, ActorID: bob, MemberID: first.ID},
	} {
		wg.Add(1)
		go func(req domain.RemoveMemberRequest) {
			defer wg.Done()
			err := env.svc.RemoveMember(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				removed++
			case errors.Is(err, domain.ErrLastOwner):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(req)
	}
	wg.Wait()

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, rejected)
	members, err := env.svc.ListMembers(ctx, acme)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, domain.RoleOwner, members[0].Role)
}
