package seed

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/taskhub/internal/auth/domain"
	"github.com/smallbiznis/taskhub/internal/auth/password"
	"github.com/smallbiznis/taskhub/internal/clock"
	"github.com/smallbiznis/taskhub/internal/config"
	membershipdomain "github.com/smallbiznis/taskhub/internal/membership/domain"
	orgdomain "github.com/smallbiznis/taskhub/internal/organization/domain"
	"github.com/smallbiznis/taskhub/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestEnsureAdminIsIdempotent(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&authdomain.User{}, &orgdomain.Organization{}, &membershipdomain.Member{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	params := Params{
		Bootstrap: config.BootstrapConfig{
			LocalAuthEnabled: true,
			AdminEmail:       " Admin@Example.com ",
			AdminPassword:    "bootstrap-secret",
		},
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		Log:   zaptest.NewLogger(t),
	}

	require.NoError(t, EnsureAdmin(context.Background(), conn, params))
	require.NoError(t, EnsureAdmin(context.Background(), conn, params))

	var users []authdomain.User
	require.NoError(t, conn.Find(&users).Error)
	require.Len(t, users, 1)
	assert.Equal(t, "admin@example.com", users[0].Email)
	assert.Equal(t, "Admin", users[0].Name)
	assert.True(t, users[0].EmailVerified)
	require.NotNil(t, users[0].PasswordHash)
	assert.True(t, password.Verify("bootstrap-secret", *users[0].PasswordHash))

	var members []membershipdomain.Member
	require.NoError(t, conn.Find(&members).Error)
	require.Len(t, members, 1)
	assert.Equal(t, membershipdomain.RoleOwner, members[0].Role)
}

func TestEnsureAdminRequiresPassword(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	err = EnsureAdmin(context.Background(), conn, Params{
		Bootstrap: config.BootstrapConfig{AdminEmail: "admin@example.com"},
	})
	assert.Error(t, err)
}
