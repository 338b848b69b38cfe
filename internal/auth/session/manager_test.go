package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/taskhub/internal/auth/domain"
	"github.com/smallbiznis/taskhub/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type countingAuth struct {
	authdomain.Service
	calls   int
	session *authdomain.Session
	err     error
}

func (a *countingAuth) Authenticate(ctx context.Context, rawToken string) (*authdomain.Session, error) {
	a.calls++
	return a.session, a.err
}

func newTestContext(cookie string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: cookie})
	}
	c.Request = req
	return c, rec
}

func TestCurrentIsMemoizedPerRequest(t *testing.T) {
	auth := &countingAuth{session: &authdomain.Session{ID: 1, UserID: 2}}
	m := NewManager(config.Config{}, auth, zaptest.NewLogger(t))

	c, _ := newTestContext("token")
	for i := 0; i < 3; i++ {
		session, err := m.Current(c)
		require.NoError(t, err)
		require.NotNil(t, session)
	}
	assert.Equal(t, 1, auth.calls)

	other, _ := newTestContext("token")
	_, err := m.Current(other)
	require.NoError(t, err)
	assert.Equal(t, 2, auth.calls)
}

func TestCurrentTreatsInvalidSessionAsAnonymous(t *testing.T) {
	auth := &countingAuth{err: authdomain.ErrSessionExpired}
	m := NewManager(config.Config{}, auth, zaptest.NewLogger(t))

	c, _ := newTestContext("stale")
	session, err := m.Current(c)
	assert.NoError(t, err)
	assert.Nil(t, session)

	anon, _ := newTestContext("")
	session, err = m.Current(anon)
	assert.NoError(t, err)
	assert.Nil(t, session)
	assert.Equal(t, 1, auth.calls)
}

func TestRefreshReplacesCachedSession(t *testing.T) {
	auth := &countingAuth{session: &authdomain.Session{ID: 1, UserID: 2}}
	m := NewManager(config.Config{}, auth, zaptest.NewLogger(t))

	c, _ := newTestContext("token")
	_, err := m.Current(c)
	require.NoError(t, err)

	orgID := snowflake.ID(9)
	m.Refresh(c, &authdomain.Session{ID: 1, UserID: 2, ActiveOrgID: &orgID})

	session, err := m.Current(c)
	require.NoError(t, err)
	require.True(t, session.HasActiveOrganization())
	assert.Equal(t, snowflake.ID(9), *session.ActiveOrgID)
	assert.Equal(t, 1, auth.calls)
}

func TestClearExpiresCookie(t *testing.T) {
	m := NewManager(config.Config{}, &countingAuth{}, zaptest.NewLogger(t))
	c, rec := newTestContext("token")
	m.Clear(c)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), DefaultCookieName+"=;")
}
