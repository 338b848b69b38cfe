package session

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/taskhub/internal/auth/domain"
	"github.com/smallbiznis/taskhub/internal/config"
	"go.uber.org/zap"
)

const DefaultCookieName = "_sid"

const memoKey = "auth.session.memo"

// Manager manages auth session cookies and the per-request session cache.
type Manager struct {
	cookieName string
	secure     bool
	authsvc    authdomain.Service
	log        *zap.Logger
}

func NewManager(cfg config.Config, authsvc authdomain.Service, log *zap.Logger) *Manager {
	return &Manager{
		cookieName: DefaultCookieName,
		secure:     cfg.AuthCookieSecure,
		authsvc:    authsvc,
		log:        log.Named("auth.session"),
	}
}

func (m *Manager) CookieName() string {
	return m.cookieName
}

func (m *Manager) ReadToken(c *gin.Context) (string, bool) {
	token, err := c.Cookie(m.cookieName)
	if err != nil {
		return "", false
	}
	if strings.TrimSpace(token) == "" {
		return "", false
	}
	return token, true
}

func (m *Manager) Set(c *gin.Context, value string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, value, maxAge, "/", "", m.secure, true)
}

func (m *Manager) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, "", -1, "/", "", m.secure, true)
	if memo := m.memo(c); memo != nil {
		memo.store(nil, nil)
	}
}

// requestMemo caches the session lookup for the lifetime of one request.
type requestMemo struct {
	once    sync.Once
	mu      sync.Mutex
	session *authdomain.Session
	err     error
}

func (r *requestMemo) store(session *authdomain.Session, err error) {
	r.once.Do(func() {})
	r.mu.Lock()
	r.session = session
	r.err = err
	r.mu.Unlock()
}

func (r *requestMemo) load() (*authdomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session, r.err
}

// Memoize installs an empty per-request session cache.
func (m *Manager) Memoize() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(memoKey, &requestMemo{})
		c.Next()
	}
}

func (m *Manager) memo(c *gin.Context) *requestMemo {
	if value, ok := c.Get(memoKey); ok {
		if memo, ok := value.(*requestMemo); ok {
			return memo
		}
	}
	return nil
}

// Current resolves the request's session at most once per request.
// A missing, expired or revoked session yields (nil, nil).
func (m *Manager) Current(c *gin.Context) (*authdomain.Session, error) {
	memo := m.memo(c)
	if memo == nil {
		memo = &requestMemo{}
		c.Set(memoKey, memo)
	}
	memo.once.Do(func() {
		session, err := m.lookup(c)
		memo.mu.Lock()
		memo.session, memo.err = session, err
		memo.mu.Unlock()
	})
	return memo.load()
}

// Refresh replaces the cached session after the active organization changed.
func (m *Manager) Refresh(c *gin.Context, session *authdomain.Session) {
	memo := m.memo(c)
	if memo == nil {
		memo = &requestMemo{}
		c.Set(memoKey, memo)
	}
	memo.store(session, nil)
}

func (m *Manager) lookup(c *gin.Context) (*authdomain.Session, error) {
	token, ok := m.ReadToken(c)
	if !ok {
		return nil, nil
	}
	session, err := m.authsvc.Authenticate(c.Request.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, authdomain.ErrInvalidSession),
			errors.Is(err, authdomain.ErrSessionExpired),
			errors.Is(err, authdomain.ErrSessionRevoked):
			return nil, nil
		default:
			m.log.Error("session lookup failed", zap.Error(err))
			return nil, err
		}
	}
	return session, nil
}
