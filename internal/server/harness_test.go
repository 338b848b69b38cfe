package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	auditrepository "github.com/smallbiznis/taskhub/internal/audit/repository"
	auditservice "github.com/smallbiznis/taskhub/internal/audit/service"
	authconfig "github.com/smallbiznis/taskhub/internal/auth/config"
	authlocal "github.com/smallbiznis/taskhub/internal/auth/local"
	authoauth "github.com/smallbiznis/taskhub/internal/auth/oauth"
	authrepository "github.com/smallbiznis/taskhub/internal/auth/repository"
	authservice "github.com/smallbiznis/taskhub/internal/auth/service"
	"github.com/smallbiznis/taskhub/internal/auth/session"
	"github.com/smallbiznis/taskhub/internal/authorization"
	"github.com/smallbiznis/taskhub/internal/clock"
	"github.com/smallbiznis/taskhub/internal/config"
	invitationrepository "github.com/smallbiznis/taskhub/internal/invitation/repository"
	invitationservice "github.com/smallbiznis/taskhub/internal/invitation/service"
	membershiprepository "github.com/smallbiznis/taskhub/internal/membership/repository"
	membershipservice "github.com/smallbiznis/taskhub/internal/membership/service"
	"github.com/smallbiznis/taskhub/internal/migration"
	"github.com/smallbiznis/taskhub/internal/observability"
	obsmetrics "github.com/smallbiznis/taskhub/internal/observability/metrics"
	organizationrepository "github.com/smallbiznis/taskhub/internal/organization/repository"
	organizationservice "github.com/smallbiznis/taskhub/internal/organization/service"
	"github.com/smallbiznis/taskhub/internal/orgcontext"
	"github.com/smallbiznis/taskhub/internal/outbox"
	"github.com/smallbiznis/taskhub/internal/providers/email"
	"github.com/smallbiznis/taskhub/internal/providers/pdf"
	taskrepository "github.com/smallbiznis/taskhub/internal/task/repository"
	taskservice "github.com/smallbiznis/taskhub/internal/task/service"
	"github.com/smallbiznis/taskhub/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const testPassword = "correct-horse-battery"

type testApp struct {
	t      *testing.T
	engine *gin.Engine
	db     *gorm.DB
	clock  *clock.FakeClock
	mail   *mailbox
}

var _ email.Provider = (*mailbox)(nil)

// mailbox keeps the last templated message per recipient.
type mailbox struct {
	mu   sync.Mutex
	last map[string]map[string]interface{}
}

func (m *mailbox) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}

func (m *mailbox) SendTemplate(ctx context.Context, to []string, templateName string, data interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fields, _ := data.(map[string]interface{})
	for _, addr := range to {
		m.last[templateName+":"+addr] = fields
	}
	return nil
}

func (m *mailbox) field(templateName, to, key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, _ := m.last[templateName+":"+to][key].(string)
	return value
}

// newTestApp wires the real services over an in-memory database.
func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	log := zaptest.NewLogger(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Now().UTC())
	policy := config.NewStaticPolicyHolder(config.DefaultWorkspacePolicy())
	cfg := config.Config{
		BaseURL:  "http://taskhub.test",
		HTTPAddr: ":0",
		Bootstrap: config.BootstrapConfig{
			LocalAuthEnabled: true,
			AllowSignUp:      true,
		},
	}

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    conn,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  auditrepository.Provide(),
	})
	publisher := outbox.NewPublisher(conn, clk, log)
	mail := &mailbox{last: map[string]map[string]interface{}{}}

	membershipSvc := membershipservice.NewService(membershipservice.Params{
		DB:       conn,
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Repo:     membershiprepository.NewRepository(conn),
		Outbox:   publisher,
		AuditSvc: auditSvc,
	})

	userRepo, sessionRepo := authrepository.New(conn)
	authSvc := authservice.New(authservice.Params{
		Log:         log,
		Repo:        userRepo,
		SessionRepo: sessionRepo,
		Memberships: membershipSvc,
		GenID:       node,
		Clock:       clk,
	})

	orgSvc := organizationservice.NewService(organizationservice.Params{
		DB:          conn,
		Log:         log,
		Repo:        organizationrepository.NewRepository(conn),
		Memberships: membershipSvc,
		Policy:      policy,
		GenID:       node,
		Clock:       clk,
		Outbox:      publisher,
		AuditSvc:    auditSvc,
	})

	enforcer, err := authorization.NewEnforcer(conn)
	require.NoError(t, err)
	authzSvc := authorization.NewService(authorization.Params{
		Log:         log,
		Enforcer:    enforcer,
		Memberships: membershipSvc,
		AuditSvc:    auditSvc,
	})

	invitationSvc := invitationservice.NewService(invitationservice.Params{
		DB:          conn,
		Log:         log,
		Cfg:         cfg,
		Policy:      policy,
		Repo:        invitationrepository.NewRepository(conn),
		Memberships: membershipSvc,
		Orgs:        orgSvc,
		Users:       authSvc,
		Email:       mail,
		GenID:       node,
		Clock:       clk,
		Outbox:      publisher,
		AuditSvc:    auditSvc,
	})

	taskSvc := taskservice.NewService(taskservice.Params{
		DB:       conn,
		Log:      log,
		Policy:   policy,
		Repo:     taskrepository.NewRepository(conn),
		Orgs:     orgSvc,
		Users:    authSvc,
		PDF:      &pdf.NoOpProvider{},
		GenID:    node,
		Clock:    clk,
		AuditSvc: auditSvc,
	})

	sessions := session.NewManager(cfg, authSvc, log)
	resolver := orgcontext.NewResolver(orgcontext.Params{
		Log:         log,
		Sessions:    authSvc,
		Memberships: membershipSvc,
	})

	httpMetrics, err := obsmetrics.NewHTTPMetricsWithRegisterer(prometheus.NewRegistry())
	require.NoError(t, err)
	engine := NewEngine(observability.Config{}, httpMetrics, sessions)
	authlocal.RegisterRoutes(engine, authlocal.NewHandler(authSvc, sessions, mail, log, cfg))

	registry := authconfig.AuthProviderRegistry{
		All:     map[string]authconfig.AuthProviderConfig{},
		Active:  map[string]authconfig.AuthProviderConfig{},
		Ignored: map[string]string{},
	}
	NewServer(ServerParams{
		Gin:             engine,
		Cfg:             cfg,
		Policy:          policy,
		Log:             log,
		Authsvc:         authSvc,
		OAuthsvc:        authoauth.NewService(authoauth.Params{Registry: registry, Log: log}),
		Providers:       registry,
		Sessions:        sessions,
		Resolver:        resolver,
		AuthzSvc:        authzSvc,
		AuditSvc:        auditSvc,
		OrganizationSvc: orgSvc,
		MembershipSvc:   membershipSvc,
		InvitationSvc:   invitationSvc,
		TaskSvc:         taskSvc,
	})

	return &testApp{t: t, engine: engine, db: conn, clock: clk, mail: mail}
}

// do sends a request with the given session cookie. body may be nil.
func (a *testApp) do(method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	a.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)
	return rec
}

// signUp registers a local account, follows the mailed verification link
// and returns the session cookie.
func (a *testApp) signUp(email string) *http.Cookie {
	a.t.Helper()
	cookie := a.signUpUnverified(email)
	a.verifyEmail(email)
	return cookie
}

func (a *testApp) signUpUnverified(email string) *http.Cookie {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/auth/sign-up/email", gin.H{
		"email":    email,
		"password": testPassword,
	}, nil)
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return sessionCookie(a.t, rec)
}

func (a *testApp) verifyEmail(email string) {
	a.t.Helper()
	link := a.mail.field("verify_email", email, "verification_link")
	require.NotEmpty(a.t, link, "no verification mail for %s", email)
	parsed, err := url.Parse(link)
	require.NoError(a.t, err)

	rec := a.do(http.MethodGet, parsed.RequestURI(), nil, nil)
	require.Equal(a.t, http.StatusSeeOther, rec.Code, rec.Body.String())
}

func (a *testApp) signIn(email string) *http.Cookie {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/auth/sign-in/email", gin.H{
		"email":    email,
		"password": testPassword,
	}, nil)
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	return sessionCookie(a.t, rec)
}

func (a *testApp) createOrganization(cookie *http.Cookie, name, slug string) snowflake.ID {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/organizations", gin.H{"name": name, "slug": slug}, cookie)
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Organization struct {
			ID snowflake.ID `json:"id"`
		} `json:"organization"`
	}
	decode(a.t, rec, &resp)
	return resp.Organization.ID
}

func (a *testApp) invite(cookie *http.Cookie, email, role string) snowflake.ID {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/invitations", gin.H{"email": email, "role": role}, cookie)
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Invitation struct {
			ID snowflake.ID `json:"id"`
		} `json:"invitation"`
	}
	decode(a.t, rec, &resp)
	return resp.Invitation.ID
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == session.DefaultCookieName && cookie.Value != "" {
			return &http.Cookie{Name: cookie.Name, Value: cookie.Value}
		}
	}
	t.Fatalf("no session cookie in response: %v", rec.Header())
	return nil
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

type envelope struct {
	Success          bool              `json:"success"`
	Error            string            `json:"error"`
	Redirect         string            `json:"redirect"`
	ValidationErrors []ValidationError `json:"validation_errors"`
}
