package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	authconfig "github.com/smallbiznis/taskhub/internal/auth/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T, srv *httptest.Server) Service {
	t.Helper()
	cfg := authconfig.AuthProviderConfig{
		Name:         "GitHub",
		Type:         "github",
		Enabled:      true,
		ClientID:     "client",
		ClientSecret: "secret",
		AuthURL:      srv.URL + "/authorize",
		TokenURL:     srv.URL + "/token",
		APIURL:       srv.URL + "/user",
		Scopes:       []string{"read:user", "user:email"},
		AllowSignUp:  true,
	}
	return NewService(Params{
		Registry: authconfig.AuthProviderRegistry{
			All:    map[string]authconfig.AuthProviderConfig{"github": cfg},
			Active: map[string]authconfig.AuthProviderConfig{"github": cfg},
		},
		Log:    zaptest.NewLogger(t),
		Client: srv.Client(),
	})
}

func TestRedirectURLIncludesPKCE(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	svc := newTestService(t, srv)

	result, err := svc.RedirectURL(context.Background(), " GitHub ", RedirectRequest{RedirectURI: "http://localhost/login/github"})
	require.NoError(t, err)

	parsed, err := url.Parse(result.URL)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, "client", q.Get("client_id"))
	assert.Equal(t, "read:user user:email", q.Get("scope"))
	assert.Equal(t, result.State, q.Get("state"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, s256(result.CodeVerifier), q.Get("code_challenge"))
	assert.NotEqual(t, result.State, result.CodeVerifier)

	_, err = svc.RedirectURL(context.Background(), "gitlab", RedirectRequest{RedirectURI: "x"})
	assert.ErrorIs(t, err, ErrProviderNotFound)
	_, err = svc.RedirectURL(context.Background(), "github", RedirectRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestLoginFetchesIdentity(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "code-1", r.Form.Get("code"))
		assert.Equal(t, "verifier", r.Form.Get("code_verifier"))
		assert.Equal(t, "secret", r.Form.Get("client_secret"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"bearer"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":12345678,"email":"Bee@Example.com","login":"bee","avatar_url":"https://img/b.png"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	result, err := newTestService(t, srv).Login(context.Background(), "github", LoginRequest{
		Code:         "code-1",
		RedirectURI:  "http://localhost/login/github",
		CodeVerifier: "verifier",
	})
	require.NoError(t, err)
	assert.Equal(t, "github", result.ProviderName)
	assert.True(t, result.AllowSignUp)
	assert.Equal(t, "12345678", result.Identity.ExternalID)
	assert.Equal(t, "bee@example.com", result.Identity.Email)
	assert.Equal(t, "bee", result.Identity.DisplayName)
	assert.Equal(t, "https://img/b.png", result.Identity.AvatarURL)
	assert.False(t, result.Identity.EmailVerified)
}

func TestIdentityEmailVerification(t *testing.T) {
	cases := []struct {
		name     string
		claim    any
		trust    bool
		verified bool
	}{
		{name: "asserted", claim: true, verified: true},
		{name: "asserted as string", claim: "true", verified: true},
		{name: "missing", claim: nil, verified: false},
		{name: "missing on trusted provider", claim: nil, trust: true, verified: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claims := map[string]any{"sub": "1", "email": "x@example.com"}
			if tc.claim != nil {
				claims["email_verified"] = tc.claim
			}
			id, err := identityFromClaims(claims, tc.trust)
			require.NoError(t, err)
			assert.Equal(t, tc.verified, id.EmailVerified)
		})
	}

	_, err := identityFromClaims(map[string]any{"sub": "1", "email": "x@example.com", "email_verified": "false"}, true)
	assert.ErrorIs(t, err, ErrUnverifiedEmail)
}

func TestLoginAcceptsFormEncodedToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("access_token=form-token&token_type=bearer"))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer form-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"sub":"abc","email":"a@example.com"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	result, err := newTestService(t, srv).Login(context.Background(), "github", LoginRequest{Code: "c"})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", result.Identity.DisplayName)
}

func TestLoginRejectsProviderFailures(t *testing.T) {
	cases := []struct {
		name   string
		token  http.HandlerFunc
		user   http.HandlerFunc
		expect error
	}{
		{
			name:   "token endpoint error",
			token:  func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadRequest) },
			expect: ErrUnauthorized,
		},
		{
			name:   "missing email",
			user:   func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"id":1}`)) },
			expect: ErrUnauthorized,
		},
		{
			name: "unverified email",
			user: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"sub":"1","email":"x@example.com","email_verified":false}`))
			},
			expect: ErrUnverifiedEmail,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := http.NewServeMux()
			token := tc.token
			if token == nil {
				token = func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"access_token":"at"}`)) }
			}
			mux.HandleFunc("/token", token)
			if tc.user != nil {
				mux.HandleFunc("/user", tc.user)
			}
			srv := httptest.NewServer(mux)
			defer srv.Close()

			_, err := newTestService(t, srv).Login(context.Background(), "github", LoginRequest{Code: "c"})
			assert.ErrorIs(t, err, tc.expect)
		})
	}
}
