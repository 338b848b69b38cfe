package server

import (
	"crypto/hmac"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/taskhub/internal/audit/domain"
	authdomain "github.com/smallbiznis/taskhub/internal/auth/domain"
	authlocal "github.com/smallbiznis/taskhub/internal/auth/local"
	authoauth "github.com/smallbiznis/taskhub/internal/auth/oauth"
	"github.com/smallbiznis/taskhub/internal/orgcontext"
	"go.uber.org/zap"
)

const (
	oauthStateCookie     = "oauth_state"
	oauthVerifierCookie  = "oauth_code_verifier"
	oauthRedirectCookie  = "oauth_redirect_to"
	oauthStateTTL        = 10 * time.Minute
	oauthErrorRedirectTo = "/sign-in?error=oauth_login"
)

// OAuthLogin starts the provider flow, or completes it when the provider
// redirects back with a code.
func (s *Server) OAuthLogin(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.Param("name")))
	if provider == "" {
		AbortWithError(c, ErrNotFound)
		return
	}

	if strings.TrimSpace(c.Query("error")) != "" {
		s.logOAuthError(c, provider)
		s.clearOAuthCookies(c)
		redirectToOAuthError(c)
		return
	}

	code := strings.TrimSpace(c.Query("code"))
	if code == "" {
		if err := s.startOAuthLogin(c, provider); err != nil {
			s.handleOAuthError(c, provider, err)
		}
		return
	}

	if err := s.handleOAuthCallback(c, provider, code); err != nil {
		s.handleOAuthError(c, provider, err)
	}
}

func (s *Server) startOAuthLogin(c *gin.Context, provider string) error {
	result, err := s.oauthsvc.RedirectURL(c.Request.Context(), provider, authoauth.RedirectRequest{
		RedirectURI: oauthRedirectURI(c, provider),
	})
	if err != nil {
		return err
	}

	s.setOAuthCookie(c, oauthStateCookie, result.State)
	if strings.TrimSpace(result.CodeVerifier) != "" {
		s.setOAuthCookie(c, oauthVerifierCookie, result.CodeVerifier)
	}
	if target := authlocal.SanitizeRedirect(firstNonEmpty(c.Query("redirect_to"), c.Query("redirectTo"))); target != "" {
		s.setOAuthCookie(c, oauthRedirectCookie, target)
	}

	c.Redirect(http.StatusFound, result.URL)
	return nil
}

func (s *Server) handleOAuthCallback(c *gin.Context, provider string, code string) error {
	state := strings.TrimSpace(c.Query("state"))
	storedState, err := c.Cookie(oauthStateCookie)
	if err != nil || storedState == "" || state == "" || !hmac.Equal([]byte(state), []byte(storedState)) {
		s.clearOAuthCookies(c)
		return authoauth.ErrUnauthorized
	}

	verifier, _ := c.Cookie(oauthVerifierCookie)
	redirectTarget, _ := c.Cookie(oauthRedirectCookie)
	s.clearOAuthCookies(c)

	ctx := c.Request.Context()
	result, err := s.oauthsvc.Login(ctx, provider, authoauth.LoginRequest{
		Code:         code,
		RedirectURI:  oauthRedirectURI(c, provider),
		CodeVerifier: verifier,
	})
	if err != nil {
		return err
	}

	user, err := s.authsvc.FindOrCreateExternalUser(ctx, authdomain.ExternalIdentity{
		Provider:      result.ProviderName,
		ExternalID:    result.Identity.ExternalID,
		Email:         result.Identity.Email,
		EmailVerified: result.Identity.EmailVerified,
		Name:          result.Identity.DisplayName,
		AvatarURL:     result.Identity.AvatarURL,
	})
	if err != nil {
		return err
	}

	login, err := s.authsvc.CreateSession(ctx, user, authdomain.SessionMeta{
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		return err
	}
	s.sessions.Set(c, login.RawToken, login.ExpiresAt)
	s.sessions.Refresh(c, login.Session)

	userID := user.ID.String()
	if err := s.auditSvc.AuditLog(ctx, login.Session.ActiveOrgID, string(auditdomain.ActorTypeUser), &userID, "user.login", "user", &userID, map[string]any{
		"provider": result.ProviderName,
	}); err != nil {
		s.log.Warn("failed to record sign-in", zap.String("user_id", userID), zap.Error(err))
	}

	c.Redirect(http.StatusFound, oauthLandingPath(login.Session, redirectTarget))
	return nil
}

func oauthLandingPath(session *authdomain.Session, redirectTarget string) string {
	if session == nil || !session.HasActiveOrganization() {
		// Invitation links must survive onboarding.
		if target := authlocal.SanitizeRedirect(redirectTarget); strings.HasPrefix(target, "/accept-invitation/") {
			return target
		}
		return orgcontext.PathCreateOrganization
	}
	if target := authlocal.SanitizeRedirect(redirectTarget); target != "" {
		return target
	}
	return orgcontext.PathTasks
}

func oauthRedirectURI(c *gin.Context, provider string) string {
	return fmt.Sprintf("%s/login/%s", requestBaseURL(c), url.PathEscape(provider))
}

func requestBaseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := firstHeaderValue(c.GetHeader("X-Forwarded-Proto")); proto != "" {
		scheme = strings.ToLower(proto)
	}
	host := c.Request.Host
	if forwarded := firstHeaderValue(c.GetHeader("X-Forwarded-Host")); forwarded != "" {
		host = forwarded
	}
	return scheme + "://" + host
}

func (s *Server) handleOAuthError(c *gin.Context, provider string, err error) {
	if errors.Is(err, authoauth.ErrProviderNotFound) {
		AbortWithError(c, err)
		return
	}
	s.log.Warn("oauth login failed", zap.String("provider", provider), zap.Error(err))
	redirectToOAuthError(c)
}

func (s *Server) logOAuthError(c *gin.Context, provider string) {
	s.log.Warn("oauth provider returned error",
		zap.String("provider", provider),
		zap.String("error", strings.TrimSpace(c.Query("error"))),
		zap.String("description", strings.TrimSpace(c.Query("error_description"))),
	)
}

func redirectToOAuthError(c *gin.Context) {
	c.Redirect(http.StatusFound, oauthErrorRedirectTo)
}

func firstHeaderValue(value string) string {
	if idx := strings.Index(value, ","); idx >= 0 {
		value = value[:idx]
	}
	return strings.TrimSpace(value)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func (s *Server) setOAuthCookie(c *gin.Context, name string, value string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, int(oauthStateTTL.Seconds()), "/", "", s.cfg.AuthCookieSecure, true)
}

func (s *Server) clearOAuthCookies(c *gin.Context) {
	for _, name := range []string{oauthStateCookie, oauthVerifierCookie, oauthRedirectCookie} {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(name, "", -1, "/", "", s.cfg.AuthCookieSecure, true)
	}
}
