package local

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/taskhub/internal/auth/domain"
	"github.com/smallbiznis/taskhub/internal/auth/session"
	"github.com/smallbiznis/taskhub/internal/authorization"
	"github.com/smallbiznis/taskhub/internal/config"
	"github.com/smallbiznis/taskhub/internal/providers/email"
	"go.uber.org/zap"
)

const (
	verifyEmailTemplate = "verify_email"
	verifyEmailPath     = "/auth/verify-email"
)

// Handler serves the email/password provider used by self-hosted installs.
// Accounts created here start unverified; the address is confirmed through
// a link mailed on sign-up.
type Handler struct {
	authsvc  authdomain.Service
	sessions *session.Manager
	mail     email.Provider
	log      *zap.Logger
	cfg      config.Config
}

func NewHandler(authsvc authdomain.Service, sessions *session.Manager, mail email.Provider, log *zap.Logger, cfg config.Config) *Handler {
	return &Handler{
		authsvc:  authsvc,
		sessions: sessions,
		mail:     mail,
		log:      log.Named("auth.local.handler"),
		cfg:      cfg,
	}
}

func RegisterRoutes(r *gin.Engine, h *Handler) {
	if !h.cfg.Bootstrap.LocalAuthEnabled {
		return
	}
	group := r.Group("/auth")
	group.POST("/sign-in/email", h.SignIn)
	group.POST("/sign-up/email", h.SignUp)
	group.GET("/verify-email", h.VerifyEmail)
	group.POST("/verify-email/resend", h.ResendVerification)
}

type signInRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RedirectTo string `json:"redirect_to"`
}

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *Handler) SignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, authdomain.ErrInvalidCredentials)
		return
	}

	result, err := h.authsvc.Login(c.Request.Context(), authdomain.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
		SessionMeta: authdomain.SessionMeta{
			UserAgent: c.Request.UserAgent(),
			IPAddress: c.ClientIP(),
		},
	})
	if err != nil {
		abort(c, err)
		return
	}

	h.sessions.Set(c, result.RawToken, result.ExpiresAt)
	h.sessions.Refresh(c, result.Session)
	h.log.Info("local sign-in", zap.String("user_id", result.User.ID.String()))

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"session":  authdomain.NewSessionView(result.Session, result.User),
		"redirect": landingPath(result.Session, req.RedirectTo),
	})
}

func (h *Handler) SignUp(c *gin.Context) {
	if !h.cfg.Bootstrap.AllowSignUp {
		abort(c, authdomain.ErrSignUpDisabled)
		return
	}

	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, authdomain.ErrInvalidEmail)
		return
	}

	user, err := h.authsvc.CreateUser(c.Request.Context(), authdomain.CreateUserRequest{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		abort(c, err)
		return
	}

	result, err := h.authsvc.CreateSession(c.Request.Context(), user, authdomain.SessionMeta{
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		abort(c, err)
		return
	}

	h.sendVerification(c.Request.Context(), user)

	h.sessions.Set(c, result.RawToken, result.ExpiresAt)
	h.sessions.Refresh(c, result.Session)

	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"session":  authdomain.NewSessionView(result.Session, user),
		"redirect": landingPath(result.Session, ""),
	})
}

// VerifyEmail is the target of the mailed link.
func (h *Handler) VerifyEmail(c *gin.Context) {
	user, err := h.authsvc.VerifyEmail(c.Request.Context(), c.Query("token"))
	if err != nil {
		abort(c, err)
		return
	}
	h.log.Info("local email verified", zap.String("user_id", user.ID.String()))
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *Handler) ResendVerification(c *gin.Context) {
	current, err := h.sessions.Current(c)
	if err != nil {
		abort(c, err)
		return
	}
	if current == nil {
		abort(c, authorization.ErrUnauthenticated)
		return
	}
	user, err := h.authsvc.GetUser(c.Request.Context(), current.UserID)
	if err != nil {
		abort(c, err)
		return
	}
	if !user.EmailVerified {
		h.sendVerification(c.Request.Context(), user)
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// sendVerification mails a fresh link. Failures are logged only; the user
// can ask for another one.
func (h *Handler) sendVerification(ctx context.Context, user *authdomain.User) {
	token, err := h.authsvc.IssueEmailVerification(ctx, user.ID)
	if err != nil {
		h.log.Warn("failed to issue email verification", zap.String("user_id", user.ID.String()), zap.Error(err))
		return
	}
	if token == "" {
		return
	}
	data := map[string]interface{}{
		"name":              user.Name,
		"verification_link": h.verificationLink(token),
	}
	if err := h.mail.SendTemplate(ctx, []string{user.Email}, verifyEmailTemplate, data); err != nil {
		h.log.Warn("failed to deliver email verification", zap.String("user_id", user.ID.String()), zap.Error(err))
	}
}

func (h *Handler) verificationLink(token string) string {
	return strings.TrimRight(h.cfg.BaseURL, "/") + verifyEmailPath + "?token=" + url.QueryEscape(token)
}

// landingPath sends users without an organization to onboarding.
func landingPath(s *authdomain.Session, redirectTo string) string {
	if s == nil || !s.HasActiveOrganization() {
		return "/organizations/new"
	}
	if path := SanitizeRedirect(redirectTo); path != "" {
		return path
	}
	return "/tasks"
}

// SanitizeRedirect keeps only same-site absolute paths.
func SanitizeRedirect(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return ""
	}
	if strings.ContainsAny(raw, "\r\n") {
		return ""
	}
	return raw
}

func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
