package server

import (
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/taskhub/internal/auth/domain"
	authlocal "github.com/smallbiznis/taskhub/internal/auth/local"
	authoauth "github.com/smallbiznis/taskhub/internal/auth/oauth"
	"github.com/smallbiznis/taskhub/internal/authorization"
	"github.com/smallbiznis/taskhub/internal/orgcontext"
	"go.uber.org/zap"
)

type AuthProviderInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	LoginPath   string `json:"login_path"`
}

func (s *Server) AuthProviders(c *gin.Context) {
	providers := make([]AuthProviderInfo, 0, len(s.providers.Active))
	for _, name := range s.providers.Names() {
		cfg := s.providers.Active[name]
		if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.AuthURL) == "" || strings.TrimSpace(cfg.TokenURL) == "" {
			continue
		}
		display := strings.TrimSpace(cfg.Name)
		if display == "" {
			display = name
		}
		providers = append(providers, AuthProviderInfo{
			Name:        name,
			DisplayName: display,
			LoginPath:   "/login/" + url.PathEscape(name),
		})
	}
	sort.Slice(providers, func(i, j int) bool {
		return strings.ToLower(providers[i].DisplayName) < strings.ToLower(providers[j].DisplayName)
	})

	c.JSON(http.StatusOK, gin.H{
		"success":             true,
		"local_login_enabled": s.cfg.Bootstrap.LocalAuthEnabled,
		"sign_up_enabled":     s.cfg.Bootstrap.AllowSignUp,
		"providers":           providers,
	})
}

type socialSignInRequest struct {
	Provider    string `json:"provider"`
	CallbackURL string `json:"callback_url"`
}

// SignInSocial returns the address that starts the provider flow. The
// browser must follow it so the state cookies land on this origin.
func (s *Server) SignInSocial(c *gin.Context) {
	var req socialSignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		AbortWithError(c, newValidationError("provider", "required", "provider is required"))
		return
	}
	if _, ok := s.providers.Active[provider]; !ok {
		AbortWithError(c, authoauth.ErrProviderNotFound)
		return
	}

	target := "/login/" + url.PathEscape(provider)
	if callback := authlocal.SanitizeRedirect(req.CallbackURL); callback != "" {
		target += "?redirect_to=" + url.QueryEscape(callback)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"url":     target,
	})
}

func (s *Server) SignOut(c *gin.Context) {
	if token, ok := s.sessions.ReadToken(c); ok {
		if err := s.authsvc.Logout(c.Request.Context(), token); err != nil && !errors.Is(err, authdomain.ErrInvalidSession) {
			AbortWithError(c, err)
			return
		}
	}

	s.sessions.Clear(c)
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"redirect": orgcontext.PathSignIn,
	})
}

func (s *Server) GetSession(c *gin.Context) {
	current, user, err := s.currentUser(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"session": authdomain.NewSessionView(current, user),
	})
}

func (s *Server) ListUserOrganizations(c *gin.Context) {
	current := sessionFromContext(c)
	orgs, err := s.membershipSvc.ListOrganizationsByUser(c.Request.Context(), current.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var activeOrgID *string
	if current.HasActiveOrganization() {
		id := current.ActiveOrgID.String()
		activeOrgID = &id
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"organizations": orgs,
		"active_org_id": activeOrgID,
	})
}

// UseOrganization switches the session pointer after checking membership.
func (s *Server) UseOrganization(c *gin.Context) {
	current := sessionFromContext(c)
	orgID, err := parseIDParam(c, "orgId")
	if err != nil {
		AbortWithError(c, authorization.ErrNotAMember)
		return
	}

	ctx := c.Request.Context()
	isMember, err := s.membershipSvc.IsMember(ctx, orgID, current.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !isMember {
		AbortWithError(c, authorization.ErrNotAMember)
		return
	}

	updated, err := s.authsvc.SetActiveOrganization(ctx, current, &orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.sessions.Refresh(c, updated)
	s.log.Info("active organization switched",
		zap.String("user_id", current.UserID.String()),
		zap.String("org_id", orgID.String()),
	)

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"active_org_id": orgID.String(),
		"redirect":      orgcontext.PathTasks,
	})
}
