package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	organizationdomain "github.com/smallbiznis/taskhub/internal/organization/domain"
	"github.com/smallbiznis/taskhub/internal/orgcontext"
	"go.uber.org/zap"
)

type createOrganizationRequest struct {
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	LogoKey string `json:"logo_key"`
}

// CreateOrganization creates the organization with the caller as owner and
// makes it the session's active organization.
func (s *Server) CreateOrganization(c *gin.Context) {
	current := sessionFromContext(c)

	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	org, err := s.organizationSvc.Create(ctx, current.UserID, organizationdomain.CreateOrganizationRequest{
		Name:    req.Name,
		Slug:    req.Slug,
		LogoKey: req.LogoKey,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	updated, err := s.authsvc.SetActiveOrganization(ctx, current, &org.ID)
	if err != nil {
		// The organization exists; the resolver selects it on the next page load.
		s.log.Warn("failed to activate new organization", zap.String("org_id", org.ID.String()), zap.Error(err))
	} else {
		s.sessions.Refresh(c, updated)
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"organization": org,
		"redirect":     orgcontext.PathTasks,
	})
}

func (s *Server) CheckOrganizationSlug(c *gin.Context) {
	check, err := s.organizationSvc.CheckSlug(c.Request.Context(), c.Query("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"slug":      check.Slug,
		"available": check.Available,
	})
}

// NewOrganizationPage serves the onboarding form data.
func (s *Server) NewOrganizationPage(c *gin.Context) {
	current := sessionFromContext(c)
	orgs, err := s.membershipSvc.ListOrganizationsByUser(c.Request.Context(), current.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"organizations": orgs,
		"logo_keys":     s.policy.Get().LogoKeys,
	})
}
