package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	invitationdomain "github.com/smallbiznis/taskhub/internal/invitation/domain"
	"github.com/smallbiznis/taskhub/internal/orgcontext"
	"go.uber.org/zap"
)

type createInvitationRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (s *Server) ListInvitations(c *gin.Context) {
	invitations, err := s.invitationSvc.ListPending(c.Request.Context(), scopeFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"invitations": invitations,
	})
}

func (s *Server) CreateInvitation(c *gin.Context) {
	var req createInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invitation, err := s.invitationSvc.Invite(c.Request.Context(), scopeFromContext(c), invitationdomain.InviteRequest{
		Email: req.Email,
		Role:  req.Role,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"invitation": invitation,
	})
}

func (s *Server) CancelInvitation(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, invitationdomain.ErrInvitationNotFound)
		return
	}

	if err := s.invitationSvc.Cancel(c.Request.Context(), scopeFromContext(c), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) ResendInvitation(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, invitationdomain.ErrInvitationNotFound)
		return
	}

	if err := s.invitationSvc.Resend(c.Request.Context(), scopeFromContext(c), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// AcceptInvitation joins the organization and moves the session to it.
func (s *Server) AcceptInvitation(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, invitationdomain.ErrInvitationNotFound)
		return
	}

	current, user, err := s.currentUser(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	invitation, err := s.invitationSvc.Accept(ctx, user, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	orgID := invitation.OrgID
	updated, err := s.authsvc.SetActiveOrganization(ctx, current, &orgID)
	if err != nil {
		// Membership is committed; the resolver will pick an organization later.
		s.log.Warn("failed to activate joined organization",
			zap.String("user_id", user.ID.String()),
			zap.String("org_id", orgID.String()),
			zap.Error(err),
		)
	} else {
		s.sessions.Refresh(c, updated)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"active_org_id": orgID.String(),
		"redirect":      orgcontext.PathTasks,
	})
}

func (s *Server) DeclineInvitation(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, invitationdomain.ErrInvitationNotFound)
		return
	}

	_, user, err := s.currentUser(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.invitationSvc.Decline(c.Request.Context(), user, id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"redirect": orgcontext.PathTasks,
	})
}
