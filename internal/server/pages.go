package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/taskhub/internal/authorization"
	invitationdomain "github.com/smallbiznis/taskhub/internal/invitation/domain"
	"github.com/smallbiznis/taskhub/internal/orgcontext"
)

// TasksPage returns the data behind the task list. The resolver has already
// reconciled the session's active organization.
func (s *Server) TasksPage(c *gin.Context) {
	result := orgcontext.FromGin(c)
	filter, err := parseTaskFilter(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	tasks, err := s.taskSvc.List(c.Request.Context(), result.Active.ID, filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"organization":  result.Active,
		"organizations": result.Organizations,
		"tasks":         tasks,
	})
}

func (s *Server) MembersPage(c *gin.Context) {
	result := orgcontext.FromGin(c)
	ctx := c.Request.Context()

	members, err := s.membershipSvc.ListMembers(ctx, result.Active.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invitations := []invitationdomain.Invitation{}
	if result.Active.Role.CanManageMembers() {
		invitations, err = s.invitationSvc.ListPending(ctx, &authorization.Scope{
			UserID: result.Session.UserID,
			OrgID:  result.Active.ID,
			Role:   result.Active.Role,
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"organization":  result.Active,
		"organizations": result.Organizations,
		"members":       members,
		"invitations":   invitations,
		"can_manage":    result.Active.Role.CanManageMembers(),
	})
}

// AcceptInvitationPage shows the invitation to its recipient only.
func (s *Server) AcceptInvitationPage(c *gin.Context) {
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

	details, err := s.invitationSvc.GetForInvitee(c.Request.Context(), user, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"invitation": details,
	})
}
