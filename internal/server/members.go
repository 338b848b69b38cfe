package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	membershipdomain "github.com/smallbiznis/taskhub/internal/membership/domain"
)

func (s *Server) ListMembers(c *gin.Context) {
	scope := scopeFromContext(c)
	members, err := s.membershipSvc.ListMembers(c.Request.Context(), scope.OrgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"members": members,
	})
}

// RemoveMember deletes a membership row. The removed user's session pointer
// is left alone; the resolver repairs it on their next page load.
func (s *Server) RemoveMember(c *gin.Context) {
	memberID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, membershipdomain.ErrMemberNotFound)
		return
	}

	scope := scopeFromContext(c)
	if err := s.membershipSvc.RemoveMember(c.Request.Context(), membershipdomain.RemoveMemberRequest{
		OrgID:    scope.OrgID,
		ActorID:  scope.UserID,
		MemberID: memberID,
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
