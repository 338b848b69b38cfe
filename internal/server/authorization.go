package server

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/taskhub/internal/authorization"
	"github.com/smallbiznis/taskhub/internal/orgcontext"
)

const contextScopeKey = "authz.scope"

// orgAction re-validates the session's organization against the membership
// store and checks the role policy before the handler runs.
func (s *Server) orgAction(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		current, err := s.sessions.Current(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := c.Request.Context()
		scope, err := s.authzSvc.Guard(ctx, current)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if err := s.authzSvc.Authorize(ctx, scope, object, action); err != nil {
			AbortWithError(c, err)
			return
		}

		s.bindSession(c, current)
		ctx = c.Request.Context()
		ctx = orgcontext.WithOrgID(ctx, scope.OrgID)
		c.Request = c.Request.WithContext(ctx)
		c.Set("org_id", scope.OrgID.String())
		c.Set(contextScopeKey, scope)
		c.Next()
	}
}

func scopeFromContext(c *gin.Context) *authorization.Scope {
	value, ok := c.Get(contextScopeKey)
	if !ok {
		return nil
	}
	scope, _ := value.(*authorization.Scope)
	return scope
}
