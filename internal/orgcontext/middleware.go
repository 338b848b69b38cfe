package orgcontext

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/taskhub/internal/auth/session"
)

const resultKey = "orgcontext.result"

// Middleware runs the resolver in front of an organization-scoped page.
// pagePath is the user-facing path used for the sign-in return address.
func (r *Resolver) Middleware(sessions *session.Manager, pagePath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		current, err := sessions.Current(c)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		result, err := r.Resolve(c.Request.Context(), current, pagePath)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		if result.Mutated() {
			sessions.Refresh(c, result.Session)
		}
		if !result.Proceed() {
			c.Header("Location", result.Redirect)
			c.AbortWithStatusJSON(http.StatusSeeOther, gin.H{"redirect": result.Redirect})
			return
		}

		orgID := result.Active.ID
		c.Set(resultKey, result)
		c.Set("org_id", orgID.String())
		c.Request = c.Request.WithContext(WithOrgID(c.Request.Context(), orgID))
		c.Next()
	}
}

// FromGin returns the resolver result stored by Middleware.
func FromGin(c *gin.Context) *Result {
	value, ok := c.Get(resultKey)
	if !ok {
		return nil
	}
	result, _ := value.(*Result)
	return result
}
