package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/taskhub/internal/audit/domain"
	"github.com/smallbiznis/taskhub/internal/auditcontext"
	authdomain "github.com/smallbiznis/taskhub/internal/auth/domain"
	"github.com/smallbiznis/taskhub/internal/authorization"
	"github.com/smallbiznis/taskhub/internal/orgcontext"
)

const contextSessionKey = "session"

// requireSession rejects API requests without a live session.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		current, err := s.sessions.Current(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if current == nil {
			AbortWithError(c, authorization.ErrUnauthenticated)
			return
		}
		s.bindSession(c, current)
		c.Next()
	}
}

// requirePageSession sends unauthenticated page requests to sign-in.
func (s *Server) requirePageSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		current, err := s.sessions.Current(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if current == nil {
			redirectTo := orgcontext.SignInPath(strings.TrimPrefix(c.Request.URL.Path, "/app"))
			c.Header("Location", redirectTo)
			c.AbortWithStatusJSON(http.StatusSeeOther, gin.H{"redirect": redirectTo})
			return
		}
		s.bindSession(c, current)
		c.Next()
	}
}

func (s *Server) bindSession(c *gin.Context, current *authdomain.Session) {
	c.Set(contextSessionKey, current)
	ctx := auditcontext.WithActor(c.Request.Context(), string(auditdomain.ActorTypeUser), current.UserID.String())
	c.Request = c.Request.WithContext(ctx)
}

func sessionFromContext(c *gin.Context) *authdomain.Session {
	value, ok := c.Get(contextSessionKey)
	if !ok {
		return nil
	}
	current, _ := value.(*authdomain.Session)
	return current
}

// currentUser loads the user behind the bound session.
func (s *Server) currentUser(c *gin.Context) (*authdomain.Session, *authdomain.User, error) {
	current := sessionFromContext(c)
	if current == nil {
		return nil, nil, authorization.ErrUnauthenticated
	}
	user, err := s.authsvc.GetUser(c.Request.Context(), current.UserID)
	if err != nil {
		return nil, nil, err
	}
	return current, user, nil
}

func parseIDParam(c *gin.Context, name string) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.Param(name))
	if raw == "" {
		return 0, ErrNotFound
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, ErrNotFound
	}
	return id, nil
}
