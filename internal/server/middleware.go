package server

import (
	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/martpos/internal/auth/domain"
	"github.com/smallbiznis/martpos/internal/authorization"
	"github.com/smallbiznis/martpos/internal/observability/obscontext"
)

const (
	contextSessionKey  = "auth_session"
	contextIdentityKey = "auth_identity"
)

// SessionRequired resolves the session cookie. It only proves who the caller
// is; role checks happen in RequireRole or in the service.
func (s *Server) SessionRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := s.sessions.ReadToken(c)
		if !ok {
			AbortWithError(c, authorization.ErrUnauthenticated)
			return
		}

		session, err := s.authsvc.Authenticate(c.Request.Context(), raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextSessionKey, session)
		c.Request = c.Request.WithContext(obscontext.WithActor(c.Request.Context(), obscontext.ActorUser, session.UserID.String()))
		c.Next()
	}
}

func (s *Server) RequireRole(roles ...authdomain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := s.authzSvc.Authorize(c.Request.Context(), sessionFromContext(c), roles...)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Set(contextIdentityKey, identity)
		c.Next()
	}
}

func (s *Server) authorizeAction(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := identityFromContext(c)
		if !ok {
			AbortWithError(c, authorization.ErrUnauthenticated)
			return
		}
		if err := s.authzSvc.AuthorizeAction(c.Request.Context(), identity, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func sessionFromContext(c *gin.Context) *authdomain.Session {
	v, ok := c.Get(contextSessionKey)
	if !ok {
		return nil
	}
	session, _ := v.(*authdomain.Session)
	return session
}

func identityFromContext(c *gin.Context) (authorization.Identity, bool) {
	v, ok := c.Get(contextIdentityKey)
	if !ok {
		return authorization.Identity{}, false
	}
	identity, ok := v.(authorization.Identity)
	return identity, ok
}
