package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/martpos/internal/auth/domain"
	"github.com/smallbiznis/martpos/internal/authorization"
	"github.com/smallbiznis/martpos/internal/observability/logger"
	"go.uber.org/zap"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type meResponse struct {
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.authsvc.Login(c.Request.Context(), authdomain.LoginRequest{
		Email:     strings.TrimSpace(req.Email),
		Password:  req.Password,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	csrfToken, err := newCSRFToken()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.sessions.Set(c, result.RawToken, csrfToken, result.ExpiresAt)

	logger.FromContext(c.Request.Context()).Info("user logged in",
		zap.String("user_id", result.Session.UserID),
		zap.String("session_id", result.SessionID.String()),
	)
	respond(c, http.StatusOK, result.Session)
}

// Logout revokes the session; the scanner activation bound to it is
// released through the session listeners.
func (s *Server) Logout(c *gin.Context) {
	raw, ok := s.sessions.ReadToken(c)
	if !ok {
		AbortWithError(c, authorization.ErrUnauthenticated)
		return
	}

	if err := s.authsvc.Logout(c.Request.Context(), raw); err != nil {
		AbortWithError(c, err)
		return
	}

	s.sessions.Clear(c)
	c.Status(http.StatusNoContent)
}

func (s *Server) Me(c *gin.Context) {
	session := sessionFromContext(c)
	user, err := s.authsvc.CurrentUser(c.Request.Context(), session)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, meResponse{
		UserID:      user.ID.String(),
		SessionID:   session.ID.String(),
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        session.Role,
		ExpiresAt:   session.ExpiresAt,
	})
}

func (s *Server) ChangePassword(c *gin.Context) {
	session := sessionFromContext(c)
	if session == nil {
		AbortWithError(c, authorization.ErrUnauthenticated)
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if req.CurrentPassword == "" {
		AbortWithError(c, newValidationError("current_password", "required", "current password is required"))
		return
	}
	if req.NewPassword == "" {
		AbortWithError(c, newValidationError("new_password", "required", "new password is required"))
		return
	}
	if req.CurrentPassword == req.NewPassword {
		AbortWithError(c, newValidationError("new_password", "must_differ", "new password must be different"))
		return
	}

	if err := s.authsvc.ChangePassword(c.Request.Context(), session.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
