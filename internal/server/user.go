package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/martpos/internal/auth/domain"
	"github.com/smallbiznis/martpos/internal/observability/logger"
	"go.uber.org/zap"
)

type createUserRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Server) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.authsvc.CreateUser(c.Request.Context(), authdomain.CreateUserRequest{
		Email:       strings.TrimSpace(req.Email),
		Password:    req.Password,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Role:        strings.TrimSpace(req.Role),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, toUserResponse(user))
}

func (s *Server) ListUsers(c *gin.Context) {
	users, err := s.authsvc.ListUsers(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]userResponse, 0, len(users))
	for i := range users {
		out = append(out, toUserResponse(&users[i]))
	}
	respond(c, http.StatusOK, out)
}

func (s *Server) DisableUser(c *gin.Context) {
	s.setUserActive(c, false)
}

func (s *Server) EnableUser(c *gin.Context) {
	s.setUserActive(c, true)
}

func (s *Server) setUserActive(c *gin.Context, active bool) {
	userID := strings.TrimSpace(c.Param("id"))
	if identity, ok := identityFromContext(c); ok && !active && identity.UserID.String() == userID {
		AbortWithError(c, newValidationError("id", "self_disable", "cannot disable your own account"))
		return
	}

	user, err := s.authsvc.SetUserActive(c.Request.Context(), userID, active)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	logger.FromContext(c.Request.Context()).Info("user active flag changed",
		zap.String("user_id", user.ID.String()),
		zap.Bool("active", active),
	)
	respond(c, http.StatusOK, toUserResponse(user))
}

func toUserResponse(user *authdomain.User) userResponse {
	return userResponse{
		ID:          user.ID.String(),
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		Active:      user.Active,
		CreatedAt:   user.CreatedAt,
	}
}
