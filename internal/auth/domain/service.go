package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	SetUserActive(ctx context.Context, userID string, active bool) (*User, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, rawToken string) error
	Authenticate(ctx context.Context, rawToken string) (*Session, error)
	ChangePassword(ctx context.Context, userID snowflake.ID, currentPassword, newPassword string) error
	CurrentUser(ctx context.Context, session *Session) (*User, error)
}

// SessionListener is told when a session stops being usable, whether by
// logout, revocation or expiry observed during authentication.
type SessionListener interface {
	SessionEnded(ctx context.Context, sessionID snowflake.ID)
}

type CreateUserRequest struct {
	Email       string
	Password    string
	DisplayName string
	Role        string
}

type LoginRequest struct {
	Email     string
	Password  string
	UserAgent string
	IPAddress string
}

type LoginResult struct {
	Session   *SessionView
	RawToken  string
	ExpiresAt time.Time
	SessionID snowflake.ID
}
