// Package domain contains core types for the auth service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// User is a cashier or administrator account.
type User struct {
	ID                  snowflake.ID `gorm:"primaryKey" json:"id"`
	Email               string       `gorm:"type:text;not null;uniqueIndex" json:"email"`
	DisplayName         string       `gorm:"type:text;not null" json:"display_name"`
	PasswordHash        *string      `gorm:"type:text" json:"-"`
	Role                string       `gorm:"type:text;not null" json:"role"`
	Active              bool         `gorm:"not null" json:"active"`
	LastPasswordChanged *time.Time   `gorm:"column:last_password_changed" json:"-"`
	CreatedAt           time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time    `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// Session is a persisted login. Only the sha256 of the token is stored.
// Role is captured at login so a session keeps the role it was issued with.
type Session struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	UserID           snowflake.ID `gorm:"column:user_id;not null;index"`
	Role             string       `gorm:"column:role;type:text;not null"`
	SessionTokenHash string       `gorm:"column:session_token_hash;type:text;not null;uniqueIndex"`
	UserAgent        string       `gorm:"column:user_agent;type:text"`
	IPAddress        string       `gorm:"column:ip_address;type:text"`
	ExpiresAt        time.Time    `gorm:"column:expires_at;not null;index"`
	RevokedAt        *time.Time   `gorm:"column:revoked_at"`
	CreatedAt        time.Time    `gorm:"column:created_at;not null"`
	LastSeenAt       time.Time    `gorm:"column:last_seen_at;not null"`
}

func (Session) TableName() string { return "sessions" }

// Valid reports whether the session is neither revoked nor expired at now.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// SessionView is returned to clients without exposing token values.
type SessionView struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	ExpiresAt   time.Time `json:"expires_at"`
}
