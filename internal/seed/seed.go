package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/martpos/internal/auth/domain"
	"github.com/smallbiznis/martpos/internal/auth/password"
	"gorm.io/gorm"
)

const defaultAdminDisplay = "Store Admin"

var ErrBootstrapPassword = errors.New("bootstrap admin password is too weak")

type AdminParams struct {
	Email    string
	Password string
}

// EnsureAdmin creates the first admin account when the users table is empty.
// It does nothing when no bootstrap email is configured or any user exists.
func EnsureAdmin(ctx context.Context, db *gorm.DB, p AdminParams) (bool, error) {
	if db == nil {
		return false, errors.New("seed database handle is required")
	}
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if email == "" {
		return false, nil
	}
	if !password.Acceptable(p.Password) {
		return false, ErrBootstrapPassword
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return false, err
	}

	created := false
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&authdomain.User{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		hashed, err := password.Hash(p.Password)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		user := authdomain.User{
			ID:                  node.Generate(),
			Email:               email,
			DisplayName:         defaultAdminDisplay,
			PasswordHash:        &hashed,
			Role:                authdomain.RoleAdmin.String(),
			Active:              true,
			LastPasswordChanged: &now,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}
