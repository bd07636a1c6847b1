package domain

import "strings"

// Role is the coarse permission level attached to a user and copied onto
// each of their sessions.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleStaff:
		return RoleStaff, nil
	default:
		return "", ErrInvalidRole
	}
}

func (r Role) String() string { return string(r) }
