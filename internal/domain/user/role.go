package user

import (
	"errors"
	"strings"
)

// Role is a user role carried in access tokens.
type Role string

const (
	RoleRider  Role = "RIDER"
	RoleDriver Role = "DRIVER"
	RoleAdmin  Role = "ADMIN"
)

var ErrInvalidRole = errors.New("invalid role")

// ParseRole normalizes (uppercases+trims) and validates a role string.
// PASSENGER is accepted as a legacy spelling of RIDER.
func ParseRole(s string) (Role, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	if norm == "PASSENGER" {
		return RoleRider, nil
	}
	role := Role(norm)
	if role.Valid() {
		return role, nil
	}
	return "", ErrInvalidRole
}

// Valid reports whether role is one of the allowed role constants.
func (role Role) Valid() bool {
	switch role {
	case RoleRider, RoleDriver, RoleAdmin:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Role.
func (role Role) String() string {
	return string(role)
}

func (role Role) IsRider() bool  { return role == RoleRider }
func (role Role) IsDriver() bool { return role == RoleDriver }
func (role Role) IsAdmin() bool  { return role == RoleAdmin }
