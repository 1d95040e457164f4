package model

import (
	"fmt"
	"time"
)

// User represents a staff account.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Roles.
const (
	RoleAdmin    = "ADMIN"
	RoleEmployee = "EMPLOYEE"
	RoleDoctor   = "DOCTOR"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleEmployee || role == RoleDoctor
}

// RoleAtLeast checks if role meets or exceeds the minimum required role.
func RoleAtLeast(role, minimum string) bool {
	levels := map[string]int{
		RoleAdmin:    3,
		RoleEmployee: 2,
		RoleDoctor:   1,
	}
	return levels[role] > 0 && levels[role] >= levels[minimum] && levels[minimum] > 0
}

// ValidatePassword checks password strength rules.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}
