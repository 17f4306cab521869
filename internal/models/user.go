package models

import (
	"strings"
	"time"
)

// UserRole represents the roles known to the clinic.
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleStaff   UserRole = "staff"
	RoleDoctor  UserRole = "doctor"
	RolePatient UserRole = "patient"
)

// ParseRole normalises a role name; ok is false for unknown roles.
func ParseRole(raw string) (UserRole, bool) {
	role := UserRole(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case RoleAdmin, RoleStaff, RoleDoctor, RolePatient:
		return role, true
	default:
		return "", false
	}
}

// User represents an application user stored in the users table.
type User struct {
	ID           int64      `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// Actor identifies who performs a mutating operation.
type Actor struct {
	ID   int64
	Role UserRole
}

// IsAdmin reports whether the actor has administrative rights.
func (a *Actor) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
