package model

import "time"

// Role represents a row in the `roles` table: a named permission bundle
// with a numeric level used for coarse hierarchy comparisons.
type Role struct {
	ID    uint64 // roles.id
	Name  string // roles.name
	Level int    // roles.level
}

// UserRole is a row of the `user_roles` join table.  The earliest
// assignment of a user is treated as the primary role.
type UserRole struct {
	UserID     uint64    // user_roles.user_id
	RoleID     uint64    // user_roles.role_id
	AssignedAt time.Time // user_roles.assigned_at
}
