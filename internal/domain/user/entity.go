package user

import (
	"time"

	"github.com/google/uuid"
)

// Role represents user role in the system (matches user_role enum)
type Role string

const (
	RoleClient Role = "client"
	RoleRunner Role = "runner"
	RoleAdmin  Role = "admin"
)

// Status represents user status (matches user_status enum)
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusBanned    Status = "banned"
)

// User is the identity record this service consumes. Registration,
// credentials, and verification live in the external auth service; only the
// columns needed for the existence/active check are mapped here.
type User struct {
	ID        uuid.UUID `db:"id"`
	Email     string    `db:"email"`
	Role      Role      `db:"role"`
	Status    Status    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
}

// IsAdmin returns true if user is an admin
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsActive returns true if the user may send or receive funds
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}
