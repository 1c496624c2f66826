package domain

import "time"

// Role enumerates the access levels a user may hold.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ActivationState enumerates the lifecycle of an account's email ownership proof.
type ActivationState string

const (
	ActivationPending ActivationState = "pending"
	ActivationActive  ActivationState = "active"
)

// DefaultProfilePicture is assigned to new accounts.
const DefaultProfilePicture = "user.jpg"

// User mirrors the persisted representation in the users collection.
type User struct {
	ID             string
	FullName       string
	UserName       string
	Email          string
	PasswordHash   string
	Role           Role
	ProfilePicture string
	IsActive       bool
	ActivationCode *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// State derives the activation state from the persisted flags.
func (u User) State() ActivationState {
	if u.IsActive {
		return ActivationActive
	}
	return ActivationPending
}

// Sanitized returns a copy safe to hand to outward-facing layers.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	u.ActivationCode = nil
	return u
}
