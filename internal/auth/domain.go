package auth

import "github.com/guardpost/guardpost/internal/rbac"

// Account is the part of a user row needed to sign in.
type Account struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         rbac.Role
}
