// Package users manages staff accounts.
package users

import (
	"time"

	"github.com/guardpost/guardpost/internal/rbac"
)

// User is a staff account.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         rbac.Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Snapshot is the audit representation of a user. The password hash is never
// included.
func (u User) Snapshot() map[string]any {
	return map[string]any{
		"id":     u.ID,
		"nome":   u.Name,
		"email":  u.Email,
		"perfil": u.Role.String(),
	}
}

// Input is the create/edit form.
type Input struct {
	Name     string `form:"name" label:"Nome" validate:"required,max=100"`
	Email    string `form:"email" label:"E-mail" validate:"required,email,max=100"`
	Password string `form:"password" label:"Senha" validate:"omitempty,min=8,max=72"`
	Role     string `form:"role" label:"Perfil" validate:"required"`
}

// ListFilters narrows the user listing.
type ListFilters struct {
	Search  string
	Page    int
	PerPage int
}
