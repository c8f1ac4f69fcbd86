package rbac

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/guardpost/guardpost/internal/shared"
)

// Role is one of the fixed privilege tags. Its string value is what gets
// stored, compared and written to audit payloads.
type Role string

const (
	RoleStaff         Role = "Funcionário"
	RoleManager       Role = "Gerente"
	RoleSecurityAdmin Role = "Administrador de Segurança"
)

// Roles lists every role from least to most privileged.
var Roles = []Role{RoleStaff, RoleManager, RoleSecurityAdmin}

var roleKeys = map[Role]string{
	RoleStaff:         "FUNCIONARIO",
	RoleManager:       "GERENTE",
	RoleSecurityAdmin: "ADMIN_SEGURANCA",
}

var roleTags = map[Role]string{
	RoleStaff:         "Staff",
	RoleManager:       "Manager",
	RoleSecurityAdmin: "SecurityAdmin",
}

var roleLookup = buildRoleLookup()

// String returns the stable value.
func (r Role) String() string { return string(r) }

// Key returns the form identifier used in HTML selects.
func (r Role) Key() string { return roleKeys[r] }

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleKeys[r]
	return ok
}

// ParseRole maps a stored value, form key or English tag onto a Role.
// Matching ignores case, accents, spaces and underscores.
func ParseRole(raw string) (Role, error) {
	if role, ok := roleLookup[foldRole(raw)]; ok {
		return role, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", shared.ErrValidation, raw)
}

// NormalizeRoles turns Role values, strings or fmt.Stringers into a
// de-duplicated role list. Unknown values are dropped.
func NormalizeRoles(values ...any) []Role {
	seen := make(map[Role]struct{}, len(values))
	out := make([]Role, 0, len(values))
	for _, v := range values {
		var raw string
		switch t := v.(type) {
		case Role:
			raw = string(t)
		case string:
			raw = t
		case fmt.Stringer:
			raw = t.String()
		default:
			continue
		}
		role, err := ParseRole(raw)
		if err != nil {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}

// Identity is an authenticated principal.
type Identity struct {
	ID   int64
	Name string
	Role Role
}

// IdentityFromSession reads the principal stored in the session.
func IdentityFromSession(sess *shared.Session) (Identity, bool) {
	id, name, role, ok := sess.Identity()
	if !ok {
		return Identity{}, false
	}
	return Identity{ID: id, Name: name, Role: Role(role)}, true
}

var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func foldRole(raw string) string {
	stripped, _, err := transform.String(accentStripper, strings.TrimSpace(raw))
	if err != nil {
		stripped = raw
	}
	folded := cases.Fold().String(stripped)
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '_' || r == '-' {
			return -1
		}
		return r
	}, folded)
}

func buildRoleLookup() map[string]Role {
	lookup := make(map[string]Role, len(Roles)*3)
	for _, role := range Roles {
		lookup[foldRole(string(role))] = role
		lookup[foldRole(roleKeys[role])] = role
		lookup[foldRole(roleTags[role])] = role
	}
	return lookup
}
