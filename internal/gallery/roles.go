package gallery

import (
	"strings"

	"github.com/gallerysync/api/internal/model"
)

// RoleMapper canonicalizes role aliases. It is immutable once constructed.
type RoleMapper struct {
	table map[string]string
}

// NewRoleMapper builds a mapper from an alias -> role table. Keys are
// matched case-insensitively.
func NewRoleMapper(table map[string]string) *RoleMapper {
	t := make(map[string]string, len(table))
	for alias, role := range table {
		t[strings.ToLower(strings.TrimSpace(alias))] = role
	}
	return &RoleMapper{table: t}
}

// DefaultRoleMapper maps the storefront aliases onto the managed roles
func DefaultRoleMapper() *RoleMapper {
	return NewRoleMapper(map[string]string{
		"base":                model.RoleImage,
		model.RoleImage:       model.RoleImage,
		"small":               model.RoleSmallImage,
		model.RoleSmallImage:  model.RoleSmallImage,
		model.RoleThumbnail:   model.RoleThumbnail,
		"swatch":              model.RoleSwatchImage,
		model.RoleSwatchImage: model.RoleSwatchImage,
	})
}

// Map resolves one alias. Unknown roles report false.
func (m *RoleMapper) Map(role string) (string, bool) {
	mapped, ok := m.table[strings.ToLower(strings.TrimSpace(role))]
	return mapped, ok
}

// MapMany resolves roles, dropping unknown ones and repeats while keeping
// first-seen order.
func (m *RoleMapper) MapMany(roles []string) []string {
	out := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		mapped, ok := m.Map(r)
		if !ok {
			continue
		}
		if _, dup := seen[mapped]; dup {
			continue
		}
		seen[mapped] = struct{}{}
		out = append(out, mapped)
	}
	return out
}

// ManagedRoles is the fixed set of role attributes owned by reconciliation
type ManagedRoles struct {
	codes []string
}

func NewManagedRoles(codes ...string) ManagedRoles {
	return ManagedRoles{codes: append([]string(nil), codes...)}
}

func DefaultManagedRoles() ManagedRoles {
	return NewManagedRoles(model.RoleImage, model.RoleSmallImage, model.RoleThumbnail, model.RoleSwatchImage)
}

// Codes returns a copy of the managed role codes
func (r ManagedRoles) Codes() []string {
	return append([]string(nil), r.codes...)
}

// Contains reports whether code is owned by reconciliation
func (r ManagedRoles) Contains(code string) bool {
	for _, c := range r.codes {
		if c == code {
			return true
		}
	}
	return false
}
