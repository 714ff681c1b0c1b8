package auth

import (
	"fmt"
	"strings"
)

// Role is the access level carried in a scrape token. Roles are ordered and
// a higher role covers every lower one.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleOrder = []Role{RoleViewer, RoleOperator, RoleAdmin}

// ParseRole accepts a role name in any case.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if role.level() < 0 {
		return "", fmt.Errorf("auth: unknown role %q", value)
	}
	return role, nil
}

// Covers reports whether r grants at least the access of required.
func (r Role) Covers(required Role) bool {
	have := r.level()
	return have >= 0 && have >= required.level()
}

func (r Role) level() int {
	for i, known := range roleOrder {
		if r == known {
			return i
		}
	}
	return -1
}
