package auth

import "strings"

// Role is a coarse permission level carried in JWT claims.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

var roleRank = map[Role]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleAdmin:  3,
}

// NormalizeRole maps a raw claim value onto a known role.
func NormalizeRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := roleRank[role]; !ok {
		return "", false
	}
	return role, true
}

// RoleAtLeast reports whether have meets or exceeds want.
func RoleAtLeast(have, want Role) bool {
	return roleRank[have] >= roleRank[want]
}
