package auth

import "strings"

// Role is a dashboard role. Each role includes the permissions of the roles below it.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

var roleRanks = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleManager:  3,
	RoleAdmin:    4,
}

// Roles lists every role from least to most privileged.
func Roles() []Role {
	return []Role{RoleViewer, RoleOperator, RoleManager, RoleAdmin}
}

// NormalizeRole trims and lower-cases value and reports whether it names a role.
func NormalizeRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := roleRanks[role]; !ok {
		return "", false
	}
	return role, true
}

// RoleAtLeast reports whether role satisfies required. Unknown roles satisfy nothing.
func RoleAtLeast(role Role, required Role) bool {
	have, ok := roleRanks[role]
	return ok && have >= roleRanks[required]
}
