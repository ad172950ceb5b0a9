// Package domain defines shared domain constants, types and errors.
package domain

const (
	// RoleAdmin marks users on the admin allow-list.
	RoleAdmin = "admin"
	// RoleUser represents a standard user with no elevated privileges.
	RoleUser = "user"
)

// RoleFor maps an allow-list check onto a role name.
func RoleFor(isAdmin bool) string {
	if isAdmin {
		return RoleAdmin
	}
	return RoleUser
}
