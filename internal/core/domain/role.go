package domain

import "strings"

// Role is a named access tier. The set is closed.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
	RoleGuest   Role = "guest"
)

// Permission strings checked by business logic.
const (
	PermUsersRead   = "users:read"
	PermUsersWrite  = "users:write"
	PermUsersDelete = "users:delete"
	PermRolesRead   = "roles:read"
	PermRolesWrite  = "roles:write"
	PermRolesDelete = "roles:delete"
)

// rolePermissions is the only source of a role's permissions.
var rolePermissions = map[Role][]string{
	RoleAdmin: {
		PermUsersRead, PermUsersWrite, PermUsersDelete,
		PermRolesRead, PermRolesWrite, PermRolesDelete,
	},
	RoleManager: {PermUsersRead, PermUsersWrite, PermRolesRead},
	RoleUser:    {PermUsersRead},
	RoleGuest:   {},
}

// Roles returns every role, highest tier first.
func Roles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleUser, RoleGuest}
}

// ParseRole accepts any casing of a known role name.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

func (r Role) String() string { return string(r) }

// Permissions returns a copy of the permission set granted to r.
// Unknown roles get none.
func (r Role) Permissions() []string {
	perms := rolePermissions[r]
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// HasPermission reports whether r grants permission.
func (r Role) HasPermission(permission string) bool {
	for _, p := range rolePermissions[r] {
		if p == permission {
			return true
		}
	}
	return false
}

// Authorize decides whether a caller holding caller may access a route that
// requires required. The decision is an explicit table over the pair; new
// roles must extend it here rather than rely on an ordering.
func Authorize(caller, required Role) bool {
	switch caller {
	case RoleAdmin:
		return true
	case RoleManager:
		switch required {
		case RoleManager, RoleUser, RoleGuest:
			return true
		}
	case RoleUser:
		switch required {
		case RoleUser, RoleGuest:
			return true
		}
	case RoleGuest:
		switch required {
		case RoleGuest:
			return true
		}
	}
	return false
}
