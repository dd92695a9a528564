package model

// Role is the closed set of staff account roles
type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

// Permission names an action gated by role
type Permission string

const (
	PermCirculation   Permission = "circulation"
	PermManageBooks   Permission = "manage_books"
	PermManageMembers Permission = "manage_members"
	PermManageUsers   Permission = "manage_users"
	PermViewReports   Permission = "view_reports"
)

// AllPermissions lists every permission, in display order.
var AllPermissions = []Permission{
	PermCirculation,
	PermManageBooks,
	PermManageMembers,
	PermManageUsers,
	PermViewReports,
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff:
		return true
	}
	return false
}

// Can reports whether the role grants p. Unknown roles grant nothing.
func (r Role) Can(p Permission) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleStaff:
		switch p {
		case PermCirculation, PermManageBooks, PermManageMembers:
			return true
		case PermManageUsers, PermViewReports:
			return false
		}
	}
	return false
}

// Permissions returns the permissions granted to the role.
func (r Role) Permissions() []Permission {
	var out []Permission
	for _, p := range AllPermissions {
		if r.Can(p) {
			out = append(out, p)
		}
	}
	return out
}
