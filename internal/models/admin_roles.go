package models

// Role is the privilege level carried by an admin session. Values outside
// the admin-capable set may hold a valid token but are routed to the
// restricted dashboard, never into the admin area.
type Role string

const (
	RoleSuperAdmin Role = "SuperAdmin"
	RoleAdmin      Role = "Admin"
	RoleViewMode   Role = "ViewMode"
	RoleEditMode   Role = "EditMode"
	RoleNone       Role = "none"
)

// ParseRole maps a stored role string onto a known Role, defaulting to
// RoleNone for anything unrecognized.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleSuperAdmin, RoleAdmin, RoleViewMode, RoleEditMode:
		return Role(s)
	default:
		return RoleNone
	}
}

// AdminCapable reports whether the role may enter the admin area at all.
func (r Role) AdminCapable() bool {
	return r == RoleSuperAdmin || r == RoleAdmin
}

// CanEdit reports whether the role may mutate back-office records.
// ViewMode holds a token but is read-only.
func (r Role) CanEdit() bool {
	return r == RoleSuperAdmin || r == RoleAdmin || r == RoleEditMode
}

func (r Role) String() string {
	return string(r)
}
