package model

// Role is a staff role embedded in access tokens.
type Role string

const (
	RoleAdmin       Role = "Admin"
	RoleSchoolNurse Role = "SchoolNurse"
	RoleViewer      Role = "Viewer"
)

// RolePermissions maps each role to the permissions it grants.
var RolePermissions = map[Role][]Permission{
	RoleAdmin: AllPermissions,
	RoleSchoolNurse: {
		PermissionStudentsRead,
		PermissionStudentsWrite,
		PermissionDosesWrite,
	},
	RoleViewer: {
		PermissionStudentsRead,
	},
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := RolePermissions[r]
	return ok
}

// PermissionCodes returns the role's permissions as plain strings.
func (r Role) PermissionCodes() []string {
	perms := RolePermissions[r]
	codes := make([]string, 0, len(perms))
	for _, p := range perms {
		codes = append(codes, string(p))
	}
	return codes
}
