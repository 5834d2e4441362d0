package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionStudentsRead allows viewing students, reports and compliance.
	PermissionStudentsRead Permission = "students:read"

	// PermissionStudentsWrite allows enrolling, updating and removing students.
	PermissionStudentsWrite Permission = "students:write"

	// PermissionDosesWrite allows recording and removing administered doses.
	PermissionDosesWrite Permission = "doses:write"

	// PermissionSchoolsWrite allows creating and deleting schools.
	PermissionSchoolsWrite Permission = "schools:write"

	// PermissionCatalogWrite allows editing vaccines and schedule entries.
	PermissionCatalogWrite Permission = "catalog:write"

	// PermissionComplianceDerive allows triggering a full recompute.
	PermissionComplianceDerive Permission = "compliance:derive"

	// PermissionAuditRead allows reading the audit log.
	PermissionAuditRead Permission = "audit:read"
)

// AllPermissions is a slice of all available permissions.
var AllPermissions = []Permission{
	PermissionStudentsRead,
	PermissionStudentsWrite,
	PermissionDosesWrite,
	PermissionSchoolsWrite,
	PermissionCatalogWrite,
	PermissionComplianceDerive,
	PermissionAuditRead,
}
