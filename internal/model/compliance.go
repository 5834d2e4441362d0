package model

import "github.com/google/uuid"

// ComplianceSummary aggregates the cached compliance flags of one school.
type ComplianceSummary struct {
	SchoolID      uuid.UUID `json:"school_id"`
	TotalStudents int       `json:"total_students"`
	Compliant     int       `json:"compliant"`
	NonCompliant  int       `json:"non_compliant"`
	OverdueDoses  int       `json:"overdue_doses"`
	ImminentDoses int       `json:"imminent_doses"`
}

// StudentReport is the per-student vaccination report.
type StudentReport struct {
	Student           Student            `json:"student"`
	SchoolName        string             `json:"school_name"`
	AdministeredDoses []AdministeredDose `json:"administered_doses"`
	RequiredDoses     []RequiredDoseView `json:"required_doses"`
	// CachedCompliant is the stored flag; Compliant is recomputed from RequiredDoses.
	CachedCompliant bool `json:"cached_compliant"`
	Compliant       bool `json:"compliant"`
}
