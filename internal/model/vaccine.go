package model

import "time"

// Vaccine is immutable reference data identified by a unique short code.
type Vaccine struct {
	ID          int       `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// VaccineWithSchedule bundles a vaccine with its schedule entries.
type VaccineWithSchedule struct {
	Vaccine
	Schedule []ScheduleEntry `json:"schedule"`
}

// ScheduleEntry states that a vaccine's Nth dose is expected within an age band.
// VaccineCode is populated by the catalog join and is not stored on the row.
type ScheduleEntry struct {
	ID              int    `json:"id"`
	VaccineID       int    `json:"vaccine_id"`
	VaccineCode     string `json:"vaccine_code"`
	AgeRange        string `json:"age_range"`
	DoseNumber      int    `json:"dose_number"`
	CatchUpEligible bool   `json:"catch_up_eligible"`
}

// CreateVaccineRequest is the payload for adding a vaccine to the catalog.
type CreateVaccineRequest struct {
	Code        string `json:"code" binding:"required,min=2,max=20"`
	Name        string `json:"name" binding:"required,min=2,max=150"`
	Description string `json:"description" binding:"max=500"`
}

// ScheduleEntryRequest is the payload for creating or updating a schedule entry.
type ScheduleEntryRequest struct {
	AgeRange        string `json:"age_range" binding:"required,max=50"`
	DoseNumber      int    `json:"dose_number" binding:"required,min=1"`
	CatchUpEligible bool   `json:"catch_up_eligible"`
}
