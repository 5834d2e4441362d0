package model

import (
	"time"

	"github.com/google/uuid"
)

// AdministeredDose is a dose recorded against a student. A nil DateGiven means
// the dose is planned but not yet confirmed; it still counts as present.
type AdministeredDose struct {
	ID          int        `json:"id"`
	StudentID   uuid.UUID  `json:"student_id"`
	VaccineID   int        `json:"vaccine_id"`
	VaccineCode string     `json:"vaccine_code,omitempty"`
	VaccineName string     `json:"vaccine_name,omitempty"`
	DoseNumber  int        `json:"dose_number"`
	DateGiven   *time.Time `json:"date_given"`
	CreatedAt   time.Time  `json:"created_at"`
}

// DoseKey identifies one administered (vaccine, dose number) pair of a student.
type DoseKey struct {
	StudentID  uuid.UUID
	VaccineID  int
	DoseNumber int
}

// RecordDoseRequest is the payload for recording an administered dose.
type RecordDoseRequest struct {
	VaccineID  int    `json:"vaccine_id" binding:"required,min=1"`
	DoseNumber int    `json:"dose_number" binding:"required,min=1"`
	DateGiven  string `json:"date_given" binding:"omitempty,datetime=2006-01-02,pastdate"`
}

// RequiredDose is the derived result of applying one schedule entry to one
// student. Rows are regenerated in bulk, never patched.
type RequiredDose struct {
	ID              int64     `json:"id"`
	StudentID       uuid.UUID `json:"student_id"`
	ScheduleEntryID int       `json:"schedule_entry_id"`
	DoseNumber      int       `json:"dose_number"`
	DueDate         time.Time `json:"due_date"`
	Completed       bool      `json:"completed"`
}

// RequiredDoseView is a required dose joined with its vaccine and the
// time-relative flags evaluated at read time.
type RequiredDoseView struct {
	RequiredDose
	VaccineCode string `json:"vaccine_code"`
	VaccineName string `json:"vaccine_name"`
	AgeRange    string `json:"age_range"`
	StudentName string `json:"student_name,omitempty"`
	Overdue     bool   `json:"overdue"`
	Imminent    bool   `json:"imminent"`
}
