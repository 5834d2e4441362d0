package model

import (
	"time"

	"github.com/google/uuid"
)

// Student is a pupil whose vaccination compliance is tracked.
//
// IsCompliant is a cached projection of the student's required doses. It is
// rewritten by every derivation pass and must not be trusted after the
// schedule catalog or the student's administered doses change until the
// recompute worker has processed the student again.
type Student struct {
	ID          uuid.UUID `json:"id"`
	SchoolID    uuid.UUID `json:"school_id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DateOfBirth time.Time `json:"date_of_birth"`
	IsCompliant bool      `json:"is_compliant"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FullName joins first and last name.
func (s *Student) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// StudentBirth is the slice of a student the derivation engine needs.
type StudentBirth struct {
	ID          uuid.UUID
	DateOfBirth time.Time
}

// ComplianceUpdate is a single cached-flag write.
type ComplianceUpdate struct {
	StudentID   uuid.UUID
	IsCompliant bool
}

// StudentFilter narrows student listings.
type StudentFilter struct {
	SchoolID  *uuid.UUID
	Compliant *bool
}

// CreateStudentRequest is the payload for enrolling a student.
type CreateStudentRequest struct {
	SchoolID    string `json:"school_id" binding:"required,uuid"`
	FirstName   string `json:"first_name" binding:"required,min=1,max=100"`
	LastName    string `json:"last_name" binding:"required,min=1,max=100"`
	DateOfBirth string `json:"date_of_birth" binding:"required,datetime=2006-01-02,pastdate"`
}

// UpdateStudentRequest is the payload for updating a student.
type UpdateStudentRequest struct {
	SchoolID    string `json:"school_id" binding:"required,uuid"`
	FirstName   string `json:"first_name" binding:"required,min=1,max=100"`
	LastName    string `json:"last_name" binding:"required,min=1,max=100"`
	DateOfBirth string `json:"date_of_birth" binding:"required,datetime=2006-01-02,pastdate"`
}
