package compliance

import (
	"time"

	"github.com/google/uuid"
	"github.com/vaxsync/vaxsync-backend/internal/model"
)

// IsCompliant folds a student's required doses into one flag: compliant iff
// no dose is both incomplete and past due. No records means compliant.
func IsCompliant(records []model.RequiredDose, today time.Time) bool {
	for _, rd := range records {
		if IsOverdue(rd, today) {
			return false
		}
	}
	return true
}

// Aggregate turns per-student "has an overdue dose" markers into compliance
// updates, one per student, in population order. Students without a marker
// are vacuously compliant.
func Aggregate(students []model.StudentBirth, overdue map[uuid.UUID]bool) []model.ComplianceUpdate {
	updates := make([]model.ComplianceUpdate, 0, len(students))
	for _, s := range students {
		updates = append(updates, model.ComplianceUpdate{
			StudentID:   s.ID,
			IsCompliant: !overdue[s.ID],
		})
	}
	return updates
}
