package compliance

import (
	"math/rand"
	"time"

	"github.com/vaxsync/vaxsync-backend/internal/model"
)

const (
	// DefaultJitterDays is the cosmetic ± variance applied to due dates.
	DefaultJitterDays = 15

	// minimumDueAgeDays is the earliest a dose can be due after birth.
	minimumDueAgeDays = 30

	// fallbackFloorMonths applies when an age range has no usable end.
	fallbackFloorMonths = 6
)

// Resolver maps a (vaccine code, dose number) pair to the age at which the
// dose is due and turns that age into a due date for a given birth date.
//
// A Resolver owns its random source and is not safe for concurrent use.
type Resolver struct {
	overrides  map[string]map[int]int
	rng        *rand.Rand
	jitterDays int
}

// NewResolver builds a Resolver. A nil rng or non-positive jitterDays
// disables jitter, making DueDate deterministic.
func NewResolver(overrides map[string]map[int]int, rng *rand.Rand, jitterDays int) *Resolver {
	if overrides == nil {
		overrides = map[string]map[int]int{}
	}
	if jitterDays < 0 {
		jitterDays = 0
	}
	return &Resolver{
		overrides:  overrides,
		rng:        rng,
		jitterDays: jitterDays,
	}
}

// DueMonths returns the age in months at which a dose is due. The override
// table wins verbatim; otherwise the end of the parsed age range is used,
// falling back to max(start, 6).
func (r *Resolver) DueMonths(vaccineCode string, doseNumber int, ageRange string) int {
	if doses, ok := r.overrides[vaccineCode]; ok {
		if months, ok := doses[doseNumber]; ok {
			return months
		}
	}

	start, end := ParseAgeRange(ageRange)
	if end != 0 {
		return end
	}
	return max(start, fallbackFloorMonths)
}

// DueDate computes the jittered due date of a schedule entry for a student
// born on dob. The result is never earlier than dob + 30 days.
func (r *Resolver) DueDate(entry model.ScheduleEntry, dob time.Time) time.Time {
	dob = dateOnly(dob)
	months := r.DueMonths(entry.VaccineCode, entry.DoseNumber, entry.AgeRange)

	due := dob.AddDate(0, months, 0)
	if r.rng != nil && r.jitterDays > 0 {
		due = due.AddDate(0, 0, r.rng.Intn(2*r.jitterDays+1)-r.jitterDays)
	}

	if floor := dob.AddDate(0, 0, minimumDueAgeDays); due.Before(floor) {
		due = floor
	}
	return due
}

// dateOnly drops the clock part, anchoring the date in UTC.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
