package compliance

import (
	"time"

	"github.com/vaxsync/vaxsync-backend/internal/model"
)

// ImminentWindowDays is how far ahead an incomplete dose counts as imminent.
const ImminentWindowDays = 30

// Today truncates now to its calendar date.
func Today(now time.Time) time.Time {
	return dateOnly(now)
}

// IsOverdue reports whether a dose is incomplete and its due date has passed.
func IsOverdue(rd model.RequiredDose, today time.Time) bool {
	return !rd.Completed && dateOnly(rd.DueDate).Before(dateOnly(today))
}

// IsImminent reports whether an incomplete dose falls due within the next
// ImminentWindowDays days. Overdue doses are not imminent.
func IsImminent(rd model.RequiredDose, today time.Time) bool {
	if rd.Completed {
		return false
	}
	days := int(dateOnly(rd.DueDate).Sub(dateOnly(today)).Hours() / 24)
	return days >= 0 && days <= ImminentWindowDays
}

// View decorates a required dose with its time-relative flags.
func View(rd model.RequiredDose, today time.Time) model.RequiredDoseView {
	return model.RequiredDoseView{
		RequiredDose: rd,
		Overdue:      IsOverdue(rd, today),
		Imminent:     IsImminent(rd, today),
	}
}
