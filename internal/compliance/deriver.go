package compliance

import (
	"time"

	"github.com/google/uuid"
	"github.com/vaxsync/vaxsync-backend/internal/model"
)

// doseRef is the presence-set key; only (vaccine, dose number) matters.
type doseRef struct {
	vaccineID  int
	doseNumber int
}

// ReceivedSet is the set of (vaccine, dose number) pairs a student has on record.
type ReceivedSet map[doseRef]struct{}

// Has reports whether the pair is present.
func (s ReceivedSet) Has(vaccineID, doseNumber int) bool {
	_, ok := s[doseRef{vaccineID: vaccineID, doseNumber: doseNumber}]
	return ok
}

// Add records a pair. Duplicates collapse.
func (s ReceivedSet) Add(vaccineID, doseNumber int) {
	s[doseRef{vaccineID: vaccineID, doseNumber: doseNumber}] = struct{}{}
}

// BuildReceivedSets groups administered doses by student. The date a dose
// was given is irrelevant: presence alone completes a schedule entry.
func BuildReceivedSets(doses []model.DoseKey) map[uuid.UUID]ReceivedSet {
	sets := make(map[uuid.UUID]ReceivedSet)
	for _, d := range doses {
		set, ok := sets[d.StudentID]
		if !ok {
			set = make(ReceivedSet)
			sets[d.StudentID] = set
		}
		set.Add(d.VaccineID, d.DoseNumber)
	}
	return sets
}

// Deriver applies the schedule catalog to students.
type Deriver struct {
	resolver *Resolver
	now      func() time.Time
}

// NewDeriver creates a Deriver. now defaults to time.Now.
func NewDeriver(resolver *Resolver, now func() time.Time) *Deriver {
	if now == nil {
		now = time.Now
	}
	return &Deriver{resolver: resolver, now: now}
}

// Today returns the deriver's notion of the current date.
func (d *Deriver) Today() time.Time {
	return Today(d.now())
}

// AppendStudent appends one required dose per catalog entry for the student
// to dst, regardless of whether the student is old enough for the dose yet.
// It also reports whether any appended record is incomplete and past due.
// A nil received set means the student has no doses on record.
func (d *Deriver) AppendStudent(
	dst []model.RequiredDose,
	student model.StudentBirth,
	catalog []model.ScheduleEntry,
	received ReceivedSet,
) ([]model.RequiredDose, bool) {
	today := d.Today()
	hasOverdue := false

	for _, entry := range catalog {
		rd := model.RequiredDose{
			StudentID:       student.ID,
			ScheduleEntryID: entry.ID,
			DoseNumber:      entry.DoseNumber,
			DueDate:         d.resolver.DueDate(entry, student.DateOfBirth),
			Completed:       received.Has(entry.VaccineID, entry.DoseNumber),
		}
		if IsOverdue(rd, today) {
			hasOverdue = true
		}
		dst = append(dst, rd)
	}
	return dst, hasOverdue
}

// DeriveAll runs the full cross product in memory. It is meant for small
// populations and tests; the service layer streams large ones in batches.
func (d *Deriver) DeriveAll(
	catalog []model.ScheduleEntry,
	students []model.StudentBirth,
	doses []model.DoseKey,
) ([]model.RequiredDose, []model.ComplianceUpdate) {
	sets := BuildReceivedSets(doses)
	records := make([]model.RequiredDose, 0, len(catalog)*len(students))
	overdue := make(map[uuid.UUID]bool, len(students))

	for _, s := range students {
		var hasOverdue bool
		records, hasOverdue = d.AppendStudent(records, s, catalog, sets[s.ID])
		overdue[s.ID] = hasOverdue
	}
	return records, Aggregate(students, overdue)
}
