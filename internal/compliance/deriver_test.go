package compliance

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/vaxsync/vaxsync-backend/internal/model"
)

func fixedNow() time.Time {
	return time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
}

func newTestDeriver() *Deriver {
	return NewDeriver(NewResolver(DefaultDueMonthOverrides, nil, 0), fixedNow)
}

var mmrCatalog = []model.ScheduleEntry{
	{ID: 1, VaccineID: 10, VaccineCode: "MMR", AgeRange: "12–15 months", DoseNumber: 1},
	{ID: 2, VaccineID: 10, VaccineCode: "MMR", AgeRange: "4–6 years", DoseNumber: 2},
}

func TestAppendStudent_CrossProductIncludesFutureDoses(t *testing.T) {
	d := newTestDeriver()
	infant := model.StudentBirth{ID: uuid.New(), DateOfBirth: date(2024, 5, 1)}

	records, hasOverdue := d.AppendStudent(nil, infant, mmrCatalog, nil)
	if len(records) != len(mmrCatalog) {
		t.Fatalf("got %d records, want %d", len(records), len(mmrCatalog))
	}
	if hasOverdue {
		t.Error("infant should have nothing overdue")
	}
	if want := date(2025, 5, 1); !records[0].DueDate.Equal(want) {
		t.Errorf("dose 1 due %s, want %s", records[0].DueDate, want)
	}
	for i, rd := range records {
		if rd.StudentID != infant.ID || rd.ScheduleEntryID != mmrCatalog[i].ID || rd.DoseNumber != mmrCatalog[i].DoseNumber {
			t.Errorf("record %d = %+v", i, rd)
		}
	}
}

func TestAppendStudent_PresenceCompletesDose(t *testing.T) {
	d := newTestDeriver()
	s := model.StudentBirth{ID: uuid.New(), DateOfBirth: date(2010, 2, 2)}

	sets := BuildReceivedSets([]model.DoseKey{
		{StudentID: s.ID, VaccineID: 10, DoseNumber: 1},
		{StudentID: s.ID, VaccineID: 10, DoseNumber: 1},
		{StudentID: uuid.New(), VaccineID: 10, DoseNumber: 2},
	})
	if len(sets[s.ID]) != 1 {
		t.Fatalf("duplicates should collapse, got %d entries", len(sets[s.ID]))
	}

	records, hasOverdue := d.AppendStudent(nil, s, mmrCatalog, sets[s.ID])
	if !records[0].Completed {
		t.Error("dose 1 should be completed")
	}
	if records[1].Completed {
		t.Error("dose 2 belongs to another student")
	}
	if !hasOverdue {
		t.Error("dose 2 is incomplete and past due")
	}
}

func TestDeriveAll_NoDosesAllPastIsNonCompliant(t *testing.T) {
	d := newTestDeriver()
	students := []model.StudentBirth{{ID: uuid.New(), DateOfBirth: date(2012, 1, 1)}}

	records, updates := d.DeriveAll(mmrCatalog, students, nil)
	if len(records) != 2 {
		t.Fatalf("got %d records", len(records))
	}
	if updates[0].IsCompliant {
		t.Error("student with no doses and everything past due must not be compliant")
	}
	if IsCompliant(records, d.Today()) {
		t.Error("IsCompliant disagrees with the aggregated flag")
	}
}

func TestDeriveAll_CompletedOrFutureIsCompliant(t *testing.T) {
	d := newTestDeriver()
	older := model.StudentBirth{ID: uuid.New(), DateOfBirth: date(2015, 1, 1)}
	// Dose 1 due 2024-09-01 and dose 2 due 2027-09-01: both in the future.
	younger := model.StudentBirth{ID: uuid.New(), DateOfBirth: date(2023, 9, 1)}
	doses := []model.DoseKey{
		{StudentID: older.ID, VaccineID: 10, DoseNumber: 1},
		{StudentID: older.ID, VaccineID: 10, DoseNumber: 2},
	}

	_, updates := d.DeriveAll(mmrCatalog, []model.StudentBirth{older, younger}, doses)
	for _, u := range updates {
		if !u.IsCompliant {
			t.Errorf("student %s should be compliant", u.StudentID)
		}
	}
}

func TestDeriveAll_EmptyCatalogIsVacuouslyCompliant(t *testing.T) {
	d := newTestDeriver()
	students := []model.StudentBirth{{ID: uuid.New(), DateOfBirth: date(2001, 1, 1)}}

	records, updates := d.DeriveAll(nil, students, nil)
	if len(records) != 0 {
		t.Errorf("got %d records", len(records))
	}
	if len(updates) != 1 || !updates[0].IsCompliant {
		t.Errorf("updates = %+v", updates)
	}
}

func TestDeriveAll_AddingDoseFlipsOnlyThatStudent(t *testing.T) {
	d := newTestDeriver()
	catalog := mmrCatalog[:1]
	students := []model.StudentBirth{
		{ID: uuid.New(), DateOfBirth: date(2011, 3, 1)},
		{ID: uuid.New(), DateOfBirth: date(2011, 4, 1)},
		{ID: uuid.New(), DateOfBirth: date(2011, 5, 1)},
	}

	_, before := d.DeriveAll(catalog, students, nil)
	for _, u := range before {
		if u.IsCompliant {
			t.Fatalf("student %s should start non-compliant", u.StudentID)
		}
	}

	doses := []model.DoseKey{{StudentID: students[1].ID, VaccineID: 10, DoseNumber: 1}}
	records, after := d.DeriveAll(catalog, students, doses)

	for i, u := range after {
		wantCompliant := i == 1
		if u.IsCompliant != wantCompliant {
			t.Errorf("student %d compliant = %v, want %v", i, u.IsCompliant, wantCompliant)
		}
		if records[i].Completed != wantCompliant {
			t.Errorf("student %d completed = %v, want %v", i, records[i].Completed, wantCompliant)
		}
	}
}

func TestResolveSchedule(t *testing.T) {
	ids := make(map[string]int)
	for i, v := range DefaultVaccines {
		ids[v.Code] = i + 1
	}

	entries, err := ResolveSchedule(DefaultSchedule, ids)
	if err != nil {
		t.Fatalf("ResolveSchedule: %v", err)
	}
	if len(entries) != len(DefaultSchedule) {
		t.Fatalf("got %d entries", len(entries))
	}
	for _, e := range entries {
		if e.VaccineID != ids[e.VaccineCode] {
			t.Errorf("entry %s/%d has vaccine id %d", e.VaccineCode, e.DoseNumber, e.VaccineID)
		}
	}

	delete(ids, "HPV")
	if _, err := ResolveSchedule(DefaultSchedule, ids); !errors.Is(err, ErrUnknownVaccineCode) {
		t.Errorf("err = %v, want ErrUnknownVaccineCode", err)
	}
}

func TestDefaultSchedule_DoseNumbersUniquePerVaccine(t *testing.T) {
	seen := make(map[string]map[int]bool)
	for _, d := range DefaultSchedule {
		if d.DoseNumber <= 0 {
			t.Errorf("%s has non-positive dose %d", d.VaccineCode, d.DoseNumber)
		}
		if seen[d.VaccineCode] == nil {
			seen[d.VaccineCode] = make(map[int]bool)
		}
		if seen[d.VaccineCode][d.DoseNumber] {
			t.Errorf("%s dose %d listed twice", d.VaccineCode, d.DoseNumber)
		}
		seen[d.VaccineCode][d.DoseNumber] = true
	}
}
