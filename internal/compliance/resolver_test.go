package compliance

import (
	"math/rand"
	"testing"
	"time"

	"github.com/vaxsync/vaxsync-backend/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDueMonths_OverrideWinsOverAgeRange(t *testing.T) {
	r := NewResolver(DefaultDueMonthOverrides, nil, 0)

	for code, doses := range DefaultDueMonthOverrides {
		for dose, months := range doses {
			for _, text := range []string{"", "4–6 years", "99 months", "nonsense"} {
				if got := r.DueMonths(code, dose, text); got != months {
					t.Errorf("DueMonths(%s, %d, %q) = %d, want %d", code, dose, text, got, months)
				}
			}
		}
	}
}

func TestDueMonths_FallbackToAgeRange(t *testing.T) {
	r := NewResolver(DefaultDueMonthOverrides, nil, 0)

	tests := []struct {
		code     string
		dose     int
		ageRange string
		want     int
	}{
		{"XYZ", 1, "4–6 years", 72},
		{"XYZ", 1, "0–1 years", 12},
		{"XYZ", 1, "", 6},
		{"XYZ", 1, "0 months", 6},
		{"Tdap", 1, "11–18 yrs", 216},
		{"HPV", 2, "11–13 years", 156},
		// Code in the table but dose missing falls through to the text.
		{"DTaP", 9, "4–6 years", 72},
	}

	for _, tt := range tests {
		if got := r.DueMonths(tt.code, tt.dose, tt.ageRange); got != tt.want {
			t.Errorf("DueMonths(%s, %d, %q) = %d, want %d", tt.code, tt.dose, tt.ageRange, got, tt.want)
		}
	}
}

func TestDueDate_WithoutJitterIsExact(t *testing.T) {
	r := NewResolver(DefaultDueMonthOverrides, nil, DefaultJitterDays)
	entry := model.ScheduleEntry{VaccineCode: "MMR", DoseNumber: 1, AgeRange: "12–15 months"}

	got := r.DueDate(entry, time.Date(2015, 3, 10, 14, 30, 0, 0, time.UTC))
	if want := date(2016, 3, 10); !got.Equal(want) {
		t.Errorf("DueDate = %s, want %s", got, want)
	}
}

func TestDueDate_NeverBeforeFirstMonth(t *testing.T) {
	overrides := map[string]map[int]int{"NEWBORN": {1: 0}}
	entry := model.ScheduleEntry{VaccineCode: "NEWBORN", DoseNumber: 1}
	dob := date(2021, 7, 4)
	floor := date(2021, 8, 3)

	if got := NewResolver(overrides, nil, 0).DueDate(entry, dob); !got.Equal(floor) {
		t.Errorf("unjittered DueDate = %s, want %s", got, floor)
	}

	for seed := int64(0); seed < 200; seed++ {
		r := NewResolver(overrides, rand.New(rand.NewSource(seed)), DefaultJitterDays)
		if got := r.DueDate(entry, dob); got.Before(floor) {
			t.Fatalf("seed %d: DueDate = %s, before floor %s", seed, got, floor)
		}
	}
}

func TestDueDate_DTaPFirstDoseWindow(t *testing.T) {
	entry := model.ScheduleEntry{VaccineCode: "DTaP", DoseNumber: 1, AgeRange: "2 months"}
	dob := date(2020, 1, 1)
	earliest := date(2020, 2, 15)
	latest := date(2020, 3, 16)
	floor := date(2020, 1, 31)

	for seed := int64(0); seed < 500; seed++ {
		r := NewResolver(DefaultDueMonthOverrides, rand.New(rand.NewSource(seed)), DefaultJitterDays)
		got := r.DueDate(entry, dob)
		if got.Before(earliest) || got.After(latest) {
			t.Fatalf("seed %d: DueDate = %s, outside [%s, %s]", seed, got.Format("2006-01-02"), earliest.Format("2006-01-02"), latest.Format("2006-01-02"))
		}
		if got.Before(floor) {
			t.Fatalf("seed %d: DueDate = %s, before %s", seed, got, floor)
		}
	}
}

func TestDueDate_AgeRangeFallbackWindow(t *testing.T) {
	entry := model.ScheduleEntry{VaccineCode: "ADOL", DoseNumber: 1, AgeRange: "11–18 yrs"}
	dob := date(2010, 1, 1)
	base := date(2028, 1, 1)

	for seed := int64(0); seed < 100; seed++ {
		r := NewResolver(DefaultDueMonthOverrides, rand.New(rand.NewSource(seed)), DefaultJitterDays)
		got := r.DueDate(entry, dob)
		diff := got.Sub(base)
		if diff < -15*24*time.Hour || diff > 15*24*time.Hour {
			t.Fatalf("seed %d: DueDate = %s, more than 15 days from %s", seed, got, base)
		}
	}
}

func TestDueDate_SeededJitterIsReproducible(t *testing.T) {
	entry := model.ScheduleEntry{VaccineCode: "MMR", DoseNumber: 2}
	dob := date(2012, 9, 30)

	a := NewResolver(DefaultDueMonthOverrides, rand.New(rand.NewSource(42)), DefaultJitterDays)
	b := NewResolver(DefaultDueMonthOverrides, rand.New(rand.NewSource(42)), DefaultJitterDays)
	for i := 0; i < 20; i++ {
		if da, db := a.DueDate(entry, dob), b.DueDate(entry, dob); !da.Equal(db) {
			t.Fatalf("draw %d: %s != %s", i, da, db)
		}
	}
}

func TestNewResolver_NegativeJitterDisabled(t *testing.T) {
	r := NewResolver(nil, rand.New(rand.NewSource(1)), -5)
	entry := model.ScheduleEntry{VaccineCode: "X", DoseNumber: 1, AgeRange: "4–6 years"}

	if got, want := r.DueDate(entry, date(2018, 5, 5)), date(2024, 5, 5); !got.Equal(want) {
		t.Errorf("DueDate = %s, want %s", got, want)
	}
}
