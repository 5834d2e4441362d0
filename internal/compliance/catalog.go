package compliance

import (
	"errors"
	"fmt"

	"github.com/vaxsync/vaxsync-backend/internal/model"
)

// ErrUnknownVaccineCode marks a schedule entry that references a vaccine
// code missing from the catalog. It is a data error and is never retried.
var ErrUnknownVaccineCode = errors.New("unknown vaccine code")

// CatalogDose is a schedule entry keyed by vaccine code, before IDs exist.
type CatalogDose struct {
	VaccineCode     string
	AgeRange        string
	DoseNumber      int
	CatchUpEligible bool
}

// DefaultVaccines is the seeded vaccine reference data.
var DefaultVaccines = []model.Vaccine{
	{Code: "DTaP", Name: "Diphtheria, Tetanus, and acellular Pertussis", Description: "Childhood series against diphtheria, tetanus and whooping cough."},
	{Code: "IPV", Name: "Inactivated Poliovirus", Description: "Protects against polio."},
	{Code: "HepB", Name: "Hepatitis B", Description: "Protects against hepatitis B infection."},
	{Code: "Hib", Name: "Haemophilus influenzae type b", Description: "Protects against Hib disease in infants and young children."},
	{Code: "MMR", Name: "Measles, Mumps, and Rubella", Description: "Two-dose series against measles, mumps and rubella."},
	{Code: "VAR", Name: "Varicella", Description: "Protects against chickenpox."},
	{Code: "HepA", Name: "Hepatitis A", Description: "Protects against hepatitis A infection."},
	{Code: "Tdap", Name: "Tetanus, Diphtheria, and Pertussis (booster)", Description: "Adolescent booster."},
	{Code: "MenACWY", Name: "Meningococcal Conjugate", Description: "Protects against meningococcal serogroups A, C, W and Y."},
	{Code: "HPV", Name: "Human Papillomavirus", Description: "Protects against HPV-related cancers."},
}

// DefaultSchedule is the seeded per-vaccine dose schedule.
var DefaultSchedule = []CatalogDose{
	{VaccineCode: "DTaP", AgeRange: "2 months", DoseNumber: 1, CatchUpEligible: true},
	{VaccineCode: "DTaP", AgeRange: "4 months", DoseNumber: 2, CatchUpEligible: true},
	{VaccineCode: "DTaP", AgeRange: "6 months", DoseNumber: 3, CatchUpEligible: true},
	{VaccineCode: "DTaP", AgeRange: "4–6 years", DoseNumber: 4, CatchUpEligible: true},
	{VaccineCode: "IPV", AgeRange: "2 months", DoseNumber: 1, CatchUpEligible: true},
	{VaccineCode: "IPV", AgeRange: "4 months", DoseNumber: 2, CatchUpEligible: true},
	{VaccineCode: "IPV", AgeRange: "6–18 months", DoseNumber: 3, CatchUpEligible: true},
	{VaccineCode: "IPV", AgeRange: "4–6 years", DoseNumber: 4, CatchUpEligible: true},
	{VaccineCode: "HepB", AgeRange: "0–1 months", DoseNumber: 1, CatchUpEligible: true},
	{VaccineCode: "HepB", AgeRange: "1–2 months", DoseNumber: 2, CatchUpEligible: true},
	{VaccineCode: "HepB", AgeRange: "6–18 months", DoseNumber: 3, CatchUpEligible: true},
	{VaccineCode: "Hib", AgeRange: "2 months", DoseNumber: 1, CatchUpEligible: false},
	{VaccineCode: "Hib", AgeRange: "4 months", DoseNumber: 2, CatchUpEligible: false},
	{VaccineCode: "Hib", AgeRange: "12–15 months", DoseNumber: 3, CatchUpEligible: false},
	{VaccineCode: "MMR", AgeRange: "12–15 months", DoseNumber: 1, CatchUpEligible: true},
	{VaccineCode: "MMR", AgeRange: "4–6 years", DoseNumber: 2, CatchUpEligible: true},
	{VaccineCode: "VAR", AgeRange: "12–15 months", DoseNumber: 1, CatchUpEligible: true},
	{VaccineCode: "VAR", AgeRange: "4–6 years", DoseNumber: 2, CatchUpEligible: true},
	{VaccineCode: "HepA", AgeRange: "12–23 months", DoseNumber: 1, CatchUpEligible: true},
	{VaccineCode: "HepA", AgeRange: "18–41 months", DoseNumber: 2, CatchUpEligible: true},
	{VaccineCode: "Tdap", AgeRange: "11–12 years", DoseNumber: 1, CatchUpEligible: true},
	{VaccineCode: "MenACWY", AgeRange: "11–12 years", DoseNumber: 1, CatchUpEligible: true},
	{VaccineCode: "MenACWY", AgeRange: "16 years", DoseNumber: 2, CatchUpEligible: true},
	{VaccineCode: "HPV", AgeRange: "11–12 years", DoseNumber: 1, CatchUpEligible: true},
	{VaccineCode: "HPV", AgeRange: "11–13 years", DoseNumber: 2, CatchUpEligible: true},
}

// DefaultDueMonthOverrides encodes clinical due ages that the age-range text
// cannot express, keyed by vaccine code then dose number.
var DefaultDueMonthOverrides = map[string]map[int]int{
	"DTaP":    {1: 2, 2: 4, 3: 6, 4: 60},
	"IPV":     {1: 2, 2: 4, 3: 6, 4: 60},
	"HepB":    {1: 1, 2: 2, 3: 6},
	"Hib":     {1: 2, 2: 4, 3: 12},
	"MMR":     {1: 12, 2: 48},
	"VAR":     {1: 12, 2: 48},
	"HepA":    {1: 12, 2: 18},
	"MenACWY": {1: 132, 2: 192},
}

// ResolveSchedule attaches vaccine IDs to catalog doses. Any code missing
// from vaccineIDs aborts with ErrUnknownVaccineCode.
func ResolveSchedule(doses []CatalogDose, vaccineIDs map[string]int) ([]model.ScheduleEntry, error) {
	entries := make([]model.ScheduleEntry, 0, len(doses))
	for _, d := range doses {
		id, ok := vaccineIDs[d.VaccineCode]
		if !ok {
			return nil, fmt.Errorf("schedule dose %d: %w: %q", d.DoseNumber, ErrUnknownVaccineCode, d.VaccineCode)
		}
		entries = append(entries, model.ScheduleEntry{
			VaccineID:       id,
			VaccineCode:     d.VaccineCode,
			AgeRange:        d.AgeRange,
			DoseNumber:      d.DoseNumber,
			CatchUpEligible: d.CatchUpEligible,
		})
	}
	return entries, nil
}
