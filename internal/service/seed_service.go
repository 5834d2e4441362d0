package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vaxsync/vaxsync-backend/internal/compliance"
	"github.com/vaxsync/vaxsync-backend/internal/model"
	"github.com/vaxsync/vaxsync-backend/internal/repository"
)

const (
	// seededPercent of the target population counts as already seeded.
	seededPercent = 95

	doseGivenPercent   = 80
	dosePendingPercent = 5
	maxSeedAgeYears    = 18
)

var (
	seedFirstNames = []string{"Ava", "Liam", "Noah", "Emma", "Mia", "Lucas", "Zoe", "Ethan", "Isla", "Omar", "Priya", "Kenji"}
	seedLastNames  = []string{"Smith", "Garcia", "Nguyen", "Okafor", "Patel", "Kowalski", "Silva", "Haddad", "Kim", "Larsen"}
)

// PopulationStore is the bulk storage used by the population seeder.
type PopulationStore interface {
	CountStudents(ctx context.Context) (int, error)
	ListSchools(ctx context.Context) ([]model.School, error)
	ListSchedule(ctx context.Context) ([]model.ScheduleEntry, error)
	CopySchools(ctx context.Context, schools []model.School) (int64, error)
	CopyStudents(ctx context.Context, students []model.Student) (int64, error)
	CopyDoses(ctx context.Context, doses []model.AdministeredDose) (int64, error)
}

// CatalogSeeder ensures the reference catalog exists.
type CatalogSeeder interface {
	SeedCatalog(ctx context.Context) (*CatalogSeedResult, error)
}

// PopulationDeriver derives required doses after seeding.
type PopulationDeriver interface {
	Run(ctx context.Context, opts RunOptions) (*RunResult, error)
	RecomputeStudents(ctx context.Context, ids []uuid.UUID) (*RunResult, error)
}

// SeedOptions sizes a synthetic population.
type SeedOptions struct {
	Students  int
	Schools   int
	BatchSize int
	// Seed fixes the generator; 0 seeds from the clock.
	Seed int64
}

// SeedResult reports what SeedPopulation wrote.
type SeedResult struct {
	Skipped        bool       `json:"skipped"`
	SchoolsCreated int        `json:"schools_created"`
	Students       int64      `json:"students"`
	Doses          int64      `json:"doses"`
	Derivation     *RunResult `json:"derivation,omitempty"`
}

// SeedService fills the database with a synthetic student population for
// development and load testing.
type SeedService struct {
	store   PopulationStore
	catalog CatalogSeeder
	deriver PopulationDeriver
	now     func() time.Time
	log     zerolog.Logger
}

// NewSeedService creates a SeedService.
func NewSeedService(store PopulationStore, catalog CatalogSeeder, deriver PopulationDeriver, log zerolog.Logger) *SeedService {
	return &SeedService{
		store:   store,
		catalog: catalog,
		deriver: deriver,
		now:     time.Now,
		log:     log.With().Str("component", "seeder").Logger(),
	}
}

// SeedPopulation tops the population up to opts.Students, spread over
// opts.Schools schools, then runs a guarded derivation. It returns early
// when the population is already near the target.
func (s *SeedService) SeedPopulation(ctx context.Context, opts SeedOptions) (*SeedResult, error) {
	switch {
	case opts.Students <= 0:
		return nil, fmt.Errorf("%w: student count must be positive", ErrInvalidArgument)
	case opts.Schools <= 0:
		return nil, fmt.Errorf("%w: school count must be positive", ErrInvalidArgument)
	case opts.BatchSize <= 0:
		return nil, fmt.Errorf("%w: batch size must be positive", ErrInvalidArgument)
	}

	current, err := s.store.CountStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("count students: %w", err)
	}
	if current*100 >= opts.Students*seededPercent {
		s.log.Info().Int("students", current).Int("target", opts.Students).Msg("Population already seeded")
		return &SeedResult{Skipped: true}, nil
	}

	if _, err := s.catalog.SeedCatalog(ctx); err != nil {
		return nil, fmt.Errorf("seed catalog: %w", err)
	}
	schedule, err := s.store.ListSchedule(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}

	seed := opts.Seed
	if seed == 0 {
		seed = s.now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	result := &SeedResult{}

	schools, err := s.ensureSchools(ctx, opts.Schools, result)
	if err != nil {
		return nil, err
	}

	today := compliance.Today(s.now())
	remaining := opts.Students - current
	newIDs := make([]uuid.UUID, 0, remaining)
	students := make([]model.Student, 0, opts.BatchSize)
	var doses []model.AdministeredDose

	flush := func() error {
		if len(students) == 0 {
			return nil
		}
		n, err := s.store.CopyStudents(ctx, students)
		if err != nil {
			return fmt.Errorf("copy students: %w", err)
		}
		result.Students += n
		if len(doses) > 0 {
			n, err = s.store.CopyDoses(ctx, doses)
			if err != nil {
				return fmt.Errorf("copy doses: %w", err)
			}
			result.Doses += n
		}
		s.log.Debug().Int("students", len(students)).Int("doses", len(doses)).Msg("Seed batch written")
		students = students[:0]
		doses = doses[:0]
		return nil
	}

	for i := 0; i < remaining; i++ {
		st := randomStudent(rng, schools[(current+i)%len(schools)].ID, today)
		students = append(students, st)
		newIDs = append(newIDs, st.ID)
		doses = appendRandomDoses(doses, rng, st, schedule, today)

		if len(students) >= opts.BatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	s.log.Info().
		Int("schools_created", result.SchoolsCreated).
		Int64("students", result.Students).
		Int64("doses", result.Doses).
		Msg("Population seeded")

	run, err := s.deriver.Run(ctx, RunOptions{})
	if err != nil {
		return nil, fmt.Errorf("derive required doses: %w", err)
	}
	if run.Skipped {
		// Derived rows predate this seed; cover the new students only.
		if run, err = s.deriver.RecomputeStudents(ctx, newIDs); err != nil {
			return nil, fmt.Errorf("derive required doses: %w", err)
		}
	}
	result.Derivation = run
	return result, nil
}

// ensureSchools creates schools until want exist, skipping codes in use.
func (s *SeedService) ensureSchools(ctx context.Context, want int, result *SeedResult) ([]model.School, error) {
	schools, err := s.store.ListSchools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list schools: %w", err)
	}
	if len(schools) >= want {
		return schools, nil
	}

	taken := make(map[string]struct{}, len(schools))
	for _, sc := range schools {
		taken[sc.Code] = struct{}{}
	}
	created := make([]model.School, 0, want-len(schools))
	for n := 1; len(schools)+len(created) < want; n++ {
		code := fmt.Sprintf("SCH%03d", n)
		if _, ok := taken[code]; ok {
			continue
		}
		created = append(created, model.School{
			ID:   uuid.New(),
			Code: code,
			Name: fmt.Sprintf("Synthetic School %03d", n),
		})
	}
	if _, err := s.store.CopySchools(ctx, created); err != nil {
		return nil, fmt.Errorf("copy schools: %w", err)
	}
	result.SchoolsCreated = len(created)
	return append(schools, created...), nil
}

func randomStudent(rng *rand.Rand, schoolID uuid.UUID, today time.Time) model.Student {
	ageDays := rng.Intn(maxSeedAgeYears * 365)
	return model.Student{
		ID:          uuid.New(),
		SchoolID:    schoolID,
		FirstName:   seedFirstNames[rng.Intn(len(seedFirstNames))],
		LastName:    seedLastNames[rng.Intn(len(seedLastNames))],
		DateOfBirth: today.AddDate(0, 0, -ageDays),
		IsCompliant: true,
	}
}

// appendRandomDoses gives a student some of the doses whose age band has
// opened. A small share is recorded without a date.
func appendRandomDoses(doses []model.AdministeredDose, rng *rand.Rand, st model.Student, schedule []model.ScheduleEntry, today time.Time) []model.AdministeredDose {
	for _, e := range schedule {
		start, end := compliance.ParseAgeRange(e.AgeRange)
		given := st.DateOfBirth.AddDate(0, start, 0)
		if given.After(today) || rng.Intn(100) >= doseGivenPercent {
			continue
		}
		if span := (end - start) * 30; span > 0 {
			given = given.AddDate(0, 0, rng.Intn(span))
		}
		if given.After(today) {
			given = today
		}

		d := model.AdministeredDose{StudentID: st.ID, VaccineID: e.VaccineID, DoseNumber: e.DoseNumber}
		if rng.Intn(100) >= dosePendingPercent {
			g := given
			d.DateGiven = &g
		}
		doses = append(doses, d)
	}
	return doses
}

// ----------------------------------------------------------------
// Repository-backed population store
// ----------------------------------------------------------------

type repoPopulationStore struct {
	schools  *repository.SchoolRepository
	students *repository.StudentRepository
	doses    *repository.DoseRepository
	vaccines *repository.VaccineRepository
}

// NewPopulationStore adapts the repositories to PopulationStore.
func NewPopulationStore(
	schools *repository.SchoolRepository,
	students *repository.StudentRepository,
	doses *repository.DoseRepository,
	vaccines *repository.VaccineRepository,
) PopulationStore {
	return &repoPopulationStore{schools: schools, students: students, doses: doses, vaccines: vaccines}
}

func (r *repoPopulationStore) CountStudents(ctx context.Context) (int, error) {
	return r.students.Count(ctx)
}

func (r *repoPopulationStore) ListSchools(ctx context.Context) ([]model.School, error) {
	return r.schools.List(ctx)
}

func (r *repoPopulationStore) ListSchedule(ctx context.Context) ([]model.ScheduleEntry, error) {
	return r.vaccines.ListScheduleWithCodes(ctx)
}

func (r *repoPopulationStore) CopySchools(ctx context.Context, schools []model.School) (int64, error) {
	return r.schools.CopySchools(ctx, schools)
}

func (r *repoPopulationStore) CopyStudents(ctx context.Context, students []model.Student) (int64, error) {
	return r.students.CopyStudents(ctx, students)
}

func (r *repoPopulationStore) CopyDoses(ctx context.Context, doses []model.AdministeredDose) (int64, error) {
	return r.doses.CopyDoses(ctx, doses)
}
