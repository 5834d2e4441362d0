package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/vaxsync/vaxsync-backend/internal/compliance"
	"github.com/vaxsync/vaxsync-backend/internal/model"
	"github.com/vaxsync/vaxsync-backend/internal/repository"
)

// CatalogWriter is the storage used to seed reference data.
type CatalogWriter interface {
	HasSchedule(ctx context.Context) (bool, error)
	EnsureVaccine(ctx context.Context, v *model.Vaccine) error
	CodeIndex(ctx context.Context) (map[string]int, error)
	InsertScheduleEntry(ctx context.Context, e *model.ScheduleEntry) error
}

// CatalogSeedResult reports what SeedCatalog wrote.
type CatalogSeedResult struct {
	Skipped         bool `json:"skipped"`
	Vaccines        int  `json:"vaccines"`
	ScheduleEntries int  `json:"schedule_entries"`
}

// CatalogService manages vaccines and their dose schedules. Schedule edits
// invalidate every student's derived doses, so each one enqueues a full
// recompute.
type CatalogService struct {
	repo     *repository.VaccineRepository
	writer   CatalogWriter
	queue    RecomputeEnqueuer
	audit    AuditRecorder
	log      zerolog.Logger
	vaccines []model.Vaccine
	schedule []compliance.CatalogDose
}

// NewCatalogService creates a CatalogService seeding the default catalog.
func NewCatalogService(repo *repository.VaccineRepository, queue RecomputeEnqueuer, audit AuditRecorder, log zerolog.Logger) *CatalogService {
	s := newCatalogSeeder(repo, log)
	s.repo = repo
	s.queue = queue
	if audit != nil {
		s.audit = audit
	}
	return s
}

func newCatalogSeeder(writer CatalogWriter, log zerolog.Logger) *CatalogService {
	return &CatalogService{
		writer:   writer,
		audit:    nopAudit{},
		log:      log.With().Str("component", "catalog").Logger(),
		vaccines: compliance.DefaultVaccines,
		schedule: compliance.DefaultSchedule,
	}
}

// SeedCatalog writes the reference vaccines and their schedule into an
// empty catalog. Once any schedule entry is stored the catalog belongs to
// the admins and seeding is skipped, so their edits survive restarts.
//
// Required doses cascade from schedule entries, so an empty schedule means
// nothing is derived yet and the next guarded pass picks the seed up.
// A schedule entry naming a vaccine code that is not stored aborts the seed
// with compliance.ErrUnknownVaccineCode.
func (s *CatalogService) SeedCatalog(ctx context.Context) (*CatalogSeedResult, error) {
	seeded, err := s.writer.HasSchedule(ctx)
	if err != nil {
		return nil, fmt.Errorf("check schedule: %w", err)
	}
	if seeded {
		s.log.Debug().Msg("Vaccine catalog already present, seed skipped")
		return &CatalogSeedResult{Skipped: true}, nil
	}

	for i := range s.vaccines {
		v := s.vaccines[i]
		if err := s.writer.EnsureVaccine(ctx, &v); err != nil {
			return nil, fmt.Errorf("insert vaccine %s: %w", v.Code, err)
		}
	}

	index, err := s.writer.CodeIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vaccine codes: %w", err)
	}
	entries, err := compliance.ResolveSchedule(s.schedule, index)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if err := s.writer.InsertScheduleEntry(ctx, &entries[i]); err != nil {
			return nil, fmt.Errorf("insert schedule %s dose %d: %w", entries[i].VaccineCode, entries[i].DoseNumber, err)
		}
	}

	s.log.Info().
		Int("vaccines", len(s.vaccines)).
		Int("schedule_entries", len(entries)).
		Msg("Vaccine catalog seeded")
	return &CatalogSeedResult{Vaccines: len(s.vaccines), ScheduleEntries: len(entries)}, nil
}

// List returns every vaccine with its schedule.
func (s *CatalogService) List(ctx context.Context) ([]model.VaccineWithSchedule, error) {
	return s.repo.ListWithSchedules(ctx)
}

// CreateVaccine adds a vaccine without schedule entries.
func (s *CatalogService) CreateVaccine(ctx context.Context, actor string, v *model.Vaccine) error {
	if err := s.repo.Create(ctx, v); err != nil {
		return err
	}
	s.audit.Record(ctx, actor, fmt.Sprintf("created vaccine %s", v.Code))
	return nil
}

// DeleteVaccine removes a vaccine and its schedule.
func (s *CatalogService) DeleteVaccine(ctx context.Context, actor string, id int) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, actor, fmt.Sprintf("deleted vaccine %d", id))
	s.requestFullRecompute(ctx)
	return nil
}

// CreateScheduleEntry adds a dose to a vaccine's schedule.
func (s *CatalogService) CreateScheduleEntry(ctx context.Context, actor string, e *model.ScheduleEntry) error {
	if err := s.repo.CreateScheduleEntry(ctx, e); err != nil {
		return err
	}
	s.audit.Record(ctx, actor, fmt.Sprintf("added dose %d to vaccine %d schedule", e.DoseNumber, e.VaccineID))
	s.requestFullRecompute(ctx)
	return nil
}

// UpdateScheduleEntry edits a schedule entry.
func (s *CatalogService) UpdateScheduleEntry(ctx context.Context, actor string, e *model.ScheduleEntry) error {
	if err := s.repo.UpdateScheduleEntry(ctx, e); err != nil {
		return err
	}
	s.audit.Record(ctx, actor, fmt.Sprintf("updated schedule entry %d of vaccine %d", e.ID, e.VaccineID))
	s.requestFullRecompute(ctx)
	return nil
}

// DeleteScheduleEntry removes a schedule entry.
func (s *CatalogService) DeleteScheduleEntry(ctx context.Context, actor string, vaccineID, entryID int) error {
	if err := s.repo.DeleteScheduleEntry(ctx, vaccineID, entryID); err != nil {
		return err
	}
	s.audit.Record(ctx, actor, fmt.Sprintf("deleted schedule entry %d of vaccine %d", entryID, vaccineID))
	s.requestFullRecompute(ctx)
	return nil
}

func (s *CatalogService) requestFullRecompute(ctx context.Context) {
	if s.queue == nil {
		return
	}
	if err := s.queue.EnqueueAll(ctx); err != nil {
		s.log.Error().Err(err).Msg("Failed to enqueue full recompute")
	}
}
