package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vaxsync/vaxsync-backend/internal/compliance"
	"github.com/vaxsync/vaxsync-backend/internal/model"
)

var (
	// ErrInvalidArgument marks configuration or seeding arguments rejected
	// before any work starts.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDerivationRunning is returned when another pass holds the lock.
	ErrDerivationRunning = errors.New("derivation already running")
)

// CatalogSource reads the schedule catalog joined with vaccine codes.
type CatalogSource interface {
	ListScheduleWithCodes(ctx context.Context) ([]model.ScheduleEntry, error)
}

// StudentStore reads birth dates and writes the cached compliance flag.
type StudentStore interface {
	ListBirthDates(ctx context.Context) ([]model.StudentBirth, error)
	ListBirthDatesByIDs(ctx context.Context, ids []uuid.UUID) ([]model.StudentBirth, error)
	UpdateComplianceBatch(ctx context.Context, updates []model.ComplianceUpdate) error
}

// DoseSource reads administered dose presence keys.
type DoseSource interface {
	ListDoseKeys(ctx context.Context) ([]model.DoseKey, error)
	ListDoseKeysForStudents(ctx context.Context, ids []uuid.UUID) ([]model.DoseKey, error)
}

// RequiredDoseStore is the sink for derived rows plus the seed guard.
type RequiredDoseStore interface {
	AnyExists(ctx context.Context) (bool, error)
	InsertBatch(ctx context.Context, records []model.RequiredDose) (int64, error)
	DeleteAll(ctx context.Context) error
	DeleteForStudents(ctx context.Context, ids []uuid.UUID) error
}

// ProgressPublisher receives derivation progress events.
type ProgressPublisher interface {
	Publish(ctx context.Context, event model.DerivationEvent) error
}

// Locker serializes derivation passes across processes. The returned
// release func must be called once the pass ends.
type Locker interface {
	TryLock(ctx context.Context) (release func(), ok bool, err error)
}

// SummaryInvalidator drops cached compliance summaries.
type SummaryInvalidator interface {
	InvalidateSummaries(ctx context.Context) error
}

// DerivationStores bundles the collaborators of a DerivationService.
// Publisher, Locker and Invalidator are optional.
type DerivationStores struct {
	Catalog     CatalogSource
	Students    StudentStore
	Doses       DoseSource
	Required    RequiredDoseStore
	Publisher   ProgressPublisher
	Locker      Locker
	Invalidator SummaryInvalidator
}

// DerivationOptions tunes a DerivationService.
type DerivationOptions struct {
	BatchSize  int
	ChunkSize  int
	JitterDays int
	// Seed fixes the jitter sequence of every pass. Zero seeds from the clock.
	Seed int64
	// Overrides defaults to compliance.DefaultDueMonthOverrides.
	Overrides map[string]map[int]int
	Now       func() time.Time
}

// RunOptions controls a full derivation pass.
type RunOptions struct {
	// Force clears all derived rows and recomputes even if the guard says
	// the population was already derived.
	Force bool
}

// RunResult summarizes a derivation pass.
type RunResult struct {
	RunID        string        `json:"run_id"`
	Skipped      bool          `json:"skipped"`
	Students     int           `json:"students"`
	Records      int64         `json:"records"`
	Batches      int           `json:"batches"`
	NonCompliant int           `json:"non_compliant"`
	Duration     time.Duration `json:"duration"`
}

// DerivationService drives the compliance engine over the stored population
// in bounded batches. Passes are sequential: a single writer per pass.
type DerivationService struct {
	stores DerivationStores
	opts   DerivationOptions
	log    zerolog.Logger
}

// NewDerivationService validates opts and builds the service.
func NewDerivationService(stores DerivationStores, opts DerivationOptions, log zerolog.Logger) (*DerivationService, error) {
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidArgument, opts.BatchSize)
	}
	if opts.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidArgument, opts.ChunkSize)
	}
	if opts.JitterDays < 0 {
		return nil, fmt.Errorf("%w: jitter days must not be negative, got %d", ErrInvalidArgument, opts.JitterDays)
	}
	if stores.Catalog == nil || stores.Students == nil || stores.Doses == nil || stores.Required == nil {
		return nil, fmt.Errorf("%w: catalog, student, dose and required-dose stores are required", ErrInvalidArgument)
	}
	if opts.Overrides == nil {
		opts.Overrides = compliance.DefaultDueMonthOverrides
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &DerivationService{
		stores: stores,
		opts:   opts,
		log:    log.With().Str("component", "derivation").Logger(),
	}, nil
}

// Run derives required doses and compliance flags for the whole population.
// Without Force, an existing required-dose row short-circuits the pass.
func (s *DerivationService) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	p := s.newPass(model.DerivationScopeAll)

	release, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if !opts.Force {
		exists, err := s.stores.Required.AnyExists(ctx)
		if err != nil {
			return nil, s.fail(ctx, p, fmt.Errorf("check derivation guard: %w", err))
		}
		if exists {
			s.log.Info().Str("run_id", p.id).Msg("Required doses already derived, skipping")
			s.publish(ctx, p.event(model.DerivationSkipped))
			return &RunResult{RunID: p.id, Skipped: true}, nil
		}
	}

	s.publish(ctx, p.event(model.DerivationStarted))

	if opts.Force {
		if err := s.stores.Required.DeleteAll(ctx); err != nil {
			return nil, s.fail(ctx, p, fmt.Errorf("clear required doses: %w", err))
		}
	}

	catalog, err := s.stores.Catalog.ListScheduleWithCodes(ctx)
	if err != nil {
		return nil, s.fail(ctx, p, fmt.Errorf("load schedule catalog: %w", err))
	}
	students, err := s.stores.Students.ListBirthDates(ctx)
	if err != nil {
		return nil, s.fail(ctx, p, fmt.Errorf("load students: %w", err))
	}
	doses, err := s.stores.Doses.ListDoseKeys(ctx)
	if err != nil {
		return nil, s.fail(ctx, p, fmt.Errorf("load administered doses: %w", err))
	}

	return s.derive(ctx, p, catalog, students, doses)
}

// RecomputeStudents drops and recomputes the derived rows and compliance
// flags of the given students only. Unknown IDs are ignored.
func (s *DerivationService) RecomputeStudents(ctx context.Context, ids []uuid.UUID) (*RunResult, error) {
	ids = uniqueIDs(ids)
	p := s.newPass(model.DerivationScopeStudents)
	if len(ids) == 0 {
		return &RunResult{RunID: p.id}, nil
	}

	release, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	s.publish(ctx, p.event(model.DerivationStarted))

	catalog, err := s.stores.Catalog.ListScheduleWithCodes(ctx)
	if err != nil {
		return nil, s.fail(ctx, p, fmt.Errorf("load schedule catalog: %w", err))
	}
	students, err := s.stores.Students.ListBirthDatesByIDs(ctx, ids)
	if err != nil {
		return nil, s.fail(ctx, p, fmt.Errorf("load students: %w", err))
	}
	doses, err := s.stores.Doses.ListDoseKeysForStudents(ctx, ids)
	if err != nil {
		return nil, s.fail(ctx, p, fmt.Errorf("load administered doses: %w", err))
	}
	if err := s.stores.Required.DeleteForStudents(ctx, ids); err != nil {
		return nil, s.fail(ctx, p, fmt.Errorf("clear required doses: %w", err))
	}

	return s.derive(ctx, p, catalog, students, doses)
}

// derive streams the cross product into the sink in batches, then writes
// the compliance flags in chunks.
func (s *DerivationService) derive(
	ctx context.Context,
	p *pass,
	catalog []model.ScheduleEntry,
	students []model.StudentBirth,
	doses []model.DoseKey,
) (*RunResult, error) {
	deriver := compliance.NewDeriver(s.newResolver(), s.opts.Now)
	received := compliance.BuildReceivedSets(doses)
	overdue := make(map[uuid.UUID]bool)

	p.students = len(students)
	buf := make([]model.RequiredDose, 0, s.opts.BatchSize+len(catalog))

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		n, err := s.stores.Required.InsertBatch(ctx, buf)
		if err != nil {
			return fmt.Errorf("insert batch %d: %w", p.batches+1, err)
		}
		p.records += n
		p.batches++
		buf = buf[:0]

		s.log.Debug().
			Str("run_id", p.id).
			Int("batch", p.batches).
			Int64("records", p.records).
			Msg("Flushed required-dose batch")
		s.publish(ctx, p.event(model.DerivationBatchFlushed))
		return nil
	}

	for _, st := range students {
		var hasOverdue bool
		buf, hasOverdue = deriver.AppendStudent(buf, st, catalog, received[st.ID])
		if hasOverdue {
			overdue[st.ID] = true
		}
		if len(buf) >= s.opts.BatchSize {
			if err := flush(); err != nil {
				return nil, s.fail(ctx, p, err)
			}
		}
	}
	if err := flush(); err != nil {
		return nil, s.fail(ctx, p, err)
	}

	updates := compliance.Aggregate(students, overdue)
	for start := 0; start < len(updates); start += s.opts.ChunkSize {
		end := min(start+s.opts.ChunkSize, len(updates))
		if err := s.stores.Students.UpdateComplianceBatch(ctx, updates[start:end]); err != nil {
			return nil, s.fail(ctx, p, fmt.Errorf("update compliance flags: %w", err))
		}
	}
	p.nonCompliant = len(overdue)

	if s.stores.Invalidator != nil {
		if err := s.stores.Invalidator.InvalidateSummaries(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Failed to invalidate compliance summaries")
		}
	}

	done := p.event(model.DerivationCompleted)
	s.publish(ctx, done)
	s.log.Info().
		Str("run_id", p.id).
		Str("scope", string(p.scope)).
		Int("students", p.students).
		Int64("records", p.records).
		Int("batches", p.batches).
		Int("non_compliant", p.nonCompliant).
		Dur("duration", p.elapsed()).
		Msg("Derivation pass completed")

	return &RunResult{
		RunID:        p.id,
		Students:     p.students,
		Records:      p.records,
		Batches:      p.batches,
		NonCompliant: p.nonCompliant,
		Duration:     p.elapsed(),
	}, nil
}

func (s *DerivationService) newResolver() *compliance.Resolver {
	var rng *rand.Rand
	if s.opts.JitterDays > 0 {
		seed := s.opts.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng = rand.New(rand.NewSource(seed))
	}
	return compliance.NewResolver(s.opts.Overrides, rng, s.opts.JitterDays)
}

func (s *DerivationService) lock(ctx context.Context) (func(), error) {
	if s.stores.Locker == nil {
		return func() {}, nil
	}
	release, ok, err := s.stores.Locker.TryLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire derivation lock: %w", err)
	}
	if !ok {
		return nil, ErrDerivationRunning
	}
	return release, nil
}

func (s *DerivationService) fail(ctx context.Context, p *pass, err error) error {
	ev := p.event(model.DerivationFailed)
	ev.Error = err.Error()
	s.publish(ctx, ev)
	s.log.Error().Err(err).Str("run_id", p.id).Msg("Derivation pass aborted")
	return err
}

func (s *DerivationService) publish(ctx context.Context, ev model.DerivationEvent) {
	if s.stores.Publisher == nil {
		return
	}
	if err := s.stores.Publisher.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event", string(ev.Type)).Msg("Failed to publish derivation event")
	}
}

// pass carries the running counters of one derivation pass.
type pass struct {
	id           string
	scope        model.DerivationScope
	started      time.Time
	students     int
	records      int64
	batches      int
	nonCompliant int
}

func (s *DerivationService) newPass(scope model.DerivationScope) *pass {
	return &pass{id: uuid.NewString(), scope: scope, started: time.Now()}
}

func (p *pass) elapsed() time.Duration {
	return time.Since(p.started)
}

func (p *pass) event(t model.DerivationEventType) model.DerivationEvent {
	ev := model.DerivationEvent{
		Type:         t,
		RunID:        p.id,
		Scope:        p.scope,
		Students:     p.students,
		Records:      p.records,
		Batches:      p.batches,
		NonCompliant: p.nonCompliant,
		Timestamp:    time.Now().UTC(),
	}
	if t == model.DerivationCompleted || t == model.DerivationFailed {
		ev.DurationMS = p.elapsed().Milliseconds()
	}
	return ev
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
