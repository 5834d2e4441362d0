package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vaxsync/vaxsync-backend/internal/model"
)

// ─── Mocks ─────────────────────────────────────────────────────────────────

type mockCatalog struct {
	entries []model.ScheduleEntry
	err     error
}

func (m *mockCatalog) ListScheduleWithCodes(context.Context) ([]model.ScheduleEntry, error) {
	return m.entries, m.err
}

type mockStudents struct {
	births     []model.StudentBirth
	flags      map[uuid.UUID]bool
	chunkSizes []int
}

func newMockStudents(births ...model.StudentBirth) *mockStudents {
	return &mockStudents{births: births, flags: make(map[uuid.UUID]bool)}
}

func (m *mockStudents) ListBirthDates(context.Context) ([]model.StudentBirth, error) {
	return m.births, nil
}

func (m *mockStudents) ListBirthDatesByIDs(_ context.Context, ids []uuid.UUID) ([]model.StudentBirth, error) {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.StudentBirth
	for _, b := range m.births {
		if want[b.ID] {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *mockStudents) UpdateComplianceBatch(_ context.Context, updates []model.ComplianceUpdate) error {
	m.chunkSizes = append(m.chunkSizes, len(updates))
	for _, u := range updates {
		m.flags[u.StudentID] = u.IsCompliant
	}
	return nil
}

type mockDoses struct {
	keys []model.DoseKey
}

func (m *mockDoses) ListDoseKeys(context.Context) ([]model.DoseKey, error) {
	return m.keys, nil
}

func (m *mockDoses) ListDoseKeysForStudents(_ context.Context, ids []uuid.UUID) ([]model.DoseKey, error) {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.DoseKey
	for _, k := range m.keys {
		if want[k.StudentID] {
			out = append(out, k)
		}
	}
	return out, nil
}

type mockRequired struct {
	rows        []model.RequiredDose
	batchSizes  []int
	deleteAll   int
	failOnBatch int
}

func (m *mockRequired) AnyExists(context.Context) (bool, error) {
	return len(m.rows) > 0, nil
}

func (m *mockRequired) InsertBatch(_ context.Context, records []model.RequiredDose) (int64, error) {
	if m.failOnBatch > 0 && len(m.batchSizes)+1 == m.failOnBatch {
		return 0, errors.New("unique violation")
	}
	m.batchSizes = append(m.batchSizes, len(records))
	// The driver reuses its buffer, so keep a copy.
	m.rows = append(m.rows, append([]model.RequiredDose(nil), records...)...)
	return int64(len(records)), nil
}

func (m *mockRequired) DeleteAll(context.Context) error {
	m.deleteAll++
	m.rows = nil
	return nil
}

func (m *mockRequired) DeleteForStudents(_ context.Context, ids []uuid.UUID) error {
	drop := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.rows[:0]
	for _, rd := range m.rows {
		if !drop[rd.StudentID] {
			kept = append(kept, rd)
		}
	}
	m.rows = kept
	return nil
}

func (m *mockRequired) rowsFor(id uuid.UUID) []model.RequiredDose {
	var out []model.RequiredDose
	for _, rd := range m.rows {
		if rd.StudentID == id {
			out = append(out, rd)
		}
	}
	return out
}

type mockPublisher struct {
	mu     sync.Mutex
	events []model.DerivationEvent
}

func (m *mockPublisher) Publish(_ context.Context, ev model.DerivationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *mockPublisher) types() []model.DerivationEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.DerivationEventType, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.Type
	}
	return out
}

type mockLocker struct {
	held     bool
	released int
}

func (m *mockLocker) TryLock(context.Context) (func(), bool, error) {
	if m.held {
		return nil, false, nil
	}
	m.held = true
	return func() { m.held = false; m.released++ }, true, nil
}

type mockInvalidator struct{ calls int }

func (m *mockInvalidator) InvalidateSummaries(context.Context) error {
	m.calls++
	return nil
}

// ─── Fixtures ──────────────────────────────────────────────────────────────

var testCatalog = []model.ScheduleEntry{
	{ID: 1, VaccineID: 10, VaccineCode: "MMR", AgeRange: "12–15 months", DoseNumber: 1},
	{ID: 2, VaccineID: 10, VaccineCode: "MMR", AgeRange: "4–6 years", DoseNumber: 2},
}

func testNow() time.Time {
	return time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
}

func births(n int, dob time.Time) []model.StudentBirth {
	out := make([]model.StudentBirth, n)
	for i := range out {
		out[i] = model.StudentBirth{ID: uuid.New(), DateOfBirth: dob.AddDate(0, 0, i)}
	}
	return out
}

type fixture struct {
	catalog  *mockCatalog
	students *mockStudents
	doses    *mockDoses
	required *mockRequired
	pub      *mockPublisher
	locker   *mockLocker
	inval    *mockInvalidator
}

func newFixture(students ...model.StudentBirth) *fixture {
	return &fixture{
		catalog:  &mockCatalog{entries: testCatalog},
		students: newMockStudents(students...),
		doses:    &mockDoses{},
		required: &mockRequired{},
		pub:      &mockPublisher{},
		locker:   &mockLocker{},
		inval:    &mockInvalidator{},
	}
}

func (f *fixture) service(t *testing.T, opts DerivationOptions) *DerivationService {
	t.Helper()
	if opts.BatchSize == 0 {
		opts.BatchSize = 1000
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = 1000
	}
	if opts.Now == nil {
		opts.Now = testNow
	}
	svc, err := NewDerivationService(DerivationStores{
		Catalog:     f.catalog,
		Students:    f.students,
		Doses:       f.doses,
		Required:    f.required,
		Publisher:   f.pub,
		Locker:      f.locker,
		Invalidator: f.inval,
	}, opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewDerivationService: %v", err)
	}
	return svc
}

// ─── Tests ─────────────────────────────────────────────────────────────────

func TestNewDerivationService_RejectsInvalidOptions(t *testing.T) {
	f := newFixture()
	stores := DerivationStores{Catalog: f.catalog, Students: f.students, Doses: f.doses, Required: f.required}

	tests := []struct {
		name   string
		stores DerivationStores
		opts   DerivationOptions
	}{
		{"zero batch", stores, DerivationOptions{BatchSize: 0, ChunkSize: 1}},
		{"negative batch", stores, DerivationOptions{BatchSize: -1, ChunkSize: 1}},
		{"zero chunk", stores, DerivationOptions{BatchSize: 1, ChunkSize: 0}},
		{"negative jitter", stores, DerivationOptions{BatchSize: 1, ChunkSize: 1, JitterDays: -1}},
		{"missing sink", DerivationStores{Catalog: f.catalog, Students: f.students, Doses: f.doses}, DerivationOptions{BatchSize: 1, ChunkSize: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDerivationService(tt.stores, tt.opts, zerolog.Nop()); !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestRun_GuardSkipsSecondPass(t *testing.T) {
	f := newFixture(births(3, time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC))...)
	svc := f.service(t, DerivationOptions{})
	ctx := context.Background()

	first, err := svc.Run(ctx, RunOptions{})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Skipped || first.Records != 6 {
		t.Fatalf("first = %+v", first)
	}

	second, err := svc.Run(ctx, RunOptions{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !second.Skipped {
		t.Error("second pass should be skipped")
	}
	if len(f.required.rows) != 6 || len(f.required.batchSizes) != 1 {
		t.Errorf("second pass wrote rows: %d rows, %d batches", len(f.required.rows), len(f.required.batchSizes))
	}
	if got := f.pub.types(); got[len(got)-1] != model.DerivationSkipped {
		t.Errorf("last event = %s, want skipped", got[len(got)-1])
	}
}

func TestRun_ForceReplacesDerivedRows(t *testing.T) {
	f := newFixture(births(2, time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC))...)
	svc := f.service(t, DerivationOptions{})
	ctx := context.Background()

	if _, err := svc.Run(ctx, RunOptions{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	res, err := svc.Run(ctx, RunOptions{Force: true})
	if err != nil {
		t.Fatalf("forced Run: %v", err)
	}
	if res.Skipped {
		t.Fatal("forced pass must not be skipped")
	}
	if f.required.deleteAll != 1 {
		t.Errorf("DeleteAll calls = %d", f.required.deleteAll)
	}
	if len(f.required.rows) != 4 {
		t.Errorf("rows = %d, want 4 (no duplicates)", len(f.required.rows))
	}
}

func TestRun_FlushesInBatchesAndChunksFlags(t *testing.T) {
	f := newFixture(births(5, time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC))...)
	svc := f.service(t, DerivationOptions{BatchSize: 3, ChunkSize: 2})

	res, err := svc.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Records != 10 || res.Batches != 3 {
		t.Errorf("result = %+v, want 10 records in 3 batches", res)
	}
	for i, n := range f.required.batchSizes {
		if n > 3+len(testCatalog)-1 {
			t.Errorf("batch %d has %d records", i, n)
		}
	}
	if want := []int{2, 2, 1}; !equalInts(f.students.chunkSizes, want) {
		t.Errorf("chunk sizes = %v, want %v", f.students.chunkSizes, want)
	}

	types := f.pub.types()
	if types[0] != model.DerivationStarted || types[len(types)-1] != model.DerivationCompleted {
		t.Errorf("events = %v", types)
	}
	flushed := 0
	for _, ty := range types {
		if ty == model.DerivationBatchFlushed {
			flushed++
		}
	}
	if flushed != 3 {
		t.Errorf("batch_flushed events = %d, want 3", flushed)
	}
	if f.inval.calls != 1 {
		t.Errorf("invalidations = %d", f.inval.calls)
	}
	if f.locker.released != 1 || f.locker.held {
		t.Error("lock was not released")
	}
}

func TestRun_ComplianceScenario(t *testing.T) {
	students := births(3, time.Date(2011, 3, 1, 0, 0, 0, 0, time.UTC))
	f := newFixture(students...)
	f.catalog.entries = testCatalog[:1]
	svc := f.service(t, DerivationOptions{})
	ctx := context.Background()

	res, err := svc.Run(ctx, RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.NonCompliant != 3 {
		t.Errorf("NonCompliant = %d, want 3", res.NonCompliant)
	}
	for _, s := range students {
		if f.students.flags[s.ID] {
			t.Errorf("student %s should be non-compliant", s.ID)
		}
	}

	f.doses.keys = []model.DoseKey{{StudentID: students[0].ID, VaccineID: 10, DoseNumber: 1}}
	if _, err := svc.RecomputeStudents(ctx, []uuid.UUID{students[0].ID}); err != nil {
		t.Fatalf("RecomputeStudents: %v", err)
	}

	if !f.students.flags[students[0].ID] {
		t.Error("student 0 should now be compliant")
	}
	for _, s := range students[1:] {
		if f.students.flags[s.ID] {
			t.Errorf("student %s flipped unexpectedly", s.ID)
		}
	}
	rows := f.required.rowsFor(students[0].ID)
	if len(rows) != 1 || !rows[0].Completed {
		t.Errorf("student 0 rows = %+v", rows)
	}
	if len(f.required.rows) != 3 {
		t.Errorf("total rows = %d, want 3", len(f.required.rows))
	}
}

func TestRun_EmptyCatalogIsCompliant(t *testing.T) {
	students := births(2, time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC))
	f := newFixture(students...)
	f.catalog.entries = nil
	svc := f.service(t, DerivationOptions{})

	res, err := svc.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Records != 0 || res.Batches != 0 {
		t.Errorf("result = %+v", res)
	}
	for _, s := range students {
		if !f.students.flags[s.ID] {
			t.Errorf("student %s should be vacuously compliant", s.ID)
		}
	}
}

func TestRun_BatchFailureAbortsPass(t *testing.T) {
	f := newFixture(births(4, time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC))...)
	f.required.failOnBatch = 2
	svc := f.service(t, DerivationOptions{BatchSize: 2})

	if _, err := svc.Run(context.Background(), RunOptions{}); err == nil {
		t.Fatal("expected error")
	}
	if len(f.students.chunkSizes) != 0 {
		t.Error("compliance flags must not be written after a failed batch")
	}
	types := f.pub.types()
	if types[len(types)-1] != model.DerivationFailed {
		t.Errorf("last event = %s, want failed", types[len(types)-1])
	}
	if f.pub.events[len(f.pub.events)-1].Error == "" {
		t.Error("failed event should carry the error")
	}
	if f.inval.calls != 0 {
		t.Error("summaries invalidated after a failed pass")
	}
	if f.locker.held {
		t.Error("lock was not released")
	}
}

func TestRun_CatalogErrorPropagates(t *testing.T) {
	f := newFixture(births(1, time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC))...)
	boom := errors.New("connection reset")
	f.catalog.err = boom
	svc := f.service(t, DerivationOptions{})

	if _, err := svc.Run(context.Background(), RunOptions{}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}

func TestRun_LockHeldElsewhere(t *testing.T) {
	f := newFixture()
	f.locker.held = true
	svc := f.service(t, DerivationOptions{})

	if _, err := svc.Run(context.Background(), RunOptions{}); !errors.Is(err, ErrDerivationRunning) {
		t.Errorf("err = %v, want ErrDerivationRunning", err)
	}
	if _, err := svc.RecomputeStudents(context.Background(), []uuid.UUID{uuid.New()}); !errors.Is(err, ErrDerivationRunning) {
		t.Errorf("err = %v, want ErrDerivationRunning", err)
	}
}

func TestRecomputeStudents_DedupesAndIgnoresEmpty(t *testing.T) {
	students := births(2, time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC))
	f := newFixture(students...)
	svc := f.service(t, DerivationOptions{})
	ctx := context.Background()

	res, err := svc.RecomputeStudents(ctx, nil)
	if err != nil || res.Students != 0 || len(f.pub.events) != 0 {
		t.Fatalf("empty recompute: res=%+v err=%v events=%d", res, err, len(f.pub.events))
	}

	res, err = svc.RecomputeStudents(ctx, []uuid.UUID{students[1].ID, students[1].ID, uuid.Nil})
	if err != nil {
		t.Fatalf("RecomputeStudents: %v", err)
	}
	if res.Students != 1 || res.Records != int64(len(testCatalog)) {
		t.Errorf("result = %+v", res)
	}
	if len(f.required.rowsFor(students[0].ID)) != 0 {
		t.Error("untouched student gained rows")
	}
}

func TestRun_SeededJitterIsReproducible(t *testing.T) {
	students := births(5, time.Date(2015, 5, 5, 0, 0, 0, 0, time.UTC))

	run := func() []model.RequiredDose {
		f := newFixture(students...)
		svc := f.service(t, DerivationOptions{JitterDays: 15, Seed: 7})
		if _, err := svc.Run(context.Background(), RunOptions{}); err != nil {
			t.Fatalf("Run: %v", err)
		}
		return f.required.rows
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("len %d != %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].DueDate.Equal(b[i].DueDate) {
			t.Fatalf("row %d: %s != %s", i, a[i].DueDate, b[i].DueDate)
		}
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
