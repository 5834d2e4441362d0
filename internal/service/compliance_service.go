package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vaxsync/vaxsync-backend/internal/compliance"
	"github.com/vaxsync/vaxsync-backend/internal/config"
	"github.com/vaxsync/vaxsync-backend/internal/model"
	"github.com/vaxsync/vaxsync-backend/internal/repository"
	"github.com/vaxsync/vaxsync-backend/internal/response"
)

// ComplianceReader is the read side used for compliance reporting.
type ComplianceReader interface {
	GetStudent(ctx context.Context, id uuid.UUID) (*model.Student, error)
	GetSchool(ctx context.Context, id uuid.UUID) (*model.School, error)
	CountBySchool(ctx context.Context, schoolID uuid.UUID) (total, compliant int, err error)
	ListDoses(ctx context.Context, studentID uuid.UUID) ([]model.AdministeredDose, error)
	ListRequired(ctx context.Context, studentID uuid.UUID) ([]model.RequiredDoseView, error)
	ListPendingBySchool(ctx context.Context, schoolID uuid.UUID, from *time.Time, to time.Time, limit, offset int) ([]model.RequiredDoseView, int, error)
	CountPendingBySchool(ctx context.Context, schoolID uuid.UUID, today, imminentUntil time.Time) (overdue, imminent int, err error)
}

// SummaryCache stores serialized school summaries.
type SummaryCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePattern(ctx context.Context, pattern string) (int, error)
}

// ComplianceService answers compliance questions about schools and students.
// Overdue and Imminent are evaluated at read time; the per-student flag is
// the cache written by derivation passes.
type ComplianceService struct {
	reader ComplianceReader
	cache  SummaryCache
	ttl    time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

// NewComplianceService creates a ComplianceService. A nil cache disables
// summary caching.
func NewComplianceService(reader ComplianceReader, cache SummaryCache, ttl time.Duration, log zerolog.Logger) *ComplianceService {
	return &ComplianceService{
		reader: reader,
		cache:  cache,
		ttl:    ttl,
		now:    time.Now,
		log:    log.With().Str("component", "compliance_service").Logger(),
	}
}

func (s *ComplianceService) today() time.Time {
	return compliance.Today(s.now())
}

// SchoolSummary returns the compliance counters of a school.
func (s *ComplianceService) SchoolSummary(ctx context.Context, schoolID uuid.UUID) (*model.ComplianceSummary, error) {
	key := config.CacheKey.SchoolSummaryKey(schoolID)
	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Msg("Summary cache read failed")
		} else if ok {
			var cached model.ComplianceSummary
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	if _, err := s.reader.GetSchool(ctx, schoolID); err != nil {
		return nil, err
	}
	total, compliant, err := s.reader.CountBySchool(ctx, schoolID)
	if err != nil {
		return nil, fmt.Errorf("count students: %w", err)
	}
	today := s.today()
	overdue, imminent, err := s.reader.CountPendingBySchool(ctx, schoolID, today, today.AddDate(0, 0, compliance.ImminentWindowDays))
	if err != nil {
		return nil, fmt.Errorf("count pending doses: %w", err)
	}

	summary := &model.ComplianceSummary{
		SchoolID:      schoolID,
		TotalStudents: total,
		Compliant:     compliant,
		NonCompliant:  total - compliant,
		OverdueDoses:  overdue,
		ImminentDoses: imminent,
	}

	if s.cache != nil {
		if raw, err := json.Marshal(summary); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
				s.log.Warn().Err(err).Msg("Summary cache write failed")
			}
		}
	}
	return summary, nil
}

// InvalidateSummaries drops every cached school summary.
func (s *ComplianceService) InvalidateSummaries(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	n, err := s.cache.DeletePattern(ctx, config.CacheKey.SchoolSummaryPattern())
	if err != nil {
		return err
	}
	s.log.Debug().Int("keys", n).Msg("Compliance summaries invalidated")
	return nil
}

// Overdue lists a school's incomplete doses whose due date has passed.
func (s *ComplianceService) Overdue(ctx context.Context, schoolID uuid.UUID, page, perPage int) ([]model.RequiredDoseView, *response.Pagination, error) {
	return s.pending(ctx, schoolID, nil, s.today(), page, perPage)
}

// Imminent lists a school's incomplete doses due within the imminent window.
func (s *ComplianceService) Imminent(ctx context.Context, schoolID uuid.UUID, page, perPage int) ([]model.RequiredDoseView, *response.Pagination, error) {
	today := s.today()
	return s.pending(ctx, schoolID, &today, today.AddDate(0, 0, compliance.ImminentWindowDays+1), page, perPage)
}

func (s *ComplianceService) pending(ctx context.Context, schoolID uuid.UUID, from *time.Time, to time.Time, page, perPage int) ([]model.RequiredDoseView, *response.Pagination, error) {
	page, perPage = normalizePage(page, perPage)
	views, total, err := s.reader.ListPendingBySchool(ctx, schoolID, from, to, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	s.decorate(views)
	return views, response.NewPagination(page, perPage, total), nil
}

// StudentReport assembles the vaccination report of one student.
func (s *ComplianceService) StudentReport(ctx context.Context, scope *uuid.UUID, studentID uuid.UUID) (*model.StudentReport, error) {
	student, err := s.reader.GetStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if err := checkScope(scope, student.SchoolID); err != nil {
		return nil, err
	}

	report := &model.StudentReport{Student: *student, CachedCompliant: student.IsCompliant}

	school, err := s.reader.GetSchool(ctx, student.SchoolID)
	if err != nil {
		return nil, fmt.Errorf("load school: %w", err)
	}
	report.SchoolName = school.Name

	if report.AdministeredDoses, err = s.reader.ListDoses(ctx, studentID); err != nil {
		return nil, fmt.Errorf("load doses: %w", err)
	}
	if report.RequiredDoses, err = s.reader.ListRequired(ctx, studentID); err != nil {
		return nil, fmt.Errorf("load required doses: %w", err)
	}
	s.decorate(report.RequiredDoses)

	records := make([]model.RequiredDose, len(report.RequiredDoses))
	for i, v := range report.RequiredDoses {
		records[i] = v.RequiredDose
	}
	report.Compliant = compliance.IsCompliant(records, s.today())

	if report.Compliant != report.CachedCompliant {
		s.log.Debug().Str("student_id", studentID.String()).Msg("Cached compliance flag is stale")
	}
	return report, nil
}

func (s *ComplianceService) decorate(views []model.RequiredDoseView) {
	today := s.today()
	for i := range views {
		views[i].Overdue = compliance.IsOverdue(views[i].RequiredDose, today)
		views[i].Imminent = compliance.IsImminent(views[i].RequiredDose, today)
	}
}

// ----------------------------------------------------------------
// Repository-backed reader
// ----------------------------------------------------------------

type repoComplianceReader struct {
	students *repository.StudentRepository
	schools  *repository.SchoolRepository
	doses    *repository.DoseRepository
	required *repository.RequiredDoseRepository
}

// NewComplianceReader adapts the repositories to ComplianceReader.
func NewComplianceReader(
	students *repository.StudentRepository,
	schools *repository.SchoolRepository,
	doses *repository.DoseRepository,
	required *repository.RequiredDoseRepository,
) ComplianceReader {
	return &repoComplianceReader{students: students, schools: schools, doses: doses, required: required}
}

func (r *repoComplianceReader) GetStudent(ctx context.Context, id uuid.UUID) (*model.Student, error) {
	return r.students.GetByID(ctx, id)
}

func (r *repoComplianceReader) GetSchool(ctx context.Context, id uuid.UUID) (*model.School, error) {
	return r.schools.GetByID(ctx, id)
}

func (r *repoComplianceReader) CountBySchool(ctx context.Context, schoolID uuid.UUID) (int, int, error) {
	return r.students.CountBySchool(ctx, schoolID)
}

func (r *repoComplianceReader) ListDoses(ctx context.Context, studentID uuid.UUID) ([]model.AdministeredDose, error) {
	return r.doses.ListByStudent(ctx, studentID)
}

func (r *repoComplianceReader) ListRequired(ctx context.Context, studentID uuid.UUID) ([]model.RequiredDoseView, error) {
	return r.required.ListByStudent(ctx, studentID)
}

func (r *repoComplianceReader) ListPendingBySchool(ctx context.Context, schoolID uuid.UUID, from *time.Time, to time.Time, limit, offset int) ([]model.RequiredDoseView, int, error) {
	return r.required.ListPendingBySchool(ctx, schoolID, from, to, limit, offset)
}

func (r *repoComplianceReader) CountPendingBySchool(ctx context.Context, schoolID uuid.UUID, today, imminentUntil time.Time) (int, int, error) {
	return r.required.CountPendingBySchool(ctx, schoolID, today, imminentUntil)
}

// ----------------------------------------------------------------
// Redis-backed summary cache
// ----------------------------------------------------------------

// RedisSummaryCache implements SummaryCache on Redis strings.
type RedisSummaryCache struct {
	rdb *redis.Client
}

// NewRedisSummaryCache creates a RedisSummaryCache.
func NewRedisSummaryCache(rdb *redis.Client) *RedisSummaryCache {
	return &RedisSummaryCache{rdb: rdb}
}

func (c *RedisSummaryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (c *RedisSummaryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// DeletePattern removes every key matching pattern using SCAN, pipelining
// the deletes.
func (c *RedisSummaryCache) DeletePattern(ctx context.Context, pattern string) (int, error) {
	pipe := c.rdb.Pipeline()
	n := 0
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return n, nil
}
