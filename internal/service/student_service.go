package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vaxsync/vaxsync-backend/internal/model"
	"github.com/vaxsync/vaxsync-backend/internal/response"
)

// ErrOutsideScope is returned when a school-scoped caller touches a student
// of another school.
var ErrOutsideScope = errors.New("student belongs to another school")

// StudentRepo is the student storage used by StudentService.
type StudentRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Student, error)
	ListPaginated(ctx context.Context, filter model.StudentFilter, limit, offset int) ([]model.Student, int, error)
	Create(ctx context.Context, s *model.Student) error
	Update(ctx context.Context, s *model.Student) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// StudentService handles student business logic. Any change that can move
// a due date enqueues a recompute of the student; changes to a school's
// roll drop the cached summaries.
type StudentService struct {
	studentRepo StudentRepo
	queue       RecomputeEnqueuer
	summaries   SummaryInvalidator
	audit       AuditRecorder
	log         zerolog.Logger
}

// NewStudentService creates a new StudentService.
func NewStudentService(studentRepo StudentRepo, queue RecomputeEnqueuer, summaries SummaryInvalidator, audit AuditRecorder, log zerolog.Logger) *StudentService {
	return &StudentService{
		studentRepo: studentRepo,
		queue:       queue,
		summaries:   summaries,
		audit:       audit,
		log:         log.With().Str("component", "student_service").Logger(),
	}
}

// GetByID retrieves a student, enforcing the caller's school scope.
func (s *StudentService) GetByID(ctx context.Context, scope *uuid.UUID, id uuid.UUID) (*model.Student, error) {
	student, err := s.studentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkScope(scope, student.SchoolID); err != nil {
		return nil, err
	}
	return student, nil
}

// List retrieves students with pagination. A scoped caller only ever sees
// its own school regardless of the requested filter.
func (s *StudentService) List(ctx context.Context, scope *uuid.UUID, filter model.StudentFilter, page, perPage int) ([]model.Student, *response.Pagination, error) {
	page, perPage = normalizePage(page, perPage)
	if scope != nil {
		filter.SchoolID = scope
	}

	students, total, err := s.studentRepo.ListPaginated(ctx, filter, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	return students, response.NewPagination(page, perPage, total), nil
}

// Create enrolls a student and schedules the first derivation.
func (s *StudentService) Create(ctx context.Context, actor string, scope *uuid.UUID, student *model.Student) error {
	if err := checkScope(scope, student.SchoolID); err != nil {
		return err
	}
	if err := s.studentRepo.Create(ctx, student); err != nil {
		return err
	}
	s.audit.Record(ctx, actor, fmt.Sprintf("enrolled student %s", student.ID))
	s.requestRecompute(ctx, student.ID)
	return nil
}

// Update modifies a student. A changed date of birth enqueues a recompute.
func (s *StudentService) Update(ctx context.Context, actor string, scope *uuid.UUID, student *model.Student) error {
	existing, err := s.GetByID(ctx, scope, student.ID)
	if err != nil {
		return err
	}
	if err := checkScope(scope, student.SchoolID); err != nil {
		return err
	}
	if err := s.studentRepo.Update(ctx, student); err != nil {
		return err
	}

	s.audit.Record(ctx, actor, fmt.Sprintf("updated student %s", student.ID))
	if existing.SchoolID != student.SchoolID {
		s.invalidateSummaries(ctx)
	}
	if !existing.DateOfBirth.Equal(student.DateOfBirth) {
		s.requestRecompute(ctx, student.ID)
	}
	return nil
}

// Delete removes a student with all doses and derived rows.
func (s *StudentService) Delete(ctx context.Context, actor string, scope *uuid.UUID, id uuid.UUID) error {
	if _, err := s.GetByID(ctx, scope, id); err != nil {
		return err
	}
	if err := s.studentRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, actor, fmt.Sprintf("deleted student %s", id))
	s.invalidateSummaries(ctx)
	return nil
}

func (s *StudentService) invalidateSummaries(ctx context.Context) {
	if s.summaries == nil {
		return
	}
	if err := s.summaries.InvalidateSummaries(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to invalidate compliance summaries")
	}
}

func (s *StudentService) requestRecompute(ctx context.Context, id uuid.UUID) {
	if err := s.queue.EnqueueStudents(ctx, id); err != nil {
		s.log.Error().Err(err).Str("student_id", id.String()).Msg("Failed to enqueue recompute")
	}
}

func checkScope(scope *uuid.UUID, schoolID uuid.UUID) error {
	if scope != nil && *scope != schoolID {
		return ErrOutsideScope
	}
	return nil
}
