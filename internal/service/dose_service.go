package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vaxsync/vaxsync-backend/internal/model"
	"github.com/vaxsync/vaxsync-backend/internal/repository"
)

// DoseService records administered doses. Every write enqueues a recompute
// of the affected student.
type DoseService struct {
	doseRepo    *repository.DoseRepository
	studentRepo *repository.StudentRepository
	queue       RecomputeEnqueuer
	audit       AuditRecorder
	log         zerolog.Logger
}

// NewDoseService creates a new DoseService.
func NewDoseService(
	doseRepo *repository.DoseRepository,
	studentRepo *repository.StudentRepository,
	queue RecomputeEnqueuer,
	audit AuditRecorder,
	log zerolog.Logger,
) *DoseService {
	return &DoseService{
		doseRepo:    doseRepo,
		studentRepo: studentRepo,
		queue:       queue,
		audit:       audit,
		log:         log.With().Str("component", "dose_service").Logger(),
	}
}

// ListByStudent returns a student's administered doses.
func (s *DoseService) ListByStudent(ctx context.Context, scope *uuid.UUID, studentID uuid.UUID) ([]model.AdministeredDose, error) {
	if err := s.authorize(ctx, scope, studentID); err != nil {
		return nil, err
	}
	return s.doseRepo.ListByStudent(ctx, studentID)
}

// Record stores an administered dose. A nil date marks the dose pending; it
// still completes the matching schedule entry.
func (s *DoseService) Record(ctx context.Context, actor string, scope *uuid.UUID, dose *model.AdministeredDose) error {
	if dose.DoseNumber <= 0 {
		return fmt.Errorf("%w: dose number must be positive", ErrInvalidArgument)
	}
	if err := s.authorize(ctx, scope, dose.StudentID); err != nil {
		return err
	}
	if err := s.doseRepo.Create(ctx, dose); err != nil {
		return err
	}

	s.audit.Record(ctx, actor, fmt.Sprintf("recorded dose %d of vaccine %d for student %s", dose.DoseNumber, dose.VaccineID, dose.StudentID))
	s.requestRecompute(ctx, dose.StudentID)
	return nil
}

// Delete removes an administered dose.
func (s *DoseService) Delete(ctx context.Context, actor string, scope *uuid.UUID, studentID uuid.UUID, doseID int) error {
	if err := s.authorize(ctx, scope, studentID); err != nil {
		return err
	}
	if err := s.doseRepo.Delete(ctx, studentID, doseID); err != nil {
		return err
	}

	s.audit.Record(ctx, actor, fmt.Sprintf("deleted dose %d of student %s", doseID, studentID))
	s.requestRecompute(ctx, studentID)
	return nil
}

func (s *DoseService) authorize(ctx context.Context, scope *uuid.UUID, studentID uuid.UUID) error {
	student, err := s.studentRepo.GetByID(ctx, studentID)
	if err != nil {
		return err
	}
	return checkScope(scope, student.SchoolID)
}

func (s *DoseService) requestRecompute(ctx context.Context, id uuid.UUID) {
	if err := s.queue.EnqueueStudents(ctx, id); err != nil {
		s.log.Error().Err(err).Str("student_id", id.String()).Msg("Failed to enqueue recompute")
	}
}
