package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/vaxsync/vaxsync-backend/internal/model"
	"github.com/vaxsync/vaxsync-backend/internal/repository"
)

// SchoolService handles school business logic.
type SchoolService struct {
	repo  *repository.SchoolRepository
	audit AuditRecorder
}

// NewSchoolService creates a new SchoolService.
func NewSchoolService(repo *repository.SchoolRepository, audit AuditRecorder) *SchoolService {
	return &SchoolService{repo: repo, audit: audit}
}

// List returns all schools.
func (s *SchoolService) List(ctx context.Context) ([]model.School, error) {
	return s.repo.List(ctx)
}

// GetByID retrieves a school.
func (s *SchoolService) GetByID(ctx context.Context, id uuid.UUID) (*model.School, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByCode retrieves a school by its code.
func (s *SchoolService) GetByCode(ctx context.Context, code string) (*model.School, error) {
	return s.repo.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

// Create registers a school. Codes are stored upper-case.
func (s *SchoolService) Create(ctx context.Context, actor string, school *model.School) error {
	school.Code = strings.ToUpper(strings.TrimSpace(school.Code))
	school.Name = strings.TrimSpace(school.Name)
	if err := s.repo.Create(ctx, school); err != nil {
		return err
	}
	s.audit.Record(ctx, actor, fmt.Sprintf("created school %s", school.Code))
	return nil
}

// Delete removes a school that has no students.
func (s *SchoolService) Delete(ctx context.Context, actor string, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, actor, fmt.Sprintf("deleted school %s", id))
	return nil
}
