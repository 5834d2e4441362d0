package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/vaxsync/vaxsync-backend/internal/model"
	"github.com/vaxsync/vaxsync-backend/internal/repository"
	"github.com/vaxsync/vaxsync-backend/internal/response"
)

// AuditRecorder appends entries to the audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, actor, action string)
}

// AuditService handles the audit trail.
type AuditService struct {
	repo *repository.AuditLogRepository
	log  zerolog.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(repo *repository.AuditLogRepository, log zerolog.Logger) *AuditService {
	return &AuditService{repo: repo, log: log.With().Str("component", "audit").Logger()}
}

// Record appends an entry. Failures are logged and never fail the caller.
func (s *AuditService) Record(ctx context.Context, actor, action string) {
	if actor == "" {
		actor = "system"
	}
	entry := &model.AuditLog{User: actor, Action: action}
	if err := s.repo.Create(ctx, entry); err != nil {
		s.log.Warn().Err(err).Str("actor", actor).Str("action", action).Msg("Failed to write audit entry")
	}
}

// Recordf is Record with a formatted action.
func (s *AuditService) Recordf(ctx context.Context, actor, format string, args ...any) {
	s.Record(ctx, actor, fmt.Sprintf(format, args...))
}

// List returns audit entries newest first.
func (s *AuditService) List(ctx context.Context, page, perPage int) ([]model.AuditLog, *response.Pagination, error) {
	page, perPage = normalizePage(page, perPage)
	logs, total, err := s.repo.ListPaginated(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	return logs, response.NewPagination(page, perPage, total), nil
}

// normalizePage clamps paging input to 1-based pages of 1..100 items.
func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage
}

// nopAudit discards entries.
type nopAudit struct{}

func (nopAudit) Record(context.Context, string, string) {}
