package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vaxsync/vaxsync-backend/internal/model"
)

// AuditLogRepository handles audit trail persistence.
type AuditLogRepository struct {
	pool *pgxpool.Pool
}

// NewAuditLogRepository creates a new AuditLogRepository.
func NewAuditLogRepository(pool *pgxpool.Pool) *AuditLogRepository {
	return &AuditLogRepository{pool: pool}
}

// Create appends an audit entry.
func (r *AuditLogRepository) Create(ctx context.Context, entry *model.AuditLog) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO audit_logs (actor, action) VALUES ($1, $2)
		 RETURNING id, created_at`,
		entry.User, entry.Action,
	).Scan(&entry.ID, &entry.Timestamp)
}

// ListPaginated returns audit entries newest first.
func (r *AuditLogRepository) ListPaginated(ctx context.Context, limit, offset int) ([]model.AuditLog, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, actor, action, created_at FROM audit_logs
		 ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	logs := make([]model.AuditLog, 0, limit)
	for rows.Next() {
		var l model.AuditLog
		if err := rows.Scan(&l.ID, &l.User, &l.Action, &l.Timestamp); err != nil {
			return nil, 0, err
		}
		logs = append(logs, l)
	}
	return logs, total, rows.Err()
}
