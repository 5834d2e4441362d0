package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vaxsync/vaxsync-backend/internal/model"
)

// SchoolRepository handles school data access.
type SchoolRepository struct {
	pool *pgxpool.Pool
}

// NewSchoolRepository creates a new SchoolRepository.
func NewSchoolRepository(pool *pgxpool.Pool) *SchoolRepository {
	return &SchoolRepository{pool: pool}
}

// GetByID retrieves a school by ID.
func (r *SchoolRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.School, error) {
	s := &model.School{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, name, created_at FROM schools WHERE id = $1`, id,
	).Scan(&s.ID, &s.Code, &s.Name, &s.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// GetByCode retrieves a school by its unique code.
func (r *SchoolRepository) GetByCode(ctx context.Context, code string) (*model.School, error) {
	s := &model.School{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, name, created_at FROM schools WHERE code = $1`, code,
	).Scan(&s.ID, &s.Code, &s.Name, &s.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// List retrieves all schools ordered by name.
func (r *SchoolRepository) List(ctx context.Context) ([]model.School, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, code, name, created_at FROM schools ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schools := make([]model.School, 0)
	for rows.Next() {
		var s model.School
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.CreatedAt); err != nil {
			return nil, err
		}
		schools = append(schools, s)
	}
	return schools, rows.Err()
}

// Create inserts a new school.
func (r *SchoolRepository) Create(ctx context.Context, s *model.School) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO schools (code, name) VALUES ($1, $2)
		 RETURNING id, created_at`,
		s.Code, s.Name,
	).Scan(&s.ID, &s.CreatedAt)
	if pgCode(err) == pgUniqueViolation {
		return ErrDuplicateSchoolCode
	}
	return err
}

// Delete removes a school. Schools with students cannot be removed.
func (r *SchoolRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM schools WHERE id = $1`, id)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return ErrSchoolHasStudents
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of schools.
func (r *SchoolRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM schools`).Scan(&n)
	return n, err
}

// CopySchools bulk-inserts schools with caller-assigned IDs.
func (r *SchoolRepository) CopySchools(ctx context.Context, schools []model.School) (int64, error) {
	return r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"schools"},
		[]string{"id", "code", "name"},
		pgx.CopyFromSlice(len(schools), func(i int) ([]any, error) {
			s := schools[i]
			return []any{s.ID, s.Code, s.Name}, nil
		}),
	)
}
