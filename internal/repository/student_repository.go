package repository

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vaxsync/vaxsync-backend/internal/model"
)

const studentColumns = `id, school_id, first_name, last_name, date_of_birth, is_compliant, created_at, updated_at`

// StudentRepository handles student data access.
type StudentRepository struct {
	pool *pgxpool.Pool
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(pool *pgxpool.Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

func scanStudent(row pgx.Row, s *model.Student) error {
	return row.Scan(&s.ID, &s.SchoolID, &s.FirstName, &s.LastName, &s.DateOfBirth, &s.IsCompliant, &s.CreatedAt, &s.UpdatedAt)
}

// GetByID retrieves a student by ID.
func (r *StudentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Student, error) {
	s := &model.Student{}
	row := r.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id)
	if err := scanStudent(row, s); err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// ListPaginated retrieves students ordered by name with optional school and
// compliance filters.
func (r *StudentRepository) ListPaginated(ctx context.Context, filter model.StudentFilter, limit, offset int) ([]model.Student, int, error) {
	var conds []string
	var args []any
	if filter.SchoolID != nil {
		args = append(args, *filter.SchoolID)
		conds = append(conds, `school_id = $`+strconv.Itoa(len(args)))
	}
	if filter.Compliant != nil {
		args = append(args, *filter.Compliant)
		conds = append(conds, `is_compliant = $`+strconv.Itoa(len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = ` WHERE ` + strings.Join(conds, ` AND `)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM students`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + studentColumns + ` FROM students` + where +
		` ORDER BY last_name, first_name, id LIMIT $` + strconv.Itoa(len(args)+1) +
		` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	students := make([]model.Student, 0, limit)
	for rows.Next() {
		var s model.Student
		if err := scanStudent(rows, &s); err != nil {
			return nil, 0, err
		}
		students = append(students, s)
	}
	return students, total, rows.Err()
}

// Create inserts a new student. New students start compliant until derived.
func (r *StudentRepository) Create(ctx context.Context, s *model.Student) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO students (school_id, first_name, last_name, date_of_birth)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, is_compliant, created_at, updated_at`,
		s.SchoolID, s.FirstName, s.LastName, s.DateOfBirth,
	).Scan(&s.ID, &s.IsCompliant, &s.CreatedAt, &s.UpdatedAt)
	if pgCode(err) == pgForeignKeyViolation {
		return ErrUnknownReference
	}
	return err
}

// Update modifies a student's enrollment data. The compliance flag is left
// to the derivation pass.
func (r *StudentRepository) Update(ctx context.Context, s *model.Student) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE students
		 SET school_id = $1, first_name = $2, last_name = $3, date_of_birth = $4, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $5
		 RETURNING is_compliant, created_at, updated_at`,
		s.SchoolID, s.FirstName, s.LastName, s.DateOfBirth, s.ID,
	).Scan(&s.IsCompliant, &s.CreatedAt, &s.UpdatedAt)
	if pgCode(err) == pgForeignKeyViolation {
		return ErrUnknownReference
	}
	return notFound(err)
}

// Delete removes a student. Doses and required doses cascade.
func (r *StudentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of students.
func (r *StudentRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM students`).Scan(&n)
	return n, err
}

// CountBySchool returns the total and compliant student counts of a school.
func (r *StudentRepository) CountBySchool(ctx context.Context, schoolID uuid.UUID) (total, compliant int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_compliant)
		 FROM students WHERE school_id = $1`, schoolID,
	).Scan(&total, &compliant)
	return total, compliant, err
}

// ListBirthDates returns (id, date of birth) for the whole population.
func (r *StudentRepository) ListBirthDates(ctx context.Context) ([]model.StudentBirth, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, date_of_birth FROM students ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collectBirths(rows)
}

// ListBirthDatesByIDs is ListBirthDates restricted to the given students.
// Unknown IDs are silently skipped.
func (r *StudentRepository) ListBirthDatesByIDs(ctx context.Context, ids []uuid.UUID) ([]model.StudentBirth, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, date_of_birth FROM students WHERE id = ANY($1::uuid[]) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	return collectBirths(rows)
}

func collectBirths(rows pgx.Rows) ([]model.StudentBirth, error) {
	defer rows.Close()

	var births []model.StudentBirth
	for rows.Next() {
		var b model.StudentBirth
		if err := rows.Scan(&b.ID, &b.DateOfBirth); err != nil {
			return nil, err
		}
		births = append(births, b)
	}
	return births, rows.Err()
}

// UpdateComplianceBatch writes cached compliance flags in one statement.
func (r *StudentRepository) UpdateComplianceBatch(ctx context.Context, updates []model.ComplianceUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(updates))
	flags := make([]bool, len(updates))
	for i, u := range updates {
		ids[i] = u.StudentID
		flags[i] = u.IsCompliant
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE students AS s
		SET is_compliant = t.is_compliant,
		    updated_at = CURRENT_TIMESTAMP
		FROM UNNEST($1::uuid[], $2::bool[]) AS t (id, is_compliant)
		WHERE s.id = t.id
		  AND s.is_compliant IS DISTINCT FROM t.is_compliant
	`, ids, flags)
	return err
}

// CopyStudents bulk-inserts students with caller-assigned IDs.
func (r *StudentRepository) CopyStudents(ctx context.Context, students []model.Student) (int64, error) {
	return r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"students"},
		[]string{"id", "school_id", "first_name", "last_name", "date_of_birth"},
		pgx.CopyFromSlice(len(students), func(i int) ([]any, error) {
			s := students[i]
			return []any{s.ID, s.SchoolID, s.FirstName, s.LastName, s.DateOfBirth}, nil
		}),
	)
}
