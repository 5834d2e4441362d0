package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vaxsync/vaxsync-backend/internal/model"
)

// RequiredDoseRepository is the sink for derived required-dose rows and the
// read side of compliance reporting.
type RequiredDoseRepository struct {
	pool *pgxpool.Pool
}

// NewRequiredDoseRepository creates a new RequiredDoseRepository.
func NewRequiredDoseRepository(pool *pgxpool.Pool) *RequiredDoseRepository {
	return &RequiredDoseRepository{pool: pool}
}

// AnyExists is the cheap guard that tells whether a derivation has ever run.
func (r *RequiredDoseRepository) AnyExists(ctx context.Context) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM required_doses)`).Scan(&exists)
	return exists, err
}

// InsertBatch appends derived rows using COPY.
func (r *RequiredDoseRepository) InsertBatch(ctx context.Context, records []model.RequiredDose) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	return r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"required_doses"},
		[]string{"student_id", "schedule_entry_id", "dose_number", "due_date", "completed"},
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			rd := records[i]
			return []any{rd.StudentID, rd.ScheduleEntryID, rd.DoseNumber, rd.DueDate, rd.Completed}, nil
		}),
	)
}

// DeleteAll clears every derived row ahead of a forced recompute.
func (r *RequiredDoseRepository) DeleteAll(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `TRUNCATE required_doses RESTART IDENTITY`)
	return err
}

// DeleteForStudents clears the derived rows of the given students.
func (r *RequiredDoseRepository) DeleteForStudents(ctx context.Context, ids []uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM required_doses WHERE student_id = ANY($1::uuid[])`, ids)
	return err
}

const requiredDoseViewSelect = `
	SELECT rd.id, rd.student_id, rd.schedule_entry_id, rd.dose_number, rd.due_date, rd.completed,
	       v.code, v.name, se.age_range, s.first_name || ' ' || s.last_name
	FROM required_doses rd
	JOIN schedule_entries se ON se.id = rd.schedule_entry_id
	JOIN vaccines v ON v.id = se.vaccine_id
	JOIN students s ON s.id = rd.student_id`

func collectViews(rows pgx.Rows) ([]model.RequiredDoseView, error) {
	defer rows.Close()

	views := make([]model.RequiredDoseView, 0)
	for rows.Next() {
		var v model.RequiredDoseView
		if err := rows.Scan(
			&v.ID, &v.StudentID, &v.ScheduleEntryID, &v.DoseNumber, &v.DueDate, &v.Completed,
			&v.VaccineCode, &v.VaccineName, &v.AgeRange, &v.StudentName,
		); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// ListByStudent returns a student's required doses ordered by due date.
// Overdue and Imminent are left for the caller to evaluate.
func (r *RequiredDoseRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]model.RequiredDoseView, error) {
	rows, err := r.pool.Query(ctx,
		requiredDoseViewSelect+` WHERE rd.student_id = $1 ORDER BY rd.due_date, v.code, rd.dose_number`,
		studentID)
	if err != nil {
		return nil, err
	}
	return collectViews(rows)
}

// ListPendingBySchool returns incomplete required doses of a school's
// students whose due date lies in [from, to). A nil from is unbounded.
func (r *RequiredDoseRepository) ListPendingBySchool(
	ctx context.Context,
	schoolID uuid.UUID,
	from *time.Time,
	to time.Time,
	limit, offset int,
) ([]model.RequiredDoseView, int, error) {
	where := ` WHERE s.school_id = $1 AND NOT rd.completed AND rd.due_date < $2`
	args := []any{schoolID, to}
	if from != nil {
		args = append(args, *from)
		where += ` AND rd.due_date >= $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM required_doses rd JOIN students s ON s.id = rd.student_id`+where,
		args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := requiredDoseViewSelect + where +
		` ORDER BY rd.due_date, s.last_name, s.first_name LIMIT $` + strconv.Itoa(len(args)+1) +
		` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	views, err := collectViews(rows)
	return views, total, err
}

// CountPendingBySchool counts a school's overdue doses (due before today)
// and imminent doses (due in [today, imminentUntil]).
func (r *RequiredDoseRepository) CountPendingBySchool(
	ctx context.Context,
	schoolID uuid.UUID,
	today, imminentUntil time.Time,
) (overdue, imminent int, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE rd.due_date < $2),
		        COUNT(*) FILTER (WHERE rd.due_date >= $2 AND rd.due_date <= $3)
		 FROM required_doses rd
		 JOIN students s ON s.id = rd.student_id
		 WHERE s.school_id = $1 AND NOT rd.completed`,
		schoolID, today, imminentUntil,
	).Scan(&overdue, &imminent)
	return overdue, imminent, err
}
