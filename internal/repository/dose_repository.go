package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vaxsync/vaxsync-backend/internal/model"
)

// DoseRepository handles administered dose data access.
type DoseRepository struct {
	pool *pgxpool.Pool
}

// NewDoseRepository creates a new DoseRepository.
func NewDoseRepository(pool *pgxpool.Pool) *DoseRepository {
	return &DoseRepository{pool: pool}
}

// ListDoseKeys returns the presence keys of every administered dose.
func (r *DoseRepository) ListDoseKeys(ctx context.Context) ([]model.DoseKey, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, vaccine_id, dose_number FROM administered_doses`)
	if err != nil {
		return nil, err
	}
	return collectDoseKeys(rows)
}

// ListDoseKeysForStudents is ListDoseKeys restricted to the given students.
func (r *DoseRepository) ListDoseKeysForStudents(ctx context.Context, ids []uuid.UUID) ([]model.DoseKey, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, vaccine_id, dose_number FROM administered_doses
		 WHERE student_id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, err
	}
	return collectDoseKeys(rows)
}

func collectDoseKeys(rows pgx.Rows) ([]model.DoseKey, error) {
	defer rows.Close()

	var keys []model.DoseKey
	for rows.Next() {
		var k model.DoseKey
		if err := rows.Scan(&k.StudentID, &k.VaccineID, &k.DoseNumber); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ListByStudent returns a student's administered doses with vaccine names.
func (r *DoseRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]model.AdministeredDose, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT d.id, d.student_id, d.vaccine_id, v.code, v.name, d.dose_number, d.date_given, d.created_at
		 FROM administered_doses d
		 JOIN vaccines v ON v.id = d.vaccine_id
		 WHERE d.student_id = $1
		 ORDER BY v.code, d.dose_number`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	doses := make([]model.AdministeredDose, 0)
	for rows.Next() {
		var d model.AdministeredDose
		if err := rows.Scan(&d.ID, &d.StudentID, &d.VaccineID, &d.VaccineCode, &d.VaccineName, &d.DoseNumber, &d.DateGiven, &d.CreatedAt); err != nil {
			return nil, err
		}
		doses = append(doses, d)
	}
	return doses, rows.Err()
}

// Create records an administered dose.
func (r *DoseRepository) Create(ctx context.Context, d *model.AdministeredDose) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO administered_doses (student_id, vaccine_id, dose_number, date_given)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		d.StudentID, d.VaccineID, d.DoseNumber, d.DateGiven,
	).Scan(&d.ID, &d.CreatedAt)
	if pgCode(err) == pgForeignKeyViolation {
		return ErrUnknownReference
	}
	return err
}

// Delete removes one of a student's administered doses.
func (r *DoseRepository) Delete(ctx context.Context, studentID uuid.UUID, doseID int) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM administered_doses WHERE id = $1 AND student_id = $2`, doseID, studentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CopyDoses bulk-inserts administered doses.
func (r *DoseRepository) CopyDoses(ctx context.Context, doses []model.AdministeredDose) (int64, error) {
	return r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"administered_doses"},
		[]string{"student_id", "vaccine_id", "dose_number", "date_given"},
		pgx.CopyFromSlice(len(doses), func(i int) ([]any, error) {
			d := doses[i]
			return []any{d.StudentID, d.VaccineID, d.DoseNumber, d.DateGiven}, nil
		}),
	)
}
