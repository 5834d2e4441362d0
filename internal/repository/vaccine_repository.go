package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vaxsync/vaxsync-backend/internal/model"
)

// VaccineRepository handles the vaccine catalog and its schedule entries.
type VaccineRepository struct {
	pool *pgxpool.Pool
}

// NewVaccineRepository creates a new VaccineRepository.
func NewVaccineRepository(pool *pgxpool.Pool) *VaccineRepository {
	return &VaccineRepository{pool: pool}
}

// GetByID retrieves a vaccine by ID.
func (r *VaccineRepository) GetByID(ctx context.Context, id int) (*model.Vaccine, error) {
	v := &model.Vaccine{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, name, description, created_at FROM vaccines WHERE id = $1`, id,
	).Scan(&v.ID, &v.Code, &v.Name, &v.Description, &v.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return v, nil
}

// ListWithSchedules returns every vaccine with its schedule ordered by dose.
func (r *VaccineRepository) ListWithSchedules(ctx context.Context) ([]model.VaccineWithSchedule, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, code, name, description, created_at FROM vaccines ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vaccines := make([]model.VaccineWithSchedule, 0)
	index := make(map[int]int)
	for rows.Next() {
		var v model.VaccineWithSchedule
		if err := rows.Scan(&v.ID, &v.Code, &v.Name, &v.Description, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.Schedule = make([]model.ScheduleEntry, 0)
		index[v.ID] = len(vaccines)
		vaccines = append(vaccines, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	entries, err := r.ListScheduleWithCodes(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if i, ok := index[e.VaccineID]; ok {
			vaccines[i].Schedule = append(vaccines[i].Schedule, e)
		}
	}
	return vaccines, nil
}

// Create inserts a new vaccine.
func (r *VaccineRepository) Create(ctx context.Context, v *model.Vaccine) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO vaccines (code, name, description) VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		v.Code, v.Name, v.Description,
	).Scan(&v.ID, &v.CreatedAt)
	if pgCode(err) == pgUniqueViolation {
		return ErrDuplicateVaccineCode
	}
	return err
}

// EnsureVaccine inserts a vaccine unless its code is already stored, leaving
// an existing row untouched. The stored ID is written back to v.
func (r *VaccineRepository) EnsureVaccine(ctx context.Context, v *model.Vaccine) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO vaccines (code, name, description) VALUES ($1, $2, $3)
		 ON CONFLICT (code) DO UPDATE SET code = vaccines.code
		 RETURNING id, created_at`,
		v.Code, v.Name, v.Description,
	).Scan(&v.ID, &v.CreatedAt)
}

// Delete removes a vaccine and its schedule. Vaccines with recorded doses
// cannot be removed.
func (r *VaccineRepository) Delete(ctx context.Context, id int) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM vaccines WHERE id = $1`, id)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			return ErrVaccineInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CodeIndex maps every vaccine code to its ID.
func (r *VaccineRepository) CodeIndex(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code FROM vaccines`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	index := make(map[string]int)
	for rows.Next() {
		var id int
		var code string
		if err := rows.Scan(&id, &code); err != nil {
			return nil, err
		}
		index[code] = id
	}
	return index, rows.Err()
}

// ListScheduleWithCodes returns every schedule entry joined with its
// vaccine code. This is the catalog read of a derivation pass.
func (r *VaccineRepository) ListScheduleWithCodes(ctx context.Context) ([]model.ScheduleEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT se.id, se.vaccine_id, v.code, se.age_range, se.dose_number, se.catch_up_eligible
		 FROM schedule_entries se
		 JOIN vaccines v ON v.id = se.vaccine_id
		 ORDER BY v.code, se.dose_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.ScheduleEntry
	for rows.Next() {
		var e model.ScheduleEntry
		if err := rows.Scan(&e.ID, &e.VaccineID, &e.VaccineCode, &e.AgeRange, &e.DoseNumber, &e.CatchUpEligible); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CreateScheduleEntry inserts a schedule entry for a vaccine.
func (r *VaccineRepository) CreateScheduleEntry(ctx context.Context, e *model.ScheduleEntry) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO schedule_entries (vaccine_id, age_range, dose_number, catch_up_eligible)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		e.VaccineID, e.AgeRange, e.DoseNumber, e.CatchUpEligible,
	).Scan(&e.ID)
	switch pgCode(err) {
	case pgUniqueViolation:
		return ErrDuplicateScheduleDose
	case pgForeignKeyViolation:
		return ErrUnknownReference
	}
	return err
}

// HasSchedule reports whether any schedule entry is stored.
func (r *VaccineRepository) HasSchedule(ctx context.Context) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schedule_entries)`).Scan(&exists)
	return exists, err
}

// InsertScheduleEntry adds the entry for (vaccine, dose) unless one exists.
func (r *VaccineRepository) InsertScheduleEntry(ctx context.Context, e *model.ScheduleEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO schedule_entries (vaccine_id, age_range, dose_number, catch_up_eligible)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (vaccine_id, dose_number) DO NOTHING`,
		e.VaccineID, e.AgeRange, e.DoseNumber, e.CatchUpEligible,
	)
	return err
}

// UpdateScheduleEntry modifies an entry of the given vaccine.
func (r *VaccineRepository) UpdateScheduleEntry(ctx context.Context, e *model.ScheduleEntry) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE schedule_entries SET age_range = $1, dose_number = $2, catch_up_eligible = $3
		 WHERE id = $4 AND vaccine_id = $5`,
		e.AgeRange, e.DoseNumber, e.CatchUpEligible, e.ID, e.VaccineID,
	)
	if err != nil {
		if pgCode(err) == pgUniqueViolation {
			return ErrDuplicateScheduleDose
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteScheduleEntry removes an entry of the given vaccine. Its required
// doses cascade.
func (r *VaccineRepository) DeleteScheduleEntry(ctx context.Context, vaccineID, entryID int) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM schedule_entries WHERE id = $1 AND vaccine_id = $2`, entryID, vaccineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
