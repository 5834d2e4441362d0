package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DashboardRepository handles admin dashboard data access.
type DashboardRepository struct {
	pool *pgxpool.Pool
}

// NewDashboardRepository creates a new DashboardRepository.
func NewDashboardRepository(pool *pgxpool.Pool) *DashboardRepository {
	return &DashboardRepository{pool: pool}
}

// DashboardCounts are the global headline numbers.
type DashboardCounts struct {
	Schools           int `json:"schools"`
	Students          int `json:"students"`
	CompliantStudents int `json:"compliant_students"`
	Vaccines          int `json:"vaccines"`
	RequiredDoses     int `json:"required_doses"`
	OverdueDoses      int `json:"overdue_doses"`
	ImminentDoses     int `json:"imminent_doses"`
}

// GetSummaryCounts retrieves the high-level metrics for the dashboard.
// Imminent doses fall in [today, imminentUntil].
func (r *DashboardRepository) GetSummaryCounts(ctx context.Context, today, imminentUntil time.Time) (*DashboardCounts, error) {
	var c DashboardCounts
	err := r.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM schools),
			(SELECT COUNT(*) FROM students),
			(SELECT COUNT(*) FROM students WHERE is_compliant),
			(SELECT COUNT(*) FROM vaccines),
			(SELECT COUNT(*) FROM required_doses),
			(SELECT COUNT(*) FROM required_doses WHERE NOT completed AND due_date < $1),
			(SELECT COUNT(*) FROM required_doses WHERE NOT completed AND due_date >= $1 AND due_date <= $2)`,
		today, imminentUntil,
	).Scan(&c.Schools, &c.Students, &c.CompliantStudents, &c.Vaccines, &c.RequiredDoses, &c.OverdueDoses, &c.ImminentDoses)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DashboardSchool is one row of the school compliance leaderboard.
type DashboardSchool struct {
	ID           uuid.UUID `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Students     int       `json:"students"`
	NonCompliant int       `json:"non_compliant"`
}

// GetLeastCompliantSchools returns the schools with the most non-compliant
// students.
func (r *DashboardRepository) GetLeastCompliantSchools(ctx context.Context, limit int) ([]DashboardSchool, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT sc.id, sc.code, sc.name,
		        COUNT(st.id),
		        COUNT(st.id) FILTER (WHERE NOT st.is_compliant) AS non_compliant
		 FROM schools sc
		 LEFT JOIN students st ON st.school_id = sc.id
		 GROUP BY sc.id, sc.code, sc.name
		 ORDER BY non_compliant DESC, sc.code ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schools := []DashboardSchool{}
	for rows.Next() {
		var s DashboardSchool
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.Students, &s.NonCompliant); err != nil {
			return nil, err
		}
		schools = append(schools, s)
	}
	return schools, rows.Err()
}

// GetOverdueByVaccine counts overdue doses per vaccine code.
func (r *DashboardRepository) GetOverdueByVaccine(ctx context.Context, today time.Time) (map[string]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT v.code, COUNT(*)
		 FROM required_doses rd
		 JOIN schedule_entries se ON se.id = rd.schedule_entry_id
		 JOIN vaccines v ON v.id = se.vaccine_id
		 WHERE NOT rd.completed AND rd.due_date < $1
		 GROUP BY v.code`,
		today,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var code string
		var n int
		if err := rows.Scan(&code, &n); err != nil {
			return nil, err
		}
		counts[code] = n
	}
	return counts, rows.Err()
}
