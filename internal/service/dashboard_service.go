package service

import (
	"context"
	"time"

	"github.com/vaxsync/vaxsync-backend/internal/compliance"
	"github.com/vaxsync/vaxsync-backend/internal/repository"
)

const dashboardSchoolLimit = 5

// DashboardReader is the storage behind the admin dashboard.
type DashboardReader interface {
	GetSummaryCounts(ctx context.Context, today, imminentUntil time.Time) (*repository.DashboardCounts, error)
	GetLeastCompliantSchools(ctx context.Context, limit int) ([]repository.DashboardSchool, error)
	GetOverdueByVaccine(ctx context.Context, today time.Time) (map[string]int, error)
}

// DashboardData consolidates all metrics for the admin dashboard.
type DashboardData struct {
	Counts              *repository.DashboardCounts  `json:"counts"`
	ComplianceRate      float64                      `json:"compliance_rate"`
	LeastCompliant      []repository.DashboardSchool `json:"least_compliant_schools"`
	OverdueByVaccine    map[string]int               `json:"overdue_by_vaccine"`
	DerivationPopulated bool                         `json:"derivation_populated"`
}

// DashboardService handles admin dashboard business logic.
type DashboardService struct {
	repo DashboardReader
	now  func() time.Time
}

// NewDashboardService creates a new DashboardService.
func NewDashboardService(repo DashboardReader) *DashboardService {
	return &DashboardService{repo: repo, now: time.Now}
}

// GetDashboardData gathers the global compliance metrics.
func (s *DashboardService) GetDashboardData(ctx context.Context) (*DashboardData, error) {
	today := compliance.Today(s.now())

	counts, err := s.repo.GetSummaryCounts(ctx, today, today.AddDate(0, 0, compliance.ImminentWindowDays))
	if err != nil {
		return nil, err
	}

	schools, err := s.repo.GetLeastCompliantSchools(ctx, dashboardSchoolLimit)
	if err != nil {
		return nil, err
	}

	overdue, err := s.repo.GetOverdueByVaccine(ctx, today)
	if err != nil {
		return nil, err
	}

	data := &DashboardData{
		Counts:              counts,
		ComplianceRate:      1,
		LeastCompliant:      schools,
		OverdueByVaccine:    overdue,
		DerivationPopulated: counts.RequiredDoses > 0,
	}
	if counts.Students > 0 {
		data.ComplianceRate = float64(counts.CompliantStudents) / float64(counts.Students)
	}
	return data, nil
}
