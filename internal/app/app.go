// Package app wires repositories and services for the server and the ops CLI.
package app

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vaxsync/vaxsync-backend/internal/config"
	"github.com/vaxsync/vaxsync-backend/internal/repository"
	"github.com/vaxsync/vaxsync-backend/internal/service"
)

// derivationLockTTL bounds how long a crashed pass can block the next one.
const derivationLockTTL = 30 * time.Minute

// Repositories holds every repository over the shared pool.
type Repositories struct {
	Schools   *repository.SchoolRepository
	Students  *repository.StudentRepository
	Vaccines  *repository.VaccineRepository
	Doses     *repository.DoseRepository
	Required  *repository.RequiredDoseRepository
	AuditLogs *repository.AuditLogRepository
	Dashboard *repository.DashboardRepository
}

// Services holds the wired services.
type Services struct {
	Auth       *service.AuthService
	Audit      *service.AuditService
	Queue      *service.RecomputeQueue
	Catalog    *service.CatalogService
	School     *service.SchoolService
	Student    *service.StudentService
	Dose       *service.DoseService
	Compliance *service.ComplianceService
	Dashboard  *service.DashboardService
	Derivation *service.DerivationService
	Seed       *service.SeedService
}

// App is the assembled backend.
type App struct {
	Cfg      *config.Config
	Pool     *pgxpool.Pool
	RDB      *redis.Client
	Repos    Repositories
	Services Services
}

// New builds every repository and service. It fails when the derivation
// settings in cfg are invalid.
func New(cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) (*App, error) {
	repos := Repositories{
		Schools:   repository.NewSchoolRepository(pool),
		Students:  repository.NewStudentRepository(pool),
		Vaccines:  repository.NewVaccineRepository(pool),
		Doses:     repository.NewDoseRepository(pool),
		Required:  repository.NewRequiredDoseRepository(pool),
		AuditLogs: repository.NewAuditLogRepository(pool),
		Dashboard: repository.NewDashboardRepository(pool),
	}

	var svc Services
	svc.Auth = service.NewAuthService(cfg)
	svc.Audit = service.NewAuditService(repos.AuditLogs, log)
	svc.Queue = service.NewRecomputeQueue(rdb)
	svc.Catalog = service.NewCatalogService(repos.Vaccines, svc.Queue, svc.Audit, log)
	svc.School = service.NewSchoolService(repos.Schools, svc.Audit)
	svc.Compliance = service.NewComplianceService(
		service.NewComplianceReader(repos.Students, repos.Schools, repos.Doses, repos.Required),
		service.NewRedisSummaryCache(rdb),
		cfg.SummaryCacheTTL,
		log,
	)
	svc.Student = service.NewStudentService(repos.Students, svc.Queue, svc.Compliance, svc.Audit, log)
	svc.Dose = service.NewDoseService(repos.Doses, repos.Students, svc.Queue, svc.Audit, log)
	svc.Dashboard = service.NewDashboardService(repos.Dashboard)

	derivation, err := service.NewDerivationService(
		service.DerivationStores{
			Catalog:     repos.Vaccines,
			Students:    repos.Students,
			Doses:       repos.Doses,
			Required:    repos.Required,
			Publisher:   service.NewRedisProgressPublisher(rdb),
			Locker:      service.NewRedisLocker(rdb, derivationLockTTL),
			Invalidator: svc.Compliance,
		},
		service.DerivationOptions{
			BatchSize:  cfg.DeriveBatchSize,
			ChunkSize:  cfg.ComplianceChunkSize,
			JitterDays: cfg.DueDateJitterDays,
			Seed:       cfg.DueDateSeed,
		},
		log,
	)
	if err != nil {
		return nil, fmt.Errorf("build derivation service: %w", err)
	}
	svc.Derivation = derivation
	svc.Seed = service.NewSeedService(
		service.NewPopulationStore(repos.Schools, repos.Students, repos.Doses, repos.Vaccines),
		svc.Catalog,
		svc.Derivation,
		log,
	)

	return &App{Cfg: cfg, Pool: pool, RDB: rdb, Repos: repos, Services: svc}, nil
}
