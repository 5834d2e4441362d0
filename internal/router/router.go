package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/vaxsync/vaxsync-backend/internal/config"
	"github.com/vaxsync/vaxsync-backend/internal/handler"
	"github.com/vaxsync/vaxsync-backend/internal/middleware"
	"github.com/vaxsync/vaxsync-backend/internal/model"
	"github.com/vaxsync/vaxsync-backend/internal/response"
	"github.com/vaxsync/vaxsync-backend/internal/service"
)

const (
	// catalogMaxAge is how long clients may reuse the vaccine catalog.
	catalogMaxAge = 60

	// derivationTriggersPerMinute bounds full recomputes per caller.
	derivationTriggersPerMinute = 6
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth       *handler.AuthHandler
	School     *handler.SchoolHandler
	Student    *handler.StudentHandler
	Dose       *handler.DoseHandler
	Catalog    *handler.CatalogHandler
	Compliance *handler.ComplianceHandler
	Derivation *handler.DerivationHandler
	Audit      *handler.AuditHandler
	Dashboard  *handler.DashboardHandler
	System     *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Student lists and reports can be large.
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)

	// ─── 1. Auth Group ─────────────────────────────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(middleware.RequireStaffJWT(authService))
	{
		auth.GET("/me", handlers.Auth.GetProfile)
	}

	// ─── 2. Staff API (JWT + RBAC) ─────────────────────────────────────
	api := router.Group("/api/v1")
	api.Use(middleware.RequireStaffJWT(authService))
	{
		read := middleware.RequirePermission(model.PermissionStudentsRead)

		// Schools
		api.GET("/schools", read, handlers.School.ListSchools)
		api.POST("/schools",
			middleware.RequirePermission(model.PermissionSchoolsWrite),
			handlers.School.CreateSchool,
		)
		api.DELETE("/schools/:id",
			middleware.RequirePermission(model.PermissionSchoolsWrite),
			handlers.School.DeleteSchool,
		)

		// School compliance
		api.GET("/schools/:id/compliance", read, handlers.Compliance.GetSchoolSummary)
		api.GET("/schools/:id/compliance/overdue", read, handlers.Compliance.ListOverdue)
		api.GET("/schools/:id/compliance/imminent", read, handlers.Compliance.ListImminent)

		// Students
		api.GET("/students", read, handlers.Student.ListStudents)
		api.GET("/students/:id", read, handlers.Student.GetStudent)
		api.GET("/students/:id/report", read, handlers.Compliance.GetStudentReport)
		api.POST("/students",
			middleware.RequirePermission(model.PermissionStudentsWrite),
			handlers.Student.CreateStudent,
		)
		api.PUT("/students/:id",
			middleware.RequirePermission(model.PermissionStudentsWrite),
			handlers.Student.UpdateStudent,
		)
		api.DELETE("/students/:id",
			middleware.RequirePermission(model.PermissionStudentsWrite),
			handlers.Student.DeleteStudent,
		)
		api.POST("/students/:id/recompute",
			middleware.RequireAnyPermission(model.PermissionStudentsWrite, model.PermissionDosesWrite),
			handlers.Derivation.RecomputeStudent,
		)

		// Administered doses
		api.GET("/students/:id/doses", read, handlers.Dose.ListDoses)
		api.POST("/students/:id/doses",
			middleware.RequirePermission(model.PermissionDosesWrite),
			handlers.Dose.RecordDose,
		)
		api.DELETE("/students/:id/doses/:dose_id",
			middleware.RequirePermission(model.PermissionDosesWrite),
			handlers.Dose.DeleteDose,
		)

		// Vaccine catalog
		api.GET("/vaccines", read, middleware.CacheControl(catalogMaxAge), handlers.Catalog.ListVaccines)
		catalog := api.Group("/vaccines")
		catalog.Use(middleware.RequirePermission(model.PermissionCatalogWrite))
		{
			catalog.POST("", handlers.Catalog.CreateVaccine)
			catalog.DELETE("/:id", handlers.Catalog.DeleteVaccine)
			catalog.POST("/:id/schedule", handlers.Catalog.CreateScheduleEntry)
			catalog.PUT("/:id/schedule/:entry_id", handlers.Catalog.UpdateScheduleEntry)
			catalog.DELETE("/:id/schedule/:entry_id", handlers.Catalog.DeleteScheduleEntry)
		}
	}

	// ─── 3. Admin Group ────────────────────────────────────────────────
	deriveLimiter := middleware.NewKeyedRateLimiter(derivationTriggersPerMinute, time.Minute, middleware.SubjectKey)

	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireStaffJWT(authService))
	{
		adminAPI.GET("/dashboard",
			middleware.RequirePermission(model.PermissionStudentsRead),
			handlers.Dashboard.GetDashboardData,
		)
		adminAPI.GET("/audit-logs",
			middleware.RequirePermission(model.PermissionAuditRead),
			handlers.Audit.ListAuditLogs,
		)
		adminAPI.POST("/derivations",
			middleware.RequirePermission(model.PermissionComplianceDerive),
			deriveLimiter.Middleware(),
			handlers.Derivation.TriggerDerivation,
		)
		adminAPI.GET("/derivations/status",
			middleware.RequirePermission(model.PermissionComplianceDerive),
			handlers.Derivation.QueueStatus,
		)
		adminAPI.GET("/system/metrics",
			middleware.RequireRole(model.RoleAdmin),
			handlers.System.SystemMetricsSSE,
		)
	}

	// ─── 4. WebSocket Group (query token auth) ─────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/admin/derivations/stream",
			middleware.RequirePermission(model.PermissionComplianceDerive),
			handlers.Derivation.StreamProgress,
		)
	}

	return router
}
