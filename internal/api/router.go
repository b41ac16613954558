package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/labmgr/internal/app"
	"github.com/charlesng35/labmgr/internal/handlers"
	"github.com/charlesng35/labmgr/internal/middleware"
	"github.com/charlesng35/labmgr/internal/monitoring"
	"github.com/charlesng35/labmgr/internal/monitoring/checks"
)

// NewRouter builds the Gin engine, wires middleware and registers every route. The
// database probe is always part of readiness; readiness adds further probes.
func NewRouter(db *gorm.DB, cfg *app.Config, svc *app.Services, readiness ...monitoring.Check) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if svc == nil {
		return nil, fmt.Errorf("services must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.RateLimit(middleware.NewCacheRateStore(svc.Cache), cfg.RateLimit.Requests, cfg.RateLimit.Window))

	health := monitoring.NewHealthManager(checks.Database(db, 0))
	for _, check := range readiness {
		health.Register(check)
	}
	registerHealthRoutes(r, health, cfg)

	requireAuth := middleware.Auth(svc.JWT, svc.Accounts)
	api := r.Group("/api")
	protected := api.Group("", requireAuth)
	staff := api.Group("", requireAuth, middleware.RequireStaff())
	superuser := api.Group("", requireAuth, middleware.RequireSuperuser())

	registerAuthRoutes(api, protected, handlers.NewAuthHandler(svc.Auth, svc.Accounts, svc.PasswordResets))
	registerRegistrationRoutes(api, superuser, handlers.NewRegistrationHandler(svc.Registrations))
	registerProfileRoutes(protected, staff, handlers.NewProfileHandler(svc.Profiles, svc.Accounts))
	registerAccountRoutes(staff, handlers.NewAccountHandler(svc.Accounts))
	registerEventRoutes(protected, staff, handlers.NewEventHandler(svc.Events))
	registerInterestRoutes(api, staff, handlers.NewInterestHandler(svc.Interest))
	registerAuditRoutes(superuser, handlers.NewAuditHandler(svc.Audit))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func registerHealthRoutes(r *gin.Engine, health *monitoring.HealthManager, cfg *app.Config) {
	r.GET("/health", handlers.Health())
	r.GET("/health/ready", handlers.Readiness(health))
	r.GET("/api/health", handlers.Readiness(health))

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}
}
