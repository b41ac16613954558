package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/labmgr/internal/api"
	"github.com/charlesng35/labmgr/internal/app"
	"github.com/charlesng35/labmgr/internal/app/maintenance"
	"github.com/charlesng35/labmgr/internal/cache"
	"github.com/charlesng35/labmgr/internal/database"
	"github.com/charlesng35/labmgr/internal/monitoring/checks"
	"github.com/charlesng35/labmgr/internal/notify"
	"github.com/charlesng35/labmgr/pkg/logger"
)

// runtimeStack bundles long-lived components used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Dispatcher *notify.Dispatcher
	Services   *app.Services
	Cleaner    *maintenance.Cleaner
	Router     *gin.Engine
}

// bootstrapRuntime opens the database, starts the email dispatcher and maintenance
// jobs, and builds the HTTP router.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	var err error
	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	mailer, err := cfg.Email.NewMailer()
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}
	log.Info("email transport selected", zap.String("provider", cfg.Email.Provider))

	opts := append(cfg.Notifications.DispatcherOptions(), notify.WithLogger(logger.WithModule("notify")))
	stack.Dispatcher, err = notify.NewDispatcher(mailer, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialise dispatcher: %w", err)
	}

	store := cache.NewMemoryStore(0, 0)
	stack.Services, err = app.NewServices(stack.DB, cfg, stack.Dispatcher, store)
	if err != nil {
		return nil, fmt.Errorf("initialise services: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(
		stack.Services.Sessions,
		stack.Services.Audit,
		maintenance.WithTokens(stack.Services.PasswordResets),
		maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
		maintenance.WithSchedules(cfg.Maintenance.SessionSchedule, cfg.Maintenance.AuditSchedule, cfg.Maintenance.TokenSchedule),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(stack.DB, cfg, stack.Services,
		checks.NotificationQueue(stack.Dispatcher, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown stops background jobs, drains queued email and closes the database.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		s.Cleaner.Stop()
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Dispatcher != nil {
		if err := s.Dispatcher.Close(ctx); err != nil {
			log.Warn("notification queue not drained", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.Connection()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
