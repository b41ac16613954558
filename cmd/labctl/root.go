package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/labmgr/internal/app"
	"github.com/charlesng35/labmgr/internal/auditctx"
	"github.com/charlesng35/labmgr/internal/cache"
	"github.com/charlesng35/labmgr/internal/database"
	"github.com/charlesng35/labmgr/internal/notify"
	"github.com/charlesng35/labmgr/pkg/logger"
)

const drainTimeout = 30 * time.Second

type rootOptions struct {
	configPath string
	actorID    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "labctl",
		Short:         "Administer a lab manager installation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to configuration directory or file")
	root.PersistentFlags().StringVar(&opts.actorID, "as", "", "account identifier recorded as the acting reviewer")

	root.AddCommand(
		newRegistrationsCmd(opts),
		newAccountsCmd(opts),
		newMailCmd(opts),
	)
	return root
}

// environment is the per-invocation runtime: configuration, database and services.
type environment struct {
	cfg        *app.Config
	db         *gorm.DB
	dispatcher *notify.Dispatcher
	services   *app.Services
	log        *zap.Logger
}

func openEnvironment(opts *rootOptions) (*environment, error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if _, err := app.ApplyRuntimeDefaults(cfg); err != nil {
		return nil, err
	}
	if err := app.ConfigureLogging(cfg.Server); err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	env := &environment{cfg: cfg, log: logger.WithModule("labctl")}

	env.db, err = database.Open(cfg.Database.Connection())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.AutoMigrateAndSeed(env.db); err != nil {
		env.Close()
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	mailer, err := cfg.Email.NewMailer()
	if err != nil {
		env.Close()
		return nil, err
	}
	env.dispatcher, err = notify.NewDispatcher(mailer, cfg.Notifications.DispatcherOptions()...)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.services, err = app.NewServices(env.db, cfg, env.dispatcher, cache.NewMemoryStore(0, 0))
	if err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

// Close drains queued notifications and releases the database.
func (e *environment) Close() {
	if e.dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		if err := e.dispatcher.Close(ctx); err != nil {
			e.log.Warn("notification queue not drained", zap.Error(err))
		}
		cancel()
	}
	if e.db != nil {
		if sqlDB, err := e.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = logger.Sync()
}

// actorContext attributes audit entries to the --as account, or to labctl itself.
func (e *environment) actorContext(ctx context.Context, opts *rootOptions) (context.Context, auditctx.Actor, error) {
	actor := auditctx.Actor{Name: "labctl", UserAgent: "labctl"}
	if id := strings.TrimSpace(opts.actorID); id != "" {
		account, err := e.services.Accounts.Get(ctx, id)
		if err != nil {
			return nil, actor, fmt.Errorf("resolve --as %q: %w", id, err)
		}
		if !account.IsSuperuser {
			return nil, actor, fmt.Errorf("account %s is not a superuser", id)
		}
		actor.AccountID = account.ID
		actor.Name = account.FullName()
	}
	return auditctx.WithActor(ctx, actor), actor, nil
}

func loadConfig(path string) (*app.Config, error) {
	if strings.TrimSpace(path) == "" {
		return app.LoadConfig()
	}
	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return app.LoadConfig(path)
	case err == nil:
		return app.LoadConfig(filepath.Dir(path))
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("config path %q does not exist", path)
	default:
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

// withEnvironment opens the environment for the duration of run.
func withEnvironment(opts *rootOptions, run func(*environment) error) error {
	env, err := openEnvironment(opts)
	if err != nil {
		return err
	}
	defer env.Close()
	return run(env)
}
