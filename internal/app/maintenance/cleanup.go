package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/labmgr/pkg/logger"
)

const (
	defaultAuditRetentionDays = 365
	defaultSessionSpec        = "@hourly"
	defaultAuditSpec          = "@daily"
	defaultTokenSpec          = "@daily"
)

// SessionPurger removes expired and revoked login sessions.
type SessionPurger interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// AuditPruner deletes audit entries older than a retention window.
type AuditPruner interface {
	CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error)
}

// TokenPurger removes used or expired password reset tokens.
type TokenPurger interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Cleaner runs periodic housekeeping: expired sessions, stale audit entries and
// password reset tokens.
type Cleaner struct {
	sessions  SessionPurger
	audit     AuditPruner
	tokens    TokenPurger
	cron      *cron.Cron
	log       *zap.Logger
	retention int

	sessionSchedule string
	auditSchedule   string
	tokenSchedule   string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithTokens enables password reset token cleanup.
func WithTokens(tokens TokenPurger) Option {
	return func(cleaner *Cleaner) {
		cleaner.tokens = tokens
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithSchedules overrides the cron specifications. Empty values keep the defaults.
func WithSchedules(sessions, audit, tokens string) Option {
	return func(cleaner *Cleaner) {
		if sessions != "" {
			cleaner.sessionSchedule = sessions
		}
		if audit != "" {
			cleaner.auditSchedule = audit
		}
		if tokens != "" {
			cleaner.tokenSchedule = tokens
		}
	}
}

// NewCleaner constructs a Cleaner. Any nil dependency results in the corresponding
// cleanup job being skipped.
func NewCleaner(sessions SessionPurger, audit AuditPruner, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		sessions:        sessions,
		audit:           audit,
		retention:       defaultAuditRetentionDays,
		sessionSchedule: defaultSessionSpec,
		auditSchedule:   defaultAuditSpec,
		tokenSchedule:   defaultTokenSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

func (c *Cleaner) enabled() bool {
	return c.sessions != nil || c.audit != nil || c.tokens != nil
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled() {
		return nil
	}

	if c.sessions != nil {
		if _, err := c.cron.AddFunc(c.sessionSchedule, func() {
			c.runJob("session", c.cleanSessions)
		}); err != nil {
			return err
		}
	}

	if c.audit != nil {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			c.runJob("audit", c.cleanAudit)
		}); err != nil {
			return err
		}
	}

	if c.tokens != nil {
		if _, err := c.cron.AddFunc(c.tokenSchedule, func() {
			c.runJob("token", c.cleanTokens)
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if c.sessions != nil {
		_, err := c.cleanSessions(ctx)
		errs = multierr.Append(errs, err)
	}
	if c.audit != nil {
		_, err := c.cleanAudit(ctx)
		errs = multierr.Append(errs, err)
	}
	if c.tokens != nil {
		_, err := c.cleanTokens(ctx)
		errs = multierr.Append(errs, err)
	}
	return errs
}

func (c *Cleaner) runJob(name string, job func(context.Context) (int64, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := job(ctx)
	if err != nil {
		c.log.Warn(name+" cleanup failed", zap.Error(err))
		return
	}
	if removed > 0 {
		c.log.Info(name+" cleanup completed", zap.Int64("removed", removed))
	}
}

func (c *Cleaner) cleanSessions(ctx context.Context) (int64, error) {
	return c.sessions.CleanupExpired(ctx)
}

func (c *Cleaner) cleanAudit(ctx context.Context) (int64, error) {
	return c.audit.CleanupOlderThan(ctx, c.retention)
}

func (c *Cleaner) cleanTokens(ctx context.Context) (int64, error) {
	return c.tokens.CleanupExpired(ctx)
}
