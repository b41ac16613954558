package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/labmgr/internal/auth"
	"github.com/charlesng35/labmgr/internal/models"
	"github.com/charlesng35/labmgr/internal/notify"
	"github.com/charlesng35/labmgr/pkg/crypto"
	"github.com/charlesng35/labmgr/pkg/logger"
)

// DefaultPasswordResetTTL bounds how long a reset link stays valid.
const DefaultPasswordResetTTL = time.Hour

const resetTokenLength = 32

// PasswordResetService issues and redeems single-use password reset tokens. Only token
// digests are stored.
type PasswordResetService struct {
	db        *gorm.DB
	audit     *AuditService
	sessions  *auth.SessionService
	notifier  Notifier
	templates *notify.Templates
	ttl       time.Duration
	log       *zap.Logger
	now       func() time.Time
}

// NewPasswordResetService constructs a PasswordResetService.
func NewPasswordResetService(db *gorm.DB, audit *AuditService, sessions *auth.SessionService, notifier Notifier, templates *notify.Templates, ttl time.Duration) (*PasswordResetService, error) {
	if db == nil {
		return nil, errors.New("password reset service: db is required")
	}
	if notifier == nil || templates == nil {
		return nil, errors.New("password reset service: notifier and templates are required")
	}
	if ttl <= 0 {
		ttl = DefaultPasswordResetTTL
	}
	return &PasswordResetService{
		db:        db,
		audit:     audit,
		sessions:  sessions,
		notifier:  notifier,
		templates: templates,
		ttl:       ttl,
		log:       logger.WithModule("password_reset"),
		now:       time.Now,
	}, nil
}

// Request emails a reset link when an active account owns email. The result is the same
// whether or not the account exists.
func (s *PasswordResetService) Request(ctx context.Context, email string) error {
	ctx = ensureContext(ctx)
	email = normaliseEmail(email)
	if err := validateInput(struct {
		Email string `json:"email" validate:"required,email"`
	}{email}); err != nil {
		return err
	}

	var account models.Account
	err := s.db.WithContext(ctx).Where("LOWER(email) = ? AND is_active = ?", email, true).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.Debug("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("password reset service: load account: %w", err)
	}

	token, err := crypto.GenerateToken(resetTokenLength)
	if err != nil {
		return fmt.Errorf("password reset service: generate token: %w", err)
	}

	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PasswordResetToken{}).
			Where("account_id = ? AND used_at IS NULL", account.ID).
			Update("used_at", now).Error; err != nil {
			return err
		}
		return tx.Create(&models.PasswordResetToken{
			AccountID: account.ID,
			TokenHash: crypto.HashToken(token),
			ExpiresAt: now.Add(s.ttl),
		}).Error
	})
	if err != nil {
		return fmt.Errorf("password reset service: store token: %w", err)
	}

	dispatch(s.notifier, s.log, notify.KindPasswordReset, func() (notify.Job, error) {
		return s.templates.PasswordReset(&account, s.resetLink(token), s.ttl)
	})

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:  account.ID,
		Action:   "auth.password_reset.request",
		Resource: "account:" + account.ID,
		Result:   auditSuccess,
		Summary:  fmt.Sprintf("Password reset requested for %s", account.String()),
	})
	return nil
}

// Confirm redeems token and sets a new password. Every session of the account is revoked.
func (s *PasswordResetService) Confirm(ctx context.Context, token, password string) error {
	ctx = ensureContext(ctx)
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidResetToken
	}
	if err := validateInput(struct {
		Password string `json:"password" validate:"required,min=8,max=128"`
	}{password}); err != nil {
		return err
	}

	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("password reset service: hash password: %w", err)
	}

	now := s.now()
	digest := crypto.HashToken(token)
	var record models.PasswordResetToken
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.PasswordResetToken{}).
			Where("token_hash = ? AND used_at IS NULL AND expires_at > ?", digest, now).
			Update("used_at", now)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrInvalidResetToken
		}
		if err := tx.Take(&record, "token_hash = ?", digest).Error; err != nil {
			return err
		}
		return tx.Model(&models.Account{}).Where("id = ?", record.AccountID).Updates(map[string]any{
			"password":        hashed,
			"failed_attempts": 0,
			"locked_until":    nil,
		}).Error
	})
	if err != nil {
		if errors.Is(err, ErrInvalidResetToken) {
			return err
		}
		return fmt.Errorf("password reset service: confirm: %w", err)
	}

	if s.sessions != nil {
		if err := s.sessions.RevokeAccountSessions(ctx, record.AccountID); err != nil {
			s.log.Warn("revoke sessions after password reset failed", zap.String("account_id", record.AccountID), zap.Error(err))
		}
	}

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:  record.AccountID,
		Action:   "auth.password_reset.confirm",
		Resource: "account:" + record.AccountID,
		Result:   auditSuccess,
		Summary:  "Password reset completed",
	})
	return nil
}

// CleanupExpired deletes used and expired tokens.
func (s *PasswordResetService) CleanupExpired(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).
		Where("expires_at < ? OR used_at IS NOT NULL", s.now()).
		Delete(&models.PasswordResetToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("password reset service: cleanup: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *PasswordResetService) resetLink(token string) string {
	base := s.templates.Site().BaseURL
	return base + "/reset-password?token=" + url.QueryEscape(token)
}
