package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/labmgr/internal/auth"
	"github.com/charlesng35/labmgr/internal/models"
	"github.com/charlesng35/labmgr/pkg/crypto"
	apperrors "github.com/charlesng35/labmgr/pkg/errors"
	"github.com/charlesng35/labmgr/pkg/metrics"
)

// Lockout defaults.
const (
	DefaultMaxFailedAttempts = 5
	DefaultLockoutDuration   = 15 * time.Minute
)

// LockoutPolicy configures how repeated failed logins lock an account.
type LockoutPolicy struct {
	MaxFailedAttempts int
	Duration          time.Duration
}

// AuthService authenticates accounts by identifier and password. Pending registration
// requests can never log in because only Accounts are consulted.
type AuthService struct {
	db       *gorm.DB
	sessions *auth.SessionService
	audit    *AuditService
	policy   LockoutPolicy
	now      func() time.Time
}

// NewAuthService constructs an AuthService.
func NewAuthService(db *gorm.DB, sessions *auth.SessionService, audit *AuditService, policy LockoutPolicy) (*AuthService, error) {
	if db == nil {
		return nil, errors.New("auth service: db is required")
	}
	if sessions == nil {
		return nil, errors.New("auth service: session service is required")
	}
	if policy.MaxFailedAttempts <= 0 {
		policy.MaxFailedAttempts = DefaultMaxFailedAttempts
	}
	if policy.Duration <= 0 {
		policy.Duration = DefaultLockoutDuration
	}
	return &AuthService{db: db, sessions: sessions, audit: audit, policy: policy, now: time.Now}, nil
}

// Login verifies credentials and opens a session.
func (s *AuthService) Login(ctx context.Context, identifier, password string, meta auth.SessionMetadata) (auth.TokenPair, *models.Account, error) {
	ctx = ensureContext(ctx)
	identifier = strings.TrimSpace(identifier)

	var account models.Account
	err := s.db.WithContext(ctx).Take(&account, "id = ?", identifier).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		s.loginFailed(ctx, identifier, meta, "unknown identifier")
		return auth.TokenPair{}, nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return auth.TokenPair{}, nil, fmt.Errorf("auth service: load account: %w", err)
	}

	now := s.now()
	if account.LockedUntil != nil && account.LockedUntil.After(now) {
		metrics.AuthAttempts.WithLabelValues("locked").Inc()
		s.loginFailed(ctx, identifier, meta, "account locked")
		return auth.TokenPair{}, nil, apperrors.ErrAccountLocked
	}

	if !crypto.VerifyPassword(account.Password, password) {
		locked, err := s.registerFailure(ctx, &account, now)
		if err != nil {
			return auth.TokenPair{}, nil, err
		}
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		s.loginFailed(ctx, identifier, meta, "invalid password")
		if locked {
			return auth.TokenPair{}, nil, apperrors.ErrAccountLocked
		}
		return auth.TokenPair{}, nil, apperrors.ErrInvalidCredentials
	}

	if !account.IsActive {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		s.loginFailed(ctx, identifier, meta, "account inactive")
		return auth.TokenPair{}, nil, ErrAccountInactive
	}

	if err := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", account.ID).Updates(map[string]any{
		"failed_attempts": 0,
		"locked_until":    nil,
		"last_login_at":   now,
	}).Error; err != nil {
		return auth.TokenPair{}, nil, fmt.Errorf("auth service: record login: %w", err)
	}
	account.FailedAttempts = 0
	account.LockedUntil = nil
	account.LastLoginAt = &now

	tokens, _, err := s.sessions.CreateSession(ctx, &account, meta)
	if err != nil {
		return auth.TokenPair{}, nil, fmt.Errorf("auth service: %w", err)
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:   account.ID,
		ActorName: account.FullName(),
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Action:    "auth.login",
		Resource:  "account:" + account.ID,
		Result:    auditSuccess,
		Summary:   fmt.Sprintf("%s logged in", account.String()),
	})
	return tokens, &account, nil
}

// Refresh rotates a refresh token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	tokens, _, err := s.sessions.RefreshSession(ctx, refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrSessionNotFound),
			errors.Is(err, auth.ErrSessionRevoked),
			errors.Is(err, auth.ErrSessionExpired),
			errors.Is(err, auth.ErrSessionInvalidToken),
			errors.Is(err, auth.ErrSessionAccountInactive):
			return auth.TokenPair{}, apperrors.ErrUnauthorized.WithMessage("Session is no longer valid").WithInternal(err)
		default:
			return auth.TokenPair{}, fmt.Errorf("auth service: refresh: %w", err)
		}
	}
	return tokens, nil
}

// Logout revokes the session behind the current access token.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	err := s.sessions.RevokeSession(ctx, sessionID)
	if err != nil && !errors.Is(err, auth.ErrSessionNotFound) {
		return fmt.Errorf("auth service: logout: %w", err)
	}
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "auth.logout",
		Resource: "session:" + sessionID,
		Result:   auditSuccess,
		Summary:  "Session closed",
	})
	return nil
}

func (s *AuthService) registerFailure(ctx context.Context, account *models.Account, now time.Time) (bool, error) {
	attempts := account.FailedAttempts + 1
	updates := map[string]any{"failed_attempts": attempts}
	locked := attempts >= s.policy.MaxFailedAttempts
	if locked {
		until := now.Add(s.policy.Duration)
		updates["failed_attempts"] = 0
		updates["locked_until"] = until
	}
	if err := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", account.ID).Updates(updates).Error; err != nil {
		return false, fmt.Errorf("auth service: record failure: %w", err)
	}
	return locked, nil
}

func (s *AuthService) loginFailed(ctx context.Context, identifier string, meta auth.SessionMetadata, reason string) {
	recordAudit(s.audit, ctx, AuditEntry{
		ActorName: identifier,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Action:    "auth.login",
		Resource:  "account:" + identifier,
		Result:    auditFailure,
		Summary:   "Login failed: " + reason,
	})
}
