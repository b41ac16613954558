package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/labmgr/internal/models"
	"github.com/charlesng35/labmgr/pkg/crypto"
	"github.com/charlesng35/labmgr/pkg/metrics"
)

// DefaultRefreshTokenTTL is the fallback refresh token lifetime.
const DefaultRefreshTokenTTL = 7 * 24 * time.Hour

// SessionConfig describes tunable behaviour for the SessionService.
type SessionConfig struct {
	RefreshTokenTTL time.Duration
	RefreshLength   int
	Clock           func() time.Time
	Cache           SessionCache
}

// SessionMetadata captures contextual information about the client.
type SessionMetadata struct {
	IPAddress string
	UserAgent string
}

// TokenPair is what a client receives after login or refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

var (
	// ErrSessionNotFound indicates that no session matches the provided token or identifier.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionRevoked marks a session that has been revoked by the user or administrators.
	ErrSessionRevoked = errors.New("session: revoked")
	// ErrSessionExpired signals that a refresh token has reached its expiry.
	ErrSessionExpired = errors.New("session: expired")
	// ErrSessionInvalidToken is returned when the supplied refresh token is malformed.
	ErrSessionInvalidToken = errors.New("session: invalid token")
	// ErrSessionAccountInactive is returned when refreshing a session of a deactivated account.
	ErrSessionAccountInactive = errors.New("session: account inactive")
)

// SessionService manages creation, rotation, and revocation of login sessions.
type SessionService struct {
	db         *gorm.DB
	jwt        *JWTService
	refreshTTL time.Duration
	tokenLen   int
	now        func() time.Time
	cache      SessionCache
}

// NewSessionService constructs a session manager backed by the provided database and JWT service.
func NewSessionService(db *gorm.DB, jwtService *JWTService, cfg SessionConfig) (*SessionService, error) {
	if db == nil {
		return nil, errors.New("session service: db is required")
	}
	if jwtService == nil {
		return nil, errors.New("session service: jwt service is required")
	}

	ttl := cfg.RefreshTokenTTL
	if ttl <= 0 {
		ttl = DefaultRefreshTokenTTL
	}

	length := cfg.RefreshLength
	if length <= 0 {
		length = 48
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &SessionService{
		db:         db,
		jwt:        jwtService,
		refreshTTL: ttl,
		tokenLen:   length,
		now:        clock,
		cache:      cfg.Cache,
	}, nil
}

// CreateSession opens a session for account and issues a fresh token pair.
func (s *SessionService) CreateSession(ctx context.Context, account *models.Account, meta SessionMetadata) (TokenPair, *models.Session, error) {
	ctx = ensureContext(ctx)
	if account == nil || strings.TrimSpace(account.ID) == "" {
		return TokenPair{}, nil, errors.New("session service: account is required")
	}

	refreshToken, err := s.newRefreshToken()
	if err != nil {
		return TokenPair{}, nil, err
	}

	now := s.now()
	session := &models.Session{
		AccountID:    account.ID,
		RefreshToken: refreshToken,
		IPAddress:    strings.TrimSpace(meta.IPAddress),
		UserAgent:    strings.TrimSpace(meta.UserAgent),
		ExpiresAt:    now.Add(s.refreshTTL),
		LastUsedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: create session: %w", err)
	}
	metrics.ActiveSessions.Inc()

	pair, err := s.pair(account, session)
	if err != nil {
		return TokenPair{}, nil, err
	}
	s.remember(ctx, session)
	return pair, session, nil
}

// RefreshSession rotates the refresh token and issues a new access token. The account is
// reloaded so privilege changes apply on the next refresh.
func (s *SessionService) RefreshSession(ctx context.Context, refreshToken string) (TokenPair, *models.Session, error) {
	ctx = ensureContext(ctx)
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, nil, ErrSessionInvalidToken
	}

	session, err := s.lookup(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, nil, err
	}

	now := s.now()
	switch {
	case session.RevokedAt != nil:
		return TokenPair{}, nil, ErrSessionRevoked
	case !session.Active(now):
		return TokenPair{}, nil, ErrSessionExpired
	}

	var account models.Account
	err = s.db.WithContext(ctx).Take(&account, "id = ?", session.AccountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return TokenPair{}, nil, ErrSessionNotFound
	}
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: load account: %w", err)
	}
	if !account.IsActive {
		return TokenPair{}, nil, ErrSessionAccountInactive
	}

	rotated, err := s.newRefreshToken()
	if err != nil {
		return TokenPair{}, nil, err
	}

	expiresAt := now.Add(s.refreshTTL)
	result := s.sessions(ctx).
		Where("id = ? AND refresh_token = ? AND revoked_at IS NULL", session.ID, refreshToken).
		Updates(map[string]any{
			"refresh_token": rotated,
			"expires_at":    expiresAt,
			"last_used_at":  now,
		})
	if result.Error != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: update session: %w", result.Error)
	}
	s.forget(ctx, refreshToken)
	if result.RowsAffected == 0 {
		// Rotated or revoked concurrently; the cached copy was stale.
		return TokenPair{}, nil, ErrSessionNotFound
	}

	session.RefreshToken = rotated
	session.ExpiresAt = expiresAt
	session.LastUsedAt = now

	pair, err := s.pair(&account, session)
	if err != nil {
		return TokenPair{}, nil, err
	}
	s.remember(ctx, session)
	return pair, session, nil
}

// RevokeSession marks a session as revoked, preventing further refresh operations.
func (s *SessionService) RevokeSession(ctx context.Context, sessionID string) error {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(sessionID) == "" {
		return ErrSessionInvalidToken
	}

	scope := func() *gorm.DB { return s.sessions(ctx).Where("id = ? AND revoked_at IS NULL", sessionID) }
	tokens := s.cachedTokens(scope())

	result := scope().Update("revoked_at", s.now())
	if result.Error != nil {
		return fmt.Errorf("session service: revoke session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}

	s.forget(ctx, tokens...)
	metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	return nil
}

// RevokeAccountSessions revokes every active session belonging to an account. Used after
// password changes and resets.
func (s *SessionService) RevokeAccountSessions(ctx context.Context, accountID string) error {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(accountID) == "" {
		return ErrSessionInvalidToken
	}

	scope := func() *gorm.DB { return s.sessions(ctx).Where("account_id = ? AND revoked_at IS NULL", accountID) }
	tokens := s.cachedTokens(scope())

	result := scope().Update("revoked_at", s.now())
	if result.Error != nil {
		return fmt.Errorf("session service: revoke account sessions: %w", result.Error)
	}

	s.forget(ctx, tokens...)
	if result.RowsAffected > 0 {
		metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	}
	return nil
}

// ListActive returns the account's sessions that can still be refreshed, newest first.
func (s *SessionService) ListActive(ctx context.Context, accountID string, limit int) ([]models.Session, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 10
	}

	var out []models.Session
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND revoked_at IS NULL AND expires_at > ?", accountID, s.now()).
		Order("last_used_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("session service: list sessions: %w", err)
	}
	return out, nil
}

// CleanupExpired deletes expired and revoked sessions and returns how many rows went.
// Only sessions that expired while still active count against the active gauge.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	now := s.now()

	var lapsed int64
	if err := s.sessions(ctx).
		Where("expires_at < ? AND revoked_at IS NULL", now).
		Count(&lapsed).Error; err != nil {
		return 0, fmt.Errorf("session service: count expired sessions: %w", err)
	}

	const stale = "expires_at < ? OR revoked_at IS NOT NULL"
	tokens := s.cachedTokens(s.sessions(ctx).Where(stale, now))

	result := s.db.WithContext(ctx).Where(stale, now).Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("session service: cleanup expired sessions: %w", result.Error)
	}

	s.forget(ctx, tokens...)
	if lapsed > 0 {
		metrics.ActiveSessions.Sub(float64(lapsed))
	}
	return result.RowsAffected, nil
}

func (s *SessionService) sessions(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.Session{})
}

// lookup resolves a refresh token through the cache first, then the table.
func (s *SessionService) lookup(ctx context.Context, refreshToken string) (*models.Session, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, refreshToken); err == nil && cached != nil {
			return cached, nil
		}
	}

	var session models.Session
	err := s.db.WithContext(ctx).Where("refresh_token = ?", refreshToken).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session service: find session: %w", err)
	}
	return &session, nil
}

// cachedTokens plucks the refresh tokens in scope so they can be evicted after the
// write. Without a cache there is nothing to evict and the query is skipped.
func (s *SessionService) cachedTokens(scope *gorm.DB) []string {
	if s.cache == nil {
		return nil
	}
	var tokens []string
	if err := scope.Pluck("refresh_token", &tokens).Error; err != nil {
		return nil
	}
	return tokens
}

// Cache failures are non-fatal; the table stays authoritative.
func (s *SessionService) remember(ctx context.Context, session *models.Session) {
	if s.cache != nil {
		_ = s.cache.Set(ctx, session, s.refreshTTL)
	}
}

func (s *SessionService) forget(ctx context.Context, tokens ...string) {
	if s.cache == nil {
		return
	}
	for _, token := range tokens {
		_ = s.cache.Delete(ctx, token)
	}
}

func (s *SessionService) newRefreshToken() (string, error) {
	token, err := crypto.GenerateToken(s.tokenLen)
	if err != nil {
		return "", fmt.Errorf("session service: generate refresh token: %w", err)
	}
	return token, nil
}

func (s *SessionService) pair(account *models.Account, session *models.Session) (TokenPair, error) {
	access, err := s.issueAccessToken(account, session.ID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: session.RefreshToken,
		ExpiresIn:    s.jwt.TTL(),
	}, nil
}

func (s *SessionService) issueAccessToken(account *models.Account, sessionID string) (string, error) {
	token, err := s.jwt.GenerateAccessToken(AccessTokenInput{
		AccountID: account.ID,
		SessionID: sessionID,
		Staff:     account.IsStaff,
		Superuser: account.IsSuperuser,
	})
	if err != nil {
		return "", fmt.Errorf("session service: generate access token: %w", err)
	}
	return token, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
