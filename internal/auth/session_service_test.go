package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/labmgr/internal/cache"
	"github.com/charlesng35/labmgr/internal/database/testutil"
	"github.com/charlesng35/labmgr/internal/models"
	"github.com/charlesng35/labmgr/pkg/crypto"
)

func TestCreateSessionGeneratesTokens(t *testing.T) {
	db, svc, clock := setupSessionService(t, nil)
	account := createTestAccount(t, db, "1001")

	tokens, session, err := svc.CreateSession(context.Background(), account, SessionMetadata{
		IPAddress: "10.0.0.1 ",
		UserAgent: "unit-test",
	})
	require.NoError(t, err)

	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)
	require.Equal(t, time.Hour, tokens.ExpiresIn)
	require.Equal(t, account.ID, session.AccountID)
	require.Equal(t, "10.0.0.1", session.IPAddress)
	require.Equal(t, "unit-test", session.UserAgent)

	var reloaded models.Session
	require.NoError(t, db.Take(&reloaded, "id = ?", session.ID).Error)
	require.Equal(t, tokens.RefreshToken, reloaded.RefreshToken)
	require.True(t, reloaded.ExpiresAt.After(clock.Now()))
}

func TestCreateSessionRequiresAccount(t *testing.T) {
	_, svc, _ := setupSessionService(t, nil)
	_, _, err := svc.CreateSession(context.Background(), nil, SessionMetadata{})
	require.Error(t, err)
}

func TestRefreshSessionRotatesToken(t *testing.T) {
	for name, store := range map[string]cache.Store{
		"database only": nil,
		"cached":        cache.NewMemoryStore(time.Minute, time.Minute),
	} {
		t.Run(name, func(t *testing.T) {
			db, svc, clock := setupSessionService(t, store)
			account := createTestAccount(t, db, "1002")

			tokens, session, err := svc.CreateSession(context.Background(), account, SessionMetadata{})
			require.NoError(t, err)

			clock.Advance(5 * time.Minute)

			rotated, updated, err := svc.RefreshSession(context.Background(), tokens.RefreshToken)
			require.NoError(t, err)
			require.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)
			require.NotEqual(t, tokens.AccessToken, rotated.AccessToken)
			require.Equal(t, session.ID, updated.ID)
			require.True(t, updated.LastUsedAt.Equal(clock.Now()))

			_, _, err = svc.RefreshSession(context.Background(), tokens.RefreshToken)
			require.ErrorIs(t, err, ErrSessionNotFound)

			_, _, err = svc.RefreshSession(context.Background(), rotated.RefreshToken)
			require.NoError(t, err)
		})
	}
}

func TestRefreshSessionPicksUpPrivilegeChanges(t *testing.T) {
	db, svc, _ := setupSessionService(t, nil)
	account := createTestAccount(t, db, "1003")

	tokens, _, err := svc.CreateSession(context.Background(), account, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Account{}).Where("id = ?", account.ID).Update("is_staff", true).Error)

	rotated, _, err := svc.RefreshSession(context.Background(), tokens.RefreshToken)
	require.NoError(t, err)

	claims, err := svc.jwt.ValidateAccessToken(rotated.AccessToken)
	require.NoError(t, err)
	require.True(t, claims.Staff)

	require.NoError(t, db.Model(&models.Account{}).Where("id = ?", account.ID).Update("is_active", false).Error)
	_, _, err = svc.RefreshSession(context.Background(), rotated.RefreshToken)
	require.ErrorIs(t, err, ErrSessionAccountInactive)
}

func TestRefreshSessionExpired(t *testing.T) {
	db, svc, clock := setupSessionService(t, nil)
	account := createTestAccount(t, db, "1004")

	tokens, session, err := svc.CreateSession(context.Background(), account, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Session{}).
		Where("id = ?", session.ID).
		Update("expires_at", clock.Now().Add(-time.Minute)).Error)

	_, _, err = svc.RefreshSession(context.Background(), tokens.RefreshToken)
	require.ErrorIs(t, err, ErrSessionExpired)

	_, _, err = svc.RefreshSession(context.Background(), "  ")
	require.ErrorIs(t, err, ErrSessionInvalidToken)
}

func TestRevokeSessionPreventsRefresh(t *testing.T) {
	db, svc, _ := setupSessionService(t, cache.NewMemoryStore(time.Minute, time.Minute))
	account := createTestAccount(t, db, "1005")

	tokens, session, err := svc.CreateSession(context.Background(), account, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeSession(context.Background(), session.ID))
	require.ErrorIs(t, svc.RevokeSession(context.Background(), session.ID), ErrSessionNotFound)
	require.ErrorIs(t, svc.RevokeSession(context.Background(), "non-existent"), ErrSessionNotFound)

	_, _, err = svc.RefreshSession(context.Background(), tokens.RefreshToken)
	require.ErrorIs(t, err, ErrSessionRevoked)
}

func TestRevokeAccountSessionsAndListActive(t *testing.T) {
	db, svc, _ := setupSessionService(t, nil)
	account := createTestAccount(t, db, "1006")

	for i := 0; i < 3; i++ {
		_, _, err := svc.CreateSession(context.Background(), account, SessionMetadata{})
		require.NoError(t, err)
	}

	active, err := svc.ListActive(context.Background(), account.ID, 2)
	require.NoError(t, err)
	require.Len(t, active, 2)

	require.NoError(t, svc.RevokeAccountSessions(context.Background(), account.ID))

	active, err = svc.ListActive(context.Background(), account.ID, 0)
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestCleanupExpiredRemovesStaleSessions(t *testing.T) {
	db, svc, clock := setupSessionService(t, nil)
	account := createTestAccount(t, db, "1007")

	_, revoked, err := svc.CreateSession(context.Background(), account, SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, svc.RevokeSession(context.Background(), revoked.ID))

	_, _, err = svc.CreateSession(context.Background(), account, SessionMetadata{})
	require.NoError(t, err)

	clock.Advance(3 * time.Hour)
	_, fresh, err := svc.CreateSession(context.Background(), account, SessionMetadata{})
	require.NoError(t, err)

	removed, err := svc.CleanupExpired(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	var remaining []models.Session
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, fresh.ID, remaining[0].ID)
}

func setupSessionService(t *testing.T, store cache.Store) (*gorm.DB, *SessionService, *testClock) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &testClock{current: time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)}

	jwtService, err := NewJWTService(JWTConfig{
		Secret:         "session-secret",
		AccessTokenTTL: time.Hour,
		Clock:          clock.Now,
	})
	require.NoError(t, err)

	sessionService, err := NewSessionService(db, jwtService, SessionConfig{
		RefreshTokenTTL: 2 * time.Hour,
		RefreshLength:   24,
		Clock:           clock.Now,
		Cache:           NewSessionCache(store),
	})
	require.NoError(t, err)

	return db, sessionService, clock
}

func createTestAccount(t *testing.T, db *gorm.DB, id string) *models.Account {
	t.Helper()

	hashed, err := crypto.HashPassword("password")
	require.NoError(t, err)

	account := &models.Account{
		ID:        id,
		FirstName: "Test",
		LastName:  "Account",
		Email:     id + "@example.com",
		Password:  hashed,
		IsActive:  true,
	}
	require.NoError(t, db.Create(account).Error)
	return account
}

type testClock struct {
	current time.Time
}

func (c *testClock) Now() time.Time {
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}
