package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/labmgr/internal/auth"
	"github.com/charlesng35/labmgr/internal/database/testutil"
	"github.com/charlesng35/labmgr/internal/models"
	"github.com/charlesng35/labmgr/pkg/crypto"
	apperrors "github.com/charlesng35/labmgr/pkg/errors"
)

func setupAccounts(t *testing.T) (*AccountService, *auth.SessionService) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	sessions := newTestSessions(t, db)
	svc, err := NewAccountService(db, newTestAudit(t, db), sessions)
	require.NoError(t, err)
	return svc, sessions
}

func TestAccountCreateAndGet(t *testing.T) {
	svc, _ := setupAccounts(t)
	ctx := context.Background()

	account, err := svc.Create(ctx, CreateAccountInput{
		ID:        "42",
		FirstName: "Root",
		LastName:  "Admin",
		Email:     "Root@Lab.example.com",
		Password:  "super-secret",
		Superuser: true,
	})
	require.NoError(t, err)
	require.True(t, account.IsSuperuser)
	require.True(t, account.IsStaff, "superusers are staff")
	require.Equal(t, "root@lab.example.com", account.Email)
	require.True(t, crypto.VerifyPassword(account.Password, "super-secret"))

	loaded, err := svc.Get(ctx, "42")
	require.NoError(t, err)
	require.Nil(t, loaded.Badge)

	_, err = svc.Get(ctx, "43")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAccountCreateConflicts(t *testing.T) {
	svc, _ := setupAccounts(t)
	ctx := context.Background()

	input := CreateAccountInput{ID: "42", FirstName: "A", LastName: "B", Email: "a@x.com", Password: "super-secret"}
	_, err := svc.Create(ctx, input)
	require.NoError(t, err)

	_, err = svc.Create(ctx, input)
	var dup *DuplicateIdentityError
	require.True(t, errors.As(err, &dup))
	require.Equal(t, []string{FieldEmail, FieldIdentifier}, dup.Fields)

	input.ID = "43"
	input.Email = "A@X.COM"
	_, err = svc.Create(ctx, input)
	require.True(t, errors.As(err, &dup))
	require.Equal(t, []string{FieldEmail}, dup.Fields)
}

func TestAccountCreateRejectsNonDigitIdentifier(t *testing.T) {
	svc, _ := setupAccounts(t)

	_, err := svc.Create(context.Background(), CreateAccountInput{ID: "abc", FirstName: "A", LastName: "B", Email: "a@x.com", Password: "super-secret"})
	appErr := apperrors.FromError(err)
	require.Equal(t, 400, appErr.StatusCode)
	require.Contains(t, appErr.Details, "identifier")
}

func TestAccountUpdateProfile(t *testing.T) {
	svc, _ := setupAccounts(t)
	ctx := context.Background()
	createAccount(t, svc.db, "1", "one@x.com", false)
	createAccount(t, svc.db, "2", "two@x.com", false)

	first := "  Maria "
	updated, err := svc.UpdateProfile(ctx, "1", UpdateProfileInput{FirstName: &first})
	require.NoError(t, err)
	require.Equal(t, "Maria", updated.FirstName)
	require.Equal(t, "Member", updated.LastName)

	taken := "TWO@x.com"
	_, err = svc.UpdateProfile(ctx, "1", UpdateProfileInput{Email: &taken})
	require.ErrorIs(t, err, ErrDuplicateIdentity)

	same := "one@x.com"
	_, err = svc.UpdateProfile(ctx, "1", UpdateProfileInput{Email: &same})
	require.NoError(t, err)

	bad := "nope"
	_, err = svc.UpdateProfile(ctx, "1", UpdateProfileInput{Email: &bad})
	require.Equal(t, 400, apperrors.FromError(err).StatusCode)
}

func TestAccountChangePasswordRevokesSessions(t *testing.T) {
	svc, sessions := setupAccounts(t)
	ctx := context.Background()

	account, err := svc.Create(ctx, CreateAccountInput{ID: "7", FirstName: "A", LastName: "B", Email: "a@x.com", Password: "old-password"})
	require.NoError(t, err)
	tokens, _, err := sessions.CreateSession(ctx, account, auth.SessionMetadata{})
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, "7", "wrong-password", "new-password")
	require.ErrorIs(t, err, ErrCurrentPasswordMismatch)

	err = svc.ChangePassword(ctx, "7", "old-password", "short")
	require.Equal(t, 400, apperrors.FromError(err).StatusCode)

	require.NoError(t, svc.ChangePassword(ctx, "7", "old-password", "new-password"))

	reloaded, err := svc.Get(ctx, "7")
	require.NoError(t, err)
	require.True(t, crypto.VerifyPassword(reloaded.Password, "new-password"))

	_, _, err = sessions.RefreshSession(ctx, tokens.RefreshToken)
	require.Error(t, err)
}

func TestAccountBadges(t *testing.T) {
	svc, _ := setupAccounts(t)
	ctx := context.Background()
	createAccount(t, svc.db, "1", "one@x.com", false)
	createAccount(t, svc.db, "2", "two@x.com", false)

	badge, err := svc.AssignBadge(ctx, "1", "000123")
	require.NoError(t, err)
	require.Equal(t, "000123", badge.CardNumber)

	badge, err = svc.AssignBadge(ctx, "1", "000124")
	require.NoError(t, err)
	require.Equal(t, "000124", badge.CardNumber)
	require.EqualValues(t, 1, testutil.MustCount(t, svc.db, &models.Badge{}))

	_, err = svc.AssignBadge(ctx, "2", "000124")
	require.ErrorIs(t, err, ErrBadgeNumberTaken)

	_, err = svc.AssignBadge(ctx, "2", "12ab")
	require.Equal(t, 400, apperrors.FromError(err).StatusCode)

	_, err = svc.AssignBadge(ctx, "99", "555")
	require.ErrorIs(t, err, ErrAccountNotFound)

	account, err := svc.Get(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, account.Badge)
	require.Equal(t, "000124", account.Badge.CardNumber)

	require.NoError(t, svc.ClearBadge(ctx, "1"))
	account, err = svc.Get(ctx, "1")
	require.NoError(t, err)
	require.Nil(t, account.Badge)
}

func TestAccountList(t *testing.T) {
	svc, _ := setupAccounts(t)
	ctx := context.Background()
	createAccount(t, svc.db, "1", "one@x.com", false)
	createAccount(t, svc.db, "2", "two@x.com", true)

	accounts, total, err := svc.List(ctx, AccountListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, accounts, 2)

	accounts, total, err = svc.List(ctx, AccountListOptions{Query: "TWO@"})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "2", accounts[0].ID)
}
