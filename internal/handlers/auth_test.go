package handlers_test

import (
	"net/http"
	"net/url"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/labmgr/internal/handlers/testutil"
	"github.com/charlesng35/labmgr/internal/notify"
)

var resetHrefPattern = regexp.MustCompile(`https://lab\.example\.com/reset-password\?token=[A-Za-z0-9_\-%=]+`)

func TestAuthLoginMeRefreshLogout(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateAccount("1001", "correct-horse", false, false)

	login := env.Login("1001", "correct-horse")

	w := env.Request(http.MethodGet, "/api/auth/me", nil, login.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var me testutil.AccountPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &me)
	require.Equal(t, "1001", me.ID)

	w = env.Request(http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": login.Tokens.RefreshToken}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rotated testutil.TokenPair
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &rotated)
	require.NotEqual(t, login.Tokens.RefreshToken, rotated.RefreshToken)

	w = env.Request(http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": login.Tokens.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.Request(http.MethodPost, "/api/auth/logout", nil, rotated.AccessToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodPost, "/api/auth/refresh", map[string]string{"refresh_token": rotated.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthLoginFailures(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateAccount("1002", "correct-horse", false, false)

	w := env.Request(http.MethodPost, "/api/auth/login", map[string]string{"identifier": "1002", "password": "wrong-horse"}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "INVALID_CREDENTIALS", testutil.DecodeResponse(t, w).Error.Code)

	w = env.Request(http.MethodPost, "/api/auth/login", map[string]string{"identifier": "9999", "password": "correct-horse"}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.Request(http.MethodPost, "/api/auth/login", map[string]string{"identifier": "1002"}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, testutil.DecodeResponse(t, w).Error.Details, "password")
}

func TestAuthPendingRegistrationCannotLogin(t *testing.T) {
	env := testutil.NewEnv(t)
	submitRegistration(t, env, "20230010", "pending@example.com")

	w := env.Request(http.MethodPost, "/api/auth/login", map[string]string{"identifier": "20230010", "password": "compile-me-please"}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthChangePassword(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Token("1003", false, false)

	w := env.Request(http.MethodPost, "/api/auth/password", map[string]string{
		"current_password":      "correct-horse",
		"new_password":          "battery-staple",
		"password_confirmation": "battery-stapler",
	}, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, testutil.DecodeResponse(t, w).Error.Details, "password_confirmation")

	w = env.Request(http.MethodPost, "/api/auth/password", map[string]string{
		"current_password":      "not-it",
		"new_password":          "battery-staple",
		"password_confirmation": "battery-staple",
	}, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "INVALID_CURRENT_PASSWORD", testutil.DecodeResponse(t, w).Error.Code)

	w = env.Request(http.MethodPost, "/api/auth/password", map[string]string{
		"current_password":      "correct-horse",
		"new_password":          "battery-staple",
		"password_confirmation": "battery-staple",
	}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env.Login("1003", "battery-staple")
}

func TestAuthPasswordResetFlow(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateAccount("1004", "correct-horse", false, false)

	w := env.Request(http.MethodPost, "/api/auth/password-reset", map[string]string{"email": "nobody@example.com"}, "")
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Empty(t, env.Outbox.Jobs())

	w = env.Request(http.MethodPost, "/api/auth/password-reset", map[string]string{"email": "1004@LAB.example.com"}, "")
	require.Equal(t, http.StatusAccepted, w.Code)

	jobs := env.Outbox.OfKind(notify.KindPasswordReset)
	require.Len(t, jobs, 1)
	require.Equal(t, []string{"1004@lab.example.com"}, jobs[0].To)

	link := resetHrefPattern.FindString(jobs[0].HTML)
	require.NotEmpty(t, link, jobs[0].HTML)
	parsed, err := url.Parse(link)
	require.NoError(t, err)
	token := parsed.Query().Get("token")
	require.NotEmpty(t, token)

	confirm := map[string]string{
		"token":                 token,
		"password":              "fresh-password",
		"password_confirmation": "fresh-password",
	}
	w = env.Request(http.MethodPost, "/api/auth/password-reset/confirm", confirm, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env.Login("1004", "fresh-password")

	w = env.Request(http.MethodPost, "/api/auth/password-reset/confirm", confirm, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "INVALID_RESET_TOKEN", testutil.DecodeResponse(t, w).Error.Code)
}

func TestAuthRejectsInactiveAccountToken(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Token("1005", false, false)

	require.NoError(t, env.DB.Exec("UPDATE accounts SET is_active = ? WHERE id = ?", false, "1005").Error)

	w := env.Request(http.MethodGet, "/api/auth/me", nil, token)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
