package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/labmgr/internal/handlers/testutil"
	"github.com/charlesng35/labmgr/internal/models"
	"github.com/charlesng35/labmgr/internal/services"
)

type profilePayload struct {
	Account  testutil.AccountPayload `json:"account"`
	Sections map[string]any          `json:"sections"`
	Absent   []string                `json:"absent"`
}

func TestProfileOwnAndUpdate(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Token("3001", false, false)

	w := env.Request(http.MethodGet, "/api/profile", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var profile profilePayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &profile)
	require.Equal(t, "3001", profile.Account.ID)
	require.Contains(t, profile.Absent, services.SectionBadge)
	require.Contains(t, profile.Sections, services.SectionRecentSessions)

	w = env.Request(http.MethodPatch, "/api/profile", map[string]string{"first_name": "Margaret", "email": "Margaret@Lab.Example.com"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated testutil.AccountPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &updated)
	require.Equal(t, "Margaret", updated.FirstName)
	require.Equal(t, "margaret@lab.example.com", updated.Email)

	w = env.Request(http.MethodPatch, "/api/profile", map[string]string{"email": "nope"}, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStaffBadgeManagement(t *testing.T) {
	env := testutil.NewEnv(t)
	member := env.Token("3002", false, false)
	staff := env.Token("3003", true, false)
	env.CreateAccount("3004", "correct-horse", false, false)

	w := env.Request(http.MethodPut, "/api/accounts/3002/badge", map[string]string{"card_number": "4242"}, member)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.Request(http.MethodPut, "/api/accounts/3002/badge", map[string]string{"card_number": "4242"}, staff)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var badge models.Badge
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &badge)
	require.Equal(t, "4242", badge.CardNumber)

	w = env.Request(http.MethodPut, "/api/accounts/3004/badge", map[string]string{"card_number": "4242"}, staff)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "BADGE_IN_USE", testutil.DecodeResponse(t, w).Error.Code)

	w = env.Request(http.MethodPut, "/api/accounts/3002/badge", map[string]string{"card_number": "42-42"}, staff)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.Request(http.MethodGet, "/api/accounts/3002/profile", nil, staff)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var profile profilePayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &profile)
	require.Contains(t, profile.Sections, services.SectionBadge)

	w = env.Request(http.MethodDelete, "/api/accounts/3002/badge", nil, staff)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/accounts/9999/profile", nil, staff)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.Request(http.MethodGet, "/api/accounts?q=3002", nil, staff)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, testutil.DecodeResponse(t, w).Meta.Total)
}

func TestAuditListRequiresSuperuser(t *testing.T) {
	env := testutil.NewEnv(t)
	staff := env.Token("3005", true, false)
	admin := env.Token("3006", true, true)

	w := env.Request(http.MethodGet, "/api/audit", nil, staff)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.Request(http.MethodGet, "/api/audit?action=auth.login", nil, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	require.GreaterOrEqual(t, resp.Meta.Total, 2)

	var logs []models.AuditLog
	testutil.DecodeInto(t, resp.Data, &logs)
	for _, entry := range logs {
		require.Equal(t, "auth.login", entry.Action)
	}
}
