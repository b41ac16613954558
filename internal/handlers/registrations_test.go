package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/labmgr/internal/handlers/testutil"
	"github.com/charlesng35/labmgr/internal/models"
	"github.com/charlesng35/labmgr/internal/notify"
)

func registrationPayload(identifier, email string) map[string]string {
	return map[string]string{
		"first_name":            "Grace",
		"last_name":             "Hopper",
		"email":                 email,
		"identifier":            identifier,
		"password":              "compile-me-please",
		"password_confirmation": "compile-me-please",
	}
}

func submitRegistration(t *testing.T, env *testutil.Env, identifier, email string) models.RegistrationRequest {
	t.Helper()
	w := env.Request(http.MethodPost, "/api/registrations", registrationPayload(identifier, email), "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var request models.RegistrationRequest
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &request)
	return request
}

func TestRegistrationSubmitAndApprove(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.Token("1", true, true)

	request := submitRegistration(t, env, "20230001", "Grace@Example.com")
	require.Equal(t, models.StatusPending, request.Status)
	require.Equal(t, "grace@example.com", request.Email)
	require.Empty(t, env.Outbox.Jobs())

	w := env.Request(http.MethodGet, "/api/registrations/pending-count", nil, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var count struct {
		Pending int64 `json:"pending"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &count)
	require.Equal(t, int64(1), count.Pending)

	w = env.Request(http.MethodPost, "/api/registrations/"+request.ID+"/approve", nil, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	welcome := env.Outbox.OfKind(notify.KindWelcome)
	require.Len(t, welcome, 1)
	require.Equal(t, []string{"grace@example.com"}, welcome[0].To)

	login := env.Login("20230001", "compile-me-please")
	require.Equal(t, "grace@example.com", login.Account.Email)

	w = env.Request(http.MethodPost, "/api/registrations/"+request.ID+"/approve", nil, admin)
	require.Equal(t, http.StatusConflict, w.Code)
	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, "ALREADY_PROCESSED", resp.Error.Code)
	require.Equal(t, "This request has already been approved.", resp.Error.Message)
	require.Len(t, env.Outbox.OfKind(notify.KindWelcome), 1)
}

func TestRegistrationSubmitValidation(t *testing.T) {
	env := testutil.NewEnv(t)

	payload := registrationPayload("12ab", "not-an-email")
	payload["password_confirmation"] = "something-else"

	w := env.Request(http.MethodPost, "/api/registrations", payload, "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	resp := testutil.DecodeResponse(t, w)
	require.False(t, resp.Success)
	require.Contains(t, resp.Error.Details, "identifier")
	require.Contains(t, resp.Error.Details, "email")
	require.Contains(t, resp.Error.Details, "password_confirmation")
}

func TestRegistrationSubmitDuplicate(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateAccount("20230002", "correct-horse", false, false)

	submitRegistration(t, env, "20230003", "taken@example.com")

	w := env.Request(http.MethodPost, "/api/registrations", registrationPayload("20230002", "TAKEN@example.com"), "")
	require.Equal(t, http.StatusConflict, w.Code)

	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, "DUPLICATE_IDENTITY", resp.Error.Code)
	require.Contains(t, resp.Error.Details, "email")
	require.Contains(t, resp.Error.Details, "identifier")
}

func TestRegistrationRejectWithReason(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.Token("1", true, true)
	request := submitRegistration(t, env, "20230004", "reject@example.com")

	w := env.Request(http.MethodPost, "/api/registrations/"+request.ID+"/reject", map[string]string{"reason": "missing documents"}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rejected models.RegistrationRequest
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &rejected)
	require.Equal(t, models.StatusRejected, rejected.Status)
	require.Equal(t, "missing documents", rejected.Reason)
	require.Empty(t, env.Outbox.Jobs())

	w = env.Request(http.MethodPost, "/api/registrations/"+request.ID+"/approve", nil, admin)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "This request has already been rejected.", testutil.DecodeResponse(t, w).Error.Message)

	// rejected requests free their identity for a new submission
	submitRegistration(t, env, "20230004", "reject@example.com")
}

func TestRegistrationReviewRequiresSuperuser(t *testing.T) {
	env := testutil.NewEnv(t)
	staff := env.Token("2", true, false)
	request := submitRegistration(t, env, "20230005", "guarded@example.com")

	w := env.Request(http.MethodPost, "/api/registrations/"+request.ID+"/approve", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.Request(http.MethodPost, "/api/registrations/"+request.ID+"/approve", nil, staff)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.Request(http.MethodGet, "/api/registrations", nil, staff)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRegistrationListAndGet(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.Token("1", true, true)
	first := submitRegistration(t, env, "20230006", "first@example.com")
	submitRegistration(t, env, "20230007", "second@example.com")

	w := env.Request(http.MethodGet, "/api/registrations?per_page=1", nil, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	require.Equal(t, 2, resp.Meta.Total)
	require.Equal(t, 2, resp.Meta.TotalPages)

	var page []models.RegistrationRequest
	testutil.DecodeInto(t, resp.Data, &page)
	require.Len(t, page, 1)

	w = env.Request(http.MethodGet, "/api/registrations/"+first.ID, nil, admin)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.Request(http.MethodGet, "/api/registrations/unknown", nil, admin)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.Request(http.MethodGet, "/api/registrations?status=archived", nil, admin)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegistrationApproveUnknown(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.Token("1", true, true)

	w := env.Request(http.MethodPost, "/api/registrations/does-not-exist/approve", nil, admin)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "REGISTRATION_NOT_FOUND", testutil.DecodeResponse(t, w).Error.Code)
}
