package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/labmgr/internal/auditctx"
	iauth "github.com/charlesng35/labmgr/internal/auth"
	"github.com/charlesng35/labmgr/internal/models"
	apperrors "github.com/charlesng35/labmgr/pkg/errors"
)

type stubAccounts map[string]*models.Account

func (s stubAccounts) Get(_ context.Context, id string) (*models.Account, error) {
	if account, ok := s[id]; ok {
		return account, nil
	}
	return nil, apperrors.ErrNotFound
}

func newAuthFixture(t *testing.T) (*iauth.JWTService, stubAccounts) {
	t.Helper()
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "secret",
		Issuer:         "test-suite",
		AccessTokenTTL: time.Minute,
	})
	require.NoError(t, err)

	accounts := stubAccounts{
		"100": {ID: "100", FirstName: "Ana", LastName: "Souza", IsActive: true},
		"200": {ID: "200", FirstName: "Staff", LastName: "Member", IsActive: true, IsStaff: true},
		"300": {ID: "300", FirstName: "Root", LastName: "Admin", IsActive: true, IsStaff: true, IsSuperuser: true},
		"400": {ID: "400", FirstName: "Gone", LastName: "Away", IsActive: false},
	}
	return jwtSvc, accounts
}

func bearer(t *testing.T, jwtSvc *iauth.JWTService, accountID string) string {
	t.Helper()
	token, err := jwtSvc.GenerateAccessToken(iauth.AccessTokenInput{AccountID: accountID, SessionID: "session-abc"})
	require.NoError(t, err)
	return "Bearer " + token
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc, accounts := newAuthFixture(t)

	r := gin.New()
	r.GET("/secure", Auth(jwtSvc, accounts), func(c *gin.Context) {
		actor, _ := auditctx.FromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"account_id": c.GetString(CtxAccountIDKey),
			"session_id": c.GetString(CtxSessionIDKey),
			"actor":      actor.Label(),
		})
	})

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"unknown account", bearer(t, jwtSvc, "999"), http.StatusUnauthorized},
		{"inactive account", bearer(t, jwtSvc, "400"), http.StatusUnauthorized},
		{"valid", bearer(t, jwtSvc, "100"), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/secure", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			require.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusUnauthorized {
				require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
			}
		})
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", bearer(t, jwtSvc, "100"))
	r.ServeHTTP(w, req)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, "100", payload["account_id"])
	require.Equal(t, "session-abc", payload["session_id"])
	require.Equal(t, "Ana Souza (100)", payload["actor"])
}

func TestRoleGuards(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc, accounts := newAuthFixture(t)

	r := gin.New()
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }
	r.GET("/staff", Auth(jwtSvc, accounts), RequireStaff(), ok)
	r.GET("/super", Auth(jwtSvc, accounts), RequireSuperuser(), ok)
	r.GET("/unauthenticated", RequireStaff(), ok)

	cases := []struct {
		path    string
		account string
		status  int
	}{
		{"/staff", "100", http.StatusForbidden},
		{"/staff", "200", http.StatusNoContent},
		{"/staff", "300", http.StatusNoContent},
		{"/super", "200", http.StatusForbidden},
		{"/super", "300", http.StatusNoContent},
		{"/unauthenticated", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.account != "" {
			req.Header.Set("Authorization", bearer(t, jwtSvc, tc.account))
		}
		r.ServeHTTP(w, req)
		require.Equal(t, tc.status, w.Code, "%s as %q", tc.path, tc.account)
	}
}
