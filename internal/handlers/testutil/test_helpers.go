package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/labmgr/internal/api"
	"github.com/charlesng35/labmgr/internal/app"
	"github.com/charlesng35/labmgr/internal/cache"
	sharedtestutil "github.com/charlesng35/labmgr/internal/database/testutil"
	"github.com/charlesng35/labmgr/internal/models"
	"github.com/charlesng35/labmgr/internal/notify"
	"github.com/charlesng35/labmgr/pkg/crypto"
	"github.com/charlesng35/labmgr/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	Services *app.Services
	Outbox   *Outbox
}

// Outbox records every notification job handed to the dispatcher.
type Outbox struct {
	mu   sync.Mutex
	jobs []notify.Job
}

func (o *Outbox) Dispatch(job notify.Job) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.jobs = append(o.jobs, job)
	return true
}

// Jobs returns a snapshot of recorded jobs.
func (o *Outbox) Jobs() []notify.Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]notify.Job(nil), o.jobs...)
}

// OfKind returns the recorded jobs of kind.
func (o *Outbox) OfKind(kind notify.Kind) []notify.Job {
	var out []notify.Job
	for _, job := range o.Jobs() {
		if job.Kind == kind {
			out = append(out, job)
		}
	}
	return out
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	cfg := &app.Config{
		Server: app.ServerConfig{
			BaseURL:  "https://lab.example.com",
			SiteName: "FabLab",
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
			Session: app.SessionSettings{
				RefreshTTL:    24 * time.Hour,
				RefreshLength: 48,
			},
			Lockout: app.LockoutSettings{Threshold: 5, Duration: time.Minute},
		},
		Email: app.EmailConfig{
			From:              "no-reply@lab.example.com",
			OperationsMailbox: "ops@lab.example.com",
		},
		RateLimit: app.RateLimitConfig{Requests: 1000, Window: time.Minute},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
		},
	}

	outbox := &Outbox{}
	svc, err := app.NewServices(db, cfg, outbox, cache.NewMemoryStore(0, 0))
	require.NoError(t, err)

	router, err := api.NewRouter(db, cfg, svc)
	require.NoError(t, err)

	return &Env{
		T:        t,
		DB:       db,
		Router:   router,
		Services: svc,
		Outbox:   outbox,
	}
}

// CreateAccount inserts an active account with the given identifier and password.
func (e *Env) CreateAccount(id, password string, staff, superuser bool) *models.Account {
	e.T.Helper()

	hashed, err := crypto.HashPassword(password)
	require.NoError(e.T, err)

	account := &models.Account{
		ID:          id,
		FirstName:   "Test",
		LastName:    "User " + id,
		Email:       id + "@lab.example.com",
		Password:    hashed,
		IsActive:    true,
		IsStaff:     staff || superuser,
		IsSuperuser: superuser,
	}
	require.NoError(e.T, e.DB.Create(account).Error)
	return account
}

// TokenPair mirrors the handler login response payload.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// AccountPayload captures the subset of account fields returned from auth endpoints.
type AccountPayload struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	IsActive    bool   `json:"is_active"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	Tokens  TokenPair      `json:"tokens"`
	Account AccountPayload `json:"account"`
}

// Login authenticates with identifier and password and returns the issued token pair.
func (e *Env) Login(identifier, password string) LoginResult {
	e.T.Helper()

	payload := map[string]string{
		"identifier": identifier,
		"password":   password,
	}

	w := e.Request(http.MethodPost, "/api/auth/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.Tokens.AccessToken)
	require.NotEmpty(e.T, result.Tokens.RefreshToken)
	require.Greater(e.T, result.Tokens.ExpiresIn, 0)
	require.Equal(e.T, identifier, result.Account.ID)

	return result
}

// Token creates an account and returns an access token for it.
func (e *Env) Token(id string, staff, superuser bool) string {
	e.T.Helper()
	e.CreateAccount(id, "correct-horse", staff, superuser)
	return e.Login(id, "correct-horse").Tokens.AccessToken
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
