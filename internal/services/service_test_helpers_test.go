package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/labmgr/internal/auth"
	"github.com/charlesng35/labmgr/internal/database/testutil"
	"github.com/charlesng35/labmgr/internal/models"
	"github.com/charlesng35/labmgr/internal/notify"
	"github.com/charlesng35/labmgr/pkg/mail"
)

type recordingNotifier struct {
	mu   sync.Mutex
	jobs []notify.Job
}

func (n *recordingNotifier) Dispatch(job notify.Job) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, job)
	return true
}

func (n *recordingNotifier) Jobs() []notify.Job {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Job(nil), n.jobs...)
}

func (n *recordingNotifier) OfKind(kind notify.Kind) []notify.Job {
	var out []notify.Job
	for _, job := range n.Jobs() {
		if job.Kind == kind {
			out = append(out, job)
		}
	}
	return out
}

type failingMailer struct {
	mu    sync.Mutex
	calls int
}

func (m *failingMailer) Send(context.Context, mail.Message) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return errors.New("dial tcp 127.0.0.1:25: connect: connection refused")
}

func (m *failingMailer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestTemplates(t *testing.T) *notify.Templates {
	t.Helper()
	tmpl, err := notify.NewTemplates(notify.Site{
		Name:              "FabLab",
		BaseURL:           "https://lab.example.com",
		From:              "no-reply@lab.example.com",
		OperationsMailbox: "ops@lab.example.com",
	})
	require.NoError(t, err)
	return tmpl
}

func newTestAudit(t *testing.T, db *gorm.DB) *AuditService {
	t.Helper()
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	return audit
}

func newTestSessions(t *testing.T, db *gorm.DB) *auth.SessionService {
	t.Helper()
	jwtService, err := auth.NewJWTService(auth.JWTConfig{Secret: "test-secret", Issuer: "labmgr"})
	require.NoError(t, err)
	sessions, err := auth.NewSessionService(db, jwtService, auth.SessionConfig{})
	require.NoError(t, err)
	return sessions
}

func fastHash(password string) (string, error) {
	return "plain:" + password, nil
}

type registrationFixture struct {
	db       *gorm.DB
	svc      *RegistrationService
	accounts *AccountService
	notifier *recordingNotifier
	audit    *AuditService
}

func setupRegistration(t *testing.T, opts ...RegistrationOption) registrationFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	audit := newTestAudit(t, db)
	notifier := &recordingNotifier{}

	svc, err := NewRegistrationService(db, audit, notifier, newTestTemplates(t), opts...)
	require.NoError(t, err)
	svc.hash = fastHash

	accounts, err := NewAccountService(db, audit, nil)
	require.NoError(t, err)

	return registrationFixture{db: db, svc: svc, accounts: accounts, notifier: notifier, audit: audit}
}

func sampleRegistration(identifier, email string) SubmitRegistrationInput {
	return SubmitRegistrationInput{
		FirstName:  "Ana",
		LastName:   "Souza",
		Email:      email,
		Identifier: identifier,
		Password:   "correct-horse",
	}
}

func createAccount(t *testing.T, db *gorm.DB, id, email string, staff bool) *models.Account {
	t.Helper()
	account := &models.Account{
		ID:        id,
		FirstName: "Staff",
		LastName:  "Member",
		Email:     email,
		Password:  "plain:correct-horse",
		IsActive:  true,
		IsStaff:   staff,
	}
	require.NoError(t, db.Create(account).Error)
	return account
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}
