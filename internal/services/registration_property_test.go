package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"pgregory.net/rapid"

	"github.com/charlesng35/labmgr/internal/database"
	"github.com/charlesng35/labmgr/internal/models"
	"github.com/charlesng35/labmgr/internal/notify"
)

// TestRegistrationLifecycleProperties drives random submit/approve/reject sequences and
// checks that accounts, statuses and welcome emails stay consistent.
func TestRegistrationLifecycleProperties(t *testing.T) {
	tmpl := newTestTemplates(t)

	rapid.Check(t, func(rt *rapid.T) {
		db, err := database.Open(database.Config{Driver: "sqlite", Name: "prop-" + uuid.NewString()})
		if err != nil {
			rt.Fatalf("open db: %v", err)
		}
		sqlDB, _ := db.DB()
		rt.Cleanup(func() { _ = sqlDB.Close() })
		if err := database.AutoMigrate(db); err != nil {
			rt.Fatalf("migrate: %v", err)
		}

		notifier := &recordingNotifier{}
		svc, err := NewRegistrationService(db, nil, notifier, tmpl)
		if err != nil {
			rt.Fatalf("service: %v", err)
		}
		svc.hash = fastHash

		ctx := context.Background()
		identifiers := []string{"1001", "1002", "1003"}
		emails := []string{"p@x.com", "q@x.com", "r@x.com"}

		// model state
		var submitted []string
		status := map[string]models.RequestStatus{}
		pendingBy := map[string]string{}  // identifier -> request id
		pendingEmail := map[string]bool{} // email -> pending
		accounts := map[string]bool{}     // identifier
		accountEmails := map[string]bool{}

		rt.Repeat(map[string]func(*rapid.T){
			"submit": func(rt *rapid.T) {
				id := rapid.SampledFrom(identifiers).Draw(rt, "identifier")
				email := rapid.SampledFrom(emails).Draw(rt, "email")

				request, err := svc.Submit(ctx, sampleRegistration(id, email))
				conflict := accounts[id] || accountEmails[email] || pendingBy[id] != "" || pendingEmail[email]
				if conflict {
					if !errors.Is(err, ErrDuplicateIdentity) {
						rt.Fatalf("submit %s/%s: expected duplicate identity, got %v", id, email, err)
					}
					return
				}
				if err != nil {
					rt.Fatalf("submit %s/%s: %v", id, email, err)
				}
				submitted = append(submitted, request.ID)
				status[request.ID] = models.StatusPending
				pendingBy[id] = request.ID
				pendingEmail[email] = true
			},
			"approve": func(rt *rapid.T) {
				if len(submitted) == 0 {
					rt.Skip("nothing submitted")
				}
				requestID := rapid.SampledFrom(submitted).Draw(rt, "request")
				request, err := svc.Get(ctx, requestID)
				if err != nil {
					rt.Fatalf("get: %v", err)
				}

				_, err = svc.Approve(ctx, requestID, admin)
				if status[requestID] != models.StatusPending {
					if !errors.Is(err, ErrAlreadyProcessed) {
						rt.Fatalf("approve %s in %s: expected already processed, got %v", requestID, status[requestID], err)
					}
					return
				}
				if err != nil {
					rt.Fatalf("approve %s: %v", requestID, err)
				}
				status[requestID] = models.StatusApproved
				delete(pendingBy, request.IdentityNumber)
				delete(pendingEmail, request.Email)
				accounts[request.IdentityNumber] = true
				accountEmails[request.Email] = true
			},
			"reject": func(rt *rapid.T) {
				if len(submitted) == 0 {
					rt.Skip("nothing submitted")
				}
				requestID := rapid.SampledFrom(submitted).Draw(rt, "request")
				request, err := svc.Get(ctx, requestID)
				if err != nil {
					rt.Fatalf("get: %v", err)
				}

				_, err = svc.Reject(ctx, requestID, admin, "")
				if status[requestID] != models.StatusPending {
					if !errors.Is(err, ErrAlreadyProcessed) {
						rt.Fatalf("reject %s in %s: expected already processed, got %v", requestID, status[requestID], err)
					}
					return
				}
				if err != nil {
					rt.Fatalf("reject %s: %v", requestID, err)
				}
				status[requestID] = models.StatusRejected
				delete(pendingBy, request.IdentityNumber)
				delete(pendingEmail, request.Email)
			},
			"": func(rt *rapid.T) {
				approved := 0
				for _, s := range status {
					if s == models.StatusApproved {
						approved++
					}
				}

				var count int64
				if err := db.Model(&models.Account{}).Count(&count).Error; err != nil {
					rt.Fatalf("count accounts: %v", err)
				}
				if int(count) != approved || len(accounts) != approved {
					rt.Fatalf("accounts: db=%d model=%d approved=%d", count, len(accounts), approved)
				}
				if welcomes := len(notifier.OfKind(notify.KindWelcome)); welcomes != approved {
					rt.Fatalf("welcome emails: got %d, want %d", welcomes, approved)
				}
				for id, want := range status {
					var got []string
					if err := db.Model(&models.RegistrationRequest{}).Where("id = ?", id).Pluck("status", &got).Error; err != nil || len(got) != 1 {
						rt.Fatalf("load status %s: %v", id, err)
					}
					if models.RequestStatus(got[0]) != want {
						rt.Fatalf("request %s: status %s, want %s", id, got[0], want)
					}
				}
			},
		})
	})
}
