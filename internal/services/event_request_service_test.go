package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/labmgr/internal/database/testutil"
	"github.com/charlesng35/labmgr/internal/models"
	"github.com/charlesng35/labmgr/internal/notify"
	apperrors "github.com/charlesng35/labmgr/pkg/errors"
)

func setupEvents(t *testing.T) (*EventRequestService, *recordingNotifier, *gorm.DB) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	notifier := &recordingNotifier{}
	svc, err := NewEventRequestService(db, newTestAudit(t, db), notifier, newTestTemplates(t))
	require.NoError(t, err)
	createAccount(t, db, "1", "requester@x.com", false)
	return svc, notifier, db
}

func sampleEvent(start time.Time) SubmitEventInput {
	return SubmitEventInput{
		Title:       "Arduino workshop",
		Type:        models.EventTypeWorkshop,
		Description: "Intro to microcontrollers",
		StartsAt:    start,
		EndsAt:      start.Add(2 * time.Hour),
	}
}

func TestEventSubmitNotifiesRequester(t *testing.T) {
	svc, notifier, _ := setupEvents(t)

	event, err := svc.Submit(context.Background(), "1", sampleEvent(time.Now().Add(48*time.Hour)))
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, event.Status)
	require.Equal(t, "1", event.CreatedByID)

	jobs := notifier.OfKind(notify.KindEventSubmitted)
	require.Len(t, jobs, 1)
	require.Equal(t, []string{"requester@x.com"}, jobs[0].To)
	require.Contains(t, jobs[0].Text, "Arduino workshop")
}

func TestEventSubmitValidation(t *testing.T) {
	svc, notifier, _ := setupEvents(t)
	start := time.Now().Add(time.Hour)

	input := sampleEvent(start)
	input.EndsAt = start
	_, err := svc.Submit(context.Background(), "1", input)
	require.Contains(t, apperrors.FromError(err).Details, "ends_at")

	input = sampleEvent(start)
	input.Type = "party"
	_, err = svc.Submit(context.Background(), "1", input)
	require.Contains(t, apperrors.FromError(err).Details, "type")

	_, err = svc.Submit(context.Background(), "999", sampleEvent(start))
	require.ErrorIs(t, err, ErrAccountNotFound)

	require.Empty(t, notifier.Jobs())
}

func TestEventApproveAndReject(t *testing.T) {
	svc, notifier, _ := setupEvents(t)
	ctx := context.Background()
	start := time.Now().Add(72 * time.Hour)

	first, err := svc.Submit(ctx, "1", sampleEvent(start))
	require.NoError(t, err)
	second, err := svc.Submit(ctx, "1", sampleEvent(start.Add(24*time.Hour)))
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, first.ID, admin)
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, approved.Status)
	require.NotNil(t, approved.CreatedBy)

	rejected, err := svc.Reject(ctx, second.ID, admin, "lab closed for maintenance")
	require.NoError(t, err)
	require.Equal(t, "lab closed for maintenance", rejected.Reason)

	require.Len(t, notifier.OfKind(notify.KindEventApproved), 1)
	rejections := notifier.OfKind(notify.KindEventRejected)
	require.Len(t, rejections, 1)
	require.Contains(t, rejections[0].Text, "lab closed for maintenance")

	_, err = svc.Approve(ctx, second.ID, admin)
	var processed *AlreadyProcessedError
	require.True(t, errors.As(err, &processed))
	require.Equal(t, models.StatusRejected, processed.Status)

	_, err = svc.Reject(ctx, "missing", admin, "")
	require.ErrorIs(t, err, ErrEventRequestNotFound)
}

func TestEventListAndUpcoming(t *testing.T) {
	svc, _, db := setupEvents(t)
	ctx := context.Background()
	createAccount(t, db, "2", "other@x.com", false)

	soon, err := svc.Submit(ctx, "1", sampleEvent(time.Now().Add(24*time.Hour)))
	require.NoError(t, err)
	later, err := svc.Submit(ctx, "1", sampleEvent(time.Now().Add(96*time.Hour)))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "2", sampleEvent(time.Now().Add(48*time.Hour)))
	require.NoError(t, err)

	_, err = svc.Approve(ctx, later.ID, admin)
	require.NoError(t, err)

	events, total, err := svc.List(ctx, EventListOptions{CreatedByID: "1"})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Equal(t, soon.ID, events[0].ID, "ordered by start time")

	pending, total, err := svc.List(ctx, EventListOptions{Status: models.StatusPending})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, pending, 2)

	_, _, err = svc.List(ctx, EventListOptions{Status: "bogus"})
	require.Equal(t, 400, apperrors.FromError(err).StatusCode)

	upcoming, err := svc.Upcoming(ctx, "1", 5)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	require.Equal(t, later.ID, upcoming[0].ID)
}
