package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/labmgr/internal/auditctx"
	"github.com/charlesng35/labmgr/internal/models"
	"github.com/charlesng35/labmgr/internal/notify"
	"github.com/charlesng35/labmgr/pkg/logger"
	apperrors "github.com/charlesng35/labmgr/pkg/errors"
)

// SubmitEventInput describes an event or visit booking.
type SubmitEventInput struct {
	Title       string           `json:"title" validate:"required,max=200"`
	Type        models.EventType `json:"type" validate:"required,oneof=event visit meeting workshop"`
	Description string           `json:"description" validate:"max=5000"`
	StartsAt    time.Time        `json:"starts_at" validate:"required"`
	EndsAt      time.Time        `json:"ends_at" validate:"required"`
}

// EventListOptions filters and paginates event requests.
type EventListOptions struct {
	Status      models.RequestStatus
	CreatedByID string
	Page        int
	PageSize    int
}

// EventRequestService manages event and visit requests. Every transition notifies the
// requester.
type EventRequestService struct {
	db        *gorm.DB
	audit     *AuditService
	notifier  Notifier
	templates *notify.Templates
	log       *zap.Logger
	now       func() time.Time
}

// NewEventRequestService constructs an EventRequestService.
func NewEventRequestService(db *gorm.DB, audit *AuditService, notifier Notifier, templates *notify.Templates) (*EventRequestService, error) {
	if db == nil {
		return nil, errors.New("event request service: db is required")
	}
	if notifier != nil && templates == nil {
		return nil, errors.New("event request service: templates are required when notifications are enabled")
	}
	return &EventRequestService{
		db:        db,
		audit:     audit,
		notifier:  notifier,
		templates: templates,
		log:       logger.WithModule("events"),
		now:       time.Now,
	}, nil
}

// Submit stores a pending request and acknowledges it to the requester.
func (s *EventRequestService) Submit(ctx context.Context, requesterID string, input SubmitEventInput) (*models.EventRequest, error) {
	ctx = ensureContext(ctx)
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if !input.EndsAt.After(input.StartsAt) {
		return nil, apperrors.NewBadRequest("ends at must be after starts at").
			WithDetails(map[string]string{"ends_at": "ends at must be after starts at"})
	}

	var requester models.Account
	if err := s.db.WithContext(ctx).Take(&requester, "id = ?", requesterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("event request service: load requester: %w", err)
	}

	event := &models.EventRequest{
		Title:       input.Title,
		Type:        input.Type,
		Description: input.Description,
		StartsAt:    input.StartsAt.UTC(),
		EndsAt:      input.EndsAt.UTC(),
		Status:      models.StatusPending,
		CreatedByID: requester.ID,
	}
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return nil, fmt.Errorf("event request service: create: %w", err)
	}
	event.CreatedBy = &requester

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:   requester.ID,
		ActorName: requester.FullName(),
		Action:    "event.submit",
		Resource:  "event:" + event.ID,
		Result:    auditSuccess,
		Summary:   fmt.Sprintf("%s requested %q", requester.String(), event.Title),
	})

	dispatch(s.notifier, s.log, notify.KindEventSubmitted, func() (notify.Job, error) { return s.templates.EventSubmitted(event, &requester) })
	return event, nil
}

// Approve accepts a pending request and notifies the requester.
func (s *EventRequestService) Approve(ctx context.Context, eventID string, actor auditctx.Actor) (*models.EventRequest, error) {
	event, err := s.review(ctx, eventID, models.StatusApproved, actor, "")
	if err != nil {
		return nil, err
	}
	dispatch(s.notifier, s.log, notify.KindEventApproved, func() (notify.Job, error) { return s.templates.EventApproved(event, event.CreatedBy) })
	return event, nil
}

// Reject declines a pending request and notifies the requester with the reason.
func (s *EventRequestService) Reject(ctx context.Context, eventID string, actor auditctx.Actor, reason string) (*models.EventRequest, error) {
	reason = strings.TrimSpace(reason)
	if err := validateReason(reason); err != nil {
		return nil, err
	}
	event, err := s.review(ctx, eventID, models.StatusRejected, actor, reason)
	if err != nil {
		return nil, err
	}
	dispatch(s.notifier, s.log, notify.KindEventRejected, func() (notify.Job, error) { return s.templates.EventRejected(event, event.CreatedBy, reason) })
	return event, nil
}

// Get returns an event request with its requester.
func (s *EventRequestService) Get(ctx context.Context, eventID string) (*models.EventRequest, error) {
	ctx = ensureContext(ctx)

	var event models.EventRequest
	err := s.db.WithContext(ctx).Preload("CreatedBy").Take(&event, "id = ?", strings.TrimSpace(eventID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEventRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("event request service: get: %w", err)
	}
	return &event, nil
}

// List returns event requests ordered by start time.
func (s *EventRequestService) List(ctx context.Context, opts EventListOptions) ([]models.EventRequest, int64, error) {
	ctx = ensureContext(ctx)
	page, perPage := normalisePage(opts.Page, opts.PageSize)

	query := s.db.WithContext(ctx).Model(&models.EventRequest{})
	if opts.Status != "" {
		if !opts.Status.Valid() {
			return nil, 0, apperrors.NewBadRequest("status must be one of: pending approved rejected")
		}
		query = query.Where("status = ?", opts.Status)
	}
	if opts.CreatedByID != "" {
		query = query.Where("created_by_id = ?", opts.CreatedByID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("event request service: count: %w", err)
	}

	var events []models.EventRequest
	if err := query.
		Preload("CreatedBy").
		Order("starts_at ASC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&events).Error; err != nil {
		return nil, 0, fmt.Errorf("event request service: list: %w", err)
	}
	return events, total, nil
}

// Upcoming returns the account's approved events that have not started yet.
func (s *EventRequestService) Upcoming(ctx context.Context, accountID string, limit int) ([]models.EventRequest, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 5
	}

	var events []models.EventRequest
	if err := s.db.WithContext(ctx).
		Where("created_by_id = ? AND status = ? AND starts_at >= ?", accountID, models.StatusApproved, s.now().UTC()).
		Order("starts_at ASC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("event request service: upcoming: %w", err)
	}
	return events, nil
}

func (s *EventRequestService) review(ctx context.Context, eventID string, to models.RequestStatus, actor auditctx.Actor, reason string) (*models.EventRequest, error) {
	ctx = ensureContext(ctx)
	eventID = strings.TrimSpace(eventID)

	var event models.EventRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := swapStatus(tx, &models.EventRequest{}, statusTransition{
			ID:       eventID,
			To:       to,
			Reviewer: actor.AccountID,
			Reason:   reason,
			At:       s.now(),
		})
		if err != nil {
			return err
		}
		return tx.Preload("CreatedBy").Take(&event, "id = ?", eventID).Error
	})

	var processed *AlreadyProcessedError
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrEventRequestNotFound
	case errors.As(err, &processed):
		return nil, err
	default:
		return nil, fmt.Errorf("event request service: review: %w", err)
	}

	action := "event.approve"
	if to == models.StatusRejected {
		action = "event.reject"
	}
	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:   actor.AccountID,
		ActorName: actor.Name,
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
		Action:    action,
		Resource:  "event:" + event.ID,
		Result:    auditSuccess,
		Summary:   fmt.Sprintf("%s %s %q", actor.Label(), to, event.Title),
		Metadata:  map[string]any{"reason": reason},
	})
	return &event, nil
}

