package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/labmgr/internal/auditctx"
	"github.com/charlesng35/labmgr/internal/cache"
	"github.com/charlesng35/labmgr/internal/models"
	"github.com/charlesng35/labmgr/internal/notify"
	"github.com/charlesng35/labmgr/pkg/crypto"
	"github.com/charlesng35/labmgr/pkg/logger"
	"github.com/charlesng35/labmgr/pkg/metrics"
)

var pendingCountCacheKey = cache.Key(cache.NamespaceRegistrations, "pending_count")

const pendingCountCacheTTL = 5 * time.Second

// SubmitRegistrationInput is an applicant's request for an account.
type SubmitRegistrationInput struct {
	FirstName  string `json:"first_name" validate:"required,max=150"`
	LastName   string `json:"last_name" validate:"required,max=150"`
	Email      string `json:"email" validate:"required,email,max=254"`
	Identifier string `json:"identifier" validate:"required,digits,max=13"`
	Password   string `json:"password" validate:"required,min=8,max=128"`
}

// RegistrationListOptions filters and paginates registration requests.
type RegistrationListOptions struct {
	Status   models.RequestStatus
	Query    string
	Page     int
	PageSize int
}

// RegistrationService governs the registration request lifecycle: submission, approval
// (which provisions the Account) and rejection.
type RegistrationService struct {
	db        *gorm.DB
	audit     *AuditService
	notifier  Notifier
	templates *notify.Templates
	cache     cache.KV
	log       *zap.Logger
	now       func() time.Time
	hash      func(string) (string, error)
}

// RegistrationOption customises a RegistrationService.
type RegistrationOption func(*RegistrationService)

// WithRegistrationCache enables caching of the pending count.
func WithRegistrationCache(store cache.KV) RegistrationOption {
	return func(s *RegistrationService) {
		s.cache = store
	}
}

// WithRegistrationClock overrides the clock used for review timestamps.
func WithRegistrationClock(now func() time.Time) RegistrationOption {
	return func(s *RegistrationService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRegistrationService constructs the workflow. A nil notifier disables notifications.
func NewRegistrationService(db *gorm.DB, audit *AuditService, notifier Notifier, templates *notify.Templates, opts ...RegistrationOption) (*RegistrationService, error) {
	if db == nil {
		return nil, errors.New("registration service: db is required")
	}
	if notifier != nil && templates == nil {
		return nil, errors.New("registration service: templates are required when notifications are enabled")
	}

	svc := &RegistrationService{
		db:        db,
		audit:     audit,
		notifier:  notifier,
		templates: templates,
		log:       logger.WithModule("registration"),
		now:       time.Now,
		hash:      crypto.HashPassword,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Submit validates uniqueness against accounts and pending requests and stores a new
// pending request with the password hashed. Applicants are not notified on submission.
func (s *RegistrationService) Submit(ctx context.Context, input SubmitRegistrationInput) (*models.RegistrationRequest, error) {
	ctx = ensureContext(ctx)

	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Email = normaliseEmail(input.Email)
	input.Identifier = strings.TrimSpace(input.Identifier)
	if err := validateInput(input); err != nil {
		metrics.RegistrationTransitions.WithLabelValues("submit", "invalid").Inc()
		return nil, err
	}

	conflicts, err := s.identityConflicts(s.db.WithContext(ctx), input.Email, input.Identifier)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		metrics.RegistrationTransitions.WithLabelValues("submit", "duplicate").Inc()
		return nil, newDuplicateIdentityError(conflicts...)
	}

	hashed, err := s.hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("registration service: hash password: %w", err)
	}

	request := &models.RegistrationRequest{
		FirstName:      input.FirstName,
		LastName:       input.LastName,
		Email:          input.Email,
		IdentityNumber: input.Identifier,
		PasswordHash:   hashed,
		Status:         models.StatusPending,
	}
	if err := s.db.WithContext(ctx).Create(request).Error; err != nil {
		return nil, fmt.Errorf("registration service: create request: %w", err)
	}

	metrics.RegistrationTransitions.WithLabelValues("submit", "success").Inc()
	s.invalidatePendingCount(ctx)

	recordAudit(s.audit, ctx, AuditEntry{
		ActorName:   request.FullName(),
		Action:      "registration.submit",
		Resource:    "registration:" + request.ID,
		Result:      auditSuccess,
		Summary:     fmt.Sprintf("Registration submitted by %s (%s)", request.FullName(), request.IdentityNumber),
		Description: fmt.Sprintf("%s submitted a registration request with email %s.", request.FullName(), request.Email),
		Metadata:    map[string]any{"identifier": request.IdentityNumber, "email": request.Email},
	})

	return request, nil
}

// Approve transitions a pending request to approved and provisions the Account from the
// stored fields and password hash. The status change is a conditional write, so
// concurrent approvals or rejections of the same request let exactly one win. Exactly one
// welcome notification is dispatched per successful approval.
func (s *RegistrationService) Approve(ctx context.Context, requestID string, actor auditctx.Actor) (*models.Account, error) {
	ctx = ensureContext(ctx)
	requestID = strings.TrimSpace(requestID)

	var (
		request models.RegistrationRequest
		account *models.Account
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.transition(tx, requestID, models.StatusApproved, actor, ""); err != nil {
			return err
		}
		if err := tx.Take(&request, "id = ?", requestID).Error; err != nil {
			return fmt.Errorf("registration service: reload request: %w", err)
		}

		conflicts, err := s.accountConflicts(tx, request.Email, request.IdentityNumber)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return newDuplicateIdentityError(conflicts...)
		}

		account = &models.Account{
			ID:        request.IdentityNumber,
			FirstName: request.FirstName,
			LastName:  request.LastName,
			Email:     request.Email,
			Password:  request.PasswordHash,
			IsActive:  true,
		}
		if err := tx.Create(account).Error; err != nil {
			if isUniqueConstraintError(err) {
				return newDuplicateIdentityError(uniqueViolationField(err))
			}
			return fmt.Errorf("registration service: create account: %w", err)
		}
		return nil
	})
	if err != nil {
		s.recordFailure(ctx, "approve", requestID, actor, err)
		return nil, err
	}

	metrics.RegistrationTransitions.WithLabelValues("approve", "success").Inc()
	s.invalidatePendingCount(ctx)

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:     actor.AccountID,
		ActorName:   actor.Name,
		IPAddress:   actor.IPAddress,
		UserAgent:   actor.UserAgent,
		Action:      "registration.approve",
		Resource:    "registration:" + request.ID,
		Result:      auditSuccess,
		Summary:     fmt.Sprintf("Approved registration of %s", account.String()),
		Description: fmt.Sprintf("%s approved the registration of %s <%s>; account %s created.", actor.Label(), account.FullName(), account.Email, account.ID),
		Metadata:    map[string]any{"account_id": account.ID},
	})

	dispatch(s.notifier, s.log, notify.KindWelcome, func() (notify.Job, error) { return s.templates.Welcome(account) })

	return account, nil
}

// Reject transitions a pending request to rejected. The applicant is not notified.
func (s *RegistrationService) Reject(ctx context.Context, requestID string, actor auditctx.Actor, reason string) (*models.RegistrationRequest, error) {
	ctx = ensureContext(ctx)
	requestID = strings.TrimSpace(requestID)
	reason = strings.TrimSpace(reason)
	if err := validateReason(reason); err != nil {
		return nil, err
	}

	var request models.RegistrationRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.transition(tx, requestID, models.StatusRejected, actor, reason); err != nil {
			return err
		}
		if err := tx.Take(&request, "id = ?", requestID).Error; err != nil {
			return fmt.Errorf("registration service: reload request: %w", err)
		}
		return nil
	})
	if err != nil {
		s.recordFailure(ctx, "reject", requestID, actor, err)
		return nil, err
	}

	metrics.RegistrationTransitions.WithLabelValues("reject", "success").Inc()
	s.invalidatePendingCount(ctx)

	description := fmt.Sprintf("%s rejected the registration of %s <%s>.", actor.Label(), request.FullName(), request.Email)
	if reason != "" {
		description += " Reason: " + reason
	}
	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:     actor.AccountID,
		ActorName:   actor.Name,
		IPAddress:   actor.IPAddress,
		UserAgent:   actor.UserAgent,
		Action:      "registration.reject",
		Resource:    "registration:" + request.ID,
		Result:      auditSuccess,
		Summary:     fmt.Sprintf("Rejected registration of %s (%s)", request.FullName(), request.IdentityNumber),
		Description: description,
		Metadata:    map[string]any{"reason": reason},
	})

	return &request, nil
}

// Get returns a single registration request.
func (s *RegistrationService) Get(ctx context.Context, requestID string) (*models.RegistrationRequest, error) {
	ctx = ensureContext(ctx)

	var request models.RegistrationRequest
	err := s.db.WithContext(ctx).Take(&request, "id = ?", strings.TrimSpace(requestID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRegistrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registration service: get request: %w", err)
	}
	return &request, nil
}

// List returns requests filtered by status (pending when unset), newest first.
func (s *RegistrationService) List(ctx context.Context, opts RegistrationListOptions) ([]models.RegistrationRequest, int64, error) {
	ctx = ensureContext(ctx)
	page, perPage := normalisePage(opts.Page, opts.PageSize)

	status := opts.Status
	if status == "" {
		status = models.StatusPending
	}
	if !status.Valid() {
		return nil, 0, validateInput(struct {
			Status string `json:"status" validate:"oneof=pending approved rejected"`
		}{string(status)})
	}

	query := s.db.WithContext(ctx).Model(&models.RegistrationRequest{}).Where("status = ?", status)
	if q := strings.TrimSpace(opts.Query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where(
			"LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(email) LIKE ? OR identity_number LIKE ?",
			like, like, like, like,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("registration service: count requests: %w", err)
	}

	var requests []models.RegistrationRequest
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&requests).Error; err != nil {
		return nil, 0, fmt.Errorf("registration service: list requests: %w", err)
	}
	return requests, total, nil
}

// PendingCount returns the number of requests awaiting review. The value is cached briefly
// and invalidated on every transition.
func (s *RegistrationService) PendingCount(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	if s.cache != nil {
		if raw, ok, err := s.cache.Get(ctx, pendingCountCacheKey); err == nil && ok {
			if count, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
				return count, nil
			}
		}
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.RegistrationRequest{}).
		Where("status = ?", models.StatusPending).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("registration service: count pending: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, pendingCountCacheKey, []byte(strconv.FormatInt(count, 10)), pendingCountCacheTTL)
	}
	return count, nil
}

func (s *RegistrationService) transition(tx *gorm.DB, requestID string, to models.RequestStatus, actor auditctx.Actor, reason string) error {
	err := swapStatus(tx, &models.RegistrationRequest{}, statusTransition{
		ID:       requestID,
		To:       to,
		Reviewer: actor.AccountID,
		Reason:   reason,
		At:       s.now(),
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRegistrationNotFound
	}
	var processed *AlreadyProcessedError
	if err != nil && !errors.As(err, &processed) {
		return fmt.Errorf("registration service: %w", err)
	}
	return err
}

func (s *RegistrationService) identityConflicts(db *gorm.DB, email, identifier string) ([]string, error) {
	conflicts, err := s.accountConflicts(db, email, identifier)
	if err != nil {
		return nil, err
	}

	var pendingEmail, pendingID int64
	if err := db.Model(&models.RegistrationRequest{}).
		Where("LOWER(email) = ? AND status = ?", email, models.StatusPending).
		Count(&pendingEmail).Error; err != nil {
		return nil, fmt.Errorf("registration service: check pending email: %w", err)
	}
	if err := db.Model(&models.RegistrationRequest{}).
		Where("identity_number = ? AND status = ?", identifier, models.StatusPending).
		Count(&pendingID).Error; err != nil {
		return nil, fmt.Errorf("registration service: check pending identifier: %w", err)
	}

	if pendingEmail > 0 {
		conflicts = append(conflicts, FieldEmail)
	}
	if pendingID > 0 {
		conflicts = append(conflicts, FieldIdentifier)
	}
	return conflicts, nil
}

func (s *RegistrationService) accountConflicts(db *gorm.DB, email, identifier string) ([]string, error) {
	var byEmail, byID int64
	if err := db.Model(&models.Account{}).Where("LOWER(email) = ?", normaliseEmail(email)).Count(&byEmail).Error; err != nil {
		return nil, fmt.Errorf("registration service: check account email: %w", err)
	}
	if err := db.Model(&models.Account{}).Where("id = ?", identifier).Count(&byID).Error; err != nil {
		return nil, fmt.Errorf("registration service: check account identifier: %w", err)
	}

	var conflicts []string
	if byEmail > 0 {
		conflicts = append(conflicts, FieldEmail)
	}
	if byID > 0 {
		conflicts = append(conflicts, FieldIdentifier)
	}
	return conflicts, nil
}

func (s *RegistrationService) recordFailure(ctx context.Context, action, requestID string, actor auditctx.Actor, err error) {
	result := "error"
	var processed *AlreadyProcessedError
	switch {
	case errors.Is(err, ErrRegistrationNotFound):
		result = "not_found"
	case errors.As(err, &processed):
		result = "already_processed"
	case errors.Is(err, ErrDuplicateIdentity):
		result = "duplicate"
	}
	metrics.RegistrationTransitions.WithLabelValues(action, result).Inc()

	if result == "error" || result == "not_found" {
		if result == "error" {
			s.log.Error("registration transition failed", zap.String("action", action), zap.String("request_id", requestID), zap.Error(err))
		}
		return
	}

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:     actor.AccountID,
		ActorName:   actor.Name,
		IPAddress:   actor.IPAddress,
		UserAgent:   actor.UserAgent,
		Action:      "registration." + action,
		Resource:    "registration:" + requestID,
		Result:      auditFailure,
		Summary:     fmt.Sprintf("Could not %s registration %s", action, requestID),
		Description: err.Error(),
	})
}

func (s *RegistrationService) invalidatePendingCount(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, pendingCountCacheKey)
	}
}

