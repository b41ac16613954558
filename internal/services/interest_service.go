package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/labmgr/internal/models"
	"github.com/charlesng35/labmgr/internal/notify"
	"github.com/charlesng35/labmgr/pkg/logger"
)

// SubmitInquiryInput is a public expression of interest in a lab service.
type SubmitInquiryInput struct {
	ServiceID   string `json:"service_id" validate:"required"`
	Name        string `json:"name" validate:"required,max=150"`
	Email       string `json:"email" validate:"required,email,max=254"`
	Phone       string `json:"phone" validate:"max=30"`
	Description string `json:"description" validate:"required,max=5000"`
}

// InterestService lists lab services and forwards inquiries to the operations mailbox.
type InterestService struct {
	db        *gorm.DB
	audit     *AuditService
	notifier  Notifier
	templates *notify.Templates
	log       *zap.Logger
}

// NewInterestService constructs an InterestService.
func NewInterestService(db *gorm.DB, audit *AuditService, notifier Notifier, templates *notify.Templates) (*InterestService, error) {
	if db == nil {
		return nil, errors.New("interest service: db is required")
	}
	if notifier != nil && templates == nil {
		return nil, errors.New("interest service: templates are required when notifications are enabled")
	}
	return &InterestService{
		db:        db,
		audit:     audit,
		notifier:  notifier,
		templates: templates,
		log:       logger.WithModule("interest"),
	}, nil
}

// ListServices returns the active lab services by name.
func (s *InterestService) ListServices(ctx context.Context) ([]models.LabService, error) {
	ctx = ensureContext(ctx)

	var services []models.LabService
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("name ASC").Find(&services).Error; err != nil {
		return nil, fmt.Errorf("interest service: list services: %w", err)
	}
	return services, nil
}

// Submit records an inquiry and notifies the operations mailbox. The inquirer receives
// no email.
func (s *InterestService) Submit(ctx context.Context, input SubmitInquiryInput) (*models.InterestInquiry, error) {
	ctx = ensureContext(ctx)
	input.ServiceID = strings.TrimSpace(input.ServiceID)
	input.Name = strings.TrimSpace(input.Name)
	input.Email = normaliseEmail(input.Email)
	input.Phone = strings.TrimSpace(input.Phone)
	input.Description = strings.TrimSpace(input.Description)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var service models.LabService
	err := s.db.WithContext(ctx).Where("id = ? AND active = ?", input.ServiceID, true).Take(&service).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLabServiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("interest service: load service: %w", err)
	}

	inquiry := &models.InterestInquiry{
		ServiceID:   service.ID,
		Name:        input.Name,
		Email:       input.Email,
		Phone:       input.Phone,
		Description: input.Description,
	}
	if err := s.db.WithContext(ctx).Create(inquiry).Error; err != nil {
		return nil, fmt.Errorf("interest service: create inquiry: %w", err)
	}
	inquiry.Service = &service

	recordAudit(s.audit, ctx, AuditEntry{
		ActorName: inquiry.Name,
		Action:    "interest.submit",
		Resource:  "service:" + service.ID,
		Result:    auditSuccess,
		Summary:   fmt.Sprintf("Interest in %s from %s <%s>", service.Name, inquiry.Name, inquiry.Email),
	})

	dispatch(s.notifier, s.log, notify.KindInterestInquiry, func() (notify.Job, error) {
		return s.templates.InterestInquiry(inquiry, &service)
	})
	return inquiry, nil
}

// ListInquiries returns inquiries newest first.
func (s *InterestService) ListInquiries(ctx context.Context, page, pageSize int) ([]models.InterestInquiry, int64, error) {
	ctx = ensureContext(ctx)
	page, perPage := normalisePage(page, pageSize)

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.InterestInquiry{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("interest service: count inquiries: %w", err)
	}

	var inquiries []models.InterestInquiry
	if err := s.db.WithContext(ctx).
		Preload("Service").
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&inquiries).Error; err != nil {
		return nil, 0, fmt.Errorf("interest service: list inquiries: %w", err)
	}
	return inquiries, total, nil
}
