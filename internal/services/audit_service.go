package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/labmgr/internal/models"
)

// AuditEntry captures a single audit event to persist.
type AuditEntry struct {
	ActorID     string
	ActorName   string
	Action      string
	Resource    string
	Result      string
	Summary     string
	Description string
	IPAddress   string
	UserAgent   string
	Metadata    map[string]any
}

// AuditFilters encapsulates optional filters when querying audit logs.
type AuditFilters struct {
	ActorID  string
	Action   string
	Result   string
	Resource string
	Since    *time.Time
	Until    *time.Time
}

// AuditListOptions controls pagination and filtering for audit queries.
type AuditListOptions struct {
	Page     int
	PageSize int
	Filters  AuditFilters
}

// AuditService persists and retrieves audit log entries.
type AuditService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAuditService constructs an AuditService using the provided database handle.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db, now: time.Now}, nil
}

// Log stores an audit entry. Action and result are mandatory; everything else is
// trimmed and stored as given.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	ctx = ensureContext(ctx)

	record, err := entry.record()
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("audit service: create log: %w", err)
	}
	return nil
}

// List returns paginated audit logs ordered by creation time descending.
func (s *AuditService) List(ctx context.Context, opts AuditListOptions) ([]models.AuditLog, int64, error) {
	ctx = ensureContext(ctx)
	page, perPage := normalisePage(opts.Page, opts.PageSize)

	query := opts.Filters.scope(s.db.WithContext(ctx).Model(&models.AuditLog{}))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count logs: %w", err)
	}

	var logs []models.AuditLog
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: list logs: %w", err)
	}
	return logs, total, nil
}

// CleanupOlderThan removes audit logs older than the supplied retention window (in days).
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	ctx = ensureContext(ctx)
	if retentionDays <= 0 {
		return 0, errors.New("audit service: retentionDays must be positive")
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (e AuditEntry) record() (*models.AuditLog, error) {
	action := strings.TrimSpace(e.Action)
	result := strings.TrimSpace(e.Result)
	switch {
	case action == "":
		return nil, errors.New("audit service: action is required")
	case result == "":
		return nil, errors.New("audit service: result is required")
	}

	var metadata datatypes.JSON
	if len(e.Metadata) > 0 {
		encoded, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, fmt.Errorf("audit service: marshal metadata: %w", err)
		}
		metadata = encoded
	}

	return &models.AuditLog{
		ActorID:     stringPtr(strings.TrimSpace(e.ActorID)),
		ActorName:   strings.TrimSpace(e.ActorName),
		Action:      action,
		Resource:    strings.TrimSpace(e.Resource),
		Result:      result,
		Summary:     strings.TrimSpace(e.Summary),
		Description: strings.TrimSpace(e.Description),
		IPAddress:   strings.TrimSpace(e.IPAddress),
		UserAgent:   strings.TrimSpace(e.UserAgent),
		Metadata:    metadata,
	}, nil
}

// scope narrows an audit query to the set filters; zero values match everything.
func (f AuditFilters) scope(query *gorm.DB) *gorm.DB {
	for column, value := range map[string]string{
		"actor_id": f.ActorID,
		"action":   f.Action,
		"result":   f.Result,
		"resource": f.Resource,
	} {
		if value != "" {
			query = query.Where(column+" = ?", value)
		}
	}
	if f.Since != nil {
		query = query.Where("created_at >= ?", *f.Since)
	}
	if f.Until != nil {
		query = query.Where("created_at <= ?", *f.Until)
	}
	return query
}
