package services

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/labmgr/internal/models"
)

// statusTransition describes a review decision on a request row.
type statusTransition struct {
	ID       string
	To       models.RequestStatus
	Reviewer string
	Reason   string
	At       time.Time
}

// swapStatus moves a pending row of model to t.To with a conditional write. It returns
// gorm.ErrRecordNotFound when the row is absent and *AlreadyProcessedError when the row
// is no longer pending, so a concurrent reviewer never overwrites a decision.
func swapStatus(tx *gorm.DB, model any, t statusTransition) error {
	if strings.TrimSpace(t.ID) == "" {
		return gorm.ErrRecordNotFound
	}

	at := t.At
	updates := map[string]any{
		"status":      t.To,
		"reviewed_by": stringPtr(strings.TrimSpace(t.Reviewer)),
		"reviewed_at": &at,
		"updated_at":  at,
	}
	if t.Reason != "" {
		updates["reason"] = t.Reason
	}

	result := tx.Model(model).
		Where("id = ? AND status = ?", t.ID, models.StatusPending).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update status: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	var statuses []string
	if err := tx.Model(model).Where("id = ?", t.ID).Limit(1).Pluck("status", &statuses).Error; err != nil {
		return fmt.Errorf("load status: %w", err)
	}
	if len(statuses) == 0 {
		return gorm.ErrRecordNotFound
	}
	return &AlreadyProcessedError{Status: models.RequestStatus(statuses[0])}
}
