package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog attributes an administrative or security-relevant action to an actor.
type AuditLog struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	ActorID     *string        `gorm:"size:13;index" json:"actor_id"`
	ActorName   string         `json:"actor_name"`
	Action      string         `gorm:"not null;index" json:"action"`
	Resource    string         `gorm:"index" json:"resource"`
	Result      string         `gorm:"not null" json:"result"`
	Summary     string         `json:"summary"`
	Description string         `json:"description"`
	IPAddress   string         `json:"ip_address"`
	UserAgent   string         `json:"user_agent"`
	Metadata    datatypes.JSON `json:"metadata"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
