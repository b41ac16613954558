package models

import "time"

// PasswordResetToken stores the digest of a single-use reset token.
type PasswordResetToken struct {
	BaseModel

	AccountID string     `gorm:"size:13;not null;index" json:"account_id"`
	TokenHash string     `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time  `gorm:"index" json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
}
