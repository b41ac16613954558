package models

import "time"

// Session is a login backed by a refresh token. Access tokens carry the session ID so
// revoking the session stops further refreshes.
type Session struct {
	BaseModel

	AccountID    string     `gorm:"size:13;not null;index" json:"account_id"`
	Account      *Account   `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"-"`
	RefreshToken string     `gorm:"uniqueIndex;not null" json:"-"`
	IPAddress    string     `gorm:"size:64" json:"ip_address"`
	UserAgent    string     `gorm:"size:512" json:"user_agent"`
	ExpiresAt    time.Time  `gorm:"index" json:"expires_at"`
	LastUsedAt   time.Time  `json:"last_used_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
}

// Active reports whether the refresh token can still be exchanged at now.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
