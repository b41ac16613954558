package models

import "time"

// RegistrationRequest is an application for an account awaiting an administrator decision.
// PasswordHash is hashed at submission and copied verbatim into the Account on approval.
type RegistrationRequest struct {
	BaseModel

	FirstName      string        `gorm:"size:150;not null" json:"first_name"`
	LastName       string        `gorm:"size:150;not null" json:"last_name"`
	Email          string        `gorm:"size:254;index;not null" json:"email"`
	IdentityNumber string        `gorm:"size:13;index;not null" json:"identity_number"`
	PasswordHash   string        `gorm:"not null" json:"-"`
	Status         RequestStatus `gorm:"size:10;index;not null;default:pending" json:"status"`

	ReviewedBy *string    `gorm:"size:13" json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	Reason     string     `gorm:"size:500" json:"reason,omitempty"`
}

// FullName joins first and last name.
func (r *RegistrationRequest) FullName() string {
	return r.FirstName + " " + r.LastName
}
