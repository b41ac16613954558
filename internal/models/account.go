package models

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/labmgr/pkg/validator"
)

// MaxIdentifierLength bounds institutional identifiers.
const MaxIdentifierLength = 13

// ErrInvalidIdentifier is returned when an account is created with a malformed identifier.
var ErrInvalidIdentifier = errors.New("account: identifier must be 1-13 digits")

// Account is an activated, login-capable identity keyed by its institutional identifier.
type Account struct {
	ID        string `gorm:"primaryKey;size:13" json:"id"`
	FirstName string `gorm:"size:150;not null" json:"first_name"`
	LastName  string `gorm:"size:150;not null" json:"last_name"`
	Email     string `gorm:"size:254;uniqueIndex;not null" json:"email"`
	Password  string `gorm:"not null" json:"-"`

	IsActive    bool `gorm:"not null" json:"is_active"`
	IsStaff     bool `gorm:"not null" json:"is_staff"`
	IsSuperuser bool `gorm:"not null" json:"is_superuser"`

	Badge *Badge `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"badge,omitempty"`

	LastLoginAt    *time.Time `json:"last_login_at"`
	FailedAttempts int        `gorm:"default:0" json:"-"`
	LockedUntil    *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidIdentifier reports whether id is a non-empty, digits-only identifier of at most 13 characters.
func ValidIdentifier(id string) bool {
	return len(id) <= MaxIdentifierLength && validator.IsDigits(id)
}

// BeforeCreate rejects identifiers that are not plain digits. The identifier is immutable
// afterwards, so it is only checked on insert.
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	a.ID = strings.TrimSpace(a.ID)
	if !ValidIdentifier(a.ID) {
		return ErrInvalidIdentifier
	}
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	return nil
}

// FullName joins first and last name.
func (a *Account) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// String renders the account the way administrators identify people.
func (a *Account) String() string {
	return a.FullName() + " (" + a.ID + ")"
}
