package services

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/charlesng35/labmgr/internal/models"
	apperrors "github.com/charlesng35/labmgr/pkg/errors"
)

var (
	// ErrDuplicateIdentity matches every *DuplicateIdentityError.
	ErrDuplicateIdentity = apperrors.New("DUPLICATE_IDENTITY", "Email or identifier already in use", http.StatusConflict)
	// ErrAlreadyProcessed matches every *AlreadyProcessedError.
	ErrAlreadyProcessed = apperrors.New("ALREADY_PROCESSED", "This request has already been processed", http.StatusConflict)

	// ErrRegistrationNotFound indicates the registration request does not exist.
	ErrRegistrationNotFound = apperrors.New("REGISTRATION_NOT_FOUND", "Registration request not found", http.StatusNotFound)
	// ErrEventRequestNotFound indicates the event request does not exist.
	ErrEventRequestNotFound = apperrors.New("EVENT_REQUEST_NOT_FOUND", "Event request not found", http.StatusNotFound)
	// ErrAccountNotFound indicates the account does not exist.
	ErrAccountNotFound = apperrors.New("ACCOUNT_NOT_FOUND", "Account not found", http.StatusNotFound)
	// ErrLabServiceNotFound indicates the lab service does not exist or is not offered.
	ErrLabServiceNotFound = apperrors.New("SERVICE_NOT_FOUND", "Lab service not found", http.StatusNotFound)

	// ErrAccountInactive is returned when a deactivated account tries to log in.
	ErrAccountInactive = apperrors.New("ACCOUNT_INACTIVE", "Account is inactive", http.StatusForbidden)
	// ErrInvalidResetToken covers unknown, used and expired password reset tokens alike.
	ErrInvalidResetToken = apperrors.New("INVALID_RESET_TOKEN", "Password reset link is invalid or has expired", http.StatusBadRequest)
	// ErrCurrentPasswordMismatch is returned by ChangePassword.
	ErrCurrentPasswordMismatch = apperrors.New("INVALID_CURRENT_PASSWORD", "Current password is incorrect", http.StatusBadRequest)
	// ErrBadgeNumberTaken is returned when a card number belongs to another account.
	ErrBadgeNumberTaken = apperrors.New("BADGE_IN_USE", "Badge number already assigned to another account", http.StatusConflict)
)

// Identity fields reported by DuplicateIdentityError.
const (
	FieldEmail      = "email"
	FieldIdentifier = "identifier"
)

var duplicateFieldMessages = map[string]string{
	FieldEmail:      "This email is already used by an account or a pending registration.",
	FieldIdentifier: "This identifier is already used by an account or a pending registration.",
}

// DuplicateIdentityError names every identity field that conflicts with an existing
// account or pending registration.
type DuplicateIdentityError struct {
	Fields []string
}

func newDuplicateIdentityError(fields ...string) *DuplicateIdentityError {
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return &DuplicateIdentityError{Fields: out}
}

func (e *DuplicateIdentityError) Error() string {
	return "duplicate identity: " + strings.Join(e.Fields, ", ")
}

// Is makes errors.Is(err, ErrDuplicateIdentity) hold.
func (e *DuplicateIdentityError) Is(target error) bool {
	return target == ErrDuplicateIdentity
}

// Has reports whether field is among the conflicts.
func (e *DuplicateIdentityError) Has(field string) bool {
	for _, f := range e.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Unwrap exposes the client-facing form with one message per conflicting field.
func (e *DuplicateIdentityError) Unwrap() error {
	details := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		details[f] = duplicateFieldMessages[f]
	}
	msg := ErrDuplicateIdentity.Message
	if len(e.Fields) == 1 {
		msg = details[e.Fields[0]]
	}
	return ErrDuplicateIdentity.WithMessage(msg).WithDetails(details)
}

// AlreadyProcessedError reports an attempt to transition a request that is no longer pending.
type AlreadyProcessedError struct {
	Status models.RequestStatus
}

func (e *AlreadyProcessedError) Error() string {
	return "already processed: " + string(e.Status)
}

// Is makes errors.Is(err, ErrAlreadyProcessed) hold.
func (e *AlreadyProcessedError) Is(target error) bool {
	return target == ErrAlreadyProcessed
}

// Message is the human-readable explanation including the current status.
func (e *AlreadyProcessedError) Message() string {
	return "This request has already been " + strings.ToLower(e.Status.Label()) + "."
}

// Unwrap exposes the client-facing form.
func (e *AlreadyProcessedError) Unwrap() error {
	return ErrAlreadyProcessed.WithMessage(e.Message())
}

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") || strings.Contains(lower, "duplicate")
}

// uniqueViolationField guesses which identity column a unique violation hit.
func uniqueViolationField(err error) string {
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "email") {
		return FieldEmail
	}
	return FieldIdentifier
}
