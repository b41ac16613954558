package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/labmgr/internal/auth"
	"github.com/charlesng35/labmgr/internal/models"
	"github.com/charlesng35/labmgr/pkg/crypto"
)

// CreateAccountInput provisions an account directly, bypassing the registration workflow.
// Only the administrator CLI uses it.
type CreateAccountInput struct {
	ID        string `json:"identifier" validate:"required,digits,max=13"`
	FirstName string `json:"first_name" validate:"required,max=150"`
	LastName  string `json:"last_name" validate:"required,max=150"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
	Staff     bool   `json:"is_staff"`
	Superuser bool   `json:"is_superuser"`
}

// UpdateProfileInput lists the fields an account holder may edit.
type UpdateProfileInput struct {
	FirstName *string `json:"first_name" validate:"omitempty,min=1,max=150"`
	LastName  *string `json:"last_name" validate:"omitempty,min=1,max=150"`
	Email     *string `json:"email" validate:"omitempty,email,max=254"`
}

// AccountListOptions filters and paginates accounts.
type AccountListOptions struct {
	Query    string
	Page     int
	PageSize int
}

// AccountService manages activated accounts and their badges.
type AccountService struct {
	db       *gorm.DB
	audit    *AuditService
	sessions *auth.SessionService
}

// NewAccountService constructs an AccountService. sessions may be nil, in which case
// password changes do not revoke existing sessions.
func NewAccountService(db *gorm.DB, audit *AuditService, sessions *auth.SessionService) (*AccountService, error) {
	if db == nil {
		return nil, errors.New("account service: db is required")
	}
	return &AccountService{db: db, audit: audit, sessions: sessions}, nil
}

// Get returns an account with its badge.
func (s *AccountService) Get(ctx context.Context, id string) (*models.Account, error) {
	ctx = ensureContext(ctx)

	var account models.Account
	err := s.db.WithContext(ctx).Preload("Badge").Take(&account, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("account service: get account: %w", err)
	}
	return &account, nil
}

// List returns accounts ordered by last name.
func (s *AccountService) List(ctx context.Context, opts AccountListOptions) ([]models.Account, int64, error) {
	ctx = ensureContext(ctx)
	page, perPage := normalisePage(opts.Page, opts.PageSize)

	query := s.db.WithContext(ctx).Model(&models.Account{})
	if q := strings.TrimSpace(opts.Query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where(
			"LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(email) LIKE ? OR id LIKE ?",
			like, like, like, like,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("account service: count accounts: %w", err)
	}

	var accounts []models.Account
	if err := query.
		Preload("Badge").
		Order("last_name ASC, first_name ASC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&accounts).Error; err != nil {
		return nil, 0, fmt.Errorf("account service: list accounts: %w", err)
	}
	return accounts, total, nil
}

// Create provisions an active account with a freshly hashed password.
func (s *AccountService) Create(ctx context.Context, input CreateAccountInput) (*models.Account, error) {
	ctx = ensureContext(ctx)

	input.ID = strings.TrimSpace(input.ID)
	input.Email = normaliseEmail(input.Email)
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("account service: hash password: %w", err)
	}

	account := &models.Account{
		ID:          input.ID,
		FirstName:   input.FirstName,
		LastName:    input.LastName,
		Email:       input.Email,
		Password:    hashed,
		IsActive:    true,
		IsStaff:     input.Staff || input.Superuser,
		IsSuperuser: input.Superuser,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conflicts []string
		var count int64
		if err := tx.Model(&models.Account{}).Where("id = ?", account.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			conflicts = append(conflicts, FieldIdentifier)
		}
		if err := tx.Model(&models.Account{}).Where("LOWER(email) = ?", account.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			conflicts = append(conflicts, FieldEmail)
		}
		if len(conflicts) > 0 {
			return newDuplicateIdentityError(conflicts...)
		}
		return tx.Create(account).Error
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			return nil, err
		}
		if isUniqueConstraintError(err) {
			return nil, newDuplicateIdentityError(uniqueViolationField(err))
		}
		return nil, fmt.Errorf("account service: create account: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:      "account.create",
		Resource:    "account:" + account.ID,
		Result:      auditSuccess,
		Summary:     fmt.Sprintf("Provisioned account %s", account.String()),
		Description: fmt.Sprintf("Account %s <%s> provisioned directly (staff=%t, superuser=%t).", account.String(), account.Email, account.IsStaff, account.IsSuperuser),
	})
	return account, nil
}

// UpdateProfile applies the editable fields. Changing the email enforces global uniqueness.
func (s *AccountService) UpdateProfile(ctx context.Context, id string, input UpdateProfileInput) (*models.Account, error) {
	ctx = ensureContext(ctx)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	account, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*input.LastName)
	}
	if input.Email != nil {
		email := normaliseEmail(*input.Email)
		if email != account.Email {
			var count int64
			if err := s.db.WithContext(ctx).Model(&models.Account{}).
				Where("LOWER(email) = ? AND id <> ?", email, account.ID).
				Count(&count).Error; err != nil {
				return nil, fmt.Errorf("account service: check email: %w", err)
			}
			if count > 0 {
				return nil, newDuplicateIdentityError(FieldEmail)
			}
			updates["email"] = email
		}
	}
	if len(updates) == 0 {
		return account, nil
	}

	if err := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", account.ID).Updates(updates).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, newDuplicateIdentityError(FieldEmail)
		}
		return nil, fmt.Errorf("account service: update profile: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "account.update_profile",
		Resource: "account:" + account.ID,
		Result:   auditSuccess,
		Summary:  fmt.Sprintf("Profile of %s updated", account.String()),
	})
	return s.Get(ctx, account.ID)
}

// ChangePassword verifies the current password, stores the new hash and revokes every
// session of the account.
func (s *AccountService) ChangePassword(ctx context.Context, id, current, next string) error {
	ctx = ensureContext(ctx)
	if err := validateInput(struct {
		Password string `json:"new_password" validate:"required,min=8,max=128"`
	}{next}); err != nil {
		return err
	}

	account, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !crypto.VerifyPassword(account.Password, current) {
		recordAudit(s.audit, ctx, AuditEntry{
			Action:   "account.change_password",
			Resource: "account:" + account.ID,
			Result:   auditFailure,
			Summary:  "Password change rejected: current password mismatch",
		})
		return ErrCurrentPasswordMismatch
	}

	if err := s.setPassword(ctx, account.ID, next); err != nil {
		return err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "account.change_password",
		Resource: "account:" + account.ID,
		Result:   auditSuccess,
		Summary:  fmt.Sprintf("Password changed for %s", account.String()),
	})
	return nil
}

func (s *AccountService) setPassword(ctx context.Context, id, password string) error {
	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("account service: hash password: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).Updates(map[string]any{
		"password":        hashed,
		"failed_attempts": 0,
		"locked_until":    nil,
	}).Error; err != nil {
		return fmt.Errorf("account service: update password: %w", err)
	}
	if s.sessions != nil {
		if err := s.sessions.RevokeAccountSessions(ctx, id); err != nil {
			return fmt.Errorf("account service: revoke sessions: %w", err)
		}
	}
	return nil
}

// AssignBadge sets or replaces the access-card number of an account.
func (s *AccountService) AssignBadge(ctx context.Context, accountID, cardNumber string) (*models.Badge, error) {
	ctx = ensureContext(ctx)
	cardNumber = strings.TrimSpace(cardNumber)
	if err := validateInput(struct {
		CardNumber string `json:"card_number" validate:"required,digits,max=20"`
	}{cardNumber}); err != nil {
		return nil, err
	}

	account, err := s.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	var badge models.Badge
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.Badge{}).
			Where("card_number = ? AND account_id <> ?", cardNumber, account.ID).
			Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return ErrBadgeNumberTaken
		}

		err := tx.Where("account_id = ?", account.ID).Take(&badge).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			badge = models.Badge{AccountID: account.ID, CardNumber: cardNumber}
			return tx.Create(&badge).Error
		case err != nil:
			return err
		default:
			badge.CardNumber = cardNumber
			return tx.Model(&badge).Update("card_number", cardNumber).Error
		}
	})
	if err != nil {
		if errors.Is(err, ErrBadgeNumberTaken) || isUniqueConstraintError(err) {
			return nil, ErrBadgeNumberTaken
		}
		return nil, fmt.Errorf("account service: assign badge: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "account.badge.assign",
		Resource: "account:" + account.ID,
		Result:   auditSuccess,
		Summary:  fmt.Sprintf("Badge %s assigned to %s", cardNumber, account.String()),
	})
	return &badge, nil
}

// ClearBadge removes the account's badge, if any.
func (s *AccountService) ClearBadge(ctx context.Context, accountID string) error {
	ctx = ensureContext(ctx)

	account, err := s.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Where("account_id = ?", account.ID).Delete(&models.Badge{}).Error; err != nil {
		return fmt.Errorf("account service: clear badge: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "account.badge.clear",
		Resource: "account:" + account.ID,
		Result:   auditSuccess,
		Summary:  fmt.Sprintf("Badge removed from %s", account.String()),
	})
	return nil
}
