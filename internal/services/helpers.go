package services

import (
	"context"
	"errors"
	"strings"

	apperrors "github.com/charlesng35/labmgr/pkg/errors"
	"github.com/charlesng35/labmgr/pkg/validator"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	// maxReasonLength counts characters, matching the validator's max rule on strings.
	maxReasonLength = 500
)

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func normalisePage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func stringPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

// validateInput runs struct validation and converts failures into a 400 with per-field details.
func validateInput(input any) error {
	err := validator.ValidateStruct(input)
	if err == nil {
		return nil
	}
	var failures validator.ValidationErrors
	if errors.As(err, &failures) && len(failures) > 0 {
		return apperrors.NewBadRequest(strings.Join(failures.Messages(), "; ")).WithDetails(failures.Details())
	}
	return apperrors.NewBadRequest("invalid input").WithInternal(err)
}

type reviewReason struct {
	Reason string `json:"reason" validate:"max=500"`
}

// validateReason bounds a reviewer's reason to maxReasonLength characters.
func validateReason(reason string) error {
	return validateInput(reviewReason{Reason: reason})
}
