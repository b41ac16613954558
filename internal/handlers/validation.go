package handlers

import (
	stdErrors "errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/labmgr/pkg/errors"
	"github.com/charlesng35/labmgr/pkg/response"
	appValidator "github.com/charlesng35/labmgr/pkg/validator"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When validation fails, an error response is automatically written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, validationError(err))
		return false
	}

	return true
}

// bindOptionalJSON behaves like bindAndValidate but accepts an empty body.
func bindOptionalJSON[T any](c *gin.Context, dest *T) bool {
	if c.Request == nil || c.Request.ContentLength == 0 {
		return true
	}
	return bindAndValidate(c, dest)
}

func validationError(err error) *appErrors.AppError {
	var failures appValidator.ValidationErrors
	if !stdErrors.As(err, &failures) || len(failures) == 0 {
		return appErrors.NewBadRequest("invalid request payload")
	}
	return appErrors.NewBadRequest(strings.Join(failures.Messages(), "; ")).WithDetails(failures.Details())
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// pageParams reads page and per_page, clamped to the same bounds the services apply.
func pageParams(c *gin.Context) (int, int) {
	page := parseIntQuery(c, "page", 1)
	if page <= 0 {
		page = 1
	}
	perPage := parseIntQuery(c, "per_page", defaultPerPage)
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}
