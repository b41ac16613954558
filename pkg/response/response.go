// Package response renders the JSON envelope every API endpoint answers with.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/labmgr/pkg/errors"
)

// Response is the envelope: exactly one of Data or Error is set.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorInfo is the client-facing part of an AppError.
type ErrorInfo struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Meta carries the paging window of a list response.
type Meta struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	Total      int `json:"total,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
}

// NewMeta computes pagination metadata for a page of results.
func NewMeta(page, perPage int, total int64) *Meta {
	meta := &Meta{Page: page, PerPage: perPage, Total: int(total)}
	if perPage > 0 {
		meta.TotalPages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return meta
}

// Success writes data with the given status.
func Success(c *gin.Context, statusCode int, data interface{}) {
	write(c, statusCode, Response{Success: true, Data: data})
}

// OK is Success with 200.
func OK(c *gin.Context, data interface{}) {
	Success(c, http.StatusOK, data)
}

// Created answers a POST that stored a new resource.
func Created(c *gin.Context, data interface{}) {
	Success(c, http.StatusCreated, data)
}

// Page writes one page of a listing along with its paging metadata.
func Page(c *gin.Context, items interface{}, page, perPage int, total int64) {
	write(c, http.StatusOK, Response{Success: true, Data: items, Meta: NewMeta(page, perPage, total)})
}

// Error maps err onto its AppError and writes it. Errors that are not
// AppErrors surface as a generic 500 so internals never leak.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	write(c, status, Response{
		Error: &ErrorInfo{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		},
	})
}

func write(c *gin.Context, status int, body Response) {
	c.JSON(status, body)
}
