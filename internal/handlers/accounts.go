package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/labmgr/internal/services"
	"github.com/charlesng35/labmgr/pkg/response"
)

// AccountHandler offers staff account listing and badge management.
type AccountHandler struct {
	svc *services.AccountService
}

func NewAccountHandler(svc *services.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

// GET /api/accounts
func (h *AccountHandler) List(c *gin.Context) {
	page, perPage := pageParams(c)

	accounts, total, err := h.svc.List(requestContext(c), services.AccountListOptions{
		Query:    c.Query("q"),
		Page:     page,
		PageSize: perPage,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Page(c, accounts, page, perPage, total)
}

type assignBadgeRequest struct {
	CardNumber string `json:"card_number" validate:"required,digits,max=20"`
}

// PUT /api/accounts/:id/badge
func (h *AccountHandler) AssignBadge(c *gin.Context) {
	var req assignBadgeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	badge, err := h.svc.AssignBadge(requestContext(c), c.Param("id"), req.CardNumber)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, badge)
}

// DELETE /api/accounts/:id/badge
func (h *AccountHandler) ClearBadge(c *gin.Context) {
	if err := h.svc.ClearBadge(requestContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"cleared": true})
}
