package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/labmgr/internal/models"
	"github.com/charlesng35/labmgr/internal/services"
	"github.com/charlesng35/labmgr/pkg/response"
)

// RegistrationHandler exposes the registration request workflow: public submission and
// superuser review.
type RegistrationHandler struct {
	svc *services.RegistrationService
}

func NewRegistrationHandler(svc *services.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{svc: svc}
}

type submitRegistrationRequest struct {
	services.SubmitRegistrationInput
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}

// POST /api/registrations
func (h *RegistrationHandler) Submit(c *gin.Context) {
	var req submitRegistrationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	request, err := h.svc.Submit(requestContext(c), req.SubmitRegistrationInput)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, request)
}

// GET /api/registrations
func (h *RegistrationHandler) List(c *gin.Context) {
	page, perPage := pageParams(c)

	requests, total, err := h.svc.List(requestContext(c), services.RegistrationListOptions{
		Status:   models.RequestStatus(strings.ToLower(strings.TrimSpace(c.Query("status")))),
		Query:    c.Query("q"),
		Page:     page,
		PageSize: perPage,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Page(c, requests, page, perPage, total)
}

// GET /api/registrations/pending-count
func (h *RegistrationHandler) PendingCount(c *gin.Context) {
	count, err := h.svc.PendingCount(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"pending": count})
}

// GET /api/registrations/:id
func (h *RegistrationHandler) Get(c *gin.Context) {
	request, err := h.svc.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, request)
}

// POST /api/registrations/:id/approve
func (h *RegistrationHandler) Approve(c *gin.Context) {
	account, err := h.svc.Approve(requestContext(c), c.Param("id"), requestActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"account": account})
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// POST /api/registrations/:id/reject
func (h *RegistrationHandler) Reject(c *gin.Context) {
	var req rejectRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	request, err := h.svc.Reject(requestContext(c), c.Param("id"), requestActor(c), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, request)
}
