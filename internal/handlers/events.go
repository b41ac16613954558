package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/labmgr/internal/models"
	"github.com/charlesng35/labmgr/internal/services"
	"github.com/charlesng35/labmgr/pkg/response"
)

// EventHandler handles event and visit requests.
type EventHandler struct {
	svc *services.EventRequestService
}

func NewEventHandler(svc *services.EventRequestService) *EventHandler {
	return &EventHandler{svc: svc}
}

// POST /api/events
func (h *EventHandler) Submit(c *gin.Context) {
	account, ok := currentAccount(c)
	if !ok {
		return
	}

	var req services.SubmitEventInput
	if !bindAndValidate(c, &req) {
		return
	}

	event, err := h.svc.Submit(requestContext(c), account.ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// GET /api/events/mine
func (h *EventHandler) Mine(c *gin.Context) {
	account, ok := currentAccount(c)
	if !ok {
		return
	}
	h.list(c, account.ID)
}

// GET /api/events
func (h *EventHandler) List(c *gin.Context) {
	h.list(c, "")
}

func (h *EventHandler) list(c *gin.Context, requesterID string) {
	page, perPage := pageParams(c)

	events, total, err := h.svc.List(requestContext(c), services.EventListOptions{
		Status:      models.RequestStatus(strings.ToLower(strings.TrimSpace(c.Query("status")))),
		CreatedByID: requesterID,
		Page:        page,
		PageSize:    perPage,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Page(c, events, page, perPage, total)
}

// POST /api/events/:id/approve
func (h *EventHandler) Approve(c *gin.Context) {
	event, err := h.svc.Approve(requestContext(c), c.Param("id"), requestActor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, event)
}

// POST /api/events/:id/reject
func (h *EventHandler) Reject(c *gin.Context) {
	var req rejectRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	event, err := h.svc.Reject(requestContext(c), c.Param("id"), requestActor(c), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, event)
}
