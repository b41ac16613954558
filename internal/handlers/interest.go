package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/labmgr/internal/services"
	"github.com/charlesng35/labmgr/pkg/response"
)

// InterestHandler publishes the lab's services and collects inquiries about them.
type InterestHandler struct {
	svc *services.InterestService
}

func NewInterestHandler(svc *services.InterestService) *InterestHandler {
	return &InterestHandler{svc: svc}
}

// GET /api/services
func (h *InterestHandler) Services(c *gin.Context) {
	items, err := h.svc.ListServices(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// POST /api/inquiries
func (h *InterestHandler) Submit(c *gin.Context) {
	var req services.SubmitInquiryInput
	if !bindAndValidate(c, &req) {
		return
	}

	inquiry, err := h.svc.Submit(requestContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, inquiry)
}

// GET /api/inquiries
func (h *InterestHandler) List(c *gin.Context) {
	page, perPage := pageParams(c)

	inquiries, total, err := h.svc.ListInquiries(requestContext(c), page, perPage)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, inquiries, page, perPage, total)
}
