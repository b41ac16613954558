package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/labmgr/internal/services"
	"github.com/charlesng35/labmgr/pkg/response"
)

type AuditHandler struct {
	svc *services.AuditService
}

func NewAuditHandler(svc *services.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// GET /api/audit
func (h *AuditHandler) List(c *gin.Context) {
	page, perPage := pageParams(c)

	filters := services.AuditFilters{
		ActorID:  c.Query("actor_id"),
		Action:   c.Query("action"),
		Result:   c.Query("result"),
		Resource: c.Query("resource"),
		Since:    parseTimeQuery(c, "since"),
		Until:    parseTimeQuery(c, "until"),
	}

	logs, total, err := h.svc.List(requestContext(c), services.AuditListOptions{Page: page, PageSize: perPage, Filters: filters})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Page(c, logs, page, perPage, total)
}

func parseTimeQuery(c *gin.Context, key string) *time.Time {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}
