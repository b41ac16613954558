package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/labmgr/internal/handlers"
)

func registerEventRoutes(protected, staff *gin.RouterGroup, handler *handlers.EventHandler) {
	protected.POST("/events", handler.Submit)
	protected.GET("/events/mine", handler.Mine)

	events := staff.Group("/events")
	{
		events.GET("", handler.List)
		events.POST("/:id/approve", handler.Approve)
		events.POST("/:id/reject", handler.Reject)
	}
}
