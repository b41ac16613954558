package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/labmgr/internal/handlers"
)

func registerRegistrationRoutes(public, superuser *gin.RouterGroup, handler *handlers.RegistrationHandler) {
	public.POST("/registrations", handler.Submit)

	registrations := superuser.Group("/registrations")
	{
		registrations.GET("", handler.List)
		registrations.GET("/pending-count", handler.PendingCount)
		registrations.GET("/:id", handler.Get)
		registrations.POST("/:id/approve", handler.Approve)
		registrations.POST("/:id/reject", handler.Reject)
	}
}
