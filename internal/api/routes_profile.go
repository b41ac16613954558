package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/labmgr/internal/handlers"
)

func registerProfileRoutes(protected, staff *gin.RouterGroup, handler *handlers.ProfileHandler) {
	protected.GET("/profile", handler.Me)
	protected.PATCH("/profile", handler.Update)

	staff.GET("/accounts/:id/profile", handler.Get)
}

func registerAccountRoutes(staff *gin.RouterGroup, handler *handlers.AccountHandler) {
	accounts := staff.Group("/accounts")
	{
		accounts.GET("", handler.List)
		accounts.PUT("/:id/badge", handler.AssignBadge)
		accounts.DELETE("/:id/badge", handler.ClearBadge)
	}
}
