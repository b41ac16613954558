package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/labmgr/internal/handlers"
)

func registerInterestRoutes(public, staff *gin.RouterGroup, handler *handlers.InterestHandler) {
	public.GET("/services", handler.Services)
	public.POST("/inquiries", handler.Submit)

	staff.GET("/inquiries", handler.List)
}
