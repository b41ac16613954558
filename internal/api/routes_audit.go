package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/labmgr/internal/handlers"
)

func registerAuditRoutes(superuser *gin.RouterGroup, handler *handlers.AuditHandler) {
	superuser.GET("/audit", handler.List)
}
