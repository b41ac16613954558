package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/labmgr/internal/handlers"
)

func registerAuthRoutes(public, protected *gin.RouterGroup, handler *handlers.AuthHandler) {
	auth := public.Group("/auth")
	{
		auth.POST("/login", handler.Login)
		auth.POST("/refresh", handler.Refresh)
		auth.POST("/password-reset", handler.RequestPasswordReset)
		auth.POST("/password-reset/confirm", handler.ConfirmPasswordReset)
	}

	protected.GET("/auth/me", handler.Me)
	protected.POST("/auth/logout", handler.Logout)
	protected.POST("/auth/password", handler.ChangePassword)
}
