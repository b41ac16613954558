package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/labmgr/internal/monitoring"
	"github.com/charlesng35/labmgr/pkg/response"
)

// Health reports that the process is serving requests.
func Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.OK(c, gin.H{"status": monitoring.StatusUp})
	}
}

// Readiness evaluates every registered probe. A down component answers 503.
func Readiness(manager *monitoring.HealthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := manager.Evaluate(c.Request.Context())
		status := http.StatusOK
		if !report.Success {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	}
}
