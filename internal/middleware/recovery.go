package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/labmgr/pkg/errors"
	"github.com/charlesng35/labmgr/pkg/logger"
	"github.com/charlesng35/labmgr/pkg/metrics"
	"github.com/charlesng35/labmgr/pkg/response"
)

// Recovery turns a handler panic into the standard 500 envelope. The panic value is
// logged with the route and acting account but never echoed to the client.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			metrics.HTTPPanics.WithLabelValues(route).Inc()

			logger.WithModule("http").Error("handler panicked",
				zap.String("method", c.Request.Method),
				zap.String("route", route),
				zap.String("account_id", c.GetString(CtxAccountIDKey)),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)

			if !c.Writer.Written() {
				response.Error(c, errors.ErrInternalServer)
			}
			c.Abort()
		}()
		c.Next()
	}
}

// NotFoundHandler answers unknown routes with the standard error envelope.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, errors.ErrNotFound.WithMessage("Route "+c.Request.URL.Path+" not found"))
}
