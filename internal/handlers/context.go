package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/labmgr/internal/auditctx"
	iauth "github.com/charlesng35/labmgr/internal/auth"
	"github.com/charlesng35/labmgr/internal/middleware"
	"github.com/charlesng35/labmgr/internal/models"
	"github.com/charlesng35/labmgr/pkg/errors"
	"github.com/charlesng35/labmgr/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentAccount returns the authenticated account or writes a 401.
func currentAccount(c *gin.Context) (*models.Account, bool) {
	account, ok := middleware.CurrentAccount(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return nil, false
	}
	return account, true
}

// requestActor returns the actor attached by the auth middleware, falling back to the
// client address for anonymous requests.
func requestActor(c *gin.Context) auditctx.Actor {
	if actor, ok := auditctx.FromContext(requestContext(c)); ok {
		return actor
	}
	actor := auditctx.Actor{IPAddress: c.ClientIP()}
	if c.Request != nil {
		actor.UserAgent = c.Request.UserAgent()
	}
	return actor
}

func sessionMetadata(c *gin.Context) iauth.SessionMetadata {
	meta := iauth.SessionMetadata{IPAddress: c.ClientIP()}
	if c.Request != nil {
		meta.UserAgent = c.Request.UserAgent()
	}
	return meta
}
