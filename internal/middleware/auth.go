package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/labmgr/internal/auditctx"
	iauth "github.com/charlesng35/labmgr/internal/auth"
	"github.com/charlesng35/labmgr/internal/models"
	"github.com/charlesng35/labmgr/pkg/errors"
	"github.com/charlesng35/labmgr/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxAccountIDKey = "accountID"
	CtxAccountKey   = "account"
	CtxSessionIDKey = "sessionID"
)

// AccountLoader resolves the account behind a validated token.
type AccountLoader interface {
	Get(ctx context.Context, id string) (*models.Account, error)
}

// Auth enforces JWT authentication. The account is reloaded on every request so
// deactivation and privilege changes apply before the token expires.
func Auth(jwt *iauth.JWTService, accounts AccountLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			unauthorized(c)
			return
		}

		claims, err := jwt.ValidateAccessToken(strings.TrimSpace(authz[7:]))
		if err != nil {
			unauthorized(c)
			return
		}

		account, err := accounts.Get(c.Request.Context(), claims.AccountID)
		if err != nil || !account.IsActive {
			unauthorized(c)
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxAccountIDKey, account.ID)
		c.Set(CtxAccountKey, account)
		if claims.SessionID != "" {
			c.Set(CtxSessionIDKey, claims.SessionID)
		}

		actor := auditctx.Actor{
			AccountID: account.ID,
			Name:      account.FullName(),
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		c.Request = c.Request.WithContext(auditctx.WithActor(c.Request.Context(), actor))

		c.Next()
	}
}

// RequireStaff allows staff and superusers.
func RequireStaff() gin.HandlerFunc {
	return requireAccount(func(a *models.Account) bool { return a.IsStaff || a.IsSuperuser })
}

// RequireSuperuser allows superusers only.
func RequireSuperuser() gin.HandlerFunc {
	return requireAccount(func(a *models.Account) bool { return a.IsSuperuser })
}

// CurrentAccount returns the account stored by Auth.
func CurrentAccount(c *gin.Context) (*models.Account, bool) {
	v, ok := c.Get(CtxAccountKey)
	if !ok {
		return nil, false
	}
	account, ok := v.(*models.Account)
	return account, ok && account != nil
}

func requireAccount(allowed func(*models.Account) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		account, ok := CurrentAccount(c)
		if !ok {
			unauthorized(c)
			return
		}
		if !allowed(account) {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	response.Error(c, errors.ErrUnauthorized)
	c.Abort()
}
