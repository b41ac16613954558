package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/labmgr/internal/auth"
	"github.com/charlesng35/labmgr/internal/middleware"
	"github.com/charlesng35/labmgr/internal/services"
	"github.com/charlesng35/labmgr/pkg/errors"
	"github.com/charlesng35/labmgr/pkg/response"
)

// AuthHandler manages authentication flows (login/refresh/logout/me) and credential changes.
type AuthHandler struct {
	auth     *services.AuthService
	accounts *services.AccountService
	resets   *services.PasswordResetService
}

func NewAuthHandler(auth *services.AuthService, accounts *services.AccountService, resets *services.PasswordResetService) *AuthHandler {
	return &AuthHandler{auth: auth, accounts: accounts, resets: resets}
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func newTokenResponse(pair iauth.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int64(pair.ExpiresIn.Seconds()),
	}
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pair, account, err := h.auth.Login(requestContext(c), strings.TrimSpace(req.Identifier), req.Password, sessionMetadata(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{
		"tokens":  newTokenResponse(pair),
		"account": account,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pair, err := h.auth.Refresh(requestContext(c), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, newTokenResponse(pair))
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	sid := c.GetString(middleware.CtxSessionIDKey)
	if sid == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.auth.Logout(requestContext(c), sid); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"revoked": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	account, ok := currentAccount(c)
	if !ok {
		return
	}
	response.OK(c, account)
}

type changePasswordRequest struct {
	CurrentPassword      string `json:"current_password" validate:"required"`
	NewPassword          string `json:"new_password" validate:"required,min=8,max=128"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=NewPassword"`
}

// POST /api/auth/password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	account, ok := currentAccount(c)
	if !ok {
		return
	}

	var req changePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.accounts.ChangePassword(requestContext(c), account.ID, req.CurrentPassword, req.NewPassword); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"changed": true})
}

type passwordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// POST /api/auth/password-reset
//
// Always answers 202 so the response never reveals whether an account exists.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req passwordResetRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.resets.Request(requestContext(c), req.Email); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{"requested": true})
}

type passwordResetConfirmRequest struct {
	Token                string `json:"token" validate:"required"`
	Password             string `json:"password" validate:"required,min=8,max=128"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}

// POST /api/auth/password-reset/confirm
func (h *AuthHandler) ConfirmPasswordReset(c *gin.Context) {
	var req passwordResetConfirmRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.resets.Confirm(requestContext(c), strings.TrimSpace(req.Token), req.Password); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"reset": true})
}
