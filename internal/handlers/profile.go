package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/labmgr/internal/services"
	"github.com/charlesng35/labmgr/pkg/response"
)

// ProfileHandler serves the signed-in account's profile and the staff view of others.
type ProfileHandler struct {
	profiles *services.ProfileService
	accounts *services.AccountService
}

func NewProfileHandler(profiles *services.ProfileService, accounts *services.AccountService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, accounts: accounts}
}

// GET /api/profile
func (h *ProfileHandler) Me(c *gin.Context) {
	account, ok := currentAccount(c)
	if !ok {
		return
	}
	h.render(c, account.ID)
}

// GET /api/accounts/:id/profile
func (h *ProfileHandler) Get(c *gin.Context) {
	h.render(c, c.Param("id"))
}

// PATCH /api/profile
func (h *ProfileHandler) Update(c *gin.Context) {
	account, ok := currentAccount(c)
	if !ok {
		return
	}

	var req services.UpdateProfileInput
	if !bindAndValidate(c, &req) {
		return
	}

	updated, err := h.accounts.UpdateProfile(requestContext(c), account.ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, updated)
}

func (h *ProfileHandler) render(c *gin.Context, accountID string) {
	profile, err := h.profiles.Get(requestContext(c), accountID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, profile)
}
