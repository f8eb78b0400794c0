package handler

import (
	"net/http"

	"github.com/Sandro385/expert-tune/internal/service"
	"github.com/Sandro385/expert-tune/pkg/log"

	"github.com/gin-gonic/gin"
)

// AuthHandler serves token refresh.
type AuthHandler struct {
	userService service.UserService
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(userService service.UserService) *AuthHandler {
	return &AuthHandler{userService: userService}
}

// RefreshTokenRequest is the body of the refresh endpoint.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// RefreshToken exchanges a refresh token for a new token pair.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("RefreshToken: invalid request payload, error: %v", err)
		fail(c, http.StatusBadRequest, "refreshToken is required")
		return
	}

	newAccessToken, newRefreshToken, err := h.userService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		log.Warnf("RefreshToken: failed to refresh token, error: %v", err)
		fail(c, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	log.Info("Token refreshed successfully")
	ok(c, http.StatusOK, "Token refreshed successfully", gin.H{
		"token":        newAccessToken,
		"refreshToken": newRefreshToken,
	})
}
