// Package handler contains the HTTP and WebSocket handlers.
package handler

import (
	"errors"
	"net/http"

	"github.com/Sandro385/expert-tune/internal/service"
	"github.com/Sandro385/expert-tune/pkg/log"

	"github.com/gin-gonic/gin"
)

// UserHandler serves registration, login and the session endpoints of a user.
type UserHandler struct {
	userService service.UserService
	chatService service.ChatService
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(userService service.UserService, chatService service.ChatService) *UserHandler {
	return &UserHandler{userService: userService, chatService: chatService}
}

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates a user. An existing username is a conflict and keeps its password.
func (h *UserHandler) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Register: invalid request payload, error: %v", err)
		fail(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	created, err := h.userService.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		log.Warnf("Register: registration failed for '%s', error: %v", req.Username, err)
		failWithError(c, "Register", err)
		return
	}
	if !created {
		fail(c, http.StatusConflict, "username already exists")
		return
	}

	log.Infof("User '%s' registered successfully", req.Username)
	ok(c, http.StatusOK, "User registered successfully", nil)
}

// Login checks the credentials and issues a token pair.
func (h *UserHandler) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		fail(c, http.StatusBadRequest, "username and password are required")
		return
	}

	accessToken, refreshToken, err := h.userService.Login(c.Request.Context(), req.Username, req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		log.Warnf("Login: authentication failed for '%s'", req.Username)
		fail(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		failWithError(c, "Login", err)
		return
	}

	log.Infof("User '%s' logged in successfully", req.Username)
	ok(c, http.StatusOK, "Login successful", gin.H{
		"token":        accessToken,
		"refreshToken": refreshToken,
	})
}

// GetProfile returns the authenticated user.
func (h *UserHandler) GetProfile(c *gin.Context) {
	ok(c, http.StatusOK, "success", currentUser(c))
}

// Logout revokes the current token and closes the user's interview sessions.
func (h *UserHandler) Logout(c *gin.Context) {
	tokenString := c.GetString("token")
	if err := h.userService.Logout(c.Request.Context(), tokenString); err != nil {
		log.Error("Logout: failed to logout", err)
		fail(c, http.StatusInternalServerError, "logout failed")
		return
	}

	user := currentUser(c)
	h.chatService.CloseUser(user.Username)
	log.Infof("User '%s' logged out successfully", user.Username)
	ok(c, http.StatusOK, "Logout successful", nil)
}
