// internal/interfaces/http/handlers/auth.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/your-org/marketplace-backend/internal/domain/cart"
	"github.com/your-org/marketplace-backend/internal/domain/user"
)

// AuthHandler handles registration, login and the current user's profile
type AuthHandler struct {
	userService *user.Service
	cartService *cart.Service
	logger      logrus.FieldLogger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(userService *user.Service, cartService *cart.Service, logger logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		cartService: cartService,
		logger:      logger,
	}
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req user.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.userService.Register(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.mergeGuestCart(c, resp.User.ID)
	respond(c, http.StatusCreated, "User registered successfully", resp)
}

// Login handles POST /auth/login. A guest cart from the session cookie is merged into the user's cart.
func (h *AuthHandler) Login(c *gin.Context) {
	var req user.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.userService.Login(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.mergeGuestCart(c, resp.User.ID)
	respond(c, http.StatusOK, "Login successful", resp)
}

// RefreshToken handles POST /auth/refresh
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.userService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Token refreshed successfully", resp)
}

// GetProfile handles GET /auth/profile
func (h *AuthHandler) GetProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	profile, err := h.userService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Profile retrieved successfully", profile)
}

// BecomeSeller handles POST /auth/seller
func (h *AuthHandler) BecomeSeller(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req user.BecomeSellerRequest
	if !bindJSON(c, &req) {
		return
	}

	profile, err := h.userService.BecomeSeller(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusCreated, "Seller profile created, awaiting approval", profile)
}

// mergeGuestCart never fails the login; a lost guest cart is logged
func (h *AuthHandler) mergeGuestCart(c *gin.Context, userID uint) {
	sessionID, err := c.Cookie(sessionCookie)
	if err != nil || sessionID == "" {
		return
	}
	if err := h.cartService.MergeGuestCart(c.Request.Context(), userID, sessionID); err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Warn("Failed to merge guest cart")
		return
	}
	clearSessionCookie(c)
}
