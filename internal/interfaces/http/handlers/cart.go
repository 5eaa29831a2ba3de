// internal/interfaces/http/handlers/cart.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/your-org/marketplace-backend/internal/config"
	"github.com/your-org/marketplace-backend/internal/domain/cart"
	"github.com/your-org/marketplace-backend/internal/interfaces/http/middleware"
)

const (
	sessionCookie    = "session_id"
	sessionCookieAge = 30 * 24 * 60 * 60
)

// CartHandler handles cart endpoints for users and guest sessions
type CartHandler struct {
	cartService *cart.Service
	config      *config.Config
}

// NewCartHandler creates a new cart handler
func NewCartHandler(cartService *cart.Service, cfg *config.Config) *CartHandler {
	return &CartHandler{
		cartService: cartService,
		config:      cfg,
	}
}

// GetCart handles GET /cart
func (h *CartHandler) GetCart(c *gin.Context) {
	resp, err := h.cartService.GetCart(c.Request.Context(), h.owner(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Cart retrieved successfully", resp)
}

// AddToCart handles POST /cart/items
func (h *CartHandler) AddToCart(c *gin.Context) {
	var req cart.AddToCartRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.cartService.AddItem(c.Request.Context(), h.owner(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Item added to cart successfully", resp)
}

// UpdateCartItem handles PUT /cart/items/:id. Quantity 0 removes the line.
func (h *CartHandler) UpdateCartItem(c *gin.Context) {
	itemID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req cart.UpdateCartItemRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.cartService.UpdateItem(c.Request.Context(), h.owner(c), itemID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Cart item updated successfully", resp)
}

// RemoveFromCart handles DELETE /cart/items/:id
func (h *CartHandler) RemoveFromCart(c *gin.Context) {
	itemID, ok := paramID(c, "id")
	if !ok {
		return
	}

	resp, err := h.cartService.RemoveItem(c.Request.Context(), h.owner(c), itemID)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Item removed from cart successfully", resp)
}

// ClearCart handles DELETE /cart
func (h *CartHandler) ClearCart(c *gin.Context) {
	if err := h.cartService.Clear(c.Request.Context(), h.owner(c)); err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Cart cleared successfully", nil)
}

// owner resolves the cart owner: the authenticated user, or the guest
// session cookie, issuing a new cookie when none is present
func (h *CartHandler) owner(c *gin.Context) cart.Owner {
	if userID, ok := middleware.GetUserIDFromContext(c); ok {
		return cart.Owner{UserID: &userID}
	}

	sessionID, err := c.Cookie(sessionCookie)
	if err != nil || sessionID == "" {
		sessionID = uuid.NewString()
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(sessionCookie, sessionID, sessionCookieAge, "/", "", h.config.IsProduction(), true)
	}
	return cart.Owner{SessionKey: sessionID}
}

func clearSessionCookie(c *gin.Context) {
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
}
