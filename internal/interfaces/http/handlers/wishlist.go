// internal/interfaces/http/handlers/wishlist.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/your-org/marketplace-backend/internal/domain/wishlist"
)

// WishlistHandler handles wishlist endpoints
type WishlistHandler struct {
	wishlistService *wishlist.Service
}

// NewWishlistHandler creates a new wishlist handler
func NewWishlistHandler(wishlistService *wishlist.Service) *WishlistHandler {
	return &WishlistHandler{wishlistService: wishlistService}
}

// BulkAddRequest represents a bulk wishlist add
type BulkAddRequest struct {
	ProductIDs []uint `json:"product_ids" binding:"required,min=1,max=50"`
}

// GetWishlist handles GET /wishlist
func (h *WishlistHandler) GetWishlist(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req wishlist.ListRequest
	if !bindQuery(c, &req) {
		return
	}

	resp, err := h.wishlistService.GetWishlist(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Wishlist retrieved successfully", resp)
}

// AddToWishlist handles POST /wishlist/items. Saving an existing entry answers 200.
func (h *WishlistHandler) AddToWishlist(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req wishlist.AddRequest
	if !bindJSON(c, &req) {
		return
	}

	item, created, err := h.wishlistService.AddItem(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	if !created {
		respond(c, http.StatusOK, "Item already in wishlist", item)
		return
	}
	respond(c, http.StatusCreated, "Item added to wishlist successfully", item)
}

// BulkAddToWishlist handles POST /wishlist/bulk
func (h *WishlistHandler) BulkAddToWishlist(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req BulkAddRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.wishlistService.BulkAdd(c.Request.Context(), userID, req.ProductIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Items processed for wishlist", result)
}

// RemoveFromWishlist handles DELETE /wishlist/items/:id where id is the product
func (h *WishlistHandler) RemoveFromWishlist(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	productID, ok := paramID(c, "id")
	if !ok {
		return
	}
	variantID, ok := queryVariant(c)
	if !ok {
		return
	}

	if err := h.wishlistService.RemoveItem(c.Request.Context(), userID, productID, variantID); err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Item removed from wishlist successfully", nil)
}

// ClearWishlist handles DELETE /wishlist
func (h *WishlistHandler) ClearWishlist(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.wishlistService.Clear(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Wishlist cleared successfully", nil)
}

// GetWishlistCount handles GET /wishlist/count
func (h *WishlistHandler) GetWishlistCount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	count, err := h.wishlistService.Count(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Wishlist count retrieved successfully", gin.H{"count": count})
}

// CheckItemInWishlist handles GET /wishlist/check/:id
func (h *WishlistHandler) CheckItemInWishlist(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	productID, ok := paramID(c, "id")
	if !ok {
		return
	}
	variantID, ok := queryVariant(c)
	if !ok {
		return
	}

	saved, err := h.wishlistService.Contains(c.Request.Context(), userID, productID, variantID)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Wishlist status checked successfully", gin.H{
		"in_wishlist": saved,
		"product_id":  productID,
		"variant_id":  variantID,
	})
}

// MoveToCart handles POST /wishlist/items/:id/move-to-cart
func (h *WishlistHandler) MoveToCart(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	productID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req wishlist.MoveToCartRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.wishlistService.MoveToCart(c.Request.Context(), userID, productID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Item moved to cart successfully", resp)
}

// queryVariant parses the optional variant_id query parameter
func queryVariant(c *gin.Context) (*uint, bool) {
	raw := c.Query("variant_id")
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid variant_id",
		})
		return nil, false
	}
	variantID := uint(id)
	return &variantID, true
}
