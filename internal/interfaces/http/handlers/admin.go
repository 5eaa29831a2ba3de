// internal/interfaces/http/handlers/admin.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/marketplace-backend/internal/domain/promo"
	"github.com/your-org/marketplace-backend/internal/domain/user"
)

// AdminHandler handles seller administration and promo code management
type AdminHandler struct {
	adminService *user.AdminService
	promoService *promo.Service
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(adminService *user.AdminService, promoService *promo.Service) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		promoService: promoService,
	}
}

// ActiveRequest toggles a promo code
type ActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// ListSellers handles GET /admin/sellers
func (h *AdminHandler) ListSellers(c *gin.Context) {
	var req user.SellerListRequest
	if !bindQuery(c, &req) {
		return
	}

	resp, err := h.adminService.ListSellers(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Sellers retrieved successfully", resp)
}

// ApproveSeller handles POST /admin/sellers/:id/approve
func (h *AdminHandler) ApproveSeller(c *gin.Context) {
	sellerID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.adminService.ApproveSeller(c.Request.Context(), sellerID); err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Seller approved successfully", nil)
}

// UpdateCommission handles PUT /admin/sellers/:id/commission
func (h *AdminHandler) UpdateCommission(c *gin.Context) {
	sellerID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req user.CommissionUpdateRequest
	if !bindJSON(c, &req) {
		return
	}

	profile, err := h.adminService.UpdateCommissionRate(c.Request.Context(), sellerID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Commission rate updated", profile)
}

// CreatePromo handles POST /admin/promos
func (h *AdminHandler) CreatePromo(c *gin.Context) {
	var req promo.CreatePromoRequest
	if !bindJSON(c, &req) {
		return
	}

	code, err := h.promoService.CreatePromo(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusCreated, "Promo code created successfully", code)
}

// SetPromoActive handles PUT /admin/promos/:id/active
func (h *AdminHandler) SetPromoActive(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req ActiveRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.promoService.SetActive(c.Request.Context(), id, *req.Active); err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Promo code updated", gin.H{"active": *req.Active})
}
