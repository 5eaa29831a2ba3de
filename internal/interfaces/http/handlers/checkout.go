// internal/interfaces/http/handlers/checkout.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/your-org/marketplace-backend/internal/domain/order"
	"github.com/your-org/marketplace-backend/internal/domain/promo"
)

// CheckoutHandler turns carts into orders
type CheckoutHandler struct {
	orderService *order.Service
	promoService *promo.Service
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(orderService *order.Service, promoService *promo.Service) *CheckoutHandler {
	return &CheckoutHandler{
		orderService: orderService,
		promoService: promoService,
	}
}

// PromoPreviewRequest asks what a code would take off an amount
type PromoPreviewRequest struct {
	Code   string          `json:"code" binding:"required,max=50"`
	Amount decimal.Decimal `json:"amount"`
}

// Checkout handles POST /checkout. One pending order is created per seller.
func (h *CheckoutHandler) Checkout(c *gin.Context) {
	buyerID, ok := currentUser(c)
	if !ok {
		return
	}

	var req order.CheckoutRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.orderService.Checkout(c.Request.Context(), buyerID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusCreated, "Checkout completed successfully", result)
}

// PreviewPromo handles POST /checkout/promo
func (h *CheckoutHandler) PreviewPromo(c *gin.Context) {
	var req PromoPreviewRequest
	if !bindJSON(c, &req) {
		return
	}

	app, err := h.promoService.Preview(c.Request.Context(), req.Code, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Promo code evaluated", app)
}
