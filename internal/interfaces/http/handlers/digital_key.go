// internal/interfaces/http/handlers/digital_key.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/marketplace-backend/internal/domain/fulfillment"
)

// DigitalKeyHandler handles key restocking, delivery listings and the shortage report
type DigitalKeyHandler struct {
	fulfillmentService *fulfillment.Service
}

// NewDigitalKeyHandler creates a new digital key handler
func NewDigitalKeyHandler(fulfillmentService *fulfillment.Service) *DigitalKeyHandler {
	return &DigitalKeyHandler{fulfillmentService: fulfillmentService}
}

// AddKeys handles POST /seller/products/:id/keys. Paid orders waiting on this
// product are retried right after the restock.
func (h *DigitalKeyHandler) AddKeys(c *gin.Context) {
	sellerID, ok := currentUser(c)
	if !ok {
		return
	}
	productID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req fulfillment.AddKeysRequest
	if !bindJSON(c, &req) {
		return
	}

	added, err := h.fulfillmentService.AddKeys(c.Request.Context(), sellerID, productID, req.Codes)
	if err != nil {
		respondError(c, err)
		return
	}

	results, err := h.fulfillmentService.RetryProduct(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusCreated, "Keys added successfully", gin.H{
		"added":          added,
		"orders_retried":  len(results),
		"results":        results,
	})
}

// MyKeys handles GET /digital-keys
func (h *DigitalKeyHandler) MyKeys(c *gin.Context) {
	buyerID, ok := currentUser(c)
	if !ok {
		return
	}

	keys, err := h.fulfillmentService.ListDeliveries(c.Request.Context(), buyerID)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Digital keys retrieved successfully", keys)
}

// PendingDeliveries handles GET /admin/digital-keys/pending
func (h *DigitalKeyHandler) PendingDeliveries(c *gin.Context) {
	report, err := h.fulfillmentService.PendingDeliveries(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Pending deliveries retrieved successfully", report)
}

// RetryProduct handles POST /admin/digital-keys/products/:id/retry
func (h *DigitalKeyHandler) RetryProduct(c *gin.Context) {
	productID, ok := paramID(c, "id")
	if !ok {
		return
	}

	results, err := h.fulfillmentService.RetryProduct(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Fulfillment retried", results)
}

// FulfillOrder handles POST /admin/orders/:id/fulfill
func (h *DigitalKeyHandler) FulfillOrder(c *gin.Context) {
	orderID, ok := paramID(c, "id")
	if !ok {
		return
	}

	result, err := h.fulfillmentService.FulfillOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Fulfillment finished", result)
}
