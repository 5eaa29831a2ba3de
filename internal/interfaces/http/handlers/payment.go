// internal/interfaces/http/handlers/payment.go
package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/marketplace-backend/internal/domain/payment"
)

// SignatureHeader carries the provider's HMAC of the raw webhook body
const SignatureHeader = "X-Webhook-Signature"

const maxWebhookBody = 1 << 20

// PaymentHandler handles balance payments and provider webhooks
type PaymentHandler struct {
	paymentService *payment.Service
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(paymentService *payment.Service) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// WebhookListRequest represents webhook list query parameters
type WebhookListRequest struct {
	Page            int  `form:"page,default=1"`
	Limit           int  `form:"limit,default=20"`
	UnprocessedOnly bool `form:"unprocessed_only"`
}

// ReplayRequest bounds one replay pass
type ReplayRequest struct {
	Limit int `json:"limit" binding:"omitempty,min=1,max=500"`
}

// PayWithBalance handles POST /orders/:id/pay
func (h *PaymentHandler) PayWithBalance(c *gin.Context) {
	buyerID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	result, err := h.paymentService.PayWithBalance(c.Request.Context(), buyerID, id)
	if err != nil {
		respondError(c, err)
		return
	}

	message := "Order paid successfully"
	if result.AlreadyPaid {
		message = "Order was already paid"
	}
	respond(c, http.StatusOK, message, result)
}

// Webhook handles POST /webhooks/:provider. The raw body is verified before
// it is parsed. Duplicates are acknowledged with 200 so providers stop retrying.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	result, err := h.paymentService.IngestWebhook(c.Request.Context(), c.Param("provider"), c.GetHeader(SignatureHeader), body)
	if err != nil {
		respondError(c, err)
		return
	}

	message := "Webhook processed"
	switch {
	case result.Duplicate:
		message = "Webhook already received"
	case !result.Processed:
		message = "Webhook stored for retry"
	}
	respond(c, http.StatusOK, message, result)
}

// ListWebhooks handles GET /admin/webhooks
func (h *PaymentHandler) ListWebhooks(c *gin.Context) {
	var req WebhookListRequest
	if !bindQuery(c, &req) {
		return
	}

	hooks, pagination, err := h.paymentService.ListWebhooks(c.Request.Context(), req.UnprocessedOnly, req.Page, req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Webhooks retrieved successfully", gin.H{
		"webhooks":   hooks,
		"pagination": pagination,
	})
}

// ReplayWebhooks handles POST /admin/webhooks/replay
func (h *PaymentHandler) ReplayWebhooks(c *gin.Context) {
	var req ReplayRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	if req.Limit == 0 {
		req.Limit = 100
	}

	results, err := h.paymentService.ReplayUnprocessed(c.Request.Context(), req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Webhooks replayed", results)
}
