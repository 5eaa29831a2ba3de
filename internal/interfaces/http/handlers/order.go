// internal/interfaces/http/handlers/order.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/marketplace-backend/internal/domain/order"
)

// OrderHandler handles order endpoints for buyers, sellers and admins
type OrderHandler struct {
	orderService *order.Service
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orderService *order.Service) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// CancelOrderRequest carries an optional cancellation reason
type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// GetOrders handles GET /orders
func (h *OrderHandler) GetOrders(c *gin.Context) {
	buyerID, ok := currentUser(c)
	if !ok {
		return
	}

	var req order.OrderListRequest
	if !bindQuery(c, &req) {
		return
	}
	req.BuyerID = buyerID

	resp, err := h.orderService.ListOrders(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Orders retrieved successfully", resp)
}

// GetOrder handles GET /orders/:id for the buyer or the seller of the order
func (h *OrderHandler) GetOrder(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	o, err := h.orderService.GetOrderForUser(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Order retrieved successfully", o)
}

// CancelOrder handles POST /orders/:id/cancel
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req CancelOrderRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	o, err := h.orderService.GetOrderForUser(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if o.BuyerID == nil || *o.BuyerID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the buyer can cancel this order"})
		return
	}

	o, err = h.orderService.Cancel(c.Request.Context(), id, req.Reason, &userID)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Order cancelled successfully", o)
}

// SellerOrders handles GET /seller/orders
func (h *OrderHandler) SellerOrders(c *gin.Context) {
	sellerID, ok := currentUser(c)
	if !ok {
		return
	}

	var req order.OrderListRequest
	if !bindQuery(c, &req) {
		return
	}
	req.SellerID = sellerID

	resp, err := h.orderService.ListOrders(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Orders retrieved successfully", resp)
}

// ShipOrder handles POST /seller/orders/:id/ship
func (h *OrderHandler) ShipOrder(c *gin.Context) {
	sellerID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req order.ShipRequest
	if !bindJSON(c, &req) {
		return
	}

	o, err := h.orderService.Ship(c.Request.Context(), sellerID, id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Order marked as shipped", o)
}

// AdminGetOrders handles GET /admin/orders
func (h *OrderHandler) AdminGetOrders(c *gin.Context) {
	var req order.OrderListRequest
	if !bindQuery(c, &req) {
		return
	}

	resp, err := h.orderService.ListOrders(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Orders retrieved successfully", resp)
}

// AdminGetOrder handles GET /admin/orders/:id
func (h *OrderHandler) AdminGetOrder(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	o, err := h.orderService.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Order retrieved successfully", o)
}

// AdminUpdateOrderStatus handles PUT /admin/orders/:id/status
func (h *OrderHandler) AdminUpdateOrderStatus(c *gin.Context) {
	adminID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req order.UpdateStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	o, err := h.orderService.UpdateStatus(c.Request.Context(), id, &req, &adminID)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Order status updated successfully", o)
}
