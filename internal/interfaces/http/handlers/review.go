// internal/interfaces/http/handlers/review.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/marketplace-backend/internal/domain/review"
)

// ReviewHandler handles product review endpoints
type ReviewHandler struct {
	reviewService *review.Service
}

// NewReviewHandler creates a new review handler
func NewReviewHandler(reviewService *review.Service) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService}
}

// ApprovalRequest toggles review visibility
type ApprovalRequest struct {
	Approved *bool `json:"approved" binding:"required"`
}

// GetProductReviews handles GET /products/:id/reviews
func (h *ReviewHandler) GetProductReviews(c *gin.Context) {
	productID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req review.ReviewListRequest
	if !bindQuery(c, &req) {
		return
	}

	resp, err := h.reviewService.ListProductReviews(c.Request.Context(), productID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Reviews retrieved successfully", resp)
}

// GetReviewSummary handles GET /products/:id/reviews/summary
func (h *ReviewHandler) GetReviewSummary(c *gin.Context) {
	productID, ok := paramID(c, "id")
	if !ok {
		return
	}

	summary, err := h.reviewService.Summary(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Review summary retrieved successfully", summary)
}

// CreateReview handles POST /products/:id/reviews
func (h *ReviewHandler) CreateReview(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	productID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req review.CreateReviewRequest
	if !bindJSON(c, &req) {
		return
	}

	r, err := h.reviewService.CreateReview(c.Request.Context(), userID, productID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusCreated, "Review created successfully", r)
}

// UpdateReview handles PUT /reviews/:id
func (h *ReviewHandler) UpdateReview(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	reviewID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req review.UpdateReviewRequest
	if !bindJSON(c, &req) {
		return
	}

	r, err := h.reviewService.UpdateReview(c.Request.Context(), userID, reviewID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Review updated successfully", r)
}

// DeleteReview handles DELETE /reviews/:id
func (h *ReviewHandler) DeleteReview(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	reviewID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.reviewService.DeleteReview(c.Request.Context(), userID, reviewID); err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Review deleted successfully", nil)
}

// MarkHelpful handles POST /reviews/:id/helpful
func (h *ReviewHandler) MarkHelpful(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	reviewID, ok := paramID(c, "id")
	if !ok {
		return
	}

	r, err := h.reviewService.MarkHelpful(c.Request.Context(), userID, reviewID)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Review marked as helpful", r)
}

// SetApproval handles PUT /admin/reviews/:id/approval
func (h *ReviewHandler) SetApproval(c *gin.Context) {
	reviewID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req ApprovalRequest
	if !bindJSON(c, &req) {
		return
	}

	r, err := h.reviewService.SetApproved(c.Request.Context(), reviewID, *req.Approved)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Review approval updated", r)
}
