// internal/interfaces/http/handlers/product.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/your-org/marketplace-backend/internal/domain/product"
)

// ProductHandler handles catalog endpoints
type ProductHandler struct {
	productService *product.Service
}

// NewProductHandler creates a new product handler
func NewProductHandler(productService *product.Service) *ProductHandler {
	return &ProductHandler{productService: productService}
}

// GetProducts handles GET /products
func (h *ProductHandler) GetProducts(c *gin.Context) {
	var req product.ProductListRequest
	if !bindQuery(c, &req) {
		return
	}

	resp, err := h.productService.GetProducts(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Products retrieved successfully", resp)
}

// GetProduct handles GET /products/:id
func (h *ProductHandler) GetProduct(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	p, err := h.productService.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Product retrieved successfully", p)
}

// GetProductBySlug handles GET /products/slug/:slug
func (h *ProductHandler) GetProductBySlug(c *gin.Context) {
	p, err := h.productService.GetProductBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Product retrieved successfully", p)
}

// GetStock handles GET /products/:id/stock
func (h *ProductHandler) GetStock(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var variantID *uint
	if raw := c.Query("variant_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid variant_id"})
			return
		}
		vid := uint(v)
		variantID = &vid
	}

	available, err := h.productService.GetAvailableStock(c.Request.Context(), id, variantID)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Stock retrieved successfully", gin.H{
		"product_id": id,
		"variant_id": variantID,
		"available":  available,
	})
}

// SellerProducts handles GET /seller/products
func (h *ProductHandler) SellerProducts(c *gin.Context) {
	sellerID, ok := currentUser(c)
	if !ok {
		return
	}

	var req product.ProductListRequest
	if !bindQuery(c, &req) {
		return
	}
	req.SellerID = sellerID

	resp, err := h.productService.GetProducts(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Products retrieved successfully", resp)
}

// CreateProduct handles POST /seller/products
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	sellerID, ok := currentUser(c)
	if !ok {
		return
	}

	var req product.ProductCreateRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.productService.CreateProduct(c.Request.Context(), sellerID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusCreated, "Product created successfully", p)
}

// UpdateProduct handles PUT /seller/products/:id
func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	sellerID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req product.ProductUpdateRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.productService.UpdateProduct(c.Request.Context(), sellerID, id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Product updated successfully", p)
}

// DeleteProduct handles DELETE /seller/products/:id
func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	sellerID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.productService.DeleteProduct(c.Request.Context(), sellerID, id); err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Product deleted successfully", nil)
}
