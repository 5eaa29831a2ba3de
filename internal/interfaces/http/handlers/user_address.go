// internal/interfaces/http/handlers/user_address.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/marketplace-backend/internal/domain/user"
)

// AddressHandler handles the current user's saved addresses
type AddressHandler struct {
	addressService *user.AddressService
}

// NewAddressHandler creates a new address handler
func NewAddressHandler(addressService *user.AddressService) *AddressHandler {
	return &AddressHandler{addressService: addressService}
}

// GetAddresses handles GET /users/addresses
func (h *AddressHandler) GetAddresses(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	addresses, err := h.addressService.GetUserAddresses(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Addresses retrieved successfully", addresses)
}

// CreateAddress handles POST /users/addresses
func (h *AddressHandler) CreateAddress(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req user.CreateAddressRequest
	if !bindJSON(c, &req) {
		return
	}

	address, err := h.addressService.CreateAddress(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusCreated, "Address created successfully", address)
}

// DeleteAddress handles DELETE /users/addresses/:id
func (h *AddressHandler) DeleteAddress(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.addressService.DeleteAddress(c.Request.Context(), userID, id); err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Address deleted successfully", nil)
}
