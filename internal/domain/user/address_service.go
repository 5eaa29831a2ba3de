// internal/domain/user/address_service.go
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"gorm.io/gorm"
)

// AddressService manages saved addresses used to prefill checkout
type AddressService struct {
	db *gorm.DB
}

// NewAddressService creates a new address service
func NewAddressService(db *gorm.DB) *AddressService {
	return &AddressService{db: db}
}

// CreateAddressRequest represents address creation data
type CreateAddressRequest struct {
	FullName     string `json:"full_name" binding:"required"`
	AddressLine1 string `json:"address_line1" binding:"required"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city" binding:"required"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country" binding:"required,len=2"`
	Phone        string `json:"phone"`
	IsDefault    bool   `json:"is_default"`
}

// GetUserAddresses lists a user's addresses, default first
func (s *AddressService) GetUserAddresses(ctx context.Context, userID uint) ([]Address, error) {
	var addresses []Address
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_default DESC, created_at DESC").
		Find(&addresses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve addresses: %w", err)
	}
	return addresses, nil
}

// GetAddress returns one address owned by the user
func (s *AddressService) GetAddress(ctx context.Context, userID, addressID uint) (*Address, error) {
	var address Address
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", addressID, userID).First(&address).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound.WithMessage("address not found")
		}
		return nil, fmt.Errorf("failed to retrieve address: %w", err)
	}
	return &address, nil
}

// CreateAddress saves a new address; a default address demotes the previous one
func (s *AddressService) CreateAddress(ctx context.Context, userID uint, req *CreateAddressRequest) (*Address, error) {
	address := Address{
		UserID:       userID,
		FullName:     req.FullName,
		AddressLine1: req.AddressLine1,
		AddressLine2: req.AddressLine2,
		City:         req.City,
		State:        req.State,
		PostalCode:   req.PostalCode,
		Country:      strings.ToUpper(req.Country),
		Phone:        req.Phone,
		IsDefault:    req.IsDefault,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if address.IsDefault {
			if err := tx.Model(&Address{}).Where("user_id = ?", userID).Update("is_default", false).Error; err != nil {
				return fmt.Errorf("failed to unset default address: %w", err)
			}
		}
		return tx.Create(&address).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create address: %w", err)
	}

	return &address, nil
}

// DeleteAddress removes an address owned by the user
func (s *AddressService) DeleteAddress(ctx context.Context, userID, addressID uint) error {
	result := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", addressID, userID).Delete(&Address{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete address: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound.WithMessage("address not found")
	}
	return nil
}
