// internal/domain/user/service.go
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/your-org/marketplace-backend/internal/config"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"github.com/your-org/marketplace-backend/internal/pkg/auth"
	"gorm.io/gorm"
)

// ErrInvalidCredentials is returned for any failed login
var ErrInvalidCredentials = shared.NewDomainError(shared.KindValidation, "INVALID_CREDENTIALS", "Invalid email or password")

// Service handles user business logic
type Service struct {
	db              *gorm.DB
	config          *config.Config
	passwordManager *auth.PasswordManager
	jwtManager      *auth.JWTManager
}

// NewService creates a new user service
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:              db,
		config:          cfg,
		passwordManager: auth.NewPasswordManager(cfg),
		jwtManager:      auth.NewJWTManager(cfg),
	}
}

// RegisterRequest represents user registration data
type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Phone     string `json:"phone"`
}

// LoginRequest represents user login data
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// BecomeSellerRequest opens a seller profile for the current user
type BecomeSellerRequest struct {
	BusinessName string `json:"business_name" binding:"required"`
	Description  string `json:"description"`
}

// AuthResponse represents authentication response
type AuthResponse struct {
	User         *User  `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Register creates a new buyer account
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if count > 0 {
		return nil, shared.ErrAlreadyExists.WithMessage("user with this email already exists")
	}

	hashedPassword, err := s.passwordManager.HashPassword(req.Password)
	if err != nil {
		return nil, shared.ErrInvalidInput.WithMessage("%s", err.Error())
	}

	user := User{
		Email:     email,
		Password:  hashedPassword,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		UserType:  UserTypeBuyer,
		IsActive:  true,
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return s.issueTokens(ctx, &user)
}

// Login authenticates a user
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	var user User
	err := s.db.WithContext(ctx).
		Where("email = ? AND is_active = ?", strings.ToLower(strings.TrimSpace(req.Email)), true).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := s.passwordManager.VerifyPassword(req.Password, user.Password); err != nil {
		return nil, ErrInvalidCredentials
	}

	// Hashes made under an older cost are upgraded while the plain password is at hand
	if s.passwordManager.NeedsRehash(user.Password) {
		if hash, err := s.passwordManager.HashPassword(req.Password); err == nil {
			if err := s.db.WithContext(ctx).Model(&user).Update("password", hash).Error; err == nil {
				user.Password = hash
			}
		}
	}

	return s.issueTokens(ctx, &user)
}

// RefreshToken issues a new token pair from a refresh token
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidCredentials.WithMessage("invalid refresh token")
	}

	var user User
	if err := s.db.WithContext(ctx).Where("id = ? AND is_active = ?", claims.UserID, true).First(&user).Error; err != nil {
		return nil, ErrInvalidCredentials.WithMessage("user not found or inactive")
	}

	return s.issueTokens(ctx, &user)
}

// GetProfile returns the user with its seller profile
func (s *Service) GetProfile(ctx context.Context, userID uint) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Preload("SellerProfile").First(&user, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound.WithMessage("user not found")
		}
		return nil, fmt.Errorf("failed to retrieve user: %w", err)
	}
	return &user, nil
}

// BecomeSeller upgrades a buyer to a seller with the default commission rate.
// New seller profiles start unapproved.
func (s *Service) BecomeSeller(ctx context.Context, userID uint, req *BecomeSellerRequest) (*SellerProfile, error) {
	var profile SellerProfile

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		if err := tx.First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return shared.ErrNotFound.WithMessage("user not found")
			}
			return fmt.Errorf("failed to load user: %w", err)
		}
		if user.IsSeller() {
			return shared.ErrAlreadyExists.WithMessage("user is already a seller")
		}
		if user.IsAdmin() {
			return shared.ErrInvalidState.WithMessage("administrators cannot open a seller profile")
		}

		profile = SellerProfile{
			UserID:         userID,
			BusinessName:   req.BusinessName,
			Description:    req.Description,
			CommissionRate: s.config.Marketplace.DefaultCommission,
		}
		if err := tx.Create(&profile).Error; err != nil {
			return fmt.Errorf("failed to create seller profile: %w", err)
		}

		return tx.Model(&User{}).Where("id = ?", userID).Update("user_type", UserTypeSeller).Error
	})
	if err != nil {
		return nil, err
	}

	return &profile, nil
}

func (s *Service) issueTokens(ctx context.Context, user *User) (*AuthResponse, error) {
	accessToken, err := s.jwtManager.GenerateAccessToken(user.ID, user.Email, string(user.UserType))
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	now := time.Now().UTC()
	user.LastLoginAt = &now
	if err := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", user.ID).Update("last_login_at", now).Error; err != nil {
		return nil, fmt.Errorf("failed to update last login: %w", err)
	}

	return &AuthResponse{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.config.JWT.AccessTokenExpiry.Seconds()),
	}, nil
}
