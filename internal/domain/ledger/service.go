// internal/domain/ledger/service.go
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/marketplace-backend/internal/config"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"github.com/your-org/marketplace-backend/internal/domain/user"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service handles balances, top-ups and payouts
type Service struct {
	db     *gorm.DB
	config *config.Config
	logger logrus.FieldLogger
}

// NewService creates a new ledger service
func NewService(db *gorm.DB, cfg *config.Config, logger logrus.FieldLogger) *Service {
	return &Service{
		db:     db,
		config: cfg,
		logger: logger,
	}
}

// TopUpRequest represents a request to add funds
type TopUpRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod PaymentMethod   `json:"payment_method" binding:"required,oneof=card yookassa stripe paypal bank_transfer"`
}

// WithdrawRequest represents a seller payout request
type WithdrawRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination" binding:"required,max=255"`
}

// TransactionListRequest represents ledger query parameters
type TransactionListRequest struct {
	Page  int             `form:"page,default=1"`
	Limit int             `form:"limit,default=20"`
	Type  TransactionType `form:"type"`
}

// TransactionListResponse represents a page of ledger entries
type TransactionListResponse struct {
	Transactions []BalanceTransaction `json:"transactions"`
	Pagination   shared.Pagination    `json:"pagination"`
}

// BalanceSummary represents a user's balance view
type BalanceSummary struct {
	UserID        uint            `json:"user_id"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
	PendingTopUps decimal.Decimal `json:"pending_topups"`
}

// ReconcileReport compares the stored balance with a replay of the ledger
type ReconcileReport struct {
	UserID          uint            `json:"user_id"`
	Balance         decimal.Decimal `json:"balance"`
	LedgerBalance   decimal.Decimal `json:"ledger_balance"`
	Drift           decimal.Decimal `json:"drift"`
	Transactions    int             `json:"transactions"`
	FirstMismatchID *uint           `json:"first_mismatch_id,omitempty"`
	Consistent      bool            `json:"consistent"`
}

// GetBalance returns the user's balance and the sum of open top-ups
func (s *Service) GetBalance(ctx context.Context, userID uint) (*BalanceSummary, error) {
	var account user.User
	if err := s.db.WithContext(ctx).Select("id", "balance").First(&account, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound.WithMessage("user not found")
		}
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}

	var pending []BalanceTopUp
	err := s.db.WithContext(ctx).
		Select("amount").
		Where("user_id = ? AND status IN ?", userID, []TopUpStatus{TopUpPending, TopUpProcessing}).
		Find(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load pending top-ups: %w", err)
	}

	pendingTotal := decimal.Zero
	for _, t := range pending {
		pendingTotal = pendingTotal.Add(t.Amount)
	}

	return &BalanceSummary{
		UserID:        userID,
		Balance:       account.Balance,
		Currency:      s.config.Marketplace.Currency,
		PendingTopUps: pendingTotal,
	}, nil
}

// ListTransactions returns the user's ledger, newest first
func (s *Service) ListTransactions(ctx context.Context, userID uint, req *TransactionListRequest) (*TransactionListResponse, error) {
	page, limit := shared.NormalizePage(req.Page, req.Limit)

	query := s.db.WithContext(ctx).Model(&BalanceTransaction{}).Where("user_id = ?", userID)
	if req.Type != "" {
		if !req.Type.Valid() {
			return nil, shared.ErrInvalidInput.WithMessage("unknown transaction type %q", req.Type)
		}
		query = query.Where("transaction_type = ?", req.Type)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	var transactions []BalanceTransaction
	err := query.Order("created_at DESC, id DESC").
		Offset(shared.Offset(page, limit)).
		Limit(limit).
		Find(&transactions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve transactions: %w", err)
	}

	return &TransactionListResponse{
		Transactions: transactions,
		Pagination:   shared.NewPagination(page, limit, total),
	}, nil
}

// CreateTopUp opens a pending top-up to be completed by the payment provider
func (s *Service) CreateTopUp(ctx context.Context, userID uint, req *TopUpRequest) (*BalanceTopUp, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return nil, err
	}
	amount := shared.RoundMoney(req.Amount)
	if amount.Sign() <= 0 {
		return nil, shared.ErrInvalidInput.WithMessage("Top-up amount must be positive")
	}

	topUp := &BalanceTopUp{
		UserID:        userID,
		Amount:        amount,
		PaymentMethod: req.PaymentMethod,
		Status:        TopUpPending,
	}
	if err := s.db.WithContext(ctx).Create(topUp).Error; err != nil {
		return nil, fmt.Errorf("failed to create top-up: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"top_up":   topUp.ID,
		"amount":   amount.StringFixed(2),
		"provider": req.PaymentMethod,
	}).Info("Top-up created")

	return topUp, nil
}

// GetTopUp returns a user's top-up
func (s *Service) GetTopUp(ctx context.Context, userID, topUpID uint) (*BalanceTopUp, error) {
	var topUp BalanceTopUp
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", topUpID, userID).First(&topUp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound.WithMessage("top-up not found")
		}
		return nil, fmt.Errorf("failed to retrieve top-up: %w", err)
	}
	return &topUp, nil
}

// CompleteTopUp credits the top-up amount. In one transaction it locks the
// top-up and user rows, posts the deposit and marks the top-up completed.
// Completing an already completed top-up is a no-op.
func (s *Service) CompleteTopUp(ctx context.Context, topUpID uint, paymentID string) (*BalanceTopUp, error) {
	var topUp BalanceTopUp
	credited := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockTopUp(tx, topUpID, &topUp); err != nil {
			return err
		}

		switch topUp.Status {
		case TopUpCompleted:
			return nil
		case TopUpFailed, TopUpCancelled:
			return shared.ErrInvalidState.WithMessage("top-up %d is %s", topUp.ID, topUp.Status)
		}

		_, err := Post(tx, Entry{
			UserID:      topUp.UserID,
			Type:        TransactionDeposit,
			Amount:      topUp.Amount,
			Description: fmt.Sprintf("Balance top-up via %s", topUp.PaymentMethod.DisplayName()),
			Metadata:    map[string]interface{}{"topup_id": topUp.ID},
		})
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		updates := map[string]interface{}{
			"status":       TopUpCompleted,
			"completed_at": now,
		}
		if paymentID != "" {
			updates["payment_id"] = paymentID
			topUp.PaymentID = paymentID
		}
		if err := tx.Model(&topUp).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to complete top-up: %w", err)
		}

		topUp.Status = TopUpCompleted
		topUp.CompletedAt = &now
		credited = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if credited {
		s.logger.WithFields(logrus.Fields{
			"user_id": topUp.UserID,
			"top_up":  topUp.ID,
			"amount":  topUp.Amount.StringFixed(2),
		}).Info("Top-up completed")
	}
	return &topUp, nil
}

// FailTopUp marks an open top-up failed, leaving the balance untouched
func (s *Service) FailTopUp(ctx context.Context, topUpID uint, reason string) (*BalanceTopUp, error) {
	var topUp BalanceTopUp

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockTopUp(tx, topUpID, &topUp); err != nil {
			return err
		}

		switch topUp.Status {
		case TopUpFailed:
			return nil
		case TopUpCompleted, TopUpCancelled:
			return shared.ErrInvalidState.WithMessage("top-up %d is %s", topUp.ID, topUp.Status)
		}

		data := datatypes.JSONMap{}
		for k, v := range topUp.PaymentData {
			data[k] = v
		}
		data["failure_reason"] = reason

		err := tx.Model(&topUp).Updates(map[string]interface{}{
			"status":       TopUpFailed,
			"payment_data": data,
		}).Error
		if err != nil {
			return fmt.Errorf("failed to mark top-up failed: %w", err)
		}
		topUp.Status = TopUpFailed
		topUp.PaymentData = data
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &topUp, nil
}

// Withdraw debits a payout from the user's balance
func (s *Service) Withdraw(ctx context.Context, userID uint, req *WithdrawRequest) (*BalanceTransaction, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return nil, err
	}

	var record *BalanceTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		record, err = Post(tx, Entry{
			UserID:      userID,
			Type:        TransactionWithdrawal,
			Amount:      req.Amount,
			Description: "Payout request",
			Metadata:    map[string]interface{}{"destination": req.Destination},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"amount":  record.Amount.StringFixed(2),
	}).Info("Withdrawal posted")
	return record, nil
}

// Reconcile replays the user's ledger in creation order and compares the
// running total with every balance_after snapshot and the stored balance.
func (s *Service) Reconcile(ctx context.Context, userID uint) (*ReconcileReport, error) {
	var account user.User
	if err := s.db.WithContext(ctx).Select("id", "balance").First(&account, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound.WithMessage("user not found")
		}
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}

	var entries []BalanceTransaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	report := &ReconcileReport{
		UserID:       userID,
		Balance:      account.Balance,
		Transactions: len(entries),
	}

	running := decimal.Zero
	for i := range entries {
		running = running.Add(entries[i].TransactionType.Signed(entries[i].Amount))
		if report.FirstMismatchID == nil && !running.Equal(entries[i].BalanceAfter) {
			id := entries[i].ID
			report.FirstMismatchID = &id
		}
	}

	report.LedgerBalance = running
	report.Drift = account.Balance.Sub(running)
	report.Consistent = report.Drift.IsZero() && report.FirstMismatchID == nil

	if !report.Consistent {
		s.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"drift":   report.Drift.StringFixed(2),
		}).Warn("Ledger drift detected")
	}
	return report, nil
}

func lockTopUp(tx *gorm.DB, topUpID uint, topUp *BalanceTopUp) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(topUp, topUpID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shared.ErrNotFound.WithMessage("top-up %d not found", topUpID)
		}
		return fmt.Errorf("failed to lock top-up: %w", err)
	}
	return nil
}
