// internal/interfaces/http/handlers/balance.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/marketplace-backend/internal/domain/ledger"
)

// BalanceHandler handles the internal balance and its ledger
type BalanceHandler struct {
	ledgerService *ledger.Service
}

// NewBalanceHandler creates a new balance handler
func NewBalanceHandler(ledgerService *ledger.Service) *BalanceHandler {
	return &BalanceHandler{ledgerService: ledgerService}
}

// GetBalance handles GET /balance
func (h *BalanceHandler) GetBalance(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	summary, err := h.ledgerService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Balance retrieved successfully", summary)
}

// ListTransactions handles GET /balance/transactions
func (h *BalanceHandler) ListTransactions(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req ledger.TransactionListRequest
	if !bindQuery(c, &req) {
		return
	}

	resp, err := h.ledgerService.ListTransactions(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Transactions retrieved successfully", resp)
}

// CreateTopUp handles POST /balance/topups. The top-up stays pending until the provider webhook confirms it.
func (h *BalanceHandler) CreateTopUp(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req ledger.TopUpRequest
	if !bindJSON(c, &req) {
		return
	}

	topUp, err := h.ledgerService.CreateTopUp(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusCreated, "Top-up created", topUp)
}

// GetTopUp handles GET /balance/topups/:id
func (h *BalanceHandler) GetTopUp(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	topUp, err := h.ledgerService.GetTopUp(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Top-up retrieved successfully", topUp)
}

// Withdraw handles POST /seller/withdrawals
func (h *BalanceHandler) Withdraw(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req ledger.WithdrawRequest
	if !bindJSON(c, &req) {
		return
	}

	record, err := h.ledgerService.Withdraw(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusCreated, "Withdrawal posted", record)
}

// Reconcile handles GET /balance/reconcile
func (h *BalanceHandler) Reconcile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	h.reconcile(c, userID)
}

// AdminReconcile handles GET /admin/users/:id/reconcile
func (h *BalanceHandler) AdminReconcile(c *gin.Context) {
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}
	h.reconcile(c, userID)
}

func (h *BalanceHandler) reconcile(c *gin.Context, userID uint) {
	report, err := h.ledgerService.Reconcile(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "Ledger reconciled", report)
}
