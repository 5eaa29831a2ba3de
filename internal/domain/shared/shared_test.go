package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_IsMatchesByCode(t *testing.T) {
	detailed := ErrInsufficientStock.WithMessage("Only %d left", 2)
	wrapped := fmt.Errorf("checkout: %w", detailed)

	assert.ErrorIs(t, wrapped, ErrInsufficientStock)
	assert.NotErrorIs(t, wrapped, ErrNotFound)
	assert.Equal(t, "Only 2 left", detailed.Error())

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindValidation, kind)

	_, ok = KindOf(errors.New("boom"))
	assert.False(t, ok)
}

func TestPercent(t *testing.T) {
	tests := []struct {
		amount, rate, want string
	}{
		{"40.00", "15", "6.00"},
		{"15.00", "10", "1.50"},
		{"10.05", "15", "1.51"},
		{"0.10", "5", "0.01"},
		{"33.33", "0", "0.00"},
	}
	for _, tt := range tests {
		got := Percent(decimal.RequireFromString(tt.amount), decimal.RequireFromString(tt.rate))
		assert.Equal(t, tt.want, got.StringFixed(2), "%s x %s%%", tt.amount, tt.rate)
	}
}

func TestPagination(t *testing.T) {
	p := NewPagination(2, 10, 35)
	assert.Equal(t, 4, p.TotalPages)
	assert.True(t, p.HasNext)
	assert.True(t, p.HasPrev)

	page, limit := NormalizePage(0, 500)
	assert.Equal(t, 1, page)
	assert.Equal(t, 100, limit)
	assert.Equal(t, 20, Offset(2, 0))
}

func TestNewJob(t *testing.T) {
	job, err := NewJob(JobOrderPaid, "42", OrderPaidPayload{OrderID: 42})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "order.paid:42", job.IdempotencyKey())
	assert.JSONEq(t, `{"order_id":42}`, string(job.Payload))
}

func TestValidateStruct(t *testing.T) {
	type request struct {
		Method string `json:"payment_method" binding:"required,oneof=card stripe"`
		Qty    int    `json:"quantity" binding:"min=1"`
	}

	err := ValidateStruct(&request{Method: "card", Qty: 1})
	assert.NoError(t, err)

	err = ValidateStruct(&request{Method: "cash", Qty: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "payment_method must be one of")

	err = ValidateStruct(&request{Method: "card"})
	assert.Contains(t, err.Error(), "quantity must be at least 1")
}
