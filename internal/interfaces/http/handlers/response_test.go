package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRespondErrorStatuses(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{shared.ErrInvalidInput, http.StatusUnprocessableEntity},
		{shared.ErrEmptyCart, http.StatusUnprocessableEntity},
		{shared.ErrInsufficientStock, http.StatusUnprocessableEntity},
		{shared.ErrNotFound.WithMessage("order not found"), http.StatusNotFound},
		{shared.ErrAlreadyExists, http.StatusConflict},
		{shared.ErrInsufficientBalance, http.StatusConflict},
		{shared.ErrInvalidState, http.StatusConflict},
		{shared.ErrForbidden, http.StatusForbidden},
		{shared.ErrInvalidSignature, http.StatusUnauthorized},
		{shared.ErrInvalidSignature.WithMessage("unknown payment provider"), http.StatusUnauthorized},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			respondError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusInternalServerError {
				assert.NotContains(t, w.Body.String(), "connection reset")
				assert.Len(t, c.Errors, 1)
			}
		})
	}
}

func TestRespondErrorBody(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondError(c, shared.ErrNotFound.WithMessage("order %d not found", 42))

	assert.JSONEq(t, `{"error":"order 42 not found","code":"NOT_FOUND"}`, w.Body.String())
}

func TestParamID(t *testing.T) {
	tests := []struct {
		value string
		want  uint
		ok    bool
	}{
		{"12", 12, true},
		{"0", 0, false},
		{"-1", 0, false},
		{"abc", 0, false},
		{"99999999999", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Params = gin.Params{{Key: "id", Value: tt.value}}

			got, ok := paramID(c, "id")

			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
			if !ok {
				assert.Equal(t, http.StatusBadRequest, w.Code)
			}
		})
	}
}

func TestCurrentUserRequiresAuthentication(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	_, ok := currentUser(c)

	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
