// internal/domain/shared/errors.go
package shared

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain error so transports can map it to a status code
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindForbidden    ErrorKind = "forbidden"
	KindInvalidState ErrorKind = "invalid_state"
)

// DomainError represents a domain-level error
type DomainError struct {
	Kind    ErrorKind `json:"-"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches domain errors by code, so a sentinel matches any detailed copy of itself
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithMessage returns a copy of the error carrying a more specific message
func (e *DomainError) WithMessage(format string, args ...any) *DomainError {
	return &DomainError{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewDomainError creates a new domain error
func NewDomainError(kind ErrorKind, code, message string) *DomainError {
	return &DomainError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError(KindNotFound, "NOT_FOUND", "Resource not found")
	ErrInvalidInput        = NewDomainError(KindValidation, "INVALID_INPUT", "Invalid input provided")
	ErrAlreadyExists       = NewDomainError(KindConflict, "ALREADY_EXISTS", "Resource already exists")
	ErrForbidden           = NewDomainError(KindForbidden, "FORBIDDEN", "Access to this resource is forbidden")
	ErrInvalidState        = NewDomainError(KindInvalidState, "INVALID_STATE", "Operation not allowed in current state")
	ErrEmptyCart           = NewDomainError(KindValidation, "EMPTY_CART", "Cart is empty")
	ErrInsufficientStock   = NewDomainError(KindValidation, "INSUFFICIENT_STOCK", "Insufficient stock available")
	ErrInsufficientBalance = NewDomainError(KindConflict, "INSUFFICIENT_BALANCE", "Insufficient balance available")
	ErrPromoInvalid        = NewDomainError(KindConflict, "PROMO_INVALID", "Promo code is not valid")
	ErrKeysOutOfStock      = NewDomainError(KindConflict, "KEYS_OUT_OF_STOCK", "No digital keys available")
	ErrInvalidSignature    = NewDomainError(KindForbidden, "INVALID_SIGNATURE", "Webhook signature verification failed")
)

// KindOf returns the kind of the first domain error in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}
