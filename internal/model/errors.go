package model

import (
	"fmt"
	"strings"
)

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON       = "INVALID_JSON"
	ErrCodeValidation        = "VALIDATION_FAILED"
	ErrCodeStockConflict     = "STOCK_CONFLICT"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeTransactionAbort  = "TRANSACTION_ABORTED"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeDuplicateEvent    = "DUPLICATE_EVENT"
	ErrCodeInvalidSignature  = "INVALID_SIGNATURE"
	ErrCodeInvalidPromoCode  = "INVALID_PROMO_CODE"
	ErrCodeUnauthorised      = "UNAUTHORIZED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// ValidationError reports bad input: missing unit code, quantity below one,
// malformed owner identifiers and the like.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a validation error for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// StockConflictError reports insufficient stock at mutation time. It is
// recoverable: the caller should re-fetch live stock, not retry blindly.
type StockConflictError struct {
	// Units lists the unit codes that could not satisfy the requested quantity.
	Units []string
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("insufficient stock for units: %s", strings.Join(e.Units, ", "))
}

// NotFoundError reports a missing unit, product, tier, cart or order.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// NewNotFoundError creates a not-found error for the given resource.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// TransactionAbortError reports an underlying multi-row write conflict.
// The whole operation is safe to retry.
type TransactionAbortError struct {
	Op  string
	Err error
}

func (e *TransactionAbortError) Error() string {
	return fmt.Sprintf("transaction aborted during %s: %v", e.Op, e.Err)
}

func (e *TransactionAbortError) Unwrap() error {
	return e.Err
}

// DuplicateEventError reports a webhook replay. It is not a failure: the
// event was already applied and the caller should acknowledge success.
type DuplicateEventError struct {
	Provider string
	EventID  string
}

func (e *DuplicateEventError) Error() string {
	return fmt.Sprintf("event %s from provider %s already processed", e.EventID, e.Provider)
}

// InvalidTransitionError reports an order state change the state machine
// does not permit.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order transition %s -> %s not permitted", e.From, e.To)
}

// Domain errors for business logic
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrInvalidPromoCode   = NewDomainError(ErrCodeInvalidPromoCode, "Promo code must appear in at least two promo files")
	ErrInvalidPromoLength = NewDomainError(ErrCodeInvalidPromoCode, "Promo code must be between 8 and 10 characters")
	ErrInvalidSignature   = NewDomainError(ErrCodeInvalidSignature, "Webhook signature verification failed")
	ErrCartNotActive      = NewDomainError(ErrCodeValidation, "Cart is not active")
)
