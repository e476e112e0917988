package errors

import (
	"errors"
	"fmt"
)

var (
	// Payment ledger errors
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrUnknownMethod     = errors.New("unknown payment method")
	ErrNotInitiable      = errors.New("payment is not awaiting initiation")

	// Vote store errors
	ErrDuplicatePayment  = errors.New("vote already recorded for payment")
	ErrPaymentNotSettled = errors.New("payment has not succeeded")

	// Catalog errors
	ErrEventNotFound    = errors.New("event not found")
	ErrPositionNotFound = errors.New("position not found")
	ErrNomineeNotFound  = errors.New("nominee not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrEventNotOpen     = errors.New("event is not open for voting")
	ErrCrossEventVote   = errors.New("nominee, position and event do not match")

	// Provider errors
	ErrProviderNotFound    = errors.New("payment provider not found")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrProviderRejected    = errors.New("payment rejected by provider")
	ErrInvalidSignature    = errors.New("invalid webhook signature")

	// Idempotency errors
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error. It matches ErrValidationFailed
// under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsTransient reports whether err is worth retrying with the same reference.
func IsTransient(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}
