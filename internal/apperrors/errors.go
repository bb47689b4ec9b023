// Package apperrors defines the error taxonomy shared across the service.
// Business outcomes (card declines, payout preconditions) are represented as
// typed values so callers branch on them; plain errors are reserved for
// transport and persistence failures.
package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller is not allowed to act on the
// requested entity.
var ErrForbidden = errors.New("forbidden")

// ErrGatewayUnavailable indicates a transport-level failure talking to the
// payment gateway before any charge was confirmed sent. Safe for the caller
// to retry.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// ValidationError is a bad-input error. Never retried, mapped to 400.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for a field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// InsufficientQuantityError is returned when a listing cannot cover the
// requested quantity. Checked before the gateway is touched and enforced
// again by the guarded decrement.
type InsufficientQuantityError struct {
	ListingID string
	Requested int
	Available int
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("listing %s has %d available, %d requested", e.ListingID, e.Available, e.Requested)
}

// ChargeOutcomeUnknownError is returned when a charge timed out before the
// gateway answered. The outcome is unknown: the charge must not be retried
// and no order is created. Reference identifies the attempt for support.
type ChargeOutcomeUnknownError struct {
	Reference string
}

func (e *ChargeOutcomeUnknownError) Error() string {
	return fmt.Sprintf("charge outcome unknown, do not retry (reference %s)", e.Reference)
}

// CriticalInconsistencyError marks the charged-but-not-recorded state. The
// transaction id is surfaced to the buyer as a support reference; internal
// details never are.
type CriticalInconsistencyError struct {
	TransactionID string
	Cause         error
}

func (e *CriticalInconsistencyError) Error() string {
	return fmt.Sprintf("critical payment inconsistency for transaction %s: %v", e.TransactionID, e.Cause)
}

func (e *CriticalInconsistencyError) Unwrap() error { return e.Cause }

// BelowThresholdError is a payout precondition failure: pending earnings are
// under the seller's minimum. Reported, never retried automatically.
type BelowThresholdError struct {
	SellerID  string
	Amount    int64
	Threshold int64
}

func (e *BelowThresholdError) Error() string {
	return fmt.Sprintf("seller %s earnings %d below payout threshold %d", e.SellerID, e.Amount, e.Threshold)
}

// NoPayoutMethodError indicates a seller has no complete payout destination.
type NoPayoutMethodError struct {
	SellerID string
}

func (e *NoPayoutMethodError) Error() string {
	return fmt.Sprintf("seller %s has no payout method configured", e.SellerID)
}
