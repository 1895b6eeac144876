package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Base error kinds. Module sentinels wrap one of these so transports can
// classify failures without knowing every module error.
var (
	// ErrValidation marks user-correctable input failures.
	ErrValidation = errors.New("invalid input")
	// ErrBusinessRule marks invariant violations; the operation is fully rejected.
	ErrBusinessRule = errors.New("business rule violation")
	// ErrNotFound covers missing or cross-tenant resources. Cross-tenant
	// access is indistinguishable from a missing row.
	ErrNotFound = errors.New("not found")
)

// ErrInsufficientFunds is the base sentinel for funding-account shortfalls.
var ErrInsufficientFunds = fmt.Errorf("%w: insufficient funds", ErrBusinessRule)

// InsufficientFundsError carries the shortfall amount for user display.
type InsufficientFundsError struct {
	AccountID int64
	Shortfall decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds on account %d, short by %s", e.AccountID, e.Shortfall.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// NewInsufficientFunds builds the shortfall error for an outflow precondition.
func NewInsufficientFunds(accountID int64, shortfall decimal.Decimal) error {
	return &InsufficientFundsError{AccountID: accountID, Shortfall: shortfall}
}
