// Package treasury moves money between the business's own cash and bank
// accounts and records bank reconciliation adjustments. Both document kinds
// post through the ledger engine like any other source.
package treasury

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// FundTransfer moves an amount from one cash/bank account to another.
type FundTransfer struct {
	ID            uuid.UUID
	BusinessID    int64
	BranchID      int64
	Number        string
	TransferDate  time.Time
	FromAccountID int64
	ToAccountID   int64
	Amount        decimal.Decimal
	Description   string
	Reference     string
	CreatedBy     int64
	CreatedAt     time.Time
}

// AdjustmentType selects the counter account of a bank adjustment.
type AdjustmentType string

const (
	AdjustmentBankCharge      AdjustmentType = "bank_charge"
	AdjustmentInterest        AdjustmentType = "interest"
	AdjustmentErrorCorrection AdjustmentType = "error_correction"
	AdjustmentOther           AdjustmentType = "other"
)

// AdjustmentDirection states which way the bank balance moves.
type AdjustmentDirection string

const (
	DirectionIncrease AdjustmentDirection = "increase"
	DirectionDecrease AdjustmentDirection = "decrease"
)

// BankAdjustment reconciles a statement line that has no source document:
// charges, interest, corrections.
type BankAdjustment struct {
	ID             uuid.UUID
	BusinessID     int64
	BranchID       int64
	Number         string
	AdjustmentDate time.Time
	BankAccountID  int64
	Type           AdjustmentType
	Direction      AdjustmentDirection
	Amount         decimal.Decimal
	Description    string
	Reference      string
	CreatedBy      int64
	CreatedAt      time.Time
}

var (
	ErrTransferNotFound   = fmt.Errorf("%w: fund transfer", shared.ErrNotFound)
	ErrAdjustmentNotFound = fmt.Errorf("%w: bank adjustment", shared.ErrNotFound)

	// ErrSameAccount rejects transfers where source and destination coincide.
	ErrSameAccount = fmt.Errorf("%w: transfer requires two distinct accounts", shared.ErrValidation)
	// ErrTransferAccountNotCash constrains both ends to cash/bank accounts.
	ErrTransferAccountNotCash = fmt.Errorf("%w: transfer accounts must be cash or bank accounts", shared.ErrValidation)
	// ErrBankAccountNotCash constrains adjustments to cash/bank accounts.
	ErrBankAccountNotCash = fmt.Errorf("%w: adjustment account must be a cash or bank account", shared.ErrValidation)
)

// TransferInput carries a new fund transfer.
type TransferInput struct {
	TransferDate  time.Time
	FromAccountID int64
	ToAccountID   int64
	Amount        decimal.Decimal
	Description   string
	Reference     string
}

func (in TransferInput) validate() error {
	if in.TransferDate.IsZero() {
		return fmt.Errorf("%w: transfer date required", shared.ErrValidation)
	}
	if in.FromAccountID == 0 || in.ToAccountID == 0 {
		return fmt.Errorf("%w: source and destination accounts required", shared.ErrValidation)
	}
	if in.FromAccountID == in.ToAccountID {
		return ErrSameAccount
	}
	if !in.Amount.IsPositive() {
		return fmt.Errorf("%w: transfer amount must be positive", shared.ErrValidation)
	}
	return nil
}

// AdjustmentInput carries a new bank adjustment.
type AdjustmentInput struct {
	AdjustmentDate time.Time
	BankAccountID  int64
	Type           AdjustmentType
	Direction      AdjustmentDirection
	Amount         decimal.Decimal
	Description    string
	Reference      string
}

func (in AdjustmentInput) validate() error {
	if in.AdjustmentDate.IsZero() {
		return fmt.Errorf("%w: adjustment date required", shared.ErrValidation)
	}
	if in.BankAccountID == 0 {
		return fmt.Errorf("%w: bank account required", shared.ErrValidation)
	}
	switch in.Type {
	case AdjustmentBankCharge, AdjustmentInterest, AdjustmentErrorCorrection, AdjustmentOther:
	default:
		return fmt.Errorf("%w: unknown adjustment type %q", shared.ErrValidation, in.Type)
	}
	switch in.Direction {
	case DirectionIncrease, DirectionDecrease:
	default:
		return fmt.Errorf("%w: unknown adjustment direction %q", shared.ErrValidation, in.Direction)
	}
	if !in.Amount.IsPositive() {
		return fmt.Errorf("%w: adjustment amount must be positive", shared.ErrValidation)
	}
	return nil
}
