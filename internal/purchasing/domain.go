// Package purchasing covers purchase bills, their payments and debit notes
// (purchase returns). A bill posts on creation, payments settle it, and an
// applied debit note mirrors the bill's lines back out for the returned
// portion.
package purchasing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// BillStatus tracks settlement, not posting: every persisted bill is posted.
type BillStatus string

const (
	BillStatusUnpaid  BillStatus = "unpaid"
	BillStatusPartial BillStatus = "partial"
	BillStatusPaid    BillStatus = "paid"
)

// NoteStatus is the debit-note state machine. Only open notes transition.
type NoteStatus string

const (
	NoteStatusOpen    NoteStatus = "open"
	NoteStatusApplied NoteStatus = "applied"
	NoteStatusVoid    NoteStatus = "void"
)

// RefundMethod routes the already-paid portion of an applied note.
type RefundMethod string

const (
	RefundNone          RefundMethod = "none"
	RefundVendorBalance RefundMethod = "vendor_balance"
	RefundCash          RefundMethod = "cash_refund"
)

// Bill is a vendor invoice. Amount always equals SubTotal+VATAmount;
// outstanding is derived, never stored.
type Bill struct {
	ID             uuid.UUID
	BusinessID     int64
	BranchID       int64
	Number         string
	VendorID       int64
	BillDate       time.Time
	DueDate        time.Time
	Description    string
	Reference      string
	SubTotal       decimal.Decimal
	VATAmount      decimal.Decimal
	Amount         decimal.Decimal
	PaidAmount     decimal.Decimal
	ReturnedAmount decimal.Decimal
	Status         BillStatus
	CreatedBy      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Lines []BillLine
}

// Outstanding is what the vendor is still owed: gross minus payments minus
// applied returns, floored at zero.
func (b Bill) Outstanding() decimal.Decimal {
	out := b.Amount.Sub(b.PaidAmount).Sub(b.ReturnedAmount)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// BillLine is one priced row of a bill. ReturnedQuantity accumulates from
// applied debit notes only.
type BillLine struct {
	ID               int64
	BillID           uuid.UUID
	AccountID        int64
	Description      string
	Quantity         decimal.Decimal
	UnitPrice        decimal.Decimal
	Amount           decimal.Decimal
	ReturnedQuantity decimal.Decimal
}

// Payment settles part of a bill against a cash/bank account.
type Payment struct {
	ID                uuid.UUID
	BusinessID        int64
	BranchID          int64
	BillID            uuid.UUID
	PaymentDate       time.Time
	Amount            decimal.Decimal
	PaidFromAccountID int64
	Reference         string
	CreatedBy         int64
	CreatedAt         time.Time
}

// DebitNote is a purchase return against one bill.
type DebitNote struct {
	ID              uuid.UUID
	BusinessID      int64
	BranchID        int64
	BillID          uuid.UUID
	Number          string
	NoteDate        time.Time
	Reason          string
	Status          NoteStatus
	SubTotal        decimal.Decimal
	VATAmount       decimal.Decimal
	TotalAmount     decimal.Decimal
	RefundMethod    RefundMethod
	RefundAccountID *int64
	AppliedAt       *time.Time
	CreatedBy       int64
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Lines []NoteLine
}

// NoteLine references one bill line and the quantity being returned.
type NoteLine struct {
	ID         int64
	NoteID     uuid.UUID
	BillLineID int64
	AccountID  int64
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
	Amount     decimal.Decimal
}

var (
	ErrBillNotFound    = fmt.Errorf("%w: purchase bill", shared.ErrNotFound)
	ErrNoteNotFound    = fmt.Errorf("%w: debit note", shared.ErrNotFound)
	ErrPaymentNotFound = fmt.Errorf("%w: bill payment", shared.ErrNotFound)

	// ErrBillSettled rejects payments against a bill with nothing outstanding.
	ErrBillSettled = fmt.Errorf("%w: bill has no outstanding balance", shared.ErrBusinessRule)
	// ErrPaymentExceedsOutstanding keeps settlements within the open balance.
	ErrPaymentExceedsOutstanding = fmt.Errorf("%w: payment exceeds outstanding balance", shared.ErrBusinessRule)
	// ErrReturnExceedsQuantity caps returns at original minus already returned.
	ErrReturnExceedsQuantity = fmt.Errorf("%w: returned quantity exceeds remaining quantity", shared.ErrBusinessRule)
	// ErrNoteNotOpen rejects transitions on applied or void notes.
	ErrNoteNotOpen = fmt.Errorf("%w: debit note is not open", shared.ErrBusinessRule)
	// ErrLineNotOnBill rejects note lines referencing foreign bill lines.
	ErrLineNotOnBill = fmt.Errorf("%w: returned line does not belong to the bill", shared.ErrValidation)
	// ErrRefundAccountRequired: cash refunds must name the receiving account.
	ErrRefundAccountRequired = fmt.Errorf("%w: cash refund requires a refund account", shared.ErrValidation)
	// ErrPaidFromNotCash mirrors the expense-side funding constraint.
	ErrPaidFromNotCash = fmt.Errorf("%w: paid-from account must be a cash or bank account", shared.ErrValidation)
)

// BillLineInput is one priced row of a new bill.
type BillLineInput struct {
	AccountID   int64
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// Amount is quantity times unit price at cent precision.
func (l BillLineInput) Amount() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice).Round(2)
}

// BillInput carries a new bill. PayImmediately settles the full amount from
// PaidFromAccountID inside the creating transaction.
type BillInput struct {
	VendorID          int64
	BillDate          time.Time
	DueDate           time.Time
	Description       string
	Reference         string
	VATAmount         decimal.Decimal
	Lines             []BillLineInput
	PayImmediately    bool
	PaidFromAccountID int64
}

func (in BillInput) validate() error {
	if in.VendorID == 0 {
		return fmt.Errorf("%w: vendor required", shared.ErrValidation)
	}
	if in.BillDate.IsZero() {
		return fmt.Errorf("%w: bill date required", shared.ErrValidation)
	}
	if len(in.Lines) == 0 {
		return fmt.Errorf("%w: at least one bill line required", shared.ErrValidation)
	}
	for i, l := range in.Lines {
		if l.AccountID == 0 {
			return fmt.Errorf("%w: line %d: account required", shared.ErrValidation, i+1)
		}
		if !l.Quantity.IsPositive() || !l.UnitPrice.IsPositive() {
			return fmt.Errorf("%w: line %d: quantity and unit price must be positive", shared.ErrValidation, i+1)
		}
	}
	if in.VATAmount.IsNegative() {
		return fmt.Errorf("%w: vat amount cannot be negative", shared.ErrValidation)
	}
	if in.PayImmediately && in.PaidFromAccountID == 0 {
		return fmt.Errorf("%w: paid-from account required for immediate payment", shared.ErrValidation)
	}
	return nil
}

// SubTotal sums the line amounts.
func (in BillInput) SubTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range in.Lines {
		sum = sum.Add(l.Amount())
	}
	return sum
}

// Total is the gross bill amount.
func (in BillInput) Total() decimal.Decimal {
	return in.SubTotal().Add(in.VATAmount).Round(2)
}

// PaymentInput settles part of one bill.
type PaymentInput struct {
	PaymentDate       time.Time
	Amount            decimal.Decimal
	PaidFromAccountID int64
	Reference         string
}

func (in PaymentInput) validate() error {
	if in.PaymentDate.IsZero() {
		return fmt.Errorf("%w: payment date required", shared.ErrValidation)
	}
	if !in.Amount.IsPositive() {
		return fmt.Errorf("%w: payment amount must be positive", shared.ErrValidation)
	}
	if in.PaidFromAccountID == 0 {
		return fmt.Errorf("%w: paid-from account required", shared.ErrValidation)
	}
	return nil
}

// ReturnItem names one bill line and the quantity coming back.
type ReturnItem struct {
	BillLineID int64
	Quantity   decimal.Decimal
}

// NoteInput creates a debit note in the open state.
type NoteInput struct {
	NoteDate time.Time
	Reason   string
	Items    []ReturnItem
}

func (in NoteInput) validate() error {
	if in.NoteDate.IsZero() {
		return fmt.Errorf("%w: note date required", shared.ErrValidation)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: at least one returned item required", shared.ErrValidation)
	}
	for i, item := range in.Items {
		if item.BillLineID == 0 {
			return fmt.Errorf("%w: item %d: bill line required", shared.ErrValidation, i+1)
		}
		if !item.Quantity.IsPositive() {
			return fmt.Errorf("%w: item %d: quantity must be positive", shared.ErrValidation, i+1)
		}
	}
	return nil
}

// ApplyInput routes an open note's refund.
type ApplyInput struct {
	RefundMethod    RefundMethod
	RefundAccountID int64
	RefundDate      time.Time
}

func (in ApplyInput) validate() error {
	switch in.RefundMethod {
	case RefundNone, RefundVendorBalance:
	case RefundCash:
		if in.RefundAccountID == 0 {
			return ErrRefundAccountRequired
		}
	default:
		return fmt.Errorf("%w: unknown refund method %q", shared.ErrValidation, in.RefundMethod)
	}
	return nil
}
