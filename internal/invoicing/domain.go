// Package invoicing covers sales invoices, their receipts and credit notes
// (sales returns). The ledger shapes are the exact mirror of purchasing:
// revenue is credited at invoice time and debited back when a note applies.
package invoicing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// InvoiceStatus tracks collection, not posting.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid  InvoiceStatus = "unpaid"
	InvoiceStatusPartial InvoiceStatus = "partial"
	InvoiceStatusPaid    InvoiceStatus = "paid"
)

// NoteStatus is the credit-note state machine. Only open notes transition.
type NoteStatus string

const (
	NoteStatusOpen    NoteStatus = "open"
	NoteStatusApplied NoteStatus = "applied"
	NoteStatusVoid    NoteStatus = "void"
)

// RefundMethod routes the already-collected portion of an applied note.
type RefundMethod string

const (
	RefundNone            RefundMethod = "none"
	RefundCustomerBalance RefundMethod = "customer_balance"
	RefundCash            RefundMethod = "cash_refund"
)

// Invoice is a customer sale on credit or for immediate collection.
type Invoice struct {
	ID             uuid.UUID
	BusinessID     int64
	BranchID       int64
	Number         string
	CustomerID     int64
	InvoiceDate    time.Time
	DueDate        time.Time
	Description    string
	Reference      string
	SubTotal       decimal.Decimal
	VATAmount      decimal.Decimal
	Amount         decimal.Decimal
	ReceivedAmount decimal.Decimal
	ReturnedAmount decimal.Decimal
	Status         InvoiceStatus
	CreatedBy      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Lines []InvoiceLine
}

// Outstanding is what the customer still owes, floored at zero.
func (inv Invoice) Outstanding() decimal.Decimal {
	out := inv.Amount.Sub(inv.ReceivedAmount).Sub(inv.ReturnedAmount)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// InvoiceLine is one priced row; RevenueAccountID receives the credit.
type InvoiceLine struct {
	ID               int64
	InvoiceID        uuid.UUID
	RevenueAccountID int64
	Description      string
	Quantity         decimal.Decimal
	UnitPrice        decimal.Decimal
	Amount           decimal.Decimal
	ReturnedQuantity decimal.Decimal
}

// Receipt collects part of an invoice into a cash/bank account.
type Receipt struct {
	ID                    uuid.UUID
	BusinessID            int64
	BranchID              int64
	InvoiceID             uuid.UUID
	ReceiptDate           time.Time
	Amount                decimal.Decimal
	ReceivedIntoAccountID int64
	Reference             string
	CreatedBy             int64
	CreatedAt             time.Time
}

// CreditNote is a sales return against one invoice.
type CreditNote struct {
	ID              uuid.UUID
	BusinessID      int64
	BranchID        int64
	InvoiceID       uuid.UUID
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

// NoteLine references one invoice line and the quantity coming back.
type NoteLine struct {
	ID            int64
	NoteID        uuid.UUID
	InvoiceLineID int64
	AccountID     int64
	Quantity      decimal.Decimal
	UnitPrice     decimal.Decimal
	Amount        decimal.Decimal
}

var (
	ErrInvoiceNotFound = fmt.Errorf("%w: sales invoice", shared.ErrNotFound)
	ErrNoteNotFound    = fmt.Errorf("%w: credit note", shared.ErrNotFound)
	ErrReceiptNotFound = fmt.Errorf("%w: invoice receipt", shared.ErrNotFound)

	// ErrInvoiceSettled rejects receipts when nothing is outstanding.
	ErrInvoiceSettled = fmt.Errorf("%w: invoice has no outstanding balance", shared.ErrBusinessRule)
	// ErrReceiptExceedsOutstanding keeps collections within the open balance.
	ErrReceiptExceedsOutstanding = fmt.Errorf("%w: receipt exceeds outstanding balance", shared.ErrBusinessRule)
	// ErrReturnExceedsQuantity caps returns at original minus already returned.
	ErrReturnExceedsQuantity = fmt.Errorf("%w: returned quantity exceeds remaining quantity", shared.ErrBusinessRule)
	// ErrNoteNotOpen rejects transitions on applied or void notes.
	ErrNoteNotOpen = fmt.Errorf("%w: credit note is not open", shared.ErrBusinessRule)
	// ErrLineNotOnInvoice rejects note lines referencing foreign invoice lines.
	ErrLineNotOnInvoice = fmt.Errorf("%w: returned line does not belong to the invoice", shared.ErrValidation)
	// ErrRefundAccountRequired: cash refunds must name the paying account.
	ErrRefundAccountRequired = fmt.Errorf("%w: cash refund requires a refund account", shared.ErrValidation)
	// ErrReceivedIntoNotCash constrains collections to cash/bank accounts.
	ErrReceivedIntoNotCash = fmt.Errorf("%w: received-into account must be a cash or bank account", shared.ErrValidation)
)

// InvoiceLineInput is one priced row of a new invoice.
type InvoiceLineInput struct {
	RevenueAccountID int64
	Description      string
	Quantity         decimal.Decimal
	UnitPrice        decimal.Decimal
}

// Amount is quantity times unit price at cent precision.
func (l InvoiceLineInput) Amount() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice).Round(2)
}

// InvoiceInput carries a new invoice. CollectImmediately books the gross
// amount straight into ReceivedIntoAccountID.
type InvoiceInput struct {
	CustomerID            int64
	InvoiceDate           time.Time
	DueDate               time.Time
	Description           string
	Reference             string
	VATAmount             decimal.Decimal
	Lines                 []InvoiceLineInput
	CollectImmediately    bool
	ReceivedIntoAccountID int64
}

func (in InvoiceInput) validate() error {
	if in.CustomerID == 0 {
		return fmt.Errorf("%w: customer required", shared.ErrValidation)
	}
	if in.InvoiceDate.IsZero() {
		return fmt.Errorf("%w: invoice date required", shared.ErrValidation)
	}
	if len(in.Lines) == 0 {
		return fmt.Errorf("%w: at least one invoice line required", shared.ErrValidation)
	}
	for i, l := range in.Lines {
		if l.RevenueAccountID == 0 {
			return fmt.Errorf("%w: line %d: revenue account required", shared.ErrValidation, i+1)
		}
		if !l.Quantity.IsPositive() || !l.UnitPrice.IsPositive() {
			return fmt.Errorf("%w: line %d: quantity and unit price must be positive", shared.ErrValidation, i+1)
		}
	}
	if in.VATAmount.IsNegative() {
		return fmt.Errorf("%w: vat amount cannot be negative", shared.ErrValidation)
	}
	if in.CollectImmediately && in.ReceivedIntoAccountID == 0 {
		return fmt.Errorf("%w: received-into account required for immediate collection", shared.ErrValidation)
	}
	return nil
}

// SubTotal sums the line amounts.
func (in InvoiceInput) SubTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range in.Lines {
		sum = sum.Add(l.Amount())
	}
	return sum
}

// Total is the gross invoice amount.
func (in InvoiceInput) Total() decimal.Decimal {
	return in.SubTotal().Add(in.VATAmount).Round(2)
}

// ReceiptInput collects part of one invoice.
type ReceiptInput struct {
	ReceiptDate           time.Time
	Amount                decimal.Decimal
	ReceivedIntoAccountID int64
	Reference             string
}

func (in ReceiptInput) validate() error {
	if in.ReceiptDate.IsZero() {
		return fmt.Errorf("%w: receipt date required", shared.ErrValidation)
	}
	if !in.Amount.IsPositive() {
		return fmt.Errorf("%w: receipt amount must be positive", shared.ErrValidation)
	}
	if in.ReceivedIntoAccountID == 0 {
		return fmt.Errorf("%w: received-into account required", shared.ErrValidation)
	}
	return nil
}

// ReturnItem names one invoice line and the quantity coming back.
type ReturnItem struct {
	InvoiceLineID int64
	Quantity      decimal.Decimal
}

// NoteInput creates a credit note in the open state.
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
		if item.InvoiceLineID == 0 {
			return fmt.Errorf("%w: item %d: invoice line required", shared.ErrValidation, i+1)
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
	case RefundNone, RefundCustomerBalance:
	case RefundCash:
		if in.RefundAccountID == 0 {
			return ErrRefundAccountRequired
		}
	default:
		return fmt.Errorf("%w: unknown refund method %q", shared.ErrValidation, in.RefundMethod)
	}
	return nil
}
