// Package ledger implements the double-entry posting engine. Every business
// event posts a balanced batch of debit/credit lines tagged with its source
// document; the engine is the last line of defense for the balance invariant
// and never trusts its callers.
package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// SourceType identifies the document family that owns a batch of lines.
type SourceType string

const (
	SourceExpense        SourceType = "expense"
	SourceOtherIncome    SourceType = "other_income"
	SourcePurchaseBill   SourceType = "purchase_bill"
	SourceBillPayment    SourceType = "bill_payment"
	SourceSalesInvoice   SourceType = "sales_invoice"
	SourceInvoiceReceipt SourceType = "invoice_receipt"
	SourceCreditNote     SourceType = "credit_note"
	SourceDebitNote      SourceType = "debit_note"
	SourceDepreciation   SourceType = "depreciation"
	SourceAssetDisposal  SourceType = "asset_disposal"
	SourceFundTransfer   SourceType = "fund_transfer"
	SourceBankAdjustment SourceType = "bank_adjustment"
	SourceOpeningBalance SourceType = "opening_balance"
	SourceYearClose      SourceType = "year_close"
)

var (
	// ErrUnbalanced indicates total debits != total credits over a batch.
	ErrUnbalanced = fmt.Errorf("%w: ledger batch must balance", shared.ErrBusinessRule)
	// ErrTooFewLines indicates a batch with fewer than two lines.
	ErrTooFewLines = fmt.Errorf("%w: ledger batch requires at least two lines", shared.ErrValidation)
	// ErrPeriodClosed indicates the transaction date falls in a closed period or year.
	ErrPeriodClosed = fmt.Errorf("%w: fiscal period is closed", shared.ErrBusinessRule)
	// ErrNoOpenPeriod indicates no fiscal period covers the transaction date.
	ErrNoOpenPeriod = fmt.Errorf("%w: no fiscal period covers the transaction date", shared.ErrBusinessRule)
	// ErrInactiveAccount rejects postings against deactivated accounts.
	ErrInactiveAccount = fmt.Errorf("%w: account is not active", shared.ErrBusinessRule)
)

// Entry is one immutable debit-or-credit row. Amounts are never mutated in
// place; document updates delete and recreate the full set for the source.
type Entry struct {
	ID              int64
	BusinessID      int64
	BranchID        int64
	TransactionDate time.Time
	Description     string
	Reference       string
	Debit           decimal.Decimal
	Credit          decimal.Decimal
	AccountID       int64
	SourceType      SourceType
	SourceID        uuid.UUID
	CreatedAt       time.Time
}

// LineInput describes one line of a posting request.
type LineInput struct {
	AccountID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
}

// PostingInput groups the fields required to post one balanced batch.
type PostingInput struct {
	BusinessID  int64
	BranchID    int64
	Date        time.Time
	Description string
	Reference   string
	SourceType  SourceType
	SourceID    uuid.UUID
	Lines       []LineInput
	// Adjustment relaxes the period gate to a year gate. Only the year-end
	// closing batch posts this way: its covering period is already closed,
	// the year is not yet.
	Adjustment bool
}

// Validate enforces line shape and the balance invariant.
func (in PostingInput) Validate() error {
	if in.BusinessID == 0 {
		return fmt.Errorf("%w: business id required", shared.ErrValidation)
	}
	if in.BranchID == 0 {
		return fmt.Errorf("%w: branch id required", shared.ErrValidation)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("%w: transaction date required", shared.ErrValidation)
	}
	if in.SourceType == "" {
		return fmt.Errorf("%w: source type required", shared.ErrValidation)
	}
	if in.SourceID == uuid.Nil {
		return fmt.Errorf("%w: source id required", shared.ErrValidation)
	}
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	debit := decimal.Zero
	credit := decimal.Zero
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("%w: line %d missing account", shared.ErrValidation, idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d negative amount", shared.ErrValidation, idx)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return fmt.Errorf("%w: line %d cannot carry both debit and credit", shared.ErrValidation, idx)
		}
		if line.Debit.IsZero() && line.Credit.IsZero() {
			return fmt.Errorf("%w: line %d carries no amount", shared.ErrValidation, idx)
		}
		// Sum what persistence will actually write: each line lands in the
		// ledger rounded to cents, so balance must hold over the rounded
		// amounts, not the raw ones. Summing first and rounding once would
		// let sub-cent residue on either side slip through.
		debit = debit.Add(line.Debit.Round(2))
		credit = credit.Add(line.Credit.Round(2))
	}
	if !debit.Equal(credit) {
		return ErrUnbalanced
	}
	return nil
}

// Reverse flips every line's debit and credit, producing the exact
// mirror-image batch for returns and reversals.
func Reverse(lines []LineInput) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID:   line.AccountID,
			Debit:       line.Credit,
			Credit:      line.Debit,
			Description: line.Description,
		})
	}
	return out
}
