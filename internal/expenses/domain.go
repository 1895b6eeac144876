// Package expenses implements the posting adapters for expenses and other
// income: the two simplest document families, one outflow and one inflow.
package expenses

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Expense is an outflow document. Amount always equals SubTotal+VATAmount
// and mirrors the document's ledger debit total.
type Expense struct {
	ID                uuid.UUID
	BusinessID        int64
	BranchID          int64
	Number            string
	ExpenseDate       time.Time
	Description       string
	Reference         string
	ExpenseAccountID  int64
	PaidFromAccountID int64
	SubTotal          decimal.Decimal
	VATAmount         decimal.Decimal
	Amount            decimal.Decimal
	CreatedBy         int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OtherIncome is an inflow document outside the sales pipeline.
type OtherIncome struct {
	ID                    uuid.UUID
	BusinessID            int64
	BranchID              int64
	Number                string
	IncomeDate            time.Time
	Description           string
	Reference             string
	IncomeAccountID       int64
	ReceivedIntoAccountID int64
	SubTotal              decimal.Decimal
	VATAmount             decimal.Decimal
	Amount                decimal.Decimal
	CreatedBy             int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ErrExpenseNotFound covers missing and cross-tenant expenses.
var ErrExpenseNotFound = fmt.Errorf("%w: expense", shared.ErrNotFound)

// ErrIncomeNotFound covers missing and cross-tenant other-income documents.
var ErrIncomeNotFound = fmt.Errorf("%w: other income", shared.ErrNotFound)

// ErrFundingAccountNotCash requires outflow funding from a cash/bank account.
var ErrFundingAccountNotCash = fmt.Errorf("%w: paid-from account must be a cash or bank account", shared.ErrValidation)

// ErrReceivingAccountNotCash requires inflows to land on a cash/bank account.
var ErrReceivingAccountNotCash = fmt.Errorf("%w: received-into account must be a cash or bank account", shared.ErrValidation)

// ExpenseInput carries validated expense fields.
type ExpenseInput struct {
	ExpenseDate       time.Time
	Description       string
	Reference         string
	ExpenseAccountID  int64
	PaidFromAccountID int64
	SubTotal          decimal.Decimal
	VATAmount         decimal.Decimal
}

func (in ExpenseInput) validate() error {
	if in.ExpenseDate.IsZero() {
		return fmt.Errorf("%w: expense date required", shared.ErrValidation)
	}
	if in.ExpenseAccountID == 0 || in.PaidFromAccountID == 0 {
		return fmt.Errorf("%w: expense and paid-from accounts required", shared.ErrValidation)
	}
	if in.ExpenseAccountID == in.PaidFromAccountID {
		return fmt.Errorf("%w: expense and paid-from accounts must differ", shared.ErrValidation)
	}
	if !in.SubTotal.IsPositive() {
		return fmt.Errorf("%w: sub total must be positive", shared.ErrValidation)
	}
	if in.VATAmount.IsNegative() {
		return fmt.Errorf("%w: vat amount cannot be negative", shared.ErrValidation)
	}
	return nil
}

// Total is the document amount: sub total plus VAT.
func (in ExpenseInput) Total() decimal.Decimal {
	return in.SubTotal.Add(in.VATAmount).Round(2)
}

// IncomeInput carries validated other-income fields.
type IncomeInput struct {
	IncomeDate            time.Time
	Description           string
	Reference             string
	IncomeAccountID       int64
	ReceivedIntoAccountID int64
	SubTotal              decimal.Decimal
	VATAmount             decimal.Decimal
}

func (in IncomeInput) validate() error {
	if in.IncomeDate.IsZero() {
		return fmt.Errorf("%w: income date required", shared.ErrValidation)
	}
	if in.IncomeAccountID == 0 || in.ReceivedIntoAccountID == 0 {
		return fmt.Errorf("%w: income and received-into accounts required", shared.ErrValidation)
	}
	if in.IncomeAccountID == in.ReceivedIntoAccountID {
		return fmt.Errorf("%w: income and received-into accounts must differ", shared.ErrValidation)
	}
	if !in.SubTotal.IsPositive() {
		return fmt.Errorf("%w: sub total must be positive", shared.ErrValidation)
	}
	if in.VATAmount.IsNegative() {
		return fmt.Errorf("%w: vat amount cannot be negative", shared.ErrValidation)
	}
	return nil
}

// Total is the document amount: sub total plus VAT.
func (in IncomeInput) Total() decimal.Decimal {
	return in.SubTotal.Add(in.VATAmount).Round(2)
}
