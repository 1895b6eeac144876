// Package fiscal owns fiscal years, their period partitions, and the
// open/closed gate the posting engine consults before accepting lines.
package fiscal

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// PeriodType selects how a year's range is partitioned.
type PeriodType string

const (
	PeriodTypeMonthly   PeriodType = "monthly"
	PeriodTypeQuarterly PeriodType = "quarterly"
)

// Year is a fiscal year. At most one year per business is current; a closed
// year accepts no postings anywhere in its range.
type Year struct {
	ID         int64
	BusinessID int64
	Name       string
	StartDate  time.Time
	EndDate    time.Time
	IsCurrent  bool
	IsClosed   bool
	ClosedAt   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Period is one sub-range of a year, closable independently of the year.
type Period struct {
	ID           int64
	YearID       int64
	Number       int
	Name         string
	StartDate    time.Time
	EndDate      time.Time
	IsAdjustment bool
	IsClosed     bool
	ClosedAt     *time.Time
}

// OpeningBalance is a draft per-account opening entry for a fiscal year.
// Posting materializes it as ledger lines against Opening Balance Equity.
type OpeningBalance struct {
	ID          int64
	DocID       string
	BusinessID  int64
	YearID      int64
	EntryNumber string
	EntryDate   time.Time
	AccountID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
	IsPosted    bool
	CreatedAt   time.Time
}

var (
	// ErrYearNotFound covers missing and cross-tenant years alike.
	ErrYearNotFound = fmt.Errorf("%w: fiscal year", shared.ErrNotFound)
	// ErrPeriodNotFound covers missing periods.
	ErrPeriodNotFound = fmt.Errorf("%w: fiscal period", shared.ErrNotFound)
	// ErrYearAlreadyClosed rejects re-closing a closed year.
	ErrYearAlreadyClosed = fmt.Errorf("%w: fiscal year already closed", shared.ErrBusinessRule)
	// ErrPeriodAlreadyClosed rejects re-closing a closed period.
	ErrPeriodAlreadyClosed = fmt.Errorf("%w: fiscal period already closed", shared.ErrBusinessRule)
	// ErrPeriodsStillOpen blocks year close while regular periods remain open.
	ErrPeriodsStillOpen = fmt.Errorf("%w: all periods must be closed before the year", shared.ErrBusinessRule)
	// ErrYearOverlap rejects a year whose range overlaps an existing one.
	ErrYearOverlap = fmt.Errorf("%w: fiscal year range overlaps an existing year", shared.ErrBusinessRule)
	// ErrNoCurrentYear indicates the business has no current year set.
	ErrNoCurrentYear = fmt.Errorf("%w: current fiscal year", shared.ErrNotFound)
	// ErrBalancePosted rejects edits to an opening balance already posted.
	ErrBalancePosted = fmt.Errorf("%w: opening balance already posted", shared.ErrBusinessRule)
)

// CreateYearInput carries fields for a new fiscal year.
type CreateYearInput struct {
	Name                 string
	StartDate            time.Time
	EndDate              time.Time
	PeriodType           PeriodType
	WithAdjustmentPeriod bool
	SetCurrent           bool
}

// Validate checks range coherence before any write.
func (in CreateYearInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: year name required", shared.ErrValidation)
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return fmt.Errorf("%w: start and end date required", shared.ErrValidation)
	}
	if !in.StartDate.Before(in.EndDate) {
		return fmt.Errorf("%w: start date must precede end date", shared.ErrValidation)
	}
	switch in.PeriodType {
	case PeriodTypeMonthly, PeriodTypeQuarterly:
		return nil
	default:
		return fmt.Errorf("%w: period type must be monthly or quarterly", shared.ErrValidation)
	}
}

// OpeningBalanceInput is one draft opening balance row.
type OpeningBalanceInput struct {
	AccountID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	EntryDate   time.Time
	Description string
}

// Validate ensures exactly one side carries a positive amount.
func (in OpeningBalanceInput) Validate() error {
	if in.AccountID == 0 {
		return fmt.Errorf("%w: account required", shared.ErrValidation)
	}
	if in.Debit.IsNegative() || in.Credit.IsNegative() {
		return fmt.Errorf("%w: negative opening amount", shared.ErrValidation)
	}
	if in.Debit.IsPositive() == in.Credit.IsPositive() {
		return fmt.Errorf("%w: exactly one of debit or credit must be set", shared.ErrValidation)
	}
	if in.EntryDate.IsZero() {
		return fmt.Errorf("%w: entry date required", shared.ErrValidation)
	}
	return nil
}
