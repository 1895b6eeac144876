package fiscal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/ledger/accounts"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Service orchestrates fiscal year and period lifecycle. It implements the
// gate the posting engine consults (via Repository) and drives the year-end
// closing procedure through the engine.
type Service struct {
	store  Store
	engine *ledger.Engine
	audit  shared.AuditSink
	now    func() time.Time
}

func NewService(store Store, engine *ledger.Engine, audit shared.AuditSink) *Service {
	return &Service{store: store, engine: engine, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) ListYears(ctx context.Context, authz shared.AuthorizationContext) ([]Year, error) {
	return s.store.ListYears(ctx, authz.BusinessID)
}

func (s *Service) GetYear(ctx context.Context, authz shared.AuthorizationContext, yearID int64) (Year, error) {
	return s.store.GetYear(ctx, authz.BusinessID, yearID)
}

func (s *Service) GetCurrentYear(ctx context.Context, authz shared.AuthorizationContext) (Year, error) {
	return s.store.GetCurrentYear(ctx, authz.BusinessID)
}

func (s *Service) ListPeriods(ctx context.Context, authz shared.AuthorizationContext, yearID int64) ([]Period, error) {
	return s.store.ListPeriods(ctx, authz.BusinessID, yearID)
}

// CreateYear inserts a year and auto-generates its period partition.
func (s *Service) CreateYear(ctx context.Context, authz shared.AuthorizationContext, in CreateYearInput) (Year, []Period, error) {
	if err := authz.Validate(); err != nil {
		return Year{}, nil, fmt.Errorf("%w: %s", shared.ErrValidation, err)
	}
	if err := in.Validate(); err != nil {
		return Year{}, nil, err
	}
	var year Year
	var periods []Period
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		// The overlap check only holds if no other create can slip a
		// conflicting year in between check and insert, so both run under
		// the per-business creation lock.
		if err := s.store.LockYearCreationTx(ctx, tx, authz.BusinessID); err != nil {
			return err
		}
		conflict, err := s.store.YearRangeConflictTx(ctx, tx, authz.BusinessID, in.StartDate, in.EndDate)
		if err != nil {
			return err
		}
		if conflict {
			return ErrYearOverlap
		}
		year, err = s.store.InsertYearTx(ctx, tx, authz.BusinessID, in)
		if err != nil {
			return err
		}
		spans := GeneratePeriods(in.StartDate, in.EndDate, in.PeriodType)
		for _, span := range spans {
			period, err := s.store.InsertPeriodTx(ctx, tx, year.ID, span, false)
			if err != nil {
				return err
			}
			periods = append(periods, period)
		}
		if in.WithAdjustmentPeriod {
			span := PeriodSpan{
				Number:    len(spans) + 1,
				Name:      fmt.Sprintf("Adjustments %s", in.EndDate.Format("2006")),
				StartDate: in.EndDate,
				EndDate:   in.EndDate,
			}
			period, err := s.store.InsertPeriodTx(ctx, tx, year.ID, span, true)
			if err != nil {
				return err
			}
			periods = append(periods, period)
		}
		if in.SetCurrent {
			if err := s.store.SetCurrentTx(ctx, tx, authz.BusinessID, year.ID); err != nil {
				return err
			}
			year.IsCurrent = true
		}
		return nil
	})
	if err != nil {
		return Year{}, nil, err
	}
	s.recordAudit(ctx, authz, "fiscal.year.create", "fiscal_year", fmt.Sprint(year.ID), nil, map[string]any{
		"name": year.Name, "start": year.StartDate.Format(time.DateOnly), "end": year.EndDate.Format(time.DateOnly),
	})
	return year, periods, nil
}

// SetCurrent marks one year current and clears the flag from every other
// year of the business.
func (s *Service) SetCurrent(ctx context.Context, authz shared.AuthorizationContext, yearID int64) (Year, error) {
	var year Year
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		year, err = s.store.LockYearTx(ctx, tx, authz.BusinessID, yearID)
		if err != nil {
			return err
		}
		return s.store.SetCurrentTx(ctx, tx, authz.BusinessID, yearID)
	})
	if err != nil {
		return Year{}, err
	}
	year.IsCurrent = true
	s.recordAudit(ctx, authz, "fiscal.year.set_current", "fiscal_year", fmt.Sprint(yearID), nil, nil)
	return year, nil
}

// ClosePeriod closes one period. Once closed, postings dated inside it fail
// regardless of the year-level flag.
func (s *Service) ClosePeriod(ctx context.Context, authz shared.AuthorizationContext, periodID int64) (Period, error) {
	var period Period
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		period, err = s.store.LockPeriodTx(ctx, tx, authz.BusinessID, periodID)
		if err != nil {
			return err
		}
		if period.IsClosed {
			return ErrPeriodAlreadyClosed
		}
		at := s.now()
		if err := s.store.MarkPeriodClosedTx(ctx, tx, period.ID, at); err != nil {
			return err
		}
		period.IsClosed = true
		period.ClosedAt = &at
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	s.recordAudit(ctx, authz, "fiscal.period.close", "fiscal_period", fmt.Sprint(periodID), nil, nil)
	return period, nil
}

// CloseYearResult reports what the closing procedure did.
type CloseYearResult struct {
	Year      Year
	NetIncome decimal.Decimal
	Posted    bool
}

// CloseYear locks the year, verifies every regular period is closed,
// optionally posts the income-summary batch zeroing Revenue and Expense
// accounts against Retained Earnings, and marks the year closed. The whole
// procedure is one atomic unit.
func (s *Service) CloseYear(ctx context.Context, authz shared.AuthorizationContext, yearID int64, closeIncomeSummary bool) (CloseYearResult, error) {
	if err := authz.Validate(); err != nil {
		return CloseYearResult{}, fmt.Errorf("%w: %s", shared.ErrValidation, err)
	}
	var result CloseYearResult
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		year, err := s.store.LockYearTx(ctx, tx, authz.BusinessID, yearID)
		if err != nil {
			return err
		}
		if year.IsClosed {
			return ErrYearAlreadyClosed
		}
		open, err := s.store.CountOpenRegularPeriodsTx(ctx, tx, year.ID)
		if err != nil {
			return err
		}
		if open > 0 {
			return ErrPeriodsStillOpen
		}

		netIncome := decimal.Zero
		if closeIncomeSummary {
			netIncome, result.Posted, err = s.postIncomeSummaryTx(ctx, tx, authz, year)
			if err != nil {
				return err
			}
		}

		at := s.now()
		if err := s.store.MarkYearClosedTx(ctx, tx, year.ID, at); err != nil {
			return err
		}
		year.IsClosed = true
		year.ClosedAt = &at
		result.Year = year
		result.NetIncome = netIncome
		return nil
	})
	if err != nil {
		return CloseYearResult{}, err
	}
	s.recordAudit(ctx, authz, "fiscal.year.close", "fiscal_year", fmt.Sprint(yearID), nil, map[string]any{
		"net_income":           result.NetIncome.StringFixed(2),
		"close_income_summary": closeIncomeSummary,
	})
	return result, nil
}

// postIncomeSummaryTx zeroes every Revenue and Expense account over the
// year's range against Retained Earnings. Returns the net income and
// whether a batch was actually posted (no temporary activity means none).
func (s *Service) postIncomeSummaryTx(ctx context.Context, tx pgx.Tx, authz shared.AuthorizationContext, year Year) (decimal.Decimal, bool, error) {
	revenueSums, err := s.store.SumIncomeStatementTx(ctx, tx, year.BusinessID, string(accounts.AccountTypeRevenue), year.StartDate, year.EndDate)
	if err != nil {
		return decimal.Zero, false, err
	}
	expenseSums, err := s.store.SumIncomeStatementTx(ctx, tx, year.BusinessID, string(accounts.AccountTypeExpense), year.StartDate, year.EndDate)
	if err != nil {
		return decimal.Zero, false, err
	}

	var lines []ledger.LineInput
	revenueTotal := decimal.Zero
	for _, sum := range revenueSums {
		net := sum.Credit.Sub(sum.Debit)
		revenueTotal = revenueTotal.Add(net)
		switch {
		case net.IsPositive():
			lines = append(lines, ledger.LineInput{AccountID: sum.AccountID, Debit: net})
		case net.IsNegative():
			lines = append(lines, ledger.LineInput{AccountID: sum.AccountID, Credit: net.Neg()})
		}
	}
	expenseTotal := decimal.Zero
	for _, sum := range expenseSums {
		net := sum.Debit.Sub(sum.Credit)
		expenseTotal = expenseTotal.Add(net)
		switch {
		case net.IsPositive():
			lines = append(lines, ledger.LineInput{AccountID: sum.AccountID, Credit: net})
		case net.IsNegative():
			lines = append(lines, ledger.LineInput{AccountID: sum.AccountID, Debit: net.Neg()})
		}
	}
	netIncome := revenueTotal.Sub(expenseTotal)
	if len(lines) == 0 {
		return netIncome, false, nil
	}

	retained, err := s.store.EnsureSystemAccountTx(ctx, tx, year.BusinessID, accounts.SystemRetainedEarnings)
	if err != nil {
		return decimal.Zero, false, err
	}
	switch {
	case netIncome.IsPositive():
		lines = append(lines, ledger.LineInput{AccountID: retained.ID, Credit: netIncome})
	case netIncome.IsNegative():
		lines = append(lines, ledger.LineInput{AccountID: retained.ID, Debit: netIncome.Neg()})
	}

	_, err = s.engine.PostInTx(ctx, tx, ledger.PostingInput{
		BusinessID:  year.BusinessID,
		BranchID:    authz.SelectedBranchID,
		Date:        year.EndDate,
		Description: fmt.Sprintf("Year-end close %s", year.Name),
		Reference:   year.Name,
		SourceType:  ledger.SourceYearClose,
		SourceID:    uuid.New(),
		Lines:       lines,
		Adjustment:  true,
	})
	if err != nil {
		return decimal.Zero, false, err
	}
	return netIncome, true, nil
}

func (s *Service) recordAudit(ctx context.Context, authz shared.AuthorizationContext, action, entity, entityID string, before, after map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		BusinessID: authz.BusinessID,
		ActorID:    authz.ActorID,
		Action:     action,
		Entity:     entity,
		EntityID:   entityID,
		Before:     before,
		After:      after,
		At:         s.now(),
	})
}
