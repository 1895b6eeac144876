package fiscal

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/ledger/accounts"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
)

// Store is the persistence seam the service drives. *Repository implements
// it against Postgres; service tests substitute in-memory stubs. The
// account, ledger-sum and sequence helpers ride along so a single stub
// covers everything the year-end close touches inside its transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error

	ListYears(ctx context.Context, businessID int64) ([]Year, error)
	GetYear(ctx context.Context, businessID, yearID int64) (Year, error)
	GetCurrentYear(ctx context.Context, businessID int64) (Year, error)
	ListPeriods(ctx context.Context, businessID, yearID int64) ([]Period, error)

	LockYearCreationTx(ctx context.Context, tx pgx.Tx, businessID int64) error
	YearRangeConflictTx(ctx context.Context, tx pgx.Tx, businessID int64, start, end time.Time) (bool, error)
	InsertYearTx(ctx context.Context, tx pgx.Tx, businessID int64, in CreateYearInput) (Year, error)
	InsertPeriodTx(ctx context.Context, tx pgx.Tx, yearID int64, span PeriodSpan, isAdjustment bool) (Period, error)
	SetCurrentTx(ctx context.Context, tx pgx.Tx, businessID, yearID int64) error
	LockYearTx(ctx context.Context, tx pgx.Tx, businessID, yearID int64) (Year, error)
	LockPeriodTx(ctx context.Context, tx pgx.Tx, businessID, periodID int64) (Period, error)
	MarkPeriodClosedTx(ctx context.Context, tx pgx.Tx, periodID int64, at time.Time) error
	MarkYearClosedTx(ctx context.Context, tx pgx.Tx, yearID int64, at time.Time) error
	CountOpenRegularPeriodsTx(ctx context.Context, tx pgx.Tx, yearID int64) (int64, error)

	SumIncomeStatementTx(ctx context.Context, tx pgx.Tx, businessID int64, accountType string, from, to time.Time) ([]ledger.AccountSum, error)
	EnsureSystemAccountTx(ctx context.Context, tx pgx.Tx, businessID int64, kind accounts.SystemAccountKind) (accounts.Account, error)
	GetAccountTx(ctx context.Context, tx pgx.Tx, businessID, accountID int64) (accounts.Account, error)
	NextNumberTx(ctx context.Context, tx pgx.Tx, businessID int64, docType sequence.DocType) (string, error)

	InsertOpeningTx(ctx context.Context, tx pgx.Tx, businessID, yearID int64, number string, in OpeningBalanceInput) (OpeningBalance, error)
	ListOpeningBalances(ctx context.Context, businessID, yearID int64) ([]OpeningBalance, error)
	LockUnpostedOpeningsTx(ctx context.Context, tx pgx.Tx, businessID, yearID int64) ([]OpeningBalance, error)
	MarkOpeningPostedTx(ctx context.Context, tx pgx.Tx, id int64) error
}

func (r *Repository) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return db.WithTx(ctx, r.db, fn)
}

// SumIncomeStatementTx aggregates per-account activity of one account type
// over the year's range; the close uses it to zero temporary accounts.
func (r *Repository) SumIncomeStatementTx(ctx context.Context, tx pgx.Tx, businessID int64, accountType string, from, to time.Time) ([]ledger.AccountSum, error) {
	return ledger.SumByTypeForRangeTx(ctx, tx, businessID, accountType, from, to)
}

func (r *Repository) EnsureSystemAccountTx(ctx context.Context, tx pgx.Tx, businessID int64, kind accounts.SystemAccountKind) (accounts.Account, error) {
	return accounts.EnsureSystemAccountTx(ctx, tx, businessID, kind)
}

func (r *Repository) GetAccountTx(ctx context.Context, tx pgx.Tx, businessID, accountID int64) (accounts.Account, error) {
	return accounts.GetTx(ctx, tx, businessID, accountID)
}

func (r *Repository) NextNumberTx(ctx context.Context, tx pgx.Tx, businessID int64, docType sequence.DocType) (string, error) {
	return sequence.Next(ctx, tx, businessID, docType)
}
