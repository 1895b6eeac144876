package fiscal

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
)

const yearColumns = `id, business_id, name, start_date, end_date, is_current, is_closed, closed_at, created_at, updated_at`
const periodColumns = `id, fiscal_year_id, period_number, name, start_date, end_date, is_adjustment_period, is_closed, closed_at`

// Repository owns fiscal_years, fiscal_periods and opening_balance_entries.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func scanYear(row pgx.Row) (Year, error) {
	var y Year
	err := row.Scan(&y.ID, &y.BusinessID, &y.Name, &y.StartDate, &y.EndDate, &y.IsCurrent, &y.IsClosed, &y.ClosedAt, &y.CreatedAt, &y.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Year{}, ErrYearNotFound
		}
		return Year{}, err
	}
	return y, nil
}

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.YearID, &p.Number, &p.Name, &p.StartDate, &p.EndDate, &p.IsAdjustment, &p.IsClosed, &p.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

func (r *Repository) ListYears(ctx context.Context, businessID int64) ([]Year, error) {
	rows, err := r.db.Query(ctx, `SELECT `+yearColumns+` FROM fiscal_years WHERE business_id=$1 ORDER BY start_date DESC`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Year
	for rows.Next() {
		y, err := scanYear(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, y)
	}
	return out, rows.Err()
}

func (r *Repository) GetYear(ctx context.Context, businessID, yearID int64) (Year, error) {
	return scanYear(r.db.QueryRow(ctx, `SELECT `+yearColumns+` FROM fiscal_years WHERE id=$1 AND business_id=$2`, yearID, businessID))
}

func (r *Repository) GetCurrentYear(ctx context.Context, businessID int64) (Year, error) {
	y, err := scanYear(r.db.QueryRow(ctx, `SELECT `+yearColumns+` FROM fiscal_years WHERE business_id=$1 AND is_current LIMIT 1`, businessID))
	if errors.Is(err, ErrYearNotFound) {
		return Year{}, ErrNoCurrentYear
	}
	return y, err
}

// LockYearCreationTx serializes year creation per business for the life of
// the transaction, so two concurrent creates cannot both pass the overlap
// check before either inserts.
func (r *Repository) LockYearCreationTx(ctx context.Context, tx pgx.Tx, businessID int64) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, businessID)
	return err
}

// YearRangeConflictTx reports whether an existing year overlaps [start, end].
// Only meaningful under LockYearCreationTx.
func (r *Repository) YearRangeConflictTx(ctx context.Context, tx pgx.Tx, businessID int64, start, end time.Time) (bool, error) {
	var conflict bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM fiscal_years
WHERE business_id=$1 AND start_date <= $3 AND end_date >= $2)`, businessID, start, end).Scan(&conflict)
	return conflict, err
}

func (r *Repository) InsertYearTx(ctx context.Context, tx pgx.Tx, businessID int64, in CreateYearInput) (Year, error) {
	return scanYear(tx.QueryRow(ctx, `INSERT INTO fiscal_years (business_id, name, start_date, end_date, is_current, is_closed)
VALUES ($1,$2,$3,$4,FALSE,FALSE) RETURNING `+yearColumns, businessID, in.Name, in.StartDate, in.EndDate))
}

func (r *Repository) InsertPeriodTx(ctx context.Context, tx pgx.Tx, yearID int64, span PeriodSpan, isAdjustment bool) (Period, error) {
	return scanPeriod(tx.QueryRow(ctx, `INSERT INTO fiscal_periods (fiscal_year_id, period_number, name, start_date, end_date, is_adjustment_period, is_closed)
VALUES ($1,$2,$3,$4,$5,$6,FALSE) RETURNING `+periodColumns, yearID, span.Number, span.Name, span.StartDate, span.EndDate, isAdjustment))
}

func (r *Repository) ListPeriods(ctx context.Context, businessID, yearID int64) ([]Period, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+` FROM fiscal_periods p
WHERE p.fiscal_year_id=$1 AND EXISTS (SELECT 1 FROM fiscal_years y WHERE y.id=p.fiscal_year_id AND y.business_id=$2)
ORDER BY p.period_number`, yearID, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetCurrentTx clears the current flag across the business and sets it on
// one year, keeping the at-most-one invariant inside a single statement pair.
func (r *Repository) SetCurrentTx(ctx context.Context, tx pgx.Tx, businessID, yearID int64) error {
	if _, err := tx.Exec(ctx, `UPDATE fiscal_years SET is_current=FALSE, updated_at=NOW() WHERE business_id=$1 AND is_current`, businessID); err != nil {
		return err
	}
	cmd, err := tx.Exec(ctx, `UPDATE fiscal_years SET is_current=TRUE, updated_at=NOW() WHERE id=$1 AND business_id=$2`, yearID, businessID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrYearNotFound
	}
	return nil
}

// LockYearTx loads a year FOR UPDATE so close operations serialize.
func (r *Repository) LockYearTx(ctx context.Context, tx pgx.Tx, businessID, yearID int64) (Year, error) {
	return scanYear(tx.QueryRow(ctx, `SELECT `+yearColumns+` FROM fiscal_years WHERE id=$1 AND business_id=$2 FOR UPDATE`, yearID, businessID))
}

// LockPeriodTx loads a period FOR UPDATE, tenant-scoped through its year.
func (r *Repository) LockPeriodTx(ctx context.Context, tx pgx.Tx, businessID, periodID int64) (Period, error) {
	return scanPeriod(tx.QueryRow(ctx, `SELECT p.id, p.fiscal_year_id, p.period_number, p.name, p.start_date, p.end_date, p.is_adjustment_period, p.is_closed, p.closed_at
FROM fiscal_periods p
JOIN fiscal_years y ON y.id = p.fiscal_year_id
WHERE p.id=$1 AND y.business_id=$2
FOR UPDATE OF p`, periodID, businessID))
}

func (r *Repository) MarkPeriodClosedTx(ctx context.Context, tx pgx.Tx, periodID int64, at time.Time) error {
	_, err := tx.Exec(ctx, `UPDATE fiscal_periods SET is_closed=TRUE, closed_at=$2 WHERE id=$1`, periodID, at)
	return err
}

func (r *Repository) MarkYearClosedTx(ctx context.Context, tx pgx.Tx, yearID int64, at time.Time) error {
	_, err := tx.Exec(ctx, `UPDATE fiscal_years SET is_closed=TRUE, closed_at=$2, updated_at=NOW() WHERE id=$1`, yearID, at)
	return err
}

func (r *Repository) CountOpenRegularPeriodsTx(ctx context.Context, tx pgx.Tx, yearID int64) (int64, error) {
	var n int64
	err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM fiscal_periods WHERE fiscal_year_id=$1 AND NOT is_adjustment_period AND NOT is_closed`, yearID).Scan(&n)
	return n, err
}

// EnsureOpenForPosting implements ledger.PeriodGuard. The period row lock
// makes check-then-post atomic with respect to a concurrent close: a close
// committed first fails the post, a close started later waits for it.
func (r *Repository) EnsureOpenForPosting(ctx context.Context, tx pgx.Tx, businessID int64, date time.Time) error {
	var periodClosed, yearClosed bool
	err := tx.QueryRow(ctx, `SELECT p.is_closed, y.is_closed
FROM fiscal_periods p
JOIN fiscal_years y ON y.id = p.fiscal_year_id
WHERE y.business_id=$1 AND NOT p.is_adjustment_period AND $2 BETWEEN p.start_date AND p.end_date
ORDER BY p.start_date LIMIT 1
FOR UPDATE OF p`, businessID, date).Scan(&periodClosed, &yearClosed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.ErrNoOpenPeriod
		}
		return err
	}
	if periodClosed || yearClosed {
		return ledger.ErrPeriodClosed
	}
	return nil
}

// EnsureYearOpenForAdjustment gates year-close postings: the covering
// period may already be closed, the year itself must not be.
func (r *Repository) EnsureYearOpenForAdjustment(ctx context.Context, tx pgx.Tx, businessID int64, date time.Time) error {
	var yearClosed bool
	err := tx.QueryRow(ctx, `SELECT is_closed FROM fiscal_years
WHERE business_id=$1 AND $2 BETWEEN start_date AND end_date
ORDER BY start_date LIMIT 1
FOR UPDATE`, businessID, date).Scan(&yearClosed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.ErrNoOpenPeriod
		}
		return err
	}
	if yearClosed {
		return ledger.ErrPeriodClosed
	}
	return nil
}
