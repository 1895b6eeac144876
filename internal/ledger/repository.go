package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const entryColumns = `id, business_id, branch_id, transaction_date, description, reference, debit, credit, account_id, source_document_type, source_document_id, created_at`

// Repository owns ledger_entries persistence. Writes only happen inside a
// transaction; pool-level methods are read-only.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Pool exposes the underlying pool for transaction orchestration.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.db
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.BusinessID, &e.BranchID, &e.TransactionDate, &e.Description, &e.Reference,
		&e.Debit, &e.Credit, &e.AccountID, &e.SourceType, &e.SourceID, &e.CreatedAt)
	return e, err
}

// InsertLineTx appends one immutable ledger row.
func InsertLineTx(ctx context.Context, tx pgx.Tx, in PostingInput, line LineInput) (Entry, error) {
	description := line.Description
	if description == "" {
		description = in.Description
	}
	row := tx.QueryRow(ctx, `INSERT INTO ledger_entries
(business_id, branch_id, transaction_date, description, reference, debit, credit, account_id, source_document_type, source_document_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING `+entryColumns,
		in.BusinessID, in.BranchID, in.Date, description, in.Reference,
		line.Debit.Round(2), line.Credit.Round(2), line.AccountID, in.SourceType, in.SourceID)
	entry, err := scanEntry(row)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: insert line: %w", err)
	}
	return entry, nil
}

// DeleteForSourceTx removes every line owned by a source document, along
// with its cash-book mirror rows. Used by repost and document deletion.
func DeleteForSourceTx(ctx context.Context, tx pgx.Tx, businessID int64, sourceType SourceType, sourceID uuid.UUID) (int64, error) {
	if _, err := tx.Exec(ctx, `DELETE FROM cash_book_entries
WHERE business_id=$1 AND source_document_type=$2 AND source_document_id=$3`, businessID, sourceType, sourceID); err != nil {
		return 0, fmt.Errorf("ledger: delete cash book mirror: %w", err)
	}
	cmd, err := tx.Exec(ctx, `DELETE FROM ledger_entries
WHERE business_id=$1 AND source_document_type=$2 AND source_document_id=$3`, businessID, sourceType, sourceID)
	if err != nil {
		return 0, fmt.Errorf("ledger: delete source lines: %w", err)
	}
	return cmd.RowsAffected(), nil
}

// LinesForSource lists the current lines of a source document.
func (r *Repository) LinesForSource(ctx context.Context, businessID int64, sourceType SourceType, sourceID uuid.UUID) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
WHERE business_id=$1 AND source_document_type=$2 AND source_document_id=$3 ORDER BY id`, businessID, sourceType, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SumForSource returns total debits and credits for a source document.
func (r *Repository) SumForSource(ctx context.Context, businessID int64, sourceType SourceType, sourceID uuid.UUID) (debit, credit decimal.Decimal, err error) {
	err = r.db.QueryRow(ctx, `SELECT COALESCE(SUM(debit),0), COALESCE(SUM(credit),0) FROM ledger_entries
WHERE business_id=$1 AND source_document_type=$2 AND source_document_id=$3`, businessID, sourceType, sourceID).Scan(&debit, &credit)
	return debit, credit, err
}

// LinesForSourceTx mirrors LinesForSource inside an open transaction.
func LinesForSourceTx(ctx context.Context, tx pgx.Tx, businessID int64, sourceType SourceType, sourceID uuid.UUID) ([]Entry, error) {
	rows, err := tx.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
WHERE business_id=$1 AND source_document_type=$2 AND source_document_id=$3 ORDER BY id`, businessID, sourceType, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UnbalancedSource describes a source document whose lines do not balance.
// The integrity job scans for these; a non-empty result is always a bug.
type UnbalancedSource struct {
	BusinessID int64
	SourceType SourceType
	SourceID   uuid.UUID
	Debit      decimal.Decimal
	Credit     decimal.Decimal
}

// FindUnbalancedSources scans the whole ledger for balance violations.
func (r *Repository) FindUnbalancedSources(ctx context.Context, limit int) ([]UnbalancedSource, error) {
	rows, err := r.db.Query(ctx, `SELECT business_id, source_document_type, source_document_id, SUM(debit), SUM(credit)
FROM ledger_entries
GROUP BY business_id, source_document_type, source_document_id
HAVING SUM(debit) <> SUM(credit)
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UnbalancedSource
	for rows.Next() {
		var u UnbalancedSource
		if err := rows.Scan(&u.BusinessID, &u.SourceType, &u.SourceID, &u.Debit, &u.Credit); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SumByTypeForRange aggregates signed per-account sums for the given account
// type over a date window; the year-end close uses it to zero temporary
// accounts.
type AccountSum struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// SumByTypeForRangeTx aggregates debit/credit per account of one type over
// [from, to] inside an open transaction.
func SumByTypeForRangeTx(ctx context.Context, tx pgx.Tx, businessID int64, accountType string, from, to time.Time) ([]AccountSum, error) {
	rows, err := tx.Query(ctx, `SELECT le.account_id, COALESCE(SUM(le.debit),0), COALESCE(SUM(le.credit),0)
FROM ledger_entries le
JOIN accounts a ON a.id = le.account_id
WHERE le.business_id=$1 AND a.type=$2 AND le.transaction_date BETWEEN $3 AND $4
GROUP BY le.account_id
ORDER BY le.account_id`, businessID, accountType, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountSum
	for rows.Next() {
		var s AccountSum
		if err := rows.Scan(&s.AccountID, &s.Debit, &s.Credit); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
