package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ErrAccountNotFound covers missing accounts and cross-tenant lookups alike.
var ErrAccountNotFound = fmt.Errorf("%w: account", shared.ErrNotFound)

// BalanceQuery narrows a balance computation.
type BalanceQuery struct {
	BranchID *int64
	AsOf     *time.Time
}

const accountColumns = `id, business_id, code, name, type, is_system_account, is_cash_bank, is_active, created_at, updated_at`

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Pool exposes the underlying pool for tx-scoped helpers.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.db
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.BusinessID, &a.Code, &a.Name, &a.Type, &a.IsSystemAccount, &a.IsCashBank, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *Repository) Insert(ctx context.Context, a Account) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO accounts (business_id, code, name, type, is_system_account, is_cash_bank, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING `+accountColumns,
		a.BusinessID, a.Code, a.Name, a.Type, a.IsSystemAccount, a.IsCashBank, a.IsActive)
	return scanAccount(row)
}

func (r *Repository) Get(ctx context.Context, businessID, id int64) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1 AND business_id=$2`, id, businessID)
	return scanAccount(row)
}

func (r *Repository) ListByType(ctx context.Context, businessID int64, accountType AccountType) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE business_id=$1 AND type=$2 ORDER BY code, id`, businessID, accountType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repository) List(ctx context.Context, businessID int64) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE business_id=$1 ORDER BY code, id`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountByCode reports how many accounts of a business share a code.
func (r *Repository) CountByCode(ctx context.Context, businessID int64, code string) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE business_id=$1 AND code=$2`, businessID, code).Scan(&n)
	return n, err
}

// HasLedgerEntries reports whether any ledger line references the account.
func (r *Repository) HasLedgerEntries(ctx context.Context, businessID, accountID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE business_id=$1 AND account_id=$2)`, businessID, accountID).Scan(&exists)
	return exists, err
}

func (r *Repository) Delete(ctx context.Context, businessID, accountID int64) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id=$1 AND business_id=$2`, accountID, businessID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *Repository) Deactivate(ctx context.Context, businessID, accountID int64) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET is_active=FALSE, updated_at=NOW() WHERE id=$1 AND business_id=$2`, accountID, businessID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Sums returns raw debit/credit totals for an account; the service applies
// the sign convention.
func (r *Repository) Sums(ctx context.Context, businessID, accountID int64, q BalanceQuery) (debit, credit decimal.Decimal, err error) {
	sql := `SELECT COALESCE(SUM(debit),0), COALESCE(SUM(credit),0) FROM ledger_entries WHERE business_id=$1 AND account_id=$2`
	args := []any{businessID, accountID}
	if q.BranchID != nil {
		args = append(args, *q.BranchID)
		sql += fmt.Sprintf(" AND branch_id=$%d", len(args))
	}
	if q.AsOf != nil {
		args = append(args, *q.AsOf)
		sql += fmt.Sprintf(" AND transaction_date<=$%d", len(args))
	}
	err = r.db.QueryRow(ctx, sql, args...).Scan(&debit, &credit)
	return debit, credit, err
}

// GetTx fetches an account inside an open transaction.
func GetTx(ctx context.Context, tx pgx.Tx, businessID, id int64) (Account, error) {
	row := tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1 AND business_id=$2`, id, businessID)
	return scanAccount(row)
}

// GetManyTx fetches a set of accounts inside an open transaction, keyed by id.
// Every requested id must resolve within the business or the lookup fails
// with ErrAccountNotFound.
func GetManyTx(ctx context.Context, tx pgx.Tx, businessID int64, ids []int64) (map[int64]Account, error) {
	out := make(map[int64]Account, len(ids))
	rows, err := tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE business_id=$1 AND id = ANY($2)`, businessID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, ErrAccountNotFound
		}
	}
	return out, nil
}

// EnsureSystemAccountTx returns the business's system account of the given
// kind, creating it with its fixed code and name on first use.
func EnsureSystemAccountTx(ctx context.Context, tx pgx.Tx, businessID int64, kind SystemAccountKind) (Account, error) {
	spec, ok := systemAccounts[kind]
	if !ok {
		return Account{}, fmt.Errorf("accounts: unknown system account kind %q", kind)
	}
	row := tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts
WHERE business_id=$1 AND code=$2 AND is_system_account ORDER BY id LIMIT 1`, businessID, spec.Code)
	a, err := scanAccount(row)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return Account{}, err
	}
	row = tx.QueryRow(ctx, `INSERT INTO accounts (business_id, code, name, type, is_system_account, is_cash_bank, is_active)
VALUES ($1,$2,$3,$4,TRUE,FALSE,TRUE) RETURNING `+accountColumns, businessID, spec.Code, spec.Name, spec.Type)
	return scanAccount(row)
}

// SumsTx mirrors Sums inside an open transaction.
func SumsTx(ctx context.Context, tx pgx.Tx, businessID, accountID int64, q BalanceQuery) (debit, credit decimal.Decimal, err error) {
	sql := `SELECT COALESCE(SUM(debit),0), COALESCE(SUM(credit),0) FROM ledger_entries WHERE business_id=$1 AND account_id=$2`
	args := []any{businessID, accountID}
	if q.BranchID != nil {
		args = append(args, *q.BranchID)
		sql += fmt.Sprintf(" AND branch_id=$%d", len(args))
	}
	if q.AsOf != nil {
		args = append(args, *q.AsOf)
		sql += fmt.Sprintf(" AND transaction_date<=$%d", len(args))
	}
	err = tx.QueryRow(ctx, sql, args...).Scan(&debit, &credit)
	return debit, credit, err
}

// EnsureSufficientFundsTx enforces the outflow precondition: the funding
// account's signed balance must cover the amount. The shortfall travels in
// the error for user display.
func EnsureSufficientFundsTx(ctx context.Context, tx pgx.Tx, account Account, amount decimal.Decimal) error {
	debit, credit, err := SumsTx(ctx, tx, account.BusinessID, account.ID, BalanceQuery{})
	if err != nil {
		return err
	}
	balance := SignedBalance(account.Type, debit, credit)
	if balance.LessThan(amount) {
		return shared.NewInsufficientFunds(account.ID, amount.Sub(balance))
	}
	return nil
}
