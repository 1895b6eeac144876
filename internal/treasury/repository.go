package treasury

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const transferColumns = `id, business_id, branch_id, number, transfer_date, from_account_id, to_account_id, amount, description, reference, created_by, created_at`
const adjustmentColumns = `id, business_id, branch_id, number, adjustment_date, bank_account_id, adjustment_type, direction, amount, description, reference, created_by, created_at`

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Pool() *pgxpool.Pool {
	return r.db
}

func scanTransfer(row pgx.Row) (FundTransfer, error) {
	var t FundTransfer
	err := row.Scan(&t.ID, &t.BusinessID, &t.BranchID, &t.Number, &t.TransferDate,
		&t.FromAccountID, &t.ToAccountID, &t.Amount, &t.Description, &t.Reference, &t.CreatedBy, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FundTransfer{}, ErrTransferNotFound
		}
		return FundTransfer{}, err
	}
	return t, nil
}

func scanAdjustment(row pgx.Row) (BankAdjustment, error) {
	var a BankAdjustment
	err := row.Scan(&a.ID, &a.BusinessID, &a.BranchID, &a.Number, &a.AdjustmentDate,
		&a.BankAccountID, &a.Type, &a.Direction, &a.Amount, &a.Description, &a.Reference, &a.CreatedBy, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankAdjustment{}, ErrAdjustmentNotFound
		}
		return BankAdjustment{}, err
	}
	return a, nil
}

func insertTransferTx(ctx context.Context, tx pgx.Tx, t FundTransfer) (FundTransfer, error) {
	return scanTransfer(tx.QueryRow(ctx, `INSERT INTO fund_transfers
(id, business_id, branch_id, number, transfer_date, from_account_id, to_account_id, amount, description, reference, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING `+transferColumns,
		t.ID, t.BusinessID, t.BranchID, t.Number, t.TransferDate,
		t.FromAccountID, t.ToAccountID, t.Amount, t.Description, t.Reference, t.CreatedBy))
}

func insertAdjustmentTx(ctx context.Context, tx pgx.Tx, a BankAdjustment) (BankAdjustment, error) {
	return scanAdjustment(tx.QueryRow(ctx, `INSERT INTO bank_adjustments
(id, business_id, branch_id, number, adjustment_date, bank_account_id, adjustment_type, direction, amount, description, reference, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING `+adjustmentColumns,
		a.ID, a.BusinessID, a.BranchID, a.Number, a.AdjustmentDate,
		a.BankAccountID, a.Type, a.Direction, a.Amount, a.Description, a.Reference, a.CreatedBy))
}

func (r *Repository) GetTransfer(ctx context.Context, businessID int64, id uuid.UUID) (FundTransfer, error) {
	return scanTransfer(r.db.QueryRow(ctx,
		`SELECT `+transferColumns+` FROM fund_transfers WHERE business_id = $1 AND id = $2`, businessID, id))
}

func (r *Repository) ListTransfers(ctx context.Context, businessID int64, limit, offset int) ([]FundTransfer, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+transferColumns+` FROM fund_transfers WHERE business_id = $1
ORDER BY transfer_date DESC, created_at DESC LIMIT $2 OFFSET $3`, businessID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FundTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) GetAdjustment(ctx context.Context, businessID int64, id uuid.UUID) (BankAdjustment, error) {
	return scanAdjustment(r.db.QueryRow(ctx,
		`SELECT `+adjustmentColumns+` FROM bank_adjustments WHERE business_id = $1 AND id = $2`, businessID, id))
}

func (r *Repository) ListAdjustments(ctx context.Context, businessID int64, bankAccountID int64, limit, offset int) ([]BankAdjustment, error) {
	query := `SELECT ` + adjustmentColumns + ` FROM bank_adjustments WHERE business_id = $1`
	args := []any{businessID}
	if bankAccountID != 0 {
		query += ` AND bank_account_id = $2`
		args = append(args, bankAccountID)
	}
	query += ` ORDER BY adjustment_date DESC, created_at DESC LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BankAdjustment
	for rows.Next() {
		a, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
