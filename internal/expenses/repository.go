package expenses

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const expenseColumns = `id, business_id, branch_id, number, expense_date, description, reference, expense_account_id, paid_from_account_id, sub_total, vat_amount, amount, created_by, created_at, updated_at`
const incomeColumns = `id, business_id, branch_id, number, income_date, description, reference, income_account_id, received_into_account_id, sub_total, vat_amount, amount, created_by, created_at, updated_at`

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Pool() *pgxpool.Pool {
	return r.db
}

func scanExpense(row pgx.Row) (Expense, error) {
	var e Expense
	err := row.Scan(&e.ID, &e.BusinessID, &e.BranchID, &e.Number, &e.ExpenseDate, &e.Description, &e.Reference,
		&e.ExpenseAccountID, &e.PaidFromAccountID, &e.SubTotal, &e.VATAmount, &e.Amount, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, ErrExpenseNotFound
		}
		return Expense{}, err
	}
	return e, nil
}

func scanIncome(row pgx.Row) (OtherIncome, error) {
	var o OtherIncome
	err := row.Scan(&o.ID, &o.BusinessID, &o.BranchID, &o.Number, &o.IncomeDate, &o.Description, &o.Reference,
		&o.IncomeAccountID, &o.ReceivedIntoAccountID, &o.SubTotal, &o.VATAmount, &o.Amount, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OtherIncome{}, ErrIncomeNotFound
		}
		return OtherIncome{}, err
	}
	return o, nil
}

func insertExpenseTx(ctx context.Context, tx pgx.Tx, e Expense) (Expense, error) {
	return scanExpense(tx.QueryRow(ctx, `INSERT INTO expenses
(id, business_id, branch_id, number, expense_date, description, reference, expense_account_id, paid_from_account_id, sub_total, vat_amount, amount, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING `+expenseColumns,
		e.ID, e.BusinessID, e.BranchID, e.Number, e.ExpenseDate, e.Description, e.Reference,
		e.ExpenseAccountID, e.PaidFromAccountID, e.SubTotal, e.VATAmount, e.Amount, e.CreatedBy))
}

func updateExpenseTx(ctx context.Context, tx pgx.Tx, e Expense) (Expense, error) {
	return scanExpense(tx.QueryRow(ctx, `UPDATE expenses SET
expense_date=$3, description=$4, reference=$5, expense_account_id=$6, paid_from_account_id=$7, sub_total=$8, vat_amount=$9, amount=$10, updated_at=NOW()
WHERE id=$1 AND business_id=$2 RETURNING `+expenseColumns,
		e.ID, e.BusinessID, e.ExpenseDate, e.Description, e.Reference,
		e.ExpenseAccountID, e.PaidFromAccountID, e.SubTotal, e.VATAmount, e.Amount))
}

func deleteExpenseTx(ctx context.Context, tx pgx.Tx, businessID int64, id uuid.UUID) error {
	cmd, err := tx.Exec(ctx, `DELETE FROM expenses WHERE id=$1 AND business_id=$2`, id, businessID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrExpenseNotFound
	}
	return nil
}

func (r *Repository) GetExpense(ctx context.Context, businessID int64, id uuid.UUID) (Expense, error) {
	return scanExpense(r.db.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id=$1 AND business_id=$2`, id, businessID))
}

func (r *Repository) ListExpenses(ctx context.Context, businessID int64, limit, offset int) ([]Expense, error) {
	rows, err := r.db.Query(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE business_id=$1 ORDER BY expense_date DESC, number DESC LIMIT $2 OFFSET $3`, businessID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func insertIncomeTx(ctx context.Context, tx pgx.Tx, o OtherIncome) (OtherIncome, error) {
	return scanIncome(tx.QueryRow(ctx, `INSERT INTO other_incomes
(id, business_id, branch_id, number, income_date, description, reference, income_account_id, received_into_account_id, sub_total, vat_amount, amount, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING `+incomeColumns,
		o.ID, o.BusinessID, o.BranchID, o.Number, o.IncomeDate, o.Description, o.Reference,
		o.IncomeAccountID, o.ReceivedIntoAccountID, o.SubTotal, o.VATAmount, o.Amount, o.CreatedBy))
}

func updateIncomeTx(ctx context.Context, tx pgx.Tx, o OtherIncome) (OtherIncome, error) {
	return scanIncome(tx.QueryRow(ctx, `UPDATE other_incomes SET
income_date=$3, description=$4, reference=$5, income_account_id=$6, received_into_account_id=$7, sub_total=$8, vat_amount=$9, amount=$10, updated_at=NOW()
WHERE id=$1 AND business_id=$2 RETURNING `+incomeColumns,
		o.ID, o.BusinessID, o.IncomeDate, o.Description, o.Reference,
		o.IncomeAccountID, o.ReceivedIntoAccountID, o.SubTotal, o.VATAmount, o.Amount))
}

func deleteIncomeTx(ctx context.Context, tx pgx.Tx, businessID int64, id uuid.UUID) error {
	cmd, err := tx.Exec(ctx, `DELETE FROM other_incomes WHERE id=$1 AND business_id=$2`, id, businessID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrIncomeNotFound
	}
	return nil
}

func (r *Repository) GetIncome(ctx context.Context, businessID int64, id uuid.UUID) (OtherIncome, error) {
	return scanIncome(r.db.QueryRow(ctx, `SELECT `+incomeColumns+` FROM other_incomes WHERE id=$1 AND business_id=$2`, id, businessID))
}

func (r *Repository) ListIncomes(ctx context.Context, businessID int64, limit, offset int) ([]OtherIncome, error) {
	rows, err := r.db.Query(ctx, `SELECT `+incomeColumns+` FROM other_incomes WHERE business_id=$1 ORDER BY income_date DESC, number DESC LIMIT $2 OFFSET $3`, businessID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OtherIncome
	for rows.Next() {
		o, err := scanIncome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
