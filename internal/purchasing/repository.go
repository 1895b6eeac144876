package purchasing

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const billColumns = `id, business_id, branch_id, number, vendor_id, bill_date, due_date, description, reference,
sub_total, vat_amount, amount, paid_amount, returned_amount, status, created_by, created_at, updated_at`

func scanBill(row pgx.Row) (Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.BusinessID, &b.BranchID, &b.Number, &b.VendorID, &b.BillDate, &b.DueDate,
		&b.Description, &b.Reference, &b.SubTotal, &b.VATAmount, &b.Amount, &b.PaidAmount, &b.ReturnedAmount,
		&b.Status, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bill{}, ErrBillNotFound
		}
		return Bill{}, err
	}
	return b, nil
}

func insertBillTx(ctx context.Context, tx pgx.Tx, b Bill) (Bill, error) {
	return scanBill(tx.QueryRow(ctx, `INSERT INTO purchase_bills
(id, business_id, branch_id, number, vendor_id, bill_date, due_date, description, reference,
 sub_total, vat_amount, amount, paid_amount, returned_amount, status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16) RETURNING `+billColumns,
		b.ID, b.BusinessID, b.BranchID, b.Number, b.VendorID, b.BillDate, b.DueDate, b.Description, b.Reference,
		b.SubTotal, b.VATAmount, b.Amount, b.PaidAmount, b.ReturnedAmount, b.Status, b.CreatedBy))
}

func insertBillLineTx(ctx context.Context, tx pgx.Tx, l BillLine) (BillLine, error) {
	err := tx.QueryRow(ctx, `INSERT INTO purchase_bill_lines
(bill_id, account_id, description, quantity, unit_price, amount, returned_quantity)
VALUES ($1,$2,$3,$4,$5,$6,0) RETURNING id, returned_quantity`,
		l.BillID, l.AccountID, l.Description, l.Quantity, l.UnitPrice, l.Amount).Scan(&l.ID, &l.ReturnedQuantity)
	return l, err
}

// lockBillTx loads a bill FOR UPDATE so settlement math is race-free.
func lockBillTx(ctx context.Context, tx pgx.Tx, businessID int64, id uuid.UUID) (Bill, error) {
	return scanBill(tx.QueryRow(ctx,
		`SELECT `+billColumns+` FROM purchase_bills WHERE business_id = $1 AND id = $2 FOR UPDATE`,
		businessID, id))
}

func billLinesTx(ctx context.Context, tx pgx.Tx, billID uuid.UUID) ([]BillLine, error) {
	rows, err := tx.Query(ctx, `SELECT id, bill_id, account_id, description, quantity, unit_price, amount, returned_quantity
FROM purchase_bill_lines WHERE bill_id = $1 ORDER BY id`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BillLine
	for rows.Next() {
		var l BillLine
		if err := rows.Scan(&l.ID, &l.BillID, &l.AccountID, &l.Description, &l.Quantity, &l.UnitPrice, &l.Amount, &l.ReturnedQuantity); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func updateBillSettlementTx(ctx context.Context, tx pgx.Tx, b Bill) error {
	_, err := tx.Exec(ctx, `UPDATE purchase_bills
SET paid_amount = $3, returned_amount = $4, status = $5, updated_at = NOW()
WHERE business_id = $1 AND id = $2`,
		b.BusinessID, b.ID, b.PaidAmount, b.ReturnedAmount, b.Status)
	return err
}

func addReturnedQuantityTx(ctx context.Context, tx pgx.Tx, lineID int64, qty decimal.Decimal) error {
	_, err := tx.Exec(ctx, `UPDATE purchase_bill_lines SET returned_quantity = returned_quantity + $2 WHERE id = $1`, lineID, qty)
	return err
}

func (r *Repository) GetBill(ctx context.Context, businessID int64, id uuid.UUID) (Bill, error) {
	bill, err := scanBill(r.db.QueryRow(ctx,
		`SELECT `+billColumns+` FROM purchase_bills WHERE business_id = $1 AND id = $2`, businessID, id))
	if err != nil {
		return Bill{}, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, bill_id, account_id, description, quantity, unit_price, amount, returned_quantity
FROM purchase_bill_lines WHERE bill_id = $1 ORDER BY id`, id)
	if err != nil {
		return Bill{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l BillLine
		if err := rows.Scan(&l.ID, &l.BillID, &l.AccountID, &l.Description, &l.Quantity, &l.UnitPrice, &l.Amount, &l.ReturnedQuantity); err != nil {
			return Bill{}, err
		}
		bill.Lines = append(bill.Lines, l)
	}
	return bill, rows.Err()
}

func (r *Repository) ListBills(ctx context.Context, businessID int64, status BillStatus, limit, offset int) ([]Bill, error) {
	query := `SELECT ` + billColumns + ` FROM purchase_bills WHERE business_id = $1`
	args := []any{businessID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY bill_date DESC, number DESC LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const paymentColumns = `id, business_id, branch_id, bill_id, payment_date, amount, paid_from_account_id, reference, created_by, created_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.BusinessID, &p.BranchID, &p.BillID, &p.PaymentDate, &p.Amount,
		&p.PaidFromAccountID, &p.Reference, &p.CreatedBy, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrPaymentNotFound
		}
		return Payment{}, err
	}
	return p, nil
}

func insertPaymentTx(ctx context.Context, tx pgx.Tx, p Payment) (Payment, error) {
	return scanPayment(tx.QueryRow(ctx, `INSERT INTO bill_payments
(id, business_id, branch_id, bill_id, payment_date, amount, paid_from_account_id, reference, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING `+paymentColumns,
		p.ID, p.BusinessID, p.BranchID, p.BillID, p.PaymentDate, p.Amount, p.PaidFromAccountID, p.Reference, p.CreatedBy))
}

func (r *Repository) ListPayments(ctx context.Context, businessID int64, billID uuid.UUID) ([]Payment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+paymentColumns+` FROM bill_payments WHERE business_id = $1 AND bill_id = $2 ORDER BY payment_date, created_at`,
		businessID, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const noteColumns = `id, business_id, branch_id, bill_id, number, note_date, reason, status,
sub_total, vat_amount, total_amount, refund_method, refund_account_id, applied_at, created_by, created_at, updated_at`

func scanNote(row pgx.Row) (DebitNote, error) {
	var n DebitNote
	err := row.Scan(&n.ID, &n.BusinessID, &n.BranchID, &n.BillID, &n.Number, &n.NoteDate, &n.Reason, &n.Status,
		&n.SubTotal, &n.VATAmount, &n.TotalAmount, &n.RefundMethod, &n.RefundAccountID, &n.AppliedAt,
		&n.CreatedBy, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DebitNote{}, ErrNoteNotFound
		}
		return DebitNote{}, err
	}
	return n, nil
}

func insertNoteTx(ctx context.Context, tx pgx.Tx, n DebitNote) (DebitNote, error) {
	return scanNote(tx.QueryRow(ctx, `INSERT INTO debit_notes
(id, business_id, branch_id, bill_id, number, note_date, reason, status, sub_total, vat_amount, total_amount, refund_method, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING `+noteColumns,
		n.ID, n.BusinessID, n.BranchID, n.BillID, n.Number, n.NoteDate, n.Reason, n.Status,
		n.SubTotal, n.VATAmount, n.TotalAmount, n.RefundMethod, n.CreatedBy))
}

func insertNoteLineTx(ctx context.Context, tx pgx.Tx, l NoteLine) (NoteLine, error) {
	err := tx.QueryRow(ctx, `INSERT INTO debit_note_lines
(note_id, bill_line_id, account_id, quantity, unit_price, amount)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		l.NoteID, l.BillLineID, l.AccountID, l.Quantity, l.UnitPrice, l.Amount).Scan(&l.ID)
	return l, err
}

func lockNoteTx(ctx context.Context, tx pgx.Tx, businessID int64, id uuid.UUID) (DebitNote, error) {
	return scanNote(tx.QueryRow(ctx,
		`SELECT `+noteColumns+` FROM debit_notes WHERE business_id = $1 AND id = $2 FOR UPDATE`,
		businessID, id))
}

func noteLinesTx(ctx context.Context, tx pgx.Tx, noteID uuid.UUID) ([]NoteLine, error) {
	rows, err := tx.Query(ctx, `SELECT id, note_id, bill_line_id, account_id, quantity, unit_price, amount
FROM debit_note_lines WHERE note_id = $1 ORDER BY id`, noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NoteLine
	for rows.Next() {
		var l NoteLine
		if err := rows.Scan(&l.ID, &l.NoteID, &l.BillLineID, &l.AccountID, &l.Quantity, &l.UnitPrice, &l.Amount); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// noteVATSoFarTx sums VAT over non-void notes of the bill, so a closing
// note can carry exactly the remaining VAT instead of a rounded proportion.
func noteVATSoFarTx(ctx context.Context, tx pgx.Tx, billID uuid.UUID) (decimal.Decimal, error) {
	var vat decimal.Decimal
	err := tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(vat_amount), 0) FROM debit_notes WHERE bill_id = $1 AND status <> 'void'`,
		billID).Scan(&vat)
	return vat, err
}

func markNoteAppliedTx(ctx context.Context, tx pgx.Tx, n DebitNote) error {
	_, err := tx.Exec(ctx, `UPDATE debit_notes
SET status = $3, refund_method = $4, refund_account_id = $5, applied_at = $6, updated_at = NOW()
WHERE business_id = $1 AND id = $2`,
		n.BusinessID, n.ID, n.Status, n.RefundMethod, n.RefundAccountID, n.AppliedAt)
	return err
}

func markNoteVoidTx(ctx context.Context, tx pgx.Tx, businessID int64, id uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`UPDATE debit_notes SET status = 'void', updated_at = NOW() WHERE business_id = $1 AND id = $2`,
		businessID, id)
	return err
}

func (r *Repository) GetNote(ctx context.Context, businessID int64, id uuid.UUID) (DebitNote, error) {
	note, err := scanNote(r.db.QueryRow(ctx,
		`SELECT `+noteColumns+` FROM debit_notes WHERE business_id = $1 AND id = $2`, businessID, id))
	if err != nil {
		return DebitNote{}, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, note_id, bill_line_id, account_id, quantity, unit_price, amount
FROM debit_note_lines WHERE note_id = $1 ORDER BY id`, id)
	if err != nil {
		return DebitNote{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l NoteLine
		if err := rows.Scan(&l.ID, &l.NoteID, &l.BillLineID, &l.AccountID, &l.Quantity, &l.UnitPrice, &l.Amount); err != nil {
			return DebitNote{}, err
		}
		note.Lines = append(note.Lines, l)
	}
	return note, rows.Err()
}

func (r *Repository) ListNotes(ctx context.Context, businessID int64, billID uuid.UUID) ([]DebitNote, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+noteColumns+` FROM debit_notes WHERE business_id = $1 AND bill_id = $2 ORDER BY created_at`,
		businessID, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DebitNote
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
