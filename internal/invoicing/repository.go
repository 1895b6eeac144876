package invoicing

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

const invoiceColumns = `id, business_id, branch_id, number, customer_id, invoice_date, due_date, description, reference,
sub_total, vat_amount, amount, received_amount, returned_amount, status, created_by, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.BusinessID, &inv.BranchID, &inv.Number, &inv.CustomerID, &inv.InvoiceDate,
		&inv.DueDate, &inv.Description, &inv.Reference, &inv.SubTotal, &inv.VATAmount, &inv.Amount,
		&inv.ReceivedAmount, &inv.ReturnedAmount, &inv.Status, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

func insertInvoiceTx(ctx context.Context, tx pgx.Tx, inv Invoice) (Invoice, error) {
	return scanInvoice(tx.QueryRow(ctx, `INSERT INTO sales_invoices
(id, business_id, branch_id, number, customer_id, invoice_date, due_date, description, reference,
 sub_total, vat_amount, amount, received_amount, returned_amount, status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16) RETURNING `+invoiceColumns,
		inv.ID, inv.BusinessID, inv.BranchID, inv.Number, inv.CustomerID, inv.InvoiceDate, inv.DueDate,
		inv.Description, inv.Reference, inv.SubTotal, inv.VATAmount, inv.Amount, inv.ReceivedAmount,
		inv.ReturnedAmount, inv.Status, inv.CreatedBy))
}

func insertInvoiceLineTx(ctx context.Context, tx pgx.Tx, l InvoiceLine) (InvoiceLine, error) {
	err := tx.QueryRow(ctx, `INSERT INTO sales_invoice_lines
(invoice_id, revenue_account_id, description, quantity, unit_price, amount, returned_quantity)
VALUES ($1,$2,$3,$4,$5,$6,0) RETURNING id, returned_quantity`,
		l.InvoiceID, l.RevenueAccountID, l.Description, l.Quantity, l.UnitPrice, l.Amount).Scan(&l.ID, &l.ReturnedQuantity)
	return l, err
}

func lockInvoiceTx(ctx context.Context, tx pgx.Tx, businessID int64, id uuid.UUID) (Invoice, error) {
	return scanInvoice(tx.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM sales_invoices WHERE business_id = $1 AND id = $2 FOR UPDATE`,
		businessID, id))
}

func invoiceLinesTx(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID) ([]InvoiceLine, error) {
	rows, err := tx.Query(ctx, `SELECT id, invoice_id, revenue_account_id, description, quantity, unit_price, amount, returned_quantity
FROM sales_invoice_lines WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInvoiceLines(rows)
}

func collectInvoiceLines(rows pgx.Rows) ([]InvoiceLine, error) {
	var out []InvoiceLine
	for rows.Next() {
		var l InvoiceLine
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.RevenueAccountID, &l.Description, &l.Quantity, &l.UnitPrice, &l.Amount, &l.ReturnedQuantity); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func updateInvoiceSettlementTx(ctx context.Context, tx pgx.Tx, inv Invoice) error {
	_, err := tx.Exec(ctx, `UPDATE sales_invoices
SET received_amount = $3, returned_amount = $4, status = $5, updated_at = NOW()
WHERE business_id = $1 AND id = $2`,
		inv.BusinessID, inv.ID, inv.ReceivedAmount, inv.ReturnedAmount, inv.Status)
	return err
}

func addReturnedQuantityTx(ctx context.Context, tx pgx.Tx, lineID int64, qty decimal.Decimal) error {
	_, err := tx.Exec(ctx, `UPDATE sales_invoice_lines SET returned_quantity = returned_quantity + $2 WHERE id = $1`, lineID, qty)
	return err
}

func (r *Repository) GetInvoice(ctx context.Context, businessID int64, id uuid.UUID) (Invoice, error) {
	inv, err := scanInvoice(r.db.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM sales_invoices WHERE business_id = $1 AND id = $2`, businessID, id))
	if err != nil {
		return Invoice{}, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, invoice_id, revenue_account_id, description, quantity, unit_price, amount, returned_quantity
FROM sales_invoice_lines WHERE invoice_id = $1 ORDER BY id`, id)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	inv.Lines, err = collectInvoiceLines(rows)
	return inv, err
}

func (r *Repository) ListInvoices(ctx context.Context, businessID int64, status InvoiceStatus, limit, offset int) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM sales_invoices WHERE business_id = $1`
	args := []any{businessID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY invoice_date DESC, number DESC LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

const receiptColumns = `id, business_id, branch_id, invoice_id, receipt_date, amount, received_into_account_id, reference, created_by, created_at`

func scanReceipt(row pgx.Row) (Receipt, error) {
	var rc Receipt
	err := row.Scan(&rc.ID, &rc.BusinessID, &rc.BranchID, &rc.InvoiceID, &rc.ReceiptDate, &rc.Amount,
		&rc.ReceivedIntoAccountID, &rc.Reference, &rc.CreatedBy, &rc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Receipt{}, ErrReceiptNotFound
		}
		return Receipt{}, err
	}
	return rc, nil
}

func insertReceiptTx(ctx context.Context, tx pgx.Tx, rc Receipt) (Receipt, error) {
	return scanReceipt(tx.QueryRow(ctx, `INSERT INTO invoice_receipts
(id, business_id, branch_id, invoice_id, receipt_date, amount, received_into_account_id, reference, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING `+receiptColumns,
		rc.ID, rc.BusinessID, rc.BranchID, rc.InvoiceID, rc.ReceiptDate, rc.Amount, rc.ReceivedIntoAccountID, rc.Reference, rc.CreatedBy))
}

func (r *Repository) ListReceipts(ctx context.Context, businessID int64, invoiceID uuid.UUID) ([]Receipt, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+receiptColumns+` FROM invoice_receipts WHERE business_id = $1 AND invoice_id = $2 ORDER BY receipt_date, created_at`,
		businessID, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Receipt
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

const noteColumns = `id, business_id, branch_id, invoice_id, number, note_date, reason, status,
sub_total, vat_amount, total_amount, refund_method, refund_account_id, applied_at, created_by, created_at, updated_at`

func scanNote(row pgx.Row) (CreditNote, error) {
	var n CreditNote
	err := row.Scan(&n.ID, &n.BusinessID, &n.BranchID, &n.InvoiceID, &n.Number, &n.NoteDate, &n.Reason, &n.Status,
		&n.SubTotal, &n.VATAmount, &n.TotalAmount, &n.RefundMethod, &n.RefundAccountID, &n.AppliedAt,
		&n.CreatedBy, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CreditNote{}, ErrNoteNotFound
		}
		return CreditNote{}, err
	}
	return n, nil
}

func insertNoteTx(ctx context.Context, tx pgx.Tx, n CreditNote) (CreditNote, error) {
	return scanNote(tx.QueryRow(ctx, `INSERT INTO credit_notes
(id, business_id, branch_id, invoice_id, number, note_date, reason, status, sub_total, vat_amount, total_amount, refund_method, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING `+noteColumns,
		n.ID, n.BusinessID, n.BranchID, n.InvoiceID, n.Number, n.NoteDate, n.Reason, n.Status,
		n.SubTotal, n.VATAmount, n.TotalAmount, n.RefundMethod, n.CreatedBy))
}

func insertNoteLineTx(ctx context.Context, tx pgx.Tx, l NoteLine) (NoteLine, error) {
	err := tx.QueryRow(ctx, `INSERT INTO credit_note_lines
(note_id, invoice_line_id, account_id, quantity, unit_price, amount)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		l.NoteID, l.InvoiceLineID, l.AccountID, l.Quantity, l.UnitPrice, l.Amount).Scan(&l.ID)
	return l, err
}

func lockNoteTx(ctx context.Context, tx pgx.Tx, businessID int64, id uuid.UUID) (CreditNote, error) {
	return scanNote(tx.QueryRow(ctx,
		`SELECT `+noteColumns+` FROM credit_notes WHERE business_id = $1 AND id = $2 FOR UPDATE`,
		businessID, id))
}

func noteLinesTx(ctx context.Context, tx pgx.Tx, noteID uuid.UUID) ([]NoteLine, error) {
	rows, err := tx.Query(ctx, `SELECT id, note_id, invoice_line_id, account_id, quantity, unit_price, amount
FROM credit_note_lines WHERE note_id = $1 ORDER BY id`, noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NoteLine
	for rows.Next() {
		var l NoteLine
		if err := rows.Scan(&l.ID, &l.NoteID, &l.InvoiceLineID, &l.AccountID, &l.Quantity, &l.UnitPrice, &l.Amount); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// noteVATSoFarTx sums VAT over non-void notes of the invoice, so a closing
// note carries exactly the remaining VAT instead of a rounded proportion.
func noteVATSoFarTx(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID) (decimal.Decimal, error) {
	var vat decimal.Decimal
	err := tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(vat_amount), 0) FROM credit_notes WHERE invoice_id = $1 AND status <> 'void'`,
		invoiceID).Scan(&vat)
	return vat, err
}

func markNoteAppliedTx(ctx context.Context, tx pgx.Tx, n CreditNote) error {
	_, err := tx.Exec(ctx, `UPDATE credit_notes
SET status = $3, refund_method = $4, refund_account_id = $5, applied_at = $6, updated_at = NOW()
WHERE business_id = $1 AND id = $2`,
		n.BusinessID, n.ID, n.Status, n.RefundMethod, n.RefundAccountID, n.AppliedAt)
	return err
}

func markNoteVoidTx(ctx context.Context, tx pgx.Tx, businessID int64, id uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`UPDATE credit_notes SET status = 'void', updated_at = NOW() WHERE business_id = $1 AND id = $2`,
		businessID, id)
	return err
}

func (r *Repository) GetNote(ctx context.Context, businessID int64, id uuid.UUID) (CreditNote, error) {
	note, err := scanNote(r.db.QueryRow(ctx,
		`SELECT `+noteColumns+` FROM credit_notes WHERE business_id = $1 AND id = $2`, businessID, id))
	if err != nil {
		return CreditNote{}, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, note_id, invoice_line_id, account_id, quantity, unit_price, amount
FROM credit_note_lines WHERE note_id = $1 ORDER BY id`, id)
	if err != nil {
		return CreditNote{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l NoteLine
		if err := rows.Scan(&l.ID, &l.NoteID, &l.InvoiceLineID, &l.AccountID, &l.Quantity, &l.UnitPrice, &l.Amount); err != nil {
			return CreditNote{}, err
		}
		note.Lines = append(note.Lines, l)
	}
	return note, rows.Err()
}

func (r *Repository) ListNotes(ctx context.Context, businessID int64, invoiceID uuid.UUID) ([]CreditNote, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+noteColumns+` FROM credit_notes WHERE business_id = $1 AND invoice_id = $2 ORDER BY created_at`,
		businessID, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CreditNote
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
