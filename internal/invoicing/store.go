package invoicing

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger/accounts"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
)

// Store is the persistence seam the service drives. *Repository implements
// it against Postgres; service tests substitute in-memory stubs. The
// account and sequence helpers ride along so a single stub covers
// everything a mutation touches inside its transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error

	GetAccountsTx(ctx context.Context, tx pgx.Tx, businessID int64, ids []int64) (map[int64]accounts.Account, error)
	GetAccountTx(ctx context.Context, tx pgx.Tx, businessID, id int64) (accounts.Account, error)
	EnsureSystemAccountTx(ctx context.Context, tx pgx.Tx, businessID int64, kind accounts.SystemAccountKind) (accounts.Account, error)
	EnsureSufficientFundsTx(ctx context.Context, tx pgx.Tx, account accounts.Account, amount decimal.Decimal) error
	NextNumberTx(ctx context.Context, tx pgx.Tx, businessID int64, docType sequence.DocType) (string, error)

	InsertInvoiceTx(ctx context.Context, tx pgx.Tx, inv Invoice) (Invoice, error)
	InsertInvoiceLineTx(ctx context.Context, tx pgx.Tx, l InvoiceLine) (InvoiceLine, error)
	LockInvoiceTx(ctx context.Context, tx pgx.Tx, businessID int64, id uuid.UUID) (Invoice, error)
	InvoiceLinesTx(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID) ([]InvoiceLine, error)
	UpdateInvoiceSettlementTx(ctx context.Context, tx pgx.Tx, inv Invoice) error
	AddReturnedQuantityTx(ctx context.Context, tx pgx.Tx, lineID int64, qty decimal.Decimal) error
	GetInvoice(ctx context.Context, businessID int64, id uuid.UUID) (Invoice, error)
	ListInvoices(ctx context.Context, businessID int64, status InvoiceStatus, limit, offset int) ([]Invoice, error)

	InsertReceiptTx(ctx context.Context, tx pgx.Tx, rc Receipt) (Receipt, error)
	ListReceipts(ctx context.Context, businessID int64, invoiceID uuid.UUID) ([]Receipt, error)

	InsertNoteTx(ctx context.Context, tx pgx.Tx, n CreditNote) (CreditNote, error)
	InsertNoteLineTx(ctx context.Context, tx pgx.Tx, l NoteLine) (NoteLine, error)
	LockNoteTx(ctx context.Context, tx pgx.Tx, businessID int64, id uuid.UUID) (CreditNote, error)
	NoteLinesTx(ctx context.Context, tx pgx.Tx, noteID uuid.UUID) ([]NoteLine, error)
	NoteVATSoFarTx(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID) (decimal.Decimal, error)
	MarkNoteAppliedTx(ctx context.Context, tx pgx.Tx, n CreditNote) error
	MarkNoteVoidTx(ctx context.Context, tx pgx.Tx, businessID int64, id uuid.UUID) error
	GetNote(ctx context.Context, businessID int64, id uuid.UUID) (CreditNote, error)
	ListNotes(ctx context.Context, businessID int64, invoiceID uuid.UUID) ([]CreditNote, error)
}

func (r *Repository) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return db.WithTx(ctx, r.db, fn)
}

func (r *Repository) GetAccountsTx(ctx context.Context, tx pgx.Tx, businessID int64, ids []int64) (map[int64]accounts.Account, error) {
	return accounts.GetManyTx(ctx, tx, businessID, ids)
}

func (r *Repository) GetAccountTx(ctx context.Context, tx pgx.Tx, businessID, id int64) (accounts.Account, error) {
	return accounts.GetTx(ctx, tx, businessID, id)
}

func (r *Repository) EnsureSystemAccountTx(ctx context.Context, tx pgx.Tx, businessID int64, kind accounts.SystemAccountKind) (accounts.Account, error) {
	return accounts.EnsureSystemAccountTx(ctx, tx, businessID, kind)
}

func (r *Repository) EnsureSufficientFundsTx(ctx context.Context, tx pgx.Tx, account accounts.Account, amount decimal.Decimal) error {
	return accounts.EnsureSufficientFundsTx(ctx, tx, account, amount)
}

func (r *Repository) NextNumberTx(ctx context.Context, tx pgx.Tx, businessID int64, docType sequence.DocType) (string, error) {
	return sequence.Next(ctx, tx, businessID, docType)
}

func (r *Repository) InsertInvoiceTx(ctx context.Context, tx pgx.Tx, inv Invoice) (Invoice, error) {
	return insertInvoiceTx(ctx, tx, inv)
}

func (r *Repository) InsertInvoiceLineTx(ctx context.Context, tx pgx.Tx, l InvoiceLine) (InvoiceLine, error) {
	return insertInvoiceLineTx(ctx, tx, l)
}

func (r *Repository) LockInvoiceTx(ctx context.Context, tx pgx.Tx, businessID int64, id uuid.UUID) (Invoice, error) {
	return lockInvoiceTx(ctx, tx, businessID, id)
}

func (r *Repository) InvoiceLinesTx(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID) ([]InvoiceLine, error) {
	return invoiceLinesTx(ctx, tx, invoiceID)
}

func (r *Repository) UpdateInvoiceSettlementTx(ctx context.Context, tx pgx.Tx, inv Invoice) error {
	return updateInvoiceSettlementTx(ctx, tx, inv)
}

func (r *Repository) AddReturnedQuantityTx(ctx context.Context, tx pgx.Tx, lineID int64, qty decimal.Decimal) error {
	return addReturnedQuantityTx(ctx, tx, lineID, qty)
}

func (r *Repository) InsertReceiptTx(ctx context.Context, tx pgx.Tx, rc Receipt) (Receipt, error) {
	return insertReceiptTx(ctx, tx, rc)
}

func (r *Repository) InsertNoteTx(ctx context.Context, tx pgx.Tx, n CreditNote) (CreditNote, error) {
	return insertNoteTx(ctx, tx, n)
}

func (r *Repository) InsertNoteLineTx(ctx context.Context, tx pgx.Tx, l NoteLine) (NoteLine, error) {
	return insertNoteLineTx(ctx, tx, l)
}

func (r *Repository) LockNoteTx(ctx context.Context, tx pgx.Tx, businessID int64, id uuid.UUID) (CreditNote, error) {
	return lockNoteTx(ctx, tx, businessID, id)
}

func (r *Repository) NoteLinesTx(ctx context.Context, tx pgx.Tx, noteID uuid.UUID) ([]NoteLine, error) {
	return noteLinesTx(ctx, tx, noteID)
}

func (r *Repository) NoteVATSoFarTx(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID) (decimal.Decimal, error) {
	return noteVATSoFarTx(ctx, tx, invoiceID)
}

func (r *Repository) MarkNoteAppliedTx(ctx context.Context, tx pgx.Tx, n CreditNote) error {
	return markNoteAppliedTx(ctx, tx, n)
}

func (r *Repository) MarkNoteVoidTx(ctx context.Context, tx pgx.Tx, businessID int64, id uuid.UUID) error {
	return markNoteVoidTx(ctx, tx, businessID, id)
}
