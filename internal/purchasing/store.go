package purchasing

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

	InsertBillTx(ctx context.Context, tx pgx.Tx, b Bill) (Bill, error)
	InsertBillLineTx(ctx context.Context, tx pgx.Tx, l BillLine) (BillLine, error)
	LockBillTx(ctx context.Context, tx pgx.Tx, businessID int64, id uuid.UUID) (Bill, error)
	BillLinesTx(ctx context.Context, tx pgx.Tx, billID uuid.UUID) ([]BillLine, error)
	UpdateBillSettlementTx(ctx context.Context, tx pgx.Tx, b Bill) error
	AddReturnedQuantityTx(ctx context.Context, tx pgx.Tx, lineID int64, qty decimal.Decimal) error
	GetBill(ctx context.Context, businessID int64, id uuid.UUID) (Bill, error)
	ListBills(ctx context.Context, businessID int64, status BillStatus, limit, offset int) ([]Bill, error)

	InsertPaymentTx(ctx context.Context, tx pgx.Tx, p Payment) (Payment, error)
	ListPayments(ctx context.Context, businessID int64, billID uuid.UUID) ([]Payment, error)

	InsertNoteTx(ctx context.Context, tx pgx.Tx, n DebitNote) (DebitNote, error)
	InsertNoteLineTx(ctx context.Context, tx pgx.Tx, l NoteLine) (NoteLine, error)
	LockNoteTx(ctx context.Context, tx pgx.Tx, businessID int64, id uuid.UUID) (DebitNote, error)
	NoteLinesTx(ctx context.Context, tx pgx.Tx, noteID uuid.UUID) ([]NoteLine, error)
	NoteVATSoFarTx(ctx context.Context, tx pgx.Tx, billID uuid.UUID) (decimal.Decimal, error)
	MarkNoteAppliedTx(ctx context.Context, tx pgx.Tx, n DebitNote) error
	MarkNoteVoidTx(ctx context.Context, tx pgx.Tx, businessID int64, id uuid.UUID) error
	GetNote(ctx context.Context, businessID int64, id uuid.UUID) (DebitNote, error)
	ListNotes(ctx context.Context, businessID int64, billID uuid.UUID) ([]DebitNote, error)
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

func (r *Repository) InsertBillTx(ctx context.Context, tx pgx.Tx, b Bill) (Bill, error) {
	return insertBillTx(ctx, tx, b)
}

func (r *Repository) InsertBillLineTx(ctx context.Context, tx pgx.Tx, l BillLine) (BillLine, error) {
	return insertBillLineTx(ctx, tx, l)
}

func (r *Repository) LockBillTx(ctx context.Context, tx pgx.Tx, businessID int64, id uuid.UUID) (Bill, error) {
	return lockBillTx(ctx, tx, businessID, id)
}

func (r *Repository) BillLinesTx(ctx context.Context, tx pgx.Tx, billID uuid.UUID) ([]BillLine, error) {
	return billLinesTx(ctx, tx, billID)
}

func (r *Repository) UpdateBillSettlementTx(ctx context.Context, tx pgx.Tx, b Bill) error {
	return updateBillSettlementTx(ctx, tx, b)
}

func (r *Repository) AddReturnedQuantityTx(ctx context.Context, tx pgx.Tx, lineID int64, qty decimal.Decimal) error {
	return addReturnedQuantityTx(ctx, tx, lineID, qty)
}

func (r *Repository) InsertPaymentTx(ctx context.Context, tx pgx.Tx, p Payment) (Payment, error) {
	return insertPaymentTx(ctx, tx, p)
}

func (r *Repository) InsertNoteTx(ctx context.Context, tx pgx.Tx, n DebitNote) (DebitNote, error) {
	return insertNoteTx(ctx, tx, n)
}

func (r *Repository) InsertNoteLineTx(ctx context.Context, tx pgx.Tx, l NoteLine) (NoteLine, error) {
	return insertNoteLineTx(ctx, tx, l)
}

func (r *Repository) LockNoteTx(ctx context.Context, tx pgx.Tx, businessID int64, id uuid.UUID) (DebitNote, error) {
	return lockNoteTx(ctx, tx, businessID, id)
}

func (r *Repository) NoteLinesTx(ctx context.Context, tx pgx.Tx, noteID uuid.UUID) ([]NoteLine, error) {
	return noteLinesTx(ctx, tx, noteID)
}

func (r *Repository) NoteVATSoFarTx(ctx context.Context, tx pgx.Tx, billID uuid.UUID) (decimal.Decimal, error) {
	return noteVATSoFarTx(ctx, tx, billID)
}

func (r *Repository) MarkNoteAppliedTx(ctx context.Context, tx pgx.Tx, n DebitNote) error {
	return markNoteAppliedTx(ctx, tx, n)
}

func (r *Repository) MarkNoteVoidTx(ctx context.Context, tx pgx.Tx, businessID int64, id uuid.UUID) error {
	return markNoteVoidTx(ctx, tx, businessID, id)
}
