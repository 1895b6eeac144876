package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meridian-erp/meridian-erp/internal/ledger/accounts"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Store is the persistence surface the engine drives. *Repository is the
// Postgres implementation; engine tests substitute an in-memory stub. The
// pgx.Tx handle stays in the signatures so document services can compose
// their own writes with the ledger effect in one transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error
	AccountsForBatchTx(ctx context.Context, tx pgx.Tx, businessID int64, accountIDs []int64) (map[int64]accounts.Account, error)
	InsertLineTx(ctx context.Context, tx pgx.Tx, in PostingInput, line LineInput) (Entry, error)
	DeleteForSourceTx(ctx context.Context, tx pgx.Tx, businessID int64, sourceType SourceType, sourceID uuid.UUID) (int64, error)
	MirrorCashBookTx(ctx context.Context, tx pgx.Tx, in PostingInput, batchAccounts map[int64]accounts.Account) error
}

// WithTx runs fn inside one transaction against the repository's pool.
func (r *Repository) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return db.WithTx(ctx, r.db, fn)
}

// AccountsForBatchTx resolves every account a batch references.
func (r *Repository) AccountsForBatchTx(ctx context.Context, tx pgx.Tx, businessID int64, accountIDs []int64) (map[int64]accounts.Account, error) {
	return accounts.GetManyTx(ctx, tx, businessID, accountIDs)
}

func (r *Repository) InsertLineTx(ctx context.Context, tx pgx.Tx, in PostingInput, line LineInput) (Entry, error) {
	return InsertLineTx(ctx, tx, in, line)
}

func (r *Repository) DeleteForSourceTx(ctx context.Context, tx pgx.Tx, businessID int64, sourceType SourceType, sourceID uuid.UUID) (int64, error) {
	return DeleteForSourceTx(ctx, tx, businessID, sourceType, sourceID)
}

func (r *Repository) MirrorCashBookTx(ctx context.Context, tx pgx.Tx, in PostingInput, batchAccounts map[int64]accounts.Account) error {
	return mirrorCashBook(ctx, tx, in, batchAccounts)
}
