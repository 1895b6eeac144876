package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PeriodGuard is consulted before any line is accepted. The check runs
// inside the posting transaction and locks the period row, so a concurrent
// close-period cannot commit underneath an in-flight post.
type PeriodGuard interface {
	EnsureOpenForPosting(ctx context.Context, tx pgx.Tx, businessID int64, date time.Time) error
	// EnsureYearOpenForAdjustment gates adjustment batches: the covering
	// period may be closed as long as the year is still open.
	EnsureYearOpenForAdjustment(ctx context.Context, tx pgx.Tx, businessID int64, date time.Time) error
}

// Recorder receives posting metrics. Nil-safe at the call sites.
type Recorder interface {
	PostingAccepted(sourceType string, lines int)
	PostingRejected(sourceType, reason string)
}

// Engine validates and persists balanced batches. It re-checks the balance
// invariant on every call rather than trusting adapters.
type Engine struct {
	store   Store
	guard   PeriodGuard
	metrics Recorder
	logger  *slog.Logger
}

func NewEngine(store Store, guard PeriodGuard, metrics Recorder, logger *slog.Logger) *Engine {
	return &Engine{store: store, guard: guard, metrics: metrics, logger: logger}
}

// Post writes one balanced batch in its own transaction.
func (e *Engine) Post(ctx context.Context, in PostingInput) ([]Entry, error) {
	var entries []Entry
	err := e.store.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		entries, err = e.PostInTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// PostInTx writes one balanced batch inside the caller's transaction so the
// document row and its ledger effect commit or roll back together.
func (e *Engine) PostInTx(ctx context.Context, tx pgx.Tx, in PostingInput) ([]Entry, error) {
	if err := in.Validate(); err != nil {
		e.reject(in.SourceType, "validation")
		return nil, err
	}
	if e.guard != nil {
		ensure := e.guard.EnsureOpenForPosting
		if in.Adjustment {
			ensure = e.guard.EnsureYearOpenForAdjustment
		}
		if err := ensure(ctx, tx, in.BusinessID, in.Date); err != nil {
			e.reject(in.SourceType, "period")
			return nil, err
		}
	}
	accountIDs := make([]int64, 0, len(in.Lines))
	for _, line := range in.Lines {
		accountIDs = append(accountIDs, line.AccountID)
	}
	batchAccounts, err := e.store.AccountsForBatchTx(ctx, tx, in.BusinessID, accountIDs)
	if err != nil {
		e.reject(in.SourceType, "account")
		return nil, err
	}
	for _, account := range batchAccounts {
		if !account.IsActive {
			e.reject(in.SourceType, "account")
			return nil, ErrInactiveAccount
		}
	}

	entries := make([]Entry, 0, len(in.Lines))
	for _, line := range in.Lines {
		entry, err := e.store.InsertLineTx(ctx, tx, in, line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := e.store.MirrorCashBookTx(ctx, tx, in, batchAccounts); err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.PostingAccepted(string(in.SourceType), len(entries))
	}
	if e.logger != nil {
		e.logger.Debug("ledger batch posted",
			slog.Int64("business_id", in.BusinessID),
			slog.String("source_type", string(in.SourceType)),
			slog.String("source_id", in.SourceID.String()),
			slog.Int("lines", len(entries)))
	}
	return entries, nil
}

// Repost atomically replaces the full line set for a source document.
// Calling it twice with the same input yields the same final rows.
func (e *Engine) Repost(ctx context.Context, in PostingInput) ([]Entry, error) {
	var entries []Entry
	err := e.store.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		entries, err = e.RepostInTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// RepostInTx deletes the source's existing lines and posts the new set in
// the caller's transaction.
func (e *Engine) RepostInTx(ctx context.Context, tx pgx.Tx, in PostingInput) ([]Entry, error) {
	if _, err := e.store.DeleteForSourceTx(ctx, tx, in.BusinessID, in.SourceType, in.SourceID); err != nil {
		return nil, err
	}
	return e.PostInTx(ctx, tx, in)
}

// DeleteForSource removes the ledger effect of a deleted document. The
// period covering the document's original date must still be open.
func (e *Engine) DeleteForSource(ctx context.Context, businessID int64, sourceType SourceType, sourceID uuid.UUID, date time.Time) error {
	return e.store.WithTx(ctx, func(tx pgx.Tx) error {
		return e.DeleteForSourceInTx(ctx, tx, businessID, sourceType, sourceID, date)
	})
}

// DeleteForSourceInTx is the tx-scoped variant of DeleteForSource.
func (e *Engine) DeleteForSourceInTx(ctx context.Context, tx pgx.Tx, businessID int64, sourceType SourceType, sourceID uuid.UUID, date time.Time) error {
	if e.guard != nil && !date.IsZero() {
		if err := e.guard.EnsureOpenForPosting(ctx, tx, businessID, date); err != nil {
			return err
		}
	}
	_, err := e.store.DeleteForSourceTx(ctx, tx, businessID, sourceType, sourceID)
	return err
}

func (e *Engine) reject(sourceType SourceType, reason string) {
	if e.metrics != nil {
		e.metrics.PostingRejected(string(sourceType), reason)
	}
}
