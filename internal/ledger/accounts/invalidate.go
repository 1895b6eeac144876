package accounts

import (
	"context"
	"log/slog"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// InvalidatingSink wraps an audit sink and drops cached balances whenever a
// mutation is recorded. Services record audit only after their transaction
// has committed, which makes the sink the earliest safe point to
// invalidate: bumping from inside the transaction would let a concurrent
// read repopulate the cache from pre-commit state and serve balances for a
// posting that may yet roll back.
type InvalidatingSink struct {
	next   shared.AuditSink
	cache  *Cache
	logger *slog.Logger
}

func NewInvalidatingSink(next shared.AuditSink, cache *Cache, logger *slog.Logger) *InvalidatingSink {
	return &InvalidatingSink{next: next, cache: cache, logger: logger}
}

// Record forwards to the wrapped sink and bumps the balance cache version.
// The mutation is already committed by the time Record runs, so the bump
// happens even when the audit write itself fails.
func (s *InvalidatingSink) Record(ctx context.Context, log shared.AuditLog) error {
	var recordErr error
	if s.next != nil {
		recordErr = s.next.Record(ctx, log)
	}
	if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("balance cache bump", slog.Any("error", err))
	}
	return recordErr
}
