package accounts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type sinkSpy struct {
	records []shared.AuditLog
	err     error
}

func (s *sinkSpy) Record(_ context.Context, log shared.AuditLog) error {
	s.records = append(s.records, log)
	return s.err
}

func TestInvalidatingSinkBumpsVersionOnRecord(t *testing.T) {
	cache, cleanup := newTestCache(t)
	defer cleanup()
	ctx := context.Background()

	before, err := cache.Version(ctx)
	assert.NoError(t, err)

	spy := &sinkSpy{}
	sink := NewInvalidatingSink(spy, cache, nil)
	assert.NoError(t, sink.Record(ctx, shared.AuditLog{
		BusinessID: 1, ActorID: 2,
		Action: "invoice.create", Entity: "invoice", EntityID: "abc",
	}))

	after, err := cache.Version(ctx)
	assert.NoError(t, err)
	assert.Equal(t, before+1, after)
	assert.Len(t, spy.records, 1)
}

func TestInvalidatingSinkBumpsEvenWhenAuditWriteFails(t *testing.T) {
	cache, cleanup := newTestCache(t)
	defer cleanup()
	ctx := context.Background()

	before, err := cache.Version(ctx)
	assert.NoError(t, err)

	// The mutation is committed by the time Record runs; a failed audit
	// write must not leave stale balances behind.
	spy := &sinkSpy{err: errors.New("audit table unavailable")}
	sink := NewInvalidatingSink(spy, cache, nil)
	assert.Error(t, sink.Record(ctx, shared.AuditLog{Action: "x", Entity: "y", EntityID: "z"}))

	after, err := cache.Version(ctx)
	assert.NoError(t, err)
	assert.Equal(t, before+1, after)
}
