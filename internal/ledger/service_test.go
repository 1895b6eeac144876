package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger/accounts"
)

// memStore keeps posted rows in memory. Its WithTx hands callbacks a nil
// pgx.Tx that no stub method touches.
type memStore struct {
	accounts map[int64]accounts.Account
	entries  []Entry
	nextID   int64
	mirrors  int
	deletes  int
}

func newMemStore(accts ...accounts.Account) *memStore {
	m := &memStore{accounts: make(map[int64]accounts.Account, len(accts))}
	for _, a := range accts {
		m.accounts[a.ID] = a
	}
	return m
}

func (m *memStore) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return fn(nil)
}

func (m *memStore) AccountsForBatchTx(_ context.Context, _ pgx.Tx, businessID int64, ids []int64) (map[int64]accounts.Account, error) {
	out := make(map[int64]accounts.Account, len(ids))
	for _, id := range ids {
		a, ok := m.accounts[id]
		if !ok || a.BusinessID != businessID {
			return nil, accounts.ErrAccountNotFound
		}
		out[id] = a
	}
	return out, nil
}

func (m *memStore) InsertLineTx(_ context.Context, _ pgx.Tx, in PostingInput, line LineInput) (Entry, error) {
	m.nextID++
	entry := Entry{
		ID:              m.nextID,
		BusinessID:      in.BusinessID,
		BranchID:        in.BranchID,
		TransactionDate: in.Date,
		Description:     line.Description,
		Reference:       in.Reference,
		Debit:           line.Debit.Round(2),
		Credit:          line.Credit.Round(2),
		AccountID:       line.AccountID,
		SourceType:      in.SourceType,
		SourceID:        in.SourceID,
	}
	m.entries = append(m.entries, entry)
	return entry, nil
}

func (m *memStore) DeleteForSourceTx(_ context.Context, _ pgx.Tx, businessID int64, sourceType SourceType, sourceID uuid.UUID) (int64, error) {
	m.deletes++
	kept := m.entries[:0]
	var removed int64
	for _, e := range m.entries {
		if e.BusinessID == businessID && e.SourceType == sourceType && e.SourceID == sourceID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return removed, nil
}

func (m *memStore) MirrorCashBookTx(_ context.Context, _ pgx.Tx, _ PostingInput, _ map[int64]accounts.Account) error {
	m.mirrors++
	return nil
}

func (m *memStore) forSource(sourceID uuid.UUID) []Entry {
	var out []Entry
	for _, e := range m.entries {
		if e.SourceID == sourceID {
			out = append(out, e)
		}
	}
	return out
}

// stubGuard scripts the period gate per call kind.
type stubGuard struct {
	postingErr    error
	adjustmentErr error
}

func (g stubGuard) EnsureOpenForPosting(context.Context, pgx.Tx, int64, time.Time) error {
	return g.postingErr
}

func (g stubGuard) EnsureYearOpenForAdjustment(context.Context, pgx.Tx, int64, time.Time) error {
	return g.adjustmentErr
}

type recorderSpy struct {
	accepted   int
	lines      int
	rejections map[string]int
}

func (r *recorderSpy) PostingAccepted(_ string, lines int) {
	r.accepted++
	r.lines += lines
}

func (r *recorderSpy) PostingRejected(_, reason string) {
	if r.rejections == nil {
		r.rejections = map[string]int{}
	}
	r.rejections[reason]++
}

func activeAccount(id int64) accounts.Account {
	return accounts.Account{ID: id, BusinessID: 1, IsActive: true}
}

func TestEnginePostWritesBalancedBatch(t *testing.T) {
	store := newMemStore(activeAccount(10), activeAccount(20))
	spy := &recorderSpy{}
	engine := NewEngine(store, stubGuard{}, spy, nil)

	entries, err := engine.Post(context.Background(), validInput())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Len(t, store.entries, 2)
	assert.Equal(t, 1, store.mirrors)
	assert.Equal(t, 1, spy.accepted)
	assert.Equal(t, 2, spy.lines)
}

func TestEnginePostRejectsClosedPeriodAtomically(t *testing.T) {
	store := newMemStore(activeAccount(10), activeAccount(20))
	spy := &recorderSpy{}
	engine := NewEngine(store, stubGuard{postingErr: ErrPeriodClosed}, spy, nil)

	_, err := engine.Post(context.Background(), validInput())
	assert.ErrorIs(t, err, ErrPeriodClosed)
	// Nothing reached the store: no lines, no cash-book mirror.
	assert.Empty(t, store.entries)
	assert.Zero(t, store.mirrors)
	assert.Equal(t, 1, spy.rejections["period"])
}

func TestEnginePostAdjustmentBypassesPeriodGate(t *testing.T) {
	// A closed covering period blocks regular postings, but an adjustment
	// batch is gated on the year flag alone.
	store := newMemStore(activeAccount(10), activeAccount(20))
	engine := NewEngine(store, stubGuard{postingErr: ErrPeriodClosed}, nil, nil)

	in := validInput()
	in.Adjustment = true
	entries, err := engine.Post(context.Background(), in)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	closedYear := stubGuard{postingErr: ErrPeriodClosed, adjustmentErr: ErrPeriodClosed}
	engine = NewEngine(newMemStore(activeAccount(10), activeAccount(20)), closedYear, nil, nil)
	_, err = engine.Post(context.Background(), in)
	assert.ErrorIs(t, err, ErrPeriodClosed)
}

func TestEnginePostRejectsInactiveAccount(t *testing.T) {
	inactive := activeAccount(20)
	inactive.IsActive = false
	store := newMemStore(activeAccount(10), inactive)
	spy := &recorderSpy{}
	engine := NewEngine(store, stubGuard{}, spy, nil)

	_, err := engine.Post(context.Background(), validInput())
	assert.ErrorIs(t, err, ErrInactiveAccount)
	assert.Empty(t, store.entries)
	assert.Equal(t, 1, spy.rejections["account"])
}

func TestEnginePostRejectsUnbalancedBeforeStore(t *testing.T) {
	store := newMemStore(activeAccount(10), activeAccount(20))
	spy := &recorderSpy{}
	engine := NewEngine(store, stubGuard{}, spy, nil)

	in := validInput()
	in.Lines[1].Credit = dec("109.99")
	_, err := engine.Post(context.Background(), in)
	assert.ErrorIs(t, err, ErrUnbalanced)
	assert.Empty(t, store.entries)
	assert.Equal(t, 1, spy.rejections["validation"])
}

func TestEngineRepostIsIdempotent(t *testing.T) {
	store := newMemStore(activeAccount(10), activeAccount(20), activeAccount(30))
	engine := NewEngine(store, stubGuard{}, nil, nil)

	in := validInput()
	_, err := engine.Post(context.Background(), in)
	require.NoError(t, err)

	// The document is amended: same source, a different line set.
	in.Lines = []LineInput{
		{AccountID: 10, Debit: dec("90.00")},
		{AccountID: 30, Debit: dec("20.00")},
		{AccountID: 20, Credit: dec("110.00")},
	}
	_, err = engine.Repost(context.Background(), in)
	require.NoError(t, err)
	first := store.forSource(in.SourceID)
	require.Len(t, first, 3)

	// Reposting the same input again replaces, never accumulates.
	_, err = engine.Repost(context.Background(), in)
	require.NoError(t, err)
	second := store.forSource(in.SourceID)
	require.Len(t, second, 3)
	for i := range first {
		assert.Equal(t, first[i].AccountID, second[i].AccountID)
		assert.True(t, first[i].Debit.Equal(second[i].Debit))
		assert.True(t, first[i].Credit.Equal(second[i].Credit))
	}
	assert.Len(t, store.entries, 3)
}

func TestEngineDeleteForSourceChecksPeriod(t *testing.T) {
	store := newMemStore(activeAccount(10), activeAccount(20))
	engine := NewEngine(store, stubGuard{}, nil, nil)

	in := validInput()
	_, err := engine.Post(context.Background(), in)
	require.NoError(t, err)

	closed := NewEngine(store, stubGuard{postingErr: ErrPeriodClosed}, nil, nil)
	err = closed.DeleteForSource(context.Background(), in.BusinessID, in.SourceType, in.SourceID, in.Date)
	assert.ErrorIs(t, err, ErrPeriodClosed)
	assert.Len(t, store.entries, 2)

	err = engine.DeleteForSource(context.Background(), in.BusinessID, in.SourceType, in.SourceID, in.Date)
	require.NoError(t, err)
	assert.Empty(t, store.entries)
}
