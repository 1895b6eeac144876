package fiscal

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/ledger/accounts"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// stubStore scripts the fiscal persistence surface. WithTx hands callbacks
// a nil pgx.Tx that no stub method touches; calls records the order of the
// operations a test cares about.
type stubStore struct {
	years       map[int64]Year
	openPeriods int64
	conflict    bool
	revenue     []ledger.AccountSum
	expense     []ledger.AccountSum

	calls         []string
	insertedYears []Year
	periods       []Period
	closedYears   []int64
	drafts        []OpeningBalance
	postedDrafts  []int64
	nextSeq       int64
}

func newStubStore(years ...Year) *stubStore {
	s := &stubStore{years: map[int64]Year{}}
	for _, y := range years {
		s.years[y.ID] = y
	}
	return s
}

func (s *stubStore) WithTx(ctx context.Context, fn func(pgx.Tx) error) error { return fn(nil) }

func (s *stubStore) ListYears(_ context.Context, businessID int64) ([]Year, error) {
	var out []Year
	for _, y := range s.years {
		if y.BusinessID == businessID {
			out = append(out, y)
		}
	}
	return out, nil
}

func (s *stubStore) GetYear(_ context.Context, businessID, yearID int64) (Year, error) {
	y, ok := s.years[yearID]
	if !ok || y.BusinessID != businessID {
		return Year{}, ErrYearNotFound
	}
	return y, nil
}

func (s *stubStore) GetCurrentYear(_ context.Context, businessID int64) (Year, error) {
	for _, y := range s.years {
		if y.BusinessID == businessID && y.IsCurrent {
			return y, nil
		}
	}
	return Year{}, ErrNoCurrentYear
}

func (s *stubStore) ListPeriods(context.Context, int64, int64) ([]Period, error) {
	return s.periods, nil
}

func (s *stubStore) LockYearCreationTx(_ context.Context, _ pgx.Tx, _ int64) error {
	s.calls = append(s.calls, "lock_creation")
	return nil
}

func (s *stubStore) YearRangeConflictTx(_ context.Context, _ pgx.Tx, _ int64, _, _ time.Time) (bool, error) {
	s.calls = append(s.calls, "range_conflict")
	return s.conflict, nil
}

func (s *stubStore) InsertYearTx(_ context.Context, _ pgx.Tx, businessID int64, in CreateYearInput) (Year, error) {
	s.calls = append(s.calls, "insert_year")
	y := Year{
		ID:         int64(len(s.insertedYears) + 1),
		BusinessID: businessID,
		Name:       in.Name,
		StartDate:  in.StartDate,
		EndDate:    in.EndDate,
	}
	s.insertedYears = append(s.insertedYears, y)
	s.years[y.ID] = y
	return y, nil
}

func (s *stubStore) InsertPeriodTx(_ context.Context, _ pgx.Tx, yearID int64, span PeriodSpan, isAdjustment bool) (Period, error) {
	p := Period{
		ID:           int64(len(s.periods) + 1),
		YearID:       yearID,
		Number:       span.Number,
		Name:         span.Name,
		StartDate:    span.StartDate,
		EndDate:      span.EndDate,
		IsAdjustment: isAdjustment,
	}
	s.periods = append(s.periods, p)
	return p, nil
}

func (s *stubStore) SetCurrentTx(_ context.Context, _ pgx.Tx, businessID, yearID int64) error {
	for id, y := range s.years {
		y.IsCurrent = id == yearID && y.BusinessID == businessID
		s.years[id] = y
	}
	return nil
}

func (s *stubStore) LockYearTx(_ context.Context, _ pgx.Tx, businessID, yearID int64) (Year, error) {
	return s.GetYear(context.Background(), businessID, yearID)
}

func (s *stubStore) LockPeriodTx(_ context.Context, _ pgx.Tx, _, periodID int64) (Period, error) {
	for _, p := range s.periods {
		if p.ID == periodID {
			return p, nil
		}
	}
	return Period{}, ErrPeriodNotFound
}

func (s *stubStore) MarkPeriodClosedTx(_ context.Context, _ pgx.Tx, periodID int64, at time.Time) error {
	for i, p := range s.periods {
		if p.ID == periodID {
			s.periods[i].IsClosed = true
			s.periods[i].ClosedAt = &at
		}
	}
	return nil
}

func (s *stubStore) MarkYearClosedTx(_ context.Context, _ pgx.Tx, yearID int64, at time.Time) error {
	y := s.years[yearID]
	y.IsClosed = true
	y.ClosedAt = &at
	s.years[yearID] = y
	s.closedYears = append(s.closedYears, yearID)
	return nil
}

func (s *stubStore) CountOpenRegularPeriodsTx(context.Context, pgx.Tx, int64) (int64, error) {
	return s.openPeriods, nil
}

func (s *stubStore) SumIncomeStatementTx(_ context.Context, _ pgx.Tx, _ int64, accountType string, _, _ time.Time) ([]ledger.AccountSum, error) {
	if accountType == string(accounts.AccountTypeRevenue) {
		return s.revenue, nil
	}
	return s.expense, nil
}

func (s *stubStore) EnsureSystemAccountTx(_ context.Context, _ pgx.Tx, businessID int64, kind accounts.SystemAccountKind) (accounts.Account, error) {
	// Fixed ids per kind keep assertions stable.
	ids := map[accounts.SystemAccountKind]int64{
		accounts.SystemRetainedEarnings:     900,
		accounts.SystemOpeningBalanceEquity: 901,
	}
	return accounts.Account{ID: ids[kind], BusinessID: businessID, IsActive: true}, nil
}

func (s *stubStore) GetAccountTx(_ context.Context, _ pgx.Tx, businessID, accountID int64) (accounts.Account, error) {
	return accounts.Account{ID: accountID, BusinessID: businessID, IsActive: true}, nil
}

func (s *stubStore) NextNumberTx(_ context.Context, _ pgx.Tx, _ int64, docType sequence.DocType) (string, error) {
	s.nextSeq++
	prefix, err := sequence.Prefix(docType)
	if err != nil {
		return "", err
	}
	return sequence.Format(prefix, s.nextSeq), nil
}

func (s *stubStore) InsertOpeningTx(_ context.Context, _ pgx.Tx, businessID, yearID int64, number string, in OpeningBalanceInput) (OpeningBalance, error) {
	o := OpeningBalance{
		ID:          int64(len(s.drafts) + 1),
		DocID:       uuid.NewString(),
		BusinessID:  businessID,
		YearID:      yearID,
		EntryNumber: number,
		EntryDate:   in.EntryDate,
		AccountID:   in.AccountID,
		Debit:       in.Debit.Round(2),
		Credit:      in.Credit.Round(2),
		Description: in.Description,
	}
	s.drafts = append(s.drafts, o)
	return o, nil
}

func (s *stubStore) ListOpeningBalances(context.Context, int64, int64) ([]OpeningBalance, error) {
	return s.drafts, nil
}

func (s *stubStore) LockUnpostedOpeningsTx(_ context.Context, _ pgx.Tx, businessID, yearID int64) ([]OpeningBalance, error) {
	var out []OpeningBalance
	for _, o := range s.drafts {
		if o.BusinessID == businessID && o.YearID == yearID && !o.IsPosted {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *stubStore) MarkOpeningPostedTx(_ context.Context, _ pgx.Tx, id int64) error {
	for i, o := range s.drafts {
		if o.ID == id {
			s.drafts[i].IsPosted = true
		}
	}
	s.postedDrafts = append(s.postedDrafts, id)
	return nil
}

// closeLedgerStore backs a real posting engine so the closing batch runs
// the full validation path. Every referenced account resolves as active.
type closeLedgerStore struct {
	entries []Entry
}

type Entry = ledger.Entry

func (m *closeLedgerStore) WithTx(ctx context.Context, fn func(pgx.Tx) error) error { return fn(nil) }

func (m *closeLedgerStore) AccountsForBatchTx(_ context.Context, _ pgx.Tx, businessID int64, ids []int64) (map[int64]accounts.Account, error) {
	out := make(map[int64]accounts.Account, len(ids))
	for _, id := range ids {
		out[id] = accounts.Account{ID: id, BusinessID: businessID, IsActive: true}
	}
	return out, nil
}

func (m *closeLedgerStore) InsertLineTx(_ context.Context, _ pgx.Tx, in ledger.PostingInput, line ledger.LineInput) (Entry, error) {
	e := Entry{
		ID:         int64(len(m.entries) + 1),
		BusinessID: in.BusinessID,
		AccountID:  line.AccountID,
		Debit:      line.Debit.Round(2),
		Credit:     line.Credit.Round(2),
		SourceType: in.SourceType,
		SourceID:   in.SourceID,
	}
	m.entries = append(m.entries, e)
	return e, nil
}

func (m *closeLedgerStore) DeleteForSourceTx(context.Context, pgx.Tx, int64, ledger.SourceType, uuid.UUID) (int64, error) {
	return 0, nil
}

func (m *closeLedgerStore) MirrorCashBookTx(context.Context, pgx.Tx, ledger.PostingInput, map[int64]accounts.Account) error {
	return nil
}

// adjustmentOnlyGuard simulates the state at year end: every regular period
// is closed, the year is still open.
type adjustmentOnlyGuard struct{}

func (adjustmentOnlyGuard) EnsureOpenForPosting(context.Context, pgx.Tx, int64, time.Time) error {
	return ledger.ErrPeriodClosed
}

func (adjustmentOnlyGuard) EnsureYearOpenForAdjustment(context.Context, pgx.Tx, int64, time.Time) error {
	return nil
}

func testAuthz() shared.AuthorizationContext {
	return shared.AuthorizationContext{BusinessID: 7, ActorID: 3, SelectedBranchID: 2}
}

func testYear() Year {
	return Year{
		ID:         1,
		BusinessID: 7,
		Name:       "FY2025",
		StartDate:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateYearChecksOverlapUnderCreationLock(t *testing.T) {
	store := newStubStore()
	store.conflict = true
	svc := NewService(store, nil, nil)

	_, _, err := svc.CreateYear(context.Background(), testAuthz(), CreateYearInput{
		Name:       "FY2026",
		StartDate:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		PeriodType: PeriodTypeMonthly,
	})
	assert.ErrorIs(t, err, ErrYearOverlap)
	// The lock precedes the check, and a conflict stops the insert.
	assert.Equal(t, []string{"lock_creation", "range_conflict"}, store.calls)
	assert.Empty(t, store.insertedYears)
}

func TestCreateYearGeneratesPeriods(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, nil, nil)

	year, periods, err := svc.CreateYear(context.Background(), testAuthz(), CreateYearInput{
		Name:                 "FY2026",
		StartDate:            time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:              time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		PeriodType:           PeriodTypeMonthly,
		WithAdjustmentPeriod: true,
		SetCurrent:           true,
	})
	require.NoError(t, err)
	require.Len(t, periods, 13)
	assert.True(t, periods[12].IsAdjustment)
	assert.True(t, year.IsCurrent)
}

func TestCloseYearRequiresAllPeriodsClosed(t *testing.T) {
	store := newStubStore(testYear())
	store.openPeriods = 2
	svc := NewService(store, nil, nil)

	_, err := svc.CloseYear(context.Background(), testAuthz(), 1, true)
	assert.ErrorIs(t, err, ErrPeriodsStillOpen)
	assert.Empty(t, store.closedYears)
}

func TestCloseYearAlreadyClosed(t *testing.T) {
	year := testYear()
	year.IsClosed = true
	store := newStubStore(year)
	svc := NewService(store, nil, nil)

	_, err := svc.CloseYear(context.Background(), testAuthz(), 1, true)
	assert.ErrorIs(t, err, ErrYearAlreadyClosed)
}

func TestCloseYearZeroesTemporaryAccounts(t *testing.T) {
	store := newStubStore(testYear())
	store.revenue = []ledger.AccountSum{{AccountID: 40, Debit: dec("0"), Credit: dec("1500.00")}}
	store.expense = []ledger.AccountSum{{AccountID: 50, Debit: dec("900.00"), Credit: dec("0")}}
	ledgerStore := &closeLedgerStore{}
	engine := ledger.NewEngine(ledgerStore, adjustmentOnlyGuard{}, nil, nil)
	svc := NewService(store, engine, nil)

	result, err := svc.CloseYear(context.Background(), testAuthz(), 1, true)
	require.NoError(t, err)
	assert.True(t, result.Posted)
	assert.True(t, result.NetIncome.Equal(dec("600.00")))
	assert.True(t, result.Year.IsClosed)
	assert.Equal(t, []int64{1}, store.closedYears)

	// Revenue is debited flat, expense credited flat, and Retained Earnings
	// takes the net income: each temporary account ends the year at zero.
	require.Len(t, ledgerStore.entries, 3)
	byAccount := map[int64]Entry{}
	for _, e := range ledgerStore.entries {
		assert.Equal(t, ledger.SourceYearClose, e.SourceType)
		byAccount[e.AccountID] = e
	}
	assert.True(t, byAccount[40].Debit.Equal(dec("1500.00")))
	assert.True(t, byAccount[50].Credit.Equal(dec("900.00")))
	assert.True(t, byAccount[900].Credit.Equal(dec("600.00")))
}

func TestCloseYearNetLossDebitsRetainedEarnings(t *testing.T) {
	store := newStubStore(testYear())
	store.revenue = []ledger.AccountSum{{AccountID: 40, Debit: dec("0"), Credit: dec("300.00")}}
	store.expense = []ledger.AccountSum{{AccountID: 50, Debit: dec("450.00"), Credit: dec("0")}}
	ledgerStore := &closeLedgerStore{}
	engine := ledger.NewEngine(ledgerStore, adjustmentOnlyGuard{}, nil, nil)
	svc := NewService(store, engine, nil)

	result, err := svc.CloseYear(context.Background(), testAuthz(), 1, true)
	require.NoError(t, err)
	assert.True(t, result.NetIncome.Equal(dec("-150.00")))
	byAccount := map[int64]Entry{}
	for _, e := range ledgerStore.entries {
		byAccount[e.AccountID] = e
	}
	assert.True(t, byAccount[900].Debit.Equal(dec("150.00")))
}

func TestCloseYearWithoutActivityPostsNothing(t *testing.T) {
	store := newStubStore(testYear())
	ledgerStore := &closeLedgerStore{}
	engine := ledger.NewEngine(ledgerStore, adjustmentOnlyGuard{}, nil, nil)
	svc := NewService(store, engine, nil)

	result, err := svc.CloseYear(context.Background(), testAuthz(), 1, true)
	require.NoError(t, err)
	assert.False(t, result.Posted)
	assert.True(t, result.NetIncome.IsZero())
	assert.Empty(t, ledgerStore.entries)
	assert.Equal(t, []int64{1}, store.closedYears)
}

func TestPostOpeningBalancesBalancesAgainstEquity(t *testing.T) {
	store := newStubStore(testYear())
	ledgerStore := &closeLedgerStore{}
	engine := ledger.NewEngine(ledgerStore, nil, nil, nil)
	svc := NewService(store, engine, nil)

	_, err := svc.BulkCreateOpeningBalances(context.Background(), testAuthz(), 1, []OpeningBalanceInput{
		{AccountID: 10, Debit: dec("250.00"), EntryDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{AccountID: 20, Credit: dec("80.00"), EntryDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)

	posted, err := svc.PostOpeningBalances(context.Background(), testAuthz(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, posted)
	require.Len(t, ledgerStore.entries, 4)
	assert.True(t, ledgerStore.entries[0].Debit.Equal(dec("250.00")))
	assert.Equal(t, int64(901), ledgerStore.entries[1].AccountID)
	assert.True(t, ledgerStore.entries[1].Credit.Equal(dec("250.00")))
	assert.Equal(t, int64(901), ledgerStore.entries[3].AccountID)
	assert.True(t, ledgerStore.entries[3].Debit.Equal(dec("80.00")))

	// A second run finds nothing unposted.
	posted, err = svc.PostOpeningBalances(context.Background(), testAuthz(), 1)
	require.NoError(t, err)
	assert.Zero(t, posted)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
