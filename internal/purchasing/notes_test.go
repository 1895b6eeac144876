package purchasing

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

const (
	stubVATReceivable  int64 = 710
	stubAccountsPay    int64 = 711
	stubVendorAdvances int64 = 712
)

// stubStore keeps bills and notes in memory. WithTx passes a nil pgx.Tx
// that no stub method dereferences.
type stubStore struct {
	bills      map[uuid.UUID]Bill
	lines      map[uuid.UUID][]BillLine
	notes      map[uuid.UUID]DebitNote
	noteLines  map[uuid.UUID][]NoteLine
	accounts   map[int64]accounts.Account
	vatClaimed decimal.Decimal
	nextSeq    int64
}

func newStubStore() *stubStore {
	return &stubStore{
		bills:     map[uuid.UUID]Bill{},
		lines:     map[uuid.UUID][]BillLine{},
		notes:     map[uuid.UUID]DebitNote{},
		noteLines: map[uuid.UUID][]NoteLine{},
		accounts:  map[int64]accounts.Account{},
	}
}

func (s *stubStore) addBill(b Bill) {
	s.bills[b.ID] = b
	s.lines[b.ID] = b.Lines
}

func (s *stubStore) addNote(n DebitNote) {
	s.notes[n.ID] = n
	s.noteLines[n.ID] = n.Lines
}

func (s *stubStore) WithTx(ctx context.Context, fn func(pgx.Tx) error) error { return fn(nil) }

func (s *stubStore) GetAccountsTx(_ context.Context, _ pgx.Tx, businessID int64, ids []int64) (map[int64]accounts.Account, error) {
	out := make(map[int64]accounts.Account, len(ids))
	for _, id := range ids {
		a, ok := s.accounts[id]
		if !ok {
			a = accounts.Account{ID: id, BusinessID: businessID, IsActive: true}
		}
		out[id] = a
	}
	return out, nil
}

func (s *stubStore) GetAccountTx(_ context.Context, _ pgx.Tx, businessID, id int64) (accounts.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return accounts.Account{ID: id, BusinessID: businessID, IsActive: true}, nil
	}
	return a, nil
}

func (s *stubStore) EnsureSystemAccountTx(_ context.Context, _ pgx.Tx, businessID int64, kind accounts.SystemAccountKind) (accounts.Account, error) {
	ids := map[accounts.SystemAccountKind]int64{
		accounts.SystemVATReceivable:   stubVATReceivable,
		accounts.SystemAccountsPayable: stubAccountsPay,
		accounts.SystemVendorAdvances:  stubVendorAdvances,
	}
	return accounts.Account{ID: ids[kind], BusinessID: businessID, IsActive: true}, nil
}

func (s *stubStore) EnsureSufficientFundsTx(context.Context, pgx.Tx, accounts.Account, decimal.Decimal) error {
	return nil
}

func (s *stubStore) NextNumberTx(_ context.Context, _ pgx.Tx, _ int64, docType sequence.DocType) (string, error) {
	s.nextSeq++
	prefix, err := sequence.Prefix(docType)
	if err != nil {
		return "", err
	}
	return sequence.Format(prefix, s.nextSeq), nil
}

func (s *stubStore) InsertBillTx(_ context.Context, _ pgx.Tx, b Bill) (Bill, error) {
	s.bills[b.ID] = b
	return b, nil
}

func (s *stubStore) InsertBillLineTx(_ context.Context, _ pgx.Tx, l BillLine) (BillLine, error) {
	l.ID = int64(len(s.lines[l.BillID]) + 1)
	s.lines[l.BillID] = append(s.lines[l.BillID], l)
	return l, nil
}

func (s *stubStore) LockBillTx(_ context.Context, _ pgx.Tx, businessID int64, id uuid.UUID) (Bill, error) {
	b, ok := s.bills[id]
	if !ok || b.BusinessID != businessID {
		return Bill{}, ErrBillNotFound
	}
	b.Lines = nil
	return b, nil
}

func (s *stubStore) BillLinesTx(_ context.Context, _ pgx.Tx, billID uuid.UUID) ([]BillLine, error) {
	return s.lines[billID], nil
}

func (s *stubStore) UpdateBillSettlementTx(_ context.Context, _ pgx.Tx, b Bill) error {
	stored := s.bills[b.ID]
	stored.PaidAmount = b.PaidAmount
	stored.ReturnedAmount = b.ReturnedAmount
	stored.Status = b.Status
	s.bills[b.ID] = stored
	return nil
}

func (s *stubStore) AddReturnedQuantityTx(_ context.Context, _ pgx.Tx, lineID int64, qty decimal.Decimal) error {
	for billID, lines := range s.lines {
		for i, l := range lines {
			if l.ID == lineID {
				s.lines[billID][i].ReturnedQuantity = l.ReturnedQuantity.Add(qty)
			}
		}
	}
	return nil
}

func (s *stubStore) GetBill(_ context.Context, businessID int64, id uuid.UUID) (Bill, error) {
	b, ok := s.bills[id]
	if !ok || b.BusinessID != businessID {
		return Bill{}, ErrBillNotFound
	}
	b.Lines = s.lines[id]
	return b, nil
}

func (s *stubStore) ListBills(context.Context, int64, BillStatus, int, int) ([]Bill, error) {
	return nil, nil
}

func (s *stubStore) InsertPaymentTx(_ context.Context, _ pgx.Tx, p Payment) (Payment, error) {
	return p, nil
}

func (s *stubStore) ListPayments(context.Context, int64, uuid.UUID) ([]Payment, error) {
	return nil, nil
}

func (s *stubStore) InsertNoteTx(_ context.Context, _ pgx.Tx, n DebitNote) (DebitNote, error) {
	s.notes[n.ID] = n
	return n, nil
}

func (s *stubStore) InsertNoteLineTx(_ context.Context, _ pgx.Tx, l NoteLine) (NoteLine, error) {
	l.ID = int64(len(s.noteLines[l.NoteID]) + 1)
	s.noteLines[l.NoteID] = append(s.noteLines[l.NoteID], l)
	return l, nil
}

func (s *stubStore) LockNoteTx(_ context.Context, _ pgx.Tx, businessID int64, id uuid.UUID) (DebitNote, error) {
	n, ok := s.notes[id]
	if !ok || n.BusinessID != businessID {
		return DebitNote{}, ErrNoteNotFound
	}
	n.Lines = nil
	return n, nil
}

func (s *stubStore) NoteLinesTx(_ context.Context, _ pgx.Tx, noteID uuid.UUID) ([]NoteLine, error) {
	return s.noteLines[noteID], nil
}

func (s *stubStore) NoteVATSoFarTx(_ context.Context, _ pgx.Tx, _ uuid.UUID) (decimal.Decimal, error) {
	return s.vatClaimed, nil
}

func (s *stubStore) MarkNoteAppliedTx(_ context.Context, _ pgx.Tx, n DebitNote) error {
	stored := s.notes[n.ID]
	stored.Status = n.Status
	stored.RefundMethod = n.RefundMethod
	stored.RefundAccountID = n.RefundAccountID
	stored.AppliedAt = n.AppliedAt
	s.notes[n.ID] = stored
	return nil
}

func (s *stubStore) MarkNoteVoidTx(_ context.Context, _ pgx.Tx, _ int64, id uuid.UUID) error {
	n := s.notes[id]
	n.Status = NoteStatusVoid
	s.notes[id] = n
	return nil
}

func (s *stubStore) GetNote(_ context.Context, businessID int64, id uuid.UUID) (DebitNote, error) {
	n, ok := s.notes[id]
	if !ok || n.BusinessID != businessID {
		return DebitNote{}, ErrNoteNotFound
	}
	n.Lines = s.noteLines[id]
	return n, nil
}

func (s *stubStore) ListNotes(context.Context, int64, uuid.UUID) ([]DebitNote, error) {
	return nil, nil
}

// recordingLedgerStore backs a real posting engine and keeps the entries.
type recordingLedgerStore struct {
	entries []ledger.Entry
}

func (m *recordingLedgerStore) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return fn(nil)
}

func (m *recordingLedgerStore) AccountsForBatchTx(_ context.Context, _ pgx.Tx, businessID int64, ids []int64) (map[int64]accounts.Account, error) {
	out := make(map[int64]accounts.Account, len(ids))
	for _, id := range ids {
		out[id] = accounts.Account{ID: id, BusinessID: businessID, IsActive: true}
	}
	return out, nil
}

func (m *recordingLedgerStore) InsertLineTx(_ context.Context, _ pgx.Tx, in ledger.PostingInput, line ledger.LineInput) (ledger.Entry, error) {
	e := ledger.Entry{
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

func (m *recordingLedgerStore) DeleteForSourceTx(context.Context, pgx.Tx, int64, ledger.SourceType, uuid.UUID) (int64, error) {
	return 0, nil
}

func (m *recordingLedgerStore) MirrorCashBookTx(context.Context, pgx.Tx, ledger.PostingInput, map[int64]accounts.Account) error {
	return nil
}

func (m *recordingLedgerStore) byAccount() map[int64]ledger.Entry {
	out := map[int64]ledger.Entry{}
	for _, e := range m.entries {
		out[e.AccountID] = e
	}
	return out
}

func noteAuthz() shared.AuthorizationContext {
	return shared.AuthorizationContext{BusinessID: 7, ActorID: 3, SelectedBranchID: 2}
}

func noteFixture(store *stubStore, paid string) (Bill, DebitNote) {
	bill := sampleBill()
	bill.BusinessID = 7
	bill.BranchID = 2
	bill.PaidAmount = dec(paid)
	store.addBill(bill)

	note := DebitNote{
		ID:          uuid.New(),
		BusinessID:  7,
		BranchID:    2,
		BillID:      bill.ID,
		Number:      "DN-00001",
		NoteDate:    time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		Status:      NoteStatusOpen,
		SubTotal:    dec("100.00"),
		VATAmount:   dec("15.00"),
		TotalAmount: dec("115.00"),
		Lines: []NoteLine{
			{ID: 1, BillLineID: 1, AccountID: 10, Quantity: dec("2"), UnitPrice: dec("50.00"), Amount: dec("100.00")},
		},
	}
	store.addNote(note)
	return bill, note
}

func newNoteService(store *stubStore) (*Service, *recordingLedgerStore) {
	ledgerStore := &recordingLedgerStore{}
	engine := ledger.NewEngine(ledgerStore, nil, nil, nil)
	return NewService(store, engine, nil, nil), ledgerStore
}

func TestApplyNoteReversesBillPosting(t *testing.T) {
	store := newStubStore()
	bill, note := noteFixture(store, "0")
	svc, ledgerStore := newNoteService(store)

	applied, err := svc.ApplyNote(context.Background(), noteAuthz(), note.ID, ApplyInput{RefundMethod: RefundNone})
	require.NoError(t, err)
	assert.Equal(t, NoteStatusApplied, applied.Status)

	// The bill debited expense and VAT; the note credits them back and
	// debits AP for the full amount since nothing was paid.
	require.Len(t, ledgerStore.entries, 3)
	byAccount := ledgerStore.byAccount()
	assert.True(t, byAccount[10].Credit.Equal(dec("100.00")))
	assert.True(t, byAccount[stubVATReceivable].Credit.Equal(dec("15.00")))
	assert.True(t, byAccount[stubAccountsPay].Debit.Equal(dec("115.00")))
	assert.Equal(t, ledger.SourceDebitNote, ledgerStore.entries[0].SourceType)

	stored, err := store.GetBill(context.Background(), 7, bill.ID)
	require.NoError(t, err)
	assert.True(t, stored.ReturnedAmount.Equal(dec("115.00")))
	assert.True(t, stored.Lines[0].ReturnedQuantity.Equal(dec("2")))
}

func TestApplyNoteRefundsCashFromPaidBill(t *testing.T) {
	store := newStubStore()
	store.accounts[20] = accounts.Account{ID: 20, BusinessID: 7, IsActive: true, IsCashBank: true}
	_, note := noteFixture(store, "345.00")
	svc, ledgerStore := newNoteService(store)

	_, err := svc.ApplyNote(context.Background(), noteAuthz(), note.ID, ApplyInput{
		RefundMethod: RefundCash, RefundAccountID: 20,
	})
	require.NoError(t, err)

	// Fully paid bill leaves nothing on AP; the vendor's refund comes back
	// into the cash account.
	byAccount := ledgerStore.byAccount()
	assert.True(t, byAccount[20].Debit.Equal(dec("115.00")))
	_, hasAP := byAccount[stubAccountsPay]
	assert.False(t, hasAP)
}

func TestApplyNoteRejectsNonCashRefundAccount(t *testing.T) {
	store := newStubStore()
	store.accounts[21] = accounts.Account{ID: 21, BusinessID: 7, IsActive: true, IsCashBank: false}
	_, note := noteFixture(store, "345.00")
	svc, ledgerStore := newNoteService(store)

	_, err := svc.ApplyNote(context.Background(), noteAuthz(), note.ID, ApplyInput{
		RefundMethod: RefundCash, RefundAccountID: 21,
	})
	assert.ErrorIs(t, err, ErrPaidFromNotCash)
	assert.Empty(t, ledgerStore.entries)
}

func TestProrateNoteVATNeverOverclaims(t *testing.T) {
	// Four quarter returns against a bill carrying 0.02 of VAT: naive
	// proration rounds each share to 0.01 and claims 0.04 in total, driving
	// the completing note negative. The cap keeps the series at
	// 0.01, 0.01, 0.00, 0.00.
	docVAT := dec("0.02")
	docSubTotal := dec("100.00")
	quarter := dec("25.00")

	claimed := decimal.Zero
	var shares []decimal.Decimal
	for i := 0; i < 4; i++ {
		share := prorateNoteVAT(docVAT, docSubTotal, quarter, claimed, i == 3)
		assert.False(t, share.IsNegative())
		claimed = claimed.Add(share)
		shares = append(shares, share)
	}
	assert.True(t, shares[0].Equal(dec("0.01")))
	assert.True(t, shares[1].Equal(dec("0.01")))
	assert.True(t, shares[2].IsZero())
	assert.True(t, shares[3].IsZero())
	assert.True(t, claimed.Equal(docVAT))
}

func TestCreateNoteVATCappedAtUnclaimedRemainder(t *testing.T) {
	store := newStubStore()
	bill := sampleBill()
	bill.BusinessID = 7
	bill.BranchID = 2
	store.addBill(bill)
	store.vatClaimed = dec("44.50")
	svc, _ := newNoteService(store)

	note, err := svc.CreateNote(context.Background(), noteAuthz(), bill.ID, NoteInput{
		NoteDate: time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		Items:    []ReturnItem{{BillLineID: 1, Quantity: dec("2")}},
	})
	require.NoError(t, err)
	// Pro-rata would be 15.00; only 0.50 of the bill's VAT is unclaimed.
	assert.True(t, note.VATAmount.Equal(dec("0.50")))
	assert.True(t, note.TotalAmount.Equal(dec("100.50")))
}
