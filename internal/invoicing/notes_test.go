package invoicing

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

// System account ids handed out by the stub, stable across a test.
const (
	stubVATPayable      int64 = 700
	stubAccountsRecv    int64 = 701
	stubCustomerCredits int64 = 702
)

// stubStore keeps invoices and notes in memory. WithTx passes a nil pgx.Tx
// that no stub method dereferences.
type stubStore struct {
	invoices   map[uuid.UUID]Invoice
	lines      map[uuid.UUID][]InvoiceLine
	notes      map[uuid.UUID]CreditNote
	noteLines  map[uuid.UUID][]NoteLine
	accounts   map[int64]accounts.Account
	vatClaimed decimal.Decimal
	fundsErr   error
	nextSeq    int64
}

func newStubStore() *stubStore {
	return &stubStore{
		invoices:  map[uuid.UUID]Invoice{},
		lines:     map[uuid.UUID][]InvoiceLine{},
		notes:     map[uuid.UUID]CreditNote{},
		noteLines: map[uuid.UUID][]NoteLine{},
		accounts:  map[int64]accounts.Account{},
	}
}

func (s *stubStore) addInvoice(inv Invoice) {
	s.invoices[inv.ID] = inv
	s.lines[inv.ID] = inv.Lines
}

func (s *stubStore) addNote(n CreditNote) {
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
		accounts.SystemVATPayable:         stubVATPayable,
		accounts.SystemAccountsReceivable: stubAccountsRecv,
		accounts.SystemCustomerCredits:    stubCustomerCredits,
	}
	return accounts.Account{ID: ids[kind], BusinessID: businessID, IsActive: true}, nil
}

func (s *stubStore) EnsureSufficientFundsTx(_ context.Context, _ pgx.Tx, _ accounts.Account, _ decimal.Decimal) error {
	return s.fundsErr
}

func (s *stubStore) NextNumberTx(_ context.Context, _ pgx.Tx, _ int64, docType sequence.DocType) (string, error) {
	s.nextSeq++
	prefix, err := sequence.Prefix(docType)
	if err != nil {
		return "", err
	}
	return sequence.Format(prefix, s.nextSeq), nil
}

func (s *stubStore) InsertInvoiceTx(_ context.Context, _ pgx.Tx, inv Invoice) (Invoice, error) {
	s.invoices[inv.ID] = inv
	return inv, nil
}

func (s *stubStore) InsertInvoiceLineTx(_ context.Context, _ pgx.Tx, l InvoiceLine) (InvoiceLine, error) {
	l.ID = int64(len(s.lines[l.InvoiceID]) + 1)
	s.lines[l.InvoiceID] = append(s.lines[l.InvoiceID], l)
	return l, nil
}

func (s *stubStore) LockInvoiceTx(_ context.Context, _ pgx.Tx, businessID int64, id uuid.UUID) (Invoice, error) {
	inv, ok := s.invoices[id]
	if !ok || inv.BusinessID != businessID {
		return Invoice{}, ErrInvoiceNotFound
	}
	inv.Lines = nil
	return inv, nil
}

func (s *stubStore) InvoiceLinesTx(_ context.Context, _ pgx.Tx, invoiceID uuid.UUID) ([]InvoiceLine, error) {
	return s.lines[invoiceID], nil
}

func (s *stubStore) UpdateInvoiceSettlementTx(_ context.Context, _ pgx.Tx, inv Invoice) error {
	stored := s.invoices[inv.ID]
	stored.ReceivedAmount = inv.ReceivedAmount
	stored.ReturnedAmount = inv.ReturnedAmount
	stored.Status = inv.Status
	s.invoices[inv.ID] = stored
	return nil
}

func (s *stubStore) AddReturnedQuantityTx(_ context.Context, _ pgx.Tx, lineID int64, qty decimal.Decimal) error {
	for invoiceID, lines := range s.lines {
		for i, l := range lines {
			if l.ID == lineID {
				s.lines[invoiceID][i].ReturnedQuantity = l.ReturnedQuantity.Add(qty)
			}
		}
	}
	return nil
}

func (s *stubStore) GetInvoice(_ context.Context, businessID int64, id uuid.UUID) (Invoice, error) {
	inv, ok := s.invoices[id]
	if !ok || inv.BusinessID != businessID {
		return Invoice{}, ErrInvoiceNotFound
	}
	inv.Lines = s.lines[id]
	return inv, nil
}

func (s *stubStore) ListInvoices(context.Context, int64, InvoiceStatus, int, int) ([]Invoice, error) {
	return nil, nil
}

func (s *stubStore) InsertReceiptTx(_ context.Context, _ pgx.Tx, rc Receipt) (Receipt, error) {
	return rc, nil
}

func (s *stubStore) ListReceipts(context.Context, int64, uuid.UUID) ([]Receipt, error) {
	return nil, nil
}

func (s *stubStore) InsertNoteTx(_ context.Context, _ pgx.Tx, n CreditNote) (CreditNote, error) {
	s.notes[n.ID] = n
	return n, nil
}

func (s *stubStore) InsertNoteLineTx(_ context.Context, _ pgx.Tx, l NoteLine) (NoteLine, error) {
	l.ID = int64(len(s.noteLines[l.NoteID]) + 1)
	s.noteLines[l.NoteID] = append(s.noteLines[l.NoteID], l)
	return l, nil
}

func (s *stubStore) LockNoteTx(_ context.Context, _ pgx.Tx, businessID int64, id uuid.UUID) (CreditNote, error) {
	n, ok := s.notes[id]
	if !ok || n.BusinessID != businessID {
		return CreditNote{}, ErrNoteNotFound
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

func (s *stubStore) MarkNoteAppliedTx(_ context.Context, _ pgx.Tx, n CreditNote) error {
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

func (s *stubStore) GetNote(_ context.Context, businessID int64, id uuid.UUID) (CreditNote, error) {
	n, ok := s.notes[id]
	if !ok || n.BusinessID != businessID {
		return CreditNote{}, ErrNoteNotFound
	}
	n.Lines = s.noteLines[id]
	return n, nil
}

func (s *stubStore) ListNotes(context.Context, int64, uuid.UUID) ([]CreditNote, error) {
	return nil, nil
}

// recordingLedgerStore backs a real posting engine and keeps the entries,
// so tests assert on what actually reached the ledger.
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

func noteFixture(store *stubStore, received string) (Invoice, CreditNote) {
	inv := sampleInvoice()
	inv.BusinessID = 7
	inv.BranchID = 2
	inv.ReceivedAmount = dec(received)
	store.addInvoice(inv)

	note := CreditNote{
		ID:          uuid.New(),
		BusinessID:  7,
		BranchID:    2,
		InvoiceID:   inv.ID,
		Number:      "CN-00001",
		NoteDate:    time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		Status:      NoteStatusOpen,
		SubTotal:    dec("150.00"),
		VATAmount:   dec("22.50"),
		TotalAmount: dec("172.50"),
		Lines: []NoteLine{
			{ID: 1, InvoiceLineID: 1, AccountID: 40, Quantity: dec("2"), UnitPrice: dec("75.00"), Amount: dec("150.00")},
		},
	}
	store.addNote(note)
	return inv, note
}

func newNoteService(store *stubStore) (*Service, *recordingLedgerStore) {
	ledgerStore := &recordingLedgerStore{}
	engine := ledger.NewEngine(ledgerStore, nil, nil, nil)
	return NewService(store, engine, nil, nil), ledgerStore
}

func TestApplyNoteReversesInvoicePosting(t *testing.T) {
	store := newStubStore()
	inv, note := noteFixture(store, "0")
	svc, ledgerStore := newNoteService(store)

	applied, err := svc.ApplyNote(context.Background(), noteAuthz(), note.ID, ApplyInput{RefundMethod: RefundNone})
	require.NoError(t, err)
	assert.Equal(t, NoteStatusApplied, applied.Status)

	// The invoice credited revenue and VAT; the note debits them back and
	// credits AR for the full amount since nothing was collected.
	require.Len(t, ledgerStore.entries, 3)
	byAccount := ledgerStore.byAccount()
	assert.True(t, byAccount[40].Debit.Equal(dec("150.00")))
	assert.True(t, byAccount[stubVATPayable].Debit.Equal(dec("22.50")))
	assert.True(t, byAccount[stubAccountsRecv].Credit.Equal(dec("172.50")))
	assert.Equal(t, ledger.SourceCreditNote, ledgerStore.entries[0].SourceType)

	stored, err := store.GetInvoice(context.Background(), 7, inv.ID)
	require.NoError(t, err)
	assert.True(t, stored.ReturnedAmount.Equal(dec("172.50")))
	assert.True(t, stored.Lines[0].ReturnedQuantity.Equal(dec("2")))
}

func TestApplyNoteRefundsCashFromCollectedInvoice(t *testing.T) {
	store := newStubStore()
	store.accounts[20] = accounts.Account{ID: 20, BusinessID: 7, IsActive: true, IsCashBank: true}
	_, note := noteFixture(store, "460.00")
	svc, ledgerStore := newNoteService(store)

	_, err := svc.ApplyNote(context.Background(), noteAuthz(), note.ID, ApplyInput{
		RefundMethod: RefundCash, RefundAccountID: 20,
	})
	require.NoError(t, err)

	// Fully collected invoice leaves nothing on AR; the whole note refunds
	// out of the cash account.
	byAccount := ledgerStore.byAccount()
	assert.True(t, byAccount[20].Credit.Equal(dec("172.50")))
	_, hasAR := byAccount[stubAccountsRecv]
	assert.False(t, hasAR)
}

func TestApplyNoteRejectsNonCashRefundAccount(t *testing.T) {
	store := newStubStore()
	store.accounts[21] = accounts.Account{ID: 21, BusinessID: 7, IsActive: true, IsCashBank: false}
	_, note := noteFixture(store, "460.00")
	svc, ledgerStore := newNoteService(store)

	_, err := svc.ApplyNote(context.Background(), noteAuthz(), note.ID, ApplyInput{
		RefundMethod: RefundCash, RefundAccountID: 21,
	})
	assert.ErrorIs(t, err, ErrReceivedIntoNotCash)
	assert.Empty(t, ledgerStore.entries)

	stored, _ := store.GetNote(context.Background(), 7, note.ID)
	assert.Equal(t, NoteStatusOpen, stored.Status)
}

func TestApplyNoteSplitsCollectedPortionToCustomerBalance(t *testing.T) {
	store := newStubStore()
	_, note := noteFixture(store, "400.00")
	svc, ledgerStore := newNoteService(store)

	_, err := svc.ApplyNote(context.Background(), noteAuthz(), note.ID, ApplyInput{RefundMethod: RefundCustomerBalance})
	require.NoError(t, err)

	// 60.00 was still outstanding, the remaining 112.50 was already
	// collected and lands on the customer's credit balance.
	byAccount := ledgerStore.byAccount()
	assert.True(t, byAccount[stubAccountsRecv].Credit.Equal(dec("60.00")))
	assert.True(t, byAccount[stubCustomerCredits].Credit.Equal(dec("112.50")))
}

func TestApplyNoteRequiresOpenNote(t *testing.T) {
	store := newStubStore()
	_, note := noteFixture(store, "0")
	applied := store.notes[note.ID]
	applied.Status = NoteStatusApplied
	store.notes[note.ID] = applied
	svc, ledgerStore := newNoteService(store)

	_, err := svc.ApplyNote(context.Background(), noteAuthz(), note.ID, ApplyInput{RefundMethod: RefundNone})
	assert.ErrorIs(t, err, ErrNoteNotOpen)
	assert.Empty(t, ledgerStore.entries)
}

func TestProrateNoteVATNeverOverclaims(t *testing.T) {
	// Four quarter returns against 0.02 of VAT: naive proration rounds each
	// share to 0.01 and claims 0.04 in total. The cap keeps the series at
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

func TestProrateNoteVATCompletingNoteTakesRemainder(t *testing.T) {
	share := prorateNoteVAT(dec("60.00"), dec("400.00"), dec("150.00"), decimal.Zero, false)
	assert.True(t, share.Equal(dec("22.50")))

	// The completing note gets exactly what is left, not its pro-rata share.
	share = prorateNoteVAT(dec("60.00"), dec("400.00"), dec("250.00"), dec("22.50"), true)
	assert.True(t, share.Equal(dec("37.50")))
}

func TestCreateNoteVATCappedAtUnclaimedRemainder(t *testing.T) {
	store := newStubStore()
	inv := sampleInvoice()
	inv.BusinessID = 7
	inv.BranchID = 2
	store.addInvoice(inv)
	store.vatClaimed = dec("59.00")
	svc, _ := newNoteService(store)

	note, err := svc.CreateNote(context.Background(), noteAuthz(), inv.ID, NoteInput{
		NoteDate: time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC),
		Items:    []ReturnItem{{InvoiceLineID: 1, Quantity: dec("2")}},
	})
	require.NoError(t, err)
	// Pro-rata would be 22.50; only 1.00 of the invoice's VAT is unclaimed.
	assert.True(t, note.VATAmount.Equal(dec("1.00")))
	assert.True(t, note.TotalAmount.Equal(dec("151.00")))
}
