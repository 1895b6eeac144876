package purchasing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/ledger/accounts"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// CreateNote opens a debit note against a bill. No ledger effect until the
// note is applied; quantities are validated against what is still
// returnable at both create and apply time.
func (s *Service) CreateNote(ctx context.Context, authz shared.AuthorizationContext, billID uuid.UUID, in NoteInput) (DebitNote, error) {
	if err := authz.Validate(); err != nil {
		return DebitNote{}, err
	}
	if err := in.validate(); err != nil {
		return DebitNote{}, err
	}

	var note DebitNote
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		bill, err := s.store.LockBillTx(ctx, tx, authz.BusinessID, billID)
		if err != nil {
			return err
		}
		bill.Lines, err = s.store.BillLinesTx(ctx, tx, bill.ID)
		if err != nil {
			return err
		}
		noteLines, subTotal, err := buildNoteLines(bill, in.Items)
		if err != nil {
			return err
		}
		vat, err := s.noteVAT(ctx, tx, bill, noteLines, subTotal)
		if err != nil {
			return err
		}
		number, err := s.store.NextNumberTx(ctx, tx, authz.BusinessID, sequence.DocTypeDebitNote)
		if err != nil {
			return err
		}
		now := s.now()
		note = DebitNote{
			ID:           uuid.New(),
			BusinessID:   authz.BusinessID,
			BranchID:     authz.SelectedBranchID,
			BillID:       bill.ID,
			Number:       number,
			NoteDate:     in.NoteDate,
			Reason:       in.Reason,
			Status:       NoteStatusOpen,
			SubTotal:     subTotal,
			VATAmount:    vat,
			TotalAmount:  subTotal.Add(vat).Round(2),
			RefundMethod: RefundNone,
			CreatedBy:    authz.ActorID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		note, err = s.store.InsertNoteTx(ctx, tx, note)
		if err != nil {
			return err
		}
		for _, l := range noteLines {
			l.NoteID = note.ID
			l, err = s.store.InsertNoteLineTx(ctx, tx, l)
			if err != nil {
				return err
			}
			note.Lines = append(note.Lines, l)
		}
		return nil
	})
	if err != nil {
		return DebitNote{}, err
	}
	s.recordAudit(ctx, authz, "debit_note.create", "debit_note", note.ID.String(), nil, noteAudit(note))
	return note, nil
}

// buildNoteLines resolves return items against the bill's lines, rejecting
// quantities beyond what remains returnable.
func buildNoteLines(bill Bill, items []ReturnItem) ([]NoteLine, decimal.Decimal, error) {
	byID := make(map[int64]BillLine, len(bill.Lines))
	for _, l := range bill.Lines {
		byID[l.ID] = l
	}
	lines := make([]NoteLine, 0, len(items))
	subTotal := decimal.Zero
	for _, item := range items {
		billLine, ok := byID[item.BillLineID]
		if !ok {
			return nil, decimal.Zero, ErrLineNotOnBill
		}
		remaining := billLine.Quantity.Sub(billLine.ReturnedQuantity)
		if item.Quantity.GreaterThan(remaining) {
			return nil, decimal.Zero, ErrReturnExceedsQuantity
		}
		amount := item.Quantity.Mul(billLine.UnitPrice).Round(2)
		subTotal = subTotal.Add(amount)
		lines = append(lines, NoteLine{
			BillLineID: billLine.ID,
			AccountID:  billLine.AccountID,
			Quantity:   item.Quantity,
			UnitPrice:  billLine.UnitPrice,
			Amount:     amount,
		})
	}
	return lines, subTotal, nil
}

// noteVAT hands the note its share of the bill's VAT: proportional to the
// returned subtotal, capped at what earlier notes left unclaimed, and
// exactly the remainder on the note completing the return so a fully
// returned bill nets to zero despite rounding.
func (s *Service) noteVAT(ctx context.Context, tx pgx.Tx, bill Bill, noteLines []NoteLine, subTotal decimal.Decimal) (decimal.Decimal, error) {
	if !bill.VATAmount.IsPositive() || !bill.SubTotal.IsPositive() {
		return decimal.Zero, nil
	}
	claimed, err := s.store.NoteVATSoFarTx(ctx, tx, bill.ID)
	if err != nil {
		return decimal.Zero, err
	}
	return prorateNoteVAT(bill.VATAmount, bill.SubTotal, subTotal, claimed, noteCompletesReturn(bill, noteLines)), nil
}

// prorateNoteVAT allocates a document's VAT across its notes. Cent rounding
// makes naive proration over-claim: four quarter returns against 0.02 of
// VAT would each round to 0.01 and claim 0.04 in total, driving the
// completing note's remainder negative. Capping every note at the unclaimed
// remainder keeps the series non-negative and summing to the document VAT.
func prorateNoteVAT(docVAT, docSubTotal, noteSubTotal, claimed decimal.Decimal, completes bool) decimal.Decimal {
	remaining := docVAT.Sub(claimed)
	if !remaining.IsPositive() {
		return decimal.Zero
	}
	if completes {
		return remaining
	}
	return decimal.Min(docVAT.Mul(noteSubTotal).Div(docSubTotal).Round(2), remaining)
}

func noteCompletesReturn(bill Bill, noteLines []NoteLine) bool {
	returning := make(map[int64]decimal.Decimal, len(noteLines))
	for _, l := range noteLines {
		returning[l.BillLineID] = returning[l.BillLineID].Add(l.Quantity)
	}
	for _, l := range bill.Lines {
		if l.ReturnedQuantity.Add(returning[l.ID]).LessThan(l.Quantity) {
			return false
		}
	}
	return true
}

// ApplyNote transitions open → applied and posts the mirror image of the
// bill's lines for the returned portion. What was still unpaid reduces
// Accounts Payable; the already-paid remainder follows the refund method.
func (s *Service) ApplyNote(ctx context.Context, authz shared.AuthorizationContext, noteID uuid.UUID, in ApplyInput) (DebitNote, error) {
	if err := authz.Validate(); err != nil {
		return DebitNote{}, err
	}
	if err := in.validate(); err != nil {
		return DebitNote{}, err
	}

	var note DebitNote
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		note, err = s.store.LockNoteTx(ctx, tx, authz.BusinessID, noteID)
		if err != nil {
			return err
		}
		if note.Status != NoteStatusOpen {
			return ErrNoteNotOpen
		}
		bill, err := s.store.LockBillTx(ctx, tx, authz.BusinessID, note.BillID)
		if err != nil {
			return err
		}
		bill.Lines, err = s.store.BillLinesTx(ctx, tx, bill.ID)
		if err != nil {
			return err
		}
		note.Lines, err = s.store.NoteLinesTx(ctx, tx, note.ID)
		if err != nil {
			return err
		}
		// Open notes can race each other; re-check quantities under the lock.
		byID := make(map[int64]BillLine, len(bill.Lines))
		for _, l := range bill.Lines {
			byID[l.ID] = l
		}
		for _, l := range note.Lines {
			billLine, ok := byID[l.BillLineID]
			if !ok {
				return ErrLineNotOnBill
			}
			if l.Quantity.GreaterThan(billLine.Quantity.Sub(billLine.ReturnedQuantity)) {
				return ErrReturnExceedsQuantity
			}
		}

		apPortion := decimal.Min(note.TotalAmount, bill.Outstanding())
		refundPortion := note.TotalAmount.Sub(apPortion)
		if in.RefundMethod == RefundNone {
			// The vendor's account absorbs the whole note; any overshoot
			// stands as a debit balance on AP.
			apPortion = note.TotalAmount
			refundPortion = decimal.Zero
		} else {
			refundable := decimal.Max(decimal.Zero, bill.PaidAmount.Sub(bill.ReturnedAmount))
			refundPortion = decimal.Min(refundPortion, refundable)
			apPortion = note.TotalAmount.Sub(refundPortion)
		}

		refundDate := in.RefundDate
		if refundDate.IsZero() {
			refundDate = note.NoteDate
		}
		lines, err := s.noteApplyLines(ctx, tx, authz, bill, note, in, apPortion, refundPortion)
		if err != nil {
			return err
		}
		_, err = s.engine.PostInTx(ctx, tx, ledger.PostingInput{
			BusinessID:  note.BusinessID,
			BranchID:    note.BranchID,
			Date:        refundDate,
			Description: "Return against " + bill.Number,
			Reference:   note.Number,
			SourceType:  ledger.SourceDebitNote,
			SourceID:    note.ID,
			Lines:       lines,
		})
		if err != nil {
			return err
		}

		for _, l := range note.Lines {
			if err := s.store.AddReturnedQuantityTx(ctx, tx, l.BillLineID, l.Quantity); err != nil {
				return err
			}
		}
		bill.ReturnedAmount = bill.ReturnedAmount.Add(note.TotalAmount)
		bill.Status = settlementStatus(bill)
		if err := s.store.UpdateBillSettlementTx(ctx, tx, bill); err != nil {
			return err
		}

		now := s.now()
		note.Status = NoteStatusApplied
		note.RefundMethod = in.RefundMethod
		if in.RefundMethod == RefundCash {
			id := in.RefundAccountID
			note.RefundAccountID = &id
		}
		note.AppliedAt = &now
		note.UpdatedAt = now
		return s.store.MarkNoteAppliedTx(ctx, tx, note)
	})
	if err != nil {
		return DebitNote{}, err
	}
	s.recordAudit(ctx, authz, "debit_note.apply", "debit_note", note.ID.String(), nil, noteAudit(note))
	return note, nil
}

// noteApplyLines flips the returned slice of the bill's own posting into
// the note's credits, then debits the routing side: AP for the unpaid
// portion, cash or vendor advances for the refunded portion.
func (s *Service) noteApplyLines(ctx context.Context, tx pgx.Tx, authz shared.AuthorizationContext, bill Bill, note DebitNote, in ApplyInput, apPortion, refundPortion decimal.Decimal) ([]ledger.LineInput, error) {
	// Expense and VAT lines are written in the bill's original debit
	// direction and mirrored, so the note is literally the reversal of that
	// slice of the bill.
	billSide := make([]ledger.LineInput, 0, len(note.Lines)+1)
	for _, l := range note.Lines {
		billSide = append(billSide, ledger.LineInput{AccountID: l.AccountID, Debit: l.Amount, Description: "Return against " + bill.Number})
	}
	if note.VATAmount.IsPositive() {
		vat, err := s.store.EnsureSystemAccountTx(ctx, tx, authz.BusinessID, accounts.SystemVATReceivable)
		if err != nil {
			return nil, err
		}
		billSide = append(billSide, ledger.LineInput{AccountID: vat.ID, Debit: note.VATAmount, Description: "VAT reversal " + note.Number})
	}
	lines := ledger.Reverse(billSide)
	if apPortion.IsPositive() {
		ap, err := s.store.EnsureSystemAccountTx(ctx, tx, authz.BusinessID, accounts.SystemAccountsPayable)
		if err != nil {
			return nil, err
		}
		lines = append(lines, ledger.LineInput{AccountID: ap.ID, Debit: apPortion, Description: "Return against " + bill.Number})
	}
	if refundPortion.IsPositive() {
		switch in.RefundMethod {
		case RefundCash:
			refund, err := s.store.GetAccountTx(ctx, tx, authz.BusinessID, in.RefundAccountID)
			if err != nil {
				return nil, err
			}
			if !refund.IsCashBank {
				return nil, ErrPaidFromNotCash
			}
			lines = append(lines, ledger.LineInput{AccountID: refund.ID, Debit: refundPortion, Description: "Cash refund " + note.Number})
		case RefundVendorBalance:
			adv, err := s.store.EnsureSystemAccountTx(ctx, tx, authz.BusinessID, accounts.SystemVendorAdvances)
			if err != nil {
				return nil, err
			}
			lines = append(lines, ledger.LineInput{AccountID: adv.ID, Debit: refundPortion, Description: "Vendor credit " + note.Number})
		}
	}
	return lines, nil
}

// VoidNote cancels an open, unapplied note. Terminal.
func (s *Service) VoidNote(ctx context.Context, authz shared.AuthorizationContext, noteID uuid.UUID) (DebitNote, error) {
	if err := authz.Validate(); err != nil {
		return DebitNote{}, err
	}
	var note DebitNote
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		note, err = s.store.LockNoteTx(ctx, tx, authz.BusinessID, noteID)
		if err != nil {
			return err
		}
		if note.Status != NoteStatusOpen {
			return ErrNoteNotOpen
		}
		note.Status = NoteStatusVoid
		return s.store.MarkNoteVoidTx(ctx, tx, authz.BusinessID, noteID)
	})
	if err != nil {
		return DebitNote{}, err
	}
	s.recordAudit(ctx, authz, "debit_note.void", "debit_note", note.ID.String(), nil, noteAudit(note))
	return note, nil
}

// GetNote returns one note with lines.
func (s *Service) GetNote(ctx context.Context, authz shared.AuthorizationContext, id uuid.UUID) (DebitNote, error) {
	if err := authz.Validate(); err != nil {
		return DebitNote{}, err
	}
	return s.store.GetNote(ctx, authz.BusinessID, id)
}

// ListNotes returns a bill's notes in creation order.
func (s *Service) ListNotes(ctx context.Context, authz shared.AuthorizationContext, billID uuid.UUID) ([]DebitNote, error) {
	if err := authz.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListNotes(ctx, authz.BusinessID, billID)
}

func noteAudit(n DebitNote) map[string]any {
	return map[string]any{
		"number": n.Number,
		"bill":   n.BillID.String(),
		"date":   n.NoteDate.Format(time.DateOnly),
		"amount": n.TotalAmount.StringFixed(2),
		"status": string(n.Status),
		"method": string(n.RefundMethod),
	}
}
