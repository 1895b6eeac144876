package invoicing

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

// CreateNote opens a credit note against an invoice. No ledger effect until
// the note is applied.
func (s *Service) CreateNote(ctx context.Context, authz shared.AuthorizationContext, invoiceID uuid.UUID, in NoteInput) (CreditNote, error) {
	if err := authz.Validate(); err != nil {
		return CreditNote{}, err
	}
	if err := in.validate(); err != nil {
		return CreditNote{}, err
	}

	var note CreditNote
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		invoice, err := s.store.LockInvoiceTx(ctx, tx, authz.BusinessID, invoiceID)
		if err != nil {
			return err
		}
		invoice.Lines, err = s.store.InvoiceLinesTx(ctx, tx, invoice.ID)
		if err != nil {
			return err
		}
		noteLines, subTotal, err := buildNoteLines(invoice, in.Items)
		if err != nil {
			return err
		}
		vat, err := s.noteVAT(ctx, tx, invoice, noteLines, subTotal)
		if err != nil {
			return err
		}
		number, err := s.store.NextNumberTx(ctx, tx, authz.BusinessID, sequence.DocTypeCreditNote)
		if err != nil {
			return err
		}
		now := s.now()
		note = CreditNote{
			ID:           uuid.New(),
			BusinessID:   authz.BusinessID,
			BranchID:     authz.SelectedBranchID,
			InvoiceID:    invoice.ID,
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
		return CreditNote{}, err
	}
	s.recordAudit(ctx, authz, "credit_note.create", "credit_note", note.ID.String(), nil, noteAudit(note))
	return note, nil
}

// buildNoteLines resolves return items against the invoice's lines,
// rejecting quantities beyond what remains returnable.
func buildNoteLines(invoice Invoice, items []ReturnItem) ([]NoteLine, decimal.Decimal, error) {
	byID := make(map[int64]InvoiceLine, len(invoice.Lines))
	for _, l := range invoice.Lines {
		byID[l.ID] = l
	}
	lines := make([]NoteLine, 0, len(items))
	subTotal := decimal.Zero
	for _, item := range items {
		invLine, ok := byID[item.InvoiceLineID]
		if !ok {
			return nil, decimal.Zero, ErrLineNotOnInvoice
		}
		remaining := invLine.Quantity.Sub(invLine.ReturnedQuantity)
		if item.Quantity.GreaterThan(remaining) {
			return nil, decimal.Zero, ErrReturnExceedsQuantity
		}
		amount := item.Quantity.Mul(invLine.UnitPrice).Round(2)
		subTotal = subTotal.Add(amount)
		lines = append(lines, NoteLine{
			InvoiceLineID: invLine.ID,
			AccountID:     invLine.RevenueAccountID,
			Quantity:      item.Quantity,
			UnitPrice:     invLine.UnitPrice,
			Amount:        amount,
		})
	}
	return lines, subTotal, nil
}

// noteVAT hands the note its share of the invoice's VAT: proportional to
// the returned subtotal, capped at what earlier notes left unclaimed, and
// exactly the remainder on the note completing the return so a fully
// returned invoice nets to zero despite rounding.
func (s *Service) noteVAT(ctx context.Context, tx pgx.Tx, invoice Invoice, noteLines []NoteLine, subTotal decimal.Decimal) (decimal.Decimal, error) {
	if !invoice.VATAmount.IsPositive() || !invoice.SubTotal.IsPositive() {
		return decimal.Zero, nil
	}
	claimed, err := s.store.NoteVATSoFarTx(ctx, tx, invoice.ID)
	if err != nil {
		return decimal.Zero, err
	}
	return prorateNoteVAT(invoice.VATAmount, invoice.SubTotal, subTotal, claimed, noteCompletesReturn(invoice, noteLines)), nil
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

func noteCompletesReturn(invoice Invoice, noteLines []NoteLine) bool {
	returning := make(map[int64]decimal.Decimal, len(noteLines))
	for _, l := range noteLines {
		returning[l.InvoiceLineID] = returning[l.InvoiceLineID].Add(l.Quantity)
	}
	for _, l := range invoice.Lines {
		if l.ReturnedQuantity.Add(returning[l.ID]).LessThan(l.Quantity) {
			return false
		}
	}
	return true
}

// ApplyNote transitions open → applied and posts the mirror image of the
// invoice's lines for the returned portion. What the customer still owed
// reduces Accounts Receivable; the already-collected remainder follows the
// refund method. A cash refund is an outflow and carries the funds
// precondition on the refunding account.
func (s *Service) ApplyNote(ctx context.Context, authz shared.AuthorizationContext, noteID uuid.UUID, in ApplyInput) (CreditNote, error) {
	if err := authz.Validate(); err != nil {
		return CreditNote{}, err
	}
	if err := in.validate(); err != nil {
		return CreditNote{}, err
	}

	var note CreditNote
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		note, err = s.store.LockNoteTx(ctx, tx, authz.BusinessID, noteID)
		if err != nil {
			return err
		}
		if note.Status != NoteStatusOpen {
			return ErrNoteNotOpen
		}
		invoice, err := s.store.LockInvoiceTx(ctx, tx, authz.BusinessID, note.InvoiceID)
		if err != nil {
			return err
		}
		invoice.Lines, err = s.store.InvoiceLinesTx(ctx, tx, invoice.ID)
		if err != nil {
			return err
		}
		note.Lines, err = s.store.NoteLinesTx(ctx, tx, note.ID)
		if err != nil {
			return err
		}
		// Open notes can race each other; re-check quantities under the lock.
		byID := make(map[int64]InvoiceLine, len(invoice.Lines))
		for _, l := range invoice.Lines {
			byID[l.ID] = l
		}
		for _, l := range note.Lines {
			invLine, ok := byID[l.InvoiceLineID]
			if !ok {
				return ErrLineNotOnInvoice
			}
			if l.Quantity.GreaterThan(invLine.Quantity.Sub(invLine.ReturnedQuantity)) {
				return ErrReturnExceedsQuantity
			}
		}

		arPortion := decimal.Min(note.TotalAmount, invoice.Outstanding())
		refundPortion := note.TotalAmount.Sub(arPortion)
		if in.RefundMethod == RefundNone {
			arPortion = note.TotalAmount
			refundPortion = decimal.Zero
		} else {
			refundable := decimal.Max(decimal.Zero, invoice.ReceivedAmount.Sub(invoice.ReturnedAmount))
			refundPortion = decimal.Min(refundPortion, refundable)
			arPortion = note.TotalAmount.Sub(refundPortion)
		}

		refundDate := in.RefundDate
		if refundDate.IsZero() {
			refundDate = note.NoteDate
		}
		lines, err := s.noteApplyLines(ctx, tx, authz, invoice, note, in, arPortion, refundPortion)
		if err != nil {
			return err
		}
		_, err = s.engine.PostInTx(ctx, tx, ledger.PostingInput{
			BusinessID:  note.BusinessID,
			BranchID:    note.BranchID,
			Date:        refundDate,
			Description: "Return against " + invoice.Number,
			Reference:   note.Number,
			SourceType:  ledger.SourceCreditNote,
			SourceID:    note.ID,
			Lines:       lines,
		})
		if err != nil {
			return err
		}

		for _, l := range note.Lines {
			if err := s.store.AddReturnedQuantityTx(ctx, tx, l.InvoiceLineID, l.Quantity); err != nil {
				return err
			}
		}
		invoice.ReturnedAmount = invoice.ReturnedAmount.Add(note.TotalAmount)
		invoice.Status = collectionStatus(invoice)
		if err := s.store.UpdateInvoiceSettlementTx(ctx, tx, invoice); err != nil {
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
		return CreditNote{}, err
	}
	s.recordAudit(ctx, authz, "credit_note.apply", "credit_note", note.ID.String(), nil, noteAudit(note))
	return note, nil
}

// noteApplyLines flips the returned slice of the invoice's own posting into
// the note's debits, then credits the routing side: AR for the uncollected
// portion, cash or customer credits for the refunded portion.
func (s *Service) noteApplyLines(ctx context.Context, tx pgx.Tx, authz shared.AuthorizationContext, invoice Invoice, note CreditNote, in ApplyInput, arPortion, refundPortion decimal.Decimal) ([]ledger.LineInput, error) {
	// Revenue and VAT lines are written in the invoice's original credit
	// direction and mirrored, so the note is literally the reversal of that
	// slice of the invoice.
	invoiceSide := make([]ledger.LineInput, 0, len(note.Lines)+1)
	for _, l := range note.Lines {
		invoiceSide = append(invoiceSide, ledger.LineInput{AccountID: l.AccountID, Credit: l.Amount, Description: "Return against " + invoice.Number})
	}
	if note.VATAmount.IsPositive() {
		vat, err := s.store.EnsureSystemAccountTx(ctx, tx, authz.BusinessID, accounts.SystemVATPayable)
		if err != nil {
			return nil, err
		}
		invoiceSide = append(invoiceSide, ledger.LineInput{AccountID: vat.ID, Credit: note.VATAmount, Description: "VAT reversal " + note.Number})
	}
	lines := ledger.Reverse(invoiceSide)
	if arPortion.IsPositive() {
		ar, err := s.store.EnsureSystemAccountTx(ctx, tx, authz.BusinessID, accounts.SystemAccountsReceivable)
		if err != nil {
			return nil, err
		}
		lines = append(lines, ledger.LineInput{AccountID: ar.ID, Credit: arPortion, Description: "Return against " + invoice.Number})
	}
	if refundPortion.IsPositive() {
		switch in.RefundMethod {
		case RefundCash:
			refund, err := s.store.GetAccountTx(ctx, tx, authz.BusinessID, in.RefundAccountID)
			if err != nil {
				return nil, err
			}
			if !refund.IsCashBank {
				return nil, ErrReceivedIntoNotCash
			}
			if err := s.store.EnsureSufficientFundsTx(ctx, tx, refund, refundPortion); err != nil {
				return nil, err
			}
			lines = append(lines, ledger.LineInput{AccountID: refund.ID, Credit: refundPortion, Description: "Cash refund " + note.Number})
		case RefundCustomerBalance:
			credits, err := s.store.EnsureSystemAccountTx(ctx, tx, authz.BusinessID, accounts.SystemCustomerCredits)
			if err != nil {
				return nil, err
			}
			lines = append(lines, ledger.LineInput{AccountID: credits.ID, Credit: refundPortion, Description: "Customer credit " + note.Number})
		}
	}
	return lines, nil
}

// VoidNote cancels an open, unapplied note. Terminal.
func (s *Service) VoidNote(ctx context.Context, authz shared.AuthorizationContext, noteID uuid.UUID) (CreditNote, error) {
	if err := authz.Validate(); err != nil {
		return CreditNote{}, err
	}
	var note CreditNote
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
		return CreditNote{}, err
	}
	s.recordAudit(ctx, authz, "credit_note.void", "credit_note", note.ID.String(), nil, noteAudit(note))
	return note, nil
}

// GetNote returns one note with lines.
func (s *Service) GetNote(ctx context.Context, authz shared.AuthorizationContext, id uuid.UUID) (CreditNote, error) {
	if err := authz.Validate(); err != nil {
		return CreditNote{}, err
	}
	return s.store.GetNote(ctx, authz.BusinessID, id)
}

// ListNotes returns an invoice's notes in creation order.
func (s *Service) ListNotes(ctx context.Context, authz shared.AuthorizationContext, invoiceID uuid.UUID) ([]CreditNote, error) {
	if err := authz.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListNotes(ctx, authz.BusinessID, invoiceID)
}

func noteAudit(n CreditNote) map[string]any {
	return map[string]any{
		"number":  n.Number,
		"invoice": n.InvoiceID.String(),
		"date":    n.NoteDate.Format(time.DateOnly),
		"amount":  n.TotalAmount.StringFixed(2),
		"status":  string(n.Status),
		"method":  string(n.RefundMethod),
	}
}
