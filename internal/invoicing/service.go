package invoicing

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/ledger/accounts"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Service posts sales invoices, collects them and applies credit notes.
type Service struct {
	store  Store
	engine *ledger.Engine
	audit  shared.AuditSink
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, engine *ledger.Engine, audit shared.AuditSink, logger *slog.Logger) *Service {
	return &Service{store: store, engine: engine, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	s.now = now
}

// CreateInvoice numbers, stores and posts one invoice. On credit terms the
// gross amount lands on Accounts Receivable; immediate collection books it
// straight into the receiving cash/bank account. Inflows carry no funds
// precondition.
func (s *Service) CreateInvoice(ctx context.Context, authz shared.AuthorizationContext, in InvoiceInput) (Invoice, error) {
	if err := authz.Validate(); err != nil {
		return Invoice{}, err
	}
	if err := in.validate(); err != nil {
		return Invoice{}, err
	}

	var invoice Invoice
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		lineAccounts := make([]int64, 0, len(in.Lines)+1)
		for _, l := range in.Lines {
			lineAccounts = append(lineAccounts, l.RevenueAccountID)
		}
		if in.CollectImmediately {
			lineAccounts = append(lineAccounts, in.ReceivedIntoAccountID)
		}
		got, err := s.store.GetAccountsTx(ctx, tx, authz.BusinessID, lineAccounts)
		if err != nil {
			return err
		}
		debitAccountID := int64(0)
		if in.CollectImmediately {
			receiving := got[in.ReceivedIntoAccountID]
			if !receiving.IsCashBank {
				return ErrReceivedIntoNotCash
			}
			debitAccountID = receiving.ID
		} else {
			ar, err := s.store.EnsureSystemAccountTx(ctx, tx, authz.BusinessID, accounts.SystemAccountsReceivable)
			if err != nil {
				return err
			}
			debitAccountID = ar.ID
		}

		number, err := s.store.NextNumberTx(ctx, tx, authz.BusinessID, sequence.DocTypeSalesInvoice)
		if err != nil {
			return err
		}
		now := s.now()
		invoice = Invoice{
			ID:             uuid.New(),
			BusinessID:     authz.BusinessID,
			BranchID:       authz.SelectedBranchID,
			Number:         number,
			CustomerID:     in.CustomerID,
			InvoiceDate:    in.InvoiceDate,
			DueDate:        in.DueDate,
			Description:    in.Description,
			Reference:      in.Reference,
			SubTotal:       in.SubTotal(),
			VATAmount:      in.VATAmount.Round(2),
			Amount:         in.Total(),
			ReceivedAmount: decimal.Zero,
			ReturnedAmount: decimal.Zero,
			Status:         InvoiceStatusUnpaid,
			CreatedBy:      authz.ActorID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if in.CollectImmediately {
			invoice.ReceivedAmount = invoice.Amount
			invoice.Status = InvoiceStatusPaid
		}
		invoice, err = s.store.InsertInvoiceTx(ctx, tx, invoice)
		if err != nil {
			return err
		}
		for _, l := range in.Lines {
			line, err := s.store.InsertInvoiceLineTx(ctx, tx, InvoiceLine{
				InvoiceID:        invoice.ID,
				RevenueAccountID: l.RevenueAccountID,
				Description:      l.Description,
				Quantity:         l.Quantity,
				UnitPrice:        l.UnitPrice,
				Amount:           l.Amount(),
			})
			if err != nil {
				return err
			}
			invoice.Lines = append(invoice.Lines, line)
		}

		vatAccountID := int64(0)
		if invoice.VATAmount.IsPositive() {
			vat, err := s.store.EnsureSystemAccountTx(ctx, tx, authz.BusinessID, accounts.SystemVATPayable)
			if err != nil {
				return err
			}
			vatAccountID = vat.ID
		}
		_, err = s.engine.PostInTx(ctx, tx, ledger.PostingInput{
			BusinessID:  invoice.BusinessID,
			BranchID:    invoice.BranchID,
			Date:        invoice.InvoiceDate,
			Description: invoice.Description,
			Reference:   invoice.Number,
			SourceType:  ledger.SourceSalesInvoice,
			SourceID:    invoice.ID,
			Lines:       invoicePostingLines(invoice, vatAccountID, debitAccountID),
		})
		return err
	})
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, authz, "sales_invoice.create", "sales_invoice", invoice.ID.String(), nil, invoiceAudit(invoice))
	return invoice, nil
}

// invoicePostingLines debits the single counter account (AR or cash, gross)
// and credits each revenue line plus VAT output.
func invoicePostingLines(inv Invoice, vatAccountID, debitAccountID int64) []ledger.LineInput {
	lines := make([]ledger.LineInput, 0, len(inv.Lines)+2)
	lines = append(lines, ledger.LineInput{AccountID: debitAccountID, Debit: inv.Amount, Description: inv.Description})
	for _, l := range inv.Lines {
		lines = append(lines, ledger.LineInput{AccountID: l.RevenueAccountID, Credit: l.Amount, Description: l.Description})
	}
	if inv.VATAmount.IsPositive() {
		lines = append(lines, ledger.LineInput{AccountID: vatAccountID, Credit: inv.VATAmount, Description: "VAT on " + inv.Number})
	}
	return lines
}

// RecordReceipt collects part of an invoice: debit cash, credit AR.
func (s *Service) RecordReceipt(ctx context.Context, authz shared.AuthorizationContext, invoiceID uuid.UUID, in ReceiptInput) (Receipt, error) {
	if err := authz.Validate(); err != nil {
		return Receipt{}, err
	}
	if err := in.validate(); err != nil {
		return Receipt{}, err
	}

	var receipt Receipt
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		invoice, err := s.store.LockInvoiceTx(ctx, tx, authz.BusinessID, invoiceID)
		if err != nil {
			return err
		}
		outstanding := invoice.Outstanding()
		if outstanding.IsZero() {
			return ErrInvoiceSettled
		}
		if in.Amount.GreaterThan(outstanding) {
			return ErrReceiptExceedsOutstanding
		}
		receiving, err := s.store.GetAccountTx(ctx, tx, authz.BusinessID, in.ReceivedIntoAccountID)
		if err != nil {
			return err
		}
		if !receiving.IsCashBank {
			return ErrReceivedIntoNotCash
		}
		ar, err := s.store.EnsureSystemAccountTx(ctx, tx, authz.BusinessID, accounts.SystemAccountsReceivable)
		if err != nil {
			return err
		}

		receipt = Receipt{
			ID:                    uuid.New(),
			BusinessID:            authz.BusinessID,
			BranchID:              authz.SelectedBranchID,
			InvoiceID:             invoice.ID,
			ReceiptDate:           in.ReceiptDate,
			Amount:                in.Amount.Round(2),
			ReceivedIntoAccountID: receiving.ID,
			Reference:             in.Reference,
			CreatedBy:             authz.ActorID,
			CreatedAt:             s.now(),
		}
		receipt, err = s.store.InsertReceiptTx(ctx, tx, receipt)
		if err != nil {
			return err
		}

		_, err = s.engine.PostInTx(ctx, tx, ledger.PostingInput{
			BusinessID:  invoice.BusinessID,
			BranchID:    receipt.BranchID,
			Date:        receipt.ReceiptDate,
			Description: "Receipt for " + invoice.Number,
			Reference:   invoice.Number,
			SourceType:  ledger.SourceInvoiceReceipt,
			SourceID:    receipt.ID,
			Lines: []ledger.LineInput{
				{AccountID: receiving.ID, Debit: receipt.Amount, Description: "Receipt for " + invoice.Number},
				{AccountID: ar.ID, Credit: receipt.Amount, Description: "Receipt for " + invoice.Number},
			},
		})
		if err != nil {
			return err
		}

		invoice.ReceivedAmount = invoice.ReceivedAmount.Add(receipt.Amount)
		invoice.Status = collectionStatus(invoice)
		return s.store.UpdateInvoiceSettlementTx(ctx, tx, invoice)
	})
	if err != nil {
		return Receipt{}, err
	}
	s.recordAudit(ctx, authz, "sales_invoice.receipt", "invoice_receipt", receipt.ID.String(), nil, map[string]any{
		"invoice_id": invoiceID.String(), "amount": receipt.Amount.StringFixed(2),
	})
	return receipt, nil
}

// collectionStatus derives the invoice status from its running totals.
func collectionStatus(inv Invoice) InvoiceStatus {
	switch {
	case inv.Outstanding().IsZero():
		return InvoiceStatusPaid
	case inv.ReceivedAmount.IsPositive():
		return InvoiceStatusPartial
	default:
		return InvoiceStatusUnpaid
	}
}

// GetInvoice returns one invoice with lines.
func (s *Service) GetInvoice(ctx context.Context, authz shared.AuthorizationContext, id uuid.UUID) (Invoice, error) {
	if err := authz.Validate(); err != nil {
		return Invoice{}, err
	}
	return s.store.GetInvoice(ctx, authz.BusinessID, id)
}

// ListInvoices returns a page of invoices, newest first, optionally by status.
func (s *Service) ListInvoices(ctx context.Context, authz shared.AuthorizationContext, status InvoiceStatus, limit, offset int) ([]Invoice, error) {
	if err := authz.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListInvoices(ctx, authz.BusinessID, status, limit, offset)
}

// ListReceipts returns an invoice's receipts in order.
func (s *Service) ListReceipts(ctx context.Context, authz shared.AuthorizationContext, invoiceID uuid.UUID) ([]Receipt, error) {
	if err := authz.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListReceipts(ctx, authz.BusinessID, invoiceID)
}

func (s *Service) recordAudit(ctx context.Context, authz shared.AuthorizationContext, action, entity, entityID string, before, after map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		BusinessID: authz.BusinessID,
		ActorID:    authz.ActorID,
		Action:     action,
		Entity:     entity,
		EntityID:   entityID,
		Before:     before,
		After:      after,
		At:         s.now(),
	})
}

func invoiceAudit(inv Invoice) map[string]any {
	return map[string]any{
		"number":   inv.Number,
		"customer": inv.CustomerID,
		"date":     inv.InvoiceDate.Format(time.DateOnly),
		"amount":   inv.Amount.StringFixed(2),
		"status":   string(inv.Status),
	}
}
