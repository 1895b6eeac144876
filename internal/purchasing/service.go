package purchasing

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

// Service posts purchase bills, settles them and applies debit notes.
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

// CreateBill numbers, stores and posts one bill. On credit terms the gross
// amount lands on Accounts Payable; with immediate payment it leaves the
// funding account instead, subject to the funds precondition.
func (s *Service) CreateBill(ctx context.Context, authz shared.AuthorizationContext, in BillInput) (Bill, error) {
	if err := authz.Validate(); err != nil {
		return Bill{}, err
	}
	if err := in.validate(); err != nil {
		return Bill{}, err
	}

	var bill Bill
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		lineAccounts := make([]int64, 0, len(in.Lines)+1)
		for _, l := range in.Lines {
			lineAccounts = append(lineAccounts, l.AccountID)
		}
		creditAccountID := int64(0)
		if in.PayImmediately {
			lineAccounts = append(lineAccounts, in.PaidFromAccountID)
		}
		got, err := s.store.GetAccountsTx(ctx, tx, authz.BusinessID, lineAccounts)
		if err != nil {
			return err
		}
		if in.PayImmediately {
			paidFrom := got[in.PaidFromAccountID]
			if !paidFrom.IsCashBank {
				return ErrPaidFromNotCash
			}
			if err := s.store.EnsureSufficientFundsTx(ctx, tx, paidFrom, in.Total()); err != nil {
				return err
			}
			creditAccountID = paidFrom.ID
		} else {
			ap, err := s.store.EnsureSystemAccountTx(ctx, tx, authz.BusinessID, accounts.SystemAccountsPayable)
			if err != nil {
				return err
			}
			creditAccountID = ap.ID
		}

		number, err := s.store.NextNumberTx(ctx, tx, authz.BusinessID, sequence.DocTypePurchaseBill)
		if err != nil {
			return err
		}
		now := s.now()
		bill = Bill{
			ID:             uuid.New(),
			BusinessID:     authz.BusinessID,
			BranchID:       authz.SelectedBranchID,
			Number:         number,
			VendorID:       in.VendorID,
			BillDate:       in.BillDate,
			DueDate:        in.DueDate,
			Description:    in.Description,
			Reference:      in.Reference,
			SubTotal:       in.SubTotal(),
			VATAmount:      in.VATAmount.Round(2),
			Amount:         in.Total(),
			PaidAmount:     decimal.Zero,
			ReturnedAmount: decimal.Zero,
			Status:         BillStatusUnpaid,
			CreatedBy:      authz.ActorID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if in.PayImmediately {
			bill.PaidAmount = bill.Amount
			bill.Status = BillStatusPaid
		}
		bill, err = s.store.InsertBillTx(ctx, tx, bill)
		if err != nil {
			return err
		}
		for _, l := range in.Lines {
			line, err := s.store.InsertBillLineTx(ctx, tx, BillLine{
				BillID:      bill.ID,
				AccountID:   l.AccountID,
				Description: l.Description,
				Quantity:    l.Quantity,
				UnitPrice:   l.UnitPrice,
				Amount:      l.Amount(),
			})
			if err != nil {
				return err
			}
			bill.Lines = append(bill.Lines, line)
		}

		vatAccountID := int64(0)
		if bill.VATAmount.IsPositive() {
			vat, err := s.store.EnsureSystemAccountTx(ctx, tx, authz.BusinessID, accounts.SystemVATReceivable)
			if err != nil {
				return err
			}
			vatAccountID = vat.ID
		}
		_, err = s.engine.PostInTx(ctx, tx, ledger.PostingInput{
			BusinessID:  bill.BusinessID,
			BranchID:    bill.BranchID,
			Date:        bill.BillDate,
			Description: bill.Description,
			Reference:   bill.Number,
			SourceType:  ledger.SourcePurchaseBill,
			SourceID:    bill.ID,
			Lines:       billPostingLines(bill, vatAccountID, creditAccountID),
		})
		return err
	})
	if err != nil {
		return Bill{}, err
	}
	s.recordAudit(ctx, authz, "purchase_bill.create", "purchase_bill", bill.ID.String(), nil, billAudit(bill))
	return bill, nil
}

// billPostingLines debits each priced line plus VAT and credits the single
// counter account, AP or cash.
func billPostingLines(b Bill, vatAccountID, creditAccountID int64) []ledger.LineInput {
	lines := make([]ledger.LineInput, 0, len(b.Lines)+2)
	for _, l := range b.Lines {
		lines = append(lines, ledger.LineInput{AccountID: l.AccountID, Debit: l.Amount, Description: l.Description})
	}
	if b.VATAmount.IsPositive() {
		lines = append(lines, ledger.LineInput{AccountID: vatAccountID, Debit: b.VATAmount, Description: "VAT on " + b.Number})
	}
	return append(lines, ledger.LineInput{AccountID: creditAccountID, Credit: b.Amount, Description: b.Description})
}

// RecordPayment settles part of a bill: debit AP, credit the cash account.
func (s *Service) RecordPayment(ctx context.Context, authz shared.AuthorizationContext, billID uuid.UUID, in PaymentInput) (Payment, error) {
	if err := authz.Validate(); err != nil {
		return Payment{}, err
	}
	if err := in.validate(); err != nil {
		return Payment{}, err
	}

	var payment Payment
	err := s.store.WithTx(ctx, func(tx pgx.Tx) error {
		bill, err := s.store.LockBillTx(ctx, tx, authz.BusinessID, billID)
		if err != nil {
			return err
		}
		outstanding := bill.Outstanding()
		if outstanding.IsZero() {
			return ErrBillSettled
		}
		if in.Amount.GreaterThan(outstanding) {
			return ErrPaymentExceedsOutstanding
		}
		paidFrom, err := s.store.GetAccountTx(ctx, tx, authz.BusinessID, in.PaidFromAccountID)
		if err != nil {
			return err
		}
		if !paidFrom.IsCashBank {
			return ErrPaidFromNotCash
		}
		if err := s.store.EnsureSufficientFundsTx(ctx, tx, paidFrom, in.Amount); err != nil {
			return err
		}
		ap, err := s.store.EnsureSystemAccountTx(ctx, tx, authz.BusinessID, accounts.SystemAccountsPayable)
		if err != nil {
			return err
		}

		payment = Payment{
			ID:                uuid.New(),
			BusinessID:        authz.BusinessID,
			BranchID:          authz.SelectedBranchID,
			BillID:            bill.ID,
			PaymentDate:       in.PaymentDate,
			Amount:            in.Amount.Round(2),
			PaidFromAccountID: paidFrom.ID,
			Reference:         in.Reference,
			CreatedBy:         authz.ActorID,
			CreatedAt:         s.now(),
		}
		payment, err = s.store.InsertPaymentTx(ctx, tx, payment)
		if err != nil {
			return err
		}

		_, err = s.engine.PostInTx(ctx, tx, ledger.PostingInput{
			BusinessID:  bill.BusinessID,
			BranchID:    payment.BranchID,
			Date:        payment.PaymentDate,
			Description: "Payment for " + bill.Number,
			Reference:   bill.Number,
			SourceType:  ledger.SourceBillPayment,
			SourceID:    payment.ID,
			Lines: []ledger.LineInput{
				{AccountID: ap.ID, Debit: payment.Amount, Description: "Payment for " + bill.Number},
				{AccountID: paidFrom.ID, Credit: payment.Amount, Description: "Payment for " + bill.Number},
			},
		})
		if err != nil {
			return err
		}

		bill.PaidAmount = bill.PaidAmount.Add(payment.Amount)
		bill.Status = settlementStatus(bill)
		return s.store.UpdateBillSettlementTx(ctx, tx, bill)
	})
	if err != nil {
		return Payment{}, err
	}
	s.recordAudit(ctx, authz, "purchase_bill.payment", "bill_payment", payment.ID.String(), nil, map[string]any{
		"bill_id": billID.String(), "amount": payment.Amount.StringFixed(2),
	})
	return payment, nil
}

// settlementStatus derives the bill status from its running totals.
func settlementStatus(b Bill) BillStatus {
	switch {
	case b.Outstanding().IsZero():
		return BillStatusPaid
	case b.PaidAmount.IsPositive():
		return BillStatusPartial
	default:
		return BillStatusUnpaid
	}
}

// GetBill returns one bill with lines.
func (s *Service) GetBill(ctx context.Context, authz shared.AuthorizationContext, id uuid.UUID) (Bill, error) {
	if err := authz.Validate(); err != nil {
		return Bill{}, err
	}
	return s.store.GetBill(ctx, authz.BusinessID, id)
}

// ListBills returns a page of bills, newest first, optionally by status.
func (s *Service) ListBills(ctx context.Context, authz shared.AuthorizationContext, status BillStatus, limit, offset int) ([]Bill, error) {
	if err := authz.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListBills(ctx, authz.BusinessID, status, limit, offset)
}

// ListPayments returns a bill's payments in order.
func (s *Service) ListPayments(ctx context.Context, authz shared.AuthorizationContext, billID uuid.UUID) ([]Payment, error) {
	if err := authz.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListPayments(ctx, authz.BusinessID, billID)
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

func billAudit(b Bill) map[string]any {
	return map[string]any{
		"number": b.Number,
		"vendor": b.VendorID,
		"date":   b.BillDate.Format(time.DateOnly),
		"amount": b.Amount.StringFixed(2),
		"status": string(b.Status),
	}
}
