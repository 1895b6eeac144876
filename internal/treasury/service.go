package treasury

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/ledger/accounts"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Service posts fund transfers and bank reconciliation adjustments.
type Service struct {
	repo   *Repository
	engine *ledger.Engine
	audit  shared.AuditSink
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo *Repository, engine *ledger.Engine, audit shared.AuditSink, logger *slog.Logger) *Service {
	return &Service{repo: repo, engine: engine, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	s.now = now
}

// Transfer moves money between two cash/bank accounts: debit destination,
// credit source. The source must hold the full amount at posting time.
func (s *Service) Transfer(ctx context.Context, authz shared.AuthorizationContext, in TransferInput) (FundTransfer, error) {
	if err := authz.Validate(); err != nil {
		return FundTransfer{}, err
	}
	if err := in.validate(); err != nil {
		return FundTransfer{}, err
	}

	var transfer FundTransfer
	err := db.WithTx(ctx, s.repo.Pool(), func(tx pgx.Tx) error {
		from, err := accounts.GetTx(ctx, tx, authz.BusinessID, in.FromAccountID)
		if err != nil {
			return err
		}
		to, err := accounts.GetTx(ctx, tx, authz.BusinessID, in.ToAccountID)
		if err != nil {
			return err
		}
		if !from.IsCashBank || !to.IsCashBank {
			return ErrTransferAccountNotCash
		}
		if err := accounts.EnsureSufficientFundsTx(ctx, tx, from, in.Amount); err != nil {
			return err
		}
		number, err := sequence.Next(ctx, tx, authz.BusinessID, sequence.DocTypeFundTransfer)
		if err != nil {
			return err
		}
		transfer = FundTransfer{
			ID:            uuid.New(),
			BusinessID:    authz.BusinessID,
			BranchID:      authz.SelectedBranchID,
			Number:        number,
			TransferDate:  in.TransferDate,
			FromAccountID: from.ID,
			ToAccountID:   to.ID,
			Amount:        in.Amount.Round(2),
			Description:   in.Description,
			Reference:     in.Reference,
			CreatedBy:     authz.ActorID,
			CreatedAt:     s.now(),
		}
		transfer, err = insertTransferTx(ctx, tx, transfer)
		if err != nil {
			return err
		}
		_, err = s.engine.PostInTx(ctx, tx, ledger.PostingInput{
			BusinessID:  transfer.BusinessID,
			BranchID:    transfer.BranchID,
			Date:        transfer.TransferDate,
			Description: transferDescription(transfer),
			Reference:   transfer.Number,
			SourceType:  ledger.SourceFundTransfer,
			SourceID:    transfer.ID,
			Lines: []ledger.LineInput{
				{AccountID: to.ID, Debit: transfer.Amount, Description: transferDescription(transfer)},
				{AccountID: from.ID, Credit: transfer.Amount, Description: transferDescription(transfer)},
			},
		})
		return err
	})
	if err != nil {
		return FundTransfer{}, err
	}
	s.recordAudit(ctx, authz, "fund_transfer.create", "fund_transfer", transfer.ID.String(), nil, transferAudit(transfer))
	return transfer, nil
}

func transferDescription(t FundTransfer) string {
	if t.Description != "" {
		return t.Description
	}
	return "Fund transfer " + t.Number
}

// CreateAdjustment books a statement line with no source document. The bank
// side follows the direction; the counter account follows the type.
func (s *Service) CreateAdjustment(ctx context.Context, authz shared.AuthorizationContext, in AdjustmentInput) (BankAdjustment, error) {
	if err := authz.Validate(); err != nil {
		return BankAdjustment{}, err
	}
	if err := in.validate(); err != nil {
		return BankAdjustment{}, err
	}

	var adjustment BankAdjustment
	err := db.WithTx(ctx, s.repo.Pool(), func(tx pgx.Tx) error {
		bank, err := accounts.GetTx(ctx, tx, authz.BusinessID, in.BankAccountID)
		if err != nil {
			return err
		}
		if !bank.IsCashBank {
			return ErrBankAccountNotCash
		}
		counter, err := accounts.EnsureSystemAccountTx(ctx, tx, authz.BusinessID, counterAccountKind(in.Type))
		if err != nil {
			return err
		}
		if in.Direction == DirectionDecrease {
			if err := accounts.EnsureSufficientFundsTx(ctx, tx, bank, in.Amount); err != nil {
				return err
			}
		}
		number, err := sequence.Next(ctx, tx, authz.BusinessID, sequence.DocTypeBankAdjustment)
		if err != nil {
			return err
		}
		adjustment = BankAdjustment{
			ID:             uuid.New(),
			BusinessID:     authz.BusinessID,
			BranchID:       authz.SelectedBranchID,
			Number:         number,
			AdjustmentDate: in.AdjustmentDate,
			BankAccountID:  bank.ID,
			Type:           in.Type,
			Direction:      in.Direction,
			Amount:         in.Amount.Round(2),
			Description:    in.Description,
			Reference:      in.Reference,
			CreatedBy:      authz.ActorID,
			CreatedAt:      s.now(),
		}
		adjustment, err = insertAdjustmentTx(ctx, tx, adjustment)
		if err != nil {
			return err
		}
		_, err = s.engine.PostInTx(ctx, tx, ledger.PostingInput{
			BusinessID:  adjustment.BusinessID,
			BranchID:    adjustment.BranchID,
			Date:        adjustment.AdjustmentDate,
			Description: adjustmentDescription(adjustment),
			Reference:   adjustment.Number,
			SourceType:  ledger.SourceBankAdjustment,
			SourceID:    adjustment.ID,
			Lines:       adjustmentLines(adjustment, bank.ID, counter.ID),
		})
		return err
	})
	if err != nil {
		return BankAdjustment{}, err
	}
	s.recordAudit(ctx, authz, "bank_adjustment.create", "bank_adjustment", adjustment.ID.String(), nil, adjustmentAudit(adjustment))
	return adjustment, nil
}

// counterAccountKind maps an adjustment type to its balancing system account.
func counterAccountKind(t AdjustmentType) accounts.SystemAccountKind {
	switch t {
	case AdjustmentBankCharge:
		return accounts.SystemBankCharges
	case AdjustmentInterest:
		return accounts.SystemInterestIncome
	default:
		return accounts.SystemSuspense
	}
}

// adjustmentLines puts the bank on the side the direction names and the
// counter account on the other.
func adjustmentLines(a BankAdjustment, bankAccountID, counterAccountID int64) []ledger.LineInput {
	desc := adjustmentDescription(a)
	if a.Direction == DirectionIncrease {
		return []ledger.LineInput{
			{AccountID: bankAccountID, Debit: a.Amount, Description: desc},
			{AccountID: counterAccountID, Credit: a.Amount, Description: desc},
		}
	}
	return []ledger.LineInput{
		{AccountID: counterAccountID, Debit: a.Amount, Description: desc},
		{AccountID: bankAccountID, Credit: a.Amount, Description: desc},
	}
}

func adjustmentDescription(a BankAdjustment) string {
	if a.Description != "" {
		return a.Description
	}
	return "Bank adjustment " + a.Number
}

// GetTransfer returns one transfer.
func (s *Service) GetTransfer(ctx context.Context, authz shared.AuthorizationContext, id uuid.UUID) (FundTransfer, error) {
	if err := authz.Validate(); err != nil {
		return FundTransfer{}, err
	}
	return s.repo.GetTransfer(ctx, authz.BusinessID, id)
}

// ListTransfers returns transfers newest first.
func (s *Service) ListTransfers(ctx context.Context, authz shared.AuthorizationContext, limit, offset int) ([]FundTransfer, error) {
	if err := authz.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListTransfers(ctx, authz.BusinessID, limit, offset)
}

// GetAdjustment returns one adjustment.
func (s *Service) GetAdjustment(ctx context.Context, authz shared.AuthorizationContext, id uuid.UUID) (BankAdjustment, error) {
	if err := authz.Validate(); err != nil {
		return BankAdjustment{}, err
	}
	return s.repo.GetAdjustment(ctx, authz.BusinessID, id)
}

// ListAdjustments returns adjustments newest first, optionally filtered by
// bank account.
func (s *Service) ListAdjustments(ctx context.Context, authz shared.AuthorizationContext, bankAccountID int64, limit, offset int) ([]BankAdjustment, error) {
	if err := authz.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListAdjustments(ctx, authz.BusinessID, bankAccountID, limit, offset)
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

func transferAudit(t FundTransfer) map[string]any {
	return map[string]any{
		"number": t.Number,
		"date":   t.TransferDate.Format(time.DateOnly),
		"from":   t.FromAccountID,
		"to":     t.ToAccountID,
		"amount": t.Amount.StringFixed(2),
	}
}

func adjustmentAudit(a BankAdjustment) map[string]any {
	return map[string]any{
		"number":    a.Number,
		"date":      a.AdjustmentDate.Format(time.DateOnly),
		"account":   a.BankAccountID,
		"type":      string(a.Type),
		"direction": string(a.Direction),
		"amount":    a.Amount.StringFixed(2),
	}
}
