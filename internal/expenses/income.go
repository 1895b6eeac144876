package expenses

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/ledger/accounts"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// CreateIncome numbers, stores and posts one other-income document. Inflows
// carry no funds precondition.
func (s *Service) CreateIncome(ctx context.Context, authz shared.AuthorizationContext, in IncomeInput) (OtherIncome, error) {
	if err := authz.Validate(); err != nil {
		return OtherIncome{}, err
	}
	if err := in.validate(); err != nil {
		return OtherIncome{}, err
	}

	var income OtherIncome
	err := db.WithTx(ctx, s.repo.Pool(), func(tx pgx.Tx) error {
		if err := s.checkIncomeAccounts(ctx, tx, authz, in); err != nil {
			return err
		}
		number, err := sequence.Next(ctx, tx, authz.BusinessID, sequence.DocTypeOtherIncome)
		if err != nil {
			return err
		}
		now := s.now()
		income = OtherIncome{
			ID:                    uuid.New(),
			BusinessID:            authz.BusinessID,
			BranchID:              authz.SelectedBranchID,
			Number:                number,
			IncomeDate:            in.IncomeDate,
			Description:           in.Description,
			Reference:             in.Reference,
			IncomeAccountID:       in.IncomeAccountID,
			ReceivedIntoAccountID: in.ReceivedIntoAccountID,
			SubTotal:              in.SubTotal.Round(2),
			VATAmount:             in.VATAmount.Round(2),
			Amount:                in.Total(),
			CreatedBy:             authz.ActorID,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		income, err = insertIncomeTx(ctx, tx, income)
		if err != nil {
			return err
		}
		return s.postIncomeTx(ctx, tx, income)
	})
	if err != nil {
		return OtherIncome{}, err
	}
	s.recordAudit(ctx, authz, "other_income.create", "other_income", income.ID.String(), nil, incomeAudit(income))
	return income, nil
}

// UpdateIncome reposts the document under the new values.
func (s *Service) UpdateIncome(ctx context.Context, authz shared.AuthorizationContext, id uuid.UUID, in IncomeInput) (OtherIncome, error) {
	if err := authz.Validate(); err != nil {
		return OtherIncome{}, err
	}
	if err := in.validate(); err != nil {
		return OtherIncome{}, err
	}

	var before, income OtherIncome
	err := db.WithTx(ctx, s.repo.Pool(), func(tx pgx.Tx) error {
		var err error
		before, err = scanIncome(tx.QueryRow(ctx,
			`SELECT `+incomeColumns+` FROM other_incomes WHERE business_id = $1 AND id = $2 FOR UPDATE`,
			authz.BusinessID, id))
		if err != nil {
			return err
		}
		if err := s.engine.DeleteForSourceInTx(ctx, tx, authz.BusinessID, ledger.SourceOtherIncome, id, before.IncomeDate); err != nil {
			return err
		}
		if err := s.checkIncomeAccounts(ctx, tx, authz, in); err != nil {
			return err
		}
		income = before
		income.IncomeDate = in.IncomeDate
		income.Description = in.Description
		income.Reference = in.Reference
		income.IncomeAccountID = in.IncomeAccountID
		income.ReceivedIntoAccountID = in.ReceivedIntoAccountID
		income.SubTotal = in.SubTotal.Round(2)
		income.VATAmount = in.VATAmount.Round(2)
		income.Amount = in.Total()
		income.UpdatedAt = s.now()
		income, err = updateIncomeTx(ctx, tx, income)
		if err != nil {
			return err
		}
		return s.postIncomeTx(ctx, tx, income)
	})
	if err != nil {
		return OtherIncome{}, err
	}
	s.recordAudit(ctx, authz, "other_income.update", "other_income", income.ID.String(), incomeAudit(before), incomeAudit(income))
	return income, nil
}

// DeleteIncome removes the document and its ledger batch, period permitting.
func (s *Service) DeleteIncome(ctx context.Context, authz shared.AuthorizationContext, id uuid.UUID) error {
	if err := authz.Validate(); err != nil {
		return err
	}
	var before OtherIncome
	err := db.WithTx(ctx, s.repo.Pool(), func(tx pgx.Tx) error {
		var err error
		before, err = scanIncome(tx.QueryRow(ctx,
			`SELECT `+incomeColumns+` FROM other_incomes WHERE business_id = $1 AND id = $2 FOR UPDATE`,
			authz.BusinessID, id))
		if err != nil {
			return err
		}
		if err := s.engine.DeleteForSourceInTx(ctx, tx, authz.BusinessID, ledger.SourceOtherIncome, id, before.IncomeDate); err != nil {
			return err
		}
		return deleteIncomeTx(ctx, tx, authz.BusinessID, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, authz, "other_income.delete", "other_income", id.String(), incomeAudit(before), nil)
	return nil
}

// GetIncome returns one other-income document.
func (s *Service) GetIncome(ctx context.Context, authz shared.AuthorizationContext, id uuid.UUID) (OtherIncome, error) {
	if err := authz.Validate(); err != nil {
		return OtherIncome{}, err
	}
	return s.repo.GetIncome(ctx, authz.BusinessID, id)
}

// ListIncomes returns a page of other-income documents, newest first.
func (s *Service) ListIncomes(ctx context.Context, authz shared.AuthorizationContext, limit, offset int) ([]OtherIncome, error) {
	if err := authz.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListIncomes(ctx, authz.BusinessID, limit, offset)
}

func (s *Service) checkIncomeAccounts(ctx context.Context, tx pgx.Tx, authz shared.AuthorizationContext, in IncomeInput) error {
	got, err := accounts.GetManyTx(ctx, tx, authz.BusinessID, []int64{in.IncomeAccountID, in.ReceivedIntoAccountID})
	if err != nil {
		return err
	}
	if !got[in.ReceivedIntoAccountID].IsCashBank {
		return ErrReceivingAccountNotCash
	}
	return nil
}

// incomeLines builds the mirror of an expense batch: debit the receiving
// account (gross), credit income (net) and VAT payable when VAT is charged.
func incomeLines(o OtherIncome, vatAccountID int64) []ledger.LineInput {
	lines := []ledger.LineInput{
		{AccountID: o.ReceivedIntoAccountID, Debit: o.Amount, Description: o.Description},
		{AccountID: o.IncomeAccountID, Credit: o.SubTotal, Description: o.Description},
	}
	if o.VATAmount.IsPositive() {
		lines = append(lines, ledger.LineInput{AccountID: vatAccountID, Credit: o.VATAmount, Description: "VAT on " + o.Number})
	}
	return lines
}

func (s *Service) postIncomeTx(ctx context.Context, tx pgx.Tx, o OtherIncome) error {
	var vatAccountID int64
	if o.VATAmount.IsPositive() {
		vat, err := accounts.EnsureSystemAccountTx(ctx, tx, o.BusinessID, accounts.SystemVATPayable)
		if err != nil {
			return err
		}
		vatAccountID = vat.ID
	}
	_, err := s.engine.PostInTx(ctx, tx, ledger.PostingInput{
		BusinessID:  o.BusinessID,
		BranchID:    o.BranchID,
		Date:        o.IncomeDate,
		Description: o.Description,
		Reference:   o.Number,
		SourceType:  ledger.SourceOtherIncome,
		SourceID:    o.ID,
		Lines:       incomeLines(o, vatAccountID),
	})
	return err
}
