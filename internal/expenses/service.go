package expenses

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

// Service posts expense and other-income documents. Every write composes the
// document row and its ledger batch in one transaction.
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

// CreateExpense numbers, stores and posts one expense. The paid-from account
// must be cash/bank and must hold the full amount at posting time.
func (s *Service) CreateExpense(ctx context.Context, authz shared.AuthorizationContext, in ExpenseInput) (Expense, error) {
	if err := authz.Validate(); err != nil {
		return Expense{}, err
	}
	if err := in.validate(); err != nil {
		return Expense{}, err
	}

	var expense Expense
	err := db.WithTx(ctx, s.repo.Pool(), func(tx pgx.Tx) error {
		paidFrom, err := s.checkExpenseAccounts(ctx, tx, authz, in)
		if err != nil {
			return err
		}
		number, err := sequence.Next(ctx, tx, authz.BusinessID, sequence.DocTypeExpense)
		if err != nil {
			return err
		}
		now := s.now()
		expense = Expense{
			ID:                uuid.New(),
			BusinessID:        authz.BusinessID,
			BranchID:          authz.SelectedBranchID,
			Number:            number,
			ExpenseDate:       in.ExpenseDate,
			Description:       in.Description,
			Reference:         in.Reference,
			ExpenseAccountID:  in.ExpenseAccountID,
			PaidFromAccountID: paidFrom.ID,
			SubTotal:          in.SubTotal.Round(2),
			VATAmount:         in.VATAmount.Round(2),
			Amount:            in.Total(),
			CreatedBy:         authz.ActorID,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		expense, err = insertExpenseTx(ctx, tx, expense)
		if err != nil {
			return err
		}
		return s.postExpenseTx(ctx, tx, expense)
	})
	if err != nil {
		return Expense{}, err
	}
	s.recordAudit(ctx, authz, "expense.create", "expense", expense.ID.String(), nil, expenseAudit(expense))
	return expense, nil
}

// UpdateExpense reposts: the old batch is deleted and a fresh one written,
// both gated on their respective document dates.
func (s *Service) UpdateExpense(ctx context.Context, authz shared.AuthorizationContext, id uuid.UUID, in ExpenseInput) (Expense, error) {
	if err := authz.Validate(); err != nil {
		return Expense{}, err
	}
	if err := in.validate(); err != nil {
		return Expense{}, err
	}

	var before, expense Expense
	err := db.WithTx(ctx, s.repo.Pool(), func(tx pgx.Tx) error {
		var err error
		before, err = scanExpense(tx.QueryRow(ctx,
			`SELECT `+expenseColumns+` FROM expenses WHERE business_id = $1 AND id = $2 FOR UPDATE`,
			authz.BusinessID, id))
		if err != nil {
			return err
		}
		if err := s.engine.DeleteForSourceInTx(ctx, tx, authz.BusinessID, ledger.SourceExpense, id, before.ExpenseDate); err != nil {
			return err
		}
		// The old lines are gone inside this transaction, so the funds check
		// sees the balance without this document's previous outflow.
		paidFrom, err := s.checkExpenseAccounts(ctx, tx, authz, in)
		if err != nil {
			return err
		}
		expense = before
		expense.ExpenseDate = in.ExpenseDate
		expense.Description = in.Description
		expense.Reference = in.Reference
		expense.ExpenseAccountID = in.ExpenseAccountID
		expense.PaidFromAccountID = paidFrom.ID
		expense.SubTotal = in.SubTotal.Round(2)
		expense.VATAmount = in.VATAmount.Round(2)
		expense.Amount = in.Total()
		expense.UpdatedAt = s.now()
		expense, err = updateExpenseTx(ctx, tx, expense)
		if err != nil {
			return err
		}
		return s.postExpenseTx(ctx, tx, expense)
	})
	if err != nil {
		return Expense{}, err
	}
	s.recordAudit(ctx, authz, "expense.update", "expense", expense.ID.String(), expenseAudit(before), expenseAudit(expense))
	return expense, nil
}

// DeleteExpense removes the document and its ledger batch. Fails once the
// covering period is closed.
func (s *Service) DeleteExpense(ctx context.Context, authz shared.AuthorizationContext, id uuid.UUID) error {
	if err := authz.Validate(); err != nil {
		return err
	}
	var before Expense
	err := db.WithTx(ctx, s.repo.Pool(), func(tx pgx.Tx) error {
		var err error
		before, err = scanExpense(tx.QueryRow(ctx,
			`SELECT `+expenseColumns+` FROM expenses WHERE business_id = $1 AND id = $2 FOR UPDATE`,
			authz.BusinessID, id))
		if err != nil {
			return err
		}
		if err := s.engine.DeleteForSourceInTx(ctx, tx, authz.BusinessID, ledger.SourceExpense, id, before.ExpenseDate); err != nil {
			return err
		}
		return deleteExpenseTx(ctx, tx, authz.BusinessID, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, authz, "expense.delete", "expense", id.String(), expenseAudit(before), nil)
	return nil
}

// GetExpense returns one expense.
func (s *Service) GetExpense(ctx context.Context, authz shared.AuthorizationContext, id uuid.UUID) (Expense, error) {
	if err := authz.Validate(); err != nil {
		return Expense{}, err
	}
	return s.repo.GetExpense(ctx, authz.BusinessID, id)
}

// ListExpenses returns a page of expenses, newest first.
func (s *Service) ListExpenses(ctx context.Context, authz shared.AuthorizationContext, limit, offset int) ([]Expense, error) {
	if err := authz.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListExpenses(ctx, authz.BusinessID, limit, offset)
}

// checkExpenseAccounts resolves both accounts, requires the paid-from side to
// be cash/bank and enforces the funds precondition.
func (s *Service) checkExpenseAccounts(ctx context.Context, tx pgx.Tx, authz shared.AuthorizationContext, in ExpenseInput) (accounts.Account, error) {
	got, err := accounts.GetManyTx(ctx, tx, authz.BusinessID, []int64{in.ExpenseAccountID, in.PaidFromAccountID})
	if err != nil {
		return accounts.Account{}, err
	}
	paidFrom := got[in.PaidFromAccountID]
	if !paidFrom.IsCashBank {
		return accounts.Account{}, ErrFundingAccountNotCash
	}
	if err := accounts.EnsureSufficientFundsTx(ctx, tx, paidFrom, in.Total()); err != nil {
		return accounts.Account{}, err
	}
	return paidFrom, nil
}

// expenseLines builds the batch: debit expense (net), debit VAT receivable
// when VAT is charged, credit the funding account (gross).
func expenseLines(e Expense, vatAccountID int64) []ledger.LineInput {
	lines := []ledger.LineInput{
		{AccountID: e.ExpenseAccountID, Debit: e.SubTotal, Description: e.Description},
	}
	if e.VATAmount.IsPositive() {
		lines = append(lines, ledger.LineInput{AccountID: vatAccountID, Debit: e.VATAmount, Description: "VAT on " + e.Number})
	}
	return append(lines, ledger.LineInput{AccountID: e.PaidFromAccountID, Credit: e.Amount, Description: e.Description})
}

func (s *Service) postExpenseTx(ctx context.Context, tx pgx.Tx, e Expense) error {
	var vatAccountID int64
	if e.VATAmount.IsPositive() {
		vat, err := accounts.EnsureSystemAccountTx(ctx, tx, e.BusinessID, accounts.SystemVATReceivable)
		if err != nil {
			return err
		}
		vatAccountID = vat.ID
	}
	_, err := s.engine.PostInTx(ctx, tx, ledger.PostingInput{
		BusinessID:  e.BusinessID,
		BranchID:    e.BranchID,
		Date:        e.ExpenseDate,
		Description: e.Description,
		Reference:   e.Number,
		SourceType:  ledger.SourceExpense,
		SourceID:    e.ID,
		Lines:       expenseLines(e, vatAccountID),
	})
	return err
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

func expenseAudit(e Expense) map[string]any {
	return map[string]any{
		"number":       e.Number,
		"date":         e.ExpenseDate.Format(time.DateOnly),
		"amount":       e.Amount.StringFixed(2),
		"expense_acct": e.ExpenseAccountID,
		"paid_from":    e.PaidFromAccountID,
	}
}

func incomeAudit(o OtherIncome) map[string]any {
	return map[string]any{
		"number":        o.Number,
		"date":          o.IncomeDate.Format(time.DateOnly),
		"amount":        o.Amount.StringFixed(2),
		"income_acct":   o.IncomeAccountID,
		"received_into": o.ReceivedIntoAccountID,
	}
}
