package fiscal

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/ledger/accounts"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

const openingColumns = `id, doc_id, business_id, fiscal_year_id, entry_number, entry_date, account_id, debit, credit, description, is_posted, created_at`

func scanOpening(row pgx.Row) (OpeningBalance, error) {
	var o OpeningBalance
	err := row.Scan(&o.ID, &o.DocID, &o.BusinessID, &o.YearID, &o.EntryNumber, &o.EntryDate,
		&o.AccountID, &o.Debit, &o.Credit, &o.Description, &o.IsPosted, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OpeningBalance{}, fmt.Errorf("%w: opening balance", shared.ErrNotFound)
		}
		return OpeningBalance{}, err
	}
	return o, nil
}

func (r *Repository) InsertOpeningTx(ctx context.Context, tx pgx.Tx, businessID, yearID int64, number string, in OpeningBalanceInput) (OpeningBalance, error) {
	return scanOpening(tx.QueryRow(ctx, `INSERT INTO opening_balance_entries
(doc_id, business_id, fiscal_year_id, entry_number, entry_date, account_id, debit, credit, description, is_posted)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,FALSE) RETURNING `+openingColumns,
		uuid.New(), businessID, yearID, number, in.EntryDate, in.AccountID, in.Debit.Round(2), in.Credit.Round(2), in.Description))
}

func (r *Repository) ListOpeningBalances(ctx context.Context, businessID, yearID int64) ([]OpeningBalance, error) {
	rows, err := r.db.Query(ctx, `SELECT `+openingColumns+` FROM opening_balance_entries
WHERE business_id=$1 AND fiscal_year_id=$2 ORDER BY id`, businessID, yearID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OpeningBalance
	for rows.Next() {
		o, err := scanOpening(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repository) LockUnpostedOpeningsTx(ctx context.Context, tx pgx.Tx, businessID, yearID int64) ([]OpeningBalance, error) {
	rows, err := tx.Query(ctx, `SELECT `+openingColumns+` FROM opening_balance_entries
WHERE business_id=$1 AND fiscal_year_id=$2 AND NOT is_posted ORDER BY id FOR UPDATE`, businessID, yearID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OpeningBalance
	for rows.Next() {
		o, err := scanOpening(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repository) MarkOpeningPostedTx(ctx context.Context, tx pgx.Tx, id int64) error {
	_, err := tx.Exec(ctx, `UPDATE opening_balance_entries SET is_posted=TRUE WHERE id=$1`, id)
	return err
}

// CreateOpeningBalance records one draft opening entry for a year. Drafts
// have no ledger effect until posted.
func (s *Service) CreateOpeningBalance(ctx context.Context, authz shared.AuthorizationContext, yearID int64, in OpeningBalanceInput) (OpeningBalance, error) {
	balances, err := s.BulkCreateOpeningBalances(ctx, authz, yearID, []OpeningBalanceInput{in})
	if err != nil {
		return OpeningBalance{}, err
	}
	return balances[0], nil
}

// BulkCreateOpeningBalances records a set of draft opening entries in one
// transaction, numbering each from the business's OB sequence.
func (s *Service) BulkCreateOpeningBalances(ctx context.Context, authz shared.AuthorizationContext, yearID int64, ins []OpeningBalanceInput) ([]OpeningBalance, error) {
	if err := authz.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrValidation, err)
	}
	if len(ins) == 0 {
		return nil, fmt.Errorf("%w: at least one opening balance required", shared.ErrValidation)
	}
	year, err := s.store.GetYear(ctx, authz.BusinessID, yearID)
	if err != nil {
		return nil, err
	}
	if year.IsClosed {
		return nil, ErrYearAlreadyClosed
	}
	for _, in := range ins {
		if err := in.Validate(); err != nil {
			return nil, err
		}
	}
	var out []OpeningBalance
	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		for _, in := range ins {
			if _, err := s.store.GetAccountTx(ctx, tx, authz.BusinessID, in.AccountID); err != nil {
				return err
			}
			number, err := s.store.NextNumberTx(ctx, tx, authz.BusinessID, sequence.DocTypeOpeningBalance)
			if err != nil {
				return err
			}
			balance, err := s.store.InsertOpeningTx(ctx, tx, authz.BusinessID, year.ID, number, in)
			if err != nil {
				return err
			}
			out = append(out, balance)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) ListOpeningBalances(ctx context.Context, authz shared.AuthorizationContext, yearID int64) ([]OpeningBalance, error) {
	return s.store.ListOpeningBalances(ctx, authz.BusinessID, yearID)
}

// PostOpeningBalances materializes every unposted draft of the year as
// ledger lines balanced against Opening Balance Equity, atomically.
func (s *Service) PostOpeningBalances(ctx context.Context, authz shared.AuthorizationContext, yearID int64) (int, error) {
	if err := authz.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %s", shared.ErrValidation, err)
	}
	year, err := s.store.GetYear(ctx, authz.BusinessID, yearID)
	if err != nil {
		return 0, err
	}
	posted := 0
	err = s.store.WithTx(ctx, func(tx pgx.Tx) error {
		drafts, err := s.store.LockUnpostedOpeningsTx(ctx, tx, authz.BusinessID, year.ID)
		if err != nil {
			return err
		}
		if len(drafts) == 0 {
			return nil
		}
		equity, err := s.store.EnsureSystemAccountTx(ctx, tx, authz.BusinessID, accounts.SystemOpeningBalanceEquity)
		if err != nil {
			return err
		}
		for _, draft := range drafts {
			lines := []ledger.LineInput{
				{AccountID: draft.AccountID, Debit: draft.Debit, Credit: draft.Credit},
			}
			if draft.Debit.IsPositive() {
				lines = append(lines, ledger.LineInput{AccountID: equity.ID, Credit: draft.Debit})
			} else {
				lines = append(lines, ledger.LineInput{AccountID: equity.ID, Debit: draft.Credit})
			}
			docID, err := uuid.Parse(draft.DocID)
			if err != nil {
				return fmt.Errorf("fiscal: opening balance %d has invalid doc id: %w", draft.ID, err)
			}
			_, err = s.engine.PostInTx(ctx, tx, ledger.PostingInput{
				BusinessID:  authz.BusinessID,
				BranchID:    authz.SelectedBranchID,
				Date:        draft.EntryDate,
				Description: openingDescription(draft),
				Reference:   draft.EntryNumber,
				SourceType:  ledger.SourceOpeningBalance,
				SourceID:    docID,
				Lines:       lines,
			})
			if err != nil {
				return err
			}
			if err := s.store.MarkOpeningPostedTx(ctx, tx, draft.ID); err != nil {
				return err
			}
			posted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if posted > 0 {
		s.recordAudit(ctx, authz, "fiscal.opening_balances.post", "fiscal_year", fmt.Sprint(yearID), nil, map[string]any{"posted": posted})
	}
	return posted, nil
}

func openingDescription(o OpeningBalance) string {
	if o.Description != "" {
		return o.Description
	}
	return fmt.Sprintf("Opening balance %s", o.EntryNumber)
}
