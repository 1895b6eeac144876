package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger/accounts"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
)

// CashDirection marks money flowing into or out of a cash/bank account.
type CashDirection string

const (
	CashIn  CashDirection = "in"
	CashOut CashDirection = "out"
)

// CashBookEntry is the denormalized, human-readable running-balance view of
// one cash/bank movement. Derived from the ledger; never authoritative.
type CashBookEntry struct {
	ID           int64
	BusinessID   int64
	BranchID     int64
	Number       string
	AccountID    int64
	EntryDate    time.Time
	Description  string
	Reference    string
	Amount       decimal.Decimal
	Direction    CashDirection
	BalanceAfter decimal.Decimal
	SourceType   SourceType
	SourceID     uuid.UUID
	CreatedAt    time.Time
}

// mirrorCashBook writes one cash-book row per posted line that touches a
// cash/bank account, carrying a balance snapshot computed after the batch's
// own lines landed. Runs inside the posting transaction.
func mirrorCashBook(ctx context.Context, tx pgx.Tx, in PostingInput, batchAccounts map[int64]accounts.Account) error {
	for _, line := range in.Lines {
		account, ok := batchAccounts[line.AccountID]
		if !ok || !account.IsCashBank {
			continue
		}
		direction := CashIn
		amount := line.Debit
		docType := sequence.DocTypeCashReceipt
		if line.Credit.IsPositive() {
			direction = CashOut
			amount = line.Credit
			docType = sequence.DocTypeCashPayment
		}
		number, err := sequence.Next(ctx, tx, in.BusinessID, docType)
		if err != nil {
			return err
		}
		debit, credit, err := accounts.SumsTx(ctx, tx, in.BusinessID, line.AccountID, accounts.BalanceQuery{})
		if err != nil {
			return err
		}
		balanceAfter := accounts.SignedBalance(account.Type, debit, credit)
		description := line.Description
		if description == "" {
			description = in.Description
		}
		if _, err := tx.Exec(ctx, `INSERT INTO cash_book_entries
(business_id, branch_id, number, account_id, entry_date, description, reference, amount, direction, balance_after, source_document_type, source_document_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			in.BusinessID, in.BranchID, number, line.AccountID, in.Date, description, in.Reference,
			amount.Round(2), direction, balanceAfter.Round(2), in.SourceType, in.SourceID); err != nil {
			return err
		}
	}
	return nil
}

const cashBookColumns = `id, business_id, branch_id, number, account_id, entry_date, description, reference, amount, direction, balance_after, source_document_type, source_document_id, created_at`

// ListCashBook returns the cash-book view for one cash/bank account.
func ListCashBook(ctx context.Context, pool *pgxpool.Pool, businessID, accountID int64, limit, offset int) ([]CashBookEntry, error) {
	rows, err := pool.Query(ctx, `SELECT `+cashBookColumns+` FROM cash_book_entries
WHERE business_id=$1 AND account_id=$2 ORDER BY entry_date DESC, id DESC LIMIT $3 OFFSET $4`,
		businessID, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CashBookEntry
	for rows.Next() {
		var c CashBookEntry
		if err := rows.Scan(&c.ID, &c.BusinessID, &c.BranchID, &c.Number, &c.AccountID, &c.EntryDate,
			&c.Description, &c.Reference, &c.Amount, &c.Direction, &c.BalanceAfter,
			&c.SourceType, &c.SourceID, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
