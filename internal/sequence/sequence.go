// Package sequence issues business-scoped document numbers of the form
// PREFIX-NNNNN. Assignment is serialized per (business, document type) by
// the doc_sequences row the upsert locks, so concurrent writers cannot
// compute the same next number.
package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// DocType identifies an independent numbering sequence.
type DocType string

const (
	DocTypeExpense        DocType = "expense"
	DocTypeOtherIncome    DocType = "other_income"
	DocTypePurchaseBill   DocType = "purchase_bill"
	DocTypeSalesInvoice   DocType = "sales_invoice"
	DocTypeCreditNote     DocType = "credit_note"
	DocTypeDebitNote      DocType = "debit_note"
	DocTypeDepreciation   DocType = "depreciation"
	DocTypeFundTransfer   DocType = "fund_transfer"
	DocTypeBankAdjustment DocType = "bank_adjustment"
	DocTypeOpeningBalance DocType = "opening_balance"
	DocTypeCashPayment    DocType = "cash_payment"
	DocTypeCashReceipt    DocType = "cash_receipt"
)

var prefixes = map[DocType]string{
	DocTypeExpense:        "EXP",
	DocTypeOtherIncome:    "INC",
	DocTypePurchaseBill:   "BILL",
	DocTypeSalesInvoice:   "INV",
	DocTypeCreditNote:     "CN",
	DocTypeDebitNote:      "DN",
	DocTypeDepreciation:   "DEP",
	DocTypeFundTransfer:   "TRF",
	DocTypeBankAdjustment: "ADJ",
	DocTypeOpeningBalance: "OB",
	DocTypeCashPayment:    "CP",
	DocTypeCashReceipt:    "CR",
}

// ErrUnknownDocType indicates a sequence was requested for an unmapped type.
var ErrUnknownDocType = errors.New("sequence: unknown document type")

// Prefix returns the human-readable prefix for a document type.
func Prefix(docType DocType) (string, error) {
	p, ok := prefixes[docType]
	if !ok {
		return "", ErrUnknownDocType
	}
	return p, nil
}

// Next reserves and formats the next number inside the caller's transaction.
// The row stays locked until the surrounding tx commits, so the number is
// only burned when the document write succeeds.
func Next(ctx context.Context, tx pgx.Tx, businessID int64, docType DocType) (string, error) {
	prefix, err := Prefix(docType)
	if err != nil {
		return "", err
	}
	var value int64
	err = tx.QueryRow(ctx, `INSERT INTO doc_sequences (business_id, doc_type, last_value)
VALUES ($1, $2, 1)
ON CONFLICT (business_id, doc_type)
DO UPDATE SET last_value = doc_sequences.last_value + 1
RETURNING last_value`, businessID, string(docType)).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("sequence: next %s: %w", docType, err)
	}
	return Format(prefix, value), nil
}

// Format renders PREFIX-NNNNN with 5-digit zero padding. Values beyond
// 99999 keep their full width rather than wrapping.
func Format(prefix string, value int64) string {
	return fmt.Sprintf("%s-%05d", prefix, value)
}
