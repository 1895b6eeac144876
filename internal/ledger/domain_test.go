package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func validInput() PostingInput {
	return PostingInput{
		BusinessID: 1,
		BranchID:   1,
		Date:       time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		SourceType: SourceExpense,
		SourceID:   uuid.New(),
		Lines: []LineInput{
			{AccountID: 10, Debit: dec("110.00")},
			{AccountID: 20, Credit: dec("110.00")},
		},
	}
}

func TestPostingInputValidateOK(t *testing.T) {
	assert.NoError(t, validInput().Validate())
}

func TestPostingInputUnbalanced(t *testing.T) {
	in := validInput()
	in.Lines[1].Credit = dec("100.00")
	err := in.Validate()
	assert.ErrorIs(t, err, ErrUnbalanced)
	assert.ErrorIs(t, err, shared.ErrBusinessRule)
}

func TestPostingInputSubCentResidueUnbalanced(t *testing.T) {
	// Raw sums balance (0.005+0.005 == 0.01) but the persisted, per-line
	// rounded amounts do not: each half-cent debit lands as 0.01, so the
	// batch would write 0.02 against 0.01.
	in := validInput()
	in.Lines = []LineInput{
		{AccountID: 10, Debit: dec("0.005")},
		{AccountID: 30, Debit: dec("0.005")},
		{AccountID: 20, Credit: dec("0.01")},
	}
	assert.ErrorIs(t, in.Validate(), ErrUnbalanced)
}

func TestPostingInputVATSplitBalances(t *testing.T) {
	in := validInput()
	in.Lines = []LineInput{
		{AccountID: 10, Debit: dec("100.00")},
		{AccountID: 30, Debit: dec("10.00")},
		{AccountID: 20, Credit: dec("110.00")},
	}
	assert.NoError(t, in.Validate())
}

func TestPostingInputTooFewLines(t *testing.T) {
	in := validInput()
	in.Lines = in.Lines[:1]
	assert.ErrorIs(t, in.Validate(), ErrTooFewLines)
}

func TestPostingInputLineShape(t *testing.T) {
	in := validInput()
	in.Lines[0].Credit = dec("5.00")
	assert.ErrorIs(t, in.Validate(), shared.ErrValidation)

	in = validInput()
	in.Lines[0].Debit = dec("-1.00")
	assert.ErrorIs(t, in.Validate(), shared.ErrValidation)

	in = validInput()
	in.Lines[0].Debit = decimal.Zero
	assert.ErrorIs(t, in.Validate(), shared.ErrValidation)

	in = validInput()
	in.Lines[0].AccountID = 0
	assert.ErrorIs(t, in.Validate(), shared.ErrValidation)
}

func TestPostingInputMissingScope(t *testing.T) {
	in := validInput()
	in.BusinessID = 0
	assert.ErrorIs(t, in.Validate(), shared.ErrValidation)

	in = validInput()
	in.BranchID = 0
	assert.ErrorIs(t, in.Validate(), shared.ErrValidation)

	in = validInput()
	in.SourceID = uuid.Nil
	assert.ErrorIs(t, in.Validate(), shared.ErrValidation)

	in = validInput()
	in.Date = time.Time{}
	assert.ErrorIs(t, in.Validate(), shared.ErrValidation)
}

func TestReverseMirrorsLines(t *testing.T) {
	lines := []LineInput{
		{AccountID: 10, Debit: dec("100.00")},
		{AccountID: 30, Debit: dec("10.00")},
		{AccountID: 20, Credit: dec("110.00")},
	}
	reversed := Reverse(lines)
	assert.Len(t, reversed, 3)
	assert.True(t, reversed[0].Credit.Equal(dec("100.00")))
	assert.True(t, reversed[0].Debit.IsZero())
	assert.True(t, reversed[2].Debit.Equal(dec("110.00")))

	// Reversing twice restores the original batch.
	double := Reverse(reversed)
	for i := range lines {
		assert.True(t, double[i].Debit.Equal(lines[i].Debit))
		assert.True(t, double[i].Credit.Equal(lines[i].Credit))
	}

	// Original plus reversal nets to zero per account.
	net := map[int64]decimal.Decimal{}
	for _, l := range append(append([]LineInput{}, lines...), reversed...) {
		net[l.AccountID] = net[l.AccountID].Add(l.Debit).Sub(l.Credit)
	}
	for accountID, sum := range net {
		assert.True(t, sum.IsZero(), "account %d nets %s", accountID, sum)
	}
}

func TestPeriodErrorsAreBusinessRule(t *testing.T) {
	assert.True(t, errors.Is(ErrPeriodClosed, shared.ErrBusinessRule))
	assert.True(t, errors.Is(ErrNoOpenPeriod, shared.ErrBusinessRule))
	assert.True(t, errors.Is(ErrInactiveAccount, shared.ErrBusinessRule))
}
