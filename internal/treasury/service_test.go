package treasury

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/meridian-erp/meridian-erp/internal/ledger/accounts"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestTransferInputValidate(t *testing.T) {
	base := TransferInput{
		TransferDate:  time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		FromAccountID: 10,
		ToAccountID:   11,
		Amount:        dec("250.00"),
	}
	assert.NoError(t, base.validate())

	in := base
	in.ToAccountID = in.FromAccountID
	assert.ErrorIs(t, in.validate(), ErrSameAccount)

	in = base
	in.Amount = dec("0")
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)

	in = base
	in.FromAccountID = 0
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)

	in = base
	in.TransferDate = time.Time{}
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)
}

func TestAdjustmentInputValidate(t *testing.T) {
	base := AdjustmentInput{
		AdjustmentDate: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		BankAccountID:  10,
		Type:           AdjustmentBankCharge,
		Direction:      DirectionDecrease,
		Amount:         dec("15.00"),
	}
	assert.NoError(t, base.validate())

	in := base
	in.Type = "fee"
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)

	in = base
	in.Direction = "sideways"
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)

	in = base
	in.Amount = dec("-1")
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)

	in = base
	in.BankAccountID = 0
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)
}

func TestCounterAccountKind(t *testing.T) {
	assert.Equal(t, accounts.SystemBankCharges, counterAccountKind(AdjustmentBankCharge))
	assert.Equal(t, accounts.SystemInterestIncome, counterAccountKind(AdjustmentInterest))
	assert.Equal(t, accounts.SystemSuspense, counterAccountKind(AdjustmentErrorCorrection))
	assert.Equal(t, accounts.SystemSuspense, counterAccountKind(AdjustmentOther))
}

func TestAdjustmentLines(t *testing.T) {
	a := BankAdjustment{Number: "ADJ-00003", Amount: dec("15.00"), Direction: DirectionDecrease}
	lines := adjustmentLines(a, 10, 99)
	assert.Len(t, lines, 2)
	assert.Equal(t, int64(99), lines[0].AccountID)
	assert.True(t, lines[0].Debit.Equal(a.Amount))
	assert.Equal(t, int64(10), lines[1].AccountID)
	assert.True(t, lines[1].Credit.Equal(a.Amount))

	a.Direction = DirectionIncrease
	lines = adjustmentLines(a, 10, 99)
	assert.Equal(t, int64(10), lines[0].AccountID)
	assert.True(t, lines[0].Debit.Equal(a.Amount))
	assert.Equal(t, int64(99), lines[1].AccountID)
	assert.True(t, lines[1].Credit.Equal(a.Amount))
}

func TestAdjustmentDescriptionFallsBackToNumber(t *testing.T) {
	a := BankAdjustment{Number: "ADJ-00003"}
	assert.Equal(t, "Bank adjustment ADJ-00003", adjustmentDescription(a))

	a.Description = "Wire fee"
	assert.Equal(t, "Wire fee", adjustmentDescription(a))
}
