package expenses

import (
	"errors"
	"testing"
	"time"

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

func validExpenseInput() ExpenseInput {
	return ExpenseInput{
		ExpenseDate:       time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Description:       "Office rent",
		ExpenseAccountID:  10,
		PaidFromAccountID: 20,
		SubTotal:          dec("100.00"),
		VATAmount:         dec("15.00"),
	}
}

func TestExpenseInputValidate(t *testing.T) {
	assert.NoError(t, validExpenseInput().validate())

	in := validExpenseInput()
	in.ExpenseDate = time.Time{}
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)

	in = validExpenseInput()
	in.PaidFromAccountID = in.ExpenseAccountID
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)

	in = validExpenseInput()
	in.SubTotal = decimal.Zero
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)

	in = validExpenseInput()
	in.VATAmount = dec("-1")
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)
}

func TestExpenseInputTotal(t *testing.T) {
	in := validExpenseInput()
	assert.True(t, in.Total().Equal(dec("115.00")))

	in.SubTotal = dec("10.004")
	in.VATAmount = dec("1.503")
	assert.Equal(t, "11.51", in.Total().StringFixed(2))
}

func TestExpenseLinesBalance(t *testing.T) {
	e := Expense{
		Number:            "EXP-00007",
		Description:       "Office rent",
		ExpenseAccountID:  10,
		PaidFromAccountID: 20,
		SubTotal:          dec("100.00"),
		VATAmount:         dec("15.00"),
		Amount:            dec("115.00"),
	}
	lines := expenseLines(e, 99)
	assert.Len(t, lines, 3)
	assert.Equal(t, int64(99), lines[1].AccountID)

	debit, credit := decimal.Zero, decimal.Zero
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	assert.True(t, debit.Equal(credit))
	assert.True(t, lines[2].Credit.Equal(e.Amount))
}

func TestExpenseLinesWithoutVAT(t *testing.T) {
	e := Expense{
		Number:            "EXP-00008",
		ExpenseAccountID:  10,
		PaidFromAccountID: 20,
		SubTotal:          dec("50.00"),
		Amount:            dec("50.00"),
	}
	lines := expenseLines(e, 0)
	assert.Len(t, lines, 2)
	assert.True(t, lines[0].Debit.Equal(lines[1].Credit))
}

func TestIncomeLinesMirrorExpense(t *testing.T) {
	o := OtherIncome{
		Number:                "INC-00003",
		IncomeAccountID:       30,
		ReceivedIntoAccountID: 20,
		SubTotal:              dec("200.00"),
		VATAmount:             dec("30.00"),
		Amount:                dec("230.00"),
	}
	lines := incomeLines(o, 98)
	assert.Len(t, lines, 3)

	// Gross lands on the receiving account; net plus VAT goes out as credit.
	assert.True(t, lines[0].Debit.Equal(dec("230.00")))
	assert.True(t, lines[1].Credit.Equal(dec("200.00")))
	assert.True(t, lines[2].Credit.Equal(dec("30.00")))
	assert.Equal(t, int64(98), lines[2].AccountID)

	debit, credit := decimal.Zero, decimal.Zero
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	assert.True(t, debit.Equal(credit))
}

func TestIncomeInputValidate(t *testing.T) {
	in := IncomeInput{
		IncomeDate:            time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Description:           "Scrap sale",
		IncomeAccountID:       30,
		ReceivedIntoAccountID: 20,
		SubTotal:              dec("200.00"),
	}
	assert.NoError(t, in.validate())

	in.ReceivedIntoAccountID = in.IncomeAccountID
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)
}

func TestCashGuardsAreValidationErrors(t *testing.T) {
	assert.True(t, errors.Is(ErrFundingAccountNotCash, shared.ErrValidation))
	assert.True(t, errors.Is(ErrReceivingAccountNotCash, shared.ErrValidation))
	assert.True(t, errors.Is(ErrExpenseNotFound, shared.ErrNotFound))
	assert.True(t, errors.Is(ErrIncomeNotFound, shared.ErrNotFound))
}
