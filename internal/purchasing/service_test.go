package purchasing

import (
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

func sampleBill() Bill {
	billID := uuid.New()
	return Bill{
		ID:        billID,
		Number:    "BILL-00004",
		SubTotal:  dec("300.00"),
		VATAmount: dec("45.00"),
		Amount:    dec("345.00"),
		Lines: []BillLine{
			{ID: 1, BillID: billID, AccountID: 10, Quantity: dec("3"), UnitPrice: dec("50.00"), Amount: dec("150.00")},
			{ID: 2, BillID: billID, AccountID: 11, Quantity: dec("6"), UnitPrice: dec("25.00"), Amount: dec("150.00")},
		},
	}
}

func TestBillInputTotals(t *testing.T) {
	in := BillInput{
		VendorID: 7,
		BillDate: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		Lines: []BillLineInput{
			{AccountID: 10, Quantity: dec("3"), UnitPrice: dec("50.00")},
			{AccountID: 11, Quantity: dec("6"), UnitPrice: dec("25.00")},
		},
		VATAmount: dec("45.00"),
	}
	assert.NoError(t, in.validate())
	assert.True(t, in.SubTotal().Equal(dec("300.00")))
	assert.True(t, in.Total().Equal(dec("345.00")))
}

func TestBillInputValidate(t *testing.T) {
	base := BillInput{
		VendorID: 7,
		BillDate: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		Lines:    []BillLineInput{{AccountID: 10, Quantity: dec("1"), UnitPrice: dec("10")}},
	}
	assert.NoError(t, base.validate())

	in := base
	in.VendorID = 0
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)

	in = base
	in.Lines = nil
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)

	in = base
	in.Lines = []BillLineInput{{AccountID: 10, Quantity: dec("-1"), UnitPrice: dec("10")}}
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)

	in = base
	in.PayImmediately = true
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)
	in.PaidFromAccountID = 20
	assert.NoError(t, in.validate())
}

func TestBillPostingLinesBalance(t *testing.T) {
	bill := sampleBill()
	lines := billPostingLines(bill, 99, 88)
	assert.Len(t, lines, 4)

	debit, credit := decimal.Zero, decimal.Zero
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	assert.True(t, debit.Equal(credit))
	assert.Equal(t, int64(88), lines[3].AccountID)
	assert.True(t, lines[3].Credit.Equal(bill.Amount))
}

func TestBuildNoteLines(t *testing.T) {
	bill := sampleBill()

	lines, subTotal, err := buildNoteLines(bill, []ReturnItem{{BillLineID: 1, Quantity: dec("2")}})
	assert.NoError(t, err)
	assert.Len(t, lines, 1)
	assert.True(t, subTotal.Equal(dec("100.00")))
	assert.Equal(t, int64(10), lines[0].AccountID)

	_, _, err = buildNoteLines(bill, []ReturnItem{{BillLineID: 1, Quantity: dec("4")}})
	assert.ErrorIs(t, err, ErrReturnExceedsQuantity)

	_, _, err = buildNoteLines(bill, []ReturnItem{{BillLineID: 77, Quantity: dec("1")}})
	assert.ErrorIs(t, err, ErrLineNotOnBill)
}

func TestBuildNoteLinesCountsPriorReturns(t *testing.T) {
	bill := sampleBill()
	bill.Lines[0].ReturnedQuantity = dec("2")

	_, _, err := buildNoteLines(bill, []ReturnItem{{BillLineID: 1, Quantity: dec("2")}})
	assert.ErrorIs(t, err, ErrReturnExceedsQuantity)

	_, subTotal, err := buildNoteLines(bill, []ReturnItem{{BillLineID: 1, Quantity: dec("1")}})
	assert.NoError(t, err)
	assert.True(t, subTotal.Equal(dec("50.00")))
}

func TestNoteCompletesReturn(t *testing.T) {
	bill := sampleBill()
	full := []NoteLine{
		{BillLineID: 1, Quantity: dec("3")},
		{BillLineID: 2, Quantity: dec("6")},
	}
	assert.True(t, noteCompletesReturn(bill, full))

	partial := []NoteLine{{BillLineID: 1, Quantity: dec("3")}}
	assert.False(t, noteCompletesReturn(bill, partial))

	bill.Lines[1].ReturnedQuantity = dec("6")
	assert.True(t, noteCompletesReturn(bill, partial))
}

func TestOutstandingFloorsAtZero(t *testing.T) {
	b := Bill{Amount: dec("100"), PaidAmount: dec("60"), ReturnedAmount: dec("50")}
	assert.True(t, b.Outstanding().IsZero())

	b.ReturnedAmount = dec("20")
	assert.True(t, b.Outstanding().Equal(dec("20")))
}

func TestSettlementStatus(t *testing.T) {
	b := Bill{Amount: dec("100")}
	assert.Equal(t, BillStatusUnpaid, settlementStatus(b))

	b.PaidAmount = dec("40")
	assert.Equal(t, BillStatusPartial, settlementStatus(b))

	b.PaidAmount = dec("100")
	assert.Equal(t, BillStatusPaid, settlementStatus(b))

	b.PaidAmount = dec("40")
	b.ReturnedAmount = dec("60")
	assert.Equal(t, BillStatusPaid, settlementStatus(b))
}

func TestApplyInputValidate(t *testing.T) {
	assert.NoError(t, ApplyInput{RefundMethod: RefundNone}.validate())
	assert.NoError(t, ApplyInput{RefundMethod: RefundVendorBalance}.validate())
	assert.ErrorIs(t, ApplyInput{RefundMethod: RefundCash}.validate(), ErrRefundAccountRequired)
	assert.NoError(t, ApplyInput{RefundMethod: RefundCash, RefundAccountID: 20}.validate())
	assert.ErrorIs(t, ApplyInput{RefundMethod: "wire"}.validate(), shared.ErrValidation)
}

func TestNoteInputValidate(t *testing.T) {
	ok := NoteInput{
		NoteDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Items:    []ReturnItem{{BillLineID: 1, Quantity: dec("1")}},
	}
	assert.NoError(t, ok.validate())

	in := ok
	in.Items = nil
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)

	in = ok
	in.Items = []ReturnItem{{BillLineID: 1, Quantity: dec("0")}}
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)
}
