package invoicing

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

func sampleInvoice() Invoice {
	invoiceID := uuid.New()
	return Invoice{
		ID:        invoiceID,
		Number:    "INV-00009",
		SubTotal:  dec("400.00"),
		VATAmount: dec("60.00"),
		Amount:    dec("460.00"),
		Lines: []InvoiceLine{
			{ID: 1, InvoiceID: invoiceID, RevenueAccountID: 40, Quantity: dec("4"), UnitPrice: dec("75.00"), Amount: dec("300.00")},
			{ID: 2, InvoiceID: invoiceID, RevenueAccountID: 41, Quantity: dec("2"), UnitPrice: dec("50.00"), Amount: dec("100.00")},
		},
	}
}

func TestInvoiceInputTotals(t *testing.T) {
	in := InvoiceInput{
		CustomerID:  12,
		InvoiceDate: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		Lines: []InvoiceLineInput{
			{RevenueAccountID: 40, Quantity: dec("4"), UnitPrice: dec("75.00")},
			{RevenueAccountID: 41, Quantity: dec("2"), UnitPrice: dec("50.00")},
		},
		VATAmount: dec("60.00"),
	}
	assert.NoError(t, in.validate())
	assert.True(t, in.SubTotal().Equal(dec("400.00")))
	assert.True(t, in.Total().Equal(dec("460.00")))
}

func TestInvoiceInputValidate(t *testing.T) {
	base := InvoiceInput{
		CustomerID:  12,
		InvoiceDate: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		Lines:       []InvoiceLineInput{{RevenueAccountID: 40, Quantity: dec("1"), UnitPrice: dec("10")}},
	}
	assert.NoError(t, base.validate())

	in := base
	in.CustomerID = 0
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)

	in = base
	in.Lines = nil
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)

	in = base
	in.Lines = []InvoiceLineInput{{RevenueAccountID: 40, Quantity: dec("-1"), UnitPrice: dec("10")}}
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)

	in = base
	in.CollectImmediately = true
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)
	in.ReceivedIntoAccountID = 20
	assert.NoError(t, in.validate())
}

func TestInvoicePostingLinesBalance(t *testing.T) {
	inv := sampleInvoice()
	lines := invoicePostingLines(inv, 99, 88)
	assert.Len(t, lines, 4)

	debit, credit := decimal.Zero, decimal.Zero
	for _, l := range lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	assert.True(t, debit.Equal(credit))
	assert.Equal(t, int64(88), lines[0].AccountID)
	assert.True(t, lines[0].Debit.Equal(inv.Amount))
	assert.Equal(t, int64(99), lines[3].AccountID)
	assert.True(t, lines[3].Credit.Equal(inv.VATAmount))
}

func TestBuildNoteLines(t *testing.T) {
	inv := sampleInvoice()

	lines, subTotal, err := buildNoteLines(inv, []ReturnItem{{InvoiceLineID: 1, Quantity: dec("2")}})
	assert.NoError(t, err)
	assert.Len(t, lines, 1)
	assert.True(t, subTotal.Equal(dec("150.00")))
	assert.Equal(t, int64(40), lines[0].AccountID)

	_, _, err = buildNoteLines(inv, []ReturnItem{{InvoiceLineID: 1, Quantity: dec("5")}})
	assert.ErrorIs(t, err, ErrReturnExceedsQuantity)

	_, _, err = buildNoteLines(inv, []ReturnItem{{InvoiceLineID: 77, Quantity: dec("1")}})
	assert.ErrorIs(t, err, ErrLineNotOnInvoice)
}

func TestBuildNoteLinesCountsPriorReturns(t *testing.T) {
	inv := sampleInvoice()
	inv.Lines[0].ReturnedQuantity = dec("3")

	_, _, err := buildNoteLines(inv, []ReturnItem{{InvoiceLineID: 1, Quantity: dec("2")}})
	assert.ErrorIs(t, err, ErrReturnExceedsQuantity)

	_, subTotal, err := buildNoteLines(inv, []ReturnItem{{InvoiceLineID: 1, Quantity: dec("1")}})
	assert.NoError(t, err)
	assert.True(t, subTotal.Equal(dec("75.00")))
}

func TestNoteCompletesReturn(t *testing.T) {
	inv := sampleInvoice()
	full := []NoteLine{
		{InvoiceLineID: 1, Quantity: dec("4")},
		{InvoiceLineID: 2, Quantity: dec("2")},
	}
	assert.True(t, noteCompletesReturn(inv, full))

	partial := []NoteLine{{InvoiceLineID: 1, Quantity: dec("4")}}
	assert.False(t, noteCompletesReturn(inv, partial))

	inv.Lines[1].ReturnedQuantity = dec("2")
	assert.True(t, noteCompletesReturn(inv, partial))
}

func TestOutstandingFloorsAtZero(t *testing.T) {
	inv := Invoice{Amount: dec("100"), ReceivedAmount: dec("60"), ReturnedAmount: dec("50")}
	assert.True(t, inv.Outstanding().IsZero())

	inv.ReturnedAmount = dec("20")
	assert.True(t, inv.Outstanding().Equal(dec("20")))
}

func TestCollectionStatus(t *testing.T) {
	inv := Invoice{Amount: dec("100")}
	assert.Equal(t, InvoiceStatusUnpaid, collectionStatus(inv))

	inv.ReceivedAmount = dec("40")
	assert.Equal(t, InvoiceStatusPartial, collectionStatus(inv))

	inv.ReceivedAmount = dec("100")
	assert.Equal(t, InvoiceStatusPaid, collectionStatus(inv))

	inv.ReceivedAmount = dec("40")
	inv.ReturnedAmount = dec("60")
	assert.Equal(t, InvoiceStatusPaid, collectionStatus(inv))
}

func TestApplyInputValidate(t *testing.T) {
	assert.NoError(t, ApplyInput{RefundMethod: RefundNone}.validate())
	assert.NoError(t, ApplyInput{RefundMethod: RefundCustomerBalance}.validate())
	assert.ErrorIs(t, ApplyInput{RefundMethod: RefundCash}.validate(), ErrRefundAccountRequired)
	assert.NoError(t, ApplyInput{RefundMethod: RefundCash, RefundAccountID: 20}.validate())
	assert.ErrorIs(t, ApplyInput{RefundMethod: "wire"}.validate(), shared.ErrValidation)
}

func TestNoteInputValidate(t *testing.T) {
	ok := NoteInput{
		NoteDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Items:    []ReturnItem{{InvoiceLineID: 1, Quantity: dec("1")}},
	}
	assert.NoError(t, ok.validate())

	in := ok
	in.Items = nil
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)

	in = ok
	in.Items = []ReturnItem{{InvoiceLineID: 1, Quantity: dec("0")}}
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)
}
