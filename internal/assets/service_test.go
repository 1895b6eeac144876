package assets

import (
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

func TestAssetInputValidate(t *testing.T) {
	base := AssetInput{
		Name:             "Delivery van",
		AssetAccountID:   15,
		AcquisitionDate:  time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Cost:             dec("24000.00"),
		SalvageValue:     dec("4000.00"),
		UsefulLifeMonths: 60,
	}
	assert.NoError(t, base.validate())

	in := base
	in.Name = ""
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)

	in = base
	in.Cost = dec("0")
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)

	in = base
	in.SalvageValue = dec("25000")
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)

	in = base
	in.UsefulLifeMonths = -1
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)
}

func TestDepreciableValue(t *testing.T) {
	a := Asset{BookValue: dec("10000"), SalvageValue: dec("4000")}
	assert.True(t, a.DepreciableValue().Equal(dec("6000")))

	a.BookValue = dec("4000")
	assert.True(t, a.DepreciableValue().IsZero())

	a.BookValue = dec("3500")
	assert.True(t, a.DepreciableValue().IsZero())
}

func TestMonthlyDepreciation(t *testing.T) {
	a := Asset{
		Cost:             dec("24000.00"),
		SalvageValue:     dec("4000.00"),
		BookValue:        dec("24000.00"),
		UsefulLifeMonths: 60,
	}
	assert.True(t, MonthlyDepreciation(a).Equal(dec("333.33")))

	// Near the salvage floor the amount clamps to what remains.
	a.BookValue = dec("4100.00")
	assert.True(t, MonthlyDepreciation(a).Equal(dec("100.00")))

	a.UsefulLifeMonths = 0
	assert.True(t, MonthlyDepreciation(a).IsZero())
}

func TestDisposalInputValidate(t *testing.T) {
	assert.NoError(t, DisposalInput{DisposalDate: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)}.validate())

	in := DisposalInput{
		DisposalDate: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		Proceeds:     dec("500"),
	}
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)
	in.ProceedsAccountID = 10
	assert.NoError(t, in.validate())

	in.Proceeds = dec("-1")
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)

	in = DisposalInput{Proceeds: dec("0")}
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)
}

func TestDepreciationInputValidate(t *testing.T) {
	ok := DepreciationInput{
		DepreciationDate: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		Amount:           dec("333.33"),
	}
	assert.NoError(t, ok.validate())

	in := ok
	in.Amount = dec("0")
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)

	in = ok
	in.DepreciationDate = time.Time{}
	assert.ErrorIs(t, in.validate(), shared.ErrValidation)
}
