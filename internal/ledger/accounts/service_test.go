package accounts

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSignedBalance(t *testing.T) {
	tests := []struct {
		name   string
		typ    AccountType
		debit  string
		credit string
		want   string
	}{
		{"asset nets debit minus credit", AccountTypeAsset, "500.00", "110.00", "390.00"},
		{"expense nets debit minus credit", AccountTypeExpense, "100.00", "0.00", "100.00"},
		{"liability nets credit minus debit", AccountTypeLiability, "10.00", "400.00", "390.00"},
		{"equity nets credit minus debit", AccountTypeEquity, "0.00", "250.00", "250.00"},
		{"revenue nets credit minus debit", AccountTypeRevenue, "20.00", "1200.00", "1180.00"},
		{"asset can go negative", AccountTypeAsset, "50.00", "80.00", "-30.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SignedBalance(tt.typ, dec(tt.debit), dec(tt.credit))
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestAccountTypeNature(t *testing.T) {
	assert.True(t, AccountTypeAsset.DebitNatured())
	assert.True(t, AccountTypeExpense.DebitNatured())
	assert.False(t, AccountTypeLiability.DebitNatured())
	assert.False(t, AccountTypeEquity.DebitNatured())
	assert.False(t, AccountTypeRevenue.DebitNatured())

	assert.True(t, AccountTypeRevenue.Temporary())
	assert.True(t, AccountTypeExpense.Temporary())
	assert.False(t, AccountTypeAsset.Temporary())
}

func TestCreateInputValidate(t *testing.T) {
	ok := CreateInput{Code: "1000", Name: "Cash", Type: AccountTypeAsset}
	assert.NoError(t, ok.validate())

	assert.Error(t, CreateInput{Name: "Cash", Type: AccountTypeAsset}.validate())
	assert.Error(t, CreateInput{Code: "1000", Type: AccountTypeAsset}.validate())
	assert.ErrorIs(t, CreateInput{Code: "1000", Name: "X", Type: AccountType("WEIRD")}.validate(), ErrInvalidAccountType)
}

func TestSystemAccountSpecsComplete(t *testing.T) {
	for kind, spec := range systemAccounts {
		assert.NotEmpty(t, spec.Code, "kind %s", kind)
		assert.NotEmpty(t, spec.Name, "kind %s", kind)
		assert.NotEmpty(t, spec.Type, "kind %s", kind)
	}
}
