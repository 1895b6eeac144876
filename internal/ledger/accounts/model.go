package accounts

import "time"

// AccountType enumerates CoA categories. The taxonomy is fixed; account
// behavior (balance sign, year-end close) keys off this type.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// DebitNatured reports whether the type carries a debit-natured balance.
func (t AccountType) DebitNatured() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// Temporary reports whether the type is zeroed at year-end close.
func (t AccountType) Temporary() bool {
	return t == AccountTypeRevenue || t == AccountTypeExpense
}

// Account models a chart of accounts node scoped to a business.
type Account struct {
	ID              int64
	BusinessID      int64
	Code            string
	Name            string
	Type            AccountType
	IsSystemAccount bool
	IsCashBank      bool
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SystemAccountKind names accounts auto-created on first use per business.
type SystemAccountKind string

const (
	SystemVATReceivable           SystemAccountKind = "vat_receivable"
	SystemVATPayable              SystemAccountKind = "vat_payable"
	SystemOpeningBalanceEquity    SystemAccountKind = "opening_balance_equity"
	SystemRetainedEarnings        SystemAccountKind = "retained_earnings"
	SystemAccountsPayable         SystemAccountKind = "accounts_payable"
	SystemAccountsReceivable      SystemAccountKind = "accounts_receivable"
	SystemVendorAdvances          SystemAccountKind = "vendor_advances"
	SystemCustomerCredits         SystemAccountKind = "customer_credits"
	SystemDepreciationExpense     SystemAccountKind = "depreciation_expense"
	SystemAccumulatedDepreciation SystemAccountKind = "accumulated_depreciation"
	SystemDisposalGainLoss        SystemAccountKind = "disposal_gain_loss"
	SystemBankCharges             SystemAccountKind = "bank_charges"
	SystemInterestIncome          SystemAccountKind = "interest_income"
	SystemSuspense                SystemAccountKind = "suspense"
)

type systemAccountSpec struct {
	Code string
	Name string
	Type AccountType
}

var systemAccounts = map[SystemAccountKind]systemAccountSpec{
	SystemVATReceivable:           {Code: "1450", Name: "VAT Receivable", Type: AccountTypeAsset},
	SystemVATPayable:              {Code: "2150", Name: "VAT Payable", Type: AccountTypeLiability},
	SystemOpeningBalanceEquity:    {Code: "3900", Name: "Opening Balance Equity", Type: AccountTypeEquity},
	SystemRetainedEarnings:        {Code: "3800", Name: "Retained Earnings", Type: AccountTypeEquity},
	SystemAccountsPayable:         {Code: "2100", Name: "Accounts Payable", Type: AccountTypeLiability},
	SystemAccountsReceivable:      {Code: "1200", Name: "Accounts Receivable", Type: AccountTypeAsset},
	SystemVendorAdvances:          {Code: "1300", Name: "Vendor Advances", Type: AccountTypeAsset},
	SystemCustomerCredits:         {Code: "2300", Name: "Customer Credits", Type: AccountTypeLiability},
	SystemDepreciationExpense:     {Code: "5900", Name: "Depreciation Expense", Type: AccountTypeExpense},
	SystemAccumulatedDepreciation: {Code: "1590", Name: "Accumulated Depreciation", Type: AccountTypeAsset},
	SystemDisposalGainLoss:        {Code: "4950", Name: "Gain/Loss on Asset Disposal", Type: AccountTypeRevenue},
	SystemBankCharges:             {Code: "5950", Name: "Bank Charges", Type: AccountTypeExpense},
	SystemInterestIncome:          {Code: "4900", Name: "Interest Income", Type: AccountTypeRevenue},
	SystemSuspense:                {Code: "1990", Name: "Suspense", Type: AccountTypeAsset},
}
