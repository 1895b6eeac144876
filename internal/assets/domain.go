// Package assets tracks fixed assets through their depreciation lifecycle:
// registration, periodic depreciation, disposal or write-off. Depreciation
// and disposal post through the ledger engine; book value never falls below
// salvage value.
package assets

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// AssetStatus is the lifecycle state. Only active assets depreciate.
type AssetStatus string

const (
	AssetStatusActive     AssetStatus = "active"
	AssetStatusDisposed   AssetStatus = "disposed"
	AssetStatusWrittenOff AssetStatus = "written_off"
)

// Asset is one fixed asset. AssetAccountID is the balance-sheet account
// carrying its cost; BookValue is always Cost minus AccumulatedDepreciation.
type Asset struct {
	ID                      uuid.UUID
	BusinessID              int64
	BranchID                int64
	Name                    string
	Description             string
	AssetAccountID          int64
	AcquisitionDate         time.Time
	Cost                    decimal.Decimal
	SalvageValue            decimal.Decimal
	UsefulLifeMonths        int
	AccumulatedDepreciation decimal.Decimal
	BookValue               decimal.Decimal
	Status                  AssetStatus
	DisposalDate            *time.Time
	CreatedBy               int64
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// DepreciableValue is how much depreciation the asset can still absorb.
func (a Asset) DepreciableValue() decimal.Decimal {
	room := a.BookValue.Sub(a.SalvageValue)
	if room.IsNegative() {
		return decimal.Zero
	}
	return room
}

// DepreciationRecord is one posted depreciation amount for one asset.
type DepreciationRecord struct {
	ID               uuid.UUID
	BusinessID       int64
	BranchID         int64
	AssetID          uuid.UUID
	Number           string
	DepreciationDate time.Time
	Amount           decimal.Decimal
	CreatedBy        int64
	CreatedAt        time.Time
}

var (
	ErrAssetNotFound = fmt.Errorf("%w: fixed asset", shared.ErrNotFound)

	// ErrAssetNotActive rejects depreciation and disposal of ended assets.
	ErrAssetNotActive = fmt.Errorf("%w: asset is not active", shared.ErrBusinessRule)
	// ErrFullyDepreciated means book value already sits at the salvage floor.
	ErrFullyDepreciated = fmt.Errorf("%w: asset is fully depreciated", shared.ErrBusinessRule)
	// ErrProceedsAccountNotCash constrains disposal proceeds to cash/bank.
	ErrProceedsAccountNotCash = fmt.Errorf("%w: proceeds account must be a cash or bank account", shared.ErrValidation)
)

// AssetInput registers a new asset.
type AssetInput struct {
	Name             string
	Description      string
	AssetAccountID   int64
	AcquisitionDate  time.Time
	Cost             decimal.Decimal
	SalvageValue     decimal.Decimal
	UsefulLifeMonths int
}

func (in AssetInput) validate() error {
	if in.Name == "" {
		return fmt.Errorf("%w: asset name required", shared.ErrValidation)
	}
	if in.AssetAccountID == 0 {
		return fmt.Errorf("%w: asset account required", shared.ErrValidation)
	}
	if in.AcquisitionDate.IsZero() {
		return fmt.Errorf("%w: acquisition date required", shared.ErrValidation)
	}
	if !in.Cost.IsPositive() {
		return fmt.Errorf("%w: asset cost must be positive", shared.ErrValidation)
	}
	if in.SalvageValue.IsNegative() {
		return fmt.Errorf("%w: salvage value cannot be negative", shared.ErrValidation)
	}
	if in.SalvageValue.GreaterThan(in.Cost) {
		return fmt.Errorf("%w: salvage value cannot exceed cost", shared.ErrValidation)
	}
	if in.UsefulLifeMonths < 0 {
		return fmt.Errorf("%w: useful life cannot be negative", shared.ErrValidation)
	}
	return nil
}

// DepreciationInput records one depreciation amount.
type DepreciationInput struct {
	DepreciationDate time.Time
	Amount           decimal.Decimal
}

func (in DepreciationInput) validate() error {
	if in.DepreciationDate.IsZero() {
		return fmt.Errorf("%w: depreciation date required", shared.ErrValidation)
	}
	if !in.Amount.IsPositive() {
		return fmt.Errorf("%w: depreciation amount must be positive", shared.ErrValidation)
	}
	return nil
}

// DisposalInput ends an asset's lifecycle. Zero proceeds is a write-off.
type DisposalInput struct {
	DisposalDate      time.Time
	Proceeds          decimal.Decimal
	ProceedsAccountID int64
}

func (in DisposalInput) validate() error {
	if in.DisposalDate.IsZero() {
		return fmt.Errorf("%w: disposal date required", shared.ErrValidation)
	}
	if in.Proceeds.IsNegative() {
		return fmt.Errorf("%w: proceeds cannot be negative", shared.ErrValidation)
	}
	if in.Proceeds.IsPositive() && in.ProceedsAccountID == 0 {
		return fmt.Errorf("%w: proceeds account required when proceeds are positive", shared.ErrValidation)
	}
	return nil
}

// BulkResult is the per-asset outcome of a bulk depreciation run.
type BulkResult struct {
	AssetID uuid.UUID
	Number  string
	Amount  decimal.Decimal
	Err     error
}
