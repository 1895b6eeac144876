package assets

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/ledger/accounts"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/sequence"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// bulkComputeLimit bounds concurrent per-asset amount computation during a
// bulk run. Posting itself stays serialized.
const bulkComputeLimit = 8

// Service manages fixed assets and posts their depreciation and disposal.
type Service struct {
	repo   *Repository
	engine *ledger.Engine
	audit  shared.AuditSink
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo *Repository, engine *ledger.Engine, audit shared.AuditSink, logger *slog.Logger) *Service {
	return &Service{repo: repo, engine: engine, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	s.now = now
}

// Create registers an asset. Registration itself posts nothing; the cost
// entered the books through whichever document acquired the asset.
func (s *Service) Create(ctx context.Context, authz shared.AuthorizationContext, in AssetInput) (Asset, error) {
	if err := authz.Validate(); err != nil {
		return Asset{}, err
	}
	if err := in.validate(); err != nil {
		return Asset{}, err
	}

	var asset Asset
	err := db.WithTx(ctx, s.repo.Pool(), func(tx pgx.Tx) error {
		if _, err := accounts.GetTx(ctx, tx, authz.BusinessID, in.AssetAccountID); err != nil {
			return err
		}
		now := s.now()
		asset = Asset{
			ID:                      uuid.New(),
			BusinessID:              authz.BusinessID,
			BranchID:                authz.SelectedBranchID,
			Name:                    in.Name,
			Description:             in.Description,
			AssetAccountID:          in.AssetAccountID,
			AcquisitionDate:         in.AcquisitionDate,
			Cost:                    in.Cost.Round(2),
			SalvageValue:            in.SalvageValue.Round(2),
			UsefulLifeMonths:        in.UsefulLifeMonths,
			AccumulatedDepreciation: decimal.Zero,
			BookValue:               in.Cost.Round(2),
			Status:                  AssetStatusActive,
			CreatedBy:               authz.ActorID,
			CreatedAt:               now,
			UpdatedAt:               now,
		}
		var err error
		asset, err = insertAssetTx(ctx, tx, asset)
		return err
	})
	if err != nil {
		return Asset{}, err
	}
	s.recordAudit(ctx, authz, "asset.create", "asset", asset.ID.String(), nil, assetAudit(asset))
	return asset, nil
}

// RecordDepreciation posts one depreciation amount for an active asset:
// debit Depreciation Expense, credit Accumulated Depreciation. The amount is
// clamped so book value never drops below salvage value.
func (s *Service) RecordDepreciation(ctx context.Context, authz shared.AuthorizationContext, assetID uuid.UUID, in DepreciationInput) (DepreciationRecord, error) {
	if err := authz.Validate(); err != nil {
		return DepreciationRecord{}, err
	}
	if err := in.validate(); err != nil {
		return DepreciationRecord{}, err
	}

	var record DepreciationRecord
	var before map[string]any
	err := db.WithTx(ctx, s.repo.Pool(), func(tx pgx.Tx) error {
		asset, err := lockAssetTx(ctx, tx, authz.BusinessID, assetID)
		if err != nil {
			return err
		}
		record, before, err = s.depreciateTx(ctx, tx, authz, asset, in)
		return err
	})
	if err != nil {
		return DepreciationRecord{}, err
	}
	s.recordAudit(ctx, authz, "asset.depreciate", "asset", assetID.String(), before, map[string]any{
		"number": record.Number,
		"amount": record.Amount.StringFixed(2),
		"date":   record.DepreciationDate.Format(time.DateOnly),
	})
	return record, nil
}

// depreciateTx does the locked part of a depreciation: clamp, number, insert,
// post, update aggregates. Callers hold the asset row lock.
func (s *Service) depreciateTx(ctx context.Context, tx pgx.Tx, authz shared.AuthorizationContext, asset Asset, in DepreciationInput) (DepreciationRecord, map[string]any, error) {
	if asset.Status != AssetStatusActive {
		return DepreciationRecord{}, nil, ErrAssetNotActive
	}
	amount := decimal.Min(in.Amount.Round(2), asset.DepreciableValue())
	if !amount.IsPositive() {
		return DepreciationRecord{}, nil, ErrFullyDepreciated
	}
	before := map[string]any{
		"accumulated": asset.AccumulatedDepreciation.StringFixed(2),
		"book_value":  asset.BookValue.StringFixed(2),
	}

	number, err := sequence.Next(ctx, tx, authz.BusinessID, sequence.DocTypeDepreciation)
	if err != nil {
		return DepreciationRecord{}, nil, err
	}
	record := DepreciationRecord{
		ID:               uuid.New(),
		BusinessID:       authz.BusinessID,
		BranchID:         authz.SelectedBranchID,
		AssetID:          asset.ID,
		Number:           number,
		DepreciationDate: in.DepreciationDate,
		Amount:           amount,
		CreatedBy:        authz.ActorID,
		CreatedAt:        s.now(),
	}
	record, err = insertDepreciationTx(ctx, tx, record)
	if err != nil {
		return DepreciationRecord{}, nil, err
	}

	expense, err := accounts.EnsureSystemAccountTx(ctx, tx, authz.BusinessID, accounts.SystemDepreciationExpense)
	if err != nil {
		return DepreciationRecord{}, nil, err
	}
	accumulated, err := accounts.EnsureSystemAccountTx(ctx, tx, authz.BusinessID, accounts.SystemAccumulatedDepreciation)
	if err != nil {
		return DepreciationRecord{}, nil, err
	}
	desc := "Depreciation of " + asset.Name
	_, err = s.engine.PostInTx(ctx, tx, ledger.PostingInput{
		BusinessID:  authz.BusinessID,
		BranchID:    authz.SelectedBranchID,
		Date:        in.DepreciationDate,
		Description: desc,
		Reference:   number,
		SourceType:  ledger.SourceDepreciation,
		SourceID:    record.ID,
		Lines: []ledger.LineInput{
			{AccountID: expense.ID, Debit: amount, Description: desc},
			{AccountID: accumulated.ID, Credit: amount, Description: desc},
		},
	})
	if err != nil {
		return DepreciationRecord{}, nil, err
	}

	asset.AccumulatedDepreciation = asset.AccumulatedDepreciation.Add(amount)
	asset.BookValue = asset.BookValue.Sub(amount)
	if err := updateAssetAggregatesTx(ctx, tx, asset); err != nil {
		return DepreciationRecord{}, nil, err
	}
	return record, before, nil
}

// RunBulkDepreciation depreciates every active asset by its straight-line
// monthly amount. Amount computation fans out across a bounded group; the
// postings run one at a time, each in its own transaction, so one asset's
// failure never rolls back the others.
func (s *Service) RunBulkDepreciation(ctx context.Context, authz shared.AuthorizationContext, date time.Time) ([]BulkResult, error) {
	if err := authz.Validate(); err != nil {
		return nil, err
	}
	if date.IsZero() {
		date = s.now()
	}

	active, err := s.repo.ListActive(ctx, authz.BusinessID)
	if err != nil {
		return nil, err
	}

	amounts := make([]decimal.Decimal, len(active))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkComputeLimit)
	for i, asset := range active {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			amounts[i] = MonthlyDepreciation(asset)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]BulkResult, 0, len(active))
	for i, asset := range active {
		result := BulkResult{AssetID: asset.ID, Amount: amounts[i]}
		if !amounts[i].IsPositive() {
			result.Err = ErrFullyDepreciated
			results = append(results, result)
			continue
		}
		record, err := s.RecordDepreciation(ctx, authz, asset.ID, DepreciationInput{
			DepreciationDate: date,
			Amount:           amounts[i],
		})
		if err != nil {
			result.Err = err
			s.logger.Warn("bulk depreciation: asset skipped", "asset_id", asset.ID, "error", err)
		} else {
			result.Number = record.Number
			result.Amount = record.Amount
		}
		results = append(results, result)
	}
	return results, nil
}

// MonthlyDepreciation is the straight-line monthly amount, clamped to what
// the asset can still absorb. Zero when no useful life is configured.
func MonthlyDepreciation(a Asset) decimal.Decimal {
	if a.UsefulLifeMonths <= 0 {
		return decimal.Zero
	}
	monthly := a.Cost.Sub(a.SalvageValue).Div(decimal.NewFromInt(int64(a.UsefulLifeMonths))).Round(2)
	return decimal.Min(monthly, a.DepreciableValue())
}

// Dispose ends an active asset's lifecycle against sale proceeds: the cost
// leaves the asset account, accumulated depreciation reverses, proceeds land
// in cash, and the difference against book value is the gain or loss.
func (s *Service) Dispose(ctx context.Context, authz shared.AuthorizationContext, assetID uuid.UUID, in DisposalInput) (Asset, error) {
	return s.endLifecycle(ctx, authz, assetID, in, AssetStatusDisposed, "asset.dispose")
}

// WriteOff is a disposal with zero proceeds: the remaining book value is
// recognized entirely as a loss.
func (s *Service) WriteOff(ctx context.Context, authz shared.AuthorizationContext, assetID uuid.UUID, date time.Time) (Asset, error) {
	return s.endLifecycle(ctx, authz, assetID, DisposalInput{DisposalDate: date}, AssetStatusWrittenOff, "asset.write_off")
}

func (s *Service) endLifecycle(ctx context.Context, authz shared.AuthorizationContext, assetID uuid.UUID, in DisposalInput, status AssetStatus, action string) (Asset, error) {
	if err := authz.Validate(); err != nil {
		return Asset{}, err
	}
	if err := in.validate(); err != nil {
		return Asset{}, err
	}

	var asset Asset
	var before map[string]any
	err := db.WithTx(ctx, s.repo.Pool(), func(tx pgx.Tx) error {
		var err error
		asset, err = lockAssetTx(ctx, tx, authz.BusinessID, assetID)
		if err != nil {
			return err
		}
		if asset.Status != AssetStatusActive {
			return ErrAssetNotActive
		}
		before = assetAudit(asset)

		lines, err := s.disposalLines(ctx, tx, authz, asset, in)
		if err != nil {
			return err
		}
		_, err = s.engine.PostInTx(ctx, tx, ledger.PostingInput{
			BusinessID:  authz.BusinessID,
			BranchID:    authz.SelectedBranchID,
			Date:        in.DisposalDate,
			Description: "Disposal of " + asset.Name,
			Reference:   asset.Name,
			SourceType:  ledger.SourceAssetDisposal,
			SourceID:    asset.ID,
			Lines:       lines,
		})
		if err != nil {
			return err
		}

		disposalDate := in.DisposalDate
		asset.Status = status
		asset.DisposalDate = &disposalDate
		asset.BookValue = decimal.Zero
		asset.UpdatedAt = s.now()
		return updateAssetAggregatesTx(ctx, tx, asset)
	})
	if err != nil {
		return Asset{}, err
	}
	s.recordAudit(ctx, authz, action, "asset", asset.ID.String(), before, assetAudit(asset))
	return asset, nil
}

// disposalLines removes the asset from the books: credit cost out of the
// asset account, reverse accumulated depreciation, debit proceeds into cash,
// and balance the remainder through the disposal gain/loss account.
func (s *Service) disposalLines(ctx context.Context, tx pgx.Tx, authz shared.AuthorizationContext, asset Asset, in DisposalInput) ([]ledger.LineInput, error) {
	desc := "Disposal of " + asset.Name
	lines := make([]ledger.LineInput, 0, 4)

	if asset.AccumulatedDepreciation.IsPositive() {
		accumulated, err := accounts.EnsureSystemAccountTx(ctx, tx, authz.BusinessID, accounts.SystemAccumulatedDepreciation)
		if err != nil {
			return nil, err
		}
		lines = append(lines, ledger.LineInput{AccountID: accumulated.ID, Debit: asset.AccumulatedDepreciation, Description: desc})
	}
	if in.Proceeds.IsPositive() {
		proceeds, err := accounts.GetTx(ctx, tx, authz.BusinessID, in.ProceedsAccountID)
		if err != nil {
			return nil, err
		}
		if !proceeds.IsCashBank {
			return nil, ErrProceedsAccountNotCash
		}
		lines = append(lines, ledger.LineInput{AccountID: proceeds.ID, Debit: in.Proceeds.Round(2), Description: desc})
	}
	lines = append(lines, ledger.LineInput{AccountID: asset.AssetAccountID, Credit: asset.Cost, Description: desc})

	gain := in.Proceeds.Round(2).Sub(asset.BookValue)
	if !gain.IsZero() {
		gainLoss, err := accounts.EnsureSystemAccountTx(ctx, tx, authz.BusinessID, accounts.SystemDisposalGainLoss)
		if err != nil {
			return nil, err
		}
		if gain.IsPositive() {
			lines = append(lines, ledger.LineInput{AccountID: gainLoss.ID, Credit: gain, Description: desc})
		} else {
			lines = append(lines, ledger.LineInput{AccountID: gainLoss.ID, Debit: gain.Neg(), Description: desc})
		}
	}
	return lines, nil
}

// Get returns one asset.
func (s *Service) Get(ctx context.Context, authz shared.AuthorizationContext, id uuid.UUID) (Asset, error) {
	if err := authz.Validate(); err != nil {
		return Asset{}, err
	}
	return s.repo.Get(ctx, authz.BusinessID, id)
}

// List returns assets, optionally filtered by status.
func (s *Service) List(ctx context.Context, authz shared.AuthorizationContext, status AssetStatus, limit, offset int) ([]Asset, error) {
	if err := authz.Validate(); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, authz.BusinessID, status, limit, offset)
}

// ListDepreciation returns an asset's depreciation history.
func (s *Service) ListDepreciation(ctx context.Context, authz shared.AuthorizationContext, assetID uuid.UUID) ([]DepreciationRecord, error) {
	if err := authz.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListDepreciation(ctx, authz.BusinessID, assetID)
}

func (s *Service) recordAudit(ctx context.Context, authz shared.AuthorizationContext, action, entity, entityID string, before, after map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		BusinessID: authz.BusinessID,
		ActorID:    authz.ActorID,
		Action:     action,
		Entity:     entity,
		EntityID:   entityID,
		Before:     before,
		After:      after,
		At:         s.now(),
	})
}

func assetAudit(a Asset) map[string]any {
	out := map[string]any{
		"name":        a.Name,
		"cost":        a.Cost.StringFixed(2),
		"salvage":     a.SalvageValue.StringFixed(2),
		"accumulated": a.AccumulatedDepreciation.StringFixed(2),
		"book_value":  a.BookValue.StringFixed(2),
		"status":      string(a.Status),
	}
	if a.DisposalDate != nil {
		out["disposal_date"] = a.DisposalDate.Format(time.DateOnly)
	}
	return out
}
