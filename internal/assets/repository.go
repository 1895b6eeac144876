package assets

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const assetColumns = `id, business_id, branch_id, name, description, asset_account_id, acquisition_date, cost, salvage_value, useful_life_months, accumulated_depreciation, book_value, status, disposal_date, created_by, created_at, updated_at`
const depreciationColumns = `id, business_id, branch_id, asset_id, number, depreciation_date, amount, created_by, created_at`

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Pool() *pgxpool.Pool {
	return r.db
}

func scanAsset(row pgx.Row) (Asset, error) {
	var a Asset
	err := row.Scan(&a.ID, &a.BusinessID, &a.BranchID, &a.Name, &a.Description, &a.AssetAccountID,
		&a.AcquisitionDate, &a.Cost, &a.SalvageValue, &a.UsefulLifeMonths,
		&a.AccumulatedDepreciation, &a.BookValue, &a.Status, &a.DisposalDate,
		&a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Asset{}, ErrAssetNotFound
		}
		return Asset{}, err
	}
	return a, nil
}

func scanDepreciation(row pgx.Row) (DepreciationRecord, error) {
	var d DepreciationRecord
	err := row.Scan(&d.ID, &d.BusinessID, &d.BranchID, &d.AssetID, &d.Number,
		&d.DepreciationDate, &d.Amount, &d.CreatedBy, &d.CreatedAt)
	if err != nil {
		return DepreciationRecord{}, err
	}
	return d, nil
}

func insertAssetTx(ctx context.Context, tx pgx.Tx, a Asset) (Asset, error) {
	return scanAsset(tx.QueryRow(ctx, `INSERT INTO fixed_assets
(id, business_id, branch_id, name, description, asset_account_id, acquisition_date, cost, salvage_value, useful_life_months, accumulated_depreciation, book_value, status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING `+assetColumns,
		a.ID, a.BusinessID, a.BranchID, a.Name, a.Description, a.AssetAccountID,
		a.AcquisitionDate, a.Cost, a.SalvageValue, a.UsefulLifeMonths,
		a.AccumulatedDepreciation, a.BookValue, a.Status, a.CreatedBy))
}

func lockAssetTx(ctx context.Context, tx pgx.Tx, businessID int64, id uuid.UUID) (Asset, error) {
	return scanAsset(tx.QueryRow(ctx,
		`SELECT `+assetColumns+` FROM fixed_assets WHERE business_id = $1 AND id = $2 FOR UPDATE`, businessID, id))
}

func updateAssetAggregatesTx(ctx context.Context, tx pgx.Tx, a Asset) error {
	_, err := tx.Exec(ctx, `UPDATE fixed_assets SET
accumulated_depreciation=$3, book_value=$4, status=$5, disposal_date=$6, updated_at=NOW()
WHERE id=$1 AND business_id=$2`,
		a.ID, a.BusinessID, a.AccumulatedDepreciation, a.BookValue, a.Status, a.DisposalDate)
	return err
}

func insertDepreciationTx(ctx context.Context, tx pgx.Tx, d DepreciationRecord) (DepreciationRecord, error) {
	return scanDepreciation(tx.QueryRow(ctx, `INSERT INTO depreciation_records
(id, business_id, branch_id, asset_id, number, depreciation_date, amount, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING `+depreciationColumns,
		d.ID, d.BusinessID, d.BranchID, d.AssetID, d.Number, d.DepreciationDate, d.Amount, d.CreatedBy))
}

func (r *Repository) Get(ctx context.Context, businessID int64, id uuid.UUID) (Asset, error) {
	return scanAsset(r.db.QueryRow(ctx,
		`SELECT `+assetColumns+` FROM fixed_assets WHERE business_id = $1 AND id = $2`, businessID, id))
}

func (r *Repository) List(ctx context.Context, businessID int64, status AssetStatus, limit, offset int) ([]Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM fixed_assets WHERE business_id = $1`
	args := []any{businessID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY acquisition_date DESC, created_at DESC LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListActive returns every active asset for a bulk depreciation run, oldest
// acquisitions first.
func (r *Repository) ListActive(ctx context.Context, businessID int64) ([]Asset, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+assetColumns+` FROM fixed_assets WHERE business_id = $1 AND status = $2 ORDER BY acquisition_date, created_at`,
		businessID, AssetStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repository) ListDepreciation(ctx context.Context, businessID int64, assetID uuid.UUID) ([]DepreciationRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+depreciationColumns+` FROM depreciation_records
WHERE business_id = $1 AND asset_id = $2 ORDER BY depreciation_date, created_at`, businessID, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DepreciationRecord
	for rows.Next() {
		d, err := scanDepreciation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
