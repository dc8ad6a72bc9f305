package assets

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/custody/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const assetColumns = `name, asset_name, item_code, company, location, warehouse,
	COALESCE(purchase_receipt, ''), COALESCE(purchase_receipt_item, ''),
	gross_purchase_amount, COALESCE(custodian, ''), status, created_at, updated_at`

// inServiceFilter excludes assets that left the company books.
const inServiceFilter = ` AND status NOT IN ('Scrapped', 'Sold')`

// openCustodyFilter excludes assets already issued on a draft or submitted
// custody receipt row.
const openCustodyFilter = ` AND NOT EXISTS (
	SELECT 1 FROM custody_receipt_items ci
	JOIN custody_receipts cr ON cr.name = ci.parent
	WHERE ci.asset = assets.name AND cr.docstatus < 2)`

func scanAsset(row pgx.Row) (Asset, error) {
	var a Asset
	err := row.Scan(&a.Name, &a.AssetName, &a.ItemCode, &a.Company, &a.Location, &a.Warehouse,
		&a.PurchaseReceipt, &a.PurchaseReceiptItem, &a.GrossPurchaseAmount, &a.Custodian, &a.Status,
		&a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *Repository) queryAssets(ctx context.Context, sql string, args ...any) ([]Asset, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
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

// Get returns one asset.
func (r *Repository) Get(ctx context.Context, name string) (Asset, error) {
	a, err := scanAsset(r.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return Asset{}, ErrNotFound
	}
	return a, err
}

// FindByReceiptLine returns assets linked to the exact purchase receipt line.
func (r *Repository) FindByReceiptLine(ctx context.Context, receipt, line string) ([]Asset, error) {
	return r.queryAssets(ctx, `SELECT `+assetColumns+` FROM assets
		WHERE purchase_receipt = $1 AND purchase_receipt_item = $2`+inServiceFilter+openCustodyFilter+` ORDER BY name`, receipt, line)
}

// FindByReceiptItemCode returns assets linked to the receipt for the item.
func (r *Repository) FindByReceiptItemCode(ctx context.Context, receipt, itemCode string) ([]Asset, error) {
	return r.queryAssets(ctx, `SELECT `+assetColumns+` FROM assets
		WHERE purchase_receipt = $1 AND item_code = $2`+inServiceFilter+openCustodyFilter+` ORDER BY name`, receipt, itemCode)
}

// FindByItemCompany returns unassigned assets of the item in the company.
func (r *Repository) FindByItemCompany(ctx context.Context, itemCode, company string) ([]Asset, error) {
	return r.queryAssets(ctx, `SELECT `+assetColumns+` FROM assets
		WHERE item_code = $1 AND company = $2 AND custodian IS NULL`+inServiceFilter+openCustodyFilter+` ORDER BY name`, itemCode, company)
}

// ListAvailable returns assets of the company that nobody holds and that are
// not on an open custody receipt.
func (r *Repository) ListAvailable(ctx context.Context, company string) ([]Asset, error) {
	return r.queryAssets(ctx, `SELECT `+assetColumns+` FROM assets
		WHERE company = $1 AND custodian IS NULL`+inServiceFilter+openCustodyFilter+` ORDER BY name`, company)
}

// OnOpenCustody reports whether the asset is referenced by a draft or
// submitted custody receipt other than exclude.
func (r *Repository) OnOpenCustody(ctx context.Context, asset, exclude string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM custody_receipt_items ci
		JOIN custody_receipts cr ON cr.name = ci.parent
		WHERE ci.asset = $1 AND cr.docstatus < 2 AND cr.name <> $2)`, asset, exclude).Scan(&exists)
	return exists, err
}

// Upsert creates or replaces an asset record.
func (r *Repository) Upsert(ctx context.Context, a Asset) (Asset, error) {
	return scanAsset(r.pool.QueryRow(ctx, `
		INSERT INTO assets (name, asset_name, item_code, company, location, warehouse,
			purchase_receipt, purchase_receipt_item, gross_purchase_amount, custodian, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, NULLIF($10, ''), $11, NOW(), NOW())
		ON CONFLICT (name) DO UPDATE SET
			asset_name = EXCLUDED.asset_name,
			item_code = EXCLUDED.item_code,
			company = EXCLUDED.company,
			location = EXCLUDED.location,
			warehouse = EXCLUDED.warehouse,
			purchase_receipt = EXCLUDED.purchase_receipt,
			purchase_receipt_item = EXCLUDED.purchase_receipt_item,
			gross_purchase_amount = EXCLUDED.gross_purchase_amount,
			status = EXCLUDED.status,
			updated_at = NOW()
		RETURNING `+assetColumns,
		a.Name, a.AssetName, a.ItemCode, a.Company, a.Location, a.Warehouse,
		a.PurchaseReceipt, a.PurchaseReceiptItem, a.GrossPurchaseAmount, a.Custodian, a.Status))
}

// SetCustodian assigns or clears (empty employee) the holder of the asset
// using q, which is usually the custody submit transaction. Only the
// Submitted and In Use statuses move; a retired status is left alone.
func SetCustodian(ctx context.Context, q db.Querier, asset, employee string) error {
	tag, err := q.Exec(ctx, `UPDATE assets SET custodian = NULLIF($2, ''),
		status = CASE WHEN status IN ($3, $4) THEN $5 ELSE status END, updated_at = NOW()
		WHERE name = $1`, asset, employee, StatusSubmitted, StatusInUse, CustodyStatus(employee))
	if err != nil {
		return fmt.Errorf("assets: set custodian: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
