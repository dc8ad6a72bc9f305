package items

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/custody/internal/masterdata/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Item, int, error)
	Get(ctx context.Context, code string) (Item, error)
	Upsert(ctx context.Context, item Item) (Item, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const itemColumns = `item_code, item_name, description, stock_uom, is_fixed_asset, disabled, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.Code, &it.Name, &it.Description, &it.StockUOM, &it.IsFixedAsset, &it.Disabled, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Item, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if !filters.IncludeDisabled {
		where += ` AND NOT disabled`
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += ` AND (item_code ILIKE ` + shared.Placeholder(len(args)) + ` OR item_name ILIKE ` + shared.Placeholder(len(args)) + `)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + itemColumns + ` FROM items` + where + ` ORDER BY item_code`
	if filters.Limit > 0 {
		args = append(args, filters.Limit, filters.Offset)
		query += ` LIMIT ` + shared.Placeholder(len(args)-1) + ` OFFSET ` + shared.Placeholder(len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, it)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, code string) (Item, error) {
	it, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE item_code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, shared.ErrNotFound
		}
		return Item{}, err
	}
	return it, nil
}

func (r *repository) Upsert(ctx context.Context, item Item) (Item, error) {
	return scanItem(r.pool.QueryRow(ctx, `
		INSERT INTO items (item_code, item_name, description, stock_uom, is_fixed_asset, disabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (item_code) DO UPDATE SET
			item_name = EXCLUDED.item_name,
			description = EXCLUDED.description,
			stock_uom = EXCLUDED.stock_uom,
			is_fixed_asset = EXCLUDED.is_fixed_asset,
			disabled = EXCLUDED.disabled,
			updated_at = NOW()
		RETURNING `+itemColumns,
		item.Code, item.Name, item.Description, item.StockUOM, item.IsFixedAsset, item.Disabled))
}
