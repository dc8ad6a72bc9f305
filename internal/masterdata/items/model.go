package items

import "time"

// Item represents an item master record.
type Item struct {
	Code         string    `json:"item_code"`
	Name         string    `json:"item_name"`
	Description  string    `json:"description"`
	StockUOM     string    `json:"stock_uom"`
	IsFixedAsset bool      `json:"is_fixed_asset"`
	Disabled     bool      `json:"disabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
