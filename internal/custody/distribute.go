package custody

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/custody/internal/assets"
)

// Rows expands one open purchase receipt line into custody rows.
//
// Stock items produce a single row for the whole remaining quantity. Fixed
// assets produce floor(remaining) rows of qty 1; candidates are assigned in
// order and rows past the end of the list keep an empty asset. The second
// return value counts those rows.
func Rows(receipt string, balance LineBalance, fixedAsset bool, candidates []assets.Asset) ([]Item, int) {
	line := balance.Line
	base := Item{
		ItemCode:            line.ItemCode,
		ItemName:            line.ItemName,
		Description:         line.Description,
		UOM:                 line.UOM,
		Warehouse:           line.Warehouse,
		PurchaseReceipt:     receipt,
		PurchaseReceiptItem: line.Name,
		Rate:                line.Rate,
	}
	if !fixedAsset {
		row := base
		row.Qty = balance.Remaining
		row.Amount = line.Rate.Mul(balance.Remaining)
		return []Item{row}, 0
	}

	count := int(balance.Remaining.Floor().IntPart())
	rows := make([]Item, 0, count)
	missing := 0
	for i := 0; i < count; i++ {
		row := base
		row.Qty = decimal.NewFromInt(1)
		row.Amount = line.Rate
		if i < len(candidates) {
			row.Asset = candidates[i].Name
		} else {
			missing++
		}
		rows = append(rows, row)
	}
	return rows, missing
}

// Number assigns idx, row names and amounts in document order.
func Number(parent string, rows []Item) {
	for i := range rows {
		rows[i].Idx = i + 1
		rows[i].Parent = parent
		rows[i].Name = rowName(parent, i+1)
		rows[i].Amount = rows[i].Rate.Mul(rows[i].Qty)
	}
}

func rowName(parent string, idx int) string {
	return fmt.Sprintf("%s-%03d", parent, idx)
}
