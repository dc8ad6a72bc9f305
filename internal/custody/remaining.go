package custody

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/custody/internal/procurement"
)

// ReceiptedQty is one submitted custody row quantity keyed by its source line.
type ReceiptedQty struct {
	PurchaseReceiptItem string
	Qty                 decimal.Decimal
}

// LineBalance is the issue position of one purchase receipt line.
type LineBalance struct {
	Line      procurement.ReceiptLine
	Accepted  decimal.Decimal
	Receipted decimal.Decimal
	Remaining decimal.Decimal
}

// SumByLine totals receipted quantities per purchase receipt line. Rows that
// do not reference a line are ignored.
func SumByLine(rows []ReceiptedQty) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(rows))
	for _, r := range rows {
		if r.PurchaseReceiptItem == "" {
			continue
		}
		out[r.PurchaseReceiptItem] = out[r.PurchaseReceiptItem].Add(r.Qty)
	}
	return out
}

// Balances computes remaining = max(0, accepted - receipted) for every line.
func Balances(lines []procurement.ReceiptLine, receipted map[string]decimal.Decimal) []LineBalance {
	out := make([]LineBalance, 0, len(lines))
	for _, line := range lines {
		accepted := line.Accepted()
		already := receipted[line.Name]
		remaining := accepted.Sub(already)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		out = append(out, LineBalance{Line: line, Accepted: accepted, Receipted: already, Remaining: remaining})
	}
	return out
}

// Open keeps the balances that still have a positive remaining quantity.
func Open(balances []LineBalance) []LineBalance {
	var out []LineBalance
	for _, b := range balances {
		if b.Remaining.IsPositive() {
			out = append(out, b)
		}
	}
	return out
}
