// Package assets keeps the serialized asset registry and the lookups the
// custody flows use to match assets with purchase receipt lines.
package assets

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/custody/internal/shared"
)

// Asset statuses that take an asset out of circulation.
const (
	StatusSubmitted = "Submitted"
	StatusInUse     = "In Use"
	StatusScrapped  = "Scrapped"
	StatusSold      = "Sold"
)

// Asset is a serialized physical item.
type Asset struct {
	Name                string          `json:"name"`
	AssetName           string          `json:"asset_name"`
	ItemCode            string          `json:"item_code"`
	Company             string          `json:"company"`
	Location            string          `json:"location"`
	Warehouse           string          `json:"warehouse"`
	PurchaseReceipt     string          `json:"purchase_receipt,omitempty"`
	PurchaseReceiptItem string          `json:"purchase_receipt_item,omitempty"`
	GrossPurchaseAmount decimal.Decimal `json:"gross_purchase_amount"`
	Custodian           string          `json:"custodian,omitempty"`
	Status              string          `json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Retired reports whether the asset left the company books.
func (a Asset) Retired() bool {
	return a.Status == StatusScrapped || a.Status == StatusSold
}

// CustodyStatus is the status an in-service asset takes when employee
// becomes its custodian, or gives it up when employee is empty.
func CustodyStatus(employee string) string {
	if employee == "" {
		return StatusSubmitted
	}
	return StatusInUse
}

// Strategy names the lookup that produced asset candidates for a line.
type Strategy string

const (
	StrategyNone            Strategy = ""
	StrategyReceiptLine     Strategy = "purchase_receipt_item"
	StrategyReceiptItemCode Strategy = "purchase_receipt_item_code"
	StrategyItemCompany     Strategy = "item_code_company"
)

// LineQuery identifies a purchase receipt line for candidate lookups.
type LineQuery struct {
	PurchaseReceipt     string
	PurchaseReceiptItem string
	ItemCode            string
	Company             string
}

// ErrNotFound indicates the asset does not exist.
var ErrNotFound = fmt.Errorf("assets: asset %w", shared.ErrNotFound)
