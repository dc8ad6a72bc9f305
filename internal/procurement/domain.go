package procurement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/custody/internal/shared"
)

// DocStatus mirrors the document lifecycle used across the service.
type DocStatus int

const (
	DocStatusDraft     DocStatus = 0
	DocStatusSubmitted DocStatus = 1
	DocStatusCancelled DocStatus = 2
)

// PurchaseReceipt is the inbound goods-receipt document.
type PurchaseReceipt struct {
	Name         string        `json:"name"`
	Company      string        `json:"company"`
	Supplier     string        `json:"supplier"`
	SupplierName string        `json:"supplier_name"`
	PostingDate  time.Time     `json:"posting_date"`
	DocStatus    DocStatus     `json:"docstatus"`
	Items        []ReceiptLine `json:"items"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// ReceiptLine is one received item row.
type ReceiptLine struct {
	Name        string          `json:"name"`
	Parent      string          `json:"parent"`
	Idx         int             `json:"idx"`
	ItemCode    string          `json:"item_code"`
	ItemName    string          `json:"item_name"`
	Description string          `json:"description"`
	Qty         decimal.Decimal `json:"qty"`
	AcceptedQty decimal.Decimal `json:"accepted_qty"`
	UOM         string          `json:"uom"`
	Warehouse   string          `json:"warehouse"`
	Rate        decimal.Decimal `json:"rate"`
	Asset       string          `json:"asset,omitempty"`
}

// Accepted returns the accepted quantity, falling back to qty when nothing
// was recorded as accepted.
func (l ReceiptLine) Accepted() decimal.Decimal {
	if l.AcceptedQty.IsZero() {
		return l.Qty
	}
	return l.AcceptedQty
}

// IsSubmitted reports whether the receipt can feed custody documents.
func (p PurchaseReceipt) IsSubmitted() bool {
	return p.DocStatus == DocStatusSubmitted
}

var (
	// ErrInvalidState occurs when action violates status workflow.
	ErrInvalidState = fmt.Errorf("procurement: %w", shared.ErrInvalidState)
	// ErrNotFound indicates record missing.
	ErrNotFound = fmt.Errorf("procurement: purchase receipt %w", shared.ErrNotFound)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("procurement: %w", shared.ErrValidation)
)
