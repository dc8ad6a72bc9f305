// Package custody records custody receipts: documents that hand physical
// assets and stock items over to employees.
package custody

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/custody/internal/shared"
)

// DocStatus is the document lifecycle state.
type DocStatus int

const (
	DocStatusDraft     DocStatus = 0
	DocStatusSubmitted DocStatus = 1
	DocStatusCancelled DocStatus = 2
)

func (s DocStatus) String() string {
	switch s {
	case DocStatusDraft:
		return "Draft"
	case DocStatusSubmitted:
		return "Submitted"
	case DocStatusCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("DocStatus(%d)", int(s))
	}
}

// Source records how a receipt was created.
type Source string

const (
	SourcePurchaseReceipt Source = "purchase_receipt"
	SourceEmployee        Source = "employee"
	SourceAsset           Source = "asset"
	SourceManual          Source = "manual"
)

// Receipt is a custody receipt document.
type Receipt struct {
	Name            string     `json:"name"`
	Employee        string     `json:"employee"`
	EmployeeName    string     `json:"employee_name"`
	Company         string     `json:"company"`
	PostingDate     *time.Time `json:"posting_date"`
	Supplier        string     `json:"supplier"`
	SupplierName    string     `json:"supplier_name"`
	PurchaseDate    *time.Time `json:"purchase_date"`
	PurchaseReceipt string     `json:"purchase_receipt"`
	Source          Source     `json:"source"`
	DocStatus       DocStatus  `json:"docstatus"`
	Remarks         string     `json:"remarks"`
	CreatedBy       int64      `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Items           []Item     `json:"items"`
}

// Item is one custody receipt row.
type Item struct {
	Name                string          `json:"name"`
	Parent              string          `json:"parent"`
	Idx                 int             `json:"idx"`
	ItemCode            string          `json:"item_code"`
	ItemName            string          `json:"item_name"`
	Description         string          `json:"description"`
	Qty                 decimal.Decimal `json:"qty"`
	UOM                 string          `json:"uom"`
	Warehouse           string          `json:"warehouse"`
	Asset               string          `json:"asset"`
	PurchaseReceipt     string          `json:"purchase_receipt"`
	PurchaseReceiptItem string          `json:"purchase_receipt_item"`
	Rate                decimal.Decimal `json:"rate"`
	Amount              decimal.Decimal `json:"amount"`
}

// TotalQty sums row quantities.
func (r Receipt) TotalQty() decimal.Decimal {
	total := decimal.Zero
	for _, it := range r.Items {
		total = total.Add(it.Qty)
	}
	return total
}

// TotalAmount sums row amounts.
func (r Receipt) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, it := range r.Items {
		total = total.Add(it.Amount)
	}
	return total
}

// Indicator colours a user message.
type Indicator string

const (
	IndicatorGreen  Indicator = "green"
	IndicatorOrange Indicator = "orange"
	IndicatorBlue   Indicator = "blue"
)

// Message is a non-blocking notice returned alongside a created document.
type Message struct {
	Indicator Indicator `json:"indicator"`
	Message   string    `json:"message"`
}

// CreateResult is returned by every creation flow.
type CreateResult struct {
	Name     string    `json:"name"`
	Messages []Message `json:"messages"`
}

func (c *CreateResult) add(indicator Indicator, format string, args ...any) {
	c.Messages = append(c.Messages, Message{Indicator: indicator, Message: fmt.Sprintf(format, args...)})
}

// ListFilters narrows custody receipt listings.
type ListFilters struct {
	Employee        string
	Company         string
	PurchaseReceipt string
	DocStatus       *DocStatus
	Search          string
}

var (
	// ErrNotFound indicates the custody receipt does not exist.
	ErrNotFound = fmt.Errorf("custody: receipt %w", shared.ErrNotFound)
	// ErrInvalidState occurs when the docstatus forbids the action.
	ErrInvalidState = fmt.Errorf("custody: %w", shared.ErrInvalidState)
	// ErrNoRemainingQty is returned when a purchase receipt has nothing left to issue.
	ErrNoRemainingQty = shared.Userf(shared.ErrValidation, "no remaining quantities available to create a custody receipt")
	// ErrNoAssets is returned when none of the requested assets can be issued.
	ErrNoAssets = shared.Userf(shared.ErrValidation, "no assets available to create a custody receipt")
)
