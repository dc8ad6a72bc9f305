package custody

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/custody/internal/procurement"
	"github.com/odyssey-erp/custody/internal/shared"
)

// ValidateForSubmit runs the mandatory checks. Drafts are never validated.
func ValidateForSubmit(r Receipt) error {
	if r.Employee == "" {
		return shared.Userf(shared.ErrValidation, "employee is mandatory for submitting custody receipt")
	}
	if r.PostingDate == nil || r.PostingDate.IsZero() {
		return shared.Userf(shared.ErrValidation, "posting date is mandatory for submitting custody receipt")
	}
	if len(r.Items) == 0 {
		return shared.Userf(shared.ErrValidation, "cannot submit custody receipt without any items")
	}
	for _, it := range r.Items {
		if it.ItemCode == "" {
			return shared.Userf(shared.ErrValidation, "row #%d: item code is required", it.Idx)
		}
		if !it.Qty.IsPositive() {
			return shared.Userf(shared.ErrValidation, "row #%d: quantity must be greater than zero", it.Idx)
		}
	}
	return nil
}

// CheckAgainstReceipt verifies that submitting rows on top of the already
// submitted quantities does not exceed any accepted quantity of pr.
func CheckAgainstReceipt(pr procurement.PurchaseReceipt, rows []Item, receipted map[string]decimal.Decimal) error {
	if !pr.IsSubmitted() {
		return shared.Userf(shared.ErrInvalidState, "purchase receipt %s is not submitted", pr.Name)
	}
	lines := make(map[string]procurement.ReceiptLine, len(pr.Items))
	for _, l := range pr.Items {
		lines[l.Name] = l
	}
	pending := map[string]decimal.Decimal{}
	for _, it := range rows {
		if it.PurchaseReceipt != pr.Name || it.PurchaseReceiptItem == "" {
			continue
		}
		line, ok := lines[it.PurchaseReceiptItem]
		if !ok {
			return shared.Userf(shared.ErrValidation, "row #%d: line %s does not belong to purchase receipt %s", it.Idx, it.PurchaseReceiptItem, pr.Name)
		}
		if line.ItemCode != it.ItemCode {
			return shared.Userf(shared.ErrValidation, "row #%d: item %s does not match purchase receipt line item %s", it.Idx, it.ItemCode, line.ItemCode)
		}
		pending[line.Name] = pending[line.Name].Add(it.Qty)
		total := receipted[line.Name].Add(pending[line.Name])
		if total.GreaterThan(line.Accepted()) {
			remaining := line.Accepted().Sub(receipted[line.Name])
			if remaining.IsNegative() {
				remaining = decimal.Zero
			}
			return shared.Userf(shared.ErrValidation, "row #%d: quantity for %s exceeds the remaining %s on purchase receipt %s",
				it.Idx, it.ItemCode, remaining.String(), pr.Name)
		}
	}
	return nil
}
