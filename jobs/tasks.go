package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/custody/internal/custody"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCustodyNotify acknowledges a submitted custody receipt to the employee.
	TaskCustodyNotify = "custody:notify"
	// TaskCustodyIntegrity scans for purchase receipt lines issued past their accepted qty.
	TaskCustodyIntegrity = "custody:integrity"
)

// NotifyItem is one issued row in a notification.
type NotifyItem struct {
	ItemCode string `json:"item_code"`
	ItemName string `json:"item_name"`
	Asset    string `json:"asset,omitempty"`
	Qty      string `json:"qty"`
}

// CustodyNotifyPayload describes a submitted receipt.
type CustodyNotifyPayload struct {
	Receipt      string       `json:"receipt"`
	Employee     string       `json:"employee"`
	EmployeeName string       `json:"employee_name"`
	Company      string       `json:"company"`
	Items        []NotifyItem `json:"items"`
}

// CustodyIntegrityPayload scopes the integrity scan; empty means all.
type CustodyIntegrityPayload struct {
	PurchaseReceipt string `json:"purchase_receipt,omitempty"`
}

// NotifyPayloadFrom builds the notification payload for r.
func NotifyPayloadFrom(r custody.Receipt) CustodyNotifyPayload {
	payload := CustodyNotifyPayload{
		Receipt:      r.Name,
		Employee:     r.Employee,
		EmployeeName: r.EmployeeName,
		Company:      r.Company,
	}
	for _, it := range r.Items {
		payload.Items = append(payload.Items, NotifyItem{
			ItemCode: it.ItemCode,
			ItemName: it.ItemName,
			Asset:    it.Asset,
			Qty:      it.Qty.String(),
		})
	}
	return payload
}

// NewCustodyNotifyTask constructs an Asynq task.
func NewCustodyNotifyTask(payload CustodyNotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCustodyNotify, data, asynq.MaxRetry(5)), nil
}

// NewCustodyIntegrityTask constructs the scan task.
func NewCustodyIntegrityTask(payload CustodyIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCustodyIntegrity, data), nil
}
