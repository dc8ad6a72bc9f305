package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
)

// JobRecorder counts job outcomes.
type JobRecorder interface {
	JobResult(task string, err error)
}

// MessageSender delivers the acknowledgement text to an employee.
type MessageSender interface {
	Send(ctx context.Context, employee, subject, body string) error
}

// NotifyJob acknowledges submitted custody receipts.
type NotifyJob struct {
	Logger  *slog.Logger
	Metrics JobRecorder
	Sender  MessageSender
}

// NewNotifyJob initialises the notification handler. A nil sender only logs.
func NewNotifyJob(logger *slog.Logger, metrics JobRecorder, sender MessageSender) *NotifyJob {
	return &NotifyJob{Logger: logger, Metrics: metrics, Sender: sender}
}

// Handle processes TaskCustodyNotify tasks.
func (j *NotifyJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil {
		return errors.New("custody notify: handler not configured")
	}
	defer func() {
		if j.Metrics != nil {
			j.Metrics.JobResult(TaskCustodyNotify, err)
		}
	}()
	var payload CustodyNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("custody notify: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Receipt == "" || payload.Employee == "" {
		return fmt.Errorf("custody notify: receipt and employee required: %w", asynq.SkipRetry)
	}

	subject, body := AcknowledgementText(payload)
	if j.Sender != nil {
		if err := j.Sender.Send(ctx, payload.Employee, subject, body); err != nil {
			return fmt.Errorf("custody notify: send: %w", err)
		}
	}
	if j.Logger != nil {
		j.Logger.Info("custody receipt acknowledged",
			slog.String("job", TaskCustodyNotify),
			slog.String("receipt", payload.Receipt),
			slog.String("employee", payload.Employee),
			slog.Int("items", len(payload.Items)))
	}
	return nil
}

// AcknowledgementText renders the message an employee receives.
func AcknowledgementText(p CustodyNotifyPayload) (string, string) {
	subject := fmt.Sprintf("Custody receipt %s", p.Receipt)
	var b strings.Builder
	name := p.EmployeeName
	if name == "" {
		name = p.Employee
	}
	fmt.Fprintf(&b, "Dear %s,\n\nThe following items of %s are now in your custody:\n", name, p.Company)
	for _, it := range p.Items {
		label := it.ItemName
		if label == "" {
			label = it.ItemCode
		}
		if it.Asset != "" {
			fmt.Fprintf(&b, "- %s x %s (asset %s)\n", it.Qty, label, it.Asset)
		} else {
			fmt.Fprintf(&b, "- %s x %s\n", it.Qty, label)
		}
	}
	b.WriteString("\nPlease report any discrepancy to the asset administrator.\n")
	return subject, b.String()
}
