package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/custody/internal/custody"
)

// OverissueSource lists purchase receipt lines receipted past their accepted qty.
type OverissueSource interface {
	Overissues(ctx context.Context) ([]custody.Overissue, error)
}

// IntegrityJob reports custody totals that break the accepted quantity rule.
type IntegrityJob struct {
	Source  OverissueSource
	Logger  *slog.Logger
	Metrics JobRecorder
}

// NewIntegrityJob initialises the integrity scan handler.
func NewIntegrityJob(source OverissueSource, logger *slog.Logger, metrics JobRecorder) *IntegrityJob {
	return &IntegrityJob{Source: source, Logger: logger, Metrics: metrics}
}

// Handle runs the scan. Violations are logged; only query failures are
// returned so asynq retries them.
func (j *IntegrityJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Source == nil {
		return errors.New("custody integrity: handler not configured")
	}
	defer func() {
		if j.Metrics != nil {
			j.Metrics.JobResult(TaskCustodyIntegrity, err)
		}
	}()
	var payload CustodyIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("custody integrity: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	found, err := j.Scan(ctx, payload)
	if err != nil {
		return err
	}
	if j.Logger != nil {
		j.Logger.Info("custody integrity scan finished",
			slog.String("job", TaskCustodyIntegrity),
			slog.Int("violations", len(found)))
	}
	return nil
}

// Scan returns the violations matching payload and logs each of them.
func (j *IntegrityJob) Scan(ctx context.Context, payload CustodyIntegrityPayload) ([]custody.Overissue, error) {
	all, err := j.Source.Overissues(ctx)
	if err != nil {
		return nil, fmt.Errorf("custody integrity: %w", err)
	}
	var out []custody.Overissue
	for _, o := range all {
		if payload.PurchaseReceipt != "" && o.PurchaseReceipt != payload.PurchaseReceipt {
			continue
		}
		out = append(out, o)
		if j.Logger != nil {
			j.Logger.Warn("purchase receipt line over-issued",
				slog.String("purchase_receipt", o.PurchaseReceipt),
				slog.String("purchase_receipt_item", o.PurchaseReceiptItem),
				slog.String("item_code", o.ItemCode),
				slog.String("accepted", o.Accepted.String()),
				slog.String("receipted", o.Receipted.String()))
		}
	}
	return out, nil
}
