package procurement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/custody/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, name string) (PurchaseReceipt, error)
	List(ctx context.Context, limit, offset int, filters ListFilters) ([]PurchaseReceipt, int, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ListFilters narrows purchase receipt listings.
type ListFilters struct {
	Company   string
	Supplier  string
	Search    string
	DocStatus *DocStatus
}

// Service exposes purchase receipts to the custody flows.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateReceiptInput describes a purchase receipt recorded by an upstream
// system or the seed script.
type CreateReceiptInput struct {
	Name         string
	Company      string
	Supplier     string
	SupplierName string
	PostingDate  time.Time
	Lines        []ReceiptLineInput
}

// ReceiptLineInput describes a receipt line.
type ReceiptLineInput struct {
	ItemCode    string
	ItemName    string
	Description string
	Qty         decimal.Decimal
	AcceptedQty decimal.Decimal
	UOM         string
	Warehouse   string
	Rate        decimal.Decimal
	Asset       string
}

// Get returns a purchase receipt by name.
func (s *Service) Get(ctx context.Context, name string) (PurchaseReceipt, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return PurchaseReceipt{}, shared.Userf(shared.ErrValidation, "purchase receipt is required")
	}
	pr, err := s.repo.Get(ctx, name)
	if err != nil {
		return PurchaseReceipt{}, err
	}
	return pr, nil
}

// List returns purchase receipts matching filters.
func (s *Service) List(ctx context.Context, limit, offset int, filters ListFilters) ([]PurchaseReceipt, int, error) {
	return s.repo.List(ctx, limit, offset, filters)
}

// CreateReceipt persists a draft purchase receipt with its lines.
func (s *Service) CreateReceipt(ctx context.Context, input CreateReceiptInput) (PurchaseReceipt, error) {
	if len(input.Lines) == 0 {
		return PurchaseReceipt{}, shared.Userf(shared.ErrValidation, "purchase receipt requires at least one line")
	}
	if strings.TrimSpace(input.Company) == "" {
		return PurchaseReceipt{}, shared.Userf(shared.ErrValidation, "company is required")
	}
	if input.Name == "" {
		input.Name = generateNumber("PR")
	}
	pr := PurchaseReceipt{
		Name:         input.Name,
		Company:      input.Company,
		Supplier:     input.Supplier,
		SupplierName: input.SupplierName,
		PostingDate:  defaultTime(input.PostingDate),
		DocStatus:    DocStatusDraft,
	}
	for i, line := range input.Lines {
		if line.ItemCode == "" || !line.Qty.IsPositive() {
			return PurchaseReceipt{}, fmt.Errorf("line %d needs item code and positive qty: %w", i+1, ErrValidation)
		}
		if line.AcceptedQty.GreaterThan(line.Qty) {
			return PurchaseReceipt{}, fmt.Errorf("line %d accepts more than received: %w", i+1, ErrValidation)
		}
		pr.Items = append(pr.Items, ReceiptLine{
			Name:        fmt.Sprintf("%s-%03d", pr.Name, i+1),
			Parent:      pr.Name,
			Idx:         i + 1,
			ItemCode:    line.ItemCode,
			ItemName:    line.ItemName,
			Description: line.Description,
			Qty:         line.Qty,
			AcceptedQty: line.AcceptedQty,
			UOM:         line.UOM,
			Warehouse:   line.Warehouse,
			Rate:        line.Rate,
			Asset:       line.Asset,
		})
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertReceipt(ctx, pr); err != nil {
			return err
		}
		for _, line := range pr.Items {
			if err := tx.InsertLine(ctx, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseReceipt{}, err
	}
	s.recordAudit(ctx, "PURCHASE_RECEIPT_CREATE", pr.Name, map[string]any{"lines": len(pr.Items)})
	return pr, nil
}

// SubmitReceipt transitions a draft receipt to submitted.
func (s *Service) SubmitReceipt(ctx context.Context, name string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pr, err := tx.LockReceipt(ctx, name)
		if err != nil {
			return err
		}
		if pr.DocStatus != DocStatusDraft {
			return ErrInvalidState
		}
		return tx.UpdateStatus(ctx, name, DocStatusSubmitted)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "PURCHASE_RECEIPT_SUBMIT", name, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action, name string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "purchase_receipt",
		EntityID: name,
		Meta:     meta,
	})
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%s-%s", prefix, time.Now().Format("2006"), strings.ToUpper(uuid.NewString()[:5]))
}

func defaultTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
