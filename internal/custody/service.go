package custody

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/custody/internal/assets"
	"github.com/odyssey-erp/custody/internal/masterdata/employees"
	"github.com/odyssey-erp/custody/internal/masterdata/items"
	mdshared "github.com/odyssey-erp/custody/internal/masterdata/shared"
	"github.com/odyssey-erp/custody/internal/procurement"
	"github.com/odyssey-erp/custody/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, name string) (Receipt, error)
	List(ctx context.Context, limit, offset int, filters ListFilters) ([]Receipt, int, error)
	SubmittedQtyByLine(ctx context.Context, purchaseReceipt string) (map[string]decimal.Decimal, error)
}

// PurchaseReceiptSource loads purchase receipts.
type PurchaseReceiptSource interface {
	Get(ctx context.Context, name string) (procurement.PurchaseReceipt, error)
}

// AssetSource answers asset lookups.
type AssetSource interface {
	Get(ctx context.Context, name string) (assets.Asset, error)
	Candidates(ctx context.Context, q assets.LineQuery) ([]assets.Asset, assets.Strategy, error)
	Available(ctx context.Context, company string) ([]assets.Asset, error)
	OnOpenCustody(ctx context.Context, asset, exclude string) (bool, error)
}

// ItemSource loads item masters.
type ItemSource interface {
	Get(ctx context.Context, code string) (items.Item, error)
}

// EmployeeSource loads employees.
type EmployeeSource interface {
	Get(ctx context.Context, name string) (employees.Employee, error)
}

// Lookups groups the read-only collaborators.
type Lookups struct {
	PurchaseReceipts PurchaseReceiptSource
	Assets           AssetSource
	Items            ItemSource
	Employees        EmployeeSource
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards submit against replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// LockPort hands out distributed locks.
type LockPort interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// MetricsPort records custody counters.
type MetricsPort interface {
	ReceiptEvent(source, action string)
	RowsCreated(withAsset, withoutAsset int)
}

// Notifier is told about submitted receipts.
type Notifier interface {
	ReceiptSubmitted(ctx context.Context, r Receipt) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	Locker   LockPort
	Cache    *AvailableCache
	Metrics  MetricsPort
	Notifier Notifier
	Logger   *slog.Logger
}

// Service coordinates custody receipt documents.
type Service struct {
	repo        RepositoryPort
	lookups     Lookups
	audit       AuditPort
	idempotency IdempotencyPort
	locker      LockPort
	cache       *AvailableCache
	metrics     MetricsPort
	notifier    Notifier
	logger      *slog.Logger
	group       singleflight.Group
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, lookups Lookups, audit AuditPort, idem IdempotencyPort, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		lookups:     lookups,
		audit:       audit,
		idempotency: idem,
		locker:      cfg.Locker,
		cache:       cfg.Cache,
		metrics:     cfg.Metrics,
		notifier:    cfg.Notifier,
		logger:      logger,
		now:         time.Now,
	}
}

// WithNow overrides the clock, mainly for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) today() *time.Time {
	t := s.now()
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

func (s *Service) acquire(ctx context.Context, key string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	return s.locker.Acquire(ctx, key)
}

// Get returns a receipt by name.
func (s *Service) Get(ctx context.Context, name string) (Receipt, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Receipt{}, shared.Userf(shared.ErrValidation, "custody receipt is required")
	}
	return s.repo.Get(ctx, name)
}

// List returns receipt headers matching filters.
func (s *Service) List(ctx context.Context, limit, offset int, filters ListFilters) ([]Receipt, int, error) {
	return s.repo.List(ctx, limit, offset, filters)
}

// DraftInput carries user editable fields of a draft.
type DraftInput struct {
	Employee        string
	Company         string
	PostingDate     *time.Time
	Supplier        string
	SupplierName    string
	PurchaseDate    *time.Time
	PurchaseReceipt string
	Remarks         string
	Items           []Item
}

// CreateDraft stores a manually composed draft.
func (s *Service) CreateDraft(ctx context.Context, input DraftInput) (Receipt, error) {
	r, err := s.composeDraft(ctx, Receipt{Source: SourceManual, DocStatus: DocStatusDraft}, input)
	if err != nil {
		return Receipt{}, err
	}
	created, err := s.insert(ctx, r)
	if err != nil {
		return Receipt{}, err
	}
	s.afterCreate(ctx, created)
	return created, nil
}

// UpdateDraft replaces the editable fields and rows of a draft.
func (s *Service) UpdateDraft(ctx context.Context, name string, input DraftInput) (Receipt, error) {
	release, err := s.acquire(ctx, shared.CustodyReceiptLockKey(name))
	if err != nil {
		return Receipt{}, err
	}
	defer release()

	var updated Receipt
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Lock(ctx, name)
		if err != nil {
			return err
		}
		if current.DocStatus != DocStatusDraft {
			return shared.Userf(shared.ErrInvalidState, "custody receipt %s is %s and cannot be edited", name, current.DocStatus)
		}
		next, err := s.composeDraft(ctx, current, input)
		if err != nil {
			return err
		}
		Number(name, next.Items)
		if err := tx.UpdateHeader(ctx, next); err != nil {
			return err
		}
		if err := tx.ReplaceItems(ctx, name, next.Items); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	s.recordAudit(ctx, "CUSTODY_RECEIPT_UPDATE", name, map[string]any{"items": len(updated.Items)})
	return updated, nil
}

func (s *Service) composeDraft(ctx context.Context, base Receipt, input DraftInput) (Receipt, error) {
	base.Employee = strings.TrimSpace(input.Employee)
	base.Company = strings.TrimSpace(input.Company)
	base.PostingDate = input.PostingDate
	base.Supplier = input.Supplier
	base.SupplierName = input.SupplierName
	base.PurchaseDate = input.PurchaseDate
	base.PurchaseReceipt = input.PurchaseReceipt
	base.Remarks = input.Remarks
	base.EmployeeName = ""
	if base.Employee != "" {
		emp, err := s.lookups.Employees.Get(ctx, base.Employee)
		if err != nil {
			return Receipt{}, err
		}
		base.EmployeeName = emp.EmployeeName
		if base.Company == "" {
			base.Company = emp.Company
		}
	}
	rows := make([]Item, 0, len(input.Items))
	for _, it := range input.Items {
		filled, err := s.Autofill(ctx, it)
		if err != nil {
			return Receipt{}, err
		}
		rows = append(rows, filled)
	}
	base.Items = rows
	if base.Company == "" {
		return Receipt{}, shared.Userf(shared.ErrValidation, "company is required")
	}
	return base, nil
}

// Autofill completes a row that references an asset but has no item code.
func (s *Service) Autofill(ctx context.Context, it Item) (Item, error) {
	if it.Asset == "" || it.ItemCode != "" {
		return it, nil
	}
	asset, err := s.lookups.Assets.Get(ctx, it.Asset)
	if err != nil {
		return Item{}, err
	}
	master, err := s.item(ctx, asset.ItemCode)
	if err != nil {
		return Item{}, err
	}
	fillFromAsset(&it, asset, master)
	return it, nil
}

func fillFromAsset(it *Item, asset assets.Asset, master items.Item) {
	it.ItemCode = asset.ItemCode
	it.ItemName = master.Name
	it.Description = fmt.Sprintf("%s (Asset: %s)", master.Name, asset.Name)
	it.UOM = master.StockUOM
	it.Warehouse = asset.Warehouse
	if it.Qty.IsZero() {
		it.Qty = decimal.NewFromInt(1)
	}
	if it.Rate.IsZero() {
		it.Rate = asset.GrossPurchaseAmount
	}
	if it.PurchaseReceipt == "" {
		it.PurchaseReceipt = asset.PurchaseReceipt
		it.PurchaseReceiptItem = asset.PurchaseReceiptItem
	}
}

// Submit validates the draft, moves it to submitted and hands the assets
// over to the employee.
func (s *Service) Submit(ctx context.Context, name string) (Receipt, error) {
	release, err := s.acquire(ctx, shared.CustodyReceiptLockKey(name))
	if err != nil {
		return Receipt{}, err
	}
	defer release()

	draft, err := s.repo.Get(ctx, name)
	if err != nil {
		return Receipt{}, err
	}
	// Submits drawing on the same purchase receipt must not check the
	// receipted totals side by side.
	locked := purchaseReceiptsOf(draft)
	for _, pr := range locked {
		releasePR, err := s.acquire(ctx, shared.PurchaseReceiptLockKey(pr))
		if err != nil {
			return Receipt{}, err
		}
		defer releasePR()
	}

	key := fmt.Sprintf("custody-receipt:%s:submit", name)
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "custody.submit"); err != nil {
			return Receipt{}, err
		}
	}

	var submitted Receipt
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		r, err := tx.Lock(ctx, name)
		if err != nil {
			return err
		}
		if r.DocStatus != DocStatusDraft {
			return shared.Userf(shared.ErrInvalidState, "custody receipt %s is already %s", name, r.DocStatus)
		}
		if err := ValidateForSubmit(r); err != nil {
			return err
		}
		if err := s.checkEmployee(ctx, r); err != nil {
			return err
		}
		if err := s.checkAssets(ctx, r); err != nil {
			return err
		}
		for _, pr := range purchaseReceiptsOf(r) {
			if i := sort.SearchStrings(locked, pr); i == len(locked) || locked[i] != pr {
				return shared.Userf(shared.ErrConflict, "custody receipt %s changed while submitting, please retry", name)
			}
		}
		if err := s.checkPurchaseReceipts(ctx, tx, r); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, name, DocStatusSubmitted); err != nil {
			return err
		}
		for _, it := range r.Items {
			if it.Asset == "" {
				continue
			}
			if err := tx.SetCustodian(ctx, it.Asset, r.Employee); err != nil {
				return err
			}
		}
		r.DocStatus = DocStatusSubmitted
		submitted = r
		return nil
	})
	if err != nil {
		if s.idempotency != nil {
			if derr := s.idempotency.Delete(ctx, key); derr != nil {
				s.logger.Warn("release submit idempotency key", slog.String("receipt", name), slog.Any("error", derr))
			}
		}
		return Receipt{}, err
	}

	s.invalidate(ctx, submitted.Company)
	s.recordMetric(submitted.Source, "submit")
	s.recordAudit(ctx, "CUSTODY_RECEIPT_SUBMIT", name, map[string]any{"employee": submitted.Employee, "items": len(submitted.Items)})
	if s.notifier != nil {
		if err := s.notifier.ReceiptSubmitted(ctx, submitted); err != nil {
			s.logger.Warn("enqueue custody notification", slog.String("receipt", name), slog.Any("error", err))
		}
	}
	return submitted, nil
}

// purchaseReceiptsOf lists the purchase receipts the rows draw quantity
// from, sorted so concurrent submits take their locks in the same order.
func purchaseReceiptsOf(r Receipt) []string {
	seen := map[string]bool{}
	var out []string
	for _, it := range r.Items {
		if it.PurchaseReceipt == "" || it.PurchaseReceiptItem == "" || seen[it.PurchaseReceipt] {
			continue
		}
		seen[it.PurchaseReceipt] = true
		out = append(out, it.PurchaseReceipt)
	}
	sort.Strings(out)
	return out
}

func (s *Service) checkEmployee(ctx context.Context, r Receipt) error {
	emp, err := s.lookups.Employees.Get(ctx, r.Employee)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Userf(shared.ErrValidation, "employee %s does not exist", r.Employee)
		}
		return err
	}
	if emp.Status != mdshared.EmployeeStatusActive {
		return shared.Userf(shared.ErrValidation, "employee %s is not active", r.Employee)
	}
	return nil
}

func (s *Service) checkAssets(ctx context.Context, r Receipt) error {
	seen := map[string]int{}
	for _, it := range r.Items {
		if it.Asset == "" {
			continue
		}
		if prev, dup := seen[it.Asset]; dup {
			return shared.Userf(shared.ErrValidation, "row #%d: asset %s is already used in row #%d", it.Idx, it.Asset, prev)
		}
		seen[it.Asset] = it.Idx
		asset, err := s.lookups.Assets.Get(ctx, it.Asset)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.Userf(shared.ErrValidation, "row #%d: asset %s does not exist", it.Idx, it.Asset)
			}
			return err
		}
		if asset.ItemCode != it.ItemCode {
			return shared.Userf(shared.ErrValidation, "row #%d: asset %s belongs to item %s, not %s", it.Idx, it.Asset, asset.ItemCode, it.ItemCode)
		}
		if asset.Retired() {
			return shared.Userf(shared.ErrValidation, "row #%d: asset %s is %s", it.Idx, it.Asset, strings.ToLower(asset.Status))
		}
		// Only submitted receipts set a custodian, so competing drafts race to submit.
		if asset.Custodian != "" {
			return shared.Userf(shared.ErrValidation, "row #%d: asset %s is already in the custody of %s", it.Idx, it.Asset, asset.Custodian)
		}
	}
	return nil
}

func (s *Service) checkPurchaseReceipts(ctx context.Context, tx TxRepository, r Receipt) error {
	byReceipt := map[string][]Item{}
	var order []string
	for _, it := range r.Items {
		if it.PurchaseReceipt == "" || it.PurchaseReceiptItem == "" {
			continue
		}
		if _, ok := byReceipt[it.PurchaseReceipt]; !ok {
			order = append(order, it.PurchaseReceipt)
		}
		byReceipt[it.PurchaseReceipt] = append(byReceipt[it.PurchaseReceipt], it)
	}
	sort.Strings(order)
	for _, name := range order {
		pr, err := tx.LockPurchaseReceipt(ctx, name)
		if err != nil {
			return err
		}
		receipted, err := tx.SubmittedQtyByLine(ctx, name)
		if err != nil {
			return err
		}
		if err := CheckAgainstReceipt(pr, byReceipt[name], receipted); err != nil {
			return err
		}
	}
	return nil
}

// Cancel cancels a submitted receipt and releases its assets.
func (s *Service) Cancel(ctx context.Context, name string) (Receipt, error) {
	release, err := s.acquire(ctx, shared.CustodyReceiptLockKey(name))
	if err != nil {
		return Receipt{}, err
	}
	defer release()

	var cancelled Receipt
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		r, err := tx.Lock(ctx, name)
		if err != nil {
			return err
		}
		if r.DocStatus != DocStatusSubmitted {
			return shared.Userf(shared.ErrInvalidState, "only submitted custody receipts can be cancelled, %s is %s", name, r.DocStatus)
		}
		if err := tx.UpdateStatus(ctx, name, DocStatusCancelled); err != nil {
			return err
		}
		for _, it := range r.Items {
			if it.Asset == "" {
				continue
			}
			if err := tx.SetCustodian(ctx, it.Asset, ""); err != nil && !errors.Is(err, shared.ErrNotFound) {
				return err
			}
		}
		r.DocStatus = DocStatusCancelled
		cancelled = r
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	s.invalidate(ctx, cancelled.Company)
	s.recordMetric(cancelled.Source, "cancel")
	s.recordAudit(ctx, "CUSTODY_RECEIPT_CANCEL", name, nil)
	return cancelled, nil
}

// Delete removes a draft.
func (s *Service) Delete(ctx context.Context, name string) error {
	release, err := s.acquire(ctx, shared.CustodyReceiptLockKey(name))
	if err != nil {
		return err
	}
	defer release()

	var company string
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		r, err := tx.Lock(ctx, name)
		if err != nil {
			return err
		}
		if r.DocStatus != DocStatusDraft {
			return shared.Userf(shared.ErrInvalidState, "only draft custody receipts can be deleted, %s is %s", name, r.DocStatus)
		}
		company = r.Company
		return tx.Delete(ctx, name)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, company)
	s.recordAudit(ctx, "CUSTODY_RECEIPT_DELETE", name, nil)
	return nil
}

// insert names and stores a new draft.
func (s *Service) insert(ctx context.Context, r Receipt) (Receipt, error) {
	r.DocStatus = DocStatusDraft
	if r.CreatedBy == 0 {
		r.CreatedBy = shared.ActorFromContext(ctx)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		posting := s.now()
		if r.PostingDate != nil {
			posting = *r.PostingDate
		}
		name, err := tx.NextName(ctx, posting)
		if err != nil {
			return err
		}
		r.Name = name
		Number(name, r.Items)
		return tx.Insert(ctx, r)
	})
	if err != nil {
		return Receipt{}, err
	}
	return r, nil
}

func (s *Service) afterCreate(ctx context.Context, r Receipt) {
	s.invalidate(ctx, r.Company)
	s.recordMetric(r.Source, "create")
	if s.metrics != nil {
		withAsset := 0
		for _, it := range r.Items {
			if it.Asset != "" {
				withAsset++
			}
		}
		s.metrics.RowsCreated(withAsset, len(r.Items)-withAsset)
	}
	s.recordAudit(ctx, "CUSTODY_RECEIPT_CREATE", r.Name, map[string]any{"source": string(r.Source), "items": len(r.Items)})
}

func (s *Service) invalidate(ctx context.Context, company string) {
	if err := s.cache.Invalidate(ctx, company); err != nil {
		s.logger.Warn("invalidate available assets cache", slog.String("company", company), slog.Any("error", err))
	}
}

func (s *Service) recordMetric(source Source, action string) {
	if s.metrics != nil {
		s.metrics.ReceiptEvent(string(source), action)
	}
}

func (s *Service) recordAudit(ctx context.Context, action, name string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "custody_receipt", EntityID: name, Meta: meta}); err != nil {
		s.logger.Warn("record custody audit", slog.String("action", action), slog.String("receipt", name), slog.Any("error", err))
	}
}

func (s *Service) item(ctx context.Context, code string) (items.Item, error) {
	master, err := s.lookups.Items.Get(ctx, code)
	if errors.Is(err, shared.ErrNotFound) {
		return items.Item{}, shared.Userf(shared.ErrValidation, "item %s does not exist", code)
	}
	return master, err
}
