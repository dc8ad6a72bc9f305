package custody

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/custody/internal/assets"
	"github.com/odyssey-erp/custody/internal/masterdata/employees"
	"github.com/odyssey-erp/custody/internal/masterdata/items"
	mdshared "github.com/odyssey-erp/custody/internal/masterdata/shared"
	"github.com/odyssey-erp/custody/internal/procurement"
	"github.com/odyssey-erp/custody/internal/shared"
)

func mustDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

type world struct {
	receipts  map[string]Receipt
	seq       int
	prs       map[string]procurement.PurchaseReceipt
	assets    map[string]assets.Asset
	items     map[string]items.Item
	employees map[string]employees.Employee
	available int

	// Hooks let tests interleave other work with a running call.
	onLockPurchaseReceipt func(name string)
	onAvailable           func(company string)
}

func newWorld() *world {
	return &world{
		receipts:  map[string]Receipt{},
		prs:       map[string]procurement.PurchaseReceipt{},
		assets:    map[string]assets.Asset{},
		items:     map[string]items.Item{},
		employees: map[string]employees.Employee{},
	}
}

// memoryRepo implements RepositoryPort and TxRepository over world.
type memoryRepo struct{ w *world }

func (r memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[string]Receipt, len(r.w.receipts))
	for k, v := range r.w.receipts {
		snapshot[k] = v
	}
	assetSnapshot := make(map[string]assets.Asset, len(r.w.assets))
	for k, v := range r.w.assets {
		assetSnapshot[k] = v
	}
	if err := fn(ctx, r); err != nil {
		r.w.receipts = snapshot
		r.w.assets = assetSnapshot
		return err
	}
	return nil
}

func (r memoryRepo) Get(ctx context.Context, name string) (Receipt, error) {
	rec, ok := r.w.receipts[name]
	if !ok {
		return Receipt{}, ErrNotFound
	}
	rec.Items = append([]Item(nil), rec.Items...)
	return rec, nil
}

func (r memoryRepo) List(ctx context.Context, limit, offset int, filters ListFilters) ([]Receipt, int, error) {
	var out []Receipt
	for _, rec := range r.w.receipts {
		if filters.Employee != "" && rec.Employee != filters.Employee {
			continue
		}
		if filters.DocStatus != nil && rec.DocStatus != *filters.DocStatus {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

func (r memoryRepo) SubmittedQtyByLine(ctx context.Context, purchaseReceipt string) (map[string]decimal.Decimal, error) {
	var rows []ReceiptedQty
	for _, rec := range r.w.receipts {
		if rec.DocStatus != DocStatusSubmitted {
			continue
		}
		for _, it := range rec.Items {
			if it.PurchaseReceipt == purchaseReceipt {
				rows = append(rows, ReceiptedQty{PurchaseReceiptItem: it.PurchaseReceiptItem, Qty: it.Qty})
			}
		}
	}
	return SumByLine(rows), nil
}

func (r memoryRepo) NextName(ctx context.Context, postingDate time.Time) (string, error) {
	r.w.seq++
	return fmt.Sprintf("CR-%d-%05d", postingDate.Year(), r.w.seq), nil
}

func (r memoryRepo) Insert(ctx context.Context, rec Receipt) error {
	r.w.receipts[rec.Name] = rec
	return nil
}

func (r memoryRepo) UpdateHeader(ctx context.Context, rec Receipt) error {
	cur, ok := r.w.receipts[rec.Name]
	if !ok {
		return ErrNotFound
	}
	rec.Items = cur.Items
	r.w.receipts[rec.Name] = rec
	return nil
}

func (r memoryRepo) ReplaceItems(ctx context.Context, parent string, list []Item) error {
	rec := r.w.receipts[parent]
	rec.Items = append([]Item(nil), list...)
	r.w.receipts[parent] = rec
	return nil
}

func (r memoryRepo) UpdateStatus(ctx context.Context, name string, status DocStatus) error {
	rec, ok := r.w.receipts[name]
	if !ok {
		return ErrNotFound
	}
	rec.DocStatus = status
	r.w.receipts[name] = rec
	return nil
}

func (r memoryRepo) Delete(ctx context.Context, name string) error {
	delete(r.w.receipts, name)
	return nil
}

func (r memoryRepo) Lock(ctx context.Context, name string) (Receipt, error) {
	return r.Get(ctx, name)
}

func (r memoryRepo) LockPurchaseReceipt(ctx context.Context, name string) (procurement.PurchaseReceipt, error) {
	if hook := r.w.onLockPurchaseReceipt; hook != nil {
		r.w.onLockPurchaseReceipt = nil
		hook(name)
	}
	return memoryPRs{r.w}.Get(ctx, name)
}

func (r memoryRepo) SetCustodian(ctx context.Context, asset, employee string) error {
	a, ok := r.w.assets[asset]
	if !ok {
		return assets.ErrNotFound
	}
	a.Custodian = employee
	if !a.Retired() {
		a.Status = assets.CustodyStatus(employee)
	}
	r.w.assets[asset] = a
	return nil
}

type memoryPRs struct{ w *world }

func (m memoryPRs) Get(ctx context.Context, name string) (procurement.PurchaseReceipt, error) {
	pr, ok := m.w.prs[name]
	if !ok {
		return procurement.PurchaseReceipt{}, procurement.ErrNotFound
	}
	return pr, nil
}

type memoryItems struct{ w *world }

func (m memoryItems) Get(ctx context.Context, code string) (items.Item, error) {
	it, ok := m.w.items[code]
	if !ok {
		return items.Item{}, mdshared.ErrNotFound
	}
	return it, nil
}

type memoryEmployees struct{ w *world }

func (m memoryEmployees) Get(ctx context.Context, name string) (employees.Employee, error) {
	e, ok := m.w.employees[name]
	if !ok {
		return employees.Employee{}, mdshared.ErrNotFound
	}
	return e, nil
}

// memoryAssets applies the same filters as the SQL lookups.
type memoryAssets struct{ w *world }

func (m memoryAssets) Get(ctx context.Context, name string) (assets.Asset, error) {
	a, ok := m.w.assets[name]
	if !ok {
		return assets.Asset{}, assets.ErrNotFound
	}
	return a, nil
}

func (m memoryAssets) OnOpenCustody(ctx context.Context, asset, exclude string) (bool, error) {
	for _, rec := range m.w.receipts {
		if rec.DocStatus == DocStatusCancelled || rec.Name == exclude {
			continue
		}
		for _, it := range rec.Items {
			if it.Asset == asset {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m memoryAssets) filter(keep func(assets.Asset) bool) []assets.Asset {
	var out []assets.Asset
	for _, a := range m.w.assets {
		if busy, _ := m.OnOpenCustody(context.Background(), a.Name, ""); busy {
			continue
		}
		if keep(a) {
			out = append(out, a)
		}
	}
	assets.SortByName(out)
	return out
}

func (m memoryAssets) Candidates(ctx context.Context, q assets.LineQuery) ([]assets.Asset, assets.Strategy, error) {
	if found := m.filter(func(a assets.Asset) bool {
		return a.PurchaseReceipt == q.PurchaseReceipt && a.PurchaseReceiptItem == q.PurchaseReceiptItem && !a.Retired()
	}); len(found) > 0 {
		return found, assets.StrategyReceiptLine, nil
	}
	if found := m.filter(func(a assets.Asset) bool {
		return a.PurchaseReceipt == q.PurchaseReceipt && a.ItemCode == q.ItemCode && !a.Retired()
	}); len(found) > 0 {
		return found, assets.StrategyReceiptItemCode, nil
	}
	if found := m.filter(func(a assets.Asset) bool {
		return a.ItemCode == q.ItemCode && a.Company == q.Company && a.Custodian == "" && !a.Retired()
	}); len(found) > 0 {
		return found, assets.StrategyItemCompany, nil
	}
	return nil, assets.StrategyNone, nil
}

func (m memoryAssets) Available(ctx context.Context, company string) ([]assets.Asset, error) {
	m.w.available++
	list := m.filter(func(a assets.Asset) bool {
		return a.Company == company && a.Custodian == "" && !a.Retired()
	})
	if hook := m.w.onAvailable; hook != nil {
		m.w.onAvailable = nil
		hook(company)
	}
	return list, nil
}

type recordingNotifier struct{ submitted []string }

func (n *recordingNotifier) ReceiptSubmitted(ctx context.Context, r Receipt) error {
	n.submitted = append(n.submitted, r.Name)
	return nil
}

type countingMetrics struct {
	events       map[string]int
	withAsset    int
	withoutAsset int
}

func (m *countingMetrics) ReceiptEvent(source, action string) {
	if m.events == nil {
		m.events = map[string]int{}
	}
	m.events[source+":"+action]++
}

func (m *countingMetrics) RowsCreated(withAsset, withoutAsset int) {
	m.withAsset += withAsset
	m.withoutAsset += withoutAsset
}

type fixture struct {
	w        *world
	svc      *Service
	redis    *miniredis.Miniredis
	client   *redis.Client
	notifier *recordingNotifier
	metrics  *countingMetrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	w := newWorld()
	w.items["LAPTOP"] = items.Item{Code: "LAPTOP", Name: "Laptop 14", StockUOM: "Nos", IsFixedAsset: true}
	w.items["MOUSE"] = items.Item{Code: "MOUSE", Name: "Wireless Mouse", StockUOM: "Nos"}
	w.employees["EMP-001"] = employees.Employee{Name: "EMP-001", EmployeeName: "Rina Putri", Company: "ACME", Status: mdshared.EmployeeStatusActive}
	w.employees["EMP-002"] = employees.Employee{Name: "EMP-002", EmployeeName: "Budi Santoso", Company: "ACME", Status: mdshared.EmployeeStatusLeft}
	w.prs["PR-0001"] = procurement.PurchaseReceipt{
		Name:         "PR-0001",
		Company:      "ACME",
		Supplier:     "SUP-01",
		SupplierName: "PT Sumber Makmur",
		PostingDate:  mustDate("2026-09-30"),
		DocStatus:    procurement.DocStatusSubmitted,
		Items: []procurement.ReceiptLine{
			{Name: "PR-0001-001", Parent: "PR-0001", Idx: 1, ItemCode: "LAPTOP", ItemName: "Laptop 14", Qty: d(3), AcceptedQty: d(3), UOM: "Nos", Warehouse: "Stores", Rate: d(15000000)},
			{Name: "PR-0001-002", Parent: "PR-0001", Idx: 2, ItemCode: "MOUSE", ItemName: "Wireless Mouse", Qty: d(5), UOM: "Nos", Warehouse: "Stores", Rate: d(150000)},
		},
	}
	for _, name := range []string{"AST-0002", "AST-0001"} {
		w.assets[name] = assets.Asset{
			Name: name, AssetName: "Laptop " + name, ItemCode: "LAPTOP", Company: "ACME", Warehouse: "Stores",
			PurchaseReceipt: "PR-0001", PurchaseReceiptItem: "PR-0001-001", GrossPurchaseAmount: d(15000000),
			Status: assets.StatusSubmitted,
		}
	}

	notifier := &recordingNotifier{}
	metrics := &countingMetrics{}
	svc := NewService(memoryRepo{w}, Lookups{
		PurchaseReceipts: memoryPRs{w},
		Assets:           memoryAssets{w},
		Items:            memoryItems{w},
		Employees:        memoryEmployees{w},
	}, nil, nil, ServiceConfig{
		Locker:   shared.NewLocker(client, time.Minute),
		Cache:    NewAvailableCache(client, 5*time.Minute),
		Metrics:  metrics,
		Notifier: notifier,
	})
	svc.WithNow(func() time.Time { return time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC) })
	return &fixture{w: w, svc: svc, redis: mr, client: client, notifier: notifier, metrics: metrics}
}

func (f *fixture) setEmployee(t *testing.T, name, employee string) {
	t.Helper()
	rec := f.w.receipts[name]
	rec.Employee = employee
	f.w.receipts[name] = rec
}

func TestCreateFromPurchaseReceiptDistributesAssets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.CreateFromPurchaseReceipt(ctx, "PR-0001")
	require.NoError(t, err)
	require.Equal(t, "CR-2026-00001", result.Name)
	require.Equal(t, IndicatorGreen, result.Messages[0].Indicator)
	require.Len(t, result.Messages, 2)
	require.Equal(t, IndicatorOrange, result.Messages[1].Indicator)
	require.Contains(t, result.Messages[1].Message, "1 row(s) of item LAPTOP")

	rec, err := f.svc.Get(ctx, result.Name)
	require.NoError(t, err)
	require.Equal(t, SourcePurchaseReceipt, rec.Source)
	require.Equal(t, DocStatusDraft, rec.DocStatus)
	require.Equal(t, "ACME", rec.Company)
	require.Equal(t, "SUP-01", rec.Supplier)
	require.Equal(t, "PR-0001", rec.PurchaseReceipt)
	require.Equal(t, mustDate("2026-09-30"), *rec.PurchaseDate)
	require.Len(t, rec.Items, 4)

	require.Equal(t, "AST-0001", rec.Items[0].Asset)
	require.Equal(t, "AST-0002", rec.Items[1].Asset)
	require.Empty(t, rec.Items[2].Asset)
	for _, row := range rec.Items[:3] {
		require.True(t, row.Qty.Equal(d(1)))
		require.True(t, row.Amount.Equal(d(15000000)))
		require.Equal(t, "PR-0001-001", row.PurchaseReceiptItem)
	}
	mouse := rec.Items[3]
	require.Equal(t, "MOUSE", mouse.ItemCode)
	require.True(t, mouse.Qty.Equal(d(5)))
	require.True(t, mouse.Amount.Equal(d(750000)))
	require.Equal(t, 4, mouse.Idx)

	require.Equal(t, 1, f.metrics.events["purchase_receipt:create"])
	require.Equal(t, 2, f.metrics.withAsset)
}

func TestCreateFromPurchaseReceiptSubtractsSubmittedQty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	posting := mustDate("2026-10-01")
	f.w.receipts["CR-OLD"] = Receipt{
		Name: "CR-OLD", DocStatus: DocStatusSubmitted, PostingDate: &posting, Employee: "EMP-001",
		Items: []Item{
			{ItemCode: "MOUSE", Qty: d(5), PurchaseReceipt: "PR-0001", PurchaseReceiptItem: "PR-0001-002"},
			{ItemCode: "LAPTOP", Qty: d(1), PurchaseReceipt: "PR-0001", PurchaseReceiptItem: "PR-0001-001"},
		},
	}
	f.w.receipts["CR-DRAFT"] = Receipt{
		Name: "CR-DRAFT", DocStatus: DocStatusDraft,
		Items: []Item{{ItemCode: "LAPTOP", Qty: d(1), PurchaseReceipt: "PR-0001", PurchaseReceiptItem: "PR-0001-001", Asset: "AST-0001"}},
	}

	result, err := f.svc.CreateFromPurchaseReceipt(ctx, "PR-0001")
	require.NoError(t, err)
	rec := f.w.receipts[result.Name]
	require.Len(t, rec.Items, 2, "two laptops remain, mouse fully receipted")
	require.Equal(t, "AST-0002", rec.Items[0].Asset, "asset on an open draft is skipped")
	require.Empty(t, rec.Items[1].Asset)
}

func TestCreateFromPurchaseReceiptFailsWithoutRemaining(t *testing.T) {
	f := newFixture(t)
	posting := mustDate("2026-10-01")
	f.w.receipts["CR-OLD"] = Receipt{
		Name: "CR-OLD", DocStatus: DocStatusSubmitted, PostingDate: &posting,
		Items: []Item{
			{ItemCode: "LAPTOP", Qty: d(3), PurchaseReceipt: "PR-0001", PurchaseReceiptItem: "PR-0001-001"},
			{ItemCode: "MOUSE", Qty: d(6), PurchaseReceipt: "PR-0001", PurchaseReceiptItem: "PR-0001-002"},
		},
	}
	_, err := f.svc.CreateFromPurchaseReceipt(context.Background(), "PR-0001")
	require.ErrorIs(t, err, ErrNoRemainingQty)
	require.Len(t, f.w.receipts, 1)
}

func TestCreateFromPurchaseReceiptRequiresSubmitted(t *testing.T) {
	f := newFixture(t)
	pr := f.w.prs["PR-0001"]
	pr.DocStatus = procurement.DocStatusDraft
	f.w.prs["PR-0001"] = pr

	_, err := f.svc.CreateFromPurchaseReceipt(context.Background(), "PR-0001")
	require.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = f.svc.CreateFromPurchaseReceipt(context.Background(), "PR-404")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateFromPurchaseReceiptHonoursLock(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.client.Set(context.Background(), shared.PurchaseReceiptLockKey("PR-0001"), "other", time.Minute).Err())

	_, err := f.svc.CreateFromPurchaseReceipt(context.Background(), "PR-0001")
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestSubmitAssignsCustodianAndBlocksOverissue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateFromPurchaseReceipt(ctx, "PR-0001")
	require.NoError(t, err)
	second, err := f.svc.CreateFromPurchaseReceipt(ctx, "PR-0001")
	require.NoError(t, err, "drafts do not count toward receipted quantity")

	_, err = f.svc.Submit(ctx, first.Name)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, "employee is mandatory for submitting custody receipt", err.Error())

	f.setEmployee(t, first.Name, "EMP-001")
	submitted, err := f.svc.Submit(ctx, first.Name)
	require.NoError(t, err)
	require.Equal(t, DocStatusSubmitted, submitted.DocStatus)
	require.Equal(t, "EMP-001", f.w.assets["AST-0001"].Custodian)
	require.Equal(t, "EMP-001", f.w.assets["AST-0002"].Custodian)
	require.Equal(t, []string{first.Name}, f.notifier.submitted)

	f.setEmployee(t, second.Name, "EMP-001")
	_, err = f.svc.Submit(ctx, second.Name)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, DocStatusDraft, f.w.receipts[second.Name].DocStatus)

	_, err = f.svc.Submit(ctx, first.Name)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestSubmitRejectsInactiveEmployee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	result, err := f.svc.CreateFromPurchaseReceipt(ctx, "PR-0001")
	require.NoError(t, err)
	f.setEmployee(t, result.Name, "EMP-002")

	_, err = f.svc.Submit(ctx, result.Name)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, err.Error(), "not active")
}

func TestCancelReleasesAssets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.CreateFromAsset(ctx, "AST-0001", "EMP-001")
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, result.Name)
	require.NoError(t, err)
	require.Equal(t, "EMP-001", f.w.assets["AST-0001"].Custodian)
	require.Equal(t, assets.StatusInUse, f.w.assets["AST-0001"].Status)

	require.ErrorIs(t, f.svc.Delete(ctx, result.Name), shared.ErrInvalidState)

	cancelled, err := f.svc.Cancel(ctx, result.Name)
	require.NoError(t, err)
	require.Equal(t, DocStatusCancelled, cancelled.DocStatus)
	require.Empty(t, f.w.assets["AST-0001"].Custodian)
	require.Equal(t, assets.StatusSubmitted, f.w.assets["AST-0001"].Status)

	_, err = f.svc.Cancel(ctx, result.Name)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestCompetingDraftsFirstSubmitWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateFromAsset(ctx, "AST-0001", "EMP-001")
	require.NoError(t, err)
	second, err := f.svc.CreateFromAsset(ctx, "AST-0001", "EMP-001")
	require.NoError(t, err)
	require.Len(t, second.Messages, 2)
	require.Equal(t, IndicatorOrange, second.Messages[1].Indicator)

	_, err = f.svc.Submit(ctx, second.Name)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, first.Name)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, err.Error(), "already in the custody of EMP-001")
	require.Equal(t, DocStatusDraft, f.w.receipts[first.Name].DocStatus)
}

func TestConcurrentSubmitsAgainstOneLineAreSerialized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateFromPurchaseReceipt(ctx, "PR-0001")
	require.NoError(t, err)
	second, err := f.svc.CreateFromPurchaseReceipt(ctx, "PR-0001")
	require.NoError(t, err)
	f.setEmployee(t, first.Name, "EMP-001")
	f.setEmployee(t, second.Name, "EMP-001")

	// The second submit runs while the first one holds its transaction on
	// the purchase receipt lines.
	var concurrentErr error
	f.w.onLockPurchaseReceipt = func(string) {
		_, concurrentErr = f.svc.Submit(ctx, second.Name)
	}
	_, err = f.svc.Submit(ctx, first.Name)
	require.NoError(t, err)
	require.ErrorIs(t, concurrentErr, shared.ErrConflict)
	require.Equal(t, DocStatusDraft, f.w.receipts[second.Name].DocStatus)

	// Retried after the first commit, the second sees the issued quantity.
	_, err = f.svc.Submit(ctx, second.Name)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, DocStatusDraft, f.w.receipts[second.Name].DocStatus)

	issued, err := f.svc.repo.SubmittedQtyByLine(ctx, "PR-0001")
	require.NoError(t, err)
	require.True(t, issued["PR-0001-001"].Equal(d(3)))
	require.True(t, issued["PR-0001-002"].Equal(d(5)))
}

func TestSubmitHonoursPurchaseReceiptLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	result, err := f.svc.CreateFromPurchaseReceipt(ctx, "PR-0001")
	require.NoError(t, err)
	f.setEmployee(t, result.Name, "EMP-001")
	require.NoError(t, f.client.Set(ctx, shared.PurchaseReceiptLockKey("PR-0001"), "other", time.Minute).Err())

	_, err = f.svc.Submit(ctx, result.Name)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, DocStatusDraft, f.w.receipts[result.Name].DocStatus)
	require.Empty(t, f.w.assets["AST-0001"].Custodian)
}

func TestRetiredAssetsAreNeverIssued(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scrapped := f.w.assets["AST-0001"]
	scrapped.Status = assets.StatusScrapped
	f.w.assets["AST-0001"] = scrapped

	result, err := f.svc.CreateFromPurchaseReceipt(ctx, "PR-0001")
	require.NoError(t, err)
	rows := f.w.receipts[result.Name].Items
	require.Equal(t, "AST-0002", rows[0].Asset)
	require.Empty(t, rows[1].Asset)
	require.Empty(t, rows[2].Asset)
	require.NoError(t, f.svc.Delete(ctx, result.Name))

	_, err = f.svc.CreateFromAsset(ctx, "AST-0001", "EMP-001")
	require.ErrorIs(t, err, shared.ErrInvalidState)

	posting := mustDate("2026-10-17")
	draft, err := f.svc.CreateDraft(ctx, DraftInput{
		Employee:    "EMP-001",
		PostingDate: &posting,
		Items:       []Item{{Asset: "AST-0001"}},
	})
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, draft.Name)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, err.Error(), "asset AST-0001 is scrapped")
	require.Equal(t, assets.StatusScrapped, f.w.assets["AST-0001"].Status)
	require.Empty(t, f.w.assets["AST-0001"].Custodian)
}

func TestAvailableAssetsNotCachedAcrossInvalidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A receipt issuing AST-0001 lands between the database read and the
	// cache fill.
	f.w.onAvailable = func(string) {
		_, err := f.svc.CreateFromAsset(ctx, "AST-0001", "EMP-001")
		require.NoError(t, err)
	}
	list, err := f.svc.AvailableAssets(ctx, "EMP-001")
	require.NoError(t, err)
	require.Len(t, list, 2)

	list, err = f.svc.AvailableAssets(ctx, "EMP-001")
	require.NoError(t, err)
	require.Equal(t, 2, f.w.available, "stale listing must not be served")
	require.Len(t, list, 1)
	require.Equal(t, "AST-0002", list[0].Name)

	_, err = f.svc.AvailableAssets(ctx, "EMP-001")
	require.NoError(t, err)
	require.Equal(t, 2, f.w.available)
}

type failingNotifier struct{}

func (failingNotifier) ReceiptSubmitted(ctx context.Context, r Receipt) error {
	return errors.New("redis: connection refused")
}

type failingAudit struct{}

func (failingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	return errors.New("audit insert failed")
}

func TestSideEffectFailuresAreLogged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var buf bytes.Buffer
	svc := NewService(memoryRepo{f.w}, f.svc.lookups, failingAudit{}, nil, ServiceConfig{
		Locker:   shared.NewLocker(f.client, time.Minute),
		Cache:    NewAvailableCache(f.client, time.Minute),
		Notifier: failingNotifier{},
		Logger:   slog.New(slog.NewTextHandler(&buf, nil)),
	})
	svc.WithNow(f.svc.now)

	result, err := svc.CreateFromAsset(ctx, "AST-0001", "EMP-001")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, result.Name)
	require.NoError(t, err, "notification and audit failures do not fail the submit")

	out := buf.String()
	require.Contains(t, out, "level=WARN")
	require.Contains(t, out, `msg="enqueue custody notification"`)
	require.Contains(t, out, `msg="record custody audit"`)
	require.Contains(t, out, "receipt="+result.Name)
	require.Contains(t, out, "connection refused")
}

func TestCreateFromEmployeeSkipsUnavailableAssets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	held := f.w.assets["AST-0002"]
	held.Custodian = "EMP-009"
	f.w.assets["AST-0002"] = held

	result, err := f.svc.CreateFromEmployee(ctx, EmployeeInput{
		Employee: "EMP-001",
		Assets:   []string{"AST-0001", "AST-0002", "AST-9999", "AST-0001"},
	})
	require.NoError(t, err)
	require.Len(t, result.Messages, 3)
	require.Equal(t, IndicatorOrange, result.Messages[1].Indicator)
	require.Equal(t, IndicatorBlue, result.Messages[2].Indicator)

	rec := f.w.receipts[result.Name]
	require.Equal(t, SourceEmployee, rec.Source)
	require.Equal(t, "EMP-001", rec.Employee)
	require.Equal(t, "Rina Putri", rec.EmployeeName)
	require.Equal(t, "ACME", rec.Company)
	require.Equal(t, mustDate("2026-10-17"), *rec.PostingDate)
	require.Len(t, rec.Items, 1)
	row := rec.Items[0]
	require.Equal(t, "Laptop 14 (Asset: AST-0001)", row.Description)
	require.Equal(t, "Nos", row.UOM)
	require.Equal(t, "Stores", row.Warehouse)
	require.True(t, row.Rate.Equal(d(15000000)))

	_, err = f.svc.CreateFromEmployee(ctx, EmployeeInput{Employee: "EMP-001", Assets: []string{"AST-0001"}})
	require.ErrorIs(t, err, ErrNoAssets)
	require.Equal(t, "no assets available to create a custody receipt", err.Error())
}

func TestCreateFromAsset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.CreateFromAsset(ctx, "AST-0002", "")
	require.NoError(t, err)
	rec := f.w.receipts[result.Name]
	require.Equal(t, SourceAsset, rec.Source)
	require.Equal(t, "PR-0001", rec.PurchaseReceipt)
	require.Empty(t, rec.Employee)
	require.Len(t, rec.Items, 1)
	require.Equal(t, "AST-0002", rec.Items[0].Asset)
	require.Equal(t, "PR-0001-001", rec.Items[0].PurchaseReceiptItem)

	_, err = f.svc.CreateFromAsset(ctx, "AST-404", "")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAvailableAssetsCachedUntilInvalidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	list, err := f.svc.AvailableAssets(ctx, "EMP-001")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "AST-0001", list[0].Name)

	_, err = f.svc.AvailableAssets(ctx, "EMP-001")
	require.NoError(t, err)
	require.Equal(t, 1, f.w.available, "second call served from redis")

	_, err = f.svc.CreateFromAsset(ctx, "AST-0001", "EMP-001")
	require.NoError(t, err)

	list, err = f.svc.AvailableAssets(ctx, "EMP-001")
	require.NoError(t, err)
	require.Equal(t, 2, f.w.available)
	require.Len(t, list, 1)
	require.Equal(t, "AST-0002", list[0].Name)
}

func TestDraftLifecycleWithAutofill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.svc.CreateDraft(ctx, DraftInput{
		Employee: "EMP-001",
		Items:    []Item{{Asset: "AST-0001"}, {ItemCode: "MOUSE", Qty: d(2), Rate: d(150000)}},
	})
	require.NoError(t, err)
	require.Equal(t, SourceManual, rec.Source)
	require.Equal(t, "ACME", rec.Company, "company defaults to the employee company")
	require.Equal(t, "LAPTOP", rec.Items[0].ItemCode)
	require.Equal(t, "Laptop 14", rec.Items[0].ItemName)
	require.True(t, rec.Items[1].Amount.Equal(d(300000)))

	posting := mustDate("2026-10-20")
	updated, err := f.svc.UpdateDraft(ctx, rec.Name, DraftInput{
		Employee:    "EMP-001",
		PostingDate: &posting,
		Remarks:     "handover for onboarding",
		Items:       []Item{{Asset: "AST-0001"}},
	})
	require.NoError(t, err)
	require.Len(t, updated.Items, 1)
	require.Equal(t, rec.Name+"-001", updated.Items[0].Name)

	require.NoError(t, f.svc.Delete(ctx, rec.Name))
	_, err = f.svc.Get(ctx, rec.Name)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDebugReportsStrategies(t *testing.T) {
	f := newFixture(t)
	report, err := f.svc.Debug(context.Background(), "PR-0001")
	require.NoError(t, err)
	require.Equal(t, 1, report.DocStatus)
	require.Len(t, report.Lines, 2)

	laptop := report.Lines[0]
	require.True(t, laptop.IsFixedAsset)
	require.Equal(t, assets.StrategyReceiptLine, laptop.Strategy)
	require.Equal(t, []string{"AST-0001", "AST-0002"}, laptop.Candidates)
	require.Equal(t, "3", laptop.RemainingQty)

	mouse := report.Lines[1]
	require.False(t, mouse.IsFixedAsset)
	require.Equal(t, "5", mouse.AcceptedQty)
	require.Empty(t, mouse.Candidates)
}
