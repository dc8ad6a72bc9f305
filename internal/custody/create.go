package custody

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/custody/internal/assets"
	"github.com/odyssey-erp/custody/internal/shared"
)

// CreateFromPurchaseReceipt drafts a custody receipt holding everything of
// the purchase receipt that has not been receipted yet.
func (s *Service) CreateFromPurchaseReceipt(ctx context.Context, sourceName string) (CreateResult, error) {
	sourceName = strings.TrimSpace(sourceName)
	if sourceName == "" {
		return CreateResult{}, shared.Userf(shared.ErrValidation, "purchase receipt is required")
	}
	release, err := s.acquire(ctx, shared.PurchaseReceiptLockKey(sourceName))
	if err != nil {
		return CreateResult{}, err
	}
	defer release()

	pr, err := s.lookups.PurchaseReceipts.Get(ctx, sourceName)
	if err != nil {
		return CreateResult{}, err
	}
	if !pr.IsSubmitted() {
		return CreateResult{}, shared.Userf(shared.ErrInvalidState, "purchase receipt %s must be submitted before issuing custody", pr.Name)
	}
	receipted, err := s.repo.SubmittedQtyByLine(ctx, pr.Name)
	if err != nil {
		return CreateResult{}, err
	}
	open := Open(Balances(pr.Items, receipted))
	if len(open) == 0 {
		return CreateResult{}, ErrNoRemainingQty
	}

	purchaseDate := pr.PostingDate
	r := Receipt{
		Company:         pr.Company,
		Supplier:        pr.Supplier,
		SupplierName:    pr.SupplierName,
		PurchaseDate:    &purchaseDate,
		PurchaseReceipt: pr.Name,
		PostingDate:     s.today(),
		Source:          SourcePurchaseReceipt,
	}
	var result CreateResult
	for _, balance := range open {
		master, err := s.item(ctx, balance.Line.ItemCode)
		if err != nil {
			return CreateResult{}, err
		}
		var candidates []assets.Asset
		if master.IsFixedAsset {
			candidates, _, err = s.lookups.Assets.Candidates(ctx, assets.LineQuery{
				PurchaseReceipt:     pr.Name,
				PurchaseReceiptItem: balance.Line.Name,
				ItemCode:            balance.Line.ItemCode,
				Company:             pr.Company,
			})
			if err != nil {
				return CreateResult{}, err
			}
			candidates = dropUsed(candidates, r.Items)
		}
		rows, missing := Rows(pr.Name, balance, master.IsFixedAsset, candidates)
		r.Items = append(r.Items, rows...)
		if missing > 0 {
			result.add(IndicatorOrange, "%d row(s) of item %s have no asset assigned", missing, balance.Line.ItemCode)
		}
	}
	if len(r.Items) == 0 {
		return CreateResult{}, ErrNoRemainingQty
	}

	created, err := s.insert(ctx, r)
	if err != nil {
		return CreateResult{}, err
	}
	s.afterCreate(ctx, created)
	result.Name = created.Name
	result.Messages = append([]Message{{Indicator: IndicatorGreen, Message: "Successfully created custody receipt: " + created.Name}}, result.Messages...)
	return result, nil
}

// dropUsed removes candidates that were already placed on earlier rows of
// the same document, which happens when two lines share an item code.
func dropUsed(candidates []assets.Asset, rows []Item) []assets.Asset {
	if len(rows) == 0 {
		return candidates
	}
	used := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if row.Asset != "" {
			used[row.Asset] = struct{}{}
		}
	}
	out := candidates[:0:0]
	for _, c := range candidates {
		if _, ok := used[c.Name]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// EmployeeInput asks for a receipt issuing assets to an employee.
type EmployeeInput struct {
	Employee    string
	Assets      []string
	PostingDate *time.Time
}

// CreateFromEmployee drafts a receipt with one row per issuable asset.
func (s *Service) CreateFromEmployee(ctx context.Context, input EmployeeInput) (CreateResult, error) {
	emp, err := s.lookups.Employees.Get(ctx, strings.TrimSpace(input.Employee))
	if err != nil {
		return CreateResult{}, err
	}
	r := Receipt{
		Employee:     emp.Name,
		EmployeeName: emp.EmployeeName,
		Company:      emp.Company,
		PostingDate:  input.PostingDate,
		Source:       SourceEmployee,
	}
	if r.PostingDate == nil {
		r.PostingDate = s.today()
	}

	var result CreateResult
	seen := map[string]struct{}{}
	for _, name := range input.Assets {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		asset, err := s.lookups.Assets.Get(ctx, name)
		if errors.Is(err, shared.ErrNotFound) {
			result.add(IndicatorBlue, "asset %s not found, skipped", name)
			continue
		}
		if err != nil {
			return CreateResult{}, err
		}
		if asset.Custodian != "" {
			result.add(IndicatorOrange, "asset %s is already in the custody of %s, skipped", name, asset.Custodian)
			continue
		}
		if asset.Retired() {
			result.add(IndicatorOrange, "asset %s is %s, skipped", name, strings.ToLower(asset.Status))
			continue
		}
		busy, err := s.lookups.Assets.OnOpenCustody(ctx, name, "")
		if err != nil {
			return CreateResult{}, err
		}
		if busy {
			result.add(IndicatorOrange, "asset %s is already on an open custody receipt, skipped", name)
			continue
		}
		master, err := s.item(ctx, asset.ItemCode)
		if err != nil {
			return CreateResult{}, err
		}
		row := Item{Asset: asset.Name}
		fillFromAsset(&row, asset, master)
		r.Items = append(r.Items, row)
	}
	if len(r.Items) == 0 {
		return CreateResult{}, ErrNoAssets
	}

	created, err := s.insert(ctx, r)
	if err != nil {
		return CreateResult{}, err
	}
	s.afterCreate(ctx, created)
	result.Name = created.Name
	result.Messages = append([]Message{{Indicator: IndicatorGreen, Message: "Successfully created custody receipt: " + created.Name}}, result.Messages...)
	return result, nil
}

// CreateFromAsset drafts a one-row receipt for a single asset.
func (s *Service) CreateFromAsset(ctx context.Context, assetName, employee string) (CreateResult, error) {
	asset, err := s.lookups.Assets.Get(ctx, assetName)
	if err != nil {
		return CreateResult{}, err
	}
	if asset.Retired() {
		return CreateResult{}, shared.Userf(shared.ErrInvalidState, "asset %s is %s and cannot be issued", asset.Name, strings.ToLower(asset.Status))
	}
	if asset.Custodian != "" {
		return CreateResult{}, shared.Userf(shared.ErrInvalidState, "asset %s is already in the custody of %s", asset.Name, asset.Custodian)
	}
	master, err := s.item(ctx, asset.ItemCode)
	if err != nil {
		return CreateResult{}, err
	}
	r := Receipt{
		Company:         asset.Company,
		PurchaseReceipt: asset.PurchaseReceipt,
		PostingDate:     s.today(),
		Source:          SourceAsset,
	}
	if employee = strings.TrimSpace(employee); employee != "" {
		emp, err := s.lookups.Employees.Get(ctx, employee)
		if err != nil {
			return CreateResult{}, err
		}
		r.Employee = emp.Name
		r.EmployeeName = emp.EmployeeName
	}
	row := Item{Asset: asset.Name}
	fillFromAsset(&row, asset, master)
	r.Items = []Item{row}

	var result CreateResult
	busy, err := s.lookups.Assets.OnOpenCustody(ctx, asset.Name, "")
	if err != nil {
		return CreateResult{}, err
	}
	if busy {
		result.add(IndicatorOrange, "asset %s is already on an open custody receipt and cannot be submitted twice", asset.Name)
	}

	created, err := s.insert(ctx, r)
	if err != nil {
		return CreateResult{}, err
	}
	s.afterCreate(ctx, created)
	result.Name = created.Name
	result.Messages = append([]Message{{Indicator: IndicatorGreen, Message: "Successfully created custody receipt: " + created.Name}}, result.Messages...)
	return result, nil
}

// AvailableAssets lists assets that can be issued to the employee.
func (s *Service) AvailableAssets(ctx context.Context, employee string) ([]assets.Asset, error) {
	emp, err := s.lookups.Employees.Get(ctx, strings.TrimSpace(employee))
	if err != nil {
		return nil, err
	}
	key, err := s.cache.Key(ctx, emp.Company)
	if err != nil {
		s.logger.Warn("resolve available assets cache key", slog.String("company", emp.Company), slog.Any("error", err))
		key = ""
	}
	if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		return cached, nil
	}
	v, err, _ := s.group.Do("available:"+emp.Company+":"+key, func() (any, error) {
		list, err := s.lookups.Assets.Available(ctx, emp.Company)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, key, list); err != nil {
			s.logger.Warn("fill available assets cache", slog.String("company", emp.Company), slog.Any("error", err))
		}
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	list, _ := v.([]assets.Asset)
	return list, nil
}

// DebugLine explains how one purchase receipt line would be issued.
type DebugLine struct {
	PurchaseReceiptItem string          `json:"purchase_receipt_item"`
	ItemCode            string          `json:"item_code"`
	AcceptedQty         string          `json:"accepted_qty"`
	ReceiptedQty        string          `json:"receipted_qty"`
	RemainingQty        string          `json:"remaining_qty"`
	IsFixedAsset        bool            `json:"is_fixed_asset"`
	Strategy            assets.Strategy `json:"strategy"`
	Candidates          []string        `json:"candidates"`
}

// DebugReport is the read-only view of a purchase receipt's issue state.
type DebugReport struct {
	PurchaseReceipt string      `json:"purchase_receipt"`
	DocStatus       int         `json:"docstatus"`
	Company         string      `json:"company"`
	Lines           []DebugLine `json:"lines"`
}

// Debug reports accepted, receipted and remaining quantities per line plus
// the asset lookup outcome. Nothing is written.
func (s *Service) Debug(ctx context.Context, purchaseReceipt string) (DebugReport, error) {
	pr, err := s.lookups.PurchaseReceipts.Get(ctx, strings.TrimSpace(purchaseReceipt))
	if err != nil {
		return DebugReport{}, err
	}
	receipted, err := s.repo.SubmittedQtyByLine(ctx, pr.Name)
	if err != nil {
		return DebugReport{}, err
	}
	balances := Balances(pr.Items, receipted)
	report := DebugReport{
		PurchaseReceipt: pr.Name,
		DocStatus:       int(pr.DocStatus),
		Company:         pr.Company,
		Lines:           make([]DebugLine, len(balances)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, b := range balances {
		g.Go(func() error {
			line := DebugLine{
				PurchaseReceiptItem: b.Line.Name,
				ItemCode:            b.Line.ItemCode,
				AcceptedQty:         b.Accepted.String(),
				ReceiptedQty:        b.Receipted.String(),
				RemainingQty:        b.Remaining.String(),
				Candidates:          []string{},
			}
			master, err := s.lookups.Items.Get(gctx, b.Line.ItemCode)
			if err != nil && !errors.Is(err, shared.ErrNotFound) {
				return err
			}
			line.IsFixedAsset = err == nil && master.IsFixedAsset
			if line.IsFixedAsset {
				found, strategy, err := s.lookups.Assets.Candidates(gctx, assets.LineQuery{
					PurchaseReceipt:     pr.Name,
					PurchaseReceiptItem: b.Line.Name,
					ItemCode:            b.Line.ItemCode,
					Company:             pr.Company,
				})
				if err != nil {
					return err
				}
				line.Strategy = strategy
				for _, a := range found {
					line.Candidates = append(line.Candidates, a.Name)
				}
			}
			report.Lines[i] = line
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return DebugReport{}, err
	}
	return report, nil
}
