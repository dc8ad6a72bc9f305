package assets

import (
	"context"
	"sort"
	"strings"

	"github.com/odyssey-erp/custody/internal/shared"
)

// RepositoryPort describes the persistence used by Service.
type RepositoryPort interface {
	Get(ctx context.Context, name string) (Asset, error)
	FindByReceiptLine(ctx context.Context, receipt, line string) ([]Asset, error)
	FindByReceiptItemCode(ctx context.Context, receipt, itemCode string) ([]Asset, error)
	FindByItemCompany(ctx context.Context, itemCode, company string) ([]Asset, error)
	ListAvailable(ctx context.Context, company string) ([]Asset, error)
	OnOpenCustody(ctx context.Context, asset, exclude string) (bool, error)
	Upsert(ctx context.Context, a Asset) (Asset, error)
}

// Service answers asset questions for custody documents.
type Service struct {
	repo RepositoryPort
}

// NewService constructs the asset service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Get returns an asset by name.
func (s *Service) Get(ctx context.Context, name string) (Asset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Asset{}, shared.Userf(shared.ErrValidation, "asset is required")
	}
	return s.repo.Get(ctx, name)
}

// Candidates finds assets for a purchase receipt line. Lookups run from the
// most to the least specific and the first non-empty result wins. The
// returned slice is sorted by asset name.
func (s *Service) Candidates(ctx context.Context, q LineQuery) ([]Asset, Strategy, error) {
	type lookup struct {
		strategy Strategy
		ok       bool
		run      func() ([]Asset, error)
	}
	lookups := []lookup{
		{StrategyReceiptLine, q.PurchaseReceipt != "" && q.PurchaseReceiptItem != "", func() ([]Asset, error) {
			return s.repo.FindByReceiptLine(ctx, q.PurchaseReceipt, q.PurchaseReceiptItem)
		}},
		{StrategyReceiptItemCode, q.PurchaseReceipt != "" && q.ItemCode != "", func() ([]Asset, error) {
			return s.repo.FindByReceiptItemCode(ctx, q.PurchaseReceipt, q.ItemCode)
		}},
		{StrategyItemCompany, q.ItemCode != "" && q.Company != "", func() ([]Asset, error) {
			return s.repo.FindByItemCompany(ctx, q.ItemCode, q.Company)
		}},
	}
	for _, l := range lookups {
		if !l.ok {
			continue
		}
		found, err := l.run()
		if err != nil {
			return nil, StrategyNone, err
		}
		found = inService(found)
		if len(found) > 0 {
			SortByName(found)
			return found, l.strategy, nil
		}
	}
	return nil, StrategyNone, nil
}

// Available lists assets an employee of company could receive.
func (s *Service) Available(ctx context.Context, company string) ([]Asset, error) {
	if strings.TrimSpace(company) == "" {
		return nil, shared.Userf(shared.ErrValidation, "company is required")
	}
	list, err := s.repo.ListAvailable(ctx, company)
	if err != nil {
		return nil, err
	}
	SortByName(list)
	return list, nil
}

// OnOpenCustody reports whether the asset already sits on an open custody
// receipt other than exclude.
func (s *Service) OnOpenCustody(ctx context.Context, asset, exclude string) (bool, error) {
	return s.repo.OnOpenCustody(ctx, asset, exclude)
}

// Save validates and stores an asset.
func (s *Service) Save(ctx context.Context, a Asset) (Asset, error) {
	a.Name = strings.TrimSpace(a.Name)
	switch {
	case a.Name == "":
		return Asset{}, shared.Userf(shared.ErrValidation, "asset id is required")
	case strings.TrimSpace(a.ItemCode) == "":
		return Asset{}, shared.Userf(shared.ErrValidation, "item code is required")
	case strings.TrimSpace(a.Company) == "":
		return Asset{}, shared.Userf(shared.ErrValidation, "company is required")
	case a.GrossPurchaseAmount.IsNegative():
		return Asset{}, shared.Userf(shared.ErrValidation, "gross purchase amount cannot be negative")
	}
	if a.Status == "" {
		a.Status = StatusSubmitted
	}
	if a.AssetName == "" {
		a.AssetName = a.Name
	}
	return s.repo.Upsert(ctx, a)
}

func inService(list []Asset) []Asset {
	out := list[:0]
	for _, a := range list {
		if !a.Retired() {
			out = append(out, a)
		}
	}
	return out
}

// SortByName orders assets by name in place.
func SortByName(list []Asset) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })
}
