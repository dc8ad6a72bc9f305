package items

import (
	"context"
	"strings"

	"github.com/odyssey-erp/custody/internal/masterdata/shared"
	internalShared "github.com/odyssey-erp/custody/internal/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Item, int, error) {
	return s.repo.List(ctx, filters)
}

// Get returns the item by code.
func (s *Service) Get(ctx context.Context, code string) (Item, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Item{}, internalShared.Userf(internalShared.ErrValidation, "item code is required")
	}
	return s.repo.Get(ctx, code)
}

// IsFixedAsset reports whether the item is tracked as serialized assets.
func (s *Service) IsFixedAsset(ctx context.Context, code string) (bool, error) {
	it, err := s.Get(ctx, code)
	if err != nil {
		return false, err
	}
	return it.IsFixedAsset, nil
}

func (s *Service) Save(ctx context.Context, item Item) (Item, error) {
	item.Code = strings.TrimSpace(item.Code)
	if err := s.validate(item); err != nil {
		return Item{}, err
	}
	return s.repo.Upsert(ctx, item)
}
