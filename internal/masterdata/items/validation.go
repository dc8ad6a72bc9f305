package items

import (
	"strings"

	"github.com/odyssey-erp/custody/internal/shared"
)

func (s *Service) validate(it Item) error {
	if strings.TrimSpace(it.Code) == "" {
		return shared.Userf(shared.ErrValidation, "item code is required")
	}
	if strings.TrimSpace(it.Name) == "" {
		return shared.Userf(shared.ErrValidation, "item name is required")
	}
	if strings.TrimSpace(it.StockUOM) == "" {
		return shared.Userf(shared.ErrValidation, "stock uom is required")
	}
	return nil
}
