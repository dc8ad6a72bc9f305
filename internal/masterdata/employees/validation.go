package employees

import (
	"strings"

	"github.com/odyssey-erp/custody/internal/masterdata/shared"
	internalShared "github.com/odyssey-erp/custody/internal/shared"
)

func (s *Service) validate(e Employee) error {
	if strings.TrimSpace(e.Name) == "" {
		return internalShared.Userf(internalShared.ErrValidation, "employee id is required")
	}
	if strings.TrimSpace(e.EmployeeName) == "" {
		return internalShared.Userf(internalShared.ErrValidation, "employee name is required")
	}
	if strings.TrimSpace(e.Company) == "" {
		return internalShared.Userf(internalShared.ErrValidation, "company is required")
	}
	switch e.Status {
	case shared.EmployeeStatusActive, shared.EmployeeStatusInactive, shared.EmployeeStatusLeft:
	default:
		return internalShared.Userf(internalShared.ErrValidation, "unknown employee status %q", e.Status)
	}
	return nil
}
