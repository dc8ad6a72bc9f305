package employees

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

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Employee, int, error) {
	return s.repo.List(ctx, filters)
}

// Get returns the employee by id (document name).
func (s *Service) Get(ctx context.Context, name string) (Employee, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Employee{}, internalShared.Userf(internalShared.ErrValidation, "employee is required")
	}
	return s.repo.Get(ctx, name)
}

func (s *Service) Save(ctx context.Context, e Employee) (Employee, error) {
	e.Name = strings.TrimSpace(e.Name)
	if e.Status == "" {
		e.Status = shared.EmployeeStatusActive
	}
	if err := s.validate(e); err != nil {
		return Employee{}, err
	}
	return s.repo.Upsert(ctx, e)
}
