package employees

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/custody/internal/masterdata/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Employee, int, error)
	Get(ctx context.Context, name string) (Employee, error)
	Upsert(ctx context.Context, e Employee) (Employee, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const employeeColumns = `name, employee_name, company, department, email, status, created_at, updated_at`

func scanEmployee(row pgx.Row) (Employee, error) {
	var e Employee
	err := row.Scan(&e.Name, &e.EmployeeName, &e.Company, &e.Department, &e.Email, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Employee, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if !filters.IncludeDisabled {
		args = append(args, shared.EmployeeStatusActive)
		where += ` AND status = ` + shared.Placeholder(len(args))
	}
	if filters.Company != "" {
		args = append(args, filters.Company)
		where += ` AND company = ` + shared.Placeholder(len(args))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += ` AND (name ILIKE ` + shared.Placeholder(len(args)) + ` OR employee_name ILIKE ` + shared.Placeholder(len(args)) + `)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM employees`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + employeeColumns + ` FROM employees` + where + ` ORDER BY name`
	if filters.Limit > 0 {
		args = append(args, filters.Limit, filters.Offset)
		query += ` LIMIT ` + shared.Placeholder(len(args)-1) + ` OFFSET ` + shared.Placeholder(len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, name string) (Employee, error) {
	e, err := scanEmployee(r.pool.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Employee{}, shared.ErrNotFound
		}
		return Employee{}, err
	}
	return e, nil
}

func (r *repository) Upsert(ctx context.Context, e Employee) (Employee, error) {
	return scanEmployee(r.pool.QueryRow(ctx, `
		INSERT INTO employees (name, employee_name, company, department, email, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (name) DO UPDATE SET
			employee_name = EXCLUDED.employee_name,
			company = EXCLUDED.company,
			department = EXCLUDED.department,
			email = EXCLUDED.email,
			status = EXCLUDED.status,
			updated_at = NOW()
		RETURNING `+employeeColumns,
		e.Name, e.EmployeeName, e.Company, e.Department, e.Email, e.Status))
}
