package procurement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/custody/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	InsertReceipt(ctx context.Context, pr PurchaseReceipt) error
	InsertLine(ctx context.Context, line ReceiptLine) error
	UpdateStatus(ctx context.Context, name string, status DocStatus) error
	LockReceipt(ctx context.Context, name string) (PurchaseReceipt, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const receiptColumns = `name, company, supplier, supplier_name, posting_date, docstatus, created_at, updated_at`

const lineColumns = `name, parent, idx, item_code, item_name, description, qty, accepted_qty, uom, warehouse, rate, COALESCE(asset, '')`

func scanReceipt(row pgx.Row) (PurchaseReceipt, error) {
	var pr PurchaseReceipt
	err := row.Scan(&pr.Name, &pr.Company, &pr.Supplier, &pr.SupplierName, &pr.PostingDate, &pr.DocStatus, &pr.CreatedAt, &pr.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseReceipt{}, ErrNotFound
	}
	return pr, err
}

func scanLines(rows pgx.Rows) ([]ReceiptLine, error) {
	defer rows.Close()
	var lines []ReceiptLine
	for rows.Next() {
		var l ReceiptLine
		if err := rows.Scan(&l.Name, &l.Parent, &l.Idx, &l.ItemCode, &l.ItemName, &l.Description, &l.Qty, &l.AcceptedQty, &l.UOM, &l.Warehouse, &l.Rate, &l.Asset); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Get returns the purchase receipt with its lines ordered by idx.
func (r *Repository) Get(ctx context.Context, name string) (PurchaseReceipt, error) {
	return getReceipt(ctx, r.pool, name, false)
}

func getReceipt(ctx context.Context, q db.Querier, name string, forUpdate bool) (PurchaseReceipt, error) {
	headerSQL := `SELECT ` + receiptColumns + ` FROM purchase_receipts WHERE name = $1`
	lineSQL := `SELECT ` + lineColumns + ` FROM purchase_receipt_items WHERE parent = $1 ORDER BY idx`
	if forUpdate {
		headerSQL += ` FOR UPDATE`
		lineSQL += ` FOR UPDATE`
	}
	pr, err := scanReceipt(q.QueryRow(ctx, headerSQL, name))
	if err != nil {
		return PurchaseReceipt{}, err
	}
	rows, err := q.Query(ctx, lineSQL, name)
	if err != nil {
		return PurchaseReceipt{}, fmt.Errorf("procurement: query lines: %w", err)
	}
	pr.Items, err = scanLines(rows)
	if err != nil {
		return PurchaseReceipt{}, fmt.Errorf("procurement: scan lines: %w", err)
	}
	return pr, nil
}

// List returns purchase receipts ordered by posting date, newest first.
func (r *Repository) List(ctx context.Context, limit, offset int, filters ListFilters) ([]PurchaseReceipt, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Company != "" {
		args = append(args, filters.Company)
		where += fmt.Sprintf(` AND company = $%d`, len(args))
	}
	if filters.Supplier != "" {
		args = append(args, filters.Supplier)
		where += fmt.Sprintf(` AND supplier = $%d`, len(args))
	}
	if filters.DocStatus != nil {
		args = append(args, int(*filters.DocStatus))
		where += fmt.Sprintf(` AND docstatus = $%d`, len(args))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += fmt.Sprintf(` AND (name ILIKE $%d OR supplier_name ILIKE $%d)`, len(args), len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_receipts`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx, `SELECT `+receiptColumns+` FROM purchase_receipts`+where+
		fmt.Sprintf(` ORDER BY posting_date DESC, name LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []PurchaseReceipt
	for rows.Next() {
		pr, err := scanReceipt(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, pr)
	}
	return out, total, rows.Err()
}

func (t *txRepo) InsertReceipt(ctx context.Context, pr PurchaseReceipt) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO purchase_receipts (name, company, supplier, supplier_name, posting_date, docstatus, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`,
		pr.Name, pr.Company, pr.Supplier, pr.SupplierName, pr.PostingDate, int(pr.DocStatus))
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("procurement: purchase receipt %s exists: %w", pr.Name, ErrValidation)
	}
	return err
}

func (t *txRepo) InsertLine(ctx context.Context, line ReceiptLine) error {
	var asset *string
	if line.Asset != "" {
		asset = &line.Asset
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO purchase_receipt_items
		(name, parent, idx, item_code, item_name, description, qty, accepted_qty, uom, warehouse, rate, asset)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		line.Name, line.Parent, line.Idx, line.ItemCode, line.ItemName, line.Description,
		line.Qty, line.AcceptedQty, line.UOM, line.Warehouse, line.Rate, asset)
	return err
}

func (t *txRepo) UpdateStatus(ctx context.Context, name string, status DocStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_receipts SET docstatus = $2, updated_at = NOW() WHERE name = $1`, name, int(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) LockReceipt(ctx context.Context, name string) (PurchaseReceipt, error) {
	return getReceipt(ctx, t.tx, name, true)
}

// LockLines loads the receipt and its lines with row locks held until q's
// transaction ends. Custody submission uses it to serialise quantity checks.
// The header row is written so that a concurrent submit committed after the
// caller's snapshot surfaces as a serialization failure.
func LockLines(ctx context.Context, q db.Querier, name string) (PurchaseReceipt, error) {
	tag, err := q.Exec(ctx, `UPDATE purchase_receipts SET updated_at = NOW() WHERE name = $1`, name)
	if err != nil {
		return PurchaseReceipt{}, fmt.Errorf("procurement: touch receipt %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return PurchaseReceipt{}, ErrNotFound
	}
	return getReceipt(ctx, q, name, true)
}
