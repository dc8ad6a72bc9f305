package custody

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/custody/internal/assets"
	"github.com/odyssey-erp/custody/internal/platform/db"
	"github.com/odyssey-erp/custody/internal/procurement"
	"github.com/odyssey-erp/custody/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes operations that run inside one transaction.
type TxRepository interface {
	NextName(ctx context.Context, postingDate time.Time) (string, error)
	Insert(ctx context.Context, r Receipt) error
	UpdateHeader(ctx context.Context, r Receipt) error
	ReplaceItems(ctx context.Context, parent string, items []Item) error
	UpdateStatus(ctx context.Context, name string, status DocStatus) error
	Delete(ctx context.Context, name string) error
	Lock(ctx context.Context, name string) (Receipt, error)
	LockPurchaseReceipt(ctx context.Context, name string) (procurement.PurchaseReceipt, error)
	SubmittedQtyByLine(ctx context.Context, purchaseReceipt string) (map[string]decimal.Decimal, error)
	SetCustodian(ctx context.Context, asset, employee string) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
// A serialization failure is reported as a retryable conflict.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	if db.IsSerializationFailure(err) {
		return shared.Userf(shared.ErrConflict, "custody receipt was changed by another request, please retry")
	}
	return err
}

const headerColumns = `name, COALESCE(employee, ''), employee_name, company, posting_date, supplier, supplier_name,
	purchase_date, COALESCE(purchase_receipt, ''), source, docstatus, remarks, created_by, created_at, updated_at`

const itemColumns = `name, parent, idx, item_code, item_name, description, qty, uom, warehouse,
	COALESCE(asset, ''), COALESCE(purchase_receipt, ''), COALESCE(purchase_receipt_item, ''), rate, amount`

func scanHeader(row pgx.Row) (Receipt, error) {
	var r Receipt
	var source string
	err := row.Scan(&r.Name, &r.Employee, &r.EmployeeName, &r.Company, &r.PostingDate, &r.Supplier, &r.SupplierName,
		&r.PurchaseDate, &r.PurchaseReceipt, &source, &r.DocStatus, &r.Remarks, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Receipt{}, ErrNotFound
	}
	r.Source = Source(source)
	return r, err
}

func loadItems(ctx context.Context, q db.Querier, parent string) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT `+itemColumns+` FROM custody_receipt_items WHERE parent = $1 ORDER BY idx`, parent)
	if err != nil {
		return nil, fmt.Errorf("custody: query items: %w", err)
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Name, &it.Parent, &it.Idx, &it.ItemCode, &it.ItemName, &it.Description, &it.Qty, &it.UOM,
			&it.Warehouse, &it.Asset, &it.PurchaseReceipt, &it.PurchaseReceiptItem, &it.Rate, &it.Amount); err != nil {
			return nil, fmt.Errorf("custody: scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func getReceipt(ctx context.Context, q db.Querier, name string, forUpdate bool) (Receipt, error) {
	sql := `SELECT ` + headerColumns + ` FROM custody_receipts WHERE name = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	r, err := scanHeader(q.QueryRow(ctx, sql, name))
	if err != nil {
		return Receipt{}, err
	}
	r.Items, err = loadItems(ctx, q, name)
	if err != nil {
		return Receipt{}, err
	}
	return r, nil
}

// Get returns a receipt with its rows.
func (r *Repository) Get(ctx context.Context, name string) (Receipt, error) {
	return getReceipt(ctx, r.pool, name, false)
}

// List returns receipt headers, newest first.
func (r *Repository) List(ctx context.Context, limit, offset int, filters ListFilters) ([]Receipt, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		where += fmt.Sprintf(cond, len(args))
	}
	if filters.Employee != "" {
		add(` AND employee = $%d`, filters.Employee)
	}
	if filters.Company != "" {
		add(` AND company = $%d`, filters.Company)
	}
	if filters.PurchaseReceipt != "" {
		add(` AND purchase_receipt = $%d`, filters.PurchaseReceipt)
	}
	if filters.DocStatus != nil {
		add(` AND docstatus = $%d`, int(*filters.DocStatus))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += fmt.Sprintf(` AND (name ILIKE $%[1]d OR employee_name ILIKE $%[1]d OR remarks ILIKE $%[1]d)`, len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM custody_receipts`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx, `SELECT `+headerColumns+` FROM custody_receipts`+where+
		fmt.Sprintf(` ORDER BY created_at DESC, name DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Receipt
	for rows.Next() {
		rec, err := scanHeader(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

// SubmittedQtyByLine sums submitted custody quantities per purchase receipt
// line of purchaseReceipt.
func (r *Repository) SubmittedQtyByLine(ctx context.Context, purchaseReceipt string) (map[string]decimal.Decimal, error) {
	return submittedQtyByLine(ctx, r.pool, purchaseReceipt)
}

func submittedQtyByLine(ctx context.Context, q db.Querier, purchaseReceipt string) (map[string]decimal.Decimal, error) {
	rows, err := q.Query(ctx, `SELECT COALESCE(ci.purchase_receipt_item, ''), ci.qty
		FROM custody_receipt_items ci
		JOIN custody_receipts cr ON cr.name = ci.parent
		WHERE ci.purchase_receipt = $1 AND cr.docstatus = 1`, purchaseReceipt)
	if err != nil {
		return nil, fmt.Errorf("custody: query receipted qty: %w", err)
	}
	defer rows.Close()
	var list []ReceiptedQty
	for rows.Next() {
		var rq ReceiptedQty
		if err := rows.Scan(&rq.PurchaseReceiptItem, &rq.Qty); err != nil {
			return nil, err
		}
		list = append(list, rq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return SumByLine(list), nil
}

// Overissue describes a purchase receipt line receipted past its accepted qty.
type Overissue struct {
	PurchaseReceipt     string          `json:"purchase_receipt"`
	PurchaseReceiptItem string          `json:"purchase_receipt_item"`
	ItemCode            string          `json:"item_code"`
	Accepted            decimal.Decimal `json:"accepted"`
	Receipted           decimal.Decimal `json:"receipted"`
}

// Overissues scans every submitted custody row grouped by source line.
func (r *Repository) Overissues(ctx context.Context) ([]Overissue, error) {
	rows, err := r.pool.Query(ctx, `SELECT pri.parent, pri.name, pri.item_code,
			CASE WHEN pri.accepted_qty = 0 THEN pri.qty ELSE pri.accepted_qty END AS accepted,
			SUM(ci.qty) AS receipted
		FROM custody_receipt_items ci
		JOIN custody_receipts cr ON cr.name = ci.parent AND cr.docstatus = 1
		JOIN purchase_receipt_items pri ON pri.name = ci.purchase_receipt_item
		GROUP BY pri.parent, pri.name, pri.item_code, pri.accepted_qty, pri.qty
		HAVING SUM(ci.qty) > CASE WHEN pri.accepted_qty = 0 THEN pri.qty ELSE pri.accepted_qty END
		ORDER BY pri.parent, pri.name`)
	if err != nil {
		return nil, fmt.Errorf("custody: query overissues: %w", err)
	}
	defer rows.Close()
	var out []Overissue
	for rows.Next() {
		var o Overissue
		if err := rows.Scan(&o.PurchaseReceipt, &o.PurchaseReceiptItem, &o.ItemCode, &o.Accepted, &o.Receipted); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (t *txRepo) NextName(ctx context.Context, postingDate time.Time) (string, error) {
	var seq int64
	if err := t.tx.QueryRow(ctx, `SELECT nextval('custody_receipt_seq')`).Scan(&seq); err != nil {
		return "", fmt.Errorf("custody: next name: %w", err)
	}
	return fmt.Sprintf("CR-%d-%05d", postingDate.Year(), seq), nil
}

func (t *txRepo) Insert(ctx context.Context, r Receipt) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO custody_receipts
		(name, employee, employee_name, company, posting_date, supplier, supplier_name, purchase_date,
		 purchase_receipt, source, docstatus, remarks, created_by, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12, $13, NOW(), NOW())`,
		r.Name, r.Employee, r.EmployeeName, r.Company, r.PostingDate, r.Supplier, r.SupplierName, r.PurchaseDate,
		r.PurchaseReceipt, string(r.Source), int(r.DocStatus), r.Remarks, r.CreatedBy)
	if err != nil {
		return fmt.Errorf("custody: insert receipt: %w", err)
	}
	return t.ReplaceItems(ctx, r.Name, r.Items)
}

func (t *txRepo) UpdateHeader(ctx context.Context, r Receipt) error {
	tag, err := t.tx.Exec(ctx, `UPDATE custody_receipts SET
		employee = NULLIF($2, ''), employee_name = $3, company = $4, posting_date = $5, supplier = $6,
		supplier_name = $7, purchase_date = $8, purchase_receipt = NULLIF($9, ''), remarks = $10, updated_at = NOW()
		WHERE name = $1`,
		r.Name, r.Employee, r.EmployeeName, r.Company, r.PostingDate, r.Supplier, r.SupplierName, r.PurchaseDate,
		r.PurchaseReceipt, r.Remarks)
	if err != nil {
		return fmt.Errorf("custody: update receipt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) ReplaceItems(ctx context.Context, parent string, items []Item) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM custody_receipt_items WHERE parent = $1`, parent); err != nil {
		return fmt.Errorf("custody: clear items: %w", err)
	}
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO custody_receipt_items
			(name, parent, idx, item_code, item_name, description, qty, uom, warehouse, asset,
			 purchase_receipt, purchase_receipt_item, rate, amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''), $13, $14)`,
			it.Name, parent, it.Idx, it.ItemCode, it.ItemName, it.Description, it.Qty, it.UOM, it.Warehouse, it.Asset,
			it.PurchaseReceipt, it.PurchaseReceiptItem, it.Rate, it.Amount)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("custody: insert items: %w", err)
	}
	return nil
}

func (t *txRepo) UpdateStatus(ctx context.Context, name string, status DocStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE custody_receipts SET docstatus = $2, updated_at = NOW() WHERE name = $1`, name, int(status))
	if err != nil {
		return fmt.Errorf("custody: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) Delete(ctx context.Context, name string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM custody_receipt_items WHERE parent = $1`, name); err != nil {
		return fmt.Errorf("custody: delete items: %w", err)
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM custody_receipts WHERE name = $1 AND docstatus = 0`, name)
	if err != nil {
		return fmt.Errorf("custody: delete receipt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) Lock(ctx context.Context, name string) (Receipt, error) {
	return getReceipt(ctx, t.tx, name, true)
}

func (t *txRepo) LockPurchaseReceipt(ctx context.Context, name string) (procurement.PurchaseReceipt, error) {
	return procurement.LockLines(ctx, t.tx, name)
}

func (t *txRepo) SubmittedQtyByLine(ctx context.Context, purchaseReceipt string) (map[string]decimal.Decimal, error) {
	return submittedQtyByLine(ctx, t.tx, purchaseReceipt)
}

func (t *txRepo) SetCustodian(ctx context.Context, asset, employee string) error {
	return assets.SetCustodian(ctx, t.tx, asset, employee)
}
