package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads audit_logs written by shared.AuditLogger.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed timeline reader.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Window returns at most limit rows starting at offset, newest first.
func (r *PGRepository) Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	where, args := timelineWhere(filters)
	args = append(args, limit, offset)
	query := timelineSelect + where + ` ORDER BY a.occurred_at DESC, a.id DESC LIMIT $` +
		strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	return r.query(ctx, query, args...)
}

// All returns every matching row, newest first.
func (r *PGRepository) All(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	where, args := timelineWhere(filters)
	return r.query(ctx, timelineSelect+where+` ORDER BY a.occurred_at DESC, a.id DESC`, args...)
}

const timelineSelect = `SELECT a.occurred_at, COALESCE(a.actor_id, 0), COALESCE(u.email, ''),
		a.action, a.entity, a.entity_id, a.meta
	FROM audit_logs a
	LEFT JOIN users u ON u.id = a.actor_id`

func timelineWhere(f TimelineFilters) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if !f.From.IsZero() {
		add("a.occurred_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		add("a.occurred_at < ?", f.To)
	}
	if f.Actor != "" {
		add("u.email ILIKE ?", f.Actor)
	}
	if f.Entity != "" {
		add("a.entity = ?", f.Entity)
	}
	if f.EntityID != "" {
		add("a.entity_id = ?", f.EntityID)
	}
	if f.Action != "" {
		add("a.action = ?", f.Action)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *PGRepository) query(ctx context.Context, sql string, args ...any) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var (
			out  TimelineRow
			meta []byte
		)
		if err := row.Scan(&out.At, &out.ActorID, &out.Actor, &out.Action, &out.Entity, &out.EntityID, &meta); err != nil {
			return out, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &out.Meta); err != nil {
				return out, err
			}
		}
		return out, nil
	})
}

var _ Repository = (*PGRepository)(nil)
