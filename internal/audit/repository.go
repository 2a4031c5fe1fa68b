package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads audit_logs from Postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a Postgres-backed repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Events lists matching rows newest first. A zero Limit returns every row.
func (r *PGRepository) Events(ctx context.Context, q Query) ([]Event, error) {
	where := []string{"pharmacy_id = $1", "occurred_at >= $2", "occurred_at < $3"}
	args := []any{q.PharmacyID, q.From, q.Until}
	for _, f := range []struct{ column, value string }{
		{"actor_id", q.Actor},
		{"entity", q.Entity},
		{"action", q.Action},
	} {
		if f.value == "" {
			continue
		}
		args = append(args, f.value)
		where = append(where, fmt.Sprintf("%s = $%d", f.column, len(args)))
	}
	query := `SELECT id, occurred_at, COALESCE(actor_id, ''), action, entity, entity_id, meta FROM audit_logs WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY occurred_at DESC, id DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit, q.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		var meta []byte
		if err := rows.Scan(&e.ID, &e.At, &e.ActorID, &e.Action, &e.Entity, &e.EntityID, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 && string(meta) != "null" {
			e.Meta = meta
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
