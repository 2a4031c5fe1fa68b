package supply

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

// Repository persists supply requests in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const requestColumns = `id, requesting_pharmacy_id, target_pharmacy_id, items, available_items, status, notes, response_reason,
delivery_method, fulfillment_notes, created_by, responded_by, fulfilled_by, created_at, responded_at, fulfilled_at, cancelled_at, updated_at`

// Insert stores a new request.
func (r *Repository) Insert(ctx context.Context, req SupplyRequest) error {
	items, err := json.Marshal(req.Items)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO pharmacy_supply_requests (id, requesting_pharmacy_id, target_pharmacy_id, items, status, notes, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		req.ID, req.RequestingPharmacyID, req.TargetPharmacyID, items, string(req.Status), req.Notes, req.CreatedBy, req.CreatedAt, req.UpdatedAt)
	return err
}

// Get loads a request regardless of party; callers authorize.
func (r *Repository) Get(ctx context.Context, requestID string) (SupplyRequest, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM pharmacy_supply_requests WHERE id=$1`, requestID)
	return scanRequest(row)
}

// List lists requests where the pharmacy plays the filter role.
func (r *Repository) List(ctx context.Context, pharmacyID string, filter ListFilter) ([]SupplyRequest, error) {
	column := "requesting_pharmacy_id"
	if filter.Role == RoleTarget {
		column = "target_pharmacy_id"
	}
	query := `SELECT ` + requestColumns + ` FROM pharmacy_supply_requests WHERE ` + column + `=$1`
	args := []any{pharmacyID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status=$%d", len(args))
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []SupplyRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// CompareAndSet writes the mutable columns only while the stored status equals expected.
func (r *Repository) CompareAndSet(ctx context.Context, req SupplyRequest, expected Status) (bool, error) {
	var available []byte
	if req.AvailableItems != nil {
		var err error
		if available, err = json.Marshal(req.AvailableItems); err != nil {
			return false, err
		}
	}
	tag, err := r.pool.Exec(ctx, `UPDATE pharmacy_supply_requests
SET status=$3, available_items=$4, response_reason=$5, delivery_method=$6, fulfillment_notes=$7, responded_by=$8, fulfilled_by=$9,
    responded_at=$10, fulfilled_at=$11, cancelled_at=$12, updated_at=$13
WHERE id=$1 AND status=$2`,
		req.ID, string(expected), string(req.Status), available, req.ResponseReason, req.DeliveryMethod, req.FulfillmentNotes, req.RespondedBy, req.FulfilledBy,
		req.RespondedAt, req.FulfilledAt, req.CancelledAt, req.UpdatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanRequest(row pgx.Row) (SupplyRequest, error) {
	var (
		req              SupplyRequest
		items, available []byte
		status           string
	)
	err := row.Scan(&req.ID, &req.RequestingPharmacyID, &req.TargetPharmacyID, &items, &available, &status, &req.Notes, &req.ResponseReason,
		&req.DeliveryMethod, &req.FulfillmentNotes, &req.CreatedBy, &req.RespondedBy, &req.FulfilledBy, &req.CreatedAt, &req.RespondedAt, &req.FulfilledAt, &req.CancelledAt, &req.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SupplyRequest{}, fmt.Errorf("supply: request: %w", shared.ErrNotFound)
		}
		return SupplyRequest{}, err
	}
	req.Status = Status(status)
	if err := json.Unmarshal(items, &req.Items); err != nil {
		return SupplyRequest{}, fmt.Errorf("supply: decode items: %w", err)
	}
	if len(available) > 0 {
		if err := json.Unmarshal(available, &req.AvailableItems); err != nil {
			return SupplyRequest{}, fmt.Errorf("supply: decode available items: %w", err)
		}
	}
	return req, nil
}
