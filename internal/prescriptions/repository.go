package prescriptions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/inventory"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

// Repository persists prescriptions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const rxColumns = `id, pharmacy_id, rx_number, patient_ref, prescriber_ref, hospital_ref, medications, priority, status, notes,
cancel_reason, last_actor_id, dispense_result, received_at, accepted_at, ready_at, dispensed_at, cancelled_at, updated_at`

// Insert stores a new prescription. An existing (pharmacy, rx number) pair is
// returned unchanged with created=false.
func (r *Repository) Insert(ctx context.Context, rx Prescription) (Prescription, bool, error) {
	meds, err := json.Marshal(rx.Medications)
	if err != nil {
		return Prescription{}, false, err
	}
	tag, err := r.pool.Exec(ctx, `INSERT INTO pharmacy_prescriptions (id, pharmacy_id, rx_number, patient_ref, prescriber_ref, hospital_ref, medications, priority, status, notes, last_actor_id, received_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (pharmacy_id, rx_number) DO NOTHING`,
		rx.ID, rx.PharmacyID, rx.RxNumber, rx.PatientRef, rx.PrescriberRef, rx.HospitalRef, meds, string(rx.Priority), string(rx.Status), rx.Notes, rx.LastActorID, rx.ReceivedAt, rx.UpdatedAt)
	if err != nil {
		return Prescription{}, false, err
	}
	if tag.RowsAffected() == 1 {
		return rx, true, nil
	}
	row := r.pool.QueryRow(ctx, `SELECT `+rxColumns+` FROM pharmacy_prescriptions WHERE pharmacy_id=$1 AND rx_number=$2`, rx.PharmacyID, rx.RxNumber)
	existing, err := scanPrescription(row)
	return existing, false, err
}

// Get loads one prescription.
func (r *Repository) Get(ctx context.Context, pharmacyID, rxID string) (Prescription, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+rxColumns+` FROM pharmacy_prescriptions WHERE pharmacy_id=$1 AND id=$2`, pharmacyID, rxID)
	return scanPrescription(row)
}

// List lists prescriptions, newest first.
func (r *Repository) List(ctx context.Context, pharmacyID string, filter ListFilter) ([]Prescription, error) {
	where := []string{"pharmacy_id=$1"}
	args := []any{pharmacyID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT `+rxColumns+` FROM pharmacy_prescriptions WHERE %s ORDER BY received_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		strings.Join(where, " AND "), len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Prescription{}
	for rows.Next() {
		rx, err := scanPrescription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rx)
	}
	return out, rows.Err()
}

// CompareAndSet writes the workflow columns only while the stored status equals expected.
func (r *Repository) CompareAndSet(ctx context.Context, rx Prescription, expected Status) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE pharmacy_prescriptions
SET status=$3, cancel_reason=$4, last_actor_id=$5, accepted_at=$6, ready_at=$7, dispensed_at=$8, cancelled_at=$9, updated_at=$10
WHERE id=$1 AND status=$2`,
		rx.ID, string(expected), string(rx.Status), rx.CancelReason, rx.LastActorID, rx.AcceptedAt, rx.ReadyAt, rx.DispensedAt, rx.CancelledAt, rx.UpdatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SaveDispense stores what a dispense deducted.
func (r *Repository) SaveDispense(ctx context.Context, rxID string, result inventory.DispenseResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `UPDATE pharmacy_prescriptions SET dispense_result=$2 WHERE id=$1`, rxID, payload)
	return err
}

func scanPrescription(row pgx.Row) (Prescription, error) {
	var (
		rx               Prescription
		meds, dispense   []byte
		priority, status string
	)
	err := row.Scan(&rx.ID, &rx.PharmacyID, &rx.RxNumber, &rx.PatientRef, &rx.PrescriberRef, &rx.HospitalRef, &meds, &priority, &status, &rx.Notes,
		&rx.CancelReason, &rx.LastActorID, &dispense, &rx.ReceivedAt, &rx.AcceptedAt, &rx.ReadyAt, &rx.DispensedAt, &rx.CancelledAt, &rx.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Prescription{}, fmt.Errorf("prescriptions: %w", shared.ErrNotFound)
		}
		return Prescription{}, err
	}
	rx.Priority = Priority(priority)
	rx.Status = Status(status)
	if err := json.Unmarshal(meds, &rx.Medications); err != nil {
		return Prescription{}, fmt.Errorf("prescriptions: decode medications: %w", err)
	}
	if len(dispense) > 0 {
		var result inventory.DispenseResult
		if err := json.Unmarshal(dispense, &result); err != nil {
			return Prescription{}, fmt.Errorf("prescriptions: decode dispense result: %w", err)
		}
		rx.Dispense = &result
	}
	return rx, nil
}
