package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

// Repository persists catalog data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertDrug(ctx context.Context, drug Drug) error
	GetDrugForUpdate(ctx context.Context, pharmacyID, drugID string) (Drug, error)
	UpdateDrug(ctx context.Context, drug Drug) error
}

type txRepository struct {
	tx pgx.Tx
}

// DrugColumns is the pharmacy_drugs projection read by ScanDrug.
const DrugColumns = `id, pharmacy_id, generic_name, brand_name, category, unit_price, pack_size, reorder_level, current_stock, is_active, created_at, updated_at`

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("catalog repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GetDrug loads one drug of a pharmacy.
func (r *Repository) GetDrug(ctx context.Context, pharmacyID, drugID string) (Drug, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+DrugColumns+` FROM pharmacy_drugs WHERE pharmacy_id=$1 AND id=$2`, pharmacyID, drugID)
	return ScanDrug(row)
}

// ListDrugs lists drugs ordered by generic then brand name.
func (r *Repository) ListDrugs(ctx context.Context, pharmacyID string, filter DrugFilter) ([]Drug, error) {
	var (
		where = []string{"pharmacy_id=$1"}
		args  = []any{pharmacyID}
	)
	if filter.ActiveOnly {
		where = append(where, "is_active")
	}
	if filter.Category != "" {
		args = append(args, string(filter.Category))
		where = append(where, fmt.Sprintf("category=$%d", len(args)))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		where = append(where, fmt.Sprintf("(generic_name ILIKE $%d OR brand_name ILIKE $%d)", len(args), len(args)))
	}
	query := `SELECT ` + DrugColumns + ` FROM pharmacy_drugs WHERE ` + strings.Join(where, " AND ") + ` ORDER BY generic_name ASC, brand_name ASC, id ASC`
	if filter.Page.Limit > 0 {
		args = append(args, filter.Page.Limit, filter.Page.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	drugs := []Drug{}
	for rows.Next() {
		drug, err := ScanDrug(rows)
		if err != nil {
			return nil, err
		}
		drugs = append(drugs, drug)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return drugs, nil
}

// ListPharmacies lists the distinct pharmacies that own drugs.
func (r *Repository) ListPharmacies(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT pharmacy_id FROM pharmacy_drugs ORDER BY pharmacy_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertDrug inserts a drug, reporting shared.ErrDuplicate when the name pair already exists.
func (r *txRepository) InsertDrug(ctx context.Context, d Drug) error {
	tag, err := r.tx.Exec(ctx, `INSERT INTO pharmacy_drugs (`+DrugColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,$9,$10,$11)
ON CONFLICT (pharmacy_id, lower(generic_name), lower(brand_name)) DO NOTHING`,
		d.ID, d.PharmacyID, d.GenericName, d.BrandName, string(d.Category), d.UnitPrice, d.PackSize, d.ReorderLevel, d.IsActive, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("catalog: %s %s: %w", d.GenericName, d.BrandName, shared.ErrDuplicate)
	}
	return nil
}

func (r *txRepository) GetDrugForUpdate(ctx context.Context, pharmacyID, drugID string) (Drug, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+DrugColumns+` FROM pharmacy_drugs WHERE pharmacy_id=$1 AND id=$2 FOR UPDATE`, pharmacyID, drugID)
	return ScanDrug(row)
}

// UpdateDrug rewrites the descriptive columns; current_stock is owned by the inventory ledger.
func (r *txRepository) UpdateDrug(ctx context.Context, d Drug) error {
	_, err := r.tx.Exec(ctx, `UPDATE pharmacy_drugs SET generic_name=$3, brand_name=$4, category=$5, unit_price=$6, pack_size=$7, reorder_level=$8, is_active=$9, updated_at=$10
WHERE pharmacy_id=$1 AND id=$2`, d.PharmacyID, d.ID, d.GenericName, d.BrandName, string(d.Category), d.UnitPrice, d.PackSize, d.ReorderLevel, d.IsActive, d.UpdatedAt)
	if shared.IsUniqueViolation(err) {
		return fmt.Errorf("catalog: %s %s: %w", d.GenericName, d.BrandName, shared.ErrDuplicate)
	}
	return err
}

// ScanDrug scans one DrugColumns row; no rows maps to shared.ErrDrugNotFound.
func ScanDrug(row pgx.Row) (Drug, error) {
	var d Drug
	var category string
	err := row.Scan(&d.ID, &d.PharmacyID, &d.GenericName, &d.BrandName, &category, &d.UnitPrice, &d.PackSize, &d.ReorderLevel, &d.CurrentStock, &d.IsActive, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Drug{}, shared.ErrDrugNotFound
		}
		return Drug{}, err
	}
	d.Category = Category(category)
	return d, nil
}
