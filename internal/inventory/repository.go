package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/catalog"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	LockDrugs(ctx context.Context, pharmacyID string, drugIDs []string) (map[string]catalog.Drug, error)
	ListActiveDrugs(ctx context.Context, pharmacyID string) ([]catalog.Drug, error)
	ListAllDrugs(ctx context.Context, pharmacyID string) ([]catalog.Drug, error)
	SnapshotBatches(ctx context.Context, pharmacyID, drugID string) ([]Batch, error)
	InsertBatch(ctx context.Context, batch Batch) error
	DeductBatch(ctx context.Context, batchID string, expected, qty int64) (bool, error)
	AdjustDrugStock(ctx context.Context, pharmacyID, drugID string, delta int64) error
	SetDrugStock(ctx context.Context, pharmacyID, drugID string, stock int64) error
	BatchTotals(ctx context.Context, pharmacyID string) (map[string]int64, error)
	InsertSale(ctx context.Context, sale SaleTransaction) error
	GetSaleForUpdate(ctx context.Context, pharmacyID, saleID string) (SaleTransaction, error)
	UpdatePaymentStatus(ctx context.Context, saleID string, status PaymentStatus, at time.Time) error
}

type txRepository struct {
	tx pgx.Tx
}

const batchColumns = `id, pharmacy_id, drug_id, batch_number, quantity_received, quantity_remaining, cost_price, selling_price, expiry_date, supplier, received_at`

const saleColumns = `id, pharmacy_id, sale_type, items, total_amount, payment_method, payment_status, customer_ref, actor_id, created_at, updated_at`

// WithTx executes the callback inside repeatable-read transaction. Serialization
// failures and deadlocks surface as ErrWriteConflict so the caller can retry.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if db.IsRetryable(err) {
		return fmt.Errorf("inventory: %v: %w", err, ErrWriteConflict)
	}
	return err
}

// ListBatches lists a drug's batches.
func (r *Repository) ListBatches(ctx context.Context, pharmacyID, drugID string, includeDepleted bool) ([]Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM pharmacy_inventory WHERE pharmacy_id=$1 AND drug_id=$2`
	if !includeDepleted {
		query += ` AND quantity_remaining > 0`
	}
	query += ` ORDER BY expiry_date ASC, received_at ASC, id ASC`
	return queryBatches(ctx, r.pool, query, pharmacyID, drugID)
}

// GetSale loads one sale.
func (r *Repository) GetSale(ctx context.Context, pharmacyID, saleID string) (SaleTransaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM pharmacy_sales WHERE pharmacy_id=$1 AND id=$2`, pharmacyID, saleID)
	return scanSale(row)
}

// ListSales lists sales newest first.
func (r *Repository) ListSales(ctx context.Context, pharmacyID string, page shared.Page) ([]SaleTransaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+saleColumns+` FROM pharmacy_sales WHERE pharmacy_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		pharmacyID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sales := []SaleTransaction{}
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

// LockDrugs takes row locks on the drugs in ascending id order. Missing ids are
// absent from the result.
func (r *txRepository) LockDrugs(ctx context.Context, pharmacyID string, drugIDs []string) (map[string]catalog.Drug, error) {
	locked := make(map[string]catalog.Drug, len(drugIDs))
	if len(drugIDs) == 0 {
		return locked, nil
	}
	rows, err := r.tx.Query(ctx, `SELECT `+catalog.DrugColumns+` FROM pharmacy_drugs WHERE pharmacy_id=$1 AND id = ANY($2) ORDER BY id ASC FOR UPDATE`, pharmacyID, drugIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		d, err := catalog.ScanDrug(rows)
		if err != nil {
			return nil, err
		}
		locked[d.ID] = d
	}
	return locked, rows.Err()
}

func (r *txRepository) ListActiveDrugs(ctx context.Context, pharmacyID string) ([]catalog.Drug, error) {
	return r.listDrugs(ctx, `SELECT `+catalog.DrugColumns+` FROM pharmacy_drugs WHERE pharmacy_id=$1 AND is_active ORDER BY id ASC`, pharmacyID)
}

func (r *txRepository) ListAllDrugs(ctx context.Context, pharmacyID string) ([]catalog.Drug, error) {
	return r.listDrugs(ctx, `SELECT `+catalog.DrugColumns+` FROM pharmacy_drugs WHERE pharmacy_id=$1 ORDER BY id ASC FOR UPDATE`, pharmacyID)
}

func (r *txRepository) listDrugs(ctx context.Context, query, pharmacyID string) ([]catalog.Drug, error) {
	rows, err := r.tx.Query(ctx, query, pharmacyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var drugs []catalog.Drug
	for rows.Next() {
		d, err := catalog.ScanDrug(rows)
		if err != nil {
			return nil, err
		}
		drugs = append(drugs, d)
	}
	return drugs, rows.Err()
}

func (r *txRepository) SnapshotBatches(ctx context.Context, pharmacyID, drugID string) ([]Batch, error) {
	return queryBatches(ctx, r.tx, `SELECT `+batchColumns+` FROM pharmacy_inventory
WHERE pharmacy_id=$1 AND drug_id=$2 AND quantity_remaining > 0
ORDER BY expiry_date ASC, received_at ASC, id ASC`, pharmacyID, drugID)
}

func (r *txRepository) InsertBatch(ctx context.Context, b Batch) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO pharmacy_inventory (`+batchColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		b.ID, b.PharmacyID, b.DrugID, b.BatchNumber, b.QuantityReceived, b.QuantityRemaining, b.CostPrice, b.SellingPrice, b.ExpiryDate, b.Supplier, b.ReceivedAt)
	return err
}

// DeductBatch subtracts qty only if the batch still holds expected units.
func (r *txRepository) DeductBatch(ctx context.Context, batchID string, expected, qty int64) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE pharmacy_inventory SET quantity_remaining = quantity_remaining - $3
WHERE id=$1 AND quantity_remaining=$2 AND quantity_remaining >= $3`, batchID, expected, qty)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepository) AdjustDrugStock(ctx context.Context, pharmacyID, drugID string, delta int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE pharmacy_drugs SET current_stock = current_stock + $3, updated_at = NOW() WHERE pharmacy_id=$1 AND id=$2`, pharmacyID, drugID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrDrugNotFound
	}
	return nil
}

func (r *txRepository) SetDrugStock(ctx context.Context, pharmacyID, drugID string, stock int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE pharmacy_drugs SET current_stock=$3, updated_at = NOW() WHERE pharmacy_id=$1 AND id=$2`, pharmacyID, drugID, stock)
	return err
}

func (r *txRepository) BatchTotals(ctx context.Context, pharmacyID string) (map[string]int64, error) {
	rows, err := r.tx.Query(ctx, `SELECT drug_id, COALESCE(SUM(quantity_remaining), 0) FROM pharmacy_inventory WHERE pharmacy_id=$1 GROUP BY drug_id`, pharmacyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	totals := make(map[string]int64)
	for rows.Next() {
		var drugID string
		var total int64
		if err := rows.Scan(&drugID, &total); err != nil {
			return nil, err
		}
		totals[drugID] = total
	}
	return totals, rows.Err()
}

func (r *txRepository) InsertSale(ctx context.Context, s SaleTransaction) error {
	items, err := json.Marshal(s.Lines)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `INSERT INTO pharmacy_sales (`+saleColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		s.ID, s.PharmacyID, string(s.SaleType), items, s.TotalAmount, string(s.PaymentMethod), string(s.PaymentStatus), s.CustomerRef, s.ActorID, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *txRepository) GetSaleForUpdate(ctx context.Context, pharmacyID, saleID string) (SaleTransaction, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+saleColumns+` FROM pharmacy_sales WHERE pharmacy_id=$1 AND id=$2 FOR UPDATE`, pharmacyID, saleID)
	return scanSale(row)
}

func (r *txRepository) UpdatePaymentStatus(ctx context.Context, saleID string, status PaymentStatus, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE pharmacy_sales SET payment_status=$2, updated_at=$3 WHERE id=$1`, saleID, string(status), at)
	return err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryBatches(ctx context.Context, q querier, query string, args ...any) ([]Batch, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	batches := []Batch{}
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.PharmacyID, &b.DrugID, &b.BatchNumber, &b.QuantityReceived, &b.QuantityRemaining,
			&b.CostPrice, &b.SellingPrice, &b.ExpiryDate, &b.Supplier, &b.ReceivedAt); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func scanSale(row pgx.Row) (SaleTransaction, error) {
	var (
		s                               SaleTransaction
		items                           []byte
		saleType, method, paymentStatus string
	)
	err := row.Scan(&s.ID, &s.PharmacyID, &saleType, &items, &s.TotalAmount, &method, &paymentStatus, &s.CustomerRef, &s.ActorID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SaleTransaction{}, fmt.Errorf("inventory: sale: %w", shared.ErrNotFound)
		}
		return SaleTransaction{}, err
	}
	s.SaleType = SaleType(saleType)
	s.PaymentMethod = PaymentMethod(method)
	s.PaymentStatus = PaymentStatus(paymentStatus)
	if len(items) > 0 {
		if err := json.Unmarshal(items, &s.Lines); err != nil {
			return SaleTransaction{}, fmt.Errorf("inventory: decode sale items: %w", err)
		}
	}
	return s, nil
}
