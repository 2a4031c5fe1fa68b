package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/catalog"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, pharmacyID, saleID string) (SaleTransaction, error)
	ListSales(ctx context.Context, pharmacyID string, page shared.Page) ([]SaleTransaction, error)
	ListBatches(ctx context.Context, pharmacyID, drugID string, includeDepleted bool) ([]Batch, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the transaction processor over the batch ledger. Every stock mutation
// runs in one transaction that locks the touched drug rows, plans against a fresh
// batch snapshot and applies conditional batch updates.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	integration IntegrationHandler
	metrics     MetricsPort
	logger      *slog.Logger
	maxAttempts int
	unmatched   UnmatchedPolicy
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	MaxAttempts     int
	UnmatchedPolicy UnmatchedPolicy
	Metrics         MetricsPort
	Logger          *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, cfg ServiceConfig, integration IntegrationHandler) *Service {
	svc := &Service{
		repo:        repo,
		audit:       audit,
		idempotency: idem,
		integration: integration,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		maxAttempts: cfg.MaxAttempts,
		unmatched:   cfg.UnmatchedPolicy,
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.maxAttempts <= 0 {
		svc.maxAttempts = DefaultMaxAttempts
	}
	if !svc.unmatched.IsValid() {
		svc.unmatched = UnmatchedSkip
	}
	return svc
}

// Receive appends a new batch and raises the drug's cached stock in the same transaction.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (Batch, error) {
	if input.PharmacyID == "" || input.DrugID == "" {
		return Batch{}, shared.Validationf("inventory: pharmacy and drug required")
	}
	if input.Quantity <= 0 {
		return Batch{}, shared.Validationf("inventory: quantity must be positive")
	}
	if strings.TrimSpace(input.BatchNumber) == "" {
		return Batch{}, shared.Validationf("inventory: batch number required")
	}
	if input.ExpiryDate.IsZero() {
		return Batch{}, shared.Validationf("inventory: expiry date required")
	}
	if input.CostPrice.IsNegative() || input.SellingPrice.IsNegative() {
		return Batch{}, shared.Validationf("inventory: prices must be >= 0")
	}
	now := time.Now().UTC()
	batch := Batch{
		ID:                uuid.NewString(),
		PharmacyID:        input.PharmacyID,
		DrugID:            input.DrugID,
		BatchNumber:       strings.TrimSpace(input.BatchNumber),
		QuantityReceived:  input.Quantity,
		QuantityRemaining: input.Quantity,
		CostPrice:         input.CostPrice,
		SellingPrice:      input.SellingPrice,
		ExpiryDate:        input.ExpiryDate.UTC(),
		Supplier:          strings.TrimSpace(input.Supplier),
		ReceivedAt:        now,
	}
	err := s.retry(ctx, "receive", func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			drugs, err := tx.LockDrugs(ctx, input.PharmacyID, []string{input.DrugID})
			if err != nil {
				return err
			}
			if d, ok := drugs[input.DrugID]; !ok || !d.IsActive {
				return fmt.Errorf("inventory: drug %s: %w", input.DrugID, shared.ErrDrugNotFound)
			}
			if err := tx.InsertBatch(ctx, batch); err != nil {
				return err
			}
			return tx.AdjustDrugStock(ctx, input.PharmacyID, input.DrugID, input.Quantity)
		})
	})
	if err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, "STOCK_RECEIVE", "pharmacy_inventory", batch.ID, map[string]any{
		"drug_id":      batch.DrugID,
		"batch_number": batch.BatchNumber,
		"quantity":     batch.QuantityReceived,
	})
	s.afterMovement(ctx, input.PharmacyID, []string{input.DrugID}, ReasonReceive, input.Quantity)
	return batch, nil
}

// Snapshot returns the drug's batches with stock left, in allocation order.
func (s *Service) Snapshot(ctx context.Context, pharmacyID, drugID string) ([]Batch, error) {
	batches, err := s.repo.ListBatches(ctx, pharmacyID, drugID, false)
	if err != nil {
		return nil, err
	}
	SortBatches(batches)
	return batches, nil
}

// Plan previews the batches a request would consume without changing anything.
func (s *Service) Plan(ctx context.Context, pharmacyID, drugID string, qty int64) (AllocationPlan, error) {
	batches, err := s.Snapshot(ctx, pharmacyID, drugID)
	if err != nil {
		return AllocationPlan{}, err
	}
	return Plan(drugID, batches, qty)
}

// ListBatches lists a drug's batches, optionally including depleted ones.
func (s *Service) ListBatches(ctx context.Context, pharmacyID, drugID string, includeDepleted bool) ([]Batch, error) {
	batches, err := s.repo.ListBatches(ctx, pharmacyID, drugID, includeDepleted)
	if err != nil {
		return nil, err
	}
	SortBatches(batches)
	return batches, nil
}

// Sell records a multi-line sale. Either every line is allocated and the sale is
// written, or nothing changes.
func (s *Service) Sell(ctx context.Context, input SellInput) (SaleTransaction, error) {
	if err := validateSell(input); err != nil {
		return SaleTransaction{}, err
	}
	key := ""
	if input.IdempotencyKey != "" && s.idempotency != nil {
		key = fmt.Sprintf("sale:%s:%s", input.PharmacyID, input.IdempotencyKey)
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			return SaleTransaction{}, err
		}
	}

	demands := make([]demand, len(input.Lines))
	for i, line := range input.Lines {
		demands[i] = demand{drugID: line.DrugID, qty: line.Quantity}
	}
	var sale SaleTransaction
	err := s.allocate(ctx, "sell", input.PharmacyID,
		func(context.Context, TxRepository) ([]demand, error) { return demands, nil },
		func(ctx context.Context, tx TxRepository, drugs map[string]catalog.Drug, plans []AllocationPlan) error {
			now := time.Now().UTC()
			status := PaymentPending
			if input.Paid {
				status = PaymentPaid
			}
			sale = SaleTransaction{
				ID:            uuid.NewString(),
				PharmacyID:    input.PharmacyID,
				SaleType:      input.SaleType,
				PaymentMethod: input.PaymentMethod,
				PaymentStatus: status,
				CustomerRef:   strings.TrimSpace(input.CustomerRef),
				ActorID:       actorFrom(ctx),
				TotalAmount:   decimal.Zero,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			for i, line := range input.Lines {
				item := SaleLineItem{
					DrugID:           line.DrugID,
					Quantity:         line.Quantity,
					UnitPrice:        line.UnitPrice,
					Discount:         line.Discount,
					BatchAllocations: plans[i].Allocations,
				}
				if item.UnitPrice.IsZero() {
					item.UnitPrice = drugs[line.DrugID].UnitPrice
				}
				if item.Discount.GreaterThan(item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity))) {
					return shared.Validationf("inventory: line %d discount exceeds line value", i+1)
				}
				sale.Lines = append(sale.Lines, item)
				sale.TotalAmount = sale.TotalAmount.Add(item.Amount())
			}
			return tx.InsertSale(ctx, sale)
		})
	if err != nil {
		if key != "" {
			_ = s.idempotency.Delete(ctx, key)
		}
		return SaleTransaction{}, err
	}

	var units int64
	drugIDs := make([]string, 0, len(sale.Lines))
	for _, line := range sale.Lines {
		units += line.Quantity
		drugIDs = append(drugIDs, line.DrugID)
	}
	s.recordAudit(ctx, "SALE_CREATE", "pharmacy_sale", sale.ID, map[string]any{
		"sale_type": sale.SaleType,
		"lines":     len(sale.Lines),
		"total":     sale.TotalAmount.String(),
	})
	s.afterMovement(ctx, input.PharmacyID, drugIDs, ReasonSale, units)
	return sale, nil
}

// Dispense resolves free-text medication names against the active catalog and deducts
// the matched quantities in one transaction. Unmatched names follow the configured
// policy: skipped and reported, or the whole dispense fails.
func (s *Service) Dispense(ctx context.Context, input DispenseInput) (DispenseResult, error) {
	if input.PharmacyID == "" {
		return DispenseResult{}, shared.Validationf("inventory: pharmacy required")
	}
	if len(input.Medications) == 0 {
		return DispenseResult{}, shared.Validationf("inventory: medications required")
	}
	for _, med := range input.Medications {
		if strings.TrimSpace(med.Name) == "" {
			return DispenseResult{}, shared.Validationf("inventory: medication name required")
		}
		if med.Quantity <= 0 {
			return DispenseResult{}, shared.Validationf("inventory: medication %q quantity must be positive", med.Name)
		}
	}

	var result DispenseResult
	err := s.allocate(ctx, "dispense", input.PharmacyID,
		func(ctx context.Context, tx TxRepository) ([]demand, error) {
			result = DispenseResult{RxID: input.RxID}
			active, err := tx.ListActiveDrugs(ctx, input.PharmacyID)
			if err != nil {
				return nil, err
			}
			var demands []demand
			for _, med := range input.Medications {
				match, ok := catalog.MatchMedication(active, med.Name)
				if !ok {
					result.Skipped = append(result.Skipped, med.Name)
					continue
				}
				if match.Ambiguous() {
					result.Ambiguous = append(result.Ambiguous, med.Name)
				}
				result.Lines = append(result.Lines, DispensedLine{
					MedicationName: med.Name,
					DrugID:         match.Drug.ID,
					DrugName:       match.Drug.DisplayName(),
					Quantity:       med.Quantity,
					Candidates:     match.Candidates,
				})
				demands = append(demands, demand{drugID: match.Drug.ID, qty: med.Quantity})
			}
			if len(result.Skipped) > 0 && s.unmatched == UnmatchedFail {
				return nil, fmt.Errorf("inventory: unmatched medications %s: %w", strings.Join(result.Skipped, ", "), shared.ErrDrugNotFound)
			}
			return demands, nil
		},
		func(_ context.Context, _ TxRepository, _ map[string]catalog.Drug, plans []AllocationPlan) error {
			for i := range result.Lines {
				result.Lines[i].Allocations = plans[i].Allocations
			}
			return nil
		})
	if err != nil {
		return DispenseResult{}, err
	}
	result.DispensedAt = time.Now().UTC()

	var units int64
	drugIDs := make([]string, 0, len(result.Lines))
	for _, line := range result.Lines {
		units += line.Quantity
		drugIDs = append(drugIDs, line.DrugID)
	}
	if len(result.Ambiguous) > 0 {
		s.logger.Info("dispense resolved ambiguous medication names", slog.String("rx_id", input.RxID), slog.Any("names", result.Ambiguous))
	}
	s.recordAudit(ctx, "STOCK_DISPENSE", "pharmacy_prescription", input.RxID, map[string]any{
		"lines":   len(result.Lines),
		"skipped": result.Skipped,
	})
	if len(drugIDs) > 0 {
		s.afterMovement(ctx, input.PharmacyID, drugIDs, ReasonDispense, units)
	}
	return result, nil
}

// GetSale fetches a sale scoped to the pharmacy.
func (s *Service) GetSale(ctx context.Context, pharmacyID, saleID string) (SaleTransaction, error) {
	return s.repo.GetSale(ctx, pharmacyID, saleID)
}

// ListSales lists the pharmacy's sales, newest first.
func (s *Service) ListSales(ctx context.Context, pharmacyID string, page shared.Page) ([]SaleTransaction, error) {
	return s.repo.ListSales(ctx, pharmacyID, page.Normalize())
}

// UpdatePaymentStatus moves a sale's payment status along the allowed transitions.
func (s *Service) UpdatePaymentStatus(ctx context.Context, pharmacyID, saleID string, next PaymentStatus) (SaleTransaction, error) {
	var sale SaleTransaction
	err := s.retry(ctx, "payment", func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.GetSaleForUpdate(ctx, pharmacyID, saleID)
			if err != nil {
				return err
			}
			if !current.PaymentStatus.CanTransitionTo(next) {
				return &shared.TransitionError{Entity: "sale", ID: saleID, From: string(current.PaymentStatus), Action: "set payment " + string(next)}
			}
			current.PaymentStatus = next
			current.UpdatedAt = time.Now().UTC()
			if err := tx.UpdatePaymentStatus(ctx, current.ID, next, current.UpdatedAt); err != nil {
				return err
			}
			sale = current
			return nil
		})
	})
	if err != nil {
		return SaleTransaction{}, err
	}
	s.recordAudit(ctx, "SALE_PAYMENT", "pharmacy_sale", saleID, map[string]any{"payment_status": next})
	return sale, nil
}

// Reconcile compares each drug's cached stock with its batch sum and, when repair is
// set, rewrites the cached value from the batches.
func (s *Service) Reconcile(ctx context.Context, pharmacyID string, repair bool) ([]Drift, error) {
	if pharmacyID == "" {
		return nil, shared.Validationf("inventory: pharmacy required")
	}
	var drifts []Drift
	err := s.retry(ctx, "reconcile", func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			drifts = nil
			drugs, err := tx.ListAllDrugs(ctx, pharmacyID)
			if err != nil {
				return err
			}
			totals, err := tx.BatchTotals(ctx, pharmacyID)
			if err != nil {
				return err
			}
			for _, d := range drugs {
				actual := totals[d.ID]
				if actual == d.CurrentStock {
					continue
				}
				drift := Drift{DrugID: d.ID, DrugName: d.DisplayName(), Cached: d.CurrentStock, Actual: actual}
				if repair {
					if err := tx.SetDrugStock(ctx, pharmacyID, d.ID, actual); err != nil {
						return err
					}
					drift.Repaired = true
				}
				drifts = append(drifts, drift)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveStockDrift(len(drifts))
	}
	if len(drifts) > 0 {
		s.logger.Warn("stock drift detected", slog.String("pharmacy_id", pharmacyID), slog.Int("drugs", len(drifts)), slog.Bool("repaired", repair))
		if repair {
			ids := make([]string, 0, len(drifts))
			for _, d := range drifts {
				ids = append(ids, d.DrugID)
			}
			s.recordAudit(ctx, "STOCK_RECONCILE", "pharmacy_drug", pharmacyID, map[string]any{"drugs": ids})
			s.afterMovement(ctx, pharmacyID, ids, ReasonReconcile, 0)
		}
	}
	return drifts, nil
}

type demand struct {
	drugID string
	qty    int64
}

type resolveFunc func(context.Context, TxRepository) ([]demand, error)

type applyFunc func(context.Context, TxRepository, map[string]catalog.Drug, []AllocationPlan) error

// allocate runs one allocation attempt per transaction: lock the touched drugs in id
// order, plan every demand against a fresh snapshot, deduct with conditional updates,
// adjust cached stock, then let apply write its own records. Lost updates and
// serialization failures restart the attempt until the budget is spent.
func (s *Service) allocate(ctx context.Context, op, pharmacyID string, resolve resolveFunc, apply applyFunc) error {
	return s.retry(ctx, op, func() error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			demands, err := resolve(ctx, tx)
			if err != nil {
				return err
			}
			ids := uniqueDrugIDs(demands)
			drugs, err := tx.LockDrugs(ctx, pharmacyID, ids)
			if err != nil {
				return err
			}
			for _, id := range ids {
				if d, ok := drugs[id]; !ok || !d.IsActive {
					return fmt.Errorf("inventory: drug %s: %w", id, shared.ErrDrugNotFound)
				}
			}

			snapshots := make(map[string][]Batch, len(ids))
			for _, id := range ids {
				batches, err := tx.SnapshotBatches(ctx, pharmacyID, id)
				if err != nil {
					return err
				}
				snapshots[id] = batches
			}
			plans := make([]AllocationPlan, len(demands))
			for i, d := range demands {
				plan, err := Plan(d.drugID, snapshots[d.drugID], d.qty)
				if err != nil {
					return err
				}
				plans[i] = plan
				snapshots[d.drugID] = applyPlan(snapshots[d.drugID], plan)
			}

			deducted := make(map[string]int64, len(ids))
			for _, plan := range plans {
				for _, a := range plan.Allocations {
					ok, err := tx.DeductBatch(ctx, a.BatchID, a.Expected, a.Quantity)
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("inventory: batch %s changed: %w", a.BatchID, ErrWriteConflict)
					}
				}
				deducted[plan.DrugID] += plan.Total()
			}
			for _, id := range ids {
				if err := tx.AdjustDrugStock(ctx, pharmacyID, id, -deducted[id]); err != nil {
					return err
				}
			}
			return apply(ctx, tx, drugs, plans)
		})
	})
}

// retry reruns fn while it fails with ErrWriteConflict. Once the budget is spent
// the conflict is reported as ErrConcurrentModification.
func (s *Service) retry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrWriteConflict) {
			return err
		}
		lastErr = err
		if s.metrics != nil {
			s.metrics.ObserveAllocationRetry(op)
		}
		s.logger.Debug("write conflict, retrying", slog.String("op", op), slog.Int("attempt", attempt), slog.Any("error", err))
		if ctx.Err() != nil {
			break
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveAllocationExhausted(op)
	}
	return fmt.Errorf("inventory: %s after %d attempts: %w (%v)", op, s.maxAttempts, shared.ErrConcurrentModification, lastErr)
}

func uniqueDrugIDs(demands []demand) []string {
	seen := make(map[string]struct{}, len(demands))
	ids := make([]string, 0, len(demands))
	for _, d := range demands {
		if _, ok := seen[d.drugID]; ok {
			continue
		}
		seen[d.drugID] = struct{}{}
		ids = append(ids, d.drugID)
	}
	sort.Strings(ids)
	return ids
}

func validateSell(input SellInput) error {
	if input.PharmacyID == "" {
		return shared.Validationf("inventory: pharmacy required")
	}
	if !input.SaleType.IsValid() {
		return shared.Validationf("inventory: unknown sale type %q", input.SaleType)
	}
	if !input.PaymentMethod.IsValid() {
		return shared.Validationf("inventory: unknown payment method %q", input.PaymentMethod)
	}
	if len(input.Lines) == 0 {
		return shared.Validationf("inventory: sale requires at least one line")
	}
	for i, line := range input.Lines {
		if line.DrugID == "" {
			return shared.Validationf("inventory: line %d drug required", i+1)
		}
		if line.Quantity <= 0 {
			return shared.Validationf("inventory: line %d quantity must be positive", i+1)
		}
		if line.UnitPrice.IsNegative() || line.Discount.IsNegative() {
			return shared.Validationf("inventory: line %d price and discount must be >= 0", i+1)
		}
	}
	return nil
}

func (s *Service) afterMovement(ctx context.Context, pharmacyID string, drugIDs []string, reason string, units int64) {
	if s.metrics != nil && units > 0 {
		s.metrics.ObserveStockMovement(reason, units)
	}
	if s.integration == nil {
		return
	}
	evt := StockChangedEvent{PharmacyID: pharmacyID, DrugIDs: drugIDs, Reason: reason, OccurredAt: time.Now().UTC()}
	if err := s.integration.HandleStockChanged(ctx, evt); err != nil {
		s.logger.Warn("stock changed hook", slog.String("pharmacy_id", pharmacyID), slog.String("reason", reason), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorFrom(ctx), Action: action, Entity: entity, EntityID: entityID, Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", fmt.Errorf("inventory: %w", err)))
	}
}

func actorFrom(ctx context.Context) string {
	if p, ok := shared.PrincipalFromContext(ctx); ok {
		return p.ActorID
	}
	return ""
}
