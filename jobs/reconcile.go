package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-pharmacy/internal/jobs"
)

// Reconciler checks cached stock against batch sums.
type Reconciler interface {
	Reconcile(ctx context.Context, pharmacyID string, repair bool) ([]inventory.Drift, error)
}

// ReconcileJob runs stock reconciliation for every pharmacy.
type ReconcileJob struct {
	Pharmacies PharmacyLister
	Inventory  Reconciler
	Repair     bool
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// Handle processes TaskInventoryReconcile.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Inventory == nil || j.Pharmacies == nil {
		return errors.New("reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("reconcile payload: %v: %w", err, asynq.SkipRetry)
	}
	repair := j.Repair
	if payload.Repair != nil {
		repair = *payload.Repair
	}
	tracker := j.Metrics.Track(TaskInventoryReconcile)
	defer func() { resultErr = tracker.End(resultErr) }()

	pharmacies, err := scope(ctx, j.Pharmacies, payload.PharmacyID)
	if err != nil {
		return err
	}
	logger := loggerOr(j.Logger)
	var failed []error
	drifted := 0
	for _, ph := range pharmacies {
		drifts, err := j.Inventory.Reconcile(ctx, ph, repair)
		if err != nil {
			logger.Error("reconcile", slog.String("pharmacy_id", ph), slog.Any("error", err))
			failed = append(failed, fmt.Errorf("pharmacy %s: %w", ph, err))
			continue
		}
		for _, d := range drifts {
			logger.Warn("stock drift",
				slog.String("pharmacy_id", ph),
				slog.String("drug_id", d.DrugID),
				slog.Int64("cached", d.Cached),
				slog.Int64("actual", d.Actual),
				slog.Bool("repaired", d.Repaired),
			)
		}
		drifted += len(drifts)
	}
	logger.Info("completed reconciliation", slog.Int("pharmacies", len(pharmacies)), slog.Int("drifted", drifted), slog.Bool("repair", repair))
	return errors.Join(failed...)
}
