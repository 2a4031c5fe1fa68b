package inventory

import (
	"context"
	"time"
)

// Stock change reasons carried on StockChangedEvent.
const (
	ReasonReceive   = "receive"
	ReasonSale      = "sale"
	ReasonDispense  = "dispense"
	ReasonReconcile = "reconcile"
)

// StockChangedEvent is published after a committed stock movement.
type StockChangedEvent struct {
	PharmacyID string
	DrugIDs    []string
	Reason     string
	OccurredAt time.Time
}

// IntegrationHandler receives committed inventory events. Failures are logged and never
// undo the movement.
type IntegrationHandler interface {
	HandleStockChanged(ctx context.Context, evt StockChangedEvent) error
}

// MetricsPort records allocation outcomes.
type MetricsPort interface {
	ObserveStockMovement(reason string, units int64)
	ObserveAllocationRetry(operation string)
	ObserveAllocationExhausted(operation string)
	ObserveStockDrift(count int)
}
