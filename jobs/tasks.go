package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReorderScan computes reorder suggestions for every pharmacy.
	TaskReorderScan = "reorder:scan"
	// TaskInventoryReconcile compares cached stock with batch sums.
	TaskInventoryReconcile = "inventory:reconcile"
)

// ReorderScanPayload optionally narrows the scan to one pharmacy.
type ReorderScanPayload struct {
	PharmacyID string `json:"pharmacy_id,omitempty"`
}

// ReconcilePayload optionally narrows reconciliation to one pharmacy. A nil Repair
// falls back to the worker's configured default.
type ReconcilePayload struct {
	PharmacyID string `json:"pharmacy_id,omitempty"`
	Repair     *bool  `json:"repair,omitempty"`
}

// NewReorderScanTask constructs a reorder scan task.
func NewReorderScanTask(payload ReorderScanPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReorderScan, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewReconcileTask constructs an inventory reconciliation task.
func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryReconcile, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
