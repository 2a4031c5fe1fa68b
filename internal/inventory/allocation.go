package inventory

import (
	"sort"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

// SortBatches orders batches earliest expiry first, then earliest receipt, then batch id.
func SortBatches(batches []Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		if !a.ExpiryDate.Equal(b.ExpiryDate) {
			return a.ExpiryDate.Before(b.ExpiryDate)
		}
		if !a.ReceivedAt.Equal(b.ReceivedAt) {
			return a.ReceivedAt.Before(b.ReceivedAt)
		}
		return a.ID < b.ID
	})
}

// Plan selects the batches to deduct for requested units of a drug. It does not
// mutate its input and has no side effects, so callers may re-plan freely after a
// conflict. Feasibility is judged on the batch sum, never on a cached counter.
func Plan(drugID string, batches []Batch, requested int64) (AllocationPlan, error) {
	if requested <= 0 {
		return AllocationPlan{}, shared.Validationf("inventory: quantity must be positive")
	}
	ordered := make([]Batch, 0, len(batches))
	var available int64
	for _, b := range batches {
		if b.QuantityRemaining <= 0 {
			continue
		}
		ordered = append(ordered, b)
		available += b.QuantityRemaining
	}
	if available < requested {
		return AllocationPlan{}, &shared.StockError{DrugID: drugID, Requested: requested, Available: available}
	}
	SortBatches(ordered)
	plan := AllocationPlan{DrugID: drugID, Requested: requested}
	needed := requested
	for _, b := range ordered {
		if needed == 0 {
			break
		}
		take := min(b.QuantityRemaining, needed)
		plan.Allocations = append(plan.Allocations, Allocation{
			BatchID:     b.ID,
			BatchNumber: b.BatchNumber,
			ExpiryDate:  b.ExpiryDate,
			Quantity:    take,
			Expected:    b.QuantityRemaining,
		})
		needed -= take
	}
	return plan, nil
}

// applyPlan returns the batches left after the plan is deducted, dropping empty ones.
func applyPlan(batches []Batch, plan AllocationPlan) []Batch {
	taken := make(map[string]int64, len(plan.Allocations))
	for _, a := range plan.Allocations {
		taken[a.BatchID] += a.Quantity
	}
	left := make([]Batch, 0, len(batches))
	for _, b := range batches {
		b.QuantityRemaining -= taken[b.ID]
		if b.QuantityRemaining > 0 {
			left = append(left, b)
		}
	}
	return left
}
