package reorder

import (
	"sort"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/catalog"
)

// Priority ranks a reorder suggestion.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
)

// Suggestion proposes restocking one drug.
type Suggestion struct {
	DrugID            string   `json:"drug_id"`
	GenericName       string   `json:"generic_name"`
	BrandName         string   `json:"brand_name,omitempty"`
	CurrentStock      int64    `json:"current_stock"`
	ReorderLevel      int64    `json:"reorder_level"`
	PackSize          int64    `json:"pack_size"`
	SuggestedQuantity int64    `json:"suggested_quantity"`
	Priority          Priority `json:"priority"`
}

// Suggest flags every active drug at or below its reorder level. The suggested
// quantity refills to twice the reorder level and is never below one pack; out of
// stock drugs are high priority. Results list high priority first, then by name.
func Suggest(drugs []catalog.Drug) []Suggestion {
	out := []Suggestion{}
	for _, d := range drugs {
		if !d.IsActive || d.CurrentStock > d.ReorderLevel {
			continue
		}
		priority := PriorityMedium
		if d.CurrentStock == 0 {
			priority = PriorityHigh
		}
		out = append(out, Suggestion{
			DrugID:            d.ID,
			GenericName:       d.GenericName,
			BrandName:         d.BrandName,
			CurrentStock:      d.CurrentStock,
			ReorderLevel:      d.ReorderLevel,
			PackSize:          d.PackSize,
			SuggestedQuantity: max(2*d.ReorderLevel-d.CurrentStock, d.PackSize),
			Priority:          priority,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority == PriorityHigh
		}
		if a.GenericName != b.GenericName {
			return a.GenericName < b.GenericName
		}
		if a.BrandName != b.BrandName {
			return a.BrandName < b.BrandName
		}
		return a.DrugID < b.DrugID
	})
	return out
}
