package catalog

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

// Category classifies how a drug may be sold.
type Category string

const (
	CategoryPrescriptionOnly Category = "prescription_only"
	CategoryOverTheCounter   Category = "over_the_counter"
	CategoryControlled       Category = "controlled"
	CategoryPharmacyOnly     Category = "pharmacy_only"
	CategoryGeneralSale      Category = "general_sale"
)

// IsValid checks if the category is one of the supported values.
func (c Category) IsValid() bool {
	switch c {
	case CategoryPrescriptionOnly, CategoryOverTheCounter, CategoryControlled, CategoryPharmacyOnly, CategoryGeneralSale:
		return true
	default:
		return false
	}
}

// ParseCategory maps the loose spellings found in reference medication lists.
func ParseCategory(raw string) (Category, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	switch key {
	case "prescription_only", "prescription", "pom", "rx", "rx_only":
		return CategoryPrescriptionOnly, true
	case "over_the_counter", "otc":
		return CategoryOverTheCounter, true
	case "controlled", "controlled_drug", "cd", "narcotic":
		return CategoryControlled, true
	case "pharmacy_only", "pharmacy", "p":
		return CategoryPharmacyOnly, true
	case "general_sale", "general_sales_list", "gsl", "general":
		return CategoryGeneralSale, true
	default:
		return "", false
	}
}

// Drug is a sellable catalog entry owned by exactly one pharmacy.
type Drug struct {
	ID           string          `json:"id"`
	PharmacyID   string          `json:"pharmacy_id"`
	GenericName  string          `json:"generic_name"`
	BrandName    string          `json:"brand_name,omitempty"`
	Category     Category        `json:"category"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	PackSize     int64           `json:"pack_size"`
	ReorderLevel int64           `json:"reorder_level"`
	// CurrentStock caches the sum of remaining batch quantities.
	CurrentStock int64     `json:"current_stock"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DisplayName prefers the brand name.
func (d Drug) DisplayName() string {
	if d.BrandName != "" {
		return d.BrandName
	}
	return d.GenericName
}

// DrugInput describes a catalog addition.
type DrugInput struct {
	GenericName  string
	BrandName    string
	Category     Category
	UnitPrice    decimal.Decimal
	PackSize     int64
	ReorderLevel int64
}

// DrugUpdate carries optional changes; nil fields are left untouched.
type DrugUpdate struct {
	GenericName  *string
	BrandName    *string
	Category     *Category
	UnitPrice    *decimal.Decimal
	PackSize     *int64
	ReorderLevel *int64
}

// DrugFilter narrows catalog listings.
type DrugFilter struct {
	Query      string
	Category   Category
	ActiveOnly bool
	Page       shared.Page
}

// ReferenceMedication is one record of the onboarding reference list.
type ReferenceMedication struct {
	GenericName string   `json:"genericName"`
	BrandNames  []string `json:"brandNames"`
	Category    string   `json:"category"`
	DosageForms []string `json:"dosageForms"`
	Strengths   []string `json:"strengths"`
}

// SeedReport summarises a bulk seed.
type SeedReport struct {
	Created int    `json:"created"`
	Skipped int    `json:"skipped"`
	Drugs   []Drug `json:"-"`
}

// Seed defaults applied to reference records.
const (
	DefaultSeedPackSize     int64 = 1
	DefaultSeedReorderLevel int64 = 10
)
