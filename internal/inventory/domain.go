package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Batch is one receipt of stock for a drug.
type Batch struct {
	ID                string          `json:"id"`
	PharmacyID        string          `json:"pharmacy_id"`
	DrugID            string          `json:"drug_id"`
	BatchNumber       string          `json:"batch_number"`
	QuantityReceived  int64           `json:"quantity_received"`
	QuantityRemaining int64           `json:"quantity_remaining"`
	CostPrice         decimal.Decimal `json:"cost_price"`
	SellingPrice      decimal.Decimal `json:"selling_price"`
	ExpiryDate        time.Time       `json:"expiry_date"`
	Supplier          string          `json:"supplier,omitempty"`
	ReceivedAt        time.Time       `json:"received_at"`
}

// ReceiveInput describes an inventory receipt.
type ReceiveInput struct {
	PharmacyID   string
	DrugID       string
	BatchNumber  string
	Quantity     int64
	CostPrice    decimal.Decimal
	SellingPrice decimal.Decimal
	ExpiryDate   time.Time
	Supplier     string
}

// Allocation is one (batch, quantity) deduction of a plan.
type Allocation struct {
	BatchID     string    `json:"batch_id"`
	BatchNumber string    `json:"batch_number"`
	ExpiryDate  time.Time `json:"expiry_date"`
	Quantity    int64     `json:"quantity"`
	// Expected is the batch's remaining quantity the plan was computed from.
	Expected int64 `json:"-"`
}

// AllocationPlan lists the deductions that satisfy one requested quantity.
type AllocationPlan struct {
	DrugID      string       `json:"drug_id"`
	Requested   int64        `json:"requested"`
	Allocations []Allocation `json:"allocations"`
}

// Total sums the planned deductions.
func (p AllocationPlan) Total() int64 {
	var total int64
	for _, a := range p.Allocations {
		total += a.Quantity
	}
	return total
}

// SaleType enumerates the commercial channel of a sale.
type SaleType string

const (
	SaleTypeRetail    SaleType = "retail"
	SaleTypeWholesale SaleType = "wholesale"
	SaleTypeHospital  SaleType = "hospital"
	SaleTypeNHIS      SaleType = "nhis"
	SaleTypeInsurance SaleType = "insurance"
)

// IsValid checks if the sale type is supported.
func (t SaleType) IsValid() bool {
	switch t {
	case SaleTypeRetail, SaleTypeWholesale, SaleTypeHospital, SaleTypeNHIS, SaleTypeInsurance:
		return true
	default:
		return false
	}
}

// PaymentMethod enumerates accepted tenders.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentCard         PaymentMethod = "card"
	PaymentMobileMoney  PaymentMethod = "mobile_money"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentInsurance    PaymentMethod = "insurance"
	PaymentNHIS         PaymentMethod = "nhis"
)

// IsValid checks if the payment method is supported.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentMobileMoney, PaymentBankTransfer, PaymentInsurance, PaymentNHIS:
		return true
	default:
		return false
	}
}

// PaymentStatus is the only mutable attribute of a recorded sale.
type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "pending"
	PaymentPaid          PaymentStatus = "paid"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentFailed        PaymentStatus = "failed"
	PaymentRefunded      PaymentStatus = "refunded"
)

// CanTransitionTo reports whether the payment status may move to next.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentPending:
		return next == PaymentPaid || next == PaymentPartiallyPaid || next == PaymentFailed
	case PaymentPartiallyPaid:
		return next == PaymentPaid
	case PaymentPaid:
		return next == PaymentRefunded
	default:
		return false
	}
}

// SaleLineItem is one drug line of a sale with the batches it consumed.
type SaleLineItem struct {
	DrugID           string          `json:"drug_id"`
	Quantity         int64           `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	Discount         decimal.Decimal `json:"discount"`
	BatchAllocations []Allocation    `json:"batch_allocations"`
}

// Amount is qty*unit_price - discount.
func (l SaleLineItem) Amount() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity)).Sub(l.Discount)
}

// SaleTransaction is an immutable record of a completed sale.
type SaleTransaction struct {
	ID            string          `json:"id"`
	PharmacyID    string          `json:"pharmacy_id"`
	SaleType      SaleType        `json:"sale_type"`
	Lines         []SaleLineItem  `json:"lines"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	CustomerRef   string          `json:"customer_ref,omitempty"`
	ActorID       string          `json:"actor_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// LineInput is one requested sale line.
type LineInput struct {
	DrugID    string
	Quantity  int64
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal
}

// SellInput describes a sale request.
type SellInput struct {
	PharmacyID     string
	SaleType       SaleType
	PaymentMethod  PaymentMethod
	Lines          []LineInput
	CustomerRef    string
	Paid           bool
	IdempotencyKey string
}

// MedicationRequest is a free-text prescription line to dispense.
type MedicationRequest struct {
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
}

// DispenseInput describes a dispense of a routed prescription.
type DispenseInput struct {
	PharmacyID  string
	RxID        string
	Medications []MedicationRequest
}

// DispensedLine is a medication that was resolved and deducted.
type DispensedLine struct {
	MedicationName string       `json:"medication_name"`
	DrugID         string       `json:"drug_id"`
	DrugName       string       `json:"drug_name"`
	Quantity       int64        `json:"quantity"`
	Allocations    []Allocation `json:"allocations"`
	Candidates     int          `json:"candidates"`
}

// DispenseResult reports what a dispense deducted and which names it skipped.
type DispenseResult struct {
	RxID        string          `json:"rx_id"`
	Lines       []DispensedLine `json:"lines"`
	Skipped     []string        `json:"skipped,omitempty"`
	Ambiguous   []string        `json:"ambiguous,omitempty"`
	DispensedAt time.Time       `json:"dispensed_at"`
}

// UnmatchedPolicy decides what a dispense does with names matching no catalog drug.
type UnmatchedPolicy string

const (
	// UnmatchedSkip dispenses the matched names and reports the rest as skipped.
	UnmatchedSkip UnmatchedPolicy = "skip"
	// UnmatchedFail rejects the whole dispense.
	UnmatchedFail UnmatchedPolicy = "fail"
)

// IsValid checks if the policy is supported.
func (p UnmatchedPolicy) IsValid() bool {
	return p == UnmatchedSkip || p == UnmatchedFail
}

// Drift is a drug whose cached stock disagrees with its batches.
type Drift struct {
	DrugID   string `json:"drug_id"`
	DrugName string `json:"drug_name"`
	Cached   int64  `json:"cached"`
	Actual   int64  `json:"actual"`
	Repaired bool   `json:"repaired"`
}

// ErrWriteConflict signals a lost conditional update or a serialization failure; the attempt is retried.
var ErrWriteConflict = errors.New("inventory: write conflict")

// DefaultMaxAttempts bounds allocation retries when the config omits it.
const DefaultMaxAttempts = 5
