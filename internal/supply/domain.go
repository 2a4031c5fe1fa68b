package supply

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

// Status enumerates the supply request lifecycle.
type Status string

const (
	StatusPending           Status = "pending"
	StatusAccepted          Status = "accepted"
	StatusPartiallyAccepted Status = "partially_accepted"
	StatusRejected          Status = "rejected"
	StatusFulfilled         Status = "fulfilled"
	StatusCancelled         Status = "cancelled"
)

// IsValid reports whether the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusPartiallyAccepted, StatusRejected, StatusFulfilled, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsDecision reports whether the status is a valid response from the target.
func (s Status) IsDecision() bool {
	return s == StatusAccepted || s == StatusPartiallyAccepted || s == StatusRejected
}

// CanRespond reports whether the target may still answer.
func (s Status) CanRespond() bool { return s == StatusPending }

// CanFulfill reports whether the transfer can be confirmed.
func (s Status) CanFulfill() bool {
	return s == StatusAccepted || s == StatusPartiallyAccepted
}

// CanCancel reports whether the requester may withdraw the request.
func (s Status) CanCancel() bool { return s == StatusPending }

// Role is the part a pharmacy plays on a request.
type Role string

const (
	RoleRequester Role = "requester"
	RoleTarget    Role = "target"
)

// Action names a capability checked by Authorize.
type Action string

const (
	ActionView    Action = "view"
	ActionRespond Action = "respond"
	ActionFulfill Action = "fulfill"
	ActionCancel  Action = "cancel"
)

var capabilities = map[Action]map[Role]bool{
	ActionView:    {RoleRequester: true, RoleTarget: true},
	ActionRespond: {RoleTarget: true},
	ActionFulfill: {RoleRequester: true, RoleTarget: true},
	ActionCancel:  {RoleRequester: true},
}

// Authorize resolves the caller's role on the request and checks it may perform action.
func Authorize(req SupplyRequest, pharmacyID string, action Action) (Role, error) {
	var role Role
	switch pharmacyID {
	case "":
		return "", fmt.Errorf("supply: no calling pharmacy: %w", shared.ErrUnauthorizedParty)
	case req.RequestingPharmacyID:
		role = RoleRequester
	case req.TargetPharmacyID:
		role = RoleTarget
	default:
		return "", fmt.Errorf("supply: pharmacy %s is not a party to request %s: %w", pharmacyID, req.ID, shared.ErrUnauthorizedParty)
	}
	if !capabilities[action][role] {
		return role, fmt.Errorf("supply: %s may not %s request %s: %w", role, action, req.ID, shared.ErrUnauthorizedParty)
	}
	return role, nil
}

// Urgency ranks a requested item.
type Urgency string

const (
	UrgencyRoutine   Urgency = "routine"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyEmergency Urgency = "emergency"
)

// IsValid reports whether the urgency is known.
func (u Urgency) IsValid() bool {
	return u == UrgencyRoutine || u == UrgencyUrgent || u == UrgencyEmergency
}

// Item is a requested or offered drug line.
type Item struct {
	DrugName string  `json:"drug_name"`
	Quantity int64   `json:"quantity"`
	Urgency  Urgency `json:"urgency,omitempty"`
}

// SupplyRequest is a stock transfer ask between two pharmacies.
type SupplyRequest struct {
	ID                   string     `json:"id"`
	RequestingPharmacyID string     `json:"requesting_pharmacy_id"`
	TargetPharmacyID     string     `json:"target_pharmacy_id"`
	Items                []Item     `json:"items"`
	AvailableItems       []Item     `json:"available_items,omitempty"`
	Status               Status     `json:"status"`
	Notes                string     `json:"notes,omitempty"`
	ResponseReason       string     `json:"response_reason,omitempty"`
	DeliveryMethod       string     `json:"delivery_method,omitempty"`
	FulfillmentNotes     string     `json:"fulfillment_notes,omitempty"`
	CreatedBy            string     `json:"created_by,omitempty"`
	RespondedBy          string     `json:"responded_by,omitempty"`
	FulfilledBy          string     `json:"fulfilled_by,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	RespondedAt          *time.Time `json:"responded_at,omitempty"`
	FulfilledAt          *time.Time `json:"fulfilled_at,omitempty"`
	CancelledAt          *time.Time `json:"cancelled_at,omitempty"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// CreateInput describes a new request.
type CreateInput struct {
	RequestingPharmacyID string
	TargetPharmacyID     string
	Items                []Item
	Notes                string
}

// RespondInput carries the target's decision.
type RespondInput struct {
	PharmacyID     string
	RequestID      string
	Decision       Status
	AvailableItems []Item
	Reason         string
}

// FulfillInput confirms an out-of-band transfer.
type FulfillInput struct {
	PharmacyID     string
	RequestID      string
	DeliveryMethod string
	Notes          string
}

// ListFilter narrows listings to one side of the relationship.
type ListFilter struct {
	Role   Role
	Status Status
	Limit  int
	Offset int
}
