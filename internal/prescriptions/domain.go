package prescriptions

import (
	"time"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/inventory"
)

// Status enumerates the routing lifecycle of a prescription.
type Status string

const (
	StatusReceived   Status = "received"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusDispensed  Status = "dispensed"
	StatusCancelled  Status = "cancelled"
)

// IsValid reports whether the status is known.
func (s Status) IsValid() bool {
	switch s {
	case StatusReceived, StatusProcessing, StatusReady, StatusDispensed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no action can leave the status.
func (s Status) IsTerminal() bool {
	return s == StatusDispensed || s == StatusCancelled
}

// Action is a workflow command applied to a prescription.
type Action string

const (
	ActionAccept   Action = "accept"
	ActionReady    Action = "ready"
	ActionDispense Action = "dispense"
	ActionCancel   Action = "cancel"
)

// IsValid reports whether the action is known.
func (a Action) IsValid() bool {
	switch a {
	case ActionAccept, ActionReady, ActionDispense, ActionCancel:
		return true
	default:
		return false
	}
}

var transitions = map[Status]map[Action]Status{
	StatusReceived: {
		ActionAccept: StatusProcessing,
		ActionCancel: StatusCancelled,
	},
	StatusProcessing: {
		ActionReady:    StatusReady,
		ActionDispense: StatusDispensed,
		ActionCancel:   StatusCancelled,
	},
	StatusReady: {
		ActionDispense: StatusDispensed,
	},
}

// Next returns the status reached by applying action to s.
func Next(s Status, action Action) (Status, bool) {
	next, ok := transitions[s][action]
	return next, ok
}

// Priority ranks prescriptions for the dispensary queue.
type Priority string

const (
	PriorityRoutine Priority = "routine"
	PriorityUrgent  Priority = "urgent"
	PriorityStat    Priority = "stat"
)

// IsValid reports whether the priority is known.
func (p Priority) IsValid() bool {
	return p == PriorityRoutine || p == PriorityUrgent || p == PriorityStat
}

// Medication is a free-text prescribed line.
type Medication struct {
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	Dosage   string `json:"dosage,omitempty"`
}

// Prescription is an e-prescription routed to a pharmacy.
type Prescription struct {
	ID            string                    `json:"id"`
	PharmacyID    string                    `json:"pharmacy_id"`
	RxNumber      string                    `json:"rx_number"`
	PatientRef    string                    `json:"patient_ref"`
	PrescriberRef string                    `json:"prescriber_ref"`
	HospitalRef   string                    `json:"hospital_ref"`
	Medications   []Medication              `json:"medications"`
	Priority      Priority                  `json:"priority"`
	Status        Status                    `json:"status"`
	Notes         string                    `json:"notes,omitempty"`
	CancelReason  string                    `json:"cancel_reason,omitempty"`
	LastActorID   string                    `json:"last_actor_id,omitempty"`
	Dispense      *inventory.DispenseResult `json:"dispense,omitempty"`
	ReceivedAt    time.Time                 `json:"received_at"`
	AcceptedAt    *time.Time                `json:"accepted_at,omitempty"`
	ReadyAt       *time.Time                `json:"ready_at,omitempty"`
	DispensedAt   *time.Time                `json:"dispensed_at,omitempty"`
	CancelledAt   *time.Time                `json:"cancelled_at,omitempty"`
	UpdatedAt     time.Time                 `json:"updated_at"`
}

// stamp records the transition time for the status reached.
func (p *Prescription) stamp(status Status, at time.Time) {
	switch status {
	case StatusProcessing:
		p.AcceptedAt = &at
	case StatusReady:
		p.ReadyAt = &at
	case StatusDispensed:
		p.DispensedAt = &at
	case StatusCancelled:
		p.CancelledAt = &at
	}
	p.UpdatedAt = at
}

// ReceiveInput describes an incoming routed prescription.
type ReceiveInput struct {
	PharmacyID    string
	RxNumber      string
	PatientRef    string
	PrescriberRef string
	HospitalRef   string
	Medications   []Medication
	Priority      Priority
	Notes         string
}

// AdvanceInput applies an action to a prescription.
type AdvanceInput struct {
	PharmacyID string
	RxID       string
	Action     Action
	Reason     string
}

// ListFilter narrows prescription listings.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}
