package prescriptions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/inventory"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

// RepositoryPort abstracts prescription persistence. Status changes are
// conditional on the expected current status.
type RepositoryPort interface {
	Insert(ctx context.Context, rx Prescription) (Prescription, bool, error)
	Get(ctx context.Context, pharmacyID, rxID string) (Prescription, error)
	List(ctx context.Context, pharmacyID string, filter ListFilter) ([]Prescription, error)
	CompareAndSet(ctx context.Context, rx Prescription, expected Status) (bool, error)
	SaveDispense(ctx context.Context, rxID string, result inventory.DispenseResult) error
}

// Dispenser deducts prescribed medications from stock.
type Dispenser interface {
	Dispense(ctx context.Context, input inventory.DispenseInput) (inventory.DispenseResult, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts workflow transitions.
type MetricsPort interface {
	ObserveTransition(entity, action string)
}

// Service drives the prescription fulfilment workflow.
type Service struct {
	repo      RepositoryPort
	dispenser Dispenser
	audit     AuditPort
	metrics   MetricsPort
	logger    *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, dispenser Dispenser, audit AuditPort, metrics MetricsPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, dispenser: dispenser, audit: audit, metrics: metrics, logger: logger}
}

const maxTransitionAttempts = 3

// Receive records a routed prescription. Submitting the same rx number to the same
// pharmacy again returns the stored record.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (Prescription, bool, error) {
	if err := validateReceive(&input); err != nil {
		return Prescription{}, false, err
	}
	now := time.Now().UTC()
	rx := Prescription{
		ID:            uuid.NewString(),
		PharmacyID:    input.PharmacyID,
		RxNumber:      input.RxNumber,
		PatientRef:    input.PatientRef,
		PrescriberRef: input.PrescriberRef,
		HospitalRef:   input.HospitalRef,
		Medications:   input.Medications,
		Priority:      input.Priority,
		Status:        StatusReceived,
		Notes:         input.Notes,
		LastActorID:   actorFrom(ctx),
		ReceivedAt:    now,
		UpdatedAt:     now,
	}
	stored, created, err := s.repo.Insert(ctx, rx)
	if err != nil {
		return Prescription{}, false, err
	}
	if created {
		s.recordAudit(ctx, "RX_RECEIVE", stored.ID, map[string]any{"rx_number": stored.RxNumber, "hospital_ref": stored.HospitalRef})
		s.observe("receive")
	}
	return stored, created, nil
}

// Get returns a prescription of the pharmacy.
func (s *Service) Get(ctx context.Context, pharmacyID, rxID string) (Prescription, error) {
	return s.repo.Get(ctx, pharmacyID, rxID)
}

// List lists prescriptions, optionally by status.
func (s *Service) List(ctx context.Context, pharmacyID string, filter ListFilter) ([]Prescription, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, shared.Validationf("prescriptions: unknown status %q", filter.Status)
	}
	page := shared.Page{Limit: filter.Limit, Offset: filter.Offset}.Normalize()
	filter.Limit, filter.Offset = page.Limit, page.Offset
	return s.repo.List(ctx, pharmacyID, filter)
}

// Accept moves a received prescription into processing.
func (s *Service) Accept(ctx context.Context, pharmacyID, rxID string) (Prescription, error) {
	return s.Advance(ctx, AdvanceInput{PharmacyID: pharmacyID, RxID: rxID, Action: ActionAccept})
}

// MarkReady marks a processing prescription as ready for collection.
func (s *Service) MarkReady(ctx context.Context, pharmacyID, rxID string) (Prescription, error) {
	return s.Advance(ctx, AdvanceInput{PharmacyID: pharmacyID, RxID: rxID, Action: ActionReady})
}

// Dispense dispenses a processing or ready prescription and deducts its stock.
func (s *Service) Dispense(ctx context.Context, pharmacyID, rxID string) (Prescription, error) {
	return s.Advance(ctx, AdvanceInput{PharmacyID: pharmacyID, RxID: rxID, Action: ActionDispense})
}

// Cancel cancels a received or processing prescription.
func (s *Service) Cancel(ctx context.Context, pharmacyID, rxID, reason string) (Prescription, error) {
	return s.Advance(ctx, AdvanceInput{PharmacyID: pharmacyID, RxID: rxID, Action: ActionCancel, Reason: reason})
}

// Advance applies a workflow action. The status is claimed with a conditional update
// before any side effect, so concurrent callers cannot both dispense. When the stock
// deduction of a dispense fails the previous status is restored.
func (s *Service) Advance(ctx context.Context, input AdvanceInput) (Prescription, error) {
	if !input.Action.IsValid() {
		return Prescription{}, shared.Validationf("prescriptions: unknown action %q", input.Action)
	}
	var (
		rx       Prescription
		previous Prescription
	)
	for attempt := 1; ; attempt++ {
		current, err := s.repo.Get(ctx, input.PharmacyID, input.RxID)
		if err != nil {
			return Prescription{}, err
		}
		next, ok := Next(current.Status, input.Action)
		if !ok {
			return Prescription{}, &shared.TransitionError{Entity: "prescription", ID: current.ID, From: string(current.Status), Action: string(input.Action)}
		}
		updated := current
		updated.Status = next
		updated.LastActorID = actorFrom(ctx)
		updated.stamp(next, time.Now().UTC())
		if next == StatusCancelled {
			updated.CancelReason = strings.TrimSpace(input.Reason)
		}
		swapped, err := s.repo.CompareAndSet(ctx, updated, current.Status)
		if err != nil {
			return Prescription{}, err
		}
		if swapped {
			rx, previous = updated, current
			break
		}
		if attempt == maxTransitionAttempts {
			return Prescription{}, fmt.Errorf("prescriptions: %s %s: %w", input.Action, input.RxID, shared.ErrConcurrentModification)
		}
	}

	if input.Action == ActionDispense {
		result, err := s.dispense(ctx, rx)
		if err != nil {
			return Prescription{}, s.compensate(ctx, rx, previous, err)
		}
		rx.Dispense = &result
	}

	s.recordAudit(ctx, "RX_"+strings.ToUpper(string(input.Action)), rx.ID, map[string]any{
		"from": previous.Status,
		"to":   rx.Status,
	})
	s.observe(string(input.Action))
	return rx, nil
}

func (s *Service) dispense(ctx context.Context, rx Prescription) (inventory.DispenseResult, error) {
	if s.dispenser == nil {
		return inventory.DispenseResult{}, errors.New("prescriptions: dispenser not configured")
	}
	meds := make([]inventory.MedicationRequest, 0, len(rx.Medications))
	for _, m := range rx.Medications {
		meds = append(meds, inventory.MedicationRequest{Name: m.Name, Quantity: m.Quantity})
	}
	result, err := s.dispenser.Dispense(ctx, inventory.DispenseInput{PharmacyID: rx.PharmacyID, RxID: rx.ID, Medications: meds})
	if err != nil {
		return inventory.DispenseResult{}, err
	}
	if err := s.repo.SaveDispense(ctx, rx.ID, result); err != nil {
		s.logger.Error("store dispense result", slog.String("rx_id", rx.ID), slog.Any("error", err))
	}
	if len(result.Skipped) > 0 {
		s.logger.Warn("dispense skipped unmatched medications", slog.String("rx_id", rx.ID), slog.Any("names", result.Skipped))
	}
	return result, nil
}

// compensate puts a prescription back to its pre-dispense status.
func (s *Service) compensate(ctx context.Context, claimed, previous Prescription, cause error) error {
	previous.UpdatedAt = time.Now().UTC()
	restored, err := s.repo.CompareAndSet(ctx, previous, claimed.Status)
	if err != nil || !restored {
		s.logger.Error("restore prescription after failed dispense",
			slog.String("rx_id", claimed.ID),
			slog.String("status", string(previous.Status)),
			slog.Any("error", err))
		if err == nil {
			err = shared.ErrConcurrentModification
		}
		return errors.Join(cause, fmt.Errorf("prescriptions: restore %s: %w", claimed.ID, err))
	}
	s.recordAudit(ctx, "RX_DISPENSE_FAILED", claimed.ID, map[string]any{"restored": previous.Status, "error": cause.Error()})
	return cause
}

func validateReceive(input *ReceiveInput) error {
	input.RxNumber = strings.TrimSpace(input.RxNumber)
	if input.PharmacyID == "" {
		return shared.Validationf("prescriptions: pharmacy required")
	}
	if input.RxNumber == "" {
		return shared.Validationf("prescriptions: rx number required")
	}
	if strings.TrimSpace(input.PatientRef) == "" {
		return shared.Validationf("prescriptions: patient required")
	}
	if len(input.Medications) == 0 {
		return shared.Validationf("prescriptions: at least one medication required")
	}
	for i, m := range input.Medications {
		if strings.TrimSpace(m.Name) == "" {
			return shared.Validationf("prescriptions: medication %d name required", i+1)
		}
		if m.Quantity <= 0 {
			return shared.Validationf("prescriptions: medication %d quantity must be positive", i+1)
		}
	}
	if input.Priority == "" {
		input.Priority = PriorityRoutine
	}
	if !input.Priority.IsValid() {
		return shared.Validationf("prescriptions: unknown priority %q", input.Priority)
	}
	return nil
}

func (s *Service) observe(action string) {
	if s.metrics != nil {
		s.metrics.ObserveTransition("prescription", action)
	}
}

func (s *Service) recordAudit(ctx context.Context, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorFrom(ctx), Action: action, Entity: "pharmacy_prescription", EntityID: entityID, Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func actorFrom(ctx context.Context) string {
	if p, ok := shared.PrincipalFromContext(ctx); ok {
		return p.ActorID
	}
	return ""
}
