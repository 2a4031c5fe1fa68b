package supply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

// RepositoryPort abstracts supply request persistence.
type RepositoryPort interface {
	Insert(ctx context.Context, req SupplyRequest) error
	Get(ctx context.Context, requestID string) (SupplyRequest, error)
	List(ctx context.Context, pharmacyID string, filter ListFilter) ([]SupplyRequest, error)
	CompareAndSet(ctx context.Context, req SupplyRequest, expected Status) (bool, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts workflow transitions.
type MetricsPort interface {
	ObserveTransition(entity, action string)
}

// Service drives the inter-pharmacy supply workflow. Fulfilment records an
// out-of-band transfer; neither ledger is touched.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics MetricsPort
	logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, metrics MetricsPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, metrics: metrics, logger: logger}
}

// Create opens a pending request from one pharmacy to another.
func (s *Service) Create(ctx context.Context, input CreateInput) (SupplyRequest, error) {
	if input.RequestingPharmacyID == "" || input.TargetPharmacyID == "" {
		return SupplyRequest{}, shared.Validationf("supply: requesting and target pharmacy required")
	}
	if input.RequestingPharmacyID == input.TargetPharmacyID {
		return SupplyRequest{}, shared.Validationf("supply: target pharmacy must differ from requester")
	}
	items, err := normalizeItems(input.Items, true)
	if err != nil {
		return SupplyRequest{}, err
	}
	now := time.Now().UTC()
	req := SupplyRequest{
		ID:                   uuid.NewString(),
		RequestingPharmacyID: input.RequestingPharmacyID,
		TargetPharmacyID:     input.TargetPharmacyID,
		Items:                items,
		Status:               StatusPending,
		Notes:                strings.TrimSpace(input.Notes),
		CreatedBy:            actorFrom(ctx),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.Insert(ctx, req); err != nil {
		return SupplyRequest{}, err
	}
	s.recordAudit(ctx, "SUPPLY_CREATE", req.ID, map[string]any{"target_pharmacy_id": req.TargetPharmacyID, "items": len(req.Items)})
	s.observe("create")
	return req, nil
}

// Get returns a request the caller is a party to.
func (s *Service) Get(ctx context.Context, pharmacyID, requestID string) (SupplyRequest, error) {
	req, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return SupplyRequest{}, err
	}
	if _, err := Authorize(req, pharmacyID, ActionView); err != nil {
		return SupplyRequest{}, err
	}
	return req, nil
}

// List lists outgoing (requester) or incoming (target) requests of the pharmacy.
func (s *Service) List(ctx context.Context, pharmacyID string, filter ListFilter) ([]SupplyRequest, error) {
	if filter.Role == "" {
		filter.Role = RoleRequester
	}
	if filter.Role != RoleRequester && filter.Role != RoleTarget {
		return nil, shared.Validationf("supply: unknown role %q", filter.Role)
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, shared.Validationf("supply: unknown status %q", filter.Status)
	}
	page := shared.Page{Limit: filter.Limit, Offset: filter.Offset}.Normalize()
	filter.Limit, filter.Offset = page.Limit, page.Offset
	return s.repo.List(ctx, pharmacyID, filter)
}

// Respond records the target pharmacy's decision on a pending request.
func (s *Service) Respond(ctx context.Context, input RespondInput) (SupplyRequest, error) {
	if !input.Decision.IsDecision() {
		return SupplyRequest{}, shared.Validationf("supply: decision must be accepted, partially_accepted or rejected")
	}
	return s.transition(ctx, input.PharmacyID, input.RequestID, ActionRespond, func(req *SupplyRequest, now time.Time) error {
		if !req.Status.CanRespond() {
			return &shared.TransitionError{Entity: "supply_request", ID: req.ID, From: string(req.Status), Action: string(ActionRespond)}
		}
		switch input.Decision {
		case StatusAccepted:
			req.AvailableItems = req.Items
			if len(input.AvailableItems) > 0 {
				items, err := offeredItems(req.Items, input.AvailableItems)
				if err != nil {
					return err
				}
				req.AvailableItems = items
			}
		case StatusPartiallyAccepted:
			if len(input.AvailableItems) == 0 {
				return shared.Validationf("supply: partially accepted response requires available items")
			}
			items, err := offeredItems(req.Items, input.AvailableItems)
			if err != nil {
				return err
			}
			req.AvailableItems = items
		case StatusRejected:
			if len(input.AvailableItems) > 0 {
				return shared.Validationf("supply: rejected response cannot offer items")
			}
			req.AvailableItems = nil
		}
		req.Status = input.Decision
		req.ResponseReason = strings.TrimSpace(input.Reason)
		req.RespondedBy = actorFrom(ctx)
		req.RespondedAt = &now
		return nil
	})
}

// Fulfill confirms the transfer of an accepted request. Either party may confirm.
func (s *Service) Fulfill(ctx context.Context, input FulfillInput) (SupplyRequest, error) {
	method := strings.TrimSpace(input.DeliveryMethod)
	if method == "" {
		return SupplyRequest{}, shared.Validationf("supply: delivery method required")
	}
	return s.transition(ctx, input.PharmacyID, input.RequestID, ActionFulfill, func(req *SupplyRequest, now time.Time) error {
		if !req.Status.CanFulfill() {
			return &shared.TransitionError{Entity: "supply_request", ID: req.ID, From: string(req.Status), Action: string(ActionFulfill)}
		}
		req.Status = StatusFulfilled
		req.DeliveryMethod = method
		req.FulfillmentNotes = strings.TrimSpace(input.Notes)
		req.FulfilledBy = actorFrom(ctx)
		req.FulfilledAt = &now
		return nil
	})
}

// Cancel withdraws a pending request. Only the requester may cancel.
func (s *Service) Cancel(ctx context.Context, pharmacyID, requestID, reason string) (SupplyRequest, error) {
	return s.transition(ctx, pharmacyID, requestID, ActionCancel, func(req *SupplyRequest, now time.Time) error {
		if !req.Status.CanCancel() {
			return &shared.TransitionError{Entity: "supply_request", ID: req.ID, From: string(req.Status), Action: string(ActionCancel)}
		}
		req.Status = StatusCancelled
		req.ResponseReason = strings.TrimSpace(reason)
		req.CancelledAt = &now
		return nil
	})
}

// transition loads the request, checks the caller's capability, applies mutate and
// writes it back conditionally on the status it was read in.
func (s *Service) transition(ctx context.Context, pharmacyID, requestID string, action Action, mutate func(*SupplyRequest, time.Time) error) (SupplyRequest, error) {
	req, err := s.repo.Get(ctx, requestID)
	if err != nil {
		return SupplyRequest{}, err
	}
	role, err := Authorize(req, pharmacyID, action)
	if err != nil {
		return SupplyRequest{}, err
	}
	expected := req.Status
	now := time.Now().UTC()
	if err := mutate(&req, now); err != nil {
		return SupplyRequest{}, err
	}
	req.UpdatedAt = now
	swapped, err := s.repo.CompareAndSet(ctx, req, expected)
	if err != nil {
		return SupplyRequest{}, err
	}
	if !swapped {
		current, err := s.repo.Get(ctx, requestID)
		if err != nil {
			return SupplyRequest{}, err
		}
		return SupplyRequest{}, &shared.TransitionError{Entity: "supply_request", ID: requestID, From: string(current.Status), Action: string(action)}
	}
	s.recordAudit(ctx, "SUPPLY_"+strings.ToUpper(string(action)), req.ID, map[string]any{
		"role": role,
		"from": expected,
		"to":   req.Status,
	})
	s.observe(string(action))
	return req, nil
}

func normalizeItems(items []Item, defaultUrgency bool) ([]Item, error) {
	if len(items) == 0 {
		return nil, shared.Validationf("supply: at least one item required")
	}
	out := make([]Item, 0, len(items))
	for i, item := range items {
		item.DrugName = strings.TrimSpace(item.DrugName)
		if item.DrugName == "" {
			return nil, shared.Validationf("supply: item %d drug name required", i+1)
		}
		if item.Quantity <= 0 {
			return nil, shared.Validationf("supply: item %d quantity must be positive", i+1)
		}
		if item.Urgency == "" && defaultUrgency {
			item.Urgency = UrgencyRoutine
		}
		if item.Urgency != "" && !item.Urgency.IsValid() {
			return nil, shared.Validationf("supply: item %d unknown urgency %q", i+1, item.Urgency)
		}
		out = append(out, item)
	}
	return out, nil
}

// offeredItems checks that every offered line names a requested drug and does not
// exceed the requested quantity.
func offeredItems(requested, offered []Item) ([]Item, error) {
	items, err := normalizeItems(offered, false)
	if err != nil {
		return nil, err
	}
	folder := cases.Fold()
	wanted := make(map[string]Item, len(requested))
	for _, r := range requested {
		wanted[folder.String(r.DrugName)] = r
	}
	for i, item := range items {
		req, ok := wanted[folder.String(item.DrugName)]
		if !ok {
			return nil, shared.Validationf("supply: offered item %q was not requested", item.DrugName)
		}
		if item.Quantity > req.Quantity {
			return nil, shared.Validationf("supply: offered %d of %q but only %d requested", item.Quantity, item.DrugName, req.Quantity)
		}
		if item.Urgency == "" {
			items[i].Urgency = req.Urgency
		}
	}
	return items, nil
}

func (s *Service) observe(action string) {
	if s.metrics != nil {
		s.metrics.ObserveTransition("supply_request", action)
	}
}

func (s *Service) recordAudit(ctx context.Context, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorFrom(ctx), Action: action, Entity: "pharmacy_supply_request", EntityID: entityID, Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", fmt.Errorf("supply: %w", err)))
	}
}

func actorFrom(ctx context.Context) string {
	if p, ok := shared.PrincipalFromContext(ctx); ok {
		return p.ActorID
	}
	return ""
}
