package supply

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

type memoryRepo struct {
	mu       sync.Mutex
	requests map[string]SupplyRequest
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{requests: make(map[string]SupplyRequest)}
}

func (r *memoryRepo) Insert(ctx context.Context, req SupplyRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[req.ID] = req
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, requestID string) (SupplyRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[requestID]
	if !ok {
		return SupplyRequest{}, shared.ErrNotFound
	}
	return req, nil
}

func (r *memoryRepo) List(ctx context.Context, pharmacyID string, filter ListFilter) ([]SupplyRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []SupplyRequest
	for _, req := range r.requests {
		party := req.RequestingPharmacyID
		if filter.Role == RoleTarget {
			party = req.TargetPharmacyID
		}
		if party == pharmacyID && (filter.Status == "" || filter.Status == req.Status) {
			out = append(out, req)
		}
	}
	return out, nil
}

func (r *memoryRepo) CompareAndSet(ctx context.Context, req SupplyRequest, expected Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.requests[req.ID]
	if !ok || current.Status != expected {
		return false, nil
	}
	r.requests[req.ID] = req
	return true, nil
}

type countingMetrics struct {
	mu    sync.Mutex
	count map[string]int
}

func (m *countingMetrics) ObserveTransition(entity, action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == nil {
		m.count = make(map[string]int)
	}
	m.count[entity+":"+action]++
}

func newRequest(t *testing.T, svc *Service) SupplyRequest {
	t.Helper()
	req, err := svc.Create(context.Background(), CreateInput{
		RequestingPharmacyID: "ph-a",
		TargetPharmacyID:     "ph-b",
		Items: []Item{
			{DrugName: "Insulin Glargine", Quantity: 10, Urgency: UrgencyEmergency},
			{DrugName: "Metformin", Quantity: 100},
		},
	})
	require.NoError(t, err)
	return req
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	_, err := svc.Create(context.Background(), CreateInput{RequestingPharmacyID: "ph-a", TargetPharmacyID: "ph-a", Items: []Item{{DrugName: "x", Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Create(context.Background(), CreateInput{RequestingPharmacyID: "ph-a", TargetPharmacyID: "ph-b"})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Create(context.Background(), CreateInput{RequestingPharmacyID: "ph-a", TargetPharmacyID: "ph-b", Items: []Item{{DrugName: "x", Quantity: 1, Urgency: "someday"}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	req := newRequest(t, svc)
	require.Equal(t, StatusPending, req.Status)
	require.Equal(t, UrgencyRoutine, req.Items[1].Urgency)
}

func TestFulfillRequiresAcceptance(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	pending := newRequest(t, svc)

	_, err := svc.Fulfill(context.Background(), FulfillInput{PharmacyID: "ph-a", RequestID: pending.ID, DeliveryMethod: "courier"})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	rejected := newRequest(t, svc)
	_, err = svc.Respond(context.Background(), RespondInput{PharmacyID: "ph-b", RequestID: rejected.ID, Decision: StatusRejected, Reason: "out of stock"})
	require.NoError(t, err)
	_, err = svc.Fulfill(context.Background(), FulfillInput{PharmacyID: "ph-b", RequestID: rejected.ID, DeliveryMethod: "courier"})
	var transitionErr *shared.TransitionError
	require.ErrorAs(t, err, &transitionErr)
	require.Equal(t, string(StatusRejected), transitionErr.From)
}

func TestAcceptThenFulfill(t *testing.T) {
	metrics := &countingMetrics{}
	svc := NewService(newMemoryRepo(), nil, metrics, nil)
	req := newRequest(t, svc)

	accepted, err := svc.Respond(context.Background(), RespondInput{PharmacyID: "ph-b", RequestID: req.ID, Decision: StatusAccepted})
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, accepted.Status)
	require.Equal(t, req.Items, accepted.AvailableItems)
	require.NotNil(t, accepted.RespondedAt)

	fulfilled, err := svc.Fulfill(context.Background(), FulfillInput{PharmacyID: "ph-a", RequestID: req.ID, DeliveryMethod: "pickup", Notes: "collected by driver"})
	require.NoError(t, err)
	require.Equal(t, StatusFulfilled, fulfilled.Status)
	require.Equal(t, "pickup", fulfilled.DeliveryMethod)

	_, err = svc.Fulfill(context.Background(), FulfillInput{PharmacyID: "ph-b", RequestID: req.ID, DeliveryMethod: "pickup"})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.Equal(t, 1, metrics.count["supply_request:fulfill"])
}

func TestPartialAcceptance(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	req := newRequest(t, svc)
	ctx := context.Background()

	_, err := svc.Respond(ctx, RespondInput{PharmacyID: "ph-b", RequestID: req.ID, Decision: StatusPartiallyAccepted})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Respond(ctx, RespondInput{PharmacyID: "ph-b", RequestID: req.ID, Decision: StatusPartiallyAccepted,
		AvailableItems: []Item{{DrugName: "Aspirin", Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Respond(ctx, RespondInput{PharmacyID: "ph-b", RequestID: req.ID, Decision: StatusPartiallyAccepted,
		AvailableItems: []Item{{DrugName: "metformin", Quantity: 101}}})
	require.ErrorIs(t, err, shared.ErrValidation)

	partial, err := svc.Respond(ctx, RespondInput{PharmacyID: "ph-b", RequestID: req.ID, Decision: StatusPartiallyAccepted,
		AvailableItems: []Item{{DrugName: "METFORMIN", Quantity: 40}}})
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyAccepted, partial.Status)
	require.Len(t, partial.AvailableItems, 1)
	require.Equal(t, UrgencyRoutine, partial.AvailableItems[0].Urgency)

	_, err = svc.Respond(ctx, RespondInput{PharmacyID: "ph-b", RequestID: req.ID, Decision: StatusRejected})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	fulfilled, err := svc.Fulfill(ctx, FulfillInput{PharmacyID: "ph-b", RequestID: req.ID, DeliveryMethod: "courier"})
	require.NoError(t, err)
	require.Equal(t, StatusFulfilled, fulfilled.Status)
}

func TestRolesAreEnforced(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	req := newRequest(t, svc)
	ctx := context.Background()

	_, err := svc.Respond(ctx, RespondInput{PharmacyID: "ph-a", RequestID: req.ID, Decision: StatusAccepted})
	require.ErrorIs(t, err, shared.ErrUnauthorizedParty)

	_, err = svc.Respond(ctx, RespondInput{PharmacyID: "ph-c", RequestID: req.ID, Decision: StatusAccepted})
	require.ErrorIs(t, err, shared.ErrUnauthorizedParty)

	_, err = svc.Cancel(ctx, "ph-b", req.ID, "")
	require.ErrorIs(t, err, shared.ErrUnauthorizedParty)

	_, err = svc.Get(ctx, "ph-c", req.ID)
	require.ErrorIs(t, err, shared.ErrUnauthorizedParty)

	got, err := svc.Get(ctx, "ph-b", req.ID)
	require.NoError(t, err)
	require.Equal(t, req.ID, got.ID)

	cancelled, err := svc.Cancel(ctx, "ph-a", req.ID, "found stock elsewhere")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	_, err = svc.Respond(ctx, RespondInput{PharmacyID: "ph-b", RequestID: req.ID, Decision: StatusAccepted})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestAuthorize(t *testing.T) {
	req := SupplyRequest{ID: "r1", RequestingPharmacyID: "ph-a", TargetPharmacyID: "ph-b"}

	role, err := Authorize(req, "ph-a", ActionFulfill)
	require.NoError(t, err)
	require.Equal(t, RoleRequester, role)

	role, err = Authorize(req, "ph-b", ActionRespond)
	require.NoError(t, err)
	require.Equal(t, RoleTarget, role)

	role, err = Authorize(req, "ph-a", ActionRespond)
	require.ErrorIs(t, err, shared.ErrUnauthorizedParty)
	require.Equal(t, RoleRequester, role)

	_, err = Authorize(req, "", ActionView)
	require.ErrorIs(t, err, shared.ErrUnauthorizedParty)
}

func TestListByRole(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	newRequest(t, svc)
	newRequest(t, svc)

	outgoing, err := svc.List(context.Background(), "ph-a", ListFilter{})
	require.NoError(t, err)
	require.Len(t, outgoing, 2)

	incoming, err := svc.List(context.Background(), "ph-a", ListFilter{Role: RoleTarget})
	require.NoError(t, err)
	require.Empty(t, incoming)

	incoming, err = svc.List(context.Background(), "ph-b", ListFilter{Role: RoleTarget, Status: StatusPending})
	require.NoError(t, err)
	require.Len(t, incoming, 2)

	_, err = svc.List(context.Background(), "ph-b", ListFilter{Role: "courier"})
	require.ErrorIs(t, err, shared.ErrValidation)
}
