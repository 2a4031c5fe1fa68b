package prescriptions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/inventory"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

type memoryRepo struct {
	mu   sync.Mutex
	rxs  map[string]Prescription
	byNo map[string]string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rxs: make(map[string]Prescription), byNo: make(map[string]string)}
}

func (r *memoryRepo) Insert(ctx context.Context, rx Prescription) (Prescription, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := rx.PharmacyID + "/" + rx.RxNumber
	if id, ok := r.byNo[key]; ok {
		return r.rxs[id], false, nil
	}
	r.byNo[key] = rx.ID
	r.rxs[rx.ID] = rx
	return rx, true, nil
}

func (r *memoryRepo) Get(ctx context.Context, pharmacyID, rxID string) (Prescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rx, ok := r.rxs[rxID]
	if !ok || rx.PharmacyID != pharmacyID {
		return Prescription{}, shared.ErrNotFound
	}
	return rx, nil
}

func (r *memoryRepo) List(ctx context.Context, pharmacyID string, filter ListFilter) ([]Prescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Prescription
	for _, rx := range r.rxs {
		if rx.PharmacyID == pharmacyID && (filter.Status == "" || rx.Status == filter.Status) {
			out = append(out, rx)
		}
	}
	return out, nil
}

func (r *memoryRepo) CompareAndSet(ctx context.Context, rx Prescription, expected Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.rxs[rx.ID]
	if !ok || current.Status != expected {
		return false, nil
	}
	rx.Dispense = current.Dispense
	r.rxs[rx.ID] = rx
	return true, nil
}

func (r *memoryRepo) SaveDispense(ctx context.Context, rxID string, result inventory.DispenseResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rx := r.rxs[rxID]
	rx.Dispense = &result
	r.rxs[rxID] = rx
	return nil
}

type fakeDispenser struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (d *fakeDispenser) Dispense(ctx context.Context, input inventory.DispenseInput) (inventory.DispenseResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return inventory.DispenseResult{}, d.err
	}
	result := inventory.DispenseResult{RxID: input.RxID}
	for _, m := range input.Medications {
		result.Lines = append(result.Lines, inventory.DispensedLine{MedicationName: m.Name, Quantity: m.Quantity})
	}
	return result, nil
}

func receiveRx(t *testing.T, svc *Service) Prescription {
	t.Helper()
	rx, created, err := svc.Receive(context.Background(), ReceiveInput{
		PharmacyID:  "ph-1",
		RxNumber:    "RX-100",
		PatientRef:  "patient-7",
		HospitalRef: "hosp-1",
		Medications: []Medication{{Name: "Amoxicillin 500mg", Quantity: 21, Dosage: "1 tds"}},
	})
	require.NoError(t, err)
	require.True(t, created)
	return rx
}

func TestReceiveIsIdempotentPerRxNumber(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &fakeDispenser{}, nil, nil, nil)
	first := receiveRx(t, svc)
	require.Equal(t, StatusReceived, first.Status)
	require.Equal(t, PriorityRoutine, first.Priority)

	again, created, err := svc.Receive(context.Background(), ReceiveInput{
		PharmacyID:  "ph-1",
		RxNumber:    " RX-100 ",
		PatientRef:  "patient-7",
		Medications: []Medication{{Name: "Amoxicillin 500mg", Quantity: 21}},
	})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, again.ID)
	require.Len(t, repo.rxs, 1)

	other, created, err := svc.Receive(context.Background(), ReceiveInput{
		PharmacyID:  "ph-2",
		RxNumber:    "RX-100",
		PatientRef:  "patient-7",
		Medications: []Medication{{Name: "Amoxicillin 500mg", Quantity: 21}},
	})
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, first.ID, other.ID)
}

func TestReceiveValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil, nil)
	_, _, err := svc.Receive(context.Background(), ReceiveInput{PharmacyID: "ph-1", RxNumber: "RX-1", PatientRef: "p"})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, _, err = svc.Receive(context.Background(), ReceiveInput{PharmacyID: "ph-1", RxNumber: "RX-1", PatientRef: "p", Priority: "whenever", Medications: []Medication{{Name: "x", Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDispenseFromReceivedIsRejected(t *testing.T) {
	dispenser := &fakeDispenser{}
	svc := NewService(newMemoryRepo(), dispenser, nil, nil, nil)
	rx := receiveRx(t, svc)

	_, err := svc.Dispense(context.Background(), "ph-1", rx.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	var transitionErr *shared.TransitionError
	require.ErrorAs(t, err, &transitionErr)
	require.Equal(t, string(StatusReceived), transitionErr.From)
	require.Zero(t, dispenser.calls)
}

func TestFullLifecycle(t *testing.T) {
	dispenser := &fakeDispenser{}
	repo := newMemoryRepo()
	svc := NewService(repo, dispenser, nil, nil, nil)
	ctx := shared.ContextWithPrincipal(context.Background(), shared.Principal{ActorID: "u-1", PharmacyID: "ph-1", Role: shared.RolePharmacist})
	rx := receiveRx(t, svc)

	rx, err := svc.Accept(ctx, "ph-1", rx.ID)
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, rx.Status)
	require.NotNil(t, rx.AcceptedAt)
	require.Equal(t, "u-1", rx.LastActorID)

	_, err = svc.Accept(ctx, "ph-1", rx.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	rx, err = svc.MarkReady(ctx, "ph-1", rx.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReady, rx.Status)

	_, err = svc.Cancel(ctx, "ph-1", rx.ID, "patient left")
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	rx, err = svc.Dispense(ctx, "ph-1", rx.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDispensed, rx.Status)
	require.NotNil(t, rx.DispensedAt)
	require.NotNil(t, rx.Dispense)
	require.Equal(t, 1, dispenser.calls)

	stored, err := svc.Get(ctx, "ph-1", rx.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Dispense)

	_, err = svc.Dispense(ctx, "ph-1", rx.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.Equal(t, 1, dispenser.calls)
}

func TestDispenseFromProcessing(t *testing.T) {
	svc := NewService(newMemoryRepo(), &fakeDispenser{}, nil, nil, nil)
	rx := receiveRx(t, svc)
	_, err := svc.Accept(context.Background(), "ph-1", rx.ID)
	require.NoError(t, err)
	rx, err = svc.Dispense(context.Background(), "ph-1", rx.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDispensed, rx.Status)
}

func TestFailedDispenseRestoresStatus(t *testing.T) {
	stockErr := &shared.StockError{DrugID: "d1", Requested: 21, Available: 3}
	dispenser := &fakeDispenser{err: stockErr}
	repo := newMemoryRepo()
	svc := NewService(repo, dispenser, nil, nil, nil)
	rx := receiveRx(t, svc)
	_, err := svc.Accept(context.Background(), "ph-1", rx.ID)
	require.NoError(t, err)
	_, err = svc.MarkReady(context.Background(), "ph-1", rx.ID)
	require.NoError(t, err)

	_, err = svc.Dispense(context.Background(), "ph-1", rx.ID)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	stored, err := svc.Get(context.Background(), "ph-1", rx.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReady, stored.Status)
	require.Nil(t, stored.DispensedAt)

	dispenser.err = nil
	rx, err = svc.Dispense(context.Background(), "ph-1", rx.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDispensed, rx.Status)
}

func TestConcurrentDispenseRunsOnce(t *testing.T) {
	dispenser := &fakeDispenser{}
	svc := NewService(newMemoryRepo(), dispenser, nil, nil, nil)
	rx := receiveRx(t, svc)
	_, err := svc.Accept(context.Background(), "ph-1", rx.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Dispense(context.Background(), "ph-1", rx.ID)
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.True(t, errors.Is(err, shared.ErrInvalidTransition) || errors.Is(err, shared.ErrConcurrentModification), err)
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, dispenser.calls)
}

func TestCancelStoresReason(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil, nil)
	rx := receiveRx(t, svc)
	rx, err := svc.Cancel(context.Background(), "ph-1", rx.ID, " duplicate order ")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, rx.Status)
	require.Equal(t, "duplicate order", rx.CancelReason)
	require.NotNil(t, rx.CancelledAt)

	_, err = svc.Advance(context.Background(), AdvanceInput{PharmacyID: "ph-1", RxID: rx.ID, Action: "teleport"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from   Status
		action Action
		to     Status
		ok     bool
	}{
		{StatusReceived, ActionAccept, StatusProcessing, true},
		{StatusReceived, ActionReady, "", false},
		{StatusReceived, ActionDispense, "", false},
		{StatusReceived, ActionCancel, StatusCancelled, true},
		{StatusProcessing, ActionReady, StatusReady, true},
		{StatusProcessing, ActionDispense, StatusDispensed, true},
		{StatusProcessing, ActionCancel, StatusCancelled, true},
		{StatusReady, ActionDispense, StatusDispensed, true},
		{StatusReady, ActionCancel, "", false},
		{StatusDispensed, ActionCancel, "", false},
		{StatusCancelled, ActionAccept, "", false},
	}
	for _, tc := range cases {
		next, ok := Next(tc.from, tc.action)
		require.Equal(t, tc.ok, ok, "%s/%s", tc.from, tc.action)
		require.Equal(t, tc.to, next, "%s/%s", tc.from, tc.action)
	}
}
