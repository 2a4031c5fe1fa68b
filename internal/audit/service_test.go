package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

type storedEvent struct {
	pharmacy string
	Event
}

type memoryRepo struct {
	events  []storedEvent
	queries []Query
}

func (m *memoryRepo) Events(_ context.Context, q Query) ([]Event, error) {
	m.queries = append(m.queries, q)
	var out []Event
	for _, e := range m.events {
		if e.pharmacy != q.PharmacyID || e.At.Before(q.From) || !e.At.Before(q.Until) {
			continue
		}
		if (q.Actor != "" && e.ActorID != q.Actor) || (q.Entity != "" && e.Entity != q.Entity) || (q.Action != "" && e.Action != q.Action) {
			continue
		}
		out = append(out, e.Event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if q.Limit > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		out = out[q.Offset:]
		if len(out) > q.Limit {
			out = out[:q.Limit]
		}
	}
	return out, nil
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func seeded() *memoryRepo {
	repo := &memoryRepo{}
	for i := 0; i < 5; i++ {
		repo.events = append(repo.events, storedEvent{pharmacy: "ph-1", Event: Event{
			ID: int64(i + 1), At: at("2025-03-10T08:00:00Z").Add(time.Duration(i) * time.Hour),
			ActorID: "u-1", Action: "SALE_CREATE", Entity: "pharmacy_sale", EntityID: "s",
		}})
	}
	repo.events = append(repo.events,
		storedEvent{pharmacy: "ph-1", Event: Event{ID: 10, At: at("2025-03-11T23:30:00Z"), ActorID: "u-2", Action: "RX_DISPENSE", Entity: "pharmacy_prescription", EntityID: "rx"}},
		storedEvent{pharmacy: "ph-2", Event: Event{ID: 11, At: at("2025-03-10T09:00:00Z"), ActorID: "u-9", Action: "SALE_CREATE", Entity: "pharmacy_sale", EntityID: "other"}},
	)
	return repo
}

func TestTimelinePagesNewestFirst(t *testing.T) {
	svc := NewService(seeded())
	filters := TimelineFilters{PharmacyID: "ph-1", From: at("2025-03-10T00:00:00Z"), To: at("2025-03-11T00:00:00Z"), PageSize: 4}

	first, err := svc.Timeline(context.Background(), filters)
	require.NoError(t, err)
	require.Len(t, first.Events, 4)
	require.EqualValues(t, 10, first.Events[0].ID, "the whole To day is included")
	require.True(t, first.Paging.HasNext)
	require.Equal(t, 2, first.Paging.NextPage)

	filters.Page = 2
	second, err := svc.Timeline(context.Background(), filters)
	require.NoError(t, err)
	require.Len(t, second.Events, 2)
	require.False(t, second.Paging.HasNext)
	require.Equal(t, 1, second.Paging.PrevPage)

	filters.Page, filters.Action = 1, "RX_DISPENSE"
	only, err := svc.Timeline(context.Background(), filters)
	require.NoError(t, err)
	require.Len(t, only.Events, 1)
}

func TestTimelineValidatesRange(t *testing.T) {
	svc := NewService(seeded())
	_, err := svc.Timeline(context.Background(), TimelineFilters{PharmacyID: "ph-1", From: at("2025-03-12T00:00:00Z"), To: at("2025-03-10T00:00:00Z")})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Timeline(context.Background(), TimelineFilters{PharmacyID: "ph-1", From: at("2024-01-01T00:00:00Z"), To: at("2025-03-10T00:00:00Z")})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Timeline(context.Background(), TimelineFilters{From: at("2025-03-01T00:00:00Z"), To: at("2025-03-10T00:00:00Z")})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestHandlerScopesToCaller(t *testing.T) {
	repo := seeded()
	h := NewHandler(nil, NewService(repo))
	h.now = func() time.Time { return at("2025-03-11T15:00:00Z") }

	req := httptest.NewRequest(http.MethodGet, "/audit-events?page_size=50", nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{ActorID: "a", PharmacyID: "ph-2", Role: shared.RoleAuditor}))
	rec := httptest.NewRecorder()
	h.handleTimeline(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Events, 1)
	require.Equal(t, "other", body.Events[0].EntityID)
	require.Equal(t, at("2025-03-04T00:00:00Z"), repo.queries[0].From)

	req = httptest.NewRequest(http.MethodGet, "/audit-events?from=yesterday", nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{ActorID: "a", PharmacyID: "ph-2", Role: shared.RoleAuditor}))
	rec = httptest.NewRecorder()
	h.handleTimeline(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportWritesCSV(t *testing.T) {
	h := NewHandler(nil, NewService(seeded()))
	req := httptest.NewRequest(http.MethodGet, "/audit-events/export.csv?from=2025-03-10&to=2025-03-11", nil)
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), shared.Principal{ActorID: "a", PharmacyID: "ph-1", Role: shared.RoleOwner}))
	rec := httptest.NewRecorder()
	h.handleExport(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	records, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 7)
	require.Equal(t, "action", records[0][2])
}
