package supply

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

func newTestRouter(svc *Service) chi.Router {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if ph := req.Header.Get("X-Test-Pharmacy"); ph != "" {
				ctx := shared.ContextWithPrincipal(req.Context(), shared.Principal{ActorID: "u-" + ph, PharmacyID: ph, Role: shared.RolePharmacist})
				req = req.WithContext(ctx)
			}
			next.ServeHTTP(w, req)
		})
	})
	NewHandler(nil, svc).MountRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, pharmacy, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if pharmacy != "" {
		req.Header.Set("X-Test-Pharmacy", pharmacy)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerWorkflow(t *testing.T) {
	router := newTestRouter(NewService(newMemoryRepo(), nil, nil, nil))

	rec := do(t, router, http.MethodPost, "/supply-requests", "", `{"target_pharmacy_id":"ph-b","items":[{"drug_name":"Metformin","quantity":5}]}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, router, http.MethodPost, "/supply-requests", "ph-a", `{"target_pharmacy_id":"ph-b","items":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/supply-requests", "ph-a", `{"target_pharmacy_id":"ph-b","items":[{"drug_name":"Metformin","quantity":5}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created SupplyRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "ph-a", created.RequestingPharmacyID)

	rec = do(t, router, http.MethodPost, "/supply-requests/"+created.ID+"/fulfill", "ph-a", `{"delivery_method":"courier"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, string(StatusPending), problem.State)

	rec = do(t, router, http.MethodPost, "/supply-requests/"+created.ID+"/respond", "ph-a", `{"decision":"accepted"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, router, http.MethodPost, "/supply-requests/"+created.ID+"/respond", "ph-b", `{"decision":"accepted"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPost, "/supply-requests/"+created.ID+"/fulfill", "ph-b", `{"delivery_method":"courier"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/supply-requests/"+created.ID, "ph-c", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, router, http.MethodGet, "/supply-requests?role=target", "ph-b", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []SupplyRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	require.Equal(t, StatusFulfilled, list[0].Status)
}
