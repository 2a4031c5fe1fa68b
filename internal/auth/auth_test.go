package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

func TestIssueAndVerify(t *testing.T) {
	m, err := NewManager("test-secret", time.Hour)
	require.NoError(t, err)
	want := shared.Principal{ActorID: "u-1", PharmacyID: "ph-1", Role: shared.RolePharmacist}

	token, expiresAt, err := m.Issue(want)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	got, err := m.Verify(token)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestVerifyRejects(t *testing.T) {
	m, err := NewManager("test-secret", time.Hour)
	require.NoError(t, err)
	other, err := NewManager("other-secret", time.Hour)
	require.NoError(t, err)
	p := shared.Principal{ActorID: "u-1", PharmacyID: "ph-1", Role: shared.RoleCashier}

	forged, _, err := other.Issue(p)
	require.NoError(t, err)
	_, err = m.Verify(forged)
	require.ErrorIs(t, err, ErrInvalidToken)

	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := m.Issue(p)
	require.NoError(t, err)
	m.now = time.Now
	_, err = m.Verify(expired)
	require.ErrorIs(t, err, ErrInvalidToken)

	none := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, pharmacyClaims{PharmacyID: "ph-1", Role: "owner"})
	unsigned, err := none.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Verify(unsigned)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = m.Issue(shared.Principal{ActorID: "u-1", PharmacyID: "ph-1", Role: "janitor"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = NewManager(" ", time.Hour)
	require.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	m, err := NewManager("test-secret", time.Hour)
	require.NoError(t, err)
	var seen shared.Principal
	h := Middleware(m, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = shared.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/drugs", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/drugs", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token, _, err := m.Issue(shared.Principal{ActorID: "u-9", PharmacyID: "ph-3", Role: shared.RoleOwner})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/drugs", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "ph-3", seen.PharmacyID)
	require.Equal(t, shared.RoleOwner, seen.Role)
}
