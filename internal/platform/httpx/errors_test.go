package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.ErrDrugNotFound, http.StatusNotFound},
		{fmt.Errorf("inventory: qty: %w", shared.ErrValidation), http.StatusBadRequest},
		{&shared.StockError{DrugID: "d", Requested: 2, Available: 1}, http.StatusUnprocessableEntity},
		{shared.ErrConcurrentModification, http.StatusConflict},
		{shared.ErrUnauthorizedParty, http.StatusForbidden},
		{shared.ErrUnauthenticated, http.StatusUnauthorized},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
	}
}

func TestRespondErrorIncludesCurrentState(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, &shared.TransitionError{Entity: "supply_request", ID: "r1", From: "rejected", Action: "fulfill"})
	require.Equal(t, http.StatusConflict, rec.Code)

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "rejected", body.State)
}
