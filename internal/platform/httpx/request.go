package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeValid decodes the JSON body and runs struct validation tags on it. Both
// failures are reported as shared.ErrValidation.
func DecodeValid(r *http.Request, target any) error {
	if err := DecodeJSON(r, target); err != nil {
		return shared.Validationf("invalid body: %v", err)
	}
	if err := validate.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return shared.Validationf("%s", strings.Join(msgs, "; "))
		}
		return shared.Validationf("%v", err)
	}
	return nil
}

// Caller returns the verified principal or writes 401.
func Caller(w http.ResponseWriter, r *http.Request) (shared.Principal, bool) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok || p.PharmacyID == "" {
		RespondError(w, shared.ErrUnauthenticated)
		return shared.Principal{}, false
	}
	return p, true
}

// Writer returns the verified principal when its role may mutate state, else writes 401/403.
func Writer(w http.ResponseWriter, r *http.Request) (shared.Principal, bool) {
	p, ok := Caller(w, r)
	if !ok {
		return p, false
	}
	if !p.CanWrite() {
		RespondError(w, fmt.Errorf("role %s is read-only: %w", p.Role, shared.ErrUnauthorizedParty))
		return shared.Principal{}, false
	}
	return p, true
}

// PageFromQuery reads limit/offset query parameters.
func PageFromQuery(r *http.Request) shared.Page {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return shared.Page{Limit: limit, Offset: offset}.Normalize()
}
