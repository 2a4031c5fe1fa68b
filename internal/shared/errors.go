package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates invalid caller input.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate indicates a uniqueness conflict.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrUnauthenticated indicates a missing or invalid caller identity.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrDrugNotFound indicates an unknown or inactive drug was referenced.
	ErrDrugNotFound = errors.New("drug not found")
	// ErrInsufficientStock indicates batch quantities cannot cover a request.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConcurrentModification indicates the allocation retry budget ran out.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrInvalidTransition indicates a workflow action not allowed from the current state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrUnauthorizedParty indicates the caller may not act on the entity.
	ErrUnauthorizedParty = errors.New("unauthorized party")
)

// StockError reports a shortfall for one drug.
type StockError struct {
	DrugID    string
	Requested int64
	Available int64
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for drug %s: requested %d, available %d", e.DrugID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// TransitionError reports a rejected workflow action together with the state it was attempted from.
type TransitionError struct {
	Entity string
	ID     string
	From   string
	Action string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s: cannot %s from %s", e.Entity, e.ID, e.Action, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// Validationf builds an ErrValidation-wrapping error with a package prefix.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}
