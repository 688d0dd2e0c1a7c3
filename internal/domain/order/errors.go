package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for order operations.
var (
	ErrNotFound               = errors.New("order not found")
	ErrInvalidOrder           = errors.New("invalid order")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrStateConflict          = errors.New("order state changed concurrently")
	ErrAlreadyRated           = errors.New("order already rated")
	ErrNotRatable             = errors.New("only delivered orders can be rated")
	ErrInvalidQuery           = errors.New("invalid listing query")
)

// InvalidOrderError rejects a whole basket because of one line item.
type InvalidOrderError struct {
	FoodID string
	Reason string
}

func (e *InvalidOrderError) Error() string {
	if e.FoodID == "" {
		return fmt.Sprintf("invalid order: %s", e.Reason)
	}
	return fmt.Sprintf("invalid order: food %s %s", e.FoodID, e.Reason)
}

func (e *InvalidOrderError) Unwrap() error { return ErrInvalidOrder }

// StateTransitionError indicates To is not reachable from From.
type StateTransitionError struct {
	From State
	To   State
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %q to %q", e.From, e.To)
}

func (e *StateTransitionError) Unwrap() error { return ErrInvalidStateTransition }
