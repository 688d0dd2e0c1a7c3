package order

import "github.com/go-faster/errors"

// State is the lifecycle state of an order.
//
//	preparing ──> delivering ──┬──> delivered
//	                           └──> canceled
//
// delivered and canceled are terminal.
type State string

const (
	StatePreparing  State = "preparing"
	StateDelivering State = "delivering"
	StateDelivered  State = "delivered"
	StateCanceled   State = "canceled"
)

// States lists every lifecycle state in order.
var States = []State{StatePreparing, StateDelivering, StateDelivered, StateCanceled}

var transitions = map[State][]State{
	StatePreparing:  {StateDelivering},
	StateDelivering: {StateDelivered, StateCanceled},
	StateDelivered:  nil,
	StateCanceled:   nil,
}

// ParseState converts s into a State.
func ParseState(s string) (State, error) {
	st := State(s)
	if !st.Valid() {
		return "", errors.Errorf("unknown order state %q", s)
	}
	return st, nil
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// AllowedNextStates returns the states reachable from s in one step. Unknown
// states have none.
func AllowedNextStates(s State) []State {
	next := transitions[s]
	out := make([]State, len(next))
	copy(out, next)
	return out
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s State) String() string { return string(s) }
