package poker

import "fmt"

// StateError is returned when an operation is requested in a session status
// that does not allow it. Handlers render it as an explanatory no-op.
type StateError struct {
	Op     string
	Status Status
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s not possible while %s: %s", e.Op, e.Status, e.Reason)
}

func stateErr(op string, status Status, reason string) *StateError {
	return &StateError{Op: op, Status: status, Reason: reason}
}
