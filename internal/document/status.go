package document

import "fmt"

// Status is the lifecycle state of an extraction.
type Status string

const (
	StatusPending            Status = "PENDING"
	StatusProcessing         Status = "PROCESSING"
	StatusCompleted          Status = "COMPLETED"
	StatusValidationRequired Status = "VALIDATION_REQUIRED"
	StatusFailed             Status = "FAILED"
	StatusValidated          Status = "VALIDATED"
)

// transitions lists the allowed successors of each status. A scored status may be
// re-scored while continuation pages merge in.
var transitions = map[Status][]Status{
	StatusPending:            {StatusProcessing},
	StatusProcessing:         {StatusProcessing, StatusCompleted, StatusValidationRequired, StatusFailed},
	StatusCompleted:          {StatusCompleted, StatusValidationRequired, StatusValidated},
	StatusValidationRequired: {StatusValidationRequired, StatusCompleted, StatusValidated},
	StatusFailed:             {},
	StatusValidated:          {},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition returns to, or an error when the move is not allowed.
func Transition(from, to Status) (Status, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("invalid status transition %s -> %s", from, to)
	}
	return to, nil
}

// Final reports whether no further processing will change s.
func (s Status) Final() bool {
	return s == StatusFailed || s == StatusValidated
}
