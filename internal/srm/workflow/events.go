package workflow

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies an outbound evaluation event.
type EventType string

const (
	EventSubmitted         EventType = "EvaluationSubmitted"
	EventDivergenceFlagged EventType = "DivergenceFlagged"
	EventOverdueDetected   EventType = "OverdueDetected"
	EventFinalized         EventType = "EvaluationFinalized"
	EventReturned          EventType = "EvaluationReturned"
)

// Event is consumed by notification and audit collaborators.
type Event struct {
	ID           string                 `json:"id"`
	Type         EventType              `json:"type"`
	EvaluationID string                 `json:"evaluation_id"`
	Timestamp    time.Time              `json:"timestamp"`
	Payload      map[string]interface{} `json:"payload"`
}

func newEvent(t EventType, evaluationID string, at time.Time, payload map[string]interface{}) Event {
	return Event{
		ID:           uuid.New().String(),
		Type:         t,
		EvaluationID: evaluationID,
		Timestamp:    at,
		Payload:      payload,
	}
}

// Transition is the outcome of applying an operation to a record.
type Transition struct {
	Events []Event
	// Noop is set when the operation was a repeat with no effect.
	Noop bool
}
