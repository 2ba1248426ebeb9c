package outbox

import (
	"encoding/json"
	"time"
)

// Event is a domain event written to outbox_events in the same transaction
// as the change it describes. The Kafka topic equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Lifecycle and billing event types.
const (
	PracticeDeleted         = "practice.deleted.v1"
	PracticeSuspended       = "practice.suspended.v1"
	PracticeUnsuspended     = "practice.unsuspended.v1"
	PracticeOverrideChanged = "practice.plan_override.v1"
	PracticePlanChanged     = "practice.plan_changed.v1"
)

const AggregatePractice = "practice"

// NewPracticeEvent marshals payload and stamps it with the practice id and
// occurrence time.
func NewPracticeEvent(eventType, practiceID string, at time.Time, payload map[string]any) (Event, error) {
	body := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		body[k] = v
	}
	body["practice_id"] = practiceID
	body["occurred_at"] = at.UTC().Format(time.RFC3339Nano)
	raw, err := json.Marshal(body)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: AggregatePractice,
		AggregateID:   practiceID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}

// Record is a stored outbox row awaiting publication.
type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}
