package shared

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types.
const (
	EventAssessmentSubmitted    EventType = "assessment.submitted"
	EventAssessmentAcknowledged EventType = "assessment.acknowledged"
	EventAssessmentDeleted      EventType = "assessment.deleted"
)

// Event is the base interface for all domain events.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	// AggregateID is the assessment id for assessment events.
	AggregateID() string
	// ResidentKey is the resident whose progress the event affects.
	ResidentKey() ResidentID
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() string   { return e.AggregateId }

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Assessment Events
// ═══════════════════════════════════════════════════════════════════════════

// AssessmentSubmittedEvent is emitted after a faculty submission is stored.
type AssessmentSubmittedEvent struct {
	BaseEvent
	ResidentID ResidentID       `json:"resident_id"`
	AssessorID FacultyID        `json:"assessor_id"`
	EPAID      EPAID            `json:"epa_id"`
	Level      EntrustmentLevel `json:"entrustment_level"`
}

func (e AssessmentSubmittedEvent) ResidentKey() ResidentID { return e.ResidentID }

func (e AssessmentSubmittedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"resident_id":       e.ResidentID.String(),
		"assessor_id":       e.AssessorID.String(),
		"epa_id":            int(e.EPAID),
		"entrustment_level": int(e.Level),
	}
}

func NewAssessmentSubmittedEvent(id AssessmentID, resident ResidentID, assessor FacultyID, epa EPAID, level EntrustmentLevel, at time.Time) AssessmentSubmittedEvent {
	return AssessmentSubmittedEvent{
		BaseEvent:  NewBaseEvent(EventAssessmentSubmitted, id.String(), at),
		ResidentID: resident,
		AssessorID: assessor,
		EPAID:      epa,
		Level:      level,
	}
}

// AssessmentAcknowledgedEvent is emitted on every successful acknowledge.
type AssessmentAcknowledgedEvent struct {
	BaseEvent
	ResidentID     ResidentID `json:"resident_id"`
	AcknowledgedAt time.Time  `json:"acknowledged_at"`
}

func (e AssessmentAcknowledgedEvent) ResidentKey() ResidentID { return e.ResidentID }

func (e AssessmentAcknowledgedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"resident_id":     e.ResidentID.String(),
		"acknowledged_at": e.AcknowledgedAt.UTC().Format(time.RFC3339Nano),
	}
}

func NewAssessmentAcknowledgedEvent(id AssessmentID, resident ResidentID, at time.Time) AssessmentAcknowledgedEvent {
	return AssessmentAcknowledgedEvent{
		BaseEvent:      NewBaseEvent(EventAssessmentAcknowledged, id.String(), at),
		ResidentID:     resident,
		AcknowledgedAt: at,
	}
}

// AssessmentDeletedEvent is emitted after a soft delete.
type AssessmentDeletedEvent struct {
	BaseEvent
	ResidentID ResidentID `json:"resident_id"`
	DeletedBy  string     `json:"deleted_by,omitempty"`
}

func (e AssessmentDeletedEvent) ResidentKey() ResidentID { return e.ResidentID }

func (e AssessmentDeletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"resident_id": e.ResidentID.String(),
		"deleted_by":  e.DeletedBy,
	}
}

func NewAssessmentDeletedEvent(id AssessmentID, resident ResidentID, deletedBy string, at time.Time) AssessmentDeletedEvent {
	return AssessmentDeletedEvent{
		BaseEvent:  NewBaseEvent(EventAssessmentDeleted, id.String(), at),
		ResidentID: resident,
		DeletedBy:  deletedBy,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Transport
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	ResidentID    ResidentID      `json:"resident_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope serialises event into an envelope with a fresh id.
func NewEnvelope(event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, fmt.Errorf("marshal %s payload: %w", event.EventType(), err)
	}
	env := EventEnvelope{
		ID:          uuid.NewString(),
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		ResidentID:  event.ResidentKey(),
		Timestamp:   event.OccurredAt().UTC(),
		Version:     1,
		Payload:     payload,
	}
	if b, ok := event.(interface{ Base() BaseEvent }); ok {
		env.CorrelationID = b.Base().CorrelationID
		env.Version = b.Base().Version
	}
	return env, nil
}

// Base exposes the embedded BaseEvent.
func (e BaseEvent) Base() BaseEvent { return e }

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}

// SyncSubscriber is implemented by buses that can run a handler on the
// publishing goroutine, so its effect is visible once Publish returns.
type SyncSubscriber interface {
	SubscribeSync(eventType EventType, handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
