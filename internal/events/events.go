// Package events defines the booking domain events and delivers them from the
// transactional outbox to a message broker.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/resource-scheduler/internal/persistence"
)

// Event type names used as outbox types and AMQP message types.
const (
	TypeBookingCreated   = "booking.created"
	TypeBookingCancelled = "booking.cancelled"
)

// Event is a domain event that can be written to the outbox.
type Event interface {
	EventType() string
	AggregateID() string
}

// BookingCreated is raised after a booking has been persisted.
type BookingCreated struct {
	BookingID     string   `json:"booking_id"`
	EnvironmentID string   `json:"environment_id"`
	Date          string   `json:"date"`
	Start         string   `json:"start"`
	End           string   `json:"end"`
	CreatorID     string   `json:"creator_id"`
	AudienceIDs   []string `json:"audience_ids,omitempty"`
	UserIDs       []string `json:"user_ids,omitempty"`
}

// EventType implements Event.
func (BookingCreated) EventType() string { return TypeBookingCreated }

// AggregateID implements Event.
func (e BookingCreated) AggregateID() string { return e.BookingID }

// BookingCancelled is raised after a booking has been cancelled.
type BookingCancelled struct {
	BookingID   string `json:"booking_id"`
	Reason      string `json:"reason"`
	CancelledBy string `json:"cancelled_by"`
}

// EventType implements Event.
func (BookingCancelled) EventType() string { return TypeBookingCancelled }

// AggregateID implements Event.
func (e BookingCancelled) AggregateID() string { return e.BookingID }

// NewOutboxEvent encodes event as an outbox row.
func NewOutboxEvent(id string, occurredAt time.Time, event Event) (persistence.OutboxEvent, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return persistence.OutboxEvent{}, fmt.Errorf("events: encode %s: %w", event.EventType(), err)
	}
	return persistence.OutboxEvent{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Payload:     payload,
		CreatedAt:   occurredAt,
	}, nil
}

// Message is the broker-facing envelope of an outbox event.
type Message struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload"`
}

// MessageFromOutbox builds the envelope for a stored event.
func MessageFromOutbox(event persistence.OutboxEvent) Message {
	return Message{
		ID:          event.ID,
		Type:        event.Type,
		AggregateID: event.AggregateID,
		OccurredAt:  event.CreatedAt.UTC(),
		Payload:     json.RawMessage(event.Payload),
	}
}
