package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	EventAppointmentBooked   = "appointment_booked"
	EventAppointmentCanceled = "appointment_canceled"
	EventProposalMade        = "proposal_made"
	EventProposalExpired     = "proposal_expired"
	EventContactNamed        = "contact_named"
)

// AppointmentEventPayload is the appointment snapshot handed to subscribers.
type AppointmentEventPayload struct {
	AppointmentID    int64     `json:"appointment_id"`
	TenantID         int64     `json:"tenant_id"`
	ProfessionalID   int64     `json:"professional_id"`
	ProfessionalName string    `json:"professional_name"`
	ContactID        int64     `json:"contact_id"`
	ContactName      string    `json:"contact_name"`
	ContactPhone     string    `json:"contact_phone"`
	ScheduledAt      time.Time `json:"scheduled_at"`
	Notes            string    `json:"notes,omitempty"`
}

// ProposalEventPayload describes a slot offered to (or lapsed for) a contact.
type ProposalEventPayload struct {
	TenantID         int64     `json:"tenant_id"`
	Phone            string    `json:"phone"`
	ProfessionalID   int64     `json:"professional_id"`
	ProfessionalName string    `json:"professional_name"`
	Slot             time.Time `json:"slot"`
	OffTurn          bool      `json:"off_turn,omitempty"`
}

// ContactEventPayload is published when a contact's name is learned.
type ContactEventPayload struct {
	TenantID  int64  `json:"tenant_id"`
	ContactID int64  `json:"contact_id"`
	Phone     string `json:"phone"`
	Name      string `json:"name"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	seq         int64
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. Every handler runs even if
// an earlier one fails; their errors are joined.
func (b *EventBus) Publish(event *Event) error {
	b.mu.Lock()
	b.seq++
	event.ID = b.seq
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.Unlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	ev, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&ev)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
