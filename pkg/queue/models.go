package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the type of event in the queue
type EventType string

const (
	// EventTypeInteraction is a completed entity interaction observed by the
	// surrounding service
	EventTypeInteraction EventType = "entity_interaction"
)

// InteractionEvent is one observed "entity X was completed by character C
// in session S" fact, queued for serialized per-session processing
type InteractionEvent struct {
	RequestID   string    `json:"request_id"`
	Type        EventType `json:"type"`
	SessionID   uuid.UUID `json:"session_id"`
	EntityID    string    `json:"entity_id"`
	CharacterID string    `json:"character_id,omitempty"`
	Success     bool      `json:"success"`
	Quality     float64   `json:"quality,omitempty"` // success quality in [0,1], if known at enqueue time

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// MarshalJSON serializes the event to JSON for Redis storage
func (e *InteractionEvent) MarshalJSON() ([]byte, error) {
	type Alias InteractionEvent
	return json.Marshal(&struct {
		SessionID string `json:"session_id"`
		*Alias
	}{
		SessionID: e.SessionID.String(),
		Alias:     (*Alias)(e),
	})
}

// UnmarshalJSON deserializes the event from JSON in Redis
func (e *InteractionEvent) UnmarshalJSON(data []byte) error {
	type Alias InteractionEvent
	aux := &struct {
		SessionID string `json:"session_id"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	sessionID, err := uuid.Parse(aux.SessionID)
	if err != nil {
		return err
	}

	e.SessionID = sessionID
	return nil
}

// ToJSON converts the event to JSON bytes for Redis
func (e *InteractionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an event from JSON bytes
func FromJSON(data []byte) (*InteractionEvent, error) {
	var e InteractionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
