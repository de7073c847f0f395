package unlock

import (
	"time"

	"github.com/google/uuid"
)

// Event is the append-only record of one successful unlock execution. A
// condition with N targets produces exactly one event listing all N new
// entities. Past events are never rewritten except the NotificationSent
// flag, which keeps the log trivially replayable.
type Event struct {
	ID               uuid.UUID `json:"id"`
	ConditionID      uuid.UUID `json:"condition_id"`
	SessionID        uuid.UUID `json:"session_id"`
	TriggeredAt      time.Time `json:"triggered_at"`
	CharacterID      string    `json:"character_id,omitempty"` // character whose interaction fired the condition
	UnlockedEntities []string  `json:"unlocked_entities"`
	NarrativeText    string    `json:"narrative_text,omitempty"`
	NotificationSent bool      `json:"notification_sent"`
}

// NewEvent builds an event for a fired condition.
func NewEvent(conditionID, sessionID uuid.UUID, characterID string, entities []string, narrative string) *Event {
	return &Event{
		ID:               uuid.New(),
		ConditionID:      conditionID,
		SessionID:        sessionID,
		TriggeredAt:      time.Now().UTC(),
		CharacterID:      characterID,
		UnlockedEntities: entities,
		NarrativeText:    narrative,
	}
}
