package milestone

import (
	"time"

	"github.com/google/uuid"
)

// CompletionRecord is the append-only record emitted when a milestone
// transitions to completed. It is written exactly once per milestone.
type CompletionRecord struct {
	MilestoneID uuid.UUID `json:"milestone_id"`
	SessionID   uuid.UUID `json:"session_id"`
	CharacterID string    `json:"character_id,omitempty"` // character whose interaction finished the milestone
	Progress    float64   `json:"progress"`
	CompletedAt time.Time `json:"completed_at"`
}
