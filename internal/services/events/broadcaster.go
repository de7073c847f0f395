package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quest-engine/pkg/milestone"
	"github.com/jwebster45206/quest-engine/pkg/unlock"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeMilestoneProgress  EventType = "milestone.progress"
	EventTypeMilestoneCompleted EventType = "milestone.completed"
	EventTypeUnlockTriggered    EventType = "unlock.triggered"
	EventTypeGMNotification     EventType = "gm.notification"
)

// Event represents a generic event structure
type Event struct {
	Type      EventType              `json:"type"`
	SessionID string                 `json:"session_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Broadcaster publishes events to Redis Pub/Sub for SSE distribution.
// The GM surface and any spectating clients subscribe to the session
// channel; the engines publish through it fire-and-forget.
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// PublishMilestoneProgress publishes a milestone.progress event
func (b *Broadcaster) PublishMilestoneProgress(ctx context.Context, sessionID, milestoneID uuid.UUID, progress float64) error {
	event := Event{
		Type:      EventTypeMilestoneProgress,
		SessionID: sessionID.String(),
		Data: map[string]interface{}{
			"milestone_id": milestoneID.String(),
			"progress":     progress,
		},
	}
	return b.publishToSession(ctx, sessionID, event)
}

// PublishMilestoneCompleted publishes a milestone.completed event
func (b *Broadcaster) PublishMilestoneCompleted(ctx context.Context, sessionID, milestoneID uuid.UUID, title string) error {
	event := Event{
		Type:      EventTypeMilestoneCompleted,
		SessionID: sessionID.String(),
		Data: map[string]interface{}{
			"milestone_id": milestoneID.String(),
			"title":        title,
		},
	}
	return b.publishToSession(ctx, sessionID, event)
}

// PublishUnlockTriggered publishes an unlock.triggered event
func (b *Broadcaster) PublishUnlockTriggered(ctx context.Context, e *unlock.Event) error {
	event := Event{
		Type:      EventTypeUnlockTriggered,
		SessionID: e.SessionID.String(),
		Data: map[string]interface{}{
			"event_id":          e.ID.String(),
			"condition_id":      e.ConditionID.String(),
			"unlocked_entities": e.UnlockedEntities,
		},
	}
	return b.publishToSession(ctx, e.SessionID, event)
}

// GenerateNarrative satisfies the progress engine's narrative contract:
// the completion is published to the session channel and the downstream
// narrative service renders it.
func (b *Broadcaster) GenerateNarrative(ctx context.Context, m *milestone.Milestone, sessionID uuid.UUID, characterID, narrativeText string) error {
	event := Event{
		Type:      EventTypeMilestoneCompleted,
		SessionID: sessionID.String(),
		Data: map[string]interface{}{
			"milestone_id":   m.ID.String(),
			"title":          m.Title,
			"character_id":   characterID,
			"narrative_text": narrativeText,
		},
	}
	return b.publishToSession(ctx, sessionID, event)
}

// NotifyUnlock publishes a gm.notification event carrying the unlock's
// narrative text. Satisfies the engines' GM notifier contract.
func (b *Broadcaster) NotifyUnlock(ctx context.Context, e *unlock.Event) error {
	event := Event{
		Type:      EventTypeGMNotification,
		SessionID: e.SessionID.String(),
		Data: map[string]interface{}{
			"event_id":          e.ID.String(),
			"condition_id":      e.ConditionID.String(),
			"character_id":      e.CharacterID,
			"unlocked_entities": e.UnlockedEntities,
			"narrative_text":    e.NarrativeText,
		},
	}
	return b.publishToSession(ctx, e.SessionID, event)
}

// publishToSession publishes an event to the session-specific channel
func (b *Broadcaster) publishToSession(ctx context.Context, sessionID uuid.UUID, event Event) error {
	channel := fmt.Sprintf("session-events:%s", sessionID.String())

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event", event)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
	)

	return nil
}
