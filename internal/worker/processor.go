package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/quest-engine/pkg/completion"
	"github.com/jwebster45206/quest-engine/pkg/queue"
)

// defaultSuccessQuality applies when the enqueuing service did not score
// the interaction.
const defaultSuccessQuality = 0.5

// CompletionRecorder persists one entity completion fact.
type CompletionRecorder interface {
	RecordCompletion(ctx context.Context, sessionID uuid.UUID, detail completion.Detail) error
}

// InteractionHandler recomputes progress for every milestone referencing
// the completed entity. Implemented by the progress engine.
type InteractionHandler interface {
	OnEntityInteraction(ctx context.Context, sessionID uuid.UUID, entityID, characterID string) error
}

// InteractionProcessor turns a dequeued interaction event into a recorded
// completion fact plus a progress recalculation.
type InteractionProcessor struct {
	recorder CompletionRecorder
	handler  InteractionHandler
	logger   *slog.Logger
}

// NewInteractionProcessor creates a processor
func NewInteractionProcessor(recorder CompletionRecorder, handler InteractionHandler, logger *slog.Logger) *InteractionProcessor {
	return &InteractionProcessor{
		recorder: recorder,
		handler:  handler,
		logger:   logger,
	}
}

// Process handles one interaction event. Failed interactions are dropped
// after logging: they carry no completion fact and trigger no
// recalculation.
func (p *InteractionProcessor) Process(ctx context.Context, event *queue.InteractionEvent) error {
	if event.Type != queue.EventTypeInteraction {
		return fmt.Errorf("unknown event type: %s", event.Type)
	}

	if !event.Success {
		p.logger.Debug("Dropping unsuccessful interaction",
			"session_id", event.SessionID,
			"entity_id", event.EntityID)
		return nil
	}

	quality := event.Quality
	if quality <= 0 || quality > 1 {
		quality = defaultSuccessQuality
	}

	detail := completion.Detail{
		EntityID:       event.EntityID,
		CompletedAt:    time.Now().UTC(),
		SuccessQuality: quality,
		Actor:          event.CharacterID,
	}
	if !event.EnqueuedAt.IsZero() {
		detail.CompletedAt = event.EnqueuedAt
	}

	if err := p.recorder.RecordCompletion(ctx, event.SessionID, detail); err != nil {
		return fmt.Errorf("failed to record completion for %s: %w", event.EntityID, err)
	}

	if err := p.handler.OnEntityInteraction(ctx, event.SessionID, event.EntityID, event.CharacterID); err != nil {
		return fmt.Errorf("failed to process interaction for %s: %w", event.EntityID, err)
	}

	return nil
}
