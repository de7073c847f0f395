package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwebster45206/quest-engine/pkg/completion"
	"github.com/jwebster45206/quest-engine/pkg/milestone"
	"github.com/jwebster45206/quest-engine/pkg/unlock"
)

// Collaborator contracts. The engines consume these and never
// re-implement them; the surrounding service supplies real
// implementations and tests substitute mocks. Everything is injected
// through constructors - no package-level service instances.

// CompletionStore reports which entities have been successfully
// interacted with in a session, and with what quality/timing metadata.
// Read-only from the engine's point of view.
type CompletionStore interface {
	// ListCompleted returns the subset of entityIDs completed in the session.
	ListCompleted(ctx context.Context, sessionID uuid.UUID, entityIDs []string) ([]string, error)

	// GetCompletionDetails returns per-entity completion metadata for the
	// completed subset of entityIDs.
	GetCompletionDetails(ctx context.Context, sessionID uuid.UUID, entityIDs []string) (map[string]completion.Detail, error)
}

// EntityGenerator materializes a new interactable entity into the game
// world and returns its id.
type EntityGenerator interface {
	GenerateEntity(ctx context.Context, sessionID uuid.UUID, locationID, name, kind string, actions []string) (string, error)
}

// NarrativeGenerator produces completion narration. Fire-and-forget: the
// progress engine logs failures and never lets them undo a completion.
type NarrativeGenerator interface {
	GenerateNarrative(ctx context.Context, m *milestone.Milestone, sessionID uuid.UUID, characterID, narrativeText string) error
}

// FeedbackGenerator produces player feedback on completion. Same
// fire-and-forget contract as NarrativeGenerator.
type FeedbackGenerator interface {
	GenerateFeedback(ctx context.Context, m *milestone.Milestone, sessionID uuid.UUID, characterID, narrativeText string) error
}

// GMNotifier delivers an unlock notification to the game master surface.
type GMNotifier interface {
	NotifyUnlock(ctx context.Context, event *unlock.Event) error
}

// UnlockSink receives progress and completion signals from the progress
// engine. Implemented by UnlockEngine; split out so the progress engine
// can be tested without one.
type UnlockSink interface {
	OnMilestoneProgress(ctx context.Context, sessionID, milestoneID uuid.UUID, progress float64, characterID string) error
	OnMilestoneCompletion(ctx context.Context, sessionID uuid.UUID, m *milestone.Milestone, characterID string) error
	OnEntityInteraction(ctx context.Context, sessionID uuid.UUID, entityID, characterID string, success bool) error
}
