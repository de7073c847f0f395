package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/quest-engine/internal/storage"
	"github.com/jwebster45206/quest-engine/pkg/milestone"
)

// ProgressEngine turns raw entity-completion facts into milestone
// progress values and completion decisions. All collaborators are
// injected; tests substitute mocks without any shared state.
type ProgressEngine struct {
	storage     storage.Storage
	completions CompletionStore
	narrative   NarrativeGenerator
	feedback    FeedbackGenerator
	unlocks     UnlockSink
	locks       *SessionLocks
	logger      *slog.Logger
}

// NewProgressEngine creates a progress engine. The narrative, feedback
// and unlock collaborators may be nil; their signals are then dropped.
func NewProgressEngine(store storage.Storage, completions CompletionStore, narrative NarrativeGenerator, feedback FeedbackGenerator, unlocks UnlockSink, logger *slog.Logger) *ProgressEngine {
	return &ProgressEngine{
		storage:     store,
		completions: completions,
		narrative:   narrative,
		feedback:    feedback,
		unlocks:     unlocks,
		locks:       NewSessionLocks(),
		logger:      logger,
	}
}

// Recalculation reports what one milestone recomputation did.
type Recalculation struct {
	Milestone      *milestone.Milestone
	Progress       float64
	Changed        bool
	NewlyCompleted bool
}

// OnEntityInteraction processes one "entity completed" event: every
// milestone referencing the entity is recomputed, persisted, and its
// current progress forwarded to the unlock engine. The whole flow -
// including the unlock engine's entity_interaction scan - runs under the
// session lock, so events for one session are strictly serialized while
// distinct sessions proceed in parallel.
func (e *ProgressEngine) OnEntityInteraction(ctx context.Context, sessionID uuid.UUID, entityID, characterID string) error {
	return e.locks.WithLock(sessionID, func() error {
		milestones, err := e.storage.ListMilestonesByEntity(ctx, sessionID, entityID)
		if err != nil {
			return fmt.Errorf("failed to list milestones for entity %s: %w", entityID, err)
		}

		for _, m := range milestones {
			if _, err := e.recalculate(ctx, m, characterID); err != nil {
				// One bad milestone must not block the others.
				e.logger.Error("Milestone recalculation failed",
					"milestone_id", m.ID,
					"session_id", sessionID,
					"error", err)
			}
		}

		if e.unlocks != nil {
			if err := e.unlocks.OnEntityInteraction(ctx, sessionID, entityID, characterID, true); err != nil {
				e.logger.Error("Entity interaction unlock scan failed",
					"session_id", sessionID,
					"entity_id", entityID,
					"error", err)
			}
		}

		return nil
	})
}

// RecalculateMilestone recomputes a single milestone under the session
// lock. Exposed for callers that observe completion facts out of band.
func (e *ProgressEngine) RecalculateMilestone(ctx context.Context, sessionID, milestoneID uuid.UUID, characterID string) (*Recalculation, error) {
	var result *Recalculation
	err := e.locks.WithLock(sessionID, func() error {
		m, err := e.storage.GetMilestone(ctx, sessionID, milestoneID)
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("milestone not found: %s", milestoneID)
		}
		result, err = e.recalculate(ctx, m, characterID)
		return err
	})
	return result, err
}

func (e *ProgressEngine) recalculate(ctx context.Context, m *milestone.Milestone, characterID string) (*Recalculation, error) {
	progress, err := e.computeProgress(ctx, m)
	if err != nil {
		return nil, err
	}

	result := &Recalculation{Milestone: m, Progress: progress}
	result.Changed = math.Abs(progress-m.Progress) > completionEpsilon
	previous := m.Progress
	m.Progress = progress

	if m.Status == milestone.StatusPending && progress > 0 {
		m.Status = milestone.StatusInProgress
	}

	// Completion is monotonic and idempotent: once completed, later
	// recalculations are no-ops for the state machine.
	if m.Status != milestone.StatusCompleted && isCompleted(m, progress) {
		now := time.Now().UTC()
		m.Status = milestone.StatusCompleted
		m.CompletedAt = &now
		result.NewlyCompleted = true
	}

	if result.Changed || result.NewlyCompleted {
		if err := e.storage.SaveMilestone(ctx, m); err != nil {
			return nil, fmt.Errorf("failed to persist milestone %s: %w", m.ID, err)
		}
	}

	if result.Changed && e.unlocks != nil {
		if err := e.unlocks.OnMilestoneProgress(ctx, m.SessionID, m.ID, progress, characterID); err != nil {
			e.logger.Error("Progress unlock scan failed",
				"milestone_id", m.ID,
				"session_id", m.SessionID,
				"error", err)
		}
	}

	if result.NewlyCompleted {
		e.logger.Info("Milestone completed",
			"milestone_id", m.ID,
			"session_id", m.SessionID,
			"title", m.Title,
			"progress", progress)
		e.handleCompletion(ctx, m, characterID)
	} else if result.Changed {
		e.logger.Debug("Milestone progress updated",
			"milestone_id", m.ID,
			"session_id", m.SessionID,
			"previous", previous,
			"progress", progress)
	}

	return result, nil
}

func (e *ProgressEngine) computeProgress(ctx context.Context, m *milestone.Milestone) (float64, error) {
	if m.Spec == nil {
		// Legacy milestones carry externally supplied progress.
		return m.Progress, nil
	}

	entityIDs := m.EntityIDs()
	completedList, err := e.completions.ListCompleted(ctx, m.SessionID, entityIDs)
	if err != nil {
		return 0, fmt.Errorf("completion store unavailable: %w", err)
	}

	completed := make(map[string]bool, len(completedList))
	for _, id := range completedList {
		completed[id] = true
	}

	// Details only feed bonus terms; a detail lookup failure costs the
	// bonuses, not the recalculation.
	details, err := e.completions.GetCompletionDetails(ctx, m.SessionID, completedList)
	if err != nil {
		e.logger.Warn("Completion details unavailable, scoring without bonuses",
			"milestone_id", m.ID,
			"error", err)
		details = nil
	}

	in := ruleInputs{
		completed: completed,
		details:   details,
		narrative: milestoneNarrative(m),
	}
	return milestoneProgress(m, in), nil
}

// handleCompletion runs the completion side effects: an append-only
// completion record, then the narrative and feedback generators. The
// generators are independent and order-insensitive; either failing is
// logged and never rolls back the completion.
func (e *ProgressEngine) handleCompletion(ctx context.Context, m *milestone.Milestone, characterID string) {
	rec := &milestone.CompletionRecord{
		MilestoneID: m.ID,
		SessionID:   m.SessionID,
		CharacterID: characterID,
		Progress:    m.Progress,
		CompletedAt: *m.CompletedAt,
	}
	if err := e.storage.AppendCompletionRecord(ctx, rec); err != nil {
		e.logger.Error("Failed to append completion record",
			"milestone_id", m.ID,
			"error", err)
	}

	narrativeText := ""
	if m.Spec != nil {
		narrativeText = m.Spec.NarrativeText
	}

	if e.narrative != nil {
		if err := e.narrative.GenerateNarrative(ctx, m, m.SessionID, characterID, narrativeText); err != nil {
			e.logger.Error("Narrative generation failed",
				"milestone_id", m.ID,
				"error", err)
		}
	}
	if e.feedback != nil {
		if err := e.feedback.GenerateFeedback(ctx, m, m.SessionID, characterID, narrativeText); err != nil {
			e.logger.Error("Feedback generation failed",
				"milestone_id", m.ID,
				"error", err)
		}
	}

	if e.unlocks != nil {
		if err := e.unlocks.OnMilestoneCompletion(ctx, m.SessionID, m, characterID); err != nil {
			e.logger.Error("Completion unlock scan failed",
				"milestone_id", m.ID,
				"error", err)
		}
	}
}

// milestoneNarrative gathers the milestone's narrative text for
// story_meaning contextual alignment.
func milestoneNarrative(m *milestone.Milestone) string {
	parts := []string{m.Title, m.Description}
	if m.Spec != nil {
		parts = append(parts, m.Spec.NarrativeText)
	}
	return strings.Join(parts, " ")
}
