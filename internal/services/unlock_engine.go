package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/quest-engine/internal/storage"
	"github.com/jwebster45206/quest-engine/pkg/milestone"
	"github.com/jwebster45206/quest-engine/pkg/textfilter"
	"github.com/jwebster45206/quest-engine/pkg/unlock"
)

// DefaultSoftThreshold is the minimum soft score for a condition to fire
// once its hard gate passes.
const DefaultSoftThreshold = 0.8

// UnlockEngine decides, from progress and completion signals, whether to
// materialize new world content. Callers serialize invocations per
// session; in this repo the progress engine and the queue worker both do.
type UnlockEngine struct {
	storage       storage.Storage
	completions   CompletionStore
	generator     EntityGenerator
	notifier      GMNotifier
	filter        *textfilter.Filter
	softThreshold float64
	logger        *slog.Logger
}

// Ensure UnlockEngine satisfies the sink contract used by ProgressEngine
var _ UnlockSink = (*UnlockEngine)(nil)

// NewUnlockEngine creates an unlock engine. The notifier may be nil; the
// filter may be nil for unrated sessions.
func NewUnlockEngine(store storage.Storage, completions CompletionStore, generator EntityGenerator, notifier GMNotifier, filter *textfilter.Filter, softThreshold float64, logger *slog.Logger) *UnlockEngine {
	if softThreshold <= 0 || softThreshold > 1 {
		softThreshold = DefaultSoftThreshold
	}
	return &UnlockEngine{
		storage:       store,
		completions:   completions,
		generator:     generator,
		notifier:      notifier,
		filter:        filter,
		softThreshold: softThreshold,
		logger:        logger,
	}
}

// EvalContext carries the signal being evaluated against a condition's
// rules.
type EvalContext struct {
	SessionID   uuid.UUID
	MilestoneID uuid.UUID // milestone whose progress changed, if any
	Progress    float64
	HasProgress bool
	EntityID    string // entity just completed, for entity_interaction signals
	CharacterID string
	Action      string // free-text character action, if the signal carries one
}

// OnMilestoneProgress scans milestone_progress and combined conditions
// after a milestone's numeric progress changed.
func (e *UnlockEngine) OnMilestoneProgress(ctx context.Context, sessionID, milestoneID uuid.UUID, progress float64, characterID string) error {
	return e.scan(ctx, sessionID, unlock.TriggerMilestoneProgress, EvalContext{
		SessionID:   sessionID,
		MilestoneID: milestoneID,
		Progress:    progress,
		HasProgress: true,
		CharacterID: characterID,
	})
}

// OnMilestoneCompletion scans milestone_completion and combined
// conditions after a milestone completed.
func (e *UnlockEngine) OnMilestoneCompletion(ctx context.Context, sessionID uuid.UUID, m *milestone.Milestone, characterID string) error {
	return e.scan(ctx, sessionID, unlock.TriggerMilestoneCompletion, EvalContext{
		SessionID:   sessionID,
		MilestoneID: m.ID,
		Progress:    m.Progress,
		HasProgress: true,
		CharacterID: characterID,
	})
}

// OnEntityInteraction scans entity_interaction and combined conditions
// after an entity interaction resolved.
func (e *UnlockEngine) OnEntityInteraction(ctx context.Context, sessionID uuid.UUID, entityID, characterID string, success bool) error {
	if !success {
		return nil
	}
	return e.scan(ctx, sessionID, unlock.TriggerEntityInteraction, EvalContext{
		SessionID:   sessionID,
		EntityID:    entityID,
		CharacterID: characterID,
	})
}

// scan walks the session's active conditions of the matching trigger
// type in descending priority order, firing every condition that
// evaluates true. A condition that fails to evaluate or execute is
// logged and skipped; it never blocks the rest of the scan.
func (e *UnlockEngine) scan(ctx context.Context, sessionID uuid.UUID, trigger unlock.TriggerType, evalCtx EvalContext) error {
	conditions, err := e.storage.ListUnlockConditions(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to list unlock conditions: %w", err)
	}

	var matching []*unlock.Condition
	for _, c := range conditions {
		if c.Matches(trigger) {
			matching = append(matching, c)
		}
	}
	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].Priority > matching[j].Priority
	})

	for _, c := range matching {
		ok, err := e.Evaluate(ctx, c, evalCtx)
		if err != nil {
			// Invariant violation (e.g. the condition references a
			// milestone with no data): skip this condition only.
			e.logger.Warn("Skipping unlock condition",
				"condition_id", c.ID,
				"session_id", sessionID,
				"error", err)
			continue
		}
		if !ok {
			continue
		}
		if err := e.Execute(ctx, c, evalCtx.CharacterID); err != nil {
			e.logger.Error("Unlock execution failed",
				"condition_id", c.ID,
				"session_id", sessionID,
				"error", err)
		}
	}

	return nil
}

// Evaluate applies the condition's rules to the signal. The hard gate is
// every non-optional rule passing (vacuously true with none); the soft
// score weighs required rules plus satisfied optional rules; the
// condition fires when the gate holds and the soft score clears the
// threshold.
func (e *UnlockEngine) Evaluate(ctx context.Context, c *unlock.Condition, evalCtx EvalContext) (bool, error) {
	gate := true
	var totalWeight, totalScore float64

	for i := range c.Rules {
		rule := &c.Rules[i]
		pass, err := e.predicate(ctx, rule, evalCtx)
		if err != nil {
			return false, err
		}

		if !rule.IsOptional && !pass {
			gate = false
		}
		if !rule.IsOptional || pass {
			weight := rule.Weight
			if weight <= 0 {
				weight = 1
			}
			totalWeight += weight
			if pass {
				totalScore += weight
			}
		}
	}

	if !gate {
		return false, nil
	}

	// A zero-weight denominator (no rules, or only failed optional rules)
	// never fires.
	if totalWeight == 0 {
		return false, nil
	}
	return totalScore/totalWeight >= e.softThreshold-completionEpsilon, nil
}

// predicate evaluates one rule. Malformed rules are a false predicate,
// logged; a missing referenced milestone is an invariant violation
// surfaced as an error so the whole condition is skipped.
func (e *UnlockEngine) predicate(ctx context.Context, rule *unlock.ConditionRule, evalCtx EvalContext) (bool, error) {
	if err := rule.Validate(); err != nil {
		e.logger.Warn("Malformed unlock condition rule", "error", err)
		return false, nil
	}

	switch rule.Type {
	case unlock.RuleMilestoneProgressThreshold:
		if rule.Threshold == nil {
			e.logger.Warn("Progress threshold rule without threshold", "target_id", rule.TargetID)
			return false, nil
		}
		progress, err := e.milestoneProgressFor(ctx, rule.TargetID, evalCtx)
		if err != nil {
			return false, err
		}
		return compareFloat(rule.Operator, progress, *rule.Threshold), nil

	case unlock.RuleMilestoneCompleted:
		m, err := e.milestoneFor(ctx, rule.TargetID, evalCtx.SessionID)
		if err != nil {
			return false, err
		}
		return m.Status == milestone.StatusCompleted, nil

	case unlock.RuleEntityCompleted:
		if evalCtx.EntityID == rule.TargetID {
			return true, nil
		}
		completed, err := e.completions.ListCompleted(ctx, evalCtx.SessionID, []string{rule.TargetID})
		if err != nil {
			// Collaborator failure: no effect beyond this predicate.
			e.logger.Warn("Completion store lookup failed",
				"entity_id", rule.TargetID,
				"error", err)
			return false, nil
		}
		return len(completed) > 0, nil

	case unlock.RuleCharacterAction:
		if evalCtx.CharacterID == "" || evalCtx.CharacterID != rule.TargetID {
			return false, nil
		}
		return matchAction(rule.Operator, evalCtx.Action, rule.Value), nil

	default:
		return false, nil
	}
}

func (e *UnlockEngine) milestoneProgressFor(ctx context.Context, targetID string, evalCtx EvalContext) (float64, error) {
	if evalCtx.HasProgress && evalCtx.MilestoneID.String() == targetID {
		return evalCtx.Progress, nil
	}
	m, err := e.milestoneFor(ctx, targetID, evalCtx.SessionID)
	if err != nil {
		return 0, err
	}
	return m.Progress, nil
}

func (e *UnlockEngine) milestoneFor(ctx context.Context, targetID string, sessionID uuid.UUID) (*milestone.Milestone, error) {
	id, err := uuid.Parse(targetID)
	if err != nil {
		return nil, fmt.Errorf("condition references malformed milestone id %q", targetID)
	}
	m, err := e.storage.GetMilestone(ctx, sessionID, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("condition references unknown milestone %s", targetID)
	}
	return m, nil
}

func compareFloat(op unlock.Operator, value, threshold float64) bool {
	switch op {
	case unlock.OpLTE:
		return value <= threshold+completionEpsilon
	case unlock.OpEQ:
		return value > threshold-completionEpsilon && value < threshold+completionEpsilon
	default:
		// gte is the default comparison for progress thresholds.
		return value >= threshold-completionEpsilon
	}
}

func matchAction(op unlock.Operator, action, want string) bool {
	if action == "" || want == "" {
		return false
	}
	switch op {
	case unlock.OpEQ:
		return strings.EqualFold(strings.TrimSpace(action), strings.TrimSpace(want))
	default:
		// contains is the default match for free-text actions.
		return strings.Contains(strings.ToLower(action), strings.ToLower(want))
	}
}

// Execute materializes the condition's targets and records the unlock.
// One event references every entity the condition produced; the event
// append and the condition's post-trigger state are written atomically.
// The condition deactivates after a successful execution so later
// signals cannot mint duplicate events.
func (e *UnlockEngine) Execute(ctx context.Context, c *unlock.Condition, characterID string) error {
	var entityIDs []string
	var narrative []string

	for i := range c.Targets {
		target := &c.Targets[i]
		entityID, err := e.generator.GenerateEntity(ctx, c.SessionID, target.LocationID, target.Name, target.EntityKind, target.Actions)
		if err != nil {
			// Generation failures isolate per target.
			e.logger.Error("Entity generation failed",
				"condition_id", c.ID,
				"target", target.Name,
				"error", err)
			continue
		}
		entityIDs = append(entityIDs, entityID)

		if target.RevealMessage != "" {
			narrative = append(narrative, e.filter.Clean(target.RevealMessage))
		}
		if target.FlavorText != "" {
			narrative = append(narrative, e.filter.Clean(target.FlavorText))
		}
	}

	if len(entityIDs) == 0 && len(c.Targets) > 0 {
		return fmt.Errorf("no targets could be generated for condition %s", c.ID)
	}

	now := time.Now().UTC()
	c.LastTriggeredAt = &now
	c.IsActive = false

	event := unlock.NewEvent(c.ID, c.SessionID, characterID, entityIDs, strings.Join(narrative, "\n\n"))
	if err := e.storage.AppendUnlockEvent(ctx, event, c); err != nil {
		return fmt.Errorf("failed to record unlock event: %w", err)
	}

	e.logger.Info("Unlock condition fired",
		"condition_id", c.ID,
		"session_id", c.SessionID,
		"entities", len(entityIDs))

	if e.notifier != nil {
		if err := e.notifier.NotifyUnlock(ctx, event); err != nil {
			// The unlock stands; the notification flag stays false.
			e.logger.Error("GM notification failed",
				"event_id", event.ID,
				"error", err)
		} else if err := e.storage.MarkNotificationSent(ctx, event.SessionID, event.ID); err != nil {
			e.logger.Error("Failed to mark notification sent",
				"event_id", event.ID,
				"error", err)
		}
	}

	return nil
}
