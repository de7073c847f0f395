package unlock

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TriggerType scopes which engine entry point may fire a condition.
// Combined conditions are scanned by every entry point.
type TriggerType string

const (
	TriggerMilestoneProgress   TriggerType = "milestone_progress"
	TriggerMilestoneCompletion TriggerType = "milestone_completion"
	TriggerEntityInteraction   TriggerType = "entity_interaction"
	TriggerCombined            TriggerType = "combined"
)

// RuleType identifies the predicate evaluated for a condition rule.
type RuleType string

const (
	RuleMilestoneProgressThreshold RuleType = "milestone_progress_threshold"
	RuleMilestoneCompleted         RuleType = "milestone_completed"
	RuleEntityCompleted            RuleType = "entity_completed"
	RuleCharacterAction            RuleType = "character_action"
)

// Operator compares a rule's threshold or value against observed state.
type Operator string

const (
	OpGTE      Operator = "gte"
	OpLTE      Operator = "lte"
	OpEQ       Operator = "eq"
	OpContains Operator = "contains"
)

// ConditionRule is one weighted clause of an unlock condition.
type ConditionRule struct {
	Type       RuleType `json:"type"`
	TargetID   string   `json:"target_id"`
	Threshold  *float64 `json:"threshold,omitempty"`
	Operator   Operator `json:"operator,omitempty"`
	Value      string   `json:"value,omitempty"`
	IsOptional bool     `json:"optional,omitempty"`
	Weight     float64  `json:"weight"`
}

// Validate checks structural invariants for authoring-time tooling. The
// engine itself degrades malformed rules to a false predicate.
func (r *ConditionRule) Validate() error {
	switch r.Type {
	case RuleMilestoneProgressThreshold, RuleMilestoneCompleted, RuleEntityCompleted, RuleCharacterAction:
	default:
		return fmt.Errorf("unknown condition rule type: %q", r.Type)
	}
	if r.TargetID == "" {
		return fmt.Errorf("condition rule of type %s has no target id", r.Type)
	}
	if r.Weight <= 0 {
		return fmt.Errorf("weight must be positive, got %v", r.Weight)
	}
	if r.Threshold != nil && (*r.Threshold < 0 || *r.Threshold > 1) {
		return fmt.Errorf("threshold must be in [0,1], got %v", *r.Threshold)
	}
	switch r.Operator {
	case "", OpGTE, OpLTE, OpEQ, OpContains:
	default:
		return fmt.Errorf("unknown operator: %q", r.Operator)
	}
	return nil
}

// Target describes one entity the condition materializes into the world
// when it fires.
type Target struct {
	EntityKind    string   `json:"entity_kind"` // e.g. "npc", "item", "hazard", "location_feature"
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	LocationID    string   `json:"location_id"`
	Actions       []string `json:"actions,omitempty"` // interactions the entity exposes once unlocked
	RevealMessage string   `json:"reveal_message,omitempty"`
	FlavorText    string   `json:"flavor_text,omitempty"`
}

// Condition is a standing rule set that materializes new entities once
// satisfied. Created by content setup; only the unlock engine mutates it
// (deactivation and LastTriggeredAt).
type Condition struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	TriggerType     TriggerType     `json:"trigger_type"`
	Rules           []ConditionRule `json:"rules"`
	Targets         []Target        `json:"targets"`
	IsActive        bool            `json:"active"`
	Priority        int             `json:"priority"` // scanned in descending order
	SessionID       uuid.UUID       `json:"session_id"`
	LastTriggeredAt *time.Time      `json:"last_triggered_at,omitempty"`
}

// Matches reports whether the condition should be scanned by an entry
// point dispatching on trigger.
func (c *Condition) Matches(trigger TriggerType) bool {
	return c.IsActive && (c.TriggerType == trigger || c.TriggerType == TriggerCombined)
}
