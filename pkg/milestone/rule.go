package milestone

import "fmt"

// RuleType identifies how a relationship rule scores entity completions.
type RuleType string

const (
	// RuleSequential requires entities completed in listed order.
	RuleSequential RuleType = "sequential"

	// RuleRequiredAll requires every listed entity.
	RuleRequiredAll RuleType = "required_all"

	// RuleRequiredAny is satisfied by any single listed entity.
	RuleRequiredAny RuleType = "required_any"

	// RuleStoryMeaning scores completions against narrative context.
	RuleStoryMeaning RuleType = "story_meaning"
)

// RelationshipRule is one clause of a milestone's relationship spec.
// EntityIDs must be non-empty; for sequential rules the order defines the
// required completion order.
type RelationshipRule struct {
	Type             RuleType `json:"type"`
	EntityIDs        []string `json:"entity_ids"`
	IsOptional       bool     `json:"optional,omitempty"`
	CompletionWeight float64  `json:"completion_weight"`
	StoryMeaning     string   `json:"story_meaning,omitempty"`
}

// Validate checks the structural invariants of a rule. Engines degrade
// malformed rules to zero progress instead of failing; Validate is for
// authoring-time checks (cmd/validate, catalog loading).
func (r *RelationshipRule) Validate() error {
	switch r.Type {
	case RuleSequential, RuleRequiredAll, RuleRequiredAny, RuleStoryMeaning:
	default:
		return fmt.Errorf("unknown rule type: %q", r.Type)
	}
	if len(r.EntityIDs) == 0 {
		return fmt.Errorf("rule of type %s has no entity ids", r.Type)
	}
	if r.CompletionWeight <= 0 {
		return fmt.Errorf("completion_weight must be positive, got %v", r.CompletionWeight)
	}
	return nil
}
