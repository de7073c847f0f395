package milestone

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status tracks a milestone through its lifecycle. Transitions are
// monotonic: pending -> in_progress -> completed, never backwards.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// CanTransitionTo reports whether moving to next is a legal forward step.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusInProgress || next == StatusCompleted
	case StatusInProgress:
		return next == StatusCompleted
	default:
		return false
	}
}

// CompletionPolicy decides when a milestone's aggregated progress counts
// as done. The weighted_threshold policy accepts an inline threshold,
// e.g. "weighted_threshold,0.75".
type CompletionPolicy string

const (
	PolicyAllRules          CompletionPolicy = "all_rules"
	PolicyAnyRule           CompletionPolicy = "any_rule"
	PolicyWeightedThreshold CompletionPolicy = "weighted_threshold"

	// DefaultWeightedThreshold applies when the policy carries no inline value.
	DefaultWeightedThreshold = 0.8
)

// Parse splits the policy into its base form and threshold. Unrecognized
// policies come back as-is with a zero threshold; the caller decides the
// fallback.
func (p CompletionPolicy) Parse() (CompletionPolicy, float64) {
	base, arg, found := strings.Cut(string(p), ",")
	policy := CompletionPolicy(strings.TrimSpace(base))
	if policy != PolicyWeightedThreshold {
		return policy, 0
	}
	if found {
		if t, err := strconv.ParseFloat(strings.TrimSpace(arg), 64); err == nil && t > 0 && t <= 1 {
			return policy, t
		}
	}
	return policy, DefaultWeightedThreshold
}

// RelationshipSpec describes how entity interactions add up to milestone
// completion. Owned by exactly one milestone.
type RelationshipSpec struct {
	CompletionCondition CompletionPolicy   `json:"completion_condition"`
	Rules               []RelationshipRule `json:"rules"`
	NarrativeText       string             `json:"narrative_text,omitempty"` // used when the milestone completes
}

// Milestone is a hidden objective tracked per session. Only the progress
// engine mutates it after creation.
type Milestone struct {
	ID          uuid.UUID         `json:"id"`
	CampaignID  string            `json:"campaign_id,omitempty"`
	SessionID   uuid.UUID         `json:"session_id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Spec        *RelationshipSpec `json:"relationship_spec,omitempty"`
	Status      Status            `json:"status"`
	Progress    float64           `json:"progress"` // cached aggregated progress in [0,1]
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// New creates a pending milestone for a session.
func New(sessionID uuid.UUID, title string, spec *RelationshipSpec) *Milestone {
	return &Milestone{
		ID:        uuid.New(),
		SessionID: sessionID,
		Title:     title,
		Spec:      spec,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// EntityIDs returns the union of entity ids referenced by the milestone's
// rules, in first-seen order.
func (m *Milestone) EntityIDs() []string {
	if m.Spec == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var ids []string
	for _, rule := range m.Spec.Rules {
		for _, id := range rule.EntityIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

// References reports whether any rule lists the given entity.
func (m *Milestone) References(entityID string) bool {
	if m.Spec == nil {
		return false
	}
	for _, rule := range m.Spec.Rules {
		for _, id := range rule.EntityIDs {
			if id == entityID {
				return true
			}
		}
	}
	return false
}
