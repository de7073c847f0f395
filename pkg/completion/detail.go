// Package completion holds the read model for entity completion facts.
// Details are produced by the surrounding service's completion store; the
// engine only reads them.
package completion

import "time"

// Detail describes one successful entity interaction. All score fields
// are normalized to [0,1].
type Detail struct {
	EntityID            string    `json:"entity_id"`
	CompletedAt         time.Time `json:"completed_at"`
	SuccessQuality      float64   `json:"success_quality"`
	StoryTimingScore    float64   `json:"story_timing_score"`
	NarrativeImportance float64   `json:"narrative_importance"`
	ContextualRelevance float64   `json:"contextual_relevance"`
	Actor               string    `json:"actor,omitempty"`    // character who completed the interaction
	Approach            string    `json:"approach,omitempty"` // how the interaction was resolved
	Outcome             string    `json:"outcome,omitempty"`
}
