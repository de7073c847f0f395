package services

import (
	"math"
	"strings"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/completion"
	"github.com/jwebster45206/quest-engine/pkg/milestone"
)

// Rule scoring. All functions are pure over the completion facts so the
// progress engine stays trivially testable. Every result is clamped to
// [0,1].

const (
	// Coverage bonus tiers for required_all rules. The highest crossed
	// tier applies.
	coverageTierLow  = 0.4
	coverageTierMid  = 0.6
	coverageTierHigh = 0.8

	coverageBonusLow  = 0.05
	coverageBonusMid  = 0.10
	coverageBonusHigh = 0.15

	// Balance bonus scale for required_all importance tiers.
	balanceBonusScale = 0.1

	// Sequential pacing window: consecutive completions spaced inside
	// this band read as deliberate play.
	idealGapMin = 30 * time.Minute
	idealGapMax = 3 * time.Hour

	spacingBonusScale = 0.03
	qualityBonusScale = 0.02

	// Pairwise completion proximity window for story_meaning combination
	// scoring.
	combinationWindow = 6 * time.Hour
)

type ruleInputs struct {
	completed map[string]bool
	details   map[string]completion.Detail

	// narrative is the milestone's current narrative text, used for
	// story_meaning contextual alignment.
	narrative string
}

// ruleProgress scores one relationship rule. Malformed rules (unknown
// type, no entity ids) score zero rather than erroring, so one bad rule
// cannot block the milestone.
func ruleProgress(rule milestone.RelationshipRule, in ruleInputs) float64 {
	if len(rule.EntityIDs) == 0 {
		return 0
	}

	switch rule.Type {
	case milestone.RuleRequiredAll:
		return requiredAllProgress(rule, in)
	case milestone.RuleRequiredAny:
		return requiredAnyProgress(rule, in)
	case milestone.RuleSequential:
		return sequentialProgress(rule, in)
	case milestone.RuleStoryMeaning:
		return storyMeaningProgress(rule, in)
	default:
		return 0
	}
}

func requiredAllProgress(rule milestone.RelationshipRule, in ruleInputs) float64 {
	total := len(rule.EntityIDs)
	done := 0
	for _, id := range rule.EntityIDs {
		if in.completed[id] {
			done++
		}
	}
	if done == 0 {
		return 0
	}

	base := float64(done) / float64(total)

	var coverage float64
	switch {
	case base >= coverageTierHigh:
		coverage = coverageBonusHigh
	case base >= coverageTierMid:
		coverage = coverageBonusMid
	case base >= coverageTierLow:
		coverage = coverageBonusLow
	}

	return clamp01(base + coverage + balanceBonusScale*balanceScore(rule.EntityIDs, in.completed))
}

// balanceScore groups the rule's entities into three importance tiers by
// list position (first 30% high, next 40% medium, remainder low) and
// averages per-tier completion ratios weighted 1.5/1.0/0.7.
func balanceScore(entityIDs []string, completed map[string]bool) float64 {
	n := len(entityIDs)
	hiEnd := int(math.Ceil(0.3 * float64(n)))
	midEnd := hiEnd + int(math.Ceil(0.4*float64(n)))
	if midEnd > n {
		midEnd = n
	}

	tiers := []struct {
		ids    []string
		weight float64
	}{
		{entityIDs[:hiEnd], 1.5},
		{entityIDs[hiEnd:midEnd], 1.0},
		{entityIDs[midEnd:], 0.7},
	}

	var weighted, totalWeight float64
	for _, tier := range tiers {
		if len(tier.ids) == 0 {
			continue
		}
		done := 0
		for _, id := range tier.ids {
			if completed[id] {
				done++
			}
		}
		weighted += tier.weight * float64(done) / float64(len(tier.ids))
		totalWeight += tier.weight
	}

	if totalWeight == 0 {
		return 0
	}
	return weighted / totalWeight
}

// requiredAnyProgress returns exactly 1.0 once any listed entity is
// completed. Additional completions don't change the value.
func requiredAnyProgress(rule milestone.RelationshipRule, in ruleInputs) float64 {
	for _, id := range rule.EntityIDs {
		if in.completed[id] {
			return 1.0
		}
	}
	return 0
}

// sequentialProgress counts the longest completed prefix in listed order;
// the walk stops at the first not-yet-completed entity. Small pacing and
// rising-quality bonuses reward deliberate sequences.
func sequentialProgress(rule milestone.RelationshipRule, in ruleInputs) float64 {
	prefix := 0
	for _, id := range rule.EntityIDs {
		if !in.completed[id] {
			break
		}
		prefix++
	}
	if prefix == 0 {
		return 0
	}

	base := float64(prefix) / float64(len(rule.EntityIDs))
	if prefix < 2 {
		return clamp01(base)
	}

	var spacedGaps, risingPairs, pairs int
	for i := 1; i < prefix; i++ {
		prev, okPrev := in.details[rule.EntityIDs[i-1]]
		cur, okCur := in.details[rule.EntityIDs[i]]
		if !okPrev || !okCur {
			continue
		}
		pairs++

		gap := cur.CompletedAt.Sub(prev.CompletedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap >= idealGapMin && gap <= idealGapMax {
			spacedGaps++
		}
		if cur.SuccessQuality >= prev.SuccessQuality {
			risingPairs++
		}
	}

	if pairs == 0 {
		return clamp01(base)
	}

	bonus := spacingBonusScale*float64(spacedGaps)/float64(pairs) +
		qualityBonusScale*float64(risingPairs)/float64(pairs)
	return clamp01(base + bonus)
}

// storyMeaningProgress scales the raw completion ratio by the rule's
// weight and a narrative bonus multiplier.
func storyMeaningProgress(rule milestone.RelationshipRule, in ruleInputs) float64 {
	total := len(rule.EntityIDs)
	var done []completion.Detail
	doneCount := 0
	for _, id := range rule.EntityIDs {
		if !in.completed[id] {
			continue
		}
		doneCount++
		if d, ok := in.details[id]; ok {
			done = append(done, d)
		}
	}
	if doneCount == 0 {
		return 0
	}

	base := float64(doneCount) / float64(total)
	multiplier := 1 + 0.3*combinationScore(done) + 0.2*contextualScore(rule, done, in.narrative)
	return clamp01(base * rule.CompletionWeight * multiplier)
}

// combinationScore measures pairwise completion-timing proximity: entity
// interactions resolved close together read as one narrative beat.
func combinationScore(details []completion.Detail) float64 {
	if len(details) < 2 {
		return 0
	}

	var sum float64
	var pairs int
	for i := 0; i < len(details); i++ {
		for j := i + 1; j < len(details); j++ {
			gap := details[i].CompletedAt.Sub(details[j].CompletedAt)
			if gap < 0 {
				gap = -gap
			}
			proximity := 1 - math.Min(float64(gap)/float64(combinationWindow), 1)
			sum += proximity
			pairs++
		}
	}
	return sum / float64(pairs)
}

// contextualScore blends the completions' recorded contextual relevance
// with a token-overlap alignment between the rule's story meaning and the
// milestone's narrative text.
func contextualScore(rule milestone.RelationshipRule, details []completion.Detail, narrative string) float64 {
	var relevance float64
	if len(details) > 0 {
		var sum float64
		for _, d := range details {
			sum += d.ContextualRelevance
		}
		relevance = sum / float64(len(details))
	}

	overlap := tokenOverlap(rule.StoryMeaning, narrative)
	return clamp01(0.5*relevance + 0.5*overlap)
}

// tokenOverlap is a cheap semantic-alignment heuristic: the fraction of
// meaningful words in a that also appear in b.
func tokenOverlap(a, b string) float64 {
	aTokens := meaningfulTokens(a)
	if len(aTokens) == 0 {
		return 0
	}
	bTokens := make(map[string]bool)
	for _, tok := range meaningfulTokens(b) {
		bTokens[tok] = true
	}

	matched := 0
	for _, tok := range aTokens {
		if bTokens[tok] {
			matched++
		}
	}
	return float64(matched) / float64(len(aTokens))
}

func meaningfulTokens(s string) []string {
	var tokens []string
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,;:!?\"'()")
		if len(tok) > 3 {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// milestoneProgress aggregates rule progress into a weighted average. An
// optional rule at zero progress is skipped entirely: it contributes only
// once it has some progress.
func milestoneProgress(m *milestone.Milestone, in ruleInputs) float64 {
	if m.Spec == nil || len(m.Spec.Rules) == 0 {
		return 0
	}

	var numerator, denominator float64
	for _, rule := range m.Spec.Rules {
		p := ruleProgress(rule, in)
		if rule.IsOptional && p == 0 {
			continue
		}
		weight := rule.CompletionWeight
		if weight <= 0 {
			weight = 1
		}
		numerator += p * weight
		denominator += weight
	}

	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

const completionEpsilon = 1e-9

// isCompleted evaluates the milestone's completion policy against its
// aggregated progress. Milestones without a relationship spec fall back
// to the legacy binary check on cached progress.
func isCompleted(m *milestone.Milestone, progress float64) bool {
	if m.Spec == nil {
		return m.Progress >= 1.0-completionEpsilon
	}

	policy, threshold := m.Spec.CompletionCondition.Parse()
	switch policy {
	case milestone.PolicyAllRules:
		return progress >= 1.0-completionEpsilon
	case milestone.PolicyAnyRule:
		return progress > 0
	case milestone.PolicyWeightedThreshold:
		return progress >= threshold-completionEpsilon
	default:
		return progress >= 1.0-completionEpsilon
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
