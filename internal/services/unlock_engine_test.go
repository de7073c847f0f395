package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/jwebster45206/quest-engine/internal/storage"
	"github.com/jwebster45206/quest-engine/pkg/milestone"
	"github.com/jwebster45206/quest-engine/pkg/unlock"
)

func floatPtr(v float64) *float64 { return &v }

func newTestUnlockEngine(t *testing.T) (*UnlockEngine, *storage.MockStorage, *MockCompletionStore, *MockEntityGenerator, *MockGMNotifier) {
	t.Helper()
	store := storage.NewMockStorage()
	completions := NewMockCompletionStore()
	generator := NewMockEntityGenerator()
	notifier := &MockGMNotifier{}
	engine := NewUnlockEngine(store, completions, generator, notifier, nil, DefaultSoftThreshold, testLogger())
	return engine, store, completions, generator, notifier
}

func saveMilestoneWithProgress(t *testing.T, store *storage.MockStorage, sessionID uuid.UUID, progress float64, status milestone.Status) *milestone.Milestone {
	t.Helper()
	m := milestone.New(sessionID, "Stage the heist", &milestone.RelationshipSpec{
		CompletionCondition: milestone.PolicyAllRules,
		Rules: []milestone.RelationshipRule{
			{Type: milestone.RuleRequiredAny, EntityIDs: []string{"mark"}, CompletionWeight: 1},
		},
	})
	m.Progress = progress
	m.Status = status
	if err := store.SaveMilestone(context.Background(), m); err != nil {
		t.Fatalf("SaveMilestone: %v", err)
	}
	return m
}

func TestEvaluateHardGate(t *testing.T) {
	engine, store, completions, _, _ := newTestUnlockEngine(t)
	ctx := context.Background()
	sessionID := uuid.New()
	m := saveMilestoneWithProgress(t, store, sessionID, 0.9, milestone.StatusInProgress)
	completions.Complete("guard-captain")

	tests := []struct {
		name  string
		rules []unlock.ConditionRule
		want  bool
	}{
		{
			name: "one required predicate false blocks regardless of weights",
			rules: []unlock.ConditionRule{
				{Type: unlock.RuleEntityCompleted, TargetID: "guard-captain", Weight: 10},
				{Type: unlock.RuleEntityCompleted, TargetID: "vault-door", Weight: 0.1},
			},
			want: false,
		},
		{
			name: "all required true fires with soft score 1.0",
			rules: []unlock.ConditionRule{
				{Type: unlock.RuleEntityCompleted, TargetID: "guard-captain", Weight: 1},
				{Type: unlock.RuleMilestoneProgressThreshold, TargetID: m.ID.String(), Threshold: floatPtr(0.5), Operator: unlock.OpGTE, Weight: 1},
			},
			want: true,
		},
		{
			name: "unsatisfied optional rule does not drag the soft score",
			rules: []unlock.ConditionRule{
				{Type: unlock.RuleEntityCompleted, TargetID: "guard-captain", Weight: 1},
				{Type: unlock.RuleEntityCompleted, TargetID: "vault-door", Weight: 5, IsOptional: true},
			},
			want: true,
		},
		{
			name: "satisfied required with heavy failed optional still above threshold",
			rules: []unlock.ConditionRule{
				{Type: unlock.RuleEntityCompleted, TargetID: "guard-captain", Weight: 4},
				{Type: unlock.RuleMilestoneProgressThreshold, TargetID: m.ID.String(), Threshold: floatPtr(0.95), Operator: unlock.OpGTE, Weight: 1, IsOptional: true},
			},
			want: true,
		},
		{
			name: "failed optional rules are excluded, satisfied one carries",
			rules: []unlock.ConditionRule{
				{Type: unlock.RuleEntityCompleted, TargetID: "guard-captain", Weight: 1, IsOptional: true},
				{Type: unlock.RuleEntityCompleted, TargetID: "vault-door", Weight: 1, IsOptional: true},
			},
			want: true,
		},
		{
			name:  "no rules never fires",
			rules: nil,
			want:  false,
		},
		{
			name: "only failed optional rules never fires",
			rules: []unlock.ConditionRule{
				{Type: unlock.RuleEntityCompleted, TargetID: "vault-door", Weight: 1, IsOptional: true},
			},
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := &unlock.Condition{
				ID:          uuid.New(),
				SessionID:   sessionID,
				TriggerType: unlock.TriggerEntityInteraction,
				Rules:       tc.rules,
				IsActive:    true,
			}
			got, err := engine.Evaluate(ctx, c, EvalContext{SessionID: sessionID})
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvaluateGateTrumpsSoftScore(t *testing.T) {
	// A satisfied optional rule cannot rescue a failed required one: the
	// gate alone blocks the condition.
	engine, _, completions, _, _ := newTestUnlockEngine(t)
	completions.Complete("a")

	c := &unlock.Condition{
		ID:          uuid.New(),
		SessionID:   uuid.New(),
		TriggerType: unlock.TriggerEntityInteraction,
		IsActive:    true,
		Rules: []unlock.ConditionRule{
			{Type: unlock.RuleEntityCompleted, TargetID: "a", Weight: 1, IsOptional: true},
			{Type: unlock.RuleEntityCompleted, TargetID: "b", Weight: 1},
		},
	}
	ok, err := engine.Evaluate(context.Background(), c, EvalContext{SessionID: c.SessionID})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ok {
		t.Error("required rule false: condition must not fire")
	}
}

func TestPredicateMilestoneRules(t *testing.T) {
	engine, store, _, _, _ := newTestUnlockEngine(t)
	ctx := context.Background()
	sessionID := uuid.New()
	m := saveMilestoneWithProgress(t, store, sessionID, 0.6, milestone.StatusInProgress)
	done := saveMilestoneWithProgress(t, store, sessionID, 1.0, milestone.StatusCompleted)

	tests := []struct {
		name string
		rule unlock.ConditionRule
		ctx  EvalContext
		want bool
	}{
		{
			name: "stored progress meets gte threshold",
			rule: unlock.ConditionRule{Type: unlock.RuleMilestoneProgressThreshold, TargetID: m.ID.String(), Threshold: floatPtr(0.5), Operator: unlock.OpGTE, Weight: 1},
			ctx:  EvalContext{SessionID: sessionID},
			want: true,
		},
		{
			name: "stored progress below gte threshold",
			rule: unlock.ConditionRule{Type: unlock.RuleMilestoneProgressThreshold, TargetID: m.ID.String(), Threshold: floatPtr(0.7), Operator: unlock.OpGTE, Weight: 1},
			ctx:  EvalContext{SessionID: sessionID},
			want: false,
		},
		{
			name: "in-flight progress from the signal wins over storage",
			rule: unlock.ConditionRule{Type: unlock.RuleMilestoneProgressThreshold, TargetID: m.ID.String(), Threshold: floatPtr(0.7), Operator: unlock.OpGTE, Weight: 1},
			ctx:  EvalContext{SessionID: sessionID, MilestoneID: m.ID, Progress: 0.75, HasProgress: true},
			want: true,
		},
		{
			name: "lte operator",
			rule: unlock.ConditionRule{Type: unlock.RuleMilestoneProgressThreshold, TargetID: m.ID.String(), Threshold: floatPtr(0.7), Operator: unlock.OpLTE, Weight: 1},
			ctx:  EvalContext{SessionID: sessionID},
			want: true,
		},
		{
			name: "milestone completed",
			rule: unlock.ConditionRule{Type: unlock.RuleMilestoneCompleted, TargetID: done.ID.String(), Weight: 1},
			ctx:  EvalContext{SessionID: sessionID},
			want: true,
		},
		{
			name: "milestone not completed",
			rule: unlock.ConditionRule{Type: unlock.RuleMilestoneCompleted, TargetID: m.ID.String(), Weight: 1},
			ctx:  EvalContext{SessionID: sessionID},
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := engine.predicate(ctx, &tc.rule, tc.ctx)
			if err != nil {
				t.Fatalf("predicate: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPredicateUnknownMilestoneIsInvariantViolation(t *testing.T) {
	engine, _, _, _, _ := newTestUnlockEngine(t)
	rule := unlock.ConditionRule{
		Type:     unlock.RuleMilestoneCompleted,
		TargetID: uuid.New().String(),
		Weight:   1,
	}
	if _, err := engine.predicate(context.Background(), &rule, EvalContext{SessionID: uuid.New()}); err == nil {
		t.Error("expected error for a condition referencing an unknown milestone")
	}
}

func TestPredicateCharacterAction(t *testing.T) {
	engine, _, _, _, _ := newTestUnlockEngine(t)
	ctx := context.Background()

	rule := unlock.ConditionRule{
		Type:     unlock.RuleCharacterAction,
		TargetID: "pc-1",
		Operator: unlock.OpContains,
		Value:    "pull the lever",
		Weight:   1,
	}

	got, err := engine.predicate(ctx, &rule, EvalContext{CharacterID: "pc-1", Action: "She decides to Pull the Lever hard"})
	if err != nil {
		t.Fatalf("predicate: %v", err)
	}
	if !got {
		t.Error("contains match: got false, want true")
	}

	got, _ = engine.predicate(ctx, &rule, EvalContext{CharacterID: "pc-2", Action: "pull the lever"})
	if got {
		t.Error("wrong character: got true, want false")
	}
}

func TestExecuteSingleEventForManyTargets(t *testing.T) {
	engine, store, _, generator, notifier := newTestUnlockEngine(t)
	ctx := context.Background()
	sessionID := uuid.New()

	c := &unlock.Condition{
		ID:          uuid.New(),
		Name:        "Hidden passage",
		SessionID:   sessionID,
		TriggerType: unlock.TriggerMilestoneCompletion,
		IsActive:    true,
		Targets: []unlock.Target{
			{EntityKind: "location_feature", Name: "passage", LocationID: "cellar", RevealMessage: "A draft stirs the dust."},
			{EntityKind: "item", Name: "lantern", LocationID: "cellar"},
			{EntityKind: "npc", Name: "keeper", LocationID: "cellar", FlavorText: "Someone has been living here."},
		},
	}
	if err := store.SaveUnlockCondition(ctx, c); err != nil {
		t.Fatalf("SaveUnlockCondition: %v", err)
	}

	if err := engine.Execute(ctx, c, "pc-1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	events, err := store.ListUnlockEvents(ctx, sessionID)
	if err != nil {
		t.Fatalf("ListUnlockEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events: got %d, want exactly 1", len(events))
	}
	if len(events[0].UnlockedEntities) != 3 {
		t.Errorf("unlocked entities: got %d, want 3", len(events[0].UnlockedEntities))
	}
	if events[0].CharacterID != "pc-1" {
		t.Errorf("character id: got %q, want pc-1", events[0].CharacterID)
	}
	if events[0].NarrativeText == "" {
		t.Error("narrative text: got empty, want reveal and flavor text")
	}
	if !events[0].NotificationSent {
		t.Error("notification flag not set after successful notify")
	}
	if notifier.Notified() != 1 {
		t.Errorf("notifications: got %d, want 1", notifier.Notified())
	}
	if len(generator.Generated) != 3 {
		t.Errorf("generated entities: got %d, want 3", len(generator.Generated))
	}

	saved, err := store.GetUnlockCondition(ctx, sessionID, c.ID)
	if err != nil {
		t.Fatalf("GetUnlockCondition: %v", err)
	}
	if saved.IsActive {
		t.Error("condition still active after firing")
	}
	if saved.LastTriggeredAt == nil {
		t.Error("LastTriggeredAt not set after firing")
	}
}

func TestExecuteIsolatesTargetFailures(t *testing.T) {
	engine, store, _, generator, _ := newTestUnlockEngine(t)
	ctx := context.Background()
	sessionID := uuid.New()
	generator.FailNames["cursed"] = true

	c := &unlock.Condition{
		ID:          uuid.New(),
		SessionID:   sessionID,
		TriggerType: unlock.TriggerMilestoneCompletion,
		IsActive:    true,
		Targets: []unlock.Target{
			{EntityKind: "item", Name: "sword", LocationID: "armory"},
			{EntityKind: "item", Name: "cursed", LocationID: "armory"},
			{EntityKind: "item", Name: "shield", LocationID: "armory"},
		},
	}
	if err := store.SaveUnlockCondition(ctx, c); err != nil {
		t.Fatalf("SaveUnlockCondition: %v", err)
	}

	if err := engine.Execute(ctx, c, "pc-1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	events, _ := store.ListUnlockEvents(ctx, sessionID)
	if len(events) != 1 {
		t.Fatalf("events: got %d, want 1", len(events))
	}
	if len(events[0].UnlockedEntities) != 2 {
		t.Errorf("unlocked entities: got %d, want 2 (one target failed)", len(events[0].UnlockedEntities))
	}
}

func TestExecuteAllTargetsFailing(t *testing.T) {
	engine, _, _, generator, _ := newTestUnlockEngine(t)
	generator.FailNames["only"] = true

	c := &unlock.Condition{
		ID:          uuid.New(),
		SessionID:   uuid.New(),
		TriggerType: unlock.TriggerMilestoneCompletion,
		IsActive:    true,
		Targets: []unlock.Target{
			{EntityKind: "item", Name: "only", LocationID: "vault"},
		},
	}
	if err := engine.Execute(context.Background(), c, "pc-1"); err == nil {
		t.Error("expected error when no target could be generated")
	}
	if !c.IsActive {
		t.Error("condition deactivated despite failed execution")
	}
}

func TestScanFiresMatchingConditionsOnce(t *testing.T) {
	engine, store, completions, _, _ := newTestUnlockEngine(t)
	ctx := context.Background()
	sessionID := uuid.New()
	completions.Complete("idol")

	c := &unlock.Condition{
		ID:          uuid.New(),
		Name:        "Idol taken",
		SessionID:   sessionID,
		TriggerType: unlock.TriggerEntityInteraction,
		IsActive:    true,
		Rules: []unlock.ConditionRule{
			{Type: unlock.RuleEntityCompleted, TargetID: "idol", Weight: 1},
		},
		Targets: []unlock.Target{
			{EntityKind: "hazard", Name: "boulder", LocationID: "temple"},
		},
	}
	if err := store.SaveUnlockCondition(ctx, c); err != nil {
		t.Fatalf("SaveUnlockCondition: %v", err)
	}

	if err := engine.OnEntityInteraction(ctx, sessionID, "idol", "pc-1", true); err != nil {
		t.Fatalf("OnEntityInteraction: %v", err)
	}
	// The condition deactivated on first fire; a second identical signal
	// must not mint a duplicate event.
	if err := engine.OnEntityInteraction(ctx, sessionID, "idol", "pc-1", true); err != nil {
		t.Fatalf("OnEntityInteraction: %v", err)
	}

	events, _ := store.ListUnlockEvents(ctx, sessionID)
	if len(events) != 1 {
		t.Errorf("events after two signals: got %d, want 1", len(events))
	}
}

func TestScanSkipsFailedConditions(t *testing.T) {
	engine, store, completions, _, _ := newTestUnlockEngine(t)
	ctx := context.Background()
	sessionID := uuid.New()
	completions.Complete("idol")

	// References a milestone that doesn't exist: invariant violation.
	broken := &unlock.Condition{
		ID:          uuid.New(),
		SessionID:   sessionID,
		TriggerType: unlock.TriggerEntityInteraction,
		IsActive:    true,
		Priority:    10,
		Rules: []unlock.ConditionRule{
			{Type: unlock.RuleMilestoneCompleted, TargetID: uuid.New().String(), Weight: 1},
		},
		Targets: []unlock.Target{{EntityKind: "item", Name: "phantom", LocationID: "void"}},
	}
	healthy := &unlock.Condition{
		ID:          uuid.New(),
		SessionID:   sessionID,
		TriggerType: unlock.TriggerEntityInteraction,
		IsActive:    true,
		Rules: []unlock.ConditionRule{
			{Type: unlock.RuleEntityCompleted, TargetID: "idol", Weight: 1},
		},
		Targets: []unlock.Target{{EntityKind: "item", Name: "reward", LocationID: "temple"}},
	}
	if err := store.SaveUnlockCondition(ctx, broken); err != nil {
		t.Fatalf("SaveUnlockCondition: %v", err)
	}
	if err := store.SaveUnlockCondition(ctx, healthy); err != nil {
		t.Fatalf("SaveUnlockCondition: %v", err)
	}

	if err := engine.OnEntityInteraction(ctx, sessionID, "idol", "pc-1", true); err != nil {
		t.Fatalf("OnEntityInteraction: %v", err)
	}

	events, _ := store.ListUnlockEvents(ctx, sessionID)
	if len(events) != 1 {
		t.Fatalf("events: got %d, want 1 (broken condition skipped, healthy fired)", len(events))
	}
	if events[0].ConditionID != healthy.ID {
		t.Errorf("fired condition: got %s, want %s", events[0].ConditionID, healthy.ID)
	}
}

func TestCombinedConditionsScanOnEveryTrigger(t *testing.T) {
	engine, store, completions, _, _ := newTestUnlockEngine(t)
	ctx := context.Background()
	sessionID := uuid.New()
	completions.Complete("seal")

	c := &unlock.Condition{
		ID:          uuid.New(),
		SessionID:   sessionID,
		TriggerType: unlock.TriggerCombined,
		IsActive:    true,
		Rules: []unlock.ConditionRule{
			{Type: unlock.RuleEntityCompleted, TargetID: "seal", Weight: 1},
		},
		Targets: []unlock.Target{{EntityKind: "location_feature", Name: "gate", LocationID: "wall"}},
	}
	if err := store.SaveUnlockCondition(ctx, c); err != nil {
		t.Fatalf("SaveUnlockCondition: %v", err)
	}

	// A combined condition fires off a milestone progress signal too.
	if err := engine.OnMilestoneProgress(ctx, sessionID, uuid.New(), 0.4, "pc-1"); err != nil {
		t.Fatalf("OnMilestoneProgress: %v", err)
	}

	events, _ := store.ListUnlockEvents(ctx, sessionID)
	if len(events) != 1 {
		t.Errorf("events: got %d, want 1", len(events))
	}
}

func TestProgressAndUnlockEnginesEndToEnd(t *testing.T) {
	store := storage.NewMockStorage()
	completions := NewMockCompletionStore()
	generator := NewMockEntityGenerator()
	notifier := &MockGMNotifier{}
	unlocks := NewUnlockEngine(store, completions, generator, notifier, nil, DefaultSoftThreshold, testLogger())
	engine := NewProgressEngine(store, completions, nil, nil, unlocks, testLogger())

	ctx := context.Background()
	sessionID := uuid.New()

	m := milestone.New(sessionID, "Break the siege", &milestone.RelationshipSpec{
		CompletionCondition: milestone.PolicyAllRules,
		Rules: []milestone.RelationshipRule{
			{Type: milestone.RuleRequiredAll, EntityIDs: []string{"gatehouse", "catapult"}, CompletionWeight: 1},
		},
	})
	if err := store.SaveMilestone(ctx, m); err != nil {
		t.Fatalf("SaveMilestone: %v", err)
	}

	c := &unlock.Condition{
		ID:          uuid.New(),
		Name:        "Relief force arrives",
		SessionID:   sessionID,
		TriggerType: unlock.TriggerMilestoneCompletion,
		IsActive:    true,
		Rules: []unlock.ConditionRule{
			{Type: unlock.RuleMilestoneCompleted, TargetID: m.ID.String(), Weight: 1},
		},
		Targets: []unlock.Target{
			{EntityKind: "npc", Name: "relief-captain", LocationID: "gates"},
		},
	}
	if err := store.SaveUnlockCondition(ctx, c); err != nil {
		t.Fatalf("SaveUnlockCondition: %v", err)
	}

	completions.Complete("gatehouse")
	if err := engine.OnEntityInteraction(ctx, sessionID, "gatehouse", "pc-1"); err != nil {
		t.Fatalf("OnEntityInteraction: %v", err)
	}
	events, _ := store.ListUnlockEvents(ctx, sessionID)
	if len(events) != 0 {
		t.Fatalf("events before completion: got %d, want 0", len(events))
	}

	completions.Complete("catapult")
	if err := engine.OnEntityInteraction(ctx, sessionID, "catapult", "pc-1"); err != nil {
		t.Fatalf("OnEntityInteraction: %v", err)
	}

	saved, _ := store.GetMilestone(ctx, sessionID, m.ID)
	if saved.Status != milestone.StatusCompleted {
		t.Fatalf("milestone status: got %s, want %s", saved.Status, milestone.StatusCompleted)
	}

	events, _ = store.ListUnlockEvents(ctx, sessionID)
	if len(events) != 1 {
		t.Fatalf("events after completion: got %d, want 1", len(events))
	}
	if events[0].UnlockedEntities[0] != "entity-relief-captain" {
		t.Errorf("unlocked entity: got %q", events[0].UnlockedEntities[0])
	}
	if notifier.Notified() != 1 {
		t.Errorf("notifications: got %d, want 1", notifier.Notified())
	}
}
