package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quest-engine/pkg/milestone"
	"github.com/jwebster45206/quest-engine/pkg/unlock"
)

func writeCatalogFile(t *testing.T, dir, filename, contents string) {
	t.Helper()
	catalogsDir := filepath.Join(dir, "catalogs")
	if err := os.MkdirAll(catalogsDir, 0o755); err != nil {
		t.Fatalf("Failed to create catalogs dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(catalogsDir, filename), []byte(contents), 0o644); err != nil {
		t.Fatalf("Failed to write catalog file: %v", err)
	}
}

func TestListAndGetCatalogs(t *testing.T) {
	dataDir := t.TempDir()
	writeCatalogFile(t, dataDir, "harbor_heist.json", `{
		"name": "Harbor Heist",
		"description": "Smuggling ring in the lower docks",
		"milestones": [
			{
				"title": "Find the Ledger",
				"relationship_spec": {
					"completion_condition": "all_rules",
					"rules": [
						{"type": "required_all", "entity_ids": ["ledger", "warehouse_key"], "completion_weight": 1}
					]
				}
			}
		]
	}`)
	writeCatalogFile(t, dataDir, "broken.json", `{not json`)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	rs, err := NewRedisStorage("redis://localhost:6379", dataDir, logger)
	require.NoError(t, err)
	defer func() { _ = rs.Close() }()

	ctx := context.Background()

	catalogs, err := rs.ListCatalogs(ctx)
	require.NoError(t, err)
	assert.Len(t, catalogs, 1, "malformed catalog files should be skipped")
	assert.Equal(t, "harbor_heist.json", catalogs["Harbor Heist"])

	c, err := rs.GetCatalog(ctx, "harbor_heist.json")
	require.NoError(t, err)
	assert.Equal(t, "Harbor Heist", c.Name)
	assert.Equal(t, "harbor_heist.json", c.FileName)
	require.Len(t, c.Milestones, 1)
	assert.Equal(t, "Find the Ledger", c.Milestones[0].Title)
	require.NotNil(t, c.Milestones[0].Spec)
	assert.Equal(t, milestone.PolicyAllRules, c.Milestones[0].Spec.CompletionCondition)

	_, err = rs.GetCatalog(ctx, "missing.json")
	assert.ErrorContains(t, err, "catalog not found")
}

func TestSeedSessionRewritesMilestoneReferences(t *testing.T) {
	threshold := 0.75
	cat := &Catalog{
		Name: "Harbor Heist",
		Milestones: []SeedMilestone{
			{
				Title: "Find the Ledger",
				Spec: &milestone.RelationshipSpec{
					CompletionCondition: milestone.PolicyAllRules,
					Rules: []milestone.RelationshipRule{
						{Type: milestone.RuleRequiredAll, EntityIDs: []string{"ledger"}, CompletionWeight: 1},
					},
				},
			},
			{
				Title: "Confront the Fence",
				Spec: &milestone.RelationshipSpec{
					CompletionCondition: milestone.PolicyAnyRule,
					Rules: []milestone.RelationshipRule{
						{Type: milestone.RuleRequiredAny, EntityIDs: []string{"fence", "informant"}, CompletionWeight: 1},
					},
				},
			},
		},
		Conditions: []SeedCondition{
			{
				Name:        "reveal_hidden_stash",
				TriggerType: unlock.TriggerMilestoneProgress,
				Priority:    5,
				Rules: []unlock.ConditionRule{
					{Type: unlock.RuleMilestoneProgressThreshold, TargetID: "Find the Ledger", Threshold: &threshold},
					{Type: unlock.RuleMilestoneCompleted, TargetID: "Confront the Fence", IsOptional: true},
				},
				Targets: []unlock.Target{
					{EntityKind: "item", Name: "Hidden Stash", LocationID: "warehouse_cellar"},
				},
			},
		},
	}

	store := NewMockStorage()
	sessionID := uuid.New()
	ctx := context.Background()

	require.NoError(t, SeedSession(ctx, store, sessionID, cat))

	milestones, err := store.ListMilestones(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, milestones, 2)

	idsByTitle := make(map[string]uuid.UUID, len(milestones))
	for _, m := range milestones {
		assert.Equal(t, sessionID, m.SessionID)
		assert.Equal(t, milestone.StatusPending, m.Status)
		idsByTitle[m.Title] = m.ID
	}

	conditions, err := store.ListUnlockConditions(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, conditions, 1)

	cond := conditions[0]
	assert.True(t, cond.IsActive)
	assert.Equal(t, 5, cond.Priority)
	require.Len(t, cond.Rules, 2)
	assert.Equal(t, idsByTitle["Find the Ledger"].String(), cond.Rules[0].TargetID)
	assert.Equal(t, idsByTitle["Confront the Fence"].String(), cond.Rules[1].TargetID)

	// Seeding must not mutate the shared catalog template.
	assert.Equal(t, "Find the Ledger", cat.Conditions[0].Rules[0].TargetID)
}

func TestSeedSessionUnknownMilestoneReference(t *testing.T) {
	cat := &Catalog{
		Name: "Harbor Heist",
		Milestones: []SeedMilestone{
			{
				Title: "Find the Ledger",
				Spec: &milestone.RelationshipSpec{
					CompletionCondition: milestone.PolicyAllRules,
					Rules: []milestone.RelationshipRule{
						{Type: milestone.RuleRequiredAll, EntityIDs: []string{"ledger"}, CompletionWeight: 1},
					},
				},
			},
		},
		Conditions: []SeedCondition{
			{
				Name:        "reveal_hidden_stash",
				TriggerType: unlock.TriggerMilestoneCompletion,
				Rules: []unlock.ConditionRule{
					{Type: unlock.RuleMilestoneCompleted, TargetID: "No Such Milestone"},
				},
				Targets: []unlock.Target{
					{EntityKind: "item", Name: "Hidden Stash", LocationID: "warehouse_cellar"},
				},
			},
		},
	}

	store := NewMockStorage()
	err := SeedSession(context.Background(), store, uuid.New(), cat)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown milestone")
}
