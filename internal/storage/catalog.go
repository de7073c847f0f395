package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jwebster45206/quest-engine/pkg/milestone"
	"github.com/jwebster45206/quest-engine/pkg/unlock"
)

// Catalog is the authoring-time template for a session's hidden content:
// milestone definitions and the unlock conditions that gate new entities.
// Catalogs are static JSON files under DATA_DIR/catalogs.
type Catalog struct {
	Name        string          `json:"name"`
	FileName    string          `json:"file_name,omitempty"`
	Description string          `json:"description,omitempty"`
	Milestones  []SeedMilestone `json:"milestones"`
	Conditions  []SeedCondition `json:"conditions,omitempty"`
}

// SeedMilestone is a milestone template; ids are assigned per session at
// seed time.
type SeedMilestone struct {
	Title       string                      `json:"title"`
	Description string                      `json:"description,omitempty"`
	CampaignID  string                      `json:"campaign_id,omitempty"`
	Spec        *milestone.RelationshipSpec `json:"relationship_spec,omitempty"`
}

// SeedCondition is an unlock condition template; ids and session scope are
// assigned at seed time.
type SeedCondition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	TriggerType unlock.TriggerType     `json:"trigger_type"`
	Rules       []unlock.ConditionRule `json:"rules"`
	Targets     []unlock.Target        `json:"targets"`
	Priority    int                    `json:"priority,omitempty"`
}

// Catalog operations (filesystem-backed)

func (r *RedisStorage) ListCatalogs(ctx context.Context) (map[string]string, error) {
	catalogsDir := filepath.Join(r.dataDir, "catalogs")
	catalogs := make(map[string]string)

	err := filepath.WalkDir(catalogsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}

		file, err := os.ReadFile(path)
		if err != nil {
			r.logger.Warn("Failed to read catalog file", "path", path, "error", err)
			return nil
		}

		var c Catalog
		if err := json.Unmarshal(file, &c); err != nil {
			r.logger.Warn("Failed to unmarshal catalog file", "path", path, "error", err)
			return nil
		}

		catalogs[c.Name] = filepath.Base(path)
		return nil
	})

	if err != nil {
		r.logger.Error("Failed to walk catalogs directory", "error", err)
		return nil, fmt.Errorf("failed to list catalogs: %w", err)
	}

	return catalogs, nil
}

func (r *RedisStorage) GetCatalog(ctx context.Context, filename string) (*Catalog, error) {
	path := filepath.Join(r.dataDir, "catalogs", filename)

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("catalog not found: %s", filename)
		}
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var c Catalog
	if err := json.Unmarshal(file, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog: %w", err)
	}
	c.FileName = filename

	return &c, nil
}

// SeedSession materializes a catalog's milestones and unlock conditions
// for one session. Catalog condition rules reference milestones by title;
// seeding rewrites those references to the per-session milestone ids.
// Works against any Storage implementation.
func SeedSession(ctx context.Context, s Storage, sessionID uuid.UUID, cat *Catalog) error {
	milestoneIDs := make(map[string]uuid.UUID, len(cat.Milestones))
	for i := range cat.Milestones {
		seed := &cat.Milestones[i]
		m := milestone.New(sessionID, seed.Title, seed.Spec)
		m.Description = seed.Description
		m.CampaignID = seed.CampaignID
		if err := s.SaveMilestone(ctx, m); err != nil {
			return fmt.Errorf("failed to seed milestone %q: %w", seed.Title, err)
		}
		milestoneIDs[seed.Title] = m.ID
	}

	for i := range cat.Conditions {
		seed := &cat.Conditions[i]
		rules := make([]unlock.ConditionRule, len(seed.Rules))
		copy(rules, seed.Rules)
		for j := range rules {
			switch rules[j].Type {
			case unlock.RuleMilestoneProgressThreshold, unlock.RuleMilestoneCompleted:
				id, ok := milestoneIDs[rules[j].TargetID]
				if !ok {
					return fmt.Errorf("condition %q references unknown milestone %q", seed.Name, rules[j].TargetID)
				}
				rules[j].TargetID = id.String()
			}
		}

		c := &unlock.Condition{
			ID:          uuid.New(),
			Name:        seed.Name,
			Description: seed.Description,
			TriggerType: seed.TriggerType,
			Rules:       rules,
			Targets:     seed.Targets,
			IsActive:    true,
			Priority:    seed.Priority,
			SessionID:   sessionID,
		}
		if err := s.SaveUnlockCondition(ctx, c); err != nil {
			return fmt.Errorf("failed to seed unlock condition %q: %w", seed.Name, err)
		}
	}

	return nil
}
