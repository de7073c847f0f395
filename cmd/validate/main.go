package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jwebster45206/quest-engine/internal/storage"
	"github.com/jwebster45206/quest-engine/pkg/milestone"
	"github.com/jwebster45206/quest-engine/pkg/unlock"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <catalog.json>\n", os.Args[0])
		os.Exit(1)
	}

	filename := os.Args[1]
	validator := &CatalogValidator{}

	if err := validator.validateFile(filename); err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Catalog file is valid!")
}

type CatalogValidator struct {
	errors []string
}

func (v *CatalogValidator) validateFile(filename string) error {
	fmt.Printf("Validating %s...\n", filename)

	// Validate filename format
	baseName := filepath.Base(filename)
	if !strings.HasSuffix(baseName, ".json") {
		return fmt.Errorf("catalog file must have .json extension: %s", baseName)
	}

	nameWithoutExt := strings.TrimSuffix(baseName, ".json")
	if !isValidCatalogFilename(nameWithoutExt) {
		return fmt.Errorf("catalog filename '%s' must be lowercase snake_case (e.g., my_catalog.json, not my-catalog.json or MyCatalog.json)", baseName)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", filename, err)
	}

	v.errors = nil

	if !json.Valid(data) {
		return fmt.Errorf("file %s contains invalid JSON", filename)
	}

	var c storage.Catalog
	decoder := json.NewDecoder(strings.NewReader(string(data)))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&c); err != nil {
		return fmt.Errorf("file %s failed strict JSON unmarshaling: %w", filename, err)
	}

	v.validateCatalog(&c)

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors in %s:\n%s", filename, strings.Join(v.errors, "\n"))
	}

	return nil
}

func (v *CatalogValidator) validateCatalog(c *storage.Catalog) {
	if c.Name == "" {
		v.addError("catalog has no name")
	}
	if len(c.Milestones) == 0 {
		v.addError("catalog has no milestones")
	}

	milestoneTitles := make(map[string]bool, len(c.Milestones))
	for i := range c.Milestones {
		seed := &c.Milestones[i]
		if milestoneTitles[seed.Title] {
			v.addError(fmt.Sprintf("duplicate milestone title '%s'", seed.Title))
		}
		milestoneTitles[seed.Title] = true
		v.validateMilestone(seed)
	}

	conditionNames := make(map[string]bool, len(c.Conditions))
	for i := range c.Conditions {
		seed := &c.Conditions[i]
		if conditionNames[seed.Name] {
			v.addError(fmt.Sprintf("duplicate condition name '%s'", seed.Name))
		}
		conditionNames[seed.Name] = true
		v.validateCondition(seed, milestoneTitles)
	}
}

func (v *CatalogValidator) validateMilestone(seed *storage.SeedMilestone) {
	if seed.Title == "" {
		v.addError("milestone has no title")
		return
	}
	if seed.Spec == nil {
		v.addError(fmt.Sprintf("milestone '%s' has no relationship_spec", seed.Title))
		return
	}

	policy, threshold := seed.Spec.CompletionCondition.Parse()
	switch policy {
	case milestone.PolicyAllRules, milestone.PolicyAnyRule:
	case milestone.PolicyWeightedThreshold:
		if threshold <= 0 || threshold > 1 {
			v.addError(fmt.Sprintf("milestone '%s' has weighted_threshold outside (0,1]", seed.Title))
		}
	default:
		v.addError(fmt.Sprintf("milestone '%s' has unknown completion_condition '%s'", seed.Title, seed.Spec.CompletionCondition))
	}

	if len(seed.Spec.Rules) == 0 {
		v.addError(fmt.Sprintf("milestone '%s' has no rules", seed.Title))
	}
	for i := range seed.Spec.Rules {
		rule := &seed.Spec.Rules[i]
		context := fmt.Sprintf("milestone '%s' rule %d", seed.Title, i)

		if err := rule.Validate(); err != nil {
			v.addError(fmt.Sprintf("%s: %v", context, err))
		}
		for _, entityID := range rule.EntityIDs {
			v.validateIDFormat(context+" entity ID", entityID)
		}
		if rule.Type == milestone.RuleStoryMeaning && rule.StoryMeaning == "" {
			v.addError(fmt.Sprintf("%s is story_meaning but has no story_meaning text", context))
		}
	}
}

func (v *CatalogValidator) validateCondition(seed *storage.SeedCondition, milestoneTitles map[string]bool) {
	if seed.Name == "" {
		v.addError("condition has no name")
		return
	}

	switch seed.TriggerType {
	case unlock.TriggerMilestoneProgress, unlock.TriggerMilestoneCompletion,
		unlock.TriggerEntityInteraction, unlock.TriggerCombined:
	default:
		v.addError(fmt.Sprintf("condition '%s' has unknown trigger_type '%s'", seed.Name, seed.TriggerType))
	}

	if len(seed.Rules) == 0 {
		v.addError(fmt.Sprintf("condition '%s' has no rules", seed.Name))
	}
	for i := range seed.Rules {
		rule := &seed.Rules[i]
		context := fmt.Sprintf("condition '%s' rule %d", seed.Name, i)

		if err := rule.Validate(); err != nil {
			v.addError(fmt.Sprintf("%s: %v", context, err))
			continue
		}

		switch rule.Type {
		case unlock.RuleMilestoneProgressThreshold, unlock.RuleMilestoneCompleted:
			// Catalog rules reference milestones by title; seeding rewrites
			// them to session-scoped ids.
			if !milestoneTitles[rule.TargetID] {
				v.addError(fmt.Sprintf("%s references unknown milestone '%s'", context, rule.TargetID))
			}
			if rule.Type == unlock.RuleMilestoneProgressThreshold && rule.Threshold == nil {
				v.addError(fmt.Sprintf("%s is milestone_progress_threshold but has no threshold", context))
			}
		case unlock.RuleEntityCompleted:
			v.validateIDFormat(context+" entity ID", rule.TargetID)
		case unlock.RuleCharacterAction:
			if rule.Value == "" {
				v.addError(fmt.Sprintf("%s is character_action but has no value", context))
			}
		}
	}

	if len(seed.Targets) == 0 {
		v.addError(fmt.Sprintf("condition '%s' has no targets", seed.Name))
	}
	for i := range seed.Targets {
		target := &seed.Targets[i]
		context := fmt.Sprintf("condition '%s' target %d", seed.Name, i)

		if target.Name == "" {
			v.addError(context + " has no name")
		}
		if target.EntityKind == "" {
			v.addError(context + " has no entity_kind")
		}
		v.validateIDFormat(context+" location ID", target.LocationID)
	}
}

func (v *CatalogValidator) validateIDFormat(fieldName, id string) {
	if id == "" {
		return
	}

	if !isValidID(id) {
		v.addError(fmt.Sprintf("%s '%s' should be lowercase snake_case", fieldName, id))
	}
}

func (v *CatalogValidator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}

var (
	validIDRegex       = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)
	validFilenameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)
)

func isValidID(id string) bool {
	return validIDRegex.MatchString(id)
}

func isValidCatalogFilename(name string) bool {
	// Allow 'x.' prefix for experimental catalogs
	name = strings.TrimPrefix(name, "x.")
	return validFilenameRegex.MatchString(name)
}
