package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jwebster45206/quest-engine/pkg/milestone"
	"github.com/jwebster45206/quest-engine/pkg/unlock"
)

// Storage defines a unified interface for all persistence operations.
// Milestones, unlock conditions and the event log live in Redis; catalogs
// are static JSON resources loaded from the filesystem.
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// Milestone operations (Redis-backed)
	SaveMilestone(ctx context.Context, m *milestone.Milestone) error

	// GetMilestone retrieves a milestone by id.
	// Returns nil if the milestone doesn't exist.
	GetMilestone(ctx context.Context, sessionID, id uuid.UUID) (*milestone.Milestone, error)
	DeleteMilestone(ctx context.Context, sessionID, id uuid.UUID) error
	ListMilestones(ctx context.Context, sessionID uuid.UUID) ([]*milestone.Milestone, error)

	// ListMilestonesByEntity returns the session's milestones whose rules
	// reference the given entity, via the entity index maintained on save.
	ListMilestonesByEntity(ctx context.Context, sessionID uuid.UUID, entityID string) ([]*milestone.Milestone, error)

	// Completion records (append-only)
	AppendCompletionRecord(ctx context.Context, rec *milestone.CompletionRecord) error
	ListCompletionRecords(ctx context.Context, sessionID uuid.UUID) ([]milestone.CompletionRecord, error)

	// Unlock condition operations (Redis-backed)
	SaveUnlockCondition(ctx context.Context, c *unlock.Condition) error

	// GetUnlockCondition retrieves a condition by id.
	// Returns nil if the condition doesn't exist.
	GetUnlockCondition(ctx context.Context, sessionID, id uuid.UUID) (*unlock.Condition, error)
	ListUnlockConditions(ctx context.Context, sessionID uuid.UUID) ([]*unlock.Condition, error)

	// AppendUnlockEvent atomically appends the event to the session's unlock
	// log and persists the condition's post-trigger state (LastTriggeredAt,
	// IsActive). The event log is append-only.
	AppendUnlockEvent(ctx context.Context, event *unlock.Event, cond *unlock.Condition) error
	ListUnlockEvents(ctx context.Context, sessionID uuid.UUID) ([]unlock.Event, error)

	// MarkNotificationSent flips the one mutable flag on a past event.
	MarkNotificationSent(ctx context.Context, sessionID, eventID uuid.UUID) error

	// Catalog operations (filesystem-backed)
	ListCatalogs(ctx context.Context) (map[string]string, error)
	GetCatalog(ctx context.Context, filename string) (*Catalog, error)
}
