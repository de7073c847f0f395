package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quest-engine/pkg/milestone"
	"github.com/jwebster45206/quest-engine/pkg/unlock"
)

// RedisStorage implements the Storage interface using Redis for session
// state (milestones, conditions, event logs) and the filesystem for static
// resources (catalogs)
type RedisStorage struct {
	client  *redis.Client
	logger  *slog.Logger
	dataDir string
}

// Ensure RedisStorage implements Storage interface
var _ Storage = (*RedisStorage)(nil)

// NewRedisStorage creates a new Redis storage instance
func NewRedisStorage(redisURL string, dataDir string, logger *slog.Logger) (*RedisStorage, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	if dataDir == "" {
		dataDir = "./data"
	}

	return &RedisStorage{
		client:  redis.NewClient(opt),
		logger:  logger,
		dataDir: dataDir,
	}, nil
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

// Key layout. Everything is namespaced by session so distinct sessions
// never contend.

func milestoneKey(sessionID, id uuid.UUID) string {
	return fmt.Sprintf("milestone:%s:%s", sessionID, id)
}

func milestoneIndexKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session:%s:milestones", sessionID)
}

func entityIndexKey(sessionID uuid.UUID, entityID string) string {
	return fmt.Sprintf("session:%s:entity:%s:milestones", sessionID, entityID)
}

func conditionKey(sessionID, id uuid.UUID) string {
	return fmt.Sprintf("condition:%s:%s", sessionID, id)
}

func conditionIndexKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session:%s:conditions", sessionID)
}

func unlockEventsKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session:%s:unlock-events", sessionID)
}

func completionRecordsKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session:%s:completion-records", sessionID)
}

// Milestone operations (Redis-backed)

func (r *RedisStorage) SaveMilestone(ctx context.Context, m *milestone.Milestone) error {
	data, err := json.Marshal(m)
	if err != nil {
		r.logger.Error("Failed to marshal milestone", "milestone_id", m.ID, "error", err)
		return fmt.Errorf("failed to marshal milestone: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, milestoneKey(m.SessionID, m.ID), string(data), 0)
	pipe.SAdd(ctx, milestoneIndexKey(m.SessionID), m.ID.String())
	for _, entityID := range m.EntityIDs() {
		pipe.SAdd(ctx, entityIndexKey(m.SessionID, entityID), m.ID.String())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to save milestone", "milestone_id", m.ID, "error", err)
		return fmt.Errorf("failed to save milestone: %w", err)
	}
	return nil
}

func (r *RedisStorage) GetMilestone(ctx context.Context, sessionID, id uuid.UUID) (*milestone.Milestone, error) {
	data, err := r.client.Get(ctx, milestoneKey(sessionID, id)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Return nil for not found
		}
		r.logger.Error("Failed to load milestone", "milestone_id", id, "error", err)
		return nil, fmt.Errorf("failed to load milestone: %w", err)
	}

	var m milestone.Milestone
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		r.logger.Error("Failed to unmarshal milestone", "milestone_id", id, "error", err)
		return nil, fmt.Errorf("failed to unmarshal milestone: %w", err)
	}
	return &m, nil
}

func (r *RedisStorage) DeleteMilestone(ctx context.Context, sessionID, id uuid.UUID) error {
	m, err := r.GetMilestone(ctx, sessionID, id)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, milestoneKey(sessionID, id))
	pipe.SRem(ctx, milestoneIndexKey(sessionID), id.String())
	if m != nil {
		for _, entityID := range m.EntityIDs() {
			pipe.SRem(ctx, entityIndexKey(sessionID, entityID), id.String())
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to delete milestone", "milestone_id", id, "error", err)
		return fmt.Errorf("failed to delete milestone: %w", err)
	}
	return nil
}

func (r *RedisStorage) ListMilestones(ctx context.Context, sessionID uuid.UUID) ([]*milestone.Milestone, error) {
	ids, err := r.client.SMembers(ctx, milestoneIndexKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list session milestones: %w", err)
	}
	return r.loadMilestones(ctx, sessionID, ids)
}

func (r *RedisStorage) ListMilestonesByEntity(ctx context.Context, sessionID uuid.UUID, entityID string) ([]*milestone.Milestone, error) {
	ids, err := r.client.SMembers(ctx, entityIndexKey(sessionID, entityID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones for entity %s: %w", entityID, err)
	}
	return r.loadMilestones(ctx, sessionID, ids)
}

func (r *RedisStorage) loadMilestones(ctx context.Context, sessionID uuid.UUID, ids []string) ([]*milestone.Milestone, error) {
	milestones := make([]*milestone.Milestone, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			r.logger.Warn("Skipping malformed milestone id in index", "id", raw)
			continue
		}
		m, err := r.GetMilestone(ctx, sessionID, id)
		if err != nil {
			return nil, err
		}
		if m != nil {
			milestones = append(milestones, m)
		}
	}
	return milestones, nil
}

// Completion records (append-only)

func (r *RedisStorage) AppendCompletionRecord(ctx context.Context, rec *milestone.CompletionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal completion record: %w", err)
	}
	if err := r.client.RPush(ctx, completionRecordsKey(rec.SessionID), string(data)).Err(); err != nil {
		r.logger.Error("Failed to append completion record", "milestone_id", rec.MilestoneID, "error", err)
		return fmt.Errorf("failed to append completion record: %w", err)
	}
	return nil
}

func (r *RedisStorage) ListCompletionRecords(ctx context.Context, sessionID uuid.UUID) ([]milestone.CompletionRecord, error) {
	raw, err := r.client.LRange(ctx, completionRecordsKey(sessionID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to list completion records: %w", err)
	}

	records := make([]milestone.CompletionRecord, 0, len(raw))
	for _, item := range raw {
		var rec milestone.CompletionRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			r.logger.Warn("Skipping malformed completion record", "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Unlock condition operations (Redis-backed)

func (r *RedisStorage) SaveUnlockCondition(ctx context.Context, c *unlock.Condition) error {
	data, err := json.Marshal(c)
	if err != nil {
		r.logger.Error("Failed to marshal unlock condition", "condition_id", c.ID, "error", err)
		return fmt.Errorf("failed to marshal unlock condition: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, conditionKey(c.SessionID, c.ID), string(data), 0)
	pipe.SAdd(ctx, conditionIndexKey(c.SessionID), c.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to save unlock condition", "condition_id", c.ID, "error", err)
		return fmt.Errorf("failed to save unlock condition: %w", err)
	}
	return nil
}

func (r *RedisStorage) GetUnlockCondition(ctx context.Context, sessionID, id uuid.UUID) (*unlock.Condition, error) {
	data, err := r.client.Get(ctx, conditionKey(sessionID, id)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		r.logger.Error("Failed to load unlock condition", "condition_id", id, "error", err)
		return nil, fmt.Errorf("failed to load unlock condition: %w", err)
	}

	var c unlock.Condition
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		r.logger.Error("Failed to unmarshal unlock condition", "condition_id", id, "error", err)
		return nil, fmt.Errorf("failed to unmarshal unlock condition: %w", err)
	}
	return &c, nil
}

func (r *RedisStorage) ListUnlockConditions(ctx context.Context, sessionID uuid.UUID) ([]*unlock.Condition, error) {
	ids, err := r.client.SMembers(ctx, conditionIndexKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list session conditions: %w", err)
	}

	conditions := make([]*unlock.Condition, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			r.logger.Warn("Skipping malformed condition id in index", "id", raw)
			continue
		}
		c, err := r.GetUnlockCondition(ctx, sessionID, id)
		if err != nil {
			return nil, err
		}
		if c != nil {
			conditions = append(conditions, c)
		}
	}
	return conditions, nil
}

// AppendUnlockEvent appends the event and persists the condition's
// post-trigger state in one transaction, so the log and LastTriggeredAt
// can never disagree.
func (r *RedisStorage) AppendUnlockEvent(ctx context.Context, event *unlock.Event, cond *unlock.Condition) error {
	eventData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal unlock event: %w", err)
	}
	condData, err := json.Marshal(cond)
	if err != nil {
		return fmt.Errorf("failed to marshal unlock condition: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, unlockEventsKey(event.SessionID), string(eventData))
	pipe.Set(ctx, conditionKey(cond.SessionID, cond.ID), string(condData), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to append unlock event", "event_id", event.ID, "condition_id", cond.ID, "error", err)
		return fmt.Errorf("failed to append unlock event: %w", err)
	}
	return nil
}

func (r *RedisStorage) ListUnlockEvents(ctx context.Context, sessionID uuid.UUID) ([]unlock.Event, error) {
	raw, err := r.client.LRange(ctx, unlockEventsKey(sessionID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to list unlock events: %w", err)
	}

	events := make([]unlock.Event, 0, len(raw))
	for _, item := range raw {
		var e unlock.Event
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			r.logger.Warn("Skipping malformed unlock event", "error", err)
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// MarkNotificationSent rewrites a single list entry in place. The
// notification flag is the only mutation the event log permits.
func (r *RedisStorage) MarkNotificationSent(ctx context.Context, sessionID, eventID uuid.UUID) error {
	key := unlockEventsKey(sessionID)
	raw, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to read unlock events: %w", err)
	}

	for i, item := range raw {
		var e unlock.Event
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		if e.ID != eventID {
			continue
		}
		e.NotificationSent = true
		data, err := json.Marshal(&e)
		if err != nil {
			return fmt.Errorf("failed to marshal unlock event: %w", err)
		}
		if err := r.client.LSet(ctx, key, int64(i), string(data)).Err(); err != nil {
			return fmt.Errorf("failed to update unlock event: %w", err)
		}
		return nil
	}

	return fmt.Errorf("unlock event not found: %s", eventID)
}
