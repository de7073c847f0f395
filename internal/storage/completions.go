package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quest-engine/pkg/completion"
)

// RedisCompletionStore reads the entity completion facts written by the
// surrounding service. The engine treats the completion store as an
// external, read-only collaborator; this implementation consumes the
// agreed Redis layout rather than owning it. RecordCompletion exists for
// cmd/simulate and tests.
type RedisCompletionStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisCompletionStore creates a completion store reader
func NewRedisCompletionStore(redisURL string, logger *slog.Logger) (*RedisCompletionStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return &RedisCompletionStore{
		client: redis.NewClient(opt),
		logger: logger,
	}, nil
}

func (s *RedisCompletionStore) Close() error {
	return s.client.Close()
}

func completedSetKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session:%s:completed", sessionID)
}

func completionDetailKey(sessionID uuid.UUID, entityID string) string {
	return fmt.Sprintf("completion:%s:%s", sessionID, entityID)
}

// ListCompleted returns the subset of entityIDs that have been completed
// in the session, preserving the caller's order.
func (s *RedisCompletionStore) ListCompleted(ctx context.Context, sessionID uuid.UUID, entityIDs []string) ([]string, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}

	key := completedSetKey(sessionID)
	var completed []string
	for _, entityID := range entityIDs {
		isMember, err := s.client.SIsMember(ctx, key, entityID).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check completed entity %s: %w", entityID, err)
		}
		if isMember {
			completed = append(completed, entityID)
		}
	}
	return completed, nil
}

// GetCompletionDetails returns the completion detail for each completed
// entity in entityIDs. Entities without a detail record are omitted.
func (s *RedisCompletionStore) GetCompletionDetails(ctx context.Context, sessionID uuid.UUID, entityIDs []string) (map[string]completion.Detail, error) {
	details := make(map[string]completion.Detail, len(entityIDs))

	for _, entityID := range entityIDs {
		data, err := s.client.Get(ctx, completionDetailKey(sessionID, entityID)).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("failed to load completion detail for %s: %w", entityID, err)
		}

		var d completion.Detail
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			s.logger.Warn("Skipping malformed completion detail", "entity_id", entityID, "error", err)
			continue
		}
		details[entityID] = d
	}

	return details, nil
}

// RecordCompletion writes a completion fact the way the surrounding
// service does. Used by cmd/simulate and integration-style tests.
func (s *RedisCompletionStore) RecordCompletion(ctx context.Context, sessionID uuid.UUID, detail completion.Detail) error {
	data, err := json.Marshal(&detail)
	if err != nil {
		return fmt.Errorf("failed to marshal completion detail: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, completedSetKey(sessionID), detail.EntityID)
	pipe.Set(ctx, completionDetailKey(sessionID, detail.EntityID), string(data), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}
	return nil
}
