package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Entity is a placement record for a newly unlocked world entity. The
// unlock engine mints the id and writes the record; the surrounding world
// service reads it and materializes the entity in play.
type Entity struct {
	ID         string    `json:"id"`
	SessionID  uuid.UUID `json:"session_id"`
	Kind       string    `json:"kind"`
	Name       string    `json:"name"`
	LocationID string    `json:"location_id"`
	Actions    []string  `json:"actions,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// EntityLedger writes unlock-generated entities to the shared Redis
// layout. Satisfies the unlock engine's entity generator contract.
type EntityLedger struct {
	client *redis.Client
	logger *slog.Logger
}

// NewEntityLedger creates an entity ledger on an existing Redis client
func NewEntityLedger(client *redis.Client, logger *slog.Logger) *EntityLedger {
	return &EntityLedger{client: client, logger: logger}
}

func entityKey(sessionID uuid.UUID, entityID string) string {
	return fmt.Sprintf("entity:%s:%s", sessionID, entityID)
}

func sessionEntitiesKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session:%s:entities", sessionID)
}

// GenerateEntity mints an id and records the placement. The record and
// the session index are written in one transaction.
func (l *EntityLedger) GenerateEntity(ctx context.Context, sessionID uuid.UUID, locationID, name, kind string, actions []string) (string, error) {
	entity := Entity{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Kind:       kind,
		Name:       name,
		LocationID: locationID,
		Actions:    actions,
		CreatedAt:  time.Now().UTC(),
	}

	data, err := json.Marshal(&entity)
	if err != nil {
		return "", fmt.Errorf("failed to marshal entity: %w", err)
	}

	pipe := l.client.TxPipeline()
	pipe.Set(ctx, entityKey(sessionID, entity.ID), string(data), 0)
	pipe.SAdd(ctx, sessionEntitiesKey(sessionID), entity.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to record entity %s: %w", entity.Name, err)
	}

	l.logger.Debug("Entity recorded",
		"session_id", sessionID,
		"entity_id", entity.ID,
		"kind", kind,
		"location_id", locationID)
	return entity.ID, nil
}

// GetEntity loads one placement record. Returns nil if not found.
func (l *EntityLedger) GetEntity(ctx context.Context, sessionID uuid.UUID, entityID string) (*Entity, error) {
	data, err := l.client.Get(ctx, entityKey(sessionID, entityID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load entity %s: %w", entityID, err)
	}

	var entity Entity
	if err := json.Unmarshal([]byte(data), &entity); err != nil {
		return nil, fmt.Errorf("failed to parse entity %s: %w", entityID, err)
	}
	return &entity, nil
}

// ListEntities returns every entity unlocked in the session.
func (l *EntityLedger) ListEntities(ctx context.Context, sessionID uuid.UUID) ([]*Entity, error) {
	ids, err := l.client.SMembers(ctx, sessionEntitiesKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list session entities: %w", err)
	}

	var entities []*Entity
	for _, id := range ids {
		entity, err := l.GetEntity(ctx, sessionID, id)
		if err != nil {
			return nil, err
		}
		if entity != nil {
			entities = append(entities, entity)
		}
	}
	return entities, nil
}
