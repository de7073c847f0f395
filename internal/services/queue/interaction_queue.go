package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quest-engine/pkg/queue"
)

// interactionsKey is the single global queue all workers compete on.
// Per-session ordering is enforced by the worker's session lock, not by
// the queue itself.
const interactionsKey = "interactions"

// InteractionQueue manages the stream of observed entity interactions
// awaiting progress recalculation
type InteractionQueue struct {
	client *Client
}

func NewInteractionQueue(client *Client) *InteractionQueue {
	return &InteractionQueue{
		client: client,
	}
}

// Enqueue adds an interaction event to the end of the global queue
func (q *InteractionQueue) Enqueue(ctx context.Context, event *queue.InteractionEvent) error {
	if event.RequestID == "" {
		event.RequestID = uuid.NewString()
	}
	if event.EnqueuedAt.IsZero() {
		event.EnqueuedAt = time.Now().UTC()
	}

	data, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize interaction event: %w", err)
	}

	if err := q.client.rdb.RPush(ctx, interactionsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue interaction event: %w", err)
	}
	return nil
}

// Dequeue removes and returns the next interaction event.
// Returns nil if the queue is empty
func (q *InteractionQueue) Dequeue(ctx context.Context) (*queue.InteractionEvent, error) {
	result, err := q.client.rdb.LPop(ctx, interactionsKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Queue is empty
		}
		return nil, fmt.Errorf("failed to dequeue interaction event: %w", err)
	}

	event, err := queue.FromJSON([]byte(result))
	if err != nil {
		return nil, fmt.Errorf("failed to parse interaction event: %w", err)
	}
	return event, nil
}

// BlockingDequeue blocks until an interaction event is available, then
// returns it. timeout is in seconds, 0 means wait forever
func (q *InteractionQueue) BlockingDequeue(ctx context.Context, timeout int) (*queue.InteractionEvent, error) {
	result, err := q.client.rdb.BLPop(ctx, time.Duration(timeout)*time.Second, interactionsKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Timed out with nothing queued
		}
		return nil, fmt.Errorf("failed to dequeue interaction event: %w", err)
	}

	// BLPop returns [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BLPop result: %v", result)
	}

	event, err := queue.FromJSON([]byte(result[1]))
	if err != nil {
		return nil, fmt.Errorf("failed to parse interaction event: %w", err)
	}
	return event, nil
}

// Requeue pushes an event back to the end of the queue, used when the
// event's session is locked by another worker
func (q *InteractionQueue) Requeue(ctx context.Context, event *queue.InteractionEvent) error {
	data, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize interaction event: %w", err)
	}
	if err := q.client.rdb.RPush(ctx, interactionsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to requeue interaction event: %w", err)
	}
	return nil
}

// Depth returns the number of queued interaction events
func (q *InteractionQueue) Depth(ctx context.Context) (int, error) {
	count, err := q.client.rdb.LLen(ctx, interactionsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue depth: %w", err)
	}
	return int(count), nil
}
