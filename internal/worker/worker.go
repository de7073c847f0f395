package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/quest-engine/internal/services/queue"
	queuePkg "github.com/jwebster45206/quest-engine/pkg/queue"
)

const (
	workerTimeout = 5 * time.Second
	lockTTL       = 30 * time.Second
)

// Worker drains the interaction queue. Multiple workers compete on the
// global queue; a per-session Redis lock keeps one session's events from
// being processed by two workers at once.
type Worker struct {
	id          string
	queue       *queue.InteractionQueue
	processor   *InteractionProcessor
	redisClient *redis.Client
	log         *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
}

// New creates a new worker instance
func New(q *queue.InteractionQueue, processor *InteractionProcessor, redisClient *redis.Client, log *slog.Logger, workerID string) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}

	return &Worker{
		id:          workerID,
		queue:       q,
		processor:   processor,
		redisClient: redisClient,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins processing events from the queue
func (w *Worker) Start() error {
	w.log.Info("Worker starting", "worker_id", w.id)

	for {
		select {
		case <-w.ctx.Done():
			w.log.Info("Worker shutting down", "worker_id", w.id)
			return nil
		default:
			if err := w.processNextEvent(); err != nil {
				w.log.Error("Error processing event", "error", err, "worker_id", w.id)
				// Continue processing even on error
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.log.Info("Worker stop requested", "worker_id", w.id)
	w.cancel()
}

// processNextEvent pulls the next event from the queue and processes it
func (w *Worker) processNextEvent() error {
	// Block waiting for the next event (timeout to check for shutdown)
	ctx, cancel := context.WithTimeout(w.ctx, workerTimeout+time.Second)
	defer cancel()

	event, err := w.queue.BlockingDequeue(ctx, int(workerTimeout.Seconds()))
	if err != nil {
		return fmt.Errorf("failed to dequeue event: %w", err)
	}

	if event == nil {
		// Queue is empty or timeout occurred - this is normal
		return nil
	}

	w.log.Info("Received event from queue",
		"worker_id", w.id,
		"request_id", event.RequestID,
		"session_id", event.SessionID.String(),
		"entity_id", event.EntityID,
	)

	// Try to acquire session lock
	locked, err := w.acquireSessionLock(event.SessionID)
	if err != nil {
		return fmt.Errorf("failed to acquire session lock: %w", err)
	}
	if !locked {
		// Another worker is processing this session
		// Re-queue at the end and try next event
		w.log.Info("Session already locked, re-queueing event",
			"worker_id", w.id,
			"request_id", event.RequestID,
			"session_id", event.SessionID.String(),
		)
		if err := w.queue.Requeue(w.ctx, event); err != nil {
			return fmt.Errorf("failed to re-queue event: %w", err)
		}
		return nil
	}

	// Process the event, blocking the worker until done
	defer w.releaseSessionLock(event.SessionID)
	return w.processEvent(event)
}

// acquireSessionLock attempts to acquire a lock for a session
// Returns true if lock was acquired, false if already locked
func (w *Worker) acquireSessionLock(sessionID uuid.UUID) (bool, error) {
	lockKey := fmt.Sprintf("session-lock:%s", sessionID.String())

	result, err := w.redisClient.SetNX(w.ctx, lockKey, w.id, lockTTL).Result()
	if err != nil {
		return false, err
	}

	return result, nil
}

// releaseSessionLock releases the lock for a session
func (w *Worker) releaseSessionLock(sessionID uuid.UUID) {
	lockKey := fmt.Sprintf("session-lock:%s", sessionID.String())

	// Only delete if we own the lock
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	if err := script.Run(w.ctx, w.redisClient, []string{lockKey}, w.id).Err(); err != nil {
		w.log.Error("Failed to release session lock", "error", err, "session_id", sessionID.String())
	}
}

// processEvent processes a single event using the InteractionProcessor
func (w *Worker) processEvent(event *queuePkg.InteractionEvent) error {
	start := time.Now()

	if err := w.processor.Process(w.ctx, event); err != nil {
		return err
	}

	w.log.Info("Event processed",
		"worker_id", w.id,
		"request_id", event.RequestID,
		"session_id", event.SessionID.String(),
		"entity_id", event.EntityID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
