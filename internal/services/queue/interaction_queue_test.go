package queue

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"

	"github.com/jwebster45206/quest-engine/pkg/queue"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	// Start miniredis
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	// Create queue client
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	redisURL := "redis://" + mr.Addr()

	client, err := NewClient(redisURL, logger)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create queue client: %v", err)
	}

	return client, mr
}

func TestInteractionQueue_EnqueueAndDequeue(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	q := NewInteractionQueue(client)
	ctx := context.Background()
	sessionID := uuid.New()

	events := []*queue.InteractionEvent{
		{Type: queue.EventTypeInteraction, SessionID: sessionID, EntityID: "door", CharacterID: "pc-1", Success: true},
		{Type: queue.EventTypeInteraction, SessionID: sessionID, EntityID: "chest", CharacterID: "pc-1", Success: true, Quality: 0.9},
	}
	for _, e := range events {
		if err := q.Enqueue(ctx, e); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		if e.RequestID == "" {
			t.Error("Enqueue did not assign a request id")
		}
		if e.EnqueuedAt.IsZero() {
			t.Error("Enqueue did not stamp EnqueuedAt")
		}
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth: %v", err)
	}
	if depth != 2 {
		t.Errorf("depth: got %d, want 2", depth)
	}

	// FIFO order
	first, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if first == nil || first.EntityID != "door" {
		t.Errorf("first dequeue: got %+v, want door", first)
	}
	if first.SessionID != sessionID {
		t.Errorf("session id round trip: got %s, want %s", first.SessionID, sessionID)
	}

	second, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if second == nil || second.EntityID != "chest" {
		t.Errorf("second dequeue: got %+v, want chest", second)
	}
	if second.Quality != 0.9 {
		t.Errorf("quality round trip: got %v, want 0.9", second.Quality)
	}
}

func TestInteractionQueue_DequeueEmpty(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	q := NewInteractionQueue(client)

	event, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue on empty queue: %v", err)
	}
	if event != nil {
		t.Errorf("got %+v, want nil for empty queue", event)
	}
}

func TestInteractionQueue_Requeue(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	q := NewInteractionQueue(client)
	ctx := context.Background()
	sessionID := uuid.New()

	if err := q.Enqueue(ctx, &queue.InteractionEvent{Type: queue.EventTypeInteraction, SessionID: sessionID, EntityID: "a", Success: true}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, &queue.InteractionEvent{Type: queue.EventTypeInteraction, SessionID: sessionID, EntityID: "b", Success: true}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Simulate a locked session: put the head back behind the other event.
	head, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if err := q.Requeue(ctx, head); err != nil {
		t.Fatalf("Requeue: %v", err)
	}

	next, _ := q.Dequeue(ctx)
	if next.EntityID != "b" {
		t.Errorf("after requeue: got %s, want b", next.EntityID)
	}
	last, _ := q.Dequeue(ctx)
	if last.EntityID != "a" {
		t.Errorf("requeued event: got %s, want a", last.EntityID)
	}
}
