package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/quest-engine/pkg/completion"
	"github.com/jwebster45206/quest-engine/pkg/queue"
)

type recordedCompletion struct {
	sessionID uuid.UUID
	detail    completion.Detail
}

type fakeRecorder struct {
	recorded []recordedCompletion
	err      error
}

func (f *fakeRecorder) RecordCompletion(ctx context.Context, sessionID uuid.UUID, detail completion.Detail) error {
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, recordedCompletion{sessionID, detail})
	return nil
}

type fakeHandler struct {
	calls []string
	err   error
}

func (f *fakeHandler) OnEntityInteraction(ctx context.Context, sessionID uuid.UUID, entityID, characterID string) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, entityID)
	return nil
}

func testProcessor() (*InteractionProcessor, *fakeRecorder, *fakeHandler) {
	recorder := &fakeRecorder{}
	handler := &fakeHandler{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewInteractionProcessor(recorder, handler, logger), recorder, handler
}

func TestProcessRecordsAndRecalculates(t *testing.T) {
	p, recorder, handler := testProcessor()
	sessionID := uuid.New()
	enqueued := time.Now().UTC().Add(-time.Minute)

	event := &queue.InteractionEvent{
		RequestID:   "r1",
		Type:        queue.EventTypeInteraction,
		SessionID:   sessionID,
		EntityID:    "altar",
		CharacterID: "pc-1",
		Success:     true,
		Quality:     0.85,
		EnqueuedAt:  enqueued,
	}
	if err := p.Process(context.Background(), event); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(recorder.recorded) != 1 {
		t.Fatalf("recorded completions: got %d, want 1", len(recorder.recorded))
	}
	rec := recorder.recorded[0]
	if rec.sessionID != sessionID {
		t.Errorf("session id: got %s, want %s", rec.sessionID, sessionID)
	}
	if rec.detail.EntityID != "altar" || rec.detail.Actor != "pc-1" {
		t.Errorf("detail fields: got %+v", rec.detail)
	}
	if rec.detail.SuccessQuality != 0.85 {
		t.Errorf("quality: got %v, want 0.85", rec.detail.SuccessQuality)
	}
	if !rec.detail.CompletedAt.Equal(enqueued) {
		t.Errorf("completed at: got %v, want enqueue time %v", rec.detail.CompletedAt, enqueued)
	}

	if len(handler.calls) != 1 || handler.calls[0] != "altar" {
		t.Errorf("handler calls: got %v, want [altar]", handler.calls)
	}
}

func TestProcessDefaultsQuality(t *testing.T) {
	p, recorder, _ := testProcessor()

	event := &queue.InteractionEvent{
		Type:      queue.EventTypeInteraction,
		SessionID: uuid.New(),
		EntityID:  "door",
		Success:   true,
	}
	if err := p.Process(context.Background(), event); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if recorder.recorded[0].detail.SuccessQuality != defaultSuccessQuality {
		t.Errorf("quality: got %v, want default %v", recorder.recorded[0].detail.SuccessQuality, defaultSuccessQuality)
	}
}

func TestProcessDropsFailedInteractions(t *testing.T) {
	p, recorder, handler := testProcessor()

	event := &queue.InteractionEvent{
		Type:      queue.EventTypeInteraction,
		SessionID: uuid.New(),
		EntityID:  "trap",
		Success:   false,
	}
	if err := p.Process(context.Background(), event); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(recorder.recorded) != 0 {
		t.Error("failed interaction recorded a completion")
	}
	if len(handler.calls) != 0 {
		t.Error("failed interaction triggered a recalculation")
	}
}

func TestProcessRejectsUnknownEventType(t *testing.T) {
	p, _, _ := testProcessor()

	event := &queue.InteractionEvent{Type: "mystery", SessionID: uuid.New(), EntityID: "x", Success: true}
	if err := p.Process(context.Background(), event); err == nil {
		t.Error("expected error for unknown event type")
	}
}

func TestProcessSurfacesCollaboratorErrors(t *testing.T) {
	p, recorder, _ := testProcessor()
	recorder.err = errors.New("redis down")

	event := &queue.InteractionEvent{
		Type:      queue.EventTypeInteraction,
		SessionID: uuid.New(),
		EntityID:  "door",
		Success:   true,
	}
	if err := p.Process(context.Background(), event); err == nil {
		t.Error("expected error when recording fails")
	}
}
