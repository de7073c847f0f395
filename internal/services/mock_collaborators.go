package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/jwebster45206/quest-engine/pkg/completion"
	"github.com/jwebster45206/quest-engine/pkg/milestone"
	"github.com/jwebster45206/quest-engine/pkg/unlock"
)

// Mock collaborators for engine tests. Call recording is guarded so tests
// exercising session-level parallelism stay race-free.

// MockCompletionStore serves canned completion facts.
type MockCompletionStore struct {
	mu        sync.Mutex
	Completed map[string]bool
	Details   map[string]completion.Detail

	ListError    error
	DetailsError error
}

func NewMockCompletionStore() *MockCompletionStore {
	return &MockCompletionStore{
		Completed: make(map[string]bool),
		Details:   make(map[string]completion.Detail),
	}
}

func (m *MockCompletionStore) Complete(entityID string, detail ...completion.Detail) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Completed[entityID] = true
	if len(detail) > 0 {
		m.Details[entityID] = detail[0]
	}
}

func (m *MockCompletionStore) ListCompleted(ctx context.Context, sessionID uuid.UUID, entityIDs []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListError != nil {
		return nil, m.ListError
	}
	var out []string
	for _, id := range entityIDs {
		if m.Completed[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *MockCompletionStore) GetCompletionDetails(ctx context.Context, sessionID uuid.UUID, entityIDs []string) (map[string]completion.Detail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DetailsError != nil {
		return nil, m.DetailsError
	}
	out := make(map[string]completion.Detail)
	for _, id := range entityIDs {
		if d, ok := m.Details[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

// MockEntityGenerator mints deterministic entity ids.
type MockEntityGenerator struct {
	mu        sync.Mutex
	Generated []string
	FailNames map[string]bool
}

func NewMockEntityGenerator() *MockEntityGenerator {
	return &MockEntityGenerator{FailNames: make(map[string]bool)}
}

func (m *MockEntityGenerator) GenerateEntity(ctx context.Context, sessionID uuid.UUID, locationID, name, kind string, actions []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNames[name] {
		return "", fmt.Errorf("mock generation failure for %s", name)
	}
	id := fmt.Sprintf("entity-%s", name)
	m.Generated = append(m.Generated, id)
	return id, nil
}

// MockNarrativeGenerator records completion narration calls.
type MockNarrativeGenerator struct {
	mu    sync.Mutex
	Calls []uuid.UUID
	Err   error
}

func (m *MockNarrativeGenerator) GenerateNarrative(ctx context.Context, ms *milestone.Milestone, sessionID uuid.UUID, characterID, narrativeText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Calls = append(m.Calls, ms.ID)
	return nil
}

func (m *MockNarrativeGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockFeedbackGenerator records feedback calls.
type MockFeedbackGenerator struct {
	mu    sync.Mutex
	Calls []uuid.UUID
	Err   error
}

func (m *MockFeedbackGenerator) GenerateFeedback(ctx context.Context, ms *milestone.Milestone, sessionID uuid.UUID, characterID, narrativeText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Calls = append(m.Calls, ms.ID)
	return nil
}

func (m *MockFeedbackGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockGMNotifier records unlock notifications.
type MockGMNotifier struct {
	mu     sync.Mutex
	Events []*unlock.Event
	Err    error
}

func (m *MockGMNotifier) NotifyUnlock(ctx context.Context, event *unlock.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Events = append(m.Events, event)
	return nil
}

func (m *MockGMNotifier) Notified() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Events)
}

// MockUnlockSink records the signals the progress engine forwards.
type MockUnlockSink struct {
	mu           sync.Mutex
	Progress     []float64
	Completions  []uuid.UUID
	Interactions []string
}

func (m *MockUnlockSink) OnMilestoneProgress(ctx context.Context, sessionID, milestoneID uuid.UUID, progress float64, characterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Progress = append(m.Progress, progress)
	return nil
}

func (m *MockUnlockSink) OnMilestoneCompletion(ctx context.Context, sessionID uuid.UUID, ms *milestone.Milestone, characterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Completions = append(m.Completions, ms.ID)
	return nil
}

func (m *MockUnlockSink) OnEntityInteraction(ctx context.Context, sessionID uuid.UUID, entityID, characterID string, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Interactions = append(m.Interactions, entityID)
	return nil
}
