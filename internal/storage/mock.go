package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jwebster45206/quest-engine/pkg/milestone"
	"github.com/jwebster45206/quest-engine/pkg/unlock"
)

// MockStorage is a mock implementation of Storage for testing
type MockStorage struct {
	mu                sync.RWMutex
	milestones        map[uuid.UUID]map[uuid.UUID]*milestone.Milestone
	conditions        map[uuid.UUID]map[uuid.UUID]*unlock.Condition
	unlockEvents      map[uuid.UUID][]unlock.Event
	completionRecords map[uuid.UUID][]milestone.CompletionRecord
	catalogs          map[string]*Catalog
	pingError         error

	// AppendEventError forces AppendUnlockEvent to fail, for exercising
	// collaborator-error paths
	AppendEventError error
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		milestones:        make(map[uuid.UUID]map[uuid.UUID]*milestone.Milestone),
		conditions:        make(map[uuid.UUID]map[uuid.UUID]*unlock.Condition),
		unlockEvents:      make(map[uuid.UUID][]unlock.Event),
		completionRecords: make(map[uuid.UUID][]milestone.CompletionRecord),
		catalogs:          make(map[string]*Catalog),
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// Ping mocks storage ping
func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

// Close mocks storage close
func (m *MockStorage) Close() error {
	return nil
}

// SaveMilestone mocks saving a milestone
func (m *MockStorage) SaveMilestone(ctx context.Context, ms *milestone.Milestone) error {
	if ms == nil {
		return errors.New("milestone cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.milestones[ms.SessionID] == nil {
		m.milestones[ms.SessionID] = make(map[uuid.UUID]*milestone.Milestone)
	}
	copied := *ms
	m.milestones[ms.SessionID][ms.ID] = &copied
	return nil
}

// GetMilestone mocks loading a milestone
func (m *MockStorage) GetMilestone(ctx context.Context, sessionID, id uuid.UUID) (*milestone.Milestone, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.milestones[sessionID][id]
	if !ok {
		return nil, nil
	}
	copied := *ms
	return &copied, nil
}

// DeleteMilestone mocks deleting a milestone
func (m *MockStorage) DeleteMilestone(ctx context.Context, sessionID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.milestones[sessionID], id)
	return nil
}

// ListMilestones mocks listing a session's milestones
func (m *MockStorage) ListMilestones(ctx context.Context, sessionID uuid.UUID) ([]*milestone.Milestone, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*milestone.Milestone
	for _, ms := range m.milestones[sessionID] {
		copied := *ms
		out = append(out, &copied)
	}
	return out, nil
}

// ListMilestonesByEntity mocks the entity index lookup
func (m *MockStorage) ListMilestonesByEntity(ctx context.Context, sessionID uuid.UUID, entityID string) ([]*milestone.Milestone, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*milestone.Milestone
	for _, ms := range m.milestones[sessionID] {
		if ms.References(entityID) {
			copied := *ms
			out = append(out, &copied)
		}
	}
	return out, nil
}

// AppendCompletionRecord mocks appending a completion record
func (m *MockStorage) AppendCompletionRecord(ctx context.Context, rec *milestone.CompletionRecord) error {
	if rec == nil {
		return errors.New("completion record cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionRecords[rec.SessionID] = append(m.completionRecords[rec.SessionID], *rec)
	return nil
}

// ListCompletionRecords mocks listing completion records
func (m *MockStorage) ListCompletionRecords(ctx context.Context, sessionID uuid.UUID) ([]milestone.CompletionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]milestone.CompletionRecord(nil), m.completionRecords[sessionID]...), nil
}

// SaveUnlockCondition mocks saving an unlock condition
func (m *MockStorage) SaveUnlockCondition(ctx context.Context, c *unlock.Condition) error {
	if c == nil {
		return errors.New("condition cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conditions[c.SessionID] == nil {
		m.conditions[c.SessionID] = make(map[uuid.UUID]*unlock.Condition)
	}
	copied := *c
	m.conditions[c.SessionID][c.ID] = &copied
	return nil
}

// GetUnlockCondition mocks loading an unlock condition
func (m *MockStorage) GetUnlockCondition(ctx context.Context, sessionID, id uuid.UUID) (*unlock.Condition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conditions[sessionID][id]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

// ListUnlockConditions mocks listing a session's conditions
func (m *MockStorage) ListUnlockConditions(ctx context.Context, sessionID uuid.UUID) ([]*unlock.Condition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*unlock.Condition
	for _, c := range m.conditions[sessionID] {
		copied := *c
		out = append(out, &copied)
	}
	return out, nil
}

// AppendUnlockEvent mocks the atomic append + condition update
func (m *MockStorage) AppendUnlockEvent(ctx context.Context, event *unlock.Event, cond *unlock.Condition) error {
	if event == nil || cond == nil {
		return errors.New("event and condition cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendEventError != nil {
		return m.AppendEventError
	}
	m.unlockEvents[event.SessionID] = append(m.unlockEvents[event.SessionID], *event)
	if m.conditions[cond.SessionID] == nil {
		m.conditions[cond.SessionID] = make(map[uuid.UUID]*unlock.Condition)
	}
	copied := *cond
	m.conditions[cond.SessionID][cond.ID] = &copied
	return nil
}

// ListUnlockEvents mocks listing the unlock event log
func (m *MockStorage) ListUnlockEvents(ctx context.Context, sessionID uuid.UUID) ([]unlock.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]unlock.Event(nil), m.unlockEvents[sessionID]...), nil
}

// MarkNotificationSent mocks flipping the notification flag
func (m *MockStorage) MarkNotificationSent(ctx context.Context, sessionID, eventID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.unlockEvents[sessionID]
	for i := range events {
		if events[i].ID == eventID {
			events[i].NotificationSent = true
			return nil
		}
	}
	return errors.New("unlock event not found")
}

// AddCatalog registers a catalog with the mock
func (m *MockStorage) AddCatalog(filename string, c *Catalog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalogs[filename] = c
}

// ListCatalogs mocks listing catalogs
func (m *MockStorage) ListCatalogs(ctx context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.catalogs))
	for filename, c := range m.catalogs {
		out[c.Name] = filename
	}
	return out, nil
}

// GetCatalog mocks loading a catalog
func (m *MockStorage) GetCatalog(ctx context.Context, filename string) (*Catalog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.catalogs[filename]
	if !ok {
		return nil, errors.New("catalog not found: " + filename)
	}
	return c, nil
}
