package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"wp-actionqueue/model"
)

// Memory is a mutex-guarded in-memory Store. It backs unit tests and
// the degraded no-database mode; ordering matches the Postgres
// implementation (created_at descending, insertion order as tie-break).
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*model.ActionEntry
	order   map[string]int
	seq     int
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*model.ActionEntry),
		order:   make(map[string]int),
	}
}

func (m *Memory) Insert(ctx context.Context, entry model.ActionEntry) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.ID = uuid.New().String()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.seq++
	m.order[entry.ID] = m.seq
	m.entries[entry.ID] = &entry
	return entry.ID, nil
}

func (m *Memory) MarkCompleted(ctx context.Context, id string, afterState json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[id]
	if !ok || !entry.Status.IsLive() {
		return nil
	}
	now := time.Now().UTC()
	entry.Status = model.StatusCompleted
	entry.AfterState = afterState
	entry.CompletedAt = &now
	return nil
}

func (m *Memory) MarkFailed(ctx context.Context, id string, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[id]
	if !ok || !entry.Status.IsLive() {
		return nil
	}
	now := time.Now().UTC()
	entry.Status = model.StatusFailed
	entry.ErrorMessage = errorMessage
	entry.CompletedAt = &now
	return nil
}

func (m *Memory) LatestLiveForResource(ctx context.Context, websiteID, resourceType, resourceID string) (*model.ActionEntry, error) {
	live, err := m.LiveForWebsite(ctx, websiteID)
	if err != nil {
		return nil, err
	}
	for i := range live {
		if live[i].ResourceType == resourceType && live[i].ResourceID == resourceID {
			entry := live[i]
			return &entry, nil
		}
	}
	return nil, nil
}

func (m *Memory) LiveForWebsite(ctx context.Context, websiteID string) ([]model.ActionEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []model.ActionEntry
	for _, entry := range m.entries {
		if entry.WebsiteID == websiteID && entry.Status.IsLive() {
			entries = append(entries, *entry)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return m.order[entries[i].ID] > m.order[entries[j].ID]
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

func (m *Memory) CountLive(ctx context.Context, websiteID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, entry := range m.entries {
		if entry.WebsiteID == websiteID && entry.Status.IsLive() {
			count++
		}
	}
	return count, nil
}

// Get returns a copy of the entry with the given id, for tests.
func (m *Memory) Get(id string) (model.ActionEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[id]
	if !ok {
		return model.ActionEntry{}, false
	}
	return *entry, true
}
