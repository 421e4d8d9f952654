package task

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	rec       Record
	updatedAt time.Time
}

// MemoryStore keeps records in a mutex-guarded map.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]memoryEntry
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]memoryEntry),
		now:   time.Now,
	}
}

func (m *MemoryStore) Put(_ context.Context, id string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[id] = memoryEntry{rec: rec, updatedAt: m.now()}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tasks[id]
	return e.rec, ok, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
	return nil
}

func (m *MemoryStore) Take(_ context.Context, id string, want Status) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.tasks[id]
	if !ok || e.rec.Status != want {
		return Record{}, false, nil
	}
	delete(m.tasks, id)
	return e.rec, true, nil
}

func (m *MemoryStore) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.tasks {
		if e.rec.Status.IsFinished() && e.updatedAt.Before(cutoff) {
			delete(m.tasks, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of live records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tasks)
}

func (m *MemoryStore) Close() error {
	return nil
}
