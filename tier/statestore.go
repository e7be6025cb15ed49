package tier

import (
	"context"
	"sync"

	"github.com/emberdb/ember/model"
)

// StateStore persists tier states so residency survives a process restart.
// Implementations must be safe for concurrent use.
type StateStore interface {
	// Put upserts a collection's state.
	Put(ctx context.Context, state State) error

	// Get returns a collection's state, or ErrNotRegistered.
	Get(ctx context.Context, id model.CollectionID) (State, error)

	// List returns the states of all known collections.
	List(ctx context.Context) ([]State, error)

	// Delete removes a collection's state. Absent ids are a no-op.
	Delete(ctx context.Context, id model.CollectionID) error
}

// Compile-time check to ensure MemoryStateStore satisfies the interface.
var _ StateStore = (*MemoryStateStore)(nil)

// MemoryStateStore is an in-memory StateStore for single-process use and
// testing.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[model.CollectionID]State
}

// NewMemoryStateStore creates a new in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		states: make(map[model.CollectionID]State),
	}
}

// Put upserts a collection's state.
func (m *MemoryStateStore) Put(_ context.Context, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[state.CollectionID] = state
	return nil
}

// Get returns a collection's state.
func (m *MemoryStateStore) Get(_ context.Context, id model.CollectionID) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[id]
	if !ok {
		return State{}, &ErrNotRegistered{ID: id}
	}
	return state, nil
}

// List returns the states of all known collections.
func (m *MemoryStateStore) List(_ context.Context) ([]State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make([]State, 0, len(m.states))
	for _, state := range m.states {
		states = append(states, state)
	}
	return states, nil
}

// Delete removes a collection's state.
func (m *MemoryStateStore) Delete(_ context.Context, id model.CollectionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, id)
	return nil
}
