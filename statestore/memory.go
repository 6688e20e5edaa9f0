package statestore

import (
	"context"
	"maps"
	"sync"
)

// Memory keeps states in a map. It is the default store and loses
// everything when the process exits.
type Memory struct {
	mu     sync.RWMutex
	states map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{states: make(map[string]string)}
}

func (m *Memory) Load(_ context.Context, id string) (string, bool, error) {
	if err := checkID(id); err != nil {
		return "", false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[id]

	return state, ok, nil
}

func (m *Memory) Save(_ context.Context, id, state string) error {
	if err := checkID(id); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[id] = state

	return nil
}

func (m *Memory) List(_ context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return maps.Clone(m.states), nil
}

func (m *Memory) Close() error {
	return nil
}
