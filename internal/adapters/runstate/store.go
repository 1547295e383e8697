// Package runstate persists the flag that coordinates starting and stopping the
// simulation across processes.
package runstate

import (
	"context"
	"sync"
)

// DefaultKey is the key the flag is stored under when none is configured.
const DefaultKey = "vitalstream:simulation:running"

// Store is the persisted running flag. Writes are last-writer-wins.
type Store interface {
	// Get reports the flag. A flag that was never written reads as false.
	Get(ctx context.Context) (bool, error)
	// Set writes the flag.
	Set(ctx context.Context, running bool) error
}

// MemoryStore is a process-local Store for tests and single-process runs.
type MemoryStore struct {
	mu      sync.RWMutex
	running bool
}

// NewMemoryStore creates a store whose flag starts false.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns the current flag.
func (m *MemoryStore) Get(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running, nil
}

// Set stores the flag.
func (m *MemoryStore) Set(ctx context.Context, running bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.running = running
	m.mu.Unlock()
	return nil
}
