package pity

import (
	"context"
	"sync"

	"github.com/dropforge/dropforge/internal/game/loot"
)

// MemoryStore is an in-process Store for tests and standalone mode.
// Mutations for the same (userID, scopeID) serialize on a per-key lock;
// distinct keys do not contend.
type MemoryStore struct {
	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	states map[string]map[loot.RarityTier]State
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:  make(map[string]*sync.Mutex),
		states: make(map[string]map[loot.RarityTier]State),
	}
}

// Mutate implements Store.
func (m *MemoryStore) Mutate(ctx context.Context, userID, scopeID string, fn func(states map[loot.RarityTier]State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := userID + "\x00" + scopeID

	m.mu.Lock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	stored := m.states[key]
	m.mu.Unlock()

	working := make(map[loot.RarityTier]State, len(stored))
	for tier, st := range stored {
		working[tier] = st
	}

	if err := fn(working); err != nil {
		return err
	}

	m.mu.Lock()
	m.states[key] = working
	m.mu.Unlock()
	return nil
}
