package settle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropforge/dropforge/internal/game/opening"
)

// MemoryOutcomeStore is an in-process OutcomeStore for tests and standalone
// mode. Safe for concurrent use.
type MemoryOutcomeStore struct {
	mu       sync.Mutex
	outcomes map[uuid.UUID]opening.Outcome
	settled  map[uuid.UUID]Result
}

// NewMemoryOutcomeStore creates an empty MemoryOutcomeStore.
func NewMemoryOutcomeStore() *MemoryOutcomeStore {
	return &MemoryOutcomeStore{
		outcomes: make(map[uuid.UUID]opening.Outcome),
		settled:  make(map[uuid.UUID]Result),
	}
}

// Put implements OutcomeStore.
func (s *MemoryOutcomeStore) Put(ctx context.Context, out opening.Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[out.ID] = out
	return nil
}

// Get implements OutcomeStore.
func (s *MemoryOutcomeStore) Get(ctx context.Context, id uuid.UUID) (opening.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return opening.Outcome{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := s.outcomes[id]
	if !ok {
		return opening.Outcome{}, ErrOutcomeNotFound
	}
	return out, nil
}

// Claim implements OutcomeStore.
func (s *MemoryOutcomeStore) Claim(ctx context.Context, id uuid.UUID, decision Decision, payout int64, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.outcomes[id]; !ok {
		return ErrOutcomeNotFound
	}
	if _, ok := s.settled[id]; ok {
		return ErrAlreadySettled
	}
	s.settled[id] = Result{OutcomeID: id, Decision: decision, Payout: payout, SettledAt: at}
	return nil
}

// Release implements OutcomeStore.
func (s *MemoryOutcomeStore) Release(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.settled, id)
	return nil
}

// Settlement implements OutcomeStore.
func (s *MemoryOutcomeStore) Settlement(ctx context.Context, id uuid.UUID) (Result, bool, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.settled[id]
	return res, ok, nil
}

// MemoryLedger is an in-process BalanceLedger for tests and standalone mode.
// Balances never go below zero. Safe for concurrent use.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int64
}

// NewMemoryLedger creates a MemoryLedger with the given starting balances.
func NewMemoryLedger(balances map[string]int64) *MemoryLedger {
	copied := make(map[string]int64, len(balances))
	for user, bal := range balances {
		copied[user] = bal
	}
	return &MemoryLedger{balances: copied}
}

// Debit implements BalanceLedger.
func (l *MemoryLedger) Debit(ctx context.Context, userID string, amount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[userID] < amount {
		return ErrInsufficientFunds
	}
	l.balances[userID] -= amount
	return nil
}

// Credit implements BalanceLedger.
func (l *MemoryLedger) Credit(ctx context.Context, userID string, amount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] += amount
	return nil
}

// Balance returns the user's current balance, for assertions and status.
func (l *MemoryLedger) Balance(userID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

// MemoryInventory is an in-process InventoryStore. Safe for concurrent use.
type MemoryInventory struct {
	mu    sync.Mutex
	items map[string][]ItemRecord
}

// NewMemoryInventory creates an empty MemoryInventory.
func NewMemoryInventory() *MemoryInventory {
	return &MemoryInventory{items: make(map[string][]ItemRecord)}
}

// Append implements InventoryStore.
func (i *MemoryInventory) Append(ctx context.Context, userID string, record ItemRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.items[userID] = append(i.items[userID], record)
	return nil
}

// Items returns the user's inventory records, for assertions and status.
func (i *MemoryInventory) Items(userID string) []ItemRecord {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]ItemRecord, len(i.items[userID]))
	copy(out, i.items[userID])
	return out
}
