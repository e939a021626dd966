// Package settle performs the exactly-once economic settlement of committed
// outcomes: sell-back credits or inventory awards, keyed by outcome ID.
package settle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dropforge/dropforge/internal/game/loot"
	"github.com/dropforge/dropforge/internal/game/opening"
)

var (
	// ErrAlreadySettled is returned when an outcome's idempotency key has
	// already been consumed. No mutation is performed on the second call.
	ErrAlreadySettled = errors.New("outcome already settled")
	// ErrOutcomeNotFound is returned for an unknown outcome ID.
	ErrOutcomeNotFound = errors.New("outcome not found")
	// ErrInsufficientFunds is returned by a debit that would take a balance
	// below zero. User-recoverable; no mutation is performed.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrLedgerUnavailable wraps external ledger failures. Settlement-time
	// occurrences are retryable; the outcome stays committed.
	ErrLedgerUnavailable = errors.New("balance ledger unavailable")
)

// Decision is the user's choice for one committed outcome.
type Decision string

// The two terminal decisions.
const (
	DecisionSell Decision = "sell"
	DecisionKeep Decision = "keep"
)

// ParseDecision converts a string into a Decision.
func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionSell, DecisionKeep:
		return Decision(s), nil
	}
	return "", fmt.Errorf("unknown decision %q", s)
}

// Result records a completed settlement.
type Result struct {
	OutcomeID uuid.UUID
	Decision  Decision
	// Payout is the credited amount for a sell, zero for a keep.
	Payout    int64
	SettledAt time.Time
}

// BalanceLedger is the external balance store. Both calls must be atomic
// single operations; this core never reads-then-writes a balance itself.
type BalanceLedger interface {
	// Debit atomically subtracts amount from the user's balance.
	// Returns ErrInsufficientFunds without mutation if the balance is short.
	Debit(ctx context.Context, userID string, amount int64) error
	// Credit atomically adds amount to the user's balance.
	Credit(ctx context.Context, userID string, amount int64) error
}

// ItemRecord is one kept item appended to a user's inventory.
type ItemRecord struct {
	ItemName     string
	ItemValue    int64
	Tier         loot.RarityTier
	SourceCaseID string
	AcquiredAt   time.Time
}

// InventoryStore is the external inventory append port.
type InventoryStore interface {
	Append(ctx context.Context, userID string, record ItemRecord) error
}

// OutcomeStore persists committed outcomes and owns the settlement
// idempotency key: the first Claim for an outcome wins, every later Claim
// fails with ErrAlreadySettled.
type OutcomeStore interface {
	// Put records a freshly committed outcome.
	Put(ctx context.Context, out opening.Outcome) error
	// Get returns a committed outcome, or ErrOutcomeNotFound.
	Get(ctx context.Context, id uuid.UUID) (opening.Outcome, error)
	// Claim marks the outcome settled. Returns ErrAlreadySettled if a claim
	// already succeeded, ErrOutcomeNotFound for an unknown ID.
	Claim(ctx context.Context, id uuid.UUID, decision Decision, payout int64, at time.Time) error
	// Release undoes a claim after a failed downstream mutation so the
	// caller can retry settlement. The outcome itself stays committed.
	Release(ctx context.Context, id uuid.UUID) error
	// Settlement returns the recorded result for a settled outcome.
	Settlement(ctx context.Context, id uuid.UUID) (Result, bool, error)
}
