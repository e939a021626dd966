package opening

import (
	"context"
	"sync"
)

// Price bracket boundaries in currency minor units.
const (
	bracketMidFloor     = 500
	bracketHighFloor    = 2000
	bracketPremiumFloor = 10000
)

// BracketFor maps a case price to its revenue bracket.
//
// Precondition: price > 0.
func BracketFor(price int64) string {
	switch {
	case price < bracketMidFloor:
		return "entry"
	case price < bracketHighFloor:
		return "mid"
	case price < bracketPremiumFloor:
		return "high"
	default:
		return "premium"
	}
}

// RevenueBook tracks net attributable revenue per price bracket: opening
// debits add to it, granted top-tier item values subtract from it. The
// throttle downgrades a natural top-tier draw while the bracket cannot
// cover the drawn item's value.
type RevenueBook interface {
	// Net returns the bracket's current net revenue.
	Net(ctx context.Context, bracket string) (int64, error)
	// Add adjusts the bracket's net revenue by delta (may be negative).
	Add(ctx context.Context, bracket string, delta int64) error
}

// MemoryRevenueBook is an in-process RevenueBook for tests and standalone
// mode. Safe for concurrent use.
type MemoryRevenueBook struct {
	mu  sync.Mutex
	net map[string]int64
}

// NewMemoryRevenueBook creates an empty MemoryRevenueBook.
func NewMemoryRevenueBook() *MemoryRevenueBook {
	return &MemoryRevenueBook{net: make(map[string]int64)}
}

// Net implements RevenueBook.
func (b *MemoryRevenueBook) Net(ctx context.Context, bracket string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.net[bracket], nil
}

// Add implements RevenueBook.
func (b *MemoryRevenueBook) Add(ctx context.Context, bracket string, delta int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.net[bracket] += delta
	return nil
}
