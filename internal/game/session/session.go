// Package session coordinates case-opening sessions from the initial debit
// through resolution, presentation, and per-outcome settlement.
package session

import (
	"errors"
	"time"

	"github.com/dropforge/dropforge/internal/game/loot"
	"github.com/dropforge/dropforge/internal/game/opening"
	"github.com/dropforge/dropforge/internal/game/settle"
)

var (
	// ErrSessionNotFound is returned for an unknown session ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidOpeningCount is returned when the requested opening count is
	// outside the allowed bound.
	ErrInvalidOpeningCount = errors.New("invalid opening count")
	// ErrOutcomeIndexOutOfRange is returned when a decision targets an
	// outcome index the session does not have.
	ErrOutcomeIndexOutOfRange = errors.New("outcome index out of range")
	// ErrCaseNotFound is returned when the catalog has no such case.
	ErrCaseNotFound = errors.New("case not found")
)

// State is an opening session's position in its lifecycle.
type State string

// Session states in order. PriceReserved, Resolving, and Resolved are
// transient: a session observed from outside is either awaiting decisions
// or completed, because resolution runs to the end of Open.
const (
	StateRequested        State = "requested"
	StatePriceReserved    State = "price_reserved"
	StateResolving        State = "resolving"
	StateResolved         State = "resolved"
	StateAwaitingDecision State = "awaiting_decision"
	StateCompleted        State = "completed"
)

// OutcomeStatus pairs a committed outcome with its settlement progress.
type OutcomeStatus struct {
	Outcome opening.Outcome
	Settled bool
	Result  settle.Result
}

// Session is one user-initiated batch of openings. Snapshots returned by
// the Manager are copies; the Manager owns the authoritative record.
type Session struct {
	ID        string
	UserID    string
	CaseID    string
	State     State
	CreatedAt time.Time
	// Charged is the total debited up front: price × opening count.
	Charged int64
	// Outcomes holds one entry per opening, in submission order.
	Outcomes []OutcomeStatus
	// Spins holds one presentation sequence per outcome.
	Spins []opening.SpinSequence
}

// AllSettled reports whether every outcome has reached a terminal decision.
func (s *Session) AllSettled() bool {
	for _, o := range s.Outcomes {
		if !o.Settled {
			return false
		}
	}
	return true
}

// clone returns a deep copy safe to hand to callers.
func (s *Session) clone() Session {
	out := *s
	out.Outcomes = make([]OutcomeStatus, len(s.Outcomes))
	copy(out.Outcomes, s.Outcomes)
	out.Spins = make([]opening.SpinSequence, len(s.Spins))
	for i, spin := range s.Spins {
		copied := spin
		copied.Entries = make([]loot.LootEntry, len(spin.Entries))
		copy(copied.Entries, spin.Entries)
		out.Spins[i] = copied
	}
	return out
}
