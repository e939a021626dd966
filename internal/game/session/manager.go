package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropforge/dropforge/internal/game/loot"
	"github.com/dropforge/dropforge/internal/game/opening"
	"github.com/dropforge/dropforge/internal/game/rng"
	"github.com/dropforge/dropforge/internal/game/settle"
)

// Pity scope selectors.
const (
	ScopeCase   = "case"
	ScopeGlobal = "global"
)

// globalScopeID is the scope key used when pity counters span all cases.
const globalScopeID = "__global__"

// Catalog is the read-only case-definition source.
type Catalog interface {
	// Case returns the definition for caseID, or ErrCaseNotFound.
	Case(ctx context.Context, caseID string) (loot.CaseDefinition, error)
}

// Config holds the session-level game knobs.
type Config struct {
	// MaxOpenings bounds the opening count of a single session.
	MaxOpenings int
	// DecisionTimeout is how long outcomes may await a decision before the
	// sweep settles them as Keep.
	DecisionTimeout time.Duration
	// SweepInterval is how often the auto-keep sweep runs.
	SweepInterval time.Duration
	// Spin shapes generated spin sequences.
	Spin opening.SpinConfig
	// PityScope is ScopeCase (per-case counters) or ScopeGlobal.
	PityScope string
}

// Validate checks the session configuration invariants.
func (c Config) Validate() error {
	if c.MaxOpenings < 1 {
		return fmt.Errorf("session: max openings must be >= 1, got %d", c.MaxOpenings)
	}
	if c.DecisionTimeout <= 0 {
		return fmt.Errorf("session: decision timeout must be > 0, got %s", c.DecisionTimeout)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("session: sweep interval must be > 0, got %s", c.SweepInterval)
	}
	if c.PityScope != ScopeCase && c.PityScope != ScopeGlobal {
		return fmt.Errorf("session: pity scope must be %q or %q, got %q", ScopeCase, ScopeGlobal, c.PityScope)
	}
	return c.Spin.Validate()
}

// Manager runs opening sessions. Sessions for different users proceed fully
// in parallel; within one user the resolutions serialize on a per-user lock
// so pity counters are read and written in submission order.
type Manager struct {
	catalog  Catalog
	resolver *opening.Resolver
	engine   *settle.Engine
	ledger   settle.BalanceLedger
	revenue  opening.RevenueBook
	outcomes settle.OutcomeStore
	src      rng.Source
	cfg      Config
	logger   *zap.Logger

	mu        sync.RWMutex
	sessions  map[string]*Session
	userLocks map[string]*sync.Mutex

	stopCh  chan struct{}
	stopped sync.Once
}

// NewManager creates a session Manager.
//
// Precondition: cfg must have passed Validate; all dependencies must be
// non-nil.
func NewManager(catalog Catalog, resolver *opening.Resolver, engine *settle.Engine,
	ledger settle.BalanceLedger, revenue opening.RevenueBook, outcomes settle.OutcomeStore,
	src rng.Source, cfg Config, logger *zap.Logger) *Manager {
	return &Manager{
		catalog:   catalog,
		resolver:  resolver,
		engine:    engine,
		ledger:    ledger,
		revenue:   revenue,
		outcomes:  outcomes,
		src:       src,
		cfg:       cfg,
		logger:    logger,
		sessions:  make(map[string]*Session),
		userLocks: make(map[string]*sync.Mutex),
		stopCh:    make(chan struct{}),
	}
}

// userLock returns the exclusive lock serializing one user's resolutions.
func (m *Manager) userLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.userLocks[userID] = lock
	}
	return lock
}

// scopeID maps a case to its pity scope key.
func (m *Manager) scopeID(caseID string) string {
	if m.cfg.PityScope == ScopeGlobal {
		return globalScopeID
	}
	return caseID
}

// Open runs one session through to AwaitingDecision: validates the request,
// debits the full price up front, resolves count outcomes sequentially, and
// builds one spin sequence per outcome.
//
// Postcondition: on success the returned snapshot is in
// StateAwaitingDecision with count outcomes, and the user was debited
// exactly price × count before any outcome was drawn. On failure before the
// debit nothing is mutated; a resolution failure refunds the debit in full.
func (m *Manager) Open(ctx context.Context, userID, caseID string, count int) (Session, error) {
	if count < 1 || count > m.cfg.MaxOpenings {
		return Session{}, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidOpeningCount, count, m.cfg.MaxOpenings)
	}

	def, err := m.catalog.Case(ctx, caseID)
	if err != nil {
		return Session{}, err
	}

	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	sess := &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		CaseID:    caseID,
		State:     StateRequested,
		CreatedAt: time.Now().UTC(),
		Charged:   def.Price * int64(count),
	}

	// Reserve the full price before anything is revealed. A failed debit
	// aborts the session with no mutation anywhere.
	if err := m.ledger.Debit(ctx, userID, sess.Charged); err != nil {
		return Session{}, err
	}
	sess.State = StatePriceReserved

	bracket := opening.BracketFor(def.Price)
	if err := m.revenue.Add(ctx, bracket, sess.Charged); err != nil {
		m.refund(ctx, sess, "revenue book failure")
		return Session{}, fmt.Errorf("crediting revenue book: %w", err)
	}

	sess.State = StateResolving
	scope := m.scopeID(caseID)
	for i := 0; i < count; i++ {
		out, err := m.resolver.Resolve(ctx, def, userID, scope)
		if err != nil {
			// Resolution errors are configuration errors: abort the whole
			// session and charge for none of it.
			if revErr := m.revenue.Add(ctx, bracket, -sess.Charged); revErr != nil {
				m.logger.Error("reversing revenue after failed resolution", zap.Error(revErr))
			}
			m.refund(ctx, sess, "resolution failure")
			return Session{}, err
		}
		if err := m.outcomes.Put(ctx, out); err != nil {
			if revErr := m.revenue.Add(ctx, bracket, -sess.Charged); revErr != nil {
				m.logger.Error("reversing revenue after failed store", zap.Error(revErr))
			}
			m.refund(ctx, sess, "outcome store failure")
			return Session{}, fmt.Errorf("storing outcome: %w", err)
		}
		sess.Outcomes = append(sess.Outcomes, OutcomeStatus{Outcome: out})
	}
	sess.State = StateResolved

	for _, status := range sess.Outcomes {
		spin, err := opening.GenerateSpin(def, status.Outcome, m.cfg.Spin, m.src)
		if err != nil {
			// Outcomes are committed and paid for; a presentation failure
			// does not unwind them. The session still has to be registered,
			// or the outcomes could never be decided or swept.
			sess.State = StateAwaitingDecision
			m.mu.Lock()
			m.sessions[sess.ID] = sess
			m.mu.Unlock()
			m.logger.Error("spin generation failed, session registered without sequences",
				zap.String("session_id", sess.ID),
				zap.Error(err),
			)
			return Session{}, err
		}
		sess.Spins = append(sess.Spins, spin)
	}
	sess.State = StateAwaitingDecision

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	m.logger.Info("session opened",
		zap.String("session_id", sess.ID),
		zap.String("user_id", userID),
		zap.String("case_id", caseID),
		zap.Int("count", count),
		zap.Int64("charged", sess.Charged),
	)
	return sess.clone(), nil
}

// refund credits the session's full charge back after an aborted session.
func (m *Manager) refund(ctx context.Context, sess *Session, reason string) {
	if err := m.ledger.Credit(ctx, sess.UserID, sess.Charged); err != nil {
		m.logger.Error("refunding aborted session",
			zap.String("session_id", sess.ID),
			zap.String("user_id", sess.UserID),
			zap.Int64("amount", sess.Charged),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return
	}
	m.logger.Warn("session aborted, charge refunded",
		zap.String("session_id", sess.ID),
		zap.String("reason", reason),
	)
}

// Get returns a snapshot of the session.
func (m *Manager) Get(sessionID string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess.clone(), nil
}

// SpinSequences returns the session's presentation sequences.
func (m *Manager) SpinSequences(sessionID string) ([]opening.SpinSequence, error) {
	sess, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Spins, nil
}

// SubmitDecision settles one outcome of the session. Decisions may arrive
// in any order; each outcome settles exactly once. A duplicate decision
// returns the recorded result together with settle.ErrAlreadySettled.
func (m *Manager) SubmitDecision(ctx context.Context, sessionID string, index int, decision settle.Decision) (settle.Result, error) {
	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		m.mu.RUnlock()
		return settle.Result{}, ErrSessionNotFound
	}
	if index < 0 || index >= len(sess.Outcomes) {
		m.mu.RUnlock()
		return settle.Result{}, fmt.Errorf("%w: %d of %d", ErrOutcomeIndexOutOfRange, index, len(sess.Outcomes))
	}
	outcomeID := sess.Outcomes[index].Outcome.ID
	m.mu.RUnlock()

	result, err := m.engine.Settle(ctx, outcomeID, decision)
	if err != nil && !errors.Is(err, settle.ErrAlreadySettled) {
		return settle.Result{}, err
	}

	m.recordSettlement(sessionID, index, result)
	return result, err
}

// recordSettlement marks the outcome settled and completes the session when
// it was the last one.
func (m *Manager) recordSettlement(sessionID string, index int, result settle.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	sess.Outcomes[index].Settled = true
	sess.Outcomes[index].Result = result
	if sess.State == StateAwaitingDecision && sess.AllSettled() {
		sess.State = StateCompleted
		m.logger.Info("session completed", zap.String("session_id", sessionID))
	}
}

// Start runs the auto-keep sweep until Stop is called. Outcomes that sit
// undecided past the decision timeout settle as Keep. Blocks, satisfying
// the server lifecycle Service contract.
func (m *Manager) Start() error {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return nil
		case <-ticker.C:
			m.Sweep(context.Background())
		}
	}
}

// Stop terminates the sweep loop.
func (m *Manager) Stop() {
	m.stopped.Do(func() { close(m.stopCh) })
}

// Sweep settles expired undecided outcomes as Keep. Exposed for tests; the
// Start loop calls it on every tick.
func (m *Manager) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-m.cfg.DecisionTimeout)

	type pending struct {
		sessionID string
		index     int
		outcomeID uuid.UUID
	}
	var expired []pending

	m.mu.RLock()
	for id, sess := range m.sessions {
		if sess.State != StateAwaitingDecision || sess.CreatedAt.After(cutoff) {
			continue
		}
		for i, status := range sess.Outcomes {
			if !status.Settled {
				expired = append(expired, pending{sessionID: id, index: i, outcomeID: status.Outcome.ID})
			}
		}
	}
	m.mu.RUnlock()

	for _, p := range expired {
		result, err := m.engine.Settle(ctx, p.outcomeID, settle.DecisionKeep)
		if err != nil && !errors.Is(err, settle.ErrAlreadySettled) {
			m.logger.Error("auto-keep sweep failed",
				zap.String("outcome_id", p.outcomeID.String()),
				zap.Error(err),
			)
			continue
		}
		m.logger.Info("outcome auto-kept",
			zap.String("session_id", p.sessionID),
			zap.String("outcome_id", p.outcomeID.String()),
		)
		m.recordSettlement(p.sessionID, p.index, result)
	}
}
