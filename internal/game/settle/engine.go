package settle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine settles committed outcomes exactly once. Safe for concurrent use;
// the OutcomeStore's claim semantics arbitrate races on the same outcome.
type Engine struct {
	outcomes  OutcomeStore
	ledger    BalanceLedger
	inventory InventoryStore
	// sellBackRate is the fraction of an item's value credited on sell.
	sellBackRate float64
	logger       *zap.Logger
}

// NewEngine creates a settlement Engine.
//
// Precondition: outcomes, ledger, inventory, and logger must be non-nil;
// sellBackRate must be in (0, 1].
func NewEngine(outcomes OutcomeStore, ledger BalanceLedger, inventory InventoryStore, sellBackRate float64, logger *zap.Logger) *Engine {
	return &Engine{
		outcomes:     outcomes,
		ledger:       ledger,
		inventory:    inventory,
		sellBackRate: sellBackRate,
		logger:       logger,
	}
}

// Payout returns the sell-back credit for an item value:
// floor(value × sellBackRate).
func (e *Engine) Payout(value int64) int64 {
	return int64(math.Floor(float64(value) * e.sellBackRate))
}

// Settle consumes outcomeID with the given decision. Exactly one of the two
// mutations (balance credit or inventory append) ever executes per outcome.
//
// Postcondition: on ErrAlreadySettled the previously recorded Result is
// returned and nothing is mutated. On a downstream ledger/inventory failure
// the claim is released and the caller may retry; the outcome is never
// re-rolled.
func (e *Engine) Settle(ctx context.Context, outcomeID uuid.UUID, decision Decision) (Result, error) {
	if _, err := ParseDecision(string(decision)); err != nil {
		return Result{}, err
	}

	out, err := e.outcomes.Get(ctx, outcomeID)
	if err != nil {
		return Result{}, err
	}

	var payout int64
	if decision == DecisionSell {
		payout = e.Payout(out.Entry.Value)
	}

	settledAt := time.Now().UTC()
	if err := e.outcomes.Claim(ctx, outcomeID, decision, payout, settledAt); err != nil {
		if errors.Is(err, ErrAlreadySettled) {
			prev, ok, serr := e.outcomes.Settlement(ctx, outcomeID)
			if serr != nil || !ok {
				return Result{}, fmt.Errorf("loading existing settlement: %w", err)
			}
			e.logger.Warn("duplicate settlement attempt",
				zap.String("outcome_id", outcomeID.String()),
				zap.String("decision", string(decision)),
				zap.String("settled_as", string(prev.Decision)),
			)
			return prev, ErrAlreadySettled
		}
		return Result{}, err
	}

	var mutErr error
	switch decision {
	case DecisionSell:
		mutErr = e.ledger.Credit(ctx, out.UserID, payout)
	case DecisionKeep:
		mutErr = e.inventory.Append(ctx, out.UserID, ItemRecord{
			ItemName:     out.Entry.Name,
			ItemValue:    out.Entry.Value,
			Tier:         out.Tier,
			SourceCaseID: out.CaseID,
			AcquiredAt:   settledAt,
		})
	}
	if mutErr != nil {
		// Release the claim so a retry can settle; the outcome remains
		// committed and keeps its identity.
		if relErr := e.outcomes.Release(ctx, outcomeID); relErr != nil {
			e.logger.Error("releasing failed settlement claim",
				zap.String("outcome_id", outcomeID.String()),
				zap.Error(relErr),
			)
		}
		return Result{}, fmt.Errorf("settling outcome %s: %w", outcomeID, mutErr)
	}

	result := Result{OutcomeID: outcomeID, Decision: decision, Payout: payout, SettledAt: settledAt}
	e.logger.Info("outcome settled",
		zap.String("outcome_id", outcomeID.String()),
		zap.String("user_id", out.UserID),
		zap.String("decision", string(decision)),
		zap.Int64("payout", payout),
	)
	return result, nil
}
