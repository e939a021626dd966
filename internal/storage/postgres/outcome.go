package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropforge/dropforge/internal/game/loot"
	"github.com/dropforge/dropforge/internal/game/opening"
	"github.com/dropforge/dropforge/internal/game/settle"
)

// OutcomeRepository persists committed outcomes and their settlement state.
// It implements settle.OutcomeStore; the settled_at column is the
// idempotency key, claimed with a conditional single-statement update.
type OutcomeRepository struct {
	db *pgxpool.Pool
}

// NewOutcomeRepository creates an OutcomeRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewOutcomeRepository(db *pgxpool.Pool) *OutcomeRepository {
	return &OutcomeRepository{db: db}
}

// Put implements settle.OutcomeStore.
func (r *OutcomeRepository) Put(ctx context.Context, out opening.Outcome) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO outcomes
		   (id, user_id, case_id, item_name, item_value, item_weight, tier,
		    forced_by_pity, throttled, committed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		out.ID, out.UserID, out.CaseID,
		out.Entry.Name, out.Entry.Value, out.Entry.DropWeight, string(out.Tier),
		out.ForcedByPity, out.Throttled, out.CommittedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting outcome: %w", err)
	}
	return nil
}

// Get implements settle.OutcomeStore.
func (r *OutcomeRepository) Get(ctx context.Context, id uuid.UUID) (opening.Outcome, error) {
	var out opening.Outcome
	var tierName string
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, case_id, item_name, item_value, item_weight, tier,
		        forced_by_pity, throttled, committed_at
		 FROM outcomes WHERE id = $1`,
		id,
	).Scan(&out.ID, &out.UserID, &out.CaseID,
		&out.Entry.Name, &out.Entry.Value, &out.Entry.DropWeight, &tierName,
		&out.ForcedByPity, &out.Throttled, &out.CommittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return opening.Outcome{}, settle.ErrOutcomeNotFound
	}
	if err != nil {
		return opening.Outcome{}, fmt.Errorf("querying outcome: %w", err)
	}
	tier, err := loot.ParseTier(tierName)
	if err != nil {
		return opening.Outcome{}, fmt.Errorf("stored outcome: %w", err)
	}
	out.Tier = tier
	out.Entry.Tier = tier
	return out, nil
}

// Claim implements settle.OutcomeStore. The first claim wins; every later
// claim fails with settle.ErrAlreadySettled.
func (r *OutcomeRepository) Claim(ctx context.Context, id uuid.UUID, decision settle.Decision, payout int64, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE outcomes
		 SET decision = $2, payout = $3, settled_at = $4
		 WHERE id = $1 AND settled_at IS NULL`,
		id, string(decision), payout, at,
	)
	if err != nil {
		return fmt.Errorf("claiming outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM outcomes WHERE id = $1)`,
			id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("checking outcome: %w", err)
		}
		if !exists {
			return settle.ErrOutcomeNotFound
		}
		return settle.ErrAlreadySettled
	}
	return nil
}

// Release implements settle.OutcomeStore.
func (r *OutcomeRepository) Release(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE outcomes
		 SET decision = NULL, payout = NULL, settled_at = NULL
		 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("releasing outcome: %w", err)
	}
	return nil
}

// Settlement implements settle.OutcomeStore.
func (r *OutcomeRepository) Settlement(ctx context.Context, id uuid.UUID) (settle.Result, bool, error) {
	var decision *string
	var payout *int64
	var settledAt *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT decision, payout, settled_at FROM outcomes WHERE id = $1`,
		id,
	).Scan(&decision, &payout, &settledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return settle.Result{}, false, nil
	}
	if err != nil {
		return settle.Result{}, false, fmt.Errorf("querying settlement: %w", err)
	}
	if settledAt == nil {
		return settle.Result{}, false, nil
	}
	return settle.Result{
		OutcomeID: id,
		Decision:  settle.Decision(*decision),
		Payout:    *payout,
		SettledAt: *settledAt,
	}, true, nil
}
