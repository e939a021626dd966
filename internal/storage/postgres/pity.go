package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropforge/dropforge/internal/game/loot"
	"github.com/dropforge/dropforge/internal/game/pity"
)

// PityRepository persists guarantee counters per (user, scope, tier). It
// implements pity.Store with a transaction-scoped advisory lock so that two
// simultaneous openings for the same key never observe the same counters.
type PityRepository struct {
	db *pgxpool.Pool
}

// NewPityRepository creates a PityRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewPityRepository(db *pgxpool.Pool) *PityRepository {
	return &PityRepository{db: db}
}

// Mutate implements pity.Store. The whole read-modify-write runs in one
// transaction holding pg_advisory_xact_lock on the (userID, scopeID) key,
// which also covers keys that have no rows yet.
func (r *PityRepository) Mutate(ctx context.Context, userID, scopeID string, fn func(states map[loot.RarityTier]pity.State) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning pity transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		userID+"\x00"+scopeID,
	); err != nil {
		return fmt.Errorf("locking pity key: %w", err)
	}

	rows, err := tx.Query(ctx,
		`SELECT tier, since_last, threshold
		 FROM pity_states
		 WHERE user_id = $1 AND scope_id = $2`,
		userID, scopeID,
	)
	if err != nil {
		return fmt.Errorf("querying pity states: %w", err)
	}

	states := make(map[loot.RarityTier]pity.State)
	for rows.Next() {
		var tierName string
		var st pity.State
		if err := rows.Scan(&tierName, &st.SinceLast, &st.Threshold); err != nil {
			rows.Close()
			return fmt.Errorf("scanning pity state: %w", err)
		}
		tier, err := loot.ParseTier(tierName)
		if err != nil {
			rows.Close()
			return fmt.Errorf("stored pity state: %w", err)
		}
		states[tier] = st
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading pity states: %w", err)
	}

	if err := fn(states); err != nil {
		return err
	}

	for tier, st := range states {
		if _, err := tx.Exec(ctx,
			`INSERT INTO pity_states (user_id, scope_id, tier, since_last, threshold)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (user_id, scope_id, tier)
			 DO UPDATE SET since_last = EXCLUDED.since_last,
			               threshold = EXCLUDED.threshold,
			               updated_at = now()`,
			userID, scopeID, string(tier), st.SinceLast, st.Threshold,
		); err != nil {
			return fmt.Errorf("upserting pity state: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing pity transaction: %w", err)
	}
	return nil
}
