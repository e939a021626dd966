package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropforge/dropforge/internal/game/settle"
)

// BalanceRepository persists user balances in minor currency units. It
// implements settle.BalanceLedger with single-statement atomic mutations.
type BalanceRepository struct {
	db *pgxpool.Pool
}

// NewBalanceRepository creates a BalanceRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewBalanceRepository(db *pgxpool.Pool) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// Debit atomically subtracts amount from the user's balance.
//
// Precondition: amount must be >= 0.
// Postcondition: Returns settle.ErrInsufficientFunds without mutation when
// the balance is short or the user has no balance row.
func (r *BalanceRepository) Debit(ctx context.Context, userID string, amount int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE balances
		 SET balance = balance - $2, updated_at = now()
		 WHERE user_id = $1 AND balance >= $2`,
		userID, amount,
	)
	if err != nil {
		return fmt.Errorf("%w: debiting balance: %v", settle.ErrLedgerUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return settle.ErrInsufficientFunds
	}
	return nil
}

// Credit atomically adds amount to the user's balance, creating the balance
// row on first credit.
//
// Precondition: amount must be >= 0.
func (r *BalanceRepository) Credit(ctx context.Context, userID string, amount int64) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO balances (user_id, balance)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id)
		 DO UPDATE SET balance = balances.balance + EXCLUDED.balance, updated_at = now()`,
		userID, amount,
	)
	if err != nil {
		return fmt.Errorf("%w: crediting balance: %v", settle.ErrLedgerUnavailable, err)
	}
	return nil
}

// Balance returns the user's current balance. A user with no balance row
// has a balance of zero.
func (r *BalanceRepository) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx,
		`SELECT balance FROM balances WHERE user_id = $1`,
		userID,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: querying balance: %v", settle.ErrLedgerUnavailable, err)
	}
	return balance, nil
}
