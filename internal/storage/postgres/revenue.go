package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RevenueRepository persists the house's net revenue per price bracket. It
// implements opening.RevenueBook with a single-statement upsert for Add.
type RevenueRepository struct {
	db *pgxpool.Pool
}

// NewRevenueRepository creates a RevenueRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewRevenueRepository(db *pgxpool.Pool) *RevenueRepository {
	return &RevenueRepository{db: db}
}

// Net implements opening.RevenueBook. A bracket with no row has net zero.
func (r *RevenueRepository) Net(ctx context.Context, bracket string) (int64, error) {
	var net int64
	err := r.db.QueryRow(ctx,
		`SELECT net FROM house_revenue WHERE bracket = $1`,
		bracket,
	).Scan(&net)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying revenue: %w", err)
	}
	return net, nil
}

// Add implements opening.RevenueBook.
func (r *RevenueRepository) Add(ctx context.Context, bracket string, delta int64) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO house_revenue (bracket, net)
		 VALUES ($1, $2)
		 ON CONFLICT (bracket)
		 DO UPDATE SET net = house_revenue.net + EXCLUDED.net, updated_at = now()`,
		bracket, delta,
	)
	if err != nil {
		return fmt.Errorf("adding revenue: %w", err)
	}
	return nil
}
