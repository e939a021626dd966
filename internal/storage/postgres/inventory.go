package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropforge/dropforge/internal/game/loot"
	"github.com/dropforge/dropforge/internal/game/settle"
)

// InventoryRepository persists kept items. It implements settle.InventoryStore.
type InventoryRepository struct {
	db *pgxpool.Pool
}

// NewInventoryRepository creates an InventoryRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewInventoryRepository(db *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// Append implements settle.InventoryStore.
func (r *InventoryRepository) Append(ctx context.Context, userID string, record settle.ItemRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO inventory
		   (user_id, item_name, item_value, tier, source_case_id, acquired_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		userID, record.ItemName, record.ItemValue, string(record.Tier),
		record.SourceCaseID, record.AcquiredAt,
	)
	if err != nil {
		return fmt.Errorf("appending inventory item: %w", err)
	}
	return nil
}

// Items returns the user's inventory, newest first.
func (r *InventoryRepository) Items(ctx context.Context, userID string) ([]settle.ItemRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT item_name, item_value, tier, source_case_id, acquired_at
		 FROM inventory
		 WHERE user_id = $1
		 ORDER BY acquired_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying inventory: %w", err)
	}
	defer rows.Close()

	var items []settle.ItemRecord
	for rows.Next() {
		var rec settle.ItemRecord
		var tierName string
		if err := rows.Scan(&rec.ItemName, &rec.ItemValue, &tierName, &rec.SourceCaseID, &rec.AcquiredAt); err != nil {
			return nil, fmt.Errorf("scanning inventory item: %w", err)
		}
		tier, err := loot.ParseTier(tierName)
		if err != nil {
			return nil, fmt.Errorf("stored inventory item: %w", err)
		}
		rec.Tier = tier
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading inventory: %w", err)
	}
	return items, nil
}
