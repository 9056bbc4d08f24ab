package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sungminna/upbit-scalping-bot/internal/domain/model"
	"github.com/sungminna/upbit-scalping-bot/internal/domain/repository"
)

const closedOrdersSchema = `
	CREATE TABLE IF NOT EXISTS closed_orders (
		uuid             TEXT PRIMARY KEY,
		market           TEXT NOT NULL,
		side             TEXT NOT NULL,
		ord_type         TEXT NOT NULL,
		price            NUMERIC NOT NULL DEFAULT 0,
		volume           NUMERIC NOT NULL DEFAULT 0,
		remaining_volume NUMERIC NOT NULL DEFAULT 0,
		reserved_fee     NUMERIC NOT NULL DEFAULT 0,
		paid_fee         NUMERIC NOT NULL DEFAULT 0,
		executed_volume  NUMERIC NOT NULL DEFAULT 0,
		executed_funds   NUMERIC NOT NULL DEFAULT 0,
		state            TEXT NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS closed_orders_market_created_at_idx ON closed_orders (market, created_at DESC);
`

type closedOrderRepository struct {
	pool *pgxpool.Pool
}

// NewClosedOrderRepository creates a new PostgreSQL closed order repository
func NewClosedOrderRepository(pool *pgxpool.Pool) repository.ClosedOrderRepository {
	return &closedOrderRepository{pool: pool}
}

// EnsureClosedOrderSchema creates the closed_orders table when missing
func EnsureClosedOrderSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, closedOrdersSchema); err != nil {
		return fmt.Errorf("failed to create closed_orders schema: %w", err)
	}
	return nil
}

func (r *closedOrderRepository) SaveAll(ctx context.Context, orders []model.ClosedOrder) (int, error) {
	if len(orders) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO closed_orders (uuid, market, side, ord_type, price, volume, remaining_volume, reserved_fee, paid_fee, executed_volume, executed_funds, state, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10::numeric, $11::numeric, $12, $13)
		ON CONFLICT (uuid) DO NOTHING
	`
	batch := &pgx.Batch{}
	for _, o := range orders {
		batch.Queue(query,
			o.UUID, o.Market, string(o.Side), string(o.Type),
			o.Price.String(), o.Volume.String(), o.RemainingVolume.String(), o.ReservedFee.String(),
			o.PaidFee.String(), o.ExecutedVolume.String(), o.ExecutedFunds.String(),
			string(o.State), o.CreatedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range orders {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("failed to save closed order: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (r *closedOrderRepository) LatestCreatedAt(ctx context.Context, market string) (time.Time, bool, error) {
	query := `SELECT max(created_at) FROM closed_orders WHERE market = $1`

	var latest *time.Time
	if err := r.pool.QueryRow(ctx, query, market).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get latest closed order: %w", err)
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return *latest, true, nil
}
