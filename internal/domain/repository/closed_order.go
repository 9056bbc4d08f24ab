package repository

import (
	"context"
	"time"

	"github.com/sungminna/upbit-scalping-bot/internal/domain/model"
)

// ClosedOrderRepository defines methods for closed order data access
type ClosedOrderRepository interface {
	// SaveAll inserts orders not stored yet and returns how many were new
	SaveAll(ctx context.Context, orders []model.ClosedOrder) (int, error)
	// LatestCreatedAt returns the creation time of the newest stored order of market
	LatestCreatedAt(ctx context.Context, market string) (time.Time, bool, error)
}
