// Package closedorder copies finished orders from the exchange into storage.
package closedorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sungminna/upbit-scalping-bot/internal/domain/model"
	"github.com/sungminna/upbit-scalping-bot/internal/domain/repository"
)

// DefaultLookback bounds how far back a market without stored orders is loaded
const DefaultLookback = 24 * time.Hour

// Source lists holdings and closed orders on the exchange
type Source interface {
	ListAccounts(ctx context.Context) ([]model.Account, error)
	ListClosedOrders(ctx context.Context, market string, start, end time.Time) ([]model.ClosedOrder, error)
}

// MarketLister yields the current universe
type MarketLister interface {
	ScheduledMarkets() []string
}

// Recorder stores the closed orders of every scheduled or held market
type Recorder struct {
	source   Source
	repo     repository.ClosedOrderRepository
	markets  MarketLister
	lookback time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewRecorder creates a new closed order recorder
func NewRecorder(source Source, repo repository.ClosedOrderRepository, markets MarketLister, logger zerolog.Logger) *Recorder {
	return &Recorder{
		source:   source,
		repo:     repo,
		markets:  markets,
		lookback: DefaultLookback,
		now:      time.Now,
		logger:   logger.With().Str("component", "closedorder").Logger(),
	}
}

// Record loads orders closed since the newest stored one and saves them.
// It returns the number of newly stored orders.
func (r *Recorder) Record(ctx context.Context) (int, error) {
	accounts, err := r.source.ListAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list accounts: %w", err)
	}

	seen := make(map[string]bool)
	var markets []string
	add := func(m string) {
		if !seen[m] {
			seen[m] = true
			markets = append(markets, m)
		}
	}
	for _, m := range r.markets.ScheduledMarkets() {
		add(m)
	}
	for _, a := range accounts {
		if !a.IsCash() {
			add(a.Market())
		}
	}

	end := r.now()
	total := 0
	var errs []error
	for _, market := range markets {
		n, err := r.recordMarket(ctx, market, end)
		total += n
		if err != nil {
			r.logger.Warn().Err(err).Str("market", market).Msg("Failed to record closed orders")
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

func (r *Recorder) recordMarket(ctx context.Context, market string, end time.Time) (int, error) {
	start := end.Add(-r.lookback)
	latest, ok, err := r.repo.LatestCreatedAt(ctx, market)
	if err != nil {
		return 0, err
	}
	if ok && latest.After(start) {
		start = latest
	}

	orders, err := r.source.ListClosedOrders(ctx, market, start, end)
	if err != nil {
		return 0, err
	}

	n, err := r.repo.SaveAll(ctx, orders)
	if err != nil {
		return n, err
	}
	if n > 0 {
		r.logger.Debug().Str("market", market).Int("count", n).Msg("Closed orders stored")
	}
	return n, nil
}
