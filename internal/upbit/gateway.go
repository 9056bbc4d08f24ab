// Package upbit composes the quotation and exchange clients into the gateway
// used by the trading loop.
package upbit

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sungminna/upbit-scalping-bot/internal/domain/model"
	"github.com/sungminna/upbit-scalping-bot/internal/upbit/exchange"
	"github.com/sungminna/upbit-scalping-bot/internal/upbit/quotation"
	"github.com/sungminna/upbit-scalping-bot/internal/upbit/rest"
)

// Gateway exposes the typed exchange operations
type Gateway struct {
	quotation *quotation.Client
	exchange  *exchange.Client
	logger    zerolog.Logger
}

// NewGateway creates a gateway over a signing client
func NewGateway(restClient *rest.Client, baseURL string, logger zerolog.Logger) *Gateway {
	return &Gateway{
		quotation: quotation.NewClient(restClient, baseURL),
		exchange:  exchange.NewClient(restClient, baseURL),
		logger:    logger.With().Str("component", "gateway").Logger(),
	}
}

// ListMarkets returns every market with caution flags
func (g *Gateway) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return g.quotation.GetMarkets(ctx)
}

// ListAccounts returns all non-zero balances
func (g *Gateway) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return g.exchange.GetAccounts(ctx)
}

// Tickers returns one ticker per market, in request order
func (g *Gateway) Tickers(ctx context.Context, markets []string) ([]model.Ticker, error) {
	return g.quotation.GetTickers(ctx, markets)
}

// MinuteCandles returns chronologically ascending minute candles
func (g *Gateway) MinuteCandles(ctx context.Context, market string, unit, count int) ([]model.Candle, error) {
	return g.quotation.GetMinuteCandles(ctx, market, unit, count, quotation.Ascending)
}

// CreateOrder books an order
func (g *Gateway) CreateOrder(ctx context.Context, req model.OrderRequest) (model.Order, error) {
	return g.exchange.PlaceOrder(ctx, req)
}

// ListOpenOrders returns all wait/watch orders of a market
func (g *Gateway) ListOpenOrders(ctx context.Context, market string) ([]model.Order, error) {
	return g.exchange.GetOpenOrders(ctx, market)
}

// CancelOrder cancels one order
func (g *Gateway) CancelOrder(ctx context.Context, orderUUID string) (model.Order, error) {
	return g.exchange.CancelOrder(ctx, orderUUID)
}

// ListClosedOrders returns done and cancelled orders created within [start, end]
func (g *Gateway) ListClosedOrders(ctx context.Context, market string, start, end time.Time) ([]model.ClosedOrder, error) {
	return g.exchange.GetClosedOrders(ctx, market, start, end)
}

// CancelAllOpen cancels every open order on the markets of all non-cash
// holdings plus the given markets. Failures are collected and the sweep continues.
func (g *Gateway) CancelAllOpen(ctx context.Context, markets []string) ([]model.Order, error) {
	accounts, err := g.exchange.GetAccounts(ctx)
	if err != nil {
		return nil, err
	}
	return CancelAll(ctx, g, accounts, markets, g.logger)
}

// OrderCanceller lists and cancels open orders
type OrderCanceller interface {
	ListOpenOrders(ctx context.Context, market string) ([]model.Order, error)
	CancelOrder(ctx context.Context, orderUUID string) (model.Order, error)
}

// CancelAll sweeps open orders on every non-cash holding's market plus extra.
func CancelAll(ctx context.Context, c OrderCanceller, accounts []model.Account, extra []string, logger zerolog.Logger) ([]model.Order, error) {
	seen := make(map[string]bool)
	var targets []string
	for _, a := range accounts {
		if a.IsCash() {
			continue
		}
		if m := a.Market(); !seen[m] {
			seen[m] = true
			targets = append(targets, m)
		}
	}
	for _, m := range extra {
		if !seen[m] {
			seen[m] = true
			targets = append(targets, m)
		}
	}

	var (
		cancelled []model.Order
		errs      []error
	)
	for _, market := range targets {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		open, err := c.ListOpenOrders(ctx, market)
		if err != nil {
			logger.Warn().Err(err).Str("market", market).Str("kind", rest.Kind(err)).Msg("Failed to list open orders")
			errs = append(errs, err)
			continue
		}

		for _, o := range open {
			snapshot, err := c.CancelOrder(ctx, o.UUID)
			if err != nil {
				logger.Warn().Err(err).Str("market", market).Str("uuid", o.UUID).Str("kind", rest.Kind(err)).Msg("Failed to cancel order")
				errs = append(errs, err)
				continue
			}
			logger.Info().Str("market", market).Str("uuid", o.UUID).Str("side", string(o.Side)).Msg("Order cancelled")
			cancelled = append(cancelled, snapshot)
		}
	}

	return cancelled, errors.Join(errs...)
}
