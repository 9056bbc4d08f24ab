package trading

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sungminna/upbit-scalping-bot/internal/analysis/indicator"
	"github.com/sungminna/upbit-scalping-bot/internal/domain/model"
)

// VolumePrecision is the number of decimals the exchange accepts for volumes
const VolumePrecision = 8

// ErrBelowMinimum is returned when price * volume would not reach the minimum order amount
var ErrBelowMinimum = errors.New("order below minimum amount")

// OrderPlacer submits orders to the exchange
type OrderPlacer interface {
	CreateOrder(ctx context.Context, req model.OrderRequest) (model.Order, error)
}

// Engine sizes, validates and submits limit orders
type Engine struct {
	placer         OrderPlacer
	minOrderAmount decimal.Decimal
	logger         zerolog.Logger
}

// NewEngine creates a new trading engine
func NewEngine(placer OrderPlacer, minOrderAmount float64, logger zerolog.Logger) *Engine {
	return &Engine{
		placer:         placer,
		minOrderAmount: decimal.NewFromFloat(minOrderAmount),
		logger:         logger.With().Str("component", "trading").Logger(),
	}
}

// BidVolume returns amount/price rounded up to the volume precision,
// so price * volume never falls short of amount.
func BidVolume(amount, price float64) decimal.Decimal {
	if price <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(indicator.MinOrderQuantity(amount, price)).RoundCeil(VolumePrecision)
}

// AskVolume returns the sized sell volume min(ceil(amount/price), balance)
func AskVolume(amount, price, balance float64) decimal.Decimal {
	sized := BidVolume(amount, price)
	held := decimal.NewFromFloat(balance)
	if sized.GreaterThan(held) {
		return held
	}
	return sized
}

// Bid places a limit buy spending amount at price
func (e *Engine) Bid(ctx context.Context, market string, price, amount float64) (model.Order, error) {
	return e.place(ctx, market, model.OrderSideBid, decimal.NewFromFloat(price), BidVolume(amount, price))
}

// Ask places a limit sell of volume at price
func (e *Engine) Ask(ctx context.Context, market string, price float64, volume decimal.Decimal) (model.Order, error) {
	return e.place(ctx, market, model.OrderSideAsk, decimal.NewFromFloat(price), volume)
}

// MeetsMinimum reports whether price * volume reaches the minimum order amount
func (e *Engine) MeetsMinimum(price, volume decimal.Decimal) bool {
	return price.Mul(volume).GreaterThanOrEqual(e.minOrderAmount)
}

func (e *Engine) place(ctx context.Context, market string, side model.OrderSide, price, volume decimal.Decimal) (model.Order, error) {
	req := model.OrderRequest{
		Market:     market,
		Side:       side,
		Type:       model.OrderTypeLimit,
		Price:      price.String(),
		Volume:     volume.String(),
		Identifier: string(side) + "#" + uuid.NewString(),
	}
	if notional := req.Notional(); notional.LessThan(e.minOrderAmount) {
		return model.Order{}, fmt.Errorf("%w: %s %s x %s = %s < %s", ErrBelowMinimum, market, req.Price, req.Volume, notional, e.minOrderAmount)
	}

	order, err := e.placer.CreateOrder(ctx, req)
	if err != nil {
		return model.Order{}, err
	}

	e.logger.Info().
		Str("market", market).
		Str("uuid", order.UUID).
		Str("side", string(side)).
		Str("price", req.Price).
		Str("volume", req.Volume).
		Str("identifier", req.Identifier).
		Msg("Order placed")

	return order, nil
}
