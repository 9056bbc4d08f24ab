// Package marketindex tracks the broad-market trend and derives the per-order trade amount.
package marketindex

import (
	"context"
	"errors"
	"math"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sungminna/upbit-scalping-bot/internal/ubci"
)

const (
	upFactor   = 1.2
	downFactor = 0.8
	amountUnit = 1000.0
)

// ErrInvalidIndex is returned for an index datum without a previous close
var ErrInvalidIndex = errors.New("index has no previous close")

// IndexSource yields the latest index datum
type IndexSource interface {
	Latest(ctx context.Context) (ubci.Index, error)
}

// StateWriter receives the refreshed ratio and trade amount
type StateWriter interface {
	SetIndex(ratio, minTradeAmount float64)
}

// Tracker refreshes the index ratio and the trade amount derived from it
type Tracker struct {
	source          IndexSource
	state           StateWriter
	baseTradeAmount float64
	logger          zerolog.Logger
}

// NewTracker creates a new tracker
func NewTracker(source IndexSource, st StateWriter, baseTradeAmount float64, logger zerolog.Logger) *Tracker {
	return &Tracker{
		source:          source,
		state:           st,
		baseTradeAmount: baseTradeAmount,
		logger:          logger.With().Str("component", "marketindex").Logger(),
	}
}

// Ratio returns the percent change of trade over prevClose,
// rounded up at the third decimal and then down at the second.
func Ratio(trade, prevClose float64) float64 {
	pct := decimal.NewFromFloat(trade).
		Sub(decimal.NewFromFloat(prevClose)).
		DivRound(decimal.NewFromFloat(prevClose), 16).
		Mul(decimal.NewFromInt(100))
	return pct.RoundCeil(3).RoundFloor(2).InexactFloat64()
}

// TradeAmount scales base by 1.2^ratio when the market rises and 0.8^|ratio|
// when it falls, rounded to the nearest 1000.
func TradeAmount(base, ratio float64) float64 {
	adjusted := base
	switch {
	case ratio > 0:
		adjusted = base * math.Pow(upFactor, ratio)
	case ratio < 0:
		adjusted = base * math.Pow(downFactor, math.Abs(ratio))
	}
	return math.Round(adjusted/amountUnit) * amountUnit
}

// Refresh fetches the index and publishes the new ratio and trade amount
func (t *Tracker) Refresh(ctx context.Context) error {
	index, err := t.source.Latest(ctx)
	if err != nil {
		return err
	}
	if index.PrevClosingPrice == 0 {
		return ErrInvalidIndex
	}

	ratio := Ratio(index.TradePrice, index.PrevClosingPrice)
	amount := TradeAmount(t.baseTradeAmount, ratio)
	t.state.SetIndex(ratio, amount)

	t.logger.Info().
		Float64("trade_price", index.TradePrice).
		Float64("prev_closing_price", index.PrevClosingPrice).
		Float64("ratio", ratio).
		Float64("min_trade_amount", amount).
		Msg("Market index updated")

	return nil
}
