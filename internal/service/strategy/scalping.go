package strategy

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sungminna/upbit-scalping-bot/internal/analysis/indicator"
	"github.com/sungminna/upbit-scalping-bot/internal/domain/model"
	"github.com/sungminna/upbit-scalping-bot/internal/state"
)

const (
	CandleUnit    = 1
	CandleCount   = 200
	RSIPeriod     = 14
	ADXPeriod     = 14
	OversoldRSI   = 30.0
	OverboughtRSI = 70.0
	BaseADX       = 30.0
	ADXStep       = 5.0

	// StopLossPercentage is the loss beyond which an overbought holding is cut
	StopLossPercentage = -2.0
)

// CandleSource provides chronologically ascending minute candles
type CandleSource interface {
	MinuteCandles(ctx context.Context, market string, unit, count int) ([]model.Candle, error)
}

// StateReader exposes the state the strategy depends on
type StateReader interface {
	Ratio() float64
	Tunables() state.Tunables
}

// Scalping decides buy and sell signals from 1-minute RSI and ADX
type Scalping struct {
	candles CandleSource
	state   StateReader
	logger  zerolog.Logger
}

// NewScalping creates a new scalping strategy
func NewScalping(candles CandleSource, st StateReader, logger zerolog.Logger) *Scalping {
	return &Scalping{
		candles: candles,
		state:   st,
		logger:  logger.With().Str("component", "strategy").Logger(),
	}
}

// closedCandles fetches the latest candles without the in-progress bar
func (s *Scalping) closedCandles(ctx context.Context, market string) ([]model.Candle, error) {
	candles, err := s.candles.MinuteCandles(ctx, market, CandleUnit, CandleCount)
	if err != nil {
		return nil, fmt.Errorf("failed to load candles for %s: %w", market, err)
	}
	if len(candles) == 0 {
		return nil, indicator.ErrInsufficientData
	}
	return candles[:len(candles)-1], nil
}

func (s *Scalping) rsi(ctx context.Context, market string) (float64, error) {
	candles, err := s.closedCandles(ctx, market)
	if err != nil {
		return 0, err
	}
	return indicator.RSI(model.Closes(candles), RSIPeriod)
}
