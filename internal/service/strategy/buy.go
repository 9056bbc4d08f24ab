package strategy

import (
	"context"
	"errors"
	"math"

	"github.com/sungminna/upbit-scalping-bot/internal/analysis/indicator"
	"github.com/sungminna/upbit-scalping-bot/internal/domain/model"
)

// PurchaseADX returns the ADX a market must reach before buying.
// The bar rises 5 points per whole percent the market index moved, in either direction.
func PurchaseADX(ratio float64) float64 {
	var k float64
	switch {
	case ratio >= 1:
		k = math.Ceil(ratio)
	case ratio <= -1:
		k = -math.Floor(ratio)
	}
	return BaseADX + ADXStep*k
}

// ShouldBuy returns SignalBuy when the market is oversold with a strong trend.
// Too few candles yields SignalNoAction.
func (s *Scalping) ShouldBuy(ctx context.Context, market string) (model.Signal, error) {
	candles, err := s.closedCandles(ctx, market)
	if err != nil {
		if errors.Is(err, indicator.ErrInsufficientData) {
			return model.SignalNoAction, nil
		}
		return model.SignalNoAction, err
	}

	rsi, err := indicator.RSI(model.Closes(candles), RSIPeriod)
	if err != nil {
		return model.SignalNoAction, nil
	}
	adx, err := indicator.ADX(candles, ADXPeriod)
	if err != nil {
		return model.SignalNoAction, nil
	}

	purchaseADX := PurchaseADX(s.state.Ratio())
	signal := model.SignalNoAction
	if rsi <= OversoldRSI && adx >= purchaseADX {
		signal = model.SignalBuy
	}

	s.logger.Debug().
		Str("market", market).
		Float64("rsi", rsi).
		Float64("adx", adx).
		Float64("purchase_adx", purchaseADX).
		Stringer("signal", signal).
		Msg("Buy check")

	return signal, nil
}
