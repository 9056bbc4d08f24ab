package strategy

import (
	"context"
	"errors"

	"github.com/sungminna/upbit-scalping-bot/internal/analysis/indicator"
	"github.com/sungminna/upbit-scalping-bot/internal/domain/model"
)

// ProfitPercentage returns the gain of price over the fee-adjusted average buy price
func ProfitPercentage(price, avgBuyPrice, feeRatio float64) float64 {
	return (price - avgBuyPrice*feeRatio) / avgBuyPrice * 100
}

// TargetProfitPercentage returns the take-profit target for a holding worth holdingValue
func (s *Scalping) TargetProfitPercentage(holdingValue float64) float64 {
	t := s.state.Tunables()
	target := t.TakeProfitPercentage
	if t.HalveTakeProfitAbove > 0 && holdingValue > t.HalveTakeProfitAbove {
		target /= 2
	}
	return target
}

// ShouldSell decides whether to sell the holding of market at price.
// RSI is only consulted when the holding is beyond the stop-loss threshold.
func (s *Scalping) ShouldSell(ctx context.Context, market string, price float64, accounts []model.Account) (model.Signal, error) {
	t := s.state.Tunables()

	holding, ok := model.FindAccount(accounts, model.BaseCurrency(market))
	if !ok || holding.IsCash() || holding.AvgBuyPrice <= 0 || holding.CostBasis() <= t.MinOrderAmount {
		return model.SignalNoAction, nil
	}

	target := s.TargetProfitPercentage(price * holding.Balance)
	profit := ProfitPercentage(price, holding.AvgBuyPrice, t.ExchangeFeeRatio)

	signal := model.SignalNoAction
	if profit < StopLossPercentage {
		rsi, err := s.rsi(ctx, market)
		switch {
		case errors.Is(err, indicator.ErrInsufficientData):
		case err != nil:
			return model.SignalNoAction, err
		case rsi >= OverboughtRSI:
			signal = model.SignalStopLoss
		}
	}
	if signal == model.SignalNoAction && profit >= target {
		signal = model.SignalTakeProfit
	}

	s.logger.Debug().
		Str("market", market).
		Float64("price", price).
		Float64("avg_buy_price", holding.AvgBuyPrice).
		Float64("profit_pct", profit).
		Float64("target_pct", target).
		Stringer("signal", signal).
		Msg("Sell check")

	return signal, nil
}
