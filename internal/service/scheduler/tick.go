package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sungminna/upbit-scalping-bot/internal/domain/model"
	"github.com/sungminna/upbit-scalping-bot/internal/service/trading"
	"github.com/sungminna/upbit-scalping-bot/internal/state"
	"github.com/sungminna/upbit-scalping-bot/internal/upbit/rest"
)

// MaxAuthFailures is the number of AUTH_FAILED errors that aborts a trade tick
const MaxAuthFailures = 2

// ErrTickAborted is returned when a trade tick stops early
var ErrTickAborted = errors.New("trade tick aborted")

// State is the shared state a trade tick reads and writes
type State interface {
	Tunables() state.Tunables
	Ratio() float64
	MinTradeAmount() float64
	ScheduledMarkets() []string
	InCooldown(market string, now time.Time) bool
	RecordBuy(market string, at time.Time)
}

// TickSummary counts what one trade tick did
type TickSummary struct {
	Cancelled int
	Bids      int
	Asks      int
	Cooldown  int
	Errors    map[string]int
	Duration  time.Duration
}

type tick struct {
	summary      TickSummary
	authFailures int
}

// fail records err under its kind. It returns ErrTickAborted once too many
// authentication failures were seen.
func (t *tick) fail(err error) error {
	if t.summary.Errors == nil {
		t.summary.Errors = make(map[string]int)
	}
	t.summary.Errors[rest.Kind(err)]++
	if errors.Is(err, rest.ErrAuthFailed) {
		t.authFailures++
		if t.authFailures >= MaxAuthFailures {
			return fmt.Errorf("%w: %d authentication failures", ErrTickAborted, t.authFailures)
		}
	}
	return nil
}

// RunTradeTick cancels open orders, runs the buy pass and then the sell pass.
// Ticks never overlap.
func (s *Scheduler) RunTradeTick(ctx context.Context) (TickSummary, error) {
	s.tradeMu.Lock()
	defer s.tradeMu.Unlock()

	start := s.now()
	t := &tick{}
	err := s.trade(ctx, t)
	t.summary.Duration = s.now().Sub(start)

	event := s.logger.Info()
	if err != nil {
		event = s.logger.Error().Err(err)
	}
	event.
		Int("cancelled", t.summary.Cancelled).
		Int("bids", t.summary.Bids).
		Int("asks", t.summary.Asks).
		Int("cooldown", t.summary.Cooldown).
		Dict("errors", errorCounts(t.summary.Errors)).
		Dur("duration", t.summary.Duration).
		Msg("Trade tick finished")

	return t.summary, err
}

func (s *Scheduler) trade(ctx context.Context, t *tick) error {
	if s.state.Ratio() == 0 {
		if err := s.index.Refresh(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Index refresh failed")
		}
	}

	universe := s.state.ScheduledMarkets()

	cancelled, err := s.exchange.CancelAllOpen(ctx, universe)
	t.summary.Cancelled = len(cancelled)
	if err != nil {
		s.logger.Warn().Err(err).Str("kind", rest.Kind(err)).Msg("Cancel-all incomplete")
		if abort := t.fail(err); abort != nil {
			return abort
		}
	}
	if err := s.sleep(ctx, s.cfg.Pause); err != nil {
		return err
	}

	if err := s.buyPass(ctx, t, universe); err != nil {
		return err
	}
	if err := s.refreshUniverse(ctx, t); err != nil {
		return err
	}

	if err := s.sleep(ctx, s.cfg.Pause); err != nil {
		return err
	}

	if err := s.sellPass(ctx, t); err != nil {
		return err
	}
	return s.refreshUniverse(ctx, t)
}

func (s *Scheduler) buyPass(ctx context.Context, t *tick, universe []string) error {
	tunables := s.state.Tunables()
	amount := s.state.MinTradeAmount()
	if amount < tunables.MinOrderAmount {
		s.logger.Warn().
			Float64("min_trade_amount", amount).
			Float64("min_order_amount", tunables.MinOrderAmount).
			Msg("Trade amount below order minimum, skipping buys")
		return nil
	}

	for i, market := range universe {
		if i > 0 {
			if err := s.sleep(ctx, s.cfg.Pause); err != nil {
				return err
			}
		}

		if s.state.InCooldown(market, s.now()) {
			t.summary.Cooldown++
			continue
		}
		if !s.universe.Tradable(market) {
			continue
		}

		signal, err := s.decider.ShouldBuy(ctx, market)
		if err != nil {
			if abort := s.marketFailed(t, market, "buy check", err); abort != nil {
				return abort
			}
			continue
		}
		if !signal.IsBuy() {
			continue
		}

		tickers, err := s.exchange.Tickers(ctx, []string{market})
		if err != nil || len(tickers) == 0 {
			if err == nil {
				err = fmt.Errorf("%w: no ticker for %s", rest.ErrParse, market)
			}
			if abort := s.marketFailed(t, market, "ticker", err); abort != nil {
				return abort
			}
			continue
		}

		_, err = s.trader.Bid(ctx, market, tickers[0].TradePrice, amount)
		switch {
		case errors.Is(err, trading.ErrBelowMinimum):
			s.logger.Debug().Err(err).Str("market", market).Msg("Bid skipped")
			continue
		case err != nil:
			if abort := s.marketFailed(t, market, "bid", err); abort != nil {
				return abort
			}
			continue
		}

		s.state.RecordBuy(market, s.now())
		t.summary.Bids++
	}
	return nil
}

func (s *Scheduler) sellPass(ctx context.Context, t *tick) error {
	accounts, err := s.exchange.ListAccounts(ctx)
	if err != nil {
		return s.marketFailed(t, "", "accounts", err)
	}

	var markets []string
	for _, a := range accounts {
		if a.IsCash() || a.UnitCurrency != model.CashCurrency {
			continue
		}
		if m := a.Market(); s.universe.Tradable(m) {
			markets = append(markets, m)
		}
	}
	if len(markets) == 0 {
		return nil
	}

	tickers, err := s.exchange.Tickers(ctx, markets)
	if err != nil {
		return s.marketFailed(t, "", "tickers", err)
	}

	tunables := s.state.Tunables()
	amount := s.state.MinTradeAmount()

	for i, ticker := range tickers {
		if i > 0 {
			if err := s.sleep(ctx, s.cfg.Pause); err != nil {
				return err
			}
		}

		market := ticker.Market
		signal, err := s.decider.ShouldSell(ctx, market, ticker.TradePrice, accounts)
		if err != nil {
			if abort := s.marketFailed(t, market, "sell check", err); abort != nil {
				return abort
			}
			continue
		}
		if !signal.IsSell() {
			continue
		}

		holding, _ := model.FindAccount(accounts, model.BaseCurrency(market))
		volume := trading.AskVolume(amount, ticker.TradePrice, holding.Balance)
		if signal == model.SignalStopLoss || tunables.WholeSellWhenProfit {
			volume = decimal.NewFromFloat(holding.Balance)
		}

		if !s.trader.MeetsMinimum(decimal.NewFromFloat(ticker.TradePrice), volume) {
			s.logger.Debug().
				Str("market", market).
				Stringer("signal", signal).
				Str("volume", volume.String()).
				Msg("Ask below order minimum, skipped")
			continue
		}

		if _, err := s.trader.Ask(ctx, market, ticker.TradePrice, volume); err != nil {
			if abort := s.marketFailed(t, market, "ask", err); abort != nil {
				return abort
			}
			continue
		}
		t.summary.Asks++
	}
	return nil
}

func (s *Scheduler) refreshUniverse(ctx context.Context, t *tick) error {
	if _, err := s.universe.Refresh(ctx); err != nil {
		return s.marketFailed(t, "", "universe", err)
	}
	return nil
}

// marketFailed logs a dropped operation and records it on the tick
func (s *Scheduler) marketFailed(t *tick, market, op string, err error) error {
	kind := rest.Kind(err)
	event := s.logger.Warn().Err(err).Str("op", op).Str("kind", kind)
	if market != "" {
		event = event.Str("market", market)
	}
	if code, ok := rejectionCode(err); ok {
		event = event.Str("code", code)
	}
	event.Msg("Operation dropped")
	return t.fail(err)
}

func rejectionCode(err error) (string, bool) {
	var apiErr *rest.APIError
	if errors.As(err, &apiErr) && apiErr.Code != "" {
		return apiErr.Code, true
	}
	return "", false
}

func errorCounts(counts map[string]int) *zerolog.Event {
	d := zerolog.Dict()
	for kind, n := range counts {
		d.Int(kind, n)
	}
	return d
}
