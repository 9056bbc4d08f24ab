package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sungminna/upbit-scalping-bot/internal/domain/model"
	"github.com/sungminna/upbit-scalping-bot/internal/service/strategy"
	"github.com/sungminna/upbit-scalping-bot/internal/service/trading"
	"github.com/sungminna/upbit-scalping-bot/internal/state"
	"github.com/sungminna/upbit-scalping-bot/internal/upbit/rest"
)

// fakeExchange is an in-memory order book keyed by uuid
type fakeExchange struct {
	mu          sync.Mutex
	accounts    []model.Account
	prices      map[string]float64
	candles     map[string][]model.Candle
	createErr   map[string]error
	accountsErr error

	seq       int
	open      map[string]model.Order
	submitted []model.OrderRequest
	cancelled int
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		prices:    make(map[string]float64),
		candles:   make(map[string][]model.Candle),
		createErr: make(map[string]error),
		open:      make(map[string]model.Order),
		accounts:  []model.Account{{Currency: "KRW", UnitCurrency: "KRW", Balance: 1000000}},
	}
}

func (f *fakeExchange) ListAccounts(ctx context.Context) ([]model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Account(nil), f.accounts...), f.accountsErr
}

func (f *fakeExchange) Tickers(ctx context.Context, markets []string) ([]model.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tickers := make([]model.Ticker, 0, len(markets))
	for _, m := range markets {
		price, ok := f.prices[m]
		if !ok {
			return nil, fmt.Errorf("%w: unknown market %s", rest.ErrParse, m)
		}
		tickers = append(tickers, model.Ticker{Market: m, TradePrice: price})
	}
	return tickers, nil
}

func (f *fakeExchange) MinuteCandles(ctx context.Context, market string, unit, count int) ([]model.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.candles[market], nil
}

func (f *fakeExchange) CreateOrder(ctx context.Context, req model.OrderRequest) (model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.createErr[req.Market]; err != nil {
		return model.Order{}, err
	}
	f.seq++
	order := model.Order{
		UUID:   fmt.Sprintf("order-%d", f.seq),
		Market: req.Market,
		Side:   req.Side,
		Type:   req.Type,
		State:  model.OrderStateWait,
	}
	f.open[order.UUID] = order
	f.submitted = append(f.submitted, req)
	return order, nil
}

func (f *fakeExchange) CancelAllOpen(ctx context.Context, markets []string) ([]model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var cancelled []model.Order
	for id, o := range f.open {
		o.State = model.OrderStateCancel
		cancelled = append(cancelled, o)
		delete(f.open, id)
	}
	f.cancelled += len(cancelled)
	return cancelled, nil
}

func (f *fakeExchange) orders(side model.OrderSide) []model.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.OrderRequest
	for _, r := range f.submitted {
		if r.Side == side {
			out = append(out, r)
		}
	}
	return out
}

type fakeDecider struct {
	mu       sync.Mutex
	buy      map[string]model.Signal
	sell     map[string]model.Signal
	buyErr   error
	buyCalls int
}

func (d *fakeDecider) ShouldBuy(ctx context.Context, market string) (model.Signal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buyCalls++
	if d.buyErr != nil {
		return model.SignalNoAction, d.buyErr
	}
	return d.buy[market], nil
}

func (d *fakeDecider) ShouldSell(ctx context.Context, market string, price float64, accounts []model.Account) (model.Signal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sell[market], nil
}

type fakeIndex struct {
	calls int
}

func (f *fakeIndex) Refresh(ctx context.Context) error {
	f.calls++
	return nil
}

type fakeUniverse struct {
	refreshes int
	tradable  map[string]bool
}

func (f *fakeUniverse) Refresh(ctx context.Context) ([]string, error) {
	f.refreshes++
	return nil, nil
}

func (f *fakeUniverse) Tradable(market string) bool {
	return f.tradable == nil || f.tradable[market]
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type harness struct {
	exchange *fakeExchange
	index    *fakeIndex
	universe *fakeUniverse
	state    *state.AppState
	clock    *fakeClock
	pauses   []time.Duration
	sched    *Scheduler
}

func newHarness(t *testing.T, decider Decider, tunables state.Tunables, markets []string, ratio, amount float64) *harness {
	t.Helper()
	h := &harness{
		exchange: newFakeExchange(),
		index:    &fakeIndex{},
		universe: &fakeUniverse{},
		state:    state.New(tunables, markets),
		clock:    &fakeClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)},
	}
	h.state.SetIndex(ratio, amount)
	if decider == nil {
		decider = strategy.NewScalping(h.exchange, h.state, zerolog.Nop())
	}

	engine := trading.NewEngine(h.exchange, tunables.MinOrderAmount, zerolog.Nop())
	h.sched = New(h.exchange, decider, engine, h.index, h.universe, h.state, DefaultConfig(), zerolog.Nop(),
		WithClock(h.clock.Now),
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			h.pauses = append(h.pauses, d)
			return ctx.Err()
		}),
	)
	return h
}

func trendCandles(n int, start, step float64) []model.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]model.Candle, n)
	prev := start
	for i := range candles {
		c := start + step*float64(i)
		candles[i] = model.Candle{
			UnitMinutes: 1,
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
			OpenPrice:   prev,
			ClosePrice:  c,
			HighPrice:   math.Max(prev, c) + math.Abs(step)/4,
			LowPrice:    math.Min(prev, c) - math.Abs(step)/4,
		}
		prev = c
	}
	return candles
}

func TestTradeTick_ColdStartBuy(t *testing.T) {
	h := newHarness(t, nil, state.DefaultTunables(), []string{"KRW-BTC"}, 0, 500000)
	h.exchange.prices["KRW-BTC"] = 50000000
	h.exchange.candles["KRW-BTC"] = trendCandles(strategy.CandleCount, 60000000, -20000)

	summary, err := h.sched.RunTradeTick(context.Background())
	require.NoError(t, err)

	bids := h.exchange.orders(model.OrderSideBid)
	require.Len(t, bids, 1)
	assert.Equal(t, "KRW-BTC", bids[0].Market)
	assert.Equal(t, model.OrderTypeLimit, bids[0].Type)
	assert.Equal(t, "50000000", bids[0].Price)
	assert.Equal(t, "0.01", bids[0].Volume)

	last, ok := h.state.LastBuyAt("KRW-BTC")
	require.True(t, ok)
	assert.Equal(t, h.clock.Now(), last)

	assert.Equal(t, 1, summary.Bids)
	assert.Equal(t, 1, h.index.calls, "zero ratio forces an index refresh")
	assert.Equal(t, 2, h.universe.refreshes)
}

func TestTradeTick_TakeProfitWholeSell(t *testing.T) {
	h := newHarness(t, nil, state.DefaultTunables(), nil, 0.5, 250000)
	h.exchange.prices["KRW-BTC"] = 50000000
	h.exchange.accounts = append(h.exchange.accounts, model.Account{Currency: "BTC", UnitCurrency: "KRW", Balance: 0.02, AvgBuyPrice: 49000000})

	summary, err := h.sched.RunTradeTick(context.Background())
	require.NoError(t, err)

	asks := h.exchange.orders(model.OrderSideAsk)
	require.Len(t, asks, 1)
	assert.Equal(t, "0.02", asks[0].Volume)
	assert.Equal(t, "50000000", asks[0].Price)
	assert.Equal(t, 1, summary.Asks)
	assert.Zero(t, h.index.calls)
}

func TestTradeTick_StopLossSellsWholeBalance(t *testing.T) {
	h := newHarness(t, nil, state.DefaultTunables(), nil, 0.5, 250000)
	h.exchange.prices["KRW-BTC"] = 97
	h.exchange.candles["KRW-BTC"] = trendCandles(strategy.CandleCount, 80, 0.1)
	h.exchange.accounts = append(h.exchange.accounts, model.Account{Currency: "BTC", UnitCurrency: "KRW", Balance: 100, AvgBuyPrice: 100})

	_, err := h.sched.RunTradeTick(context.Background())
	require.NoError(t, err)

	asks := h.exchange.orders(model.OrderSideAsk)
	require.Len(t, asks, 1)
	assert.Equal(t, "100", asks[0].Volume)
	assert.Equal(t, "97", asks[0].Price)
}

func TestTradeTick_SizedTakeProfit(t *testing.T) {
	tunables := state.DefaultTunables()
	tunables.WholeSellWhenProfit = false
	decider := &fakeDecider{sell: map[string]model.Signal{"KRW-BTC": model.SignalTakeProfit, "KRW-XRP": model.SignalTakeProfit}}

	h := newHarness(t, decider, tunables, nil, 0.5, 250000)
	h.exchange.prices["KRW-BTC"] = 50000000
	h.exchange.prices["KRW-XRP"] = 700
	h.exchange.accounts = append(h.exchange.accounts,
		model.Account{Currency: "BTC", UnitCurrency: "KRW", Balance: 0.02, AvgBuyPrice: 49000000},
		model.Account{Currency: "XRP", UnitCurrency: "KRW", Balance: 5, AvgBuyPrice: 600},
	)

	_, err := h.sched.RunTradeTick(context.Background())
	require.NoError(t, err)

	// XRP: min(ceil(250000/700), 5) * 700 = 3500 < 5001
	asks := h.exchange.orders(model.OrderSideAsk)
	require.Len(t, asks, 1)
	assert.Equal(t, "KRW-BTC", asks[0].Market)
	assert.Equal(t, "0.005", asks[0].Volume)
}

func TestTradeTick_Cooldown(t *testing.T) {
	decider := &fakeDecider{buy: map[string]model.Signal{"KRW-BTC": model.SignalBuy}}
	h := newHarness(t, decider, state.DefaultTunables(), []string{"KRW-BTC"}, 0.5, 500000)
	h.exchange.prices["KRW-BTC"] = 50000000
	ctx := context.Background()

	_, err := h.sched.RunTradeTick(ctx)
	require.NoError(t, err)
	first, _ := h.state.LastBuyAt("KRW-BTC")
	require.Len(t, h.exchange.orders(model.OrderSideBid), 1)

	h.clock.Advance(90 * time.Second)
	summary, err := h.sched.RunTradeTick(ctx)
	require.NoError(t, err)
	assert.Len(t, h.exchange.orders(model.OrderSideBid), 1)
	assert.Equal(t, 1, summary.Cooldown)
	last, _ := h.state.LastBuyAt("KRW-BTC")
	assert.Equal(t, first, last)

	h.clock.Advance(29 * time.Second)
	_, err = h.sched.RunTradeTick(ctx)
	require.NoError(t, err)
	assert.Len(t, h.exchange.orders(model.OrderSideBid), 1, "119s after the first buy")

	h.clock.Advance(2 * time.Second)
	_, err = h.sched.RunTradeTick(ctx)
	require.NoError(t, err)
	assert.Len(t, h.exchange.orders(model.OrderSideBid), 2, "121s after the first buy")

	assert.Equal(t, 2, decider.buyCalls, "cooldown skips the strategy")
}

func TestTradeTick_RejectedBidKeepsCooldownClear(t *testing.T) {
	decider := &fakeDecider{buy: map[string]model.Signal{"KRW-BTC": model.SignalBuy, "KRW-ETH": model.SignalBuy}}
	h := newHarness(t, decider, state.DefaultTunables(), []string{"KRW-BTC", "KRW-ETH"}, 0.5, 500000)
	h.exchange.prices["KRW-BTC"] = 50000000
	h.exchange.prices["KRW-ETH"] = 3000000
	h.exchange.createErr["KRW-BTC"] = &rest.APIError{Kind: rest.ErrBadRequest, Status: 400, Code: "insufficient_funds_bid"}

	summary, err := h.sched.RunTradeTick(context.Background())
	require.NoError(t, err)

	_, ok := h.state.LastBuyAt("KRW-BTC")
	assert.False(t, ok)
	_, ok = h.state.LastBuyAt("KRW-ETH")
	assert.True(t, ok)
	assert.Equal(t, 1, summary.Errors["BAD_REQUEST"])
	assert.Equal(t, 1, summary.Bids)
}

func TestTradeTick_TradeAmountBelowMinimumSkipsBuys(t *testing.T) {
	decider := &fakeDecider{buy: map[string]model.Signal{"KRW-BTC": model.SignalBuy}}
	h := newHarness(t, decider, state.DefaultTunables(), []string{"KRW-BTC"}, -20, 4000)
	h.exchange.prices["KRW-BTC"] = 50000000

	_, err := h.sched.RunTradeTick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.exchange.orders(model.OrderSideBid))
	assert.Zero(t, decider.buyCalls)
}

func TestTradeTick_AbortsOnRepeatedAuthFailure(t *testing.T) {
	decider := &fakeDecider{buyErr: &rest.APIError{Kind: rest.ErrAuthFailed, Status: 401}}
	h := newHarness(t, decider, state.DefaultTunables(), []string{"KRW-BTC", "KRW-ETH", "KRW-XRP"}, 0.5, 250000)

	summary, err := h.sched.RunTradeTick(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTickAborted)
	assert.Equal(t, 2, decider.buyCalls)
	assert.Equal(t, 2, summary.Errors["AUTH_FAILED"])
	assert.Zero(t, h.universe.refreshes)
}

func TestTradeTick_CancelsOpenOrdersFirst(t *testing.T) {
	h := newHarness(t, &fakeDecider{}, state.DefaultTunables(), []string{"KRW-BTC"}, 0.5, 250000)
	_, err := h.exchange.CreateOrder(context.Background(), model.OrderRequest{Market: "KRW-BTC", Side: model.OrderSideAsk})
	require.NoError(t, err)

	summary, err := h.sched.RunTradeTick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Cancelled)
	assert.Empty(t, h.exchange.open)
	require.NotEmpty(t, h.pauses)
	assert.Equal(t, DefaultPause, h.pauses[0])
}

func TestTradeTick_SkipsUntradableHoldings(t *testing.T) {
	decider := &fakeDecider{sell: map[string]model.Signal{"KRW-LUNA": model.SignalStopLoss}}
	h := newHarness(t, decider, state.DefaultTunables(), nil, 0.5, 250000)
	h.universe.tradable = map[string]bool{"KRW-BTC": true}
	h.exchange.accounts = append(h.exchange.accounts, model.Account{Currency: "LUNA", UnitCurrency: "KRW", Balance: 10, AvgBuyPrice: 1000})

	_, err := h.sched.RunTradeTick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.exchange.orders(model.OrderSideAsk))
}

func TestTradeTick_SkipsUntradableBuys(t *testing.T) {
	decider := &fakeDecider{buy: map[string]model.Signal{
		"KRW-BTC":  model.SignalBuy,
		"KRW-LUNA": model.SignalBuy,
	}}
	h := newHarness(t, decider, state.DefaultTunables(), []string{"KRW-BTC", "KRW-LUNA"}, 0.5, 250000)
	h.universe.tradable = map[string]bool{"KRW-BTC": true}
	h.exchange.prices["KRW-BTC"] = 50000000
	h.exchange.prices["KRW-LUNA"] = 100

	summary, err := h.sched.RunTradeTick(context.Background())
	require.NoError(t, err)

	bids := h.exchange.orders(model.OrderSideBid)
	require.Len(t, bids, 1)
	assert.Equal(t, "KRW-BTC", bids[0].Market)
	assert.Equal(t, 1, decider.buyCalls)
	assert.Empty(t, summary.Errors)
}

func TestTradeTick_CancelledContext(t *testing.T) {
	h := newHarness(t, &fakeDecider{}, state.DefaultTunables(), []string{"KRW-BTC"}, 0.5, 250000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.sched.RunTradeTick(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

type countingRecorder struct {
	calls int
}

func (r *countingRecorder) Record(ctx context.Context) (int, error) {
	r.calls++
	return 3, nil
}

func TestScheduler_StartStop(t *testing.T) {
	h := newHarness(t, &fakeDecider{}, state.DefaultTunables(), nil, 0.5, 250000)
	rec := &countingRecorder{}
	WithRecorder(rec)(h.sched)

	require.NoError(t, h.sched.Start(context.Background()))
	require.NoError(t, h.sched.Start(context.Background()))
	assert.Len(t, h.sched.cron.Entries(), 3)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.sched.Stop(ctx))
	require.NoError(t, h.sched.Stop(ctx))

	require.NoError(t, h.sched.RunClosedOrderTick(context.Background()))
	assert.Equal(t, 1, rec.calls)
}

func TestScheduler_InvalidSpec(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TradeSpec = "every now and then"
	s := New(newFakeExchange(), &fakeDecider{}, nil, &fakeIndex{}, &fakeUniverse{}, state.New(state.DefaultTunables(), nil), cfg, zerolog.Nop())
	assert.Error(t, s.Start(context.Background()))
}

func TestScheduler_JobHoldsWorkerSlot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 1
	s := New(newFakeExchange(), &fakeDecider{}, nil, &fakeIndex{}, &fakeUniverse{}, state.New(state.DefaultTunables(), nil), cfg, zerolog.Nop())

	release := make(chan struct{})
	started := make(chan struct{})
	go s.job(context.Background(), "blocking", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})()
	<-started

	assert.False(t, s.workers.TryAcquire(1))
	close(release)
	assert.Eventually(t, func() bool {
		if s.workers.TryAcquire(1) {
			s.workers.Release(1)
			return true
		}
		return false
	}, time.Second, 10*time.Millisecond)
}
