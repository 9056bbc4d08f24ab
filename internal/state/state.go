// Package state holds the process-wide mutable trading state.
package state

import (
	"sync"
	"time"
)

// Tunables are read-only after startup
type Tunables struct {
	BaseTradeAmount         float64
	MinOrderAmount          float64
	ExchangeFeeRatio        float64
	TakeProfitPercentage    float64
	HalveTakeProfitAbove    float64 // holding value above which the take-profit target is halved; 0 disables
	WholeSellWhenProfit     bool
	IncludeTopTradingStocks bool
	BuyCooldown             time.Duration
}

// DefaultTunables returns the production defaults
func DefaultTunables() Tunables {
	return Tunables{
		BaseTradeAmount:         250000,
		MinOrderAmount:          5001,
		ExchangeFeeRatio:        1.0005,
		TakeProfitPercentage:    0.3,
		WholeSellWhenProfit:     true,
		IncludeTopTradingStocks: true,
		BuyCooldown:             2 * time.Minute,
	}
}

// Snapshot is a consistent copy of the mutable state
type Snapshot struct {
	Ratio            float64              `json:"upbit_market_index_ratio"`
	MinTradeAmount   float64              `json:"min_trade_amount"`
	ScheduledMarkets []string             `json:"scheduled_market"`
	LastBuyAt        map[string]time.Time `json:"last_buy_at"`
}

// AppState guards the index ratio, trade amount, market universe and buy cooldowns
type AppState struct {
	mu               sync.RWMutex
	tunables         Tunables
	ratio            float64
	minTradeAmount   float64
	scheduledMarkets []string
	lastBuyAt        map[string]time.Time
}

// New creates the state seeded with the default markets
func New(tunables Tunables, defaultMarkets []string) *AppState {
	return &AppState{
		tunables:         tunables,
		minTradeAmount:   tunables.BaseTradeAmount,
		scheduledMarkets: append([]string(nil), defaultMarkets...),
		lastBuyAt:        make(map[string]time.Time),
	}
}

// Tunables returns the read-only trading parameters
func (s *AppState) Tunables() Tunables {
	return s.tunables
}

// Ratio returns the last market index ratio in percent
func (s *AppState) Ratio() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ratio
}

// MinTradeAmount returns the quote amount spent per buy
func (s *AppState) MinTradeAmount() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.minTradeAmount
}

// SetIndex publishes a new index ratio together with its trade amount
func (s *AppState) SetIndex(ratio, minTradeAmount float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratio = ratio
	s.minTradeAmount = minTradeAmount
}

// ScheduledMarkets returns a copy of the current universe
func (s *AppState) ScheduledMarkets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.scheduledMarkets...)
}

// SetScheduledMarkets replaces the universe. An empty set is ignored.
func (s *AppState) SetScheduledMarkets(markets []string) {
	if len(markets) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduledMarkets = append([]string(nil), markets...)
}

// LastBuyAt returns the time of the last successful buy on market
func (s *AppState) LastBuyAt(market string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.lastBuyAt[market]
	return t, ok
}

// RecordBuy stores the time of a successful buy
func (s *AppState) RecordBuy(market string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastBuyAt[market] = at
}

// InCooldown reports whether now is within the buy cooldown of market
func (s *AppState) InCooldown(market string, now time.Time) bool {
	last, ok := s.LastBuyAt(market)
	if !ok {
		return false
	}
	return now.Sub(last) < s.tunables.BuyCooldown
}

// Snapshot returns a consistent copy of the mutable fields
func (s *AppState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lastBuyAt := make(map[string]time.Time, len(s.lastBuyAt))
	for k, v := range s.lastBuyAt {
		lastBuyAt[k] = v
	}
	return Snapshot{
		Ratio:            s.ratio,
		MinTradeAmount:   s.minTradeAmount,
		ScheduledMarkets: append([]string(nil), s.scheduledMarkets...),
		LastBuyAt:        lastBuyAt,
	}
}
