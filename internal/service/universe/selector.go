// Package universe selects the markets the scheduler trades each tick.
package universe

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sungminna/upbit-scalping-bot/internal/domain/model"
	"golang.org/x/sync/errgroup"
)

// Gateway is the subset of exchange operations the selector needs
type Gateway interface {
	ListMarkets(ctx context.Context) ([]model.Market, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
	Tickers(ctx context.Context, markets []string) ([]model.Ticker, error)
}

// StateWriter receives the rebuilt universe
type StateWriter interface {
	SetScheduledMarkets(markets []string)
}

// Config controls which sources feed the universe
type Config struct {
	DefaultMarkets    []string
	IncludeTopTrading bool
	TopTradingLimit   int
	MaxChangeRate     float64 // 0.05 == 5%
	Stablecoins       []string
}

// DefaultConfig returns the production selection rules
func DefaultConfig() Config {
	return Config{
		DefaultMarkets:    []string{"KRW-BTC", "KRW-ETH", "KRW-XRP"},
		IncludeTopTrading: true,
		TopTradingLimit:   10,
		MaxChangeRate:     0.05,
		Stablecoins:       []string{"USDT", "USDC"},
	}
}

// Selector rebuilds the scheduled market set from defaults, holdings and top turnover
type Selector struct {
	gateway     Gateway
	state       StateWriter
	cfg         Config
	stablecoins map[string]bool
	logger      zerolog.Logger

	mu       sync.RWMutex
	tradable map[string]bool
}

// NewSelector creates a new universe selector
func NewSelector(gateway Gateway, st StateWriter, cfg Config, logger zerolog.Logger) *Selector {
	stablecoins := make(map[string]bool, len(cfg.Stablecoins))
	for _, c := range cfg.Stablecoins {
		stablecoins[c] = true
	}
	return &Selector{
		gateway:     gateway,
		state:       st,
		cfg:         cfg,
		stablecoins: stablecoins,
		logger:      logger.With().Str("component", "universe").Logger(),
	}
}

// Tradable reports whether market was listed on the quote market at the last successful market listing.
// Before the first refresh every market is considered tradable.
func (s *Selector) Tradable(market string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tradable == nil {
		return true
	}
	return s.tradable[market]
}

// Refresh rebuilds and publishes the universe. Holdings are always included.
// The market list only feeds the top traded source and Tradable.
func (s *Selector) Refresh(ctx context.Context) ([]string, error) {
	var (
		markets   []model.Market
		accounts  []model.Account
		marketErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		markets, marketErr = s.gateway.ListMarkets(gctx)
		return nil
	})
	g.Go(func() error {
		var err error
		accounts, err = s.gateway.ListAccounts(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to refresh universe: %w", err)
	}

	var candidates []string
	if marketErr != nil {
		s.logger.Warn().Err(marketErr).Msg("Market list unavailable, keeping defaults and holdings")
	} else {
		tradable := make(map[string]bool)
		for _, m := range markets {
			if m.Quote() != model.CashCurrency {
				continue
			}
			tradable[m.Market] = true
			if !m.Flagged() && !s.stablecoins[model.BaseCurrency(m.Market)] {
				candidates = append(candidates, m.Market)
			}
		}

		s.mu.Lock()
		s.tradable = tradable
		s.mu.Unlock()
	}

	selected := newOrderedSet()
	for _, m := range s.cfg.DefaultMarkets {
		selected.add(m)
	}
	for _, a := range accounts {
		if a.IsCash() || a.UnitCurrency != model.CashCurrency {
			continue
		}
		selected.add(a.Market())
	}

	if s.cfg.IncludeTopTrading && len(candidates) > 0 {
		top, err := s.topTraded(ctx, candidates)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Top traded markets unavailable, keeping defaults and holdings")
		}
		for _, m := range top {
			selected.add(m)
		}
	}

	universe := selected.items()
	s.state.SetScheduledMarkets(universe)

	s.logger.Debug().Strs("markets", universe).Msg("Universe refreshed")
	return universe, nil
}

// topTraded returns the highest 24h turnover markets whose change rate is within bounds
func (s *Selector) topTraded(ctx context.Context, candidates []string) ([]string, error) {
	tickers, err := s.gateway.Tickers(ctx, candidates)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(tickers, func(i, j int) bool {
		return tickers[i].AccTradePrice24h > tickers[j].AccTradePrice24h
	})

	var top []string
	for _, t := range tickers {
		if len(top) >= s.cfg.TopTradingLimit {
			break
		}
		if t.ChangeRate > s.cfg.MaxChangeRate {
			continue
		}
		top = append(top, t.Market)
	}
	return top, nil
}

type orderedSet struct {
	seen  map[string]bool
	order []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]bool)}
}

func (o *orderedSet) add(v string) {
	if v == "" || o.seen[v] {
		return
	}
	o.seen[v] = true
	o.order = append(o.order, v)
}

func (o *orderedSet) items() []string {
	return append([]string(nil), o.order...)
}
