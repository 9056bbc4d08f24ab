// Package scheduler fires the trade, index and closed-order jobs on cron
// schedules and runs them on a bounded worker pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sungminna/upbit-scalping-bot/internal/domain/model"
	"golang.org/x/sync/semaphore"
)

// DefaultPause spaces market-scoped calls inside a tick
const DefaultPause = 500 * time.Millisecond

// Exchange is the subset of gateway operations a trade tick needs
type Exchange interface {
	ListAccounts(ctx context.Context) ([]model.Account, error)
	Tickers(ctx context.Context, markets []string) ([]model.Ticker, error)
	CancelAllOpen(ctx context.Context, markets []string) ([]model.Order, error)
}

// Decider emits buy and sell signals
type Decider interface {
	ShouldBuy(ctx context.Context, market string) (model.Signal, error)
	ShouldSell(ctx context.Context, market string, price float64, accounts []model.Account) (model.Signal, error)
}

// Trader submits sized limit orders
type Trader interface {
	Bid(ctx context.Context, market string, price, amount float64) (model.Order, error)
	Ask(ctx context.Context, market string, price float64, volume decimal.Decimal) (model.Order, error)
	MeetsMinimum(price, volume decimal.Decimal) bool
}

// IndexRefresher refreshes the market index ratio
type IndexRefresher interface {
	Refresh(ctx context.Context) error
}

// UniverseRefresher rebuilds the scheduled market set
type UniverseRefresher interface {
	Refresh(ctx context.Context) ([]string, error)
	Tradable(market string) bool
}

// Recorder persists closed orders
type Recorder interface {
	Record(ctx context.Context) (int, error)
}

// Config holds the job schedules
type Config struct {
	TradeSpec       string
	IndexSpec       string
	ClosedOrderSpec string
	Workers         int
	Pause           time.Duration
}

// DefaultConfig returns the production schedules
func DefaultConfig() Config {
	return Config{
		TradeSpec:       "@every 30s",
		IndexSpec:       "@every 5m",
		ClosedOrderSpec: "@every 1h",
		Workers:         4,
		Pause:           DefaultPause,
	}
}

// Option customises a Scheduler
type Option func(*Scheduler)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithSleeper replaces the context-aware sleep used between calls
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) { s.sleep = sleep }
}

// WithRecorder enables the closed-order job
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

type scheduledJob struct {
	name string
	spec string
	run  func(context.Context) error
}

// Scheduler drives the trading loop
type Scheduler struct {
	exchange Exchange
	decider  Decider
	trader   Trader
	index    IndexRefresher
	universe UniverseRefresher
	recorder Recorder
	state    State
	cfg      Config
	logger   zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	cron    *cron.Cron
	workers *semaphore.Weighted
	tradeMu sync.Mutex

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New creates a new scheduler
func New(
	exchange Exchange,
	decider Decider,
	trader Trader,
	index IndexRefresher,
	universe UniverseRefresher,
	st State,
	cfg Config,
	logger zerolog.Logger,
	opts ...Option,
) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	s := &Scheduler{
		exchange: exchange,
		decider:  decider,
		trader:   trader,
		index:    index,
		universe: universe,
		state:    st,
		cfg:      cfg,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
		sleep:    sleepContext,
		workers:  semaphore.NewWeighted(int64(cfg.Workers)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the jobs and starts firing them. Jobs run under ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	cl := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	jobs := []scheduledJob{
		{"trade", s.cfg.TradeSpec, func(ctx context.Context) error {
			_, err := s.RunTradeTick(ctx)
			return err
		}},
		{"index", s.cfg.IndexSpec, s.RunIndexTick},
	}
	if s.recorder != nil {
		jobs = append(jobs, scheduledJob{"closed_orders", s.cfg.ClosedOrderSpec, s.RunClosedOrderTick})
	}

	jobCtx, cancel := context.WithCancel(ctx)
	for _, j := range jobs {
		if _, err := c.AddFunc(j.spec, s.job(jobCtx, j.name, j.run)); err != nil {
			cancel()
			return fmt.Errorf("failed to schedule %s job %q: %w", j.name, j.spec, err)
		}
	}

	s.cron = c
	s.cancel = cancel
	s.running = true
	c.Start()

	s.logger.Info().
		Str("trade", s.cfg.TradeSpec).
		Str("index", s.cfg.IndexSpec).
		Bool("closed_orders", s.recorder != nil).
		Int("workers", s.cfg.Workers).
		Msg("Scheduler started")
	return nil
}

// Stop stops firing jobs, cancels running ones and waits for them up to the
// deadline of ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	done := s.cron.Stop()
	s.cancel()
	s.mu.Unlock()

	select {
	case <-done.Done():
		s.logger.Info().Msg("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// job wraps run so it holds a worker slot while executing
func (s *Scheduler) job(ctx context.Context, name string, run func(context.Context) error) func() {
	return func() {
		if err := s.workers.Acquire(ctx, 1); err != nil {
			return
		}
		defer s.workers.Release(1)

		if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Str("job", name).Msg("Job failed")
		}
	}
}

// RunIndexTick refreshes the market index
func (s *Scheduler) RunIndexTick(ctx context.Context) error {
	return s.index.Refresh(ctx)
}

// RunClosedOrderTick records recently closed orders
func (s *Scheduler) RunClosedOrderTick(ctx context.Context) error {
	if s.recorder == nil {
		return nil
	}
	n, err := s.recorder.Record(ctx)
	if err != nil {
		return err
	}
	s.logger.Info().Int("count", n).Msg("Closed orders recorded")
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// cronLogger adapts zerolog to the cron.Logger interface
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
