package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/sungminna/upbit-scalping-bot/internal/api/router"
	"github.com/sungminna/upbit-scalping-bot/internal/config"
	pgrepo "github.com/sungminna/upbit-scalping-bot/internal/infrastructure/postgres"
	"github.com/sungminna/upbit-scalping-bot/internal/logging"
	"github.com/sungminna/upbit-scalping-bot/internal/service/closedorder"
	"github.com/sungminna/upbit-scalping-bot/internal/service/marketindex"
	"github.com/sungminna/upbit-scalping-bot/internal/service/scheduler"
	"github.com/sungminna/upbit-scalping-bot/internal/service/strategy"
	"github.com/sungminna/upbit-scalping-bot/internal/service/trading"
	"github.com/sungminna/upbit-scalping-bot/internal/service/universe"
	"github.com/sungminna/upbit-scalping-bot/internal/state"
	"github.com/sungminna/upbit-scalping-bot/internal/ubci"
	"github.com/sungminna/upbit-scalping-bot/internal/upbit"
	"github.com/sungminna/upbit-scalping-bot/internal/upbit/rest"
	"github.com/sungminna/upbit-scalping-bot/pkg/database/postgres"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "scalper",
	Short: "Upbit KRW market scalping bot",
	Long: `scalper trades a small universe of Upbit KRW markets on a fixed schedule.
Buys follow a short-term momentum signal; holdings are sold at a take-profit
target or a stop-loss.

Credentials are read from UPBIT_ACCESS_KEY and UPBIT_SECRET_KEY.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the trading scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, configPath)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("scalper %s\n", version)
	},
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a config file (yaml, toml or json)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logger := logging.NewLoggerWithConfig(cfg.Log)
	logger.Info().Str("version", version).Msg("Starting scalper")

	restClient := rest.NewClient(cfg.RestConfig(), logger)
	gateway := upbit.NewGateway(restClient, cfg.Upbit.BaseURL, logger)

	// Signing problems surface on the first private call; nothing else is fatal.
	if _, err := gateway.ListAccounts(ctx); err != nil {
		if errors.Is(err, rest.ErrAuthFailed) {
			return fmt.Errorf("verifying credentials: %w", err)
		}
		logger.Warn().Err(err).Str("kind", rest.Kind(err)).Msg("Account check failed, continuing")
	}

	st := state.New(cfg.Tunables(), cfg.Universe.DefaultMarkets)
	st.SetIndex(0, cfg.Trading.MinTradeAmount)

	tracker := marketindex.NewTracker(
		ubci.NewClient(restClient, cfg.Upbit.IndexURL, cfg.Upbit.IndexCode),
		st,
		cfg.Trading.BaseTradeAmount,
		logger,
	)
	selector := universe.NewSelector(gateway, st, cfg.UniverseConfig(), logger)
	scalping := strategy.NewScalping(gateway, st, logger)
	engine := trading.NewEngine(gateway, cfg.Trading.MinOrderAmount, logger)

	var opts []scheduler.Option
	if cfg.Database.Enabled() {
		pool, err := postgres.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer postgres.Close(pool)

		if err := pgrepo.EnsureClosedOrderSchema(ctx, pool); err != nil {
			return err
		}
		recorder := closedorder.NewRecorder(gateway, pgrepo.NewClosedOrderRepository(pool), st, logger)
		opts = append(opts, scheduler.WithRecorder(recorder))
	}

	if err := tracker.Refresh(ctx); err != nil {
		logger.Warn().Err(err).Msg("Initial index refresh failed")
	}
	if _, err := selector.Refresh(ctx); err != nil {
		logger.Warn().Err(err).Msg("Initial universe refresh failed")
	}

	sched := scheduler.New(gateway, scalping, engine, tracker, selector, st, cfg.SchedulerConfig(), logger, opts...)
	if err := sched.Start(ctx); err != nil {
		return err
	}

	var srv *http.Server
	if cfg.HTTP.Addr != "" {
		handler := router.Setup(&router.Config{
			State:   st,
			Tickers: gateway,
			Logger:  logger,
		})
		srv = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", cfg.HTTP.Addr).Msg("Starting status server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Status server failed")
			}
		}()
	}

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	return shutdown(cfg.HTTP.ShutdownTimeout, sched, srv, logger)
}

func shutdown(timeout time.Duration, sched *scheduler.Scheduler, srv *http.Server, logger zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := sched.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("status server shutdown: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		logger.Error().Err(err).Msg("Shutdown incomplete")
		return err
	}
	logger.Info().Msg("Shutdown complete")
	return nil
}
