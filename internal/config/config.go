// Package config provides configuration management for the scalping bot.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/sungminna/upbit-scalping-bot/internal/logging"
	"github.com/sungminna/upbit-scalping-bot/internal/service/scheduler"
	"github.com/sungminna/upbit-scalping-bot/internal/service/universe"
	"github.com/sungminna/upbit-scalping-bot/internal/state"
	"github.com/sungminna/upbit-scalping-bot/internal/upbit/rest"
	"github.com/sungminna/upbit-scalping-bot/pkg/database/postgres"
)

// EnvPrefix prefixes every environment override, e.g. SCALPER_TRADING_BASE_TRADE_AMOUNT
const EnvPrefix = "SCALPER"

// Credential environment variables
const (
	EnvAccessKey = "UPBIT_ACCESS_KEY"
	EnvSecretKey = "UPBIT_SECRET_KEY"
)

// ErrMissingCredentials is returned when the exchange keys are not set
var ErrMissingCredentials = errors.New("missing exchange credentials: set " + EnvAccessKey + " and " + EnvSecretKey)

// Config holds all application configuration.
type Config struct {
	Upbit       UpbitConfig       `mapstructure:"upbit"`
	Trading     TradingConfig     `mapstructure:"trading"`
	Universe    UniverseConfig    `mapstructure:"universe"`
	Schedule    ScheduleConfig    `mapstructure:"schedule"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Database    postgres.Config   `mapstructure:"database"`
	Log         logging.LogConfig `mapstructure:"log"`
	Credentials Credentials       `mapstructure:"-"` // environment only
}

// UpbitConfig holds exchange endpoints and HTTP behaviour.
type UpbitConfig struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	IndexURL       string        `mapstructure:"index_url" validate:"required,url"`
	IndexCode      string        `mapstructure:"index_code" validate:"required"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"gt=0"`
	IOTimeout      time.Duration `mapstructure:"io_timeout" validate:"gt=0"`
	RateLimit      int           `mapstructure:"rate_limit" validate:"gte=1"` // requests per second
	RateWait       time.Duration `mapstructure:"rate_wait" validate:"gte=0"`
	RetryAttempts  int           `mapstructure:"retry_attempts" validate:"gte=1"`
	RetryDelay     time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
}

// TradingConfig holds order sizing and exit tunables.
type TradingConfig struct {
	BaseTradeAmount      float64       `mapstructure:"base_trade_amount" validate:"gt=0"`
	MinTradeAmount       float64       `mapstructure:"min_trade_amount" validate:"gtefield=MinOrderAmount"`
	MinOrderAmount       float64       `mapstructure:"min_order_amount" validate:"gt=0"`
	ExchangeFeeRatio     float64       `mapstructure:"exchange_fee_ratio" validate:"gte=1"`
	TakeProfitPercentage float64       `mapstructure:"take_profit_percentage" validate:"gt=0"`
	HalveTakeProfitAbove float64       `mapstructure:"halve_take_profit_above" validate:"gte=0"` // 0 disables
	WholeSellWhenProfit  bool          `mapstructure:"whole_sell_when_profit"`
	BuyCooldown          time.Duration `mapstructure:"buy_cooldown" validate:"gte=0"`
}

// UniverseConfig holds market selection rules.
type UniverseConfig struct {
	DefaultMarkets          []string `mapstructure:"default_markets" validate:"dive,startswith=KRW-"`
	IncludeTopTradingStocks bool     `mapstructure:"include_top_trading_stocks"`
	TopTradingLimit         int      `mapstructure:"top_trading_limit" validate:"gte=0"`
	MaxChangeRate           float64  `mapstructure:"max_change_rate" validate:"gt=0"`
	Stablecoins             []string `mapstructure:"stablecoins"`
}

// ScheduleConfig holds cron specs and the worker pool size.
type ScheduleConfig struct {
	Trade        string        `mapstructure:"trade" validate:"required"`
	Index        string        `mapstructure:"index" validate:"required"`
	ClosedOrders string        `mapstructure:"closed_orders" validate:"required"`
	Workers      int           `mapstructure:"workers" validate:"gte=1"`
	Pause        time.Duration `mapstructure:"pause" validate:"gte=0"`
}

// HTTPConfig holds the status API listener; an empty Addr disables it.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// Credentials holds the exchange API keys.
type Credentials struct {
	AccessKey string `validate:"required"`
	SecretKey string `validate:"required"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("upbit.base_url", "https://api.upbit.com")
	v.SetDefault("upbit.index_url", "https://ubci-api.ubcindex.com/v1/crix/index/recents")
	v.SetDefault("upbit.index_code", "IDX.UPBIT.UTTI")
	v.SetDefault("upbit.connect_timeout", 5*time.Second)
	v.SetDefault("upbit.io_timeout", 10*time.Second)
	v.SetDefault("upbit.rate_limit", 10)
	v.SetDefault("upbit.rate_wait", 2*time.Second)
	v.SetDefault("upbit.retry_attempts", 3)
	v.SetDefault("upbit.retry_delay", 2*time.Second)

	v.SetDefault("trading.base_trade_amount", 250000.0)
	v.SetDefault("trading.min_trade_amount", 250000.0)
	v.SetDefault("trading.min_order_amount", 5001.0)
	v.SetDefault("trading.exchange_fee_ratio", 1.0005)
	v.SetDefault("trading.take_profit_percentage", 0.3)
	v.SetDefault("trading.halve_take_profit_above", 0.0)
	v.SetDefault("trading.whole_sell_when_profit", true)
	v.SetDefault("trading.buy_cooldown", 2*time.Minute)

	v.SetDefault("universe.default_markets", []string{"KRW-BTC", "KRW-ETH", "KRW-XRP"})
	v.SetDefault("universe.include_top_trading_stocks", true)
	v.SetDefault("universe.top_trading_limit", 10)
	v.SetDefault("universe.max_change_rate", 0.05)
	v.SetDefault("universe.stablecoins", []string{"USDT", "USDC"})

	v.SetDefault("schedule.trade", "@every 30s")
	v.SetDefault("schedule.index", "@every 5m")
	v.SetDefault("schedule.closed_orders", "@every 1h")
	v.SetDefault("schedule.workers", 4)
	v.SetDefault("schedule.pause", scheduler.DefaultPause)

	v.SetDefault("http.addr", "")
	v.SetDefault("http.shutdown_timeout", 5*time.Second)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 2)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.connect_timeout", 5*time.Second)

	def := logging.DefaultLogConfig()
	v.SetDefault("log.level", def.Level)
	v.SetDefault("log.console", def.Console)
	v.SetDefault("log.json", def.JSON)
	v.SetDefault("log.file_path", def.FilePath)
	v.SetDefault("log.max_size", def.MaxSize)
	v.SetDefault("log.max_backups", def.MaxBackups)
	v.SetDefault("log.max_age", def.MaxAge)
}

// Load reads defaults, the optional config file at path and environment
// overrides, then validates the result. Credentials come from the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.Credentials = Credentials{
		AccessKey: strings.TrimSpace(os.Getenv(EnvAccessKey)),
		SecretKey: strings.TrimSpace(os.Getenv(EnvSecretKey)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks field constraints and the presence of credentials.
func (c *Config) Validate() error {
	if c.Credentials.AccessKey == "" || c.Credentials.SecretKey == "" {
		return ErrMissingCredentials
	}
	return validator.New().Struct(c)
}

// Tunables returns the read-only trading state parameters
func (c *Config) Tunables() state.Tunables {
	return state.Tunables{
		BaseTradeAmount:         c.Trading.BaseTradeAmount,
		MinOrderAmount:          c.Trading.MinOrderAmount,
		ExchangeFeeRatio:        c.Trading.ExchangeFeeRatio,
		TakeProfitPercentage:    c.Trading.TakeProfitPercentage,
		HalveTakeProfitAbove:    c.Trading.HalveTakeProfitAbove,
		WholeSellWhenProfit:     c.Trading.WholeSellWhenProfit,
		IncludeTopTradingStocks: c.Universe.IncludeTopTradingStocks,
		BuyCooldown:             c.Trading.BuyCooldown,
	}
}

// RestConfig returns the signing client configuration
func (c *Config) RestConfig() rest.Config {
	return rest.Config{
		AccessKey:         c.Credentials.AccessKey,
		SecretKey:         c.Credentials.SecretKey,
		ConnectTimeout:    c.Upbit.ConnectTimeout,
		IOTimeout:         c.Upbit.IOTimeout,
		RequestsPerSecond: c.Upbit.RateLimit,
		MaxWait:           c.Upbit.RateWait,
		RetryAttempts:     c.Upbit.RetryAttempts,
		RetryDelay:        c.Upbit.RetryDelay,
	}
}

// UniverseConfig returns the market selection rules
func (c *Config) UniverseConfig() universe.Config {
	return universe.Config{
		DefaultMarkets:    append([]string(nil), c.Universe.DefaultMarkets...),
		IncludeTopTrading: c.Universe.IncludeTopTradingStocks,
		TopTradingLimit:   c.Universe.TopTradingLimit,
		MaxChangeRate:     c.Universe.MaxChangeRate,
		Stablecoins:       append([]string(nil), c.Universe.Stablecoins...),
	}
}

// SchedulerConfig returns the job schedules
func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		TradeSpec:       c.Schedule.Trade,
		IndexSpec:       c.Schedule.Index,
		ClosedOrderSpec: c.Schedule.ClosedOrders,
		Workers:         c.Schedule.Workers,
		Pause:           c.Schedule.Pause,
	}
}
