package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Defaults applied by Normalize when a field is missing or non-positive.
const (
	DefaultLookback  = 20
	DefaultThreshold = 1.5
	DefaultBaseSize  = 1.0
	DefaultFrequency = time.Minute
	DefaultLeverage  = 1.0
)

// InstanceConfig holds the persisted tunable parameters of one strategy
// instance. The engine never mutates it; updates go through explicit store
// operations.
type InstanceConfig struct {
	StrategyID string `json:"strategy_id"`
	Contract   string `json:"contract"`
	Interval   string `json:"interval"`

	Lookback  int     `json:"lookback"`
	Threshold float64 `json:"threshold"`
	// BaseSize is the unscaled order size in contracts.
	BaseSize float64 `json:"base_size"`

	AutoExecute   bool          `json:"auto_execute"`
	Frequency     time.Duration `json:"frequency"`
	UseHeikinAshi bool          `json:"use_heikin_ashi"`

	// Optional risk bounds; zero disables the respective exit.
	TakeProfitPct float64 `json:"take_profit_pct"`
	StopLossPct   float64 `json:"stop_loss_pct"`
	Leverage      float64 `json:"leverage"`
}

// Validate rejects configurations no normalization can repair.
func (c *InstanceConfig) Validate() error {
	if strings.TrimSpace(c.StrategyID) == "" {
		return errors.New("strategy id is required")
	}
	if strings.TrimSpace(c.Contract) == "" {
		return errors.New("contract is required")
	}
	if c.TakeProfitPct < 0 {
		return errors.Errorf("TakeProfitPct (%f) cannot be negative", c.TakeProfitPct)
	}
	if c.StopLossPct < 0 {
		return errors.Errorf("StopLossPct (%f) cannot be negative", c.StopLossPct)
	}
	return nil
}

// Normalize replaces non-positive tunables with safe defaults and returns
// the result. The receiver is left untouched.
func (c InstanceConfig) Normalize() InstanceConfig {
	if c.Interval == "" {
		c.Interval = "1m"
	}
	if c.Lookback <= 0 {
		c.Lookback = DefaultLookback
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.BaseSize <= 0 {
		c.BaseSize = DefaultBaseSize
	}
	if c.Frequency <= 0 {
		c.Frequency = DefaultFrequency
	}
	if c.Leverage <= 0 {
		c.Leverage = DefaultLeverage
	}
	if c.TakeProfitPct < 0 {
		c.TakeProfitPct = 0
	}
	if c.StopLossPct < 0 {
		c.StopLossPct = 0
	}
	return c
}

// Config is the process-level configuration.
type Config struct {
	DatabaseDSN string `mapstructure:"database_dsn"`
	ListenAddr  string `mapstructure:"listen_addr"`
	LogLevel    string `mapstructure:"log_level"`
	// Settle is the settlement currency used for exchange calls.
	Settle string `mapstructure:"settle"`
	// BusBuffer bounds the in-process event bus.
	BusBuffer int `mapstructure:"bus_buffer"`
	// Paper driver tunables; the process trades against the in-process
	// paper exchange until a wire client is plugged in.
	PaperBasePrice float64 `mapstructure:"paper_base_price"`
	PaperBalance   float64 `mapstructure:"paper_balance"`
}

// Load reads the process configuration from an optional yaml file (path in
// STRATA_CONFIG) with STRATA_* environment overrides.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("strata")
	v.AutomaticEnv()
	// Every key needs a default so env-only overrides survive Unmarshal.
	v.SetDefault("database_dsn", "")
	v.SetDefault("listen_addr", ":9180")
	v.SetDefault("log_level", "info")
	v.SetDefault("settle", "usdt")
	v.SetDefault("bus_buffer", 1024)
	v.SetDefault("paper_base_price", 30000)
	v.SetDefault("paper_balance", 10000)

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}
