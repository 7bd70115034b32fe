package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	perrors "github.com/IggyIkenna/basis-strategy-v1-sub010/internal/errors"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/risk"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/strategy"
)

const component = "config"

// FeedConfig selects and parameterizes the data feed
type FeedConfig struct {
	// Kind is "simulated" or "csv"
	Kind string `json:"kind"`

	// Simulated feed parameters
	BasePrices   map[string]float64 `json:"base_prices,omitempty"`
	Volatility   float64            `json:"volatility,omitempty"`
	FundingRates map[string]float64 `json:"funding_rates,omitempty"`
	AaveAPY      map[string]float64 `json:"aave_apy,omitempty"`
	OracleRates  map[string]float64 `json:"oracle_rates,omitempty"`
	StakingAPY   map[string]float64 `json:"staking_apy,omitempty"`
	GasCost      float64            `json:"gas_cost,omitempty"`

	// CSV feed parameters: symbol -> series file
	SeriesFiles map[string]string `json:"series_files,omitempty"`
}

// RunConfig is the complete configuration of one coordination run
type RunConfig struct {
	RunID              string  `json:"run_id"`
	Simulated          bool    `json:"simulated"`
	ShareClassCurrency string  `json:"share_class_currency"`
	InitialCapital     float64 `json:"initial_capital"`

	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	TickEvery string    `json:"tick_every"`

	CEXVenues []string `json:"cex_venues"`

	Strategy strategy.Config `json:"strategy"`
	Risk     risk.Config     `json:"risk"`
	Feed     FeedConfig      `json:"feed"`

	OutputDir      string `json:"output_dir"`
	LogDir         string `json:"log_dir"`
	PrometheusPort int    `json:"prometheus_port"`
	HealthPort     int    `json:"health_port"`
}

// LoadRunConfig reads and validates a run configuration file. Invalid
// configuration is always fatal.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.ErrorCategoryConfig, component, "LoadRunConfig",
			"cannot read run config "+path)
	}

	cfg := defaultRunConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, perrors.Wrap(err, perrors.ErrorCategoryConfig, component, "LoadRunConfig",
			"cannot parse run config "+path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultRunConfig() *RunConfig {
	return &RunConfig{
		Simulated:          true,
		ShareClassCurrency: "USDT",
		TickEvery:          "1h",
		Risk:               risk.DefaultConfig(),
		OutputDir:          "results",
		LogDir:             "logs",
		PrometheusPort:     8080,
		HealthPort:         8081,
	}
}

// Validate checks the configuration; it fails fast rather than patching
// over bad values
func (c *RunConfig) Validate() error {
	if c.RunID == "" {
		return perrors.NewConfigError(component, "Validate", "run_id is required")
	}
	if c.ShareClassCurrency == "" {
		return perrors.NewConfigError(component, "Validate", "share_class_currency is required")
	}
	if c.InitialCapital <= 0 {
		return perrors.NewConfigError(component, "Validate",
			fmt.Sprintf("initial_capital must be positive, got %v", c.InitialCapital))
	}
	if c.Strategy.Mode == "" {
		return perrors.NewConfigError(component, "Validate", "strategy.mode is required")
	}
	if c.Simulated {
		if c.Start.IsZero() || c.End.IsZero() {
			return perrors.NewConfigError(component, "Validate", "simulated runs require start and end")
		}
		if !c.End.After(c.Start) {
			return perrors.NewConfigError(component, "Validate", "end must be after start")
		}
	}
	if _, err := c.TickInterval(); err != nil {
		return err
	}
	switch c.Feed.Kind {
	case "", "simulated", "csv":
	default:
		return perrors.NewConfigError(component, "Validate",
			fmt.Sprintf("unknown feed kind %q", c.Feed.Kind))
	}
	return nil
}

// TickInterval parses the configured tick spacing
func (c *RunConfig) TickInterval() (time.Duration, error) {
	interval, err := time.ParseDuration(c.TickEvery)
	if err != nil || interval <= 0 {
		return 0, perrors.NewConfigError(component, "TickInterval",
			fmt.Sprintf("invalid tick_every %q", c.TickEvery))
	}
	return interval, nil
}

// Timestamps expands the configured window into the run's tick sequence
func (c *RunConfig) Timestamps() ([]time.Time, error) {
	interval, err := c.TickInterval()
	if err != nil {
		return nil, err
	}

	var out []time.Time
	for ts := c.Start; !ts.After(c.End); ts = ts.Add(interval) {
		out = append(out, ts)
	}
	return out, nil
}
