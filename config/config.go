// Package config loads and validates backtest run configuration from YAML
// or JSON files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rustyeddy/tradeit/backtest"
	"github.com/rustyeddy/tradeit/internal/logging"
	"github.com/rustyeddy/tradeit/stats"
	"github.com/rustyeddy/tradeit/strategies"
	"gopkg.in/yaml.v3"
)

// Config represents a complete backtest run.
type Config struct {
	Account  AccountConfig  `json:"account" yaml:"account"`
	Broker   BrokerConfig   `json:"broker" yaml:"broker"`
	Strategy StrategyConfig `json:"strategy" yaml:"strategy"`
	Data     DataConfig     `json:"data" yaml:"data"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Run      RunConfig      `json:"run" yaml:"run"`
}

type AccountConfig struct {
	Cash float64 `json:"cash" yaml:"cash"`
}

// BrokerConfig mirrors the simulated broker's settings.
type BrokerConfig struct {
	Commission      float64 `json:"commission" yaml:"commission"`
	Margin          float64 `json:"margin" yaml:"margin"`
	TradeOnClose    bool    `json:"trade_on_close" yaml:"trade_on_close"`
	Hedging         bool    `json:"hedging" yaml:"hedging"`
	ExclusiveOrders bool    `json:"exclusive_orders" yaml:"exclusive_orders"`
}

type StrategyConfig struct {
	Name   string         `json:"name" yaml:"name"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Risk   RiskConfig     `json:"risk" yaml:"risk"`
}

// RiskConfig feeds the risk manager of strategies that size by risk.
// Values given in Params take precedence.
type RiskConfig struct {
	RiskToReward  float64 `json:"risk_to_reward" yaml:"risk_to_reward"`
	RiskPerTrade  float64 `json:"risk_per_trade" yaml:"risk_per_trade"`
	MaxRiskPct    float64 `json:"max_risk_pct,omitempty" yaml:"max_risk_pct,omitempty"`
	MinRR         float64 `json:"min_rr,omitempty" yaml:"min_rr,omitempty"`
	MaxOpenTrades int     `json:"max_open_trades,omitempty" yaml:"max_open_trades,omitempty"`
}

type DataConfig struct {
	Path   string `json:"path" yaml:"path"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"` // "csv", "parquet" or "" to infer
}

type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "none", "csv" or "sqlite"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	ExportDir  string `json:"export_dir,omitempty" yaml:"export_dir,omitempty"`
	OrgFile    string `json:"org_file,omitempty" yaml:"org_file,omitempty"`
}

type RunConfig struct {
	Analysis  string `json:"analysis,omitempty" yaml:"analysis,omitempty"` // "MACRO", "MICRO" or "" for the full report
	Workers   int    `json:"workers" yaml:"workers"`
	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format"`
	Timeout   string `json:"timeout,omitempty" yaml:"timeout,omitempty"` // e.g. "30s", "5m"
}

// ParseTimeout converts the timeout string to a duration; zero means none.
func (r RunConfig) ParseTimeout() (time.Duration, error) {
	if r.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(r.Timeout)
}

// LoadFromFile loads configuration from a YAML or JSON file and validates it.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Account.Cash <= 0 {
		return fmt.Errorf("account.cash must be positive")
	}
	if c.Broker.Commission < 0 || c.Broker.Commission >= 1 {
		return fmt.Errorf("broker.commission must be in [0, 1)")
	}
	if c.Broker.Margin <= 0 || c.Broker.Margin > 1 {
		return fmt.Errorf("broker.margin must be in (0, 1]")
	}
	if c.Strategy.Name == "" {
		return fmt.Errorf("strategy.name is required")
	}
	if _, err := strategies.New(c.Strategy.Name, c.StrategyParams()); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	switch strings.ToLower(c.Data.Format) {
	case "", "csv", "parquet":
	default:
		return fmt.Errorf("data.format must be 'csv' or 'parquet'")
	}
	switch c.Journal.Type {
	case "", "none":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'none', 'csv' or 'sqlite'")
	}
	if c.Run.Analysis != "" {
		if _, err := stats.ParseKind(c.Run.Analysis); err != nil {
			return fmt.Errorf("run.analysis: %w", err)
		}
	}
	if c.Run.Workers < 0 {
		return fmt.Errorf("run.workers must not be negative")
	}
	if _, err := logging.ParseLevel(c.Run.LogLevel); err != nil {
		return fmt.Errorf("run.log_level: %w", err)
	}
	if _, err := c.Run.ParseTimeout(); err != nil {
		return fmt.Errorf("run.timeout: %w", err)
	}
	return nil
}

// StrategyParams merges the risk settings into the strategy parameters.
func (c *Config) StrategyParams() backtest.Params {
	p := backtest.Params{}
	set := func(k string, v any, ok bool) {
		if ok {
			p[k] = v
		}
	}
	r := c.Strategy.Risk
	set("rr", r.RiskToReward, r.RiskToReward > 0)
	set("risk", r.RiskPerTrade, r.RiskPerTrade > 0)
	set("max_risk_pct", r.MaxRiskPct, r.MaxRiskPct > 0)
	set("min_rr", r.MinRR, r.MinRR > 0)
	set("max_open_trades", r.MaxOpenTrades, r.MaxOpenTrades > 0)
	for k, v := range c.Strategy.Params {
		p[k] = v
	}
	return p
}

// BacktestOptions turns the account and broker sections into backtest
// options.
func (c *Config) BacktestOptions() []backtest.Option {
	return []backtest.Option{
		backtest.WithCash(c.Account.Cash),
		backtest.WithCommission(c.Broker.Commission),
		backtest.WithMargin(c.Broker.Margin),
		backtest.WithTradeOnClose(c.Broker.TradeOnClose),
		backtest.WithHedging(c.Broker.Hedging),
		backtest.WithExclusiveOrders(c.Broker.ExclusiveOrders),
		backtest.WithParams(c.StrategyParams()),
	}
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{Cash: 10_000},
		Broker:  BrokerConfig{Margin: 1},
		Strategy: StrategyConfig{
			Name: "extreme-rsi",
			Risk: RiskConfig{RiskToReward: 2, RiskPerTrade: 0.01},
		},
		Journal: JournalConfig{Type: "none"},
		Run: RunConfig{
			Workers:   4,
			LogLevel:  "info",
			LogFormat: "text",
		},
	}
}
