package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/rustyeddy/tradeit/config"
	"github.com/rustyeddy/tradeit/internal/logging"
	"github.com/rustyeddy/tradeit/market"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tradeit",
	Short: "A bar-by-bar backtesting simulator for single-instrument strategies",
	Long: `Tradeit replays OHLC bars through a trading strategy and a simulated
broker, then reports equity, drawdown and per-trade statistics.

It provides tools for:
  - Backtesting a registered strategy against CSV or Parquet bars
  - Running one strategy over a directory of instruments in parallel
  - Journaling runs to SQLite or CSV and exporting them to Parquet
  - Generating and validating run configuration files`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	cfgPath   string
	logLevel  string
	logFormat string

	cfg    *config.Config
	logger = logging.Discard()
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "run configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "text or json (overrides config)")
}

// setup loads the configuration and builds the logger for every command.
func setup(cmd *cobra.Command, _ []string) error {
	if cfgPath != "" {
		c, err := config.LoadFromFile(cfgPath)
		if err != nil {
			return err
		}
		cfg = c
	} else {
		cfg = config.Default()
	}
	if logLevel != "" {
		cfg.Run.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.Run.LogFormat = logFormat
	}

	l, err := logging.New(cfg.Run.LogLevel, cfg.Run.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	logger = l
	slog.SetDefault(l)
	return nil
}

// loadBars reads a bar file in the given format, inferring it from the
// extension when format is empty.
func loadBars(path, format string) ([]market.Bar, error) {
	switch strings.ToLower(format) {
	case "":
		return market.Load(path)
	case "csv":
		return market.LoadCSV(path)
	case "parquet":
		return market.ReadParquet(path)
	default:
		return nil, fmt.Errorf("unsupported data format %q", format)
	}
}

// mergeParams copies command-line strategy parameters over the configured
// ones.
func mergeParams(dst map[string]any, src map[string]string) map[string]any {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
