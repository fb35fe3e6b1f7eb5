package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rustyeddy/tradeit/backtest"
	"github.com/rustyeddy/tradeit/config"
	"github.com/rustyeddy/tradeit/internal/id"
	"github.com/rustyeddy/tradeit/journal"
	"github.com/rustyeddy/tradeit/stats"
	"github.com/rustyeddy/tradeit/strategies"
	"github.com/spf13/cobra"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Backtest a strategy over one bar file",
	Long: `Backtest runs a registered strategy over OHLC bars read from a CSV or
Parquet file and prints the report.

Flags override the values of the configuration file.

Examples:
  tradeit backtest -d data/spy.csv -s sma-cross -p fast=10 -p slow=30
  tradeit backtest -c run.yaml --analysis MICRO
  tradeit backtest -d spy.parquet -s extreme-rsi --journal sqlite --db runs.sqlite`,
	Args: cobra.NoArgs,
	RunE: runBacktest,
}

var (
	btData       string
	btFormat     string
	btStrategy   string
	btParams     map[string]string
	btCash       float64
	btCommission float64
	btAnalysis   string
	btJournal    string
	btDBPath     string
	btTradesFile string
	btEquityFile string
	btExportDir  string
	btOrgFile    string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	f := backtestCmd.Flags()
	f.StringVarP(&btData, "data", "d", "", "path to the bar file")
	f.StringVar(&btFormat, "format", "", "csv or parquet (default: from the file extension)")
	f.StringVarP(&btStrategy, "strategy", "s", "", "strategy name (see 'tradeit strategies')")
	f.StringToStringVarP(&btParams, "param", "p", nil, "strategy parameter as key=value (repeatable)")
	f.Float64Var(&btCash, "cash", 0, "initial cash")
	f.Float64Var(&btCommission, "commission", 0, "commission as a fraction of trade value")
	f.StringVarP(&btAnalysis, "analysis", "a", "", "print only the MACRO summary or the MICRO trade table")
	f.StringVar(&btJournal, "journal", "", "journal type: none, csv or sqlite")
	f.StringVar(&btDBPath, "db", "", "SQLite journal path")
	f.StringVar(&btTradesFile, "trades-file", "", "CSV journal trades path")
	f.StringVar(&btEquityFile, "equity-file", "", "CSV journal equity path")
	f.StringVar(&btExportDir, "export-dir", "", "write the trades and equity curve as Parquet into this directory")
	f.StringVar(&btOrgFile, "org", "", "write an Org-mode summary of the run to this file")
}

// applyBacktestFlags copies the flags the user set onto c.
func applyBacktestFlags(cmd *cobra.Command, c *config.Config) {
	changed := cmd.Flags().Changed
	if changed("data") {
		c.Data.Path = btData
	}
	if changed("format") {
		c.Data.Format = btFormat
	}
	if changed("strategy") {
		c.Strategy.Name = btStrategy
	}
	c.Strategy.Params = mergeParams(c.Strategy.Params, btParams)
	if changed("cash") {
		c.Account.Cash = btCash
	}
	if changed("commission") {
		c.Broker.Commission = btCommission
	}
	if changed("analysis") {
		c.Run.Analysis = btAnalysis
	}
	if changed("journal") {
		c.Journal.Type = btJournal
	}
	if changed("db") {
		c.Journal.DBPath = btDBPath
	}
	if changed("trades-file") {
		c.Journal.TradesFile = btTradesFile
	}
	if changed("equity-file") {
		c.Journal.EquityFile = btEquityFile
	}
	if changed("export-dir") {
		c.Journal.ExportDir = btExportDir
	}
	if changed("org") {
		c.Journal.OrgFile = btOrgFile
	}
}

func runBacktest(cmd *cobra.Command, _ []string) error {
	applyBacktestFlags(cmd, cfg)
	if cfg.Data.Path == "" {
		return fmt.Errorf("no data file: set --data or data.path")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, cancel, err := runContext(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cancel()

	bars, err := loadBars(cfg.Data.Path, cfg.Data.Format)
	if err != nil {
		return fmt.Errorf("load data: %w", err)
	}
	params := cfg.StrategyParams()
	strat, err := strategies.New(cfg.Strategy.Name, params)
	if err != nil {
		return fmt.Errorf("strategy: %w", err)
	}

	opts := append(cfg.BacktestOptions(), backtest.WithLogger(logger))
	bt, err := backtest.New(opts...)
	if err != nil {
		return err
	}

	logger.Info("running backtest", "strategy", cfg.Strategy.Name, "data", cfg.Data.Path, "bars", len(bars))
	rep, err := bt.Run(ctx, bars, strat)
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	out := cmd.OutOrStdout()
	if err := printReport(out, rep, cfg.Run.Analysis); err != nil {
		return err
	}

	run, err := journal.NewRun(id.New(), time.Now().UTC(), cfg.Data.Path, cfg.Account.Cash, params, rep)
	if err != nil {
		return err
	}
	return recordRun(ctx, out, cfg, run)
}

// runContext applies the configured timeout to parent.
func runContext(parent context.Context, c *config.Config) (context.Context, context.CancelFunc, error) {
	if parent == nil {
		parent = context.Background()
	}
	timeout, err := c.Run.ParseTimeout()
	if err != nil {
		return nil, nil, err
	}
	if timeout > 0 {
		ctx, cancel := context.WithTimeout(parent, timeout)
		return ctx, cancel, nil
	}
	ctx, cancel := context.WithCancel(parent)
	return ctx, cancel, nil
}

func printReport(w io.Writer, rep *stats.Report, analysis string) error {
	if analysis == "" {
		rep.Print(w)
		return nil
	}
	a, err := rep.Analysis(analysis)
	if err != nil {
		return err
	}
	return a.Print(w)
}

// openJournal returns nil when journaling is off.
func openJournal(c *config.Config) (journal.Journal, error) {
	switch c.Journal.Type {
	case "", "none":
		return nil, nil
	case "csv":
		return journal.NewCSV(c.Journal.TradesFile, c.Journal.EquityFile)
	case "sqlite":
		return journal.NewSQLite(c.Journal.DBPath)
	default:
		return nil, fmt.Errorf("unknown journal type %q", c.Journal.Type)
	}
}

// recordRun writes run to every configured sink.
func recordRun(ctx context.Context, out io.Writer, c *config.Config, run journal.Run) error {
	j, err := openJournal(c)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if j != nil {
		defer j.Close()
		if err := j.RecordRun(ctx, run); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		fmt.Fprintf(out, "Journaled run %s (%s)\n", run.Record.RunID, c.Journal.Type)
	}

	if c.Journal.ExportDir != "" {
		tradesPath, equityPath, err := journal.ExportParquet(c.Journal.ExportDir, run)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		logger.Info("exported run", "trades", tradesPath, "equity", equityPath)
	}
	if c.Journal.OrgFile != "" {
		if err := journal.WriteOrgFile(c.Journal.OrgFile, journal.OrgSummary{RunRecord: run.Record}); err != nil {
			return fmt.Errorf("org: %w", err)
		}
		logger.Info("wrote org summary", "path", c.Journal.OrgFile)
	}
	return nil
}
