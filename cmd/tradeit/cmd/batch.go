package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rustyeddy/tradeit/backtest"
	"github.com/rustyeddy/tradeit/batch"
	"github.com/rustyeddy/tradeit/internal/id"
	"github.com/rustyeddy/tradeit/journal"
	"github.com/rustyeddy/tradeit/stats"
	"github.com/rustyeddy/tradeit/strategies"
	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch <data-dir>",
	Short: "Backtest one strategy over every bar file in a directory",
	Long: `Batch runs the same strategy and parameters over each CSV or Parquet file
in a directory, several at a time, and prints one summary line per file.
The file name without extension is the symbol.

Example:
  tradeit batch data/ -s ema-cross -p fast=12 -p slow=26 --workers 8`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

var (
	batchStrategy string
	batchParams   map[string]string
	batchWorkers  int
	batchFailFast bool
)

func init() {
	rootCmd.AddCommand(batchCmd)

	f := batchCmd.Flags()
	f.StringVarP(&batchStrategy, "strategy", "s", "", "strategy name")
	f.StringToStringVarP(&batchParams, "param", "p", nil, "strategy parameter as key=value (repeatable)")
	f.IntVarP(&batchWorkers, "workers", "w", 0, "backtests to run at once (default from config)")
	f.BoolVar(&batchFailFast, "fail-fast", false, "stop at the first failing file")
}

func runBatch(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("strategy") {
		cfg.Strategy.Name = batchStrategy
	}
	cfg.Strategy.Params = mergeParams(cfg.Strategy.Params, batchParams)
	if cmd.Flags().Changed("workers") {
		cfg.Run.Workers = batchWorkers
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	jobs, err := batch.Discover(args[0])
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return fmt.Errorf("no bar files in %s", args[0])
	}

	ctx, cancel, err := runContext(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer cancel()

	name, params := cfg.Strategy.Name, cfg.StrategyParams()
	// No Cache: each file runs once per invocation.
	r := &batch.Runner{
		Strategy: name,
		Params:   params,
		Factory: func() (backtest.Strategy, error) {
			return strategies.New(name, params)
		},
		Options:  cfg.BacktestOptions(),
		Workers:  cfg.Run.Workers,
		FailFast: batchFailFast,
		Log:      logger,
	}

	start := time.Now()
	results, runErr := r.Run(ctx, jobs)
	logger.Info("batch finished", "files", len(jobs), "elapsed", time.Since(start))

	out := cmd.OutOrStdout()
	if err := printBatch(out, results); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}

	j, err := openJournal(cfg)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if j == nil {
		return nil
	}
	defer j.Close()

	recorded := 0
	for _, sym := range batch.Symbols(results) {
		res := results[sym]
		if res.Err != nil {
			continue
		}
		run, err := journal.NewRun(id.New(), time.Now().UTC(), res.Path, cfg.Account.Cash, params, res.Report)
		if err != nil {
			return err
		}
		if err := j.RecordRun(ctx, run); err != nil {
			return fmt.Errorf("journal %s: %w", sym, err)
		}
		recorded++
	}
	fmt.Fprintf(out, "Journaled %d runs (%s)\n", recorded, cfg.Journal.Type)
	return nil
}

func printBatch(w io.Writer, results map[string]batch.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tTRADES\tRETURN [%]\tMAX DD [%]\tSHARPE\tERROR")
	for _, sym := range batch.Symbols(results) {
		res := results[sym]
		if res.Err != nil {
			fmt.Fprintf(tw, "%s\t\t\t\t\t%v\n", sym, res.Err)
			continue
		}
		rep := res.Report
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t\n", sym, rep.Trades,
			stats.FormatValue(rep.Return), stats.FormatValue(rep.MaxDrawdown), stats.FormatValue(rep.Sharpe))
	}
	return tw.Flush()
}
