package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/rustyeddy/tradeit/journal"
	"github.com/rustyeddy/tradeit/stats"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query journaled backtest runs",
	Long: `Query and display backtest runs recorded in a SQLite journal.

Subcommands:
  runs    - List runs, newest last
  show    - Print one run as an Org-mode entry
  trades  - List the trades of a run

Examples:
  tradeit journal runs --strategy sma-cross
  tradeit journal show 01J9Z3...
  tradeit journal trades 01J9Z3...`,
}

var journalRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List journaled runs",
	Args:  cobra.NoArgs,
	RunE:  runJournalRuns,
}

var journalShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print a run as an Org-mode entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalShow,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades <run-id>",
	Short: "List the trades of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrades,
}

var (
	journalDBPath   string
	journalStrategy string
	journalLimit    int
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalRunsCmd)
	journalCmd.AddCommand(journalShowCmd)
	journalCmd.AddCommand(journalTradesCmd)

	journalCmd.PersistentFlags().StringVar(&journalDBPath, "db", "", "path to SQLite journal DB (default from config)")
	journalRunsCmd.Flags().StringVarP(&journalStrategy, "strategy", "s", "", "only runs of this strategy")
	journalRunsCmd.Flags().IntVarP(&journalLimit, "limit", "n", 0, "show at most n runs")
}

func openSQLite() (*journal.SQLite, error) {
	path := journalDBPath
	if path == "" {
		path = cfg.Journal.DBPath
	}
	if path == "" {
		return nil, fmt.Errorf("no journal: set --db or journal.db_path")
	}
	j, err := journal.NewSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runJournalRuns(cmd *cobra.Command, _ []string) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	runs, err := j.ListRuns(cmd.Context(), journalStrategy, journalLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTRATEGY\tDATASET\tTRADES\tRETURN [%]\tNET P/L")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%.2f\n",
			r.RunID, r.Strategy, r.Dataset, r.Trades, stats.FormatValue(r.ReturnPct), r.NetPL())
	}
	return tw.Flush()
}

func runJournalShow(cmd *cobra.Command, args []string) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	rec, err := j.GetRun(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	return journal.WriteOrg(cmd.OutOrStdout(), journal.OrgSummary{RunRecord: rec})
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	j, err := openSQLite()
	if err != nil {
		return err
	}
	defer j.Close()

	trades, err := j.ListTrades(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("list trades: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSIZE\tENTRY BAR\tEXIT BAR\tENTRY\tEXIT\tP/L\tTAG")
	for _, t := range trades {
		fmt.Fprintf(tw, "%d\t%g\t%d\t%d\t%.4f\t%.4f\t%.2f\t%s\n",
			t.Seq, t.Size, t.EntryBar, t.ExitBar, t.EntryPrice, t.ExitPrice, t.PnL, t.Tag)
	}
	return tw.Flush()
}
