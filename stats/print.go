package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

const rule = "--------------------------------------------------"

// Print writes the report summary as aligned key/value lines.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")
	printFields(w, r.Summary())
	fmt.Fprintln(w)
}

// Print writes the selected analysis: aligned fields for MACRO, the trade
// table as CSV for MICRO.
func (a *Analysis) Print(w io.Writer) error {
	if a.Kind == Micro {
		return WriteTradesCSV(w, a.Trades)
	}
	fmt.Fprintln(w, "Analysis (MACRO)")
	fmt.Fprintln(w, rule)
	printFields(w, a.Fields)
	return nil
}

func printFields(w io.Writer, fields []Field) {
	for _, f := range fields {
		fmt.Fprintf(w, "%-24s %s\n", f.Name+":", FormatValue(f.Value))
	}
}

// FormatValue renders a report value the same way on every run.
func FormatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return formatFloat(x)
	case time.Time:
		return formatTime(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// WriteEquityCSV writes the equity curve with a header row.
func WriteEquityCSV(w io.Writer, rows []EquityRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"bar", "time", "equity", "drawdown_pct", "drawdown_duration"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			strconv.Itoa(r.Bar),
			formatTime(r.Time),
			formatFloat(r.Equity),
			formatFloat(r.DrawdownPct),
			r.DrawdownDuration.String(),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTradesCSV writes the trade table with a header row.
func WriteTradesCSV(w io.Writer, rows []TradeRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"size", "entry_bar", "exit_bar", "one_r", "sl_price", "tp_price",
		"entry_price", "exit_price", "max_pnl", "max_negative_pnl", "pnl",
		"return_pct", "entry_time", "exit_time", "duration", "tag",
	}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			formatFloat(r.Size),
			strconv.Itoa(r.EntryBar),
			strconv.Itoa(r.ExitBar),
			formatFloat(r.OneR),
			formatFloat(r.SlPrice),
			formatFloat(r.TpPrice),
			formatFloat(r.EntryPrice),
			formatFloat(r.ExitPrice),
			formatFloat(r.MaxPnL),
			formatFloat(r.MaxNegativePnL),
			formatFloat(r.PnL),
			formatFloat(r.ReturnPct),
			formatTime(r.EntryTime),
			formatTime(r.ExitTime),
			r.Duration.String(),
			r.Tag,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
