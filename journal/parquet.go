package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
)

type tradeRow struct {
	RunID          string  `parquet:"run_id"`
	Seq            int64   `parquet:"seq"`
	Size           float64 `parquet:"size"`
	EntryBar       int64   `parquet:"entry_bar"`
	ExitBar        int64   `parquet:"exit_bar"`
	EntryPrice     float64 `parquet:"entry_price"`
	ExitPrice      float64 `parquet:"exit_price"`
	EntryTime      int64   `parquet:"entry_time,timestamp(millisecond)"`
	ExitTime       int64   `parquet:"exit_time,timestamp(millisecond)"`
	PnL            float64 `parquet:"pnl"`
	ReturnPct      float64 `parquet:"return_pct"`
	SL             float64 `parquet:"sl"`
	TP             float64 `parquet:"tp"`
	OneR           float64 `parquet:"one_r"`
	MaxPnL         float64 `parquet:"max_pnl"`
	MaxNegativePnL float64 `parquet:"max_negative_pnl"`
	Tag            string  `parquet:"tag"`
}

type equityRow struct {
	RunID       string  `parquet:"run_id"`
	Bar         int64   `parquet:"bar"`
	Time        int64   `parquet:"time,timestamp(millisecond)"`
	Equity      float64 `parquet:"equity"`
	DrawdownPct float64 `parquet:"drawdown_pct"`
}

// ExportParquet writes the run's trades and equity curve to
// <dir>/<run_id>_trades.parquet and <dir>/<run_id>_equity.parquet and
// returns both paths. Undated rows carry a zero timestamp.
func ExportParquet(dir string, run Run) (tradesPath, equityPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create export dir: %w", err)
	}
	id := run.Record.RunID

	trades := make([]tradeRow, len(run.Trades))
	for i, t := range run.Trades {
		trades[i] = tradeRow{
			RunID:          t.RunID,
			Seq:            int64(t.Seq),
			Size:           t.Size,
			EntryBar:       int64(t.EntryBar),
			ExitBar:        int64(t.ExitBar),
			EntryPrice:     t.EntryPrice,
			ExitPrice:      t.ExitPrice,
			EntryTime:      millis(t.EntryTime),
			ExitTime:       millis(t.ExitTime),
			PnL:            t.PnL,
			ReturnPct:      t.ReturnPct,
			SL:             t.SL,
			TP:             t.TP,
			OneR:           t.OneR,
			MaxPnL:         t.MaxPnL,
			MaxNegativePnL: t.MaxNegativePnL,
			Tag:            t.Tag,
		}
	}
	tradesPath = filepath.Join(dir, id+"_trades.parquet")
	if err := parquet.WriteFile(tradesPath, trades); err != nil {
		return "", "", fmt.Errorf("write %s: %w", tradesPath, err)
	}

	equity := make([]equityRow, len(run.Equity))
	for i, e := range run.Equity {
		equity[i] = equityRow{
			RunID:       e.RunID,
			Bar:         int64(e.Bar),
			Time:        millis(e.Time),
			Equity:      e.Equity,
			DrawdownPct: e.DrawdownPct,
		}
	}
	equityPath = filepath.Join(dir, id+"_equity.parquet")
	if err := parquet.WriteFile(equityPath, equity); err != nil {
		return "", "", fmt.Errorf("write %s: %w", equityPath, err)
	}
	return tradesPath, equityPath, nil
}

// ReadEquityParquet reads back an equity file written by ExportParquet.
func ReadEquityParquet(path string) ([]EquitySnapshot, error) {
	rows, err := parquet.ReadFile[equityRow](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	out := make([]EquitySnapshot, len(rows))
	for i, r := range rows {
		out[i] = EquitySnapshot{
			RunID:       r.RunID,
			Bar:         int(r.Bar),
			Time:        fromMillis(r.Time),
			Equity:      r.Equity,
			DrawdownPct: r.DrawdownPct,
		}
	}
	return out, nil
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
