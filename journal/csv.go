package journal

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"
)

// CSVJournal appends trades and equity points of every recorded run to two
// CSV files. It is safe for concurrent use.
type CSVJournal struct {
	mu     sync.Mutex
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

var (
	tradeHeader = []string{"run_id", "seq", "size", "entry_bar", "exit_bar", "entry_price", "exit_price",
		"entry_time", "exit_time", "pnl", "return_pct", "sl", "tp", "one_r", "max_pnl", "max_negative_pnl", "tag"}
	equityHeader = []string{"run_id", "bar", "time", "equity", "drawdown_pct"}
)

func NewCSV(tradesPath, equityPath string) (*CSVJournal, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		_ = tf.Close()
		return nil, err
	}

	j := &CSVJournal{trades: csv.NewWriter(tf), equity: csv.NewWriter(ef), tf: tf, ef: ef}
	if err := j.trades.Write(tradeHeader); err != nil {
		_ = j.Close()
		return nil, err
	}
	if err := j.equity.Write(equityHeader); err != nil {
		_ = j.Close()
		return nil, err
	}
	if err := j.flush(); err != nil {
		_ = j.Close()
		return nil, err
	}
	return j, nil
}

func (j *CSVJournal) RecordRun(_ context.Context, run Run) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, t := range run.Trades {
		err := j.trades.Write([]string{
			t.RunID,
			strconv.Itoa(t.Seq),
			f(t.Size),
			strconv.Itoa(t.EntryBar),
			strconv.Itoa(t.ExitBar),
			f(t.EntryPrice),
			f(t.ExitPrice),
			ts(t.EntryTime),
			ts(t.ExitTime),
			f(t.PnL),
			f(t.ReturnPct),
			f(t.SL),
			f(t.TP),
			f(t.OneR),
			f(t.MaxPnL),
			f(t.MaxNegativePnL),
			t.Tag,
		})
		if err != nil {
			return err
		}
	}
	for _, e := range run.Equity {
		err := j.equity.Write([]string{
			e.RunID,
			strconv.Itoa(e.Bar),
			ts(e.Time),
			f(e.Equity),
			f(e.DrawdownPct),
		})
		if err != nil {
			return err
		}
	}
	return j.flush()
}

func (j *CSVJournal) flush() error {
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	ferr := j.flush()
	if err := j.tf.Close(); err != nil {
		return err
	}
	if err := j.ef.Close(); err != nil {
		return err
	}
	return ferr
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}

func ts(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
