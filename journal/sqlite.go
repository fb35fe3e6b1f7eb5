package journal

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite stores runs in a SQLite database. It is safe for concurrent use.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Writers would otherwise race for the database lock.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// RecordRun writes the run, its trades and its equity curve in one
// transaction.
func (j *SQLite) RecordRun(ctx context.Context, run Run) (err error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	r := run.Record
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(run_id, created, strategy, dataset, params, start_time, end_time, bars, cash,
		 equity_final, equity_peak, return_pct, buy_hold_pct, max_dd_pct, sharpe, sortino,
		 calmar, win_rate, profit_factor, expectancy, sqn, trades, wins, losses, out_of_money)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created.UTC(), r.Strategy, r.Dataset, string(r.Params),
		nullTime(r.Start), nullTime(r.End), r.Bars, r.Cash,
		nullFloat(r.EquityFinal), nullFloat(r.EquityPeak), nullFloat(r.ReturnPct),
		nullFloat(r.BuyHoldPct), nullFloat(r.MaxDDPct), nullFloat(r.Sharpe),
		nullFloat(r.Sortino), nullFloat(r.Calmar), nullFloat(r.WinRate),
		nullFloat(r.ProfitFactor), nullFloat(r.Expectancy), nullFloat(r.SQN),
		r.Trades, r.Wins, r.Losses, r.OutOfMoney,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.RunID, err)
	}

	ts, err := tx.PrepareContext(ctx, `
		INSERT INTO trades
		(run_id, seq, size, entry_bar, exit_bar, entry_price, exit_price, entry_time, exit_time,
		 pnl, return_pct, sl, tp, one_r, max_pnl, max_negative_pnl, tag)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare trades: %w", err)
	}
	defer ts.Close()
	for _, t := range run.Trades {
		_, err = ts.ExecContext(ctx,
			r.RunID, t.Seq, t.Size, t.EntryBar, t.ExitBar, t.EntryPrice, t.ExitPrice,
			nullTime(t.EntryTime), nullTime(t.ExitTime), t.PnL, nullFloat(t.ReturnPct),
			nullFloat(t.SL), nullFloat(t.TP), nullFloat(t.OneR), nullFloat(t.MaxPnL),
			nullFloat(t.MaxNegativePnL), t.Tag,
		)
		if err != nil {
			return fmt.Errorf("insert trade %d: %w", t.Seq, err)
		}
	}

	es, err := tx.PrepareContext(ctx, `
		INSERT INTO equity (run_id, bar, time, equity, drawdown_pct)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare equity: %w", err)
	}
	defer es.Close()
	for _, e := range run.Equity {
		_, err = es.ExecContext(ctx, r.RunID, e.Bar, nullTime(e.Time), nullFloat(e.Equity), nullFloat(e.DrawdownPct))
		if err != nil {
			return fmt.Errorf("insert equity bar %d: %w", e.Bar, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

// NaN and infinite values are stored as NULL.
func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v) && !math.IsInf(v, 0)}
}

func floatOrNaN(n sql.NullFloat64) float64 {
	if !n.Valid {
		return math.NaN()
	}
	return n.Float64
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
