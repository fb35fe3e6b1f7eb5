package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrRunNotFound = errors.New("run not found")

const runColumns = `run_id, created, strategy, dataset, params, start_time, end_time, bars, cash,
	equity_final, equity_peak, return_pct, buy_hold_pct, max_dd_pct, sharpe, sortino,
	calmar, win_rate, profit_factor, expectancy, sqn, trades, wins, losses, out_of_money`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (RunRecord, error) {
	var (
		rec        RunRecord
		params     string
		start, end sql.NullTime
		f          [12]sql.NullFloat64
	)
	err := s.Scan(
		&rec.RunID, &rec.Created, &rec.Strategy, &rec.Dataset, &params,
		&start, &end, &rec.Bars, &rec.Cash,
		&f[0], &f[1], &f[2], &f[3], &f[4], &f[5], &f[6], &f[7], &f[8], &f[9], &f[10], &f[11],
		&rec.Trades, &rec.Wins, &rec.Losses, &rec.OutOfMoney,
	)
	if err != nil {
		return RunRecord{}, err
	}
	rec.Params = []byte(params)
	rec.Start, rec.End = start.Time, end.Time
	for i, dst := range []*float64{
		&rec.EquityFinal, &rec.EquityPeak, &rec.ReturnPct, &rec.BuyHoldPct,
		&rec.MaxDDPct, &rec.Sharpe, &rec.Sortino, &rec.Calmar,
		&rec.WinRate, &rec.ProfitFactor, &rec.Expectancy, &rec.SQN,
	} {
		*dst = floatOrNaN(f[i])
	}
	return rec, nil
}

// GetRun returns a single run summary by id.
func (j *SQLite) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %q", ErrRunNotFound, runID)
	}
	return rec, err
}

// ListRuns returns run summaries oldest first, optionally only those of
// one strategy. strategy matches the bare name or the full name with
// parameters. A limit of zero returns all of them.
func (j *SQLite) ListRuns(ctx context.Context, strategy string, limit int) ([]RunRecord, error) {
	q := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if strategy != "" {
		q += ` WHERE strategy = ? OR strategy LIKE ?`
		args = append(args, strategy, strategy+"(%")
	}
	q += ` ORDER BY run_id ASC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListTrades returns a run's trades in close order.
func (j *SQLite) ListTrades(ctx context.Context, runID string) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, seq, size, entry_bar, exit_bar, entry_price, exit_price, entry_time, exit_time,
		       pnl, return_pct, sl, tp, one_r, max_pnl, max_negative_pnl, tag
		FROM trades
		WHERE run_id = ?
		ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var (
			rec                 TradeRecord
			entry, exit         sql.NullTime
			ret, sl, tp, oneR   sql.NullFloat64
			maxPnL, maxNegative sql.NullFloat64
		)
		if err := rows.Scan(
			&rec.RunID, &rec.Seq, &rec.Size, &rec.EntryBar, &rec.ExitBar,
			&rec.EntryPrice, &rec.ExitPrice, &entry, &exit,
			&rec.PnL, &ret, &sl, &tp, &oneR, &maxPnL, &maxNegative, &rec.Tag,
		); err != nil {
			return nil, err
		}
		rec.EntryTime, rec.ExitTime = entry.Time, exit.Time
		rec.ReturnPct = floatOrNaN(ret)
		rec.SL, rec.TP, rec.OneR = floatOrNaN(sl), floatOrNaN(tp), floatOrNaN(oneR)
		rec.MaxPnL, rec.MaxNegativePnL = floatOrNaN(maxPnL), floatOrNaN(maxNegative)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEquity returns a run's equity curve in bar order.
func (j *SQLite) ListEquity(ctx context.Context, runID string) ([]EquitySnapshot, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, bar, time, equity, drawdown_pct
		FROM equity
		WHERE run_id = ?
		ORDER BY bar ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var (
			rec    EquitySnapshot
			t      sql.NullTime
			eq, dd sql.NullFloat64
		)
		if err := rows.Scan(&rec.RunID, &rec.Bar, &t, &eq, &dd); err != nil {
			return nil, err
		}
		rec.Time = t.Time
		rec.Equity, rec.DrawdownPct = floatOrNaN(eq), floatOrNaN(dd)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
