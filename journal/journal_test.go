package journal

import (
	"bytes"
	"context"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/tradeit/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func testReport() *stats.Report {
	nan := math.NaN()
	return &stats.Report{
		Start:        t0,
		End:          t0.AddDate(0, 0, 3),
		Bars:         4,
		EquityFinal:  10_010,
		EquityPeak:   10_020,
		Return:       0.1,
		MaxDrawdown:  -0.5,
		Sharpe:       nan,
		WinRate:      50,
		ProfitFactor: 1.5,
		Trades:       2,
		Strategy:     "sma-cross(fast=2)",
		EquityCurve: []stats.EquityRow{
			{Bar: 0, Time: t0, Equity: 10_000},
			{Bar: 1, Time: t0.AddDate(0, 0, 1), Equity: 10_020},
			{Bar: 2, Time: t0.AddDate(0, 0, 2), Equity: 9_970, DrawdownPct: 0.5},
			{Bar: 3, Time: t0.AddDate(0, 0, 3), Equity: 10_010},
		},
		TradeLog: []stats.TradeRow{
			{Size: 10, EntryBar: 1, ExitBar: 2, EntryPrice: 100, ExitPrice: 103, PnL: 30, ReturnPct: 0.03,
				SlPrice: 95, TpPrice: nan, OneR: 5, MaxPnL: 4, MaxNegativePnL: -1,
				EntryTime: t0.AddDate(0, 0, 1), ExitTime: t0.AddDate(0, 0, 2), Tag: "bull-cross"},
			{Size: -10, EntryBar: 2, ExitBar: 3, EntryPrice: 103, ExitPrice: 105, PnL: -20, ReturnPct: -0.0194,
				SlPrice: nan, TpPrice: nan, OneR: nan, MaxPnL: nan, MaxNegativePnL: nan,
				EntryTime: t0.AddDate(0, 0, 2), ExitTime: t0.AddDate(0, 0, 3), Tag: "bear-cross"},
		},
	}
}

func testRun(t *testing.T, runID string) Run {
	t.Helper()
	run, err := NewRun(runID, t0.Add(time.Hour), "spy.csv", 10_000, map[string]any{"fast": 2}, testReport())
	require.NoError(t, err)
	return run
}

func TestNewRun(t *testing.T) {
	t.Parallel()

	run := testRun(t, "R1")
	r := run.Record
	assert.Equal(t, "R1", r.RunID)
	assert.Equal(t, "sma-cross(fast=2)", r.Strategy)
	assert.JSONEq(t, `{"fast":2}`, string(r.Params))
	assert.Equal(t, 1, r.Wins)
	assert.Equal(t, 1, r.Losses)
	assert.Equal(t, 10.0, r.NetPL())

	require.Len(t, run.Trades, 2)
	assert.Equal(t, 1, run.Trades[0].Seq)
	assert.Equal(t, 2, run.Trades[1].Seq)
	assert.Equal(t, "R1", run.Trades[1].RunID)
	require.Len(t, run.Equity, 4)
	assert.Equal(t, 0.5, run.Equity[2].DrawdownPct)
}

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	j, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestSQLite_RecordAndGetRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j := newTestSQLite(t)
	require.NoError(t, j.RecordRun(ctx, testRun(t, "R1")))

	got, err := j.GetRun(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, "sma-cross(fast=2)", got.Strategy)
	assert.Equal(t, "spy.csv", got.Dataset)
	assert.True(t, got.Created.Equal(t0.Add(time.Hour)))
	assert.True(t, got.Start.Equal(t0))
	assert.Equal(t, 10_010.0, got.EquityFinal)
	assert.Equal(t, -0.5, got.MaxDDPct)
	assert.True(t, math.IsNaN(got.Sharpe), "NaN survives as NULL")
	assert.Equal(t, 2, got.Trades)
	assert.False(t, got.OutOfMoney)
	assert.JSONEq(t, `{"fast":2}`, string(got.Params))

	_, err = j.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	// Run ids are unique.
	assert.Error(t, j.RecordRun(ctx, testRun(t, "R1")))
}

func TestSQLite_ListTradesAndEquity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j := newTestSQLite(t)
	require.NoError(t, j.RecordRun(ctx, testRun(t, "R1")))

	trades, err := j.ListTrades(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, 30.0, trades[0].PnL)
	assert.Equal(t, 95.0, trades[0].SL)
	assert.True(t, math.IsNaN(trades[0].TP))
	assert.True(t, trades[0].ExitTime.Equal(t0.AddDate(0, 0, 2)))
	assert.Equal(t, "bear-cross", trades[1].Tag)
	assert.True(t, math.IsNaN(trades[1].MaxPnL))

	equity, err := j.ListEquity(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, equity, 4)
	assert.Equal(t, 9_970.0, equity[2].Equity)

	none, err := j.ListTrades(ctx, "R2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLite_ListRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j := newTestSQLite(t)
	for _, id := range []string{"R2", "R1", "R3"} {
		run := testRun(t, id)
		if id == "R3" {
			run.Record.Strategy = "noop"
		}
		require.NoError(t, j.RecordRun(ctx, run))
	}

	runs, err := j.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "R1", runs[0].RunID)
	assert.Equal(t, "R3", runs[2].RunID)

	runs, err = j.ListRuns(ctx, "noop", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "R3", runs[0].RunID)

	runs, err = j.ListRuns(ctx, "sma-cross", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	runs, err = j.ListRuns(ctx, "sma", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)

	runs, err = j.ListRuns(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestSQLite_RollsBackFailedRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j := newTestSQLite(t)

	run := testRun(t, "R1")
	run.Equity = append(run.Equity, run.Equity[0]) // duplicate bar
	require.Error(t, j.RecordRun(ctx, run))

	_, err := j.GetRun(ctx, "R1")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestCSVJournal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tradesPath, equityPath)
	require.NoError(t, err)
	require.NoError(t, j.RecordRun(context.Background(), testRun(t, "R1")))
	require.NoError(t, j.Close())

	f, err := os.Open(tradesPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, tradeHeader, rows[0])
	assert.Equal(t, "R1", rows[1][0])
	assert.Equal(t, "10.000000", rows[1][2])
	assert.Equal(t, "2024-01-04T00:00:00Z", rows[1][8])
	assert.Equal(t, "bear-cross", rows[2][16])

	data, err := os.ReadFile(equityPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "run_id,bar,time,equity,drawdown_pct\n")
	assert.Contains(t, string(data), "R1,2,2024-01-04T00:00:00Z,9970.000000,0.500000\n")
}

func TestWriteOrg(t *testing.T) {
	t.Parallel()

	run := testRun(t, "01HXYZ")
	var buf bytes.Buffer
	require.NoError(t, WriteOrg(&buf, OrgSummary{
		RunRecord:   run.Record,
		Notes:       []string{"whipsaw in March"},
		NextActions: []string{"try slow=50"},
	}))
	out := buf.String()

	assert.Contains(t, out, "* BACKTEST: sma-cross(fast=2) spy.csv")
	assert.Contains(t, out, ":RUN_ID:      01HXYZ")
	assert.Contains(t, out, ":START_DATE:  2024-01-02")
	assert.Contains(t, out, ":NET_PL:      10.00")
	assert.Contains(t, out, "- Sharpe:           *n/a*")
	assert.Contains(t, out, "| Wins    | 1 |")
	assert.Contains(t, out, "- whipsaw in March")
	assert.Contains(t, out, "- [ ] try slow=50")
	assert.NotContains(t, out, "out of money")

	path := filepath.Join(t.TempDir(), "run.org")
	require.NoError(t, WriteOrgFile(path, OrgSummary{RunRecord: run.Record}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Observations")
}

func TestExportParquet(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "export")
	tradesPath, equityPath, err := ExportParquet(dir, testRun(t, "R1"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "R1_trades.parquet"), tradesPath)
	assert.FileExists(t, tradesPath)

	equity, err := ReadEquityParquet(equityPath)
	require.NoError(t, err)
	require.Len(t, equity, 4)
	assert.Equal(t, "R1", equity[0].RunID)
	assert.True(t, equity[1].Time.Equal(t0.AddDate(0, 0, 1)))
	assert.Equal(t, 9_970.0, equity[2].Equity)
}
