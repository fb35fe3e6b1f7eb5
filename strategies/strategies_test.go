package strategies

import (
	"context"
	"testing"
	"time"

	"github.com/rustyeddy/tradeit/backtest"
	"github.com/rustyeddy/tradeit/market"
	"github.com/rustyeddy/tradeit/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func ohlc(bars ...[4]float64) []market.Bar {
	out := make([]market.Bar, len(bars))
	for i, b := range bars {
		out[i] = market.Bar{
			Time:   t0.AddDate(0, 0, i),
			Open:   b[0],
			High:   b[1],
			Low:    b[2],
			Close:  b[3],
			Volume: 1000 + float64(i),
		}
	}
	return out
}

func closes(cs ...float64) []market.Bar {
	bars := make([][4]float64, len(cs))
	for i, c := range cs {
		bars[i] = [4]float64{c, c, c, c}
	}
	return ohlc(bars...)
}

func runStrategy(t *testing.T, name string, p backtest.Params, bars []market.Bar) *stats.Report {
	t.Helper()
	s, err := New(name, p)
	require.NoError(t, err)
	bt, err := backtest.New(backtest.WithParams(p))
	require.NoError(t, err)
	rep, err := bt.Run(context.Background(), bars, s)
	require.NoError(t, err)
	return rep
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	names := Names()
	for _, n := range []string{"noop", "open-once", "sma-cross", "ema-cross", "ema-adx", "extreme-rsi"} {
		assert.Contains(t, names, n)
	}

	s, err := New(" SMA-Cross ", nil)
	require.NoError(t, err)
	assert.Equal(t, "sma-cross", s.(backtest.Named).Name())

	_, err = New("martingale", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy")

	tests := []struct {
		name string
		p    backtest.Params
	}{
		{"sma-cross", backtest.Params{"fast": 5, "slow": 5}},
		{"ema-cross", backtest.Params{"fast": 0}},
		{"sma-cross", backtest.Params{"stop_pct": 1.5}},
		{"extreme-rsi", backtest.Params{"rsi": -1}},
	}
	for _, tt := range tests {
		_, err := New(tt.name, tt.p)
		assert.Error(t, err, "%s %v", tt.name, tt.p)
	}
}

func TestNoop(t *testing.T) {
	t.Parallel()

	rep := runStrategy(t, "noop", nil, closes(10, 11, 12, 13))
	assert.Equal(t, 0, rep.Trades)
	assert.Equal(t, "noop", rep.Strategy)
}

func TestOpenOnce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p    backtest.Params
		size float64
		pnl  float64
	}{
		{"long", backtest.Params{"size": 10}, 10, 30},
		{"short", backtest.Params{"size": 10, "short": true}, -10, -30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rep := runStrategy(t, "open-once", tt.p, closes(100, 100, 100, 101, 103))
			require.Equal(t, 1, rep.Trades)
			tr := rep.TradeLog[0]
			assert.Equal(t, tt.size, tr.Size)
			assert.Equal(t, 100.0, tr.EntryPrice)
			assert.InDelta(t, tt.pnl, tr.PnL, 1e-9)
			assert.Equal(t, "open-once", tr.Tag)
		})
	}
}

func TestMACross(t *testing.T) {
	t.Parallel()

	bars := closes(10, 10, 10, 10, 10, 12, 14, 16, 18, 20, 18, 16, 14, 12, 10, 10, 10)
	rep := runStrategy(t, "sma-cross", backtest.Params{"fast": 2, "slow": 4}, bars)

	require.Equal(t, 2, rep.Trades)
	long, short := rep.TradeLog[0], rep.TradeLog[1]

	assert.Equal(t, 714.0, long.Size)
	assert.Equal(t, 14.0, long.EntryPrice)
	assert.Equal(t, 6, long.EntryBar)
	assert.Equal(t, 14.0, long.ExitPrice)
	assert.Equal(t, "bull-cross", long.Tag)

	assert.Equal(t, -714.0, short.Size)
	assert.Equal(t, 14.0, short.EntryPrice)
	assert.Equal(t, 10.0, short.ExitPrice)
	assert.InDelta(t, 2856.0, short.PnL, 1e-9)
	assert.Equal(t, "bear-cross", short.Tag)
}

func TestEMAADX(t *testing.T) {
	t.Parallel()

	s, err := New("ema-adx", backtest.Params{"fast": 2, "slow": 4, "adx": 3})
	require.NoError(t, err)
	assert.Equal(t, "ema-adx", s.(backtest.Named).Name())

	bars := closes(10, 10, 10, 10, 10, 12, 14, 16, 18, 20, 18, 16, 14, 12, 10, 10, 10)
	bt, err := backtest.New()
	require.NoError(t, err)
	_, err = bt.Run(context.Background(), bars, s)
	require.NoError(t, err)
}

// rsiBars dips for three bars, then prints a bullish reversal on bar 4.
func rsiBars(after ...[4]float64) []market.Bar {
	bars := [][4]float64{
		{20, 20.5, 19.5, 20},
		{20, 20.2, 18.8, 19},
		{19, 19.2, 17.8, 18},
		{18, 18.2, 16.8, 17},
		{17, 18.5, 16.9, 18.4},
	}
	return ohlc(append(bars, after...)...)
}

func TestExtremeRSI_TakeProfit(t *testing.T) {
	t.Parallel()

	bars := rsiBars(
		[4]float64{18.6, 19, 18.4, 18.9},
		[4]float64{19, 22.5, 18.9, 22.2},
		[4]float64{22, 22, 22, 22},
	)
	rep := runStrategy(t, "extreme-rsi", nil, bars)

	require.Equal(t, 1, rep.Trades)
	tr := rep.TradeLog[0]
	assert.Equal(t, 57.0, tr.Size)
	assert.Equal(t, 5, tr.EntryBar)
	assert.InDelta(t, 18.53, tr.EntryPrice, 1e-9)
	assert.InDelta(t, 16.77, tr.SlPrice, 1e-9)
	assert.InDelta(t, 22.05, tr.TpPrice, 1e-9)
	assert.InDelta(t, 22.05, tr.ExitPrice, 1e-9)
	assert.InDelta(t, 57*3.52, tr.PnL, 1e-6)
	assert.InDelta(t, 1.76, tr.OneR, 1e-9)
	assert.InDelta(t, 0.47, tr.MaxPnL, 1e-9)
	assert.InDelta(t, -0.13, tr.MaxNegativePnL, 1e-9)
}

func TestExtremeRSI_CancelsStaleEntry(t *testing.T) {
	t.Parallel()

	bars := rsiBars(
		[4]float64{18.3, 18.4, 18.0, 18.1},
		// Would trigger the entry had it still been pending.
		[4]float64{18.1, 25, 18, 24},
		[4]float64{24, 24, 24, 24},
	)
	rep := runStrategy(t, "extreme-rsi", nil, bars)
	assert.Equal(t, 0, rep.Trades)
}

func TestExtremeRSI_PolicyRejects(t *testing.T) {
	t.Parallel()

	bars := rsiBars(
		[4]float64{18.6, 19, 18.4, 18.9},
		[4]float64{19, 22.5, 18.9, 22.2},
	)
	rep := runStrategy(t, "extreme-rsi", backtest.Params{"min_rr": 3}, bars)
	assert.Equal(t, 0, rep.Trades)
}
