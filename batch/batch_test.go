package batch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rustyeddy/tradeit/backtest"
	"github.com/rustyeddy/tradeit/market"
	"github.com/rustyeddy/tradeit/strategies"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closes(cs ...float64) []market.Bar {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Bar, len(cs))
	for i, c := range cs {
		out[i] = market.Bar{Time: t0.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 100}
	}
	return out
}

func openOnce(builds *atomic.Int32) Factory {
	return func() (backtest.Strategy, error) {
		builds.Add(1)
		return strategies.New("open-once", backtest.Params{"size": 10})
	}
}

func TestRunner_Run(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "qqq.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("Date,Open,High,Low,Close\n"+
		"2024-01-01,50,50,50,50\n"+
		"2024-01-02,50,50,50,50\n"+
		"2024-01-03,50,50,50,50\n"+
		"2024-01-04,48,48,48,48\n"), 0o644))

	var builds atomic.Int32
	r := &Runner{Strategy: "open-once", Params: backtest.Params{"size": 10}, Factory: openOnce(&builds), Workers: 2}

	jobs := []Job{
		{Symbol: "spy", Bars: closes(100, 100, 100, 101, 103)},
		{Symbol: "qqq", Path: csvPath},
		{Symbol: "bad", Path: filepath.Join(dir, "missing.csv")},
	}
	results, err := r.Run(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"bad", "qqq", "spy"}, Symbols(results))

	spy := results["spy"]
	require.NoError(t, spy.Err)
	assert.Equal(t, 1, spy.Report.Trades)
	assert.InDelta(t, 10_030.0, spy.Report.EquityFinal, 1e-9)

	qqq := results["qqq"]
	require.NoError(t, qqq.Err)
	assert.InDelta(t, 9_980.0, qqq.Report.EquityFinal, 1e-9)

	assert.Error(t, results["bad"].Err)
	assert.Nil(t, results["bad"].Report)
	assert.Equal(t, int32(2), builds.Load())
}

func TestRunner_FailFast(t *testing.T) {
	t.Parallel()

	var builds atomic.Int32
	r := &Runner{Strategy: "open-once", Factory: openOnce(&builds), Workers: 1, FailFast: true}
	_, err := r.Run(context.Background(), []Job{{Symbol: "bad", Path: "/nonexistent/bad.csv"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad:")
}

func TestRunner_Validation(t *testing.T) {
	t.Parallel()

	_, err := (&Runner{}).Run(context.Background(), nil)
	assert.Error(t, err)

	var builds atomic.Int32
	r := &Runner{Factory: openOnce(&builds)}
	_, err = r.Run(context.Background(), []Job{{Symbol: "a"}, {Symbol: "a"}})
	assert.ErrorContains(t, err, "duplicate symbol")
}

func TestRunner_Cache(t *testing.T) {
	t.Parallel()

	var builds atomic.Int32
	cache := NewCache()
	p := backtest.Params{"size": 10}
	r := &Runner{Strategy: "open-once", Params: p, Factory: openOnce(&builds), Cache: cache}
	jobs := []Job{{Symbol: "spy", Bars: closes(100, 100, 100, 101, 103)}}

	first, err := r.Run(context.Background(), jobs)
	require.NoError(t, err)
	assert.False(t, first["spy"].Cached)
	assert.Equal(t, 1, cache.Len())

	second, err := r.Run(context.Background(), jobs)
	require.NoError(t, err)
	assert.True(t, second["spy"].Cached)
	assert.Same(t, first["spy"].Report, second["spy"].Report)
	assert.Equal(t, int32(1), builds.Load())

	// Different parameters never hit the entry.
	r.Params = backtest.Params{"size": 5}
	third, err := r.Run(context.Background(), jobs)
	require.NoError(t, err)
	assert.False(t, third["spy"].Cached)
	assert.Equal(t, 2, cache.Len())

	cache.Clear()
	assert.Zero(t, cache.Len())
}

func TestRunner_CacheSeparatesSettings(t *testing.T) {
	t.Parallel()

	var builds atomic.Int32
	cache := NewCache()
	p := backtest.Params{"size": 10}
	jobs := []Job{{Symbol: "spy", Bars: closes(100, 100, 100, 101, 103)}}
	run := func(opts ...backtest.Option) Result {
		r := &Runner{Strategy: "open-once", Params: p, Factory: openOnce(&builds), Cache: cache, Options: opts}
		results, err := r.Run(context.Background(), jobs)
		require.NoError(t, err)
		require.NoError(t, results["spy"].Err)
		return results["spy"]
	}

	small := run(backtest.WithCash(2000))
	assert.False(t, small.Cached)
	assert.InDelta(t, 2030.0, small.Report.EquityFinal, 1e-9)

	large := run(backtest.WithCash(5000), backtest.WithCommission(0.01))
	assert.False(t, large.Cached)
	assert.NotSame(t, small.Report, large.Report)
	assert.Less(t, large.Report.EquityFinal, 5030.0)
	assert.Greater(t, large.Report.EquityFinal, 5000.0)

	again := run(backtest.WithCash(2000))
	assert.True(t, again.Cached)
	assert.Same(t, small.Report, again.Report)
	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, int32(2), builds.Load())
}

func TestRunner_CacheFollowsData(t *testing.T) {
	t.Parallel()

	var builds atomic.Int32
	cache := NewCache()
	r := &Runner{Strategy: "open-once", Params: backtest.Params{"size": 10}, Factory: openOnce(&builds), Cache: cache}

	first, err := r.Run(context.Background(), []Job{{Symbol: "spy", Bars: closes(100, 100, 100, 101, 103)}})
	require.NoError(t, err)
	second, err := r.Run(context.Background(), []Job{{Symbol: "spy", Bars: closes(100, 100, 100, 99, 97)}})
	require.NoError(t, err)

	assert.False(t, second["spy"].Cached)
	assert.NotEqual(t, first["spy"].Report.EquityFinal, second["spy"].Report.EquityFinal)
	assert.Equal(t, 2, cache.Len())
}

func TestSource(t *testing.T) {
	t.Parallel()

	a, err := Source(Job{Bars: closes(1, 2, 3)})
	require.NoError(t, err)
	b, err := Source(Job{Bars: closes(1, 2, 3)})
	require.NoError(t, err)
	c, err := Source(Job{Bars: closes(1, 2, 4)})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	path := filepath.Join(t.TempDir(), "spy.csv")
	require.NoError(t, os.WriteFile(path, []byte("Open,High,Low,Close\n1,1,1,1\n"), 0o644))
	before, err := Source(Job{Path: path})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("Open,High,Low,Close\n1,1,1,1\n2,2,2,2\n"), 0o644))
	after, err := Source(Job{Path: path})
	require.NoError(t, err)
	assert.NotEqual(t, before, after)

	_, err = Source(Job{Path: filepath.Join(t.TempDir(), "missing.csv")})
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "spy|bars:ab|cash=1|sma-cross", Key("spy", "bars:ab", "cash=1", "sma-cross", nil))
	assert.Equal(t, "spy|bars:ab|cash=1|sma-cross(fast=5,slow=20)",
		Key("spy", "bars:ab", "cash=1", "sma-cross", backtest.Params{"slow": 20, "fast": 5}))
	assert.NotEqual(t, Key("spy", "bars:ab", "cash=1", "noop", nil), Key("spy", "bars:ab", "cash=2", "noop", nil))
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"spy.csv", "aapl.parquet", "notes.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.csv"), 0o755))

	jobs, err := Discover(dir)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "aapl", jobs[0].Symbol)
	assert.Equal(t, filepath.Join(dir, "aapl.parquet"), jobs[0].Path)
	assert.Equal(t, "spy", jobs[1].Symbol)

	_, err = Discover(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
