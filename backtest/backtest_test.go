package backtest

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rustyeddy/tradeit/market"
	"github.com/rustyeddy/tradeit/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// flatBars returns n daily bars with every price at p.
func flatBars(n int, p float64) []market.Bar {
	bars := make([]market.Bar, n)
	for i := range bars {
		bars[i] = market.Bar{
			Time:   t0.AddDate(0, 0, i),
			Open:   p,
			High:   p,
			Low:    p,
			Close:  p,
			Volume: 1000,
		}
	}
	return bars
}

// scripted is a strategy built from closures.
type scripted struct {
	init func(c *Context) error
	next func(c *Context) error
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Init(c *Context) error {
	if s.init == nil {
		return nil
	}
	return s.init(c)
}

func (s *scripted) Next(c *Context) error {
	if s.next == nil {
		return nil
	}
	return s.next(c)
}

// onBar runs fn once, on bar i.
func onBar(i int, fn func(c *Context) error) *scripted {
	return &scripted{next: func(c *Context) error {
		if c.Bar() == i {
			return fn(c)
		}
		return nil
	}}
}

func run(t *testing.T, bars []market.Bar, s Strategy, opts ...Option) *stats.Report {
	t.Helper()
	bt, err := New(opts...)
	require.NoError(t, err)
	rep, err := bt.Run(context.Background(), bars, s)
	require.NoError(t, err)
	return rep
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []Option
		ok   bool
	}{
		{"defaults", nil, true},
		{"zero cash", []Option{WithCash(0)}, false},
		{"negative commission", []Option{WithCommission(-0.01)}, false},
		{"commission of one", []Option{WithCommission(1)}, false},
		{"zero margin", []Option{WithMargin(0)}, false},
		{"margin above one", []Option{WithMargin(1.5)}, false},
		{"leveraged", []Option{WithMargin(0.02), WithCommission(0.002)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.opts...)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestBacktest_Key(t *testing.T) {
	t.Parallel()

	key := func(opts ...Option) string {
		bt, err := New(opts...)
		require.NoError(t, err)
		return bt.Key()
	}

	base := key()
	assert.Equal(t, "cash=10000,commission=0,margin=1,trade_on_close=false,hedging=false,exclusive_orders=false", base)
	assert.Equal(t, base, key(WithParams(Params{"fast": 5})), "params are not settings")

	for name, opt := range map[string]Option{
		"cash":             WithCash(5000),
		"commission":       WithCommission(0.01),
		"margin":           WithMargin(0.5),
		"trade on close":   WithTradeOnClose(true),
		"hedging":          WithHedging(true),
		"exclusive orders": WithExclusiveOrders(true),
	} {
		assert.NotEqual(t, base, key(opt), name)
	}
}

func TestBacktest_Run_InvalidData(t *testing.T) {
	t.Parallel()

	bt, err := New()
	require.NoError(t, err)

	_, err = bt.Run(context.Background(), nil, &scripted{})
	assert.ErrorIs(t, err, ErrEmptySeries)

	bad := flatBars(5, 100)
	bad[2].Low = 120
	_, err = bt.Run(context.Background(), bad, &scripted{})
	assert.ErrorIs(t, err, ErrInvalidBar)

	nan := flatBars(5, 100)
	nan[3].Close = math.NaN()
	_, err = bt.Run(context.Background(), nan, &scripted{})
	assert.ErrorIs(t, err, ErrInvalidBar)
}

func TestBacktest_Run_NoTrades(t *testing.T) {
	t.Parallel()

	rep := run(t, flatBars(20, 100), &scripted{}, WithCash(10_000))

	require.Len(t, rep.EquityCurve, 20)
	for _, row := range rep.EquityCurve {
		assert.Equal(t, 10_000.0, row.Equity)
		assert.Equal(t, 0.0, row.DrawdownPct)
	}
	assert.Equal(t, 0, rep.Trades)
	assert.Equal(t, 0.0, rep.Return)
	assert.Equal(t, 0.0, rep.ExposureTime)
	assert.True(t, math.IsNaN(rep.WinRate))
	assert.True(t, math.IsNaN(rep.ProfitFactor))
	assert.True(t, math.IsNaN(rep.SQN))
	assert.False(t, rep.OutOfMoney)
	assert.Equal(t, "scripted", rep.Strategy)
}

func TestBacktest_Run_TakeProfit(t *testing.T) {
	t.Parallel()

	bars := flatBars(10, 100)
	bars[6] = market.Bar{Time: bars[6].Time, Open: 100, High: 112, Low: 100, Close: 105}

	s := onBar(4, func(c *Context) error {
		_, err := c.Buy(OrderOptions{Size: 1, SL: Ptr(90), TP: Ptr(110)})
		return err
	})
	rep := run(t, bars, s)

	require.Len(t, rep.TradeLog, 1)
	tr := rep.TradeLog[0]
	assert.Equal(t, 1.0, tr.Size)
	assert.Equal(t, 5, tr.EntryBar)
	assert.Equal(t, 6, tr.ExitBar)
	assert.Equal(t, 100.0, tr.EntryPrice)
	assert.Equal(t, 110.0, tr.ExitPrice)
	assert.Equal(t, 10.0, tr.PnL)
	assert.Equal(t, 90.0, tr.SlPrice)
	assert.Equal(t, 110.0, tr.TpPrice)
	assert.Equal(t, 10.0, tr.OneR)
	assert.Equal(t, 24*time.Hour, tr.Duration.Time)

	assert.Equal(t, 100.0, rep.WinRate)
	assert.True(t, math.IsNaN(rep.ProfitFactor), "no losing trades")
	assert.True(t, math.IsNaN(rep.SQN), "single trade")
	assert.Equal(t, 10_010.0, rep.EquityFinal)
}

func TestBacktest_Run_StopLossPrecedence(t *testing.T) {
	t.Parallel()

	bars := flatBars(10, 100)
	bars[6] = market.Bar{Time: bars[6].Time, Open: 100, High: 115, Low: 85, Close: 100}

	s := onBar(4, func(c *Context) error {
		_, err := c.Buy(OrderOptions{Size: 1, SL: Ptr(90), TP: Ptr(110)})
		return err
	})
	rep := run(t, bars, s)

	require.Len(t, rep.TradeLog, 1)
	assert.Equal(t, 90.0, rep.TradeLog[0].ExitPrice)
	assert.Equal(t, -10.0, rep.TradeLog[0].PnL)
	assert.Equal(t, 0.0, rep.WinRate)
}

func TestBacktest_Run_GapThroughStopFillsAtOpen(t *testing.T) {
	t.Parallel()

	bars := flatBars(10, 100)
	bars[6] = market.Bar{Time: bars[6].Time, Open: 80, High: 82, Low: 78, Close: 80}

	s := onBar(4, func(c *Context) error {
		_, err := c.Buy(OrderOptions{Size: 1, SL: Ptr(90)})
		return err
	})
	rep := run(t, bars, s)

	require.Len(t, rep.TradeLog, 1)
	assert.Equal(t, 80.0, rep.TradeLog[0].ExitPrice)
}

func TestBacktest_Run_OutOfMoneyOnOrder(t *testing.T) {
	t.Parallel()

	s := onBar(2, func(c *Context) error {
		_, err := c.Buy(OrderOptions{Size: 1})
		return err
	})
	rep := run(t, flatBars(10, 150), s, WithCash(100))

	assert.True(t, rep.OutOfMoney)
	assert.Len(t, rep.EquityCurve, 4, "run stops at the bar the order was rejected")
	assert.Equal(t, 0, rep.Trades)
	assert.Equal(t, 100.0, rep.EquityFinal)
}

func TestBacktest_Run_OutOfMoneyOnEquity(t *testing.T) {
	t.Parallel()

	bars := flatBars(10, 100)
	bars[6] = market.Bar{Time: bars[6].Time, Open: 100, High: 100, Low: 70, Close: 70}

	s := onBar(2, func(c *Context) error {
		_, err := c.Buy(OrderOptions{Size: 50})
		return err
	})
	rep := run(t, bars, s, WithCash(1000), WithMargin(0.1))

	assert.True(t, rep.OutOfMoney)
	require.Len(t, rep.EquityCurve, 7)
	assert.Equal(t, 0.0, rep.EquityFinal)
	require.Len(t, rep.TradeLog, 1)
	assert.Equal(t, 70.0, rep.TradeLog[0].ExitPrice)
	assert.Equal(t, 6, rep.TradeLog[0].ExitBar)
}

func TestBacktest_Run_EquityLengthWithWarmup(t *testing.T) {
	t.Parallel()

	var first = -1
	s := &scripted{
		init: func(c *Context) error {
			_, err := c.I("lagged", Line(func(d *Series) ([]float64, error) {
				out := append([]float64(nil), d.Close()...)
				for i := 0; i < 3; i++ {
					out[i] = math.NaN()
				}
				return out, nil
			}))
			return err
		},
		next: func(c *Context) error {
			if first < 0 {
				first = c.Bar()
			}
			return nil
		},
	}
	rep := run(t, flatBars(12, 100), s, WithCash(5000))

	assert.Equal(t, 4, first)
	require.Len(t, rep.EquityCurve, 12)
	assert.Equal(t, 5000.0, rep.EquityCurve[0].Equity, "warm-up bars are back-filled")
}

func TestBacktest_Run_IndicatorRevealedProgressively(t *testing.T) {
	t.Parallel()

	bars := flatBars(8, 100)
	for i := range bars {
		p := 100 + float64(i)
		bars[i].Open, bars[i].High, bars[i].Low, bars[i].Close = p, p, p, p
	}

	var ind *Indicator
	s := &scripted{
		init: func(c *Context) error {
			var err error
			ind, err = c.I("close", Line(func(d *Series) ([]float64, error) {
				return append([]float64(nil), d.Close()...), nil
			}))
			return err
		},
		next: func(c *Context) error {
			if len(ind.Values()) != c.Data().Len() {
				return errors.New("indicator and data out of step")
			}
			if ind.Last(1) != Last(c.Data().Close(), 1) {
				return errors.New("indicator ahead of data")
			}
			return nil
		},
	}
	run(t, bars, s)
}

func TestBacktest_Run_IndicatorError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	s := &scripted{init: func(c *Context) error {
		_, err := c.I("broken", func(*Series) ([][]float64, error) { return nil, boom })
		return err
	}}

	bt, err := New()
	require.NoError(t, err)
	_, err = bt.Run(context.Background(), flatBars(5, 100), s)

	var ie *IndicatorError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "broken", ie.Name)
	assert.ErrorIs(t, err, boom)
}

func TestBacktest_Run_IndicatorWrongLength(t *testing.T) {
	t.Parallel()

	s := &scripted{init: func(c *Context) error {
		_, err := c.I("short", Line(func(*Series) ([]float64, error) { return []float64{1, 2}, nil }))
		return err
	}}
	bt, err := New()
	require.NoError(t, err)
	_, err = bt.Run(context.Background(), flatBars(5, 100), s)

	var ie *IndicatorError
	assert.ErrorAs(t, err, &ie)
}

func TestBacktest_Run_StrategyErrorAborts(t *testing.T) {
	t.Parallel()

	s := onBar(3, func(c *Context) error {
		_, err := c.Buy(OrderOptions{Size: 1.5})
		return err
	})
	bt, err := New()
	require.NoError(t, err)
	_, err = bt.Run(context.Background(), flatBars(10, 100), s)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestBacktest_Run_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bt, err := New()
	require.NoError(t, err)
	_, err = bt.Run(ctx, flatBars(10, 100), &scripted{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBacktest_Run_FractionalSize(t *testing.T) {
	t.Parallel()

	s := onBar(2, func(c *Context) error {
		_, err := c.Buy(OrderOptions{Size: 0.5})
		return err
	})
	rep := run(t, flatBars(6, 100), s, WithCash(10_000))

	require.Len(t, rep.TradeLog, 1)
	assert.Equal(t, 50.0, rep.TradeLog[0].Size)
	assert.Equal(t, 5, rep.TradeLog[0].ExitBar, "closed at end of run")
}

func TestBacktest_Run_Commission(t *testing.T) {
	t.Parallel()

	s := onBar(2, func(c *Context) error {
		_, err := c.Buy(OrderOptions{Size: 10})
		return err
	})
	rep := run(t, flatBars(6, 100), s, WithCommission(0.01))

	require.Len(t, rep.TradeLog, 1)
	assert.InDelta(t, 101.0, rep.TradeLog[0].EntryPrice, 1e-9)
	assert.InDelta(t, -10.0, rep.TradeLog[0].PnL, 1e-9)
}

func TestBacktest_Run_TradeOnClose(t *testing.T) {
	t.Parallel()

	bars := flatBars(6, 100)
	bars[3] = market.Bar{Time: bars[3].Time, Open: 104, High: 106, Low: 103, Close: 105}

	s := onBar(2, func(c *Context) error {
		_, err := c.Buy(OrderOptions{Size: 1})
		return err
	})
	rep := run(t, bars, s, WithTradeOnClose(true))

	require.Len(t, rep.TradeLog, 1)
	assert.Equal(t, 100.0, rep.TradeLog[0].EntryPrice, "filled at bar 2 close")
	assert.Equal(t, 2, rep.TradeLog[0].EntryBar)
}

func TestBacktest_Run_Deterministic(t *testing.T) {
	t.Parallel()

	bars := make([]market.Bar, 60)
	for i := range bars {
		p := 100 + 10*math.Sin(float64(i)/5)
		bars[i] = market.Bar{
			Time:   t0.Add(time.Duration(i) * time.Hour),
			Open:   p,
			High:   p + 1,
			Low:    p - 1,
			Close:  p + 0.5,
			Volume: math.NaN(),
		}
	}
	s := func() Strategy {
		return &scripted{next: func(c *Context) error {
			cl := c.Data().Close()
			switch {
			case Last(cl, 1) > Last(cl, 2) && !c.Position().IsLong():
				_, err := c.Buy(OrderOptions{Size: 0.5})
				return err
			case Last(cl, 1) < Last(cl, 2) && c.Position().IsLong():
				return c.Position().Close(1)
			}
			return nil
		}}
	}

	render := func() string {
		rep := run(t, bars, s())
		var buf bytes.Buffer
		rep.Print(&buf)
		require.NoError(t, stats.WriteTradesCSV(&buf, rep.TradeLog))
		require.NoError(t, stats.WriteEquityCSV(&buf, rep.EquityCurve))
		return buf.String()
	}
	first := render()
	assert.Equal(t, first, render())
	assert.Contains(t, first, "Backtest Result")
}
