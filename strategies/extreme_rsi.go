package strategies

import (
	"errors"
	"fmt"
	"math"

	"github.com/rustyeddy/tradeit/backtest"
	"github.com/rustyeddy/tradeit/indicators"
	"github.com/rustyeddy/tradeit/market"
	"github.com/rustyeddy/tradeit/risk"
)

func init() {
	Register("extreme-rsi", func(p backtest.Params) (backtest.Strategy, error) {
		s := &ExtremeRSI{
			Period: p.Int("rsi", 2),
			Thresh: p.Float("thresh", 10),
			Wait:   p.Int("wait", 1),
			Risk:   risk.NewManager(p.Float("rr", 2), p.Float("risk", 0.01)),
			Policy: risk.Policy{
				MaxRiskPct:    p.Float("max_risk_pct", 0),
				MinRR:         p.Float("min_rr", 0),
				MaxOpenTrades: p.Int("max_open_trades", 0),
			},
		}
		if s.Period <= 0 || s.Wait < 0 {
			return nil, fmt.Errorf("extreme-rsi: invalid rsi=%d wait=%d", s.Period, s.Wait)
		}
		return s, nil
	})
}

// ExtremeRSI buys a bullish reversal bar after the RSI dipped below Thresh.
//
// The trigger is an RSI reading below Thresh on the previous bar, followed
// by a bull bar that closes above the high of a bear bar. The entry is a
// stop just above the trigger bar's high with a limit one band further,
// the stop-loss sits one band under the previous bar's low, and the
// take-profit and share count come from the risk manager. Entries that do
// not fill within Wait bars are cancelled.
type ExtremeRSI struct {
	Period int
	Thresh float64
	Wait   int
	Risk   *risk.Manager
	Policy risk.Policy

	rsi *backtest.Indicator
}

func (s *ExtremeRSI) Name() string { return "extreme-rsi" }

func (s *ExtremeRSI) Init(ctx *backtest.Context) error {
	var err error
	s.rsi, err = ctx.I(fmt.Sprintf("rsi(%d)", s.Period), backtest.Line(func(d *backtest.Series) ([]float64, error) {
		return indicators.RSI(d.Close(), s.Period)
	}))
	return err
}

func (s *ExtremeRSI) Next(ctx *backtest.Context) error {
	s.cancelStale(ctx)
	s.track(ctx)

	data := ctx.Data()
	cur, err := data.LastBar(1)
	if err != nil {
		return nil
	}
	prev, err := data.LastBar(2)
	if err != nil {
		return nil
	}
	if !s.signal(cur, prev) {
		return nil
	}

	stop, err := s.Risk.EntryPrice(cur.High, 1)
	if err != nil {
		return err
	}
	limit, err := s.Risk.EntryPrice(cur.High, 2)
	if err != nil {
		return err
	}
	sl, err := s.Risk.StopLoss(prev.Low)
	if err != nil {
		return err
	}
	tp := s.Risk.Target(stop, sl)
	size, err := s.Risk.Shares(ctx.Equity(), stop, sl)
	if errors.Is(err, risk.ErrInvalidR) {
		ctx.Logger().Debug("skipping entry", "bar", ctx.Bar(), "err", err)
		return nil
	}
	if err != nil {
		return err
	}

	d := risk.Evaluate(s.Policy, risk.Plan{Units: size, Entry: stop, Stop: sl, Target: tp},
		risk.AccountSnapshot{Equity: ctx.Equity(), OpenTrades: len(ctx.Trades())})
	if err := d.Err(); err != nil {
		ctx.Logger().Debug("skipping entry", "bar", ctx.Bar(), "err", err)
		return nil
	}

	_, err = ctx.Buy(backtest.OrderOptions{
		Size:  size,
		Stop:  &stop,
		Limit: &limit,
		SL:    &sl,
		TP:    &tp,
		Tag:   "extreme-rsi",
	})
	return err
}

func (s *ExtremeRSI) signal(cur, prev market.Bar) bool {
	return s.rsi.Last(2) < s.Thresh && cur.Bull() && prev.Bear() && cur.Close > prev.High
}

// cancelStale cancels entry orders that have been waiting Wait bars.
func (s *ExtremeRSI) cancelStale(ctx *backtest.Context) {
	for _, o := range ctx.Orders() {
		if !o.IsContingent() && ctx.Bar()-o.PlacedBar() >= s.Wait {
			_ = o.Cancel()
		}
	}
}

// track records the open trades' volume and running excursions.
func (s *ExtremeRSI) track(ctx *backtest.Context) {
	data := ctx.Data()
	high := backtest.Last(data.High(), 1)
	low := backtest.Last(data.Low(), 1)
	volume := backtest.Last(data.Volume(), 1)
	for _, t := range ctx.Trades() {
		if math.IsNaN(t.Volume()) {
			t.SetVolume(volume)
		}
		t.TrackExcursion(high, low)
	}
}
