package strategies

import (
	"fmt"
	"math"

	"github.com/rustyeddy/tradeit/backtest"
	"github.com/rustyeddy/tradeit/indicators"
)

func init() {
	Register("sma-cross", func(p backtest.Params) (backtest.Strategy, error) {
		return newMACross("sma", p)
	})
	Register("ema-cross", func(p backtest.Params) (backtest.Strategy, error) {
		return newMACross("ema", p)
	})
	Register("ema-adx", func(p backtest.Params) (backtest.Strategy, error) {
		s, err := newMACross("ema", p)
		if err != nil {
			return nil, err
		}
		s.ADXPeriod = p.Int("adx", 14)
		s.MinADX = p.Float("min_adx", 20)
		return s, nil
	})
}

// MACross trades a fast/slow moving average crossover.
//   - Enters only on cross
//   - Reverses on the opposite cross (close then open)
//   - With StopPct set, attaches a stop-loss that far below (above for
//     shorts) the signal close, and a take-profit RR times the risk away
//   - With ADXPeriod set, ignores crosses while ADX is below MinADX
type MACross struct {
	Kind string // "sma" or "ema"
	Fast int
	Slow int
	Size float64

	StopPct float64
	RR      float64

	ADXPeriod int
	MinADX    float64

	fast, slow, adx *backtest.Indicator
}

func newMACross(kind string, p backtest.Params) (*MACross, error) {
	s := &MACross{
		Kind:    kind,
		Fast:    p.Int("fast", 10),
		Slow:    p.Int("slow", 30),
		Size:    p.Float("size", 0),
		StopPct: p.Float("stop_pct", 0),
		RR:      p.Float("rr", 2),
	}
	if s.Fast <= 0 || s.Slow <= s.Fast {
		return nil, fmt.Errorf("%s-cross: need 0 < fast < slow, got fast=%d slow=%d", kind, s.Fast, s.Slow)
	}
	if s.StopPct < 0 || s.StopPct >= 1 {
		return nil, fmt.Errorf("%s-cross: stop_pct must be in [0, 1), got %v", kind, s.StopPct)
	}
	return s, nil
}

func (s *MACross) Name() string {
	if s.ADXPeriod > 0 {
		return s.Kind + "-adx"
	}
	return s.Kind + "-cross"
}

func (s *MACross) average() func([]float64, int) ([]float64, error) {
	if s.Kind == "ema" {
		return indicators.EMA
	}
	return indicators.SMA
}

func (s *MACross) Init(ctx *backtest.Context) error {
	avg := s.average()
	var err error
	s.fast, err = ctx.I(fmt.Sprintf("%s(%d)", s.Kind, s.Fast), backtest.Line(func(d *backtest.Series) ([]float64, error) {
		return avg(d.Close(), s.Fast)
	}))
	if err != nil {
		return err
	}
	s.slow, err = ctx.I(fmt.Sprintf("%s(%d)", s.Kind, s.Slow), backtest.Line(func(d *backtest.Series) ([]float64, error) {
		return avg(d.Close(), s.Slow)
	}))
	if err != nil {
		return err
	}
	s.adx = nil
	if s.ADXPeriod > 0 {
		s.adx, err = ctx.I(fmt.Sprintf("adx(%d)", s.ADXPeriod), backtest.Line(func(d *backtest.Series) ([]float64, error) {
			return indicators.ADX(d.High(), d.Low(), d.Close(), s.ADXPeriod)
		}))
	}
	return err
}

func (s *MACross) Next(ctx *backtest.Context) error {
	dir := crossed(s.fast, s.slow)
	if dir == 0 {
		return nil
	}
	if s.adx != nil && !(s.adx.Last(1) >= s.MinADX) {
		return nil
	}

	pos := ctx.Position()
	if (dir > 0 && pos.IsLong()) || (dir < 0 && pos.IsShort()) {
		return nil
	}
	if pos.IsOpen() {
		if err := pos.Close(1); err != nil {
			return err
		}
	}

	opts := backtest.OrderOptions{Size: s.Size, Tag: "bull-cross"}
	if dir < 0 {
		opts.Tag = "bear-cross"
	}
	if s.StopPct > 0 {
		price := backtest.Last(ctx.Data().Close(), 1)
		stop := price * s.StopPct
		opts.SL = backtest.Ptr(price - float64(dir)*stop)
		opts.TP = backtest.Ptr(price + float64(dir)*stop*s.RR)
	}

	var err error
	if dir > 0 {
		_, err = ctx.Buy(opts)
	} else {
		_, err = ctx.Sell(opts)
	}
	return err
}

// crossed reports +1 when a crossed above b on the latest bar, -1 when it
// crossed below, and 0 otherwise.
func crossed(a, b *backtest.Indicator) int {
	prev := a.Last(2) - b.Last(2)
	cur := a.Last(1) - b.Last(1)
	switch {
	case math.IsNaN(prev) || math.IsNaN(cur):
		return 0
	case prev <= 0 && cur > 0:
		return 1
	case prev >= 0 && cur < 0:
		return -1
	}
	return 0
}
