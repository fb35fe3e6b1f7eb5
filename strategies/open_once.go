package strategies

import (
	"fmt"

	"github.com/rustyeddy/tradeit/backtest"
)

func init() {
	Register("open-once", func(p backtest.Params) (backtest.Strategy, error) {
		return &OpenOnce{Size: p.Float("size", 0), Short: p.Bool("short", false)}, nil
	})
}

// OpenOnce enters a single market position on the first bar it sees and
// holds it until the end of the run.
type OpenOnce struct {
	// Size is a fraction of equity below 1 or a whole number of units;
	// zero uses all available margin.
	Size  float64
	Short bool

	opened bool
}

func (s *OpenOnce) Name() string { return "open-once" }

func (s *OpenOnce) Init(*backtest.Context) error {
	s.opened = false
	return nil
}

func (s *OpenOnce) Next(ctx *backtest.Context) error {
	if s.opened {
		return nil
	}
	place := ctx.Buy
	if s.Short {
		place = ctx.Sell
	}
	if _, err := place(backtest.OrderOptions{Size: s.Size, Tag: "open-once"}); err != nil {
		return fmt.Errorf("open-once: %w", err)
	}
	s.opened = true
	return nil
}
