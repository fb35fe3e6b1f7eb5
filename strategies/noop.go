package strategies

import "github.com/rustyeddy/tradeit/backtest"

func init() {
	Register("noop", func(backtest.Params) (backtest.Strategy, error) { return Noop{}, nil })
}

// Noop does nothing.
type Noop struct{}

func (Noop) Name() string                 { return "noop" }
func (Noop) Init(*backtest.Context) error { return nil }
func (Noop) Next(*backtest.Context) error { return nil }
