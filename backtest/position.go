package backtest

import "math"

// Position is the aggregate of all open trades.
type Position struct {
	broker *Broker
}

// Size is the net size in units, negative when short.
func (p *Position) Size() float64 {
	var s float64
	for _, t := range p.broker.trades {
		s += t.size
	}
	return s
}

// PL is the unrealized profit or loss of the open trades.
func (p *Position) PL() float64 {
	var pl float64
	for _, t := range p.broker.trades {
		pl += t.PL()
	}
	return pl
}

// PLPct is the size-weighted return of the open trades.
func (p *Position) PLPct() float64 {
	var total float64
	for _, t := range p.broker.trades {
		total += math.Abs(t.size)
	}
	if total == 0 {
		return 0
	}
	var pct float64
	for _, t := range p.broker.trades {
		pct += t.PLPct() * math.Abs(t.size) / total
	}
	return pct
}

func (p *Position) IsOpen() bool  { return p.Size() != 0 }
func (p *Position) IsLong() bool  { return p.Size() > 0 }
func (p *Position) IsShort() bool { return p.Size() < 0 }

// Close closes portion (0, 1] of every open trade.
func (p *Position) Close(portion float64) error {
	for _, t := range append([]*Trade(nil), p.broker.trades...) {
		if err := t.Close(portion); err != nil {
			return err
		}
	}
	return nil
}
