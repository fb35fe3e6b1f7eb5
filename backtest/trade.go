package backtest

import (
	"fmt"
	"math"
	"time"
)

// Trade is a position opened by a filled order. The broker owns it while
// it is open and moves it to the closed list once an exit fills.
type Trade struct {
	broker *Broker

	size       float64
	entryPrice float64
	entryBar   int
	entryTime  time.Time

	closed    bool
	exitPrice float64
	exitBar   int
	exitTime  time.Time

	slOrder *Order
	tpOrder *Order
	sl      *float64
	tp      *float64
	tag     string

	// Optional fields maintained by strategies.
	oneR      *float64
	tracked   bool
	maxPnL    float64
	maxNegPnL float64
	volume    *float64
}

func (t *Trade) Size() float64        { return t.size }
func (t *Trade) EntryPrice() float64  { return t.entryPrice }
func (t *Trade) EntryBar() int        { return t.entryBar }
func (t *Trade) EntryTime() time.Time { return t.entryTime }
func (t *Trade) Tag() string          { return t.tag }
func (t *Trade) IsOpen() bool         { return !t.closed }
func (t *Trade) IsLong() bool         { return t.size > 0 }
func (t *Trade) IsShort() bool        { return t.size < 0 }

// ExitPrice is NaN while the trade is open.
func (t *Trade) ExitPrice() float64 {
	if !t.closed {
		return math.NaN()
	}
	return t.exitPrice
}

// ExitBar is -1 while the trade is open.
func (t *Trade) ExitBar() int {
	if !t.closed {
		return -1
	}
	return t.exitBar
}

func (t *Trade) ExitTime() time.Time { return t.exitTime }

func (t *Trade) markPrice() float64 {
	if t.closed {
		return t.exitPrice
	}
	return t.broker.lastPrice()
}

// PL is the profit or loss in cash, realized for closed trades and marked
// at the current close for open ones.
func (t *Trade) PL() float64 {
	return t.size * (t.markPrice() - t.entryPrice)
}

// PLPct is the relative return of the trade, 0.05 meaning 5%.
func (t *Trade) PLPct() float64 {
	return math.Copysign(1, t.size) * (t.markPrice()/t.entryPrice - 1)
}

// Value is the notional value of the trade.
func (t *Trade) Value() float64 {
	return math.Abs(t.size) * t.markPrice()
}

// SL is the stop-loss price, NaN when none is set.
func (t *Trade) SL() float64 { return priceOrNaN(t.sl) }

// TP is the take-profit price, NaN when none is set.
func (t *Trade) TP() float64 { return priceOrNaN(t.tp) }

// SetSL replaces the trade's stop-loss. A nil price removes it.
func (t *Trade) SetSL(price *float64) error { return t.setContingent(true, price) }

// SetTP replaces the trade's take-profit. A nil price removes it.
func (t *Trade) SetTP(price *float64) error { return t.setContingent(false, price) }

func (t *Trade) setContingent(isSL bool, price *float64) error {
	if t.closed {
		return fmt.Errorf("%w: trade is closed", ErrInvalidSLTP)
	}
	if price != nil && !validPrice(*price) {
		return fmt.Errorf("%w: price %v", ErrInvalidSLTP, *price)
	}

	cur := &t.tpOrder
	if isSL {
		cur = &t.slOrder
	}
	if *cur != nil {
		_ = (*cur).Cancel()
	}
	if isSL {
		t.sl = copyPrice(price)
	} else {
		t.tp = copyPrice(price)
	}
	if price == nil {
		return nil
	}

	p := *price
	if isSL {
		*cur = t.broker.newOrder(-t.size, nil, &p, nil, nil, t, t.tag)
	} else {
		*cur = t.broker.newOrder(-t.size, &p, nil, nil, nil, t, t.tag)
	}
	return nil
}

// Close queues a contingent market order closing portion (0, 1] of the
// trade. At least one unit is always closed.
func (t *Trade) Close(portion float64) error {
	if !(portion > 0 && portion <= 1) {
		return fmt.Errorf("%w: close portion %v", ErrInvalidSize, portion)
	}
	if t.closed {
		return nil
	}
	size := math.Copysign(math.Max(1, math.Round(math.Abs(t.size)*portion)), -t.size)
	t.broker.newOrder(size, nil, nil, nil, nil, t, t.tag)
	return nil
}

// SetOneR records the trade's unit of risk.
func (t *Trade) SetOneR(v float64) { t.oneR = &v }

// OneR is the unit of risk: the value given to SetOneR, or else the
// distance between entry and stop-loss. NaN when neither is known.
func (t *Trade) OneR() float64 {
	if t.oneR != nil {
		return *t.oneR
	}
	if t.sl != nil {
		return math.Abs(t.entryPrice - *t.sl)
	}
	return math.NaN()
}

// TrackExcursion updates the running favourable and adverse price
// excursion from the bar's high and low. Strategies call it once per bar
// while the trade is open.
func (t *Trade) TrackExcursion(high, low float64) {
	fav, adv := high-t.entryPrice, low-t.entryPrice
	if t.IsShort() {
		fav, adv = t.entryPrice-low, t.entryPrice-high
	}
	if !t.tracked {
		t.tracked = true
		t.maxPnL = fav
		t.maxNegPnL = math.Min(0, adv)
		return
	}
	t.maxPnL = math.Max(t.maxPnL, fav)
	t.maxNegPnL = math.Min(t.maxNegPnL, adv)
}

// MaxPnL is the best per-unit excursion seen, NaN if never tracked.
func (t *Trade) MaxPnL() float64 {
	if !t.tracked {
		return math.NaN()
	}
	return t.maxPnL
}

// MaxNegativePnL is the worst per-unit excursion seen, NaN if never tracked.
func (t *Trade) MaxNegativePnL() float64 {
	if !t.tracked {
		return math.NaN()
	}
	return t.maxNegPnL
}

func (t *Trade) SetVolume(v float64) { t.volume = &v }

// Volume is the traded volume recorded by the strategy, NaN if unset.
func (t *Trade) Volume() float64 { return priceOrNaN(t.volume) }

// split detaches size units into a new, still open trade that shares the
// entry and the strategy-maintained fields but has no SL/TP orders.
func (t *Trade) split(size float64) *Trade {
	c := *t
	c.size = size
	c.slOrder, c.tpOrder = nil, nil
	return &c
}

func priceOrNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

func validPrice(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
