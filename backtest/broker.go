package backtest

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
)

// Broker owns the account during a run: cash, pending orders, open and
// closed trades and the equity curve. It is advanced one bar at a time by
// the simulator and is not safe for concurrent use.
type Broker struct {
	data         *Series
	cash         float64
	commission   float64
	leverage     float64
	tradeOnClose bool
	hedging      bool
	exclusive    bool

	equity   []float64
	orders   []*Order
	trades   []*Trade
	closed   []*Trade
	position *Position

	log *slog.Logger
	i   int
}

func newBroker(data *Series, s settings, log *slog.Logger) *Broker {
	equity := make([]float64, data.total())
	for i := range equity {
		equity[i] = math.NaN()
	}
	b := &Broker{
		data:         data,
		cash:         s.cash,
		commission:   s.commission,
		leverage:     1 / s.margin,
		tradeOnClose: s.tradeOnClose,
		hedging:      s.hedging,
		exclusive:    s.exclusiveOrders,
		equity:       equity,
		log:          log,
	}
	b.position = &Position{broker: b}
	return b
}

func (b *Broker) Cash() float64 { return b.cash }

// Equity is cash plus the marked-to-market P&L of open trades.
func (b *Broker) Equity() float64 {
	eq := b.cash
	for _, t := range b.trades {
		eq += t.PL()
	}
	return eq
}

func (b *Broker) Position() *Position { return b.position }

func (b *Broker) Orders() []*Order       { return slices.Clone(b.orders) }
func (b *Broker) Trades() []*Trade       { return slices.Clone(b.trades) }
func (b *Broker) ClosedTrades() []*Trade { return slices.Clone(b.closed) }

// EquityCurve returns one value per bar, NaN for bars not yet processed.
func (b *Broker) EquityCurve() []float64 { return slices.Clone(b.equity) }

func (b *Broker) marginAvailable() float64 {
	var used float64
	for _, t := range b.trades {
		used += t.Value() / b.leverage
	}
	return math.Max(0, b.Equity()-used)
}

func (b *Broker) lastPrice() float64 {
	return Last(b.data.Close(), 1)
}

// adjustedPrice applies commission against the trader: buys fill higher,
// sells lower.
func (b *Broker) adjustedPrice(size, price float64) float64 {
	return price * (1 + math.Copysign(b.commission, size))
}

func (b *Broker) newOrder(size float64, limit, stop, sl, tp *float64, parent *Trade, tag string) *Order {
	i := b.data.Index()
	o := &Order{
		broker:     b,
		size:       size,
		limit:      copyPrice(limit),
		stop:       copyPrice(stop),
		sl:         copyPrice(sl),
		tp:         copyPrice(tp),
		parent:     parent,
		placedBar:  i,
		placedTime: b.data.timeAt(i),
		tag:        tag,
	}

	// Contingent orders go to the front of the queue so exits are
	// resolved before new entries.
	if parent != nil {
		b.orders = slices.Insert(b.orders, 0, o)
		return o
	}

	if b.exclusive {
		for _, p := range slices.Clone(b.orders) {
			if !p.IsContingent() {
				_ = p.Cancel()
			}
		}
		for _, t := range slices.Clone(b.trades) {
			_ = t.Close(1)
		}
	}
	b.orders = append(b.orders, o)
	return o
}

func (b *Broker) removeOrder(o *Order) bool {
	i := slices.Index(b.orders, o)
	if i < 0 {
		return false
	}
	b.orders = slices.Delete(b.orders, i, i+1)
	return true
}

// next resolves pending orders against the current bar and records the
// bar's equity. It returns ErrOutOfMoney when the account can no longer
// fund an order or its equity is exhausted; open trades are closed at the
// bar's close in both cases.
func (b *Broker) next() error {
	i := b.data.Index()
	b.i = i

	oom := b.processOrders()

	equity := b.Equity()
	b.equity[i] = equity

	if oom != nil {
		b.closeAll(i)
		return oom
	}

	if equity <= 0 {
		b.closeAll(i)
		b.cash = 0
		for j := i; j < len(b.equity); j++ {
			b.equity[j] = 0
		}
		return fmt.Errorf("%w: equity %.2f at bar %d", ErrOutOfMoney, equity, i)
	}
	return nil
}

func (b *Broker) closeAll(i int) {
	price := b.lastPrice()
	for _, t := range slices.Clone(b.trades) {
		b.closeTrade(t, price, i)
	}
}

func (b *Broker) processOrders() error {
	d := b.data
	n := d.Len()
	open, high, low := d.open[n-1], d.high[n-1], d.low[n-1]
	prevClose := open
	if n > 1 {
		prevClose = d.close[n-2]
	}
	reprocess := false

	for _, o := range slices.Clone(b.orders) {
		// Removed together with its trade earlier in this pass.
		if !slices.Contains(b.orders, o) {
			continue
		}

		// A stop order becomes a market or limit order once hit.
		stop := o.stop
		if stop != nil {
			hit := (o.IsLong() && high > *stop) || (o.IsShort() && low < *stop)
			if !hit {
				continue
			}
			o.stop = nil
		}

		var price float64
		if o.limit != nil {
			limit := *o.limit
			var hit, beforeStop bool
			if o.IsLong() {
				hit = low < limit
				beforeStop = stop != nil && limit < *stop
			} else {
				hit = high > limit
				beforeStop = stop != nil && limit > *stop
			}
			// If both stop and limit fall inside this bar, assume the
			// limit was touched before the stop and so did not count.
			if !hit || beforeStop {
				continue
			}
			base := open
			if stop != nil {
				base = *stop
			}
			if o.IsLong() {
				price = math.Min(base, limit)
			} else {
				price = math.Max(base, limit)
			}
		} else {
			price = open
			if b.tradeOnClose {
				price = prevClose
			}
			if stop != nil {
				if o.IsLong() {
					price = math.Max(price, *stop)
				} else {
					price = math.Min(price, *stop)
				}
			}
		}

		isMarket := o.limit == nil && stop == nil
		bar := b.i
		if isMarket && b.tradeOnClose && bar > 0 {
			bar--
		}

		if t := o.parent; t != nil {
			size := math.Copysign(math.Min(math.Abs(t.size), math.Abs(o.size)), o.size)
			if !t.closed {
				b.reduceTrade(t, price, size, bar)
			}
			b.removeOrder(o)
			continue
		}

		adjusted := b.adjustedPrice(o.size, price)

		if !sltpValid(o, adjusted) {
			b.log.Warn("dropping order with stop-loss/take-profit on the wrong side of its fill",
				"bar", b.i, "size", o.size, "fill", adjusted,
				"sl", priceOrNaN(o.sl), "tp", priceOrNaN(o.tp))
			b.removeOrder(o)
			continue
		}

		size := o.size
		fractional := math.Abs(size) < 1
		if fractional {
			units := math.Floor(b.marginAvailable() * b.leverage * math.Abs(size) / adjusted)
			if units == 0 {
				b.log.Debug("not enough margin for a single unit; dropping order",
					"bar", b.i, "size", o.size, "price", adjusted)
				b.removeOrder(o)
				continue
			}
			size = math.Copysign(units, size)
		}
		need := size

		// Without hedging, close opposite trades FIFO at the unadjusted
		// price; commission was charged when they were opened.
		if !b.hedging {
			for _, t := range slices.Clone(b.trades) {
				if t.IsLong() == o.IsLong() {
					continue
				}
				if math.Abs(need) >= math.Abs(t.size) {
					b.closeTrade(t, price, bar)
					need += t.size
				} else {
					b.reduceTrade(t, price, need, bar)
					need = 0
				}
				if need == 0 {
					break
				}
			}
		}

		if avail := b.marginAvailable() * b.leverage; math.Abs(need)*adjusted > avail {
			b.removeOrder(o)
			if fractional {
				continue
			}
			return fmt.Errorf("%w: %v units at %.5f need %.2f, %.2f available at bar %d",
				ErrOutOfMoney, need, adjusted, math.Abs(need)*adjusted, avail, b.i)
		}

		if need != 0 {
			b.openTrade(adjusted, need, o.sl, o.tp, bar, o.tag)

			// SL/TP orders just queued may already trigger on this bar.
			// Only a market fill lets us know they came after the entry.
			if o.sl != nil || o.tp != nil {
				if isMarket {
					reprocess = true
				} else if inRange(o.sl, low, high) || inRange(o.tp, low, high) {
					b.log.Warn("contingent SL/TP would trigger in the bar its parent order filled; deferring it to the next matching bar",
						"bar", b.i, "time", d.Time())
				}
			}
		}

		b.removeOrder(o)
	}

	if reprocess {
		return b.processOrders()
	}
	return nil
}

func (b *Broker) openTrade(price, size float64, sl, tp *float64, bar int, tag string) {
	t := &Trade{
		broker:     b,
		size:       size,
		entryPrice: price,
		entryBar:   bar,
		entryTime:  b.data.timeAt(bar),
		exitBar:    -1,
		tag:        tag,
	}
	b.trades = append(b.trades, t)

	// Both are inserted at the front of the queue, so setting SL last makes
	// it resolve first when both trigger in one bar.
	if tp != nil {
		_ = t.SetTP(tp)
	}
	if sl != nil {
		_ = t.SetSL(sl)
	}
}

// reduceTrade closes size units (opposite sign to the trade) of t.
func (b *Broker) reduceTrade(t *Trade, price, size float64, bar int) {
	left := t.size + size
	if left == 0 {
		b.closeTrade(t, price, bar)
		return
	}

	t.size = left
	if t.slOrder != nil {
		t.slOrder.size = -left
	}
	if t.tpOrder != nil {
		t.tpOrder.size = -left
	}

	part := t.split(-size)
	b.trades = append(b.trades, part)
	b.closeTrade(part, price, bar)
}

func (b *Broker) closeTrade(t *Trade, price float64, bar int) {
	if i := slices.Index(b.trades, t); i >= 0 {
		b.trades = slices.Delete(b.trades, i, i+1)
	}
	if t.slOrder != nil {
		b.removeOrder(t.slOrder)
	}
	if t.tpOrder != nil {
		b.removeOrder(t.tpOrder)
	}

	t.closed = true
	t.exitPrice = price
	t.exitBar = bar
	t.exitTime = b.data.timeAt(bar)
	b.closed = append(b.closed, t)
	b.cash += t.PL()
}

// sltpValid checks sl < fill < tp for longs and tp < fill < sl for shorts.
func sltpValid(o *Order, fill float64) bool {
	lo, hi := math.Inf(-1), math.Inf(1)
	if o.IsLong() {
		if o.sl != nil {
			lo = *o.sl
		}
		if o.tp != nil {
			hi = *o.tp
		}
	} else {
		if o.tp != nil {
			lo = *o.tp
		}
		if o.sl != nil {
			hi = *o.sl
		}
	}
	return lo < fill && fill < hi
}

func inRange(p *float64, low, high float64) bool {
	return p != nil && low <= *p && *p <= high
}
