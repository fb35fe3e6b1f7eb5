package backtest

import "time"

// Order is a pending instruction to the broker. Positive sizes buy,
// negative sizes sell. A magnitude in (0, 1) is a fraction of available
// margin, a whole number is a count of units.
//
// An order with a parent trade is contingent: it only exists to close or
// reduce that trade (stop-loss, take-profit or an explicit Trade.Close).
type Order struct {
	broker *Broker

	size   float64
	limit  *float64
	stop   *float64
	sl     *float64
	tp     *float64
	parent *Trade

	placedBar  int
	placedTime time.Time
	tag        string
}

func (o *Order) Size() float64 { return o.size }

// Limit is the limit price, nil for market orders.
func (o *Order) Limit() *float64 { return copyPrice(o.limit) }

// Stop is the stop (trigger) price. It is cleared once the stop is hit
// and the order turns into a market or limit order.
func (o *Order) Stop() *float64 { return copyPrice(o.stop) }

// SL is the stop-loss attached to the trade this order will open.
func (o *Order) SL() *float64 { return copyPrice(o.sl) }

// TP is the take-profit attached to the trade this order will open.
func (o *Order) TP() *float64 { return copyPrice(o.tp) }

func (o *Order) ParentTrade() *Trade   { return o.parent }
func (o *Order) PlacedBar() int        { return o.placedBar }
func (o *Order) PlacedTime() time.Time { return o.placedTime }
func (o *Order) Tag() string           { return o.tag }

func (o *Order) IsLong() bool       { return o.size > 0 }
func (o *Order) IsShort() bool      { return o.size < 0 }
func (o *Order) IsContingent() bool { return o.parent != nil }

// Cancel removes the order from the broker's queue. Cancelling a trade's
// stop-loss or take-profit order also detaches it from the trade.
func (o *Order) Cancel() error {
	if !o.broker.removeOrder(o) {
		return ErrOrderNotPending
	}
	if t := o.parent; t != nil {
		switch o {
		case t.slOrder:
			t.slOrder, t.sl = nil, nil
		case t.tpOrder:
			t.tpOrder, t.tp = nil, nil
		}
	}
	return nil
}

func copyPrice(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v, for optional prices in OrderOptions.
func Ptr(v float64) *float64 { return &v }
