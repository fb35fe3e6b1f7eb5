package backtest

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
)

// Strategy is the decision logic driven by a Backtest. Init is called once
// with the full price series to declare indicators; Next is called once per
// bar after the broker has processed it.
type Strategy interface {
	Init(ctx *Context) error
	Next(ctx *Context) error
}

// Named strategies report their own name in results.
type Named interface {
	Name() string
}

// DefaultSize is the order size used when OrderOptions.Size is zero: all
// of the available margin, as a fraction just below one.
const DefaultSize = 1 - 0x1p-52

// OrderOptions describes a new order. Nil prices are unset.
type OrderOptions struct {
	Size  float64
	Limit *float64
	Stop  *float64
	SL    *float64
	TP    *float64
	Tag   string
}

// Context is a strategy's view of a running backtest.
type Context struct {
	data       *Series
	broker     *Broker
	params     Params
	log        *slog.Logger
	indicators []*Indicator
	started    bool
}

// Data is the price series revealed up to the current bar.
func (c *Context) Data() *Series { return c.data }

// Bar is the index of the current bar.
func (c *Context) Bar() int { return c.data.Index() }

func (c *Context) Equity() float64          { return c.broker.Equity() }
func (c *Context) Cash() float64            { return c.broker.Cash() }
func (c *Context) Position() *Position      { return c.broker.Position() }
func (c *Context) Trades() []*Trade         { return c.broker.Trades() }
func (c *Context) ClosedTrades() []*Trade   { return c.broker.ClosedTrades() }
func (c *Context) Orders() []*Order         { return c.broker.Orders() }
func (c *Context) Params() Params           { return c.params }
func (c *Context) Logger() *slog.Logger     { return c.log }
func (c *Context) Indicators() []*Indicator { return append([]*Indicator(nil), c.indicators...) }

// Buy places a long order.
func (c *Context) Buy(opts OrderOptions) (*Order, error) {
	return c.place(1, opts)
}

// Sell places a short order.
func (c *Context) Sell(opts OrderOptions) (*Order, error) {
	return c.place(-1, opts)
}

func (c *Context) place(sign float64, opts OrderOptions) (*Order, error) {
	size := opts.Size
	if size == 0 {
		size = DefaultSize
	}
	if !validSize(size) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidSize, size)
	}
	for _, p := range []struct {
		name string
		v    *float64
	}{{"limit", opts.Limit}, {"stop", opts.Stop}} {
		if p.v != nil && !validPrice(*p.v) {
			return nil, fmt.Errorf("invalid %s price %v", p.name, *p.v)
		}
	}
	if opts.SL != nil && !validPrice(*opts.SL) {
		return nil, fmt.Errorf("%w: stop-loss %v", ErrInvalidSLTP, *opts.SL)
	}
	if opts.TP != nil && !validPrice(*opts.TP) {
		return nil, fmt.Errorf("%w: take-profit %v", ErrInvalidSLTP, *opts.TP)
	}
	return c.broker.newOrder(sign*size, opts.Limit, opts.Stop, opts.SL, opts.TP, nil, opts.Tag), nil
}

func validSize(size float64) bool {
	if math.IsNaN(size) || math.IsInf(size, 0) || size <= 0 {
		return false
	}
	return size < 1 || size == math.Round(size)
}

// I declares an indicator. fn runs once over the full series and its
// values are then revealed bar by bar. Indicators can only be declared
// from Init.
func (c *Context) I(name string, fn IndicatorFunc) (*Indicator, error) {
	if c.started {
		return nil, &IndicatorError{Name: name, Err: errors.New("indicators must be declared in Init")}
	}
	lines, err := fn(c.data)
	if err != nil {
		return nil, &IndicatorError{Name: name, Err: err}
	}
	ind, err := newIndicator(name, lines, c.data)
	if err != nil {
		return nil, &IndicatorError{Name: name, Err: err}
	}
	c.indicators = append(c.indicators, ind)
	return ind, nil
}

// Params are strategy parameters, typically decoded from YAML.
type Params map[string]any

// Float returns the named parameter as float64, or def if it is missing
// or not numeric.
func (p Params) Float(key string, def float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// Int returns the named parameter as int, or def if it is missing or not
// a whole number.
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == math.Trunc(v) {
			return int(v)
		}
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func (p Params) String(key string, def string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return def
}

func (p Params) Bool(key string, def bool) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
