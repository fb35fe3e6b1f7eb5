// Package backtest runs a single-asset, bar-by-bar trading simulation.
//
// A Backtest validates the price data, lets a Strategy declare its
// indicators, then walks the bars: on each one the Broker fills or triggers
// pending orders against the bar's OHLC and records equity, after which the
// strategy sees the data revealed so far and may place new orders.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/rustyeddy/tradeit/market"
	"github.com/rustyeddy/tradeit/stats"
)

type settings struct {
	cash            float64
	commission      float64
	margin          float64
	tradeOnClose    bool
	hedging         bool
	exclusiveOrders bool
}

// Backtest holds the account settings for runs. It keeps no state between
// runs, so one Backtest can run many strategies or data sets.
type Backtest struct {
	settings
	log    *slog.Logger
	params Params
}

// Option configures a Backtest.
type Option func(*Backtest)

// WithCash sets the initial cash. Default 10000.
func WithCash(cash float64) Option { return func(b *Backtest) { b.cash = cash } }

// WithCommission sets the commission as a fraction of the fill price.
func WithCommission(c float64) Option { return func(b *Backtest) { b.commission = c } }

// WithMargin sets the margin ratio; leverage is 1/margin.
func WithMargin(m float64) Option { return func(b *Backtest) { b.margin = m } }

// WithTradeOnClose fills market orders at the previous bar's close instead
// of the current bar's open.
func WithTradeOnClose(v bool) Option { return func(b *Backtest) { b.tradeOnClose = v } }

// WithHedging allows long and short trades to be open at the same time.
func WithHedging(v bool) Option { return func(b *Backtest) { b.hedging = v } }

// WithExclusiveOrders makes each new order cancel pending orders and close
// open trades.
func WithExclusiveOrders(v bool) Option { return func(b *Backtest) { b.exclusiveOrders = v } }

func WithLogger(l *slog.Logger) Option { return func(b *Backtest) { b.log = l } }

// WithParams passes parameters to the strategy through Context.Params.
func WithParams(p Params) Option { return func(b *Backtest) { b.params = p } }

func New(opts ...Option) (*Backtest, error) {
	b := &Backtest{
		settings: settings{cash: 10_000, margin: 1},
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = slog.New(slog.DiscardHandler)
	}
	if b.params == nil {
		b.params = Params{}
	}

	if !(b.cash > 0) || math.IsInf(b.cash, 0) {
		return nil, fmt.Errorf("cash must be positive, got %v", b.cash)
	}
	if !(b.commission >= 0 && b.commission < 1) {
		return nil, fmt.Errorf("commission must be in [0, 1), got %v", b.commission)
	}
	if !(b.margin > 0 && b.margin <= 1) {
		return nil, fmt.Errorf("margin must be in (0, 1], got %v", b.margin)
	}
	return b, nil
}

// Key identifies the account settings of b. Two Backtests with equal keys
// produce the same report for the same strategy, parameters and bars.
func (b *Backtest) Key() string {
	return fmt.Sprintf("cash=%v,commission=%v,margin=%v,trade_on_close=%t,hedging=%t,exclusive_orders=%t",
		b.cash, b.commission, b.margin, b.tradeOnClose, b.hedging, b.exclusiveOrders)
}

// Run simulates strat over bars. Invalid data, strategy errors and a
// cancelled ctx are returned as errors. Running out of money is not an
// error: the run stops at that bar and the report has OutOfMoney set.
func (b *Backtest) Run(ctx context.Context, bars []market.Bar, strat Strategy) (*stats.Report, error) {
	bars, err := market.Validate(bars, b.cash, b.log)
	if err != nil {
		return nil, err
	}
	name := StrategyName(strat, b.params)
	log := b.log.With("strategy", name)

	data := newSeries(bars)
	broker := newBroker(data, b.settings, log)
	sctx := &Context{
		data:   data,
		broker: broker,
		params: b.params,
		log:    log,
	}

	if err := strat.Init(sctx); err != nil {
		return nil, fmt.Errorf("init %s: %w", name, err)
	}
	sctx.started = true

	// Skip bars where indicators are still warming up, and keep at least
	// two bars visible on the first Next call.
	start := 0
	for _, ind := range sctx.indicators {
		start = max(start, ind.firstValid())
	}
	start++

	total := data.total()
	processed := total
	outOfMoney := false

	log.Debug("backtest started", "bars", total, "start", start)
	for i := start; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data.setLength(i + 1)

		if err := broker.next(); err != nil {
			if !errors.Is(err, ErrOutOfMoney) {
				return nil, err
			}
			log.Warn("stopping run", "bar", i, "err", err)
			outOfMoney = true
			processed = i + 1
			break
		}

		if err := strat.Next(sctx); err != nil {
			return nil, fmt.Errorf("%s at bar %d: %w", name, i, err)
		}
	}

	if !outOfMoney {
		for _, t := range broker.Trades() {
			_ = t.Close(1)
		}
		// Settle orders placed on the last bar against that same bar.
		if start < total {
			if err := broker.next(); err != nil {
				log.Warn("final settlement", "err", err)
			}
		}
	}
	data.setLength(total)

	rep, err := stats.Compute(stats.Input{
		Times:      data.times[:processed],
		Close:      data.close[:processed],
		Equity:     broker.equity[:processed],
		Trades:     tradeRows(broker.closed, data.Dated()),
		Cash:       b.cash,
		Strategy:   name,
		OutOfMoney: outOfMoney,
	})
	if err != nil {
		return nil, err
	}
	log.Debug("backtest finished", "trades", rep.Trades, "equity", rep.EquityFinal)
	return rep, nil
}

func tradeRows(trades []*Trade, dated bool) []stats.TradeRow {
	rows := make([]stats.TradeRow, len(trades))
	for i, t := range trades {
		d := stats.Period{Bars: float64(t.ExitBar() - t.EntryBar()), Dated: dated}
		if dated {
			d.Time = t.ExitTime().Sub(t.EntryTime())
		}
		rows[i] = stats.TradeRow{
			Size:           t.Size(),
			EntryBar:       t.EntryBar(),
			ExitBar:        t.ExitBar(),
			OneR:           t.OneR(),
			SlPrice:        t.SL(),
			TpPrice:        t.TP(),
			EntryPrice:     t.EntryPrice(),
			ExitPrice:      t.ExitPrice(),
			MaxPnL:         t.MaxPnL(),
			MaxNegativePnL: t.MaxNegativePnL(),
			PnL:            t.PL(),
			ReturnPct:      t.PLPct(),
			EntryTime:      t.EntryTime(),
			ExitTime:       t.ExitTime(),
			Duration:       d,
			Tag:            t.Tag(),
		}
	}
	return rows
}

// StrategyName is the strategy's Name if it has one, else its type name,
// followed by its parameters in key order.
func StrategyName(s Strategy, p Params) string {
	var name string
	if n, ok := s.(Named); ok {
		name = n.Name()
	} else {
		t := reflect.TypeOf(s)
		for t != nil && t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t != nil {
			name = t.Name()
		}
	}
	return FormatName(name, p)
}

// FormatName appends p to name as "(k=v,...)" in key order.
func FormatName(name string, p Params) string {
	if len(p) == 0 {
		return name
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return name + "(" + strings.Join(parts, ",") + ")"
}
