// Package stats turns the equity curve and closed trades of a backtest run
// into a flat performance report.
package stats

import (
	"fmt"
	"math"
	"time"
)

// Period is a span measured in bars and, for dated data, in time.
// Bars is NaN when the span is undefined.
type Period struct {
	Bars  float64
	Time  time.Duration
	Dated bool
}

func undefinedPeriod(dated bool) Period {
	return Period{Bars: math.NaN(), Dated: dated}
}

// Valid reports whether the period is defined.
func (p Period) Valid() bool { return !math.IsNaN(p.Bars) }

func (p Period) String() string {
	switch {
	case !p.Valid():
		return "NaN"
	case p.Dated:
		return formatDuration(p.Time)
	default:
		return fmt.Sprintf("%g bars", p.Bars)
	}
}

func formatDuration(d time.Duration) string {
	days := d / (24 * time.Hour)
	rest := d - days*24*time.Hour
	return fmt.Sprintf("%d days %02d:%02d:%02d", days,
		rest/time.Hour, (rest%time.Hour)/time.Minute, (rest%time.Minute)/time.Second)
}

// EquityRow is one bar of the equity curve.
type EquityRow struct {
	Bar              int
	Time             time.Time
	Equity           float64
	DrawdownPct      float64
	DrawdownDuration Period
}

// TradeRow is one closed trade. ReturnPct is a fraction, 0.01 being 1%.
// SlPrice, TpPrice, OneR, MaxPnL and MaxNegativePnL are NaN when unknown.
type TradeRow struct {
	Size           float64
	EntryBar       int
	ExitBar        int
	OneR           float64
	SlPrice        float64
	TpPrice        float64
	EntryPrice     float64
	ExitPrice      float64
	MaxPnL         float64
	MaxNegativePnL float64
	PnL            float64
	ReturnPct      float64
	EntryTime      time.Time
	ExitTime       time.Time
	Duration       Period
	Tag            string
}

// Report is the result of a backtest. Percentages are in percent units.
// Quantities that cannot be computed (no trades, no dates, a zero
// denominator) are NaN, never infinite.
type Report struct {
	Start    time.Time
	End      time.Time
	Duration Period
	Bars     int

	ExposureTime  float64
	EquityFinal   float64
	EquityPeak    float64
	Return        float64
	BuyHoldReturn float64
	ReturnAnn     float64
	VolatilityAnn float64
	Sharpe        float64
	Sortino       float64
	Calmar        float64

	MaxDrawdown         float64
	AvgDrawdown         float64
	MaxDrawdownDuration Period
	AvgDrawdownDuration Period

	Trades           int
	WinRate          float64
	BestTrade        float64
	WorstTrade       float64
	AvgTrade         float64
	MaxTradeDuration Period
	AvgTradeDuration Period
	ProfitFactor     float64
	Expectancy       float64
	SQN              float64

	Strategy   string
	OutOfMoney bool

	EquityCurve []EquityRow
	TradeLog    []TradeRow
}
