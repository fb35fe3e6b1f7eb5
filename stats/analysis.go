package stats

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownAnalysis = errors.New("unknown analysis type")

// Kind selects which part of a report an analysis returns.
type Kind string

const (
	// Macro is the summary of the run as a list of named values.
	Macro Kind = "MACRO"
	// Micro is the per-trade table.
	Micro Kind = "MICRO"
)

// ParseKind accepts MACRO or MICRO in any case.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToUpper(strings.TrimSpace(s))); k {
	case Macro, Micro:
		return k, nil
	}
	return "", fmt.Errorf("%w %q (want MACRO or MICRO)", ErrUnknownAnalysis, s)
}

// Field is one named value of a report summary.
type Field struct {
	Name  string
	Value any
}

// Analysis is a selected view of a report.
type Analysis struct {
	Kind   Kind
	Fields []Field
	Trades []TradeRow
}

// Analysis returns the MACRO summary or the MICRO trade table.
func (r *Report) Analysis(kind string) (*Analysis, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return nil, err
	}
	a := &Analysis{Kind: k}
	switch k {
	case Macro:
		a.Fields = []Field{
			{"# Trades", r.Trades},
			{"Return [%]", r.Return},
			{"Win Rate [%]", r.WinRate},
			{"Best Trade [%]", r.BestTrade},
			{"Worst Trade [%]", r.WorstTrade},
			{"Avg. Trade [%]", r.AvgTrade},
			{"Max. Drawdown [%]", r.MaxDrawdown},
			{"Avg. Drawdown [%]", r.AvgDrawdown},
			{"Max. Trade Duration", r.MaxTradeDuration},
			{"Avg. Trade Duration", r.AvgTradeDuration},
			{"Max. Drawdown Duration", r.MaxDrawdownDuration},
			{"Avg. Drawdown Duration", r.AvgDrawdownDuration},
		}
	case Micro:
		a.Trades = append([]TradeRow(nil), r.TradeLog...)
	}
	return a, nil
}

// Summary lists every scalar of the report in display order.
func (r *Report) Summary() []Field {
	start, end := any(0), any(r.Bars-1)
	if r.Duration.Dated {
		start, end = r.Start, r.End
	}
	return []Field{
		{"Start", start},
		{"End", end},
		{"Duration", r.Duration},
		{"Exposure Time [%]", r.ExposureTime},
		{"Equity Final [$]", r.EquityFinal},
		{"Equity Peak [$]", r.EquityPeak},
		{"Return [%]", r.Return},
		{"Buy & Hold Return [%]", r.BuyHoldReturn},
		{"Return (Ann.) [%]", r.ReturnAnn},
		{"Volatility (Ann.) [%]", r.VolatilityAnn},
		{"Sharpe Ratio", r.Sharpe},
		{"Sortino Ratio", r.Sortino},
		{"Calmar Ratio", r.Calmar},
		{"Max. Drawdown [%]", r.MaxDrawdown},
		{"Avg. Drawdown [%]", r.AvgDrawdown},
		{"Max. Drawdown Duration", r.MaxDrawdownDuration},
		{"Avg. Drawdown Duration", r.AvgDrawdownDuration},
		{"# Trades", r.Trades},
		{"Win Rate [%]", r.WinRate},
		{"Best Trade [%]", r.BestTrade},
		{"Worst Trade [%]", r.WorstTrade},
		{"Avg. Trade [%]", r.AvgTrade},
		{"Max. Trade Duration", r.MaxTradeDuration},
		{"Avg. Trade Duration", r.AvgTradeDuration},
		{"Profit Factor", r.ProfitFactor},
		{"Expectancy [%]", r.Expectancy},
		{"SQN", r.SQN},
		{"Out Of Money", r.OutOfMoney},
		{"Strategy", r.Strategy},
	}
}
