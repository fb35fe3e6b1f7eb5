package stats

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrNoData = errors.New("stats: no equity data")

// Input is everything Compute needs from a finished run. Equity may hold
// NaN for bars the broker never processed (indicator warm-up); those are
// back-filled from the first processed bar, and trailing gaps fall back
// to Cash.
type Input struct {
	Times      []time.Time
	Close      []float64
	Equity     []float64
	Trades     []TradeRow
	Cash       float64
	Strategy   string
	OutOfMoney bool
}

// Compute builds a Report. It is a pure function of its input.
func Compute(in Input) (*Report, error) {
	n := len(in.Equity)
	if n == 0 {
		return nil, ErrNoData
	}
	if len(in.Close) != n {
		return nil, fmt.Errorf("stats: %d closes for %d equity values", len(in.Close), n)
	}
	dated := len(in.Times) == n && allDated(in.Times)

	equity := fillEquity(in.Equity, in.Cash)
	dd := drawdown(equity)
	ddDur, ddPeak := drawdownPeriods(dd, in.Times, dated)

	r := &Report{
		Bars:       n,
		Strategy:   in.Strategy,
		OutOfMoney: in.OutOfMoney,
		Duration:   Period{Bars: float64(n - 1), Dated: dated},
	}
	if dated {
		r.Start, r.End = in.Times[0], in.Times[n-1]
		r.Duration.Time = r.End.Sub(r.Start)
	}

	r.EquityCurve = make([]EquityRow, n)
	for i := range equity {
		row := EquityRow{
			Bar:              i,
			Equity:           equity[i],
			DrawdownPct:      dd[i],
			DrawdownDuration: ddDur[i],
		}
		if dated {
			row.Time = in.Times[i]
		}
		r.EquityCurve[i] = row
	}
	r.TradeLog = append([]TradeRow(nil), in.Trades...)

	// Exposure is counted in bars, not index time.
	have := make([]bool, n)
	for _, t := range in.Trades {
		for j := max(t.EntryBar, 0); j <= t.ExitBar && j < n; j++ {
			have[j] = true
		}
	}
	exposed := 0
	for _, h := range have {
		if h {
			exposed++
		}
	}
	r.ExposureTime = float64(exposed) / float64(n) * 100

	r.EquityFinal = equity[n-1]
	r.EquityPeak = maxOf(equity)
	r.Return = (equity[n-1] - equity[0]) / equity[0] * 100
	r.BuyHoldReturn = (in.Close[n-1] - in.Close[0]) / in.Close[0] * 100

	// Annualized figures assume compounded daily returns and need dates.
	dayRets := []float64{}
	gmeanDay, tradingDays := math.NaN(), math.NaN()
	if dated {
		dayRets = dayReturns(in.Times, equity)
		gmeanDay = geometricMean(dayRets)
		tradingDays = annualTradingDays(in.Times)
	}
	annRet := math.Pow(1+gmeanDay, tradingDays) - 1
	r.ReturnAnn = annRet * 100
	r.VolatilityAnn = math.Sqrt(
		math.Pow(sampleVariance(dayRets)+math.Pow(1+gmeanDay, 2), tradingDays)-
			math.Pow(1+gmeanDay, 2*tradingDays)) * 100
	r.Sharpe = clipPositive(r.ReturnAnn / nanIfZero(r.VolatilityAnn))

	downside := math.Sqrt(meanOf(mapValid(dayRets, func(v float64) float64 {
		v = math.Min(v, 0)
		return v * v
	}))) * math.Sqrt(tradingDays)
	r.Sortino = clipPositive(annRet / nanIfZero(downside))

	maxDD := maxOf(dd)
	if math.IsNaN(maxDD) {
		maxDD = 0
	}
	r.Calmar = clipPositive(annRet / nanIfZero(maxDD))
	r.MaxDrawdown = -maxDD * 100
	r.AvgDrawdown = -meanOf(ddPeak) * 100
	r.MaxDrawdownDuration = maxPeriod(ddDur, dated)
	r.AvgDrawdownDuration = meanPeriod(ddDur, dated)

	pl := make([]float64, len(in.Trades))
	rets := make([]float64, len(in.Trades))
	durs := make([]Period, len(in.Trades))
	for i, t := range in.Trades {
		pl[i], rets[i], durs[i] = t.PnL, t.ReturnPct, t.Duration
	}
	nt := len(in.Trades)
	r.Trades = nt
	r.WinRate = math.NaN()
	if nt > 0 {
		wins := 0
		for _, v := range pl {
			if v > 0 {
				wins++
			}
		}
		r.WinRate = float64(wins) / float64(nt) * 100
	}
	r.BestTrade = maxOf(rets) * 100
	r.WorstTrade = minOf(rets) * 100
	r.AvgTrade = geometricMean(rets) * 100
	r.MaxTradeDuration = maxPeriod(durs, dated)
	r.AvgTradeDuration = meanPeriod(durs, dated)

	var pos, neg []float64
	for _, v := range rets {
		switch {
		case v > 0:
			pos = append(pos, v)
		case v < 0:
			neg = append(neg, v)
		}
	}
	r.ProfitFactor = sumOf(pos) / nanIfZero(math.Abs(sumOf(neg)))
	r.Expectancy = meanOf(pos)*r.WinRate + meanOf(neg)*(100-r.WinRate)
	r.SQN = math.Sqrt(float64(nt)) * meanOf(pl) / nanIfZero(math.Sqrt(sampleVariance(pl)))

	r.sanitize()
	return r, nil
}

func (r *Report) sanitize() {
	for _, p := range []*float64{
		&r.ExposureTime, &r.EquityFinal, &r.EquityPeak, &r.Return,
		&r.BuyHoldReturn, &r.ReturnAnn, &r.VolatilityAnn, &r.Sharpe,
		&r.Sortino, &r.Calmar, &r.MaxDrawdown, &r.AvgDrawdown,
		&r.WinRate, &r.BestTrade, &r.WorstTrade, &r.AvgTrade,
		&r.ProfitFactor, &r.Expectancy, &r.SQN,
	} {
		if math.IsInf(*p, 0) {
			*p = math.NaN()
		}
	}
}

func allDated(times []time.Time) bool {
	for _, t := range times {
		if t.IsZero() {
			return false
		}
	}
	return len(times) > 0
}

func fillEquity(raw []float64, cash float64) []float64 {
	eq := append([]float64(nil), raw...)
	next := math.NaN()
	for i := len(eq) - 1; i >= 0; i-- {
		if math.IsNaN(eq[i]) {
			eq[i] = next
		} else {
			next = eq[i]
		}
	}
	for i, v := range eq {
		if math.IsNaN(v) {
			eq[i] = cash
		}
	}
	return eq
}

// drawdown is 1 - equity/running peak at every bar.
func drawdown(equity []float64) []float64 {
	dd := make([]float64, len(equity))
	peak := math.Inf(-1)
	for i, v := range equity {
		peak = math.Max(peak, v)
		dd[i] = 1 - v/peak
	}
	return dd
}

// drawdownPeriods finds every stretch between two bars at zero drawdown
// (the last bar always closes a stretch). The duration and deepest
// drawdown of each stretch are reported on its closing bar and are
// undefined elsewhere.
func drawdownPeriods(dd []float64, times []time.Time, dated bool) ([]Period, []float64) {
	n := len(dd)
	durs := make([]Period, n)
	peaks := make([]float64, n)
	for i := range dd {
		durs[i] = undefinedPeriod(dated)
		peaks[i] = math.NaN()
	}

	var ends []int
	for i, v := range dd {
		if v == 0 {
			ends = append(ends, i)
		}
	}
	if len(ends) == 0 || ends[len(ends)-1] != n-1 {
		ends = append(ends, n-1)
	}

	found := false
	for k := 1; k < len(ends); k++ {
		prev, cur := ends[k-1], ends[k]
		if cur <= prev+1 {
			continue
		}
		found = true
		p := Period{Bars: float64(cur - prev), Dated: dated}
		if dated {
			p.Time = times[cur].Sub(times[prev])
		}
		durs[cur] = p
		peaks[cur] = maxOf(dd[prev : cur+1])
	}

	// A drawdown too short to form a stretch still counts towards the
	// average depth.
	if !found {
		for i, v := range dd {
			if v != 0 && !math.IsNaN(v) {
				peaks[i] = v
			}
		}
	}
	return durs, peaks
}

// dayReturns resamples equity to the last value of each calendar day and
// returns the day-over-day change. The first value is NaN.
func dayReturns(times []time.Time, equity []float64) []float64 {
	var last []float64
	var prevDay time.Time
	for i, t := range times {
		day := t.UTC().Truncate(24 * time.Hour)
		if i == 0 || !day.Equal(prevDay) {
			last = append(last, equity[i])
			prevDay = day
		} else {
			last[len(last)-1] = equity[i]
		}
	}
	rets := make([]float64, len(last))
	if len(rets) > 0 {
		rets[0] = math.NaN()
	}
	for i := 1; i < len(last); i++ {
		rets[i] = last[i]/last[i-1] - 1
	}
	return rets
}

// annualTradingDays is 365 when weekend bars are common (crypto-style
// data), else 252.
func annualTradingDays(times []time.Time) float64 {
	weekend := 0
	for _, t := range times {
		if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
			weekend++
		}
	}
	if float64(weekend)/float64(len(times)) > 2.0/7*0.6 {
		return 365
	}
	return 252
}

// geometricMean treats NaN as a zero return. Any return at or below -100%
// gives 0.
func geometricMean(rets []float64) float64 {
	if len(rets) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range rets {
		if math.IsNaN(v) {
			v = 0
		}
		if v+1 <= 0 {
			return 0
		}
		sum += math.Log(v + 1)
	}
	return math.Exp(sum/float64(len(rets))) - 1
}

func clipPositive(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func nanIfZero(v float64) float64 {
	if v == 0 {
		return math.NaN()
	}
	return v
}

func mapValid(vs []float64, f func(float64) float64) []float64 {
	out := make([]float64, 0, len(vs))
	for _, v := range vs {
		if !math.IsNaN(v) {
			out = append(out, f(v))
		}
	}
	return out
}

// The reducers below skip NaN and return NaN for empty input, except
// sumOf which returns 0.

func sumOf(vs []float64) float64 {
	var s float64
	for _, v := range vs {
		if !math.IsNaN(v) {
			s += v
		}
	}
	return s
}

func meanOf(vs []float64) float64 {
	var s float64
	n := 0
	for _, v := range vs {
		if !math.IsNaN(v) {
			s += v
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return s / float64(n)
}

func maxOf(vs []float64) float64 {
	m := math.NaN()
	for _, v := range vs {
		if !math.IsNaN(v) && (math.IsNaN(m) || v > m) {
			m = v
		}
	}
	return m
}

func minOf(vs []float64) float64 {
	m := math.NaN()
	for _, v := range vs {
		if !math.IsNaN(v) && (math.IsNaN(m) || v < m) {
			m = v
		}
	}
	return m
}

// sampleVariance uses n-1 degrees of freedom.
func sampleVariance(vs []float64) float64 {
	mean := meanOf(vs)
	var s float64
	n := 0
	for _, v := range vs {
		if !math.IsNaN(v) {
			s += (v - mean) * (v - mean)
			n++
		}
	}
	if n < 2 {
		return math.NaN()
	}
	return s / float64(n-1)
}

func maxPeriod(ps []Period, dated bool) Period {
	out := undefinedPeriod(dated)
	for _, p := range ps {
		if !p.Valid() {
			continue
		}
		if !out.Valid() || p.Bars > out.Bars {
			out.Bars = p.Bars
		}
		if p.Time > out.Time {
			out.Time = p.Time
		}
	}
	return out
}

func meanPeriod(ps []Period, dated bool) Period {
	var bars float64
	var t time.Duration
	n := 0
	for _, p := range ps {
		if p.Valid() {
			bars += p.Bars
			t += p.Time
			n++
		}
	}
	if n == 0 {
		return undefinedPeriod(dated)
	}
	return Period{Bars: bars / float64(n), Time: t / time.Duration(n), Dated: dated}
}
