package backtest

import (
	"fmt"
	"math"
)

// IndicatorFunc computes one or more indicator lines over the full price
// series. Every line must have one value per bar; leading NaNs mark the
// warm-up period.
type IndicatorFunc func(data *Series) ([][]float64, error)

// Line adapts a single-line indicator to IndicatorFunc.
func Line(fn func(data *Series) ([]float64, error)) IndicatorFunc {
	return func(data *Series) ([][]float64, error) {
		v, err := fn(data)
		if err != nil {
			return nil, err
		}
		return [][]float64{v}, nil
	}
}

// Indicator holds precomputed values and reveals them in lockstep with the
// price series it was computed over.
type Indicator struct {
	name   string
	lines  [][]float64
	series *Series
}

func newIndicator(name string, lines [][]float64, s *Series) (*Indicator, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("no values returned")
	}
	for j, l := range lines {
		if len(l) != s.total() {
			return nil, fmt.Errorf("line %d has %d values, data has %d bars", j, len(l), s.total())
		}
	}
	return &Indicator{name: name, lines: lines, series: s}, nil
}

func (ind *Indicator) Name() string { return ind.name }

// Lines is the number of value lines, 1 for most indicators.
func (ind *Indicator) Lines() int { return len(ind.lines) }

// Values returns the revealed part of the first line.
func (ind *Indicator) Values() []float64 { return ind.Line(0) }

// Line returns the revealed part of line j.
func (ind *Indicator) Line(j int) []float64 {
	if j < 0 || j >= len(ind.lines) {
		return nil
	}
	n := ind.series.Len()
	return ind.lines[j][:n:n]
}

// At returns the first line's value at bar i, NaN outside the window.
func (ind *Indicator) At(i int) float64 {
	if i < 0 || i >= ind.series.Len() {
		return math.NaN()
	}
	return ind.lines[0][i]
}

// Last returns the k-th most recent value of the first line.
func (ind *Indicator) Last(k int) float64 {
	return Last(ind.Values(), k)
}

// firstValid is the first bar at which every line has a value. A line that
// is NaN throughout counts as valid from bar 0.
func (ind *Indicator) firstValid() int {
	first := 0
	for _, l := range ind.lines {
		for i, v := range l {
			if !math.IsNaN(v) {
				if i > first {
					first = i
				}
				break
			}
		}
	}
	return first
}
