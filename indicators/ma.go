// Package indicators computes technical indicators over whole price
// columns. Every function returns a slice as long as its input, with NaN
// where the indicator is still warming up, so the result can be handed to
// backtest.Context.I directly.
package indicators

import (
	"fmt"
	"math"
)

func checkPeriod(period, n int) error {
	if period <= 0 {
		return fmt.Errorf("period must be positive, got %d", period)
	}
	if n == 0 {
		return fmt.Errorf("not enough values: need %d, got 0", period)
	}
	return nil
}

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA calculates the Simple Moving Average over a sliding window.
func SMA(values []float64, period int) ([]float64, error) {
	if err := checkPeriod(period, len(values)); err != nil {
		return nil, err
	}
	out := nans(len(values))

	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out, nil
}

// EMA calculates the Exponential Moving Average, seeded with the SMA of the
// first period values.
func EMA(values []float64, period int) ([]float64, error) {
	if err := checkPeriod(period, len(values)); err != nil {
		return nil, err
	}
	out := nans(len(values))
	if len(values) < period {
		return out, nil
	}

	multiplier := 2.0 / float64(period+1)

	sma := 0.0
	for i := 0; i < period; i++ {
		sma += values[i]
	}
	ema := sma / float64(period)
	out[period-1] = ema

	for i := period; i < len(values); i++ {
		ema = (values[i]-ema)*multiplier + ema
		out[i] = ema
	}
	return out, nil
}
