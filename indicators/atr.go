package indicators

import (
	"fmt"
	"math"
)

// TrueRange returns the true range of a bar given the previous close.
func TrueRange(high, low, prevClose float64) float64 {
	highLow := high - low
	highClose := math.Abs(high - prevClose)
	lowClose := math.Abs(low - prevClose)

	return math.Max(highLow, math.Max(highClose, lowClose))
}

func checkHLC(high, low, close []float64) error {
	if len(high) != len(low) || len(high) != len(close) {
		return fmt.Errorf("high, low and close differ in length: %d, %d, %d",
			len(high), len(low), len(close))
	}
	return nil
}

// ATR calculates the Average True Range. The first value is the mean of
// the first period true ranges and lands at index period; later values use
// Wilder's smoothing.
func ATR(high, low, close []float64, period int) ([]float64, error) {
	if err := checkHLC(high, low, close); err != nil {
		return nil, err
	}
	if err := checkPeriod(period, len(close)); err != nil {
		return nil, err
	}
	out := nans(len(close))
	if len(close) <= period {
		return out, nil
	}

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += TrueRange(high[i], low[i], close[i-1])
	}
	atr := sum / float64(period)
	out[period] = atr

	p := float64(period)
	for i := period + 1; i < len(close); i++ {
		// Wilder's smoothing
		atr = (atr*(p-1) + TrueRange(high[i], low[i], close[i-1])) / p
		out[i] = atr
	}
	return out, nil
}
