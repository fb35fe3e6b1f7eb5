// Package market holds the price data consumed by the backtester: OHLCV
// bars, their validation, and loaders for CSV and Parquet bar files.
package market

import (
	"errors"
	"math"
	"time"
)

var (
	ErrEmptySeries   = errors.New("OHLC data is empty")
	ErrMissingColumn = errors.New("missing required column")
	ErrInvalidBar    = errors.New("invalid bar")
)

// Bar represents one OHLCV record. Volume is NaN when the source has no
// volume column. A zero Time means the series is indexed by plain
// integer periods.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Check reports whether the bar's prices are finite and ordered
// low <= open,close <= high.
func (b Bar) Check() error {
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("OHLC values must be finite")
		}
	}
	if b.Low > b.High {
		return errors.New("low above high")
	}
	if b.Open < b.Low || b.Open > b.High {
		return errors.New("open outside low/high range")
	}
	if b.Close < b.Low || b.Close > b.High {
		return errors.New("close outside low/high range")
	}
	return nil
}

// HasDates reports whether every bar carries a timestamp.
func HasDates(bars []Bar) bool {
	if len(bars) == 0 {
		return false
	}
	for _, b := range bars {
		if b.Time.IsZero() {
			return false
		}
	}
	return true
}

// Closes returns the close column.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Bull reports whether the bar closed above its open.
func (b Bar) Bull() bool { return b.Open < b.Close }

// Bear reports whether the bar closed below its open.
func (b Bar) Bear() bool { return b.Open > b.Close }
