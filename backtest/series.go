package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/tradeit/market"
)

// Series is the price data seen by a strategy. It is backed by full
// column arrays but only exposes the bars revealed so far, so a strategy
// cannot look ahead of the simulation clock.
//
// The column accessors return slices capped at the revealed length;
// appending to them never touches hidden bars.
type Series struct {
	times  []time.Time
	open   []float64
	high   []float64
	low    []float64
	close  []float64
	volume []float64
	dated  bool
	n      int
}

func newSeries(bars []market.Bar) *Series {
	s := &Series{
		times:  make([]time.Time, len(bars)),
		open:   make([]float64, len(bars)),
		high:   make([]float64, len(bars)),
		low:    make([]float64, len(bars)),
		close:  make([]float64, len(bars)),
		volume: make([]float64, len(bars)),
		dated:  market.HasDates(bars),
		n:      len(bars),
	}
	for i, b := range bars {
		s.times[i] = b.Time
		s.open[i] = b.Open
		s.high[i] = b.High
		s.low[i] = b.Low
		s.close[i] = b.Close
		s.volume[i] = b.Volume
	}
	return s
}

// setLength reveals the first n bars. The window only grows during a run.
func (s *Series) setLength(n int) {
	if n < 0 {
		n = 0
	}
	if n > len(s.close) {
		n = len(s.close)
	}
	s.n = n
}

func (s *Series) total() int { return len(s.close) }

// Len is the number of revealed bars.
func (s *Series) Len() int { return s.n }

// Index is the position of the current (latest revealed) bar.
func (s *Series) Index() int { return s.n - 1 }

// Dated reports whether the bars carry timestamps.
func (s *Series) Dated() bool { return s.dated }

func (s *Series) Open() []float64   { return s.open[:s.n:s.n] }
func (s *Series) High() []float64   { return s.high[:s.n:s.n] }
func (s *Series) Low() []float64    { return s.low[:s.n:s.n] }
func (s *Series) Close() []float64  { return s.close[:s.n:s.n] }
func (s *Series) Volume() []float64 { return s.volume[:s.n:s.n] }
func (s *Series) Times() []time.Time {
	return s.times[:s.n:s.n]
}

// Time returns the timestamp of the current bar, zero for undated data.
func (s *Series) Time() time.Time {
	if s.n == 0 {
		return time.Time{}
	}
	return s.times[s.n-1]
}

// At returns bar i of the revealed window.
func (s *Series) At(i int) (market.Bar, error) {
	if i < 0 || i >= s.n {
		return market.Bar{}, fmt.Errorf("%w: bar %d of %d", ErrOutOfRange, i, s.n)
	}
	return market.Bar{
		Time:   s.times[i],
		Open:   s.open[i],
		High:   s.high[i],
		Low:    s.low[i],
		Close:  s.close[i],
		Volume: s.volume[i],
	}, nil
}

// LastBar returns the k-th most recent bar; k=1 is the current bar.
func (s *Series) LastBar(k int) (market.Bar, error) {
	return s.At(s.n - k)
}

// Last returns col[len(col)-k], or NaN when the column is shorter than k.
// It is meant for the revealed columns and indicator values.
func Last(col []float64, k int) float64 {
	if k < 1 || k > len(col) {
		return math.NaN()
	}
	return col[len(col)-k]
}

// timeAt reads a timestamp regardless of the revealed window. The broker
// uses it to stamp trades on bars it has already processed.
func (s *Series) timeAt(i int) time.Time {
	if i < 0 || i >= len(s.times) {
		return time.Time{}
	}
	return s.times[i]
}
