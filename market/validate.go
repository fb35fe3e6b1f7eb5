package market

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
)

// Validate checks a bar sequence before a run and returns a copy that is
// safe to simulate over. Malformed data fails with ErrEmptySeries or
// ErrInvalidBar. Recoverable problems are logged as warnings: prices above
// the initial cash, an unsorted index (the copy is sorted, ties keep their
// original order) and an index without dates.
func Validate(bars []Bar, cash float64, log *slog.Logger) ([]Bar, error) {
	if len(bars) == 0 {
		return nil, ErrEmptySeries
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	out := make([]Bar, len(bars))
	copy(out, bars)

	aboveCash := false
	for i, b := range out {
		if err := b.Check(); err != nil {
			return nil, fmt.Errorf("%w at row %d: %v", ErrInvalidBar, i, err)
		}
		if math.IsInf(b.Volume, 0) {
			out[i].Volume = math.NaN()
		}
		if b.Close > cash {
			aboveCash = true
		}
	}

	if aboveCash {
		log.Warn("some prices are larger than initial cash; fractional units are not supported",
			"cash", cash)
	}

	dated := HasDates(out)
	if dated && !sorted(out) {
		log.Warn("data index is not sorted in ascending order; sorting")
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Time.Before(out[j].Time)
		})
	}
	if !dated {
		log.Warn("data index is not datetime; assuming simple periods")
	}

	return out, nil
}

func sorted(bars []Bar) bool {
	for i := 1; i < len(bars); i++ {
		if bars[i].Time.Before(bars[i-1].Time) {
			return false
		}
	}
	return true
}
