package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"20060102 150405",
}

// LoadCSV reads a bar file from disk. See ReadCSV for the format.
func LoadCSV(path string) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bars, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

// ReadCSV reads bars from a CSV stream with a header row. Column names are
// case-insensitive: Open, High, Low and Close are required, Volume is
// optional, and the first of Date, Time, Datetime or Timestamp (if any)
// is used as the index. Empty price cells become NaN so that Validate
// rejects them.
func ReadCSV(r io.Reader) ([]Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptySeries
	}
	if err != nil {
		return nil, err
	}

	cols := map[string]int{}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}

	idx := map[string]int{}
	for _, name := range []string{"Open", "High", "Low", "Close"} {
		i, ok := cols[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, name)
		}
		idx[strings.ToLower(name)] = i
	}
	volCol, hasVol := cols["volume"]
	timeCol := -1
	for _, name := range []string{"date", "time", "datetime", "timestamp"} {
		if i, ok := cols[name]; ok {
			timeCol = i
			break
		}
	}

	var bars []Bar
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}

		b := Bar{Volume: math.NaN()}
		if timeCol >= 0 {
			if b.Time, err = parseTime(cell(row, timeCol)); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		if b.Open, err = parsePrice(cell(row, idx["open"])); err != nil {
			return nil, fmt.Errorf("line %d: bad open: %w", line, err)
		}
		if b.High, err = parsePrice(cell(row, idx["high"])); err != nil {
			return nil, fmt.Errorf("line %d: bad high: %w", line, err)
		}
		if b.Low, err = parsePrice(cell(row, idx["low"])); err != nil {
			return nil, fmt.Errorf("line %d: bad low: %w", line, err)
		}
		if b.Close, err = parsePrice(cell(row, idx["close"])); err != nil {
			return nil, fmt.Errorf("line %d: bad close: %w", line, err)
		}
		if hasVol {
			if b.Volume, err = parsePrice(cell(row, volCol)); err != nil {
				return nil, fmt.Errorf("line %d: bad volume: %w", line, err)
			}
		}
		bars = append(bars, b)
	}

	if len(bars) == 0 {
		return nil, ErrEmptySeries
	}
	return bars, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parsePrice(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	// Unix seconds, as written by some exporters.
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}
