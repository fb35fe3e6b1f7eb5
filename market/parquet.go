package market

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
)

// BarRecord is the Parquet schema for bar files. Timestamp 0 marks a bar
// without a date.
type BarRecord struct {
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"`
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// WriteParquet writes bars to a Parquet file, creating parent directories.
func WriteParquet(path string, bars []Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	records := make([]BarRecord, len(bars))
	for i, b := range bars {
		var ts int64
		if !b.Time.IsZero() {
			ts = b.Time.UnixMilli()
		}
		records[i] = BarRecord{
			Timestamp: ts,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	return parquet.WriteFile(path, records)
}

// ReadParquet reads bars written by WriteParquet.
func ReadParquet(path string) ([]Bar, error) {
	records, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, ErrEmptySeries
	}
	bars := make([]Bar, len(records))
	for i, r := range records {
		var t time.Time
		if r.Timestamp != 0 {
			t = time.UnixMilli(r.Timestamp).UTC()
		}
		bars[i] = Bar{
			Time:   t,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return bars, nil
}

// Load reads a bar file, choosing the decoder from the file extension.
func Load(path string) ([]Bar, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet", ".pq":
		return ReadParquet(path)
	case ".csv", ".txt", "":
		return LoadCSV(path)
	default:
		return nil, fmt.Errorf("unsupported bar file %q", path)
	}
}

// IsBarFile reports whether Load understands the file's extension.
func IsBarFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet", ".pq", ".csv", ".txt":
		return true
	}
	return false
}
