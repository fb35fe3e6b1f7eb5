package batch

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/rustyeddy/tradeit/backtest"
	"github.com/rustyeddy/tradeit/stats"
)

// Cache holds finished reports keyed by everything that determines them:
// symbol, data source, account settings, strategy and parameters. It is
// owned by the caller and lives as long as the caller keeps it.
type Cache struct {
	mu      sync.Mutex
	reports map[string]*stats.Report
}

func NewCache() *Cache {
	return &Cache{reports: make(map[string]*stats.Report)}
}

// Key identifies a run of strategy with params p over symbol's data from
// source, on an account with the given settings (see backtest.Backtest.Key).
func Key(symbol, source, settings, strategy string, p backtest.Params) string {
	return strings.Join([]string{symbol, source, settings, backtest.FormatName(strategy, p)}, "|")
}

// Source identifies the data of job: the file with its size and
// modification time, or a SHA-256 digest of in-memory bars.
func Source(job Job) (string, error) {
	if job.Bars == nil {
		fi, err := os.Stat(job.Path)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("file:%s@%d:%d", job.Path, fi.ModTime().UnixNano(), fi.Size()), nil
	}

	h := sha256.New()
	buf := make([]byte, 0, 48)
	for _, b := range job.Bars {
		buf = binary.LittleEndian.AppendUint64(buf[:0], uint64(b.Time.UnixNano()))
		for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
		h.Write(buf)
	}
	return "bars:" + hex.EncodeToString(h.Sum(nil)), nil
}

func (c *Cache) Get(key string) (*stats.Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.reports[key]
	return r, ok
}

func (c *Cache) Put(key string, r *stats.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports[key] = r
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reports)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.reports)
}
