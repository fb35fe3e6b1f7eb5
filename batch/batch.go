// Package batch runs one backtest per instrument concurrently.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/rustyeddy/tradeit/backtest"
	"github.com/rustyeddy/tradeit/market"
	"github.com/rustyeddy/tradeit/stats"
	"golang.org/x/sync/errgroup"
)

// Job is one instrument to backtest. Bars are loaded from Path when nil.
type Job struct {
	Symbol string
	Path   string
	Bars   []market.Bar
}

// Factory builds a fresh strategy for each job, since strategies keep
// per-run state.
type Factory func() (backtest.Strategy, error)

type Result struct {
	Symbol string
	Path   string
	Report *stats.Report
	Cached bool
	Err    error
}

// Runner runs jobs with at most Workers backtests in flight.
type Runner struct {
	Strategy string
	Params   backtest.Params
	Factory  Factory
	Options  []backtest.Option
	Workers  int
	// FailFast cancels the remaining jobs on the first failure; otherwise
	// failures are reported per job.
	FailFast bool
	Cache    *Cache
	Log      *slog.Logger
}

// Run backtests every job and returns the results keyed by symbol.
func (r *Runner) Run(ctx context.Context, jobs []Job) (map[string]Result, error) {
	if r.Factory == nil {
		return nil, fmt.Errorf("batch: no strategy factory")
	}
	log := r.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	seen := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		if seen[j.Symbol] {
			return nil, fmt.Errorf("batch: duplicate symbol %q", j.Symbol)
		}
		seen[j.Symbol] = true
	}

	var (
		mu      sync.Mutex
		results = make(map[string]Result, len(jobs))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, r.Workers))
	for _, job := range jobs {
		g.Go(func() error {
			res := r.runOne(gctx, log, job)
			mu.Lock()
			results[job.Symbol] = res
			mu.Unlock()
			if res.Err != nil && r.FailFast {
				return fmt.Errorf("%s: %w", job.Symbol, res.Err)
			}
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

func (r *Runner) runOne(ctx context.Context, log *slog.Logger, job Job) Result {
	res := Result{Symbol: job.Symbol, Path: job.Path}
	log = log.With("symbol", job.Symbol)

	opts := append(slices.Clone(r.Options), backtest.WithLogger(log), backtest.WithParams(r.Params))
	bt, err := backtest.New(opts...)
	if err != nil {
		res.Err = err
		return res
	}

	var key string
	if r.Cache != nil {
		// An unreadable file is not cached; loading it reports the error.
		if src, err := Source(job); err == nil {
			key = Key(job.Symbol, src, bt.Key(), r.Strategy, r.Params)
		}
		if rep, ok := r.Cache.Get(key); key != "" && ok {
			log.Debug("using cached report")
			res.Report, res.Cached = rep, true
			return res
		}
	}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	bars := job.Bars
	if bars == nil {
		if bars, err = market.Load(job.Path); err != nil {
			res.Err = err
			return res
		}
	}

	strat, err := r.Factory()
	if err != nil {
		res.Err = fmt.Errorf("build strategy: %w", err)
		return res
	}

	log.Info("backtest started", "bars", len(bars))
	rep, err := bt.Run(ctx, bars, strat)
	if err != nil {
		log.Error("backtest failed", "err", err)
		res.Err = err
		return res
	}
	log.Info("backtest finished", "trades", rep.Trades, "return_pct", rep.Return)

	res.Report = rep
	if key != "" {
		r.Cache.Put(key, rep)
	}
	return res
}

// Discover lists the bar files in dir as jobs, named by file stem, in
// name order.
func Discover(dir string) ([]Job, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	var jobs []Job
	for _, e := range entries {
		if e.IsDir() || !market.IsBarFile(e.Name()) {
			continue
		}
		name := e.Name()
		jobs = append(jobs, Job{
			Symbol: strings.TrimSuffix(name, filepath.Ext(name)),
			Path:   filepath.Join(dir, name),
		})
	}
	return jobs, nil
}

// Symbols returns the result keys in order.
func Symbols(results map[string]Result) []string {
	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
