// Package strategies holds the built-in trading strategies and a registry
// that builds them by name from backtest parameters.
package strategies

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rustyeddy/tradeit/backtest"
)

// Factory builds a strategy from its parameters.
type Factory func(p backtest.Params) (backtest.Strategy, error)

var registry = make(map[string]Factory)

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register makes a strategy available to New. It is meant to be called
// from init functions and is not safe for concurrent use.
func Register(name string, f Factory) {
	registry[normalize(name)] = f
}

// New builds the named strategy.
func New(name string, p backtest.Params) (backtest.Strategy, error) {
	f, ok := registry[normalize(name)]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return f(p)
}

// Names lists the registered strategies in order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
