package backtest

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/tradeit/market"
)

// Validation errors for the input series live in package market and are
// re-exported here so callers only need to match against one package.
var (
	ErrEmptySeries   = market.ErrEmptySeries
	ErrMissingColumn = market.ErrMissingColumn
	ErrInvalidBar    = market.ErrInvalidBar
)

var (
	ErrInvalidSize     = errors.New("size must be a positive fraction of equity, or a positive whole number of units")
	ErrInvalidSLTP     = errors.New("invalid stop-loss/take-profit")
	ErrOutOfMoney      = errors.New("out of money")
	ErrOutOfRange      = errors.New("index beyond revealed data")
	ErrOrderNotPending = errors.New("order is not pending")
)

// IndicatorError reports a failure while precomputing a named indicator.
type IndicatorError struct {
	Name string
	Err  error
}

func (e *IndicatorError) Error() string {
	return fmt.Sprintf("indicator %q errored: %v", e.Name, e.Err)
}

func (e *IndicatorError) Unwrap() error { return e.Err }
