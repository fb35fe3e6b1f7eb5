// Package risk sizes and prices entries: stop-loss offsets by price band,
// risk-to-reward targets, share counts from a per-trade risk budget, and
// policy checks on the resulting plan.
package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	ErrNoBand    = errors.New("no stop-loss band for price")
	ErrInvalidR  = errors.New("one-R must be positive")
	ErrNoCapital = errors.New("capital must be positive")
)

// Band maps prices strictly below Below to a stop-loss Offset.
type Band struct {
	Below  float64
	Offset float64
}

// DefaultBands is the stop-loss lookup table used when a Manager has none.
var DefaultBands = []Band{
	{Below: 5, Offset: 0.01},
	{Below: 10, Offset: 0.02},
	{Below: 50, Offset: 0.03},
	{Below: 100, Offset: 0.05},
	{Below: math.Inf(1), Offset: 0.10},
}

// Manager turns a trigger bar's prices into entry, stop-loss and target
// prices and a share count. Bands must be sorted by Below.
type Manager struct {
	RiskToReward float64
	RiskPerTrade float64
	Bands        []Band
	// Tick rounds the prices the manager returns; zero disables rounding.
	Tick float64
}

func NewManager(riskToReward, riskPerTrade float64) *Manager {
	return &Manager{
		RiskToReward: riskToReward,
		RiskPerTrade: riskPerTrade,
		Bands:        DefaultBands,
		Tick:         0.01,
	}
}

func (m *Manager) offset(price float64) (float64, error) {
	bands := m.Bands
	if len(bands) == 0 {
		bands = DefaultBands
	}
	for _, b := range bands {
		if price < b.Below {
			return b.Offset, nil
		}
	}
	return 0, fmt.Errorf("%w: %v", ErrNoBand, price)
}

func (m *Manager) round(v float64) float64 {
	if m.Tick <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	tick := decimal.NewFromFloat(m.Tick)
	f, _ := decimal.NewFromFloat(v).Div(tick).Round(0).Mul(tick).Float64()
	return f
}

// StopLoss places the stop one band offset below price.
func (m *Manager) StopLoss(price float64) (float64, error) {
	off, err := m.offset(price)
	if err != nil {
		return 0, err
	}
	return m.round(price - off), nil
}

// EntryPrice places the entry limit band offsets above price. A limit of 1
// gives the stop entry just above the trigger bar.
func (m *Manager) EntryPrice(price, limit float64) (float64, error) {
	off, err := m.offset(price)
	if err != nil {
		return 0, err
	}
	return m.round(price + limit*off), nil
}

// OneR is the distance from entry to stop-loss.
func OneR(entry, stopLoss float64) float64 { return entry - stopLoss }

// Target is the take-profit RiskToReward multiples of one-R past entry.
func (m *Manager) Target(entry, stopLoss float64) float64 {
	return m.round(entry + m.RiskToReward*OneR(entry, stopLoss))
}

// Shares sizes a position so that hitting the stop loses RiskPerTrade of
// capital, rounded up to whole units.
func (m *Manager) Shares(capital, entry, stopLoss float64) (float64, error) {
	if !(capital > 0) {
		return 0, ErrNoCapital
	}
	r := OneR(entry, stopLoss)
	if !(r > 0) {
		return 0, fmt.Errorf("%w: entry %v, stop %v", ErrInvalidR, entry, stopLoss)
	}
	return math.Ceil(m.RiskPerTrade * capital / r), nil
}
