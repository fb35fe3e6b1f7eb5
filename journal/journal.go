// Package journal persists backtest results: one run summary plus its
// closed trades and equity curve, keyed by a run id.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rustyeddy/tradeit/stats"
)

// RunRecord is the summary row of a backtest run. Percentages are in
// percent, as in stats.Report.
type RunRecord struct {
	RunID    string
	Created  time.Time
	Strategy string
	Dataset  string
	Params   []byte // JSON

	Start time.Time // zero for undated series
	End   time.Time
	Bars  int

	Cash         float64
	EquityFinal  float64
	EquityPeak   float64
	ReturnPct    float64
	BuyHoldPct   float64
	MaxDDPct     float64
	Sharpe       float64
	Sortino      float64
	Calmar       float64
	WinRate      float64
	ProfitFactor float64
	Expectancy   float64
	SQN          float64

	Trades     int
	Wins       int
	Losses     int
	OutOfMoney bool
}

// NetPL is the run's profit in cash.
func (r RunRecord) NetPL() float64 { return r.EquityFinal - r.Cash }

// TradeRecord is one closed trade of a run, numbered by Seq in close order.
type TradeRecord struct {
	RunID          string
	Seq            int
	Size           float64
	EntryBar       int
	ExitBar        int
	EntryPrice     float64
	ExitPrice      float64
	EntryTime      time.Time
	ExitTime       time.Time
	PnL            float64
	ReturnPct      float64 // fraction
	SL             float64
	TP             float64
	OneR           float64
	MaxPnL         float64
	MaxNegativePnL float64
	Tag            string
}

// EquitySnapshot is one point of a run's equity curve.
type EquitySnapshot struct {
	RunID       string
	Bar         int
	Time        time.Time
	Equity      float64
	DrawdownPct float64
}

// Run is everything recorded for one backtest.
type Run struct {
	Record RunRecord
	Trades []TradeRecord
	Equity []EquitySnapshot
}

type Journal interface {
	RecordRun(ctx context.Context, run Run) error
	Close() error
}

// NewRun builds the records of a finished backtest.
func NewRun(runID string, created time.Time, dataset string, cash float64, params map[string]any, rep *stats.Report) (Run, error) {
	p, err := json.Marshal(params)
	if err != nil {
		return Run{}, fmt.Errorf("marshal params: %w", err)
	}

	rec := RunRecord{
		RunID:        runID,
		Created:      created,
		Strategy:     rep.Strategy,
		Dataset:      dataset,
		Params:       p,
		Start:        rep.Start,
		End:          rep.End,
		Bars:         rep.Bars,
		Cash:         cash,
		EquityFinal:  rep.EquityFinal,
		EquityPeak:   rep.EquityPeak,
		ReturnPct:    rep.Return,
		BuyHoldPct:   rep.BuyHoldReturn,
		MaxDDPct:     rep.MaxDrawdown,
		Sharpe:       rep.Sharpe,
		Sortino:      rep.Sortino,
		Calmar:       rep.Calmar,
		WinRate:      rep.WinRate,
		ProfitFactor: rep.ProfitFactor,
		Expectancy:   rep.Expectancy,
		SQN:          rep.SQN,
		Trades:       rep.Trades,
		OutOfMoney:   rep.OutOfMoney,
	}

	trades := make([]TradeRecord, len(rep.TradeLog))
	for i, t := range rep.TradeLog {
		switch {
		case t.PnL > 0:
			rec.Wins++
		case t.PnL < 0:
			rec.Losses++
		}
		trades[i] = TradeRecord{
			RunID:          runID,
			Seq:            i + 1,
			Size:           t.Size,
			EntryBar:       t.EntryBar,
			ExitBar:        t.ExitBar,
			EntryPrice:     t.EntryPrice,
			ExitPrice:      t.ExitPrice,
			EntryTime:      t.EntryTime,
			ExitTime:       t.ExitTime,
			PnL:            t.PnL,
			ReturnPct:      t.ReturnPct,
			SL:             t.SlPrice,
			TP:             t.TpPrice,
			OneR:           t.OneR,
			MaxPnL:         t.MaxPnL,
			MaxNegativePnL: t.MaxNegativePnL,
			Tag:            t.Tag,
		}
	}

	equity := make([]EquitySnapshot, len(rep.EquityCurve))
	for i, e := range rep.EquityCurve {
		equity[i] = EquitySnapshot{
			RunID:       runID,
			Bar:         e.Bar,
			Time:        e.Time,
			Equity:      e.Equity,
			DrawdownPct: e.DrawdownPct,
		}
	}
	return Run{Record: rec, Trades: trades, Equity: equity}, nil
}
