package risk

import (
	"errors"
	"fmt"
	"math"
)

// ErrRejected wraps every policy violation returned by Decision.Err.
var ErrRejected = errors.New("entry rejected by risk policy")

// Code identifies a failed check.
type Code string

const (
	CodeNoPrices  Code = "NO_STOP_OR_ENTRY"
	CodeNoUnits   Code = "NO_UNITS"
	CodeStopSide  Code = "STOP_WRONG_SIDE"
	CodeRiskHigh  Code = "RISK_TOO_HIGH"
	CodeRRLow     Code = "RR_TOO_LOW"
	CodeOpenLimit Code = "TOO_MANY_OPEN_TRADES"
)

type Violation struct {
	Code Code
	Msg  string
}

func (v Violation) Error() string { return string(v.Code) + ": " + v.Msg }

// Decision is the outcome of Evaluate. The planned figures are filled in
// once the plan has usable prices and units.
type Decision struct {
	Allowed    bool
	Violations []Violation

	PlannedRisk    float64
	PlannedRiskPct float64
	PlannedRR      float64
}

func (d *Decision) reject(code Code, format string, args ...any) {
	d.Allowed = false
	d.Violations = append(d.Violations, Violation{Code: code, Msg: fmt.Sprintf(format, args...)})
}

// Err is nil for an allowed plan, else ErrRejected joined with every
// violation.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	errs := []error{ErrRejected}
	for _, v := range d.Violations {
		errs = append(errs, v)
	}
	return errors.Join(errs...)
}

func priced(x float64) bool { return x > 0 && !math.IsInf(x, 0) }

// Evaluate checks plan against p for an account in the given state. A
// long plan has positive units and its stop below the entry; a short plan
// the reverse.
func Evaluate(p Policy, plan Plan, acct AccountSnapshot) Decision {
	d := Decision{Allowed: true}

	switch {
	case !priced(plan.Entry) || !priced(plan.Stop):
		d.reject(CodeNoPrices, "entry %v and stop %v must be positive prices", plan.Entry, plan.Stop)
		return d
	case plan.Units == 0 || math.IsNaN(plan.Units):
		d.reject(CodeNoUnits, "plan has no units")
		return d
	case plan.Units > 0 && plan.Stop >= plan.Entry, plan.Units < 0 && plan.Stop <= plan.Entry:
		d.reject(CodeStopSide, "stop %.4f is on the wrong side of entry %.4f", plan.Stop, plan.Entry)
		return d
	}

	d.PlannedRisk = PlannedRisk(plan.Units, plan.Entry, plan.Stop)
	d.PlannedRiskPct = RiskPct(d.PlannedRisk, acct.Equity)
	d.PlannedRR = RR(plan.Entry, plan.Stop, plan.Target)

	if p.MaxRiskPct > 0 && d.PlannedRiskPct > p.MaxRiskPct {
		d.reject(CodeRiskHigh, "risking %.2f%% of equity, limit %.2f%%", 100*d.PlannedRiskPct, 100*p.MaxRiskPct)
	}
	if p.MinRR > 0 && d.PlannedRR < p.MinRR {
		d.reject(CodeRRLow, "reward/risk %.2f, need at least %.2f", d.PlannedRR, p.MinRR)
	}
	if p.MaxOpenTrades > 0 && acct.OpenTrades >= p.MaxOpenTrades {
		d.reject(CodeOpenLimit, "%d trades open, limit %d", acct.OpenTrades, p.MaxOpenTrades)
	}
	return d
}
