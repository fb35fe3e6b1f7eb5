package journal

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"text/template"
	"time"
)

// OrgSummary is a run rendered as an Org-mode entry, with free-form notes.
type OrgSummary struct {
	RunRecord
	Notes       []string
	NextActions []string
}

var orgFuncs = template.FuncMap{
	"num": func(x float64) string {
		if math.IsNaN(x) {
			return "n/a"
		}
		return fmt.Sprintf("%.2f", x)
	},
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "(undated)"
		}
		return t.Format("2006-01-02")
	},
	"orNow": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

var orgTemplate = template.Must(template.New("run").Funcs(orgFuncs).Parse(RunOrgTemplate))

// WriteOrg renders s to w.
func WriteOrg(w io.Writer, s OrgSummary) error {
	return orgTemplate.Execute(w, s)
}

// WriteOrgFile renders s into the file at path.
func WriteOrgFile(path string, s OrgSummary) error {
	buf := new(bytes.Buffer)
	if err := WriteOrg(buf, s); err != nil {
		return fmt.Errorf("render org: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

const RunOrgTemplate = `
* BACKTEST: {{.Strategy}} {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:PROPERTIES:
:RUN_ID:      {{if .RunID}}{{.RunID}}{{else}}(run-id?){{end}}
:STRATEGY:    {{.Strategy}}
:DATASET:     {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:START_DATE:  {{date .Start}}
:END_DATE:    {{date .End}}
:BARS:        {{.Bars}}
:START_BAL:   {{num .Cash}}
:END_BAL:     {{num .EquityFinal}}
:NET_PL:      {{num .NetPL}}
:RETURN_PCT:  {{num .ReturnPct}}
:MAX_DD_PCT:  {{num .MaxDDPct}}
:TRADES:      {{.Trades}}
:WINS:        {{.Wins}}
:LOSSES:      {{.Losses}}
:WIN_RATE:    {{num .WinRate}}
:PROFIT_FAC:  {{num .ProfitFactor}}
:CREATED:     [{{(orNow .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Strategy Parameters
#+begin_src json
{{printf "%s" .Params}}
#+end_src

** Performance Summary
- Net P/L:          *{{num .NetPL}}*
- Return:           *{{num .ReturnPct}}%*
- Buy & Hold:       *{{num .BuyHoldPct}}%*
- Max Drawdown:     *{{num .MaxDDPct}}%*
- Win Rate:         *{{num .WinRate}}%*
- Profit Factor:    *{{num .ProfitFactor}}*
- Sharpe:           *{{num .Sharpe}}*
- SQN:              *{{num .SQN}}*
{{- if .OutOfMoney}}
- Ran out of money before the end of the data.
{{- end}}

** Trade Distribution
| Outcome | Count |
|---------+-------|
| Wins    | {{.Wins}} |
| Losses  | {{.Losses}} |
| Total   | {{.Trades}} |

{{- if .Notes }}
** Observations
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}

{{- if .NextActions }}
** Notes / Next Actions
{{- range .NextActions }}
- [ ] {{.}}
{{- end }}
{{- end }}
`
