package dashboard

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
	"finboard/internal/gateway"
	"finboard/internal/log"
)

// Analyze submits the current income, profile and validated expenses. The
// previous result is cleared first, so a failed submission leaves no
// result. A successful one is recorded in the history.
func (d *Dashboard) Analyze(ctx context.Context) (core.AnalysisRecord, error) {
	snap := d.state.Snapshot()
	income, err := core.ParseIncome(snap.Income)
	if err != nil {
		return core.AnalysisRecord{}, err
	}
	if err := snap.Profile.Validate(); err != nil {
		return core.AnalysisRecord{}, &core.ValidationError{Field: "profile", Message: err.Error()}
	}
	expenses := core.Project(snap.Rows)

	d.setResult(core.AnalysisResult{})

	submitted := d.history.Now()
	result, err := d.api.Analyze(ctx, gateway.AnalyzeRequest{
		Income:   income,
		Profile:  snap.Profile,
		Expenses: expenses,
	})
	if err != nil {
		d.logger.WarnContext(ctx, "Analysis request failed",
			log.NewFields().
				WithOperation(log.OpAnalyze).
				WithError(err).
				ToSlice()...)
		return core.AnalysisRecord{}, fmt.Errorf("analyze: %w", err)
	}
	d.setResult(result)

	rec, err := d.history.Record(ctx, result, core.Snapshot{
		Income:      income,
		Profile:     snap.Profile,
		Expenses:    expenses,
		SubmittedAt: submitted,
	})
	if err != nil {
		return core.AnalysisRecord{}, err
	}
	return rec, nil
}

// Result returns the result on display, if any.
func (d *Dashboard) Result() (core.AnalysisResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.result, !d.result.IsZero()
}

// RestoreLatest loads the newest history record into the finance state and
// shows its result.
func (d *Dashboard) RestoreLatest(ctx context.Context) (core.AnalysisRecord, error) {
	rec, err := d.history.RestoreLatest(ctx, d.state)
	if err != nil {
		return core.AnalysisRecord{}, err
	}
	d.setResult(rec.Result)
	return rec, nil
}

// History returns the recorded analyses, newest first.
func (d *Dashboard) History(ctx context.Context) ([]core.AnalysisRecord, error) {
	return d.history.All(ctx)
}

func (d *Dashboard) setResult(r core.AnalysisResult) {
	d.mu.Lock()
	d.result = r
	d.mu.Unlock()
}

// Summary is the budget overview shown next to the charts.
type Summary struct {
	Income        float64
	TotalExpenses float64
	Savings       float64
	// Totals are per category in order of first appearance.
	Totals []core.CategoryTotal
}

// Summary aggregates the current projection. Income is zero while the
// income field does not parse.
func (d *Dashboard) Summary() Summary {
	p := d.derived.Current()
	income, _ := core.ParseIncome(d.state.Snapshot().Income)
	total := core.Sum(p.Expenses)
	return Summary{
		Income:        income,
		TotalExpenses: total.InexactFloat64(),
		Savings:       decimal.NewFromFloat(income).Sub(total).InexactFloat64(),
		Totals:        core.Totals(p.Expenses),
	}
}
