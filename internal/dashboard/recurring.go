package dashboard

import (
	"context"
	"fmt"

	"finboard/internal/derived"
	"finboard/internal/gateway"
	"finboard/internal/log"
)

// RecurringView is the recurring-expense panel for one projection. It is
// reset whenever the projection changes.
type RecurringView struct {
	// Key is the projection the view belongs to.
	Key      string
	Loading  bool
	Analyzed bool
	Summary  gateway.RecurringSummary
	Err      error
}

func (d *Dashboard) Recurring() RecurringView {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recurring
}

// OnRecurring registers fn for every change of the recurring view.
func (d *Dashboard) OnRecurring(fn func(RecurringView)) func() {
	return d.recurringChanges.Subscribe(fn)
}

// DetectRecurring runs detection for the current projection on demand.
func (d *Dashboard) DetectRecurring(ctx context.Context) (gateway.RecurringSummary, error) {
	p := d.derived.Current()
	if p.Empty() {
		return gateway.RecurringSummary{}, ErrNoExpenses
	}
	return d.detect(ctx, p)
}

func (d *Dashboard) projectionChanged(p derived.Projection) {
	d.mu.Lock()
	if d.recurring.Key == p.Key {
		d.mu.Unlock()
		return
	}
	d.recurring = RecurringView{Key: p.Key}
	view := d.recurring
	d.mu.Unlock()

	d.recurringChanges.Publish(view)
}

func (d *Dashboard) detectOnTrigger(p derived.Projection) {
	d.mu.Lock()
	ctx := d.ctx
	d.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	_, _ = d.detect(ctx, p)
}

func (d *Dashboard) detect(ctx context.Context, p derived.Projection) (gateway.RecurringSummary, error) {
	d.updateRecurring(p.Key, func(v *RecurringView) { v.Loading = true })

	summary, err := d.api.DetectRecurring(ctx, p.Expenses)
	if err != nil {
		d.logger.WarnContext(ctx, "Recurring detection failed",
			log.NewFields().
				WithOperation(log.OpDetect).
				WithError(err).
				ToSlice()...)
		err = fmt.Errorf("detect recurring: %w", err)
	}

	applied := d.updateRecurring(p.Key, func(v *RecurringView) {
		v.Loading = false
		v.Err = err
		if err == nil {
			v.Summary = summary
			v.Analyzed = true
		}
	})
	if !applied {
		d.logger.DebugContext(ctx, "Dropping recurring result for a superseded projection",
			log.FieldExpenseCount, len(p.Expenses))
	}
	return summary, err
}

// updateRecurring applies fn when key is still the current projection and
// reports whether it did.
func (d *Dashboard) updateRecurring(key string, fn func(*RecurringView)) bool {
	d.mu.Lock()
	if d.recurring.Key != key {
		d.mu.Unlock()
		return false
	}
	fn(&d.recurring)
	view := d.recurring
	d.mu.Unlock()

	d.recurringChanges.Publish(view)
	return true
}
