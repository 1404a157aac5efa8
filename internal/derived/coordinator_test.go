package derived

import (
	"sync"
	"testing"
	"time"

	"finboard/internal/core"
	"finboard/internal/finance"
	"finboard/internal/log"
)

const testDebounce = 20 * time.Millisecond

type triggerLog struct {
	mu   sync.Mutex
	keys []string
	ch   chan Projection
}

func newTriggerLog(c *Coordinator) *triggerLog {
	l := &triggerLog{ch: make(chan Projection, 16)}
	c.OnTrigger(func(p Projection) {
		l.mu.Lock()
		l.keys = append(l.keys, p.Key)
		l.mu.Unlock()
		l.ch <- p
	})
	return l
}

func (l *triggerLog) wait(t *testing.T) Projection {
	t.Helper()
	select {
	case p := <-l.ch:
		return p
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for trigger")
		return Projection{}
	}
}

func (l *triggerLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

func settle() {
	time.Sleep(5 * testDebounce)
}

func newCoordinator(st *finance.State) *Coordinator {
	c := New(st, WithDebounce(testDebounce), WithLogger(log.Discard()))
	c.Start()
	return c
}

func TestProjectionIsSynchronous(t *testing.T) {
	st := finance.New()
	c := newCoordinator(st)
	defer c.Close()

	st.ReplaceRows([]core.ExpenseRow{{Category: "Rent", Amount: "1500"}, {Category: "", Amount: "20"}})
	p := c.Current()
	if len(p.Expenses) != 1 || p.Expenses[0] != (core.Expense{Category: "Rent", Amount: 1500}) {
		t.Fatalf("unexpected projection %+v", p.Expenses)
	}
}

func TestRapidEditsTriggerOnce(t *testing.T) {
	st := finance.New()
	c := newCoordinator(st)
	defer c.Close()
	triggers := newTriggerLog(c)

	st.UpdateRow(0, finance.FieldCategory, "Food")
	st.UpdateRow(0, finance.FieldAmount, "1")
	st.UpdateRow(0, finance.FieldAmount, "12")
	st.UpdateRow(0, finance.FieldAmount, "120")

	p := triggers.wait(t)
	if len(p.Expenses) != 1 || p.Expenses[0].Amount != 120 {
		t.Fatalf("trigger must carry the settled projection, got %+v", p.Expenses)
	}
	settle()
	if n := triggers.count(); n != 1 {
		t.Fatalf("expected one trigger, got %d", n)
	}
}

func TestSameProjectionDoesNotRetrigger(t *testing.T) {
	st := finance.New()
	c := newCoordinator(st)
	defer c.Close()
	triggers := newTriggerLog(c)

	st.ReplaceRows([]core.ExpenseRow{{Category: "Rent", Amount: "1500"}})
	triggers.wait(t)

	// Income and invalid rows leave the projection unchanged.
	st.SetIncome("5000")
	st.AddRow()
	st.UpdateRow(1, finance.FieldCategory, "Pending")
	settle()
	if n := triggers.count(); n != 1 {
		t.Fatalf("expected no retrigger, got %d triggers", n)
	}

	st.UpdateRow(0, finance.FieldAmount, "1700")
	if p := triggers.wait(t); p.Expenses[0].Amount != 1700 {
		t.Fatalf("unexpected projection %+v", p.Expenses)
	}
}

func TestReturningToFiredProjectionRetriggers(t *testing.T) {
	st := finance.New()
	c := newCoordinator(st)
	defer c.Close()
	triggers := newTriggerLog(c)

	st.ReplaceRows([]core.ExpenseRow{{Category: "Rent", Amount: "1500"}})
	triggers.wait(t)

	// A -> B -> A inside the quiet period settles back on A, which fires again.
	st.UpdateRow(0, finance.FieldAmount, "1600")
	st.UpdateRow(0, finance.FieldAmount, "1500")
	p := triggers.wait(t)
	if p.Expenses[0].Amount != 1500 {
		t.Fatalf("unexpected projection %+v", p.Expenses)
	}
	settle()
	if n := triggers.count(); n != 2 {
		t.Fatalf("expected exactly one retrigger for the settled value, got %d triggers", n)
	}
}

func TestEmptyProjectionResetsLastFired(t *testing.T) {
	st := finance.New()
	c := newCoordinator(st)
	defer c.Close()
	triggers := newTriggerLog(c)

	rows := []core.ExpenseRow{{Category: "Gym", Amount: "40"}}
	st.ReplaceRows(rows)
	triggers.wait(t)

	st.ReplaceRows(nil)
	settle()
	if n := triggers.count(); n != 1 {
		t.Fatalf("empty projection must not trigger, got %d", n)
	}

	st.ReplaceRows(rows)
	triggers.wait(t)
}

func TestProjectionSubscribers(t *testing.T) {
	st := finance.New()
	c := newCoordinator(st)
	defer c.Close()

	var seen []int
	c.OnProjection(func(p Projection) { seen = append(seen, len(p.Expenses)) })

	st.ReplaceRows([]core.ExpenseRow{{Category: "A", Amount: "1"}})
	st.SetIncome("10")
	st.AddRow()
	st.UpdateRow(1, finance.FieldCategory, "B")
	st.UpdateRow(1, finance.FieldAmount, "2")

	want := []int{1, 2}
	if len(seen) != len(want) || seen[0] != want[0] || seen[1] != want[1] {
		t.Fatalf("projection changes = %v, want %v", seen, want)
	}
}

func TestInitialStateTriggers(t *testing.T) {
	st := finance.New()
	st.ReplaceRows([]core.ExpenseRow{{Category: "Rent", Amount: "900"}})

	c := New(st, WithDebounce(testDebounce), WithLogger(log.Discard()))
	triggers := newTriggerLog(c)
	c.Start()
	defer c.Close()

	triggers.wait(t)
}

func TestCloseCancelsPendingTrigger(t *testing.T) {
	st := finance.New()
	c := newCoordinator(st)
	triggers := newTriggerLog(c)

	st.ReplaceRows([]core.ExpenseRow{{Category: "Rent", Amount: "900"}})
	c.Close()
	settle()
	if n := triggers.count(); n != 0 {
		t.Fatalf("expected no trigger after Close, got %d", n)
	}
	st.SetIncome("1")
	if c.Current().Version != 1 {
		t.Fatalf("closed coordinator must stop following the state")
	}
}
