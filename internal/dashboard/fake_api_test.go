package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"finboard/internal/core"
	"finboard/internal/derived"
	"finboard/internal/finance"
	"finboard/internal/gateway"
	"finboard/internal/history"
	"finboard/internal/log"
)

var errBackend = errors.New("backend unavailable")

type fakeAPI struct {
	mu sync.Mutex

	analyzeReqs []gateway.AnalyzeRequest
	analyzeErr  error
	analyzeHook func()

	recurringCalls [][]core.Expense
	recurringHook  func(expenses []core.Expense)

	goals    []gateway.Goal
	goalsErr error
	created  []gateway.GoalInput

	monthlyCalls  int
	categoryCalls int
	monthly       []gateway.MonthlyTrend
	categories    map[string]float64

	chatContexts []gateway.ChatContext
	chatReply    gateway.ChatReply
	chatErr      error
	cleared      int

	uploaded string
	upload   json.RawMessage
}

func (f *fakeAPI) Analyze(_ context.Context, in gateway.AnalyzeRequest) (core.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyzeReqs = append(f.analyzeReqs, in)
	if f.analyzeHook != nil {
		f.analyzeHook()
	}
	if f.analyzeErr != nil {
		return core.AnalysisResult{}, f.analyzeErr
	}
	return core.NewAnalysisResult([]byte(`{"expense_analysis":"ok","budget_plan":"","investment_plan":"","fraud_alerts":""}`))
}

func (f *fakeAPI) DetectRecurring(_ context.Context, expenses []core.Expense) (gateway.RecurringSummary, error) {
	f.mu.Lock()
	f.recurringCalls = append(f.recurringCalls, expenses)
	hook := f.recurringHook
	f.mu.Unlock()
	if hook != nil {
		hook(expenses)
	}
	return gateway.RecurringSummary{
		Recurring:    []gateway.RecurringExpense{{Category: expenses[0].Category, Amount: expenses[0].Amount, Frequency: "monthly"}},
		TotalMonthly: expenses[0].Amount,
		TotalAnnual:  expenses[0].Amount * 12,
	}, nil
}

func (f *fakeAPI) ListGoals(context.Context) ([]gateway.Goal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.goals, f.goalsErr
}

func (f *fakeAPI) CreateGoal(_ context.Context, in gateway.GoalInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, in)
	return nil
}

func (f *fakeAPI) UpdateGoal(context.Context, string, gateway.GoalUpdate) error { return nil }

func (f *fakeAPI) DeleteGoal(context.Context, string) error { return nil }

func (f *fakeAPI) GoalSuggestions(_ context.Context, id string, income float64) (string, error) {
	return id + " at " + core.FormatAmount(income), nil
}

func (f *fakeAPI) MonthlyTrends(context.Context, int) ([]gateway.MonthlyTrend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monthlyCalls++
	return f.monthly, nil
}

func (f *fakeAPI) CategoryTrends(context.Context, int) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.categoryCalls++
	return f.categories, nil
}

func (f *fakeAPI) Chat(_ context.Context, _ string, chatCtx gateway.ChatContext) (gateway.ChatReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatContexts = append(f.chatContexts, chatCtx)
	return f.chatReply, f.chatErr
}

func (f *fakeAPI) ClearChat(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return nil
}

func (f *fakeAPI) UploadPDF(_ context.Context, filename string, r io.Reader) (json.RawMessage, error) {
	_, _ = io.Copy(io.Discard, r)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded = filename
	return f.upload, nil
}

var _ API = (*fakeAPI)(nil)

type fixture struct {
	api   *fakeAPI
	state *finance.State
	coord *derived.Coordinator
	store *history.Store
	dash  *Dashboard
	now   time.Time
}

func newFixture(t *testing.T, api *fakeAPI) *fixture {
	t.Helper()
	f := &fixture{
		api:   api,
		state: finance.New(),
		now:   time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
	}
	f.coord = derived.New(f.state, derived.WithDebounce(10*time.Millisecond), derived.WithLogger(log.Discard()))
	f.store = history.NewStore(history.NewMemoryLog(history.DefaultCapacity),
		history.WithLogger(log.Discard()),
		history.WithClock(func() time.Time { return f.now }))
	f.dash = New(api, f.state, f.coord, f.store, WithLogger(log.Discard()))
	f.dash.Start(context.Background())
	f.coord.Start()
	t.Cleanup(func() {
		f.dash.Close()
		f.coord.Close()
	})
	return f
}

func (f *fixture) setRows(t *testing.T, rows ...core.ExpenseRow) {
	t.Helper()
	f.state.ReplaceRows(rows)
}
