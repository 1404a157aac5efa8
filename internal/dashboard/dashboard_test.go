package dashboard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"finboard/internal/core"
	"finboard/internal/derived"
	"finboard/internal/gateway"
	"finboard/internal/history"
	"finboard/internal/session"
)

func TestAnalyze_InvalidIncomeSendsNothing(t *testing.T) {
	tests := []struct {
		name   string
		income string
	}{
		{"empty", ""},
		{"not a number", "abc"},
		{"negative", "-5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{}
			f := newFixture(t, api)
			f.state.SetIncome(tt.income)

			_, err := f.dash.Analyze(context.Background())
			var ve *core.ValidationError
			if !errors.As(err, &ve) || ve.Field != "income" {
				t.Fatalf("expected income validation error, got %v", err)
			}
			if len(api.analyzeReqs) != 0 {
				t.Error("no request may be sent for invalid income")
			}
		})
	}
}

func TestAnalyze_RecordsHistory(t *testing.T) {
	api := &fakeAPI{}
	f := newFixture(t, api)
	submitted := f.now
	// The backend takes a while to answer.
	api.analyzeHook = func() { f.now = f.now.Add(8 * time.Second) }
	f.state.SetIncome("5000")
	f.setRows(t,
		core.ExpenseRow{Category: "Rent", Amount: "1200"},
		core.ExpenseRow{Category: "Food", Amount: ""},
	)

	rec, err := f.dash.Analyze(context.Background())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if len(api.analyzeReqs) != 1 {
		t.Fatalf("expected one request, got %d", len(api.analyzeReqs))
	}
	req := api.analyzeReqs[0]
	if req.Income != 5000 || req.Profile != core.RiskMedium {
		t.Errorf("unexpected request %+v", req)
	}
	if len(req.Expenses) != 1 || req.Expenses[0].Category != "Rent" {
		t.Errorf("only valid rows may be sent, got %+v", req.Expenses)
	}

	all, _ := f.dash.History(context.Background())
	if len(all) != 1 || all[0].ID != rec.ID {
		t.Fatalf("expected the record at position 0, got %+v", all)
	}
	if !all[0].SavedAt.Equal(submitted) {
		t.Errorf("expected savedAt at submission %v, got %v", submitted, all[0].SavedAt)
	}
	if _, ok := f.dash.Result(); !ok {
		t.Error("expected result to be shown")
	}
}

func TestAnalyze_FailureClearsResult(t *testing.T) {
	api := &fakeAPI{}
	f := newFixture(t, api)
	f.state.SetIncome("100")

	if _, err := f.dash.Analyze(context.Background()); err != nil {
		t.Fatalf("first Analyze: %v", err)
	}
	api.analyzeErr = &gateway.APIError{Status: 500, Message: "boom"}

	_, err := f.dash.Analyze(context.Background())
	var apiErr *gateway.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if _, ok := f.dash.Result(); ok {
		t.Error("a failed analysis must not leave the previous result on display")
	}
	if all, _ := f.dash.History(context.Background()); len(all) != 1 {
		t.Errorf("failure must not be recorded, got %d records", len(all))
	}
}

func TestRestoreLatest(t *testing.T) {
	api := &fakeAPI{}
	f := newFixture(t, api)

	if _, err := f.dash.RestoreLatest(context.Background()); !errors.Is(err, history.ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}

	f.state.SetIncome("3000")
	f.setRows(t, core.ExpenseRow{Category: "Rent", Amount: "900"})
	if _, err := f.dash.Analyze(context.Background()); err != nil {
		t.Fatal(err)
	}

	f.state.SetIncome("1")
	f.setRows(t, core.ExpenseRow{Category: "Other", Amount: "5"})
	f.dash.setResult(core.AnalysisResult{})

	if _, err := f.dash.RestoreLatest(context.Background()); err != nil {
		t.Fatalf("RestoreLatest: %v", err)
	}
	snap := f.state.Snapshot()
	if snap.Income != "3000" || len(snap.Rows) != 1 || snap.Rows[0].Category != "Rent" {
		t.Errorf("unexpected restored state %+v", snap)
	}
	if _, ok := f.dash.Result(); !ok {
		t.Error("restored result should be shown")
	}
}

func TestSummary(t *testing.T) {
	f := newFixture(t, &fakeAPI{})
	f.state.SetIncome("1000")
	f.setRows(t,
		core.ExpenseRow{Category: "Food", Amount: "0.1"},
		core.ExpenseRow{Category: "Rent", Amount: "500"},
		core.ExpenseRow{Category: "Food", Amount: "0.2"},
	)

	s := f.dash.Summary()
	if s.TotalExpenses != 500.3 || s.Savings != 499.7 {
		t.Errorf("unexpected totals %+v", s)
	}
	if len(s.Totals) != 2 || s.Totals[0].Category != "Food" || s.Totals[0].Amount.String() != "0.3" {
		t.Errorf("unexpected category totals %+v", s.Totals)
	}
}

func waitRecurring(t *testing.T, ch <-chan RecurringView, pred func(RecurringView) bool) RecurringView {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case v := <-ch:
			if pred(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for recurring view")
			return RecurringView{}
		}
	}
}

func TestRecurring_TriggeredByProjection(t *testing.T) {
	api := &fakeAPI{}
	f := newFixture(t, api)
	ch := make(chan RecurringView, 32)
	f.dash.OnRecurring(func(v RecurringView) { ch <- v })

	f.setRows(t, core.ExpenseRow{Category: "Netflix", Amount: "1"})
	f.setRows(t, core.ExpenseRow{Category: "Netflix", Amount: "12"})

	v := waitRecurring(t, ch, func(v RecurringView) bool { return v.Analyzed })
	if v.Summary.TotalMonthly != 12 {
		t.Errorf("expected detection on the settled projection, got %+v", v.Summary)
	}
	time.Sleep(50 * time.Millisecond)
	api.mu.Lock()
	calls := len(api.recurringCalls)
	api.mu.Unlock()
	if calls != 1 {
		t.Errorf("expected one detection for rapid edits, got %d", calls)
	}

	f.setRows(t, core.ExpenseRow{Category: "Netflix", Amount: "13"})
	reset := waitRecurring(t, ch, func(v RecurringView) bool { return !v.Analyzed })
	if reset.Key == v.Key {
		t.Error("a projection change must reset the view")
	}
}

func TestRecurring_ReanalyzesWhenEditsReturnToPreviousRows(t *testing.T) {
	api := &fakeAPI{}
	f := newFixture(t, api)
	ch := make(chan RecurringView, 32)
	f.dash.OnRecurring(func(v RecurringView) { ch <- v })

	rows := core.ExpenseRow{Category: "Netflix", Amount: "12"}
	f.setRows(t, rows)
	first := waitRecurring(t, ch, func(v RecurringView) bool { return v.Analyzed })

	f.setRows(t, core.ExpenseRow{Category: "Netflix", Amount: "13"})
	f.setRows(t, rows)

	v := waitRecurring(t, ch, func(v RecurringView) bool { return v.Analyzed })
	if v.Key != first.Key || v.Summary.TotalMonthly != 12 {
		t.Errorf("expected the restored rows to be analyzed again, got %+v", v)
	}
	api.mu.Lock()
	calls := len(api.recurringCalls)
	api.mu.Unlock()
	if calls != 2 {
		t.Errorf("expected two detections, got %d", calls)
	}
	if cur := f.dash.Recurring(); !cur.Analyzed || cur.Key != f.coord.Current().Key {
		t.Errorf("current view not analyzed: %+v", cur)
	}
}

func TestRecurring_DropsSupersededResult(t *testing.T) {
	api := &fakeAPI{}
	f := newFixture(t, api)
	f.coord.Close()

	stale := derived.Projection{
		Expenses: []core.Expense{{Category: "Gym", Amount: 30}},
		Key:      core.Key([]core.Expense{{Category: "Gym", Amount: 30}}),
	}
	current := derived.Projection{
		Expenses: []core.Expense{{Category: "Gym", Amount: 35}},
		Key:      core.Key([]core.Expense{{Category: "Gym", Amount: 35}}),
	}
	f.dash.projectionChanged(stale)
	api.recurringHook = func([]core.Expense) {
		f.dash.projectionChanged(current)
	}

	if _, err := f.dash.detect(context.Background(), stale); err != nil {
		t.Fatalf("detect: %v", err)
	}
	v := f.dash.Recurring()
	if v.Key != current.Key || v.Analyzed || v.Loading {
		t.Errorf("stale result must be dropped, got %+v", v)
	}
}

func TestDetectRecurring_Empty(t *testing.T) {
	f := newFixture(t, &fakeAPI{})
	f.setRows(t, core.ExpenseRow{Category: "Rent", Amount: "x"})
	if _, err := f.dash.DetectRecurring(context.Background()); !errors.Is(err, ErrNoExpenses) {
		t.Fatalf("expected ErrNoExpenses, got %v", err)
	}
}

func TestChat(t *testing.T) {
	api := &fakeAPI{
		goalsErr:  errBackend,
		chatReply: gateway.ChatReply{Response: "Spend less on rent."},
	}
	f := newFixture(t, api)
	f.state.SetIncome("2000")
	f.setRows(t,
		core.ExpenseRow{Category: "Rent", Amount: "800"},
		core.ExpenseRow{Category: "", Amount: "5"},
	)

	reply, err := f.dash.Send(context.Background(), "How am I doing?")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.Content != "Spend less on rent." {
		t.Errorf("unexpected reply %+v", reply)
	}

	ctx := api.chatContexts[0]
	if ctx.Income != 2000 || len(ctx.Expenses) != 1 {
		t.Errorf("unexpected chat context %+v", ctx)
	}
	if ctx.Goals == nil || len(ctx.Goals) != 0 {
		t.Errorf("failed goals fetch should send an empty list, got %v", ctx.Goals)
	}

	transcript := f.dash.Transcript()
	if len(transcript) != 3 || transcript[0] != greeting || transcript[1].Role != RoleUser {
		t.Errorf("unexpected transcript %+v", transcript)
	}
}

func TestChat_Failures(t *testing.T) {
	api := &fakeAPI{chatErr: errBackend}
	f := newFixture(t, api)

	if _, err := f.dash.Send(context.Background(), "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := f.dash.Send(context.Background(), "hi"); !errors.Is(err, errBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
	transcript := f.dash.Transcript()
	if last := transcript[len(transcript)-1]; last.Content != failedReply {
		t.Errorf("expected apology, got %+v", last)
	}

	api.chatErr = nil
	api.chatReply = gateway.ChatReply{Error: "rate limited"}
	reply, _ := f.dash.Send(context.Background(), "hi again")
	if reply.Content != "rate limited" {
		t.Errorf("expected backend error text, got %q", reply.Content)
	}

	if err := f.dash.ClearChat(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := f.dash.Transcript(); len(got) != 1 || got[0] != clearedReply || api.cleared != 1 {
		t.Errorf("unexpected transcript after clear %+v", got)
	}
}

func TestTrends_CachedPerUser(t *testing.T) {
	api := &fakeAPI{
		monthly: []gateway.MonthlyTrend{
			{Month: "2026-08", TotalExpenses: 1000},
			{Month: "2026-09", TotalExpenses: 1250},
		},
		categories: map[string]float64{"Rent": 300, "Food": 100, "Bills": 100},
	}
	f := newFixture(t, api)
	ctx := context.Background()

	tr, err := f.dash.Trends(ctx, 0, false)
	if err != nil {
		t.Fatalf("Trends: %v", err)
	}
	if tr.Months != DefaultTrendsMonths || tr.Change != 25 {
		t.Errorf("unexpected trends %+v", tr)
	}
	want := []CategoryShare{
		{Category: "Rent", Amount: 300, Percent: 60},
		{Category: "Bills", Amount: 100, Percent: 20},
		{Category: "Food", Amount: 100, Percent: 20},
	}
	for i, s := range tr.Categories {
		if s != want[i] {
			t.Errorf("category %d: got %+v, want %+v", i, s, want[i])
		}
	}

	if _, err := f.dash.Trends(ctx, 0, false); err != nil {
		t.Fatal(err)
	}
	if api.monthlyCalls != 1 || api.categoryCalls != 1 {
		t.Errorf("second read should hit the cache, got %d/%d calls", api.monthlyCalls, api.categoryCalls)
	}

	f.dash.Trends(ctx, 0, true)
	if api.monthlyCalls != 2 {
		t.Errorf("refresh should bypass the cache, got %d calls", api.monthlyCalls)
	}

	f.dash.SessionChanged(session.Session{State: session.StateAuthenticated, User: &core.UserProfile{ID: "u2"}})
	f.dash.Trends(ctx, 0, false)
	if api.monthlyCalls != 3 {
		t.Errorf("a new user must not see cached trends, got %d calls", api.monthlyCalls)
	}
}

func TestMonthLabel(t *testing.T) {
	tests := map[string]string{
		"2026-01": "Jan 26",
		"2025-12": "Dec 25",
		"2026-13": "2026-13",
		"bad":     "bad",
		"":        "",
	}
	for in, want := range tests {
		if got := MonthLabel(in); got != want {
			t.Errorf("MonthLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMonthOverMonth(t *testing.T) {
	tests := []struct {
		name    string
		monthly []gateway.MonthlyTrend
		want    float64
	}{
		{"empty", nil, 0},
		{"single month", []gateway.MonthlyTrend{{TotalExpenses: 10}}, 0},
		{"zero base", []gateway.MonthlyTrend{{TotalExpenses: 0}, {TotalExpenses: 10}}, 0},
		{"decrease", []gateway.MonthlyTrend{{TotalExpenses: 200}, {TotalExpenses: 150}}, -25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := monthOverMonth(tt.monthly); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGoals(t *testing.T) {
	api := &fakeAPI{goals: []gateway.Goal{
		{ID: "g1", Name: "Car", Target: 1000, Current: 250},
		{ID: "g2", Name: "Trip", Target: 100, Current: 300},
	}}
	f := newFixture(t, api)
	ctx := context.Background()

	goals, err := f.dash.Goals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if goals[0].Progress != 25 || goals[1].Progress != 100 {
		t.Errorf("unexpected progress %v %v", goals[0].Progress, goals[1].Progress)
	}

	invalid := []gateway.GoalInput{
		{Name: " ", Target: 10},
		{Name: "House", Target: 0},
		{Name: "House", Target: 10, Current: -1},
	}
	for _, in := range invalid {
		var ve *core.ValidationError
		if err := f.dash.CreateGoal(ctx, in); !errors.As(err, &ve) {
			t.Errorf("CreateGoal(%+v): expected validation error, got %v", in, err)
		}
	}
	if err := f.dash.CreateGoal(ctx, gateway.GoalInput{Name: " House ", Target: 10}); err != nil {
		t.Fatal(err)
	}
	if len(api.created) != 1 || api.created[0].Name != "House" {
		t.Errorf("unexpected created goals %+v", api.created)
	}

	if _, err := f.dash.GoalSuggestions(ctx, "g1"); err == nil {
		t.Error("suggestions need a valid income")
	}
	f.state.SetIncome("4000")
	if s, err := f.dash.GoalSuggestions(ctx, "g1"); err != nil || s != "g1 at 4000" {
		t.Errorf("unexpected suggestions %q %v", s, err)
	}
}

func TestImportStatement(t *testing.T) {
	api := &fakeAPI{upload: []byte(`{"Rent": 1200, "Food": "300.5", "Misc": null}`)}
	f := newFixture(t, api)

	n, err := f.dash.ImportStatement(context.Background(), "march.pdf", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("ImportStatement: %v", err)
	}
	if n != 3 || api.uploaded != "march.pdf" {
		t.Errorf("unexpected import %d %q", n, api.uploaded)
	}
	rows := f.state.Snapshot().Rows
	want := []core.ExpenseRow{
		{Category: "Rent", Amount: "1200"},
		{Category: "Food", Amount: "300.5"},
		{Category: "Misc", Amount: ""},
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d: got %+v, want %+v", i, rows[i], want[i])
		}
	}
	if got := len(f.coord.Current().Expenses); got != 2 {
		t.Errorf("invalid imported rows must stay out of the projection, got %d", got)
	}
}

func TestNormalizeExpenses(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []core.ExpenseRow
		wantErr bool
	}{
		{
			name: "array",
			raw:  `[{"category":"Rent","amount":1200},{"category":"Food","amount":"45.5"}]`,
			want: []core.ExpenseRow{{Category: "Rent", Amount: "1200"}, {Category: "Food", Amount: "45.5"}},
		},
		{
			name: "object keeps key order",
			raw:  `{"Zoo": 1, "Apples": 2.5}`,
			want: []core.ExpenseRow{{Category: "Zoo", Amount: "1"}, {Category: "Apples", Amount: "2.5"}},
		},
		{name: "empty object", raw: `{}`, want: []core.ExpenseRow{}},
		{name: "string", raw: `"nothing found"`, wantErr: true},
		{name: "null", raw: `null`, wantErr: true},
		{name: "empty", raw: ``, wantErr: true},
		{name: "malformed", raw: `[{"category":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeExpenses([]byte(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, ErrUnrecognizedStatement) {
					t.Fatalf("expected ErrUnrecognizedStatement, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("row %d: got %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
