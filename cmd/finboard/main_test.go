package main

import (
	"bytes"
	"strings"
	"testing"

	"finboard/internal/core"
)

func TestExpenseFlags(t *testing.T) {
	var f expenseFlags
	for _, v := range []string{"Rent=1200", " Food = 45.5 ", "Gift="} {
		if err := f.Set(v); err != nil {
			t.Fatalf("Set(%q): %v", v, err)
		}
	}
	want := []core.ExpenseRow{
		{Category: "Rent", Amount: "1200"},
		{Category: "Food", Amount: "45.5"},
		{Category: "Gift", Amount: ""},
	}
	for i := range want {
		if f[i] != want[i] {
			t.Errorf("row %d: got %+v, want %+v", i, f[i], want[i])
		}
	}
	if f.String() != "Rent=1200,Food=45.5,Gift=" {
		t.Errorf("unexpected String() %q", f.String())
	}
	if err := f.Set("no separator"); err == nil {
		t.Error("expected error for value without '='")
	}
}

func TestOptionalAmount(t *testing.T) {
	if v, err := optionalAmount("target", ""); v != nil || err != nil {
		t.Errorf("empty value should be nil, got %v %v", v, err)
	}
	if v, err := optionalAmount("target", "12.5"); err != nil || *v != 12.5 {
		t.Errorf("unexpected %v %v", v, err)
	}
	if _, err := optionalAmount("target", "lots"); err == nil {
		t.Error("expected validation error")
	}
}

func TestPrintResult(t *testing.T) {
	r, err := core.NewAnalysisResult([]byte(`{"expense_analysis":"Too much rent","budget_plan":"","investment_plan":"Index funds","fraud_alerts":""}`))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	printResult(&buf, r)

	out := buf.String()
	if !strings.Contains(out, "== Expense Analysis ==\nToo much rent") || !strings.Contains(out, "Index funds") {
		t.Errorf("unexpected output %q", out)
	}
	if strings.Contains(out, "Budget Plan") {
		t.Error("empty sections should be skipped")
	}
}

func TestUsageListsCommands(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf)
	for _, c := range commands {
		if !strings.Contains(buf.String(), c.name) {
			t.Errorf("usage is missing %s", c.name)
		}
	}
}
