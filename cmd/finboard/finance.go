package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"finboard/internal/core"
	"finboard/internal/dashboard"
	"finboard/internal/gateway"
)

// expenseFlags collects repeated -expense Category=Amount values. Rows are
// kept as typed; invalid ones are dropped by the projection.
type expenseFlags []core.ExpenseRow

func (f *expenseFlags) String() string {
	parts := make([]string, len(*f))
	for i, r := range *f {
		parts[i] = r.Category + "=" + r.Amount
	}
	return strings.Join(parts, ",")
}

func (f *expenseFlags) Set(v string) error {
	category, amount, ok := strings.Cut(v, "=")
	if !ok {
		return fmt.Errorf("expense %q must look like Category=Amount", v)
	}
	*f = append(*f, core.ExpenseRow{Category: strings.TrimSpace(category), Amount: strings.TrimSpace(amount)})
	return nil
}

func (e *env) loadInputs(income, profile string, rows expenseFlags) error {
	e.app.Finance.SetIncome(income)
	if profile != "" {
		p, err := core.ParseRiskProfile(profile)
		if err != nil {
			return err
		}
		if err := e.app.Finance.SetProfile(p); err != nil {
			return err
		}
	}
	if len(rows) > 0 {
		e.app.Finance.ReplaceRows(rows)
	}
	return nil
}

func cmdAnalyze(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	income := fs.String("income", "", "Monthly income")
	profile := fs.String("profile", "medium", "Risk profile: low, medium or high")
	var rows expenseFlags
	fs.Var(&rows, "expense", "Expense as Category=Amount (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := e.loadInputs(*income, *profile, rows); err != nil {
		return err
	}

	rec, err := e.app.Dashboard.Analyze(ctx)
	if err != nil {
		return err
	}
	printSummary(e.out, e.app.Dashboard.Summary())
	printResult(e.out, rec.Result)
	return nil
}

func cmdHistory(ctx context.Context, e *env, _ []string) error {
	records, err := e.app.Dashboard.History(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(e.out, "No analyses recorded yet")
		return nil
	}
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSAVED\tINCOME\tPROFILE\tEXPENSES\tTOTAL")
	for i, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
			i,
			r.SavedAt.Local().Format(time.DateTime),
			core.FormatAmount(r.Income),
			r.Profile,
			len(r.Expenses),
			core.Sum(r.Expenses).StringFixed(2))
	}
	return tw.Flush()
}

func cmdRestore(ctx context.Context, e *env, _ []string) error {
	rec, err := e.app.Dashboard.RestoreLatest(ctx)
	if err != nil {
		return err
	}
	snap := e.app.Finance.Snapshot()
	fmt.Fprintf(e.out, "Restored analysis from %s\n", rec.SavedAt.Local().Format(time.DateTime))
	fmt.Fprintf(e.out, "Income: %s  Profile: %s\n", snap.Income, snap.Profile)
	for _, r := range snap.Rows {
		fmt.Fprintf(e.out, "  %s = %s\n", r.Category, r.Amount)
	}
	printResult(e.out, rec.Result)
	return nil
}

func cmdRecurring(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("recurring", flag.ContinueOnError)
	var rows expenseFlags
	fs.Var(&rows, "expense", "Expense as Category=Amount (repeatable)")
	timeout := fs.Duration("timeout", 30*time.Second, "How long to wait for detection")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// Detection runs on the projection trigger once the rows settle.
	done := make(chan dashboard.RecurringView, 1)
	unsubscribe := e.app.Dashboard.OnRecurring(func(v dashboard.RecurringView) {
		if v.Analyzed || v.Err != nil {
			select {
			case done <- v:
			default:
			}
		}
	})
	defer unsubscribe()

	e.app.Finance.ReplaceRows(rows)
	if e.app.Derived.Current().Empty() {
		return dashboard.ErrNoExpenses
	}

	var view dashboard.RecurringView
	select {
	case view = <-done:
	case <-time.After(*timeout):
		return errors.New("timed out waiting for recurring detection")
	case <-ctx.Done():
		return ctx.Err()
	}
	if view.Err != nil {
		return view.Err
	}

	s := view.Summary
	if len(s.Recurring) == 0 {
		fmt.Fprintln(e.out, "No recurring expenses found")
	} else {
		tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CATEGORY\tAMOUNT\tFREQUENCY\tANNUAL")
		for _, r := range s.Recurring {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Category, money(r.Amount), r.Frequency, money(r.AnnualCost))
		}
		tw.Flush()
		fmt.Fprintf(e.out, "Monthly: %s  Annual: %s\n", money(s.TotalMonthly), money(s.TotalAnnual))
	}
	for _, tip := range s.Suggestions {
		fmt.Fprintf(e.out, "- %s\n", tip)
	}
	return nil
}

func cmdTrends(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("trends", flag.ContinueOnError)
	months := fs.Int("months", e.app.Config.TrendsMonths, "Number of months")
	refresh := fs.Bool("refresh", false, "Bypass the cache")
	if err := fs.Parse(args); err != nil {
		return err
	}

	t, err := e.app.Dashboard.Trends(ctx, *months, *refresh)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MONTH\tEXPENSES")
	for _, m := range t.Monthly {
		fmt.Fprintf(tw, "%s\t%s\n", dashboard.MonthLabel(m.Month), money(m.TotalExpenses))
	}
	tw.Flush()
	if len(t.Monthly) >= 2 {
		fmt.Fprintf(e.out, "Change vs previous month: %+.1f%%\n", t.Change)
	}

	fmt.Fprintln(e.out)
	tw = tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tAMOUNT\tSHARE")
	for _, c := range t.Categories {
		fmt.Fprintf(tw, "%s\t%s\t%.1f%%\n", c.Category, money(c.Amount), c.Percent)
	}
	return tw.Flush()
}

func cmdGoals(ctx context.Context, e *env, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	d := e.app.Dashboard

	switch sub {
	case "list":
		goals, err := d.Goals(ctx)
		if err != nil {
			return err
		}
		if len(goals) == 0 {
			fmt.Fprintln(e.out, "No goals yet")
			return nil
		}
		tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tSAVED\tTARGET\tPROGRESS\tDEADLINE")
		for _, g := range goals {
			deadline := "-"
			if g.Deadline != nil {
				deadline = *g.Deadline
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.0f%%\t%s\n",
				g.ID, g.Name, money(g.Current), money(g.Target), g.Progress, deadline)
		}
		return tw.Flush()

	case "add":
		fs := flag.NewFlagSet("goals add", flag.ContinueOnError)
		name := fs.String("name", "", "Goal name")
		target := fs.Float64("target", 0, "Target amount")
		current := fs.Float64("current", 0, "Amount saved so far")
		deadline := fs.String("deadline", "", "Deadline (YYYY-MM-DD)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		in := gateway.GoalInput{Name: *name, Target: *target, Current: *current}
		if *deadline != "" {
			in.Deadline = deadline
		}
		if err := d.CreateGoal(ctx, in); err != nil {
			return err
		}
		fmt.Fprintln(e.out, "Goal created")
		return nil

	case "update":
		fs := flag.NewFlagSet("goals update", flag.ContinueOnError)
		id := fs.String("id", "", "Goal id")
		name := fs.String("name", "", "New name")
		target := fs.String("target", "", "New target amount")
		current := fs.String("current", "", "New saved amount")
		deadline := fs.String("deadline", "", "New deadline (YYYY-MM-DD)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		var in gateway.GoalUpdate
		if *name != "" {
			in.Name = name
		}
		if *deadline != "" {
			in.Deadline = deadline
		}
		var err error
		if in.Target, err = optionalAmount("target", *target); err != nil {
			return err
		}
		if in.Current, err = optionalAmount("current", *current); err != nil {
			return err
		}
		if err := d.UpdateGoal(ctx, *id, in); err != nil {
			return err
		}
		fmt.Fprintln(e.out, "Goal updated")
		return nil

	case "delete":
		if len(args) != 1 {
			return errors.New("usage: finboard goals delete <id>")
		}
		if err := d.DeleteGoal(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(e.out, "Goal deleted")
		return nil

	case "suggest":
		fs := flag.NewFlagSet("goals suggest", flag.ContinueOnError)
		income := fs.String("income", "", "Monthly income")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return errors.New("usage: finboard goals suggest -income N <id>")
		}
		e.app.Finance.SetIncome(*income)
		s, err := d.GoalSuggestions(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		fmt.Fprintln(e.out, s)
		return nil
	}
	return fmt.Errorf("unknown goals command %q (list, add, update, delete, suggest)", sub)
}

func cmdChat(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	income := fs.String("income", "", "Monthly income for context")
	reset := fs.Bool("clear", false, "Clear the conversation")
	var rows expenseFlags
	fs.Var(&rows, "expense", "Expense as Category=Amount (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *reset {
		if err := e.app.Dashboard.ClearChat(ctx); err != nil {
			return err
		}
		fmt.Fprintln(e.out, "Chat cleared")
		return nil
	}
	if err := e.loadInputs(*income, "", rows); err != nil {
		return err
	}
	reply, err := e.app.Dashboard.Send(ctx, strings.Join(fs.Args(), " "))
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, reply.Content)
	return nil
}

func cmdImportPDF(ctx context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: finboard import-pdf <statement.pdf>")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := e.app.Dashboard.ImportStatement(ctx, filepath.Base(args[0]), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Imported %d rows\n", n)
	for _, r := range e.app.Finance.Snapshot().Rows {
		fmt.Fprintf(e.out, "  -expense %q\n", r.Category+"="+r.Amount)
	}
	return nil
}

func optionalAmount(field, v string) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, &core.ValidationError{Field: field, Message: "must be a number"}
	}
	return &f, nil
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func printSummary(w io.Writer, s dashboard.Summary) {
	fmt.Fprintf(w, "Income: %s  Expenses: %s  Savings: %s\n",
		money(s.Income), money(s.TotalExpenses), money(s.Savings))
	for _, t := range s.Totals {
		fmt.Fprintf(w, "  %-20s %s\n", t.Category, t.Amount.StringFixed(2))
	}
	fmt.Fprintln(w)
}

var resultSections = []struct{ key, title string }{
	{"expense_analysis", "Expense Analysis"},
	{"budget_plan", "Budget Plan"},
	{"investment_plan", "Investment Plan"},
	{"fraud_alerts", "Fraud Alerts"},
}

func printResult(w io.Writer, r core.AnalysisResult) {
	for _, s := range resultSections {
		text := strings.TrimSpace(r.Section(s.key))
		if text == "" {
			continue
		}
		fmt.Fprintf(w, "== %s ==\n%s\n\n", s.title, text)
	}
}
