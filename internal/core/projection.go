package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Valid reports whether the row contributes to the validated projection.
func (r ExpenseRow) Valid() bool {
	_, ok := r.Expense()
	return ok
}

// Expense converts the row, reporting false when it is not valid.
func (r ExpenseRow) Expense() (Expense, bool) {
	if strings.TrimSpace(r.Category) == "" {
		return Expense{}, false
	}
	amount, err := ParseAmount(r.Amount)
	if err != nil {
		return Expense{}, false
	}
	return Expense{Category: r.Category, Amount: amount}, true
}

// Project returns the valid rows as expenses, preserving row order. The
// result is never nil.
func Project(rows []ExpenseRow) []Expense {
	out := make([]Expense, 0, len(rows))
	for _, r := range rows {
		if e, ok := r.Expense(); ok {
			out = append(out, e)
		}
	}
	return out
}

// Key returns a stable identity for a projection value; two projections are
// equal iff their keys are equal.
func Key(expenses []Expense) string {
	var b strings.Builder
	for _, e := range expenses {
		b.WriteString(strings.ReplaceAll(e.Category, "\x1f", " "))
		b.WriteByte('\x1f')
		b.WriteString(FormatAmount(e.Amount))
		b.WriteByte('\x1e')
	}
	return b.String()
}

// CategoryTotal is an amount aggregated by category name.
type CategoryTotal struct {
	Category string
	Amount   decimal.Decimal
}

// Totals aggregates expenses by category in order of first appearance, which
// drives chart series and color assignment.
func Totals(expenses []Expense) []CategoryTotal {
	index := make(map[string]int)
	var out []CategoryTotal
	for _, e := range expenses {
		amount := decimal.NewFromFloat(e.Amount)
		if i, ok := index[e.Category]; ok {
			out[i].Amount = out[i].Amount.Add(amount)
			continue
		}
		index[e.Category] = len(out)
		out = append(out, CategoryTotal{Category: e.Category, Amount: amount})
	}
	return out
}
