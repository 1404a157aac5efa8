package core

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a user-typed amount. It accepts plain and exponent
// notation; the result must be finite and non-negative.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &ValidationError{Field: "amount", Message: "amount is required"}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, &ValidationError{Field: "amount", Message: "amount must be a number"}
	}
	if d.IsNegative() {
		return 0, &ValidationError{Field: "amount", Message: "amount cannot be negative"}
	}
	f := d.InexactFloat64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, &ValidationError{Field: "amount", Message: "amount is out of range"}
	}
	return f, nil
}

// ParseIncome parses the monthly income field with the same rules as
// ParseAmount.
func ParseIncome(s string) (float64, error) {
	v, err := ParseAmount(s)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return 0, &ValidationError{Field: "income", Message: strings.Replace(ve.Message, "amount", "income", 1)}
		}
		return 0, err
	}
	return v, nil
}

// FormatAmount renders an amount in the shortest form that parses back to
// the same value.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Sum adds amounts without accumulating binary rounding error.
func Sum(expenses []Expense) decimal.Decimal {
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(decimal.NewFromFloat(e.Amount))
	}
	return total
}
