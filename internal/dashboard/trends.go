package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"finboard/internal/gateway"
)

// CategoryShare is a category's spending over the trend window.
type CategoryShare struct {
	Category string
	Amount   float64
	// Percent of the window's total category spending.
	Percent float64
}

type Trends struct {
	Months     int
	Monthly    []gateway.MonthlyTrend
	Categories []CategoryShare
	// Change is the month-over-month change of the last two months in
	// percent. It is zero when fewer than two months are available or the
	// earlier month is zero.
	Change    float64
	FetchedAt time.Time
}

// Trends returns the monthly and category series for the last months
// months. Results are cached per user; refresh bypasses the cache.
func (d *Dashboard) Trends(ctx context.Context, months int, refresh bool) (Trends, error) {
	if months <= 0 {
		months = d.trendsMonths
	}
	d.mu.Lock()
	key := d.userID + ":" + strconv.Itoa(months)
	d.mu.Unlock()

	if !refresh {
		if t, ok := d.trends.Get(key); ok {
			return t, nil
		}
	}

	v, err, _ := d.flight.Do(key, func() (any, error) {
		t, err := d.fetchTrends(ctx, months)
		if err != nil {
			return Trends{}, err
		}
		d.trends.Set(key, t)
		return t, nil
	})
	if err != nil {
		return Trends{}, err
	}
	return v.(Trends), nil
}

func (d *Dashboard) fetchTrends(ctx context.Context, months int) (Trends, error) {
	var (
		monthly    []gateway.MonthlyTrend
		categories map[string]float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		monthly, err = d.api.MonthlyTrends(gctx, months)
		if err != nil {
			return fmt.Errorf("monthly trends: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		categories, err = d.api.CategoryTrends(gctx, months)
		if err != nil {
			return fmt.Errorf("category trends: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Trends{}, err
	}

	if monthly == nil {
		monthly = []gateway.MonthlyTrend{}
	}
	return Trends{
		Months:     months,
		Monthly:    monthly,
		Categories: shares(categories),
		Change:     monthOverMonth(monthly),
		FetchedAt:  time.Now(),
	}, nil
}

// shares orders categories by amount, largest first, and ties by name.
func shares(categories map[string]float64) []CategoryShare {
	total := decimal.Zero
	out := make([]CategoryShare, 0, len(categories))
	for name, amount := range categories {
		total = total.Add(decimal.NewFromFloat(amount))
		out = append(out, CategoryShare{Category: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Category < out[j].Category
	})
	if total.IsPositive() {
		hundred := decimal.NewFromInt(100)
		for i := range out {
			out[i].Percent = decimal.NewFromFloat(out[i].Amount).
				Mul(hundred).
				Div(total).
				Round(1).
				InexactFloat64()
		}
	}
	return out
}

func monthOverMonth(monthly []gateway.MonthlyTrend) float64 {
	if len(monthly) < 2 {
		return 0
	}
	prev := decimal.NewFromFloat(monthly[len(monthly)-2].TotalExpenses)
	last := decimal.NewFromFloat(monthly[len(monthly)-1].TotalExpenses)
	if prev.IsZero() {
		return 0
	}
	return last.Sub(prev).Mul(decimal.NewFromInt(100)).Div(prev).Round(1).InexactFloat64()
}

var monthNames = [...]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// MonthLabel renders a "2026-01" month as "Jan 26". Other input is
// returned unchanged.
func MonthLabel(month string) string {
	year, m, ok := strings.Cut(month, "-")
	if !ok || len(year) != 4 {
		return month
	}
	n, err := strconv.Atoi(m)
	if err != nil || n < 1 || n > 12 {
		return month
	}
	return monthNames[n-1] + " " + year[2:]
}
