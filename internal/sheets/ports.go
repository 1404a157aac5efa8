package sheets

import (
	"context"
	"time"
)

// AnalysisRow is one exported analysis summary, one spreadsheet row per
// recorded analysis.
type AnalysisRow struct {
	RecordID      string
	SavedAt       time.Time
	Income        float64
	Profile       string
	ExpenseCount  int
	TotalExpenses float64
	Savings       float64
	TopCategory   string
}

// Header is the column layout written by exporters that keep a header row.
var Header = []string{
	"Saved At", "Record ID", "Income", "Profile",
	"Expenses", "Total Expenses", "Savings", "Top Category",
}

// Values returns the row as spreadsheet cell values in Header order.
func (r AnalysisRow) Values() []any {
	return []any{
		r.SavedAt.UTC().Format(time.RFC3339),
		r.RecordID,
		r.Income,
		r.Profile,
		r.ExpenseCount,
		r.TotalExpenses,
		r.Savings,
		r.TopCategory,
	}
}

// Ports for outbound adapters.
type (
	HistoryExporter interface {
		// ExportAnalysis appends the row and returns a reference to where it
		// was written.
		ExportAnalysis(ctx context.Context, row AnalysisRow) (rowRef string, err error)
	}
)
