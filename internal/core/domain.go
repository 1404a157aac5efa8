package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	RiskLow    RiskProfile = "Low risk"
	RiskMedium RiskProfile = "Medium risk"
	RiskHigh   RiskProfile = "High risk"
)

type (
	// RiskProfile is the investment risk appetite sent to the analysis backend.
	RiskProfile string

	// ExpenseRow is a raw expense input row. Both fields are kept as typed so
	// that an in-progress edit is never rejected.
	ExpenseRow struct {
		Category string `json:"category"`
		Amount   string `json:"amount"`
	}

	// Expense is a validated expense, derived from an ExpenseRow.
	Expense struct {
		Category string  `json:"category"`
		Amount   float64 `json:"amount"`
	}

	UserProfile struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		Name          string `json:"name,omitempty"`
		PictureURL    string `json:"picture,omitempty"`
		EmailVerified bool   `json:"email_verified"`
	}

	// AnalysisResult is the backend's analysis payload. It is stored and
	// replayed as-is.
	AnalysisResult struct {
		raw json.RawMessage
	}

	AnalysisRecord struct {
		ID       string         `json:"id"`
		Result   AnalysisResult `json:"result"`
		Expenses []Expense      `json:"expenses"`
		Income   float64        `json:"income"`
		Profile  RiskProfile    `json:"profile"`
		SavedAt  time.Time      `json:"saved_at"`
	}

	// Snapshot captures the validated inputs that produced an analysis.
	// SubmittedAt is when they were sent; zero means now.
	Snapshot struct {
		Income      float64
		Profile     RiskProfile
		Expenses    []Expense
		SubmittedAt time.Time
	}
)

var (
	ErrInvalidRiskProfile = errors.New("invalid risk profile")
	ErrEmptyResult        = errors.New("empty analysis result")
)

// Profiles lists the selectable risk profiles in display order.
func Profiles() []RiskProfile {
	return []RiskProfile{RiskLow, RiskMedium, RiskHigh}
}

// ParseRiskProfile accepts either the wire label ("Medium risk") or the
// short form ("medium").
func ParseRiskProfile(s string) (RiskProfile, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimSuffix(v, " risk")
	switch v {
	case "low":
		return RiskLow, nil
	case "medium":
		return RiskMedium, nil
	case "high":
		return RiskHigh, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRiskProfile, s)
}

func (p RiskProfile) Validate() error {
	switch p {
	case RiskLow, RiskMedium, RiskHigh:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidRiskProfile, string(p))
}

func (p RiskProfile) String() string {
	return string(p)
}

// NewAnalysisResult wraps a raw backend payload. The payload must be a JSON
// object.
func NewAnalysisResult(raw []byte) (AnalysisResult, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return AnalysisResult{}, ErrEmptyResult
	}
	if !json.Valid([]byte(trimmed)) || !strings.HasPrefix(trimmed, "{") {
		return AnalysisResult{}, fmt.Errorf("analysis result is not a json object")
	}
	return AnalysisResult{raw: json.RawMessage(trimmed)}, nil
}

// IsZero reports whether the result holds no payload.
func (r AnalysisResult) IsZero() bool {
	return len(r.raw) == 0
}

// Raw returns a copy of the stored payload.
func (r AnalysisResult) Raw() json.RawMessage {
	return append(json.RawMessage(nil), r.raw...)
}

// Section returns a top-level text section such as "budget_plan". Non-string
// sections are returned as their JSON text.
func (r AnalysisResult) Section(name string) string {
	if r.IsZero() {
		return ""
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(r.raw, &fields); err != nil {
		return ""
	}
	v, ok := fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	return string(v)
}

func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	if r.IsZero() {
		return []byte("null"), nil
	}
	return r.raw, nil
}

func (r *AnalysisResult) UnmarshalJSON(data []byte) error {
	if strings.TrimSpace(string(data)) == "null" {
		r.raw = nil
		return nil
	}
	r.raw = append(json.RawMessage(nil), data...)
	return nil
}

// Rows rebuilds raw input rows from validated expenses. Parsing the rows
// again yields the same expenses.
func Rows(expenses []Expense) []ExpenseRow {
	rows := make([]ExpenseRow, len(expenses))
	for i, e := range expenses {
		rows[i] = ExpenseRow{Category: e.Category, Amount: FormatAmount(e.Amount)}
	}
	return rows
}
