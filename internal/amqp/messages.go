package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"finboard/internal/core"
)

// AnalysisRecordedMessage summarizes a saved analysis for consumers that
// export or audit the history. The full result stays in the local log.
type AnalysisRecordedMessage struct {
	RecordID      string    `json:"record_id"`
	SavedAt       time.Time `json:"saved_at"`
	Income        float64   `json:"income"`
	Profile       string    `json:"profile"`
	ExpenseCount  int       `json:"expense_count"`
	TotalExpenses float64   `json:"total_expenses"`
	TopCategory   string    `json:"top_category,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewAnalysisRecordedMessage builds the event for rec.
func NewAnalysisRecordedMessage(rec core.AnalysisRecord) *AnalysisRecordedMessage {
	msg := &AnalysisRecordedMessage{
		RecordID:      rec.ID,
		SavedAt:       rec.SavedAt,
		Income:        rec.Income,
		Profile:       string(rec.Profile),
		ExpenseCount:  len(rec.Expenses),
		TotalExpenses: core.Sum(rec.Expenses).InexactFloat64(),
		Timestamp:     time.Now().UTC(),
	}

	var top core.CategoryTotal
	for _, t := range core.Totals(rec.Expenses) {
		if t.Amount.GreaterThan(top.Amount) {
			top = t
		}
	}
	msg.TopCategory = top.Category
	return msg
}

// Savings is income left after the recorded expenses.
func (m *AnalysisRecordedMessage) Savings() float64 {
	return m.Income - m.TotalExpenses
}

func (m *AnalysisRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func AnalysisRecordedMessageFromJSON(data []byte) (*AnalysisRecordedMessage, error) {
	var msg AnalysisRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.RecordID == "" {
		return nil, fmt.Errorf("message has no record id")
	}
	return &msg, nil
}
