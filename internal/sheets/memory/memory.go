package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ports "finboard/internal/sheets"
)

// Exporter keeps exported rows in memory. A record exported twice keeps
// its first row and returns the same reference.
type Exporter struct {
	mu   sync.Mutex
	rows []ports.AnalysisRow
	refs map[string]string
}

var _ ports.HistoryExporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{refs: make(map[string]string)}
}

func (e *Exporter) ExportAnalysis(_ context.Context, row ports.AnalysisRow) (string, error) {
	if row.RecordID == "" {
		return "", errors.New("record id is required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if ref, ok := e.refs[row.RecordID]; ok {
		return ref, nil
	}
	e.rows = append(e.rows, row)
	ref := fmt.Sprintf("mem:%d", len(e.rows))
	e.refs[row.RecordID] = ref
	return ref, nil
}

// Rows returns a copy of the exported rows in export order.
func (e *Exporter) Rows() []ports.AnalysisRow {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ports.AnalysisRow(nil), e.rows...)
}
