package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finboard/internal/amqp"
	"finboard/internal/cache"
	"finboard/internal/log"
	"finboard/internal/metrics"
	"finboard/internal/sheets"
)

// seenTTL bounds how long a delivered record id is remembered. Redeliveries
// arrive within seconds; the window only needs to cover broker requeues.
const seenTTL = time.Hour

// ExportWorker appends recorded analyses to an external history sheet.
type ExportWorker struct {
	exporter sheets.HistoryExporter
	name     string
	seen     *cache.LRUCache[string]
	logger   *log.Logger
	metrics  *metrics.Metrics
}

// NewExportWorker creates a worker for exporter. name labels the exporter
// in logs and metrics.
func NewExportWorker(exporter sheets.HistoryExporter, name string, seen *cache.LRUCache[string], logger *log.Logger, m *metrics.Metrics) *ExportWorker {
	if seen == nil {
		seen = cache.NewLRUCache[string](1024, seenTTL)
	}
	if logger == nil {
		logger = log.Default(log.ComponentWorker)
	}
	return &ExportWorker{
		exporter: exporter,
		name:     name,
		seen:     seen,
		logger:   logger.WithComponent(log.ComponentWorker),
		metrics:  m,
	}
}

// HandleAnalysisRecorded exports one analysis.recorded message. Deliveries
// are at least once, so a record already exported by this process is
// acknowledged without writing a second row.
func (w *ExportWorker) HandleAnalysisRecorded(ctx context.Context, msg *amqp.AnalysisRecordedMessage) error {
	if msg == nil || msg.RecordID == "" {
		return errors.New("message without record id")
	}

	if ref, ok := w.seen.Get(msg.RecordID); ok {
		w.logger.DebugContext(ctx, "Skipping already exported record",
			log.FieldRecordID, msg.RecordID,
			"ref", ref)
		return nil
	}

	ref, err := w.exporter.ExportAnalysis(ctx, rowFromMessage(msg))
	w.metrics.RowExported(w.name, err)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to export analysis",
			log.NewFields().
				WithOperation(log.OpExport).
				WithErrorType(log.ErrorTypeNetwork).
				WithError(err).
				ToSlice()...)
		return fmt.Errorf("export analysis %s: %w", msg.RecordID, err)
	}
	w.seen.Set(msg.RecordID, ref)

	w.logger.InfoContext(ctx, "Analysis exported",
		log.FieldRecordID, msg.RecordID,
		log.FieldExpenseCount, msg.ExpenseCount,
		"exporter", w.name,
		"ref", ref)
	return nil
}

func rowFromMessage(msg *amqp.AnalysisRecordedMessage) sheets.AnalysisRow {
	return sheets.AnalysisRow{
		RecordID:      msg.RecordID,
		SavedAt:       msg.SavedAt,
		Income:        msg.Income,
		Profile:       msg.Profile,
		ExpenseCount:  msg.ExpenseCount,
		TotalExpenses: msg.TotalExpenses,
		Savings:       msg.Savings(),
		TopCategory:   msg.TopCategory,
	}
}
