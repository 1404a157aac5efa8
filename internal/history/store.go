package history

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"finboard/internal/core"
	"finboard/internal/log"
	"finboard/internal/metrics"
)

// Publisher announces new records to other processes.
type Publisher interface {
	PublishAnalysisRecorded(ctx context.Context, rec core.AnalysisRecord) error
}

// Restorer is the canonical state a record is restored into.
type Restorer interface {
	Restore(income string, profile core.RiskProfile, rows []core.ExpenseRow) error
}

type Store struct {
	log       Log
	backend   string
	publisher Publisher
	logger    *log.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	newID     func() string
}

type Option func(*Store)

// WithBackend names the log implementation in logs and metrics.
func WithBackend(name string) Option {
	return func(s *Store) { s.backend = name }
}

func WithPublisher(p Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger.WithComponent(log.ComponentHistory)
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(l Log, opts ...Option) *Store {
	s := &Store{
		log:     l,
		backend: "memory",
		logger:  log.Default(log.ComponentHistory),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record saves the result of an analysis together with the inputs that
// produced it. Publishing the event is best effort.
func (s *Store) Record(ctx context.Context, result core.AnalysisResult, snap core.Snapshot) (core.AnalysisRecord, error) {
	if result.IsZero() {
		return core.AnalysisRecord{}, core.ErrEmptyResult
	}

	savedAt := snap.SubmittedAt
	if savedAt.IsZero() {
		savedAt = s.now()
	}
	rec := core.AnalysisRecord{
		ID:       s.newID(),
		Result:   result,
		Expenses: slices.Clone(snap.Expenses),
		Income:   snap.Income,
		Profile:  snap.Profile,
		SavedAt:  savedAt.UTC(),
	}
	if rec.Expenses == nil {
		rec.Expenses = []core.Expense{}
	}

	if err := s.log.Append(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "Failed to record analysis",
			log.NewFields().
				WithOperation(log.OpRecord).
				WithErrorType(log.ErrorTypeDatabase).
				WithError(err).
				ToSlice()...)
		return core.AnalysisRecord{}, fmt.Errorf("append history: %w", err)
	}
	s.metrics.HistoryRecorded(s.backend)

	s.logger.InfoContext(ctx, "Analysis recorded",
		log.FieldRecordID, rec.ID,
		log.FieldExpenseCount, len(rec.Expenses),
		"backend", s.backend)

	if s.publisher != nil {
		err := s.publisher.PublishAnalysisRecorded(ctx, rec)
		s.metrics.EventPublished(err)
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to publish analysis event",
				log.NewFields().
					WithOperation(log.OpPublish).
					WithError(err).
					ToSlice()...)
		}
	}
	return rec, nil
}

// Now reads the store clock.
func (s *Store) Now() time.Time {
	return s.now()
}

func (s *Store) Latest(ctx context.Context) (core.AnalysisRecord, bool, error) {
	return s.log.Latest(ctx)
}

func (s *Store) All(ctx context.Context) ([]core.AnalysisRecord, error) {
	return s.log.All(ctx)
}

// RestoreLatest replaces target's income, profile and rows with those of
// the newest record and returns it. The previous rows are discarded.
func (s *Store) RestoreLatest(ctx context.Context, target Restorer) (core.AnalysisRecord, error) {
	rec, ok, err := s.log.Latest(ctx)
	if err != nil {
		return core.AnalysisRecord{}, fmt.Errorf("read latest analysis: %w", err)
	}
	if !ok {
		return core.AnalysisRecord{}, ErrEmpty
	}

	profile := rec.Profile
	if profile.Validate() != nil {
		profile = core.RiskMedium
	}
	if err := target.Restore(core.FormatAmount(rec.Income), profile, core.Rows(rec.Expenses)); err != nil {
		return core.AnalysisRecord{}, fmt.Errorf("restore analysis %s: %w", rec.ID, err)
	}

	s.logger.InfoContext(ctx, "Analysis restored",
		log.FieldRecordID, rec.ID,
		log.FieldExpenseCount, len(rec.Expenses),
		log.FieldOperation, log.OpRestore)
	return rec, nil
}
