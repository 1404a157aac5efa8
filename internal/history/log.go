// Package history records completed analyses and restores the most recent
// one into the canonical finance state.
package history

import (
	"context"
	"errors"
	"slices"
	"sync"

	"finboard/internal/core"
)

// DefaultCapacity is the number of records kept.
const DefaultCapacity = 10

var ErrEmpty = errors.New("no analysis history")

// Log is an append-only, bounded, newest-first record list.
type Log interface {
	Append(ctx context.Context, rec core.AnalysisRecord) error
	// Latest returns the newest record; ok is false when there is none.
	Latest(ctx context.Context) (rec core.AnalysisRecord, ok bool, err error)
	All(ctx context.Context) ([]core.AnalysisRecord, error)
}

// MemoryLog keeps the history in process memory.
type MemoryLog struct {
	mu       sync.RWMutex
	capacity int
	records  []core.AnalysisRecord
}

func NewMemoryLog(capacity int) *MemoryLog {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryLog{capacity: capacity}
}

func (l *MemoryLog) Append(_ context.Context, rec core.AnalysisRecord) error {
	rec.Expenses = slices.Clone(rec.Expenses)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append([]core.AnalysisRecord{rec}, l.records...)
	if len(l.records) > l.capacity {
		l.records = l.records[:l.capacity]
	}
	return nil
}

func (l *MemoryLog) Latest(_ context.Context) (core.AnalysisRecord, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.records) == 0 {
		return core.AnalysisRecord{}, false, nil
	}
	return cloneRecord(l.records[0]), true, nil
}

func (l *MemoryLog) All(_ context.Context) ([]core.AnalysisRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]core.AnalysisRecord, len(l.records))
	for i, rec := range l.records {
		out[i] = cloneRecord(rec)
	}
	return out, nil
}

func cloneRecord(rec core.AnalysisRecord) core.AnalysisRecord {
	rec.Expenses = slices.Clone(rec.Expenses)
	return rec
}
