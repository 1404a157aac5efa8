package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"finboard/internal/core"
	"finboard/internal/log"
)

func newTestRepository(t *testing.T, capacity int) *HistoryRepository {
	t.Helper()
	repo, err := NewHistoryRepository(filepath.Join(t.TempDir(), "data", "history.db"), capacity, log.Discard())
	if err != nil {
		t.Fatalf("NewHistoryRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func record(t *testing.T, i int) core.AnalysisRecord {
	t.Helper()
	result, err := core.NewAnalysisResult([]byte(fmt.Sprintf(`{"budget_plan":"plan %d"}`, i)))
	if err != nil {
		t.Fatal(err)
	}
	return core.AnalysisRecord{
		ID:       fmt.Sprintf("rec-%d", i),
		Result:   result,
		Expenses: []core.Expense{{Category: "Rent", Amount: float64(1000 + i)}},
		Income:   5000,
		Profile:  core.RiskHigh,
		SavedAt:  time.Date(2026, 10, 1, 12, 0, i, 0, time.UTC),
	}
}

func TestHistoryRepositoryRoundTrip(t *testing.T) {
	repo := newTestRepository(t, 10)
	ctx := context.Background()

	if _, ok, err := repo.Latest(ctx); err != nil || ok {
		t.Fatalf("expected empty history, got ok=%v err=%v", ok, err)
	}

	want := record(t, 1)
	if err := repo.Append(ctx, want); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, ok, err := repo.Latest(ctx)
	if err != nil || !ok {
		t.Fatalf("Latest: ok=%v err=%v", ok, err)
	}
	if got.ID != want.ID || got.Income != want.Income || got.Profile != want.Profile || !got.SavedAt.Equal(want.SavedAt) {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if len(got.Expenses) != 1 || got.Expenses[0] != want.Expenses[0] {
		t.Errorf("expenses = %+v", got.Expenses)
	}
	if got.Result.Section("budget_plan") != "plan 1" {
		t.Errorf("result = %s", got.Result.Raw())
	}
}

func TestHistoryRepositoryEvictsOldest(t *testing.T) {
	repo := newTestRepository(t, 10)
	ctx := context.Background()

	for i := 1; i <= 11; i++ {
		if err := repo.Append(ctx, record(t, i)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	all, err := repo.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 10 {
		t.Fatalf("expected 10 records, got %d", len(all))
	}
	if all[0].ID != "rec-11" || all[9].ID != "rec-2" {
		t.Errorf("expected newest first without rec-1, got %s..%s", all[0].ID, all[9].ID)
	}
	if n, err := repo.Count(ctx); err != nil || n != 10 {
		t.Errorf("Count = %d, %v", n, err)
	}
}

func TestHistoryRepositoryPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	repo, err := NewHistoryRepository(path, 10, log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Append(ctx, record(t, 7)); err != nil {
		t.Fatal(err)
	}
	repo.Close()

	reopened, err := NewHistoryRepository(path, 10, log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	got, ok, err := reopened.Latest(ctx)
	if err != nil || !ok || got.ID != "rec-7" {
		t.Fatalf("Latest after reopen = %+v, %v, %v", got, ok, err)
	}
}

func TestHistoryRepositoryRejectsDuplicateID(t *testing.T) {
	repo := newTestRepository(t, 10)
	ctx := context.Background()

	if err := repo.Append(ctx, record(t, 1)); err != nil {
		t.Fatal(err)
	}
	if err := repo.Append(ctx, record(t, 1)); err == nil {
		t.Fatal("expected duplicate id to fail")
	}
	if n, _ := repo.Count(ctx); n != 1 {
		t.Errorf("failed append must not change the history, got %d", n)
	}
}

func TestNewHistoryRepositoryRejectsBadCapacity(t *testing.T) {
	if _, err := NewHistoryRepository(filepath.Join(t.TempDir(), "h.db"), 0, nil); err == nil {
		t.Fatal("expected error for zero capacity")
	}
}

func TestOpenHistoryDBMigratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	for i := 0; i < 2; i++ {
		db, version, err := openHistoryDB(path)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		if version != 1 {
			t.Errorf("open #%d: expected schema version 1, got %d", i+1, version)
		}
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM analysis_history`).Scan(&n); err != nil {
			t.Errorf("open #%d: query history table: %v", i+1, err)
		}
		db.Close()
	}
}
