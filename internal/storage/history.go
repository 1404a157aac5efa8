package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"finboard/internal/core"
	"finboard/internal/log"

	_ "modernc.org/sqlite"
)

// HistoryRepository persists analysis records in SQLite, newest first,
// keeping at most capacity rows.
type HistoryRepository struct {
	db       *sql.DB
	capacity int
	logger   *log.Logger
}

func NewHistoryRepository(dbPath string, capacity int, logger *log.Logger) (*HistoryRepository, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("history capacity must be positive, got %d", capacity)
	}
	if logger == nil {
		logger = log.Default(log.ComponentStorage)
	}
	db, version, err := openHistoryDB(dbPath)
	if err != nil {
		return nil, err
	}
	logger = logger.WithComponent(log.ComponentStorage)
	logger.Debug("History database ready", "path", dbPath, "schema_version", version)

	return &HistoryRepository{
		db:       db,
		capacity: capacity,
		logger:   logger,
	}, nil
}

func (r *HistoryRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Append stores rec as the newest record and evicts the oldest ones past
// capacity in the same transaction.
func (r *HistoryRepository) Append(ctx context.Context, rec core.AnalysisRecord) error {
	expenses, err := json.Marshal(rec.Expenses)
	if err != nil {
		return fmt.Errorf("encode expenses: %w", err)
	}
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO analysis_history (id, saved_at, income, profile, expenses, result)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SavedAt.UTC().UnixNano(), rec.Income, string(rec.Profile), string(expenses), string(result))
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM analysis_history
		 WHERE seq NOT IN (SELECT seq FROM analysis_history ORDER BY seq DESC LIMIT ?)`,
		r.capacity)
	if err != nil {
		return fmt.Errorf("evict old records: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	evicted, _ := res.RowsAffected()
	r.logger.DebugContext(ctx, "Analysis record saved to SQLite",
		log.FieldRecordID, rec.ID,
		log.FieldExpenseCount, len(rec.Expenses),
		"evicted", evicted)
	return nil
}

// Latest returns the newest record. ok is false when the history is empty.
func (r *HistoryRepository) Latest(ctx context.Context) (core.AnalysisRecord, bool, error) {
	records, err := r.list(ctx, 1)
	if err != nil || len(records) == 0 {
		return core.AnalysisRecord{}, false, err
	}
	return records[0], true, nil
}

// All returns every record, newest first.
func (r *HistoryRepository) All(ctx context.Context) ([]core.AnalysisRecord, error) {
	return r.list(ctx, r.capacity)
}

func (r *HistoryRepository) list(ctx context.Context, limit int) ([]core.AnalysisRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, saved_at, income, profile, expenses, result
		 FROM analysis_history ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	records := make([]core.AnalysisRecord, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (core.AnalysisRecord, error) {
	var (
		rec      core.AnalysisRecord
		savedAt  int64
		profile  string
		expenses string
		result   string
	)
	if err := rows.Scan(&rec.ID, &savedAt, &rec.Income, &profile, &expenses, &result); err != nil {
		return rec, fmt.Errorf("scan record: %w", err)
	}
	rec.SavedAt = time.Unix(0, savedAt).UTC()
	rec.Profile = core.RiskProfile(profile)
	if err := json.Unmarshal([]byte(expenses), &rec.Expenses); err != nil {
		return rec, fmt.Errorf("decode expenses of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(result), &rec.Result); err != nil {
		return rec, fmt.Errorf("decode result of %s: %w", rec.ID, err)
	}
	if rec.Expenses == nil {
		rec.Expenses = []core.Expense{}
	}
	return rec, nil
}

// Count returns the number of stored records.
func (r *HistoryRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analysis_history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}
