// Package history journals finished batches to sqlite so past runs can be
// listed later. Records are written once, after the pool reaches
// quiescence; nothing here feeds back into scheduling.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"multidl/internal/domain"
)

const (
	createBatchesTable = `
CREATE TABLE IF NOT EXISTS batches (
	id TEXT PRIMARY KEY,
	started_at DATETIME NOT NULL,
	elapsed_ms INTEGER NOT NULL DEFAULT 0,
	total_bytes INTEGER NOT NULL DEFAULT 0,
	completed INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0
);
`
	createOutcomesTable = `
CREATE TABLE IF NOT EXISTS outcomes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_id TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
	url TEXT NOT NULL,
	dest_path TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	bytes INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT ''
);
`
)

// Batch is one recorded run.
type Batch struct {
	ID         string
	StartedAt  time.Time
	Elapsed    time.Duration
	TotalBytes int64
	Completed  int
	Failed     int
	Outcomes   []Outcome
}

// Outcome is one task's terminal result within a batch.
type Outcome struct {
	URL      string
	DestPath string
	Status   string
	Bytes    int64
	Error    string
}

// Store persists batch records.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createBatchesTable); err != nil {
		return fmt.Errorf("create batches table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createOutcomesTable); err != nil {
		return fmt.Errorf("create outcomes table: %w", err)
	}
	return nil
}

// RecordBatch writes one finished batch and all its task outcomes. Returns
// the generated batch id.
func (s *Store) RecordBatch(ctx context.Context, startedAt time.Time, summary *domain.Summary, tasks []*domain.Task) (string, error) {
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin batch record: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO batches (id, started_at, elapsed_ms, total_bytes, completed, failed)
VALUES (?, ?, ?, ?, ?, ?)`,
		id, startedAt.UTC(), summary.Elapsed.Milliseconds(), summary.TotalBytes, summary.Completed, summary.Failed)
	if err != nil {
		return "", fmt.Errorf("insert batch: %w", err)
	}

	for _, task := range tasks {
		errMsg := ""
		if task.Err != nil {
			errMsg = task.Err.Error()
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO outcomes (batch_id, url, dest_path, status, bytes, error_message)
VALUES (?, ?, ?, ?, ?, ?)`,
			id, task.URL, task.DestPath, string(task.Status), task.BytesDownloaded, errMsg)
		if err != nil {
			return "", fmt.Errorf("insert outcome: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit batch record: %w", err)
	}
	return id, nil
}

// ListBatches returns the most recent batches with their outcomes, newest
// first.
func (s *Store) ListBatches(ctx context.Context, limit int) ([]Batch, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, started_at, elapsed_ms, total_bytes, completed, failed
FROM batches ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var (
			b         Batch
			elapsedMS int64
		)
		if err := rows.Scan(&b.ID, &b.StartedAt, &elapsedMS, &b.TotalBytes, &b.Completed, &b.Failed); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		b.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}

	for i := range batches {
		outcomes, err := s.listOutcomes(ctx, batches[i].ID)
		if err != nil {
			return nil, err
		}
		batches[i].Outcomes = outcomes
	}
	return batches, nil
}

func (s *Store) listOutcomes(ctx context.Context, batchID string) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT url, dest_path, status, bytes, error_message
FROM outcomes WHERE batch_id = ? ORDER BY id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var o Outcome
		if err := rows.Scan(&o.URL, &o.DestPath, &o.Status, &o.Bytes, &o.Error); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return outcomes, nil
}
