package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bdougie/motionvec/internal/models"
)

const batchSize = 10 // Number of results inserted per transaction

// SQLiteStorage writes frame results to a SQLite database in batches.
type SQLiteStorage struct {
	db      *sql.DB
	runID   string
	mu      sync.Mutex
	pending []models.FrameResult
}

// NewSQLiteStorage opens (or creates) the database at path and registers the run.
func NewSQLiteStorage(ctx context.Context, path string, run RunInfo) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO runs (id, input, threshold, seed, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Input, run.Threshold, int64(run.Seed), run.StartedAt.Format(time.RFC3339Nano))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register run: %w", err)
	}

	return &SQLiteStorage{db: db, runID: run.ID}, nil
}

// InitSchema creates the report tables if they don't exist
func InitSchema(ctx context.Context, db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS runs (
            id TEXT PRIMARY KEY,
            input TEXT NOT NULL,
            threshold REAL NOT NULL,
            seed INTEGER NOT NULL,
            started_at TEXT NOT NULL
        );

        CREATE TABLE IF NOT EXISTS frames (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
            frame INTEGER NOT NULL,
            vectors INTEGER NOT NULL,
            inliers INTEGER NOT NULL,
            outliers INTEGER NOT NULL,
            iterations INTEGER NOT NULL,
            status TEXT NOT NULL,
            homography TEXT,
            error TEXT,
            UNIQUE(run_id, frame)
        );

        CREATE INDEX IF NOT EXISTS idx_frames_run_id ON frames(run_id);
    `)
	if err != nil {
		return fmt.Errorf("failed to create report schema: %w", err)
	}
	return nil
}

// AddResult queues one frame result and writes the queue once it holds a full batch
func (s *SQLiteStorage) AddResult(ctx context.Context, result models.FrameResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, result)
	if len(s.pending) >= batchSize {
		return s.flush(ctx)
	}
	return nil
}

// Flush writes all queued results
func (s *SQLiteStorage) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush(context.Background())
}

// flush inserts the queued results in one transaction. The queue is cleared
// even when the insert fails so a bad row is reported once.
func (s *SQLiteStorage) flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	batch := s.pending
	s.pending = nil

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO frames
        (run_id, frame, vectors, inliers, outliers, iterations, status, homography, error)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, result := range batch {
		var homography sql.NullString
		if len(result.Homography) > 0 {
			encoded, err := json.Marshal(result.Homography)
			if err != nil {
				return fmt.Errorf("failed to encode homography: %w", err)
			}
			homography = sql.NullString{String: string(encoded), Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			s.runID, result.Frame, result.Vectors, result.Inliers, result.Outliers,
			result.Iterations, string(result.Status), homography, sql.NullString{String: result.Error, Valid: result.Error != ""})
		if err != nil {
			return fmt.Errorf("failed to store frame %d: %w", result.Frame, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit results: %w", err)
	}
	return nil
}

// Close writes queued results and closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	flushErr := s.Flush()
	if err := s.db.Close(); err != nil {
		return err
	}
	return flushErr
}

// FrameResults returns the stored results of the current run ordered by frame.
func (s *SQLiteStorage) FrameResults(ctx context.Context) ([]models.FrameResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT frame, vectors, inliers, outliers, iterations, status, homography, error
        FROM frames
        WHERE run_id = ?
        ORDER BY frame`,
		s.runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query frame results: %w", err)
	}
	defer rows.Close()

	var results []models.FrameResult
	for rows.Next() {
		var (
			result     models.FrameResult
			status     string
			homography sql.NullString
			errText    sql.NullString
		)
		if err := rows.Scan(&result.Frame, &result.Vectors, &result.Inliers, &result.Outliers,
			&result.Iterations, &status, &homography, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan frame result: %w", err)
		}
		result.Status = models.FrameStatus(status)
		result.Error = errText.String
		if homography.Valid {
			if err := json.Unmarshal([]byte(homography.String), &result.Homography); err != nil {
				return nil, fmt.Errorf("failed to decode homography for frame %d: %w", result.Frame, err)
			}
		}
		results = append(results, result)
	}

	return results, rows.Err()
}
