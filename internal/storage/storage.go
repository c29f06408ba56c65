package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bdougie/motionvec/internal/models"
)

// Storage defines the interface for storing per-frame classification results
type Storage interface {
	// AddResult adds a single frame result
	AddResult(ctx context.Context, result models.FrameResult) error

	// Flush ensures all pending results are saved
	Flush() error

	// Close flushes and releases the underlying file or database
	Close() error
}

// RunInfo describes the classification run a report belongs to.
type RunInfo struct {
	ID        string    `json:"id"`
	Input     string    `json:"input"`
	Threshold float64   `json:"threshold"`
	Seed      uint64    `json:"seed"`
	StartedAt time.Time `json:"started_at"`
}

// NewRunInfo stamps a run with a fresh ID and the current time.
func NewRunInfo(input string, threshold float64, seed uint64) RunInfo {
	return RunInfo{
		ID:        uuid.NewString(),
		Input:     input,
		Threshold: threshold,
		Seed:      seed,
		StartedAt: time.Now().UTC(),
	}
}

// Open creates a report at path. Paths ending in .db, .sqlite or .sqlite3 are
// SQLite databases; anything else is written as JSON.
func Open(ctx context.Context, path string, run RunInfo) (Storage, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		s, err := NewSQLiteStorage(ctx, path, run)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := NewStorage(path, run)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// report is the on-disk layout of a JSON report.
type report struct {
	Run    RunInfo              `json:"run"`
	Frames []models.FrameResult `json:"frames"`
}

// storageImpl keeps the report in memory and rewrites the JSON file on Flush
type storageImpl struct {
	report report
	dirty  bool
	mu     sync.Mutex
	path   string
}

// NewStorage creates a JSON report at path, replacing any previous report.
func NewStorage(path string, run RunInfo) (*storageImpl, error) {
	s := &storageImpl{
		report: report{Run: run, Frames: []models.FrameResult{}},
		path:   path,
	}
	if err := s.write(s.report); err != nil {
		return nil, err
	}
	return s, nil
}

// AddResult records a result. It reaches the file on the next Flush.
func (s *storageImpl) AddResult(ctx context.Context, result models.FrameResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.Frames = append(s.report.Frames, result)
	s.dirty = true
	return nil
}

// Flush writes the report to disk if results were added since the last write
func (s *storageImpl) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	if err := s.write(s.report); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Close flushes pending results. The file is not held open between writes.
func (s *storageImpl) Close() error {
	return s.Flush()
}

func (s *storageImpl) write(r report) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory for report: %v", err)
	}

	file, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// ReadReport loads a JSON report written by the JSON storage backend.
func ReadReport(path string) (report, error) {
	var r report
	data, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("failed to read report file: %w", err)
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return r, nil
}
