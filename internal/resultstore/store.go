// Package resultstore persists finished parse results in an embedded
// DuckDB file so they survive job-map cleanup and restarts of the
// serving layer.
package resultstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/marcboeker/go-duckdb"

	"github.com/diaglog/backend/internal/models"
)

// Store is a DuckDB-backed result archive. Safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

// Options tunes the embedded database. Zero values fall back to the
// defaults.
type Options struct {
	MemoryLimit string // e.g. "256MB"
	Threads     int
}

// NewStore opens (or creates) the result database under dir.
func NewStore(dir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dir, "results.duckdb")

	if opts.MemoryLimit == "" {
		opts.MemoryLimit = "256MB"
	}
	if opts.Threads <= 0 {
		opts.Threads = 2
	}

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA memory_limit='%s'", opts.MemoryLimit),
			fmt.Sprintf("PRAGMA threads=%d", opts.Threads),
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS results (
			job_id     VARCHAR PRIMARY KEY,
			mode       VARCHAR NOT NULL,
			created_at BIGINT NOT NULL,
			cancelled  BOOLEAN NOT NULL,
			line_count INTEGER NOT NULL,
			payload    VARCHAR NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating results table: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// SaveResult serializes and stores one finished result.
func (s *Store) SaveResult(jobID string, result *models.ParseResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO results (job_id, mode, created_at, cancelled, line_count, payload)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		jobID, result.Mode, time.Now().UnixMilli(), result.Cancelled, result.LineCount, string(payload),
	)
	if err != nil {
		return fmt.Errorf("storing result for job %s: %w", jobID, err)
	}
	return nil
}

// GetResult loads a stored result by job id.
func (s *Store) GetResult(jobID string) (*models.ParseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload string
	err := s.db.QueryRow(`SELECT payload FROM results WHERE job_id = ?`, jobID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no result for job %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading result for job %s: %w", jobID, err)
	}

	var result models.ParseResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("decoding result for job %s: %w", jobID, err)
	}
	return &result, nil
}

// DeleteOlderThan removes results older than maxAge and reports how
// many rows went away.
func (s *Store) DeleteOlderThan(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM results WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
