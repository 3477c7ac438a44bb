// Package stats keeps per-template render counters in SQLite.
//
// The pure-Go modernc.org/sqlite driver is used by default. Build with
// -tags cgo_sqlite to use mattn/go-sqlite3 instead.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/CTAG07/Neutral/pkg/templating"
)

const statsSchema = `
CREATE TABLE IF NOT EXISTS render_stats (
    path             TEXT PRIMARY KEY,
    total_renders    INTEGER NOT NULL DEFAULT 1,
    error_renders    INTEGER NOT NULL DEFAULT 0,
    redirect_renders INTEGER NOT NULL DEFAULT 0,
    last_status      INTEGER NOT NULL,
    first_seen       DATETIME NOT NULL,
    last_seen        DATETIME NOT NULL
);
`

// PathStats holds the counters of one template.
type PathStats struct {
	Path            string    `json:"path"`
	TotalRenders    int64     `json:"total_renders"`
	ErrorRenders    int64     `json:"error_renders"`
	RedirectRenders int64     `json:"redirect_renders"`
	LastStatus      int       `json:"last_status"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
}

// Summary provides a high-level overview of all recorded renders.
type Summary struct {
	TotalRenders    int64 `json:"total_renders"`
	ErrorRenders    int64 `json:"error_renders"`
	RedirectRenders int64 `json:"redirect_renders"`
	UniqueTemplates int64 `json:"unique_templates"`
}

// Store records renders. It satisfies ipc.Recorder.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens the SQLite database at dataSource. SQLite serializes writers, so
// the pool is limited to a single connection.
func Open(dataSource string) (*sql.DB, error) {
	db, err := openDB(dataSource)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driverName, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// SetupSchema creates the stats table if it does not exist.
func SetupSchema(db *sql.DB) error {
	_, err := db.Exec(statsSchema)
	return err
}

// NewStore creates a Store on db, creating the schema if needed.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if err := SetupSchema(db); err != nil {
		return nil, fmt.Errorf("failed to setup stats schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Record counts one render of path with the given status code.
func (s *Store) Record(ctx context.Context, path string, statusCode int) error {
	now := time.Now().UTC()
	errInc, redirectInc := 0, 0
	if statusCode >= http.StatusBadRequest {
		errInc = 1
	}
	if templating.IsRedirect(statusCode) {
		redirectInc = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	_, err = tx.ExecContext(ctx, `
        INSERT INTO render_stats (path, error_renders, redirect_renders, last_status, first_seen, last_seen)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(path) DO UPDATE SET
            total_renders = total_renders + 1,
            error_renders = error_renders + excluded.error_renders,
            redirect_renders = redirect_renders + excluded.redirect_renders,
            last_status = excluded.last_status,
            last_seen = excluded.last_seen
    `, path, errInc, redirectInc, statusCode, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert render_stats: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit stats transaction: %w", err)
	}
	return nil
}

// Summary returns totals over every template.
func (s *Store) Summary(ctx context.Context) (*Summary, error) {
	var sum Summary
	err := s.db.QueryRowContext(ctx, `
        SELECT COALESCE(SUM(total_renders), 0), COALESCE(SUM(error_renders), 0),
               COALESCE(SUM(redirect_renders), 0), COUNT(*)
        FROM render_stats
    `).Scan(&sum.TotalRenders, &sum.ErrorRenders, &sum.RedirectRenders, &sum.UniqueTemplates)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats summary: %w", err)
	}
	return &sum, nil
}

// Top returns the limit most rendered templates, most rendered first.
func (s *Store) Top(ctx context.Context, limit int) ([]PathStats, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT path, total_renders, error_renders, redirect_renders, last_status, first_seen, last_seen
        FROM render_stats ORDER BY total_renders DESC, path ASC LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top templates: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var results []PathStats
	for rows.Next() {
		var p PathStats
		if err = rows.Scan(&p.Path, &p.TotalRenders, &p.ErrorRenders, &p.RedirectRenders, &p.LastStatus, &p.FirstSeen, &p.LastSeen); err != nil {
			s.logger.Error("Failed to scan template stats", "error", err)
			continue
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
