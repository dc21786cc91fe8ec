package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/codesweep/codesweep/internal/finding"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS scan_cache (
	file         TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	plugin_key   TEXT NOT NULL,
	findings     TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	accessed_at  INTEGER NOT NULL,
	PRIMARY KEY (file, content_hash, plugin_key)
);
CREATE INDEX IF NOT EXISTS idx_scan_cache_accessed ON scan_cache(accessed_at);
`

// SQLiteStore persists cached findings across scans in a local SQLite
// database. Findings are stored as JSON per (file, hash, plugin) key;
// INSERT OR REPLACE makes Put idempotent. SQLite serializes writers on
// the same key, which is all the per-key atomicity the contract needs.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and initializes) the cache database at path,
// creating parent directories as needed. WAL mode keeps concurrent
// readers from blocking the writer.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging cache database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing cache schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, file, contentHash, pluginKey string) ([]finding.Finding, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT findings FROM scan_cache WHERE file = ? AND content_hash = ? AND plugin_key = ?`,
		file, contentHash, pluginKey,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}

	var findings []finding.Finding
	if err := json.Unmarshal([]byte(raw), &findings); err != nil {
		// A corrupt entry is treated as a miss; the next Put repairs it.
		return nil, false, nil
	}

	// Touch for LRU pruning; a failed touch does not invalidate the hit.
	_, _ = s.db.ExecContext(ctx,
		`UPDATE scan_cache SET accessed_at = ? WHERE file = ? AND content_hash = ? AND plugin_key = ?`,
		time.Now().Unix(), file, contentHash, pluginKey)

	return findings, true, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, file, contentHash, pluginKey string, findings []finding.Finding) error {
	raw, err := json.Marshal(findings)
	if err != nil {
		return fmt.Errorf("encoding findings: %w", err)
	}
	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO scan_cache (file, content_hash, plugin_key, findings, created_at, accessed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		file, contentHash, pluginKey, string(raw), now, now)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Stats summarizes the cache contents for the CLI.
type Stats struct {
	Entries      int
	OldestAccess time.Time
	NewestAccess time.Time
}

// Stats returns entry count and access-time bounds.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	var entries int
	var oldest, newest sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(accessed_at), MAX(accessed_at) FROM scan_cache`,
	).Scan(&entries, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("reading cache stats: %w", err)
	}
	st := &Stats{Entries: entries}
	if oldest.Valid {
		st.OldestAccess = time.Unix(oldest.Int64, 0)
	}
	if newest.Valid {
		st.NewestAccess = time.Unix(newest.Int64, 0)
	}
	return st, nil
}

// Prune removes entries not accessed within maxAge and returns how many
// rows were deleted. Pruning is housekeeping only: correctness never
// depends on it because keys encode content identity.
func (s *SQLiteStore) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM scan_cache WHERE accessed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned rows: %w", err)
	}
	return n, nil
}
