// Package cache provides a disk-backed MediaInfo cache keyed by
// (absolute path, size, mtime), per spec §4.1/§6.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no cgo

	"github.com/markperdomo/videosentinel/internal/probe"
)

// Store is a SQLite-backed probe-result cache. A single table,
// media_cache, holds one row per absolute path.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the cache database at dbPath and
// ensures its schema exists.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("cache: create directory for %s: %w", dbPath, err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", dbPath, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: ping %s: %w", dbPath, err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: migrate %s: %w", dbPath, err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS media_cache (
		path_hash  TEXT PRIMARY KEY,
		path       TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		mtime_unix INTEGER NOT NULL,
		probe_json TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// keyFor hashes an absolute path to the cache's primary key.
func keyFor(absPath string) string {
	sum := sha256.Sum256([]byte(absPath))
	return hex.EncodeToString(sum[:])
}

// Get returns a cached MediaInfo for absPath, if a fresh entry exists. A
// "fresh" entry is one whose recorded size and mtime match the arguments
// exactly; any mismatch is treated as a miss and invalidates the stale row
// (spec §4.1: "any mismatch invalidates the cache entry").
func (s *Store) Get(ctx context.Context, absPath string, size int64, mtime time.Time) (*probe.MediaInfo, bool, error) {
	key := keyFor(absPath)

	var storedSize int64
	var storedMtime int64
	var probeJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT size_bytes, mtime_unix, probe_json FROM media_cache WHERE path_hash = ?`, key,
	).Scan(&storedSize, &storedMtime, &probeJSON)

	switch {
	case err == sql.ErrNoRows:
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("cache: query %s: %w", absPath, err)
	}

	if storedSize != size || storedMtime != mtime.Unix() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM media_cache WHERE path_hash = ?`, key)
		return nil, false, nil
	}

	var info probe.MediaInfo
	if err := json.Unmarshal([]byte(probeJSON), &info); err != nil {
		return nil, false, fmt.Errorf("cache: decode entry for %s: %w", absPath, err)
	}
	return &info, true, nil
}

// Put stores (or replaces) the cache entry for absPath.
func (s *Store) Put(ctx context.Context, absPath string, size int64, mtime time.Time, info *probe.MediaInfo) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("cache: encode entry for %s: %w", absPath, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO media_cache (path_hash, path, size_bytes, mtime_unix, probe_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path_hash) DO UPDATE SET
			path = excluded.path,
			size_bytes = excluded.size_bytes,
			mtime_unix = excluded.mtime_unix,
			probe_json = excluded.probe_json
	`, keyFor(absPath), absPath, size, mtime.Unix(), string(payload))
	if err != nil {
		return fmt.Errorf("cache: store entry for %s: %w", absPath, err)
	}
	return nil
}

// Invalidate removes any cache entry for absPath unconditionally. Used by
// callers that have just written to a path in the current run, since cache
// entries must never be consulted for those (spec §4.1).
func (s *Store) Invalidate(ctx context.Context, absPath string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM media_cache WHERE path_hash = ?`, keyFor(absPath))
	return err
}

// CachingProber wraps probe.Probe with a Store, returning cached results
// when fresh and populating the cache on miss.
type CachingProber struct {
	Store *Store

	// written tracks paths written-to during the current run so they are
	// never served from cache even if a stale row exists for them.
	written map[string]struct{}
}

// NewCachingProber constructs a CachingProber backed by store.
func NewCachingProber(store *Store) *CachingProber {
	return &CachingProber{Store: store, written: make(map[string]struct{})}
}

// MarkWritten excludes path from cache lookups for the remainder of the run.
func (p *CachingProber) MarkWritten(path string) {
	if absPath, err := filepath.Abs(path); err == nil {
		path = absPath
	}
	p.written[path] = struct{}{}
}

// Probe returns MediaInfo for path, consulting the cache first unless path
// was written to earlier in this run.
func (p *CachingProber) Probe(ctx context.Context, path string) (*probe.MediaInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cache: resolve absolute path for %s: %w", path, err)
	}

	stat, statErr := os.Stat(absPath)
	_, skip := p.written[absPath]

	if statErr == nil && !skip {
		if info, ok, err := p.Store.Get(ctx, absPath, stat.Size(), stat.ModTime()); err == nil && ok {
			return info, nil
		}
	}

	info, err := probe.Probe(path)
	if err != nil {
		return nil, err
	}

	if statErr == nil {
		_ = p.Store.Put(ctx, absPath, stat.Size(), stat.ModTime(), info)
	}
	return info, nil
}
