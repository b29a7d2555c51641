/*
Package sqlite provides a SQLite-backed store.Backend.

PURPOSE:
  Holds the shop's document blobs (live, backup, quarantine) as rows of a
  single key/value table. The desktop app's default backend: one file next
  to the executable, no server.

KEY TABLES:
  blobs:         one row per slot, overwritten on every save
  blob_history:  append-only copy of every backup and quarantine write, so
                 an older pre-migration blob survives a later one. Listed
                 and restored through store.Archiver.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery, which matters since every mutation rewrites
    the whole document

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. The ledger has a single writer; the
  lock covers readers such as the export handler.

USAGE:
  backend, err := sqlite.New("./shop-ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer backend.Close()

  st := store.New(backend)

SEE ALSO:
  - store/store.go: Backend interface and the document lifecycle
  - store/pebble:   alternative embedded backend
  - store/memory:   in-memory backend for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/shop-ledger/store"
)

// Backend implements store.Backend using SQLite.
type Backend struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Backend, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection: an in-memory database is per connection
	db.SetMaxOpenConns(1)

	b := &Backend{db: db}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return b, nil
}

// Close closes the database connection.
func (b *Backend) Close() error {
	return b.db.Close()
}

// migrate creates the database schema.
func (b *Backend) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS blobs (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Append-only: backup and quarantine writes are never overwritten here
	CREATE TABLE IF NOT EXISTS blob_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL,
		value BLOB NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_blob_history_key
		ON blob_history(key, id);
	`
	_, err := b.db.Exec(schema)
	return err
}

// =============================================================================
// BLOB SLOTS (store.Backend interface)
// =============================================================================

func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var value []byte
	err := b.db.QueryRowContext(ctx, `SELECT value FROM blobs WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

func (b *Backend) Put(ctx context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO blobs (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, now)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if keepsHistory(key) {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO blob_history (key, value, created_at) VALUES (?, ?, ?)`, key, value, now)
		if err != nil {
			return fmt.Errorf("failed to append history for %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// keepsHistory reports whether writes to key are also appended to
// blob_history. The live document is rewritten on every mutation and is
// not.
func keepsHistory(key string) bool {
	return strings.HasSuffix(key, ":backup") || strings.HasSuffix(key, ":quarantine")
}

// =============================================================================
// HISTORY
// =============================================================================

// History returns the archived blobs for key, newest first. It makes the
// backend a store.Archiver.
func (b *Backend) History(ctx context.Context, key string, limit int) ([]store.ArchivedBlob, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, key, value, created_at FROM blob_history
		WHERE key = ? ORDER BY id DESC LIMIT ?
	`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []store.ArchivedBlob
	for rows.Next() {
		h, err := scanArchived(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Archived returns one archived blob by id.
func (b *Backend) Archived(ctx context.Context, id int64) (store.ArchivedBlob, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	row := b.db.QueryRowContext(ctx,
		`SELECT id, key, value, created_at FROM blob_history WHERE id = ?`, id)
	h, err := scanArchived(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ArchivedBlob{}, false, nil
	}
	if err != nil {
		return store.ArchivedBlob{}, false, fmt.Errorf("failed to read history %d: %w", id, err)
	}
	return h, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArchived(sc scanner) (store.ArchivedBlob, error) {
	var h store.ArchivedBlob
	var created string
	if err := sc.Scan(&h.ID, &h.Key, &h.Value, &created); err != nil {
		return h, err
	}
	h.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return h, nil
}
