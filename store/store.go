/*
Package store owns the shop's single persisted Document.

PURPOSE:
  Loads, migrates, saves, exports and imports the Document. The Document is
  kept in memory as the source of truth; every commit rewrites the whole
  blob. Storage itself is a key/value Backend (SQLite, Pebble, memory).

KEYS:
  KeyDocument:   the live blob
  KeyBackup:     the most recent pre-migration, pre-import or pre-reset blob
  KeyQuarantine: the last blob that failed to decode

  Backends that implement Archiver also keep every earlier backup, which
  BackupHistory lists and RestoreArchived brings back.

LOAD STATES:
  absent             -> fresh default document, saved
  current version    -> decoded, ids repaired
  legacy version     -> backed up, migrated, saved, report kept for the UI
  newer version      -> quarantined, default document
  undecodable        -> quarantined, default document
  quarantine fails   -> default document in memory, live blob left as is

  Load never returns a partially decoded document.

FAILURE POLICY:
  Save reports success as a bool and logs the cause; it never panics and
  never leaves the in-memory document out of step with what callers see.

SEE ALSO:
  - codec.go:               blob encoding
  - ledger/migrate.go:      the pure legacy -> current rebuild
  - store/sqlite, store/pebble, store/memory: backends
*/
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/warp/shop-ledger/ledger"
)

const (
	KeyDocument   = "shop-ledger:document"
	KeyBackup     = "shop-ledger:backup"
	KeyQuarantine = "shop-ledger:quarantine"
)

// Backend is a durable key/value slot store.
type Backend interface {
	// Get returns the value under key. ok is false if the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// ErrNoHistory is returned by the history operations when the backend keeps
// only the latest backup.
var ErrNoHistory = errors.New("backend keeps no backup history")

// ArchivedBlob is an earlier backup or quarantine blob.
type ArchivedBlob struct {
	ID        int64     `json:"id"`
	Key       string    `json:"key"`
	Value     []byte    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// Archiver is implemented by backends that keep every backup and
// quarantine write, not only the latest one.
type Archiver interface {
	// History lists the blobs archived under key, newest first. A limit
	// of zero or less means the backend's default.
	History(ctx context.Context, key string, limit int) ([]ArchivedBlob, error)
	Archived(ctx context.Context, id int64) (ArchivedBlob, bool, error)
}

// Observer receives persistence outcomes, e.g. for metrics.
type Observer interface {
	ObserveSave(ok bool)
	ObserveLoadFallback()
	ObserveMigration(report ledger.MigrationReport)
}

type nopObserver struct{}

func (nopObserver) ObserveSave(bool)                        {}
func (nopObserver) ObserveLoadFallback()                    {}
func (nopObserver) ObserveMigration(ledger.MigrationReport) {}

// =============================================================================
// STORE
// =============================================================================

type Store struct {
	mu       sync.RWMutex
	backend  Backend
	doc      *ledger.Document
	report   *ledger.MigrationReport
	defaults ledger.Defaults
	now      func() time.Time
	loc      *time.Location
	observer Observer
}

type Option func(*Store)

// WithDefaults sets the credentials of a fresh or migrated document.
func WithDefaults(d ledger.Defaults) Option { return func(s *Store) { s.defaults = d } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithLocation sets the shop's time zone, used to read legacy timestamps
// that carry no offset.
func WithLocation(loc *time.Location) Option { return func(s *Store) { s.loc = loc } }

// WithObserver reports saves, fallbacks and migrations.
func WithObserver(o Observer) Option { return func(s *Store) { s.observer = o } }

// New returns a store over b. Call Load before use.
func New(b Backend, opts ...Option) *Store {
	s := &Store{
		backend:  b,
		now:      time.Now,
		loc:      time.Local,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	return s
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Document returns the in-memory document. Callers must not modify it.
func (s *Store) Document() *ledger.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.doc == nil {
		return ledger.NewDocument(s.now(), s.defaults)
	}
	return s.doc
}

// Commit replaces the in-memory document and persists it. The in-memory
// replacement happens even when the write fails.
func (s *Store) Commit(ctx context.Context, doc *ledger.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	return s.saveLocked(ctx)
}

// Save persists the in-memory document after stamping lastModified.
func (s *Store) Save(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx) == nil
}

func (s *Store) saveLocked(ctx context.Context) error {
	if s.doc == nil {
		return errors.New("no document loaded")
	}
	s.doc.Metadata.LastModified = s.now()
	blob, err := Encode(s.doc)
	if err == nil {
		err = s.backend.Put(ctx, KeyDocument, blob)
	}
	s.observer.ObserveSave(err == nil)
	if err != nil {
		log.Printf("[Store] ERROR: save failed: %v", err)
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

// =============================================================================
// LOAD
// =============================================================================

// Load reads the live blob and makes it the in-memory document, migrating
// or falling back as needed. It always ends with a usable document.
func (s *Store) Load(ctx context.Context) *ledger.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)
	return s.doc
}

func (s *Store) loadLocked(ctx context.Context) {
	blob, ok, err := s.backend.Get(ctx, KeyDocument)
	if err != nil {
		// Unreadable storage: run on a default document but do not
		// overwrite what may still be recoverable.
		log.Printf("[Store] ERROR: read failed, starting from an empty document: %v", err)
		s.observer.ObserveLoadFallback()
		s.doc = ledger.NewDocument(s.now(), s.defaults)
		return
	}
	if !ok {
		log.Printf("[Store] no saved document, starting fresh")
		s.doc = ledger.NewDocument(s.now(), s.defaults)
		_ = s.saveLocked(ctx)
		return
	}

	doc, legacy, err := s.decode(blob)
	if err != nil {
		log.Printf("[Store] ERROR: saved document unusable, falling back to an empty one: %v", err)
		s.observer.ObserveLoadFallback()
		s.doc = ledger.NewDocument(s.now(), s.defaults)
		if qerr := s.backend.Put(ctx, KeyQuarantine, blob); qerr != nil {
			// the live slot holds the only copy; leave it until the next commit
			log.Printf("[Store] WARN: could not quarantine unusable document, not overwriting it: %v", qerr)
			return
		}
		_ = s.saveLocked(ctx)
		return
	}
	if legacy == nil {
		s.doc = doc
		return
	}

	if berr := s.backend.Put(ctx, KeyBackup, blob); berr != nil {
		log.Printf("[Store] WARN: pre-migration backup failed, migrating anyway: %v", berr)
	}
	migrated, report := ledger.Migrate(legacy, s.now().In(s.loc), s.defaults)
	log.Printf("[Store] %s", report.Summary())
	s.observer.ObserveMigration(report)
	s.doc = migrated
	s.report = &report
	_ = s.saveLocked(ctx)
}

// decode turns a blob into a current document. For a legacy blob it
// returns the probed map instead, for the caller to migrate.
func (s *Store) decode(blob []byte) (*ledger.Document, map[string]any, error) {
	raw, err := Decode(blob)
	if err != nil {
		return nil, nil, err
	}
	probed, err := probe(raw)
	if err != nil {
		return nil, nil, err
	}
	switch v := ledger.DocumentVersion(probed); {
	case v > ledger.CurrentVersion:
		return nil, nil, fmt.Errorf("%w: %d", ledger.ErrUnsupportedVersion, v)
	case v < ledger.CurrentVersion:
		return nil, probed, nil
	}

	var doc ledger.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if n := doc.RepairIDs(); n > 0 {
		log.Printf("[Store] WARN: repaired %d missing or duplicate ids", n)
	}
	doc.Settings.BackfillPasswords(s.defaults)
	return &doc, nil, nil
}

// TakeMigrationReport returns the report of a migration performed by the
// last Load, once.
func (s *Store) TakeMigrationReport() (ledger.MigrationReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report == nil {
		return ledger.MigrationReport{}, false
	}
	r := *s.report
	s.report = nil
	return r, true
}

// =============================================================================
// BACKUP, EXPORT, IMPORT
// =============================================================================

// RestoreFromBackup promotes the backup blob to live and reloads. A legacy
// backup is migrated again by the reload.
func (s *Store) RestoreFromBackup(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok, err := s.backend.Get(ctx, KeyBackup)
	if err != nil {
		return false, fmt.Errorf("read backup: %w", err)
	}
	if !ok || len(blob) == 0 {
		return false, ledger.ErrNoBackup
	}
	if err := s.backend.Put(ctx, KeyDocument, blob); err != nil {
		return false, fmt.Errorf("promote backup: %w", err)
	}
	s.loadLocked(ctx)
	return true, nil
}

// BackupHistory lists earlier backups, newest first.
func (s *Store) BackupHistory(ctx context.Context, limit int) ([]ArchivedBlob, error) {
	a, ok := s.backend.(Archiver)
	if !ok {
		return nil, ErrNoHistory
	}
	return a.History(ctx, KeyBackup, limit)
}

// RestoreArchived promotes an earlier backup to live and reloads, like
// RestoreFromBackup. The current document goes to the backup slot first, so
// the restore can itself be undone. found is false for an unknown id or an
// archived blob that is not a backup.
func (s *Store) RestoreArchived(ctx context.Context, id int64) (found bool, err error) {
	a, ok := s.backend.(Archiver)
	if !ok {
		return false, ErrNoHistory
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok, err := a.Archived(ctx, id)
	if err != nil {
		return false, fmt.Errorf("read archived backup: %w", err)
	}
	if !ok || blob.Key != KeyBackup || len(blob.Value) == 0 {
		return false, nil
	}
	s.backupLocked(ctx, "pre-restore")
	if err := s.backend.Put(ctx, KeyDocument, blob.Value); err != nil {
		return false, fmt.Errorf("promote archived backup: %w", err)
	}
	s.loadLocked(ctx)
	return true, nil
}

// backupLocked copies the in-memory document to the backup slot. A failure
// is logged and does not stop the caller.
func (s *Store) backupLocked(ctx context.Context, why string) {
	if s.doc == nil {
		return
	}
	current, err := Encode(s.doc)
	if err == nil {
		err = s.backend.Put(ctx, KeyBackup, current)
	}
	if err != nil {
		log.Printf("[Store] WARN: %s backup failed: %v", why, err)
	}
}

// Reset replaces the live document with an empty one. The current blob is
// kept in the backup slot, and the license is kept.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := ledger.NewDocument(s.now(), s.defaults)
	s.backupLocked(ctx, "pre-reset")
	if s.doc != nil {
		doc.License = s.doc.License
	}
	s.doc = doc
	return s.saveLocked(ctx)
}

// Export returns the live document as a blob without its license.
func (s *Store) Export() ([]byte, error) {
	doc := s.Document().Clone()
	doc.License = nil
	return Encode(doc)
}

// Import replaces the live document with an exported blob. The current
// blob is kept in the backup slot, and this installation's license is
// kept whatever the import carries. A legacy import is migrated.
func (s *Store) Import(ctx context.Context, blob []byte) (*ledger.MigrationReport, error) {
	doc, legacy, err := s.decode(blob)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	var report *ledger.MigrationReport
	if legacy != nil {
		migrated, r := ledger.Migrate(legacy, s.now().In(s.loc), s.defaults)
		s.observer.ObserveMigration(r)
		doc, report = migrated, &r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.backupLocked(ctx, "pre-import")
	if s.doc != nil {
		doc.License = s.doc.License
	} else {
		doc.License = nil
	}
	s.doc = doc
	if err := s.saveLocked(ctx); err != nil {
		return report, err
	}
	return report, nil
}
