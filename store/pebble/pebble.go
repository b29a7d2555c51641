// Package pebble provides a store.Backend on an embedded Pebble database.
package pebble

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/cockroachdb/pebble"
)

// Backend implements store.Backend using PebbleDB.
type Backend struct {
	db *pebble.DB
}

// New opens (or creates) the database directory dir.
func New(dir string) (*Backend, error) {
	opts := &pebble.Options{
		// a handful of multi-kilobyte values: the defaults are far too large
		MemTableSize: 4 << 20,
	}
	d, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &Backend{db: d}, nil
}

func (b *Backend) Close() error { return b.db.Close() }

func (b *Backend) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, closer, err := b.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pebble get %s: %w", key, err)
	}
	// v is only valid until closer is closed
	out := slices.Clone(v)
	if err := closer.Close(); err != nil {
		return nil, false, fmt.Errorf("pebble get %s: %w", key, err)
	}
	return out, true, nil
}

// Put returns once the write is synced to disk.
func (b *Backend) Put(_ context.Context, key string, value []byte) error {
	if err := b.db.Set([]byte(key), value, pebble.Sync); err != nil {
		return fmt.Errorf("pebble set %s: %w", key, err)
	}
	return nil
}
