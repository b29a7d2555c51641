// Package memory provides an in-memory store.Backend.
package memory

import (
	"context"
	"slices"
	"sync"
)

// =============================================================================
// MEMORY BACKEND - In-memory implementation (for testing/dev)
// =============================================================================

type Backend struct {
	mu    sync.RWMutex
	slots map[string][]byte
	err   error // returned by every Get and Put while set
}

func New() *Backend {
	return &Backend{slots: make(map[string][]byte)}
}

func (b *Backend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.err != nil {
		return nil, false, b.err
	}
	v, ok := b.slots[key]
	return slices.Clone(v), ok, nil
}

func (b *Backend) Put(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.slots[key] = slices.Clone(value)
	return nil
}

// Set stores a raw value even while Fail is in effect. Used to seed tests.
func (b *Backend) Set(key string, value []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slots[key] = slices.Clone(value)
}

// Fail makes every later Get and Put return err; nil clears it.
func (b *Backend) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

func (b *Backend) Close() error { return nil }
