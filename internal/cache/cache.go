package cache

import (
	"bytes"
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("cache: not found")
	ErrExpired  = errors.New("cache: expired")
)

// Options configures a Memory store.
type Options struct {
	// DefaultTTL is used when Put is called with ttl <= 0.
	DefaultTTL time.Duration
}

// Memory is the process-local KV used by the content services. Entries live
// until their TTL elapses; nothing survives a restart.
type Memory struct {
	items *TTL[[]byte]
}

var (
	_ KV                = (*Memory)(nil)
	_ CompareAndDeleter = (*Memory)(nil)
)

// NewMemory creates an empty store.
func NewMemory(opts Options) *Memory {
	return &Memory{
		items: NewTTL[[]byte](TTLOptions{DefaultTTL: opts.DefaultTTL}),
	}
}

// Put stores a copy of value. A nil value is ignored so it reads back as a
// miss rather than as an empty hit.
func (m *Memory) Put(key string, value []byte, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	m.items.Set(key, bytes.Clone(value), ttl)
	return nil
}

// Get returns a copy of the cached value, ErrNotFound for unknown keys and
// ErrExpired the first time an elapsed entry is read.
func (m *Memory) Get(key string) ([]byte, error) {
	v, err := m.items.lookup(key)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(v), nil
}

// Delete removes a key.
func (m *Memory) Delete(key string) error {
	m.items.Delete(key)
	return nil
}

// CompareAndDelete removes key only if it still holds old. A reader that
// found a bad value uses it so a fresh concurrent Put survives.
func (m *Memory) CompareAndDelete(key string, old []byte) bool {
	return m.items.deleteIf(key, func(v []byte) bool { return bytes.Equal(v, old) })
}

// Clear drops every entry.
func (m *Memory) Clear() { m.items.Clear() }

// Len reports unexpired entries.
func (m *Memory) Len() int { return m.items.Len() }

// Sweep removes expired entries and returns how many were dropped.
func (m *Memory) Sweep() int { return m.items.Sweep() }

// Run starts the expiry janitor; it returns when ctx is done.
func (m *Memory) Run(ctx context.Context) { m.items.Run(ctx) }
