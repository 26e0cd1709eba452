package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/leonardcser/content-mcp/internal/logger"
)

// JSON is a typed view over a KV that stores values as JSON. Read failures of
// any kind are reported as misses; an entry that no longer decodes into V is
// deleted so the next caller refetches it.
type JSON[V any] struct {
	kv  KV
	ttl time.Duration
}

// NewJSON returns a view over kv whose writes default to ttl.
func NewJSON[V any](kv KV, ttl time.Duration) *JSON[V] {
	return &JSON[V]{kv: kv, ttl: ttl}
}

// Get decodes the value stored under key.
func (j *JSON[V]) Get(key string) (V, bool) {
	var zero V
	raw, err := j.kv.Get(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrExpired) {
			logger.Warnf("cache: get %q: %v", key, err)
		}
		return zero, false
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return zero, false
	}
	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		logger.Warnf("cache: evicting corrupt entry %q: %v", key, err)
		j.evict(key, raw)
		return zero, false
	}
	return v, true
}

// evict drops the undecodable raw value. Stores that support it only delete
// when raw is still current, so a concurrent Set is not lost.
func (j *JSON[V]) evict(key string, raw []byte) {
	if cd, ok := j.kv.(CompareAndDeleter); ok {
		cd.CompareAndDelete(key, raw)
		return
	}
	_ = j.kv.Delete(key)
}

// Set encodes value under key. ttl <= 0 uses the view's default. Nil values
// are skipped; encode and store failures are logged, never returned.
func (j *JSON[V]) Set(key string, value V, ttl time.Duration) {
	if isNil(value) {
		return
	}
	if ttl <= 0 {
		ttl = j.ttl
	}
	b, err := json.Marshal(value)
	if err != nil {
		logger.Warnf("cache: encode %q: %v", key, err)
		return
	}
	if err := j.kv.Put(key, b, ttl); err != nil {
		logger.Warnf("cache: put %q: %v", key, err)
	}
}

// Delete removes key from the underlying store.
func (j *JSON[V]) Delete(key string) {
	if err := j.kv.Delete(key); err != nil {
		logger.Warnf("cache: delete %q: %v", key, err)
	}
}
