package cache

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultTTL applies when Set is called with ttl <= 0.
const DefaultTTL = time.Hour

// stopRetryInterval paces Stop calls while the janitor is still starting up.
const stopRetryInterval = 10 * time.Millisecond

// TTLOptions configures a TTL cache. Zero values select the defaults.
type TTLOptions struct {
	DefaultTTL time.Duration
}

// TTL is an in-memory key/value store where each entry expires ttl after it
// was last written. Reads never extend an entry's life. Expired entries are
// never returned; they are dropped on read, by Sweep and by the janitor Run
// starts. It is safe for concurrent use by multiple goroutines.
type TTL[V any] struct {
	// mu makes read-then-delete sequences atomic with respect to Set.
	mu    sync.Mutex
	items *ttlcache.Cache[string, V]
	ttl   time.Duration
}

// NewTTL creates an empty cache. The janitor is not started; call Run.
func NewTTL[V any](opts TTLOptions) *TTL[V] {
	ttl := opts.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TTL[V]{
		items: ttlcache.New[string, V](
			ttlcache.WithTTL[string, V](ttl),
			ttlcache.WithDisableTouchOnHit[string, V](),
		),
		ttl: ttl,
	}
}

// Get returns the value for key if it was set and has not expired.
func (c *TTL[V]) Get(key string) (V, bool) {
	v, err := c.lookup(key)
	return v, err == nil
}

// lookup returns ErrNotFound for unknown keys and ErrExpired when the entry
// elapsed; the expired entry is removed.
func (c *TTL[V]) lookup(key string) (V, error) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()

	item := c.items.Get(key)
	if item == nil {
		// ttlcache hides entries past their deadline without removing
		// them. Delete counts an eviction only when the key was present.
		before := c.items.Metrics().Evictions
		c.items.Delete(key)
		if c.items.Metrics().Evictions > before {
			return zero, ErrExpired
		}
		return zero, ErrNotFound
	}
	// ttlcache treats the deadline itself as still valid; an entry is
	// expired once its age reaches the ttl.
	if !time.Now().Before(item.ExpiresAt()) {
		c.items.Delete(key)
		return zero, ErrExpired
	}
	return item.Value(), nil
}

// Set stores value under key, replacing any previous entry and restarting its
// expiry window. Nil values are not stored, so a later Get reports a miss.
func (c *TTL[V]) Set(key string, value V, ttl time.Duration) {
	if isNil(value) {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Set(key, value, ttl)
}

// Delete removes key. Removing a missing key is a no-op.
func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Delete(key)
}

// deleteIf removes key only while its live value satisfies match. It reports
// whether an entry was removed.
func (c *TTL[V]) deleteIf(key string, match func(V) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	item := c.items.Get(key)
	if item == nil || !match(item.Value()) {
		return false
	}
	c.items.Delete(key)
	return true
}

// Clear removes every entry.
func (c *TTL[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.DeleteAll()
}

// Len reports the number of unexpired entries.
func (c *TTL[V]) Len() int {
	return c.items.Len()
}

// Sweep deletes all expired entries and returns how many were removed.
func (c *TTL[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	before := c.items.Metrics().Evictions
	c.items.DeleteExpired()
	return int(c.items.Metrics().Evictions - before)
}

// Run runs the expiry janitor until ctx is done. Without it, keys written
// once and never read again stay in memory.
func (c *TTL[V]) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.items.Start()
	}()

	<-ctx.Done()
	// Stop is ignored until Start has marked the janitor running.
	t := time.NewTicker(stopRetryInterval)
	defer t.Stop()
	for {
		c.items.Stop()
		select {
		case <-done:
			return
		case <-t.C:
		}
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
