package cache

import "time"

// KV defines the minimal key-value cache contract with TTL semantics.
// Values are opaque bytes; callers own the encoding.
// Implementations must be safe for concurrent use by multiple goroutines.
type KV interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
}

// CompareAndDeleter is implemented by stores that can delete a key only while
// it still holds a given value.
type CompareAndDeleter interface {
	CompareAndDelete(key string, old []byte) bool
}
