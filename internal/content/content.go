// Package content fetches the site's syndicated content (newsletter issues,
// podcast episodes, YouTube videos) from upstream providers. Every read goes
// cache first; misses are fetched through a retrying HTTP client, reshaped and
// stored for the configured TTL.
package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/leonardcser/content-mcp/internal/cache"
	"github.com/leonardcser/content-mcp/internal/logger"
)

// DefaultTTL is how long upstream payloads are reused.
const DefaultTTL = time.Hour

var (
	ErrNotConfigured     = errors.New("content: upstream not configured")
	ErrNotFound          = errors.New("content: no items found")
	ErrInvalidEpisode    = errors.New("content: invalid podcast episode data")
	ErrMissingEmail      = errors.New("content: email is required")
	ErrInvalidEmail      = errors.New("content: email address is invalid")
	ErrAlreadySubscribed = errors.New("content: email is already subscribed")
)

// UpstreamError is a non-2xx response from a provider.
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.StatusCode, e.Body)
}

const maxErrorBody = 4 << 10

func newUpstreamError(service string, resp *http.Response) *UpstreamError {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &UpstreamError{Service: service, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

// cached serves key from view or, on a miss, calls fetch and stores its result.
// Concurrent misses on the same key each call fetch.
func cached[V any](ctx context.Context, view *cache.JSON[V], key string, ttl time.Duration, fetch func(context.Context) (V, error)) (V, error) {
	if v, ok := view.Get(key); ok {
		logger.Debugf("cache hit %s", key)
		return v, nil
	}
	logger.Debugf("cache miss %s", key)
	v, err := fetch(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	view.Set(key, v, ttl)
	return v, nil
}

func ok2xx(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
