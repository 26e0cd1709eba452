package web

import (
	"net/http"
	"time"
)

// DefaultUserAgent identifies this service to upstream APIs.
const DefaultUserAgent = "content-mcp/0.1 (+https://github.com/leonardcser/content-mcp)"

// userAgentRoundTripper sets the User-Agent header on every outgoing request.
type userAgentRoundTripper struct {
	wrapped   http.RoundTripper
	userAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone request to avoid mutating the caller's copy
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", rt.userAgent)
	return rt.wrapped.RoundTrip(clone)
}

// NewHTTPClient returns a client with the given per-attempt timeout whose
// requests carry userAgent.
func NewHTTPClient(userAgent string, timeout time.Duration) *http.Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &userAgentRoundTripper{
			wrapped:   http.DefaultTransport,
			userAgent: userAgent,
		},
	}
}
