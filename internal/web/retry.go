package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/leonardcser/content-mcp/internal/logger"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second

	// maxRetryAfter caps what a server can ask us to wait.
	maxRetryAfter = 24 * time.Hour
)

// secretParams are query parameters whose values never reach logs or errors.
var secretParams = []string{"key", "api_key", "apikey", "access_token", "token"}

// Doer issues a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function (such as RoundTripper.RoundTrip) to Doer.
type DoerFunc func(req *http.Request) (*http.Response, error)

func (f DoerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

// RetryPolicy bounds how a RetryClient retries. MaxRetries is the number of
// extra attempts after the first; BaseDelay is the fixed wait between them
// when the server does not say otherwise.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy returns three retries two seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: DefaultMaxRetries, BaseDelay: DefaultRetryDelay}
}

// SleepFunc waits for d or until ctx is done, whichever comes first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RateLimitFunc reports whether a completed response is a provider-specific
// rate limit or quota signal. 429 is always treated as one.
type RateLimitFunc func(resp *http.Response) bool

// RetryClient performs a request and transparently retries transient failures:
// transport errors and rate-limited responses. Every retry, whatever its
// cause, spends from one budget. Other responses are returned untouched.
type RetryClient struct {
	doer        Doer
	policy      RetryPolicy
	sleep       SleepFunc
	rateLimited RateLimitFunc
	now         func() time.Time
}

// RetryOption customizes a RetryClient.
type RetryOption func(*RetryClient)

// WithPolicy replaces the default retry policy.
func WithPolicy(p RetryPolicy) RetryOption {
	return func(c *RetryClient) { c.policy = p }
}

// WithSleep replaces the timer-based wait, mostly for tests.
func WithSleep(fn SleepFunc) RetryOption {
	return func(c *RetryClient) { c.sleep = fn }
}

// WithRateLimitDetector adds a check for rate limits that do not use 429.
func WithRateLimitDetector(fn RateLimitFunc) RetryOption {
	return func(c *RetryClient) { c.rateLimited = fn }
}

// WithClock overrides the clock used to resolve HTTP-date Retry-After values.
func WithClock(now func() time.Time) RetryOption {
	return func(c *RetryClient) { c.now = now }
}

// NewRetryClient wraps doer. A nil doer uses http.DefaultClient.
func NewRetryClient(doer Doer, opts ...RetryOption) *RetryClient {
	if doer == nil {
		doer = http.DefaultClient
	}
	c := &RetryClient{
		doer:   doer,
		policy: DefaultRetryPolicy(),
		sleep:  sleepContext,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy.MaxRetries < 0 {
		c.policy.MaxRetries = 0
	}
	return c
}

// Policy returns the client's retry policy.
func (c *RetryClient) Policy() RetryPolicy { return c.policy }

// Do sends req with the client's full retry budget.
func (c *RetryClient) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithRetries(req, c.policy.MaxRetries)
}

// DoWithRetries sends req, allowing at most retries additional attempts.
//
// A transport error is retried after BaseDelay and returned once the budget
// is spent. A rate-limited response is retried after its Retry-After delay
// (or BaseDelay) and returned as-is once the budget is spent. Any other
// response ends the loop immediately. Cancelling the request context aborts
// a pending wait.
func (c *RetryClient) DoWithRetries(req *http.Request, retries int) (*http.Response, error) {
	ctx := req.Context()
	if retries < 0 {
		retries = 0
	}
	if !replayable(req) && retries > 0 {
		logger.Debugf("Request body for %s %s cannot be replayed; retries disabled", req.Method, redactURL(req.URL))
		retries = 0
	}

	for attempt := 1; ; attempt++ {
		r, err := rewind(req, attempt)
		if err != nil {
			return nil, err
		}

		resp, err := c.doer.Do(r)
		if err != nil {
			err = redactError(err)
			if ctx.Err() != nil || retries == 0 {
				return nil, fmt.Errorf("%s %s failed after %d attempt(s): %w", req.Method, redactURL(req.URL), attempt, err)
			}
			logger.Warnf("Request %s %s failed: %v. Retrying... (%d attempts left)", req.Method, redactURL(req.URL), err, retries)
			if err := c.sleep(ctx, c.policy.BaseDelay); err != nil {
				return nil, err
			}
			retries--
			continue
		}

		if !c.isRateLimited(resp) || retries == 0 {
			return resp, nil
		}

		delay := c.policy.BaseDelay
		if d, ok := parseRetryAfter(resp.Header.Get("Retry-After"), c.now()); ok {
			delay = d
		}
		drain(resp)
		logger.Infof("Rate limited by %s. Retrying after %s... (%d attempts left)", req.URL.Host, delay, retries)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
		retries--
	}
}

func (c *RetryClient) isRateLimited(resp *http.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return c.rateLimited != nil && c.rateLimited(resp)
}

// Transport is an http.RoundTripper that retries through a RetryClient, so
// libraries that accept a transport get the same retry behaviour.
type Transport struct {
	client *RetryClient
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, opts ...RetryOption) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{client: NewRetryClient(DoerFunc(base.RoundTrip), opts...)}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.client.Do(req)
}

// BufferBody reads the whole response body and replaces it with an in-memory
// copy, so it can be inspected and still be read by the caller.
func BufferBody(resp *http.Response) ([]byte, error) {
	if resp.Body == nil {
		return nil, nil
	}
	b, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(b))
	return b, err
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func rewind(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 1 || req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind request body: %w", err)
	}
	r := req.Clone(req.Context())
	r.Body = body
	return r, nil
}

// redactURL renders u with its password and credential query parameters
// masked.
func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	q := u.Query()
	masked := false
	for _, p := range secretParams {
		if q.Has(p) {
			q.Set(p, "xxxxx")
			masked = true
		}
	}
	if !masked {
		return u.Redacted()
	}
	c := *u
	c.RawQuery = q.Encode()
	return c.Redacted()
}

// redactError masks credentials in the URL a *url.Error carries. net/http
// reports transport failures that way, quoting the full request URL.
func redactError(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}
	if u, perr := url.Parse(uerr.URL); perr == nil {
		uerr.URL = redactURL(u)
	} else {
		uerr.URL = "(unparseable URL)"
	}
	return err
}

// parseRetryAfter accepts both forms of Retry-After: delta seconds and an
// HTTP-date. Dates in the past yield zero; waits are capped at maxRetryAfter.
func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		if secs > int(maxRetryAfter/time.Second) {
			return maxRetryAfter, true
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		return min(max(t.Sub(now), 0), maxRetryAfter), true
	}
	return 0, false
}

func drain(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
