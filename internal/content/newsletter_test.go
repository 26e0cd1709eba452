package content

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardcser/content-mcp/internal/cache"
	"github.com/leonardcser/content-mcp/internal/web"
)

var fixedNow = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

func (s *sleepRecorder) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waits)
}

func newTestClient(rec *sleepRecorder, opts ...web.RetryOption) *web.RetryClient {
	opts = append([]web.RetryOption{web.WithSleep(rec.Sleep)}, opts...)
	return web.NewRetryClient(http.DefaultClient, opts...)
}

const campaignsJSON = `{"data":[
 {"id":"c1","name":"Issue #12","type":"regular","status":"sent",
  "settings":{"subject":"This week in AI","content":"<h1>Hello</h1>"},
  "scheduled_for":null,"sent_at":"2024-03-14T08:00:00Z"},
 {"id":"c2","name":"","type":"regular","status":"sent",
  "settings":{"subject":"","content":""},
  "scheduled_for":"2024-03-07T08:00:00Z","sent_at":null},
 {"id":"c3","name":"","type":"regular","status":"sent",
  "settings":{},"scheduled_for":null,"sent_at":null}
]}`

func newNewsletterService(t *testing.T, url string, rec *sleepRecorder) *NewsletterService {
	t.Helper()
	return NewNewsletterService(NewsletterOptions{
		BaseURL: url,
		APIKey:  "secret",
		GroupID: "g1",
		Now:     func() time.Time { return fixedNow },
	}, newTestClient(rec), cache.NewMemory(cache.Options{}))
}

func TestNewsletter_LatestRequestAndCache(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/campaigns", r.URL.Path)
		assert.Equal(t, "sent", r.URL.Query().Get("filter[status]"))
		assert.Equal(t, "content", r.URL.Query().Get("include"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "2024-03-15", r.Header.Get("X-Version"))
		_, _ = io.WriteString(w, campaignsJSON)
	}))
	defer ts.Close()

	s := newNewsletterService(t, ts.URL, &sleepRecorder{})
	n, err := s.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Newsletter{
		Title:         "Issue #12",
		Summary:       "This week in AI",
		Content:       "<h1>Hello</h1>",
		PublishedDate: "2024-03-14T08:00:00Z",
		MailerLiteID:  "c1",
	}, n)

	_, err = s.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "second call should be a cache hit")
}

func TestNewsletter_AllFallbacks(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "20", r.URL.Query().Get("per_page"))
		_, _ = io.WriteString(w, campaignsJSON)
	}))
	defer ts.Close()

	s := newNewsletterService(t, ts.URL, &sleepRecorder{})
	all, err := s.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)

	assert.Equal(t, "Newsletter", all[1].Title)
	assert.Equal(t, "Newsletter", all[1].Summary)
	assert.Equal(t, "2024-03-07T08:00:00Z", all[1].PublishedDate)
	assert.Equal(t, fixedNow.Format(time.RFC3339), all[2].PublishedDate)
}

func TestNewsletter_NotConfigured(t *testing.T) {
	s := NewNewsletterService(NewsletterOptions{}, newTestClient(&sleepRecorder{}), cache.NewMemory(cache.Options{}))
	_, err := s.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = s.Subscribe(context.Background(), "a@b.c", "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestNewsletter_UpstreamErrorNotCached(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"Unauthenticated."}`)
	}))
	defer ts.Close()

	rec := &sleepRecorder{}
	s := newNewsletterService(t, ts.URL, rec)
	_, err := s.Latest(context.Background())

	var uerr *UpstreamError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, http.StatusUnauthorized, uerr.StatusCode)
	assert.Equal(t, 0, rec.Count(), "401 is not retried")

	_, _ = s.Latest(context.Background())
	assert.Equal(t, int32(2), calls.Load(), "errors must not be cached")
}

func TestNewsletter_RateLimitRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, campaignsJSON)
	}))
	defer ts.Close()

	rec := &sleepRecorder{}
	s := newNewsletterService(t, ts.URL, rec)
	n, err := s.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "c1", n.MailerLiteID)
	assert.Equal(t, 2, rec.Count())
}

func TestNewsletter_EmptyIsNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":[]}`)
	}))
	defer ts.Close()

	s := newNewsletterService(t, ts.URL, &sleepRecorder{})
	_, err := s.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.All(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

type mailerLiteFake struct {
	mu       sync.Mutex
	requests []string
	bodies   []map[string]any
	create   func(w http.ResponseWriter)
	update   func(w http.ResponseWriter)
}

func (f *mailerLiteFake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.bodies = append(f.bodies, body)
	f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/subscribers":
		f.create(w)
	case r.Method == http.MethodPut:
		f.update(w)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func TestNewsletter_SubscribeNew(t *testing.T) {
	fake := &mailerLiteFake{create: func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":{"id":"s1"}}`)
	}}
	ts := httptest.NewServer(fake)
	defer ts.Close()

	s := newNewsletterService(t, ts.URL, &sleepRecorder{})
	res, err := s.Subscribe(context.Background(), " dana@example.org ", "Dana")
	require.NoError(t, err)
	assert.Equal(t, &SubscribeResult{SubscriberID: "s1"}, res)

	assert.Equal(t, []string{"POST /subscribers", "POST /subscribers/s1/groups/g1"}, fake.requests)
	assert.Equal(t, "dana@example.org", fake.bodies[0]["email"])
	assert.Equal(t, "active", fake.bodies[0]["status"])
	assert.Equal(t, map[string]any{"name": "Dana"}, fake.bodies[0]["fields"])
}

func TestNewsletter_SubscribeExistingIsUpdated(t *testing.T) {
	fake := &mailerLiteFake{
		create: func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = io.WriteString(w, `{"message":"The email has already been taken."}`)
		},
		update: func(w http.ResponseWriter) {
			_, _ = io.WriteString(w, `{"data":{"id":"s9"}}`)
		},
	}
	ts := httptest.NewServer(fake)
	defer ts.Close()

	s := newNewsletterService(t, ts.URL, &sleepRecorder{})
	res, err := s.Subscribe(context.Background(), "dana@example.org", "")
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, "s9", res.SubscriberID)
	assert.Equal(t, []string{
		"POST /subscribers",
		"PUT /subscribers/dana@example.org",
		"POST /subscribers/s9/groups/g1",
	}, fake.requests)
}

func TestNewsletter_SubscribeValidationErrors(t *testing.T) {
	t.Run("invalid email", func(t *testing.T) {
		fake := &mailerLiteFake{create: func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = io.WriteString(w, `{"message":"invalid","errors":{"email":["The email must be valid."]}}`)
		}}
		ts := httptest.NewServer(fake)
		defer ts.Close()

		_, err := newNewsletterService(t, ts.URL, &sleepRecorder{}).Subscribe(context.Background(), "nope", "")
		assert.ErrorIs(t, err, ErrInvalidEmail)
	})

	t.Run("already subscribed and update fails", func(t *testing.T) {
		fake := &mailerLiteFake{
			create: func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = io.WriteString(w, `{"message":"The email has already been taken."}`)
			},
			update: func(w http.ResponseWriter) { w.WriteHeader(http.StatusBadRequest) },
		}
		ts := httptest.NewServer(fake)
		defer ts.Close()

		_, err := newNewsletterService(t, ts.URL, &sleepRecorder{}).Subscribe(context.Background(), "dana@example.org", "")
		assert.ErrorIs(t, err, ErrAlreadySubscribed)
	})

	t.Run("missing email", func(t *testing.T) {
		_, err := newNewsletterService(t, "http://unused.invalid", &sleepRecorder{}).Subscribe(context.Background(), "  ", "")
		assert.ErrorIs(t, err, ErrMissingEmail)
	})

	t.Run("other upstream failure", func(t *testing.T) {
		fake := &mailerLiteFake{create: func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"message":"Forbidden"}`)
		}}
		ts := httptest.NewServer(fake)
		defer ts.Close()

		_, err := newNewsletterService(t, ts.URL, &sleepRecorder{}).Subscribe(context.Background(), "dana@example.org", "")
		var uerr *UpstreamError
		require.True(t, errors.As(err, &uerr))
		assert.Equal(t, http.StatusForbidden, uerr.StatusCode)
		assert.Equal(t, "Forbidden", uerr.Body)
	})
}

func TestNewsletter_ContentRequestAndCache(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/campaigns/c1/content", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"html":"<h1>Issue 12</h1>","plain":"Issue 12"}`)
	}))
	defer ts.Close()

	store := cache.NewMemory(cache.Options{})
	s := NewNewsletterService(NewsletterOptions{BaseURL: ts.URL, APIKey: "secret"}, newTestClient(&sleepRecorder{}), store)

	c, err := s.Content(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, NewsletterContent{ID: "c1", HTML: "<h1>Issue 12</h1>", Plain: "Issue 12"}, c)

	again, err := s.Content(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, c, again)
	assert.Equal(t, int32(1), calls.Load(), "second call should be a cache hit")

	_, err = store.Get("newsletter_c1")
	assert.NoError(t, err)
}

func TestNewsletter_ContentWrappedInData(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"html":"<p>x</p>"}}`)
	}))
	defer ts.Close()

	c, err := newNewsletterService(t, ts.URL, &sleepRecorder{}).Content(context.Background(), "c2")
	require.NoError(t, err)
	assert.Equal(t, "<p>x</p>", c.HTML)
	assert.Empty(t, c.Plain)
}

func TestNewsletter_ContentErrors(t *testing.T) {
	t.Run("upstream error is not cached", func(t *testing.T) {
		var calls atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"message":"Resource not found."}`)
		}))
		defer ts.Close()

		s := newNewsletterService(t, ts.URL, &sleepRecorder{})
		_, err := s.Content(context.Background(), "missing")
		var uerr *UpstreamError
		require.ErrorAs(t, err, &uerr)
		assert.Equal(t, http.StatusNotFound, uerr.StatusCode)

		_, _ = s.Content(context.Background(), "missing")
		assert.Equal(t, int32(2), calls.Load(), "errors must not be cached")
	})

	t.Run("empty body", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{}`)
		}))
		defer ts.Close()

		_, err := newNewsletterService(t, ts.URL, &sleepRecorder{}).Content(context.Background(), "c1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("blank id", func(t *testing.T) {
		_, err := newNewsletterService(t, "http://unused.invalid", &sleepRecorder{}).Content(context.Background(), " ")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("not configured", func(t *testing.T) {
		s := NewNewsletterService(NewsletterOptions{}, newTestClient(&sleepRecorder{}), cache.NewMemory(cache.Options{}))
		_, err := s.Content(context.Background(), "c1")
		assert.ErrorIs(t, err, ErrNotConfigured)
	})
}

func TestNewsletter_SubscribeIsNotRetried(t *testing.T) {
	fake := &mailerLiteFake{create: func(w http.ResponseWriter) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}}
	ts := httptest.NewServer(fake)
	defer ts.Close()

	rec := &sleepRecorder{}
	_, err := newNewsletterService(t, ts.URL, rec).Subscribe(context.Background(), "dana@example.org", "")
	var uerr *UpstreamError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, http.StatusTooManyRequests, uerr.StatusCode)
	assert.Equal(t, []string{"POST /subscribers"}, fake.requests, "a write must reach the provider once")
	assert.Equal(t, 0, rec.Count())
}

func TestNewsletter_GroupAddIsNotRetried(t *testing.T) {
	var groupCalls atomic.Int32
	fake := &mailerLiteFake{create: func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":{"id":"s1"}}`)
	}}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/subscribers/s1/groups/g1" {
			groupCalls.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fake.ServeHTTP(w, r)
	}))
	defer ts.Close()

	rec := &sleepRecorder{}
	res, err := newNewsletterService(t, ts.URL, rec).Subscribe(context.Background(), "dana@example.org", "")
	require.NoError(t, err, "group assignment is best effort")
	assert.Equal(t, "s1", res.SubscriberID)
	assert.Equal(t, int32(1), groupCalls.Load())
	assert.Equal(t, 0, rec.Count())
}
