package content

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardcser/content-mcp/internal/cache"
	"github.com/leonardcser/content-mcp/internal/config"
	"github.com/leonardcser/content-mcp/internal/web"
)

func TestNew_WiresConfiguration(t *testing.T) {
	cfg := &config.Config{
		MailerLiteAPIKey:          "ml",
		PodcastRSSURL:             "https://example.org/feed.xml",
		YouTubeAPIKey:             "yt",
		YouTubeProjectsPlaylistID: "PLprojects",
		CacheTTL:                  10 * time.Minute,
		Retry:                     web.RetryPolicy{MaxRetries: 1, BaseDelay: time.Second},
		HTTPTimeout:               5 * time.Second,
		UserAgent:                 "test-agent",
	}
	s := New(cfg, cache.NewMemory(cache.Options{}))

	assert.True(t, s.Newsletter.Configured())
	assert.True(t, s.Podcast.Configured())
	assert.False(t, s.YouTube.Configured(), "no default playlist")
	assert.True(t, s.YouTube.ProjectsConfigured())
	assert.Equal(t, 10*time.Minute, s.Newsletter.ttl)
	assert.Equal(t, cfg.Retry, s.Podcast.client.Policy())
}

func TestServices_WarmFillsConfiguredSources(t *testing.T) {
	ts, feedCalls := feedServer(t, podcastFeed)
	store := cache.NewMemory(cache.Options{})
	client := newTestClient(&sleepRecorder{})

	s := &Services{
		Newsletter: NewNewsletterService(NewsletterOptions{}, client, store),
		Podcast:    NewPodcastService(ts.URL, 0, client, store),
		YouTube:    NewYouTubeService(YouTubeOptions{}, client, store),
	}
	s.Warm(context.Background())

	assert.Equal(t, int32(2), feedCalls.Load(), "latest and all episodes are warmed")
	assert.Equal(t, 2, store.Len())

	_, err := s.Podcast.Latest(context.Background())
	require.NoError(t, err)
	_, err = s.Podcast.Episodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), feedCalls.Load(), "warm entries are served from cache")
}

func TestServices_WarmToleratesFailures(t *testing.T) {
	store := cache.NewMemory(cache.Options{})
	client := newTestClient(&sleepRecorder{})
	s := &Services{
		Newsletter: NewNewsletterService(NewsletterOptions{APIKey: "k", BaseURL: "http://127.0.0.1:1"}, client, store),
		Podcast:    NewPodcastService("", 0, client, store),
		YouTube:    NewYouTubeService(YouTubeOptions{}, client, store),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Warm(ctx)
	assert.Equal(t, 0, store.Len())
}
