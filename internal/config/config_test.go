package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leonardcser/content-mcp/internal/web"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	v, err := New("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, DefaultProjectsPlaylistID, cfg.YouTubeProjectsPlaylistID)
	assert.Equal(t, 15*time.Minute, cfg.PageCacheTTL)
	assert.Equal(t, web.DefaultRetryPolicy(), cfg.Retry)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Warm)
}

func TestLoad_DeployedEnvNames(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MAILERLITE_API_KEY", " ml-key ")
	t.Setenv("PODCAST_RSS_URL", "https://feeds.example.org/podcast.xml")
	t.Setenv("YOUTUBE_API_KEY", "yt-key")
	t.Setenv("YOUTUBE_PLAYLIST_ID", "PL123")
	t.Setenv("YOUTUBE_PROJECTS_PLAYLIST_ID", "PLprojects")
	t.Setenv("CONTENT_MCP_MAX_RETRIES", "5")
	t.Setenv("CONTENT_MCP_RETRY_DELAY", "500ms")

	v, err := New("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "ml-key", cfg.MailerLiteAPIKey)
	assert.Equal(t, "https://feeds.example.org/podcast.xml", cfg.PodcastRSSURL)
	assert.Equal(t, "yt-key", cfg.YouTubeAPIKey)
	assert.Equal(t, "PL123", cfg.YouTubePlaylistID)
	assert.Equal(t, "PLprojects", cfg.YouTubeProjectsPlaylistID)
	assert.Equal(t, web.RetryPolicy{MaxRetries: 5, BaseDelay: 500 * time.Millisecond}, cfg.Retry)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cache_ttl: 30m
mailerlite_group_id: "145117723516471011"
warm: true
addr: "127.0.0.1:9000"
`), 0o600))

	v, err := New(path)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "145117723516471011", cfg.MailerLiteGroupID)
	assert.True(t, cfg.Warm)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
}

func TestNew_MissingExplicitFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"zero ttl", "cache_ttl", "0s"},
		{"negative retries", "max_retries", -1},
		{"negative delay", "retry_delay", "-1s"},
		{"zero timeout", "http_timeout", "0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv("HOME", t.TempDir())
			v, err := New("")
			require.NoError(t, err)
			v.Set(tt.key, tt.val)

			_, err = Load(v)
			assert.Error(t, err)
		})
	}
}
