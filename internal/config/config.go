package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/leonardcser/content-mcp/internal/web"
)

// Config is the validated runtime configuration shared by both servers.
type Config struct {
	MailerLiteAPIKey          string
	MailerLiteGroupID         string
	PodcastRSSURL             string
	YouTubeAPIKey             string
	YouTubePlaylistID         string
	YouTubeProjectsPlaylistID string

	CacheTTL     time.Duration
	PageCacheTTL time.Duration
	Retry        web.RetryPolicy
	HTTPTimeout  time.Duration
	UserAgent    string

	LogLevel string
	LogFile  string
	Addr     string
	Warm     bool
}

// Upstream credentials keep the variable names the site was deployed with.
var envAliases = map[string]string{
	"mailerlite_api_key":  "MAILERLITE_API_KEY",
	"mailerlite_group_id": "MAILERLITE_GROUP_ID",
	"podcast_rss_url":     "PODCAST_RSS_URL",
	"youtube_api_key":     "YOUTUBE_API_KEY",
	"youtube_playlist_id": "YOUTUBE_PLAYLIST_ID",

	"youtube_projects_playlist_id": "YOUTUBE_PROJECTS_PLAYLIST_ID",
}

// DefaultProjectsPlaylistID is the site's projects playlist.
const DefaultProjectsPlaylistID = "PLF-ojiWZUv35Y6N_Ep897PbSYsUt4t7On"

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("cache_ttl", "1h")
	v.SetDefault("youtube_projects_playlist_id", DefaultProjectsPlaylistID)
	v.SetDefault("page_cache_ttl", "15m")
	v.SetDefault("max_retries", web.DefaultMaxRetries)
	v.SetDefault("retry_delay", web.DefaultRetryDelay.String())
	v.SetDefault("http_timeout", "15s")
	v.SetDefault("user_agent", web.DefaultUserAgent)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("addr", ":8080")
	v.SetDefault("warm", false)
}

// New returns a viper instance wired to the config file, the environment and
// the defaults. An empty file searches .content-mcp.yaml in cwd and $HOME.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(".content-mcp")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	v.SetEnvPrefix("CONTENT_MCP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, env, "CONTENT_MCP_"+env); err != nil {
			return nil, err
		}
	}
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Load builds a Config from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		MailerLiteAPIKey:          strings.TrimSpace(v.GetString("mailerlite_api_key")),
		MailerLiteGroupID:         strings.TrimSpace(v.GetString("mailerlite_group_id")),
		PodcastRSSURL:             strings.TrimSpace(v.GetString("podcast_rss_url")),
		YouTubeAPIKey:             strings.TrimSpace(v.GetString("youtube_api_key")),
		YouTubePlaylistID:         strings.TrimSpace(v.GetString("youtube_playlist_id")),
		YouTubeProjectsPlaylistID: strings.TrimSpace(v.GetString("youtube_projects_playlist_id")),
		CacheTTL:                  v.GetDuration("cache_ttl"),
		PageCacheTTL:              v.GetDuration("page_cache_ttl"),
		Retry: web.RetryPolicy{
			MaxRetries: v.GetInt("max_retries"),
			BaseDelay:  v.GetDuration("retry_delay"),
		},
		HTTPTimeout: v.GetDuration("http_timeout"),
		UserAgent:   v.GetString("user_agent"),
		LogLevel:    v.GetString("log_level"),
		LogFile:     v.GetString("log_file"),
		Addr:        v.GetString("addr"),
		Warm:        v.GetBool("warm"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive, got %s", c.CacheTTL)
	}
	if c.PageCacheTTL <= 0 {
		return fmt.Errorf("page_cache_ttl must be positive, got %s", c.PageCacheTTL)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.BaseDelay < 0 {
		return fmt.Errorf("retry_delay must not be negative, got %s", c.Retry.BaseDelay)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive, got %s", c.HTTPTimeout)
	}
	return nil
}
