package content

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/leonardcser/content-mcp/internal/cache"
	"github.com/leonardcser/content-mcp/internal/config"
	"github.com/leonardcser/content-mcp/internal/logger"
	"github.com/leonardcser/content-mcp/internal/web"
)

// Services bundles the content sources behind one shared cache.
type Services struct {
	Newsletter *NewsletterService
	Podcast    *PodcastService
	YouTube    *YouTubeService
}

// New wires every service from cfg. All of them share store and the same
// retry policy; YouTube additionally retries quota errors.
func New(cfg *config.Config, store cache.KV) *Services {
	hc := web.NewHTTPClient(cfg.UserAgent, cfg.HTTPTimeout)
	client := web.NewRetryClient(hc, web.WithPolicy(cfg.Retry))
	ytClient := web.NewRetryClient(hc, web.WithPolicy(cfg.Retry), web.WithRateLimitDetector(YouTubeQuotaExceeded))

	return &Services{
		Newsletter: NewNewsletterService(NewsletterOptions{
			APIKey:  cfg.MailerLiteAPIKey,
			GroupID: cfg.MailerLiteGroupID,
			TTL:     cfg.CacheTTL,
		}, client, store),
		Podcast: NewPodcastService(cfg.PodcastRSSURL, cfg.CacheTTL, client, store),
		YouTube: NewYouTubeService(YouTubeOptions{
			APIKey:             cfg.YouTubeAPIKey,
			PlaylistID:         cfg.YouTubePlaylistID,
			ProjectsPlaylistID: cfg.YouTubeProjectsPlaylistID,
			TTL:                cfg.CacheTTL,
		}, ytClient, store),
	}
}

type warmJob struct {
	name string
	run  func(context.Context) error
}

// Warm fills the cache for every configured source concurrently. Failures
// are logged; a cold entry is simply fetched again on first use.
func (s *Services) Warm(ctx context.Context) {
	var jobs []warmJob
	add := func(name string, run func(context.Context) error) {
		jobs = append(jobs, warmJob{name: name, run: run})
	}
	if s.Newsletter.Configured() {
		add(latestNewsletterKey, func(ctx context.Context) error { _, err := s.Newsletter.Latest(ctx); return err })
		add(allNewslettersKey, func(ctx context.Context) error { _, err := s.Newsletter.All(ctx); return err })
	}
	if s.Podcast.Configured() {
		add(latestEpisodeKey, func(ctx context.Context) error { _, err := s.Podcast.Latest(ctx); return err })
		add(allEpisodesKey, func(ctx context.Context) error { _, err := s.Podcast.Episodes(ctx); return err })
	}
	if s.YouTube.Configured() {
		add(youtubeVideosKey, func(ctx context.Context) error { _, err := s.YouTube.Playlist(ctx); return err })
		add("youtube_guides", func(ctx context.Context) error { _, err := s.YouTube.Guides(ctx); return err })
	}
	if s.YouTube.ProjectsConfigured() {
		add("youtube_projects", func(ctx context.Context) error { _, err := s.YouTube.Projects(ctx); return err })
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	for _, job := range jobs {
		g.Go(func() error {
			if err := job.run(gctx); err != nil {
				logger.Warnf("warm %s: %v", job.name, err)
				return nil
			}
			logger.Infof("warmed %s", job.name)
			return nil
		})
	}
	_ = g.Wait()
}
