package content

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/leonardcser/content-mcp/internal/cache"
	"github.com/leonardcser/content-mcp/internal/logger"
	"github.com/leonardcser/content-mcp/internal/web"
)

const (
	latestEpisodeKey = "latest_podcast_episode"
	allEpisodesKey   = "all_podcast_episodes"

	defaultArtwork  = "/podcast-cover.jpg"
	defaultDuration = "00:00"
)

// Episode is one podcast feed item.
type Episode struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	AudioURL    string `json:"audioUrl"`
	Published   string `json:"published"`
	Link        string `json:"link"`
	Artwork     string `json:"artwork"`
	Duration    string `json:"duration"`
}

// PodcastService reads episodes from the show's RSS feed.
type PodcastService struct {
	feedURL string
	ttl     time.Duration
	client  *web.RetryClient
	latest  *cache.JSON[Episode]
	all     *cache.JSON[[]Episode]
}

func NewPodcastService(feedURL string, ttl time.Duration, client *web.RetryClient, store cache.KV) *PodcastService {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PodcastService{
		feedURL: feedURL,
		ttl:     ttl,
		client:  client,
		latest:  cache.NewJSON[Episode](store, ttl),
		all:     cache.NewJSON[[]Episode](store, ttl),
	}
}

// Configured reports whether a feed URL is set.
func (s *PodcastService) Configured() bool { return s.feedURL != "" }

// Latest returns the newest episode. It must have a title and audio URL.
func (s *PodcastService) Latest(ctx context.Context) (Episode, error) {
	return cached(ctx, s.latest, latestEpisodeKey, s.ttl, func(ctx context.Context) (Episode, error) {
		feed, err := s.fetchFeed(ctx)
		if err != nil {
			return Episode{}, err
		}
		if len(feed.Items) == 0 {
			return Episode{}, ErrNotFound
		}
		item := feed.Items[0]
		ep := toEpisode(item)
		if ep.Title == "" || ep.AudioURL == "" {
			return Episode{}, ErrInvalidEpisode
		}
		return ep, nil
	})
}

// Episodes returns every item in the feed, in feed order.
func (s *PodcastService) Episodes(ctx context.Context) ([]Episode, error) {
	return cached(ctx, s.all, allEpisodesKey, s.ttl, func(ctx context.Context) ([]Episode, error) {
		feed, err := s.fetchFeed(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]Episode, 0, len(feed.Items))
		for _, item := range feed.Items {
			ep := toEpisode(item)
			if ep.Artwork == "" {
				ep.Artwork = defaultArtwork
			}
			if ep.Duration == "" {
				ep.Duration = defaultDuration
			}
			out = append(out, ep)
		}
		return out, nil
	})
}

func (s *PodcastService) fetchFeed(ctx context.Context) (*gofeed.Feed, error) {
	if !s.Configured() {
		return nil, fmt.Errorf("podcast: %w", ErrNotConfigured)
	}
	logger.Infof("Fetching podcast RSS feed %s", s.feedURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml;q=0.9, */*;q=0.8")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("podcast feed: %w", err)
	}
	defer resp.Body.Close()
	if !ok2xx(resp) {
		return nil, newUpstreamError("podcast feed", resp)
	}
	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("podcast feed: parse: %w", err)
	}
	logger.Debugf("Podcast feed has %d items", len(feed.Items))
	return feed, nil
}

func toEpisode(item *gofeed.Item) Episode {
	html := firstNonEmpty(item.Content, item.Description)
	ep := Episode{
		Title:       item.Title,
		Description: firstNonEmpty(web.PlainText(html), html),
		Published:   item.Published,
		Link:        item.Link,
	}
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" {
			ep.AudioURL = enc.URL
			break
		}
	}
	if it := item.ITunesExt; it != nil {
		ep.Artwork = it.Image
		ep.Duration = it.Duration
	}
	if ep.Artwork == "" && item.Image != nil {
		ep.Artwork = item.Image.URL
	}
	return ep
}
