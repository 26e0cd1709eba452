package content

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/leonardcser/content-mcp/internal/cache"
	"github.com/leonardcser/content-mcp/internal/logger"
	"github.com/leonardcser/content-mcp/internal/web"
)

const (
	YouTubeBaseURL = "https://www.googleapis.com/youtube/v3"

	youtubeVideosKey     = "youtube_videos"
	youtubeDetailsPrefix = "youtube_details:"
	youtubeMaxResults    = 50

	// CategoryBeginners and CategoryGeneral are the labels the site's guides
	// page filters on.
	CategoryBeginners = "מתחילים"
	CategoryGeneral   = "כללי"
)

// Video is one playlist entry. Duration and Category are only filled by
// PlaylistDetails.
type Video struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Thumbnail   string `json:"thumbnail"`
	PublishedAt string `json:"publishedAt"`
	Duration    string `json:"duration,omitempty"`
	Category    string `json:"category,omitempty"`
}

// YouTubeOptions configures YouTubeService.
type YouTubeOptions struct {
	BaseURL    string
	APIKey     string
	PlaylistID string
	// ProjectsPlaylistID backs Projects.
	ProjectsPlaylistID string
	TTL                time.Duration
}

// YouTubeService lists playlist videos through the Data API v3.
type YouTubeService struct {
	baseURL    string
	apiKey     string
	playlistID string
	projectsID string
	ttl        time.Duration
	client     *web.RetryClient
	videos     *cache.JSON[[]Video]
}

// NewYouTubeService builds the service. The client should be created with
// web.WithRateLimitDetector(YouTubeQuotaExceeded) so quota errors are retried.
func NewYouTubeService(opts YouTubeOptions, client *web.RetryClient, store cache.KV) *YouTubeService {
	if opts.BaseURL == "" {
		opts.BaseURL = YouTubeBaseURL
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &YouTubeService{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		playlistID: opts.PlaylistID,
		projectsID: opts.ProjectsPlaylistID,
		ttl:        opts.TTL,
		client:     client,
		videos:     cache.NewJSON[[]Video](store, opts.TTL),
	}
}

// Configured reports whether both the API key and the default playlist are set.
func (s *YouTubeService) Configured() bool { return s.apiKey != "" && s.playlistID != "" }

// ProjectsConfigured reports whether Projects can be served.
func (s *YouTubeService) ProjectsConfigured() bool { return s.apiKey != "" && s.projectsID != "" }

// Playlist returns the configured playlist's videos. An empty playlist is an
// empty slice, not an error.
func (s *YouTubeService) Playlist(ctx context.Context) ([]Video, error) {
	return cached(ctx, s.videos, youtubeVideosKey, s.ttl, func(ctx context.Context) ([]Video, error) {
		if !s.Configured() {
			return nil, fmt.Errorf("youtube: %w", ErrNotConfigured)
		}
		items, err := s.playlistItems(ctx, s.playlistID, "snippet")
		if err != nil {
			return nil, err
		}
		videos := make([]Video, 0, len(items))
		for _, item := range items {
			videos = append(videos, toVideo(item))
		}
		return videos, nil
	})
}

// PlaylistDetails returns the videos of playlistID (the configured playlist
// when empty) with their durations and a topic category.
func (s *YouTubeService) PlaylistDetails(ctx context.Context, playlistID string) ([]Video, error) {
	if playlistID == "" {
		playlistID = s.playlistID
	}
	return cached(ctx, s.videos, youtubeDetailsPrefix+playlistID, s.ttl, func(ctx context.Context) ([]Video, error) {
		if s.apiKey == "" || playlistID == "" {
			return nil, fmt.Errorf("youtube: %w", ErrNotConfigured)
		}
		items, err := s.playlistItems(ctx, playlistID, "snippet,contentDetails")
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, ErrNotFound
		}

		videos := make([]Video, 0, len(items))
		ids := make([]string, 0, len(items))
		for _, item := range items {
			v := toVideo(item)
			if id := item.Get("contentDetails.videoId").String(); id != "" {
				v.ID = id
			}
			if v.ID != "" {
				ids = append(ids, v.ID)
			}
			v.Category = Categorize(v.Title, v.Description)
			videos = append(videos, v)
		}

		durations, err := s.durations(ctx, ids)
		if err != nil {
			return nil, err
		}
		for i := range videos {
			videos[i].Duration = FormatDuration(durations[videos[i].ID])
		}
		return videos, nil
	})
}

// Guides returns the configured playlist with durations and categories. An
// empty playlist is ErrNotFound.
func (s *YouTubeService) Guides(ctx context.Context) ([]Video, error) {
	if s.playlistID == "" {
		return nil, fmt.Errorf("youtube: %w", ErrNotConfigured)
	}
	return s.PlaylistDetails(ctx, s.playlistID)
}

// Projects returns the projects playlist with durations. Project videos are
// not categorised.
func (s *YouTubeService) Projects(ctx context.Context) ([]Video, error) {
	if !s.ProjectsConfigured() {
		return nil, fmt.Errorf("youtube: %w", ErrNotConfigured)
	}
	videos, err := s.PlaylistDetails(ctx, s.projectsID)
	if err != nil {
		return nil, err
	}
	out := make([]Video, len(videos))
	for i, v := range videos {
		v.Category = ""
		out[i] = v
	}
	return out, nil
}

func (s *YouTubeService) playlistItems(ctx context.Context, playlistID, part string) ([]gjson.Result, error) {
	q := url.Values{
		"part":       {part},
		"playlistId": {playlistID},
		"maxResults": {fmt.Sprint(youtubeMaxResults)},
	}
	body, err := s.get(ctx, "/playlistItems", q)
	if err != nil {
		return nil, err
	}
	items := gjson.GetBytes(body, "items").Array()
	logger.Debugf("Playlist %s returned %d items", playlistID, len(items))
	return items, nil
}

// durations maps video ID to its ISO-8601 duration.
func (s *YouTubeService) durations(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	body, err := s.get(ctx, "/videos", url.Values{"part": {"contentDetails"}, "id": {strings.Join(ids, ",")}})
	if err != nil {
		return nil, err
	}
	gjson.GetBytes(body, "items").ForEach(func(_, item gjson.Result) bool {
		out[item.Get("id").String()] = item.Get("contentDetails.duration").String()
		return true
	})
	return out, nil
}

func (s *YouTubeService) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	// The key goes in a header so it never shows up in a logged URL.
	req.Header.Set("X-Goog-Api-Key", s.apiKey)
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("youtube: %w", err)
	}
	defer resp.Body.Close()
	if !ok2xx(resp) {
		uerr := newUpstreamError("youtube", resp)
		if msg := gjson.Get(uerr.Body, "error.message").String(); msg != "" {
			uerr.Body = msg
		}
		return nil, uerr
	}
	body, err := web.BufferBody(resp)
	if err != nil {
		return nil, fmt.Errorf("youtube: read response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("youtube: invalid JSON response from %s", path)
	}
	return body, nil
}

func toVideo(item gjson.Result) Video {
	sn := item.Get("snippet")
	return Video{
		ID:          sn.Get("resourceId.videoId").String(),
		Title:       sn.Get("title").String(),
		Description: sn.Get("description").String(),
		Thumbnail:   sn.Get("thumbnails.high.url").String(),
		PublishedAt: sn.Get("publishedAt").String(),
	}
}

var quotaReasons = map[string]bool{
	"quotaExceeded":         true,
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
}

// YouTubeQuotaExceeded reports whether resp is a 403 carrying one of the
// Data API's quota or rate-limit reasons. The body stays readable.
func YouTubeQuotaExceeded(resp *http.Response) bool {
	if resp.StatusCode != http.StatusForbidden {
		return false
	}
	body, err := web.BufferBody(resp)
	if err != nil {
		return false
	}
	for _, reason := range gjson.GetBytes(body, "error.errors.#.reason").Array() {
		if quotaReasons[reason.String()] {
			return true
		}
	}
	return false
}

var isoDuration = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// FormatDuration turns an ISO-8601 duration like PT1H2M3S into "1:02:03",
// or "m:ss" when under an hour. Unparseable input yields "".
func FormatDuration(iso string) string {
	m := isoDuration.FindStringSubmatch(iso)
	if m == nil || iso == "PT" {
		return ""
	}
	h, mins, secs := orZero(m[1]), orZero(m[2]), orZero(m[3])
	if h != "0" {
		return fmt.Sprintf("%s:%s:%s", h, pad2(mins), pad2(secs))
	}
	return fmt.Sprintf("%s:%s", mins, pad2(secs))
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func pad2(s string) string {
	if len(s) < 2 {
		return "0" + s
	}
	return s
}

var categoryRules = []struct {
	category string
	keywords []string
}{
	{"Python", []string{"python", "פייתון"}},
	{"JavaScript", []string{"javascript", "ג'אווהסקריפט"}},
	{"React", []string{"react", "ריאקט"}},
	{"Next.js", []string{"next.js", "נקסט"}},
	{"AI", []string{"ai ", "בינה מלאכותית"}},
	{CategoryBeginners, []string{"מדריך למתחילים", "בסיסי"}},
}

// Categorize assigns a topic from keywords in the title and description.
// Rules are checked in order; the first match wins.
func Categorize(title, description string) string {
	text := strings.ToLower(title + " " + description)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.category
			}
		}
	}
	return CategoryGeneral
}
