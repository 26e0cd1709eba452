package tools

import (
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/leonardcser/content-mcp/internal/content"
	"github.com/leonardcser/content-mcp/internal/logger"
	"github.com/leonardcser/content-mcp/internal/web"
)

// Deps are what the tools read from. Now defaults to time.Now.
type Deps struct {
	Content *content.Services
	Pages   *web.PageFetcher
	Now     func() time.Time
}

// Register adds every content tool to s. web-fetch is only added when
// d.Pages is set.
func Register(s *server.MCPServer, d Deps) {
	now := d.Now
	if now == nil {
		now = time.Now
	}

	s.AddTool(mcp.NewTool("newsletter-latest",
		mcp.WithDescription(multiline(
			"Returns the most recently sent newsletter issue",
			"- Includes title, subject, publish date and the issue body as markdown",
			"- Served from a one-hour cache",
		)),
	), NewsletterLatestHandler(d.Content.Newsletter, now))

	s.AddTool(mcp.NewTool("newsletter-list",
		mcp.WithDescription(multiline(
			"Lists the most recent sent newsletter issues (up to 20), newest first",
			"- Use newsletter-get with an issue ID to read its body",
		)),
	), NewsletterListHandler(d.Content.Newsletter, now))

	s.AddTool(mcp.NewTool("newsletter-get",
		mcp.WithDescription(multiline(
			"Returns the body of one newsletter issue as markdown",
			"- Issue IDs come from newsletter-list",
		)),
		mcp.WithString("id", mcp.Required(), mcp.Description("The issue ID")),
	), NewsletterGetHandler(d.Content.Newsletter))

	s.AddTool(mcp.NewTool("newsletter-subscribe",
		mcp.WithDescription(multiline(
			"Subscribes an email address to the newsletter",
			"- Existing subscribers are reactivated instead of failing",
			"- Only call this when the user explicitly asks to subscribe",
		)),
		mcp.WithString("email", mcp.Required(), mcp.Description("The address to subscribe")),
		mcp.WithString("name", mcp.Description("Optional subscriber name")),
	), NewsletterSubscribeHandler(d.Content.Newsletter))

	s.AddTool(mcp.NewTool("podcast-latest",
		mcp.WithDescription("Returns the newest podcast episode with its audio link and show notes"),
	), PodcastLatestHandler(d.Content.Podcast, now))

	s.AddTool(mcp.NewTool("podcast-episodes",
		mcp.WithDescription("Lists podcast episodes from the RSS feed, newest first"),
		mcp.WithNumber("limit", mcp.Description("Maximum episodes to list (default 10, 0 for all)")),
	), PodcastEpisodesHandler(d.Content.Podcast, now))

	s.AddTool(mcp.NewTool("youtube-videos",
		mcp.WithDescription("Lists the videos of the channel's main YouTube playlist"),
	), YouTubeVideosHandler(d.Content.YouTube, now))

	s.AddTool(mcp.NewTool("youtube-playlist",
		mcp.WithDescription(multiline(
			"Lists a YouTube playlist with video durations and topic categories",
			"- Defaults to the channel's main playlist",
		)),
		mcp.WithString("playlist_id", mcp.Description("Playlist ID; omit for the default playlist")),
	), YouTubePlaylistHandler(d.Content.YouTube, now))

	if d.Pages != nil {
		s.AddTool(mcp.NewTool("web-fetch",
			mcp.WithDescription(multiline(
				"Fetches a web page and returns its title, description, links and text",
				"\nUsage notes:",
				"- The URL must be a fully-formed http(s) URL",
				"- This tool is read-only",
				"- Results are cached for 15 minutes",
			)),
			mcp.WithString("url", mcp.Required(), mcp.Description("The URL to fetch content from")),
		), WebFetchHandler(d.Pages))
	}
	logger.Infof("Registered content tools")
}

// multiline joins lines with newlines for tool descriptions.
func multiline(lines ...string) string { return strings.Join(lines, "\n") }
