package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/content-mcp/internal/content"
)

// YouTubeVideosHandler returns the handler for "youtube-videos", which lists
// the configured playlist.
func YouTubeVideosHandler(svc *content.YouTubeService, now func() time.Time) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		videos, err := svc.Playlist(ctx)
		if err != nil {
			return errorResult("youtube-videos", err), nil
		}
		return mcp.NewToolResultText(formatVideos(videos, now())), nil
	}
}

// YouTubePlaylistHandler returns the handler for "youtube-playlist", which
// lists any playlist with durations and categories.
func YouTubePlaylistHandler(svc *content.YouTubeService, now func() time.Time) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := strings.TrimSpace(req.GetString("playlist_id", ""))
		videos, err := svc.PlaylistDetails(ctx, id)
		if err != nil {
			return errorResult("youtube-playlist", err), nil
		}
		return mcp.NewToolResultText(formatVideos(videos, now())), nil
	}
}

func formatVideos(videos []content.Video, now time.Time) string {
	if len(videos) == 0 {
		return "No videos."
	}
	var sb strings.Builder
	for i, v := range videos {
		fmt.Fprintf(&sb, "%d. %s\n   https://www.youtube.com/watch?v=%s", i+1, v.Title, v.ID)
		var meta []string
		if v.Category != "" {
			meta = append(meta, v.Category)
		}
		if v.Duration != "" {
			meta = append(meta, v.Duration)
		}
		if d := humanDate(v.PublishedAt, now); d != "" {
			meta = append(meta, d)
		}
		if len(meta) > 0 {
			sb.WriteString("\n   ")
			sb.WriteString(strings.Join(meta, " | "))
		}
		if i < len(videos)-1 {
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}
