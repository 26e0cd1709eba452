package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/content-mcp/internal/content"
)

const (
	defaultEpisodeLimit = 10
	descriptionLimit    = 280
)

// PodcastLatestHandler returns the handler for "podcast-latest".
func PodcastLatestHandler(svc *content.PodcastService, now func() time.Time) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ep, err := svc.Latest(ctx)
		if err != nil {
			return errorResult("podcast-latest", err), nil
		}
		return mcp.NewToolResultText(formatEpisode(ep, now(), 0)), nil
	}
}

// PodcastEpisodesHandler returns the handler for "podcast-episodes". The
// optional "limit" argument caps the list (default 10, 0 for all).
func PodcastEpisodesHandler(svc *content.PodcastService, now func() time.Time) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", defaultEpisodeLimit)
		if limit < 0 {
			return mcp.NewToolResultError("limit must not be negative"), nil
		}
		eps, err := svc.Episodes(ctx)
		if err != nil {
			return errorResult("podcast-episodes", err), nil
		}
		if len(eps) == 0 {
			return mcp.NewToolResultText("No episodes."), nil
		}
		if limit > 0 && len(eps) > limit {
			eps = eps[:limit]
		}
		t := now()
		parts := make([]string, 0, len(eps))
		for i, ep := range eps {
			parts = append(parts, fmt.Sprintf("%d. %s", i+1, formatEpisode(ep, t, descriptionLimit)))
		}
		return mcp.NewToolResultText(strings.Join(parts, "\n\n")), nil
	}
}

// formatEpisode renders one episode; maxDesc <= 0 keeps the full description.
func formatEpisode(ep content.Episode, now time.Time, maxDesc int) string {
	var sb strings.Builder
	sb.WriteString(ep.Title)
	var meta []string
	if d := humanDate(ep.Published, now); d != "" {
		meta = append(meta, d)
	}
	if ep.Duration != "" {
		meta = append(meta, ep.Duration)
	}
	if len(meta) > 0 {
		sb.WriteString("\n   ")
		sb.WriteString(strings.Join(meta, " | "))
	}
	if ep.AudioURL != "" {
		sb.WriteString("\n   Audio: ")
		sb.WriteString(ep.AudioURL)
	}
	if ep.Link != "" {
		sb.WriteString("\n   Link: ")
		sb.WriteString(ep.Link)
	}
	if ep.Description != "" {
		sb.WriteString("\n   ")
		sb.WriteString(truncate(ep.Description, maxDesc))
	}
	return sb.String()
}
