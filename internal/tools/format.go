package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/content-mcp/internal/content"
	"github.com/leonardcser/content-mcp/internal/logger"
)

// Date layouts seen in MailerLite, RSS and the YouTube API.
var dateLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02 15:04:05",
}

// humanDate renders a provider timestamp as "Mar 14, 2024 (1 day ago)".
// Unknown formats are returned as-is.
func humanDate(raw string, now time.Time) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return fmt.Sprintf("%s (%s)", t.Format("Jan 2, 2006"), humanize.RelTime(t, now, "ago", "from now"))
		}
	}
	return raw
}

// errorResult turns a service error into a tool error the model can act on.
// The full error is logged; the result only names its kind, since transport
// errors quote request URLs and provider bodies.
func errorResult(tool string, err error) *mcp.CallToolResult {
	logger.Warnf("%s: %v", tool, err)
	var uerr *content.UpstreamError
	switch {
	case errors.Is(err, content.ErrNotConfigured):
		return mcp.NewToolResultError("This source is not configured on the server.")
	case errors.Is(err, content.ErrNotFound):
		return mcp.NewToolResultError("Nothing found.")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return mcp.NewToolResultError("The request was cancelled or timed out.")
	case errors.As(err, &uerr) && uerr.StatusCode == http.StatusTooManyRequests:
		return mcp.NewToolResultError("The provider is rate limiting requests; try again in a few minutes.")
	case errors.As(err, &uerr):
		return mcp.NewToolResultError(fmt.Sprintf("The %s service answered with status %d.", uerr.Service, uerr.StatusCode))
	default:
		return mcp.NewToolResultError("The provider could not be reached; try again later.")
	}
}

// truncate shortens s to at most n runes, marking the cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
