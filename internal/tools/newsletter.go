package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/leonardcser/content-mcp/internal/content"
	"github.com/leonardcser/content-mcp/internal/web"
)

// NewsletterLatestHandler returns the handler for "newsletter-latest".
func NewsletterLatestHandler(svc *content.NewsletterService, now func() time.Time) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		n, err := svc.Latest(ctx)
		if err != nil {
			return errorResult("newsletter-latest", err), nil
		}
		return mcp.NewToolResultText(formatNewsletter(n, now())), nil
	}
}

// NewsletterListHandler returns the handler for "newsletter-list".
func NewsletterListHandler(svc *content.NewsletterService, now func() time.Time) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		all, err := svc.All(ctx)
		if err != nil {
			return errorResult("newsletter-list", err), nil
		}
		return mcp.NewToolResultText(formatNewsletterList(all, now())), nil
	}
}

// NewsletterGetHandler returns the handler for "newsletter-get".
func NewsletterGetHandler(svc *content.NewsletterService) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		c, err := svc.Content(ctx, id)
		if err != nil {
			return errorResult("newsletter-get", err), nil
		}
		if c.HTML == "" {
			return mcp.NewToolResultText(strings.TrimSpace(c.Plain)), nil
		}
		return mcp.NewToolResultText(web.Markdown(c.HTML)), nil
	}
}

// NewsletterSubscribeHandler returns the handler for "newsletter-subscribe".
func NewsletterSubscribeHandler(svc *content.NewsletterService) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		email, err := req.RequireString("email")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		name := req.GetString("name", "")

		res, err := svc.Subscribe(ctx, email, name)
		switch {
		case errors.Is(err, content.ErrInvalidEmail), errors.Is(err, content.ErrMissingEmail):
			return mcp.NewToolResultError("The email address is not valid."), nil
		case errors.Is(err, content.ErrAlreadySubscribed):
			return mcp.NewToolResultError("This email address is already subscribed."), nil
		case err != nil:
			return errorResult("newsletter-subscribe", err), nil
		}
		if res.Updated {
			return mcp.NewToolResultText(fmt.Sprintf("%s was already on the list; the subscription is active again.", strings.TrimSpace(email))), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Subscribed %s to the newsletter.", strings.TrimSpace(email))), nil
	}
}

func formatNewsletter(n content.Newsletter, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("# ")
	sb.WriteString(n.Title)
	sb.WriteString("\n\n")
	if n.Summary != "" && n.Summary != n.Title {
		sb.WriteString(n.Summary)
		sb.WriteString("\n\n")
	}
	if d := humanDate(n.PublishedDate, now); d != "" {
		sb.WriteString("Published: ")
		sb.WriteString(d)
		sb.WriteString("\n\n")
	}
	sb.WriteString(web.Markdown(n.Content))
	return strings.TrimSpace(sb.String())
}

func formatNewsletterList(all []content.Newsletter, now time.Time) string {
	var sb strings.Builder
	for i, n := range all {
		fmt.Fprintf(&sb, "%d. %s", i+1, n.Title)
		if d := humanDate(n.PublishedDate, now); d != "" {
			sb.WriteString(" | ")
			sb.WriteString(d)
		}
		if n.Summary != "" && n.Summary != n.Title {
			sb.WriteString("\n   ")
			sb.WriteString(n.Summary)
		}
		if n.MailerLiteID != "" {
			sb.WriteString("\n   ID: ")
			sb.WriteString(n.MailerLiteID)
		}
		if i < len(all)-1 {
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}
