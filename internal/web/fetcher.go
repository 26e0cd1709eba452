package web

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/leonardcser/content-mcp/internal/cache"
)

const (
	RequestTimeout  = 20 * time.Second
	MaxResponseSize = 1 * 1024 * 1024 // 1MB
	maxLinks        = 50
)

// Fetch failures caused by the page itself rather than the network.
var (
	ErrUnsupportedURL     = errors.New("url must start with http:// or https://")
	ErrEmptyBody          = errors.New("empty response body")
	ErrUnsupportedContent = errors.New("unsupported content type: binary files like images or PDFs are not supported")
)

// PageSummary is the cached preview of a web page.
type PageSummary struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Text        string   `json:"text"`
	Links       []string `json:"links"`
}

// PageFetcher fetches pages for link previews. Requests go through the retry
// transport and results are cached by URL.
type PageFetcher struct {
	c         *colly.Collector
	cache     *cache.JSON[PageSummary]
	userAgent string
}

// NewPageFetcher builds a collector whose HTTP traffic uses transport.
func NewPageFetcher(store cache.KV, ttl time.Duration, transport http.RoundTripper, userAgent string) *PageFetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.Async(false),
	)
	_ = c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       1 * time.Second,
	})
	c.SetRequestTimeout(RequestTimeout)
	if transport != nil {
		c.WithTransport(transport)
	}
	return &PageFetcher{c: c, cache: cache.NewJSON[PageSummary](store, ttl), userAgent: userAgent}
}

func (f *PageFetcher) cacheKey(rawURL string) string { return "web_fetch|" + rawURL }

// Fetch returns a summary of rawURL, served from cache when fresh.
func (f *PageFetcher) Fetch(ctx context.Context, rawURL string) (*PageSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return nil, ErrUnsupportedURL
	}
	if ps, ok := f.cache.Get(f.cacheKey(rawURL)); ok {
		return &ps, nil
	}

	var (
		pageHTML    []byte
		finalURL    string
		contentType string
	)

	// Clones share the transport and limits but not callbacks.
	c := f.c.Clone()
	c.Context = ctx
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", f.userAgent)
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})
	c.OnResponse(func(r *colly.Response) {
		if ctx.Err() != nil {
			return
		}
		finalURL = r.Request.URL.String()
		pageHTML = append([]byte(nil), r.Body...)
		contentType = r.Headers.Get("Content-Type")
	})

	if err := c.Visit(rawURL); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if len(pageHTML) == 0 {
		return nil, ErrEmptyBody
	}
	if len(pageHTML) > MaxResponseSize {
		pageHTML = pageHTML[:MaxResponseSize]
		pageHTML = append(pageHTML, []byte("... [response trimmed due to size]")...)
	}

	ps, err := summarize(pageHTML, finalURL, contentType)
	if err != nil {
		return nil, err
	}
	f.cache.Set(f.cacheKey(rawURL), *ps, 0)
	return ps, nil
}

func summarize(pageHTML []byte, finalURL, contentType string) (*PageSummary, error) {
	lowerCT := strings.ToLower(contentType)
	if !strings.HasPrefix(lowerCT, "text/") {
		return nil, ErrUnsupportedContent
	}
	ps := &PageSummary{URL: finalURL}
	if !strings.Contains(lowerCT, "text/html") {
		ps.Text = string(pageHTML)
		return ps, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(pageHTML))
	if err != nil {
		return nil, err
	}

	// Remove non-visible elements
	doc.Find("script, style, noscript, iframe, object, embed, img, video, picture, svg, canvas, audio, source, track, map, area, form, label, input, button, select, textarea, progress, ins, applet").Remove()

	ps.Title = strings.TrimSpace(doc.Find("head > title").First().Text())
	ps.Description = strings.TrimSpace(doc.Find("meta[name=description]").AttrOr("content", ""))
	plainText := singleLine(doc.Find("body").Text())
	ps.Links = extractLinks(doc, finalURL)

	doc.Find("a").Remove()
	doc.Find("header, footer, aside").Remove()

	htmlStr, err := doc.Html()
	if err != nil {
		return nil, err
	}
	if md := Markdown(htmlStr); md != "" {
		ps.Text = md
	} else {
		ps.Text = plainText
	}
	return ps, nil
}

// extractLinks returns up to maxLinks sorted absolute http(s) links without
// fragments, resolved against base.
func extractLinks(doc *goquery.Document, base string) []string {
	baseURL, _ := url.Parse(base)
	set := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "javascript:") {
			return
		}
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		if !u.IsAbs() && baseURL != nil {
			u = baseURL.ResolveReference(u)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		u.Fragment = ""
		set[u.String()] = struct{}{}
	})

	links := make([]string, 0, len(set))
	for l := range set {
		links = append(links, l)
	}
	sort.Strings(links)
	if len(links) > maxLinks {
		links = links[:maxLinks]
	}
	return links
}
