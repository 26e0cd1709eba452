package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/leonardcser/content-mcp/internal/cache"
	"github.com/leonardcser/content-mcp/internal/logger"
	"github.com/leonardcser/content-mcp/internal/web"
)

const (
	MailerLiteBaseURL = "https://connect.mailerlite.com/api"

	latestNewsletterKey = "latest_newsletter"
	allNewslettersKey   = "all_newsletters"
	newsletterKeyPrefix = "newsletter_"
	newsletterPageSize  = 20
)

// Newsletter is one sent campaign.
type Newsletter struct {
	Title         string `json:"title"`
	Summary       string `json:"summary"`
	Content       string `json:"content"`
	PublishedDate string `json:"published_date"`
	MailerLiteID  string `json:"mailerlite_id"`
}

// NewsletterContent is the rendered body of one campaign.
type NewsletterContent struct {
	ID    string `json:"id"`
	HTML  string `json:"html"`
	Plain string `json:"plain,omitempty"`
}

// SubscribeResult reports a successful signup.
type SubscribeResult struct {
	SubscriberID string `json:"subscriber_id,omitempty"`
	// Updated is true when the address already existed and was reactivated.
	Updated bool `json:"updated"`
}

type campaign struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Settings struct {
		Subject string `json:"subject"`
		Content string `json:"content"`
	} `json:"settings"`
	ScheduledFor string `json:"scheduled_for"`
	SentAt       string `json:"sent_at"`
}

type subscriberResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// NewsletterOptions configures NewsletterService.
type NewsletterOptions struct {
	BaseURL string
	APIKey  string
	GroupID string
	TTL     time.Duration
	Now     func() time.Time
}

// NewsletterService reads campaigns from MailerLite and manages signups.
type NewsletterService struct {
	baseURL string
	apiKey  string
	groupID string
	ttl     time.Duration
	now     func() time.Time
	client  *web.RetryClient
	latest  *cache.JSON[Newsletter]
	all     *cache.JSON[[]Newsletter]
	content *cache.JSON[NewsletterContent]
}

func NewNewsletterService(opts NewsletterOptions, client *web.RetryClient, store cache.KV) *NewsletterService {
	if opts.BaseURL == "" {
		opts.BaseURL = MailerLiteBaseURL
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &NewsletterService{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		groupID: opts.GroupID,
		ttl:     opts.TTL,
		now:     opts.Now,
		client:  client,
		latest:  cache.NewJSON[Newsletter](store, opts.TTL),
		all:     cache.NewJSON[[]Newsletter](store, opts.TTL),
		content: cache.NewJSON[NewsletterContent](store, opts.TTL),
	}
}

// Configured reports whether an API key is set.
func (s *NewsletterService) Configured() bool { return s.apiKey != "" }

// Latest returns the most recently sent campaign.
func (s *NewsletterService) Latest(ctx context.Context) (Newsletter, error) {
	return cached(ctx, s.latest, latestNewsletterKey, s.ttl, func(ctx context.Context) (Newsletter, error) {
		campaigns, err := s.campaigns(ctx, url.Values{"limit": {"1"}})
		if err != nil {
			return Newsletter{}, err
		}
		if len(campaigns) == 0 {
			return Newsletter{}, ErrNotFound
		}
		return s.toNewsletter(campaigns[0]), nil
	})
}

// All returns the most recent sent campaigns, newest first.
func (s *NewsletterService) All(ctx context.Context) ([]Newsletter, error) {
	return cached(ctx, s.all, allNewslettersKey, s.ttl, func(ctx context.Context) ([]Newsletter, error) {
		campaigns, err := s.campaigns(ctx, url.Values{"per_page": {fmt.Sprint(newsletterPageSize)}})
		if err != nil {
			return nil, err
		}
		if len(campaigns) == 0 {
			return nil, ErrNotFound
		}
		out := make([]Newsletter, 0, len(campaigns))
		for _, c := range campaigns {
			out = append(out, s.toNewsletter(c))
		}
		return out, nil
	})
}

// Content returns the full rendered body of campaign id.
func (s *NewsletterService) Content(ctx context.Context, id string) (NewsletterContent, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return NewsletterContent{}, ErrNotFound
	}
	return cached(ctx, s.content, newsletterKeyPrefix+id, s.ttl, func(ctx context.Context) (NewsletterContent, error) {
		if !s.Configured() {
			return NewsletterContent{}, fmt.Errorf("newsletter: %w", ErrNotConfigured)
		}
		logger.Infof("Fetching newsletter %s content from MailerLite", id)

		req, err := s.newRequest(ctx, http.MethodGet, "/campaigns/"+url.PathEscape(id)+"/content", nil)
		if err != nil {
			return NewsletterContent{}, err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return NewsletterContent{}, fmt.Errorf("mailerlite: %w", err)
		}
		defer resp.Body.Close()
		if !ok2xx(resp) {
			uerr := newUpstreamError("mailerlite", resp)
			logger.Errorf("MailerLite API error: %v", uerr)
			return NewsletterContent{}, uerr
		}
		body, err := web.BufferBody(resp)
		if err != nil {
			return NewsletterContent{}, fmt.Errorf("mailerlite: read content: %w", err)
		}
		if !gjson.ValidBytes(body) {
			return NewsletterContent{}, fmt.Errorf("mailerlite: invalid JSON for campaign %s", id)
		}

		// The body is either bare or wrapped in "data".
		doc := gjson.ParseBytes(body)
		if data := doc.Get("data"); data.IsObject() {
			doc = data
		}
		c := NewsletterContent{
			ID:    id,
			HTML:  doc.Get("html").String(),
			Plain: doc.Get("plain").String(),
		}
		if c.HTML == "" && c.Plain == "" {
			return NewsletterContent{}, ErrNotFound
		}
		return c, nil
	})
}

func (s *NewsletterService) campaigns(ctx context.Context, q url.Values) ([]campaign, error) {
	if !s.Configured() {
		return nil, fmt.Errorf("newsletter: %w", ErrNotConfigured)
	}
	q.Set("filter[status]", "sent")
	q.Set("include", "content")
	logger.Infof("Fetching newsletters from MailerLite (%s)", q.Encode())

	req, err := s.newRequest(ctx, http.MethodGet, "/campaigns?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mailerlite: %w", err)
	}
	defer resp.Body.Close()
	if !ok2xx(resp) {
		uerr := newUpstreamError("mailerlite", resp)
		logger.Errorf("MailerLite API error: %v", uerr)
		return nil, uerr
	}

	var payload struct {
		Data []campaign `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("mailerlite: decode campaigns: %w", err)
	}
	return payload.Data, nil
}

func (s *NewsletterService) toNewsletter(c campaign) Newsletter {
	subject := firstNonEmpty(c.Settings.Subject, c.Name, "Newsletter")
	return Newsletter{
		Title:         firstNonEmpty(c.Name, subject),
		Summary:       subject,
		Content:       c.Settings.Content,
		PublishedDate: firstNonEmpty(c.SentAt, c.ScheduledFor, s.now().UTC().Format(time.RFC3339)),
		MailerLiteID:  c.ID,
	}
}

// Subscribe adds email to the mailing list, reactivating it when it already
// exists, and files it under the configured group.
func (s *NewsletterService) Subscribe(ctx context.Context, email, name string) (*SubscribeResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrMissingEmail
	}
	if !s.Configured() {
		return nil, fmt.Errorf("newsletter: %w", ErrNotConfigured)
	}

	body := map[string]any{"email": email, "status": "active"}
	if name != "" {
		body["fields"] = map[string]string{"name": name}
	}
	status, sr, err := s.sendSubscriber(ctx, http.MethodPost, "/subscribers", body)
	if err != nil {
		return nil, err
	}

	result := &SubscribeResult{}
	switch {
	case status >= 200 && status < 300:
		result.SubscriberID = sr.Data.ID
	case status == http.StatusUnprocessableEntity && strings.Contains(sr.Message, "has already been taken"):
		update := map[string]any{"status": "active"}
		if name != "" {
			update["fields"] = map[string]string{"name": name}
		}
		ustatus, ur, err := s.sendSubscriber(ctx, http.MethodPut, "/subscribers/"+url.PathEscape(email), update)
		if err != nil {
			return nil, err
		}
		if ustatus < 200 || ustatus >= 300 {
			return nil, ErrAlreadySubscribed
		}
		result.SubscriberID = ur.Data.ID
		result.Updated = true
	case status == http.StatusUnprocessableEntity && len(sr.Errors["email"]) > 0:
		return nil, ErrInvalidEmail
	default:
		return nil, &UpstreamError{Service: "mailerlite", StatusCode: status, Body: sr.Message}
	}

	if result.SubscriberID != "" {
		s.addToGroup(ctx, result.SubscriberID)
	}
	logger.Infof("Subscribed %s (updated=%t)", email, result.Updated)
	return result, nil
}

func (s *NewsletterService) sendSubscriber(ctx context.Context, method, path string, body any) (int, subscriberResponse, error) {
	var sr subscriberResponse
	b, err := json.Marshal(body)
	if err != nil {
		return 0, sr, err
	}
	req, err := s.newRequest(ctx, method, path, b)
	if err != nil {
		return 0, sr, err
	}
	// Subscriber writes are not idempotent; a lost response must not turn
	// into a second write.
	resp, err := s.client.DoWithRetries(req, 0)
	if err != nil {
		return 0, sr, fmt.Errorf("mailerlite: %w", err)
	}
	defer resp.Body.Close()
	raw, err := web.BufferBody(resp)
	if err != nil {
		return 0, sr, fmt.Errorf("mailerlite: read response: %w", err)
	}
	if err := json.Unmarshal(raw, &sr); err != nil {
		sr.Message = strings.TrimSpace(string(raw))
	}
	return resp.StatusCode, sr, nil
}

// addToGroup is best effort; the signup already succeeded.
func (s *NewsletterService) addToGroup(ctx context.Context, subscriberID string) {
	if s.groupID == "" {
		return
	}
	path := fmt.Sprintf("/subscribers/%s/groups/%s", url.PathEscape(subscriberID), url.PathEscape(s.groupID))
	req, err := s.newRequest(ctx, http.MethodPost, path, nil)
	if err != nil {
		logger.Warnf("add subscriber %s to group: %v", subscriberID, err)
		return
	}
	resp, err := s.client.DoWithRetries(req, 0)
	if err != nil {
		logger.Warnf("add subscriber %s to group: %v", subscriberID, err)
		return
	}
	defer resp.Body.Close()
	if !ok2xx(resp) {
		logger.Warnf("add subscriber %s to group: %v", subscriberID, newUpstreamError("mailerlite", resp))
	}
}

func (s *NewsletterService) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, s.baseURL+path, bytes.NewReader(body))
	} else {
		req, err = http.NewRequestWithContext(ctx, method, s.baseURL+path, nil)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Version", s.now().UTC().Format("2006-01-02"))
	return req, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
