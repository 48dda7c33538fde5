// Package reddit provides a read-only client for Reddit's public search
// endpoint. No OAuth; the JSON listing API only requires a descriptive
// User-Agent.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sentinel-cli/internal/resilience"
)

// Client defines the Reddit search operations.
type Client interface {
	// Search runs a site-wide post search, newest first.
	Search(ctx context.Context, query string, opts ...SearchOption) ([]Post, error)
}

// Post is a single search hit.
type Post struct {
	Title      string  `json:"title"`
	SelfText   string  `json:"selftext"`
	Permalink  string  `json:"permalink"`
	URL        string  `json:"url"`
	Subreddit  string  `json:"subreddit"`
	Author     string  `json:"author"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
}

// Created returns the post creation time.
func (p Post) Created() time.Time {
	return time.Unix(int64(p.CreatedUTC), 0).UTC()
}

// FullURL returns the canonical reddit.com link for the post.
func (p Post) FullURL() string {
	return "https://www.reddit.com" + p.Permalink
}

type listing struct {
	Data struct {
		Children []struct {
			Data Post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// SearchOption configures a search request.
type SearchOption func(*searchOpts)

type searchOpts struct {
	timeFilter string
	limit      int
	subreddit  string
}

// WithTimeFilter restricts results by age: "hour", "day", "week".
func WithTimeFilter(t string) SearchOption {
	return func(o *searchOpts) {
		o.timeFilter = t
	}
}

// WithLimit caps the number of results (max 100).
func WithLimit(n int) SearchOption {
	return func(o *searchOpts) {
		o.limit = n
	}
}

// WithSubreddit restricts the search to one subreddit.
func WithSubreddit(sub string) SearchOption {
	return func(o *searchOpts) {
		o.subreddit = sub
	}
}

// Option configures the Reddit client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient creates a Reddit search client. Reddit rejects generic
// user agents, so callers must pass a descriptive one.
func NewClient(userAgent string, opts ...Option) Client {
	c := &httpClient{
		baseURL:   "https://www.reddit.com",
		userAgent: userAgent,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query string, opts ...SearchOption) ([]Post, error) {
	so := &searchOpts{timeFilter: "day", limit: 25}
	for _, opt := range opts {
		opt(so)
	}

	path := "/search.json"
	if so.subreddit != "" {
		path = "/r/" + url.PathEscape(so.subreddit) + "/search.json"
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", "new")
	params.Set("t", so.timeFilter)
	params.Set("limit", fmt.Sprintf("%d", so.limit))
	if so.subreddit != "" {
		params.Set("restrict_sr", "1")
	}
	reqURL := c.baseURL + path + "?" + params.Encode()

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("reddit", "search")

	return resilience.DoVal(ctx, retryCfg, func(ctx context.Context) ([]Post, error) {
		return c.doSearch(ctx, reqURL)
	})
}

func (c *httpClient) doSearch(ctx context.Context, reqURL string) ([]Post, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "reddit: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "reddit: read response body")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("reddit: status %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("reddit: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var l listing
	if err := json.Unmarshal(body, &l); err != nil {
		return nil, eris.Wrap(err, "reddit: unmarshal listing")
	}

	posts := make([]Post, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		posts = append(posts, child.Data)
	}
	return posts, nil
}
