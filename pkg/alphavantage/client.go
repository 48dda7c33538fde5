// Package alphavantage provides a client for the Alpha Vantage market news
// and sentiment API.
package alphavantage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sentinel-cli/internal/resilience"
)

const timePublishedLayout = "20060102T150405"

// Client defines the Alpha Vantage operations.
type Client interface {
	// NewsSentiment fetches recent market news for the given tickers or
	// topics.
	NewsSentiment(ctx context.Context, opts ...NewsOption) (*NewsResponse, error)
}

// NewsResponse is the parsed NEWS_SENTIMENT payload.
type NewsResponse struct {
	Items string     `json:"items"`
	Feed  []NewsItem `json:"feed"`
}

// NewsItem is a single news article with sentiment annotations.
type NewsItem struct {
	Title                string  `json:"title"`
	URL                  string  `json:"url"`
	TimePublished        string  `json:"time_published"`
	Summary              string  `json:"summary"`
	Source               string  `json:"source"`
	OverallSentiment     float64 `json:"overall_sentiment_score"`
	OverallSentimentName string  `json:"overall_sentiment_label"`
}

// Published parses the compact article timestamp. Zero time on failure.
func (n NewsItem) Published() time.Time {
	t, err := time.Parse(timePublishedLayout, n.TimePublished)
	if err != nil {
		return time.Time{}
	}
	return t
}

// NewsOption configures a news request.
type NewsOption func(*newsOpts)

type newsOpts struct {
	tickers  []string
	topics   []string
	timeFrom time.Time
	limit    int
}

// WithTickers filters news to the given stock symbols.
func WithTickers(tickers ...string) NewsOption {
	return func(o *newsOpts) {
		o.tickers = tickers
	}
}

// WithTopics filters news to the given Alpha Vantage topic slugs.
func WithTopics(topics ...string) NewsOption {
	return func(o *newsOpts) {
		o.topics = topics
	}
}

// WithTimeFrom excludes articles published before the given time.
func WithTimeFrom(t time.Time) NewsOption {
	return func(o *newsOpts) {
		o.timeFrom = t
	}
}

// WithNewsLimit caps the number of returned articles (max 1000).
func WithNewsLimit(n int) NewsOption {
	return func(o *newsOpts) {
		o.limit = n
	}
}

// Option configures the Alpha Vantage client.
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
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates an Alpha Vantage client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://www.alphavantage.co",
		http: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) NewsSentiment(ctx context.Context, opts ...NewsOption) (*NewsResponse, error) {
	no := &newsOpts{limit: 50}
	for _, opt := range opts {
		opt(no)
	}

	params := url.Values{}
	params.Set("function", "NEWS_SENTIMENT")
	params.Set("apikey", c.apiKey)
	params.Set("sort", "LATEST")
	params.Set("limit", strconv.Itoa(no.limit))
	if len(no.tickers) > 0 {
		params.Set("tickers", strings.Join(no.tickers, ","))
	}
	if len(no.topics) > 0 {
		params.Set("topics", strings.Join(no.topics, ","))
	}
	if !no.timeFrom.IsZero() {
		params.Set("time_from", no.timeFrom.UTC().Format(timePublishedLayout))
	}
	reqURL := c.baseURL + "/query?" + params.Encode()

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("alphavantage", "news_sentiment")

	result, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*NewsResponse, error) {
		return c.doNews(ctx, reqURL)
	})
	if err != nil {
		return nil, eris.Wrap(err, "alphavantage: news sentiment failed")
	}
	return result, nil
}

func (c *httpClient) doNews(ctx context.Context, reqURL string) (*NewsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "alphavantage: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "alphavantage: read response body")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("alphavantage: status %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("alphavantage: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	// Rate-limit exhaustion comes back as 200 with a Note field.
	var probe struct {
		Note        string `json:"Note"`
		Information string `json:"Information"`
		Error       string `json:"Error Message"`
	}
	if err := json.Unmarshal(body, &probe); err == nil {
		if probe.Note != "" || probe.Information != "" {
			return nil, resilience.NewTransientError(
				eris.Errorf("alphavantage: rate limited: %s%s", probe.Note, probe.Information), http.StatusTooManyRequests)
		}
		if probe.Error != "" {
			return nil, eris.Errorf("alphavantage: api error: %s", probe.Error)
		}
	}

	var result NewsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "alphavantage: unmarshal response")
	}
	return &result, nil
}
