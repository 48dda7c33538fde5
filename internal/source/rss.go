package source

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/sentinel-cli/internal/model"
)

// rssItem covers both RSS <item> and Atom <entry> shapes.
type rssItem struct {
	Title       string    `xml:"title"`
	Links       []rssLink `xml:"link"`
	Description string    `xml:"description"`
	Summary     string    `xml:"summary"`
	PubDate     string    `xml:"pubDate"`
	Updated     string    `xml:"updated"`
}

// rssLink covers RSS (<link>url</link>) and Atom (<link href="url"/>).
type rssLink struct {
	Href string `xml:"href,attr"`
	Text string `xml:",chardata"`
}

func (i rssItem) url() string {
	for _, l := range i.Links {
		if text := strings.TrimSpace(l.Text); text != "" {
			return text
		}
	}
	for _, l := range i.Links {
		if l.Href != "" {
			return l.Href
		}
	}
	return ""
}

func (i rssItem) body() string {
	if i.Description != "" {
		return i.Description
	}
	return i.Summary
}

func (i rssItem) published() time.Time {
	for _, raw := range []string{i.PubDate, i.Updated} {
		if raw == "" {
			continue
		}
		for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

// RSSAdapter polls the profile's tiered feed list and keeps items matching
// the query terms inside the collection window.
type RSSAdapter struct {
	http *http.Client
}

func NewRSS() *RSSAdapter {
	return &RSSAdapter{
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// NewRSSWithClient is used by tests to point feeds at a local server.
func NewRSSWithClient(hc *http.Client) *RSSAdapter {
	return &RSSAdapter{http: hc}
}

func (a *RSSAdapter) Name() string {
	return "rss"
}

func (a *RSSAdapter) Fetch(ctx context.Context, q Query) ([]model.RawSignal, error) {
	if q.Profile == nil {
		return nil, nil
	}

	cutoff := time.Now().UTC().Add(-q.Window.Duration())
	terms := queryTerms(q.Text)

	var signals []model.RawSignal
	var lastErr error
	fetched := 0
	for _, src := range q.Profile.AllSources() {
		if ctx.Err() != nil {
			break
		}

		feedURL := normalizeFeedURL(src)
		items, err := a.fetchFeed(ctx, feedURL)
		if err != nil {
			// One dead feed must not sink the rest of the list.
			zap.L().Warn("source: rss feed failed",
				zap.String("feed", feedURL),
				zap.Error(err))
			lastErr = err
			continue
		}
		fetched++

		for _, item := range items {
			pub := item.published()
			if !pub.IsZero() && pub.Before(cutoff) {
				continue
			}
			if !matchesTerms(item.Title+" "+item.body(), terms) {
				continue
			}
			signals = append(signals, model.RawSignal{
				Title:       strings.TrimSpace(item.Title),
				Body:        strings.TrimSpace(item.body()),
				URL:         item.url(),
				Source:      hostOf(feedURL),
				PublishedAt: pub,
			})
		}
	}

	if fetched == 0 && lastErr != nil {
		return nil, eris.Wrap(lastErr, "rss: all feeds failed")
	}
	return clean(signals, a.Name()), nil
}

func (a *RSSAdapter) fetchFeed(ctx context.Context, feedURL string) ([]rssItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "rss: create request")
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "rss: fetch feed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("rss: feed status %d", resp.StatusCode)
	}
	return decodeFeed(resp.Body)
}

// decodeFeed pulls every <item> or <entry> out of the stream. Feeds declare
// all manner of legacy charsets, so decoding goes through htmlindex.
func decodeFeed(r io.Reader) ([]rssItem, error) {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "rss: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}

	var items []rssItem
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			return items, nil
		}
		if err != nil {
			return items, eris.Wrap(err, "rss: read token")
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if se.Name.Local != "item" && se.Name.Local != "entry" {
			continue
		}

		var item rssItem
		if err := decoder.DecodeElement(&item, &se); err != nil {
			return items, eris.Wrap(err, "rss: decode item")
		}
		items = append(items, item)
	}
}

// normalizeFeedURL accepts either a full feed URL or a bare hostname from
// the profile's tier lists.
func normalizeFeedURL(src string) string {
	src = strings.TrimSpace(src)
	if strings.Contains(src, "://") {
		return src
	}
	return "https://" + src + "/feed"
}

func hostOf(rawURL string) string {
	s := rawURL
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimPrefix(s, "www.")
}

// queryTerms splits a query into lowercase terms, dropping short filler
// words so "Acme Corp product recall" matches on the words that matter.
func queryTerms(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `"'()`)
		if len(f) < 3 {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

// matchesTerms reports whether any term occurs in the text.
func matchesTerms(text string, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
