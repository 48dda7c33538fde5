package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sentinel-cli/internal/model"
)

func rssFeed(pubDate time.Time) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example News</title>
    <item>
      <title>Acme announces massive recall</title>
      <link>https://news.example/acme-recall</link>
      <description>Acme Corp is recalling its flagship line.</description>
      <pubDate>%s</pubDate>
    </item>
    <item>
      <title>Weather stays mild</title>
      <link>https://news.example/weather</link>
      <description>Nothing to see here.</description>
      <pubDate>%s</pubDate>
    </item>
  </channel>
</rss>`, pubDate.Format(time.RFC1123Z), pubDate.Format(time.RFC1123Z))
}

func testProfile(sources ...string) *model.OrganizationProfile {
	return &model.OrganizationProfile{
		ID:   "acme",
		Name: "Acme Corp",
		SourceTiers: model.SourceTiers{
			Critical: sources,
		},
	}
}

func TestRSSFetchFiltersAndMatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssFeed(time.Now().UTC())))
	}))
	defer srv.Close()

	a := NewRSSWithClient(srv.Client())
	q := Query{
		Text:    "Acme recall",
		Window:  model.Window24h,
		Profile: testProfile(srv.URL),
	}

	signals, err := a.Fetch(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, signals, 1, "only the item matching the query terms survives")
	assert.Equal(t, "Acme announces massive recall", signals[0].Title)
	assert.Equal(t, "rss", signals[0].Adapter)
}

func TestRSSFetchDropsStaleItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rssFeed(time.Now().UTC().Add(-48 * time.Hour))))
	}))
	defer srv.Close()

	a := NewRSSWithClient(srv.Client())
	q := Query{
		Text:    "Acme recall",
		Window:  model.Window24h,
		Profile: testProfile(srv.URL),
	}

	signals, err := a.Fetch(context.Background(), q)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestRSSFetchSurvivesDeadFeed(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer dead.Close()

	alive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rssFeed(time.Now().UTC())))
	}))
	defer alive.Close()

	a := NewRSSWithClient(alive.Client())
	q := Query{
		Text:    "Acme recall",
		Window:  model.Window24h,
		Profile: testProfile(dead.URL, alive.URL),
	}

	signals, err := a.Fetch(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, signals, 1)
}

func TestRSSFetchAllFeedsDead(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer dead.Close()

	a := NewRSSWithClient(dead.Client())
	q := Query{
		Text:    "Acme",
		Window:  model.Window24h,
		Profile: testProfile(dead.URL),
	}

	_, err := a.Fetch(context.Background(), q)
	assert.Error(t, err)
}

func TestRSSFetchNilProfile(t *testing.T) {
	a := NewRSS()
	signals, err := a.Fetch(context.Background(), Query{Text: "q"})
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestDecodeFeedAtom(t *testing.T) {
	atom := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <title>Acme funding round</title>
    <link href="https://blog.example/acme-funding"/>
    <summary>Acme raised a series C.</summary>
    <updated>2026-08-31T08:00:00Z</updated>
  </entry>
</feed>`

	items, err := decodeFeed(strings.NewReader(atom))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Acme funding round", items[0].Title)
	assert.Equal(t, "https://blog.example/acme-funding", items[0].url())
	assert.Equal(t, 2026, items[0].published().Year())
}

func TestNormalizeFeedURL(t *testing.T) {
	assert.Equal(t, "https://example.com/rss.xml", normalizeFeedURL("https://example.com/rss.xml"))
	assert.Equal(t, "https://example.com/feed", normalizeFeedURL("example.com"))
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "news.example", hostOf("https://www.news.example/path/to/story"))
	assert.Equal(t, "news.example", hostOf("news.example"))
}
