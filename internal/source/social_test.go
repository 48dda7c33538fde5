package source

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sentinel-cli/internal/model"
	"github.com/sells-group/sentinel-cli/pkg/reddit"
)

type fakeReddit struct {
	posts []reddit.Post
	err   error
	opts  []reddit.SearchOption
}

func (f *fakeReddit) Search(_ context.Context, _ string, opts ...reddit.SearchOption) ([]reddit.Post, error) {
	f.opts = opts
	return f.posts, f.err
}

func TestSocialFetch(t *testing.T) {
	fake := &fakeReddit{posts: []reddit.Post{
		{
			Title:      "Anyone else having Acme outages?",
			SelfText:   "Down since this morning.",
			Permalink:  "/r/sysadmin/comments/xyz/acme_outage",
			Subreddit:  "sysadmin",
			CreatedUTC: float64(time.Now().Unix()),
		},
	}}

	a := NewSocial(fake)
	signals, err := a.Fetch(context.Background(), Query{Text: "Acme outage", Window: model.Window6h})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "reddit.com/r/sysadmin", signals[0].Source)
	assert.Equal(t, "social", signals[0].Adapter)
	assert.Contains(t, signals[0].URL, "reddit.com")
}

func TestSocialFetchError(t *testing.T) {
	a := NewSocial(&fakeReddit{err: eris.New("rate limited")})
	_, err := a.Fetch(context.Background(), Query{Text: "Acme"})
	assert.Error(t, err)
}

func TestRedditWindow(t *testing.T) {
	assert.Equal(t, "hour", redditWindow(model.Window1h))
	assert.Equal(t, "day", redditWindow(model.Window6h))
	assert.Equal(t, "day", redditWindow(model.Window24h))
}
