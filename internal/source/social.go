package source

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sentinel-cli/internal/model"
	"github.com/sells-group/sentinel-cli/pkg/reddit"
)

// SocialAdapter surfaces chatter from Reddit's public search.
type SocialAdapter struct {
	client reddit.Client
}

func NewSocial(client reddit.Client) *SocialAdapter {
	return &SocialAdapter{client: client}
}

func (a *SocialAdapter) Name() string {
	return "social"
}

func (a *SocialAdapter) Fetch(ctx context.Context, q Query) ([]model.RawSignal, error) {
	posts, err := a.client.Search(ctx, q.Text, reddit.WithTimeFilter(redditWindow(q.Window)))
	if err != nil {
		return nil, eris.Wrap(err, "social: search")
	}

	signals := make([]model.RawSignal, 0, len(posts))
	for _, p := range posts {
		signals = append(signals, model.RawSignal{
			Title:       p.Title,
			Body:        p.SelfText,
			URL:         p.FullURL(),
			Source:      "reddit.com/r/" + p.Subreddit,
			PublishedAt: p.Created(),
		})
	}
	return clean(signals, a.Name()), nil
}

// redditWindow maps the collection window onto Reddit's coarser age
// filters. Both 6h and 24h fall under "day"; Reddit has nothing between
// hour and day.
func redditWindow(w model.TimeWindow) string {
	if w == model.Window1h {
		return "hour"
	}
	return "day"
}
