package source

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sentinel-cli/internal/model"
	"github.com/sells-group/sentinel-cli/pkg/jina"
)

// WebSearchAdapter runs queries against the Jina search API.
type WebSearchAdapter struct {
	client jina.Client
}

func NewWebSearch(client jina.Client) *WebSearchAdapter {
	return &WebSearchAdapter{client: client}
}

func (a *WebSearchAdapter) Name() string {
	return "websearch"
}

func (a *WebSearchAdapter) Fetch(ctx context.Context, q Query) ([]model.RawSignal, error) {
	resp, err := a.client.Search(ctx, q.Text, jina.WithMaxAge(q.Window.Duration()))
	if err != nil {
		return nil, eris.Wrap(err, "websearch: search")
	}

	signals := make([]model.RawSignal, 0, len(resp.Data))
	for _, r := range resp.Data {
		body := r.Description
		if body == "" {
			body = r.Content
		}
		signals = append(signals, model.RawSignal{
			Title:       r.Title,
			Body:        body,
			URL:         r.URL,
			Source:      hostOf(r.URL),
			PublishedAt: r.Published(),
		})
	}
	return clean(signals, a.Name()), nil
}
