package source

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sentinel-cli/internal/model"
	"github.com/sells-group/sentinel-cli/pkg/jina"
)

type fakeJina struct {
	resp *jina.SearchResponse
	err  error
	last string
}

func (f *fakeJina) Search(_ context.Context, query string, _ ...jina.SearchOption) (*jina.SearchResponse, error) {
	f.last = query
	return f.resp, f.err
}

func TestWebSearchFetch(t *testing.T) {
	fake := &fakeJina{resp: &jina.SearchResponse{Data: []jina.SearchResult{
		{
			Title:         "Acme sued over data breach",
			URL:           "https://www.law.example/acme-suit",
			Description:   "Class action filed.",
			PublishedTime: "2026-08-31T12:00:00Z",
		},
		{Title: "no url result"},
	}}}

	a := NewWebSearch(fake)
	signals, err := a.Fetch(context.Background(), Query{Text: "Acme lawsuit", Window: model.Window24h})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "Acme lawsuit", fake.last)
	assert.Equal(t, "law.example", signals[0].Source)
	assert.Equal(t, "websearch", signals[0].Adapter)
}

func TestWebSearchFetchError(t *testing.T) {
	a := NewWebSearch(&fakeJina{err: eris.New("search down")})
	_, err := a.Fetch(context.Background(), Query{Text: "Acme"})
	assert.Error(t, err)
}
