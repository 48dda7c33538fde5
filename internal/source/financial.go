package source

import (
	"context"
	"time"

	finnhub "github.com/Finnhub-Stock-API/finnhub-go/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sentinel-cli/internal/model"
	"github.com/sells-group/sentinel-cli/pkg/alphavantage"
)

// MarketNewsFetcher is the narrow slice of the Finnhub SDK the financial
// adapter needs. Lets tests substitute a fake.
type MarketNewsFetcher interface {
	MarketNews(ctx context.Context, category string) ([]finnhub.MarketNews, error)
}

type finnhubFetcher struct {
	api *finnhub.DefaultApiService
}

// NewFinnhubFetcher builds a MarketNewsFetcher over the real Finnhub API.
func NewFinnhubFetcher(apiKey string) MarketNewsFetcher {
	cfg := finnhub.NewConfiguration()
	cfg.AddDefaultHeader("X-Finnhub-Token", apiKey)
	return &finnhubFetcher{api: finnhub.NewAPIClient(cfg).DefaultApi}
}

func (f *finnhubFetcher) MarketNews(ctx context.Context, category string) ([]finnhub.MarketNews, error) {
	res, _, err := f.api.MarketNews(ctx).Category(category).Execute()
	if err != nil {
		return nil, eris.Wrap(err, "finnhub: market news")
	}
	return res, nil
}

// FinancialAdapter merges Finnhub market news with Alpha Vantage news
// sentiment, keeping only items that mention the query terms.
type FinancialAdapter struct {
	finnhub MarketNewsFetcher
	av      alphavantage.Client
}

func NewFinancial(fh MarketNewsFetcher, av alphavantage.Client) *FinancialAdapter {
	return &FinancialAdapter{finnhub: fh, av: av}
}

func (a *FinancialAdapter) Name() string {
	return "financial"
}

func (a *FinancialAdapter) Fetch(ctx context.Context, q Query) ([]model.RawSignal, error) {
	cutoff := time.Now().UTC().Add(-q.Window.Duration())
	terms := queryTerms(q.Text)

	var signals []model.RawSignal
	var errs []error

	if a.finnhub != nil {
		news, err := a.finnhub.MarketNews(ctx, "general")
		if err != nil {
			zap.L().Warn("source: finnhub fetch failed", zap.Error(err))
			errs = append(errs, err)
		} else {
			signals = append(signals, finnhubSignals(news, terms, cutoff)...)
		}
	}

	if a.av != nil {
		resp, err := a.av.NewsSentiment(ctx, alphavantage.WithTimeFrom(cutoff))
		if err != nil {
			zap.L().Warn("source: alphavantage fetch failed", zap.Error(err))
			errs = append(errs, err)
		} else {
			signals = append(signals, alphavantageSignals(resp.Feed, terms, cutoff)...)
		}
	}

	// Partial coverage is fine; error only when no upstream answered.
	if len(signals) == 0 && len(errs) > 0 && len(errs) == providerCount(a) {
		return nil, eris.Wrap(errs[0], "financial: all providers failed")
	}
	return clean(signals, a.Name()), nil
}

func providerCount(a *FinancialAdapter) int {
	n := 0
	if a.finnhub != nil {
		n++
	}
	if a.av != nil {
		n++
	}
	return n
}

func finnhubSignals(news []finnhub.MarketNews, terms []string, cutoff time.Time) []model.RawSignal {
	var out []model.RawSignal
	for _, n := range news {
		if n.Headline == nil || n.Url == nil {
			continue
		}
		var pub time.Time
		if n.Datetime != nil {
			pub = time.Unix(*n.Datetime, 0).UTC()
			if pub.Before(cutoff) {
				continue
			}
		}
		summary := ""
		if n.Summary != nil {
			summary = *n.Summary
		}
		if !matchesTerms(*n.Headline+" "+summary, terms) {
			continue
		}
		src := "finnhub"
		if n.Source != nil && *n.Source != "" {
			src = *n.Source
		}
		out = append(out, model.RawSignal{
			Title:       *n.Headline,
			Body:        summary,
			URL:         *n.Url,
			Source:      src,
			PublishedAt: pub,
		})
	}
	return out
}

func alphavantageSignals(feed []alphavantage.NewsItem, terms []string, cutoff time.Time) []model.RawSignal {
	var out []model.RawSignal
	for _, item := range feed {
		pub := item.Published()
		if !pub.IsZero() && pub.Before(cutoff) {
			continue
		}
		if !matchesTerms(item.Title+" "+item.Summary, terms) {
			continue
		}
		out = append(out, model.RawSignal{
			Title:       item.Title,
			Body:        item.Summary,
			URL:         item.URL,
			Source:      item.Source,
			PublishedAt: pub,
		})
	}
	return out
}
