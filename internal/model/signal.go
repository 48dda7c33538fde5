package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// TimeWindow is the collection horizon for a pipeline run.
type TimeWindow string

const (
	Window1h  TimeWindow = "1h"
	Window6h  TimeWindow = "6h"
	Window24h TimeWindow = "24h"
)

// ParseWindow validates and normalizes a time window string.
func ParseWindow(s string) (TimeWindow, error) {
	switch TimeWindow(strings.ToLower(strings.TrimSpace(s))) {
	case Window1h:
		return Window1h, nil
	case Window6h:
		return Window6h, nil
	case Window24h:
		return Window24h, nil
	default:
		return "", eris.Errorf("invalid time window %q (want 1h, 6h, or 24h)", s)
	}
}

// Duration returns the wall-clock span the window covers.
func (w TimeWindow) Duration() time.Duration {
	switch w {
	case Window1h:
		return time.Hour
	case Window6h:
		return 6 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// SourceTier ranks the authority of a signal's source.
type SourceTier string

const (
	TierCritical SourceTier = "critical"
	TierHigh     SourceTier = "high"
	TierMedium   SourceTier = "medium"
)

// RawSignal is a single external item (article, post, filing) as returned by
// a source adapter. Identity is the URL; signals without one are discarded
// during collection merge.
type RawSignal struct {
	Title       string    `json:"title"`
	Body        string    `json:"body,omitempty"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	Adapter     string    `json:"adapter"`
}

// Valid reports whether the signal carries enough identity to enter the
// pipeline.
func (s RawSignal) Valid() bool {
	return strings.TrimSpace(s.URL) != "" && strings.TrimSpace(s.Title) != ""
}

// ScoredSignal is a RawSignal annotated with its relevance score. Never
// mutated after scoring.
type ScoredSignal struct {
	RawSignal
	Score           float64    `json:"score"`
	Tier            SourceTier `json:"tier"`
	MatchedKeywords []string   `json:"matched_keywords,omitempty"`
}

// SeenMarker records that a signal URL has been processed for an
// organization. Append-only; expiry is handled by age-filtered queries,
// never by explicit deletion.
type SeenMarker struct {
	OrgID       string    `json:"org_id"`
	URL         string    `json:"url"`
	FirstSeenAt time.Time `json:"first_seen_at"`
}
