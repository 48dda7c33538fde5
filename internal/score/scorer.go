// Package score ranks raw signals by weighted relevance to an organization
// profile.
package score

import (
	"sort"
	"strings"
	"time"

	"github.com/sells-group/sentinel-cli/internal/model"
)

// Crisis and urgency vocabularies are fixed; profile keywords supply the
// org-specific terms.
var (
	crisisKeywords = []string{"lawsuit", "recall", "investigation", "breach", "scandal", "fine", "penalty"}
	urgentMarkers  = []string{"breaking", "just in", "urgent", "alert"}
)

// Weights holds the point value of each scoring feature.
type Weights struct {
	OrgTitle        float64
	OrgBody         float64
	CompetitorTitle float64
	CompetitorBody  float64
	CrisisKeyword   float64
	UrgentMarker    float64
	Stakeholder     float64
	KeywordMatch    float64
	KeywordCap      float64
	TierCritical    float64
	TierHigh        float64
	RecencyHour     float64
	Recency6h       float64
	Recency24h      float64
}

// DefaultWeights returns the standard feature weights.
func DefaultWeights() Weights {
	return Weights{
		OrgTitle:        50,
		OrgBody:         20,
		CompetitorTitle: 40,
		CompetitorBody:  15,
		CrisisKeyword:   30,
		UrgentMarker:    25,
		Stakeholder:     20,
		KeywordMatch:    10,
		KeywordCap:      30,
		TierCritical:    15,
		TierHigh:        10,
		RecencyHour:     20,
		Recency6h:       10,
		Recency24h:      5,
	}
}

// Scorer assigns relevance scores. Stateless between calls; safe for
// concurrent use.
type Scorer struct {
	weights Weights
	now     func() time.Time
}

func New(weights Weights) *Scorer {
	return &Scorer{weights: weights, now: time.Now}
}

// WithNow overrides the clock for tests.
func (s *Scorer) WithNow(now func() time.Time) *Scorer {
	s.now = now
	return s
}

// Score evaluates every signal against the profile, discards zero-score
// signals, and returns the rest in a deterministic order: score descending,
// then newest first, then URL ascending.
func (s *Scorer) Score(signals []model.RawSignal, profile *model.OrganizationProfile) []model.ScoredSignal {
	now := s.now().UTC()

	scored := make([]model.ScoredSignal, 0, len(signals))
	for _, sig := range signals {
		score, matched := s.scoreOne(sig, profile, now)
		if score <= 0 {
			continue
		}
		scored = append(scored, model.ScoredSignal{
			RawSignal:       sig,
			Score:           score,
			Tier:            profile.Tier(sig.Source),
			MatchedKeywords: matched,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if !scored[i].PublishedAt.Equal(scored[j].PublishedAt) {
			return scored[i].PublishedAt.After(scored[j].PublishedAt)
		}
		return scored[i].URL < scored[j].URL
	})
	return scored
}

// TopK truncates a scored slice to its k best entries.
func TopK(scored []model.ScoredSignal, k int) []model.ScoredSignal {
	if k <= 0 || len(scored) <= k {
		return scored
	}
	return scored[:k]
}

func (s *Scorer) scoreOne(sig model.RawSignal, profile *model.OrganizationProfile, now time.Time) (float64, []string) {
	title := strings.ToLower(sig.Title)
	body := strings.ToLower(sig.Body)
	full := title + " " + body

	var score float64
	var matched []string

	if orgName := strings.ToLower(profile.Name); orgName != "" {
		if strings.Contains(title, orgName) {
			score += s.weights.OrgTitle
		} else if strings.Contains(body, orgName) {
			score += s.weights.OrgBody
		}
	}

	inTitle, inBody := false, false
	for _, comp := range profile.Competitors {
		c := strings.ToLower(comp)
		if c == "" {
			continue
		}
		if strings.Contains(title, c) {
			inTitle = true
		} else if strings.Contains(body, c) {
			inBody = true
		}
	}
	if inTitle {
		score += s.weights.CompetitorTitle
	} else if inBody {
		score += s.weights.CompetitorBody
	}

	crisisHit := false
	for _, kw := range crisisKeywords {
		if containsWord(full, kw) {
			crisisHit = true
			matched = append(matched, kw)
		}
	}
	if crisisHit {
		score += s.weights.CrisisKeyword
	}

	for _, marker := range urgentMarkers {
		if strings.Contains(full, marker) {
			score += s.weights.UrgentMarker
			break
		}
	}

	for _, st := range profile.Stakeholders {
		if st != "" && strings.Contains(full, strings.ToLower(st)) {
			score += s.weights.Stakeholder
			break
		}
	}

	var keywordPoints float64
	for _, kw := range profile.Keywords {
		k := strings.ToLower(kw)
		if k == "" || !strings.Contains(full, k) {
			continue
		}
		keywordPoints += s.weights.KeywordMatch
		matched = append(matched, kw)
	}
	if keywordPoints > s.weights.KeywordCap {
		keywordPoints = s.weights.KeywordCap
	}
	score += keywordPoints

	switch profile.Tier(sig.Source) {
	case model.TierCritical:
		score += s.weights.TierCritical
	case model.TierHigh:
		score += s.weights.TierHigh
	}

	if !sig.PublishedAt.IsZero() {
		age := now.Sub(sig.PublishedAt.UTC())
		switch {
		case age < time.Hour:
			score += s.weights.RecencyHour
		case age < 6*time.Hour:
			score += s.weights.Recency6h
		case age < 24*time.Hour:
			score += s.weights.Recency24h
		}
	}

	return score, matched
}

// containsWord matches whole words so "fine" does not hit "defined".
func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		startOK := start == 0 || !isWordChar(text[start-1])
		endOK := end == len(text) || !isWordChar(text[end])
		if startOK && endOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
