package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProfileTier(t *testing.T) {
	p := &OrganizationProfile{
		SourceTiers: SourceTiers{
			Critical: []string{"sec.gov", "Reuters"},
			High:     []string{"techcrunch.com"},
			Medium:   []string{"reddit.com"},
		},
	}

	tests := []struct {
		source string
		want   SourceTier
	}{
		{"https://www.sec.gov/filings/123", TierCritical},
		{"reuters.com", TierCritical},
		{"TechCrunch.com", TierHigh},
		{"reddit.com", TierMedium},
		{"some-random-blog.net", TierMedium},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Tier(tt.source))
		})
	}
}

func TestProfileAllSources(t *testing.T) {
	p := &OrganizationProfile{
		SourceTiers: SourceTiers{
			Critical: []string{"a"},
			High:     []string{"b", "c"},
			Medium:   []string{"d"},
		},
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, p.AllSources())
}
