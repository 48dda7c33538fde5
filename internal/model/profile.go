package model

import "strings"

// SourceTiers groups known feed/source hostnames by authority.
type SourceTiers struct {
	Critical []string `json:"critical" yaml:"critical"`
	High     []string `json:"high" yaml:"high"`
	Medium   []string `json:"medium" yaml:"medium"`
}

// OrganizationProfile describes the organization being monitored. Supplied
// by the profile provider and read-only to the pipeline.
type OrganizationProfile struct {
	ID           string      `json:"id" yaml:"id"`
	Name         string      `json:"name" yaml:"name"`
	Industry     string      `json:"industry" yaml:"industry"`
	Competitors  []string    `json:"competitors" yaml:"competitors"`
	Keywords     []string    `json:"keywords" yaml:"keywords"`
	Stakeholders []string    `json:"stakeholders" yaml:"stakeholders"`
	SourceTiers  SourceTiers `json:"source_tiers" yaml:"source_tiers"`
}

// Tier returns the authority tier for a source name or hostname. Unknown
// sources rank medium.
func (p *OrganizationProfile) Tier(source string) SourceTier {
	s := strings.ToLower(strings.TrimSpace(source))
	for _, c := range p.SourceTiers.Critical {
		if strings.Contains(s, strings.ToLower(c)) {
			return TierCritical
		}
	}
	for _, h := range p.SourceTiers.High {
		if strings.Contains(s, strings.ToLower(h)) {
			return TierHigh
		}
	}
	return TierMedium
}

// AllSources returns every tiered source in descending authority order.
func (p *OrganizationProfile) AllSources() []string {
	out := make([]string, 0, len(p.SourceTiers.Critical)+len(p.SourceTiers.High)+len(p.SourceTiers.Medium))
	out = append(out, p.SourceTiers.Critical...)
	out = append(out, p.SourceTiers.High...)
	out = append(out, p.SourceTiers.Medium...)
	return out
}
