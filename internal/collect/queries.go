package collect

import (
	"fmt"
	"strings"

	"github.com/sells-group/sentinel-cli/internal/model"
	"github.com/sells-group/sentinel-cli/internal/source"
)

// Query kinds, used for logging and reports.
const (
	KindOrg         = "org"
	KindCompetitor  = "competitor"
	KindCrisis      = "crisis"
	KindOpportunity = "opportunity"
	KindIndustry    = "industry"
)

const maxCompetitorQueries = 2

// BuildQueries derives the fixed query set for one collection pass: the
// organization itself, its top competitors, crisis and opportunity probes,
// and one industry query. The count is bounded regardless of profile size.
func BuildQueries(profile *model.OrganizationProfile, window model.TimeWindow) []source.Query {
	mk := func(kind, text string) source.Query {
		return source.Query{
			Text:    strings.TrimSpace(text),
			Kind:    kind,
			Window:  window,
			Profile: profile,
		}
	}

	queries := []source.Query{
		mk(KindOrg, fmt.Sprintf("%q", profile.Name)),
	}

	for i, comp := range profile.Competitors {
		if i >= maxCompetitorQueries {
			break
		}
		queries = append(queries, mk(KindCompetitor, fmt.Sprintf("%q", comp)))
	}

	queries = append(queries,
		mk(KindCrisis, profile.Name+" lawsuit OR recall OR breach OR outage"),
		mk(KindCrisis, profile.Name+" layoffs OR scandal OR investigation"),
		mk(KindOpportunity, profile.Name+" funding OR acquisition OR partnership"),
		mk(KindOpportunity, profile.Name+" launch OR expansion OR contract win"),
	)

	if industry := strings.TrimSpace(profile.Industry); industry != "" {
		queries = append(queries, mk(KindIndustry, industry+" market news"))
	}

	return queries
}
