// Package report turns raw scoring output into the human-facing part of an
// assessment: plain-language risk factors and tier-keyed recommended actions.
package report

import (
	"sort"

	"github.com/openproctor/kestrel/internal/domain"
)

// Factors emitted for model findings that have no originating signal.
const (
	factorStatisticalOutlier = "Statistical Outlier Across Sessions"
	factorUnusualCluster     = "Session Outside Known Behavior Clusters"
)

// Baseline recommendations per tier. Signal-specific recommendations are
// appended after these.
var tierRecommendations = map[domain.Tier][]string{
	domain.TierMinimal: {"no action required"},
	domain.TierLow:     {"monitor subsequent sessions"},
	domain.TierMedium:  {"flag session for proctor review"},
	domain.TierHigh: {
		"require additional verification",
		"flag session for proctor review",
	},
	domain.TierCritical: {
		"require additional verification",
		"withhold results pending manual review",
	},
}

// Build assembles factors and recommendations for one assessment.
//
// Factors come from fired signals ordered by weight (heaviest first, ties by
// factor text) plus model-derived findings, deduplicated. Recommendations
// start from the tier baseline and append any recommendations carried by
// fired signals.
func Build(tier domain.Tier, signals []domain.SignalResult, outputs []domain.ModelOutput) (factors, recommendations []string) {
	fired := make([]domain.SignalResult, 0, len(signals))
	for _, r := range signals {
		if r.Fired && r.Err == "" && r.Factor != "" {
			fired = append(fired, r)
		}
	}
	sort.SliceStable(fired, func(i, j int) bool {
		if fired[i].Weight != fired[j].Weight {
			return fired[i].Weight > fired[j].Weight
		}
		return fired[i].Factor < fired[j].Factor
	})

	seen := make(map[string]bool)
	factors = make([]string, 0, len(fired))
	for _, r := range fired {
		if !seen[r.Factor] {
			seen[r.Factor] = true
			factors = append(factors, r.Factor)
		}
	}

	for _, out := range outputs {
		switch {
		case out.Outlier && !seen[factorStatisticalOutlier]:
			seen[factorStatisticalOutlier] = true
			factors = append(factors, factorStatisticalOutlier)
		case out.Model == "dbscan" && out.Cluster < 0 && !seen[factorUnusualCluster]:
			seen[factorUnusualCluster] = true
			factors = append(factors, factorUnusualCluster)
		}
	}

	recommendations = append(recommendations, tierRecommendations[tier]...)
	recSeen := make(map[string]bool, len(recommendations))
	for _, rec := range recommendations {
		recSeen[rec] = true
	}
	for _, r := range fired {
		if r.Recommendation != "" && !recSeen[r.Recommendation] {
			recSeen[r.Recommendation] = true
			recommendations = append(recommendations, r.Recommendation)
		}
	}

	return factors, recommendations
}
