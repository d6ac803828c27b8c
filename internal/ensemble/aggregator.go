// Package ensemble combines the per-source risk scores (suspicion signals
// plus trained model outputs) into one final score and a confidence value.
package ensemble

import (
	"math"
	"sort"

	"github.com/openproctor/kestrel/internal/domain"
)

// SourceSignals is the reserved source name of the heuristic signal
// composite in the ensemble weight table.
const SourceSignals = "signals"

// Source is one contributing score.
type Source struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Result is the combined ensemble outcome.
type Result struct {
	// Score is the weighted mean of the contributing sources, in [0,1].
	Score float64 `json:"score"`

	// Confidence reflects inter-source agreement: 1 when every source says
	// the same thing, falling toward 0 as they diverge. With fewer than two
	// sources there is no agreement to measure, so confidence is 0.
	Confidence float64 `json:"confidence"`

	// Sources holds the contributing scores keyed by source name.
	Sources map[string]float64 `json:"sources"`
}

// Aggregator applies the configured source weights.
type Aggregator struct {
	weights map[string]float64
	norm    float64
}

// NewAggregator creates an aggregator from scoring config. A source missing
// from the weight table gets an equal 1/n share instead, so adding a new
// model never silently zeroes its contribution and never discards the
// configured weights of the others.
func NewAggregator(cfg domain.ScoringConfig) *Aggregator {
	norm := cfg.ConfidenceNorm
	if norm <= 0 {
		norm = 0.25
	}
	return &Aggregator{weights: cfg.SourceWeights, norm: norm}
}

// Aggregate combines source scores into the final ensemble result.
//
// The score is the weighted mean of the sources, floored at the signal
// composite: fired signals are deterministic observations (a VM flag, a
// machine-regular timing series), and a statistical baseline may raise the
// assessment above them but never argue them away.
func (a *Aggregator) Aggregate(sources []Source) Result {
	res := Result{Sources: make(map[string]float64, len(sources))}
	if len(sources) == 0 {
		return res
	}

	sorted := make([]Source, len(sources))
	copy(sorted, sources)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	defaultShare := 1.0 / float64(len(sorted))

	var sum, totalWeight, floor float64
	for _, s := range sorted {
		res.Sources[s.Name] = s.Score

		w, ok := a.weights[s.Name]
		if !ok {
			w = defaultShare
		}
		sum += s.Score * w
		totalWeight += w

		if s.Name == SourceSignals && s.Score > floor {
			floor = s.Score
		}
	}
	if totalWeight > 0 {
		res.Score = clamp01(sum / totalWeight)
	}
	if floor > res.Score {
		res.Score = clamp01(floor)
	}

	res.Confidence = a.confidence(sorted)
	return res
}

// confidence inverts the population standard deviation of the raw source
// scores, normalized by the configured norm.
func (a *Aggregator) confidence(sources []Source) float64 {
	if len(sources) < 2 {
		return 0
	}

	var mean float64
	for _, s := range sources {
		mean += s.Score
	}
	mean /= float64(len(sources))

	var variance float64
	for _, s := range sources {
		d := s.Score - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(sources)))

	spread := std / a.norm
	if spread > 1 {
		spread = 1
	}
	return 1 - spread
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
