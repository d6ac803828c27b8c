package model

import (
	"math/rand"

	"github.com/openproctor/kestrel/internal/domain"
	"github.com/openproctor/kestrel/internal/feature"
)

// SeedSynthetic cold-starts every model of a domain from generated gaussian
// samples, so the pipeline produces some answer before real labeled data
// accumulates. Models trained this way are explicitly marked with
// confidence source "synthetic_seed" so downstream consumers can discount
// their outputs; synthetic and real training history are never silently
// mixed — the next real train call replaces the seeded fit entirely.
func (b *Bank) SeedSynthetic(d domain.Domain, n int) []domain.TrainingResult {
	if n < 20 {
		n = 200
	}

	rng := rand.New(rand.NewSource(b.seed))
	samples := syntheticSamples(d, n, rng)

	results := make([]domain.TrainingResult, 0, len(specs))
	for _, name := range ModelNames() {
		results = append(results, b.train(d, name, samples, domain.ConfidenceSourceSynthetic))
	}
	return results
}

// syntheticSamples draws plausible feature vectors around a benign baseline
// profile, with a minority of shifted high-risk rows so supervised models
// see both classes. A share of the benign rows sits on the extractor's
// all-defaults vector: sessions with little or no telemetry are a common
// benign shape, and the seeded baseline must not treat them as outliers.
func syntheticSamples(d domain.Domain, n int, rng *rand.Rand) []domain.LabeledSample {
	dims := d.VectorLen()
	defaults := feature.Extract(d, domain.SessionRecord{})
	samples := make([]domain.LabeledSample, n)

	for i := range samples {
		vec := make(domain.FeatureVector, dims)
		anomalous := rng.Float64() < 0.15

		switch {
		case anomalous:
			for j := range vec {
				vec[j] = clamp01(0.75 + rng.NormFloat64()*0.12)
			}
		case rng.Float64() < 0.35:
			// Absent-telemetry session: the default vector with light jitter.
			for j := range vec {
				vec[j] = clamp01(defaults[j] + rng.NormFloat64()*0.02)
			}
		default:
			for j := range vec {
				vec[j] = clamp01(0.3 + rng.NormFloat64()*0.12)
			}
		}

		label := 0.0
		if anomalous {
			label = 1.0
		}
		samples[i] = domain.LabeledSample{Features: vec, Label: label}
	}
	return samples
}
