package domain

import (
	"time"
)

// Domain identifies a feature schema. Vector length and slot meaning are
// fixed per domain and must be stable between training and inference.
type Domain string

const (
	DomainDevice   Domain = "device"
	DomainBehavior Domain = "behavior"
	DomainRisk     Domain = "risk"
)

// VectorLen returns the fixed feature-vector length for a domain, or 0 for
// an unknown domain.
func (d Domain) VectorLen() int {
	switch d {
	case DomainDevice:
		return 18
	case DomainBehavior:
		return 15
	case DomainRisk:
		return 14
	default:
		return 0
	}
}

// Valid reports whether d is a known feature domain.
func (d Domain) Valid() bool {
	return d.VectorLen() > 0
}

// FeatureVector is an ordered, fixed-length numeric encoding of a raw
// session record. Slot meaning is documented per domain in internal/feature.
type FeatureVector []float64

// LabeledSample pairs a feature vector with a training target.
// Label is a class (0/1) for classifiers and a continuous value for
// regressors; clustering and outlier models ignore it.
type LabeledSample struct {
	Features FeatureVector `json:"features"`
	Label    float64       `json:"label"`
}

// Training result statuses.
const (
	TrainingSuccess          = "success"
	TrainingInsufficientData = "insufficient_data"
	TrainingError            = "error"
)

// TrainingResult is the outcome of one train call.
type TrainingResult struct {
	Status           string             `json:"status"`
	Domain           Domain             `json:"domain"`
	Model            string             `json:"model"`
	Samples          int                `json:"samples"`
	MinSamples       int                `json:"minSamples"`
	ConfidenceSource string             `json:"confidenceSource,omitempty"`
	Metrics          map[string]float64 `json:"metrics,omitempty"`
	Error            string             `json:"error,omitempty"`
	TrainedAt        time.Time          `json:"trainedAt,omitempty"`
}

// ModelOutput is the raw result of one model's inference on a vector.
// An untrained model returns the documented neutral default: Score 0.5,
// Confidence 0, Trained false — callers treat it as "cannot assess".
type ModelOutput struct {
	Model      string  `json:"model"`
	Domain     Domain  `json:"domain"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Trained    bool    `json:"trained"`
	Source     string  `json:"source,omitempty"` // "live" or "synthetic_seed"

	// Model-specific detail.
	Outlier  bool    `json:"outlier,omitempty"`
	Cluster  int     `json:"cluster,omitempty"`
	Distance float64 `json:"distance,omitempty"`
	Estimate float64 `json:"estimate,omitempty"`
}

// ModelState describes one registered model for introspection APIs.
type ModelState struct {
	Domain           Domain    `json:"domain"`
	Model            string    `json:"model"`
	Trained          bool      `json:"trained"`
	Samples          int       `json:"samples"`
	ConfidenceSource string    `json:"confidenceSource,omitempty"`
	TrainedAt        time.Time `json:"trainedAt,omitempty"`
}

// ModelSnapshot is a serialized fitted model plus its scaler, persisted so
// a restart does not lose trained state.
type ModelSnapshot struct {
	Domain           Domain    `json:"domain"`
	Model            string    `json:"model"`
	Payload          []byte    `json:"payload"`
	Samples          int       `json:"samples"`
	ConfidenceSource string    `json:"confidenceSource"`
	TrainedAt        time.Time `json:"trainedAt"`
}
