package domain

import (
	"time"
)

// Tier is the discrete risk bucket derived from a composite score.
type Tier string

const (
	TierMinimal  Tier = "MINIMAL"
	TierLow      Tier = "LOW"
	TierMedium   Tier = "MEDIUM"
	TierHigh     Tier = "HIGH"
	TierCritical Tier = "CRITICAL"
)

// Tier thresholds shared by every scoring surface. A score s maps to the
// first tier whose upper bound exceeds it.
const (
	TierThresholdLow      = 0.2
	TierThresholdMedium   = 0.4
	TierThresholdHigh     = 0.6
	TierThresholdCritical = 0.8
)

// TierForScore maps a [0,1] composite score to its tier.
func TierForScore(score float64) Tier {
	switch {
	case score < TierThresholdLow:
		return TierMinimal
	case score < TierThresholdMedium:
		return TierLow
	case score < TierThresholdHigh:
		return TierMedium
	case score < TierThresholdCritical:
		return TierHigh
	default:
		return TierCritical
	}
}

// TierRank returns the position of a tier on the ordered scale
// MINIMAL < LOW < MEDIUM < HIGH < CRITICAL. Unknown tiers rank lowest.
func TierRank(t Tier) int {
	switch t {
	case TierMinimal:
		return 0
	case TierLow:
		return 1
	case TierMedium:
		return 2
	case TierHigh:
		return 3
	case TierCritical:
		return 4
	default:
		return 0
	}
}

// ConfidenceSource labels where a score's confidence ultimately comes from.
const (
	ConfidenceSourceLive      = "live"
	ConfidenceSourceSynthetic = "synthetic_seed"
)

// RiskAssessment is the output record of one assessment call.
// The confidence value is a heuristic derived from inter-source agreement
// (1 - normalized standard deviation), not a calibrated interval.
type RiskAssessment struct {
	ID               string             `json:"id"`
	TenantID         string             `json:"tenantId"`
	SessionID        string             `json:"sessionId"`
	Domain           string             `json:"domain"`
	Score            float64            `json:"score"`
	Tier             Tier               `json:"tier"`
	Confidence       float64            `json:"confidence"`
	ConfidenceSource string             `json:"confidenceSource"`
	Factors          []string           `json:"factors"`
	Recommendations  []string           `json:"recommendations"`
	SignalResults    []SignalResult     `json:"signalResults,omitempty"`
	ModelOutputs     []ModelOutput      `json:"modelOutputs,omitempty"`
	Timestamp        time.Time          `json:"timestamp"`
	Metadata         AssessmentMetadata `json:"metadata"`
}

// AssessmentMetadata carries per-stage processing information.
type AssessmentMetadata struct {
	TraceID         string `json:"traceId"`
	ExtractMs       int64  `json:"extractMs"`
	SignalsMs       int64  `json:"signalsMs"`
	ModelsMs        int64  `json:"modelsMs"`
	TotalMs         int64  `json:"totalMs"`
	SignalsFired    int    `json:"signalsFired"`
	ModelsConsulted int    `json:"modelsConsulted"`
	EngineVersion   string `json:"engineVersion"`
}

// AssessResponse is the API response for POST /assess.
type AssessResponse struct {
	AssessmentID     string             `json:"assessmentId"`
	SessionID        string             `json:"sessionId"`
	TenantID         string             `json:"tenantId"`
	Score            float64            `json:"score"`
	Tier             Tier               `json:"tier"`
	Confidence       float64            `json:"confidence"`
	ConfidenceSource string             `json:"confidenceSource"`
	Factors          []string           `json:"factors"`
	Recommendations  []string           `json:"recommendations"`
	Metadata         AssessmentMetadata `json:"metadata"`
}

// ToResponse converts a RiskAssessment to an API response.
func (a *RiskAssessment) ToResponse() *AssessResponse {
	return &AssessResponse{
		AssessmentID:     a.ID,
		SessionID:        a.SessionID,
		TenantID:         a.TenantID,
		Score:            a.Score,
		Tier:             a.Tier,
		Confidence:       a.Confidence,
		ConfidenceSource: a.ConfidenceSource,
		Factors:          a.Factors,
		Recommendations:  a.Recommendations,
		Metadata:         a.Metadata,
	}
}
