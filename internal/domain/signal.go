package domain

import (
	"time"
)

// SignalConfig defines a suspicion signal: a CEL expression evaluated over
// the extracted feature slots (and the raw record) of one domain. Signals
// are the always-available heuristic member of the scoring ensemble and
// encode the per-feature suspicion thresholds as tunable configuration,
// not validated constants.
type SignalConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Domain      Domain `json:"domain"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression over "features" (named slots) and "record" (raw map).
	// Must return bool (fired/not) or double (score, fired when > 0).
	Expression string `json:"expression"`

	// Weight is the signal's contribution to the heuristic composite.
	Weight float64 `json:"weight"`

	// Factor is the plain-language risk factor emitted when fired.
	Factor string `json:"factor"`

	// Recommendation is an optional action hint emitted when fired.
	Recommendation string `json:"recommendation,omitempty"`

	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// SignalResult is the output of one signal evaluation.
type SignalResult struct {
	SignalID       string  `json:"signalId"`
	TenantID       string  `json:"tenantId"`
	SessionID      string  `json:"sessionId"`
	Fired          bool    `json:"fired"`
	Score          float64 `json:"score"`
	Weight         float64 `json:"weight"`
	Factor         string  `json:"factor,omitempty"`
	Recommendation string  `json:"recommendation,omitempty"`
	Err            string  `json:"error,omitempty"`
	ProcessMs      int64   `json:"processMs"`
}
