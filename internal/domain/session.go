package domain

import (
	"time"
)

// SessionRecord is the raw telemetry collected for one assessment session.
// It is an arbitrarily shaped, partially missing nested map; every consumer
// must tolerate absent keys. Typical top-level keys: "device", "network",
// "behavior", "vm_indicators", "response_times", "history".
type SessionRecord map[string]any

// Session is a stored assessment session with its raw telemetry.
type Session struct {
	ID          string        `json:"id"`
	TenantID    string        `json:"tenantId"`
	CandidateID string        `json:"candidateId"`
	DeviceID    string        `json:"deviceId,omitempty"`
	Record      SessionRecord `json:"record"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// AssessRequest is the API request payload for session risk assessment.
type AssessRequest struct {
	SessionID   string        `json:"sessionId,omitempty"`
	CandidateID string        `json:"candidateId,omitempty"`
	DeviceID    string        `json:"deviceId,omitempty"`
	Domain      string        `json:"domain,omitempty"` // defaults to "risk"
	Record      SessionRecord `json:"record"`
}

// CandidateID and DeviceID are read from well-known record keys when the
// request leaves them blank.
func (r *AssessRequest) Normalize() {
	if r.CandidateID == "" {
		if v, ok := r.Record["candidate_id"].(string); ok {
			r.CandidateID = v
		}
	}
	if r.DeviceID == "" {
		if v, ok := r.Record["device_id"].(string); ok {
			r.DeviceID = v
		}
	}
	if r.Domain == "" {
		r.Domain = string(DomainRisk)
	}
}
