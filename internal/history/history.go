// Package history provides cross-session aggregates for one candidate or
// device: session counts, recent velocity, and fingerprint reuse. The
// assessor attaches these to the session record before risk-feature
// extraction.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/openproctor/kestrel/internal/domain"
)

// Service computes session-history aggregates.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a history service. Either dependency may be nil; the
// corresponding aggregate is then skipped.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// SessionCount returns the number of stored sessions for an entity (candidate
// or device fingerprint) since the window start.
func (s *Service) SessionCount(ctx context.Context, tenantID, entityID string, windowSecs int) (int64, error) {
	if tenantID == "" || entityID == "" {
		return 0, fmt.Errorf("tenantID and entityID are required")
	}
	if s.repo == nil {
		return 0, fmt.Errorf("no data source available")
	}

	since := time.Now().Add(-time.Duration(windowSecs) * time.Second)
	count, err := s.repo.CountSessionsByEntity(ctx, tenantID, entityID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

// RecordArrival bumps the short-window arrival counter for an entity and
// returns the new count. Backed by the cache's atomic counter, so it works
// across instances on the Redis tier.
func (s *Service) RecordArrival(ctx context.Context, tenantID, entityID string, window time.Duration) (int64, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.IncrementCounter(ctx, tenantID, "arrivals:"+entityID, window)
}

// Enrich attaches the "history" submap consumed by the risk-feature
// extractor. Lookup failures degrade to an absent aggregate rather than
// failing the assessment.
func (s *Service) Enrich(ctx context.Context, tenantID string, rec domain.SessionRecord) {
	if rec == nil {
		return
	}

	hist, _ := rec["history"].(map[string]any)
	if hist == nil {
		hist = map[string]any{}
	}

	candidateID, _ := rec["candidate_id"].(string)
	if candidateID != "" && s.repo != nil {
		if count, err := s.SessionCount(ctx, tenantID, candidateID, 30*24*3600); err == nil {
			hist["session_count"] = float64(count)
		}
	}

	deviceID, _ := rec["device_id"].(string)
	if deviceID != "" && s.cache != nil {
		if seen, err := s.RecordArrival(ctx, tenantID, deviceID, 24*time.Hour); err == nil && seen > 0 {
			hist["device_candidates"] = float64(seen)
		}
	}

	if len(hist) > 0 {
		rec["history"] = hist
	}
}
