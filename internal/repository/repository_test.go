package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/openproctor/kestrel/internal/domain"
)

func TestSQLiteRepository(t *testing.T) {
	// Create temp database file
	tmpFile, err := os.CreateTemp("", "kestrel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetSession", func(t *testing.T) {
		session := &domain.Session{
			ID:          "sess-001",
			CandidateID: "cand-001",
			DeviceID:    "dev-001",
			Record: domain.SessionRecord{
				"candidate_id":   "cand-001",
				"response_times": []any{12.0, 15.5, 9.8},
			},
			CreatedAt: time.Now().UTC(),
		}

		if err := repo.SaveSession(ctx, tenantID, session); err != nil {
			t.Fatalf("SaveSession failed: %v", err)
		}

		retrieved, err := repo.GetSession(ctx, tenantID, session.ID)
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}

		if retrieved.ID != session.ID {
			t.Errorf("expected ID %s, got %s", session.ID, retrieved.ID)
		}
		if retrieved.CandidateID != session.CandidateID {
			t.Errorf("expected CandidateID %s, got %s", session.CandidateID, retrieved.CandidateID)
		}
		if retrieved.TenantID != tenantID {
			t.Errorf("expected TenantID %s, got %s", tenantID, retrieved.TenantID)
		}
		if len(retrieved.Record) == 0 {
			t.Error("expected record to round-trip")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_, err := repo.GetSession(ctx, "tenant-002", "sess-001")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		err := repo.SaveSession(ctx, "", &domain.Session{ID: "sess-test"})
		if err == nil {
			t.Error("expected error for empty tenantID")
		}

		_, err = repo.GetSession(ctx, "", "sess-001")
		if err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("CountSessionsByEntity", func(t *testing.T) {
		session := &domain.Session{
			ID:          "sess-002",
			CandidateID: "cand-001", // Same candidate as sess-001
			DeviceID:    "dev-002",
			Record:      domain.SessionRecord{},
			CreatedAt:   time.Now().UTC(),
		}
		if err := repo.SaveSession(ctx, tenantID, session); err != nil {
			t.Fatalf("SaveSession failed: %v", err)
		}

		since := time.Now().Add(-1 * time.Hour)

		count, err := repo.CountSessionsByEntity(ctx, tenantID, "cand-001", since)
		if err != nil {
			t.Fatalf("CountSessionsByEntity failed: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 sessions for candidate, got %d", count)
		}

		count, err = repo.CountSessionsByEntity(ctx, tenantID, "dev-001", since)
		if err != nil {
			t.Fatalf("CountSessionsByEntity failed: %v", err)
		}
		if count != 1 {
			t.Errorf("expected 1 session for device, got %d", count)
		}
	})

	t.Run("SaveAndGetAssessment", func(t *testing.T) {
		assessment := &domain.RiskAssessment{
			ID:               "assess-001",
			SessionID:        "sess-001",
			Domain:           "risk",
			Score:            0.85,
			Tier:             domain.TierCritical,
			Confidence:       0.7,
			ConfidenceSource: domain.ConfidenceSourceLive,
			Factors:          []string{"Virtual Machine Detected"},
			Recommendations:  []string{"require additional verification"},
			SignalResults: []domain.SignalResult{
				{SignalID: "builtin-vm-detected", Fired: true, Score: 1, Weight: 0.5},
			},
			Timestamp: time.Now().UTC(),
			Metadata:  domain.AssessmentMetadata{TraceID: "trace-001", SignalsFired: 1},
		}

		if err := repo.SaveAssessment(ctx, tenantID, assessment); err != nil {
			t.Fatalf("SaveAssessment failed: %v", err)
		}

		retrieved, err := repo.GetAssessment(ctx, tenantID, assessment.ID)
		if err != nil {
			t.Fatalf("GetAssessment failed: %v", err)
		}

		if retrieved.Score != assessment.Score {
			t.Errorf("expected Score %.2f, got %.2f", assessment.Score, retrieved.Score)
		}
		if retrieved.Tier != domain.TierCritical {
			t.Errorf("expected Tier %s, got %s", domain.TierCritical, retrieved.Tier)
		}
		if len(retrieved.Factors) != 1 || retrieved.Factors[0] != "Virtual Machine Detected" {
			t.Errorf("factors did not round-trip: %v", retrieved.Factors)
		}
		if len(retrieved.SignalResults) != 1 {
			t.Errorf("signal results did not round-trip: %v", retrieved.SignalResults)
		}
	})

	t.Run("SignalConfigLifecycle", func(t *testing.T) {
		cfg := &domain.SignalConfig{
			ID:         "sig-001",
			Domain:     domain.DomainRisk,
			Name:       "VM detected",
			Version:    "1.0.0",
			Expression: `features["vm_score"] > 0.5`,
			Weight:     0.5,
			Factor:     "Virtual Machine Detected",
			Enabled:    true,
		}

		if err := repo.SaveSignalConfig(ctx, tenantID, cfg); err != nil {
			t.Fatalf("SaveSignalConfig failed: %v", err)
		}

		retrieved, err := repo.GetSignalConfig(ctx, tenantID, cfg.ID)
		if err != nil {
			t.Fatalf("GetSignalConfig failed: %v", err)
		}
		if retrieved.Expression != cfg.Expression {
			t.Errorf("expression did not round-trip: %q", retrieved.Expression)
		}
		if retrieved.Domain != domain.DomainRisk {
			t.Errorf("expected domain risk, got %s", retrieved.Domain)
		}

		// Upsert same id+version with new weight
		cfg.Weight = 0.6
		if err := repo.SaveSignalConfig(ctx, tenantID, cfg); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
		retrieved, err = repo.GetSignalConfig(ctx, tenantID, cfg.ID)
		if err != nil {
			t.Fatalf("GetSignalConfig after upsert failed: %v", err)
		}
		if retrieved.Weight != 0.6 {
			t.Errorf("expected updated weight 0.6, got %v", retrieved.Weight)
		}

		configs, err := repo.ListSignalConfigs(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListSignalConfigs failed: %v", err)
		}
		if len(configs) != 1 {
			t.Errorf("expected 1 config, got %d", len(configs))
		}

		if err := repo.DeleteSignalConfig(ctx, tenantID, cfg.ID); err != nil {
			t.Fatalf("DeleteSignalConfig failed: %v", err)
		}
		if _, err := repo.GetSignalConfig(ctx, tenantID, cfg.ID); err != ErrNotFound {
			t.Errorf("expected ErrNotFound after delete, got: %v", err)
		}
		if err := repo.DeleteSignalConfig(ctx, tenantID, "nonexistent"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound for missing signal, got: %v", err)
		}
	})

	t.Run("TrainingSamples", func(t *testing.T) {
		samples := []domain.LabeledSample{
			{Features: domain.FeatureVector{0.1, 0.2, 0.3}, Label: 0},
			{Features: domain.FeatureVector{0.7, 0.8, 0.9}, Label: 1},
		}

		if err := repo.SaveTrainingSamples(ctx, tenantID, domain.DomainRisk, samples); err != nil {
			t.Fatalf("SaveTrainingSamples failed: %v", err)
		}

		retrieved, err := repo.ListTrainingSamples(ctx, tenantID, domain.DomainRisk, 100)
		if err != nil {
			t.Fatalf("ListTrainingSamples failed: %v", err)
		}
		if len(retrieved) != 2 {
			t.Fatalf("expected 2 samples, got %d", len(retrieved))
		}
		if retrieved[1].Label != 1 {
			t.Errorf("expected label 1, got %v", retrieved[1].Label)
		}
		if len(retrieved[0].Features) != 3 {
			t.Errorf("features did not round-trip: %v", retrieved[0].Features)
		}

		// Other domain sees nothing
		other, err := repo.ListTrainingSamples(ctx, tenantID, domain.DomainDevice, 100)
		if err != nil {
			t.Fatalf("ListTrainingSamples failed: %v", err)
		}
		if len(other) != 0 {
			t.Errorf("expected 0 samples for other domain, got %d", len(other))
		}
	})

	t.Run("ModelSnapshots", func(t *testing.T) {
		snap := &domain.ModelSnapshot{
			Domain:           domain.DomainRisk,
			Model:            "iforest",
			Payload:          []byte(`{"kind":"iforest"}`),
			Samples:          50,
			ConfidenceSource: domain.ConfidenceSourceLive,
			TrainedAt:        time.Now().UTC(),
		}

		if err := repo.SaveModelSnapshot(ctx, snap); err != nil {
			t.Fatalf("SaveModelSnapshot failed: %v", err)
		}

		// Upsert replaces the previous payload
		snap.Samples = 80
		if err := repo.SaveModelSnapshot(ctx, snap); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}

		snaps, err := repo.ListModelSnapshots(ctx)
		if err != nil {
			t.Fatalf("ListModelSnapshots failed: %v", err)
		}
		if len(snaps) != 1 {
			t.Fatalf("expected 1 snapshot, got %d", len(snaps))
		}
		if snaps[0].Samples != 80 {
			t.Errorf("expected updated samples 80, got %d", snaps[0].Samples)
		}
		if snaps[0].Domain != domain.DomainRisk || snaps[0].Model != "iforest" {
			t.Errorf("snapshot key did not round-trip: %s/%s", snaps[0].Domain, snaps[0].Model)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetSession(ctx, tenantID, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}

		_, err = repo.GetAssessment(ctx, tenantID, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
