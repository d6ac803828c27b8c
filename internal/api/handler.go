package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/openproctor/kestrel/internal/assess"
	"github.com/openproctor/kestrel/internal/domain"
	"github.com/openproctor/kestrel/internal/feature"
	"github.com/openproctor/kestrel/internal/model"
	"github.com/openproctor/kestrel/internal/signal"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	assessor *assess.Assessor
	bank     *model.Bank
	signals  *signal.Engine
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, assessor *assess.Assessor, bank *model.Bank, signals *signal.Engine, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		assessor: assessor,
		bank:     bank,
		signals:  signals,
		version:  version,
	}
}

// GlobalTenantID is used for signal configs that apply to all tenants.
const GlobalTenantID = "*"

// Assess handles POST /assess requests.
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	// Parse request
	var req domain.AssessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate required fields
	if req.Record == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "record is required",
		})
		return
	}
	if req.Domain != "" && !domain.Domain(req.Domain).Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("unknown domain '%s'", req.Domain),
		})
		return
	}

	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	assessment := h.assessor.Assess(ctx, &assess.Input{
		TenantID:  tenantID,
		TraceID:   traceID,
		Request:   &req,
		StartTime: start,
	})

	// Persist session and assessment if a repository is available
	if h.repo != nil {
		session := &domain.Session{
			ID:          req.SessionID,
			TenantID:    tenantID,
			CandidateID: req.CandidateID,
			DeviceID:    req.DeviceID,
			Record:      req.Record,
			CreatedAt:   time.Now().UTC(),
		}
		if err := h.repo.SaveSession(ctx, tenantID, session); err != nil {
			slog.Error("failed to save session", "session_id", req.SessionID, "error", err)
		}
		if err := h.repo.SaveAssessment(ctx, tenantID, assessment); err != nil {
			slog.Error("failed to save assessment", "session_id", req.SessionID, "error", err)
		}
	}

	if h.cache != nil {
		_ = h.cache.SetAssessment(ctx, tenantID, req.SessionID, assessment, 15*time.Minute)
	}

	// Publish the result so downstream consumers see sync and async
	// assessments on the same topics.
	if h.bus != nil {
		payload, _ := json.Marshal(assessment)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicAssessmentCompleted, payload); err != nil {
			slog.Error("failed to publish assessment", "session_id", req.SessionID, "error", err)
		}
		if assess.ShouldAlert(assessment) {
			if err := h.bus.Publish(ctx, tenantID, domain.TopicAssessmentAlert, payload); err != nil {
				slog.Error("failed to publish alert", "session_id", req.SessionID, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, assessment.ToResponse())
}

// ExtractRequest is the request body for POST /features/extract.
type ExtractRequest struct {
	Domain string               `json:"domain,omitempty"`
	Record domain.SessionRecord `json:"record"`
}

// DomainFeatures holds one domain's extracted feature vector in both
// positional and named form.
type DomainFeatures struct {
	Vector   domain.FeatureVector `json:"vector"`
	Features map[string]float64   `json:"features"`
}

// ExtractFeatures handles POST /features/extract. It runs extraction without
// scoring, so integrators can inspect how raw telemetry maps onto slots.
func (h *Handler) ExtractFeatures(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Record == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "record is required",
		})
		return
	}

	domains := []domain.Domain{domain.DomainDevice, domain.DomainBehavior, domain.DomainRisk}
	if req.Domain != "" {
		d := domain.Domain(req.Domain)
		if !d.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("unknown domain '%s'", req.Domain),
			})
			return
		}
		domains = []domain.Domain{d}
	}

	result := make(map[string]DomainFeatures, len(domains))
	for _, d := range domains {
		vec := feature.Extract(d, req.Record)
		result[string(d)] = DomainFeatures{
			Vector:   vec,
			Features: feature.AsMap(d, vec),
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"domains": result,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetAssessment retrieves an assessment by ID.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	assessmentID := chi.URLParam(r, "id")

	if assessmentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "assessment id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	assessment, err := h.repo.GetAssessment(ctx, tenantID, assessmentID)
	if err != nil {
		slog.Error("failed to get assessment", "id", assessmentID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "assessment not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, assessment)
}

// GetSession retrieves a stored session by ID.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	sessionID := chi.URLParam(r, "id")

	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "session id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	session, err := h.repo.GetSession(ctx, tenantID, sessionID)
	if err != nil {
		slog.Error("failed to get session", "id", sessionID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "session not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// ListModels returns the state of every registered model in the bank.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	states := h.bank.States()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"models":  states,
		"count":   len(states),
		"trained": h.bank.TrainedCount(),
	})
}

// SeedRequest is the request body for POST /models/{domain}/seed.
type SeedRequest struct {
	Samples int `json:"samples,omitempty"`
}

// SeedModels bootstraps every model of a domain on synthetic samples so a
// fresh deployment scores with the full ensemble from day one. Seeded models
// report confidenceSource "synthetic_seed" until retrained on real data.
func (h *Handler) SeedModels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d := domain.Domain(chi.URLParam(r, "domain"))

	if !d.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("unknown domain '%s'", chi.URLParam(r, "domain")),
		})
		return
	}

	var req SeedRequest
	if r.Body != nil {
		// Body is optional; decode errors on an empty body are fine.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	results := h.bank.SeedSynthetic(d, req.Samples)
	h.persistSnapshots(ctx, d)

	slog.Info("models seeded", "domain", d, "count", len(results))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}

// TrainRequest is the request body for POST /models/{domain}/{model}/train.
// When Samples is set they are persisted and trained on directly; otherwise
// the stored sample history is used.
type TrainRequest struct {
	Samples []domain.LabeledSample `json:"samples,omitempty"`
	Limit   int                    `json:"limit,omitempty"`
}

// TrainModel trains one model from submitted or stored samples.
func (h *Handler) TrainModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	d := domain.Domain(chi.URLParam(r, "domain"))
	modelName := chi.URLParam(r, "model")

	if !d.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("unknown domain '%s'", chi.URLParam(r, "domain")),
		})
		return
	}

	var req TrainRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	samples := req.Samples
	if len(samples) > 0 {
		if h.repo != nil {
			if err := h.repo.SaveTrainingSamples(ctx, tenantID, d, samples); err != nil {
				slog.Error("failed to save training samples", "domain", d, "error", err)
			}
		}
	} else {
		if h.repo == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "samples are required without a repository",
			})
			return
		}
		var err error
		samples, err = h.repo.ListTrainingSamples(ctx, tenantID, d, req.Limit)
		if err != nil {
			slog.Error("failed to load training samples", "domain", d, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to load training samples",
			})
			return
		}
	}

	result := h.bank.Train(d, modelName, samples)
	if result.Status == domain.TrainingSuccess {
		h.persistSnapshots(ctx, d)
	}

	slog.Info("model trained",
		"domain", d,
		"model", modelName,
		"status", result.Status,
		"samples", result.Samples,
	)
	writeJSON(w, http.StatusOK, result)
}

// ScoreRequest is the request body for POST /models/{domain}/{model}/score.
// Either a raw record (extracted server-side) or a pre-extracted feature
// vector may be submitted.
type ScoreRequest struct {
	Record   domain.SessionRecord `json:"record,omitempty"`
	Features domain.FeatureVector `json:"features,omitempty"`
}

// ScoreModel runs a single model's inference on one session.
func (h *Handler) ScoreModel(w http.ResponseWriter, r *http.Request) {
	d := domain.Domain(chi.URLParam(r, "domain"))
	modelName := chi.URLParam(r, "model")

	if !d.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("unknown domain '%s'", chi.URLParam(r, "domain")),
		})
		return
	}

	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	vec := req.Features
	if len(vec) == 0 {
		if req.Record == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "record or features is required",
			})
			return
		}
		vec = feature.Extract(d, req.Record)
	}
	if len(vec) != d.VectorLen() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("features must have length %d for domain '%s'", d.VectorLen(), d),
		})
		return
	}

	output := h.bank.Infer(d, modelName, vec)
	writeJSON(w, http.StatusOK, output)
}

// persistSnapshots saves the fitted state of a domain's models so a restart
// does not lose them. Best effort.
func (h *Handler) persistSnapshots(ctx context.Context, d domain.Domain) {
	if h.repo == nil {
		return
	}
	snapshots, err := h.bank.Snapshots()
	if err != nil {
		slog.Error("failed to snapshot models", "error", err)
		return
	}
	for _, snap := range snapshots {
		if snap.Domain != d {
			continue
		}
		if err := h.repo.SaveModelSnapshot(ctx, snap); err != nil {
			slog.Error("failed to save model snapshot",
				"domain", snap.Domain,
				"model", snap.Model,
				"error", err,
			)
		}
	}
}

// ListSignals returns all signals loaded in the engine.
// Signals are loaded from the database at startup and can be reloaded via
// POST /signals/reload.
func (h *Handler) ListSignals(w http.ResponseWriter, r *http.Request) {
	loaded := h.signals.Loaded()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"signals": loaded,
		"count":   len(loaded),
		"source":  "database",
	})
}

// GetSignal retrieves a signal by ID from the loaded engine set.
func (h *Handler) GetSignal(w http.ResponseWriter, r *http.Request) {
	signalID := chi.URLParam(r, "id")

	if signalID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "signal id is required",
		})
		return
	}

	for _, s := range h.signals.Loaded() {
		if s.ID == signalID {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "signal not found",
	})
}

// CreateSignalRequest is the request body for creating a suspicion signal.
type CreateSignalRequest struct {
	ID             string  `json:"id"`
	Domain         string  `json:"domain"`
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	Expression     string  `json:"expression"`
	Weight         float64 `json:"weight"`
	Factor         string  `json:"factor"`
	Recommendation string  `json:"recommendation,omitempty"`
	Enabled        bool    `json:"enabled"`
}

// CreateSignal creates a new suspicion signal and saves it to the database.
// Signals are saved globally (tenant_id = "*") so they apply to all tenants.
func (h *Handler) CreateSignal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateSignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Validate
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}
	d := domain.Domain(req.Domain)
	if !d.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("unknown domain '%s'", req.Domain),
		})
		return
	}
	if req.Weight < 0 || req.Weight > 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "weight must be between 0 and 1",
		})
		return
	}

	cfg := &domain.SignalConfig{
		ID:             req.ID,
		TenantID:       GlobalTenantID,
		Domain:         d,
		Name:           req.Name,
		Description:    req.Description,
		Version:        "1.0.0",
		Expression:     req.Expression,
		Weight:         req.Weight,
		Factor:         req.Factor,
		Recommendation: req.Recommendation,
		Enabled:        req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.signals.Load(cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	// Persist to repository (global tenant ID)
	if h.repo != nil {
		if err := h.repo.SaveSignalConfig(ctx, GlobalTenantID, cfg); err != nil {
			slog.Error("failed to save signal config", "id", cfg.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save signal",
			})
			return
		}
	}

	slog.Info("signal created", "id", cfg.ID, "name", cfg.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"signal":  cfg,
		"message": "Signal created and loaded into the engine.",
	})
}

// DeleteSignal disables a signal and auto-reloads the engine.
func (h *Handler) DeleteSignal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	signalID := chi.URLParam(r, "id")

	if signalID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "signal id is required",
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.DeleteSignalConfig(ctx, GlobalTenantID, signalID); err != nil {
			slog.Error("failed to delete signal", "id", signalID, "error", err)
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "signal not found",
			})
			return
		}

		// Auto-reload the engine after delete
		dbSignals, err := h.repo.ListSignalConfigs(ctx, GlobalTenantID)
		if err != nil {
			slog.Error("failed to reload signals after delete", "error", err)
		} else if err := h.signals.Reload(dbSignals); err != nil {
			slog.Error("failed to reload signals into engine", "error", err)
		} else {
			slog.Info("signals auto-reloaded after delete", "count", len(dbSignals))
		}
	}

	slog.Info("signal deleted", "id", signalID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Signal deleted and engine reloaded.",
	})
}

// ReloadSignals reloads all signals from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadSignals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbSignals, err := h.repo.ListSignalConfigs(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list signals from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load signals from database",
		})
		return
	}

	if err := h.signals.Reload(dbSignals); err != nil {
		slog.Error("failed to reload signals into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload signals: " + err.Error(),
		})
		return
	}

	slog.Info("signals reloaded from database", "count", len(dbSignals))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "signals reloaded successfully",
		"count":   len(dbSignals),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
