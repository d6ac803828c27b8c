// Package worker provides async message processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openproctor/kestrel/internal/assess"
	"github.com/openproctor/kestrel/internal/domain"
	"github.com/openproctor/kestrel/internal/model"
)

// Worker processes sessions and training jobs asynchronously from the
// EventBus.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	cache    domain.Cache
	assessor *assess.Assessor
	bank     *model.Bank

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via a global
	// subscription).
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, assessor *assess.Assessor, bank *model.Bank) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		repo:     repo,
		cache:    cache,
		assessor: assessor,
		bank:     bank,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{"_global"}
	}

	for _, tenantID := range tenants {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(tenants),
	)

	return nil
}

// startTenantWorker subscribes one tenant's ingestion and training topics.
func (w *Worker) startTenantWorker(tenantID string) error {
	sessionSub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicSessionIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processSession(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sessionSub)

	trainSub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicModelTrain, func(ctx context.Context, msg *domain.Message) error {
		return w.processTraining(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, trainSub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topics", []string{domain.TopicSessionIngested, domain.TopicModelTrain},
	)

	return nil
}

// SessionMessage is the message payload for async session assessment.
type SessionMessage struct {
	SessionID   string               `json:"sessionId"`
	TenantID    string               `json:"tenantId"`
	TraceID     string               `json:"traceId"`
	CandidateID string               `json:"candidateId,omitempty"`
	DeviceID    string               `json:"deviceId,omitempty"`
	Domain      string               `json:"domain,omitempty"`
	Record      domain.SessionRecord `json:"record"`
}

// TrainMessage is the message payload for async model training.
type TrainMessage struct {
	TenantID string `json:"tenantId"`
	Domain   string `json:"domain"`
	Model    string `json:"model,omitempty"` // empty = all models of the domain
	Limit    int    `json:"limit,omitempty"`
}

// processSession assesses one ingested session end to end.
func (w *Worker) processSession(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var sessMsg SessionMessage
	if err := json.Unmarshal(msg.Payload, &sessMsg); err != nil {
		slog.Error("failed to parse session message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if sessMsg.TenantID != "" {
		tenantID = sessMsg.TenantID
	}
	if sessMsg.SessionID == "" {
		sessMsg.SessionID = uuid.New().String()
	}

	traceID := sessMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	assessment := w.assessor.Assess(ctx, &assess.Input{
		TenantID: tenantID,
		TraceID:  traceID,
		Request: &domain.AssessRequest{
			SessionID:   sessMsg.SessionID,
			CandidateID: sessMsg.CandidateID,
			DeviceID:    sessMsg.DeviceID,
			Domain:      sessMsg.Domain,
			Record:      sessMsg.Record,
		},
		StartTime: start,
	})

	if w.repo != nil {
		session := &domain.Session{
			ID:          sessMsg.SessionID,
			TenantID:    tenantID,
			CandidateID: sessMsg.CandidateID,
			DeviceID:    sessMsg.DeviceID,
			Record:      sessMsg.Record,
			CreatedAt:   time.Now().UTC(),
		}
		if err := w.repo.SaveSession(ctx, tenantID, session); err != nil {
			slog.Error("failed to save session",
				"session_id", sessMsg.SessionID,
				"error", err,
			)
		}
		if err := w.repo.SaveAssessment(ctx, tenantID, assessment); err != nil {
			slog.Error("failed to save assessment",
				"session_id", sessMsg.SessionID,
				"error", err,
			)
		}
	}

	if w.cache != nil {
		_ = w.cache.SetAssessment(ctx, tenantID, sessMsg.SessionID, assessment, 15*time.Minute)
	}

	resultPayload, _ := json.Marshal(assessment)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicAssessmentCompleted, resultPayload); err != nil {
		slog.Error("failed to publish assessment",
			"session_id", sessMsg.SessionID,
			"error", err,
		)
	}

	if assess.ShouldAlert(assessment) {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAssessmentAlert, resultPayload); err != nil {
			slog.Error("failed to publish alert",
				"session_id", sessMsg.SessionID,
				"error", err,
			)
		}
	}

	slog.Info("session assessed",
		"session_id", sessMsg.SessionID,
		"tenant_id", tenantID,
		"tier", assessment.Tier,
		"score", assessment.Score,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// processTraining retrains models from stored samples and persists the
// resulting snapshots.
func (w *Worker) processTraining(ctx context.Context, tenantID string, msg *domain.Message) error {
	var trainMsg TrainMessage
	if err := json.Unmarshal(msg.Payload, &trainMsg); err != nil {
		slog.Error("failed to parse training message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if trainMsg.TenantID != "" {
		tenantID = trainMsg.TenantID
	}

	dom := domain.Domain(trainMsg.Domain)
	if !dom.Valid() {
		return fmt.Errorf("unknown training domain %q", trainMsg.Domain)
	}

	if w.repo == nil {
		return fmt.Errorf("training requires a repository")
	}

	samples, err := w.repo.ListTrainingSamples(ctx, tenantID, dom, trainMsg.Limit)
	if err != nil {
		slog.Error("failed to load training samples",
			"domain", dom,
			"error", err,
		)
		return err
	}

	names := model.ModelNames()
	if trainMsg.Model != "" {
		names = []string{trainMsg.Model}
	}

	results := make([]domain.TrainingResult, 0, len(names))
	for _, name := range names {
		res := w.bank.Train(dom, name, samples)
		results = append(results, res)

		if res.Status != domain.TrainingSuccess {
			slog.Warn("model training skipped",
				"domain", dom,
				"model", name,
				"status", res.Status,
				"samples", res.Samples,
				"min_samples", res.MinSamples,
			)
		}
	}

	if err := w.persistSnapshots(ctx); err != nil {
		slog.Error("failed to persist model snapshots",
			"domain", dom,
			"error", err,
		)
	}

	resultPayload, _ := json.Marshal(results)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicModelTrained, resultPayload); err != nil {
		slog.Error("failed to publish training results",
			"domain", dom,
			"error", err,
		)
	}

	slog.Info("training batch finished",
		"tenant_id", tenantID,
		"domain", dom,
		"models", len(names),
		"samples", len(samples),
	)

	return nil
}

func (w *Worker) persistSnapshots(ctx context.Context) error {
	snaps, err := w.bank.Snapshots()
	if err != nil {
		return err
	}
	for _, snap := range snaps {
		if err := w.repo.SaveModelSnapshot(ctx, snap); err != nil {
			return err
		}
	}
	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
