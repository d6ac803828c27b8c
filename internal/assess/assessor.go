// Package assess runs the full scoring pipeline for one session: feature
// extraction, suspicion signals, trained model inference, ensemble
// aggregation, and report assembly.
package assess

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/openproctor/kestrel/internal/domain"
	"github.com/openproctor/kestrel/internal/ensemble"
	"github.com/openproctor/kestrel/internal/feature"
	"github.com/openproctor/kestrel/internal/history"
	"github.com/openproctor/kestrel/internal/model"
	"github.com/openproctor/kestrel/internal/report"
	"github.com/openproctor/kestrel/internal/signal"
)

// EngineVersion is stamped into assessment metadata.
const EngineVersion = "kestrel-1.0"

// Assessor orchestrates the scoring pipeline. It is safe for concurrent use.
type Assessor struct {
	bank       *model.Bank
	signals    *signal.Engine
	aggregator *ensemble.Aggregator
	history    *history.Service
}

// Input carries one assessment request plus request-scoped context.
type Input struct {
	TenantID  string
	TraceID   string
	Request   *domain.AssessRequest
	StartTime time.Time
}

// New creates an assessor. The history service may be nil; cross-session
// aggregates then stay at their extraction defaults.
func New(bank *model.Bank, signals *signal.Engine, cfg domain.ScoringConfig, hist *history.Service) *Assessor {
	return &Assessor{
		bank:       bank,
		signals:    signals,
		aggregator: ensemble.NewAggregator(cfg),
		history:    hist,
	}
}

// Assess scores one session. It never fails on missing telemetry: an empty
// record produces a well-formed minimal-risk assessment with confidence 0.
func (a *Assessor) Assess(ctx context.Context, input *Input) *domain.RiskAssessment {
	req := input.Request
	req.Normalize()

	start := input.StartTime
	if start.IsZero() {
		start = time.Now()
	}

	dom := domain.Domain(req.Domain)
	if !dom.Valid() {
		dom = domain.DomainRisk
	}

	rec := req.Record
	if rec == nil {
		rec = domain.SessionRecord{}
	}

	// Cross-session aggregates feed the risk-domain extractor.
	if a.history != nil {
		a.history.Enrich(ctx, input.TenantID, rec)
	}

	// Stage 1: extract all three domain vectors. Signals may reference any
	// domain's slots regardless of which domain is being scored.
	extractStart := time.Now()
	vectors := map[domain.Domain]domain.FeatureVector{}
	features := map[domain.Domain]map[string]float64{}
	for _, d := range []domain.Domain{domain.DomainDevice, domain.DomainBehavior, domain.DomainRisk} {
		vec := feature.Extract(d, rec)
		vectors[d] = vec
		features[d] = feature.AsMap(d, vec)
	}
	extractMs := time.Since(extractStart).Milliseconds()

	// Stage 2: suspicion signals, the always-available ensemble member.
	signalsStart := time.Now()
	signalResults := a.signals.EvaluateAll(ctx, &signal.EvalInput{
		TenantID:  input.TenantID,
		SessionID: req.SessionID,
		Record:    rec,
		Features:  features,
	})
	composite := signal.Composite(signalResults)
	signalsMs := time.Since(signalsStart).Milliseconds()

	// Stage 3: trained models of the requested domain.
	modelsStart := time.Now()
	outputs := a.bank.Outputs(dom, vectors[dom])
	modelsMs := time.Since(modelsStart).Milliseconds()

	// Stage 4: ensemble.
	sources := make([]ensemble.Source, 0, len(outputs)+1)
	sources = append(sources, ensemble.Source{Name: ensemble.SourceSignals, Score: composite})
	for _, out := range outputs {
		sources = append(sources, ensemble.Source{Name: out.Model, Score: out.Score})
	}
	combined := a.aggregator.Aggregate(sources)

	tier := domain.TierForScore(combined.Score)

	// Stage 5: report.
	factors, recommendations := report.Build(tier, signalResults, outputs)

	assessment := &domain.RiskAssessment{
		ID:               uuid.New().String(),
		TenantID:         input.TenantID,
		SessionID:        req.SessionID,
		Domain:           string(dom),
		Score:            combined.Score,
		Tier:             tier,
		Confidence:       combined.Confidence,
		ConfidenceSource: confidenceSource(outputs),
		Factors:          factors,
		Recommendations:  recommendations,
		SignalResults:    signalResults,
		ModelOutputs:     outputs,
		Timestamp:        time.Now().UTC(),
		Metadata: domain.AssessmentMetadata{
			TraceID:         input.TraceID,
			ExtractMs:       extractMs,
			SignalsMs:       signalsMs,
			ModelsMs:        modelsMs,
			TotalMs:         time.Since(start).Milliseconds(),
			SignalsFired:    signal.FiredCount(signalResults),
			ModelsConsulted: len(outputs),
			EngineVersion:   EngineVersion,
		},
	}

	return assessment
}

// confidenceSource degrades to synthetic_seed when any consulted model was
// trained on generated data, so callers know to discount the result.
func confidenceSource(outputs []domain.ModelOutput) string {
	for _, out := range outputs {
		if out.Source == domain.ConfidenceSourceSynthetic {
			return domain.ConfidenceSourceSynthetic
		}
	}
	return domain.ConfidenceSourceLive
}

// ShouldAlert reports whether an assessment warrants an alert event.
func ShouldAlert(a *domain.RiskAssessment) bool {
	return domain.TierRank(a.Tier) >= domain.TierRank(domain.TierHigh)
}
