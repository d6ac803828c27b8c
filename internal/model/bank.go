package model

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/openproctor/kestrel/internal/domain"
)

// Registered model names.
const (
	ModelDBSCAN      = "dbscan"
	ModelKMeans      = "kmeans"
	ModelIForest     = "iforest"
	ModelForest      = "forest"
	ModelRFRegressor = "rfreg"
	ModelGBRegressor = "gbreg"
	ModelMLP         = "mlp"
)

type modelSpec struct {
	minSamples int
	supervised bool
}

// Training floors: below the per-model minimum a train call returns
// insufficient_data rather than fitting a degenerate model.
var specs = map[string]modelSpec{
	ModelDBSCAN:      {minSamples: 10},
	ModelKMeans:      {minSamples: 10},
	ModelIForest:     {minSamples: 10},
	ModelForest:      {minSamples: 20, supervised: true},
	ModelRFRegressor: {minSamples: 20, supervised: true},
	ModelGBRegressor: {minSamples: 20, supervised: true},
	ModelMLP:         {minSamples: 20, supervised: true},
}

// ModelNames returns all registered model names in sorted order.
func ModelNames() []string {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MinSamples returns the training floor for a model, or 0 when unknown.
func MinSamples(name string) int {
	return specs[name].minSamples
}

// entry is one immutable fitted model plus its scaler. Entries are replaced
// wholesale on retrain; they are never mutated after publication, so
// concurrent inference needs no lock beyond the map read.
type entry struct {
	dom              domain.Domain
	name             string
	scaler           *StandardScaler
	fitted           any
	samples          int
	confidenceSource string
	trainedAt        time.Time
}

// Bank holds the trained models of all feature domains. A single Bank is
// injected wherever scoring happens; there are no package-level singletons.
type Bank struct {
	mu      sync.RWMutex
	seed    int64
	entries map[string]*entry // key: domain + "/" + name
}

// NewBank creates an empty model bank. The seed fixes the random source of
// every training run, so identical samples produce identical models.
func NewBank(seed int64) *Bank {
	return &Bank{
		seed:    seed,
		entries: make(map[string]*entry),
	}
}

func key(d domain.Domain, name string) string {
	return string(d) + "/" + name
}

// Train fits one model over labeled samples and publishes it, replacing any
// previous fit. It never panics; unexpected failures come back as a result
// with status "error".
func (b *Bank) Train(d domain.Domain, name string, samples []domain.LabeledSample) domain.TrainingResult {
	return b.train(d, name, samples, domain.ConfidenceSourceLive)
}

func (b *Bank) train(d domain.Domain, name string, samples []domain.LabeledSample, source string) (res domain.TrainingResult) {
	res = domain.TrainingResult{Domain: d, Model: name}

	spec, ok := specs[name]
	if !ok {
		res.Status = domain.TrainingError
		res.Error = fmt.Sprintf("unknown model %q", name)
		return res
	}
	res.MinSamples = spec.minSamples

	if !d.Valid() {
		res.Status = domain.TrainingError
		res.Error = fmt.Sprintf("unknown domain %q", d)
		return res
	}

	res.Samples = len(samples)
	if len(samples) < spec.minSamples {
		res.Status = domain.TrainingInsufficientData
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			res = domain.TrainingResult{
				Domain: d, Model: name, Samples: len(samples), MinSamples: spec.minSamples,
				Status: domain.TrainingError,
				Error:  fmt.Sprintf("training panic: %v", r),
			}
		}
	}()

	// Fix every row to the domain's vector length before fitting.
	n := d.VectorLen()
	X := make([][]float64, len(samples))
	y := make([]float64, len(samples))
	for i, s := range samples {
		row := make([]float64, n)
		copy(row, s.Features)
		X[i] = row
		y[i] = s.Label
	}

	scaler, err := FitScaler(X)
	if err != nil {
		res.Status = domain.TrainingError
		res.Error = err.Error()
		return res
	}
	scaled := scaler.TransformAll(X)

	rng := rand.New(rand.NewSource(b.seed))

	var fit any
	metrics := map[string]float64{}

	switch name {
	case ModelDBSCAN:
		m := fitDBSCAN(scaled)
		noise := 0
		for _, l := range m.Labels {
			if l == Noise {
				noise++
			}
		}
		metrics["clusters"] = float64(m.NumClusters)
		metrics["noise_fraction"] = float64(noise) / float64(len(m.Labels))
		fit = m

	case ModelKMeans:
		m := fitKMeans(scaled, rng)
		metrics["clusters"] = float64(m.K)
		metrics["mean_distance"] = m.MeanDist
		fit = m

	case ModelIForest:
		m := fitIsolationForest(scaled, rng)
		metrics["threshold"] = m.Threshold
		fit = m

	case ModelForest:
		m := fitRandomForest(scaled, y, true, rng)
		correct := 0
		for i, row := range scaled {
			p := 0.0
			if m.Predict(row) >= 0.5 {
				p = 1.0
			}
			if p == y[i] {
				correct++
			}
		}
		metrics["train_accuracy"] = float64(correct) / float64(len(y))
		fit = m

	case ModelRFRegressor:
		m := fitRandomForest(scaled, y, false, rng)
		metrics["train_mse"] = mse(m.Predict, scaled, y)
		fit = m

	case ModelGBRegressor:
		m := fitGradientBoost(scaled, y, rng)
		metrics["train_mse"] = mse(m.Predict, scaled, y)
		fit = m

	case ModelMLP:
		m := fitMLP(scaled, y, rng)
		metrics["train_mse"] = mse(m.Predict, scaled, y)
		fit = m
	}

	e := &entry{
		dom:              d,
		name:             name,
		scaler:           scaler,
		fitted:           fit,
		samples:          len(samples),
		confidenceSource: source,
		trainedAt:        time.Now().UTC(),
	}

	b.mu.Lock()
	b.entries[key(d, name)] = e
	b.mu.Unlock()

	res.Status = domain.TrainingSuccess
	res.ConfidenceSource = source
	res.Metrics = metrics
	res.TrainedAt = e.trainedAt
	return res
}

// Infer scores one vector with one model. An untrained model returns the
// documented neutral default (score 0.5, confidence 0, Trained false)
// instead of an error, so callers without trained models still get a
// well-formed "cannot assess" answer.
func (b *Bank) Infer(d domain.Domain, name string, vec domain.FeatureVector) domain.ModelOutput {
	b.mu.RLock()
	e := b.entries[key(d, name)]
	b.mu.RUnlock()

	if e == nil {
		return domain.ModelOutput{Model: name, Domain: d, Score: 0.5, Confidence: 0, Trained: false}
	}
	return e.output(vec)
}

// Outputs runs every trained model of a domain over one vector, in
// deterministic name order.
func (b *Bank) Outputs(d domain.Domain, vec domain.FeatureVector) []domain.ModelOutput {
	b.mu.RLock()
	entries := make([]*entry, 0, len(specs))
	for _, name := range ModelNames() {
		if e := b.entries[key(d, name)]; e != nil {
			entries = append(entries, e)
		}
	}
	b.mu.RUnlock()

	outs := make([]domain.ModelOutput, len(entries))
	for i, e := range entries {
		outs[i] = e.output(vec)
	}
	return outs
}

func (e *entry) output(vec domain.FeatureVector) domain.ModelOutput {
	out := domain.ModelOutput{
		Model:      e.name,
		Domain:     e.dom,
		Trained:    true,
		Confidence: 1,
		Source:     e.confidenceSource,
	}

	scaled := e.scaler.Transform(vec)

	switch m := e.fitted.(type) {
	case *DBSCAN:
		cluster, dist := m.Query(scaled)
		out.Cluster = cluster
		out.Distance = dist
		// Heuristic score mapping: points the density model cannot place
		// near any cluster look anomalous.
		if cluster == Noise {
			out.Score = 0.8
		} else {
			out.Score = 0.2
		}

	case *KMeans:
		cluster, dist := m.Infer(scaled)
		out.Cluster = cluster
		out.Distance = dist
		out.Score = clamp01(dist / (2 * m.MeanDist))

	case *IsolationForest:
		out.Score = m.Score(scaled)
		out.Outlier = m.Outlier(scaled)

	case *RandomForest:
		p := m.Predict(scaled)
		out.Estimate = p
		out.Score = clamp01(p)

	case *GradientBoost:
		est := m.Predict(scaled)
		out.Estimate = est
		out.Score = clamp01(est)

	case *MLP:
		est := m.Predict(scaled)
		out.Estimate = est
		out.Score = clamp01(est)

	default:
		out.Trained = false
		out.Confidence = 0
		out.Score = 0.5
	}

	return out
}

// States lists all registered models across the three domains with their
// trained state, for the introspection API.
func (b *Bank) States() []domain.ModelState {
	b.mu.RLock()
	defer b.mu.RUnlock()

	domains := []domain.Domain{domain.DomainDevice, domain.DomainBehavior, domain.DomainRisk}
	states := make([]domain.ModelState, 0, len(domains)*len(specs))

	for _, d := range domains {
		for _, name := range ModelNames() {
			st := domain.ModelState{Domain: d, Model: name}
			if e := b.entries[key(d, name)]; e != nil {
				st.Trained = true
				st.Samples = e.samples
				st.ConfidenceSource = e.confidenceSource
				st.TrainedAt = e.trainedAt
			}
			states = append(states, st)
		}
	}
	return states
}

// TrainedCount returns the number of trained models across all domains.
func (b *Bank) TrainedCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// snapshotEnvelope is the serialized form of one fitted model.
type snapshotEnvelope struct {
	Kind   string          `json:"kind"`
	Scaler *StandardScaler `json:"scaler"`
	Model  json.RawMessage `json:"model"`
}

// Snapshots serializes every trained model for persistence.
func (b *Bank) Snapshots() ([]*domain.ModelSnapshot, error) {
	b.mu.RLock()
	entries := make([]*entry, 0, len(b.entries))
	for _, e := range b.entries {
		entries = append(entries, e)
	}
	b.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return key(entries[i].dom, entries[i].name) < key(entries[j].dom, entries[j].name)
	})

	snaps := make([]*domain.ModelSnapshot, 0, len(entries))
	for _, e := range entries {
		raw, err := json.Marshal(e.fitted)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize model %s/%s: %w", e.dom, e.name, err)
		}
		payload, err := json.Marshal(snapshotEnvelope{Kind: e.name, Scaler: e.scaler, Model: raw})
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, &domain.ModelSnapshot{
			Domain:           e.dom,
			Model:            e.name,
			Payload:          payload,
			Samples:          e.samples,
			ConfidenceSource: e.confidenceSource,
			TrainedAt:        e.trainedAt,
		})
	}
	return snaps, nil
}

// Restore rebuilds one fitted model from a persisted snapshot.
func (b *Bank) Restore(snap *domain.ModelSnapshot) error {
	var env snapshotEnvelope
	if err := json.Unmarshal(snap.Payload, &env); err != nil {
		return fmt.Errorf("failed to parse snapshot %s/%s: %w", snap.Domain, snap.Model, err)
	}
	if env.Scaler == nil {
		return fmt.Errorf("snapshot %s/%s has no scaler", snap.Domain, snap.Model)
	}

	var fit any
	switch env.Kind {
	case ModelDBSCAN:
		fit = new(DBSCAN)
	case ModelKMeans:
		fit = new(KMeans)
	case ModelIForest:
		fit = new(IsolationForest)
	case ModelForest, ModelRFRegressor:
		fit = new(RandomForest)
	case ModelGBRegressor:
		fit = new(GradientBoost)
	case ModelMLP:
		fit = new(MLP)
	default:
		return fmt.Errorf("unknown model kind %q in snapshot", env.Kind)
	}
	if err := json.Unmarshal(env.Model, fit); err != nil {
		return fmt.Errorf("failed to parse %s model payload: %w", env.Kind, err)
	}

	e := &entry{
		dom:              snap.Domain,
		name:             snap.Model,
		scaler:           env.Scaler,
		fitted:           fit,
		samples:          snap.Samples,
		confidenceSource: snap.ConfidenceSource,
		trainedAt:        snap.TrainedAt,
	}

	b.mu.Lock()
	b.entries[key(snap.Domain, snap.Model)] = e
	b.mu.Unlock()
	return nil
}

func mse(predict func([]float64) float64, X [][]float64, y []float64) float64 {
	var sum float64
	for i, row := range X {
		d := predict(row) - y[i]
		sum += d * d
	}
	return sum / float64(len(y))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
