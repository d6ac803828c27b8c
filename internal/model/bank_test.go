package model

import (
	"math"
	"math/rand"
	"testing"

	"github.com/openproctor/kestrel/internal/domain"
)

func makeSamples(d domain.Domain, n int, seed int64) []domain.LabeledSample {
	rng := rand.New(rand.NewSource(seed))
	dims := d.VectorLen()
	samples := make([]domain.LabeledSample, n)
	for i := range samples {
		vec := make(domain.FeatureVector, dims)
		hot := i%5 == 0
		for j := range vec {
			base := 0.3
			if hot {
				base = 0.8
			}
			vec[j] = base + rng.NormFloat64()*0.1
		}
		label := 0.0
		if hot {
			label = 1.0
		}
		samples[i] = domain.LabeledSample{Features: vec, Label: label}
	}
	return samples
}

func TestTrainingFloor(t *testing.T) {
	bank := NewBank(42)

	t.Run("below floor returns insufficient_data", func(t *testing.T) {
		res := bank.Train(domain.DomainRisk, ModelIForest, makeSamples(domain.DomainRisk, 9, 1))
		if res.Status != domain.TrainingInsufficientData {
			t.Fatalf("status = %q, want %q", res.Status, domain.TrainingInsufficientData)
		}
		if res.Samples != 9 || res.MinSamples != 10 {
			t.Fatalf("samples/min = %d/%d, want 9/10", res.Samples, res.MinSamples)
		}
		if bank.TrainedCount() != 0 {
			t.Fatalf("trained count = %d after rejected train", bank.TrainedCount())
		}
	})

	t.Run("at floor trains", func(t *testing.T) {
		res := bank.Train(domain.DomainRisk, ModelIForest, makeSamples(domain.DomainRisk, 10, 1))
		if res.Status != domain.TrainingSuccess {
			t.Fatalf("status = %q (%s), want %q", res.Status, res.Error, domain.TrainingSuccess)
		}
	})

	t.Run("supervised floor is higher", func(t *testing.T) {
		res := bank.Train(domain.DomainRisk, ModelMLP, makeSamples(domain.DomainRisk, 19, 1))
		if res.Status != domain.TrainingInsufficientData {
			t.Fatalf("status = %q, want %q", res.Status, domain.TrainingInsufficientData)
		}
		res = bank.Train(domain.DomainRisk, ModelMLP, makeSamples(domain.DomainRisk, 20, 1))
		if res.Status != domain.TrainingSuccess {
			t.Fatalf("status = %q (%s), want %q", res.Status, res.Error, domain.TrainingSuccess)
		}
	})
}

func TestUntrainedNeutralDefault(t *testing.T) {
	bank := NewBank(42)
	vec := make(domain.FeatureVector, domain.DomainDevice.VectorLen())

	out := bank.Infer(domain.DomainDevice, ModelKMeans, vec)
	if out.Trained {
		t.Fatal("untrained model reported Trained = true")
	}
	if out.Score != 0.5 {
		t.Fatalf("untrained score = %v, want 0.5", out.Score)
	}
	if out.Confidence != 0 {
		t.Fatalf("untrained confidence = %v, want 0", out.Confidence)
	}
}

func TestTrainDeterminism(t *testing.T) {
	samples := makeSamples(domain.DomainBehavior, 40, 7)
	vec := samples[3].Features

	for _, name := range ModelNames() {
		t.Run(name, func(t *testing.T) {
			a := NewBank(42)
			b := NewBank(42)
			if res := a.Train(domain.DomainBehavior, name, samples); res.Status != domain.TrainingSuccess {
				t.Fatalf("train a: %q (%s)", res.Status, res.Error)
			}
			if res := b.Train(domain.DomainBehavior, name, samples); res.Status != domain.TrainingSuccess {
				t.Fatalf("train b: %q (%s)", res.Status, res.Error)
			}
			oa := a.Infer(domain.DomainBehavior, name, vec)
			ob := b.Infer(domain.DomainBehavior, name, vec)
			if oa.Score != ob.Score {
				t.Fatalf("same seed, different scores: %v vs %v", oa.Score, ob.Score)
			}
		})
	}
}

func TestScoresBounded(t *testing.T) {
	bank := NewBank(42)
	samples := makeSamples(domain.DomainRisk, 60, 3)
	for _, name := range ModelNames() {
		if res := bank.Train(domain.DomainRisk, name, samples); res.Status != domain.TrainingSuccess {
			t.Fatalf("train %s: %q (%s)", name, res.Status, res.Error)
		}
	}

	probes := []domain.FeatureVector{
		make(domain.FeatureVector, domain.DomainRisk.VectorLen()),
		samples[0].Features,
		{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
		{-5, 10, 0.5},
	}
	for _, vec := range probes {
		for _, out := range bank.Outputs(domain.DomainRisk, vec) {
			if out.Score < 0 || out.Score > 1 {
				t.Fatalf("%s score %v out of [0,1]", out.Model, out.Score)
			}
			if out.Confidence < 0 || out.Confidence > 1 {
				t.Fatalf("%s confidence %v out of [0,1]", out.Model, out.Confidence)
			}
		}
	}
}

func TestOutputsOrderedAndTrainedOnly(t *testing.T) {
	bank := NewBank(42)
	samples := makeSamples(domain.DomainDevice, 30, 9)
	bank.Train(domain.DomainDevice, ModelKMeans, samples)
	bank.Train(domain.DomainDevice, ModelIForest, samples)

	outs := bank.Outputs(domain.DomainDevice, samples[0].Features)
	if len(outs) != 2 {
		t.Fatalf("got %d outputs, want 2", len(outs))
	}
	if outs[0].Model != ModelIForest || outs[1].Model != ModelKMeans {
		t.Fatalf("outputs not in name order: %s, %s", outs[0].Model, outs[1].Model)
	}
}

func TestSeedSynthetic(t *testing.T) {
	bank := NewBank(42)
	results := bank.SeedSynthetic(domain.DomainRisk, 200)

	if len(results) != len(ModelNames()) {
		t.Fatalf("got %d results, want %d", len(results), len(ModelNames()))
	}
	for _, res := range results {
		if res.Status != domain.TrainingSuccess {
			t.Fatalf("%s: status %q (%s)", res.Model, res.Status, res.Error)
		}
		if res.ConfidenceSource != domain.ConfidenceSourceSynthetic {
			t.Fatalf("%s: confidence source %q", res.Model, res.ConfidenceSource)
		}
	}

	out := bank.Infer(domain.DomainRisk, ModelIForest, make(domain.FeatureVector, domain.DomainRisk.VectorLen()))
	if !out.Trained {
		t.Fatal("seeded model not trained")
	}
	if out.Source != domain.ConfidenceSourceSynthetic {
		t.Fatalf("output source = %q, want %q", out.Source, domain.ConfidenceSourceSynthetic)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	src := NewBank(42)
	samples := makeSamples(domain.DomainBehavior, 40, 11)
	for _, name := range ModelNames() {
		if res := src.Train(domain.DomainBehavior, name, samples); res.Status != domain.TrainingSuccess {
			t.Fatalf("train %s: %q (%s)", name, res.Status, res.Error)
		}
	}

	snaps, err := src.Snapshots()
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if len(snaps) != len(ModelNames()) {
		t.Fatalf("got %d snapshots, want %d", len(snaps), len(ModelNames()))
	}

	dst := NewBank(42)
	for _, snap := range snaps {
		if err := dst.Restore(snap); err != nil {
			t.Fatalf("restore %s/%s: %v", snap.Domain, snap.Model, err)
		}
	}

	vec := samples[5].Features
	for _, name := range ModelNames() {
		a := src.Infer(domain.DomainBehavior, name, vec)
		b := dst.Infer(domain.DomainBehavior, name, vec)
		if math.Abs(a.Score-b.Score) > 1e-9 {
			t.Fatalf("%s: score drifted after restore: %v vs %v", name, a.Score, b.Score)
		}
	}
}

func TestTrainPanicsBecomeErrors(t *testing.T) {
	bank := NewBank(42)
	res := bank.Train(domain.Domain("bogus"), ModelKMeans, makeSamples(domain.DomainRisk, 15, 1))
	if res.Status != domain.TrainingError {
		t.Fatalf("status = %q, want %q", res.Status, domain.TrainingError)
	}

	res = bank.Train(domain.DomainRisk, "nope", makeSamples(domain.DomainRisk, 15, 1))
	if res.Status != domain.TrainingError {
		t.Fatalf("unknown model status = %q, want %q", res.Status, domain.TrainingError)
	}
}

func TestScalerZeroVariance(t *testing.T) {
	X := [][]float64{{1, 5}, {1, 7}, {1, 9}}
	scaler, err := FitScaler(X)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	out := scaler.Transform([]float64{1, 7})
	if out[0] != 0 {
		t.Fatalf("constant column should scale to 0, got %v", out[0])
	}
	if out[1] != 0 {
		t.Fatalf("mean value should scale to 0, got %v", out[1])
	}
}
