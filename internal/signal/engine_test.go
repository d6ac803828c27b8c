package signal

import (
	"context"
	"math"
	"testing"

	"github.com/openproctor/kestrel/internal/domain"
)

func testSignal(id, expr string, weight float64) *domain.SignalConfig {
	return &domain.SignalConfig{
		ID:         id,
		Domain:     domain.DomainRisk,
		Name:       id,
		Expression: expr,
		Weight:     weight,
		Factor:     "Test Factor " + id,
		Enabled:    true,
	}
}

func TestCompileValidation(t *testing.T) {
	engine, err := NewEngine(4)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	t.Run("valid bool expression", func(t *testing.T) {
		if err := engine.Validate(testSignal("s1", `features["vm_score"] > 0.5`, 0.5)); err != nil {
			t.Fatalf("validate: %v", err)
		}
	})

	t.Run("syntax error rejected", func(t *testing.T) {
		if err := engine.Validate(testSignal("s2", `features[`, 0.5)); err == nil {
			t.Fatal("expected compile error")
		}
	})

	t.Run("string result rejected", func(t *testing.T) {
		if err := engine.Validate(testSignal("s3", `"not a score"`, 0.5)); err == nil {
			t.Fatal("expected output type error")
		}
	})

	t.Run("validate does not load", func(t *testing.T) {
		if engine.Count() != 0 {
			t.Fatalf("count = %d after validate", engine.Count())
		}
	})
}

func TestLoadAndReload(t *testing.T) {
	engine, err := NewEngine(4)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	configs := []*domain.SignalConfig{
		testSignal("a", `features["vm_score"] > 0.5`, 0.5),
		testSignal("b", `features["webdriver"] > 0.0`, 0.45),
	}
	disabled := testSignal("c", `features["proxy"] > 0.0`, 0.2)
	disabled.Enabled = false
	configs = append(configs, disabled)

	if err := engine.LoadAll(configs); err != nil {
		t.Fatalf("load all: %v", err)
	}
	if engine.Count() != 2 {
		t.Fatalf("count = %d, want 2 (disabled signal skipped)", engine.Count())
	}

	t.Run("reload failure keeps previous set", func(t *testing.T) {
		bad := []*domain.SignalConfig{testSignal("broken", `features[`, 0.1)}
		if err := engine.Reload(bad); err == nil {
			t.Fatal("expected reload error")
		}
		if engine.Count() != 2 {
			t.Fatalf("count = %d after failed reload, want 2", engine.Count())
		}
	})

	t.Run("reload swaps set", func(t *testing.T) {
		if err := engine.Reload(configs[:1]); err != nil {
			t.Fatalf("reload: %v", err)
		}
		if engine.Count() != 1 {
			t.Fatalf("count = %d, want 1", engine.Count())
		}
	})
}

func TestEvaluateBuiltins(t *testing.T) {
	engine, err := NewEngine(8)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := engine.LoadAll(BuiltinSignals()); err != nil {
		t.Fatalf("load builtins: %v", err)
	}

	t.Run("vm with machine timing fires high composite", func(t *testing.T) {
		input := &EvalInput{
			TenantID:  "t1",
			SessionID: "s1",
			Features: map[domain.Domain]map[string]float64{
				domain.DomainRisk: {
					"vm_score":           1.0,
					"timing_consistency": 0.02,
					"accuracy":           0.5,
				},
			},
		}
		results := engine.EvaluateAll(context.Background(), input)

		factors := map[string]bool{}
		for _, r := range results {
			if r.Fired {
				factors[r.Factor] = true
			}
		}
		if !factors["Virtual Machine Detected"] {
			t.Fatal("VM signal did not fire")
		}
		if !factors["Machine-Like Response Timing"] {
			t.Fatal("timing signal did not fire")
		}

		composite := Composite(results)
		if math.Abs(composite-0.85) > 1e-9 {
			t.Fatalf("composite = %v, want 0.85", composite)
		}
	})

	t.Run("benign defaults fire nothing", func(t *testing.T) {
		input := &EvalInput{
			TenantID:  "t1",
			SessionID: "s2",
			Features: map[domain.Domain]map[string]float64{
				domain.DomainRisk: {
					"vm_score":           0,
					"timing_consistency": 1.0,
					"accuracy":           0.5,
				},
				domain.DomainBehavior: {
					"paste_events": 0,
				},
			},
		}
		results := engine.EvaluateAll(context.Background(), input)
		if n := FiredCount(results); n != 0 {
			t.Fatalf("%d signals fired on benign input", n)
		}
		if c := Composite(results); c != 0 {
			t.Fatalf("composite = %v, want 0", c)
		}
	})

	t.Run("missing domain features evaluate against empty map", func(t *testing.T) {
		input := &EvalInput{TenantID: "t1", SessionID: "s3"}
		results := engine.EvaluateAll(context.Background(), input)
		for _, r := range results {
			if r.Err != "" {
				// Map access on a missing key errors in CEL; signals must
				// contribute nothing rather than fail the assessment.
				continue
			}
			if r.Fired {
				t.Fatalf("signal %s fired with no features", r.SignalID)
			}
		}
		if c := Composite(results); c != 0 {
			t.Fatalf("composite = %v, want 0", c)
		}
	})
}

func TestCompositeCapped(t *testing.T) {
	results := []domain.SignalResult{
		{Fired: true, Score: 1, Weight: 0.6},
		{Fired: true, Score: 1, Weight: 0.6},
		{Fired: true, Score: 1, Weight: 0.6, Err: "boom"},
		{Fired: false, Score: 1, Weight: 0.6},
	}
	if c := Composite(results); c != 1 {
		t.Fatalf("composite = %v, want 1 (capped)", c)
	}
}

func TestNumericExpressionScore(t *testing.T) {
	engine, err := NewEngine(2)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	cfg := testSignal("graded", `features["vm_score"]`, 0.5)
	if err := engine.Load(cfg); err != nil {
		t.Fatalf("load: %v", err)
	}

	input := &EvalInput{
		TenantID:  "t1",
		SessionID: "s1",
		Features: map[domain.Domain]map[string]float64{
			domain.DomainRisk: {"vm_score": 0.6},
		},
	}
	results := engine.EvaluateAll(context.Background(), input)
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	r := results[0]
	if !r.Fired || math.Abs(r.Score-0.6) > 1e-9 {
		t.Fatalf("fired=%v score=%v, want fired with score 0.6", r.Fired, r.Score)
	}
	if c := Composite(results); math.Abs(c-0.3) > 1e-9 {
		t.Fatalf("composite = %v, want 0.3", c)
	}
}
