package feature

import (
	"reflect"
	"testing"

	"github.com/openproctor/kestrel/internal/domain"
)

func TestVectorShapeInvariant(t *testing.T) {
	records := map[string]domain.SessionRecord{
		"Empty":     {},
		"Nil":       nil,
		"Garbage":   {"device": "not a map", "response_times": "nope", "behavior": 42},
		"Partial":   {"device": map[string]any{"screen_width": 1920.0}},
		"Full": {
			"device": map[string]any{
				"screen_width": 1920.0, "screen_height": 1080.0, "color_depth": 24.0,
				"pixel_ratio": 2.0, "hardware_concurrency": 8.0, "device_memory": 16.0,
				"timezone_offset": -300.0, "canvas_hash": "abc123", "webgl_vendor": "Intel Inc.",
				"webgl_renderer": "Intel Iris", "audio_hash": "def456", "font_count": 120.0,
				"plugin_count": 3.0, "touch_points": 0.0, "user_agent": "Mozilla/5.0",
				"platform": "MacIntel", "language": "en-US", "cookies_enabled": true,
			},
			"behavior": map[string]any{
				"response_times": []any{30.0, 45.0, 28.0, 60.0},
				"accuracy":       0.8,
			},
			"vm_indicators": map[string]any{"vm_detected": false},
		},
	}

	for name, rec := range records {
		t.Run(name, func(t *testing.T) {
			for _, d := range []domain.Domain{domain.DomainDevice, domain.DomainBehavior, domain.DomainRisk} {
				vec := Extract(d, rec)
				if len(vec) != d.VectorLen() {
					t.Errorf("domain %s: expected length %d, got %d", d, d.VectorLen(), len(vec))
				}
			}
		})
	}
}

func TestExtractDeterminism(t *testing.T) {
	rec := domain.SessionRecord{
		"device": map[string]any{
			"screen_width": 2560.0,
			"user_agent":   "Mozilla/5.0 (X11; Linux x86_64)",
			"platform":     "Linux x86_64",
		},
		"response_times": []any{12.5, 40.0, 33.3},
	}

	for _, d := range []domain.Domain{domain.DomainDevice, domain.DomainBehavior, domain.DomainRisk} {
		first := Extract(d, rec)
		for i := 0; i < 5; i++ {
			if got := Extract(d, rec); !reflect.DeepEqual(first, got) {
				t.Fatalf("domain %s: extraction not deterministic: %v vs %v", d, first, got)
			}
		}
	}
}

func TestEmptyRecordDefaults(t *testing.T) {
	vec := Extract(domain.DomainBehavior, domain.SessionRecord{})

	names := SlotNames(domain.DomainBehavior)
	m := AsMap(domain.DomainBehavior, vec)

	if len(names) != 15 {
		t.Fatalf("expected 15 behavior slots, got %d", len(names))
	}
	if got := m["accuracy"]; got != defaultAccuracy {
		t.Errorf("expected default accuracy %.2f, got %.2f", defaultAccuracy, got)
	}
	// Missing timing substitutes 60s, not zero.
	if got := m["rt_mean"]; got != defaultResponseSecs/responseMeanNorm {
		t.Errorf("expected default rt_mean %.4f, got %.4f", defaultResponseSecs/responseMeanNorm, got)
	}
	if got := m["rt_std"]; got != 0 {
		t.Errorf("expected zero rt_std for missing timing, got %.4f", got)
	}
}

func TestRiskTimingConsistency(t *testing.T) {
	t.Run("MachineLikeTiming", func(t *testing.T) {
		rec := domain.SessionRecord{"response_times": []any{50.0, 48.0, 52.0, 49.0, 51.0}}
		m := AsMap(domain.DomainRisk, Extract(domain.DomainRisk, rec))

		cons := m["timing_consistency"]
		if cons >= 0.1 {
			t.Errorf("expected std/mean < 0.1 for machine-like timing, got %.4f", cons)
		}
	})

	t.Run("MissingTimingIsNeutral", func(t *testing.T) {
		m := AsMap(domain.DomainRisk, Extract(domain.DomainRisk, domain.SessionRecord{}))
		if got := m["timing_consistency"]; got != 1.0 {
			t.Errorf("expected neutral consistency 1.0 for missing timing, got %.4f", got)
		}
	})

	t.Run("SinglePointIsNeutral", func(t *testing.T) {
		rec := domain.SessionRecord{"response_times": []any{42.0}}
		m := AsMap(domain.DomainRisk, Extract(domain.DomainRisk, rec))
		if got := m["timing_consistency"]; got != 1.0 {
			t.Errorf("expected neutral consistency for single point, got %.4f", got)
		}
	})
}

func TestVMIndicators(t *testing.T) {
	t.Run("Detected", func(t *testing.T) {
		rec := domain.SessionRecord{"vm_indicators": map[string]any{"vm_detected": true}}
		m := AsMap(domain.DomainRisk, Extract(domain.DomainRisk, rec))
		if got := m["vm_score"]; got != 1.0 {
			t.Errorf("expected vm_score 1.0, got %.2f", got)
		}
	})

	t.Run("FractionalScore", func(t *testing.T) {
		rec := domain.SessionRecord{"vm_indicators": map[string]any{"score": 0.3}}
		m := AsMap(domain.DomainRisk, Extract(domain.DomainRisk, rec))
		if got := m["vm_score"]; got != 0.3 {
			t.Errorf("expected vm_score 0.3, got %.2f", got)
		}
	})

	t.Run("Absent", func(t *testing.T) {
		m := AsMap(domain.DomainRisk, Extract(domain.DomainRisk, domain.SessionRecord{}))
		if got := m["vm_score"]; got != 0 {
			t.Errorf("expected vm_score 0 for absent indicators, got %.2f", got)
		}
	})
}

func TestCategoricalEncoding(t *testing.T) {
	t.Run("KnownPlatformUsesTable", func(t *testing.T) {
		a := platformIndex("MacIntel")
		b := platformIndex("macintel")
		if a != b {
			t.Errorf("platform lookup should be case-insensitive: %.4f vs %.4f", a, b)
		}
		if a == 0 {
			t.Error("known platform should not encode as 0")
		}
	})

	t.Run("HashBucketRange", func(t *testing.T) {
		for _, s := range []string{"Mozilla/5.0", "a", "some-long-renderer-string", ""} {
			v := hashBucket(s)
			if v < 0 || v >= 1 {
				t.Errorf("hashBucket(%q) = %.4f out of [0,1)", s, v)
			}
		}
	})

	t.Run("HashBucketDeterministic", func(t *testing.T) {
		if hashBucket("Mozilla/5.0") != hashBucket("Mozilla/5.0") {
			t.Error("hash bucketing must be deterministic")
		}
	})
}

func TestSummarize(t *testing.T) {
	s := summarize([]float64{10, 20, 30, 40}, 60)
	if s.Mean != 25 {
		t.Errorf("expected mean 25, got %.2f", s.Mean)
	}
	if s.Median != 25 {
		t.Errorf("expected median 25, got %.2f", s.Median)
	}
	if s.Min != 10 || s.Max != 40 {
		t.Errorf("expected min 10 max 40, got %.2f %.2f", s.Min, s.Max)
	}

	// Below two points: defaults, zero std.
	s = summarize([]float64{99}, 60)
	if s.Mean != 60 || s.Std != 0 {
		t.Errorf("expected default stats for short sequence, got %+v", s)
	}
}
