// Package feature provides deterministic extraction of fixed-length numeric
// feature vectors from raw, partially missing session telemetry.
//
// Extraction never fails: every field access falls back to a documented
// default, and a catastrophic failure degrades to a zero vector of the
// domain's length. Same input always produces the same output.
package feature

import (
	"log/slog"

	"github.com/openproctor/kestrel/internal/domain"
)

// Extract converts a raw session record into the domain's fixed-length
// feature vector. Unknown domains yield a nil vector.
func Extract(d domain.Domain, rec domain.SessionRecord) (vec domain.FeatureVector) {
	n := d.VectorLen()
	if n == 0 {
		return nil
	}

	// Degrade to a zero vector rather than aborting the assessment.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("feature extraction degraded to zero vector",
				"domain", d,
				"panic", r,
			)
			vec = make(domain.FeatureVector, n)
		}
	}()

	if rec == nil {
		rec = domain.SessionRecord{}
	}

	switch d {
	case domain.DomainDevice:
		return extractDevice(rec)
	case domain.DomainBehavior:
		return extractBehavior(rec)
	case domain.DomainRisk:
		return extractRisk(rec)
	default:
		return make(domain.FeatureVector, n)
	}
}

// SlotNames returns the ordered slot names of a domain's vector schema.
// The returned slice must not be mutated.
func SlotNames(d domain.Domain) []string {
	switch d {
	case domain.DomainDevice:
		return deviceSlots
	case domain.DomainBehavior:
		return behaviorSlots
	case domain.DomainRisk:
		return riskSlots
	default:
		return nil
	}
}

// AsMap pairs a vector's values with its slot names, for use as a CEL
// activation and in API responses. Short vectors are padded with zeros.
func AsMap(d domain.Domain, vec domain.FeatureVector) map[string]float64 {
	names := SlotNames(d)
	m := make(map[string]float64, len(names))
	for i, name := range names {
		if i < len(vec) {
			m[name] = vec[i]
		} else {
			m[name] = 0.0
		}
	}
	return m
}

// submap returns a nested map field, or the record itself when the field is
// absent so that flat payloads still extract.
func submap(rec map[string]any, key string) map[string]any {
	if m, ok := rec[key].(map[string]any); ok {
		return m
	}
	return rec
}

// nestedMap returns a nested map field, or an empty map when absent.
func nestedMap(rec map[string]any, key string) map[string]any {
	if m, ok := rec[key].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// getFloat reads a numeric field, tolerating the types JSON decoding and
// callers produce. Missing or non-numeric values yield def.
func getFloat(m map[string]any, key string, def float64) float64 {
	v, ok := m[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return def
	}
}

// getBool reads a boolean field; missing or non-boolean values are false.
func getBool(m map[string]any, key string) bool {
	v, ok := m[key].(bool)
	return ok && v
}

// getString reads a string field; missing values yield "".
func getString(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

// getFloats reads a numeric sequence field; non-numeric elements are skipped.
func getFloats(m map[string]any, key string) []float64 {
	raw, ok := m[key].([]any)
	if !ok {
		if direct, ok := m[key].([]float64); ok {
			return direct
		}
		return nil
	}
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		switch n := v.(type) {
		case float64:
			out = append(out, n)
		case float32:
			out = append(out, float64(n))
		case int:
			out = append(out, float64(n))
		case int64:
			out = append(out, float64(n))
		}
	}
	return out
}

// flag converts a boolean to its numeric feature encoding.
func flag(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

// clamp01 clamps a value into [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
