package feature

import (
	"github.com/openproctor/kestrel/internal/domain"
)

// Behavior vector schema (15 slots): timing and interaction aggregates over
// one session.
var behaviorSlots = []string{
	"rt_mean",
	"rt_std",
	"rt_median",
	"rt_min",
	"rt_max",
	"accuracy",
	"accuracy_trend",
	"keystroke_mean",
	"keystroke_std",
	"mouse_velocity",
	"idle_ratio",
	"focus_losses",
	"paste_events",
	"answer_changes",
	"session_duration",
}

const (
	// defaultResponseSecs substitutes for missing timing data.
	defaultResponseSecs = 60.0
	// defaultAccuracy substitutes for missing accuracy data.
	defaultAccuracy = 0.5

	responseMeanNorm    = 300.0  // seconds
	responseStdNorm     = 120.0
	keystrokeMeanNorm   = 1000.0 // milliseconds
	keystrokeStdNorm    = 500.0
	mouseVelocityNorm   = 5000.0 // px/s
	focusLossNorm       = 20.0
	pasteEventNorm      = 10.0
	answerChangeNorm    = 15.0
	sessionDurationNorm = 7200.0 // seconds
)

func extractBehavior(rec domain.SessionRecord) domain.FeatureVector {
	beh := submap(rec, "behavior")

	rt := responseTimes(rec, beh)
	rtStats := summarize(rt, defaultResponseSecs)

	ks := getFloats(beh, "keystroke_intervals")
	ksStats := summarize(ks, 0)

	trend := getFloat(beh, "accuracy_trend", 0)
	if trend > 1 {
		trend = 1
	} else if trend < -1 {
		trend = -1
	}

	return domain.FeatureVector{
		rtStats.Mean / responseMeanNorm,
		rtStats.Std / responseStdNorm,
		rtStats.Median / responseMeanNorm,
		rtStats.Min / responseMeanNorm,
		rtStats.Max / responseMeanNorm,
		getFloat(beh, "accuracy", defaultAccuracy),
		0.5 + trend/2,
		ksStats.Mean / keystrokeMeanNorm,
		ksStats.Std / keystrokeStdNorm,
		getFloat(beh, "mouse_velocity", 0) / mouseVelocityNorm,
		clamp01(getFloat(beh, "idle_ratio", 0)),
		getFloat(beh, "focus_losses", 0) / focusLossNorm,
		getFloat(beh, "paste_events", 0) / pasteEventNorm,
		getFloat(beh, "answer_changes", 0) / answerChangeNorm,
		getFloat(beh, "session_duration", 0) / sessionDurationNorm,
	}
}

// responseTimes reads the per-question timing sequence from the behavior
// submap or the record's top level, whichever is present.
func responseTimes(rec domain.SessionRecord, beh map[string]any) []float64 {
	if rt := getFloats(beh, "response_times"); len(rt) > 0 {
		return rt
	}
	return getFloats(rec, "response_times")
}
