package feature

import (
	"github.com/openproctor/kestrel/internal/domain"
)

// Risk vector schema (14 slots): evasion and virtualization indicators plus
// cross-session aggregates. The "history" submap is populated by the
// assessor from the session-history service; when absent every slot falls
// back to its default.
var riskSlots = []string{
	"vm_score",
	"webdriver",
	"headless",
	"ip_change_rate",
	"geo_velocity",
	"proxy",
	"session_count",
	"device_reuse",
	"fingerprint_mismatches",
	"timing_consistency",
	"rt_mean",
	"accuracy",
	"tab_switches",
	"off_hours",
}

const (
	ipChangeNorm     = 10.0
	geoVelocityNorm  = 1000.0 // km/h
	sessionCountNorm = 50.0
	deviceReuseNorm  = 20.0
	fpMismatchNorm   = 10.0
	tabSwitchNorm    = 30.0
	offHoursStart    = 0      // local hour window considered anomalous
	offHoursEnd      = 5
)

func extractRisk(rec domain.SessionRecord) domain.FeatureVector {
	vmi := nestedMap(rec, "vm_indicators")
	net := nestedMap(rec, "network")
	hist := nestedMap(rec, "history")
	beh := submap(rec, "behavior")
	auto := nestedMap(rec, "automation")

	rt := responseTimes(rec, beh)
	rtStats := summarize(rt, defaultResponseSecs)

	offHours := 0.0
	if hour := getFloat(rec, "hour_of_day", -1); hour >= offHoursStart && hour <= offHoursEnd {
		offHours = 1.0
	}

	return domain.FeatureVector{
		vmScore(vmi),
		flag(getBool(auto, "webdriver") || getBool(rec, "webdriver")),
		flag(getBool(auto, "headless") || getBool(rec, "headless")),
		getFloat(net, "ip_changes", 0) / ipChangeNorm,
		getFloat(net, "geo_velocity_kmh", 0) / geoVelocityNorm,
		flag(getBool(net, "proxy") || getBool(net, "vpn")),
		getFloat(hist, "session_count", 0) / sessionCountNorm,
		getFloat(hist, "device_candidates", 0) / deviceReuseNorm,
		getFloat(hist, "fingerprint_mismatches", 0) / fpMismatchNorm,
		consistency(rt),
		rtStats.Mean / responseMeanNorm,
		getFloat(beh, "accuracy", defaultAccuracy),
		getFloat(beh, "tab_switches", getFloat(rec, "tab_switches", 0)) / tabSwitchNorm,
		offHours,
	}
}

// vmScore condenses the virtualization indicator block into one [0,1]
// value: a hard vm_detected flag dominates, otherwise a reported fractional
// score is passed through.
func vmScore(vmi map[string]any) float64 {
	if getBool(vmi, "vm_detected") {
		return 1.0
	}
	return clamp01(getFloat(vmi, "score", 0))
}
