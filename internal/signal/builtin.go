package signal

import "github.com/openproctor/kestrel/internal/domain"

// BuiltinSignals returns the default suspicion-signal set, loaded at startup
// for tenants without configured signals. Tenant-specific signals created
// via the API override these after a reload. Thresholds reference the
// normalized feature slots, so e.g. device_reuse > 0.25 means more than 5
// candidate accounts on one device fingerprint.
func BuiltinSignals() []*domain.SignalConfig {
	return []*domain.SignalConfig{
		{
			ID:             "builtin-vm-detected",
			Domain:         domain.DomainRisk,
			Name:           "Virtual machine detected",
			Description:    "Session runs inside a virtual machine or emulator",
			Version:        "1.0.0",
			Expression:     `features["vm_score"] > 0.5`,
			Weight:         0.5,
			Factor:         "Virtual Machine Detected",
			Recommendation: "investigate VM usage before accepting the session",
			Enabled:        true,
		},
		{
			ID:          "builtin-machine-timing",
			Domain:      domain.DomainRisk,
			Name:        "Machine-like response timing",
			Description: "Response times show near-zero variance relative to their mean",
			Version:     "1.0.0",
			Expression:  `features["timing_consistency"] < 0.1`,
			Weight:      0.35,
			Factor:      "Machine-Like Response Timing",
			Enabled:     true,
		},
		{
			ID:             "builtin-webdriver",
			Domain:         domain.DomainRisk,
			Name:           "Automation framework detected",
			Description:    "Browser reports a WebDriver automation flag",
			Version:        "1.0.0",
			Expression:     `features["webdriver"] > 0.0`,
			Weight:         0.45,
			Factor:         "Automation Framework Detected",
			Recommendation: "require additional verification",
			Enabled:        true,
		},
		{
			ID:          "builtin-headless",
			Domain:      domain.DomainRisk,
			Name:        "Headless browser detected",
			Description: "Browser fingerprint matches a headless environment",
			Version:     "1.0.0",
			Expression:  `features["headless"] > 0.0`,
			Weight:      0.4,
			Factor:      "Headless Browser Detected",
			Enabled:     true,
		},
		{
			ID:          "builtin-implausible-accuracy",
			Domain:      domain.DomainRisk,
			Name:        "Implausibly high accuracy",
			Description: "Near-perfect accuracy across the whole session",
			Version:     "1.0.0",
			Expression:  `features["accuracy"] > 0.98`,
			Weight:      0.3,
			Factor:      "Implausibly High Accuracy",
			Enabled:     true,
		},
		{
			ID:          "builtin-ip-churn",
			Domain:      domain.DomainRisk,
			Name:        "Frequent IP changes",
			Description: "More than one IP change during the session",
			Version:     "1.0.0",
			Expression:  `features["ip_change_rate"] > 0.1`,
			Weight:      0.3,
			Factor:      "Frequent IP Address Changes",
			Enabled:     true,
		},
		{
			ID:          "builtin-impossible-travel",
			Domain:      domain.DomainRisk,
			Name:        "Impossible travel speed",
			Description: "Geo velocity between session IPs exceeds 500 km/h",
			Version:     "1.0.0",
			Expression:  `features["geo_velocity"] > 0.5`,
			Weight:      0.3,
			Factor:      "Impossible Travel Speed",
			Enabled:     true,
		},
		{
			ID:          "builtin-proxy",
			Domain:      domain.DomainRisk,
			Name:        "Proxy or VPN detected",
			Description: "Session network path goes through a proxy or VPN",
			Version:     "1.0.0",
			Expression:  `features["proxy"] > 0.0`,
			Weight:      0.2,
			Factor:      "Proxy or VPN Detected",
			Enabled:     true,
		},
		{
			ID:             "builtin-device-reuse",
			Domain:         domain.DomainRisk,
			Name:           "Shared device fingerprint",
			Description:    "Device fingerprint seen across more than 5 accounts",
			Version:        "1.0.0",
			Expression:     `features["device_reuse"] > 0.25`,
			Weight:         0.25,
			Factor:         "Device Shared Across Accounts",
			Recommendation: "review linked accounts on this device",
			Enabled:        true,
		},
		{
			ID:          "builtin-heavy-paste",
			Domain:      domain.DomainBehavior,
			Name:        "Heavy clipboard activity",
			Description: "More than 5 paste events during the session",
			Version:     "1.0.0",
			Expression:  `features["paste_events"] > 0.5`,
			Weight:      0.2,
			Factor:      "Heavy Clipboard Paste Activity",
			Enabled:     true,
		},
	}
}
