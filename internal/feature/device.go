package feature

import (
	"github.com/openproctor/kestrel/internal/domain"
)

// Device vector schema (18 slots). Denominators are empirically chosen
// tunable constants that bring each value into roughly unit range; they are
// not derived quantities.
var deviceSlots = []string{
	"screen_width",
	"screen_height",
	"color_depth",
	"pixel_ratio",
	"hardware_concurrency",
	"device_memory",
	"timezone_offset",
	"canvas_hash",
	"webgl_vendor",
	"webgl_renderer",
	"audio_hash",
	"font_count",
	"plugin_count",
	"touch_points",
	"user_agent",
	"platform",
	"language",
	"cookies_enabled",
}

const (
	screenWidthNorm  = 4000.0
	screenHeightNorm = 2400.0
	colorDepthNorm   = 48.0
	pixelRatioNorm   = 4.0
	coreCountNorm    = 32.0
	deviceMemoryNorm = 64.0 // GB
	fontCountNorm    = 300.0
	pluginCountNorm  = 50.0
	touchPointsNorm  = 10.0
	tzMinutesRange   = 1440.0 // UTC-12h..UTC+12h mapped into [0,1]
)

func extractDevice(rec domain.SessionRecord) domain.FeatureVector {
	dev := submap(rec, "device")

	// Timezone offset in minutes, shifted into [0,1].
	tz := (getFloat(dev, "timezone_offset", 0) + tzMinutesRange/2) / tzMinutesRange

	return domain.FeatureVector{
		getFloat(dev, "screen_width", 0) / screenWidthNorm,
		getFloat(dev, "screen_height", 0) / screenHeightNorm,
		getFloat(dev, "color_depth", 0) / colorDepthNorm,
		getFloat(dev, "pixel_ratio", 0) / pixelRatioNorm,
		getFloat(dev, "hardware_concurrency", 0) / coreCountNorm,
		getFloat(dev, "device_memory", 0) / deviceMemoryNorm,
		tz,
		hashBucket(getString(dev, "canvas_hash")),
		vendorIndex(getString(dev, "webgl_vendor")),
		hashBucket(getString(dev, "webgl_renderer")),
		hashBucket(getString(dev, "audio_hash")),
		getFloat(dev, "font_count", 0) / fontCountNorm,
		getFloat(dev, "plugin_count", 0) / pluginCountNorm,
		getFloat(dev, "touch_points", 0) / touchPointsNorm,
		hashBucket(getString(dev, "user_agent")),
		platformIndex(getString(dev, "platform")),
		languageIndex(getString(dev, "language")),
		flag(getBool(dev, "cookies_enabled")),
	}
}
