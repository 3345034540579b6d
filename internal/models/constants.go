package models

const (
	// WorkerQueueSize is the in-memory ledger queue capacity.
	WorkerQueueSize = 1000

	// DefaultNearbyLimit caps the nearby providers result.
	DefaultNearbyLimit = 50

	// BaseHourlyRate and SkillRateStep price a provider by skill count.
	BaseHourlyRate = 300
	SkillRateStep  = 50

	// TrackingSpeedKMH is the assumed city speed for ETA estimates.
	TrackingSpeedKMH = 25.0
	MinETAMinutes    = 5

	// DefaultCurrency is used for gateway orders.
	DefaultCurrency = "INR"
)

// AllowedImageExtensions lists upload extensions accepted for completion images.
var AllowedImageExtensions = []string{"png", "jpg", "jpeg", "gif", "webp"}
