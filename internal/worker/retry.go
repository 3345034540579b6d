package worker

import (
	"time"

	"fixit/internal/config"
)

// RetryPolicy spaces out ledger write attempts with capped exponential backoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64
}

// NewRetryPolicy reads the worker section; zero values fall back to defaults.
func NewRetryPolicy(cfg config.WorkerConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxRetries,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
	}.withDefaults()
}

func (r RetryPolicy) withDefaults() RetryPolicy {
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = 5
	}
	if r.BaseDelay <= 0 {
		r.BaseDelay = 2 * time.Second
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = time.Minute
	}
	if r.Factor < 1 {
		r.Factor = 2
	}
	return r
}

// Exhausted reports whether attempt (1-based) was the last one allowed.
func (r RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= r.withDefaults().MaxAttempts
}

// Delay is the wait before the attempt after the given one, capped at MaxDelay.
func (r RetryPolicy) Delay(attempt int) time.Duration {
	r = r.withDefaults()
	d := r.BaseDelay
	for i := 1; i < attempt && d < r.MaxDelay; i++ {
		d = time.Duration(float64(d) * r.Factor)
	}
	if d > r.MaxDelay {
		d = r.MaxDelay
	}
	return d
}
