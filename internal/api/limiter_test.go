package api

import (
	"fmt"
	"testing"
	"time"

	"fixit/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		l := newRateLimiter(config.APIRateLimitConfig{}, "http")
		for i := 0; i < 100; i++ {
			assert.True(t, l.allow("k"))
		}
		assert.Zero(t, l.size())
	})

	t.Run("BurstPerKey", func(t *testing.T) {
		now := time.Unix(1_700_000_000, 0)
		l := newRateLimiter(config.APIRateLimitConfig{RPS: 1, Burst: 2}, "http")
		l.now = func() time.Time { return now }

		assert.True(t, l.allow("a"))
		assert.True(t, l.allow("a"))
		assert.False(t, l.allow("a"))
		assert.True(t, l.allow("b"))

		now = now.Add(time.Second)
		assert.True(t, l.allow("a"))
	})

	t.Run("DefaultBurst", func(t *testing.T) {
		now := time.Unix(1_700_000_000, 0)
		l := newRateLimiter(config.APIRateLimitConfig{RPS: 0.001}, "grpc")
		l.now = func() time.Time { return now }

		for i := 0; i < defaultBurst; i++ {
			assert.True(t, l.allow("k"))
		}
		assert.False(t, l.allow("k"))
	})

	t.Run("PrunesIdle", func(t *testing.T) {
		now := time.Unix(1_700_000_000, 0)
		l := newRateLimiter(config.APIRateLimitConfig{RPS: 10, Burst: 1}, "http")
		l.now = func() time.Time { return now }

		for i := 0; i < pruneThreshold; i++ {
			l.allow(fmt.Sprintf("client-%d", i))
		}
		assert.Equal(t, pruneThreshold, l.size())

		now = now.Add(limiterIdleTTL + time.Second)
		l.allow("fresh")
		assert.Equal(t, 1, l.size())
	})
}
