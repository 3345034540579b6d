package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) Lock(ctx context.Context, key string) (func(), error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}

func TestFailoverLocker(t *testing.T) {
	primary := new(mockLocker)
	fallback := NewMemoryLocker()
	logger := zerolog.New(io.Discard)
	locker := NewFailoverLocker(primary, fallback, &logger)
	ctx := context.Background()

	now := time.Now()
	locker.now = func() time.Time { return now }

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("Lock", ctx, "a").Return(func() {}, nil).Once()

		unlock, err := locker.Lock(ctx, "a")
		require.NoError(t, err)
		unlock()
		assert.False(t, locker.Degraded())
		assert.Zero(t, fallback.Len())
	})

	t.Run("PrimaryFailsUseFallback", func(t *testing.T) {
		primary.On("Lock", ctx, "b").Return(nil, errors.New("redis down")).Once()

		unlock, err := locker.Lock(ctx, "b")
		require.NoError(t, err)
		assert.True(t, locker.Degraded())
		assert.Equal(t, 1, fallback.Len())
		unlock()
	})

	t.Run("StaysOnFallbackWhileDown", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, "c")
		require.NoError(t, err)
		unlock()
		primary.AssertNumberOfCalls(t, "Lock", 2)
	})

	t.Run("RecoversAfterInterval", func(t *testing.T) {
		now = now.Add(2 * recoveryInterval)
		primary.On("Lock", ctx, "d").Return(func() {}, nil).Once()

		_, err := locker.Lock(ctx, "d")
		require.NoError(t, err)
		assert.False(t, locker.Degraded())
	})

	t.Run("CanceledContextDoesNotFailOver", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		primary.On("Lock", cctx, "e").Return(nil, context.Canceled).Once()

		_, err := locker.Lock(cctx, "e")
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, locker.Degraded())
	})

	primary.AssertExpectations(t)
}
