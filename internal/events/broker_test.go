package events

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInstance(t *testing.T, addr string) *RedisBroker {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisBroker(client, NewRouter(8, nil), "fixit:rooms", nil)
}

func TestRedisBroker_CrossInstance(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newInstance(t, mr.Addr())
	b := newInstance(t, mr.Addr())
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))

	local := a.Router().Subscribe(ProviderRoom(1))
	remote := b.Router().Subscribe(ProviderRoom(1))

	require.NoError(t, a.Publish(ctx, ProviderRoom(1), EventNewBookingAvailable, map[string]int64{"booking_id": 9}))

	evt := receive(t, remote)
	assert.Equal(t, EventNewBookingAvailable, evt.Type)
	assert.JSONEq(t, `{"booking_id":9}`, string(evt.Payload))

	assert.Equal(t, EventNewBookingAvailable, receive(t, local).Type)
	assertNoEvent(t, local)

	cancel()
	a.Wait()
	b.Wait()
}

func TestRedisBroker_FallsBackToLocal(t *testing.T) {
	mr := miniredis.RunT(t)
	broker := newInstance(t, mr.Addr())
	sub := broker.Router().Subscribe(UserRoom(2))

	mr.Close()

	err := broker.Publish(context.Background(), UserRoom(2), EventPaymentSuccessful, PaymentSuccessPayload{BookingID: 1})
	require.NoError(t, err)
	assert.Equal(t, EventPaymentSuccessful, receive(t, sub).Type)
}

func TestRedisBroker_StartFailsWithoutRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	broker := newInstance(t, mr.Addr())
	mr.Close()

	assert.Error(t, broker.Start(context.Background()))
}
