package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case evt, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return evt
	case <-time.After(2 * time.Second):
		t.Fatalf("no event on %s", sub.Room())
	}
	return Event{}
}

func assertNoEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case evt := <-sub.Events():
		t.Fatalf("unexpected event %s on %s", evt.Type, sub.Room())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRoomNames(t *testing.T) {
	assert.Equal(t, "provider_7", ProviderRoom(7))
	assert.Equal(t, "user_3", UserRoom(3))
	assert.Equal(t, "booking_12", BookingRoom(12))
	assert.Equal(t, "all_providers", AllProvidersRoom)
}

func TestRouter_PublishToRoom(t *testing.T) {
	r := NewRouter(4, nil)
	ctx := context.Background()

	a := r.Subscribe(UserRoom(1))
	b := r.Subscribe(UserRoom(1))
	other := r.Subscribe(UserRoom(2))

	require.NoError(t, r.Publish(ctx, UserRoom(1), EventBookingCreated, map[string]int{"id": 5}))

	for _, sub := range []*Subscription{a, b} {
		evt := receive(t, sub)
		assert.Equal(t, EventBookingCreated, evt.Type)
		assert.Equal(t, "user_1", evt.Room)
		var payload map[string]int
		require.NoError(t, evt.Decode(&payload))
		assert.Equal(t, 5, payload["id"])
	}
	assertNoEvent(t, other)
}

func TestRouter_EmptyRoomIsNoop(t *testing.T) {
	r := NewRouter(1, nil)
	assert.NoError(t, r.Publish(context.Background(), "booking_99", EventBookingStatusUpdated, nil))
	assert.Zero(t, r.Deliver(Event{Room: "nobody", Type: "x"}))
}

func TestRouter_FullBufferDrops(t *testing.T) {
	r := NewRouter(1, nil)
	sub := r.Subscribe(AllProvidersRoom)

	assert.Equal(t, 1, r.Deliver(Event{Room: AllProvidersRoom, Type: "first"}))
	assert.Equal(t, 0, r.Deliver(Event{Room: AllProvidersRoom, Type: "second"}))

	assert.Equal(t, "first", receive(t, sub).Type)
	assertNoEvent(t, sub)
}

func TestRouter_Unsubscribe(t *testing.T) {
	r := NewRouter(1, nil)
	sub := r.Subscribe(BookingRoom(1))
	assert.Equal(t, 1, r.SubscriberCount(BookingRoom(1)))
	assert.Equal(t, []string{"booking_1"}, r.Rooms())

	sub.Close()
	sub.Close()
	assert.Zero(t, r.SubscriberCount(BookingRoom(1)))
	assert.Empty(t, r.Rooms())

	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestRouter_Close(t *testing.T) {
	r := NewRouter(1, nil)
	sub := r.Subscribe(UserRoom(1))
	r.Close()

	_, ok := <-sub.Events()
	assert.False(t, ok)
	sub.Close()

	late := r.Subscribe(UserRoom(1))
	_, ok = <-late.Events()
	assert.False(t, ok)
}

func TestRouter_ConcurrentPublish(t *testing.T) {
	r := NewRouter(1000, nil)
	sub := r.Subscribe(AllProvidersRoom)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = r.Publish(ctx, AllProvidersRoom, EventNewBookingAvailable, j)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, sub.Events(), 500)
}

func TestFormatMessage(t *testing.T) {
	evt, err := NewJSONEvent(UserRoom(1), EventBookingStatus, BookingStatusPayload{BookingID: 4, OldStatus: "Pending", Status: "Accepted"})
	require.NoError(t, err)
	assert.Equal(t, "Booking #4: Pending -> Accepted", FormatMessage(evt))

	evt, err = NewJSONEvent("room", "custom", map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, `[room] custom: {"a":1}`, FormatMessage(evt))
}
