package events

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"fixit/internal/metrics"

	"github.com/rs/zerolog"
)

const DefaultBufferSize = 64

// Event is a single message delivered to a room.
type Event struct {
	Room      string          `json:"room"`
	Type      string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// NewJSONEvent builds an Event with a JSON payload.
func NewJSONEvent(room, eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Room: room, Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}

// Subscription receives the events of one room until closed.
type Subscription struct {
	id     uint64
	room   string
	ch     chan Event
	router *Router
	once   sync.Once
}

func (s *Subscription) Room() string { return s.room }

// Events returns the delivery channel. It is closed on Close or router shutdown.
func (s *Subscription) Events() <-chan Event { return s.ch }

func (s *Subscription) Close() { s.router.Unsubscribe(s) }

// Router fans events out to in-process room subscribers. Delivery is
// at-most-once: a subscriber with a full buffer misses the event.
type Router struct {
	mu     sync.RWMutex
	rooms  map[string]map[uint64]*Subscription
	nextID uint64
	buffer int
	closed bool
	logger *zerolog.Logger
}

func NewRouter(bufferSize int, logger *zerolog.Logger) *Router {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Router{
		rooms:  make(map[string]map[uint64]*Subscription),
		buffer: bufferSize,
		logger: logger,
	}
}

func (r *Router) Subscribe(room string) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	sub := &Subscription{id: r.nextID, room: room, ch: make(chan Event, r.buffer), router: r}
	if r.closed {
		close(sub.ch)
		return sub
	}
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[uint64]*Subscription)
	}
	r.rooms[room][sub.id] = sub
	return sub
}

func (r *Router) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.once.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if subs, ok := r.rooms[sub.room]; ok {
			if _, live := subs[sub.id]; live {
				delete(subs, sub.id)
				close(sub.ch)
			}
			if len(subs) == 0 {
				delete(r.rooms, sub.room)
			}
		}
	})
}

// Publish encodes payload as JSON and delivers it to every subscriber of room.
func (r *Router) Publish(ctx context.Context, room, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.PublishJSON(ctx, room, event, raw)
}

// PublishJSON delivers an already encoded payload.
func (r *Router) PublishJSON(_ context.Context, room, event string, raw json.RawMessage) error {
	r.Deliver(Event{Room: room, Type: event, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// Deliver hands evt to the current subscribers of evt.Room and reports how
// many received it.
func (r *Router) Deliver(evt Event) int {
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	metrics.IncEventPublished(evt.Type)
	delivered := 0
	for _, sub := range r.rooms[evt.Room] {
		select {
		case sub.ch <- evt:
			delivered++
		default:
			metrics.IncEventDropped("buffer_full")
			r.logger.Warn().Str("room", evt.Room).Str("event", evt.Type).Msg("subscriber buffer full, event dropped")
		}
	}
	return delivered
}

// Rooms lists rooms with at least one subscriber.
func (r *Router) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]string, 0, len(r.rooms))
	for room := range r.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

func (r *Router) SubscriberCount(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// Close ends every subscription. Later subscriptions are returned closed.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for room, subs := range r.rooms {
		for _, sub := range subs {
			close(sub.ch)
		}
		delete(r.rooms, room)
	}
}
