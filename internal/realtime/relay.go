package realtime

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/observability"
)

const defaultSubscriberBuffer = 64

// Relay fans events out to in-process subscribers. Delivery is best-effort:
// a subscriber whose buffer is full misses the event.
type Relay struct {
	mu          sync.RWMutex
	subscribers map[uint64]chan Event
	nextID      uint64
	buffer      int
	closed      bool
	logger      zerolog.Logger
}

// NewRelay builds a relay whose subscribers buffer up to buffer events.
func NewRelay(buffer int, logger zerolog.Logger) *Relay {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Relay{
		subscribers: make(map[uint64]chan Event),
		buffer:      buffer,
		logger:      logger.With().Str("component", "live_relay").Logger(),
	}
}

// Subscribe registers a subscriber. The returned cancel func is idempotent and
// closes the channel.
func (r *Relay) Subscribe() (<-chan Event, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan Event, r.buffer)
	if r.closed {
		close(ch)
		return ch, func() {}
	}

	id := r.nextID
	r.nextID++
	r.subscribers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if existing, ok := r.subscribers[id]; ok {
				delete(r.subscribers, id)
				close(existing)
			}
		})
	}
	return ch, cancel
}

// Publish delivers event to every current subscriber without blocking.
func (r *Relay) Publish(event Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ch := range r.subscribers {
		select {
		case ch <- event:
		default:
			observability.RelayDropped().WithLabelValues(event.Name).Inc()
			r.logger.Debug().Str("event", event.Name).Msg("dropping live event for slow subscriber")
		}
	}
}

// Subscribers reports how many subscribers are attached.
func (r *Relay) Subscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

// Close detaches every subscriber.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, ch := range r.subscribers {
		delete(r.subscribers, id)
		close(ch)
	}
}
