package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/sodav-monitor/sodav/pkg/observability"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Broker carries encoded events between replicas.
type Broker interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context, ready chan<- struct{}, handle func([]byte)) error
}

// Bus delivers events to in-process subscribers and, with a Broker, to the
// other replicas. Slow subscribers lose events rather than block publishers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID uint64
	closed bool

	buffer  int
	broker  Broker
	origin  string
	metrics *observability.Metrics
	logger  *observability.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithBroker fans events out across replicas.
func WithBroker(b Broker) Option { return func(bus *Bus) { bus.broker = b } }

// WithBuffer sets the per-subscriber queue length.
func WithBuffer(n int) Option {
	return func(bus *Bus) {
		if n > 0 {
			bus.buffer = n
		}
	}
}

// WithMetrics counts published events.
func WithMetrics(m *observability.Metrics) Option { return func(bus *Bus) { bus.metrics = m } }

// WithLogger sets the logger for dropped and undecodable events.
func WithLogger(l *observability.Logger) Option { return func(bus *Bus) { bus.logger = l } }

// NewBus creates a bus. Without a broker it is local only.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[uint64]chan Event),
		buffer: DefaultBuffer,
		origin: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = observability.NewLogger(observability.InfoLevel, io.Discard)
	}
	return b
}

// Publish delivers e locally and forwards it to the broker. A broker failure
// is returned after local delivery has happened.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	e.Origin = b.origin
	b.dispatch(e)
	if b.metrics != nil {
		b.metrics.ObserveEvent(string(e.Type))
	}
	if b.broker == nil {
		return nil
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", e.Type, err)
	}
	if err := b.broker.Publish(ctx, payload); err != nil {
		return fmt.Errorf("failed to relay event %s: %w", e.Type, err)
	}
	return nil
}

// Subscribe returns a channel of events and a func that ends the
// subscription and closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Relay delivers events published by other replicas until ctx is done. It
// returns immediately with a nil error when the bus has no broker.
func (b *Bus) Relay(ctx context.Context, ready chan<- struct{}) error {
	if b.broker == nil {
		if ready != nil {
			close(ready)
		}
		<-ctx.Done()
		return nil
	}
	return b.broker.Subscribe(ctx, ready, func(payload []byte) {
		var e Event
		if err := json.Unmarshal(payload, &e); err != nil {
			b.logger.WithError(err).Warn("Dropping undecodable relayed event")
			return
		}
		if e.Origin == b.origin {
			return
		}
		b.dispatch(e)
	})
}

// Close ends every subscription. Later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Subscribers reports the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) dispatch(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.logger.WithFields(map[string]interface{}{
				"subscriber": id,
				"event":      e.Type,
			}).Warn("Subscriber queue full, dropping event")
		}
	}
}
