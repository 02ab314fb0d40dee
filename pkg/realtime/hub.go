package realtime

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/sodav-monitor/sodav/pkg/events"
	"github.com/sodav-monitor/sodav/pkg/observability"
)

// Hub relays bus events to connected websocket clients. Clients in a
// channel room only receive events for that channel and catalogue-wide
// events.
type Hub struct {
	bus        *events.Bus
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	metrics    *observability.Metrics
	logger     *observability.Logger
}

// NewHub creates a hub consuming from bus.
func NewHub(bus *events.Bus, metrics *observability.Metrics, logger *observability.Logger) *Hub {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, io.Discard)
	}
	return &Hub{
		bus:        bus,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		metrics:    metrics,
		logger:     logger.WithField("component", "realtime-hub"),
	}
}

// Run serves clients until ctx is done or the bus closes, then disconnects
// every client.
func (h *Hub) Run(ctx context.Context) error {
	sub, cancel := h.bus.Subscribe()
	defer cancel()
	defer h.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.ClientConnected()
			}
			h.logger.WithFields(map[string]interface{}{
				"user_id":       c.userID,
				"total_clients": total,
			}).Debug("Realtime client connected")

		case c := <-h.unregister:
			h.remove(c)

		case e, ok := <-sub:
			if !ok {
				return nil
			}
			h.broadcast(e)
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) join(ctx context.Context, c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) broadcast(e events.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to encode event for clients")
		return
	}

	h.mu.RLock()
	var slow []*Client
	for c := range h.clients {
		if !c.wants(e) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.WithField("user_id", c.userID).Warn("Dropping slow realtime client")
		h.remove(c)
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	if ok && h.metrics != nil {
		h.metrics.ClientDisconnected()
	}
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		closed := len(h.clients)
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
			if h.metrics != nil {
				h.metrics.ClientDisconnected()
			}
		}
		h.mu.Unlock()
		h.logger.WithField("clients_closed", closed).Info("Realtime hub stopped")
	})
}
