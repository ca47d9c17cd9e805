// hub.go - broadcast hub for pool lifecycle events, consumed by the
// /events websocket endpoint.
package diagnostics

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventType classifies a broadcast Event.
type EventType string

const (
	EventCreated  EventType = "created"
	EventAcquired EventType = "acquired"
	EventReleased EventType = "released"
)

// Event is a single pool lifecycle notification pushed to subscribers.
type Event struct {
	Type      EventType `json:"type"`
	Endpoint  string    `json:"endpoint"`
	ConnID    string    `json:"conn_id"`
	Timestamp time.Time `json:"timestamp"`
}

// HubStats tracks the hub's own operational counters, exposed for
// /healthz diagnostics.
type HubStats struct {
	CurrentConnections int64
	TotalConnections   int64
	DroppedConnections int64
	MessagesSent       int64
}

// Config tunes Hub buffering.
type Config struct {
	// MessageBufferSize is the broadcast channel's buffer depth and the
	// per-client send buffer depth. Zero defaults to 256.
	MessageBufferSize int
}

// client is a single websocket subscriber.
type client struct {
	conn *websocket.Conn
	send chan Event
}

// Hub fans pool lifecycle Events out to every connected websocket
// client. One Hub serves every endpoint; clients do not filter by
// endpoint today (spec.md's diagnostics surface is process-wide).
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool

	register   chan *client
	unregister chan *client
	broadcast  chan Event

	cfg   Config
	stats HubStats

	cancel context.CancelFunc
}

// NewHub builds a Hub. Call Start to begin its event loop.
func NewHub(cfg Config) *Hub {
	if cfg.MessageBufferSize == 0 {
		cfg.MessageBufferSize = 256
	}
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client, 16),
		unregister: make(chan *client, 16),
		broadcast:  make(chan Event, cfg.MessageBufferSize),
		cfg:        cfg,
	}
}

// Start runs the hub's event loop until ctx is done.
func (h *Hub) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	go h.run(ctx)
}

// Stop ends the event loop started by Start.
func (h *Hub) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
}

// Publish enqueues an Event for delivery to every connected client. It
// never blocks the caller on a full buffer; excess events are dropped.
// Dropped events are not counted in HubStats.
func (h *Hub) Publish(e Event) {
	select {
	case h.broadcast <- e:
	default:
	}
}

// Stats returns a point-in-time snapshot of the hub's counters.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[*client]bool)
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.stats.CurrentConnections++
			h.stats.TotalConnections++
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.stats.CurrentConnections--
			}
			h.mu.Unlock()

		case e := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- e:
					h.stats.MessagesSent++
				default:
					delete(h.clients, c)
					close(c.send)
					h.stats.CurrentConnections--
					h.stats.DroppedConnections++
				}
			}
			h.mu.Unlock()
		}
	}
}
