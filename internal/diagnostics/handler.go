package diagnostics

import (
	"time"

	"github.com/id-pointer/id-pointer-pool-go/internal/pool"
)

// BroadcastHandler implements pool.Handler, publishing every lifecycle
// callback to a Hub as an Event. It wraps an optional next handler so
// it can be composed with the metrics package's latency recorders.
type BroadcastHandler struct {
	hub  *Hub
	next pool.Handler
}

// NewBroadcastHandler wraps next (which may be pool.NoopHandler{}).
func NewBroadcastHandler(hub *Hub, next pool.Handler) *BroadcastHandler {
	if next == nil {
		next = pool.NoopHandler{}
	}
	return &BroadcastHandler{hub: hub, next: next}
}

func (b *BroadcastHandler) publish(t EventType, c *pool.Connection) {
	b.hub.Publish(Event{
		Type:      t,
		Endpoint:  c.Endpoint.String(),
		ConnID:    c.ID.String(),
		Timestamp: time.Now(),
	})
}

func (b *BroadcastHandler) OnCreated(c *pool.Connection) {
	b.publish(EventCreated, c)
	b.next.OnCreated(c)
}

func (b *BroadcastHandler) OnAcquired(c *pool.Connection) {
	b.publish(EventAcquired, c)
	b.next.OnAcquired(c)
}

func (b *BroadcastHandler) OnReleased(c *pool.Connection) {
	b.publish(EventReleased, c)
	b.next.OnReleased(c)
}
