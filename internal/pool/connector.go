package pool

import (
	"context"
	"net"
	"time"
)

// Connector establishes one new transport connection to a given remote
// endpoint. Implementations are stateless and do not retry. FixedPool
// sets no connect deadline of its own; TCPConnector bounds each dial
// only by its optional dial timeout and the ctx it is given. All I/O happens
// outside the pool's dispatcher; only the completion is ever observed
// while the dispatcher's mutex is held.
//
// This is the pool's sole extension point, injected at construction
// rather than modeled as a base type to subclass — there is no class
// hierarchy here, just a function value.
type Connector interface {
	Connect(ctx context.Context, endpoint Endpoint) (*Connection, error)
}

// ConnectorFunc adapts a plain function to the Connector interface.
type ConnectorFunc func(ctx context.Context, endpoint Endpoint) (*Connection, error)

// Connect implements Connector.
func (f ConnectorFunc) Connect(ctx context.Context, endpoint Endpoint) (*Connection, error) {
	return f(ctx, endpoint)
}

// TCPConnector is the default Connector: it dials a plain TCP socket to
// the endpoint. The identifier-resolution SDK's wire protocol, codec, and
// login flow run on top of the returned Connection and are out of this
// module's scope (spec.md §1).
type TCPConnector struct {
	Dialer *net.Dialer
}

// NewTCPConnector builds a TCPConnector with a dial timeout. A zero
// timeout means "use net.Dialer's own defaults" (no explicit deadline).
func NewTCPConnector(dialTimeout time.Duration) *TCPConnector {
	return &TCPConnector{Dialer: &net.Dialer{Timeout: dialTimeout}}
}

// Connect dials endpoint over TCP, honoring ctx for cancellation/deadline.
func (c *TCPConnector) Connect(ctx context.Context, endpoint Endpoint) (*Connection, error) {
	dialer := c.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	raw, err := dialer.DialContext(ctx, "tcp", endpoint.String())
	if err != nil {
		return nil, err
	}
	return newConnection(endpoint, raw), nil
}
