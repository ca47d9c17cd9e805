package pool

import (
	"net"
	"strconv"
)

// Endpoint is an immutable remote address: a resolved host and port. It is
// a plain comparable struct so it can be used directly as a map key in
// PoolMap — Go's native struct equality gives us the bitwise comparison
// spec.md asks for without a custom Equals/HashCode pair.
type Endpoint struct {
	Host string
	Port int
}

// NewEndpoint builds an Endpoint from a host and port.
func NewEndpoint(host string, port int) Endpoint {
	return Endpoint{Host: host, Port: port}
}

// String renders the endpoint as host:port, suitable for net.Dial and for
// log/metric labels.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}
