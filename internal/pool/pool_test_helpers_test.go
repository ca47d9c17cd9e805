package pool

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// fakeConn is a minimal net.Conn double: no real I/O, just a closeable
// handle, enough for exercising FixedPool's bookkeeping without a live
// socket.
type fakeConn struct {
	mu     sync.Mutex
	closed bool
}

func (f *fakeConn) Read(b []byte) (int, error)  { return 0, net.ErrClosed }
func (f *fakeConn) Write(b []byte) (int, error) { return len(b), nil }
func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
func (f *fakeConn) LocalAddr() net.Addr                { return fakeAddr{} }
func (f *fakeConn) RemoteAddr() net.Addr               { return fakeAddr{} }
func (f *fakeConn) SetDeadline(t time.Time) error      { return nil }
func (f *fakeConn) SetReadDeadline(t time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(t time.Time) error { return nil }
func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeAddr struct{}

func (fakeAddr) Network() string { return "fake" }
func (fakeAddr) String() string  { return "fake:0" }

// fakeConnector produces Connections wrapping fakeConn, optionally
// failing or delaying, and counts how many times it was invoked.
type fakeConnector struct {
	mu       sync.Mutex
	calls    int64
	failNext int32 // number of upcoming calls to fail
	delay    time.Duration
	failWith error
}

func (f *fakeConnector) Connect(ctx context.Context, endpoint Endpoint) (*Connection, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if atomic.LoadInt32(&f.failNext) > 0 {
		atomic.AddInt32(&f.failNext, -1)
		err := f.failWith
		if err == nil {
			err = errConnectFailed
		}
		return nil, err
	}
	return newConnection(endpoint, &fakeConn{}), nil
}

func (f *fakeConnector) callCount() int64 {
	return atomic.LoadInt64(&f.calls)
}

var errConnectFailed = &fakeConnectErr{"connect failed"}

type fakeConnectErr struct{ msg string }

func (e *fakeConnectErr) Error() string { return e.msg }

// alwaysHealthy/neverHealthy are trivial HealthChecker test doubles.
type alwaysHealthy struct{}

func (alwaysHealthy) IsHealthy(*Connection) bool { return true }

type neverHealthy struct{}

func (neverHealthy) IsHealthy(*Connection) bool { return false }

func testEndpoint() Endpoint {
	return NewEndpoint("127.0.0.1", 9999)
}
