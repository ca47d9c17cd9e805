// Package pool implements a bounded, asynchronous connection pool: a
// capped population of long-lived transport connections to a remote
// endpoint, arbitrated among concurrent callers with deterministic
// ordering, timeout semantics, and clean shutdown.
package pool

import (
	"container/list"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FixedPool is the arbiter (C4): it enforces Capacity, queues waiters,
// runs the timeout subsystem, and dispatches release events.
//
// Every mutation of pool state is serialized behind mu. mu *is* the
// "dispatcher" spec.md §4.4.1 describes: a single logical execution
// context that gives every state transition a total order. Blocking I/O
// (Connector.Connect, a released connection's health check) always runs
// outside the critical section — mu is held only long enough to update
// bookkeeping and collect the set of waiters a given event just unblocked.
type FixedPool struct {
	endpoint  Endpoint
	cfg       Config
	connector Connector
	checker   HealthChecker
	handler   Handler
	log       *zap.SugaredLogger

	mu            sync.Mutex
	closed        bool
	acquiredCount int
	pendingCount  int
	queue         *list.List // of *acquireTask
	idle          *reservoir
	lastActive    time.Time

	stats Stats
}

// Option customizes a FixedPool at construction.
type Option func(*FixedPool)

// WithHandler attaches lifecycle callbacks.
func WithHandler(h Handler) Option {
	return func(p *FixedPool) { p.handler = h }
}

// WithHealthChecker overrides the default OpenHealthChecker.
func WithHealthChecker(h HealthChecker) Option {
	return func(p *FixedPool) { p.checker = h }
}

// WithLogger attaches a structured logger. Without one, FixedPool logs
// nothing (a *zap.SugaredLogger backed by zap.NewNop() is used).
func WithLogger(log *zap.SugaredLogger) Option {
	return func(p *FixedPool) { p.log = log }
}

// NewFixedPool constructs a pool for endpoint using connector to create
// new connections. cfg is validated per spec.md §6; an invalid
// configuration returns ErrInvalidConfig and a nil pool.
func NewFixedPool(endpoint Endpoint, connector Connector, cfg Config, opts ...Option) (*FixedPool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if connector == nil {
		return nil, ErrInvalidConfig
	}

	p := &FixedPool{
		endpoint:   endpoint,
		cfg:        cfg,
		connector:  connector,
		checker:    OpenHealthChecker{},
		handler:    NoopHandler{},
		log:        zap.NewNop().Sugar(),
		queue:      list.New(),
		idle:       newReservoir(cfg.SelectionOrder),
		lastActive: time.Now(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.stats.Capacity = cfg.Capacity
	p.stats.MaxPending = cfg.MaxPending
	return p, nil
}

// Endpoint returns the remote address this pool was built for.
func (p *FixedPool) Endpoint() Endpoint { return p.endpoint }

// AcquiredCount is the diagnostic accessor from spec.md §6. It may be
// slightly stale relative to a concurrent Acquire/Release.
func (p *FixedPool) AcquiredCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquiredCount
}

// PendingCount reports the current queued-waiter count.
func (p *FixedPool) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pendingCount
}

// LastActiveTime reports when this pool last served an Acquire or
// Release, used by PoolMap's sweeper to evict unused per-endpoint pools.
func (p *FixedPool) LastActiveTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastActive
}

// Stats returns a point-in-time snapshot of this pool's counters.
func (p *FixedPool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.AcquiredCount = p.acquiredCount
	s.PendingCount = p.pendingCount
	s.IdleCount = p.idle.len()
	return s
}

func (p *FixedPool) touchLastActiveLocked() {
	p.lastActive = time.Now()
}

// Acquire obtains a Connection, creating one if the pool is under
// capacity, recycling an idle one if available, or queueing the caller
// as a waiter. It suspends until one of: a connection is handed back, the
// pool closes, ctx is done, or (in TimeoutModeFail) the waiter's deadline
// elapses.
func (p *FixedPool) Acquire(ctx context.Context) (*Connection, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	if p.acquiredCount < p.cfg.Capacity {
		p.acquiredCount++
		p.stats.Acquisitions++
		p.touchLastActiveLocked()
		p.mu.Unlock()
		return p.obtainConnection(ctx)
	}

	if p.pendingCount >= p.cfg.MaxPending {
		p.mu.Unlock()
		return nil, ErrTooManyOutstanding
	}

	task := newAcquireTask(p.cfg.AcquireTimeout)
	task.element = p.queue.PushBack(task)
	p.pendingCount++
	if p.cfg.TimeoutMode != TimeoutModeNone {
		task.timer = time.AfterFunc(p.cfg.AcquireTimeout, func() {
			p.handleTaskTimeout(task)
		})
	}
	p.mu.Unlock()

	p.log.Debugw("acquire queued", "endpoint", p.endpoint.String(), "task", task.ID)

	select {
	case res := <-task.sink:
		return res.conn, res.err
	case <-ctx.Done():
		p.cancelTask(task)
		return nil, ctx.Err()
	}
}

// obtainConnection drives one connection acquisition for a slot that has
// already been reserved in acquiredCount (either by Acquire's direct path
// or by a dispatch-loop promotion). It runs with the dispatcher's mutex
// NOT held: reservoir.take() briefly re-acquires it, but the health check
// and Connector.Connect calls do not.
func (p *FixedPool) obtainConnection(ctx context.Context) (*Connection, error) {
	if c, ok := p.takeIdle(); ok {
		if p.checker.IsHealthy(c) {
			c.markAcquired()
			p.handler.OnAcquired(c)
			return c, nil
		}
		p.mu.Lock()
		p.stats.ValidationFailures++
		p.mu.Unlock()
		c.close()
		p.mu.Lock()
		p.stats.Closures++
		p.mu.Unlock()
	}

	conn, err := p.connector.Connect(ctx, p.endpoint)
	if err != nil {
		p.mu.Lock()
		p.stats.ConnectFailures++
		p.mu.Unlock()
		p.decrementAndDispatch()
		return nil, &ConnectError{Cause: err}
	}

	conn.origin = p
	p.mu.Lock()
	p.stats.Creations++
	p.mu.Unlock()
	p.handler.OnCreated(conn)
	p.handler.OnAcquired(conn)
	return conn, nil
}

func (p *FixedPool) takeIdle() (*Connection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle.take()
}

// Release returns a connection to the pool. It never blocks on the
// caller's I/O: the only work it does synchronously is the configured
// health check (cheap, per HealthChecker's contract) and this pool's own
// bookkeeping fan-out.
func (p *FixedPool) Release(c *Connection) error {
	if c.Origin() != p {
		return ErrWrongPool
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		c.close()
		return ErrPoolClosed
	}
	p.mu.Unlock()

	healthy := true
	if p.cfg.ReleaseHealthCheck {
		healthy = p.checker.IsHealthy(c)
	}

	if !healthy {
		c.close()
		p.mu.Lock()
		p.stats.ValidationFailures++
		p.stats.Closures++
		p.touchLastActiveLocked()
		p.mu.Unlock()
	} else {
		c.markIdle()
		// Fire OnReleased before c becomes visible in the reservoir, so a
		// concurrent Acquire cannot fire OnAcquired(c) ahead of it.
		p.handler.OnReleased(c)
		p.mu.Lock()
		p.idle.offer(c)
		p.stats.Releases++
		p.touchLastActiveLocked()
		p.mu.Unlock()
	}

	p.decrementAndDispatch()
	return nil
}

// decrementAndDispatch decrements acquiredCount, then runs the dispatch
// loop, then (outside the lock) fulfills every waiter the loop just
// promoted. Decrementing before dispatching makes the freed slot visible
// to waiters before any callback fires (spec.md §4.4.2).
func (p *FixedPool) decrementAndDispatch() {
	p.mu.Lock()
	p.acquiredCount--
	promoted := p.drainQueueLocked()
	p.mu.Unlock()

	for _, t := range promoted {
		go p.fulfillPromoted(t)
	}
}

// drainQueueLocked pops waiters off the head of the queue while capacity
// allows, raising each one's acquired-flag and incrementing acquiredCount
// atomically with its removal. Must be called with mu held; the returned
// tasks are fulfilled by the caller after releasing mu.
func (p *FixedPool) drainQueueLocked() []*acquireTask {
	var promoted []*acquireTask
	for p.acquiredCount < p.cfg.Capacity && p.queue.Len() > 0 {
		front := p.queue.Front()
		task := front.Value.(*acquireTask)
		p.queue.Remove(front)
		task.element = nil
		if task.timer != nil {
			task.timer.Stop()
			task.timer = nil
		}
		p.pendingCount--
		task.acquired = true
		p.acquiredCount++
		p.stats.Acquisitions++
		promoted = append(promoted, task)
	}
	return promoted
}

// fulfillPromoted drives connection acquisition for a task the dispatch
// loop (or a TimeoutModeNew timer) already promoted, and delivers the
// result to its sink — or, if the caller already cancelled, releases a
// successfully produced connection right back instead of leaking it.
func (p *FixedPool) fulfillPromoted(t *acquireTask) {
	conn, err := p.obtainConnection(context.Background())
	p.completeTask(t, conn, err)
}

// completeTask delivers a task's result, serialized against cancelTask so
// a cancellation that lands first causes a successfully produced
// connection to be released back instead of sitting unread in t.sink.
// The send itself happens inside the same critical section that sets
// delivered, so cancelTask can never observe delivered==true without the
// corresponding value already sitting in the (buffered) sink — closing
// the window a cancellation landing just after promotion would otherwise
// race.
func (p *FixedPool) completeTask(t *acquireTask, conn *Connection, err error) {
	p.mu.Lock()
	if t.cancelled {
		p.mu.Unlock()
		if conn != nil {
			p.Release(conn)
		}
		return
	}
	t.delivered = true
	select {
	case t.sink <- taskResult{conn: conn, err: err}:
	default:
		// Unreachable under normal use: sink is buffered 1 and a task
		// is only ever completed once (delivered guards re-entry).
	}
	p.mu.Unlock()
}

// cancelTask removes t from the pending queue if it is still sitting
// there untouched. Otherwise the task has already been promoted: if
// completeTask hasn't run yet, cancelTask marks it cancelled so the
// connection it eventually produces is released back instead of
// delivered to an abandoned sink; if completeTask already ran, its
// result is sitting unread in t.sink (delivered and the send are
// atomic under mu, so this is guaranteed to find it there), and
// cancelTask drains it and releases any connection itself — otherwise
// the slot obtainConnection reserved would never be freed.
func (p *FixedPool) cancelTask(t *acquireTask) {
	p.mu.Lock()
	if t.element != nil {
		p.queue.Remove(t.element)
		t.element = nil
		p.pendingCount--
		if t.timer != nil {
			t.timer.Stop()
			t.timer = nil
		}
		p.mu.Unlock()
		return
	}
	if t.delivered {
		p.mu.Unlock()
		res := <-t.sink
		if res.conn != nil {
			p.Release(res.conn)
		}
		return
	}
	t.cancelled = true
	p.mu.Unlock()
}

// handleTaskTimeout is the timeout subsystem (spec.md §4.4.5) for a
// single waiter. TimeoutModeNone never schedules this; TimeoutModeFail
// fails the waiter; TimeoutModeNew promotes it into an over-commit
// connect attempt.
func (p *FixedPool) handleTaskTimeout(t *acquireTask) {
	p.mu.Lock()
	if t.element == nil {
		// Already dispatched or cancelled; nothing to do.
		p.mu.Unlock()
		return
	}
	if !t.expired(time.Now()) {
		// Spurious early fire; reschedule for the remaining duration.
		remaining := t.deadline.Sub(time.Now())
		t.timer = time.AfterFunc(remaining, func() { p.handleTaskTimeout(t) })
		p.mu.Unlock()
		return
	}

	p.queue.Remove(t.element)
	t.element = nil
	t.timer = nil
	p.pendingCount--

	switch p.cfg.TimeoutMode {
	case TimeoutModeFail:
		p.stats.Timeouts++
		p.mu.Unlock()
		p.completeTask(t, nil, ErrAcquireTimeout)
		return
	case TimeoutModeNew:
		// spec.md §9's Open Question: the source unconditionally
		// raises the acquired-flag and dispatches a fresh connect
		// attempt without rechecking closed between timer fire and
		// dispatch. This implementation takes the documented MAY and
		// adds that recheck, so a timer racing a PoolMap sweep's
		// Close never over-commits a connection nobody can receive.
		if p.closed {
			p.stats.Timeouts++
			p.mu.Unlock()
			p.completeTask(t, nil, ErrPoolClosed)
			return
		}
		p.stats.Timeouts++
		t.acquired = true
		p.acquiredCount++
		p.stats.Acquisitions++
		p.mu.Unlock()
		go p.fulfillPromoted(t)
		return
	default:
		// TimeoutModeNone never schedules a timer; unreachable.
		p.mu.Unlock()
	}
}

// CloseAsync is the close protocol's primitive: it marks the pool closed,
// drains queued waiters with ErrPoolClosed, zeroes the live counters, and
// hands the idle reservoir's physical teardown off to a goroutine that is
// not the caller's — so a dispatcher-bound caller can never deadlock on
// its own sockets' Close. The returned channel closes once that teardown
// finishes.
func (p *FixedPool) CloseAsync() <-chan struct{} {
	done := make(chan struct{})

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		close(done)
		return done
	}
	p.closed = true

	var drained []*acquireTask
	for p.queue.Len() > 0 {
		front := p.queue.Front()
		t := front.Value.(*acquireTask)
		p.queue.Remove(front)
		t.element = nil
		if t.timer != nil {
			t.timer.Stop()
			t.timer = nil
		}
		drained = append(drained, t)
	}
	p.pendingCount = 0
	p.acquiredCount = 0
	idleConns := p.idle.takeAll()
	p.mu.Unlock()

	p.log.Infow("pool closing", "endpoint", p.endpoint.String(),
		"drained_waiters", len(drained), "idle_connections", len(idleConns))

	for _, t := range drained {
		p.completeTask(t, nil, ErrPoolClosed)
	}

	go func() {
		for _, c := range idleConns {
			c.close()
		}
		close(done)
	}()
	return done
}

// Close awaits CloseAsync. Repeated calls are a no-op after the first and
// always return nil.
func (p *FixedPool) Close() error {
	<-p.CloseAsync()
	return nil
}

// IsClosed reports whether Close/CloseAsync has run.
func (p *FixedPool) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
