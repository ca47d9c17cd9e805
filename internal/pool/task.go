package pool

import (
	"container/list"
	"time"

	"github.com/google/uuid"
)

// taskResult is what an acquireTask's completion sink receives.
type taskResult struct {
	conn *Connection
	err  error
}

// acquireTask is one queued waiter (spec.md §3's AcquireTask). All of its
// fields except sink are only ever read or written while FixedPool.mu is
// held — that mutex is the "dispatcher" this task's bookkeeping is
// serialized against.
type acquireTask struct {
	ID uuid.UUID

	// sink is the completion handle: buffered so a send never blocks
	// the dispatcher-adjacent goroutine that completes the task, even
	// if the original caller already walked away (see cancelTask).
	sink chan taskResult

	// acquired is the acquired-flag from spec.md §3: monotonic, set at
	// most once, and only ever set while raising acquiredCount by
	// exactly one in the same critical section.
	acquired bool

	// delivered marks that completeTask already sent (or is about to
	// send) a result for this task; guards against double-delivery
	// racing a concurrent cancellation.
	delivered bool

	// cancelled marks that the caller gave up waiting (its ctx was
	// done) before a result was delivered. A connection produced after
	// this point has no consumer and is released back to the pool
	// instead of being sent into the buffered-but-unread sink.
	cancelled bool

	enqueuedAt time.Time
	deadline   time.Time

	// element is this task's node in FixedPool.queue, or nil once the
	// task has been dequeued (dispatched, cancelled, or drained).
	element *list.Element

	// timer is the per-task acquire-timeout timer, or nil when no
	// timeout is configured or once it has fired/been stopped.
	timer *time.Timer
}

func newAcquireTask(timeout time.Duration) *acquireTask {
	now := time.Now()
	t := &acquireTask{
		ID:         uuid.New(),
		sink:       make(chan taskResult, 1),
		enqueuedAt: now,
	}
	if timeout >= 0 {
		t.deadline = now.Add(timeout)
	}
	return t
}

// expired reports whether now is at or past the task's deadline, using
// signed-difference arithmetic so it stays correct across monotonic clock
// wrap (spec.md §4.4.5).
func (t *acquireTask) expired(now time.Time) bool {
	return now.Sub(t.deadline) >= 0
}
