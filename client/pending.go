package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/damianoneill/respwire/resp"
)

// waiter is a pending reply slot (spec.md §3 "Pending waiter"): a sink
// for one frame, a sink for one error, an optional deadline timer, and a
// cancelled flag. It is created by send, owned by the connection's
// pendingQueue, and destroyed when the head frame is delivered, the
// timer fires, or the connection tears down.
type waiter struct {
	frames chan resp.Frame
	errs   chan error

	timer     *time.Timer
	cancelled atomic.Bool
}

func newWaiter() *waiter {
	return &waiter{
		frames: make(chan resp.Frame, 1),
		errs:   make(chan error, 1),
	}
}

// armTimer starts a deadline timer that cancels the waiter with errTimeout
// if it fires before the waiter is otherwise resolved.
func (w *waiter) armTimer(d time.Duration) {
	if d <= 0 {
		return
	}
	w.timer = time.AfterFunc(d, func() {
		w.cancel(errTimeout)
	})
}

// deliver resolves the waiter with a successful frame. It is a no-op if
// the waiter was already cancelled by its deadline timer (spec.md §4.4
// "Timeouts": "the slot is consumed silently when its reply arrives").
func (w *waiter) deliver(f resp.Frame) {
	if w.cancelled.CompareAndSwap(false, true) {
		if w.timer != nil {
			w.timer.Stop()
		}
		w.frames <- f
	}
}

// cancel resolves the waiter with a failure: locally on usage error,
// from the deadline timer on timeout, or from teardown on
// disconnect/destroy/transport failure. Only the first caller wins.
func (w *waiter) cancel(err error) {
	if w.cancelled.CompareAndSwap(false, true) {
		if w.timer != nil {
			w.timer.Stop()
		}
		w.errs <- err
	}
}

// wait blocks for the waiter's outcome.
func (w *waiter) wait() (resp.Frame, error) {
	select {
	case f := <-w.frames:
		return f, nil
	case err := <-w.errs:
		return resp.Frame{}, err
	}
}

// waitCtx blocks for the waiter's outcome or ctx cancellation, whichever
// comes first. A ctx cancellation cancels the waiter so a later delivery
// attempt becomes a no-op rather than leaking on w.frames.
func (w *waiter) waitCtx(ctx context.Context) (resp.Frame, error) {
	select {
	case f := <-w.frames:
		return f, nil
	case err := <-w.errs:
		return resp.Frame{}, err
	case <-ctx.Done():
		w.cancel(ctx.Err())
		return resp.Frame{}, ctx.Err()
	}
}

// pendingQueue is the FIFO of waiters awaiting a frame (spec.md §3, §4.4
// "Queue compaction"). A cancelled waiter is left in place until the
// head index reaches it, so later waiters never shift position: reply
// alignment survives a mid-stream timeout.
//
// Grounded on netconf/client/message.go's responseq/pushRespChan/
// popRespChan, extended with per-waiter cancellation (a cancelled waiter
// still consumes its own reply slot; see next) and the head-index
// compaction threshold spec.md §4.4 calls for (NETCONF RPCs have no
// independent per-request timeout, so the teacher's queue never needed
// either).
type pendingQueue struct {
	mu                  sync.Mutex
	items               []*waiter
	head                int
	compactionThreshold int
}

func newPendingQueue(compactionThreshold int) *pendingQueue {
	if compactionThreshold <= 0 {
		compactionThreshold = 1024
	}
	return &pendingQueue{compactionThreshold: compactionThreshold}
}

// push enqueues a waiter. Callers (connection.go) are responsible for
// calling push and writing the corresponding command bytes to the
// transport within the same critical section, so that enqueue order
// never disagrees with wire order (spec.md §4.4 "Pipelining and ordering
// guarantee").
func (q *pendingQueue) push(w *waiter) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, w)
}

// popBack removes the waiter most recently pushed, undoing a push whose
// corresponding transport write failed (spec.md §4.4 "execute"/"Add the
// response channel to the response queue, but take it off if the
// request was not submitted successfully").
func (q *pendingQueue) popBack() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) > 0 {
		q.items = q.items[:len(q.items)-1]
	}
}

// next pops and returns the waiter at the head of the queue, or nil if
// the queue is empty (the incoming frame is then unsolicited). Every
// frame the server sends corresponds 1:1, in order, to a request the
// connection wrote, whether or not that request's waiter has since been
// cancelled by its deadline timer — so next always advances exactly one
// position per call. deliver on the returned waiter is a silent no-op if
// it was already cancelled, which is what "the slot is consumed silently
// when its reply arrives" (spec.md §4.4 "Timeouts") means in practice:
// the frame is discarded, not handed to the following request.
func (q *pendingQueue) next() *waiter {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.items) {
		q.compactLocked()
		return nil
	}
	w := q.items[q.head]
	q.head++
	q.compactLocked()
	return w
}

func (q *pendingQueue) compactLocked() {
	if q.head >= q.compactionThreshold {
		remaining := len(q.items) - q.head
		items := make([]*waiter, remaining)
		copy(items, q.items[q.head:])
		q.items = items
		q.head = 0
	}
}

// rejectAll cancels every waiter still in the queue (live or already
// cancelled; cancel is idempotent) and empties it. Used on entry to
// Disconnected or Error (spec.md §4.5).
func (q *pendingQueue) rejectAll(err error) {
	q.mu.Lock()
	pending := make([]*waiter, 0, len(q.items)-q.head)
	for i := q.head; i < len(q.items); i++ {
		pending = append(pending, q.items[i])
	}
	q.items = nil
	q.head = 0
	q.mu.Unlock()

	for _, w := range pending {
		w.cancel(err)
	}
}

// len reports the number of waiters still awaiting a reply (live or
// cancelled-but-not-yet-drained).
func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
