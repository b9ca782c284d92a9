package client

import (
	"testing"
	"time"

	assert "github.com/stretchr/testify/require"

	"github.com/damianoneill/respwire/resp"
)

func TestWaiterDeliverThenCancelIsNoOp(t *testing.T) {
	w := newWaiter()
	w.deliver(resp.NewSimpleString("OK"))
	w.cancel(errTimeout) // must not panic or block on a second send

	frame, err := w.wait()
	assert.NoError(t, err)
	assert.True(t, frame.Equal(resp.NewSimpleString("OK")))
}

func TestWaiterCancelThenDeliverIsNoOp(t *testing.T) {
	w := newWaiter()
	w.cancel(errTimeout)
	w.deliver(resp.NewSimpleString("OK")) // must not panic or block

	_, err := w.wait()
	assert.ErrorIs(t, err, errTimeout)
}

func TestWaiterArmTimerFiresTimeout(t *testing.T) {
	w := newWaiter()
	w.armTimer(10 * time.Millisecond)

	_, err := w.wait()
	assert.ErrorIs(t, err, errTimeout)
}

func TestWaiterArmTimerStoppedByDeliver(t *testing.T) {
	w := newWaiter()
	w.armTimer(50 * time.Millisecond)
	w.deliver(resp.NewInteger(42))

	frame, err := w.wait()
	assert.NoError(t, err)
	assert.True(t, frame.Equal(resp.NewInteger(42)))

	time.Sleep(75 * time.Millisecond) // timer must not fire after delivery
}

func TestPendingQueueFIFOOrder(t *testing.T) {
	q := newPendingQueue(1024)
	w1, w2, w3 := newWaiter(), newWaiter(), newWaiter()
	q.push(w1)
	q.push(w2)
	q.push(w3)

	assert.Same(t, w1, q.next())
	assert.Same(t, w2, q.next())
	assert.Same(t, w3, q.next())
	assert.Nil(t, q.next())
}

func TestPendingQueuePopBackUndoesFailedWrite(t *testing.T) {
	q := newPendingQueue(1024)
	w1, w2 := newWaiter(), newWaiter()
	q.push(w1)
	q.push(w2)
	q.popBack()

	assert.Same(t, w1, q.next())
	assert.Nil(t, q.next())
}

func TestPendingQueueCancelledWaiterSilentlyConsumesItsOwnFrameWithoutMisaligning(t *testing.T) {
	q := newPendingQueue(1024)
	w1, w2, w3 := newWaiter(), newWaiter(), newWaiter()
	q.push(w1)
	q.push(w2)
	q.push(w3)

	w2.cancel(errTimeout) // mid-queue timeout, before its reply arrives

	// One incoming frame per queue position, in order: the middle one
	// still consumes w2's slot (and is silently discarded by deliver's
	// no-op), it is never handed to w3.
	assert.Same(t, w1, q.next())
	assert.Same(t, w2, q.next())
	assert.Same(t, w3, q.next())
	assert.Nil(t, q.next())

	w2.deliver(resp.NewSimpleString("late reply")) // no-op: already cancelled
	_, err := w2.wait()
	assert.ErrorIs(t, err, errTimeout)

	w3.deliver(resp.NewSimpleString("for w3"))
	frame, err := w3.wait()
	assert.NoError(t, err)
	assert.True(t, frame.Equal(resp.NewSimpleString("for w3")))
}

func TestPendingQueueRejectAllCancelsLiveAndSkipsCancelled(t *testing.T) {
	q := newPendingQueue(1024)
	w1, w2 := newWaiter(), newWaiter()
	q.push(w1)
	q.push(w2)
	w1.cancel(errTimeout)

	q.rejectAll(errConnectionClosed)

	_, err1 := w1.wait()
	assert.ErrorIs(t, err1, errTimeout) // first cancel wins

	_, err2 := w2.wait()
	assert.ErrorIs(t, err2, errConnectionClosed)

	assert.Equal(t, 0, q.len())
	assert.Nil(t, q.next())
}

func TestPendingQueueCompactsPastThreshold(t *testing.T) {
	q := newPendingQueue(4)
	waiters := make([]*waiter, 10)
	for i := range waiters {
		waiters[i] = newWaiter()
		q.push(waiters[i])
	}

	for i, w := range waiters {
		got := q.next()
		assert.Same(t, w, got, "waiter %d out of order across a compaction boundary", i)
	}
	assert.Equal(t, 0, q.len())
	assert.Nil(t, q.next())
}
