package queue

import (
	"github.com/joeycumines/gokernel/kernel"
	"github.com/joeycumines/gokernel/kernerr"
)

// Receive pops the head item, blocking the caller (which must be the
// currently running task h) up to ticksToWait if the queue is empty.
func (q *Queue[T]) Receive(h kernel.Handle, ticksToWait uint64) (T, error) {
	var zero T
	for {
		q.k.Lock()
		if q.n > 0 {
			item := q.readLocked(true)
			_, higher := q.k.RemoveFromEventList(q.waitingToSend)
			q.k.Unlock()
			if higher {
				q.k.Yield(h)
			}
			return item, nil
		}
		if ticksToWait == 0 {
			q.k.Unlock()
			return zero, kernerr.ErrTimeout
		}
		q.beginBlockLocked(h, q.waitingToReceive, ticksToWait)

		if err := q.k.Block(h); err != nil {
			return zero, err
		}
	}
}

// Peek returns the head item without removing it. It wakes no sender.
func (q *Queue[T]) Peek(h kernel.Handle, ticksToWait uint64) (T, error) {
	var zero T
	for {
		q.k.Lock()
		if q.n > 0 {
			item := q.readLocked(false)
			q.k.Unlock()
			return item, nil
		}
		if ticksToWait == 0 {
			q.k.Unlock()
			return zero, kernerr.ErrTimeout
		}
		q.beginBlockLocked(h, q.waitingToReceive, ticksToWait)

		if err := q.k.Block(h); err != nil {
			return zero, err
		}
	}
}

// ReceiveFromISR is the non-blocking, ISR-safe variant.
func (q *Queue[T]) ReceiveFromISR() (item T, higherPriorityWoken bool, err error) {
	mask := q.k.LockFromISR()
	defer q.k.UnlockFromISR(mask)

	if q.n == 0 {
		var zero T
		return zero, false, kernerr.ErrWouldBlock
	}
	item = q.readLocked(true)
	if q.state == unlocked {
		_, higher := q.k.RemoveFromEventList(q.waitingToSend)
		return item, higher, nil
	}
	q.rxLock = q.capLock(q.rxLock + 1)
	return item, false, nil
}

func (q *Queue[T]) readLocked(advance bool) T {
	item := q.buf[q.head]
	if advance {
		q.head = (q.head + 1) % q.cap()
		q.n--
	}
	return item
}

// Reset discards all queued items. Only legal when no task is blocked on
// the queue (spec.md §7 NotPermitted: "reseting a buffer with waiters").
func (q *Queue[T]) Reset() error {
	q.k.Lock()
	defer q.k.Unlock()
	if !q.waitingToSend.Empty() || !q.waitingToReceive.Empty() {
		return kernerr.ErrNotPermitted
	}
	q.head, q.tail, q.n = 0, 0, 0
	return nil
}
