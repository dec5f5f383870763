// Package queue implements the fixed-capacity copy-semantic ring that
// doubles as counting semaphore, binary semaphore, and (priority
// inheriting) mutex, per spec.md §4.4.
//
// A Queue[T] is generic over its item type instead of the original's
// void*+item_size byte copy, which is the idiomatic Go rendering of
// "items are memcpy'd in and out, never referenced": a Go value copy
// through a generic API gives the same never-aliased-to-the-sender
// guarantee with type safety the original's raw buffer cannot offer.
// Semaphores are Queue[struct{}] (item_size==0 in the original); a mutex
// additionally tracks its holder and recursion count (see mutex.go).
package queue

import (
	"github.com/joeycumines/gokernel/kernerr"
	"github.com/joeycumines/gokernel/kernel"
	"github.com/joeycumines/gokernel/kernlog"
	"github.com/joeycumines/gokernel/list"
)

// lockState mirrors the three-mode locking discipline in spec.md §4.4:
// open (unlocked, ISR wakes tasks directly) vs locked (ISR deltas only
// counted, replayed on unlock_queue).
type lockState int

const (
	unlocked lockState = iota
	locked
)

// Position selects where send writes relative to the ring.
type Position int

const (
	Back Position = iota
	Front
	Overwrite
)

// SetNotifier is implemented by a queue set (set.go); registering one via
// AttachToSet causes every successful send to also notify the set.
type SetNotifier interface {
	notifyMember(member any) (higherPriorityWoken bool)
}

// Queue is a fixed-capacity ring of T, guarded by the owning Kernel's
// single critical section.
type Queue[T any] struct {
	k    *kernel.Kernel
	log  *kernlog.Logger
	name string

	buf  []T
	head int // read_from
	tail int // write_to
	n    int // messages_waiting

	state  lockState
	txLock int // sends deferred while locked; replayed against waitingToReceive
	rxLock int // receives deferred while locked; replayed against waitingToSend

	waitingToSend    *list.List[*kernel.TCB]
	waitingToReceive *list.List[*kernel.TCB]

	setNotifier SetNotifier
	setMember   any

	taskCount func() int // caller-supplied cap for lock counters
}

// New creates a Queue with the given capacity (must be >= 1). taskCount
// reports the current number of tasks in the system, used to cap
// tx_lock/rx_lock per spec.md §4.4 ("Lock counts are capped at the number
// of tasks in the system"); pass nil to leave the counters unbounded.
func New[T any](k *kernel.Kernel, log *kernlog.Logger, name string, capacity int, taskCount func() int) *Queue[T] {
	kernerr.Assert(capacity >= 1, "queue: capacity must be >= 1", "name=%s", name)
	return &Queue[T]{
		k:                k,
		log:              log,
		name:             name,
		buf:              make([]T, capacity),
		waitingToSend:    kernel.NewWaitList(),
		waitingToReceive: kernel.NewWaitList(),
		taskCount:        taskCount,
	}
}

// Name returns the queue's diagnostic name.
func (q *Queue[T]) Name() string { return q.name }

func (q *Queue[T]) cap() int { return len(q.buf) }

func (q *Queue[T]) capLock(n int) int {
	if q.taskCount == nil {
		return n
	}
	if max := q.taskCount(); n > max {
		return max
	}
	return n
}

// MessagesWaiting returns the number of items currently queued.
func (q *Queue[T]) MessagesWaiting() int {
	q.k.Lock()
	defer q.k.Unlock()
	return q.n
}

// SpacesAvailable returns the number of free slots.
func (q *Queue[T]) SpacesAvailable() int {
	q.k.Lock()
	defer q.k.Unlock()
	return q.cap() - q.n
}

// LockCounters reports the queue's current tx_lock/rx_lock deferred-wake
// counts, for package diag's snapshot (spec.md §4.4's locking discipline).
// Both are always zero while the queue is in its normal, unlocked state.
func (q *Queue[T]) LockCounters() (txLock, rxLock int) {
	q.k.Lock()
	defer q.k.Unlock()
	return q.txLock, q.rxLock
}

// AttachToSet registers notifier to be informed of every successful send,
// carrying member as the value written into the set's own queue. A queue
// must be empty when attached (spec.md §4.4 "Queue sets").
func (q *Queue[T]) AttachToSet(notifier SetNotifier, member any) error {
	q.k.Lock()
	defer q.k.Unlock()
	if q.n != 0 {
		return kernerr.ErrNotPermitted
	}
	if q.setNotifier != nil {
		return kernerr.ErrNotPermitted
	}
	q.setNotifier = notifier
	q.setMember = member
	return nil
}

// DetachFromSet reverses AttachToSet. The queue must be empty.
func (q *Queue[T]) DetachFromSet() error {
	q.k.Lock()
	defer q.k.Unlock()
	if q.n != 0 {
		return kernerr.ErrNotPermitted
	}
	q.setNotifier = nil
	q.setMember = nil
	return nil
}

// Send inserts item at pos, blocking the caller (which must be the
// currently running task h) up to ticksToWait if the queue is full.
// Overwrite is only legal for capacity-1 queues (spec.md §4.4 "Overwrite
// mode").
func (q *Queue[T]) Send(h kernel.Handle, item T, ticksToWait uint64, pos Position) error {
	kernerr.Assert(pos != Overwrite || q.cap() == 1, "queue: overwrite mode only legal for capacity-1 queues", "name=%s cap=%d", q.name, q.cap())

	for {
		q.k.Lock()
		if q.n < q.cap() || pos == Overwrite {
			setHigher := q.writeLocked(item, pos)
			_, higher := q.k.RemoveFromEventList(q.waitingToReceive)
			higher = higher || setHigher
			q.k.Unlock()
			if higher {
				q.k.Yield(h)
			}
			return nil
		}
		if ticksToWait == 0 {
			q.k.Unlock()
			return kernerr.ErrTimeout
		}
		q.beginBlockLocked(h, q.waitingToSend, ticksToWait)

		if err := q.k.Block(h); err != nil {
			return err
		}
		// Woken: re-loop to re-check room, matching the original's
		// "on wake re-loop" contract (a higher-priority task may have
		// raced to fill the slot first).
	}
}

// SendFromISR is the non-blocking, ISR-safe variant. It never touches
// wait lists directly while the queue is locked — it only bumps tx_lock
// — and returns kernerr.ErrWouldBlock if there is no room.
func (q *Queue[T]) SendFromISR(item T, pos Position) (higherPriorityWoken bool, err error) {
	kernerr.Assert(pos != Overwrite || q.cap() == 1, "queue: overwrite mode only legal for capacity-1 queues", "name=%s", q.name)

	mask := q.k.LockFromISR()
	defer q.k.UnlockFromISR(mask)

	if q.n >= q.cap() && pos != Overwrite {
		return false, kernerr.ErrWouldBlock
	}
	setHigher := q.writeLocked(item, pos)
	if q.state == unlocked {
		_, higher := q.k.RemoveFromEventList(q.waitingToReceive)
		return higher || setHigher, nil
	}
	q.txLock = q.capLock(q.txLock + 1)
	return setHigher, nil
}

// writeLocked performs the ring write and, if this queue is attached to a
// set, notifies it. Must be called with the kernel lock (or ISR critical
// section) held.
func (q *Queue[T]) writeLocked(item T, pos Position) (setHigherPriorityWoken bool) {
	wasEmpty := q.n == 0
	switch pos {
	case Front:
		q.head = (q.head - 1 + q.cap()) % q.cap()
		q.buf[q.head] = item
		if wasEmpty {
			q.n = 1
		} else {
			q.n++
		}
	case Overwrite:
		if q.n == 0 {
			q.buf[q.tail] = item
			q.tail = (q.tail + 1) % q.cap()
			q.n = 1
		} else {
			q.buf[q.head] = item
		}
	default: // Back
		q.buf[q.tail] = item
		q.tail = (q.tail + 1) % q.cap()
		q.n++
	}
	if q.setNotifier != nil {
		return q.setNotifier.notifyMember(q.setMember)
	}
	return false
}

// beginBlockLocked transitions the queue into the locked state used to
// defer ISR-originated wakes (spec.md §4.4), places h on waitList, then
// releases and immediately re-acquires the kernel lock before replaying
// whatever deferred wakes accumulated in the gap. This mirrors the brief
// window FreeRTOS's own prvLockQueue/prvUnlockQueue pair opens between
// suspending the scheduler and actually blocking: a concurrent *FromISR
// caller must not touch the event lists directly while a task is
// mid-registration, so it counts instead, and the count is replayed here,
// before h actually blocks. Must be called with the kernel lock held;
// returns with the kernel lock released.
func (q *Queue[T]) beginBlockLocked(h kernel.Handle, waitList *list.List[*kernel.TCB], ticksToWait uint64) {
	q.state = locked
	q.txLock, q.rxLock = 0, 0
	q.k.PlaceOnEventList(h, waitList, ticksToWait)
	q.k.Unlock()

	q.k.Lock()
	q.unlockQueueLocked()
	q.k.Unlock()
}

// unlockQueueLocked replays deferred ISR wakes accumulated while the
// queue was locked (spec.md §4.4: "On unlock_queue ... for each unit of
// tx_lock pop a waiting_to_receive waiter to pending-ready ... then the
// same for rx_lock against waiting_to_send"). Must be called with the
// kernel lock held.
func (q *Queue[T]) unlockQueueLocked() {
	replayedTx, replayedRx := q.txLock, q.rxLock
	for q.txLock > 0 {
		q.txLock--
		q.k.RemoveFromEventList(q.waitingToReceive)
	}
	for q.rxLock > 0 {
		q.rxLock--
		q.k.RemoveFromEventList(q.waitingToSend)
	}
	q.state = unlocked
	q.log.QueueLock(q.name, replayedTx, replayedRx)
}
