// Package diag exposes a read-only diagnostics snapshot of a running
// kernel (spec.md §4.10): ready-list depths, delayed/suspended counts,
// the tick and overflow counters, attached queues' lock counters, and the
// timer service's active-timer and backlog-event counts.
//
// Snapshot assembly never blocks the scheduler: the tick/overflow
// counters are read lock-free (grounded on eventloop.FastState's CAS
// counter pattern, see kernel.Kernel.TickCountFast/OverflowCountFast),
// and every other field is read through a brief, already-idiomatic
// critical section, the same cost as any other kernel accessor.
package diag

import "github.com/joeycumines/gokernel/kernel"

// QueueLockCounters is the subset of queue.Queue[T]'s surface a Collector
// needs to report lock counters without depending on the item type. Any
// *queue.Queue[T] satisfies this automatically, since Name and
// LockCounters don't reference T.
type QueueLockCounters interface {
	Name() string
	LockCounters() (txLock, rxLock int)
}

// TimerStats is the subset of *timer.Service's surface a Collector needs.
type TimerStats interface {
	ActiveCount() int
	BacklogEvents() int
}

// QueueSnapshot is one attached queue's lock-counter reading.
type QueueSnapshot struct {
	Name   string
	TxLock int
	RxLock int
}

// Snapshot is a point-in-time reading of kernel and collaborator state.
type Snapshot struct {
	TickCount     uint64
	OverflowCount uint64

	ReadyDepths    []int
	DelayedCount   int
	SuspendedCount int
	TaskCount      int

	Queues []QueueSnapshot

	TimerActiveCount   int
	TimerBacklogEvents int
}

// Collector assembles Snapshots from a kernel and its registered
// collaborators. Registration is append-only and not itself
// synchronized: register queues and the timer service once during
// startup, before Snapshot is ever called from a concurrent goroutine.
type Collector struct {
	k      *kernel.Kernel
	queues []QueueLockCounters
	timer  TimerStats
}

// New creates a Collector over k.
func New(k *kernel.Kernel) *Collector {
	return &Collector{k: k}
}

// RegisterQueue adds q to the set reported by Snapshot.
func (c *Collector) RegisterQueue(q QueueLockCounters) {
	c.queues = append(c.queues, q)
}

// RegisterTimerService attaches the timer service whose active/backlog
// counts Snapshot reports. A Collector supports at most one.
func (c *Collector) RegisterTimerService(t TimerStats) {
	c.timer = t
}

// Snapshot assembles a point-in-time diagnostics reading.
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		TickCount:      c.k.TickCountFast(),
		OverflowCount:  c.k.OverflowCountFast(),
		ReadyDepths:    c.k.ReadyDepths(),
		DelayedCount:   c.k.DelayedCount(),
		SuspendedCount: c.k.SuspendedCount(),
		TaskCount:      c.k.TaskCount(),
	}
	if len(c.queues) > 0 {
		s.Queues = make([]QueueSnapshot, len(c.queues))
		for i, q := range c.queues {
			tx, rx := q.LockCounters()
			s.Queues[i] = QueueSnapshot{Name: q.Name(), TxLock: tx, RxLock: rx}
		}
	}
	if c.timer != nil {
		s.TimerActiveCount = c.timer.ActiveCount()
		s.TimerBacklogEvents = c.timer.BacklogEvents()
	}
	return s
}
