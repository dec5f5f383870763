package queue

import (
	"github.com/joeycumines/gokernel/kernel"
	"github.com/joeycumines/gokernel/kernlog"
)

// Set is a queue set: itself a queue of member identities (spec.md §4.4
// "Queue sets"). A successful send to a member queue attached via
// (*Queue[T]).AttachToSet also writes the member's identity into the
// set's queue, waking a task blocked on Set.Receive.
type Set struct {
	q *Queue[any]
}

// NewSet creates a queue set with room for capacity pending member
// notifications.
func NewSet(k *kernel.Kernel, log *kernlog.Logger, name string, capacity int, taskCount func() int) *Set {
	return &Set{q: New[any](k, log, name, capacity, taskCount)}
}

// Name returns the set's diagnostic name.
func (s *Set) Name() string { return s.q.Name() }

// notifyMember implements SetNotifier. It must only be called from a
// member queue's writeLocked, which already holds the shared kernel lock
// — there is exactly one critical section for the whole kernel, so this
// never re-enters it.
func (s *Set) notifyMember(member any) bool {
	setHigher := s.q.writeLocked(member, Back)
	_, higher := s.q.k.RemoveFromEventList(s.q.waitingToReceive)
	return higher || setHigher
}

// Receive blocks h until a member queue has a pending send, returning
// that member's identity (the value passed as member to AttachToSet).
func (s *Set) Receive(h kernel.Handle, ticksToWait uint64) (any, error) {
	return s.q.Receive(h, ticksToWait)
}

// ReceiveFromISR is the non-blocking, ISR-safe variant.
func (s *Set) ReceiveFromISR() (member any, higherPriorityWoken bool, err error) {
	return s.q.ReceiveFromISR()
}
