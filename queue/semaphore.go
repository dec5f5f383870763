package queue

import (
	"github.com/joeycumines/gokernel/kernel"
	"github.com/joeycumines/gokernel/kernlog"
)

// Semaphore is a degenerate Queue[struct{}] where messages_waiting is the
// count (spec.md §4.4). Binary semaphores are counting semaphores with
// max count 1.
type Semaphore struct {
	q *Queue[struct{}]
}

// NewCountingSemaphore creates a semaphore with the given max count,
// prefilled to initialCount.
func NewCountingSemaphore(k *kernel.Kernel, log *kernlog.Logger, name string, maxCount, initialCount int, taskCount func() int) *Semaphore {
	q := New[struct{}](k, log, name, maxCount, taskCount)
	q.n = initialCount
	return &Semaphore{q: q}
}

// NewBinarySemaphore creates a counting semaphore with max count 1,
// starting empty (the common "signal" usage).
func NewBinarySemaphore(k *kernel.Kernel, log *kernlog.Logger, name string, taskCount func() int) *Semaphore {
	return NewCountingSemaphore(k, log, name, 1, 0, taskCount)
}

// Name returns the semaphore's diagnostic name.
func (s *Semaphore) Name() string { return s.q.Name() }

// Count returns the current count.
func (s *Semaphore) Count() int { return s.q.MessagesWaiting() }

// Give increments the count, waking the highest-priority waiter if any.
// Returns kernerr.ErrTimeout if the semaphore is already at max count
// (mirroring the original's pdFALSE return from xSemaphoreGive).
func (s *Semaphore) Give(h kernel.Handle) error {
	return s.q.Send(h, struct{}{}, 0, Back)
}

// GiveFromISR is the ISR-safe variant.
func (s *Semaphore) GiveFromISR() (higherPriorityWoken bool, err error) {
	return s.q.SendFromISR(struct{}{}, Back)
}

// Take decrements the count, blocking up to ticksToWait if it is zero.
func (s *Semaphore) Take(h kernel.Handle, ticksToWait uint64) error {
	_, err := s.q.Receive(h, ticksToWait)
	return err
}

// TakeFromISR is the ISR-safe variant.
func (s *Semaphore) TakeFromISR() (higherPriorityWoken bool, err error) {
	_, higher, err := s.q.ReceiveFromISR()
	return higher, err
}
