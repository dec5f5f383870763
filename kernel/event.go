package kernel

import (
	"github.com/joeycumines/gokernel/kernerr"
	"github.com/joeycumines/gokernel/list"
	"github.com/joeycumines/gokernel/port"
)

// Lock and Unlock expose the kernel's critical section to collaborators
// (queue, streambuf, timer) that need to interleave their own state
// changes with list operations like PlaceOnEventList and
// RemoveFromEventList under the same lock the scheduler itself uses —
// there is exactly one critical section in this design, matching
// spec.md §5's single global lock, not one per component.
func (k *Kernel) Lock() { k.port.DisableInterrupts() }

// Unlock releases one level of the critical section entered by Lock.
func (k *Kernel) Unlock() { k.port.EnableInterrupts() }

// LockFromISR enters the critical section from simulated ISR context and
// returns a mask to pass to UnlockFromISR.
func (k *Kernel) LockFromISR() uintptr { return k.port.EnterCriticalFromISR() }

// UnlockFromISR restores the mask saved by LockFromISR.
func (k *Kernel) UnlockFromISR(mask uintptr) { k.port.ExitCriticalFromISR(mask) }

// TickCount returns the current tick counter.
func (k *Kernel) TickCount() uint64 {
	k.port.DisableInterrupts()
	defer k.port.EnableInterrupts()
	return k.tickCount
}

// TickCountLocked is TickCount for callers that already hold the kernel
// lock.
func (k *Kernel) TickCountLocked() uint64 { return k.tickCount }

// TickMax returns the tick value at which the counter wraps to zero and
// overflow_count advances (0 for a 64-bit tick type, which wraps via plain
// uint64 arithmetic instead).
func (k *Kernel) TickMax() uint64 { return k.tickMax }

// EventListValue returns the event_item key that sorts a waiter of the
// given priority to the correct position in a priority-ordered wait list
// (lower key == higher priority == earlier in the list).
func (k *Kernel) EventListValue(priority int) uint64 { return k.eventValue(priority) }

// NewWaitList returns an empty, priority-ordered wait list for a
// collaborator (queue, stream buffer, timer) to hold blocked waiters in.
func NewWaitList() *list.List[*TCB] { return list.New[*TCB]() }

// PlaceOnEventList appends h's event_item to waitList, ordered by
// priority, and moves its state_item into the delayed machinery so Tick
// (or an explicit AbortDelay) will eventually wake it (spec.md §4.3
// "Event list protocols"). Must be called with the kernel lock held, by
// h's own goroutine, about to block. ticksToWait == list.ValueMax means
// wait indefinitely.
func (k *Kernel) PlaceOnEventList(h Handle, waitList *list.List[*TCB], ticksToWait uint64) {
	t, ok := k.tasks[h]
	kernerr.Assert(ok && t == k.current, "kernel: place_on_event_list by non-running task", "handle=%d", h)

	t.eventItem.Value = k.eventValue(t.Priority)
	waitList.InsertOrdered(t.eventItem)

	if t.stateItem.Linked() {
		t.stateItem.List().Remove(t.stateItem)
	}
	if ticksToWait == list.ValueMax {
		t.stateItem.Value = list.ValueMax
		k.delayed.InsertOrdered(t.stateItem)
		return
	}
	wake, overflow := k.wakeTickLocked(ticksToWait)
	t.stateItem.Value = wake
	if overflow {
		k.delayedOverflow.InsertOrdered(t.stateItem)
		return
	}
	k.delayed.InsertOrdered(t.stateItem)
	if wake < k.nextUnblockTime {
		k.nextUnblockTime = wake
	}
}

// RemoveFromEventList pops the highest-priority waiter (the head, since
// waitList is priority-ordered) off waitList, unlinks its delayed-list
// membership, and moves it to ready (or pending-ready if the scheduler is
// locked). It returns the woken task's handle and whether it outranks the
// current task (spec.md §4.3 "remove_from_event_list → higher_prio_woken").
// Must be called with the kernel lock held. Returns (0, false) if
// waitList is empty.
func (k *Kernel) RemoveFromEventList(waitList *list.List[*TCB]) (woken Handle, higherPriorityWoken bool) {
	head := waitList.Head()
	if head == nil {
		return 0, false
	}
	t := head.Owner
	waitList.Remove(head)
	if t.stateItem.Linked() {
		t.stateItem.List().Remove(t.stateItem)
	}
	t.timedOut = false
	if k.suspendedDepth > 0 {
		t.stateItem.Value = list.ValueMax
		k.pendingReady.Append(t.stateItem)
	} else {
		k.readyLocked(t)
	}
	higherPriorityWoken = k.current != nil && t.Priority > k.current.Priority
	if higherPriorityWoken {
		k.yieldPending = true
	}
	return t.handle, higherPriorityWoken
}

// Yield voluntarily relinquishes the CPU: h remains linked in its ready
// list (it never blocked), so the dispatcher simply re-evaluates and, by
// the round-robin cursor, typically selects the next equal-priority task.
// h must be the currently running task.
func (k *Kernel) Yield(h Handle) {
	ph := k.portHandleOf(h)
	k.port.TaskYield(ph)
}

// Block hands control back to the dispatcher and waits to be redispatched
// after a PlaceOnEventList/blockForTicksLocked call has already unlinked h
// from ready and the kernel lock has already been released. It returns
// the wake status: nil on a normal wake, kernerr.ErrTimeout if Tick woke
// the task because its delay expired, kernerr.ErrCancelled if AbortDelay
// woke it.
func (k *Kernel) Block(h Handle) error {
	ph := k.portHandleOf(h)
	k.port.TaskYield(ph)
	return k.wakeStatus(h)
}

func (k *Kernel) portHandleOf(h Handle) port.TaskHandle {
	k.port.DisableInterrupts()
	defer k.port.EnableInterrupts()
	t, ok := k.tasks[h]
	kernerr.Assert(ok, "kernel: unknown task handle", "handle=%d", h)
	return t.port
}

func (k *Kernel) wakeStatus(h Handle) error {
	k.port.DisableInterrupts()
	defer k.port.EnableInterrupts()
	t, ok := k.tasks[h]
	kernerr.Assert(ok, "kernel: unknown task handle", "handle=%d", h)
	switch {
	case t.delayAborted:
		t.delayAborted = false
		return kernerr.ErrCancelled
	case t.timedOut:
		t.timedOut = false
		return kernerr.ErrTimeout
	default:
		return nil
	}
}
