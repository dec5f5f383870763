package kernel

import (
	"github.com/joeycumines/gokernel/kernerr"
	"github.com/joeycumines/gokernel/list"
)

// Delay blocks h for the given number of ticks (spec.md §4.3 "Delay"). h
// must be the currently running task. A ticks value of 0 returns
// immediately without blocking, matching the original's vTaskDelay(0)
// (a no-op, not a yield). It returns nil once the delay has elapsed, or
// kernerr.ErrCancelled if AbortDelay woke h early.
func (k *Kernel) Delay(h Handle, ticks uint64) error {
	if ticks == 0 {
		return nil
	}
	k.port.DisableInterrupts()
	t, ok := k.tasks[h]
	kernerr.Assert(ok && t == k.current, "kernel: delay called by non-running task", "handle=%d", h)
	k.blockForTicksLocked(t, ticks)
	k.port.EnableInterrupts()

	if err := k.Block(h); err != kernerr.ErrTimeout {
		return err
	}
	return nil
}

// wakeTickLocked computes the tick value ticks ticks from now, reduced
// modulo tick_max for bounded tick widths, and reports whether that wake
// tick wraps past tick_max relative to tick_count — i.e. whether it
// belongs in delayed_overflow rather than delayed. Must be called with
// the kernel lock held.
func (k *Kernel) wakeTickLocked(ticks uint64) (wake uint64, overflow bool) {
	wake = k.tickCount + ticks
	if k.tickMax != 0 {
		wake %= k.tickMax
	}
	return wake, wake < k.tickCount
}

// blockForTicksLocked unlinks t from ready and inserts its state_item
// into delayed (or delayed_overflow, if the wake tick wraps past
// tick_max) ticks ticks from now. Must be called with the kernel lock
// held.
func (k *Kernel) blockForTicksLocked(t *TCB, ticks uint64) {
	if t.stateItem.Linked() {
		t.stateItem.List().Remove(t.stateItem)
	}
	wake, overflow := k.wakeTickLocked(ticks)
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

// DelayUntil blocks h until *prevWakeTime + increment, then advances
// *prevWakeTime by increment regardless of whether the deadline had
// already passed (spec.md §4.3: "delay_until detects tick overflow
// between prior call and now and refuses to delay if the target instant
// is already past"). It returns whether the task actually blocked.
//
// The deadline-in-the-past check compares (wakeTime - now) as a signed
// int64: a positive result means the deadline is still ahead, a negative
// or zero result means it has already elapsed. This is the same
// wrap-tolerant trick sequence-number comparisons use, and tolerates
// tick_count wrapping between calls the same way the original's explicit
// overflow-count bookkeeping does, so long as the deadline is never more
// than half the tick space away — true for any realistic delay_until
// usage.
func (k *Kernel) DelayUntil(h Handle, prevWakeTime *uint64, increment uint64) (bool, error) {
	k.port.DisableInterrupts()
	t, ok := k.tasks[h]
	kernerr.Assert(ok && t == k.current, "kernel: delay_until called by non-running task", "handle=%d", h)

	wakeTime := *prevWakeTime + increment
	now := k.tickCount
	*prevWakeTime = wakeTime

	offset := int64(wakeTime - now)
	if offset <= 0 {
		k.port.EnableInterrupts()
		return false, nil
	}
	k.blockForTicksLocked(t, uint64(offset))
	k.port.EnableInterrupts()

	err := k.Block(h)
	if err == kernerr.ErrTimeout {
		err = nil
	}
	return true, err
}

// AbortDelay wakes h early if it is currently blocked on a timed or
// indefinite delay (including a queue/stream-buffer/notification wait,
// since those share the delayed-list machinery), returning
// kernerr.ErrCancelled to h's blocked call. It reports whether h was
// actually blocked.
func (k *Kernel) AbortDelay(h Handle) (bool, error) {
	k.port.DisableInterrupts()
	defer k.port.EnableInterrupts()

	t, ok := k.tasks[h]
	if !ok {
		return false, kernerr.ErrNotFound
	}
	blocked := t.stateItem.Linked() && (t.stateItem.List() == k.delayed || t.stateItem.List() == k.delayedOverflow)
	if !blocked {
		return false, nil
	}
	t.stateItem.List().Remove(t.stateItem)
	if t.eventItem.Linked() {
		t.eventItem.List().Remove(t.eventItem)
	}
	t.delayAborted = true
	if k.suspendedDepth > 0 {
		t.stateItem.Value = list.ValueMax
		k.pendingReady.Append(t.stateItem)
	} else {
		k.readyLocked(t)
	}
	if k.current != nil && t.Priority > k.current.Priority {
		k.yieldPending = true
	}
	return true, nil
}
