package kernel

// TickCountFast and OverflowCountFast read the tick and overflow counters
// without the kernel lock, for package diag's snapshot: these two values
// are sampled once per tick (the kernel's hottest path), so a diagnostics
// reader must not contend with the dispatcher's critical section to see
// them, the same motivation behind eventloop.FastState's lock-free
// counters.
func (k *Kernel) TickCountFast() uint64 { return k.tickAtomic.Load() }

// OverflowCountFast is TickCountFast's counterpart for overflow_count.
func (k *Kernel) OverflowCountFast() uint64 { return k.overflowAtomic.Load() }

// ReadyDepths returns the number of tasks ready at each priority level,
// indexed the same as the priority itself. Structural counts like this
// are read far less often than the tick counters above, so a brief
// critical section (identical to any other accessor in this package) is
// cheap enough not to warrant its own atomics.
func (k *Kernel) ReadyDepths() []int {
	k.port.DisableInterrupts()
	defer k.port.EnableInterrupts()
	out := make([]int, len(k.ready))
	for p, l := range k.ready {
		out[p] = l.Len()
	}
	return out
}

// DelayedCount returns the number of tasks currently blocked with a
// timeout or indefinitely (the delayed and delayed-overflow lists
// combined).
func (k *Kernel) DelayedCount() int {
	k.port.DisableInterrupts()
	defer k.port.EnableInterrupts()
	return k.delayed.Len() + k.delayedOverflow.Len()
}

// SuspendedCount returns the number of explicitly suspended tasks.
func (k *Kernel) SuspendedCount() int {
	k.port.DisableInterrupts()
	defer k.port.EnableInterrupts()
	return k.suspendedList.Len()
}

// TaskCount returns the number of live (not yet reclaimed) tasks,
// matching the taskCount callback package queue caps its lock counters
// with.
func (k *Kernel) TaskCount() int {
	k.port.DisableInterrupts()
	defer k.port.EnableInterrupts()
	return len(k.tasks)
}
