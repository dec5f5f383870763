package kernel

import (
	"github.com/joeycumines/gokernel/kernerr"
	"github.com/joeycumines/gokernel/list"
)

// PriorityGet returns h's current effective priority.
func (k *Kernel) PriorityGet(h Handle) (int, error) {
	k.port.DisableInterrupts()
	defer k.port.EnableInterrupts()
	t, ok := k.tasks[h]
	if !ok {
		return 0, kernerr.ErrNotFound
	}
	return t.Priority, nil
}

// BasePriorityGet returns h's base (un-inherited) priority.
func (k *Kernel) BasePriorityGet(h Handle) (int, error) {
	k.port.DisableInterrupts()
	defer k.port.EnableInterrupts()
	t, ok := k.tasks[h]
	if !ok {
		return 0, kernerr.ErrNotFound
	}
	return t.BasePriority, nil
}

// PrioritySet changes h's base priority. Raising another task's priority
// above the running task's, or lowering the running task's own priority,
// requests a yield (spec.md §4.3 "Priority").
func (k *Kernel) PrioritySet(h Handle, newPriority int) error {
	if newPriority < 0 || newPriority >= k.cfg.MaxPriorities {
		return kernerr.ErrNotPermitted
	}
	k.port.DisableInterrupts()
	t, ok := k.tasks[h]
	if !ok {
		k.port.EnableInterrupts()
		return kernerr.ErrNotFound
	}
	oldBase := t.BasePriority
	t.BasePriority = newPriority
	// Effective priority only tracks base while no mutex inheritance is in
	// effect; if t currently holds an inherited (boosted) priority higher
	// than its new base, leave the effective priority alone until it is
	// restored by the owning mutex.
	requestYield := false
	if t.Priority == oldBase || newPriority > t.Priority {
		k.relocatePriorityLocked(t, newPriority)
		requestYield = k.current != nil && (t == k.current || newPriority > k.current.Priority) && newPriority != oldBase
	}
	k.port.EnableInterrupts()
	k.log.TaskEvent("priority_set", t.Name, newPriority)
	if requestYield {
		k.port.Yield()
	}
	return nil
}

// BoostPriority raises h's effective priority for mutex priority
// inheritance (spec.md §4.4 "Priority inheritance"), re-linking it in its
// ready list if it is currently ready. Never lowers priority (use
// RestorePriority for that). Acquires the kernel lock itself; use
// BoostPriorityLocked from code that already holds it (queue.Mutex.Take
// does, via TaskLocked).
func (k *Kernel) BoostPriority(h Handle, to int) {
	k.port.DisableInterrupts()
	defer k.port.EnableInterrupts()
	k.BoostPriorityLocked(h, to)
}

// BoostPriorityLocked is BoostPriority's body, for callers that already
// hold the kernel lock via Lock/LockFromISR.
func (k *Kernel) BoostPriorityLocked(h Handle, to int) {
	t, ok := k.tasks[h]
	if !ok || to <= t.Priority {
		return
	}
	k.relocatePriorityLocked(t, to)
}

// RestorePriority sets h's effective priority back to a specific value
// (either its base priority, or a partial disinheritance level), re-linking
// it in its ready list if currently ready. Acquires the kernel lock
// itself; use RestorePriorityLocked from code that already holds it.
func (k *Kernel) RestorePriority(h Handle, to int) {
	k.port.DisableInterrupts()
	defer k.port.EnableInterrupts()
	k.RestorePriorityLocked(h, to)
}

// RestorePriorityLocked is RestorePriority's body, for callers that
// already hold the kernel lock.
func (k *Kernel) RestorePriorityLocked(h Handle, to int) {
	t, ok := k.tasks[h]
	if !ok {
		return
	}
	k.relocatePriorityLocked(t, to)
}

// TaskLocked returns h's TCB directly, for collaborators (queue.Mutex)
// that need to read/compare priorities while already holding the kernel
// lock via Lock/LockFromISR. Returns nil if h is not a live task.
func (k *Kernel) TaskLocked(h Handle) *TCB { return k.tasks[h] }

// relocatePriorityLocked updates t.Priority and, if t's state_item is
// currently linked into a ready[] list, moves it to the new priority's
// list (spec.md §4.4: "re-link holder in the correct ready queue (even if
// it is in a ready list)"). Must be called with the kernel lock held.
func (k *Kernel) relocatePriorityLocked(t *TCB, newPriority int) {
	wasReady := t.stateItem.Linked() && t.stateItem.List() == k.readyListOfLocked(t)
	if wasReady {
		t.stateItem.List().Remove(t.stateItem)
	}
	t.Priority = newPriority
	if wasReady {
		k.readyLocked(t)
	}
}

// readyListOfLocked returns the ready list t would be linked into given
// its current Priority, used only to test membership (a task may instead
// be linked into delayed/suspended/a wait list).
func (k *Kernel) readyListOfLocked(t *TCB) *list.List[*TCB] {
	return k.ready[t.Priority]
}
