package kernel

import (
	"time"

	"github.com/joeycumines/gokernel/kernerr"
	"github.com/joeycumines/gokernel/list"
)

// StartScheduler creates the idle task, starts the port's tick source,
// and begins the dispatch loop
// (spec.md §4.3 "Scheduler control"). It returns once the idle task and
// dispatcher goroutine are running; it does not block for the scheduler's
// lifetime (unlike the original's vTaskStartScheduler, which never
// returns on a real target — the hosted port has no "first context
// restore" to hand off to, so StartScheduler instead launches the
// dispatcher as its own goroutine and returns to the caller).
func (k *Kernel) StartScheduler() {
	k.port.DisableInterrupts()
	kernerr.Assert(!k.started, "kernel: scheduler already started", "")
	k.started = true
	k.nextUnblockTime = list.ValueMax
	k.stopCh = make(chan struct{})
	k.port.EnableInterrupts()

	idleHandle, err := k.createTask("idle", 0, k.cfg.MinimalStackSize, DynamicTCBAndStack, k.idleEntry, nil)
	kernerr.AssertNoError(err, "kernel: idle task creation failed")

	k.port.DisableInterrupts()
	k.idle = k.tasks[idleHandle]
	k.port.EnableInterrupts()

	k.port.TickSourceStart(k.cfg.TickRateHz, k.Tick)

	go k.dispatchLoop()
}

// StopScheduler halts the tick source (if the port supports it) and
// signals the idle task and dispatch loop to exit once the currently
// dispatched task next yields. Not part of the original API (there is no
// hosted equivalent of powering off the board); provided so tests and the
// demo program can shut a Kernel down cleanly.
func (k *Kernel) StopScheduler() {
	k.port.DisableInterrupts()
	if k.stopRequested {
		k.port.EnableInterrupts()
		return
	}
	k.stopRequested = true
	k.port.EnableInterrupts()
	close(k.stopCh)
	if s, ok := k.port.(stopper); ok {
		s.Stop()
	}
}

// dispatchLoop is switch_context's realisation: it repeatedly selects the
// highest-priority ready task and grants it the CPU via the port,
// blocking until that task yields, blocks on a kernel wait, or
// terminates.
func (k *Kernel) dispatchLoop() {
	for {
		k.port.DisableInterrupts()
		if k.stopRequested {
			k.port.EnableInterrupts()
			return
		}
		next := k.selectNextReadyLocked()
		k.current = next
		k.yieldPending = false
		ph := next.port
		k.port.EnableInterrupts()

		k.port.Dispatch(ph)
	}
}

// selectNextReadyLocked implements switch_context's selection rule: the
// highest-priority non-empty ready list, advanced round-robin. Must be
// called with the kernel lock held. Panics if no task is ready at all,
// which would mean the idle task itself is missing.
func (k *Kernel) selectNextReadyLocked() *TCB {
	for p := len(k.ready) - 1; p >= 0; p-- {
		if !k.ready[p].Empty() {
			return k.ready[p].Advance()
		}
	}
	kernerr.Assert(false, "kernel: no ready task at any priority (idle task missing)", "")
	return nil
}

// idleEntry is the idle task's body. It reclaims terminated tasks, runs
// the application idle hook, then sleeps briefly and yields. The sleep
// bounds host CPU usage when nothing else is runnable; the yield is what
// actually gives a tick-woken higher-priority task the CPU, since the
// hosted port cannot preempt idle mid-sleep (see hostport's package
// doc). Both are consequences of running on top of goroutines rather than
// real hardware, not behaviour spec.md itself calls for.
func (k *Kernel) idleEntry(any) {
	for {
		select {
		case <-k.stopCh:
			return
		default:
		}
		if k.hook.Idle != nil {
			k.hook.Idle()
		}
		k.reclaimTerminated()
		time.Sleep(k.cfg.IdlePollInterval)
		k.Yield(k.idle.handle)
	}
}

// reclaimTerminated drains the terminating list, freeing the bookkeeping
// for tasks whose entry functions have returned or been deleted while
// running (spec.md §4.3 "Deleted (memory reclaim by idle)").
func (k *Kernel) reclaimTerminated() {
	k.port.DisableInterrupts()
	defer k.port.EnableInterrupts()
	for {
		head := k.terminating.Head()
		if head == nil {
			return
		}
		t := head.Owner
		k.terminating.Remove(head)
		delete(k.tasks, t.handle)
		k.log.TaskEvent("reclaim", t.Name, t.Priority)
	}
}

// Tick is called from the periodic interrupt (spec.md §4.3 "Tick"). When
// the scheduler is not locked it advances tick_count (handling overflow),
// unblocks any delayed tasks whose wake time has arrived, and requests a
// yield when that unblocks a higher-priority task, or a round-robin slice
// has expired, or a yield was already pending. When locked it only
// accumulates pended_ticks.
func (k *Kernel) Tick() {
	k.port.DisableInterrupts()
	switchRequired := false
	if k.suspendedDepth == 0 {
		switchRequired = k.tickOnceLocked()
		if k.current != nil && k.cfg.UsePreemption && k.ready[k.current.Priority].Len() > 1 {
			switchRequired = true
		}
		if k.yieldPending {
			switchRequired = true
			k.yieldPending = false
		}
	} else {
		k.pendedTicks++
	}
	hook := k.hook.Tick
	k.port.EnableInterrupts()

	if hook != nil {
		hook()
	}
	if switchRequired {
		// Documented limitation: on the hosted port this cannot actually
		// interrupt a running task. The newly-unblocked task gets the CPU
		// only once the running task reaches its own next kernel call.
		k.port.Yield()
	}
}

// tickOnceLocked advances tick_count by one tick, swapping the delayed
// lists on overflow, and unblocks every delayed task whose wake tick has
// now arrived. Must be called with the kernel lock held. Returns whether
// a higher-priority task was unblocked.
func (k *Kernel) tickOnceLocked() bool {
	k.tickCount++
	if k.tickMax != 0 && k.tickCount == k.tickMax {
		k.tickCount = 0
		k.overflowCount++
		k.delayed, k.delayedOverflow = k.delayedOverflow, k.delayed
		k.log.TickOverflow(k.overflowCount)
		k.overflowAtomic.Store(k.overflowCount)
	}
	k.tickAtomic.Store(k.tickCount)
	return k.unblockExpiredLocked()
}

// unblockExpiredLocked moves every task at the head of the delayed list
// whose wake tick has arrived into its ready list (or pending-ready, were
// this ever called while locked — it never is, callers only invoke it
// with suspendedDepth==0). Must be called with the kernel lock held.
func (k *Kernel) unblockExpiredLocked() (switchRequired bool) {
	for {
		head := k.delayed.Head()
		if head == nil || head.Value > k.tickCount {
			break
		}
		t := head.Owner
		k.delayed.Remove(head)
		if t.eventItem.Linked() {
			t.eventItem.List().Remove(t.eventItem)
		}
		t.timedOut = true
		k.readyLocked(t)
		if k.current != nil && t.Priority > k.current.Priority {
			switchRequired = true
		}
	}
	if k.delayed.Empty() {
		k.nextUnblockTime = list.ValueMax
	} else {
		k.nextUnblockTime = k.delayed.Head().Value
	}
	return switchRequired
}

// SuspendAll increments suspended_depth, locking the scheduler: Tick keeps
// counting ticks but stops moving tasks between lists, and ISR wakes park
// on pending_ready instead of ready[] (spec.md §4.3 "Scheduler control").
func (k *Kernel) SuspendAll() {
	k.port.DisableInterrupts()
	k.suspendedDepth++
	k.port.EnableInterrupts()
}

// ResumeAll decrements suspended_depth and, on reaching zero, drains
// pending_ready into the real ready lists, replays any pended_ticks
// through the tick path, and yields if that is now required. Returns
// whether a yield was requested, matching resume_all's observable
// contract.
func (k *Kernel) ResumeAll() bool {
	k.port.DisableInterrupts()
	kernerr.Assert(k.suspendedDepth > 0, "kernel: resume_all without matching suspend_all", "")
	k.suspendedDepth--
	switchRequired := false
	if k.suspendedDepth == 0 {
		for {
			head := k.pendingReady.Head()
			if head == nil {
				break
			}
			t := head.Owner
			k.pendingReady.Remove(head)
			k.readyLocked(t)
			if k.current != nil && t.Priority > k.current.Priority {
				switchRequired = true
			}
		}
		for k.pendedTicks > 0 {
			k.pendedTicks--
			if k.tickOnceLocked() {
				switchRequired = true
			}
		}
		if k.yieldPending {
			switchRequired = true
			k.yieldPending = false
		}
	}
	k.port.EnableInterrupts()
	if switchRequired {
		k.port.Yield()
	}
	return switchRequired
}
