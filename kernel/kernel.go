// Package kernel implements the scheduler core (spec.md §4.3): task
// creation and lifecycle, the ready/delayed/suspended/pending-ready lists,
// the tick state machine, priority management, and the ordered and
// unordered event-list protocols that queue, stream-buffer and timer code
// block on.
//
// Every mutation of kernel-owned state happens inside a critical section
// acquired via the port (port.Port.DisableInterrupts/EnableInterrupts or
// the *FromISR pair), mirroring the original's taskENTER_CRITICAL
// discipline. On the hosted port (package hostport) that critical section
// is a single mutex shared by every task goroutine, the tick goroutine and
// any simulated-ISR goroutine.
package kernel

import (
	"sync/atomic"

	"github.com/joeycumines/gokernel/config"
	"github.com/joeycumines/gokernel/kernerr"
	"github.com/joeycumines/gokernel/kernlog"
	"github.com/joeycumines/gokernel/list"
	"github.com/joeycumines/gokernel/port"
)

// Hooks are optional application callbacks, invoked from kernel context
// (spec.md §4.3 "invoke application tick hook" / idle task).
type Hooks struct {
	// Idle runs on every idle-task iteration.
	Idle func()
	// Tick runs on every Tick call, regardless of suspended_depth.
	Tick func()
	// StackOverflow is the stack-overflow hook. The hosted kernel performs
	// no stack check, so nothing calls it.
	StackOverflow func(name string)
}

// Kernel owns every task and the lists that sequence them. A Kernel is not
// safe for use before StartScheduler except for CreateTask, which may be
// called any number of times beforehand to populate the initial task set
// (spec.md §4.3, "Adds to ready[priority]" happens regardless of whether
// the scheduler is running yet).
type Kernel struct {
	cfg  config.Config
	port port.Port
	log  *kernlog.Logger
	hook Hooks

	ready           []*list.List[*TCB]
	delayed         *list.List[*TCB]
	delayedOverflow *list.List[*TCB]
	suspendedList   *list.List[*TCB]
	pendingReady    *list.List[*TCB]
	terminating     *list.List[*TCB]

	tasks        map[Handle]*TCB
	byPortHandle map[port.TaskHandle]*TCB
	nextHandle   uint64

	tickCount       uint64
	overflowCount   uint64
	tickMax         uint64
	nextUnblockTime uint64

	suspendedDepth int
	pendedTicks    uint64
	yieldPending   bool

	current *TCB
	idle    *TCB

	started       bool
	stopRequested bool
	stopCh        chan struct{}

	// tickAtomic and overflowAtomic mirror tickCount/overflowCount for
	// package diag's lock-free snapshot reads (spec.md's ambient
	// diagnostics registry, grounded on eventloop.FastState's CAS
	// counters): these two are sampled once per tick, the kernel's
	// hottest path, so diag must not contend with the dispatcher's
	// critical section to read them.
	tickAtomic     atomic.Uint64
	overflowAtomic atomic.Uint64
}

// stopper is the optional interface a port may implement to halt its tick
// source goroutine. port.Port does not require it (a bare-metal port has
// no goroutine to stop), so Kernel type-asserts for it rather than
// widening the contract every port must satisfy.
type stopper interface{ Stop() }

// New constructs a Kernel. cfg.MaxPriorities must be >= 1; priority 0 is
// reserved for the idle task, matching the original's convention.
func New(cfg config.Config, p port.Port, log *kernlog.Logger) *Kernel {
	kernerr.Assert(cfg.MaxPriorities >= 1, "kernel: MaxPriorities must be >= 1", "got=%d", cfg.MaxPriorities)

	k := &Kernel{
		cfg:          cfg,
		port:         p,
		log:          log,
		ready:        make([]*list.List[*TCB], cfg.MaxPriorities),
		tasks:        make(map[Handle]*TCB),
		byPortHandle: make(map[port.TaskHandle]*TCB),
		tickMax:      cfg.TickMax(),
	}
	for i := range k.ready {
		k.ready[i] = list.New[*TCB]()
	}
	k.delayed = list.New[*TCB]()
	k.delayedOverflow = list.New[*TCB]()
	k.suspendedList = list.New[*TCB]()
	k.pendingReady = list.New[*TCB]()
	k.terminating = list.New[*TCB]()
	k.nextUnblockTime = list.ValueMax
	return k
}

// SetHooks installs the application callbacks. Must be called before
// StartScheduler.
func (k *Kernel) SetHooks(h Hooks) { k.hook = h }

func (k *Kernel) eventValue(priority int) uint64 {
	return uint64(k.cfg.MaxPriorities - priority)
}

// CreateTask allocates a dynamic TCB and adds it to ready[priority]
// (spec.md §4.3 "Creation"). entry runs on its own goroutine via the port,
// parked until the scheduler first dispatches it.
func (k *Kernel) CreateTask(name string, priority int, stackDepth int, entry port.TaskFunc, arg any) (Handle, error) {
	return k.createTask(name, priority, stackDepth, DynamicTCBAndStack, entry, arg)
}

// CreateTaskStatic is identical to CreateTask except the returned TCB
// records that its storage was supplied by the caller, matching the
// original's xTaskCreateStatic. The hosted port does not actually consume
// caller-provided memory (the Go runtime owns the goroutine stack); the
// distinction only affects SupportStaticAllocation / diag accounting.
func (k *Kernel) CreateTaskStatic(name string, priority int, stackDepth int, entry port.TaskFunc, arg any) (Handle, error) {
	return k.createTask(name, priority, stackDepth, StaticBoth, entry, arg)
}

func (k *Kernel) createTask(name string, priority int, stackDepth int, kind AllocationKind, entry port.TaskFunc, arg any) (Handle, error) {
	if kind == DynamicTCBAndStack && !k.cfg.SupportDynamicAllocation {
		return 0, kernerr.ErrAllocationFailed
	}
	if kind != DynamicTCBAndStack && !k.cfg.SupportStaticAllocation {
		return 0, kernerr.ErrAllocationFailed
	}
	if priority < 0 || priority >= k.cfg.MaxPriorities {
		return 0, kernerr.ErrNotPermitted
	}
	if len(name) > k.cfg.MaxTaskNameLen {
		name = name[:k.cfg.MaxTaskNameLen]
	}

	k.port.DisableInterrupts()
	k.nextHandle++
	h := Handle(k.nextHandle)
	k.port.EnableInterrupts()

	t := newTCB(h, name, priority, k.cfg.TaskNotificationArrayEntries, kind, stackDepth)

	// StackInit must happen before t is visible in any kernel-owned list:
	// the dispatcher could otherwise select t for dispatch before t.port
	// is assigned.
	ph := k.port.StackInit(name, k.taskTrampoline(t, entry), arg)
	t.port = ph

	k.port.DisableInterrupts()
	t.stateItem.Value = k.eventValue(priority)
	k.tasks[h] = t
	k.byPortHandle[ph] = t
	k.ready[priority].Append(t.stateItem)
	requestYield := k.started && k.current != nil && priority > k.current.Priority
	if requestYield {
		k.yieldPending = true
	}
	k.port.EnableInterrupts()

	k.log.TaskEvent("create", name, priority)
	if requestYield {
		k.port.Yield()
	}
	return h, nil
}

// taskTrampoline wraps entry so a normal return (or a recovered Fault from
// kernerr.Assert) runs the same deferred-cleanup path as delete_task.
func (k *Kernel) taskTrampoline(t *TCB, entry port.TaskFunc) port.TaskFunc {
	return func(arg any) {
		defer func() {
			if r := recover(); r != nil {
				if f, ok := r.(*kernerr.Fault); ok {
					k.log.Error("task panic: "+f.Error(), f)
				} else {
					panic(r)
				}
			}
			k.terminateCurrent(t)
		}()
		entry(arg)
	}
}

// terminateCurrent finalises a task whose entry function has returned or
// panicked: unlink from every list and hand it to the idle task's deferred
// cleanup, matching delete_task's "running task" branch.
func (k *Kernel) terminateCurrent(t *TCB) {
	k.port.DisableInterrupts()
	k.unlinkFromAllListsLocked(t)
	t.deleted = true
	t.stateItem.Value = list.ValueMax
	k.terminating.Append(t.stateItem)
	delete(k.byPortHandle, t.port)
	k.port.EnableInterrupts()
}

func (k *Kernel) unlinkFromAllListsLocked(t *TCB) {
	if t.stateItem.Linked() {
		t.stateItem.List().Remove(t.stateItem)
	}
	if t.eventItem.Linked() {
		t.eventItem.List().Remove(t.eventItem)
	}
}

// DeleteTask removes h from whatever list it is on. Deleting the currently
// running task defers cleanup to the idle task and requests a yield,
// exactly as spec.md §4.3 describes; deleting any other task reclaims it
// immediately.
func (k *Kernel) DeleteTask(h Handle) error {
	k.port.DisableInterrupts()
	t, ok := k.tasks[h]
	if !ok {
		k.port.EnableInterrupts()
		return kernerr.ErrNotFound
	}
	delete(k.tasks, h)
	running := t == k.current
	k.unlinkFromAllListsLocked(t)
	t.deleted = true
	if running {
		t.stateItem.Value = list.ValueMax
		k.terminating.Append(t.stateItem)
		k.yieldPending = true
	} else {
		delete(k.byPortHandle, t.port)
	}
	k.port.EnableInterrupts()
	k.log.TaskEvent("delete", t.Name, t.Priority)
	if running {
		k.port.Yield()
	}
	return nil
}

// SuspendTask moves h from wherever it is into the suspended list.
func (k *Kernel) SuspendTask(h Handle) error {
	k.port.DisableInterrupts()
	t, ok := k.tasks[h]
	if !ok {
		k.port.EnableInterrupts()
		return kernerr.ErrNotFound
	}
	k.unlinkFromAllListsLocked(t)
	t.stateItem.Value = list.ValueMax
	k.suspendedList.Append(t.stateItem)
	running := t == k.current
	if running {
		k.yieldPending = true
	}
	k.port.EnableInterrupts()
	k.log.TaskEvent("suspend", t.Name, t.Priority)
	if running {
		k.port.Yield()
	}
	return nil
}

// ResumeTask moves h from suspended back into its ready list.
func (k *Kernel) ResumeTask(h Handle) error {
	k.port.DisableInterrupts()
	t, ok := k.tasks[h]
	if !ok || !k.isSuspendedLocked(t) {
		k.port.EnableInterrupts()
		return kernerr.ErrNotFound
	}
	k.suspendedList.Remove(t.stateItem)
	k.readyLocked(t)
	requestYield := k.current != nil && t.Priority > k.current.Priority
	if requestYield {
		k.yieldPending = true
	}
	k.port.EnableInterrupts()
	k.log.TaskEvent("resume", t.Name, t.Priority)
	if requestYield {
		k.port.Yield()
	}
	return nil
}

// ResumeTaskFromISR is the ISR-safe variant. Per spec.md §4.3, a resume
// from ISR while the scheduler is locked parks the task on pending_ready
// instead of touching ready[] directly. It returns whether the woken task
// outranks the current one, the signal ISR callers use to decide whether
// to request a yield once they leave critical section.
func (k *Kernel) ResumeTaskFromISR(h Handle) (higherPriorityWoken bool, err error) {
	mask := k.port.EnterCriticalFromISR()
	defer k.port.ExitCriticalFromISR(mask)

	t, ok := k.tasks[h]
	if !ok || !k.isSuspendedLocked(t) {
		return false, kernerr.ErrNotFound
	}
	k.suspendedList.Remove(t.stateItem)
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
	return higherPriorityWoken, nil
}

func (k *Kernel) isSuspendedLocked(t *TCB) bool {
	return t.stateItem.Linked() && t.stateItem.List() == k.suspendedList
}

func (k *Kernel) readyLocked(t *TCB) {
	t.stateItem.Value = k.eventValue(t.Priority)
	k.ready[t.Priority].Append(t.stateItem)
}

// CurrentTaskHandle returns the handle of the task currently dispatched,
// or 0 before the scheduler starts.
func (k *Kernel) CurrentTaskHandle() Handle {
	k.port.DisableInterrupts()
	defer k.port.EnableInterrupts()
	if k.current == nil {
		return 0
	}
	return k.current.handle
}

// TaskName returns h's name, or "" if h is not a live task.
func (k *Kernel) TaskName(h Handle) string {
	k.port.DisableInterrupts()
	defer k.port.EnableInterrupts()
	if t, ok := k.tasks[h]; ok {
		return t.Name
	}
	return ""
}
