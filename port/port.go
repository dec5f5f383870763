// Package port declares the narrow interface the kernel requires of its
// architecture collaborator (spec.md §4.2). The kernel never assumes
// anything about the port beyond this contract; every concrete port (the
// hosted goroutine-based one in package hostport, or a future bare-metal
// one) must satisfy it.
package port

// TaskFunc is the entry point of a task: it runs until it returns, at which
// point the owning task is implicitly deleted.
type TaskFunc func(arg any)

// Port is the architecture collaborator. All methods must be safe to call
// from the goroutine(s) the port itself manages; DisableInterrupts /
// EnableInterrupts nest per spec.md §5 ("critical section nesting") and
// model the CPU-level interrupt mask a real port would toggle.
type Port interface {
	// DisableInterrupts enters a (possibly nested) critical section.
	// Matches disable_interrupts().
	DisableInterrupts()

	// EnableInterrupts leaves one level of critical section. Matches
	// enable_interrupts().
	EnableInterrupts()

	// EnterCriticalFromISR enters a critical section from ISR context and
	// returns an opaque mask to restore via ExitCriticalFromISR.
	EnterCriticalFromISR() uintptr

	// ExitCriticalFromISR restores the interrupt mask saved by
	// EnterCriticalFromISR.
	ExitCriticalFromISR(mask uintptr)

	// Yield requests a context switch at the next safe point. May be
	// called from task or ISR context.
	Yield()

	// GetCoreID returns the core the caller is executing on; always 0 on
	// the single-core profile this spec targets.
	GetCoreID() int

	// TickSourceStart begins delivering ticks at rateHz to tick, until
	// the port is stopped. tick must be safe to call as if from an ISR.
	TickSourceStart(rateHz int, tick func())

	// StackInit prepares a task to begin executing entry(arg) and
	// returns a handle the port uses to track it. On the hosted port
	// this spawns the task's goroutine, parked immediately awaiting its
	// first scheduling grant — the Go-native analogue of writing a
	// synthetic initial stack frame.
	StackInit(name string, entry TaskFunc, arg any) TaskHandle

	// Dispatch grants execution to exactly the named task handle and
	// blocks the calling goroutine (the scheduler) until that task
	// either blocks, yields, or terminates. Dispatch is how the
	// scheduler's context-switch decision is actually carried out.
	Dispatch(h TaskHandle)

	// TaskYield is called by the running task h to hand control back to
	// the scheduler; it blocks until h is dispatched again.
	TaskYield(h TaskHandle)

	// AssertNotInISR panics if called from a context the port considers
	// to be an ISR. The hosted port never runs "real" ISRs, so this is a
	// no-op there; it exists so the contract mirrors the original.
	AssertNotInISR()
}

// TaskHandle identifies a task to the port. Its zero value denotes "no
// task" (e.g. before the idle task exists).
type TaskHandle uint64
