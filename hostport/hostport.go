// Package hostport implements port.Port for a hosted Go process: the
// architecture-port collaborator spec.md §4.2 treats as external, rendered
// the way FreeRTOS's own Win32/POSIX simulator ports render it (see
// original_source/portable/MSVC-MingW/port.c) — one thread per task, with
// a lock protecting the shared scheduler state and exactly one task
// "running" at a time.
//
// Go cannot suspend an arbitrary goroutine from the outside the way
// Windows can SuspendThread an arbitrary thread mid-instruction, so true
// asynchronous preemption of busy-looping task code is not achievable here
// (see DESIGN.md, "Open Question: preemption granularity"). Hostport
// instead grants exactly one task goroutine the right to run at a time,
// handing control back to the scheduler at every kernel API call boundary
// (delay, queue/semaphore/streambuf/notification waits, and an explicit
// Yield). That is sufficient to realise every invariant and scenario in
// spec.md §8, because task code written against this kernel — like task
// code written against the original — always progresses through blocking
// kernel calls.
package hostport

import (
	"sync"
	"time"

	"github.com/joeycumines/gokernel/kernerr"
	"github.com/joeycumines/gokernel/port"
)

type taskRecord struct {
	handle port.TaskHandle
	name   string
	resume chan struct{}
	yielded chan struct{}
	done   chan struct{}
}

// Port is a hosted, goroutine-backed implementation of port.Port.
type Port struct {
	mu      sync.Mutex
	nesting int

	tasksMu sync.Mutex
	tasks   map[port.TaskHandle]*taskRecord
	next    uint64

	tickStop chan struct{}
	tickWg   sync.WaitGroup
}

// New returns a ready-to-use hosted port.
func New() *Port {
	return &Port{tasks: make(map[port.TaskHandle]*taskRecord)}
}

// DisableInterrupts acquires the kernel lock, nesting safely: only the
// outermost call actually blocks on the mutex.
func (p *Port) DisableInterrupts() {
	p.mu.Lock()
	p.nesting++
}

// EnableInterrupts releases one level of nesting, unlocking the kernel lock
// when nesting returns to zero.
func (p *Port) EnableInterrupts() {
	kernerr.Assert(p.nesting > 0, "port: exit critical without enter", "")
	p.nesting--
	p.mu.Unlock()
}

// EnterCriticalFromISR behaves identically to DisableInterrupts on this
// port — there is no separate ISR privilege level to save — and returns a
// nesting snapshot as the opaque mask.
func (p *Port) EnterCriticalFromISR() uintptr {
	p.mu.Lock()
	p.nesting++
	return uintptr(p.nesting)
}

// ExitCriticalFromISR restores the mask saved by EnterCriticalFromISR.
func (p *Port) ExitCriticalFromISR(mask uintptr) {
	kernerr.Assert(uintptr(p.nesting) == mask, "port: mismatched ISR critical exit", "")
	p.nesting--
	p.mu.Unlock()
}

// Yield is a no-op on the hosted port: callers request a switch by simply
// returning control to the scheduler dispatch loop through TaskYield (see
// kernel.Kernel.Yield and Kernel.Block),
// which always re-evaluates the ready lists before picking the next task.
func (p *Port) Yield() {}

// GetCoreID always returns 0; this spec is single-core only.
func (p *Port) GetCoreID() int { return 0 }

// TickSourceStart runs tick on a ticker goroutine at rateHz until Stop is
// called.
func (p *Port) TickSourceStart(rateHz int, tick func()) {
	if rateHz <= 0 {
		rateHz = 1000
	}
	p.tickStop = make(chan struct{})
	ticker := time.NewTicker(time.Second / time.Duration(rateHz))
	p.tickWg.Add(1)
	go func() {
		defer p.tickWg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				tick()
			case <-p.tickStop:
				return
			}
		}
	}()
}

// Stop halts the tick source goroutine, if running, and waits for it to
// exit.
func (p *Port) Stop() {
	if p.tickStop != nil {
		close(p.tickStop)
		p.tickWg.Wait()
		p.tickStop = nil
	}
}

// StackInit spawns the task's goroutine. The goroutine blocks immediately
// on its resume channel — the hosted analogue of a synthetic initial stack
// frame that has not yet been restored into.
func (p *Port) StackInit(name string, entry port.TaskFunc, arg any) port.TaskHandle {
	p.tasksMu.Lock()
	p.next++
	h := port.TaskHandle(p.next)
	rec := &taskRecord{
		handle:  h,
		name:    name,
		resume:  make(chan struct{}),
		yielded: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	p.tasks[h] = rec
	p.tasksMu.Unlock()

	go func() {
		<-rec.resume
		entry(arg)
		close(rec.done)
	}()
	return h
}

// Dispatch grants h the right to run and blocks until it yields, blocks on
// a kernel wait, or terminates.
func (p *Port) Dispatch(h port.TaskHandle) {
	p.tasksMu.Lock()
	rec, ok := p.tasks[h]
	p.tasksMu.Unlock()
	kernerr.Assert(ok, "port: dispatch of unknown task handle", "handle=%d", h)

	rec.resume <- struct{}{}
	select {
	case <-rec.yielded:
	case <-rec.done:
	}
}

// TaskYield is called by the currently running task (from within a kernel
// API, under the kernel lock having already been released) to hand control
// back to the dispatch loop, then blocks until it is dispatched again.
func (p *Port) TaskYield(h port.TaskHandle) {
	p.tasksMu.Lock()
	rec, ok := p.tasks[h]
	p.tasksMu.Unlock()
	kernerr.Assert(ok, "port: yield of unknown task handle", "handle=%d", h)

	rec.yielded <- struct{}{}
	<-rec.resume
}

// Forget removes a terminated task's bookkeeping record.
func (p *Port) Forget(h port.TaskHandle) {
	p.tasksMu.Lock()
	delete(p.tasks, h)
	p.tasksMu.Unlock()
}

// AssertNotInISR is a no-op: the hosted port never executes "real" ISRs,
// only goroutines calling *FromISR APIs by convention.
func (p *Port) AssertNotInISR() {}
