package kernel

import (
	"github.com/joeycumines/gokernel/list"
	"github.com/joeycumines/gokernel/port"
)

// NotifyState models one task notification channel's state (spec.md §3).
type NotifyState uint8

const (
	NotWaiting NotifyState = iota
	Waiting
	Received
)

// AllocationKind records how a task's TCB/stack were provisioned. The
// hosted port never actually allocates a stack buffer (the Go runtime
// manages goroutine stacks), but the field is carried so StaticBoth/
// StaticStackOnly task creation still has observable, testable semantics
// (e.g. rejecting CreateTaskStatic when SupportStaticAllocation is false).
type AllocationKind int

const (
	DynamicTCBAndStack AllocationKind = iota
	StaticStackOnly
	StaticBoth
)

// Handle identifies a task to callers of the public API. The zero Handle
// never refers to a live task.
type Handle uint64

// TCB is the task control block (spec.md §3). Exported fields are those
// read by diag snapshots and tests; mutation always happens under the
// kernel's critical section.
type TCB struct {
	handle Handle
	port   port.TaskHandle

	Name         string
	Priority     int
	BasePriority int

	StackDepth     int
	AllocationKind AllocationKind

	stateItem *list.Item[*TCB] // value = wake tick while delayed
	eventItem *list.Item[*TCB] // value = MAX_PRIORITIES - effective priority

	MutexesHeld int

	notifyValue []uint32
	notifyState []NotifyState

	delayAborted bool
	deleted      bool

	// timedOut is set when Tick wakes the task because its delay expired,
	// and is consumed (and cleared) by wakeStatus to report ErrTimeout.
	timedOut bool
}

func newTCB(h Handle, name string, priority int, notifyChannels int, kind AllocationKind, stackDepth int) *TCB {
	t := &TCB{
		handle:         h,
		Name:           name,
		Priority:       priority,
		BasePriority:   priority,
		AllocationKind: kind,
		StackDepth:     stackDepth,
		notifyValue:    make([]uint32, notifyChannels),
		notifyState:    make([]NotifyState, notifyChannels),
	}
	t.stateItem = &list.Item[*TCB]{Owner: t}
	t.eventItem = &list.Item[*TCB]{Owner: t}
	return t
}

// Handle returns the task's stable handle.
func (t *TCB) Handle() Handle { return t.handle }

// State derives the task's externally-visible state from list membership
// and kernel bookkeeping, per spec.md §3 ("Derived from list membership;
// not stored explicitly").
type State int

const (
	StateReady State = iota
	StateRunning
	StateBlocked
	StateSuspended
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "Ready"
	case StateRunning:
		return "Running"
	case StateBlocked:
		return "Blocked"
	case StateSuspended:
		return "Suspended"
	case StateDeleted:
		return "Deleted"
	default:
		return "Unknown"
	}
}
