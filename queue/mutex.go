package queue

import (
	"github.com/joeycumines/gokernel/kernerr"
	"github.com/joeycumines/gokernel/kernel"
	"github.com/joeycumines/gokernel/kernlog"
	"github.com/joeycumines/gokernel/list"
)

// Mutex is a capacity-1 semaphore that additionally tracks its holder and
// applies priority inheritance (spec.md §4.4 "Priority inheritance
// (mutex only)"). Recursive mutexes allow the holder to take it again
// without blocking, releasing only when the recursion count returns to
// zero.
type Mutex struct {
	k    *kernel.Kernel
	log  *kernlog.Logger
	name string

	recursive      bool
	held           bool
	holder         kernel.Handle
	recursiveCount int
	inheriting     bool

	waitingToReceive *list.List[*kernel.TCB]
}

// NewMutex creates a non-recursive, binary mutex.
func NewMutex(k *kernel.Kernel, log *kernlog.Logger, name string) *Mutex {
	return &Mutex{k: k, log: log, name: name, waitingToReceive: kernel.NewWaitList()}
}

// NewRecursiveMutex creates a mutex whose holder may take it repeatedly.
func NewRecursiveMutex(k *kernel.Kernel, log *kernlog.Logger, name string) *Mutex {
	return &Mutex{k: k, log: log, name: name, recursive: true, waitingToReceive: kernel.NewWaitList()}
}

// Holder returns the current holder, or 0 if unheld.
func (m *Mutex) Holder() kernel.Handle {
	m.k.Lock()
	defer m.k.Unlock()
	if !m.held {
		return 0
	}
	return m.holder
}

// Take acquires m, blocking the caller (which must be the currently
// running task h) up to ticksToWait. A recursive mutex held by h itself
// never blocks; it increments recursive_count instead.
func (m *Mutex) Take(h kernel.Handle, ticksToWait uint64) error {
	for {
		m.k.Lock()
		if !m.held {
			m.held = true
			m.holder = h
			m.recursiveCount = 1
			holderT := m.k.TaskLocked(h)
			holderT.MutexesHeld++
			m.k.Unlock()
			return nil
		}
		if m.recursive && m.holder == h {
			kernerr.Assert(m.held, "mutex: recursive take with no holder", "name=%s", m.name)
			m.recursiveCount++
			m.k.Unlock()
			return nil
		}
		if ticksToWait == 0 {
			m.k.Unlock()
			return kernerr.ErrTimeout
		}

		waiterT := m.k.TaskLocked(h)
		holderT := m.k.TaskLocked(m.holder)
		if waiterT.Priority > holderT.Priority {
			m.log.PriorityInheritance(m.name, holderT.Name, holderT.Priority, waiterT.Priority)
			m.k.BoostPriorityLocked(m.holder, waiterT.Priority)
			m.inheriting = true
		}
		m.k.PlaceOnEventList(h, m.waitingToReceive, ticksToWait)
		m.k.Unlock()

		if err := m.k.Block(h); err != nil {
			if err == kernerr.ErrTimeout {
				m.partialDisinherit()
			}
			return err
		}
		// Woken by Give, which hands ownership straight to the woken
		// waiter; any other wake re-loops to re-check the mutex.
		m.k.Lock()
		owned := m.held && m.holder == h
		m.k.Unlock()
		if owned {
			return nil
		}
	}
}

// partialDisinherit lowers the holder back towards the highest priority
// still waiting, per spec.md §4.4 "On timeout: partial disinherit down to
// the highest priority of remaining waiters".
func (m *Mutex) partialDisinherit() {
	m.k.Lock()
	defer m.k.Unlock()
	if !m.inheriting || !m.held {
		return
	}
	holderT := m.k.TaskLocked(m.holder)
	target := holderT.BasePriority
	if head := m.waitingToReceive.Head(); head != nil {
		if p := head.Owner.Priority; p > target {
			target = p
		}
	}
	if target != holderT.Priority {
		m.k.RestorePriorityLocked(m.holder, target)
	}
	if target == holderT.BasePriority {
		m.inheriting = false
	}
}

// Give releases one level of recursion; when the count reaches zero the
// mutex is released, its holder's priority is restored to base (if it was
// boosted and holds no other mutexes), and the highest-priority waiter
// (if any) is woken to claim it.
func (m *Mutex) Give(h kernel.Handle) error {
	m.k.Lock()
	if !m.held || m.holder != h {
		m.k.Unlock()
		return kernerr.ErrNotPermitted
	}
	m.recursiveCount--
	if m.recursiveCount > 0 {
		m.k.Unlock()
		return nil
	}

	holderT := m.k.TaskLocked(h)
	holderT.MutexesHeld--
	m.held = false
	m.holder = 0

	if m.inheriting && holderT.MutexesHeld == 0 {
		m.log.PriorityInheritance(m.name, holderT.Name, holderT.Priority, holderT.BasePriority)
		m.k.RestorePriorityLocked(h, holderT.BasePriority)
		m.inheriting = false
	}

	woken, higher := m.k.RemoveFromEventList(m.waitingToReceive)
	if woken != 0 {
		m.held = true
		m.holder = woken
		m.recursiveCount = 1
		wokenT := m.k.TaskLocked(woken)
		wokenT.MutexesHeld++
	}
	m.k.Unlock()
	if higher {
		m.k.Yield(h)
	}
	return nil
}

// GiveFromISR is the ISR-safe variant. Mutexes are not normally given from
// ISR context in the original either (priority inheritance requires task
// context to resolve); this exists for symmetry with the queue/semaphore
// *FromISR family and behaves identically to Give without the final
// yield, returning higherPriorityWoken for the caller to act on instead.
func (m *Mutex) GiveFromISR(h kernel.Handle) (higherPriorityWoken bool, err error) {
	mask := m.k.LockFromISR()
	if !m.held || m.holder != h {
		m.k.UnlockFromISR(mask)
		return false, kernerr.ErrNotPermitted
	}
	m.recursiveCount--
	if m.recursiveCount > 0 {
		m.k.UnlockFromISR(mask)
		return false, nil
	}
	holderT := m.k.TaskLocked(h)
	holderT.MutexesHeld--
	m.held = false
	m.holder = 0
	if m.inheriting && holderT.MutexesHeld == 0 {
		m.k.RestorePriorityLocked(h, holderT.BasePriority)
		m.inheriting = false
	}
	woken, higher := m.k.RemoveFromEventList(m.waitingToReceive)
	if woken != 0 {
		m.held = true
		m.holder = woken
		m.recursiveCount = 1
		wokenT := m.k.TaskLocked(woken)
		wokenT.MutexesHeld++
	}
	m.k.UnlockFromISR(mask)
	return higher, nil
}
