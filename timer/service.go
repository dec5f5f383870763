package timer

import (
	"github.com/joeycumines/gokernel/config"
	"github.com/joeycumines/gokernel/kernel"
	"github.com/joeycumines/gokernel/kernlog"
	"github.com/joeycumines/gokernel/list"
	"github.com/joeycumines/gokernel/queue"
)

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdChangePeriod
	cmdDelete
)

// command is the daemon's single queue item, playing the role of the
// original's DaemonTaskMessage_t union. A pended function call (see
// PendFunctionCall) carries pended=true and skips the timer-list
// machinery entirely, mirroring the original's negative-message-ID branch.
type command struct {
	pended bool
	kind   commandKind
	timer  *Timer
	value  uint64 // command-issue tick (start/reset) or new period (changePeriod)

	fn   func(arg1 any, arg2 uint32)
	arg1 any
	arg2 uint32
}

// Service is the software-timer daemon: one command queue and two
// time-ordered lists of *Timer, processed by a single dedicated task.
type Service struct {
	k   *kernel.Kernel
	log *kernlog.Logger
	cfg config.Config

	cmdQueue *queue.Queue[command]

	currentList  *list.List[*Timer]
	overflowList *list.List[*Timer]

	timers map[ID]*Timer
	nextID ID

	daemon     kernel.Handle
	lastSample uint64

	backlogEvents int // cumulative count of skipped periods caught up on, for package diag
}

// New creates a timer service. Call Start to launch its daemon task.
// taskCount is threaded through to the command queue's lock-counter cap,
// same contract as queue.New.
func New(k *kernel.Kernel, log *kernlog.Logger, cfg config.Config, taskCount func() int) *Service {
	return &Service{
		k:   k,
		log: log,
		cfg: cfg,

		cmdQueue: queue.New[command](k, log, "timer-cmd", cfg.TimerQueueLength, taskCount),

		currentList:  list.New[*Timer](),
		overflowList: list.New[*Timer](),

		timers: make(map[ID]*Timer),
	}
}

// Start launches the daemon task at config.Config.TimerTaskPriority. Must
// be called after kernel.Kernel.StartScheduler.
func (s *Service) Start() error {
	h, err := s.k.CreateTask("Tmr Svc", s.cfg.TimerTaskPriority, s.cfg.TimerTaskStackDepth, s.daemonEntry, nil)
	if err != nil {
		return err
	}
	s.daemon = h
	return nil
}

func (s *Service) daemonEntry(any) {
	for {
		s.k.Lock()
		listEmpty := s.currentList.Empty()
		var nextExpiry uint64
		if !listEmpty {
			nextExpiry = s.currentList.Head().Value
		}
		s.k.Unlock()

		now, switched := s.sampleTimeNow()
		if switched {
			continue
		}

		if !listEmpty && nextExpiry <= now {
			s.processExpiredTimer(now)
			continue
		}

		s.k.Lock()
		waitIndefinitely := listEmpty && s.overflowList.Empty()
		s.k.Unlock()

		ticksToWait := list.ValueMax
		if !waitIndefinitely {
			ticksToWait = nextExpiry - now
		}

		cmd, err := s.cmdQueue.Receive(s.daemon, ticksToWait)
		if err == nil {
			s.processCommand(cmd)
		}
	}
}

// sampleTimeNow mirrors original_source/timers.cpp's SampleTimeNow: a tick
// count that reads lower than the last sample means Kernel.Tick wrapped
// the counter since our last look, so the two timer lists must swap
// before anything else uses them. Only the daemon goroutine calls this,
// so lastSample needs no lock of its own.
func (s *Service) sampleTimeNow() (now uint64, switched bool) {
	now = s.k.TickCount()
	switched = now < s.lastSample
	if switched {
		s.k.Lock()
		s.switchListsLocked()
		s.k.Unlock()
	}
	s.lastSample = now
	return now, switched
}

// switchListsLocked forces every timer remaining on current_list through
// expiry processing (as if time had reached TickMax-1, the original's
// tmrMAX_TIME_BEFORE_OVERFLOW) before swapping current_list and
// overflow_list, exactly as original_source/timers.cpp's SwitchTimerLists.
func (s *Service) switchListsLocked() {
	for !s.currentList.Empty() {
		s.k.Unlock()
		s.processExpiredTimer(s.cfg.TickMax() - 1)
		s.k.Lock()
	}
	s.currentList, s.overflowList = s.overflowList, s.currentList
}

// processExpiredTimer pops the head of current_list (which must have
// already been confirmed expired by the caller) and reloads or retires
// it, invoking the callback outside the kernel lock — user callbacks must
// never run while the single kernel-wide lock is held, since a callback
// that itself calls into the kernel would deadlock on the non-reentrant
// critical section.
func (s *Service) processExpiredTimer(now uint64) {
	s.k.Lock()
	head := s.currentList.Head()
	if head == nil {
		s.k.Unlock()
		return
	}
	t := head.Owner
	expiredAt := head.Value
	s.currentList.Remove(head)
	autoReload := t.autoReload
	s.k.Unlock()

	if autoReload {
		s.reloadTimer(t, expiredAt, now)
	} else {
		s.k.Lock()
		t.active = false
		s.k.Unlock()
	}
	s.invokeCallback(t)
}

// reloadTimer advances t's expiry by whole periods until it lands after
// now, invoking the callback once per period caught up on (spec.md
// Scenario F's backlog processing), mirroring original_source/timers.cpp's
// ReloadTimer. The final, triggering period's callback is invoked by the
// caller (processExpiredTimer), not here — same split as the original.
func (s *Service) reloadTimer(t *Timer, expiredAt, now uint64) {
	skipped := 0
	for {
		nextExpiry := expiredAt + t.period
		s.k.Lock()
		processNow := s.insertTimerInActiveListLocked(t, nextExpiry, now, expiredAt)
		s.k.Unlock()
		if !processNow {
			break
		}
		expiredAt = nextExpiry
		skipped++
		s.invokeCallback(t)
	}
	if skipped > 0 {
		s.log.TimerBacklog(t.name, skipped)
		s.k.Lock()
		s.backlogEvents += skipped
		s.k.Unlock()
	}
}

func (s *Service) invokeCallback(t *Timer) {
	if t.callback != nil {
		t.callback(t)
	}
}

// insertTimerInActiveListLocked places t on current_list or overflow_list
// depending on whether its next expiry has already wrapped relative to
// now, and reports whether that expiry is still in the past (meaning
// another round of catch-up is required). Mirrors
// original_source/timers.cpp's InsertTimerInActiveList exactly, including
// its wrap-aware "overflowed since the command was issued" check.
func (s *Service) insertTimerInActiveListLocked(t *Timer, nextExpiry, now, commandTime uint64) (processNow bool) {
	t.item.Value = nextExpiry
	switch {
	case nextExpiry <= now:
		if now-commandTime >= t.period {
			processNow = true
		} else {
			s.overflowList.InsertOrdered(t.item)
		}
	case now < commandTime && nextExpiry >= commandTime:
		processNow = true
	default:
		s.currentList.InsertOrdered(t.item)
	}
	return processNow
}

func (s *Service) processCommand(cmd command) {
	if cmd.pended {
		if cmd.fn != nil {
			cmd.fn(cmd.arg1, cmd.arg2)
		}
		return
	}

	t := cmd.timer
	s.k.Lock()
	if t.item.Linked() {
		t.item.List().Remove(t.item)
	}
	now := s.k.TickCountLocked()

	switch cmd.kind {
	case cmdStart:
		t.active = true
		processNow := s.insertTimerInActiveListLocked(t, cmd.value+t.period, now, cmd.value)
		if !processNow {
			s.k.Unlock()
			return
		}
		if t.autoReload {
			s.k.Unlock()
			s.reloadTimer(t, cmd.value+t.period, now)
			s.invokeCallback(t)
			return
		}
		t.active = false
		s.k.Unlock()
		s.invokeCallback(t)

	case cmdStop:
		t.active = false
		s.k.Unlock()

	case cmdChangePeriod:
		t.active = true
		t.period = cmd.value
		s.insertTimerInActiveListLocked(t, now+t.period, now, now)
		s.k.Unlock()

	case cmdDelete:
		delete(s.timers, t.id)
		s.k.Unlock()
	}
}
