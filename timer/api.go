package timer

import (
	"github.com/joeycumines/gokernel/kernerr"
	"github.com/joeycumines/gokernel/list"
	"github.com/joeycumines/gokernel/queue"
)

// Create registers a new timer, dynamically allocated. It is inactive
// until Start, Reset or ChangePeriod is called.
func (s *Service) Create(name string, periodTicks uint64, autoReload bool, userID any, callback func(*Timer)) (ID, error) {
	return s.create(name, periodTicks, autoReload, userID, callback, false)
}

// CreateStatic is Create's statically-allocated counterpart (spec.md §6
// "static allocation" option). Under a hosted, garbage-collected port
// there is no caller-supplied storage to place the Timer into, so the
// only difference is the recorded staticAlloc status bit, which no other
// code path reads.
func (s *Service) CreateStatic(name string, periodTicks uint64, autoReload bool, userID any, callback func(*Timer)) (ID, error) {
	return s.create(name, periodTicks, autoReload, userID, callback, true)
}

func (s *Service) create(name string, periodTicks uint64, autoReload bool, userID any, callback func(*Timer), static bool) (ID, error) {
	kernerr.Assert(periodTicks > 0, "timer: period must be > 0", "name=%s", name)
	t := &Timer{
		name:        name,
		period:      periodTicks,
		autoReload:  autoReload,
		userID:      userID,
		callback:    callback,
		staticAlloc: static,
	}
	t.item = &list.Item[*Timer]{Owner: t}

	s.k.Lock()
	s.nextID++
	t.id = s.nextID
	s.timers[t.id] = t
	s.k.Unlock()

	return t.id, nil
}

func (s *Service) lookup(id ID) (*Timer, error) {
	s.k.Lock()
	defer s.k.Unlock()
	t, ok := s.timers[id]
	if !ok {
		return nil, kernerr.ErrNotFound
	}
	return t, nil
}

func (s *Service) sendCommand(t *Timer, kind commandKind, value uint64, ticksToWait uint64) error {
	return s.cmdQueue.Send(s.k.CurrentTaskHandle(), command{kind: kind, timer: t, value: value}, ticksToWait, queue.Back)
}

func (s *Service) sendCommandFromISR(t *Timer, kind commandKind, value uint64) (bool, error) {
	return s.cmdQueue.SendFromISR(command{kind: kind, timer: t, value: value}, queue.Back)
}

// Start activates the timer, expiring period ticks from now.
func (s *Service) Start(id ID, ticksToWait uint64) error {
	t, err := s.lookup(id)
	if err != nil {
		return err
	}
	return s.sendCommand(t, cmdStart, s.k.TickCount(), ticksToWait)
}

// StartFromISR is the ISR-safe variant.
func (s *Service) StartFromISR(id ID) (higherPriorityWoken bool, err error) {
	t, err := s.lookup(id)
	if err != nil {
		return false, err
	}
	return s.sendCommandFromISR(t, cmdStart, s.k.TickCount())
}

// Reset is semantically identical to Start: it (re)expires the timer
// period ticks from now, discarding any in-progress countdown.
func (s *Service) Reset(id ID, ticksToWait uint64) error {
	return s.Start(id, ticksToWait)
}

// ResetFromISR is the ISR-safe variant.
func (s *Service) ResetFromISR(id ID) (higherPriorityWoken bool, err error) {
	return s.StartFromISR(id)
}

// Stop deactivates the timer. Its expiry, if any, is cancelled.
func (s *Service) Stop(id ID, ticksToWait uint64) error {
	t, err := s.lookup(id)
	if err != nil {
		return err
	}
	return s.sendCommand(t, cmdStop, 0, ticksToWait)
}

// StopFromISR is the ISR-safe variant.
func (s *Service) StopFromISR(id ID) (higherPriorityWoken bool, err error) {
	t, err := s.lookup(id)
	if err != nil {
		return false, err
	}
	return s.sendCommandFromISR(t, cmdStop, 0)
}

// ChangePeriod sets a new period and, per the original, (re)activates and
// reschedules the timer relative to now.
func (s *Service) ChangePeriod(id ID, newPeriod uint64, ticksToWait uint64) error {
	kernerr.Assert(newPeriod > 0, "timer: period must be > 0", "id=%d", id)
	t, err := s.lookup(id)
	if err != nil {
		return err
	}
	return s.sendCommand(t, cmdChangePeriod, newPeriod, ticksToWait)
}

// ChangePeriodFromISR is the ISR-safe variant.
func (s *Service) ChangePeriodFromISR(id ID, newPeriod uint64) (higherPriorityWoken bool, err error) {
	kernerr.Assert(newPeriod > 0, "timer: period must be > 0", "id=%d", id)
	t, err := s.lookup(id)
	if err != nil {
		return false, err
	}
	return s.sendCommandFromISR(t, cmdChangePeriod, newPeriod)
}

// Delete removes the timer. Further use of id returns kernerr.ErrNotFound.
func (s *Service) Delete(id ID, ticksToWait uint64) error {
	t, err := s.lookup(id)
	if err != nil {
		return err
	}
	return s.sendCommand(t, cmdDelete, 0, ticksToWait)
}

// IsActive reports whether the timer is currently counting down.
func (s *Service) IsActive(id ID) (bool, error) {
	t, err := s.lookup(id)
	if err != nil {
		return false, err
	}
	s.k.Lock()
	defer s.k.Unlock()
	return t.active, nil
}

// GetExpiryTime returns the tick count at which the timer will next (or
// most recently did) expire.
func (s *Service) GetExpiryTime(id ID) (uint64, error) {
	t, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	s.k.Lock()
	defer s.k.Unlock()
	return t.item.Value, nil
}

// GetPeriod returns the timer's period, in ticks.
func (s *Service) GetPeriod(id ID) (uint64, error) {
	t, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	s.k.Lock()
	defer s.k.Unlock()
	return t.period, nil
}

// SetReloadMode changes whether the timer auto-reloads on expiry. Takes
// effect from the next expiry onward.
func (s *Service) SetReloadMode(id ID, autoReload bool) error {
	t, err := s.lookup(id)
	if err != nil {
		return err
	}
	s.k.Lock()
	t.autoReload = autoReload
	s.k.Unlock()
	return nil
}

// GetReloadMode reports whether the timer auto-reloads on expiry.
func (s *Service) GetReloadMode(id ID) (bool, error) {
	t, err := s.lookup(id)
	if err != nil {
		return false, err
	}
	s.k.Lock()
	defer s.k.Unlock()
	return t.autoReload, nil
}

// GetID returns the application-settable opaque identifier (distinct from
// the timer's ID, which addresses it through this API).
func (s *Service) GetID(id ID) (any, error) {
	t, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	s.k.Lock()
	defer s.k.Unlock()
	return t.userID, nil
}

// SetID changes the application-settable opaque identifier.
func (s *Service) SetID(id ID, userID any) error {
	t, err := s.lookup(id)
	if err != nil {
		return err
	}
	s.k.Lock()
	t.userID = userID
	s.k.Unlock()
	return nil
}

// Name returns the timer's diagnostic name.
func (s *Service) Name(id ID) (string, error) {
	t, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	return t.name, nil
}

// PendFunctionCall queues fn to run on the timer daemon, piggy-backing on
// its command queue (spec.md §4.6); used to defer work that must not run
// directly on the calling task.
func (s *Service) PendFunctionCall(fn func(arg1 any, arg2 uint32), arg1 any, arg2 uint32, ticksToWait uint64) error {
	return s.cmdQueue.Send(s.k.CurrentTaskHandle(), command{pended: true, fn: fn, arg1: arg1, arg2: arg2}, ticksToWait, queue.Back)
}

// PendFunctionCallFromISR is the ISR-safe variant.
func (s *Service) PendFunctionCallFromISR(fn func(arg1 any, arg2 uint32), arg1 any, arg2 uint32) (higherPriorityWoken bool, err error) {
	return s.cmdQueue.SendFromISR(command{pended: true, fn: fn, arg1: arg1, arg2: arg2}, queue.Back)
}

// ActiveCount returns the number of timers currently counting down, for
// package diag's snapshot.
func (s *Service) ActiveCount() int {
	s.k.Lock()
	defer s.k.Unlock()
	n := 0
	for _, t := range s.timers {
		if t.active {
			n++
		}
	}
	return n
}

// BacklogEvents returns the cumulative number of skipped auto-reload
// periods the daemon has caught up on since the service started (spec.md
// Scenario F), for package diag's snapshot.
func (s *Service) BacklogEvents() int {
	s.k.Lock()
	defer s.k.Unlock()
	return s.backlogEvents
}
