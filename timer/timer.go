// Package timer implements the software-timer service (spec.md §4.6): a
// daemon task plus command queue that schedules one-shot and auto-reload
// callbacks against the tick counter without a dedicated timer interrupt
// per timer.
//
// Every started, reset or period-changed timer lives on one of two
// time-ordered lists — current_list and overflow_list — exactly as
// original_source/timers.cpp's ActiveTimerList1/ActiveTimerList2. The
// daemon blocks on its command queue with a timeout equal to the next
// expiry, catching up on any backlog (spec.md Scenario F) the way
// original_source/timers.cpp's ReloadTimer does: invoke the callback once
// per skipped period, then once more for the period that triggered the
// wake.
package timer

import (
	"github.com/joeycumines/gokernel/list"
)

// ID identifies a timer across the service's public API, in place of the
// original's opaque TimerHandle_t.
type ID uint64

// Timer is a single software timer. Fields are only ever touched by the
// daemon goroutine or under the kernel's single lock; callers interact
// with it exclusively through *Service methods.
type Timer struct {
	id   ID
	name string

	item   *list.Item[*Timer] // value = expiry tick
	period uint64             // ticks; must be > 0

	userID   any
	callback func(*Timer)

	active      bool
	autoReload  bool
	staticAlloc bool
}

// ID returns the timer's identifier.
func (t *Timer) ID() ID { return t.id }

// Name returns the timer's diagnostic name.
func (t *Timer) Name() string { return t.name }
