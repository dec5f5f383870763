// Package kernlog is the kernel's structured logging facade.
//
// Every component that wants to log (the scheduler, queues, stream buffers,
// the timer daemon) takes a *Logger, never a concrete backend, matching
// spec.md's "structured logging" ambient-stack requirement. The default
// backend wires github.com/joeycumines/logiface (the generic structured
// event facade) to github.com/joeycumines/izerolog (a logiface Event
// implementation over github.com/rs/zerolog), the same pairing the teacher
// repo's logiface-zerolog integration tests exercise. A nil *Logger is
// valid and logs nothing, matching eventloop.NewNoOpLogger's role.
package kernlog

import (
	"os"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// Logger wraps a logiface logger specialised to izerolog's Event type.
// It is safe for concurrent use — logiface.Logger is.
type Logger struct {
	l *logiface.Logger[*izerolog.Event]
}

// New builds a Logger writing JSON lines to w at the given minimum level.
// A typical call site is kernlog.New(os.Stderr, logiface.LevelInformational).
func New(w *os.File, level logiface.Level) *Logger {
	zl := zerolog.New(w).With().Timestamp().Logger()
	base := izerolog.L.New(
		izerolog.L.WithLevel(level),
		izerolog.L.WithZerolog(zl),
	)
	return &Logger{l: base}
}

// Noop returns a Logger that discards everything, used as the default when
// a component is constructed without an explicit logger.
func Noop() *Logger {
	zl := zerolog.New(nil).Level(zerolog.Disabled)
	return &Logger{l: izerolog.L.New(izerolog.L.WithZerolog(zl), izerolog.L.WithLevel(logiface.LevelDisabled))}
}

func (k *Logger) logger() *logiface.Logger[*izerolog.Event] {
	if k == nil || k.l == nil {
		return Noop().l
	}
	return k.l
}

// TaskEvent logs a scheduler lifecycle transition: create, delete, suspend,
// resume, priority change, delay, wake, abort.
func (k *Logger) TaskEvent(event, taskName string, priority int) {
	k.logger().Debug().Str("event", event).Str("task", taskName).Int("priority", priority).Log("task lifecycle event")
}

// PriorityInheritance logs a mutex priority-inheritance grant or release.
func (k *Logger) PriorityInheritance(mutexName, holder string, fromPriority, toPriority int) {
	k.logger().Debug().
		Str("mutex", mutexName).
		Str("holder", holder).
		Int("from_priority", fromPriority).
		Int("to_priority", toPriority).
		Log("priority inheritance applied")
}

// QueueLock logs a queue lock/unlock transition, including the number of
// deferred wakes replayed on unlock.
func (k *Logger) QueueLock(queueName string, txLock, rxLock int) {
	k.logger().Trace().Str("queue", queueName).Int("tx_lock", txLock).Int("rx_lock", rxLock).Log("queue unlocked")
}

// TickOverflow logs a tick-counter wraparound.
func (k *Logger) TickOverflow(overflowCount uint64) {
	k.logger().Info().Uint64("overflow_count", overflowCount).Log("tick counter wrapped")
}

// TimerBacklog logs a timer catching up on missed periods.
func (k *Logger) TimerBacklog(timerName string, periodsSkipped int) {
	k.logger().Warning().Str("timer", timerName).Int("periods_skipped", periodsSkipped).Log("timer processed backlog")
}

// Error logs an unexpected condition that does not warrant a panic.
func (k *Logger) Error(context string, err error) {
	k.logger().Err(err).Str("context", context).Log("kernel error")
}
