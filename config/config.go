// Package config holds the kernel's compile-time configuration record.
//
// The original system configures these as preprocessor defines
// (configMAX_PRIORITIES, configUSE_MUTEXES, ...) picked up at build time by
// every translation unit. A hosted Go rewrite has no preprocessor, so the
// record is built once via functional options (the same pattern the teacher
// uses for eventloop.Loop) and threaded explicitly into the components that
// need it, rather than read from package-level globals.
package config

import "time"

// Config mirrors spec.md §6's recognised configuration options.
type Config struct {
	// MaxPriorities sizes the ready-list array; must be >= 1. Priority 0
	// is reserved for the idle task.
	MaxPriorities int

	// TickRateHz is the rate at which the port's tick source calls
	// Kernel.Tick.
	TickRateHz int

	// MaxTaskNameLen bounds TCB name capacity.
	MaxTaskNameLen int

	// MinimalStackSize is the idle task's requested stack depth, in the
	// same units callers pass to CreateTask (informational under the
	// hosted port, since goroutine stacks grow dynamically).
	MinimalStackSize int

	// TaskNotificationArrayEntries is the number of notification
	// channels per task.
	TaskNotificationArrayEntries int

	// UsePreemption enables equal-priority time-slicing on tick and
	// higher-priority preemption yields. When false, the scheduler only
	// switches on explicit blocking calls.
	UsePreemption bool

	UseMutexes              bool
	UseRecursiveMutexes     bool
	UseCountingSemaphores   bool
	UseQueueSets            bool
	UseTimers               bool
	UseStreamBuffers        bool
	UseTaskNotifications    bool
	SupportStaticAllocation bool
	SupportDynamicAllocation bool

	TimerTaskPriority   int
	TimerQueueLength    int
	TimerTaskStackDepth int

	// TickTypeWidthBits is the width of the tick counter: 16, 32 or 64.
	// It determines the overflow threshold (TickMax).
	TickTypeWidthBits int

	// MessageBufferLengthType controls the maximum single message size
	// for a message buffer, expressed as the byte width of its internal
	// length prefix (1, 2, 4 or 8).
	MessageBufferLengthType int

	// CheckForStackOverflow selects the stack-overflow check level: 0
	// (off), 1 (watermark-byte check) or 2 (watermark + canary check).
	// The hosted kernel accepts the setting but performs no stack check
	// at any level.
	CheckForStackOverflow int

	// IdleShouldYield selects whether the idle task yields when other
	// priority-0 tasks are ready. The hosted kernel does not read it: its
	// idle task yields on every iteration.
	IdleShouldYield bool

	// IdlePollInterval bounds how often the idle task re-evaluates its
	// hook and yield decision when otherwise nothing wakes it. Not part
	// of the original's busy-loop idle task, but required because a
	// hosted goroutine idle task must not spin a host CPU core at 100%.
	IdlePollInterval time.Duration
}

// Option configures a Config.
type Option func(*Config)

// New builds a Config from the given options, starting from defaults
// equivalent to a typical FreeRTOSConfig.h for a small target.
func New(opts ...Option) Config {
	c := Config{
		MaxPriorities:                8,
		TickRateHz:                   1000,
		MaxTaskNameLen:               16,
		MinimalStackSize:             128,
		TaskNotificationArrayEntries: 1,
		UsePreemption:                true,
		UseMutexes:                   true,
		UseRecursiveMutexes:          true,
		UseCountingSemaphores:        true,
		UseQueueSets:                 true,
		UseTimers:                    true,
		UseStreamBuffers:             true,
		UseTaskNotifications:        true,
		SupportStaticAllocation:      true,
		SupportDynamicAllocation:     true,
		TimerTaskPriority:            2,
		TimerQueueLength:             10,
		TimerTaskStackDepth:          256,
		TickTypeWidthBits:            32,
		MessageBufferLengthType:      4,
		CheckForStackOverflow:        0,
		IdleShouldYield:              true,
		IdlePollInterval:             time.Millisecond,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}

// WithMaxPriorities sets MaxPriorities.
func WithMaxPriorities(n int) Option {
	return func(c *Config) { c.MaxPriorities = n }
}

// WithTickRateHz sets TickRateHz.
func WithTickRateHz(hz int) Option {
	return func(c *Config) { c.TickRateHz = hz }
}

// WithTickTypeWidthBits sets TickTypeWidthBits (16, 32 or 64).
func WithTickTypeWidthBits(bits int) Option {
	return func(c *Config) { c.TickTypeWidthBits = bits }
}

// WithPreemption enables or disables preemptive time-slicing.
func WithPreemption(enabled bool) Option {
	return func(c *Config) { c.UsePreemption = enabled }
}

// WithTimerTask configures the timer daemon's priority, command queue
// length and stack depth.
func WithTimerTask(priority, queueLength, stackDepth int) Option {
	return func(c *Config) {
		c.TimerTaskPriority = priority
		c.TimerQueueLength = queueLength
		c.TimerTaskStackDepth = stackDepth
	}
}

// WithMessageBufferLengthType sets the message-buffer length-prefix width
// in bytes (1, 2, 4 or 8).
func WithMessageBufferLengthType(bytes int) Option {
	return func(c *Config) { c.MessageBufferLengthType = bytes }
}

// WithIdlePollInterval sets how often a hosted idle task wakes when idle.
func WithIdlePollInterval(d time.Duration) Option {
	return func(c *Config) { c.IdlePollInterval = d }
}

// TickMax returns the first tick value that never occurs: ticks run
// [0, TickMax) before wrapping to 0 and incrementing overflow_count.
func (c Config) TickMax() uint64 {
	switch c.TickTypeWidthBits {
	case 16:
		return 1 << 16
	case 64:
		return 0 // no explicit wrap point; the counter wraps via uint64 arithmetic
	default:
		return 1 << 32
	}
}
