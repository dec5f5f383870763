package kernel

import (
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/gokernel/config"
	"github.com/joeycumines/gokernel/hostport"
	"github.com/joeycumines/gokernel/kernlog"
	"github.com/stretchr/testify/require"
)

func newTestKernel(opts ...config.Option) *Kernel {
	cfg := config.New(append([]config.Option{
		config.WithMaxPriorities(4),
		config.WithTickRateHz(2000),
		config.WithIdlePollInterval(time.Millisecond),
	}, opts...)...)
	return New(cfg, hostport.New(), kernlog.Noop())
}

func TestTickCountAdvancesAndOverflows(t *testing.T) {
	k := newTestKernel(config.WithTickTypeWidthBits(16))
	require.Equal(t, uint64(0), k.TickCountFast())

	for i := 0; i < 1<<16-1; i++ {
		k.Tick()
	}
	require.Equal(t, uint64(1<<16-1), k.TickCountFast())
	require.Equal(t, uint64(0), k.OverflowCountFast())

	k.Tick()
	require.Equal(t, uint64(0), k.TickCountFast())
	require.Equal(t, uint64(1), k.OverflowCountFast())
}

func TestHigherPriorityTaskRunsFirst(t *testing.T) {
	k := newTestKernel()

	var mu sync.Mutex
	var order []string

	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	k.StartScheduler()
	defer k.StopScheduler()

	_, err := k.CreateTask("low", 1, 256, func(any) {
		record("low")
	}, nil)
	require.NoError(t, err)

	_, err = k.CreateTask("high", 2, 256, func(any) {
		record("high")
	}, nil)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, order)
	require.Equal(t, "high", order[0])
}

func TestDelayBlocksUntilTickDeadline(t *testing.T) {
	k := newTestKernel()
	k.StartScheduler()
	defer k.StopScheduler()

	done := make(chan struct{})
	_, err := k.CreateTask("sleeper", 1, 256, func(any) {
		h := k.CurrentTaskHandle()
		_ = k.Delay(h, 20)
		close(done)
	}, nil)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("delayed task never woke")
	}
}

// TestDelayAcrossTickOverflowParksInOverflowList exercises Scenario D: a
// delay requested close enough to the tick wrap that tick_count + ticks
// wraps past tick_max must land the task in delayed_overflow with the
// wrapped wake tick, not in delayed with an out-of-range value (which
// would never wake, since tick_count never exceeds tick_max-1).
func TestDelayAcrossTickOverflowParksInOverflowList(t *testing.T) {
	// A slow tick rate keeps the wrap (2 ticks away) comfortably behind the
	// task's startup and registration, so the assertions below land before
	// the real ticker goroutine has raced ahead on its own.
	k := newTestKernel(config.WithTickTypeWidthBits(16), config.WithTickRateHz(50))

	k.port.DisableInterrupts()
	k.tickCount = k.tickMax - 2
	k.port.EnableInterrupts()

	k.StartScheduler()
	defer k.StopScheduler()

	started := make(chan struct{})
	woken := make(chan struct{})
	h, err := k.CreateTask("wrapper", 1, 256, func(any) {
		hh := k.CurrentTaskHandle()
		close(started)
		_ = k.Delay(hh, 5)
		close(woken)
	}, nil)
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("task never started")
	}
	time.Sleep(20 * time.Millisecond) // let Delay register the task

	k.port.DisableInterrupts()
	tcb := k.tasks[h]
	require.NotNil(t, tcb)
	require.Same(t, k.delayedOverflow, tcb.stateItem.List(), "wake tick wraps past tick_max; must park in delayed_overflow")
	require.Equal(t, uint64(3), tcb.stateItem.Value, "wake tick must be reduced modulo tick_max, not left as a raw out-of-range sum")
	k.port.EnableInterrupts()

	select {
	case <-woken:
	case <-time.After(time.Second):
		t.Fatal("task delayed across the tick wrap never woke")
	}
}

func TestReadyDepthsReflectsPriority(t *testing.T) {
	k := newTestKernel()
	block := make(chan struct{})
	_, err := k.CreateTask("parked", 2, 256, func(any) { <-block }, nil)
	require.NoError(t, err)

	depths := k.ReadyDepths()
	require.Equal(t, 1, depths[2])
	close(block)
}
