package diag

import (
	"testing"
	"time"

	"github.com/joeycumines/gokernel/config"
	"github.com/joeycumines/gokernel/hostport"
	"github.com/joeycumines/gokernel/kernel"
	"github.com/joeycumines/gokernel/kernlog"
	"github.com/joeycumines/gokernel/queue"
	"github.com/joeycumines/gokernel/timer"
	"github.com/stretchr/testify/require"
)

func newTestKernel(t *testing.T) *kernel.Kernel {
	t.Helper()
	cfg := config.New(
		config.WithMaxPriorities(4),
		config.WithTickRateHz(2000),
		config.WithIdlePollInterval(time.Millisecond),
	)
	k := kernel.New(cfg, hostport.New(), kernlog.Noop())
	k.StartScheduler()
	t.Cleanup(k.StopScheduler)
	return k
}

func TestSnapshotReflectsKernelState(t *testing.T) {
	k := newTestKernel(t)
	c := New(k)

	block := make(chan struct{})
	_, err := k.CreateTask("busy", 2, 256, func(any) { <-block }, nil)
	require.NoError(t, err)
	defer close(block)

	snap := c.Snapshot()
	require.GreaterOrEqual(t, snap.TaskCount, 2) // idle + busy
	require.Equal(t, 0, snap.DelayedCount)
	require.Equal(t, 0, snap.SuspendedCount)
}

func TestSnapshotIncludesRegisteredQueueLockCounters(t *testing.T) {
	k := newTestKernel(t)
	q := queue.New[int](k, kernlog.Noop(), "q", 2, nil)
	c := New(k)
	c.RegisterQueue(q)

	snap := c.Snapshot()
	require.Len(t, snap.Queues, 1)
	require.Equal(t, "q", snap.Queues[0].Name)
	require.Equal(t, 0, snap.Queues[0].TxLock)
	require.Equal(t, 0, snap.Queues[0].RxLock)
}

func TestSnapshotIncludesRegisteredTimerService(t *testing.T) {
	k := newTestKernel(t)
	cfg := config.New(config.WithTimerTask(2, 4, 256))
	svc := timer.New(k, kernlog.Noop(), cfg, k.TaskCount)
	require.NoError(t, svc.Start())

	c := New(k)
	c.RegisterTimerService(svc)

	id, err := svc.Create("t", 1000, false, nil, func(*timer.Timer) {})
	require.NoError(t, err)
	require.NoError(t, svc.Start(id, 0))

	snap := c.Snapshot()
	require.Equal(t, 1, snap.TimerActiveCount)
	require.Equal(t, 0, snap.TimerBacklogEvents)
}

func TestSuspendedCountTracksSuspension(t *testing.T) {
	k := newTestKernel(t)
	c := New(k)

	block := make(chan struct{})
	h, err := k.CreateTask("suspendee", 1, 256, func(any) { <-block }, nil)
	require.NoError(t, err)
	defer close(block)

	require.NoError(t, k.SuspendTask(h))
	snap := c.Snapshot()
	require.Equal(t, 1, snap.SuspendedCount)

	require.NoError(t, k.ResumeTask(h))
	snap = c.Snapshot()
	require.Equal(t, 0, snap.SuspendedCount)
}
