package timer

import (
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/gokernel/config"
	"github.com/joeycumines/gokernel/hostport"
	"github.com/joeycumines/gokernel/kernel"
	"github.com/joeycumines/gokernel/kernlog"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*kernel.Kernel, *Service) {
	t.Helper()
	cfg := config.New(
		config.WithMaxPriorities(4),
		config.WithTickRateHz(2000),
		config.WithIdlePollInterval(time.Millisecond),
		config.WithTimerTask(2, 8, 256),
	)
	k := kernel.New(cfg, hostport.New(), kernlog.Noop())
	k.StartScheduler()
	t.Cleanup(k.StopScheduler)

	taskCount := k.TaskCount
	svc := New(k, kernlog.Noop(), cfg, taskCount)
	require.NoError(t, svc.Start())
	return k, svc
}

func TestOneShotTimerFiresOnce(t *testing.T) {
	_, svc := newTestService(t)

	fired := make(chan struct{}, 8)
	id, err := svc.Create("once", 10, false, nil, func(*Timer) { fired <- struct{}{} })
	require.NoError(t, err)
	require.NoError(t, svc.Start(id, 0))

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("one-shot timer never fired")
	}

	select {
	case <-fired:
		t.Fatal("one-shot timer fired more than once")
	case <-time.After(50 * time.Millisecond):
	}

	active, err := svc.IsActive(id)
	require.NoError(t, err)
	require.False(t, active)
}

func TestAutoReloadTimerFiresRepeatedly(t *testing.T) {
	_, svc := newTestService(t)

	var mu sync.Mutex
	count := 0
	id, err := svc.Create("repeat", 5, true, nil, func(*Timer) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)
	require.NoError(t, svc.Start(id, 0))

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, svc.Stop(id, 0))

	mu.Lock()
	defer mu.Unlock()
	require.Greater(t, count, 1)
}

func TestStopCancelsPendingExpiry(t *testing.T) {
	_, svc := newTestService(t)

	fired := make(chan struct{}, 1)
	id, err := svc.Create("stoppable", 1000, false, nil, func(*Timer) { fired <- struct{}{} })
	require.NoError(t, err)
	require.NoError(t, svc.Start(id, 0))
	require.NoError(t, svc.Stop(id, 0))

	select {
	case <-fired:
		t.Fatal("stopped timer still fired")
	case <-time.After(100 * time.Millisecond):
	}

	active, err := svc.IsActive(id)
	require.NoError(t, err)
	require.False(t, active)
}

func TestChangePeriodReschedules(t *testing.T) {
	_, svc := newTestService(t)

	id, err := svc.Create("period", 1000, true, nil, func(*Timer) {})
	require.NoError(t, err)
	require.NoError(t, svc.ChangePeriod(id, 5, 0))

	period, err := svc.GetPeriod(id)
	require.NoError(t, err)
	require.Equal(t, uint64(5), period)
}

func TestUserIDRoundTrips(t *testing.T) {
	_, svc := newTestService(t)

	id, err := svc.Create("id-holder", 100, false, "initial", func(*Timer) {})
	require.NoError(t, err)

	got, err := svc.GetID(id)
	require.NoError(t, err)
	require.Equal(t, "initial", got)

	require.NoError(t, svc.SetID(id, "updated"))
	got, err = svc.GetID(id)
	require.NoError(t, err)
	require.Equal(t, "updated", got)
}

func TestPendFunctionCallRunsOnDaemon(t *testing.T) {
	_, svc := newTestService(t)

	done := make(chan [2]any, 1)
	require.NoError(t, svc.PendFunctionCall(func(arg1 any, arg2 uint32) {
		done <- [2]any{arg1, arg2}
	}, "payload", 7, 0))

	select {
	case got := <-done:
		require.Equal(t, "payload", got[0])
		require.Equal(t, uint32(7), got[1])
	case <-time.After(time.Second):
		t.Fatal("pended function call never ran")
	}
}

func TestDeleteRemovesTimer(t *testing.T) {
	_, svc := newTestService(t)

	id, err := svc.Create("gone", 100, false, nil, func(*Timer) {})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(id, 0))

	_, err = svc.IsActive(id)
	require.Error(t, err)
}

// TestBacklogCatchUp exercises reloadTimer directly against the scenario
// an auto-reload timer's daemon processing has fallen behind several of
// its own periods: period=10, last expiry at tick 110, the daemon does
// not get to look at it again until tick 145. reloadTimer must invoke the
// callback once per period it catches up on (110->120, 120->130,
// 130->140 = 3 calls) and land the timer's next expiry at 150, leaving
// the period that actually triggered processing (140->150) for the
// caller (processExpiredTimer) to invoke once more — 4 callbacks total,
// matching the original ReloadTimer/ProcessExpiredTimer split.
func TestBacklogCatchUp(t *testing.T) {
	_, svc := newTestService(t)

	var mu sync.Mutex
	var calls []uint64
	id, err := svc.Create("backlog", 10, true, nil, func(*Timer) {
		mu.Lock()
		calls = append(calls, 0)
		mu.Unlock()
	})
	require.NoError(t, err)

	timer, err := svc.lookup(id)
	require.NoError(t, err)

	svc.k.Lock()
	timer.active = true
	svc.k.Unlock()

	svc.reloadTimer(timer, 110, 145)

	mu.Lock()
	skipped := len(calls)
	mu.Unlock()
	require.Equal(t, 3, skipped, "expected exactly 3 backlog callbacks from reloadTimer")

	svc.k.Lock()
	nextExpiry := timer.item.Value
	svc.k.Unlock()
	require.Equal(t, uint64(150), nextExpiry)

	require.Equal(t, 3, svc.BacklogEvents())
}

func TestActiveCountReflectsRunningTimers(t *testing.T) {
	_, svc := newTestService(t)

	id1, err := svc.Create("a", 1000, false, nil, func(*Timer) {})
	require.NoError(t, err)
	id2, err := svc.Create("b", 1000, false, nil, func(*Timer) {})
	require.NoError(t, err)

	require.Equal(t, 0, svc.ActiveCount())
	require.NoError(t, svc.Start(id1, 0))
	require.NoError(t, svc.Start(id2, 0))
	require.Equal(t, 2, svc.ActiveCount())
	require.NoError(t, svc.Stop(id1, 0))
	require.Equal(t, 1, svc.ActiveCount())
}
