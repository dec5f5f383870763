package hostport

import (
	"testing"
	"time"

	"github.com/joeycumines/gokernel/port"
	"github.com/stretchr/testify/require"
)

func TestDisableEnableInterruptsNesting(t *testing.T) {
	p := New()

	p.DisableInterrupts()
	p.DisableInterrupts()
	require.Equal(t, 2, p.nesting)

	p.EnableInterrupts()
	require.Equal(t, 1, p.nesting)

	acquired := make(chan struct{})
	go func() {
		p.DisableInterrupts()
		close(acquired)
		p.EnableInterrupts()
	}()

	select {
	case <-acquired:
		t.Fatal("second goroutine acquired the lock while nesting was still held")
	case <-time.After(20 * time.Millisecond):
	}

	p.EnableInterrupts()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second goroutine never acquired the lock after release")
	}
}

func TestEnterExitCriticalFromISRRoundTrips(t *testing.T) {
	p := New()

	mask := p.EnterCriticalFromISR()
	require.Equal(t, uintptr(1), mask)
	p.ExitCriticalFromISR(mask)
	require.Equal(t, 0, p.nesting)
}

func TestStackInitDispatchYieldAndDone(t *testing.T) {
	p := New()

	var steps []string
	started := make(chan struct{})
	finished := make(chan struct{})

	var handle port.TaskHandle
	handle = p.StackInit("task", func(any) {
		steps = append(steps, "running")
		close(started)
		p.TaskYield(handle)
		steps = append(steps, "resumed")
		close(finished)
	}, nil)

	p.Dispatch(handle)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("task never started")
	}

	require.Equal(t, []string{"running"}, steps)

	p.Dispatch(handle)

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("task never resumed after second dispatch")
	}

	require.Equal(t, []string{"running", "resumed"}, steps)
	p.Forget(handle)
}

func TestTickSourceStartAndStop(t *testing.T) {
	p := New()

	var count int
	tickDone := make(chan struct{}, 1)
	p.TickSourceStart(1000, func() {
		count++
		select {
		case tickDone <- struct{}{}:
		default:
		}
	})

	select {
	case <-tickDone:
	case <-time.After(time.Second):
		t.Fatal("tick source never ticked")
	}

	p.Stop()
	require.Greater(t, count, 0)
	require.Nil(t, p.tickStop)
}
