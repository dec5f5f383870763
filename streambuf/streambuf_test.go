package streambuf

import (
	"testing"
	"time"

	"github.com/joeycumines/gokernel/config"
	"github.com/joeycumines/gokernel/hostport"
	"github.com/joeycumines/gokernel/kernel"
	"github.com/joeycumines/gokernel/kernlog"
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

func TestStreamSendReceiveRoundTrip(t *testing.T) {
	k := newTestKernel(t)
	b := NewStream(k, kernlog.Noop(), "s", 8, 1, 0)

	h := k.CurrentTaskHandle() // 0 before any task runs; fine for non-blocking send
	n, err := b.Send(h, []byte("hello"), 0)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, 5, b.BytesAvailable())

	out := make([]byte, 5)
	n, err = b.Receive(h, out, 0)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(out))
	require.True(t, b.IsEmpty())
}

func TestStreamSendPartialWhenFull(t *testing.T) {
	k := newTestKernel(t)
	b := NewStream(k, kernlog.Noop(), "s", 4, 1, 0) // 3 usable bytes

	h := k.CurrentTaskHandle()
	n, err := b.Send(h, []byte("abcdef"), 0)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.True(t, b.IsFull())
}

func TestMessageBufferAllOrNothing(t *testing.T) {
	k := newTestKernel(t)
	b := NewMessage(k, kernlog.Noop(), "m", 16, 4, 0)

	h := k.CurrentTaskHandle()
	n, err := b.Send(h, []byte("hi"), 0)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	length, ok := b.NextMessageLength()
	require.True(t, ok)
	require.Equal(t, 2, length)

	out := make([]byte, 1) // too small to hold the message
	n, err = b.Receive(h, out, 0)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	out = make([]byte, 2)
	n, err = b.Receive(h, out, 0)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, "hi", string(out))
}

func TestMessageTooLargeNeverFitsAndDoesNotBlock(t *testing.T) {
	k := newTestKernel(t)
	b := NewMessage(k, kernlog.Noop(), "m", 8, 4, 0) // capacity-1=7 usable, prefix=4

	h := k.CurrentTaskHandle()
	n, err := b.Send(h, []byte("toolong"), 100) // needs 4+7=11 > 7, can never fit
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestSendFromISRWakesBlockedReceiver(t *testing.T) {
	k := newTestKernel(t)
	b := NewStream(k, kernlog.Noop(), "s", 8, 1, 0)

	received := make(chan string, 1)
	_, err := k.CreateTask("receiver", 1, 256, func(any) {
		h := k.CurrentTaskHandle()
		out := make([]byte, 3)
		n, err := b.Receive(h, out, 1000)
		require.NoError(t, err)
		received <- string(out[:n])
	}, nil)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, _, err = b.SendFromISR([]byte("hey"))
	require.NoError(t, err)

	select {
	case got := <-received:
		require.Equal(t, "hey", got)
	case <-time.After(time.Second):
		t.Fatal("receiver never woke")
	}
}
