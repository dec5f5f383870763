// Package streambuf implements the single-producer/single-consumer byte
// ring and its length-prefixed message-framing variant (spec.md §4.5).
//
// Unlike package queue's copy-semantic ring of discrete items, a stream
// buffer holds raw bytes; the wake protocol is direct task notifications
// rather than a priority-ordered wait list, since spec.md asserts at most
// one waiting_sender and one waiting_receiver at any time — there is
// never more than one task to address, so kernel.NotifyWait/NotifyGive
// (package kernel's "unordered event list") is the right primitive, not a
// list.
package streambuf

import (
	"github.com/joeycumines/gokernel/kernerr"
	"github.com/joeycumines/gokernel/kernel"
	"github.com/joeycumines/gokernel/kernlog"
)

// Buffer is the shared ring representation for both the Stream and
// Message flavours.
type Buffer struct {
	k    *kernel.Kernel
	log  *kernlog.Logger
	name string

	buf  []byte
	head int // tail, the read side
	tail int // head, the write side
	n    int // bytes_in_buffer

	triggerLevel int

	notifyIndex int

	waitingSender   kernel.Handle
	waitingReceiver kernel.Handle

	message       bool // framed message-buffer mode
	lengthPrefix  int  // MessageBufferLengthType, in bytes; 0 for Stream
}

// NewStream creates a byte-ring stream buffer of the given capacity
// (usable bytes = capacity-1, spec.md §4.5 "one slot is reserved as the
// empty/full discriminator"). notifyIndex selects which task-notification
// channel the wake protocol uses (default 0).
func NewStream(k *kernel.Kernel, log *kernlog.Logger, name string, capacity, triggerLevel, notifyIndex int) *Buffer {
	kernerr.Assert(capacity >= 2, "streambuf: capacity must be >= 2", "name=%s", name)
	return &Buffer{
		k: k, log: log, name: name,
		buf:          make([]byte, capacity),
		triggerLevel: max(1, triggerLevel),
		notifyIndex:  notifyIndex,
	}
}

// NewMessage creates a length-prefixed message buffer. lengthPrefixBytes
// is config.Config.MessageBufferLengthType.
func NewMessage(k *kernel.Kernel, log *kernlog.Logger, name string, capacity, lengthPrefixBytes, notifyIndex int) *Buffer {
	kernerr.Assert(capacity >= 2, "streambuf: capacity must be >= 2", "name=%s", name)
	return &Buffer{
		k: k, log: log, name: name,
		buf:          make([]byte, capacity),
		triggerLevel: 1,
		notifyIndex:  notifyIndex,
		message:      true,
		lengthPrefix: lengthPrefixBytes,
	}
}

// Name returns the buffer's diagnostic name.
func (b *Buffer) Name() string { return b.name }

func (b *Buffer) cap() int { return len(b.buf) }

// BytesAvailable returns the number of bytes (or, for a message buffer,
// bytes including pending length prefixes) currently readable.
func (b *Buffer) BytesAvailable() int {
	b.k.Lock()
	defer b.k.Unlock()
	return b.n
}

// SpacesAvailable returns the number of free bytes (spec.md §4.5
// "spaces_available = length − 1 − bytes_in_buffer").
func (b *Buffer) SpacesAvailable() int {
	b.k.Lock()
	defer b.k.Unlock()
	return b.cap() - 1 - b.n
}

// IsEmpty reports whether the buffer currently holds no bytes.
func (b *Buffer) IsEmpty() bool { return b.BytesAvailable() == 0 }

// IsFull reports whether the buffer has no free space.
func (b *Buffer) IsFull() bool { return b.SpacesAvailable() == 0 }

// SetTriggerLevel changes the stream variant's receiver wake threshold.
// Not legal on the message variant (every message wakes its receiver).
func (b *Buffer) SetTriggerLevel(level int) error {
	if b.message {
		return kernerr.ErrNotPermitted
	}
	b.k.Lock()
	defer b.k.Unlock()
	b.triggerLevel = max(1, level)
	return nil
}

// SetNotificationIndex changes which task-notification channel the wake
// protocol uses. Must not be called while a task is blocked on the
// buffer.
func (b *Buffer) SetNotificationIndex(index int) error {
	b.k.Lock()
	defer b.k.Unlock()
	if b.waitingSender != 0 || b.waitingReceiver != 0 {
		return kernerr.ErrNotPermitted
	}
	b.notifyIndex = index
	return nil
}

// Reset discards all buffered bytes. Only legal when no task is blocked
// on the buffer (spec.md §4.5 "Reset is permitted only when no task is
// blocked on the buffer").
func (b *Buffer) Reset() error {
	b.k.Lock()
	defer b.k.Unlock()
	if b.waitingSender != 0 || b.waitingReceiver != 0 {
		return kernerr.ErrNotPermitted
	}
	b.head, b.tail, b.n = 0, 0, 0
	return nil
}

func (b *Buffer) writeBytesLocked(p []byte) {
	for _, c := range p {
		b.buf[b.tail] = c
		b.tail = (b.tail + 1) % b.cap()
	}
	b.n += len(p)
}

func (b *Buffer) readBytesLocked(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b.buf[b.head]
		b.head = (b.head + 1) % b.cap()
	}
	b.n -= n
	return out
}
