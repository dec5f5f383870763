package streambuf

import (
	"github.com/joeycumines/gokernel/kernerr"
	"github.com/joeycumines/gokernel/kernel"
)

// Send writes data, blocking the caller (which must be the currently
// running task h) up to ticksToWait. In stream mode it may write fewer
// bytes than len(data) if the buffer does not have room for all of it;
// in message mode it writes the whole message or nothing — "partial
// messages are never delivered" (spec.md §4.5). It returns the number of
// payload bytes written.
func (b *Buffer) Send(h kernel.Handle, data []byte, ticksToWait uint64) (int, error) {
	if b.message {
		return b.sendMessage(h, data, ticksToWait)
	}
	return b.sendStream(h, data, ticksToWait)
}

func (b *Buffer) sendStream(h kernel.Handle, data []byte, ticksToWait uint64) (int, error) {
	b.k.Lock()
	kernerr.Assert(b.waitingSender == 0, "streambuf: second concurrent sender", "name=%s", b.name)
	free := b.cap() - 1 - b.n
	if free == 0 && len(data) > 0 {
		if ticksToWait == 0 {
			b.k.Unlock()
			return 0, nil
		}
		b.waitingSender = h
		b.k.Unlock()
		if _, err := b.k.NotifyWait(h, b.notifyIndex, ticksToWait); err != nil {
			b.k.Lock()
			b.waitingSender = 0
			b.k.Unlock()
			return 0, err
		}
		b.k.Lock()
		b.waitingSender = 0
		free = b.cap() - 1 - b.n
	}
	n := min(len(data), free)
	if n > 0 {
		b.writeBytesLocked(data[:n])
	}
	wake := b.n >= b.triggerLevel && b.waitingReceiver != 0
	recv := b.waitingReceiver
	b.k.Unlock()
	if wake {
		b.k.NotifyGive(recv, b.notifyIndex)
	}
	return n, nil
}

func (b *Buffer) sendMessage(h kernel.Handle, payload []byte, ticksToWait uint64) (int, error) {
	needed := b.lengthPrefix + len(payload)
	if needed > b.cap()-1 {
		return 0, nil
	}
	b.k.Lock()
	kernerr.Assert(b.waitingSender == 0, "streambuf: second concurrent sender", "name=%s", b.name)
	free := b.cap() - 1 - b.n
	if free < needed {
		if ticksToWait == 0 {
			b.k.Unlock()
			return 0, nil
		}
		b.waitingSender = h
		b.k.Unlock()
		if _, err := b.k.NotifyWait(h, b.notifyIndex, ticksToWait); err != nil {
			b.k.Lock()
			b.waitingSender = 0
			b.k.Unlock()
			return 0, err
		}
		b.k.Lock()
		b.waitingSender = 0
		free = b.cap() - 1 - b.n
		if free < needed {
			b.k.Unlock()
			return 0, nil
		}
	}
	b.writeLengthPrefixLocked(len(payload))
	b.writeBytesLocked(payload)
	recv := b.waitingReceiver
	b.k.Unlock()
	if recv != 0 {
		b.k.NotifyGive(recv, b.notifyIndex)
	}
	return len(payload), nil
}

// SendFromISR is the non-blocking, ISR-safe variant.
func (b *Buffer) SendFromISR(data []byte) (n int, higherPriorityWoken bool, err error) {
	mask := b.k.LockFromISR()
	if b.message {
		needed := b.lengthPrefix + len(data)
		if needed > b.cap()-1 || b.cap()-1-b.n < needed {
			b.k.UnlockFromISR(mask)
			return 0, false, nil
		}
		b.writeLengthPrefixLocked(len(data))
		b.writeBytesLocked(data)
		n = len(data)
	} else {
		free := b.cap() - 1 - b.n
		n = min(len(data), free)
		if n > 0 {
			b.writeBytesLocked(data[:n])
		}
	}
	recv := b.waitingReceiver
	wake := recv != 0 && (b.message || b.n >= b.triggerLevel)
	b.k.UnlockFromISR(mask)
	if wake {
		if err := b.k.NotifyGiveFromISR(recv, b.notifyIndex); err == nil {
			higherPriorityWoken = true
		}
	}
	return n, higherPriorityWoken, nil
}

// Receive reads into out, blocking the caller (which must be the
// currently running task h) up to ticksToWait. In stream mode it returns
// as soon as at least trigger_level bytes are available (or, with a zero
// timeout, whatever is immediately available); in message mode it
// returns exactly one whole message, or 0 if out is too small to hold it.
func (b *Buffer) Receive(h kernel.Handle, out []byte, ticksToWait uint64) (int, error) {
	if b.message {
		return b.receiveMessage(h, out, ticksToWait)
	}
	return b.receiveStream(h, out, ticksToWait)
}

func (b *Buffer) receiveStream(h kernel.Handle, out []byte, ticksToWait uint64) (int, error) {
	b.k.Lock()
	kernerr.Assert(b.waitingReceiver == 0, "streambuf: second concurrent receiver", "name=%s", b.name)
	if b.n < b.triggerLevel && b.n < len(out) {
		if ticksToWait == 0 {
			if b.n == 0 {
				b.k.Unlock()
				return 0, kernerr.ErrTimeout
			}
		} else {
			b.waitingReceiver = h
			b.k.Unlock()
			if _, err := b.k.NotifyWait(h, b.notifyIndex, ticksToWait); err != nil {
				b.k.Lock()
				b.waitingReceiver = 0
				b.k.Unlock()
				return 0, err
			}
			b.k.Lock()
			b.waitingReceiver = 0
		}
	}
	n := min(len(out), b.n)
	copy(out, b.readBytesLocked(n))
	send := b.waitingSender
	b.k.Unlock()
	if send != 0 {
		b.k.NotifyGive(send, b.notifyIndex)
	}
	return n, nil
}

func (b *Buffer) receiveMessage(h kernel.Handle, out []byte, ticksToWait uint64) (int, error) {
	b.k.Lock()
	kernerr.Assert(b.waitingReceiver == 0, "streambuf: second concurrent receiver", "name=%s", b.name)
	if b.n == 0 {
		if ticksToWait == 0 {
			b.k.Unlock()
			return 0, nil
		}
		b.waitingReceiver = h
		b.k.Unlock()
		if _, err := b.k.NotifyWait(h, b.notifyIndex, ticksToWait); err != nil {
			b.k.Lock()
			b.waitingReceiver = 0
			b.k.Unlock()
			return 0, err
		}
		b.k.Lock()
		b.waitingReceiver = 0
		if b.n == 0 {
			b.k.Unlock()
			return 0, kernerr.ErrTimeout
		}
	}
	msgLen := b.peekLengthLocked()
	if len(out) < msgLen {
		b.k.Unlock()
		return 0, nil
	}
	b.consumeMessageLocked(msgLen, out)
	send := b.waitingSender
	b.k.Unlock()
	if send != 0 {
		b.k.NotifyGive(send, b.notifyIndex)
	}
	return msgLen, nil
}

// ReceiveFromISR is the non-blocking, ISR-safe variant.
func (b *Buffer) ReceiveFromISR(out []byte) (n int, higherPriorityWoken bool, err error) {
	mask := b.k.LockFromISR()
	if b.message {
		if b.n == 0 {
			b.k.UnlockFromISR(mask)
			return 0, false, nil
		}
		msgLen := b.peekLengthLocked()
		if len(out) < msgLen {
			b.k.UnlockFromISR(mask)
			return 0, false, nil
		}
		b.consumeMessageLocked(msgLen, out)
		n = msgLen
	} else {
		n = min(len(out), b.n)
		if n > 0 {
			copy(out, b.readBytesLocked(n))
		}
	}
	send := b.waitingSender
	b.k.UnlockFromISR(mask)
	if send != 0 && n > 0 {
		if err := b.k.NotifyGiveFromISR(send, b.notifyIndex); err == nil {
			higherPriorityWoken = true
		}
	}
	return n, higherPriorityWoken, nil
}

// NextMessageLength returns the length of the next whole message waiting
// to be received, and whether one is available. Stream buffers always
// report (0, false).
func (b *Buffer) NextMessageLength() (int, bool) {
	if !b.message {
		return 0, false
	}
	b.k.Lock()
	defer b.k.Unlock()
	if b.n == 0 {
		return 0, false
	}
	return b.peekLengthLocked(), true
}

func (b *Buffer) writeLengthPrefixLocked(n int) {
	v := uint64(n)
	for i := 0; i < b.lengthPrefix; i++ {
		b.buf[b.tail] = byte(v)
		v >>= 8
		b.tail = (b.tail + 1) % b.cap()
	}
	b.n += b.lengthPrefix
}

func (b *Buffer) peekLengthLocked() int {
	var v uint64
	pos := b.head
	for i := 0; i < b.lengthPrefix; i++ {
		v |= uint64(b.buf[pos]) << (8 * i)
		pos = (pos + 1) % b.cap()
	}
	return int(v)
}

func (b *Buffer) consumeMessageLocked(msgLen int, out []byte) {
	b.head = (b.head + b.lengthPrefix) % b.cap()
	b.n -= b.lengthPrefix
	copy(out, b.readBytesLocked(msgLen))
}
